package cache

import (
	"math"
	"sort"
	"time"

	"github.com/devicelab-dev/adaptive-selector/pkg/logger"
)

// evictionSlack removes a batch beyond the overflow so the cache does
// not re-evict on every subsequent insert.
func (c *Cache) evictionSlack() int {
	slack := c.cfg.MaxEntries / 10
	if slack > 100 {
		slack = 100
	}
	if slack < 1 {
		slack = 1
	}
	return slack
}

// Cleanup runs the expiry sweep immediately, regardless of the
// configured interval. Returns the number of entries removed.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := len(c.entries)
	c.expireLocked(time.Now())
	return before - len(c.entries)
}

// maintainLocked expires stale entries and evicts the least useful
// ones once the store overflows. The expiry sweep is a full scan, so
// it only runs once per configured interval. Caller holds the lock.
func (c *Cache) maintainLocked(now time.Time) {
	interval := time.Duration(c.cfg.CleanupIntervalHours) * time.Hour
	if c.lastCleanup.IsZero() || now.Sub(c.lastCleanup) >= interval {
		c.expireLocked(now)
		c.lastCleanup = now
	}

	over := len(c.entries) - c.cfg.MaxEntries
	if over <= 0 {
		return
	}
	target := over + c.evictionSlack()

	type scored struct {
		id    string
		score float64
	}
	ranked := make([]scored, 0, len(c.entries))
	for id, e := range c.entries {
		ranked = append(ranked, scored{id, usefulness(e, now)})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score < ranked[j].score })

	if target > len(ranked) {
		target = len(ranked)
	}
	for _, r := range ranked[:target] {
		delete(c.entries, r.id)
		c.stats.Evictions++
	}
	c.dirty = true
	logger.Info("cache: evicted %d entries (%d remain)", target, len(c.entries))
}

// expireLocked removes entries past the TTL, plus entries whose
// confidence fell below the floor and that nobody touched within the
// unused window.
func (c *Cache) expireLocked(now time.Time) {
	ttl := time.Duration(c.cfg.TTLDays) * 24 * time.Hour
	unused := time.Duration(c.cfg.UnusedDays) * 24 * time.Hour
	for id, e := range c.entries {
		last := e.LastAccess
		if last.IsZero() {
			last = e.CreatedAt
		}
		idle := now.Sub(last)
		if idle > ttl || (e.Confidence < c.cfg.ConfidenceFloor && idle > unused) {
			delete(c.entries, id)
			c.stats.Expirations++
			c.dirty = true
		}
	}
}

// usefulness scores an entry for eviction ranking: confidence,
// access volume, recency with a 30-day decay, and success rate.
func usefulness(e *Entry, now time.Time) float64 {
	access := math.Min(float64(e.AccessCnt)/100.0, 1.0)

	last := e.LastAccess
	if last.IsZero() {
		last = e.CreatedAt
	}
	ageDays := now.Sub(last).Hours() / 24
	recency := math.Max(0, 1.0-ageDays/30.0)

	success := 0.0
	if best := e.BestVersion(); best != nil {
		success = best.SuccessRate()
	}

	return 0.4*e.Confidence + 0.3*access + 0.2*recency + 0.1*success
}
