package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/devicelab-dev/adaptive-selector/pkg/core"
	"github.com/devicelab-dev/adaptive-selector/pkg/fingerprint"
	"github.com/devicelab-dev/adaptive-selector/pkg/logger"
	"github.com/devicelab-dev/adaptive-selector/pkg/pattern"
	"github.com/devicelab-dev/adaptive-selector/pkg/selector"
)

// Config carries the cache tunables. Zero values are filled in by
// Normalize.
type Config struct {
	Path           string  `yaml:"path"`
	BackupDir      string  `yaml:"backup_dir"`
	MaxEntries     int     `yaml:"max_entries"`
	MaxVersions    int     `yaml:"max_versions"`
	TTLDays        int     `yaml:"ttl_days"`
	MaxBackups     int     `yaml:"max_backups"`
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
	// CleanupIntervalHours spaces out the periodic expiry sweep.
	CleanupIntervalHours int `yaml:"cleanup_interval_hours"`
	// ConfidenceFloor and UnusedDays together expire entries that are
	// both unconvincing and idle.
	ConfidenceFloor     float64 `yaml:"confidence_floor"`
	UnusedDays          int     `yaml:"unused_days"`
	MinPatternSamples   int     `yaml:"min_pattern_samples"`
	PredictionThreshold float64 `yaml:"prediction_threshold"`
}

// DefaultConfig returns the stock cache configuration.
func DefaultConfig() Config {
	return Config{
		Path:                 "selector_cache.json",
		MaxEntries:           10000,
		MaxVersions:          5,
		TTLDays:              90,
		MaxBackups:           7,
		FuzzyThreshold:       0.6,
		CleanupIntervalHours: 6,
		ConfidenceFloor:      0.1,
		UnusedDays:           7,
		MinPatternSamples:    3,
		PredictionThreshold:  0.7,
	}
}

// Normalize fills zero fields with defaults.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Path == "" {
		c.Path = d.Path
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = d.MaxEntries
	}
	if c.MaxVersions <= 0 {
		c.MaxVersions = d.MaxVersions
	}
	if c.TTLDays <= 0 {
		c.TTLDays = d.TTLDays
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = d.MaxBackups
	}
	if c.FuzzyThreshold <= 0 {
		c.FuzzyThreshold = d.FuzzyThreshold
	}
	if c.CleanupIntervalHours <= 0 {
		c.CleanupIntervalHours = d.CleanupIntervalHours
	}
	if c.ConfidenceFloor <= 0 {
		c.ConfidenceFloor = d.ConfidenceFloor
	}
	if c.UnusedDays <= 0 {
		c.UnusedDays = d.UnusedDays
	}
	if c.MinPatternSamples <= 0 {
		c.MinPatternSamples = d.MinPatternSamples
	}
	if c.PredictionThreshold <= 0 {
		c.PredictionThreshold = d.PredictionThreshold
	}
}

// Stats is the cache's own health counters.
type Stats struct {
	Hits            int64   `json:"hits"`
	FuzzyHits       int64   `json:"fuzzy_hits"`
	Misses          int64   `json:"misses"`
	Evictions       int64   `json:"evictions"`
	Expirations     int64   `json:"expirations"`
	Lookups         int64   `json:"lookups"`
	AvgLookupMicros float64 `json:"avg_lookup_micros"`
	Entries         int     `json:"entries"`
	FileSize        int64   `json:"file_size"`
}

// HitRate returns hits (exact plus fuzzy) over lookups.
func (s Stats) HitRate() float64 {
	if s.Lookups == 0 {
		return 0
	}
	return float64(s.Hits+s.FuzzyHits) / float64(s.Lookups)
}

// Cache is the selector store. One mutex guards all state; exported
// methods lock once and internal helpers assume the lock is held.
type Cache struct {
	mu       sync.Mutex
	cfg      Config
	engine   *fingerprint.Engine
	patterns *pattern.Engine
	entries  map[string]*Entry
	stats    Stats
	dirty    bool

	lastCleanup time.Time
}

// New creates an empty cache. Call Load to read the persisted file.
func New(cfg Config, engine *fingerprint.Engine, patterns *pattern.Engine) *Cache {
	cfg.Normalize()
	return &Cache{
		cfg:      cfg,
		engine:   engine,
		patterns: patterns,
		entries:  map[string]*Entry{},
	}
}

// PutOptions qualifies a stored selector version.
type PutOptions struct {
	CreatedBy     string
	HealingSource string
	Confidence    float64 // initial reliability estimate
	AutomationID  string  // observed id to record, optional
}

// Put stores a selector for the element described by fp, creating the
// entry if needed. Storing a selector text the entry already has
// refreshes that version instead of appending a duplicate. Returns the
// cache id.
func (c *Cache) Put(fp *fingerprint.Fingerprint, text string, strat selector.Strategy, opts PutOptions) (string, error) {
	if fp == nil {
		return "", core.NewError(core.KindValidation, "nil_fingerprint", "fingerprint is required")
	}
	if opts.CreatedBy == "" {
		opts.CreatedBy = CreatedByInspector
	}
	if opts.Confidence <= 0 {
		opts.Confidence = 0.5
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := CacheID(fp)
	now := time.Now()

	entry, ok := c.entries[id]
	if !ok {
		entry = &Entry{
			CacheID:     id,
			Fingerprint: fp,
			CreatedAt:   now,
		}
		c.entries[id] = entry
	}
	entry.LastAccess = now

	refreshed := false
	for i := range entry.Versions {
		if entry.Versions[i].Text == text {
			entry.Versions[i].CreatedAt = now
			entry.Versions[i].CreatedBy = opts.CreatedBy
			if opts.HealingSource != "" {
				entry.Versions[i].HealingSource = opts.HealingSource
			}
			refreshed = true
			break
		}
	}

	if !refreshed {
		next := 1
		if len(entry.Versions) > 0 {
			next = entry.Versions[0].Version + 1
		}
		v := SelectorVersion{
			Text:          text,
			Strategy:      strat,
			Version:       next,
			CreatedAt:     now,
			CreatedBy:     opts.CreatedBy,
			HealingSource: opts.HealingSource,
			Reliability:   opts.Confidence,
		}
		entry.Versions = append([]SelectorVersion{v}, entry.Versions...)
		if len(entry.Versions) > c.cfg.MaxVersions {
			entry.Versions = entry.Versions[:c.cfg.MaxVersions]
		}
	}

	if opts.AutomationID != "" {
		c.observeLocked(entry, opts.AutomationID, now)
	}

	c.refreshConfidenceLocked(entry)
	c.dirty = true
	c.maintainLocked(now)
	return id, nil
}

// Hit is a successful lookup.
type Hit struct {
	Entry      Entry
	Best       SelectorVersion
	Fuzzy      bool
	Similarity float64
}

// Get looks up the entry for fp: first by exact cache id, then by a
// fuzzy fingerprint scan against the configured threshold. When
// preferred strategies are supplied the hit's Best is the strongest
// version matching the earliest satisfiable strategy, falling back to
// the normal election when none qualifies.
func (c *Cache) Get(fp *fingerprint.Fingerprint, preferred ...selector.Strategy) (*Hit, bool) {
	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.recordLookupLocked(start) }()

	c.stats.Lookups++

	id := CacheID(fp)
	if entry, ok := c.entries[id]; ok {
		c.stats.Hits++
		return c.hitLocked(entry, false, 1.0, preferred), true
	}

	// Fuzzy scan: the element's durable axes drifted enough to change
	// the hash, but the fingerprint may still be recognizable.
	var bestEntry *Entry
	var bestScore float64
	for _, entry := range c.entries {
		if entry.Fingerprint == nil {
			continue
		}
		m := c.engine.Similarity(fp, entry.Fingerprint)
		if m.Score >= c.cfg.FuzzyThreshold && m.Score > bestScore {
			bestEntry, bestScore = entry, m.Score
		}
	}
	if bestEntry != nil {
		c.stats.FuzzyHits++
		logger.Debug("cache: fuzzy hit %s score %.3f", bestEntry.CacheID, bestScore)
		return c.hitLocked(bestEntry, true, bestScore, preferred), true
	}

	c.stats.Misses++
	return nil, false
}

// GetByID fetches an entry copy by its cache id.
func (c *Cache) GetByID(id string) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return nil, core.ErrEntryNotFound.WithDetails(map[string]interface{}{"cache_id": id})
	}
	out := entry.clone()
	return &out, nil
}

func (c *Cache) hitLocked(entry *Entry, fuzzy bool, score float64, preferred []selector.Strategy) *Hit {
	entry.LastAccess = time.Now()
	entry.AccessCnt++
	h := &Hit{Entry: entry.clone(), Fuzzy: fuzzy, Similarity: score}
	if v := entry.preferredVersion(preferred); v != nil {
		h.Best = *v
	} else if best := entry.BestVersion(); best != nil {
		h.Best = *best
	}
	return h
}

// RecordResult feeds an execution outcome back into the version's
// reliability.
func (c *Cache) RecordResult(id, text string, ok bool, took time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, found := c.entries[id]
	if !found {
		return core.ErrEntryNotFound.WithDetails(map[string]interface{}{"cache_id": id})
	}

	for i := range entry.Versions {
		v := &entry.Versions[i]
		if v.Text != text {
			continue
		}
		v.ExecCount++
		if ok {
			v.SuccessCount++
		}
		v.LastExecuted = time.Now()
		v.LastSucceeded = ok
		hit := 0.0
		if ok {
			hit = 1.0
		}
		v.Reliability = v.Reliability*0.8 + hit*0.2
		c.refreshConfidenceLocked(entry)
		c.dirty = true
		return nil
	}

	return core.ErrEntryNotFound.WithMessage("selector version not found in entry")
}

// ObserveAutomationID appends an observed automation id to the entry's
// history ring and re-runs pattern analysis once enough samples exist.
// Observing the value already current is a no-op.
func (c *Cache) ObserveAutomationID(id, value string) (*pattern.Analysis, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return nil, core.ErrEntryNotFound.WithDetails(map[string]interface{}{"cache_id": id})
	}

	c.observeLocked(entry, value, time.Now())
	return entry.Pattern, nil
}

func (c *Cache) observeLocked(entry *Entry, value string, now time.Time) {
	if entry.LastAutomationID() == value {
		return
	}
	entry.IDHistory = append(entry.IDHistory, pattern.Sample{Value: value, SeenAt: now})
	if len(entry.IDHistory) > maxIDHistory {
		entry.IDHistory = entry.IDHistory[len(entry.IDHistory)-maxIDHistory:]
	}
	if len(entry.IDHistory) >= c.cfg.MinPatternSamples && c.patterns != nil {
		a := c.patterns.Analyze(entry.IDHistory)
		entry.Pattern = &a
	}
	c.dirty = true
}

// refreshConfidenceLocked recomputes the entry's overall confidence as
// a weighted mean across versions. Exercised versions weigh in with
// their observed success rate and execution volume; unexercised ones
// fall back to their stored reliability estimate. Newer versions carry
// more recency weight.
func (c *Cache) refreshConfidenceLocked(entry *Entry) {
	if len(entry.Versions) == 0 {
		entry.Confidence = 0
		return
	}

	var sum, weights float64
	for i := range entry.Versions {
		v := &entry.Versions[i]

		reliability := v.Reliability
		if v.ExecCount > 0 {
			reliability = v.SuccessRate()
		}
		recency := 1.0 / float64(i+1) // versions are newest first
		exec := v.ExecCount
		if exec < 1 {
			exec = 1
		}

		w := reliability * recency * float64(exec)
		sum += v.Reliability * w
		weights += w
	}
	if weights == 0 {
		entry.Confidence = 0
		return
	}
	entry.Confidence = sum / weights
}

// Remove deletes an entry.
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[id]; ok {
		delete(c.entries, id)
		c.dirty = true
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = map[string]*Entry{}
	c.dirty = true
}

// Len returns the entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// IDs returns every cache id in sorted order.
func (c *Cache) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.entries))
	for id := range c.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Config returns the normalized configuration the cache runs with.
func (c *Cache) Config() Config {
	return c.cfg
}

// Snapshot returns a copy of the current stats.
func (c *Cache) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = len(c.entries)
	return s
}

func (c *Cache) recordLookupLocked(start time.Time) {
	micros := float64(time.Since(start).Microseconds())
	if c.stats.Lookups <= 1 {
		c.stats.AvgLookupMicros = micros
		return
	}
	n := float64(c.stats.Lookups)
	c.stats.AvgLookupMicros += (micros - c.stats.AvgLookupMicros) / n
}
