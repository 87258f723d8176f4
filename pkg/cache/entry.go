// Package cache is the versioned selector store. It keys entries by a
// structural fingerprint hash so selectors survive automation-id
// churn, keeps a bounded version history per element, and persists to
// a schema-versioned JSON file with rotating backups.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/devicelab-dev/adaptive-selector/pkg/fingerprint"
	"github.com/devicelab-dev/adaptive-selector/pkg/pattern"
	"github.com/devicelab-dev/adaptive-selector/pkg/selector"
)

// Provenance values recorded on selector versions.
const (
	CreatedByInspector = "inspector"
	CreatedByDiscovery = "discovery_service"
	CreatedByHealing   = "healing_engine"
)

// SelectorVersion is one generation of an element's selector.
type SelectorVersion struct {
	Text          string            `json:"text"`
	Strategy      selector.Strategy `json:"strategy"`
	Version       int               `json:"version"`
	CreatedAt     time.Time         `json:"created_at"`
	CreatedBy     string            `json:"created_by"`
	HealingSource string            `json:"healing_source,omitempty"`
	ExecCount     int               `json:"exec_count"`
	SuccessCount  int               `json:"success_count"`
	LastExecuted  time.Time         `json:"last_executed,omitempty"`
	LastSucceeded bool              `json:"last_succeeded"`
	Reliability   float64           `json:"reliability"`
}

// SuccessRate returns the observed success ratio, 0 when unexercised.
func (v *SelectorVersion) SuccessRate() float64 {
	if v.ExecCount == 0 {
		return 0
	}
	return float64(v.SuccessCount) / float64(v.ExecCount)
}

// weight ranks versions for best-selector election: reliability scaled
// by freshness rank and execution volume, so a proven older version
// can beat an untried newer one.
func versionWeight(v *SelectorVersion, ageRank int) float64 {
	exec := v.ExecCount
	if exec < 1 {
		exec = 1
	}
	return v.Reliability * (1.0 / float64(ageRank+1)) * float64(exec)
}

// Entry is everything the cache knows about one element.
type Entry struct {
	CacheID     string                   `json:"cache_id"`
	Fingerprint *fingerprint.Fingerprint `json:"fingerprint"`
	// Versions is newest first and capped by Config.MaxVersions.
	Versions []SelectorVersion `json:"versions"`
	// IDHistory is the automation-id observation ring, oldest first,
	// capped at maxIDHistory.
	IDHistory  []pattern.Sample  `json:"id_history,omitempty"`
	Pattern    *pattern.Analysis `json:"pattern,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	LastAccess time.Time         `json:"last_access"`
	AccessCnt  int               `json:"access_count"`
	Confidence float64           `json:"confidence"`
}

// maxIDHistory bounds the automation-id ring per entry.
const maxIDHistory = 20

// minPreferredReliability keeps strategy preferences from electing a
// version that has already proven unreliable.
const minPreferredReliability = 0.3

// LastAutomationID returns the most recently observed automation id.
func (e *Entry) LastAutomationID() string {
	if len(e.IDHistory) == 0 {
		return ""
	}
	return e.IDHistory[len(e.IDHistory)-1].Value
}

// BestVersion elects the version with the highest weight. Returns nil
// for an entry with no versions.
func (e *Entry) BestVersion() *SelectorVersion {
	var best *SelectorVersion
	var bestW float64
	for i := range e.Versions {
		w := versionWeight(&e.Versions[i], i)
		if best == nil || w > bestW {
			best = &e.Versions[i]
			bestW = w
		}
	}
	return best
}

// preferredVersion walks the caller's strategy preferences in order
// and returns the strongest version using the first strategy that has
// one above the reliability bar. Nil when no preference is satisfied.
func (e *Entry) preferredVersion(preferred []selector.Strategy) *SelectorVersion {
	for _, strat := range preferred {
		var best *SelectorVersion
		for i := range e.Versions {
			v := &e.Versions[i]
			if v.Strategy != strat || v.Reliability <= minPreferredReliability {
				continue
			}
			if best == nil || v.Reliability > best.Reliability {
				best = v
			}
		}
		if best != nil {
			return best
		}
	}
	return nil
}

func (e *Entry) clone() Entry {
	out := *e
	out.Versions = append([]SelectorVersion(nil), e.Versions...)
	out.IDHistory = append([]pattern.Sample(nil), e.IDHistory...)
	if e.Fingerprint != nil {
		fp := *e.Fingerprint
		out.Fingerprint = &fp
	}
	if e.Pattern != nil {
		p := *e.Pattern
		out.Pattern = &p
	}
	return out
}

// CacheID derives the stable entry key from a fingerprint's durable
// axes. Two captures of the same element hash identically even when
// the automation id changed.
func CacheID(fp *fingerprint.Fingerprint) string {
	sameType := ""
	if fp.SameTypeIndex != nil {
		sameType = fmt.Sprintf("%d", *fp.SameTypeIndex)
	}
	key := fmt.Sprintf("%s|%s|%s|%s|%s|%d|%s",
		fp.Name, fp.ClassName, fp.ControlType,
		fp.WindowTitle, fp.WindowClass,
		fp.SiblingIndex, sameType)
	sum := sha256.Sum256([]byte(key))
	return "cache_" + hex.EncodeToString(sum[:])[:16]
}
