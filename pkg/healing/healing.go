// Package healing repairs failed selectors by coordinating the
// pattern, discovery and relationship engines, validating every
// candidate against the live tree before writing it back to the cache.
package healing

import (
	"time"

	"github.com/devicelab-dev/adaptive-selector/pkg/fingerprint"
)

// Strategy identifies one healing approach.
type Strategy int

const (
	PatternPrediction      Strategy = iota // Forecast the next automation id
	DiscoveryService                       // Multi-strategy tree search
	RelationshipNavigation                 // Reach the element via its neighbors
	RegenerateSelector                     // Re-resolve and emit fresh candidates
	Hybrid                                 // Best of the first three
)

// String returns the string representation of Strategy
func (s Strategy) String() string {
	switch s {
	case PatternPrediction:
		return "pattern_prediction"
	case DiscoveryService:
		return "discovery_service"
	case RelationshipNavigation:
		return "relationship_navigation"
	case RegenerateSelector:
		return "regenerate_selector"
	case Hybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// ParseStrategy maps a strategy name to its value.
func ParseStrategy(s string) (Strategy, bool) {
	for _, st := range []Strategy{PatternPrediction, DiscoveryService, RelationshipNavigation, RegenerateSelector, Hybrid} {
		if st.String() == s {
			return st, true
		}
	}
	return PatternPrediction, false
}

// MarshalText implements encoding.TextMarshaler
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Priority steers the strategy order: critical requests try the cheap
// pattern forecast before any tree search.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String returns the string representation of Priority
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePriority maps a priority name to its value, defaulting to
// normal.
func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	default:
		return PriorityNormal
	}
}

// Request describes one failed selector to heal.
type Request struct {
	// ID is assigned automatically when empty.
	ID string
	// CacheID points at the element's cache entry. When empty the
	// entry is looked up by Fingerprint.
	CacheID string
	// FailedSelector is the document that stopped resolving.
	FailedSelector string
	// Fingerprint overrides the cached fingerprint when set.
	Fingerprint *fingerprint.Fingerprint
	// Reason is the caller's failure description, recorded verbatim.
	Reason string
	// LastKnownAutomationID seeds id-based strategies when the cache
	// has no history.
	LastKnownAutomationID string
	// Preferred overrides the priority-derived strategy order.
	Preferred []Strategy
	Priority  Priority
	// Budget bounds the whole healing attempt. Defaults to 30s.
	Budget time.Duration
}

// StrategyFailure is one failed attempt in the healing trail.
type StrategyFailure struct {
	Strategy Strategy `json:"strategy"`
	Reason   string   `json:"reason"`
}

// Outcome is the result of a healing attempt.
type Outcome struct {
	RequestID       string            `json:"request_id"`
	Healed          bool              `json:"healed"`
	Selector        string            `json:"selector,omitempty"`
	AutomationID    string            `json:"automation_id,omitempty"`
	Strategy        Strategy          `json:"strategy"`
	Confidence      float64           `json:"confidence"`
	Validated       bool              `json:"validated"`
	ValidationScore float64           `json:"validation_score"`
	Elapsed         time.Duration     `json:"elapsed"`
	Trail           []StrategyFailure `json:"trail,omitempty"`
}

const (
	defaultBudget = 30 * time.Second
	// validationThreshold is the fingerprint similarity a validated
	// candidate must reach.
	validationThreshold = 0.6
	// hybridShortCircuit stops the hybrid fan-out early.
	hybridShortCircuit = 0.9
)
