// Package discovery finds elements whose selectors stopped working by
// searching the live tree with a ladder of strategies, from precise
// attribute matches down to coordinate probes.
package discovery

import (
	"sync"
	"time"

	"github.com/devicelab-dev/adaptive-selector/pkg/fingerprint"
	"github.com/devicelab-dev/adaptive-selector/pkg/logger"
	"github.com/devicelab-dev/adaptive-selector/pkg/provider"
)

// Strategy identifies one search approach.
type Strategy int

const (
	NameAndType          Strategy = iota // Exact name plus control type
	ClassAndHierarchy                    // Class name filtered by containment
	VisualPosition                       // Expected screen region scan
	SiblingRelationships                 // Position among a parent's children
	ContentMatching                      // Visible text similarity
	FuzzyAttributes                      // Full-tree fingerprint scan
	CoordinateProximity                  // Hit test at the remembered center
)

// String returns the string representation of Strategy
func (s Strategy) String() string {
	switch s {
	case NameAndType:
		return "name_and_type"
	case ClassAndHierarchy:
		return "class_and_hierarchy"
	case VisualPosition:
		return "visual_position"
	case SiblingRelationships:
		return "sibling_relationships"
	case ContentMatching:
		return "content_matching"
	case FuzzyAttributes:
		return "fuzzy_attributes"
	case CoordinateProximity:
		return "coordinate_proximity"
	default:
		return "unknown"
	}
}

// ParseStrategy maps a strategy name to its value.
func ParseStrategy(s string) (Strategy, bool) {
	for _, st := range defaultOrder {
		if st.String() == s {
			return st, true
		}
	}
	return NameAndType, false
}

// MarshalText implements encoding.TextMarshaler
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// defaultOrder is the ladder when the caller expresses no preference.
var defaultOrder = []Strategy{
	NameAndType,
	ClassAndHierarchy,
	VisualPosition,
	SiblingRelationships,
	ContentMatching,
	FuzzyAttributes,
	CoordinateProximity,
}

// budget returns the per-strategy time allowance.
func (s Strategy) budget() time.Duration {
	switch s {
	case NameAndType:
		return 2 * time.Second
	case ClassAndHierarchy:
		return 3 * time.Second
	case VisualPosition:
		return 2500 * time.Millisecond
	case SiblingRelationships:
		return 4 * time.Second
	case ContentMatching:
		return 1500 * time.Millisecond
	case FuzzyAttributes:
		return 3500 * time.Millisecond
	case CoordinateProximity:
		return time.Second
	default:
		return time.Second
	}
}

// accept returns the confidence a strategy's candidate must reach.
func (s Strategy) accept() float64 {
	switch s {
	case NameAndType:
		return 0.7
	case ClassAndHierarchy:
		return 0.6
	case VisualPosition:
		return 0.5
	case SiblingRelationships:
		return 0.4
	case ContentMatching:
		return 0.6
	case FuzzyAttributes:
		return 0.4
	case CoordinateProximity:
		return 0.3
	default:
		return 0.5
	}
}

const (
	// degradedFloor is the minimum confidence a sub-threshold best
	// candidate needs to be returned at all.
	degradedFloor = 0.3
	// strategyPause separates consecutive failed strategies.
	strategyPause = 100 * time.Millisecond
	// positionScanRadius bounds the visual position scan, in pixels.
	positionScanRadius = 50.0
)

// Search describes what to look for.
type Search struct {
	Target *fingerprint.Fingerprint
	// Threshold, when positive, replaces every strategy's own
	// acceptance bar.
	Threshold float64
	// Budget is the total time allowance; each strategy gets the
	// smaller of its own budget and what remains.
	Budget time.Duration
	// Preferred strategies run first, in order. Excluded never run.
	Preferred []Strategy
	Excluded  []Strategy
	// MaxDepth bounds tree walks; <= 0 means unbounded.
	MaxDepth int
}

// Attempt records one strategy's outcome in the search trail.
type Attempt struct {
	Strategy   Strategy      `json:"strategy"`
	Confidence float64       `json:"confidence"`
	Elapsed    time.Duration `json:"elapsed"`
	Err        string        `json:"err,omitempty"`
}

// Result is the search outcome. Degraded marks a best-effort candidate
// that cleared the floor but not its strategy's acceptance bar.
type Result struct {
	Found      bool
	Node       provider.Node
	Attributes *provider.Attributes
	Strategy   Strategy
	Confidence float64
	Degraded   bool
	Elapsed    time.Duration
	Trail      []Attempt
}

// StrategyStats tracks how often a strategy attempts and succeeds.
type StrategyStats struct {
	Attempts  int `json:"attempts"`
	Successes int `json:"successes"`
}

// Service runs discovery searches against one provider.
type Service struct {
	provider provider.ElementProvider
	engine   *fingerprint.Engine

	mu    sync.Mutex
	stats map[Strategy]*StrategyStats
}

// NewService creates a discovery service.
func NewService(p provider.ElementProvider, engine *fingerprint.Engine) *Service {
	return &Service{
		provider: p,
		engine:   engine,
		stats:    map[Strategy]*StrategyStats{},
	}
}

// Stats returns a copy of the per-strategy counters.
func (s *Service) Stats() map[Strategy]StrategyStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[Strategy]StrategyStats{}
	for k, v := range s.stats {
		out[k] = *v
	}
	return out
}

func (s *Service) record(strat Strategy, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[strat]
	if !ok {
		st = &StrategyStats{}
		s.stats[strat] = st
	}
	st.Attempts++
	if success {
		st.Successes++
	}
}

// Discover runs the strategy ladder until a candidate clears its
// strategy's acceptance bar, or the ladder and budget are exhausted.
// The best sub-threshold candidate is returned degraded when it at
// least clears the floor.
func (s *Service) Discover(search Search) Result {
	start := time.Now()
	if search.Budget <= 0 {
		search.Budget = 15 * time.Second
	}
	deadline := start.Add(search.Budget)

	result := Result{}
	var best *candidate
	var bestStrategy Strategy

	for i, strat := range s.order(search) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if i > 0 {
			time.Sleep(strategyPause)
		}

		budget := strat.budget()
		if remaining < budget {
			budget = remaining
		}
		stratDeadline := time.Now().Add(budget)

		attemptStart := time.Now()
		cand, err := s.run(strat, search, stratDeadline)
		attempt := Attempt{Strategy: strat, Elapsed: time.Since(attemptStart)}
		if err != nil {
			attempt.Err = err.Error()
		}
		if cand != nil {
			attempt.Confidence = cand.confidence
		}
		result.Trail = append(result.Trail, attempt)

		bar := strat.accept()
		if search.Threshold > 0 {
			bar = search.Threshold
		}
		accepted := cand != nil && cand.confidence >= bar
		s.record(strat, accepted)

		if accepted {
			result.Found = true
			result.Node = cand.node
			result.Attributes = cand.attrs
			result.Strategy = strat
			result.Confidence = cand.confidence
			result.Elapsed = time.Since(start)
			logger.Info("discovery: %s found candidate at %.3f", strat, cand.confidence)
			return result
		}
		if cand != nil && (best == nil || cand.confidence > best.confidence) {
			best = cand
			bestStrategy = strat
		}
	}

	result.Elapsed = time.Since(start)
	if best != nil && best.confidence > degradedFloor {
		result.Found = true
		result.Degraded = true
		result.Node = best.node
		result.Attributes = best.attrs
		result.Strategy = bestStrategy
		result.Confidence = best.confidence
		logger.Warn("discovery: returning degraded candidate at %.3f from %s", best.confidence, bestStrategy)
	}
	return result
}

func (s *Service) order(search Search) []Strategy {
	excluded := map[Strategy]bool{}
	for _, e := range search.Excluded {
		excluded[e] = true
	}

	var out []Strategy
	seen := map[Strategy]bool{}
	for _, p := range search.Preferred {
		if !excluded[p] && !seen[p] {
			out = append(out, p)
			seen[p] = true
		}
	}
	for _, d := range defaultOrder {
		if !excluded[d] && !seen[d] {
			out = append(out, d)
			seen[d] = true
		}
	}
	return out
}

func (s *Service) run(strat Strategy, search Search, deadline time.Time) (*candidate, error) {
	switch strat {
	case NameAndType:
		return s.byNameAndType(search, deadline)
	case ClassAndHierarchy:
		return s.byClassAndHierarchy(search, deadline)
	case VisualPosition:
		return s.byVisualPosition(search, deadline)
	case SiblingRelationships:
		return s.bySiblings(search, deadline)
	case ContentMatching:
		return s.byContent(search, deadline)
	case FuzzyAttributes:
		return s.byFuzzyAttributes(search, deadline)
	case CoordinateProximity:
		return s.byCoordinates(search, deadline)
	default:
		return nil, nil
	}
}
