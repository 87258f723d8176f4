package healing

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/adaptive-selector/pkg/cache"
	"github.com/devicelab-dev/adaptive-selector/pkg/core"
	"github.com/devicelab-dev/adaptive-selector/pkg/discovery"
	"github.com/devicelab-dev/adaptive-selector/pkg/fingerprint"
	"github.com/devicelab-dev/adaptive-selector/pkg/logger"
	"github.com/devicelab-dev/adaptive-selector/pkg/pattern"
	"github.com/devicelab-dev/adaptive-selector/pkg/provider"
	"github.com/devicelab-dev/adaptive-selector/pkg/relationship"
	"github.com/devicelab-dev/adaptive-selector/pkg/selector"
)

// Engine orchestrates healing across the supporting engines.
type Engine struct {
	provider  provider.ElementProvider
	cache     *cache.Cache
	fp        *fingerprint.Engine
	patterns  *pattern.Engine
	discovery *discovery.Service
	mapper    *relationship.Mapper
	executor  *selector.Executor
	generator *selector.Generator

	mu     sync.Mutex
	graphs map[string]*relationship.Graph
}

// NewEngine wires a healing engine over one provider and cache.
func NewEngine(p provider.ElementProvider, c *cache.Cache, fp *fingerprint.Engine, patterns *pattern.Engine) *Engine {
	return &Engine{
		provider:  p,
		cache:     c,
		fp:        fp,
		patterns:  patterns,
		discovery: discovery.NewService(p, fp),
		mapper:    relationship.NewMapper(p, fp),
		executor:  selector.NewExecutor(p),
		generator: selector.NewGenerator(),
		graphs:    map[string]*relationship.Graph{},
	}
}

// PrepareGraph builds and retains the relationship graph for a healthy
// element, so relationship navigation has something to replay when the
// element later goes missing.
func (e *Engine) PrepareGraph(cacheID string, node provider.Node) error {
	g, err := e.mapper.Build(node, cacheID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.graphs[cacheID] = g
	e.mu.Unlock()
	return nil
}

func (e *Engine) graph(cacheID string) (*relationship.Graph, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.graphs[cacheID]
	return g, ok
}

// candidate is a repaired selector pending validation.
type candidate struct {
	text         string
	automationID string
	strategy     Strategy
	selStrategy  selector.Strategy
	confidence   float64
	// predicted marks pattern forecasts so accuracy feedback can flow
	// back after validation.
	predicted     string
	predictedKind pattern.Kind
}

// Heal attempts to repair the request's failed selector. The outcome
// always carries a trail entry for every strategy that was attempted
// and failed.
func (e *Engine) Heal(req Request) Outcome {
	start := time.Now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Budget <= 0 {
		req.Budget = defaultBudget
	}
	deadline := start.Add(req.Budget)

	out := Outcome{RequestID: req.ID}
	defer func() { logger.Info("healing: request %s healed=%v strategy=%s", req.ID, out.Healed, out.Strategy) }()

	entry, target := e.resolveEntry(&req)
	if target == nil {
		out.Trail = append(out.Trail, StrategyFailure{Strategy: PatternPrediction,
			Reason: "no fingerprint available for the failed element"})
		out.Elapsed = time.Since(start)
		return out
	}

	for _, strat := range e.order(req) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			out.Trail = append(out.Trail, StrategyFailure{Strategy: strat, Reason: "budget exhausted"})
			continue
		}

		cand, err := e.attempt(strat, req, entry, target, remaining)
		if err != nil {
			out.Trail = append(out.Trail, StrategyFailure{Strategy: strat, Reason: err.Error()})
			continue
		}

		score, verr := e.validate(cand, target, time.Until(deadline))
		if verr != nil {
			out.Trail = append(out.Trail, StrategyFailure{Strategy: strat,
				Reason: fmt.Sprintf("candidate failed validation: %v", verr)})
			continue
		}

		e.writeBack(req, entry, target, cand)

		out.Healed = true
		out.Selector = cand.text
		out.AutomationID = cand.automationID
		out.Strategy = cand.strategy
		out.Confidence = cand.confidence
		out.Validated = true
		out.ValidationScore = score
		out.Elapsed = time.Since(start)
		return out
	}

	out.Elapsed = time.Since(start)
	return out
}

// resolveEntry finds the cache entry and the target fingerprint.
func (e *Engine) resolveEntry(req *Request) (*cache.Entry, *fingerprint.Fingerprint) {
	var entry *cache.Entry
	if req.CacheID != "" {
		if found, err := e.cache.GetByID(req.CacheID); err == nil {
			entry = found
		}
	} else if req.Fingerprint != nil {
		if hit, ok := e.cache.Get(req.Fingerprint); ok {
			clone := hit.Entry
			entry = &clone
			req.CacheID = entry.CacheID
		}
	}

	target := req.Fingerprint
	if target == nil && entry != nil {
		target = entry.Fingerprint
	}
	return entry, target
}

// order derives the strategy sequence from the request.
func (e *Engine) order(req Request) []Strategy {
	if len(req.Preferred) > 0 {
		return req.Preferred
	}
	if req.Priority == PriorityCritical {
		return []Strategy{PatternPrediction, DiscoveryService, RelationshipNavigation, RegenerateSelector}
	}
	return []Strategy{DiscoveryService, PatternPrediction, RelationshipNavigation, RegenerateSelector}
}

func (e *Engine) attempt(strat Strategy, req Request, entry *cache.Entry, target *fingerprint.Fingerprint, remaining time.Duration) (*candidate, error) {
	switch strat {
	case PatternPrediction:
		return e.byPattern(req, entry)
	case DiscoveryService:
		return e.byDiscovery(target, remaining)
	case RelationshipNavigation:
		return e.byRelationship(req, remaining)
	case RegenerateSelector:
		return e.byRegeneration(req, entry, target, remaining)
	case Hybrid:
		return e.byHybrid(req, entry, target, remaining)
	default:
		return nil, core.NewError(core.KindValidation, "unknown_strategy", "unknown healing strategy")
	}
}

// byPattern forecasts the next automation id from the entry's history
// and splices it into the failed selector.
func (e *Engine) byPattern(req Request, entry *cache.Entry) (*candidate, error) {
	if entry == nil {
		return nil, core.ErrEntryNotFound.WithMessage("pattern prediction needs a cache entry")
	}
	if entry.Pattern == nil || !entry.Pattern.CanPredict {
		return nil, core.ErrNotPredictable.WithMessage("entry has no predictable id pattern")
	}
	if req.FailedSelector == "" {
		return nil, core.ErrInvalidSelector.WithMessage("pattern prediction needs the failed selector")
	}

	pred, err := e.patterns.Predict(*entry.Pattern, 1)
	if err != nil {
		return nil, err
	}
	if thr := e.cache.Config().PredictionThreshold; pred.Confidence < thr {
		return nil, core.ErrNotPredictable.WithMessage(
			fmt.Sprintf("prediction confidence %.2f below threshold %.2f", pred.Confidence, thr))
	}

	text, err := selector.ReplaceAutomationID(req.FailedSelector, pred.Value)
	if err != nil {
		return nil, err
	}

	return &candidate{
		text:          text,
		automationID:  pred.Value,
		strategy:      PatternPrediction,
		selStrategy:   selector.StrategyPatternPredicted,
		confidence:    pred.Confidence,
		predicted:     pred.Value,
		predictedKind: entry.Pattern.Kind,
	}, nil
}

// byDiscovery searches the tree and regenerates a selector for the
// found node.
func (e *Engine) byDiscovery(target *fingerprint.Fingerprint, remaining time.Duration) (*candidate, error) {
	res := e.discovery.Discover(discovery.Search{Target: target, Budget: remaining})
	if !res.Found {
		return nil, core.ErrElementNotFound.WithMessage("discovery exhausted its strategy ladder")
	}

	fp, err := e.fp.Capture(e.provider, res.Node)
	if err != nil {
		return nil, err
	}
	cands := e.generator.Candidates(fp, res.Attributes.AutomationID)
	if len(cands) == 0 {
		return nil, core.ErrInvalidSelector.WithMessage("no selector candidate for discovered node")
	}

	return &candidate{
		text:         cands[0].Text,
		automationID: res.Attributes.AutomationID,
		strategy:     DiscoveryService,
		selStrategy:  cands[0].Strategy,
		confidence:   res.Confidence * cands[0].Confidence,
	}, nil
}

// byRelationship replays a previously prepared relationship graph.
func (e *Engine) byRelationship(req Request, remaining time.Duration) (*candidate, error) {
	g, ok := e.graph(req.CacheID)
	if !ok {
		return nil, core.ErrEntryNotFound.WithMessage("no relationship graph prepared for this element")
	}

	res, err := e.mapper.Find(g, remaining)
	if err != nil {
		return nil, err
	}

	fp, err := e.fp.Capture(e.provider, res.Node)
	if err != nil {
		return nil, err
	}
	cands := e.generator.Candidates(fp, res.Attributes.AutomationID)
	if len(cands) == 0 {
		return nil, core.ErrInvalidSelector.WithMessage("no selector candidate for navigated node")
	}

	return &candidate{
		text:         cands[0].Text,
		automationID: res.Attributes.AutomationID,
		strategy:     RelationshipNavigation,
		selStrategy:  selector.StrategyRelationship,
		confidence:   res.Confidence,
	}, nil
}

// byRegeneration re-resolves the element through generated fallback
// candidates and emits a fresh selector from whatever resolves.
func (e *Engine) byRegeneration(req Request, entry *cache.Entry, target *fingerprint.Fingerprint, remaining time.Duration) (*candidate, error) {
	lastID := req.LastKnownAutomationID
	if lastID == "" && entry != nil {
		lastID = entry.LastAutomationID()
	}

	deadline := time.Now().Add(remaining)
	for _, c := range e.generator.Candidates(target, lastID) {
		if time.Now().After(deadline) {
			return nil, core.ErrTimeout.WithMessage("regeneration budget exhausted")
		}
		node, err := e.executor.Execute(c.Text, 0)
		if err != nil {
			continue
		}
		attrs, err := e.provider.Attributes(node)
		if err != nil {
			continue
		}
		fp, err := e.fp.Capture(e.provider, node)
		if err != nil {
			continue
		}
		fresh := e.generator.Candidates(fp, attrs.AutomationID)
		if len(fresh) == 0 {
			continue
		}
		return &candidate{
			text:         fresh[0].Text,
			automationID: attrs.AutomationID,
			strategy:     RegenerateSelector,
			selStrategy:  fresh[0].Strategy,
			confidence:   c.Confidence * fresh[0].Confidence,
		}, nil
	}
	return nil, core.ErrElementNotFound.WithMessage("no generated candidate resolved")
}

// byHybrid fans out over the three primary strategies with split
// budgets and keeps the best candidate.
func (e *Engine) byHybrid(req Request, entry *cache.Entry, target *fingerprint.Fingerprint, remaining time.Duration) (*candidate, error) {
	slice := remaining / 3
	var best *candidate

	for _, strat := range []Strategy{PatternPrediction, DiscoveryService, RelationshipNavigation} {
		cand, err := e.attempt(strat, req, entry, target, slice)
		if err != nil {
			continue
		}
		if best == nil || cand.confidence > best.confidence {
			best = cand
		}
		if best.confidence >= hybridShortCircuit {
			break
		}
	}
	if best == nil {
		return nil, core.ErrElementNotFound.WithMessage("no hybrid branch produced a candidate")
	}
	best.strategy = Hybrid
	return best, nil
}

// validate executes the candidate selector and re-fingerprints the
// resolved node against the target.
func (e *Engine) validate(cand *candidate, target *fingerprint.Fingerprint, remaining time.Duration) (float64, error) {
	budget := 2 * time.Second
	if remaining < budget {
		budget = remaining
	}
	if budget < 0 {
		budget = 0
	}

	node, err := e.executor.Execute(cand.text, budget)
	if err != nil {
		return 0, err
	}
	fp, err := e.fp.Capture(e.provider, node)
	if err != nil {
		return 0, err
	}
	score := e.fp.Similarity(target, fp).Score
	if score < validationThreshold {
		return score, core.ErrValidationFailed.WithDetails(map[string]interface{}{
			"similarity": score,
		})
	}

	if cand.predicted != "" {
		attrs, aerr := e.provider.Attributes(node)
		if aerr == nil {
			e.patterns.Verify(cand.predictedKind, cand.predicted, attrs.AutomationID)
		}
	}
	return score, nil
}

// writeBack records the healed selector as a new cache version.
func (e *Engine) writeBack(req Request, entry *cache.Entry, target *fingerprint.Fingerprint, cand *candidate) {
	fp := target
	if entry != nil && entry.Fingerprint != nil {
		fp = entry.Fingerprint
	}

	id, err := e.cache.Put(fp, cand.text, cand.selStrategy, cache.PutOptions{
		CreatedBy:     cache.CreatedByHealing,
		HealingSource: cand.strategy.String(),
		Confidence:    cand.confidence,
		AutomationID:  cand.automationID,
	})
	if err != nil {
		logger.Warn("healing: write-back failed: %v", err)
		return
	}
	if rerr := e.cache.RecordResult(id, cand.text, true, 0); rerr != nil {
		logger.Warn("healing: result record failed: %v", rerr)
	}
}
