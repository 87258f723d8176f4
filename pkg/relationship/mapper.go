package relationship

import (
	"math"
	"time"

	"github.com/devicelab-dev/adaptive-selector/pkg/core"
	"github.com/devicelab-dev/adaptive-selector/pkg/fingerprint"
	"github.com/devicelab-dev/adaptive-selector/pkg/logger"
	"github.com/devicelab-dev/adaptive-selector/pkg/provider"
)

// Mapper builds relationship graphs and replays them against a live
// provider.
type Mapper struct {
	provider provider.ElementProvider
	engine   *fingerprint.Engine
}

// NewMapper creates a mapper.
func NewMapper(p provider.ElementProvider, engine *fingerprint.Engine) *Mapper {
	return &Mapper{provider: p, engine: engine}
}

// index maps every node to its parent and records root. Nodes must be
// comparable handles.
func (m *Mapper) index() (map[provider.Node]provider.Node, provider.Node, error) {
	root, err := m.provider.Root()
	if err != nil {
		return nil, nil, err
	}
	parents := map[provider.Node]provider.Node{}
	err = provider.Walk(m.provider, root, -1, func(n provider.Node, depth int) bool {
		children, cerr := m.provider.Children(n)
		if cerr != nil {
			return false
		}
		for _, c := range children {
			parents[c] = n
		}
		return true
	})
	if err != nil {
		return nil, nil, err
	}
	return parents, root, nil
}

// Build maps the relationships around center. centerID is carried into
// the graph for bookkeeping and may be empty.
func (m *Mapper) Build(center provider.Node, centerID string) (*Graph, error) {
	parents, root, err := m.index()
	if err != nil {
		return nil, err
	}

	centerFP, err := m.engine.Capture(m.provider, center)
	if err != nil {
		return nil, err
	}

	g := &Graph{
		CenterID: centerID,
		Center:   centerFP,
		BuiltAt:  time.Now(),
	}

	m.addParents(g, center, parents)
	m.addSiblings(g, center, parents)
	m.addChildren(g, center)
	m.addLandmarks(g, root)

	logger.Debug("relationship: built graph for %s (%d parents, %d siblings, %d children, %d landmarks)",
		centerID, len(g.Parents), len(g.Siblings), len(g.Children), len(g.Landmarks))
	return g, nil
}

func (m *Mapper) addParents(g *Graph, center provider.Node, parents map[provider.Node]provider.Node) {
	// Path of child indexes from each ancestor back down to center.
	var pathDown []NavStep
	cur := center
	for depth := 1; depth <= maxParentDepth; depth++ {
		parent, ok := parents[cur]
		if !ok {
			return
		}
		idx := childIndex(m.provider, parent, cur)
		if idx < 0 {
			return
		}
		pathDown = append([]NavStep{{Action: ChildAt, Index: idx}}, pathDown...)

		fp, err := m.engine.Capture(m.provider, parent)
		if err != nil {
			return
		}
		stability := math.Min(0.9-0.1*float64(depth-1), m.engine.Quality(fp)+0.2)
		g.Parents = append(g.Parents, Edge{
			Kind:       KindParent,
			Target:     fp,
			StepsBack:  append([]NavStep(nil), pathDown...),
			Stability:  clamp01(stability),
			CapturedAt: time.Now(),
		})
		cur = parent
	}
}

func (m *Mapper) addSiblings(g *Graph, center provider.Node, parents map[provider.Node]provider.Node) {
	parent, ok := parents[center]
	if !ok {
		return
	}
	siblings, err := m.provider.Children(parent)
	if err != nil {
		return
	}
	centerIdx := childIndex(m.provider, parent, center)
	if centerIdx < 0 {
		return
	}
	centerAttrs, err := m.provider.Attributes(center)
	if err != nil {
		return
	}

	type pick struct {
		node provider.Node
		base float64
	}
	var picks []pick
	add := func(i int, base float64) {
		if i >= 0 && i < len(siblings) && siblings[i] != center {
			picks = append(picks, pick{siblings[i], base})
		}
	}
	add(centerIdx-1, 0.7)
	add(centerIdx+1, 0.7)
	add(0, 0.6)
	add(len(siblings)-1, 0.6)
	for i, s := range siblings {
		if s == center {
			continue
		}
		if a, aerr := m.provider.Attributes(s); aerr == nil && a.ControlType == centerAttrs.ControlType {
			add(i, 0.55)
		}
	}

	seen := map[provider.Node]bool{}
	for _, p := range picks {
		if len(g.Siblings) >= maxSiblings {
			break
		}
		if seen[p.node] {
			continue
		}
		seen[p.node] = true
		fp, err := m.engine.Capture(m.provider, p.node)
		if err != nil {
			continue
		}
		g.Siblings = append(g.Siblings, Edge{
			Kind:       KindSibling,
			Target:     fp,
			StepsBack:  []NavStep{{Action: GoParent}, {Action: ChildAt, Index: centerIdx}},
			Stability:  clamp01(math.Min(p.base, m.engine.Quality(fp)+0.2)),
			CapturedAt: time.Now(),
		})
	}
}

func (m *Mapper) addChildren(g *Graph, center provider.Node) {
	children, err := m.provider.Children(center)
	if err != nil {
		return
	}
	for i, c := range children {
		if len(g.Children) >= maxChildren {
			break
		}
		fp, err := m.engine.Capture(m.provider, c)
		if err != nil {
			continue
		}
		base := 0.45
		if i == 0 {
			base += 0.3
		}
		g.Children = append(g.Children, Edge{
			Kind:       KindChild,
			Target:     fp,
			StepsBack:  []NavStep{{Action: GoParent}},
			Stability:  clamp01(base),
			CapturedAt: time.Now(),
		})
	}
}

func (m *Mapper) addLandmarks(g *Graph, root provider.Node) {
	_ = provider.Walk(m.provider, root, -1, func(n provider.Node, depth int) bool {
		if len(g.Landmarks) >= maxLandmarks {
			return false
		}
		attrs, err := m.provider.Attributes(n)
		if err != nil || !isLandmarkType(attrs.ControlType) {
			return true
		}
		fp, err := m.engine.Capture(m.provider, n)
		if err != nil {
			return true
		}
		g.Landmarks = append(g.Landmarks, Edge{
			Kind:       KindLandmark,
			Target:     fp,
			StepsBack:  []NavStep{{Action: SearchFingerprint}},
			Stability:  0.65,
			CapturedAt: time.Now(),
		})
		return true
	})
}

// NavResult is a successful navigation.
type NavResult struct {
	Node       provider.Node
	Attributes *provider.Attributes
	Confidence float64
	Via        Kind
}

// Navigate replays an edge's steps from the freshly located related
// element and verifies arrival against the graph's center fingerprint.
func (m *Mapper) Navigate(g *Graph, edge Edge, from provider.Node, budget time.Duration) (*NavResult, error) {
	deadline := time.Now().Add(budget)

	parents, root, err := m.index()
	if err != nil {
		return nil, err
	}

	cur := from
	for _, step := range edge.StepsBack {
		if budget > 0 && time.Now().After(deadline) {
			return nil, core.ErrTimeout.WithMessage("navigation budget exhausted")
		}
		switch step.Action {
		case GoParent:
			parent, ok := parents[cur]
			if !ok {
				return nil, core.ErrElementNotFound.WithMessage("node has no parent")
			}
			cur = parent

		case ChildAt:
			children, cerr := m.provider.Children(cur)
			if cerr != nil {
				return nil, cerr
			}
			if step.Index < 0 || step.Index >= len(children) {
				return nil, core.ErrElementNotFound.WithDetails(map[string]interface{}{
					"child_index": step.Index,
					"children":    len(children),
				})
			}
			cur = children[step.Index]

		case SearchFingerprint:
			node, _, serr := m.bestMatch(g.Center, root)
			if serr != nil {
				return nil, serr
			}
			cur = node
		}
	}

	arrivedFP, err := m.engine.Capture(m.provider, cur)
	if err != nil {
		return nil, err
	}
	sim := m.engine.Similarity(g.Center, arrivedFP).Score
	if sim < arrivalThreshold {
		return nil, core.ErrValidationFailed.WithDetails(map[string]interface{}{
			"arrival_similarity": sim,
		})
	}

	attrs, err := m.provider.Attributes(cur)
	if err != nil {
		return nil, err
	}
	return &NavResult{
		Node:       cur,
		Attributes: attrs,
		Confidence: edge.Stability * sim,
		Via:        edge.Kind,
	}, nil
}

// Find locates the center element via the graph: edges are tried in
// stability order, each by first re-locating the related element and
// then replaying the steps back.
func (m *Mapper) Find(g *Graph, budget time.Duration) (*NavResult, error) {
	deadline := time.Now().Add(budget)

	_, root, err := m.index()
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, edge := range g.Edges() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		anchor, score, serr := m.bestMatch(edge.Target, root)
		if serr != nil || score < arrivalThreshold {
			lastErr = serr
			continue
		}

		res, nerr := m.Navigate(g, edge, anchor, remaining)
		if nerr != nil {
			lastErr = nerr
			continue
		}
		logger.Info("relationship: reached center via %s edge at %.3f", edge.Kind, res.Confidence)
		return res, nil
	}

	if lastErr != nil {
		return nil, core.ErrElementNotFound.WithMessage("no relationship edge led to the element").WithCause(lastErr)
	}
	return nil, core.ErrElementNotFound.WithMessage("no relationship edge led to the element")
}

// bestMatch scans the subtree for the node most similar to fp.
func (m *Mapper) bestMatch(fp *fingerprint.Fingerprint, from provider.Node) (provider.Node, float64, error) {
	var bestNode provider.Node
	var bestScore float64
	err := provider.Walk(m.provider, from, -1, func(n provider.Node, depth int) bool {
		cfp, cerr := m.engine.Capture(m.provider, n)
		if cerr != nil {
			return true
		}
		if score := m.engine.Similarity(fp, cfp).Score; score > bestScore {
			bestNode, bestScore = n, score
		}
		return true
	})
	if err != nil {
		return nil, 0, err
	}
	if bestNode == nil {
		return nil, 0, core.ErrElementNotFound
	}
	return bestNode, bestScore, nil
}

func childIndex(p provider.ElementProvider, parent, child provider.Node) int {
	children, err := p.Children(parent)
	if err != nil {
		return -1
	}
	for i, c := range children {
		if c == child {
			return i
		}
	}
	return -1
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
