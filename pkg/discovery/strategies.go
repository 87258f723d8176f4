package discovery

import (
	"math"
	"time"

	"github.com/devicelab-dev/adaptive-selector/pkg/core"
	"github.com/devicelab-dev/adaptive-selector/pkg/fingerprint"
	"github.com/devicelab-dev/adaptive-selector/pkg/provider"
)

type candidate struct {
	node       provider.Node
	attrs      *provider.Attributes
	confidence float64
}

// collect walks the tree gathering nodes whose attributes pass the
// filter, respecting the search depth bound and the deadline.
func (s *Service) collect(search Search, deadline time.Time, filter func(*provider.Attributes) bool) ([]candidate, error) {
	root, err := s.provider.Root()
	if err != nil {
		return nil, err
	}

	maxDepth := search.MaxDepth
	if maxDepth <= 0 {
		maxDepth = -1
	}

	var out []candidate
	var timedOut bool
	err = provider.Walk(s.provider, root, maxDepth, func(n provider.Node, depth int) bool {
		if time.Now().After(deadline) {
			timedOut = true
			return false
		}
		attrs, aerr := s.provider.Attributes(n)
		if aerr != nil {
			return true
		}
		if filter(attrs) {
			out = append(out, candidate{node: n, attrs: attrs})
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if timedOut && len(out) == 0 {
		return nil, core.ErrTimeout.WithMessage("strategy budget exhausted during tree walk")
	}
	return out, nil
}

// score fills in fingerprint similarity for each candidate and returns
// the best one.
func (s *Service) score(target *fingerprint.Fingerprint, candidates []candidate) *candidate {
	var best *candidate
	for i := range candidates {
		fp, err := s.engine.Capture(s.provider, candidates[i].node)
		if err != nil {
			continue
		}
		candidates[i].confidence = s.engine.Similarity(target, fp).Score
		if best == nil || candidates[i].confidence > best.confidence {
			best = &candidates[i]
		}
	}
	return best
}

func (s *Service) byNameAndType(search Search, deadline time.Time) (*candidate, error) {
	t := search.Target
	if t.Name == "" || t.ControlType == "" {
		return nil, core.NewError(core.KindValidation, "strategy_inapplicable", "target has no name and control type")
	}

	candidates, err := s.collect(search, deadline, func(a *provider.Attributes) bool {
		return a.Name == t.Name && a.ControlType == t.ControlType
	})
	if err != nil {
		return nil, err
	}
	return s.score(t, candidates), nil
}

func (s *Service) byClassAndHierarchy(search Search, deadline time.Time) (*candidate, error) {
	t := search.Target
	if t.ClassName == "" {
		return nil, core.NewError(core.KindValidation, "strategy_inapplicable", "target has no class name")
	}

	candidates, err := s.collect(search, deadline, func(a *provider.Attributes) bool {
		if a.ClassName != t.ClassName {
			return false
		}
		return t.ControlType == "" || a.ControlType == t.ControlType
	})
	if err != nil {
		return nil, err
	}
	return s.score(t, candidates), nil
}

func (s *Service) byVisualPosition(search Search, deadline time.Time) (*candidate, error) {
	t := search.Target
	if t.RelativePos == nil {
		return nil, core.NewError(core.KindValidation, "strategy_inapplicable", "target has no recorded position")
	}

	root, err := s.provider.Root()
	if err != nil {
		return nil, err
	}
	rootAttrs, err := s.provider.Attributes(root)
	if err != nil || rootAttrs.Bounds.IsZero() {
		return nil, core.NewError(core.KindValidation, "strategy_inapplicable", "window bounds unknown")
	}

	win := rootAttrs.Bounds
	wantX := float64(win.X) + t.RelativePos.XPercent/100*float64(win.Width) +
		t.RelativePos.WidthPercent/100*float64(win.Width)/2
	wantY := float64(win.Y) + t.RelativePos.YPercent/100*float64(win.Height) +
		t.RelativePos.HeightPercent/100*float64(win.Height)/2

	candidates, err := s.collect(search, deadline, func(a *provider.Attributes) bool {
		if a.Bounds.IsZero() {
			return false
		}
		cx, cy := a.Bounds.Center()
		return math.Hypot(float64(cx)-wantX, float64(cy)-wantY) <= positionScanRadius
	})
	if err != nil {
		return nil, err
	}

	var best *candidate
	for i := range candidates {
		fp, cerr := s.engine.Capture(s.provider, candidates[i].node)
		if cerr != nil {
			continue
		}
		sim := s.engine.Similarity(t, fp).Score
		cx, cy := candidates[i].attrs.Bounds.Center()
		dist := math.Hypot(float64(cx)-wantX, float64(cy)-wantY)
		accuracy := 1.0 - dist/positionScanRadius
		candidates[i].confidence = sim*0.7 + accuracy*0.3
		if best == nil || candidates[i].confidence > best.confidence {
			best = &candidates[i]
		}
	}
	return best, nil
}

func (s *Service) bySiblings(search Search, deadline time.Time) (*candidate, error) {
	t := search.Target
	if len(t.ParentChain) == 0 {
		return nil, core.NewError(core.KindValidation, "strategy_inapplicable", "target has no parent chain")
	}
	parentRef := t.ParentChain[0]

	parents, err := s.collect(search, deadline, func(a *provider.Attributes) bool {
		if parentRef.ControlType != "" && a.ControlType != parentRef.ControlType {
			return false
		}
		return parentRef.ClassName == "" || a.ClassName == parentRef.ClassName
	})
	if err != nil {
		return nil, err
	}

	// Probe by same-type index, raw index, and near offsets.
	offsets := []int{0, 1, -1, 2, -2}
	var probes []candidate
	for _, parent := range parents {
		children, cerr := s.provider.Children(parent.node)
		if cerr != nil {
			continue
		}

		var sameType []provider.Node
		for _, ch := range children {
			ca, aerr := s.provider.Attributes(ch)
			if aerr == nil && ca.ControlType == t.ControlType {
				sameType = append(sameType, ch)
			}
		}

		add := func(nodes []provider.Node, base int) {
			for _, off := range offsets {
				i := base + off
				if i >= 0 && i < len(nodes) {
					if a, aerr := s.provider.Attributes(nodes[i]); aerr == nil {
						probes = append(probes, candidate{node: nodes[i], attrs: a})
					}
				}
			}
		}
		if t.SameTypeIndex != nil {
			add(sameType, *t.SameTypeIndex)
		}
		add(children, t.SiblingIndex)
	}

	return s.score(t, dedupe(probes)), nil
}

func (s *Service) byContent(search Search, deadline time.Time) (*candidate, error) {
	t := search.Target
	if t.TextContent == "" {
		return nil, core.NewError(core.KindValidation, "strategy_inapplicable", "target has no text content")
	}

	candidates, err := s.collect(search, deadline, func(a *provider.Attributes) bool {
		text := a.Text
		if text == "" {
			text = a.Name
		}
		return fingerprint.StringSimilarity(text, t.TextContent) >= 0.7
	})
	if err != nil {
		return nil, err
	}

	var best *candidate
	for i := range candidates {
		fp, cerr := s.engine.Capture(s.provider, candidates[i].node)
		if cerr != nil {
			continue
		}
		text := candidates[i].attrs.Text
		if text == "" {
			text = candidates[i].attrs.Name
		}
		textSim := fingerprint.StringSimilarity(text, t.TextContent)
		attrSim := s.engine.Similarity(t, fp).Score
		candidates[i].confidence = 0.6*textSim + 0.4*attrSim
		if best == nil || candidates[i].confidence > best.confidence {
			best = &candidates[i]
		}
	}
	return best, nil
}

func (s *Service) byFuzzyAttributes(search Search, deadline time.Time) (*candidate, error) {
	candidates, err := s.collect(search, deadline, func(a *provider.Attributes) bool {
		return true
	})
	if err != nil {
		return nil, err
	}
	return s.score(search.Target, candidates), nil
}

func (s *Service) byCoordinates(search Search, deadline time.Time) (*candidate, error) {
	t := search.Target
	if t.BoundingRect == nil {
		return nil, core.NewError(core.KindValidation, "strategy_inapplicable", "target has no recorded bounds")
	}

	x, y := t.BoundingRect.Center()
	node, err := s.provider.HitTest(x, y)
	if err != nil {
		return nil, err
	}
	attrs, err := s.provider.Attributes(node)
	if err != nil {
		return nil, err
	}

	fp, err := s.engine.Capture(s.provider, node)
	if err != nil {
		return nil, err
	}
	return &candidate{
		node:       node,
		attrs:      attrs,
		confidence: s.engine.Similarity(t, fp).Score,
	}, nil
}

func dedupe(in []candidate) []candidate {
	seen := map[provider.Node]bool{}
	var out []candidate
	for _, c := range in {
		if !seen[c.node] {
			seen[c.node] = true
			out = append(out, c)
		}
	}
	return out
}
