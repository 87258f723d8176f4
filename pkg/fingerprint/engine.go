package fingerprint

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/xrash/smetrics"

	"github.com/devicelab-dev/adaptive-selector/pkg/core"
	"github.com/devicelab-dev/adaptive-selector/pkg/provider"
)

// Axis blend weights. Axes absent from both fingerprints are dropped
// and the remaining weights renormalized.
const (
	weightAttributes = 0.50
	weightHierarchy  = 0.25
	weightPosition   = 0.15
	weightContent    = 0.10

	positionTolerance = 10.0 // percent per axis
	maxParentChain    = 3
)

// Engine builds and compares fingerprints. It is stateless and safe
// for concurrent use.
type Engine struct{}

// NewEngine returns a fingerprint engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Capture builds a fingerprint for node from its provider attributes,
// containment chain and sibling layout.
func (e *Engine) Capture(p provider.ElementProvider, node provider.Node) (*Fingerprint, error) {
	attrs, err := p.Attributes(node)
	if err != nil {
		return nil, core.ErrAttributeRead.WithCause(err)
	}

	root, err := p.Root()
	if err != nil {
		return nil, core.ErrAttributeRead.WithCause(err)
	}

	parents := map[provider.Node]provider.Node{}
	if err := provider.Walk(p, root, -1, func(n provider.Node, depth int) bool {
		children, cerr := p.Children(n)
		if cerr != nil {
			return false
		}
		for _, c := range children {
			parents[c] = n
		}
		return true
	}); err != nil {
		return nil, core.ErrAttributeRead.WithCause(err)
	}

	fp := &Fingerprint{
		Name:                 attrs.Name,
		ClassName:            attrs.ClassName,
		ControlType:          attrs.ControlType,
		LocalizedControlType: attrs.LocalizedControlType,
		WindowTitle:          attrs.WindowTitle,
		WindowClass:          attrs.WindowClass,
		Value:                attrs.Value,
		TextContent:          attrs.Text,
		CapturedAt:           time.Now(),
	}
	if !attrs.Bounds.IsZero() {
		b := attrs.Bounds
		fp.BoundingRect = &b
	}

	rootAttrs, err := p.Attributes(root)
	if err == nil && fp.BoundingRect != nil && !rootAttrs.Bounds.IsZero() {
		pos := core.Relative(*fp.BoundingRect, rootAttrs.Bounds)
		fp.RelativePos = &pos
	}

	// Ancestor chain, nearest first.
	for cur, ok := parents[node]; ok && len(fp.ParentChain) < maxParentChain; cur, ok = parents[cur] {
		pa, perr := p.Attributes(cur)
		if perr != nil {
			break
		}
		fp.ParentChain = append(fp.ParentChain, ParentRef{
			ClassName:   pa.ClassName,
			ControlType: pa.ControlType,
			Name:        pa.Name,
		})
	}

	if parent, ok := parents[node]; ok {
		siblings, serr := p.Children(parent)
		if serr == nil {
			fp.SiblingCount = len(siblings)
			sameType := 0
			for i, s := range siblings {
				sa, aerr := p.Attributes(s)
				typed := aerr == nil && sa.ControlType == attrs.ControlType
				if s == node {
					fp.SiblingIndex = i
					if typed {
						idx := sameType
						fp.SameTypeIndex = &idx
					}
				}
				if typed {
					sameType++
				}
			}
		}
	} else {
		fp.SiblingCount = 1
	}

	fp.Stability = map[string]float64{
		"name":         stability(attrs.Name, 0.75),
		"class_name":   stability(attrs.ClassName, 0.85),
		"control_type": stability(attrs.ControlType, 0.95),
	}
	if attrs.Value != "" {
		fp.Stability["value"] = stability(attrs.Value, 0.5)
	}

	return fp, nil
}

// Similarity scores how likely a and b describe the same element.
// The result is symmetric in its arguments.
func (e *Engine) Similarity(a, b *Fingerprint) Match {
	axes := map[string]float64{}
	weights := map[string]float64{}

	axes["attributes"] = attributeSimilarity(a, b)
	weights["attributes"] = weightAttributes

	axes["hierarchy"] = hierarchySimilarity(a, b)
	weights["hierarchy"] = weightHierarchy

	if a.RelativePos != nil && b.RelativePos != nil {
		axes["position"] = positionSimilarity(*a.RelativePos, *b.RelativePos)
		weights["position"] = weightPosition
	}

	if a.TextContent != "" || b.TextContent != "" {
		axes["content"] = StringSimilarity(a.TextContent, b.TextContent)
		weights["content"] = weightContent
	}

	var sum, wsum float64
	for axis, w := range weights {
		sum += axes[axis] * w
		wsum += w
	}
	score := 0.0
	if wsum > 0 {
		score = sum / wsum
	}

	return Match{
		Score:    score,
		Axes:     axes,
		Reliable: score >= reliableThreshold,
	}
}

// Quality rates how good an anchor this fingerprint is, in [0,1].
func (e *Engine) Quality(fp *Fingerprint) float64 {
	var sum, wsum float64
	stable := 0
	for _, s := range fp.Stability {
		sum += s
		wsum++
		if s >= 0.7 {
			stable++
		}
	}
	q := 0.0
	if wsum > 0 {
		q = sum / wsum
	}

	q += math.Min(float64(stable)*0.1, 0.3)

	if fp.Name == "" {
		q -= 0.1
	}
	if fp.ControlType == "" {
		q -= 0.15
	}
	if fp.ClassName == "" {
		q -= 0.05
	}

	return clamp01(q)
}

// attribute weights within the attribute axis
var attrWeights = []struct {
	weight float64
	get    func(*Fingerprint) string
}{
	{0.30, func(f *Fingerprint) string { return f.Name }},
	{0.30, func(f *Fingerprint) string { return f.ControlType }},
	{0.20, func(f *Fingerprint) string { return f.ClassName }},
	{0.10, func(f *Fingerprint) string { return f.LocalizedControlType }},
	{0.10, func(f *Fingerprint) string { return f.Value }},
}

func attributeSimilarity(a, b *Fingerprint) float64 {
	var sum, wsum float64
	for _, aw := range attrWeights {
		va, vb := aw.get(a), aw.get(b)
		if va == "" && vb == "" {
			continue
		}
		sum += StringSimilarity(va, vb) * aw.weight
		wsum += aw.weight
	}
	if wsum == 0 {
		return 0
	}
	return sum / wsum
}

func hierarchySimilarity(a, b *Fingerprint) float64 {
	if len(a.ParentChain) == 0 && len(b.ParentChain) == 0 {
		return windowSimilarity(a, b)
	}

	n := len(a.ParentChain)
	if len(b.ParentChain) > n {
		n = len(b.ParentChain)
	}
	var sum float64
	for i := 0; i < n; i++ {
		if i >= len(a.ParentChain) || i >= len(b.ParentChain) {
			continue
		}
		pa, pb := a.ParentChain[i], b.ParentChain[i]
		sum += 0.5*StringSimilarity(pa.ControlType, pb.ControlType) +
			0.3*StringSimilarity(pa.ClassName, pb.ClassName) +
			0.2*StringSimilarity(pa.Name, pb.Name)
	}
	chainScore := sum / float64(n)

	// Sibling layout contributes a smaller share.
	layout := 1.0
	if a.SiblingIndex != b.SiblingIndex {
		diff := math.Abs(float64(a.SiblingIndex - b.SiblingIndex))
		layout = math.Max(0, 1.0-diff*0.25)
	}

	return 0.6*chainScore + 0.2*layout + 0.2*windowSimilarity(a, b)
}

func windowSimilarity(a, b *Fingerprint) float64 {
	if a.WindowTitle == "" && b.WindowTitle == "" && a.WindowClass == "" && b.WindowClass == "" {
		return 1.0
	}
	return 0.5*StringSimilarity(a.WindowTitle, b.WindowTitle) +
		0.5*StringSimilarity(a.WindowClass, b.WindowClass)
}

func positionSimilarity(a, b core.RelativePosition) float64 {
	deltas := []float64{
		math.Abs(a.XPercent - b.XPercent),
		math.Abs(a.YPercent - b.YPercent),
		math.Abs(a.WidthPercent - b.WidthPercent),
		math.Abs(a.HeightPercent - b.HeightPercent),
	}
	var sum float64
	for _, d := range deltas {
		if d <= positionTolerance {
			sum += 1.0 - d/positionTolerance*0.5
		} else {
			sum += math.Max(0, 0.5-(d-positionTolerance)/100)
		}
	}
	return sum / float64(len(deltas))
}

// StringSimilarity scores two strings in [0,1]: exact match 1.0,
// case-insensitive 0.95, containment 0.8, otherwise normalized
// Levenshtein distance.
func StringSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0
	}

	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la == lb {
		return 0.95
	}
	if strings.Contains(la, lb) || strings.Contains(lb, la) {
		return 0.8
	}

	dist := smetrics.WagnerFischer(la, lb, 1, 1, 1)
	maxLen := len(la)
	if len(lb) > maxLen {
		maxLen = len(lb)
	}
	return math.Max(0, 1.0-float64(dist)/float64(maxLen))
}

var (
	hexRun      = regexp.MustCompile(`[0-9a-fA-F]{8,}`)
	digitRun    = regexp.MustCompile(`\d{6,}`)
	uuidLike    = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	genPrefixes = []string{"auto_", "tmp_", "gen_", "_ctl", "ctl"}
)

// stability estimates how likely an attribute value is to survive a
// new session, starting from a per-attribute prior.
func stability(value string, prior float64) float64 {
	if value == "" {
		return 0
	}
	s := prior
	switch {
	case uuidLike.MatchString(value):
		s = 0.1
	case hexRun.MatchString(value):
		s = math.Min(s, 0.25)
	case digitRun.MatchString(value):
		s = math.Min(s, 0.35)
	}
	lower := strings.ToLower(value)
	for _, p := range genPrefixes {
		if strings.HasPrefix(lower, p) {
			s = math.Min(s, 0.4)
		}
	}
	// Short human-readable labels are the most durable anchors.
	if len(value) <= 24 && !strings.ContainsAny(value, "0123456789") {
		s = math.Max(s, math.Min(prior+0.1, 1.0))
	}
	return clamp01(s)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
