package selector

import (
	"github.com/devicelab-dev/adaptive-selector/pkg/fingerprint"
)

// Candidate is a generated selector with its expected durability.
type Candidate struct {
	Text       string   `json:"text"`
	Strategy   Strategy `json:"strategy"`
	Confidence float64  `json:"confidence"`
}

// Generator emits ranked selector candidates for an element described
// by its fingerprint and, when known, its current automation id.
type Generator struct{}

// NewGenerator returns a selector generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Candidates returns selectors ordered from most to least durable.
// automationID may be empty when the id is unknown or untrusted.
func (g *Generator) Candidates(fp *fingerprint.Fingerprint, automationID string) []Candidate {
	window := &Window{Title: fp.WindowTitle, Class: fp.WindowClass}
	var out []Candidate

	if automationID != "" {
		out = append(out, Candidate{
			Text: (&Selector{
				Window:   window,
				Elements: []Element{{AutomationID: automationID, ControlType: fp.ControlType}},
			}).String(),
			Strategy:   StrategyAutomationID,
			Confidence: 0.95,
		})
	}

	if fp.Name != "" && fp.ControlType != "" {
		out = append(out, Candidate{
			Text: (&Selector{
				Window:   window,
				Elements: []Element{{Name: fp.Name, ControlType: fp.ControlType}},
			}).String(),
			Strategy:   StrategyNameHierarchy,
			Confidence: 0.85,
		})
	}

	if fp.ClassName != "" && fp.SameTypeIndex != nil {
		idx := *fp.SameTypeIndex
		out = append(out, Candidate{
			Text: (&Selector{
				Window:   window,
				Elements: []Element{{ClassName: fp.ClassName, ControlType: fp.ControlType, Index: &idx}},
			}).String(),
			Strategy:   StrategyClassHierarchy,
			Confidence: 0.7,
		})
	}

	if len(fp.ParentChain) > 0 {
		// Containment path, outermost ancestor first, ending at the
		// element itself.
		var steps []Element
		for i := len(fp.ParentChain) - 1; i >= 0; i-- {
			ref := fp.ParentChain[i]
			if ref.ControlType == "Window" {
				continue
			}
			steps = append(steps, Element{ClassName: ref.ClassName, ControlType: ref.ControlType})
		}
		leaf := Element{ControlType: fp.ControlType, Name: fp.Name}
		if leaf.Name == "" {
			leaf.ClassName = fp.ClassName
		}
		steps = append(steps, leaf)
		if len(steps) > 1 && !leaf.IsEmpty() {
			out = append(out, Candidate{
				Text:       (&Selector{Window: window, Elements: steps}).String(),
				Strategy:   StrategySiblingIndex,
				Confidence: 0.6,
			})
		}
	}

	if fp.ClassName != "" {
		out = append(out, Candidate{
			Text: (&Selector{
				Window:   window,
				Elements: []Element{{ClassName: fp.ClassName}},
			}).String(),
			Strategy:   StrategyVisualAnchor,
			Confidence: 0.5,
		})
	}

	if fp.BoundingRect != nil {
		x, y := fp.BoundingRect.Center()
		out = append(out, Candidate{
			Text: (&Selector{
				Window:   window,
				Elements: []Element{{ControlType: fp.ControlType, X: &x, Y: &y}},
			}).String(),
			Strategy:   StrategyCoordinateFallback,
			Confidence: 0.3,
		})
	}

	return out
}
