package selector

import (
	"encoding/xml"
	"strings"

	"github.com/devicelab-dev/adaptive-selector/pkg/core"
)

// Window constrains which top-level window a selector applies to.
// Empty fields match anything; non-empty fields allow substring
// matches so retitled windows ("Settings — modified") still resolve.
type Window struct {
	Title string `xml:"title,attr,omitempty"`
	Class string `xml:"class,attr,omitempty"`
}

// Element is one step in a selector path. Set fields are required to
// match; Index picks the nth candidate when several elements satisfy
// the other constraints. X/Y turn the step into a coordinate probe.
type Element struct {
	AutomationID string `xml:"automationId,attr,omitempty"`
	Name         string `xml:"name,attr,omitempty"`
	ClassName    string `xml:"className,attr,omitempty"`
	ControlType  string `xml:"controlType,attr,omitempty"`
	Index        *int   `xml:"index,attr,omitempty"`
	X            *int   `xml:"x,attr,omitempty"`
	Y            *int   `xml:"y,attr,omitempty"`
}

// IsEmpty reports whether the step carries no constraints at all.
func (e Element) IsEmpty() bool {
	return e.AutomationID == "" && e.Name == "" && e.ClassName == "" &&
		e.ControlType == "" && e.Index == nil && e.X == nil && e.Y == nil
}

// Selector is a parsed selector document: an optional window gate
// followed by one or more element steps, outermost first.
type Selector struct {
	XMLName  xml.Name  `xml:"Selector"`
	Window   *Window   `xml:"Window"`
	Elements []Element `xml:"Element"`
}

// Parse decodes a selector document.
func Parse(text string) (*Selector, error) {
	var sel Selector
	if err := xml.Unmarshal([]byte(strings.TrimSpace(text)), &sel); err != nil {
		return nil, core.ErrInvalidSelector.WithCause(err)
	}
	if len(sel.Elements) == 0 {
		return nil, core.ErrInvalidSelector.WithMessage("selector has no element steps")
	}
	for _, e := range sel.Elements {
		if e.IsEmpty() {
			return nil, core.ErrInvalidSelector.WithMessage("selector has an unconstrained element step")
		}
	}
	return &sel, nil
}

// String serializes the selector back to its document form.
func (s *Selector) String() string {
	out, err := xml.MarshalIndent(s, "", "  ")
	if err != nil {
		return ""
	}
	return string(out)
}

// Target returns the final element step, the one the selector
// ultimately resolves to.
func (s *Selector) Target() *Element {
	if len(s.Elements) == 0 {
		return nil
	}
	return &s.Elements[len(s.Elements)-1]
}

// AutomationID extracts the automation id of a selector document's
// target step, if any.
func AutomationID(text string) (string, error) {
	sel, err := Parse(text)
	if err != nil {
		return "", err
	}
	return sel.Target().AutomationID, nil
}

// ReplaceAutomationID splices a new automation id into the target step
// of a selector document, returning the rewritten document.
func ReplaceAutomationID(text, id string) (string, error) {
	sel, err := Parse(text)
	if err != nil {
		return "", err
	}
	sel.Target().AutomationID = id
	return sel.String(), nil
}
