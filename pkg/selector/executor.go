package selector

import (
	"strings"
	"time"

	"github.com/devicelab-dev/adaptive-selector/pkg/core"
	"github.com/devicelab-dev/adaptive-selector/pkg/provider"
)

// retryInterval paces re-resolution attempts while the budget lasts.
const retryInterval = 100 * time.Millisecond

// Executor resolves selector documents against an element provider.
type Executor struct {
	Provider provider.ElementProvider
}

// NewExecutor returns an executor bound to a provider.
func NewExecutor(p provider.ElementProvider) *Executor {
	return &Executor{Provider: p}
}

// Execute resolves a selector document, retrying until the budget is
// spent. A zero budget means a single attempt.
func (e *Executor) Execute(text string, budget time.Duration) (provider.Node, error) {
	sel, err := Parse(text)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(budget)
	for {
		node, rerr := e.resolve(sel)
		if rerr == nil {
			return node, nil
		}
		if core.KindOf(rerr) != core.KindNotFound {
			return nil, rerr
		}
		if !time.Now().Add(retryInterval).Before(deadline) {
			return nil, rerr
		}
		time.Sleep(retryInterval)
	}
}

func (e *Executor) resolve(sel *Selector) (provider.Node, error) {
	root, err := e.Provider.Root()
	if err != nil {
		return nil, err
	}

	if sel.Window != nil {
		attrs, aerr := e.Provider.Attributes(root)
		if aerr != nil {
			return nil, aerr
		}
		if !windowMatches(sel.Window, attrs) {
			return nil, core.ErrElementNotFound.WithMessage("window does not match selector").WithDetails(map[string]interface{}{
				"want_title": sel.Window.Title,
				"got_title":  attrs.WindowTitle,
			})
		}
	}

	current := []provider.Node{root}
	for _, step := range sel.Elements {
		if step.X != nil && step.Y != nil {
			node, herr := e.Provider.HitTest(*step.X, *step.Y)
			if herr != nil {
				return nil, herr
			}
			if step.ControlType != "" {
				attrs, aerr := e.Provider.Attributes(node)
				if aerr != nil {
					return nil, aerr
				}
				if attrs.ControlType != step.ControlType {
					return nil, core.ErrElementNotFound.WithMessage("coordinate probe hit a different control type")
				}
			}
			current = []provider.Node{node}
			continue
		}

		var matches []provider.Node
		for _, start := range current {
			nodes, merr := e.matchDescendants(start, step)
			if merr != nil {
				return nil, merr
			}
			matches = append(matches, nodes...)
		}

		if step.Index != nil {
			if *step.Index < 0 || *step.Index >= len(matches) {
				return nil, core.ErrElementNotFound.WithDetails(map[string]interface{}{
					"index":   *step.Index,
					"matched": len(matches),
				})
			}
			matches = matches[*step.Index : *step.Index+1]
		}

		if len(matches) == 0 {
			return nil, core.ErrElementNotFound.WithDetails(map[string]interface{}{
				"step": step,
			})
		}
		current = matches
	}

	return current[0], nil
}

// matchDescendants collects the descendants of start satisfying a
// step, in document order. start itself is not considered.
func (e *Executor) matchDescendants(start provider.Node, step Element) ([]provider.Node, error) {
	var matches []provider.Node
	first := true
	err := provider.Walk(e.Provider, start, -1, func(n provider.Node, depth int) bool {
		if first {
			first = false
			return true
		}
		attrs, aerr := e.Provider.Attributes(n)
		if aerr != nil {
			return true
		}
		if stepMatches(step, attrs) {
			matches = append(matches, n)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func stepMatches(step Element, attrs *provider.Attributes) bool {
	if step.AutomationID != "" && attrs.AutomationID != step.AutomationID {
		return false
	}
	if step.Name != "" && attrs.Name != step.Name {
		return false
	}
	if step.ClassName != "" && attrs.ClassName != step.ClassName {
		return false
	}
	if step.ControlType != "" && attrs.ControlType != step.ControlType {
		return false
	}
	return true
}

func windowMatches(w *Window, attrs *provider.Attributes) bool {
	if w.Title != "" && !containsFold(attrs.WindowTitle, w.Title) {
		return false
	}
	if w.Class != "" && !containsFold(attrs.WindowClass, w.Class) {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
