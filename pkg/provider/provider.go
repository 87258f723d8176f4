// Package provider abstracts the element tree the engine operates on.
// Anything that can enumerate a UI hierarchy — a live accessibility
// bridge or a parsed page-source snapshot — can sit behind
// ElementProvider.
package provider

import (
	"github.com/devicelab-dev/adaptive-selector/pkg/core"
)

// Node is an opaque handle to an element owned by a provider. Handles
// must be comparable so callers can index them in maps.
type Node interface{}

// Attributes is the uniform projection of an element's properties.
type Attributes struct {
	AutomationID         string      `json:"automation_id,omitempty"`
	Name                 string      `json:"name,omitempty"`
	ClassName            string      `json:"class_name,omitempty"`
	ControlType          string      `json:"control_type,omitempty"`
	LocalizedControlType string      `json:"localized_control_type,omitempty"`
	Value                string      `json:"value,omitempty"`
	Text                 string      `json:"text,omitempty"`
	Bounds               core.Bounds `json:"bounds"`
	Enabled              bool        `json:"enabled"`
	Visible              bool        `json:"visible"`
	WindowTitle          string      `json:"window_title,omitempty"`
	WindowClass          string      `json:"window_class,omitempty"`
}

// ElementProvider is the minimal capability surface the engine needs.
// All methods may fail when the underlying session is gone or a node
// handle is stale.
type ElementProvider interface {
	// Root returns the top-level window element.
	Root() (Node, error)
	// Children returns the direct children of a node, in document order.
	Children(n Node) ([]Node, error)
	// Attributes reads the current properties of a node.
	Attributes(n Node) (*Attributes, error)
	// HitTest returns the deepest element covering the screen point.
	HitTest(x, y int) (Node, error)
}

// Walk traverses the tree depth-first from start, calling visit for
// every node with its depth. visit returning false prunes the subtree.
// maxDepth < 0 means unbounded.
func Walk(p ElementProvider, start Node, maxDepth int, visit func(n Node, depth int) bool) error {
	var walk func(n Node, depth int) error
	walk = func(n Node, depth int) error {
		if !visit(n, depth) {
			return nil
		}
		if maxDepth >= 0 && depth >= maxDepth {
			return nil
		}
		children, err := p.Children(n)
		if err != nil {
			return err
		}
		for _, c := range children {
			if err := walk(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(start, 0)
}
