// Package relationship builds navigation graphs around elements so a
// lost element can be reached again from its structural neighbors:
// parents, siblings, children and window landmarks.
package relationship

import (
	"time"

	"github.com/devicelab-dev/adaptive-selector/pkg/fingerprint"
)

// Kind classifies an edge in the graph.
type Kind int

const (
	KindParent Kind = iota
	KindChild
	KindSibling
	KindLandmark
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindParent:
		return "parent"
	case KindChild:
		return "child"
	case KindSibling:
		return "sibling"
	case KindLandmark:
		return "landmark"
	default:
		return "unknown"
	}
}

// Action is one navigation primitive replayed against the provider.
type Action int

const (
	// GoParent moves to the current node's parent.
	GoParent Action = iota
	// ChildAt moves to the child at NavStep.Index.
	ChildAt
	// SearchFingerprint scans the current subtree for the best match
	// of the edge's target fingerprint.
	SearchFingerprint
)

// String returns the string representation of Action
func (a Action) String() string {
	switch a {
	case GoParent:
		return "go_parent"
	case ChildAt:
		return "child_at"
	case SearchFingerprint:
		return "search_fingerprint"
	default:
		return "unknown"
	}
}

// NavStep is one replayable move.
type NavStep struct {
	Action Action `json:"action"`
	Index  int    `json:"index,omitempty"`
}

// Edge connects the graph's center element to a related element,
// with the steps to walk from that element back to the center.
type Edge struct {
	Kind       Kind                     `json:"kind"`
	Target     *fingerprint.Fingerprint `json:"target"`
	StepsBack  []NavStep                `json:"steps_back"`
	Stability  float64                  `json:"stability"`
	CapturedAt time.Time                `json:"captured_at"`
}

// Graph is the relationship map around one element.
type Graph struct {
	CenterID  string                   `json:"center_id"`
	Center    *fingerprint.Fingerprint `json:"center"`
	Parents   []Edge                   `json:"parents,omitempty"`
	Children  []Edge                   `json:"children,omitempty"`
	Siblings  []Edge                   `json:"siblings,omitempty"`
	Landmarks []Edge                   `json:"landmarks,omitempty"`
	BuiltAt   time.Time                `json:"built_at"`
}

// Edges returns every edge ordered by descending stability.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.Parents)+len(g.Children)+len(g.Siblings)+len(g.Landmarks))
	out = append(out, g.Parents...)
	out = append(out, g.Landmarks...)
	out = append(out, g.Siblings...)
	out = append(out, g.Children...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Stability > out[j-1].Stability; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Structural limits for graph construction.
const (
	maxParentDepth = 5
	maxSiblings    = 8
	maxChildren    = 10
	maxLandmarks   = 5
	// arrivalThreshold is the fingerprint similarity the navigated-to
	// node must reach for the replay to count.
	arrivalThreshold = 0.6
)

// landmarkTypes are control types that anchor a window reliably.
var landmarkTypes = []string{"Menu", "MenuBar", "ToolBar", "Tool", "StatusBar", "Status", "Tab", "TabItem"}

func isLandmarkType(controlType string) bool {
	for _, t := range landmarkTypes {
		if controlType == t {
			return true
		}
	}
	return false
}
