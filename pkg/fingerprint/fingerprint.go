// Package fingerprint captures structural identities for UI elements
// that survive automation-id churn, and scores how alike two captures
// are.
package fingerprint

import (
	"time"

	"github.com/devicelab-dev/adaptive-selector/pkg/core"
)

// ParentRef is one ancestor in an element's containment chain.
type ParentRef struct {
	ClassName   string `json:"class_name,omitempty"`
	ControlType string `json:"control_type,omitempty"`
	Name        string `json:"name,omitempty"`
}

// Fingerprint is the stable identity of an element, built from
// everything about it except the automation id.
type Fingerprint struct {
	Name                 string                 `json:"name,omitempty"`
	ClassName            string                 `json:"class_name,omitempty"`
	ControlType          string                 `json:"control_type,omitempty"`
	LocalizedControlType string                 `json:"localized_control_type,omitempty"`
	WindowTitle          string                 `json:"window_title,omitempty"`
	WindowClass          string                 `json:"window_class,omitempty"`
	ParentChain          []ParentRef            `json:"parent_chain,omitempty"`
	SiblingIndex         int                    `json:"sibling_index"`
	SiblingCount         int                    `json:"sibling_count"`
	SameTypeIndex        *int                   `json:"same_type_index,omitempty"`
	BoundingRect         *core.Bounds           `json:"bounding_rect,omitempty"`
	RelativePos          *core.RelativePosition `json:"relative_pos,omitempty"`
	Value                string                 `json:"value,omitempty"`
	TextContent          string                 `json:"text_content,omitempty"`
	Stability            map[string]float64     `json:"stability,omitempty"`
	CapturedAt           time.Time              `json:"captured_at"`
}

// Match is the result of comparing two fingerprints.
type Match struct {
	Score    float64            `json:"score"`
	Axes     map[string]float64 `json:"axes"`
	Reliable bool               `json:"reliable"`
}

// reliableThreshold is the overall score above which a match is
// trusted without further evidence.
const reliableThreshold = 0.75
