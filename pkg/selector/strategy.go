// Package selector models the textual XML selector documents the
// engine generates, repairs and resolves against an element tree.
package selector

// Strategy identifies how a selector locates its element, ordered from
// most to least durable.
type Strategy int

const (
	StrategyAutomationID       Strategy = iota // Direct automation id
	StrategyNameHierarchy                      // Name plus control type
	StrategyClassHierarchy                     // Class name plus same-type index
	StrategyVisualAnchor                       // Relative screen position
	StrategySiblingIndex                       // Position among siblings
	StrategyCoordinateFallback                 // Raw screen coordinates
	StrategyRelationship                       // Navigated from a related element
	StrategyPatternPredicted                   // Automation id forecast from its history
)

// String returns the string representation of Strategy
func (s Strategy) String() string {
	switch s {
	case StrategyAutomationID:
		return "automation_id"
	case StrategyNameHierarchy:
		return "name_hierarchy"
	case StrategyClassHierarchy:
		return "class_hierarchy"
	case StrategyVisualAnchor:
		return "visual_anchor"
	case StrategySiblingIndex:
		return "sibling_index"
	case StrategyCoordinateFallback:
		return "coordinate_fallback"
	case StrategyRelationship:
		return "relationship_based"
	case StrategyPatternPredicted:
		return "pattern_predicted"
	default:
		return "unknown"
	}
}

// ParseStrategy maps a stored string back to a Strategy.
func ParseStrategy(s string) Strategy {
	switch s {
	case "name_hierarchy":
		return StrategyNameHierarchy
	case "class_hierarchy":
		return StrategyClassHierarchy
	case "visual_anchor":
		return StrategyVisualAnchor
	case "sibling_index":
		return StrategySiblingIndex
	case "coordinate_fallback":
		return StrategyCoordinateFallback
	case "relationship_based":
		return StrategyRelationship
	case "pattern_predicted":
		return StrategyPatternPredicted
	default:
		return StrategyAutomationID
	}
}

// MarshalText implements encoding.TextMarshaler so strategies persist
// by name.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(b []byte) error {
	*s = ParseStrategy(string(b))
	return nil
}
