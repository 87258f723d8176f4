// Package pattern learns how automation identifiers evolve across
// sessions and predicts upcoming values.
package pattern

import "time"

// Kind classifies how an identifier changes over time.
type Kind int

const (
	KindRandom            Kind = iota // No structure detected
	KindStatic                        // One dominant value
	KindSequentialNumeric             // Counter or repeating cycle
	KindTimestampBased                // Embeds a clock reading
	KindHashBased                     // Hash-like, recognizable but not predictable
	KindSessionBased                  // Stable within a session, new per session
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindRandom:
		return "random"
	case KindStatic:
		return "static"
	case KindSequentialNumeric:
		return "sequential_numeric"
	case KindTimestampBased:
		return "timestamp_based"
	case KindHashBased:
		return "hash_based"
	case KindSessionBased:
		return "session_based"
	default:
		return "unknown"
	}
}

// ParseKind maps a stored string back to a Kind.
func ParseKind(s string) Kind {
	switch s {
	case "static":
		return KindStatic
	case "sequential_numeric":
		return KindSequentialNumeric
	case "timestamp_based":
		return KindTimestampBased
	case "hash_based":
		return KindHashBased
	case "session_based":
		return KindSessionBased
	default:
		return KindRandom
	}
}

// MarshalText implements encoding.TextMarshaler so kinds serialize as
// their names in JSON documents.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	*k = ParseKind(string(b))
	return nil
}

// Sample is one observed identifier value.
type Sample struct {
	Value  string    `json:"value"`
	SeenAt time.Time `json:"seen_at"`
}

// Params carries the analyzer-specific findings that prediction
// dispatches on. Only the fields relevant to the detected kind are
// populated.
type Params struct {
	Prefix        string   `json:"prefix,omitempty"`
	Suffix        string   `json:"suffix,omitempty"`
	Step          int64    `json:"step,omitempty"`
	Ratio         float64  `json:"ratio,omitempty"`
	LastNumber    int64    `json:"last_number,omitempty"`
	NumberWidth   int      `json:"number_width,omitempty"` // zero-pad width, 0 when unpadded
	Template      string   `json:"template,omitempty"`
	CycleValues   []string `json:"cycle_values,omitempty"`
	CycleOffset   int      `json:"cycle_offset,omitempty"` // index of the last sample within the cycle
	MeanInterval  float64  `json:"mean_interval_seconds,omitempty"`
	HashLength    int      `json:"hash_length,omitempty"`
	DominantValue string   `json:"dominant_value,omitempty"`
}

// Analysis is the outcome of pattern detection over a value history.
type Analysis struct {
	Kind        Kind      `json:"kind"`
	Confidence  float64   `json:"confidence"`
	CanPredict  bool      `json:"can_predict"`
	Params      Params    `json:"params"`
	SampleCount int       `json:"sample_count"`
	AnalyzedAt  time.Time `json:"analyzed_at"`
}

// Prediction is a forecast identifier value.
type Prediction struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Steps      int     `json:"steps"`
}

const (
	// minSamples is the history size below which no analysis runs.
	minSamples = 3
	// shortCircuitConfidence stops the analyzer chain early.
	shortCircuitConfidence = 0.9
	// maxPredictSteps bounds how far ahead predictions reach.
	maxPredictSteps = 5
	// stepDecay shrinks confidence per extra step ahead.
	stepDecay = 0.95
	// accuracyWeight is the EMA weight for prediction verification.
	accuracyWeight = 0.1
	// accuracyBlend is the share of prediction confidence taken from
	// the verified accuracy of the pattern kind.
	accuracyBlend = 0.3
)
