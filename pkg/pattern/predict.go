package pattern

import (
	"fmt"
	"math"

	"github.com/devicelab-dev/adaptive-selector/pkg/core"
)

// Predict forecasts the identifier value steps observations ahead of
// the analyzed history. Confidence decays per extra step; steps is
// clamped to [1, 5].
func (e *Engine) Predict(a Analysis, steps int) (Prediction, error) {
	if !a.CanPredict {
		return Prediction{}, core.ErrNotPredictable.WithDetails(map[string]interface{}{
			"kind": a.Kind.String(),
		})
	}
	if steps < 1 {
		steps = 1
	}
	if steps > maxPredictSteps {
		steps = maxPredictSteps
	}

	var value string
	switch {
	case len(a.Params.CycleValues) > 0:
		cycle := a.Params.CycleValues
		value = cycle[(a.Params.CycleOffset+steps)%len(cycle)]

	case a.Kind == KindStatic:
		value = a.Params.DominantValue

	case a.Kind == KindSequentialNumeric && a.Params.Ratio != 0:
		n := float64(a.Params.LastNumber) * math.Pow(a.Params.Ratio, float64(steps))
		value = formatNumber(int64(math.Round(n)), a.Params)

	case a.Kind == KindSequentialNumeric:
		value = formatNumber(a.Params.LastNumber+a.Params.Step*int64(steps), a.Params)

	case a.Kind == KindTimestampBased:
		n := a.Params.LastNumber + int64(math.Round(a.Params.MeanInterval*float64(steps)))
		value = formatNumber(n, a.Params)

	default:
		return Prediction{}, core.ErrNotPredictable.WithDetails(map[string]interface{}{
			"kind": a.Kind.String(),
		})
	}

	base := a.Confidence
	if a.Params.Template != "" && base > 0.85 {
		base = 0.85
	}
	conf := base * math.Pow(stepDecay, float64(steps-1))

	// Blend in the rolling verification accuracy once this kind has
	// been verified at least once. An unverified kind keeps the pure
	// decayed confidence.
	e.mu.Lock()
	acc, verified := e.accuracy[a.Kind]
	e.mu.Unlock()
	if verified {
		conf = conf*(1-accuracyBlend) + acc*accuracyBlend
	}

	return Prediction{
		Value:      value,
		Confidence: conf,
		Steps:      steps,
	}, nil
}

func formatNumber(n int64, p Params) string {
	var num string
	if p.NumberWidth > 0 {
		num = fmt.Sprintf("%0*d", p.NumberWidth, n)
	} else {
		num = fmt.Sprintf("%d", n)
	}
	return p.Prefix + num + p.Suffix
}

// Verify feeds a prediction outcome back into the per-kind accuracy
// tracker.
func (e *Engine) Verify(kind Kind, predicted, actual string) {
	hit := 0.0
	if predicted == actual {
		hit = 1.0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	prev, ok := e.accuracy[kind]
	if !ok {
		prev = 0.5
	}
	e.accuracy[kind] = prev*(1-accuracyWeight) + hit*accuracyWeight
}

// Accuracy reports the rolling prediction accuracy for a kind. Kinds
// never verified report 0.5.
func (e *Engine) Accuracy(kind Kind) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if acc, ok := e.accuracy[kind]; ok {
		return acc
	}
	return 0.5
}
