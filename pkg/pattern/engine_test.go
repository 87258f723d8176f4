package pattern

import (
	"fmt"
	"testing"
	"time"

	"github.com/devicelab-dev/adaptive-selector/pkg/core"
)

func history(values ...string) []Sample {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	samples := make([]Sample, len(values))
	for i, v := range values {
		samples[i] = Sample{Value: v, SeenAt: base.Add(time.Duration(i) * time.Minute)}
	}
	return samples
}

func TestAnalyzeTooFewSamples(t *testing.T) {
	e := NewEngine()
	a := e.Analyze(history("a", "b"))
	if a.Kind != KindRandom || a.Confidence != 0 {
		t.Errorf("got %v conf %v, want random with zero confidence", a.Kind, a.Confidence)
	}
}

func TestAnalyzeArithmetic(t *testing.T) {
	e := NewEngine()
	a := e.Analyze(history("100", "105", "110", "115"))

	if a.Kind != KindSequentialNumeric {
		t.Fatalf("kind = %v, want sequential_numeric", a.Kind)
	}
	if a.Confidence < 0.9 {
		t.Errorf("confidence = %v, want >= 0.9", a.Confidence)
	}
	if !a.CanPredict || a.Params.Step != 5 || a.Params.LastNumber != 115 {
		t.Errorf("unexpected params: %+v", a.Params)
	}

	p, err := e.Predict(a, 1)
	if err != nil {
		t.Fatalf("Predict() error: %v", err)
	}
	if p.Value != "120" {
		t.Errorf("predicted %q, want 120", p.Value)
	}
	if p.Confidence < 0.9 {
		t.Errorf("prediction confidence = %v, want >= 0.9", p.Confidence)
	}
}

func TestAnalyzePrefixedSequence(t *testing.T) {
	e := NewEngine()
	a := e.Analyze(history("btn_save_100", "btn_save_101", "btn_save_102"))

	if a.Kind != KindSequentialNumeric || !a.CanPredict {
		t.Fatalf("unexpected analysis: %+v", a)
	}
	if a.Params.Prefix != "btn_save_" || a.Params.Step != 1 {
		t.Errorf("unexpected params: %+v", a.Params)
	}

	p, err := e.Predict(a, 1)
	if err != nil {
		t.Fatal(err)
	}
	if p.Value != "btn_save_103" {
		t.Errorf("predicted %q, want btn_save_103", p.Value)
	}
}

func TestAnalyzeZeroPadded(t *testing.T) {
	e := NewEngine()
	a := e.Analyze(history("item_007", "item_008", "item_009"))

	p, err := e.Predict(a, 1)
	if err != nil {
		t.Fatal(err)
	}
	if p.Value != "item_010" {
		t.Errorf("predicted %q, want item_010", p.Value)
	}
}

func TestAnalyzeCycle(t *testing.T) {
	e := NewEngine()
	a := e.Analyze(history("panelA", "panelB", "panelA", "panelB", "panelA"))

	if len(a.Params.CycleValues) != 2 {
		t.Fatalf("expected 2-cycle, got %+v", a.Params)
	}

	p, err := e.Predict(a, 1)
	if err != nil {
		t.Fatal(err)
	}
	if p.Value != "panelB" {
		t.Errorf("predicted %q, want panelB", p.Value)
	}
}

func TestAnalyzeTimestamps(t *testing.T) {
	e := NewEngine()
	// Unix timestamps an hour apart.
	a := e.Analyze(history("1756400000", "1756403600", "1756407200", "1756410800"))

	if a.Kind != KindTimestampBased || !a.CanPredict {
		t.Fatalf("unexpected analysis: %+v", a)
	}

	p, err := e.Predict(a, 1)
	if err != nil {
		t.Fatal(err)
	}
	if p.Value != "1756414400" {
		t.Errorf("predicted %q, want 1756414400", p.Value)
	}
}

func TestAnalyzeHashes(t *testing.T) {
	e := NewEngine()
	a := e.Analyze(history("9f86d081884c7d65", "60303ae22b998861", "fd61a03af4f77d87"))

	if a.Kind != KindHashBased {
		t.Fatalf("kind = %v, want hash_based", a.Kind)
	}
	if a.CanPredict {
		t.Error("hash patterns must not be predictable")
	}
	if a.Params.HashLength != 16 {
		t.Errorf("hash length = %d, want 16", a.Params.HashLength)
	}

	if _, err := e.Predict(a, 1); core.KindOf(err) != core.KindValidation {
		t.Errorf("predict error kind = %v, want validation", core.KindOf(err))
	}
}

func TestAnalyzeSessions(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	samples := []Sample{
		{Value: "run_a", SeenAt: base},
		{Value: "run_a", SeenAt: base.Add(1 * time.Minute)},
		{Value: "run_a", SeenAt: base.Add(2 * time.Minute)},
		{Value: "run_b", SeenAt: base.Add(4 * time.Hour)},
		{Value: "run_b", SeenAt: base.Add(4*time.Hour + time.Minute)},
		{Value: "run_b", SeenAt: base.Add(4*time.Hour + 2*time.Minute)},
	}

	e := NewEngine()
	a := e.Analyze(samples)
	if a.Kind != KindSessionBased {
		t.Fatalf("kind = %v, want session_based", a.Kind)
	}
	if a.CanPredict {
		t.Error("session values must not be predictable")
	}
}

func TestAnalyzeStatic(t *testing.T) {
	e := NewEngine()
	a := e.Analyze(history("mainToolbar", "mainToolbar", "mainToolbar", "mainToolbar"))

	if a.Kind != KindStatic {
		t.Fatalf("kind = %v, want static", a.Kind)
	}

	p, err := e.Predict(a, 3)
	if err != nil {
		t.Fatal(err)
	}
	if p.Value != "mainToolbar" {
		t.Errorf("predicted %q, want mainToolbar", p.Value)
	}
}

func TestPredictConfidenceDecays(t *testing.T) {
	e := NewEngine()
	a := e.Analyze(history("100", "105", "110", "115"))

	one, err := e.Predict(a, 1)
	if err != nil {
		t.Fatal(err)
	}
	three, err := e.Predict(a, 3)
	if err != nil {
		t.Fatal(err)
	}
	if three.Confidence >= one.Confidence {
		t.Errorf("confidence must decay with steps: %v vs %v", three.Confidence, one.Confidence)
	}

	// Requests past the window are clamped, not rejected.
	far, err := e.Predict(a, 50)
	if err != nil {
		t.Fatal(err)
	}
	if far.Steps != maxPredictSteps {
		t.Errorf("steps = %d, want clamp at %d", far.Steps, maxPredictSteps)
	}
	if far.Value != fmt.Sprintf("%d", 115+5*maxPredictSteps) {
		t.Errorf("clamped prediction = %q", far.Value)
	}
}

func TestVerifyAccuracy(t *testing.T) {
	e := NewEngine()
	if acc := e.Accuracy(KindSequentialNumeric); acc != 0.5 {
		t.Errorf("initial accuracy = %v, want 0.5", acc)
	}

	e.Verify(KindSequentialNumeric, "120", "120")
	up := e.Accuracy(KindSequentialNumeric)
	if up <= 0.5 {
		t.Errorf("accuracy after hit = %v, want > 0.5", up)
	}

	e.Verify(KindSequentialNumeric, "125", "999")
	down := e.Accuracy(KindSequentialNumeric)
	if down >= up {
		t.Errorf("accuracy after miss = %v, want < %v", down, up)
	}
}

func TestPredictBlendsVerifiedAccuracy(t *testing.T) {
	samples := history("100", "105", "110", "115")

	fresh := NewEngine()
	a := fresh.Analyze(samples)
	baseline, err := fresh.Predict(a, 1)
	if err != nil {
		t.Fatalf("Predict() error: %v", err)
	}

	misses := NewEngine()
	for i := 0; i < 10; i++ {
		misses.Verify(KindSequentialNumeric, "120", "999")
	}
	low, err := misses.Predict(a, 1)
	if err != nil {
		t.Fatalf("Predict() error: %v", err)
	}
	if low.Confidence >= baseline.Confidence {
		t.Errorf("confidence after misses = %v, want < unverified %v",
			low.Confidence, baseline.Confidence)
	}

	hits := NewEngine()
	for i := 0; i < 10; i++ {
		hits.Verify(KindSequentialNumeric, "120", "120")
	}
	high, err := hits.Predict(a, 1)
	if err != nil {
		t.Fatalf("Predict() error: %v", err)
	}
	if high.Confidence <= low.Confidence {
		t.Errorf("confidence after hits = %v, want > after misses %v",
			high.Confidence, low.Confidence)
	}

	// Kinds never verified keep the pure decayed confidence.
	if baseline.Confidence < 0.9 {
		t.Errorf("unverified confidence = %v, want undiluted >= 0.9", baseline.Confidence)
	}
}
