package cache

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/devicelab-dev/adaptive-selector/pkg/fingerprint"
	"github.com/devicelab-dev/adaptive-selector/pkg/pattern"
	"github.com/devicelab-dev/adaptive-selector/pkg/selector"
)

func testFingerprint(name string) *fingerprint.Fingerprint {
	idx := 0
	return &fingerprint.Fingerprint{
		Name:          name,
		ClassName:     "ButtonClass",
		ControlType:   "Button",
		WindowTitle:   "Orders",
		WindowClass:   "OrderFrame",
		SiblingIndex:  0,
		SiblingCount:  3,
		SameTypeIndex: &idx,
		TextContent:   name,
		Stability:     map[string]float64{"name": 0.85, "class_name": 0.9, "control_type": 0.95},
		CapturedAt:    time.Now(),
	}
}

func testCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	if cfg.Path == "" {
		dir := t.TempDir()
		cfg.Path = filepath.Join(dir, "cache.json")
		cfg.BackupDir = filepath.Join(dir, "backups")
	}
	return New(cfg, fingerprint.NewEngine(), pattern.NewEngine())
}

const selDoc = `<Selector><Window title="Orders"/><Element automationId="btn_submit_100"/></Selector>`

func TestCacheIDStable(t *testing.T) {
	a := CacheID(testFingerprint("Submit"))
	b := CacheID(testFingerprint("Submit"))
	other := CacheID(testFingerprint("Reset"))

	if a != b {
		t.Errorf("same fingerprint hashed differently: %s vs %s", a, b)
	}
	if a == other {
		t.Error("different fingerprints collided")
	}
	if len(a) != len("cache_")+16 {
		t.Errorf("unexpected id shape: %s", a)
	}
}

func TestPutGet(t *testing.T) {
	c := testCache(t, Config{})
	fp := testFingerprint("Submit")

	id, err := c.Put(fp, selDoc, selector.StrategyAutomationID, PutOptions{Confidence: 0.9})
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	hit, ok := c.Get(fp)
	if !ok {
		t.Fatal("expected a hit")
	}
	if hit.Fuzzy {
		t.Error("exact lookup reported fuzzy")
	}
	if hit.Entry.CacheID != id || hit.Best.Text != selDoc {
		t.Errorf("unexpected hit: %+v", hit)
	}

	if _, ok := c.Get(testFingerprint("Totally Unrelated Widget Grid Row Column")); ok {
		// The fuzzy scan may still match structurally similar twins;
		// an entirely different name with the same structure can score
		// above threshold, so only assert on stats below for misses.
		t.Log("fuzzy matched a structural twin")
	}

	stats := c.Snapshot()
	if stats.Hits != 1 || stats.Lookups != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestPutRefreshesDuplicateSelector(t *testing.T) {
	c := testCache(t, Config{})
	fp := testFingerprint("Submit")

	if _, err := c.Put(fp, selDoc, selector.StrategyAutomationID, PutOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Put(fp, selDoc, selector.StrategyAutomationID, PutOptions{}); err != nil {
		t.Fatal(err)
	}

	hit, _ := c.Get(fp)
	if len(hit.Entry.Versions) != 1 {
		t.Errorf("duplicate put appended a version: %d versions", len(hit.Entry.Versions))
	}
}

func TestVersionTrimAndNumbering(t *testing.T) {
	c := testCache(t, Config{MaxVersions: 3})
	fp := testFingerprint("Submit")

	for i := 0; i < 5; i++ {
		doc := fmt.Sprintf(`<Selector><Element automationId="btn_v%d"/></Selector>`, i)
		if _, err := c.Put(fp, doc, selector.StrategyAutomationID, PutOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	hit, _ := c.Get(fp)
	if len(hit.Entry.Versions) != 3 {
		t.Fatalf("got %d versions, want 3", len(hit.Entry.Versions))
	}
	// Newest first, numbering keeps increasing past the trim.
	if hit.Entry.Versions[0].Version != 5 || hit.Entry.Versions[2].Version != 3 {
		t.Errorf("unexpected version numbers: %d, %d",
			hit.Entry.Versions[0].Version, hit.Entry.Versions[2].Version)
	}
}

func TestBestVersionPrefersProven(t *testing.T) {
	c := testCache(t, Config{})
	fp := testFingerprint("Submit")

	old := `<Selector><Element name="Submit" controlType="Button"/></Selector>`
	id, _ := c.Put(fp, old, selector.StrategyNameHierarchy, PutOptions{Confidence: 0.6})
	for i := 0; i < 20; i++ {
		if err := c.RecordResult(id, old, true, time.Millisecond); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := c.Put(fp, selDoc, selector.StrategyAutomationID, PutOptions{Confidence: 0.6}); err != nil {
		t.Fatal(err)
	}

	hit, _ := c.Get(fp)
	if hit.Best.Text != old {
		t.Errorf("best = %q, want the proven older version", hit.Best.Text)
	}
}

func TestConfidenceKeepsFreshEstimate(t *testing.T) {
	c := testCache(t, Config{})
	fp := testFingerprint("Submit")

	id, err := c.Put(fp, selDoc, selector.StrategyAutomationID, PutOptions{Confidence: 0.9})
	if err != nil {
		t.Fatal(err)
	}

	// Never executed: the overall confidence is the stored estimate,
	// not a blend diluted by a zero success rate.
	entry, err := c.GetByID(id)
	if err != nil {
		t.Fatal(err)
	}
	if diff := entry.Confidence - 0.9; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("confidence = %v, want 0.9", entry.Confidence)
	}
}

func TestConfidenceWeightedAcrossVersions(t *testing.T) {
	c := testCache(t, Config{})
	fp := testFingerprint("Submit")

	old := `<Selector><Element name="Submit" controlType="Button"/></Selector>`
	id, _ := c.Put(fp, old, selector.StrategyNameHierarchy, PutOptions{Confidence: 0.6})
	for i := 0; i < 10; i++ {
		if err := c.RecordResult(id, old, i != 0, time.Millisecond); err != nil {
			t.Fatal(err)
		}
	}

	// A weak unexercised newcomer barely moves the mean: the proven
	// version's execution volume dominates the weights.
	if _, err := c.Put(fp, selDoc, selector.StrategyAutomationID, PutOptions{Confidence: 0.3}); err != nil {
		t.Fatal(err)
	}
	entry, _ := c.GetByID(id)
	if entry.Confidence < 0.6 {
		t.Errorf("confidence = %v, want >= 0.6 with a proven version in the mix", entry.Confidence)
	}
	if entry.Confidence <= 0.3 {
		t.Errorf("confidence = %v, dragged down to the newcomer's estimate", entry.Confidence)
	}
}

func TestGetPrefersRequestedStrategy(t *testing.T) {
	c := testCache(t, Config{})
	fp := testFingerprint("Submit")

	old := `<Selector><Element name="Submit" controlType="Button"/></Selector>`
	id, _ := c.Put(fp, old, selector.StrategyNameHierarchy, PutOptions{Confidence: 0.6})
	for i := 0; i < 20; i++ {
		if err := c.RecordResult(id, old, true, time.Millisecond); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := c.Put(fp, selDoc, selector.StrategyAutomationID, PutOptions{Confidence: 0.6}); err != nil {
		t.Fatal(err)
	}

	// Without a preference the proven version wins the election.
	hit, _ := c.Get(fp)
	if hit.Best.Strategy != selector.StrategyNameHierarchy {
		t.Fatalf("default best strategy = %v, want name hierarchy", hit.Best.Strategy)
	}

	// A preference overrides it when a qualifying version exists.
	hit, _ = c.Get(fp, selector.StrategyAutomationID)
	if hit.Best.Strategy != selector.StrategyAutomationID {
		t.Errorf("preferred best strategy = %v, want automation id", hit.Best.Strategy)
	}

	// Earlier preferences win over later ones.
	hit, _ = c.Get(fp, selector.StrategyNameHierarchy, selector.StrategyAutomationID)
	if hit.Best.Strategy != selector.StrategyNameHierarchy {
		t.Errorf("ordered preference elected %v, want name hierarchy", hit.Best.Strategy)
	}

	// An unsatisfiable preference falls back to the normal election.
	hit, _ = c.Get(fp, selector.StrategyRelationship)
	if hit.Best.Strategy != selector.StrategyNameHierarchy {
		t.Errorf("fallback best strategy = %v, want name hierarchy", hit.Best.Strategy)
	}
}

func TestGetPreferenceSkipsUnreliable(t *testing.T) {
	c := testCache(t, Config{})
	fp := testFingerprint("Submit")

	id, _ := c.Put(fp, selDoc, selector.StrategyAutomationID, PutOptions{Confidence: 0.9})
	for i := 0; i < 10; i++ {
		if err := c.RecordResult(id, selDoc, true, time.Millisecond); err != nil {
			t.Fatal(err)
		}
	}
	weak := `<Selector><Element name="Submit" anchor="topRight"/></Selector>`
	if _, err := c.Put(fp, weak, selector.StrategyVisualAnchor, PutOptions{Confidence: 0.5}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		if err := c.RecordResult(id, weak, false, time.Millisecond); err != nil {
			t.Fatal(err)
		}
	}

	hit, _ := c.Get(fp, selector.StrategyVisualAnchor)
	if hit.Best.Strategy == selector.StrategyVisualAnchor {
		t.Errorf("preference elected a version with reliability %v", hit.Best.Reliability)
	}
}

func TestRecordResultMovesReliability(t *testing.T) {
	c := testCache(t, Config{})
	fp := testFingerprint("Submit")
	id, _ := c.Put(fp, selDoc, selector.StrategyAutomationID, PutOptions{Confidence: 0.5})

	if err := c.RecordResult(id, selDoc, true, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	hit, _ := c.Get(fp)
	up := hit.Best.Reliability
	if up <= 0.5 {
		t.Errorf("reliability after success = %v, want > 0.5", up)
	}

	for i := 0; i < 5; i++ {
		_ = c.RecordResult(id, selDoc, false, time.Millisecond)
	}
	hit, _ = c.Get(fp)
	if hit.Best.Reliability >= up {
		t.Errorf("reliability after failures = %v, want < %v", hit.Best.Reliability, up)
	}
	if hit.Best.ExecCount != 6 || hit.Best.SuccessCount != 1 {
		t.Errorf("unexpected counts: %+v", hit.Best)
	}

	if err := c.RecordResult("cache_missing000000", selDoc, true, 0); err == nil {
		t.Error("expected error for unknown entry")
	}
}

func TestObserveAutomationID(t *testing.T) {
	c := testCache(t, Config{})
	fp := testFingerprint("Submit")
	id, _ := c.Put(fp, selDoc, selector.StrategyAutomationID, PutOptions{})

	// Consecutive duplicates collapse.
	for i := 0; i < 4; i++ {
		if _, err := c.ObserveAutomationID(id, "btn_submit_100"); err != nil {
			t.Fatal(err)
		}
	}
	entry, err := c.GetByID(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(entry.IDHistory) != 1 {
		t.Fatalf("idempotent observe recorded %d samples, want 1", len(entry.IDHistory))
	}

	// A sequential drift becomes a pattern at three samples.
	if _, err := c.ObserveAutomationID(id, "btn_submit_101"); err != nil {
		t.Fatal(err)
	}
	analysis, err := c.ObserveAutomationID(id, "btn_submit_102")
	if err != nil {
		t.Fatal(err)
	}
	if analysis == nil || analysis.Kind != pattern.KindSequentialNumeric {
		t.Fatalf("expected sequential pattern, got %+v", analysis)
	}

	// Ring cap.
	for i := 0; i < 30; i++ {
		_, _ = c.ObserveAutomationID(id, fmt.Sprintf("btn_submit_%d", 103+i))
	}
	entry, _ = c.GetByID(id)
	if len(entry.IDHistory) != 20 {
		t.Errorf("history length = %d, want capped at 20", len(entry.IDHistory))
	}
}

func TestFuzzyHit(t *testing.T) {
	c := testCache(t, Config{})
	fp := testFingerprint("Submit")
	if _, err := c.Put(fp, selDoc, selector.StrategyAutomationID, PutOptions{}); err != nil {
		t.Fatal(err)
	}

	// A new session changed the window title and nudged the sibling
	// layout: the hash no longer matches, the fingerprint still does.
	drifted := testFingerprint("Submit")
	drifted.WindowTitle = "Orders - ACME"
	drifted.SiblingIndex = 1

	hit, ok := c.Get(drifted)
	if !ok {
		t.Fatal("expected a fuzzy hit")
	}
	if !hit.Fuzzy {
		t.Error("hit not marked fuzzy")
	}
	if hit.Similarity < 0.6 {
		t.Errorf("similarity = %v, want >= 0.6", hit.Similarity)
	}

	stats := c.Snapshot()
	if stats.FuzzyHits != 1 {
		t.Errorf("fuzzy hits = %d, want 1", stats.FuzzyHits)
	}
}

func TestCleanupDropsLowConfidenceIdle(t *testing.T) {
	c := testCache(t, Config{ConfidenceFloor: 0.1, UnusedDays: 7})

	keepFP := testFingerprint("Submit")
	keepID, _ := c.Put(keepFP, selDoc, selector.StrategyAutomationID, PutOptions{Confidence: 0.9})

	doomedFP := testFingerprint("Reset")
	doomed := `<Selector><Element automationId="btn_reset"/></Selector>`
	doomedID, _ := c.Put(doomedFP, doomed, selector.StrategyAutomationID, PutOptions{Confidence: 0.9})

	// Reliability collapsed and nothing has touched the entry for
	// longer than the unused window.
	c.mu.Lock()
	c.entries[doomedID].Confidence = 0.05
	c.entries[doomedID].LastAccess = time.Now().Add(-8 * 24 * time.Hour)
	c.mu.Unlock()

	removed := c.Cleanup()
	if removed != 1 {
		t.Fatalf("Cleanup() removed %d entries, want 1", removed)
	}
	if _, err := c.GetByID(doomedID); err == nil {
		t.Error("low-confidence idle entry survived cleanup")
	}
	if _, err := c.GetByID(keepID); err != nil {
		t.Errorf("healthy entry expired: %v", err)
	}
	if c.Snapshot().Expirations != 1 {
		t.Errorf("expirations = %d, want 1", c.Snapshot().Expirations)
	}
}

func TestCleanupKeepsLowConfidenceRecentlyUsed(t *testing.T) {
	c := testCache(t, Config{ConfidenceFloor: 0.1, UnusedDays: 7})
	fp := testFingerprint("Submit")
	id, _ := c.Put(fp, selDoc, selector.StrategyAutomationID, PutOptions{Confidence: 0.9})

	c.mu.Lock()
	c.entries[id].Confidence = 0.05
	c.mu.Unlock()

	if removed := c.Cleanup(); removed != 0 {
		t.Errorf("Cleanup() removed %d entries, want 0 while still in use", removed)
	}
}

func TestMinPatternSamplesConfigurable(t *testing.T) {
	c := testCache(t, Config{MinPatternSamples: 5})
	fp := testFingerprint("Submit")
	id, _ := c.Put(fp, selDoc, selector.StrategyAutomationID, PutOptions{})

	for i := 0; i < 4; i++ {
		if _, err := c.ObserveAutomationID(id, fmt.Sprintf("btn_submit_%d", 100+i)); err != nil {
			t.Fatal(err)
		}
	}
	entry, _ := c.GetByID(id)
	if entry.Pattern != nil {
		t.Fatal("pattern analyzed below the configured sample minimum")
	}

	analysis, err := c.ObserveAutomationID(id, "btn_submit_104")
	if err != nil {
		t.Fatal(err)
	}
	if analysis == nil || analysis.Kind != pattern.KindSequentialNumeric {
		t.Errorf("expected sequential pattern at five samples, got %+v", analysis)
	}
}

func TestEvictionBound(t *testing.T) {
	c := testCache(t, Config{MaxEntries: 50, FuzzyThreshold: 0.99})

	for i := 0; i < 550; i++ {
		fp := testFingerprint(fmt.Sprintf("Widget %d", i))
		doc := fmt.Sprintf(`<Selector><Element automationId="w%d"/></Selector>`, i)
		if _, err := c.Put(fp, doc, selector.StrategyAutomationID, PutOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	if n := c.Len(); n > 50 {
		t.Errorf("entry count = %d, want <= 50", n)
	}
	if c.Snapshot().Evictions == 0 {
		t.Error("expected evictions to be counted")
	}
}

func TestEvictionKeepsUseful(t *testing.T) {
	now := time.Now()
	useful := &Entry{
		Confidence: 0.9,
		AccessCnt:  80,
		LastAccess: now,
		Versions:   []SelectorVersion{{ExecCount: 10, SuccessCount: 9, Reliability: 0.9}},
	}
	stale := &Entry{
		Confidence: 0.1,
		AccessCnt:  1,
		LastAccess: now.Add(-29 * 24 * time.Hour),
	}

	if usefulness(useful, now) <= usefulness(stale, now) {
		t.Error("useful entry must outrank stale entry")
	}
}
