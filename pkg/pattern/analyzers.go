package pattern

import (
	"math"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/devicelab-dev/adaptive-selector/pkg/fingerprint"
)

// Engine runs the analyzer chain and tracks prediction accuracy per
// pattern kind. Analyzers themselves are pure functions of the sample
// history.
type Engine struct {
	mu       sync.Mutex
	accuracy map[Kind]float64
}

// NewEngine returns a pattern engine.
func NewEngine() *Engine {
	return &Engine{accuracy: map[Kind]float64{}}
}

type analyzer func(samples []Sample) (Analysis, bool)

// Analyze inspects a value history and returns the best matching
// pattern. Fewer than three samples always yield random with zero
// confidence.
func (e *Engine) Analyze(samples []Sample) Analysis {
	if len(samples) < minSamples {
		return Analysis{Kind: KindRandom, SampleCount: len(samples), AnalyzedAt: time.Now()}
	}

	chain := []analyzer{
		analyzeStatistical,
		analyzeTemplates,
		analyzeSequence,
		analyzeSessions,
		analyzeClusters,
	}

	best := Analysis{Kind: KindRandom}
	for _, a := range chain {
		result, ok := a(samples)
		if !ok {
			continue
		}
		if result.Confidence > best.Confidence {
			best = result
		}
		if best.Confidence >= shortCircuitConfidence {
			break
		}
	}

	best.SampleCount = len(samples)
	best.AnalyzedAt = time.Now()
	return best
}

func values(samples []Sample) []string {
	out := make([]string, len(samples))
	for i, s := range samples {
		out[i] = s.Value
	}
	return out
}

// timestamp bounds: 2000-01-01 to 2050-01-01 in unix seconds
const (
	tsMin = 946684800
	tsMax = 2524608000
)

var hexValue = regexp.MustCompile(`^[0-9a-f]+$`)

// analyzeStatistical detects arithmetic and geometric counters,
// embedded unix timestamps, and hash-shaped values.
func analyzeStatistical(samples []Sample) (Analysis, bool) {
	vals := values(samples)

	nums := make([]int64, 0, len(vals))
	numeric := true
	for _, v := range vals {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			numeric = false
			break
		}
		nums = append(nums, n)
	}

	if numeric {
		if a, ok := analyzeNumbers(nums, vals, ""); ok {
			return a, true
		}
	}

	// Hash-shaped: consistent hex digest length.
	length := len(vals[0])
	hashLike := true
	for _, v := range vals {
		if len(v) != length || !hexValue.MatchString(v) {
			hashLike = false
			break
		}
	}
	if hashLike {
		switch length {
		case 8, 16, 32, 40, 64:
			return Analysis{
				Kind:       KindHashBased,
				Confidence: 0.75,
				CanPredict: false,
				Params:     Params{HashLength: length},
			}, true
		}
	}

	return Analysis{}, false
}

// analyzeNumbers classifies a pure numeric series. prefix carries over
// to the params so template matches can reuse this.
func analyzeNumbers(nums []int64, raw []string, prefix string) (Analysis, bool) {
	if len(nums) < 2 {
		return Analysis{}, false
	}
	last := nums[len(nums)-1]

	diffs := make([]int64, 0, len(nums)-1)
	for i := 1; i < len(nums); i++ {
		diffs = append(diffs, nums[i]-nums[i-1])
	}

	// Embedded unix timestamps drift by roughly constant intervals.
	if isTimestampSeries(nums, diffs) {
		mean := meanInt(diffs)
		return Analysis{
			Kind:       KindTimestampBased,
			Confidence: 0.85,
			CanPredict: true,
			Params: Params{
				Prefix:       prefix,
				LastNumber:   last,
				MeanInterval: mean,
			},
		}, true
	}

	constant := true
	for _, d := range diffs {
		if d != diffs[0] {
			constant = false
			break
		}
	}
	if constant && diffs[0] != 0 {
		conf := 0.95
		if prefix != "" {
			conf = 0.9
		}
		return Analysis{
			Kind:       KindSequentialNumeric,
			Confidence: conf,
			CanPredict: true,
			Params: Params{
				Prefix:      prefix,
				Step:        diffs[0],
				LastNumber:  last,
				NumberWidth: paddedWidth(raw),
			},
		}, true
	}

	// Geometric progression with low ratio variance.
	if allPositive(nums) {
		ratios := make([]float64, 0, len(nums)-1)
		for i := 1; i < len(nums); i++ {
			ratios = append(ratios, float64(nums[i])/float64(nums[i-1]))
		}
		mean := meanFloat(ratios)
		if mean != 1 && relVariance(ratios, mean) < 0.1 {
			return Analysis{
				Kind:       KindSequentialNumeric,
				Confidence: 0.85,
				CanPredict: true,
				Params: Params{
					Prefix:      prefix,
					Ratio:       mean,
					LastNumber:  last,
					NumberWidth: paddedWidth(raw),
				},
			}, true
		}
	}

	return Analysis{}, false
}

func isTimestampSeries(nums []int64, diffs []int64) bool {
	for _, n := range nums {
		if n < tsMin || n > tsMax {
			return false
		}
	}
	mean := meanInt(diffs)
	if mean <= 0 {
		return false
	}
	for _, d := range diffs {
		if math.Abs(float64(d)-mean) > 0.1*mean {
			return false
		}
	}
	return true
}

// template catalog, most specific first
var templates = []struct {
	name string
	re   *regexp.Regexp
}{
	{"session_pair", regexp.MustCompile(`^session_(\d+)_(\d+)$`)},
	{"prefix_timestamp", regexp.MustCompile(`^([A-Za-z][\w.\-]*?[_\-])(\d{10})$`)},
	{"prefix_hash", regexp.MustCompile(`^([A-Za-z][\w.\-]*?[_\-])([0-9a-f]{8,})$`)},
	{"date_sequence", regexp.MustCompile(`^([\w.\-]*?)(\d{4}[-_]?\d{2}[-_]?\d{2})([\w.\-]*)$`)},
	{"prefix_number_suffix", regexp.MustCompile(`^([A-Za-z][\w.\-]*?[_\-])(\d+)([_\-][A-Za-z][\w.\-]*)$`)},
	{"prefix_number", regexp.MustCompile(`^([A-Za-z][\w.\-]*?[_\-]?)(\d+)$`)},
	{"number_suffix", regexp.MustCompile(`^(\d+)([_\-]?[A-Za-z][\w.\-]*)$`)},
}

// analyzeTemplates matches the whole history against a catalog of
// identifier shapes. A consistent prefix with an arithmetic numeric
// tail upgrades to a predictable sequential pattern.
func analyzeTemplates(samples []Sample) (Analysis, bool) {
	vals := values(samples)

	for _, tpl := range templates {
		groups := make([][]string, 0, len(vals))
		all := true
		for _, v := range vals {
			m := tpl.re.FindStringSubmatch(v)
			if m == nil {
				all = false
				break
			}
			groups = append(groups, m)
		}
		if !all {
			continue
		}

		switch tpl.name {
		case "prefix_number", "prefix_timestamp", "prefix_number_suffix":
			prefix := groups[0][1]
			suffix := ""
			if tpl.name == "prefix_number_suffix" {
				suffix = groups[0][3]
			}
			consistent := true
			nums := make([]int64, 0, len(groups))
			raw := make([]string, 0, len(groups))
			for _, g := range groups {
				if g[1] != prefix || (suffix != "" && g[3] != suffix) {
					consistent = false
					break
				}
				n, err := strconv.ParseInt(g[2], 10, 64)
				if err != nil {
					consistent = false
					break
				}
				nums = append(nums, n)
				raw = append(raw, g[2])
			}
			if consistent {
				if a, ok := analyzeNumbers(nums, raw, prefix); ok {
					a.Params.Suffix = suffix
					a.Params.Template = tpl.name
					return a, true
				}
			}

		case "session_pair":
			return Analysis{
				Kind:       KindSessionBased,
				Confidence: 0.8,
				CanPredict: false,
				Params:     Params{Template: tpl.name},
			}, true

		case "prefix_hash":
			prefix := groups[0][1]
			consistent := true
			for _, g := range groups {
				if g[1] != prefix {
					consistent = false
					break
				}
			}
			if consistent {
				return Analysis{
					Kind:       KindHashBased,
					Confidence: 0.8,
					CanPredict: false,
					Params:     Params{Prefix: prefix, Template: tpl.name},
				}, true
			}
		}

		// Shape matches without further structure.
		return Analysis{
			Kind:       KindSessionBased,
			Confidence: 0.8,
			CanPredict: false,
			Params:     Params{Template: tpl.name},
		}, true
	}

	return Analysis{}, false
}

// analyzeSequence detects repeating cycles and strict alternation in
// the raw values.
func analyzeSequence(samples []Sample) (Analysis, bool) {
	vals := values(samples)

	for period := 2; period <= 10 && period*2 <= len(vals); period++ {
		periodic := true
		for i := period; i < len(vals); i++ {
			if vals[i] != vals[i-period] {
				periodic = false
				break
			}
		}
		if periodic && distinct(vals[:period]) > 1 {
			return Analysis{
				Kind:       KindSequentialNumeric,
				Confidence: 0.8,
				CanPredict: true,
				Params: Params{
					CycleValues: append([]string(nil), vals[:period]...),
					CycleOffset: (len(vals) - 1) % period,
				},
			}, true
		}
	}

	// Two values that never repeat back to back, but with too short a
	// tail to confirm full periodicity.
	if distinct(vals) == 2 {
		alternating := true
		for i := 1; i < len(vals); i++ {
			if vals[i] == vals[i-1] {
				alternating = false
				break
			}
		}
		if alternating {
			return Analysis{
				Kind:       KindSequentialNumeric,
				Confidence: 0.75,
				CanPredict: true,
				Params: Params{
					CycleValues: []string{vals[len(vals)-2], vals[len(vals)-1]},
					CycleOffset: 1,
				},
			}, true
		}
	}

	return Analysis{}, false
}

// analyzeSessions splits the history at large time gaps and checks
// whether values are stable within each session.
func analyzeSessions(samples []Sample) (Analysis, bool) {
	if len(samples) < 4 {
		return Analysis{}, false
	}

	gaps := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		gaps = append(gaps, samples[i].SeenAt.Sub(samples[i-1].SeenAt).Seconds())
	}
	mean := meanFloat(gaps)
	if mean <= 0 {
		return Analysis{}, false
	}

	sessions := [][]Sample{{samples[0]}}
	for i := 1; i < len(samples); i++ {
		if gaps[i-1] > 3*mean {
			sessions = append(sessions, nil)
		}
		sessions[len(sessions)-1] = append(sessions[len(sessions)-1], samples[i])
	}
	if len(sessions) < 2 {
		return Analysis{}, false
	}

	for _, sess := range sessions {
		for _, s := range sess {
			if s.Value != sess[0].Value {
				return Analysis{}, false
			}
		}
	}

	return Analysis{
		Kind:       KindSessionBased,
		Confidence: 0.75,
		CanPredict: false,
		Params:     Params{MeanInterval: mean},
	}, true
}

// analyzeClusters falls back to string similarity: a tightly clustered
// history means the identifier is effectively static.
func analyzeClusters(samples []Sample) (Analysis, bool) {
	vals := values(samples)

	var sum float64
	var pairs int
	for i := 0; i < len(vals); i++ {
		for j := i + 1; j < len(vals); j++ {
			sum += fingerprint.StringSimilarity(vals[i], vals[j])
			pairs++
		}
	}
	if pairs == 0 {
		return Analysis{}, false
	}
	mean := sum / float64(pairs)
	if mean <= 0.8 {
		return Analysis{}, false
	}

	counts := map[string]int{}
	dominant := vals[0]
	for _, v := range vals {
		counts[v]++
		if counts[v] > counts[dominant] {
			dominant = v
		}
	}

	return Analysis{
		Kind:       KindStatic,
		Confidence: mean * 0.8,
		CanPredict: true,
		Params:     Params{DominantValue: dominant},
	}, true
}

func distinct(vals []string) int {
	set := map[string]struct{}{}
	for _, v := range vals {
		set[v] = struct{}{}
	}
	return len(set)
}

func paddedWidth(raw []string) int {
	if len(raw) == 0 {
		return 0
	}
	width := len(raw[0])
	padded := false
	for _, r := range raw {
		if len(r) != width {
			return 0
		}
		if len(r) > 1 && r[0] == '0' {
			padded = true
		}
	}
	if padded {
		return width
	}
	return 0
}

func allPositive(nums []int64) bool {
	for _, n := range nums {
		if n <= 0 {
			return false
		}
	}
	return true
}

func meanInt(nums []int64) float64 {
	if len(nums) == 0 {
		return 0
	}
	var sum int64
	for _, n := range nums {
		sum += n
	}
	return float64(sum) / float64(len(nums))
}

func meanFloat(nums []float64) float64 {
	if len(nums) == 0 {
		return 0
	}
	var sum float64
	for _, n := range nums {
		sum += n
	}
	return sum / float64(len(nums))
}

func relVariance(nums []float64, mean float64) float64 {
	if mean == 0 || len(nums) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for _, n := range nums {
		d := n - mean
		sum += d * d
	}
	return math.Sqrt(sum/float64(len(nums))) / math.Abs(mean)
}
