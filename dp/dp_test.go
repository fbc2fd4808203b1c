package dp

import (
	"math"
	"math/rand"
	"testing"

	"github.com/arborix/synthcore/aggregate"
	"github.com/arborix/synthcore/progress"
)

func mustAttr(t *testing.T, headers []string, pairs ...any) aggregate.Record {
	t.Helper()
	var attrs []aggregate.AttributeValue
	for i := 0; i < len(pairs); i += 2 {
		col := pairs[i].(string)
		val := pairs[i+1].(string)
		idx := -1
		for j, h := range headers {
			if h == col {
				idx = j
			}
		}
		if idx < 0 {
			t.Fatalf("unknown header %q", col)
		}
		attrs = append(attrs, aggregate.AttributeValue{Column: idx, Value: val})
	}
	r, err := aggregate.NewRecord(attrs)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	return r
}

func comboKey(t *testing.T, headers []string, pairs ...string) string {
	t.Helper()
	var attrs []aggregate.AttributeValue
	for i := 0; i < len(pairs); i += 2 {
		col := pairs[i]
		val := pairs[i+1]
		idx := -1
		for j, h := range headers {
			if h == col {
				idx = j
			}
		}
		attrs = append(attrs, aggregate.AttributeValue{Column: idx, Value: val})
	}
	c, err := aggregate.NewCombination(headers, attrs)
	if err != nil {
		t.Fatalf("NewCombination: %v", err)
	}
	return c.String(headers)
}

// buildScenarioData builds the 3-row dataset used by spec.md §8 scenarios
// 5 and 6: (a1,b1,c1,d1), (a2,b2,_,d2), (a1,_,c1,_).
func buildScenarioData(t *testing.T) (*aggregate.AggregatedData, []string) {
	t.Helper()
	headers := []string{"A", "B", "C", "D"}
	r0 := mustAttr(t, headers, "A", "a1", "B", "b1", "C", "c1", "D", "d1")
	r1 := mustAttr(t, headers, "A", "a2", "B", "b2", "D", "d2")
	r2 := mustAttr(t, headers, "A", "a1", "C", "c1")
	block, err := aggregate.NewDataBlock(headers, []aggregate.Record{r0, r1, r2})
	if err != nil {
		t.Fatalf("NewDataBlock: %v", err)
	}
	agg := &aggregate.Aggregator{Workers: 1}
	data, cancelled, err := agg.Aggregate(block, 3, progress.Noop{})
	if err != nil || cancelled {
		t.Fatalf("Aggregate: err=%v cancelled=%v", err, cancelled)
	}
	return data, headers
}

func TestNoiseAggregateCandidateUniverse(t *testing.T) {
	data, headers := buildScenarioData(t)
	allValues := data.Block.DistinctValues()
	surviving := make([]map[string]*candidate, 4)
	surviving[1] = buildCandidates(data, headers, 1, surviving, allValues)
	level2 := buildCandidates(data, headers, 2, surviving, allValues)

	want := map[[2]string]int{
		{"a1", "b1"}: 1, {"a1", "b2"}: 0, {"a1", "c1"}: 2, {"a1", "d1"}: 1, {"a1", "d2"}: 0,
		{"a2", "b1"}: 0, {"a2", "b2"}: 1, {"a2", "c1"}: 0, {"a2", "d1"}: 0, {"a2", "d2"}: 1,
		{"b1", "c1"}: 1, {"b1", "d1"}: 1, {"b1", "d2"}: 0, {"b2", "c1"}: 0, {"b2", "d1"}: 0, {"b2", "d2"}: 1,
		{"c1", "d1"}: 1, {"c1", "d2"}: 0,
	}
	colOf := map[string]string{"a1": "A", "a2": "A", "b1": "B", "b2": "B", "c1": "C", "d1": "D", "d2": "D"}
	if len(level2) != len(want) {
		t.Fatalf("got %d level-2 candidates, want %d", len(level2), len(want))
	}
	for pair, count := range want {
		key := comboKey(t, headers, colOf[pair[0]], pair[0], colOf[pair[1]], pair[1])
		c, ok := level2[key]
		if !ok {
			t.Fatalf("missing candidate %q (%v)", key, pair)
		}
		if c.count != count {
			t.Errorf("%v: count = %d, want %d", pair, c.count, count)
		}
	}
}

// TestCascadeRemoveScenario6 is spec.md §8 scenario 6.
func TestCascadeRemoveScenario6(t *testing.T) {
	data, headers := buildScenarioData(t)
	s2Before := data.Sensitivity[2][0]
	s3Before := data.Sensitivity[3][0]

	a1b1, err := aggregate.NewCombination(headers, []aggregate.AttributeValue{{Column: 0, Value: "a1"}, {Column: 1, Value: "b1"}})
	if err != nil {
		t.Fatal(err)
	}
	a2b2, err := aggregate.NewCombination(headers, []aggregate.AttributeValue{{Column: 0, Value: "a2"}, {Column: 1, Value: "b2"}})
	if err != nil {
		t.Fatal(err)
	}
	cascadeRemove(data, a1b1)
	cascadeRemove(data, a2b2)

	for _, key := range []string{
		comboKey(t, headers, "A", "a1", "B", "b1"),
		comboKey(t, headers, "A", "a1", "B", "b1", "C", "c1"),
		comboKey(t, headers, "A", "a1", "B", "b1", "D", "d1"),
		comboKey(t, headers, "A", "a2", "B", "b2", "D", "d2"),
	} {
		e, ok := data.Get(key)
		if !ok {
			t.Fatalf("missing entry %q", key)
		}
		if e.Count != 0 || len(e.Records) != 0 {
			t.Errorf("%q not fully zeroed: count=%d records=%v", key, e.Count, e.Records)
		}
	}
	if got := data.Sensitivity[2][0]; got != s2Before-1 {
		t.Errorf("S[2][0] = %d, want %d", got, s2Before-1)
	}
	if got := data.Sensitivity[3][0]; got != s3Before-2 {
		t.Errorf("S[3][0] = %d, want %d", got, s3Before-2)
	}
}

func TestPercentileQualityScoresAndSelection(t *testing.T) {
	data := []int{1, 1, 2, 3, 5, 8}
	p := NewPercentile(data)
	if p.Empty() {
		t.Fatal("Percentile reported empty for non-empty data")
	}
	scores := p.QualityScores(50)
	if len(scores) != 9 { // 0..8
		t.Fatalf("len(scores) = %d, want 9", len(scores))
	}
	rng := rand.New(rand.NewSource(1))
	v := ExponentialMechanism(scores, 1.0, rng)
	if v < 0 || v > 8 {
		t.Errorf("ExponentialMechanism returned out-of-range value %d", v)
	}
	if SelectAllowedSensitivity(nil, 50, 1.0, rng) != 0 {
		t.Errorf("SelectAllowedSensitivity on empty data should return 0")
	}
}

func TestAnalyticGaussianSigmaPositive(t *testing.T) {
	for _, eps := range []float64{0.1, 1.0, 5.0} {
		for _, delta := range []float64{1e-9, 1e-5, 0.01} {
			sigma := AnalyticGaussianSigma(1.0, eps, delta, 0)
			if sigma <= 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
				t.Errorf("eps=%g delta=%g: sigma = %g, want a finite positive value", eps, delta, sigma)
			}
		}
	}
}

func TestDefaultDeltaAndSplitRecordsBudget(t *testing.T) {
	delta, err := DefaultDelta(1000)
	if err != nil {
		t.Fatalf("DefaultDelta: %v", err)
	}
	if delta <= 0 || delta >= 1 {
		t.Errorf("delta = %g, want in (0,1)", delta)
	}
	if _, err := DefaultDelta(1); err == nil {
		t.Error("DefaultDelta(1) should error")
	}

	re, me, err := SplitRecordsBudget(1.0, 0.1)
	if err != nil {
		t.Fatalf("SplitRecordsBudget: %v", err)
	}
	if math.Abs(re+me-1.0) > 1e-12 {
		t.Errorf("re+me = %g, want 1.0", re+me)
	}
	if _, _, err := SplitRecordsBudget(1.0, 0); err == nil {
		t.Error("SplitRecordsBudget with proportion=0 should error")
	}
}

func TestProtectRecordCount(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	n, err := ProtectRecordCount(1000, 1.0, rng)
	if err != nil {
		t.Fatalf("ProtectRecordCount: %v", err)
	}
	if n <= 0 {
		t.Errorf("protected count = %d, want > 0", n)
	}
	if _, err := ProtectRecordCount(10, 0, rng); err == nil {
		t.Error("ProtectRecordCount with epsilon=0 should error")
	}
}

func TestApplySensitivityFilterPostCondition(t *testing.T) {
	data, _ := buildScenarioData(t)
	rng := rand.New(rand.NewSource(7))
	allowed := ApplySensitivityFilter(data, 2, 5.0, 50, rng)
	for r, s := range data.Sensitivity[2] {
		if s > allowed {
			t.Errorf("record %d: S[2] = %d exceeds allowed %d", r, s, allowed)
		}
	}
}

func TestMakeAggregatesNoisyProducesConsistentMap(t *testing.T) {
	data, _ := buildScenarioData(t)
	rng := rand.New(rand.NewSource(3))
	params := NoiseParams{
		Epsilon:         10.0,
		Delta:           1e-5,
		ThresholdPolicy: ThresholdFixed,
		ThresholdValue:  -1000, // keep everything, to exercise the full pipeline deterministically
	}
	MakeAggregatesNoisy(data, params, rng)
	if !data.CheckMonotonicity() {
		t.Error("monotonicity invariant violated after MakeAggregatesNoisy")
	}
	data.ForEach(func(key string, e *aggregate.Entry) {
		if len(e.Records) != 0 {
			t.Errorf("%q: noisy entries should have empty record sets, got %v", key, e.Records)
		}
	})
}
