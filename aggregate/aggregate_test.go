package aggregate

import (
	"sort"
	"testing"

	"github.com/arborix/synthcore/progress"
)

func mustRecord(t *testing.T, attrs ...AttributeValue) Record {
	t.Helper()
	r, err := NewRecord(attrs)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	return r
}

// TestMinimalAggregation is spec.md §8 scenario 1.
func TestMinimalAggregation(t *testing.T) {
	headers := []string{"A", "B", "C"}
	r1 := mustRecord(t, AttributeValue{0, "a1"}, AttributeValue{1, "b1"}, AttributeValue{2, "c1"})
	r2 := mustRecord(t, AttributeValue{0, "a1"}, AttributeValue{1, "b2"})
	block, err := NewDataBlock(headers, []Record{r1, r2})
	if err != nil {
		t.Fatalf("NewDataBlock: %v", err)
	}

	agg := &Aggregator{Workers: 1}
	data, cancelled, err := agg.Aggregate(block, 2, progress.Noop{})
	if err != nil || cancelled {
		t.Fatalf("Aggregate: err=%v cancelled=%v", err, cancelled)
	}

	want := map[string]int{
		"A:a1": 2, "B:b1": 1, "B:b2": 1, "C:c1": 1,
		"A:a1;B:b1": 1, "A:a1;B:b2": 1, "A:a1;C:c1": 1, "B:b1;C:c1": 1,
	}
	if data.Len() != len(want) {
		got := data.Keys()
		sort.Strings(got)
		t.Fatalf("got %d entries %v, want %d", data.Len(), got, len(want))
	}
	for key, count := range want {
		e, ok := data.Get(key)
		if !ok {
			t.Fatalf("missing entry %q", key)
		}
		if e.Count != count {
			t.Errorf("entry %q: count = %d, want %d", key, e.Count, count)
		}
		if len(e.Records) != e.Count {
			t.Errorf("entry %q: len(Records) = %d != Count %d", key, len(e.Records), e.Count)
		}
	}

	if got := data.Sensitivity[1]; !(got[0] == 3 && got[1] == 2) {
		t.Errorf("S[1] = %v, want [3 2]", got)
	}
	if got := data.Sensitivity[2]; !(got[0] == 3 && got[1] == 1) {
		t.Errorf("S[2] = %v, want [3 1]", got)
	}
	if got := data.Sensitivity[0]; !(got[0] == 6 && got[1] == 3) {
		t.Errorf("S[0] = %v, want [6 3]", got)
	}
}

// TestAggregatorInvariant checks the universal invariant from spec.md
// §8: every (c, n, R) has n == |R| and every r in R actually contains c.
func TestAggregatorInvariant(t *testing.T) {
	headers := []string{"A", "B", "C", "D"}
	var records []Record
	vals := [][4]string{
		{"a1", "b1", "c1", "d1"},
		{"a2", "b2", "", "d2"},
		{"a1", "", "c1", ""},
		{"a2", "b1", "c2", "d1"},
	}
	for _, v := range vals {
		var attrs []AttributeValue
		for col, val := range v {
			if val == "" {
				continue
			}
			attrs = append(attrs, AttributeValue{col, val})
		}
		records = append(records, mustRecord(t, attrs...))
	}
	block, err := NewDataBlock(headers, records)
	if err != nil {
		t.Fatalf("NewDataBlock: %v", err)
	}
	agg := &Aggregator{Workers: 3}
	data, cancelled, err := agg.Aggregate(block, 3, progress.Noop{})
	if err != nil || cancelled {
		t.Fatalf("Aggregate: err=%v cancelled=%v", err, cancelled)
	}
	data.ForEach(func(key string, e *Entry) {
		if len(e.Records) != e.Count {
			t.Errorf("%s: count %d != |records| %d", key, e.Count, len(e.Records))
		}
		for _, r := range e.Records {
			rec := block.Record(r)
			for _, av := range e.Combination.Attrs() {
				if !rec.Contains(av) {
					t.Errorf("%s: record %d does not contain %v", key, r, av)
				}
			}
		}
	})
}

// TestAggregatorWorkerCountInvariant is spec.md §8's parallelism
// order-independence property.
func TestAggregatorWorkerCountInvariant(t *testing.T) {
	headers := []string{"A", "B", "C"}
	var records []Record
	for i := 0; i < 50; i++ {
		a := "a" + string(rune('0'+i%3))
		b := "b" + string(rune('0'+i%5))
		records = append(records, mustRecord(t, AttributeValue{0, a}, AttributeValue{1, b}))
	}
	block, err := NewDataBlock(headers, records)
	if err != nil {
		t.Fatalf("NewDataBlock: %v", err)
	}

	one := &Aggregator{Workers: 1}
	d1, _, err := one.Aggregate(block, 2, progress.Noop{})
	if err != nil {
		t.Fatal(err)
	}
	many := &Aggregator{Workers: 8}
	d2, _, err := many.Aggregate(block, 2, progress.Noop{})
	if err != nil {
		t.Fatal(err)
	}
	if d1.Len() != d2.Len() {
		t.Fatalf("entry count differs: %d vs %d", d1.Len(), d2.Len())
	}
	d1.ForEach(func(key string, e *Entry) {
		e2, ok := d2.Get(key)
		if !ok || e2.Count != e.Count {
			t.Errorf("key %s: %v vs %v", key, e, e2)
		}
	})
	for l := range d1.Sensitivity {
		for r := range d1.Sensitivity[l] {
			if d1.Sensitivity[l][r] != d2.Sensitivity[l][r] {
				t.Errorf("sensitivity[%d][%d] differs: %d vs %d", l, r, d1.Sensitivity[l][r], d2.Sensitivity[l][r])
			}
		}
	}
}

// TestKAnonymityRounding is spec.md §8 scenario 2.
func TestKAnonymityRounding(t *testing.T) {
	headers := []string{"A"}
	a := newAggregatedData(mustBlock(t, headers, 0), 1)
	a.Set(&Entry{Combination: mustCombo(t, headers, AttributeValue{0, "a1"}), Count: 5})
	a.Set(&Entry{Combination: mustCombo(t, headers, AttributeValue{0, "a2"}), Count: 3})
	a.ProtectWithKAnonymity(4)
	if a.Len() != 1 {
		t.Fatalf("len = %d, want 1", a.Len())
	}
	e, ok := a.Get("A:a1")
	if !ok || e.Count != 4 {
		t.Fatalf("A:a1 = %v", e)
	}
	if _, ok := a.Get("A:a2"); ok {
		t.Fatalf("A:a2 should have been deleted")
	}
}

// TestAddMissingParentCombinations is spec.md §8 scenario 3.
func TestAddMissingParentCombinations(t *testing.T) {
	headers := []string{"A", "B", "C"}
	a := newAggregatedData(mustBlock(t, headers, 0), 3)
	a.Set(&Entry{Combination: mustCombo(t, headers, AttributeValue{0, "a1"}), Count: 10})
	a.Set(&Entry{Combination: mustCombo(t, headers, AttributeValue{1, "b1"}), Count: 8})
	a.Set(&Entry{Combination: mustCombo(t, headers,
		AttributeValue{0, "a1"}, AttributeValue{1, "b1"}, AttributeValue{2, "c1"}), Count: 5})

	a.AddMissingParentCombinations()

	for _, key := range []string{"A:a1;B:b1", "A:a1;C:c1", "B:b1;C:c1"} {
		e, ok := a.Get(key)
		if !ok {
			t.Fatalf("missing %q", key)
		}
		if e.Count != 5 {
			t.Errorf("%q count = %d, want 5", key, e.Count)
		}
	}
}

// TestNormalizeNoisyCombinations is spec.md §8 scenario 4.
func TestNormalizeNoisyCombinations(t *testing.T) {
	headers := []string{"A", "B", "C1", "C2"}
	a := newAggregatedData(mustBlock(t, headers, 0), 3)
	a.Set(&Entry{Combination: mustCombo(t, headers, AttributeValue{0, "a1"}, AttributeValue{1, "b1"}), Count: 25})
	a.Set(&Entry{Combination: mustCombo(t, headers, AttributeValue{0, "a1"}, AttributeValue{1, "b1"}, AttributeValue{2, "c1"}), Count: 30})
	a.Set(&Entry{Combination: mustCombo(t, headers, AttributeValue{0, "a1"}, AttributeValue{1, "b1"}, AttributeValue{3, "c2"}), Count: 40})

	a.NormalizeNoisyCombinations()

	want := map[string]int{"A:a1;B:b1": 25, "A:a1;B:b1;C1:c1": 25, "A:a1;B:b1;C2:c2": 25}
	for key, count := range want {
		e, ok := a.Get(key)
		if !ok || e.Count != count {
			t.Errorf("%q = %v, want %d", key, e, count)
		}
	}
	if !a.CheckMonotonicity() {
		t.Errorf("monotonicity invariant violated after normalize")
	}
}

func mustBlock(t *testing.T, headers []string, nrec int) *DataBlock {
	t.Helper()
	b, err := NewDataBlock(headers, make([]Record, nrec))
	if err != nil {
		t.Fatalf("NewDataBlock: %v", err)
	}
	return b
}

func mustCombo(t *testing.T, headers []string, attrs ...AttributeValue) Combination {
	t.Helper()
	c, err := NewCombination(headers, attrs)
	if err != nil {
		t.Fatalf("NewCombination: %v", err)
	}
	return c
}

func TestCombinationStringRoundTrip(t *testing.T) {
	headers := []string{"A", "B", "C"}
	escaped := AttributeValue{2, EscapeToken("v;with:reserved")}
	c := mustCombo(t, headers, escaped, AttributeValue{0, "a1"})
	s := c.String(headers)
	back, err := ParseCombination(headers, s)
	if err != nil {
		t.Fatalf("ParseCombination: %v", err)
	}
	if back.String(headers) != s {
		t.Errorf("round trip mismatch: %q vs %q", back.String(headers), s)
	}
}
