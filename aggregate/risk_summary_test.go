package aggregate

import (
	"testing"

	"github.com/arborix/synthcore/progress"
)

func TestSummarizeCountsByLengthAndRareRecords(t *testing.T) {
	headers := []string{"A", "B"}
	mk := func(a, b string) Record {
		var attrs []AttributeValue
		if a != "" {
			attrs = append(attrs, AttributeValue{0, a})
		}
		if b != "" {
			attrs = append(attrs, AttributeValue{1, b})
		}
		r, err := NewRecord(attrs)
		if err != nil {
			t.Fatalf("NewRecord: %v", err)
		}
		return r
	}
	// record 0: a1,b1 ; record 1: a1,b1 ; record 2: a1,b2 ; record 3: a2,b1
	block, err := NewDataBlock(headers, []Record{
		mk("a1", "b1"), mk("a1", "b1"), mk("a1", "b2"), mk("a2", "b1"),
	})
	if err != nil {
		t.Fatalf("NewDataBlock: %v", err)
	}
	agg := &Aggregator{Workers: 1}
	data, cancelled, err := agg.Aggregate(block, 2, progress.Noop{})
	if err != nil || cancelled {
		t.Fatalf("Aggregate: err=%v cancelled=%v", err, cancelled)
	}

	// Length-1 combinations: a1 (count 3), a2 (count 1), b1 (count 3),
	// b2 (count 1).
	s := Summarize(data, 2)
	if s.CombinationsByLength[1] != 4 {
		t.Errorf("CombinationsByLength[1] = %d, want 4", s.CombinationsByLength[1])
	}
	if s.TotalCountByLength[1] != 8 {
		t.Errorf("TotalCountByLength[1] = %d, want 8", s.TotalCountByLength[1])
	}
	// Length-2 combinations: a1;b1 (count 2), a1;b2 (count 1), a2;b1
	// (count 1).
	if s.CombinationsByLength[2] != 3 {
		t.Errorf("CombinationsByLength[2] = %d, want 3", s.CombinationsByLength[2])
	}

	// With resolution=2, a2 and b2 (each count 1) are rare. Record 2
	// (a1,b2) and record 3 (a2,b1) each touch a rare singleton; records
	// 0 and 1 (a1,b1, both count-3 singletons and count-2 pair) do not.
	if s.RecordsWithRareCombinations != 2 {
		t.Errorf("RecordsWithRareCombinations = %d, want 2", s.RecordsWithRareCombinations)
	}
}
