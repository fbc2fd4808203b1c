package aggregate

// RiskSummary is a read-only report over an AggregatedData, grounded on
// original_source's privacy_risk_summary.rs. It is purely derived from
// data the aggregator already owns and never feeds back into any DP or
// synthesis decision (SPEC_FULL.md §C.4).
type RiskSummary struct {
	// CombinationsByLength[l] is the number of distinct combinations
	// of length l currently tracked.
	CombinationsByLength map[int]int
	// TotalCountByLength[l] is the sum of counts across combinations
	// of length l.
	TotalCountByLength map[int]int
	// RecordsWithRareCombinations is the number of records that
	// contribute to at least one combination whose count is below
	// resolution.
	RecordsWithRareCombinations int
}

// Summarize computes a RiskSummary for a, treating any combination with
// count < resolution as "rare". resolution should match the
// configured k-anonymity resolution.
func Summarize(a *AggregatedData, resolution int) RiskSummary {
	s := RiskSummary{
		CombinationsByLength: make(map[int]int),
		TotalCountByLength:   make(map[int]int),
	}
	rareRecords := make(map[int]bool)
	a.ForEach(func(_ string, e *Entry) {
		l := e.Combination.Len()
		s.CombinationsByLength[l]++
		s.TotalCountByLength[l] += e.Count
		if resolution > 0 && e.Count < resolution {
			for _, r := range e.Records {
				rareRecords[r] = true
			}
		}
	})
	s.RecordsWithRareCombinations = len(rareRecords)
	return s
}
