package dp

import (
	"math/rand"
	"sort"

	"github.com/arborix/synthcore/aggregate"
)

// FilterParams configures the percentile-based sensitivity filter of
// spec.md §4.4.
type FilterParams struct {
	// Percentage is the percentile used to pick the allowed
	// sensitivity for each length (the spec's "p").
	Percentage float64
	// Epsilon is the filter's total privacy budget, split evenly
	// across lengths 2..L (spec.md §4.6's "Privacy-budget split").
	Epsilon float64
}

// ApplySensitivityFilter filters combination contributions of length
// exactly length (length must be >= 2; length 1 is never filtered, per
// spec.md §4.4) down to an allowed sensitivity selected via the DP
// percentile selector, and returns that allowed sensitivity.
//
// For every record r whose sensitivity at this length exceeds the
// allowed value, it drops S[length][r]-allowed of r's length-length
// combination contributions, chosen uniformly at random without
// replacement among combinations r currently contributes to (using the
// stricter "contained-in-records non-empty" usability criterion spec.md
// §9's Open Question resolves on). Dropping a contribution decrements
// the combination's count, removes r from its record set, and
// decrements S[length][r] and S[0][r]; cascading removal of longer
// combinations containing the same attributes is left to the caller
// (the noise aggregator, whose level-by-level candidate generation
// only considers combinations still present at the parent level).
func ApplySensitivityFilter(data *aggregate.AggregatedData, length int, epsilonPerLength float64, percentage float64, rng *rand.Rand) int {
	sensitivity := data.Sensitivity[length]
	allowed := SelectAllowedSensitivity(sensitivity, percentage, epsilonPerLength, rng)

	// Snapshot which combinations of this length each record currently
	// contributes to, to sample from.
	recordCombos := make(map[int][]string)
	data.ForEach(func(key string, e *aggregate.Entry) {
		if e.Combination.Len() != length || len(e.Records) == 0 {
			return
		}
		for _, r := range e.Records {
			recordCombos[r] = append(recordCombos[r], key)
		}
	})

	for r, s := range sensitivity {
		if s <= allowed {
			continue
		}
		need := s - allowed
		candidates := recordCombos[r]
		rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
		if need > len(candidates) {
			need = len(candidates)
		}
		for _, key := range candidates[:need] {
			e, ok := data.Get(key)
			if !ok {
				continue
			}
			if removeRecordContribution(e, r) {
				data.Sensitivity[length][r]--
				data.Sensitivity[0][r]--
			}
		}
	}
	return allowed
}

// removeRecordContribution removes r from e.Records (re-checking
// membership first, since cascading removals from the noise
// aggregator or an earlier record's sampling pass can already have
// zeroed the combination) and decrements e.Count. Reports whether a
// removal actually happened.
func removeRecordContribution(e *aggregate.Entry, r int) bool {
	i := sort.SearchInts(e.Records, r)
	if i >= len(e.Records) || e.Records[i] != r {
		return false
	}
	e.Records = append(e.Records[:i], e.Records[i+1:]...)
	if e.Count > 0 {
		e.Count--
	}
	return true
}
