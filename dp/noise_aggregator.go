package dp

import (
	"math"
	"math/rand"
	"sort"

	"github.com/arborix/synthcore/aggregate"
	"github.com/arborix/synthcore/internal/numeric"
)

// ThresholdPolicy selects how the per-level suppression threshold τ is
// derived during noise addition.
type ThresholdPolicy int

const (
	// ThresholdFixed uses a constant τ for every level.
	ThresholdFixed ThresholdPolicy = iota
	// ThresholdAdaptive scales τ by the level's noise scale σ.
	ThresholdAdaptive
	// ThresholdMaxFabrication picks the smallest τ that keeps the
	// number of surviving fabricated (count-0-in-input) candidates
	// within a fraction of the level's candidate universe size.
	ThresholdMaxFabrication
)

// NoiseParams configures make_aggregates_noisy.
type NoiseParams struct {
	Epsilon   float64
	Delta     float64
	Tolerance float64 // 0 means DefaultTolerance

	// SigmaProportions, if non-nil, must have ReportingLength entries
	// summing to 1 and gives each level's share of Epsilon for noise
	// addition. Nil means an even split across levels (the Open
	// Question in DESIGN.md's "sigma_proportions" entry).
	SigmaProportions []float64

	ThresholdPolicy ThresholdPolicy
	ThresholdValue  float64

	// Filter, if non-nil, runs the percentile sensitivity filter for
	// every level >= 2 before noise is added at that level.
	Filter *FilterParams
}

// candidate is a tentative combination considered during one level of
// noise addition: its noisy count, and whether it was absent from the
// working aggregated data before noise was added (a "fabricated"
// candidate, per the max-fabrication threshold policy).
type candidate struct {
	combo      aggregate.Combination
	count      int
	fabricated bool
}

// MakeAggregatesNoisy runs the level-by-level noise-addition and
// suppression pipeline over data in place: for each length 1..L it
// optionally filters sensitivity, builds the candidate universe, adds
// analytic-Gaussian noise, applies the threshold policy, and cascades
// removal of any combination whose ancestor candidate was suppressed.
// After all levels it replaces data's combination map with the union of
// surviving per-level candidates and re-establishes marginal
// consistency.
func MakeAggregatesNoisy(data *aggregate.AggregatedData, params NoiseParams, rng *rand.Rand) {
	L := data.ReportingLength
	if L < 1 {
		return
	}
	headers := data.Block.Headers()
	sigmaEps := splitSigmaEpsilon(params.SigmaProportions, params.Epsilon, L)

	var filterEpsPerLength float64
	if params.Filter != nil && L > 1 {
		filterEpsPerLength = params.Filter.Epsilon / float64(L-1)
	}

	allValues := data.Block.DistinctValues()
	surviving := make([]map[string]*candidate, L+1)

	for l := 1; l <= L; l++ {
		if params.Filter != nil && l >= 2 {
			ApplySensitivityFilter(data, l, filterEpsPerLength, params.Filter.Percentage, rng)
		}
		maxSensitivity, _ := numeric.Max(data.Sensitivity[l])

		candidates := buildCandidates(data, headers, l, surviving, allValues)

		delta2 := math.Sqrt(float64(maxSensitivity))
		sigma := AnalyticGaussianSigma(delta2, sigmaEps[l-1], params.Delta, params.Tolerance)
		for _, c := range candidates {
			c.count = int(math.Round(float64(c.count) + rng.NormFloat64()*sigma))
		}

		tau := levelThreshold(params, candidates, sigma)

		levelSurvivors := make(map[string]*candidate, len(candidates))
		for key, c := range candidates {
			if c.count < tau {
				cascadeRemove(data, c.combo)
				continue
			}
			levelSurvivors[key] = c
		}
		surviving[l] = levelSurvivors
	}

	rebuildFromSurviving(data, surviving)
	data.RemoveZeroCounts()
	data.AddMissingParentCombinations()
	data.NormalizeNoisyCombinations()
}

// buildCandidates constructs the candidate universe for level l: every
// original single-attribute combination for l == 1, or the cartesian
// extension of level l-1's survivors with every distinct attribute
// value from a column not already used, retaining only extensions whose
// intermediate sub-combinations all survived their own level.
func buildCandidates(data *aggregate.AggregatedData, headers []string, l int, surviving []map[string]*candidate, allValues []aggregate.AttributeValue) map[string]*candidate {
	candidates := make(map[string]*candidate)
	if l == 1 {
		data.ForEach(func(key string, e *aggregate.Entry) {
			if e.Combination.Len() != 1 || e.Count <= 0 {
				return
			}
			candidates[key] = &candidate{combo: e.Combination, count: e.Count}
		})
		return candidates
	}

	for _, prev := range surviving[l-1] {
		usedCols := prev.combo.Columns()
		for _, av := range allValues {
			if usedCols[av.Column] {
				continue
			}
			attrs := append(append([]aggregate.AttributeValue(nil), prev.combo.Attrs()...), av)
			combo, err := aggregate.NewCombination(headers, attrs)
			if err != nil {
				continue
			}
			key := combo.String(headers)
			if _, exists := candidates[key]; exists {
				continue
			}
			if !intermediateSubcombinationsSurvived(combo, surviving) {
				continue
			}
			count := 0
			fabricated := true
			if e, ok := data.Get(key); ok {
				count = e.Count
				fabricated = false
			}
			candidates[key] = &candidate{combo: combo, count: count, fabricated: fabricated}
		}
	}
	return candidates
}

// intermediateSubcombinationsSurvived reports whether every proper
// sub-combination of combo with length in [2, combo.Len()-1] is present
// in that length's surviving map.
func intermediateSubcombinationsSurvived(combo aggregate.Combination, surviving []map[string]*candidate) bool {
	maxSub := combo.Len() - 1
	if maxSub < 2 {
		return true
	}
	for _, sub := range combo.Subcombinations(2, maxSub) {
		lvl := surviving[sub.Len()]
		if lvl == nil {
			return false
		}
		found := false
		for _, c := range lvl {
			if sameCombination(c.combo, sub) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func sameCombination(a, b aggregate.Combination) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i, av := range a.Attrs() {
		if b.Attrs()[i] != av {
			return false
		}
	}
	return true
}

// levelThreshold picks τ_ℓ per the configured ThresholdPolicy.
func levelThreshold(params NoiseParams, candidates map[string]*candidate, sigma float64) int {
	switch params.ThresholdPolicy {
	case ThresholdAdaptive:
		return int(math.Round(sigma * params.ThresholdValue))
	case ThresholdMaxFabrication:
		return maxFabricationThreshold(candidates, params.ThresholdValue)
	default:
		return int(math.Round(params.ThresholdValue))
	}
}

// maxFabricationThreshold returns the smallest τ such that at most
// floor(len(candidates) * thresholdValue) fabricated candidates have
// count >= τ.
func maxFabricationThreshold(candidates map[string]*candidate, thresholdValue float64) int {
	maxAllowed := int(math.Floor(float64(len(candidates)) * thresholdValue))
	var fabCounts []int
	for _, c := range candidates {
		if c.fabricated {
			fabCounts = append(fabCounts, c.count)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(fabCounts)))
	if maxAllowed >= len(fabCounts) {
		return math.MinInt32
	}
	return fabCounts[maxAllowed] + 1
}

// cascadeRemove zeroes every combination in data that contains all of
// combo's attributes, decrementing the sensitivity matrix for each
// record that had contributed to it before its record set is cleared.
func cascadeRemove(data *aggregate.AggregatedData, combo aggregate.Combination) {
	target := combo.Attrs()
	data.ForEach(func(_ string, e *aggregate.Entry) {
		if len(e.Records) == 0 && e.Count == 0 {
			return
		}
		if !combinationContainsAll(e.Combination, target) {
			return
		}
		l := e.Combination.Len()
		for _, r := range e.Records {
			data.Sensitivity[l][r]--
			data.Sensitivity[0][r]--
		}
		e.Count = 0
		e.Records = nil
	})
}

func combinationContainsAll(e aggregate.Combination, attrs []aggregate.AttributeValue) bool {
	set := make(map[aggregate.AttributeValue]bool, e.Len())
	for _, a := range e.Attrs() {
		set[a] = true
	}
	for _, a := range attrs {
		if !set[a] {
			return false
		}
	}
	return true
}

// rebuildFromSurviving discards data's current combination map and
// replaces it with the union of every level's surviving candidates,
// with noisy integer counts and empty record sets (noise addition
// forfeits per-record provenance).
func rebuildFromSurviving(data *aggregate.AggregatedData, surviving []map[string]*candidate) {
	for _, key := range data.Keys() {
		data.Delete(key)
	}
	for _, level := range surviving {
		for _, c := range level {
			data.Set(&aggregate.Entry{Combination: c.combo, Count: c.count, Records: nil})
		}
	}
}

// splitSigmaEpsilon divides totalEpsilon across L levels per
// proportions (if it has exactly L entries), or evenly otherwise.
func splitSigmaEpsilon(proportions []float64, totalEpsilon float64, L int) []float64 {
	out := make([]float64, L)
	if len(proportions) == L {
		for i, p := range proportions {
			out[i] = p * totalEpsilon
		}
		return out
	}
	even := totalEpsilon / float64(L)
	for i := range out {
		out[i] = even
	}
	return out
}
