package dp

import (
	"fmt"
	"math"
	"math/rand"
)

// DefaultDelta returns the default δ = 1/(n·ln n) used when the caller
// doesn't configure one, matching
// original_source/.../noise_parameters.rs's delta_value_or_default
// (SPEC_FULL.md §C.2). n must be > 1 (ln n must be positive).
func DefaultDelta(n int) (float64, error) {
	if n <= 1 {
		return 0, fmt.Errorf("dp: default delta requires more than one record, got %d", n)
	}
	nf := float64(n)
	delta := 1 / (math.Log(nf) * nf)
	if delta <= 0 || delta >= 1 {
		return 0, fmt.Errorf("dp: computed delta %g is not in (0, 1)", delta)
	}
	return delta, nil
}

// SplitRecordsBudget divides totalEpsilon into a share spent protecting
// the reported record count and a remaining share for the marginals,
// per original_source's split_budget_for_records_and_marginals
// (SPEC_FULL.md §C.1). proportion must be in (0, 1).
func SplitRecordsBudget(totalEpsilon, proportion float64) (recordsEpsilon, marginalsEpsilon float64, err error) {
	if proportion <= 0 || proportion >= 1 {
		return 0, 0, fmt.Errorf("dp: number_of_records_epsilon_proportion must be in (0,1), got %g", proportion)
	}
	recordsEpsilon = proportion * totalEpsilon
	marginalsEpsilon = totalEpsilon - recordsEpsilon
	return recordsEpsilon, marginalsEpsilon, nil
}

// ProtectRecordCount adds Laplace(0, 1/epsilon) noise to n and rounds
// to the nearest integer, matching original_source's
// protect_number_of_records (SPEC_FULL.md §C.1). epsilon must be > 0.
// The result is asserted positive: a negative protected count would
// indicate a DP-construction bug (spec.md §7), not a recoverable
// condition.
func ProtectRecordCount(n int, epsilon float64, rng *rand.Rand) (int, error) {
	if epsilon <= 0 {
		return 0, fmt.Errorf("dp: number of records epsilon must be > 0, got %g", epsilon)
	}
	noisy := float64(n) + sampleLaplace(rng, 1/epsilon)
	protected := math.Round(noisy)
	if protected <= 0 {
		panic("dp: protected record count went non-positive")
	}
	return int(protected), nil
}

// sampleLaplace draws from a Laplace(0, scale) distribution using
// inverse-CDF sampling.
func sampleLaplace(rng *rand.Rand, scale float64) float64 {
	u := rng.Float64() - 0.5
	sign := 1.0
	if u < 0 {
		sign = -1.0
	}
	return -scale * sign * math.Log(1-2*math.Abs(u))
}
