package dp

import "math"

// DefaultTolerance is the default binary-search tolerance used to
// calculate sigma for the Gaussian noise, matching
// original_source/.../analytic_gaussian.rs's DEFAULT_TOLERANCE.
const DefaultTolerance = 1e-8

// stdNormalCDF is Φ, the standard normal CDF.
func stdNormalCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// binarySearch finds x in [lower, upper] such that f crosses between
// f(lower) and f(upper), narrowing to within tolerance. f(lower) and
// f(upper) must differ; panics otherwise (broken invariant, spec.md
// §7: the analytic-Gaussian solver is asserted to bracket for valid
// epsilon/delta).
func binarySearch(f func(float64) bool, lower, upper, tolerance float64) float64 {
	lowerRes := f(lower)
	upperRes := f(upper)
	if lowerRes == upperRes {
		panic("dp: analytic Gaussian binary search failed to bracket a root")
	}
	for upper-lower > tolerance {
		mid := lower + (upper-lower)/2
		if f(mid) == upperRes {
			upper = mid
		} else {
			lower = mid
		}
	}
	if upperRes {
		return upper
	}
	return lower
}

// calcAlphaIncreasingBeta implements spec.md §4.5's first branch: find
// v* such that Φ(√(εv)) − e^ε·Φ(−√(ε(v+2))) ≤ δ, then
// α = √(1+v*/2) − √(v*/2).
func calcAlphaIncreasingBeta(epsilon, delta, tolerance float64) float64 {
	beta := func(v float64) float64 {
		return stdNormalCDF(math.Sqrt(epsilon*v)) - math.Exp(epsilon)*stdNormalCDF(-math.Sqrt(epsilon*(v+2)))
	}
	upper := 2.0
	for beta(upper) <= delta {
		upper *= 2
	}
	vStar := binarySearch(func(v float64) bool { return beta(v) <= delta }, 0, upper, tolerance)
	return math.Sqrt(1+vStar/2) - math.Sqrt(vStar/2)
}

// calcAlphaDecreasingBeta implements spec.md §4.5's second branch,
// symmetric to calcAlphaIncreasingBeta: α = √(1+u*/2) + √(u*/2).
func calcAlphaDecreasingBeta(epsilon, delta, tolerance float64) float64 {
	beta := func(u float64) float64 {
		return stdNormalCDF(-math.Sqrt(epsilon*u)) - math.Exp(epsilon)*stdNormalCDF(-math.Sqrt(epsilon*(u+2)))
	}
	upper := 2.0
	for beta(upper) >= delta {
		upper *= 2
	}
	uStar := binarySearch(func(u float64) bool { return beta(u) <= delta }, 0, upper, tolerance)
	return math.Sqrt(1+uStar/2) + math.Sqrt(uStar/2)
}

// AnalyticGaussianSigma computes σ for the (ε, δ)-DP analytic Gaussian
// mechanism with L2-sensitivity delta2 (spec.md §4.5).
func AnalyticGaussianSigma(delta2, epsilon, delta, tolerance float64) float64 {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	delta0 := stdNormalCDF(0) - math.Exp(epsilon)*stdNormalCDF(-math.Sqrt(2*epsilon))
	var alpha float64
	if delta >= delta0 {
		alpha = calcAlphaIncreasingBeta(epsilon, delta, tolerance)
	} else {
		alpha = calcAlphaDecreasingBeta(epsilon, delta, tolerance)
	}
	return alpha * delta2 / math.Sqrt(2*epsilon)
}
