// Package dp implements the differential-privacy pipeline: the
// percentile selector and exponential mechanism (spec.md §4.3), the
// sensitivity filter (§4.4), the analytic Gaussian engine (§4.5), the
// noise aggregator (§4.6), and DP record-count protection
// (SPEC_FULL.md §C.1).
//
// Grounded on the teacher's internal/percentile package in structure
// and doc-comment register (a small, self-contained numerical package
// with no dependency on the rest of the tree), though the algorithm
// itself is not the teacher's streaming t-digest: spec.md's percentile
// selector needs an *exact* rank over a bounded integer multiset to
// drive its quality-score table, which is a different shape of problem
// than online quantile approximation. See DESIGN.md.
package dp

import (
	"math"
	"math/rand"
	"sort"

	"github.com/arborix/synthcore/internal/numeric"
)

// Percentile selects positive integers from a bounded multiset using
// differentially-private percentiles (spec.md §4.3). data is the
// multiset D of n non-negative integers in [0, M]; M is taken to be
// max(data), matching original_source/.../percentile.rs.
type Percentile struct {
	sorted []int // ascending
	maxIdx map[int]int
	last   int // max(data), i.e. M
}

// NewPercentile builds a Percentile selector over data.
func NewPercentile(data []int) *Percentile {
	p := &Percentile{}
	if len(data) == 0 {
		return p
	}
	p.sorted = append([]int(nil), data...)
	sort.Ints(p.sorted)
	p.maxIdx = make(map[int]int, len(p.sorted))
	for i, v := range p.sorted {
		p.maxIdx[v] = i // last occurrence wins since we scan ascending index order
	}
	p.last = p.sorted[len(p.sorted)-1]
	return p
}

// Empty reports whether the selector was built from no data.
func (p *Percentile) Empty() bool { return len(p.sorted) == 0 }

// percentileValue returns q = floor(the p-th percentile of the sorted
// data) using linear interpolation between closest ranks (the standard
// "nearest-rank with interpolation" definition), and the largest index
// in the sorted data with value <= q.
func (p *Percentile) percentileValue(percentage float64) (q, idx int) {
	n := len(p.sorted)
	if n == 1 {
		return p.sorted[0], 0
	}
	// Linear interpolation between closest ranks, 0-indexed.
	rank := percentage / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if hi >= n {
		hi = n - 1
	}
	frac := rank - float64(lo)
	interp := float64(p.sorted[lo]) + frac*float64(p.sorted[hi]-p.sorted[lo])
	q = int(math.Floor(interp))

	// Largest index with sorted[i] <= q.
	idx = sort.Search(n, func(i int) bool { return p.sorted[i] > q }) - 1
	idx = numeric.Clamp(idx, 0, n-1)
	return q, idx
}

// QualityScores returns the quality score for every candidate value in
// [0, M], indexed by value (scores[v] is the score for v). Implements
// spec.md §4.3's scoring rules, resolved at the v == M boundary per
// original_source (SPEC_FULL.md §C.3): the last index takes the
// "ceil(n * (1-p/100))" score whether or not M is itself present in D,
// except when M equals q, in which case it scores 0 like any v == q.
func (p *Percentile) QualityScores(percentage float64) []float64 {
	if p.Empty() {
		return nil
	}
	q, idx := p.percentileValue(percentage)
	n := float64(len(p.sorted))
	propLow := percentage / 100
	propHigh := 1 - propLow

	scores := make([]float64, p.last+1)
	var lastProcessed float64
	haveLast := false

	for v := 0; v <= p.last; v++ {
		var raw float64 // positive "distance" magnitude before negation
		switch {
		case v == q:
			scores[v] = 0
			lastProcessed = 0
			haveLast = true
			continue
		case v == p.last:
			raw = math.Ceil(n * propHigh)
		case v < q:
			if maxIdx, ok := p.maxIdx[v]; ok {
				raw = float64(idx - maxIdx)
			} else if haveLast {
				raw = math.Max(lastProcessed, 1)
			} else {
				raw = math.Ceil(n * propLow)
			}
		default: // v > q, v != last
			if maxIdx, ok := p.maxIdx[v]; ok {
				raw = float64(maxIdx - idx)
			} else if haveLast {
				raw = math.Max(lastProcessed, 1)
			} else {
				raw = math.Ceil(n * propLow)
			}
		}
		scores[v] = -raw
		lastProcessed = raw
		haveLast = true
	}
	return scores
}

// ExponentialMechanism samples v* = argmax_v score(v) + Exp(rate=eps/2)
// over scores (indexed by candidate value), using rng as the noise
// source. Returns 0 if scores is empty.
func ExponentialMechanism(scores []float64, eps float64, rng *rand.Rand) int {
	if len(scores) == 0 {
		return 0
	}
	best := 0
	bestScore := math.Inf(-1)
	for v, s := range scores {
		noisy := s + sampleExp(rng, eps/2)
		if noisy > bestScore {
			bestScore = noisy
			best = v
		}
	}
	return best
}

// sampleExp draws from an Exponential distribution with the given
// rate (mean 1/rate) using inverse-CDF sampling.
func sampleExp(rng *rand.Rand, rate float64) float64 {
	if rate <= 0 {
		return 0
	}
	u := rng.Float64()
	for u == 0 {
		u = rng.Float64()
	}
	return -math.Log(u) / rate
}

// SelectAllowedSensitivity runs the full percentile-selection pipeline
// of spec.md §4.3 over data with percentage p and privacy parameter
// eps, returning 0 if data is empty.
func SelectAllowedSensitivity(data []int, percentage, eps float64, rng *rand.Rand) int {
	p := NewPercentile(data)
	if p.Empty() {
		return 0
	}
	scores := p.QualityScores(percentage)
	return ExponentialMechanism(scores, eps, rng)
}
