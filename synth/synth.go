// Package synth implements the aggregate-seeded synthesizer: it
// consumes a (typically DP-noised) aggregate.AggregatedData and
// produces synthetic records whose marginal statistics track the
// aggregate counts, via a consolidation loop that samples attributes
// weighted by residual aggregate demand followed by a suppression pass
// that trims over-represented attributes back to a k-anonymity floor.
//
// Grounded on the teacher's single-threaded, sequentially-dependent
// planning loops (e.g. plan/optimize passes) in control-flow shape:
// unlike the aggregator, sampling here is inherently sequential, since
// each draw depends on all prior state.
package synth

import (
	"math/rand"
	"sort"

	"github.com/arborix/synthcore/aggregate"
	"github.com/arborix/synthcore/internal/numeric"
	"github.com/arborix/synthcore/progress"
)

// Record is a synthesized record: an unordered set of attribute values,
// at most one per column.
type Record struct {
	Attrs []aggregate.AttributeValue
}

// Synthesizer configures the aggregate-seeded synthesis algorithm.
type Synthesizer struct {
	// UseSyntheticCounts, if set, subtracts the synthetic marginal
	// count M[s] from a sub-combination's aggregate count when
	// weighting attribute choices, so already-well-represented
	// combinations stop attracting further samples.
	UseSyntheticCounts bool

	// OversamplingRatio bounds how far a sub-combination's synthetic
	// count may exceed its aggregate count; <= 0 disables the check.
	OversamplingRatio float64
	// OversamplingTries caps consecutive rejection-retries while
	// choosing the next attribute (the count resets whenever an
	// attribute is accepted); once exceeded, the record is stopped (not
	// discarded — whatever attributes it already accumulated are kept).
	OversamplingTries int

	// Resolution is k for the suppression phase's
	// floor(originalOccurrence/k)*k cap. <= 0 disables suppression.
	Resolution int
}

// Synthesize runs the consolidation loop against data until its
// residual attribute pool is exhausted or targetCount records have been
// emitted (targetCount <= 0 means "until residuals exhaust, once").
// Returns cancelled=true if reporter signals Stop.
func (s *Synthesizer) Synthesize(data *aggregate.AggregatedData, targetCount int, rng *rand.Rand, reporter progress.Reporter) (records []Record, cancelled bool) {
	if reporter == nil {
		reporter = progress.Noop{}
	}
	headers := data.Block.Headers()
	L := data.ReportingLength

	initialResidual := make(map[aggregate.AttributeValue]int)
	data.ForEach(func(_ string, e *aggregate.Entry) {
		if e.Combination.Len() == 1 && e.Count > 0 {
			initialResidual[e.Combination.Attrs()[0]] = e.Count
		}
	})
	residual := cloneResidual(initialResidual)
	M := make(map[string]int)

	serialized := progress.NewSerialized(reporter)

	for {
		if targetCount > 0 && len(records) >= targetCount {
			break
		}
		if len(residual) == 0 {
			if targetCount > 0 && len(records) < targetCount {
				residual = cloneResidual(initialResidual)
				M = make(map[string]int)
				if len(residual) == 0 {
					break
				}
			} else {
				break
			}
		}

		rec := s.buildRecord(data, headers, L, residual, M, rng, len(records))
		if len(rec) == 0 {
			break
		}
		records = append(records, Record{Attrs: rec})

		frac := consolidationProgress(targetCount, len(records), len(initialResidual), len(residual))
		if serialized.Report(frac) == progress.Stop {
			return nil, true
		}
	}

	records = s.suppress(data, records, rng)
	sortRecords(headers, records)
	return records, false
}

func consolidationProgress(targetCount, emitted, initialPool, remaining int) float64 {
	if targetCount > 0 {
		return float64(emitted) / float64(targetCount) * 100
	}
	if initialPool == 0 {
		return 100
	}
	return float64(initialPool-remaining) / float64(initialPool) * 100
}

func cloneResidual(m map[aggregate.AttributeValue]int) map[aggregate.AttributeValue]int {
	out := make(map[aggregate.AttributeValue]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// buildRecord grows a single synthesized record one attribute at a
// time, sampling weighted by aggregate demand, until no further
// attribute has positive weight, the oversampling retry budget is
// exhausted, or every eligible attribute has been tried and rejected.
func (s *Synthesizer) buildRecord(data *aggregate.AggregatedData, headers []string, L int, residual map[aggregate.AttributeValue]int, M map[string]int, rng *rand.Rand, recordsSoFar int) []aggregate.AttributeValue {
	var attrs []aggregate.AttributeValue
	rejected := make(map[aggregate.AttributeValue]bool)
	tries := 0

	for {
		type weighted struct {
			av aggregate.AttributeValue
			w  float64
		}
		var candidates []weighted
		for av := range residual {
			if rejected[av] || containsAttr(attrs, av) {
				continue
			}
			w := s.attributeWeight(data, headers, L, attrs, av, M, recordsSoFar)
			if w > 0 {
				candidates = append(candidates, weighted{av, w})
			}
		}
		// Draw in canonical order so a fixed RNG stream gives a
		// reproducible choice regardless of map iteration order.
		sort.Slice(candidates, func(i, j int) bool {
			a, b := candidates[i].av, candidates[j].av
			return headers[a.Column]+":"+a.Value < headers[b.Column]+":"+b.Value
		})
		if len(candidates) == 0 {
			break
		}

		weights := make([]float64, len(candidates))
		for i, c := range candidates {
			weights[i] = c.w
		}
		total := numeric.Sum(weights)
		draw := rng.Float64() * total
		var chosen aggregate.AttributeValue
		cum := 0.0
		for _, c := range candidates {
			cum += c.w
			chosen = c.av
			if draw <= cum {
				break
			}
		}

		extended := append(append([]aggregate.AttributeValue(nil), attrs...), chosen)
		if s.OversamplingRatio > 0 && !s.passesOversamplingBound(data, headers, L, extended, M) {
			rejected[chosen] = true
			tries++
			if tries > s.OversamplingTries {
				break
			}
			continue
		}

		attrs = extended
		residual[chosen]--
		if residual[chosen] <= 0 {
			delete(residual, chosen)
		}
		s.updateMarginals(headers, L, attrs, chosen, M)
		tries = 0
		rejected = make(map[aggregate.AttributeValue]bool)
	}
	return attrs
}

func containsAttr(attrs []aggregate.AttributeValue, av aggregate.AttributeValue) bool {
	for _, a := range attrs {
		if a.Column == av.Column {
			return true
		}
	}
	return false
}

// attributeWeight scores candidate av for addition to currentAttrs: the
// aggregate count of the extended combination (or, once the extended
// combination would exceed L, the attribute's own singleton count),
// optionally discounted by its synthetic marginal count so far and
// boosted the first time that marginal is used.
func (s *Synthesizer) attributeWeight(data *aggregate.AggregatedData, headers []string, L int, currentAttrs []aggregate.AttributeValue, av aggregate.AttributeValue, M map[string]int, recordsSoFar int) float64 {
	extended := append(append([]aggregate.AttributeValue(nil), currentAttrs...), av)
	lookupAttrs := extended
	if len(extended) > L {
		lookupAttrs = []aggregate.AttributeValue{av}
	}
	combo, err := aggregate.NewCombination(headers, lookupAttrs)
	if err != nil {
		return 0
	}
	key := data.Key(combo)
	e, ok := data.Get(key)
	if !ok {
		return 0
	}
	count := float64(e.Count)
	if s.UseSyntheticCounts {
		m := M[key]
		count -= float64(m)
		if count < 0 {
			return 0
		}
		if m == 0 {
			count += 2 * float64(recordsSoFar)
		}
	}
	if count <= 0 {
		return 0
	}
	return count
}

// passesOversamplingBound checks, for every sub-combination (including
// the whole extended set, if its length doesn't exceed L) with a known
// aggregate count C, that M[sub]+1 <= C*(1+ratio).
func (s *Synthesizer) passesOversamplingBound(data *aggregate.AggregatedData, headers []string, L int, extended []aggregate.AttributeValue, M map[string]int) bool {
	combo, err := aggregate.NewCombination(headers, extended)
	if err != nil {
		return true
	}
	check := func(c aggregate.Combination) bool {
		key := data.Key(c)
		e, ok := data.Get(key)
		if !ok {
			return true
		}
		return float64(M[key])+1 <= float64(e.Count)*(1+s.OversamplingRatio)
	}
	for _, sub := range combo.Subcombinations(1, L) {
		if !check(sub) {
			return false
		}
	}
	if combo.Len() <= L && !check(combo) {
		return false
	}
	return true
}

// updateMarginals increments M for every sub-combination of attrsAfter
// that includes newAttr (the only sub-combinations not already counted
// by a previous call).
func (s *Synthesizer) updateMarginals(headers []string, L int, attrsAfter []aggregate.AttributeValue, newAttr aggregate.AttributeValue, M map[string]int) {
	var prev []aggregate.AttributeValue
	for _, a := range attrsAfter {
		if a != newAttr {
			prev = append(prev, a)
		}
	}
	maxSubLen := L - 1
	if maxSubLen > len(prev) {
		maxSubLen = len(prev)
	}
	for size := 0; size <= maxSubLen; size++ {
		forEachSubset(prev, size, func(subset []aggregate.AttributeValue) {
			combined := append(append([]aggregate.AttributeValue(nil), subset...), newAttr)
			combo, err := aggregate.NewCombination(headers, combined)
			if err != nil {
				return
			}
			M[combo.String(headers)]++
		})
	}
}

// forEachSubset calls emit once per size-length subset of attrs.
func forEachSubset(attrs []aggregate.AttributeValue, size int, emit func([]aggregate.AttributeValue)) {
	if size == 0 {
		emit(nil)
		return
	}
	n := len(attrs)
	if size > n {
		return
	}
	idx := make([]int, size)
	for i := range idx {
		idx[i] = i
	}
	buf := make([]aggregate.AttributeValue, size)
	for {
		for i, p := range idx {
			buf[i] = attrs[p]
		}
		emit(buf)
		i := size - 1
		for i >= 0 && idx[i] == i+n-size {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < size; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

// suppress shuffles records and, for every attribute whose cumulative
// synthetic occurrence exceeds floor(originalOccurrence/resolution)*resolution,
// deletes it from records in shuffle order until the excess is consumed.
// Records left empty afterward are dropped.
func (s *Synthesizer) suppress(data *aggregate.AggregatedData, records []Record, rng *rand.Rand) []Record {
	if s.Resolution <= 0 || len(records) == 0 {
		return records
	}
	shuffled := make([]Record, len(records))
	perm := rng.Perm(len(records))
	for i, idx := range perm {
		shuffled[i] = records[idx]
	}

	occ := make(map[aggregate.AttributeValue]int)
	for _, r := range shuffled {
		for _, a := range r.Attrs {
			occ[a]++
		}
	}

	for av, count := range occ {
		floorVal := (data.Block.Occurrences(av) / s.Resolution) * s.Resolution
		excess := count - floorVal
		for i := range shuffled {
			if excess <= 0 {
				break
			}
			rec := &shuffled[i]
			for j, a := range rec.Attrs {
				if a == av {
					rec.Attrs = append(rec.Attrs[:j], rec.Attrs[j+1:]...)
					excess--
					break
				}
			}
		}
	}

	out := shuffled[:0]
	for _, r := range shuffled {
		if len(r.Attrs) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// sortRecords orders records by count of non-empty attributes
// (descending), then lexicographically by canonical combination string.
func sortRecords(headers []string, records []Record) {
	type keyed struct {
		rec Record
		key string
	}
	tagged := make([]keyed, len(records))
	for i, r := range records {
		k := ""
		if combo, err := aggregate.NewCombination(headers, r.Attrs); err == nil {
			k = combo.String(headers)
		}
		tagged[i] = keyed{rec: r, key: k}
	}
	sort.SliceStable(tagged, func(i, j int) bool {
		li, lj := len(tagged[i].rec.Attrs), len(tagged[j].rec.Attrs)
		if li != lj {
			return li > lj
		}
		return tagged[i].key < tagged[j].key
	})
	for i, t := range tagged {
		records[i] = t.rec
	}
}

// ToRow materializes r as a flat row of headers' length, filling columns
// without an assigned attribute with emptyValue.
func (r Record) ToRow(headers []string, emptyValue string) []string {
	row := make([]string, len(headers))
	for i := range row {
		row[i] = emptyValue
	}
	for _, a := range r.Attrs {
		row[a.Column] = a.Value
	}
	return row
}
