package synth

import (
	"math/rand"

	"github.com/arborix/synthcore/aggregate"
	"github.com/arborix/synthcore/internal/combokey"
	"github.com/arborix/synthcore/internal/lrucache"
	"github.com/arborix/synthcore/progress"
)

// SynthesizeRowSeeded implements the row-seeded synthesis_mode: each
// synthetic record starts from a randomly chosen real record and keeps
// adding that record's attributes, one at a time in random order, as
// long as the combination built so far still intersects at least one
// real row and hasn't exceeded data's reporting length. cache memoizes
// row-set intersections across seeds that happen to share a prefix of
// attributes; pass nil to disable memoization.
func (s *Synthesizer) SynthesizeRowSeeded(data *aggregate.AggregatedData, cache *lrucache.Cache, targetCount int, rng *rand.Rand, reporter progress.Reporter) (records []Record, cancelled bool) {
	if reporter == nil {
		reporter = progress.Noop{}
	}
	block := data.Block
	headers := block.Headers()
	L := data.ReportingLength
	n := block.NumRecords()
	if n == 0 || targetCount <= 0 {
		return nil, false
	}
	serialized := progress.NewSerialized(reporter)

	for len(records) < targetCount {
		seed := block.Record(rng.Intn(n))
		seedAttrs := seed.Attrs()
		order := rng.Perm(len(seedAttrs))

		var attrs []aggregate.AttributeValue
		for _, idx := range order {
			if len(attrs) >= L {
				break
			}
			candidate := append(append([]aggregate.AttributeValue(nil), attrs...), seedAttrs[idx])
			combo, err := aggregate.NewCombination(headers, candidate)
			if err != nil {
				continue
			}
			if len(intersectRows(block, cache, combo)) == 0 {
				continue
			}
			attrs = candidate
		}
		if len(attrs) == 0 {
			continue
		}
		records = append(records, Record{Attrs: attrs})

		if serialized.Report(float64(len(records))/float64(targetCount)*100) == progress.Stop {
			return nil, true
		}
	}
	return records, false
}

// intersectRows returns the sorted set of record indices containing
// every attribute in combo, consulting cache first.
func intersectRows(block *aggregate.DataBlock, cache *lrucache.Cache, combo aggregate.Combination) []int {
	attrs := combo.Attrs()
	if len(attrs) == 0 {
		return nil
	}
	var key combokey.Key
	if cache != nil {
		key = combokey.Of(combo.String(block.Headers()))
		if rows, ok := cache.Get(key); ok {
			return rows
		}
	}

	rows := append([]int(nil), block.Rows(attrs[0])...)
	for _, a := range attrs[1:] {
		rows = intersectSorted(rows, block.Rows(a))
		if len(rows) == 0 {
			break
		}
	}
	if cache != nil {
		cache.Put(key, rows)
	}
	return rows
}

// intersectSorted merges two ascending, duplicate-free index slices.
func intersectSorted(a, b []int) []int {
	out := make([]int, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}
