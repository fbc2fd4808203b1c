package aggregate

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arborix/synthcore/internal/workerpool"
	"github.com/arborix/synthcore/progress"
)

// Aggregator enumerates, for every record, all attribute combinations
// of length 1..L, tallies their frequency across the dataset, and
// tracks per-record sensitivity (spec.md §4.1).
//
// It is the system's only mandatorily-parallel component: it
// partitions records into Workers chunks, processes each chunk
// independently with no shared mutable state, and serially
// merge-reduces the partial results (spec.md §5). Partial results are
// commutative and associative under merge, so the final aggregated map
// does not depend on the chunking.
//
// Grounded on the teacher's sorting.threadPool fan-out
// (internal/workerpool, adapted from sorting/thread_pool.go) for the
// chunked-map-then-serial-reduce shape.
type Aggregator struct {
	// Workers is the number of chunks records are partitioned into.
	// 0 (the zero value) means runtime.NumCPU().
	Workers int

	// SensitivityThreshold is T from spec.md §4.1. 0 means no
	// attribute suppression.
	SensitivityThreshold int
}

type partial struct {
	entries     map[string]*Entry
	sensitivity [][]int
}

// Aggregate runs the aggregator over block, clamping reportingLength to
// [1, block.NumColumns()] (0 means block.NumColumns()). It reports
// progress monotonically as records are processed and returns
// cancelled=true without a usable AggregatedData if reporter signals
// Stop.
func (a *Aggregator) Aggregate(block *DataBlock, reportingLength int, reporter progress.Reporter) (data *AggregatedData, cancelled bool, err error) {
	if reporter == nil {
		reporter = progress.Noop{}
	}
	L := reportingLength
	if L <= 0 || L > block.NumColumns() {
		L = block.NumColumns()
	}
	if L < 1 {
		L = 1
	}

	result := newAggregatedData(block, L)
	n := block.NumRecords()
	if n == 0 {
		return result, false, nil
	}

	serialized := progress.NewSerialized(reporter)
	var processed int64
	var stopped atomic.Bool
	var mu sync.Mutex

	reportProgress := func() bool {
		// Holding mu across Report keeps the reported fractions in
		// increasing order when chunks finish records concurrently.
		mu.Lock()
		defer mu.Unlock()
		processed++
		frac := float64(processed) / float64(n) * 100
		if serialized.Report(frac) == progress.Stop {
			return true
		}
		return false
	}

	partials := workerpool.Map(n, a.Workers, func(start, end int) partial {
		return a.aggregateChunk(block, L, start, end, reportProgress, &stopped)
	})

	if stopped.Load() {
		return nil, true, nil
	}

	for _, p := range partials {
		mergePartial(result, p)
	}
	return result, false, nil
}

// aggregateChunk processes records [start, end) of block and returns
// the chunk's partial contribution. It has no shared mutable state
// with any other chunk's call (spec.md §5).
func (a *Aggregator) aggregateChunk(block *DataBlock, L, start, end int, reportProgress func() bool, stopped *atomic.Bool) partial {
	p := partial{
		entries:     make(map[string]*Entry),
		sensitivity: make([][]int, L+1),
	}
	for l := range p.sensitivity {
		p.sensitivity[l] = make([]int, block.NumRecords())
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(start)))
	selector := newRecordAttrSelector(L, a.SensitivityThreshold, rng)
	headers := block.Headers()

	for ri := start; ri < end; ri++ {
		if stopped.Load() {
			return p
		}
		rec := block.Record(ri)
		surviving := rec.Attrs()
		if a.SensitivityThreshold > 0 {
			surviving = selector.Select(rec, block.Occurrences)
		}
		if len(surviving) == 0 {
			if reportProgress() {
				stopped.Store(true)
				return p
			}
			continue
		}

		// surviving is already distinct-column (it's a subset of rec's
		// attrs, or rec's attrs verbatim), so this canonicalization
		// cannot fail.
		combos, _ := NewCombination(headers, surviving)
		all := AllCombinations(combos.attrs, L)
		for _, c := range all {
			key := c.String(headers)
			e, ok := p.entries[key]
			if !ok {
				e = &Entry{Combination: c}
				p.entries[key] = e
			}
			e.Count++
			e.Records = append(e.Records, ri)
			p.sensitivity[c.Len()][ri]++
			p.sensitivity[0][ri]++
		}

		if reportProgress() {
			stopped.Store(true)
			return p
		}
	}
	return p
}

// mergePartial sums counts, unions record sets, and sums sensitivity
// matrices from p into dst. This is the aggregator's serial
// merge-reduce step (spec.md §4.1 step 4).
func mergePartial(dst *AggregatedData, p partial) {
	for key, e := range p.entries {
		existing, ok := dst.entries[key]
		if !ok {
			dst.entries[key] = &Entry{
				Combination: e.Combination,
				Count:       e.Count,
				Records:     sortedUniqueInts(e.Records),
			}
			continue
		}
		existing.Count += e.Count
		existing.Records = sortedUniqueInts(append(existing.Records, e.Records...))
	}
	for l := range p.sensitivity {
		for r, v := range p.sensitivity[l] {
			dst.Sensitivity[l][r] += v
		}
	}
}
