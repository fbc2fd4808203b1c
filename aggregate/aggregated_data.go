package aggregate

import (
	"sort"

	"golang.org/x/exp/maps"
)

// Entry is an aggregate count entry: a combination together with its
// count and the sorted set of record indices that contain it. Before
// DP noise is added, Count == len(Records) always. After noise, Count
// is the noisy value and Records is either the original record set or,
// once the combination is zeroed by DP suppression, empty — it is
// never repopulated.
type Entry struct {
	Combination Combination
	Count       int
	Records     []int // sorted, no duplicates
}

// AggregatedData is the map {combination -> aggregate count entry} plus
// the per-length, per-record sensitivity matrix. It is constructed by
// the Aggregator, mutated in place by the DP pipeline and by
// k-anonymity rounding, and consumed by the synthesizer. It is never
// observed concurrently during mutation (spec.md §5).
type AggregatedData struct {
	Block           *DataBlock
	ReportingLength int

	entries map[string]*Entry // canonical combination string -> entry

	// Sensitivity[l][r] is the number of surviving length-l
	// combinations record r contributes to, for l in [1, ReportingLength].
	// Sensitivity[0][r] is the sum across all lengths.
	Sensitivity [][]int

	// ProtectedRecordCount is the DP-protected scalar record count
	// (spec.md §3's "optionally, a DP-protected scalar record count"),
	// set by dp.ProtectRecordCount. Nil until that step runs.
	ProtectedRecordCount *int
}

// NewAggregatedData builds an empty AggregatedData over block, sized
// for reportingLength. Exported for the persist package, which
// reconstructs an AggregatedData from a serialized artifact rather than
// by running the Aggregator.
func NewAggregatedData(block *DataBlock, reportingLength int) *AggregatedData {
	return newAggregatedData(block, reportingLength)
}

func newAggregatedData(block *DataBlock, reportingLength int) *AggregatedData {
	n := block.NumRecords()
	sens := make([][]int, reportingLength+1)
	for l := range sens {
		sens[l] = make([]int, n)
	}
	return &AggregatedData{
		Block:           block,
		ReportingLength: reportingLength,
		entries:         make(map[string]*Entry),
		Sensitivity:     sens,
	}
}

// Key renders combination c's canonical string form using this data's
// headers.
func (a *AggregatedData) Key(c Combination) string { return c.String(a.Block.Headers()) }

// Get returns the entry for combination key (a canonical string, see
// Key), if present.
func (a *AggregatedData) Get(key string) (*Entry, bool) {
	e, ok := a.entries[key]
	return e, ok
}

// Set inserts or overwrites the entry for e.Combination.
func (a *AggregatedData) Set(e *Entry) {
	a.entries[a.Key(e.Combination)] = e
}

// Delete removes the entry for the given canonical key, if present.
func (a *AggregatedData) Delete(key string) {
	delete(a.entries, key)
}

// Len reports how many combinations are currently tracked.
func (a *AggregatedData) Len() int { return len(a.entries) }

// Keys returns every canonical combination key currently tracked. The
// order is unspecified (map iteration order).
func (a *AggregatedData) Keys() []string { return maps.Keys(a.entries) }

// ForEach calls fn once per entry. fn must not mutate the map directly
// (use Set/Delete); it may freely read or write through the *Entry it
// is given.
func (a *AggregatedData) ForEach(fn func(key string, e *Entry)) {
	for k, e := range a.entries {
		fn(k, e)
	}
}

// ProtectWithKAnonymity replaces each count c with floor(c/k)*k and
// deletes entries whose count becomes 0 (spec.md §4.2, testable
// property: every surviving count is a positive multiple of k).
func (a *AggregatedData) ProtectWithKAnonymity(k int) {
	if k <= 0 {
		return
	}
	for key, e := range a.entries {
		e.Count = (e.Count / k) * k
		if e.Count == 0 {
			delete(a.entries, key)
		}
	}
}

// RemoveZeroCounts deletes every entry whose count is 0.
func (a *AggregatedData) RemoveZeroCounts() {
	for key, e := range a.entries {
		if e.Count == 0 {
			delete(a.entries, key)
		}
	}
}

// AddMissingParentCombinations restores consistency after DP
// suppression may have removed a parent while leaving a child: for
// every combination c of length >= 3 present in the map, for every
// proper subset s of c of length in [2, |c|-1], if s is absent, insert
// it with count = max over all of c's parents' counts that are present
// (spec.md §4.2).
func (a *AggregatedData) AddMissingParentCombinations() {
	headers := a.Block.Headers()
	// Snapshot first: we only read existing entries while deciding
	// what to add, and only ever add (never overwrite) missing
	// combinations, so iterating the live map while inserting is safe,
	// but a snapshot keeps the "present in the map" check from seeing
	// entries we ourselves just inserted in this pass.
	existing := make(map[string]int, len(a.entries))
	for k, e := range a.entries {
		existing[k] = e.Count
	}
	best := make(map[string]int) // sub-combination key -> max parent count, for subs not in existing

	for _, e := range a.entries {
		c := e.Combination
		if c.Len() < 3 {
			continue
		}
		for _, sub := range c.Subcombinations(2, c.Len()-1) {
			key := sub.String(headers)
			if _, ok := existing[key]; ok {
				continue
			}
			if e.Count > best[key] {
				best[key] = e.Count
			}
		}
	}
	for key, count := range best {
		c, err := ParseCombination(headers, key)
		if err != nil {
			continue
		}
		a.entries[key] = &Entry{Combination: c, Count: count}
	}
}

// NormalizeNoisyCombinations enforces marginal monotonicity: for each
// combination c with some proper sub-combination s present in the map
// such that count(s) < count(c), reduce count(c) to the minimum
// count(s) over all such s (spec.md §4.2).
func (a *AggregatedData) NormalizeNoisyCombinations() {
	headers := a.Block.Headers()
	for _, e := range a.entries {
		c := e.Combination
		if c.Len() < 2 {
			continue
		}
		minSub := -1
		for _, sub := range c.Subcombinations(1, c.Len()-1) {
			subEntry, ok := a.entries[sub.String(headers)]
			if !ok {
				continue
			}
			if minSub == -1 || subEntry.Count < minSub {
				minSub = subEntry.Count
			}
		}
		if minSub != -1 && minSub < e.Count {
			e.Count = minSub
		}
	}
}

// CheckMonotonicity verifies the invariant that AddMissingParentCombinations
// followed by NormalizeNoisyCombinations must establish: for every c in
// the map and every proper sub-combination s of c also in the map,
// count(s) >= count(c). It is used by tests, not by production code.
func (a *AggregatedData) CheckMonotonicity() bool {
	headers := a.Block.Headers()
	for _, e := range a.entries {
		c := e.Combination
		for _, sub := range c.Subcombinations(1, c.Len()-1) {
			if subEntry, ok := a.entries[sub.String(headers)]; ok {
				if subEntry.Count < e.Count {
					return false
				}
			}
		}
	}
	return true
}

func sortedUniqueInts(xs []int) []int {
	cp := append([]int(nil), xs...)
	sort.Ints(cp)
	out := cp[:0]
	for i, v := range cp {
		if i == 0 || v != cp[i-1] {
			out = append(out, v)
		}
	}
	return out
}
