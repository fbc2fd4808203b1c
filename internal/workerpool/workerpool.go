// Package workerpool implements the bulk-parallel, data-partitioned
// fan-out/merge the aggregator needs: split N items into fixed chunks,
// process each chunk independently with no shared mutable state, and
// merge-reduce serially. There is no task queue and no work-stealing —
// chunk sizes are fixed up front, matching spec.md §5's "K configurable
// worker count" scheduling model.
//
// Adapted from the teacher's sorting.threadPool (sorting/thread_pool.go),
// which runs a condition-variable-guarded work queue for the sort
// package's recursive quicksort tasks. That queue is overkill for a
// single fixed partition-and-merge pass, so this version fans out once
// and joins by waiting on a completion channel instead of maintaining
// a live queue.
package workerpool

import "runtime"

// Chunks splits n items into contiguous, roughly equal-sized index
// ranges for workers many workers. If workers <= 0, runtime.NumCPU()
// is used. The returned ranges are [start, end) pairs covering [0, n)
// with no overlaps or gaps; len(ranges) <= workers and ranges are never
// empty.
func Chunks(n, workers int) [][2]int {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers < 1 {
		workers = 1
	}
	if n <= 0 {
		return nil
	}
	chunkSize := (n + workers - 1) / workers
	if chunkSize < 1 {
		chunkSize = 1
	}
	var ranges [][2]int
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		ranges = append(ranges, [2]int{start, end})
	}
	return ranges
}

// Map runs fn once per chunk of Chunks(n, workers) concurrently and
// returns the per-chunk results in chunk order once every goroutine has
// completed. fn must not mutate any state shared across chunks; see
// spec.md §5's shared-resource policy.
func Map[T any](n, workers int, fn func(start, end int) T) []T {
	ranges := Chunks(n, workers)
	results := make([]T, len(ranges))
	done := make(chan int, len(ranges))
	for i, r := range ranges {
		i, r := i, r
		go func() {
			results[i] = fn(r[0], r[1])
			done <- i
		}()
	}
	for range ranges {
		<-done
	}
	return results
}
