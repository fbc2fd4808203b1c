package workerpool

import "testing"

func TestChunksCoversRangeExactlyOnce(t *testing.T) {
	for _, tc := range []struct{ n, workers int }{
		{0, 4}, {1, 4}, {7, 4}, {100, 4}, {3, 8}, {50, 1}, {10, 0},
	} {
		covered := make([]bool, tc.n)
		for _, r := range Chunks(tc.n, tc.workers) {
			for i := r[0]; i < r[1]; i++ {
				if covered[i] {
					t.Fatalf("n=%d workers=%d: index %d covered twice", tc.n, tc.workers, i)
				}
				covered[i] = true
			}
		}
		for i, c := range covered {
			if !c {
				t.Fatalf("n=%d workers=%d: index %d never covered", tc.n, tc.workers, i)
			}
		}
	}
}

func TestMapReturnsResultsInChunkOrder(t *testing.T) {
	n := 97
	got := Map(n, 6, func(start, end int) int {
		sum := 0
		for i := start; i < end; i++ {
			sum += i
		}
		return sum
	})
	total := 0
	for _, v := range got {
		total += v
	}
	want := n * (n - 1) / 2
	if total != want {
		t.Fatalf("sum = %d, want %d", total, want)
	}
	ranges := Chunks(n, 6)
	if len(got) != len(ranges) {
		t.Fatalf("got %d results, want %d", len(got), len(ranges))
	}
	for i, r := range ranges {
		chunkSum := 0
		for j := r[0]; j < r[1]; j++ {
			chunkSum += j
		}
		if got[i] != chunkSum {
			t.Fatalf("result %d = %d, want %d (chunk [%d, %d))", i, got[i], chunkSum, r[0], r[1])
		}
	}
}
