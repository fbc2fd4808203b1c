// Package combokey derives a fixed-size, order-independent digest for a
// canonically-sorted attribute combination. It is used as the bounded
// LRU cache key during row-seeded synthesis (synthcore never mutates
// the combination itself; the digest is a pure memoization handle).
//
// Grounded on the teacher's use of SipHash-2-4 for keying split
// identifiers (splitter.go in the teacher tree).
package combokey

import (
	"encoding/binary"

	"github.com/dchest/siphash"
)

// Key is a 128-bit SipHash-2-4 digest of a canonical combination string.
type Key [16]byte

// seed0 and seed1 are a fixed, arbitrary seed pair. Determinism across runs
// is not a goal of this system (spec.md §1 Non-goals); a fixed seed
// only needs to be stable within a single process so that the same
// combination always hashes to the same cache slot.
const (
	seed0 = 0x736f6d6570736575
	seed1 = 0x646f72616e646f6d
)

// Of hashes the canonical string form of a combination
// ("h1:v1;h2:v2;...", see aggregate.Combination.String) into a Key.
func Of(canonical string) Key {
	lo, hi := siphash.Hash128(seed0, seed1, []byte(canonical))
	var k Key
	binary.LittleEndian.PutUint64(k[0:8], lo)
	binary.LittleEndian.PutUint64(k[8:16], hi)
	return k
}
