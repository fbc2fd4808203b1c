// Package lrucache implements the bounded row-intersection cache
// described in spec.md's design notes: a pure memoization layer keyed
// by the set of (column, value) decisions made so far during row-
// seeded synthesis. It is safe to drop at any time and exists only to
// avoid re-walking the data block's inverted index on wide inputs.
//
// Eviction order is tracked with a small binary min-heap over last-use
// sequence numbers, adapted from the teacher's generic heap package
// (heap/heap.go) and specialized directly to *entry so the cache owns
// concrete intersection-row types rather than routing through a
// generic comparator closure on every access.
package lrucache

import "github.com/arborix/synthcore/internal/combokey"

// Cache is a fixed-capacity, least-recently-used cache mapping a
// combination digest to its materialized intersection row set.
type Cache struct {
	capacity int
	clock    int64
	index    map[combokey.Key]int // key -> position in heap/entries
	entries  []*entry
}

type entry struct {
	key      combokey.Key
	rows     []int
	lastUsed int64
}

// New creates a Cache with the given capacity. A non-positive capacity
// disables caching: Get always misses and Put is a no-op.
func New(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		index:    make(map[combokey.Key]int),
	}
}

// Get returns the cached row set for key, if present, bumping its
// recency. The returned slice must not be mutated by the caller.
func (c *Cache) Get(key combokey.Key) ([]int, bool) {
	if c.capacity <= 0 {
		return nil, false
	}
	pos, ok := c.index[key]
	if !ok {
		return nil, false
	}
	c.clock++
	e := c.entries[pos]
	e.lastUsed = c.clock
	c.siftDown(pos)
	c.siftUp(pos)
	return e.rows, true
}

// Put inserts or refreshes the row set for key, evicting the least
// recently used entry if the cache is at capacity.
func (c *Cache) Put(key combokey.Key, rows []int) {
	if c.capacity <= 0 {
		return
	}
	if pos, ok := c.index[key]; ok {
		c.clock++
		c.entries[pos].rows = rows
		c.entries[pos].lastUsed = c.clock
		c.siftDown(pos)
		c.siftUp(pos)
		return
	}
	if len(c.entries) >= c.capacity {
		c.evictOldest()
	}
	c.clock++
	e := &entry{key: key, rows: rows, lastUsed: c.clock}
	c.entries = append(c.entries, e)
	pos := len(c.entries) - 1
	c.index[key] = pos
	c.siftUp(pos)
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int {
	return len(c.entries)
}

func (c *Cache) evictOldest() {
	if len(c.entries) == 0 {
		return
	}
	oldest := c.entries[0]
	last := len(c.entries) - 1
	c.swap(0, last)
	c.entries = c.entries[:last]
	delete(c.index, oldest.key)
	if len(c.entries) > 0 {
		c.siftDown(0)
	}
}

func (c *Cache) swap(i, j int) {
	c.entries[i], c.entries[j] = c.entries[j], c.entries[i]
	c.index[c.entries[i].key] = i
	c.index[c.entries[j].key] = j
}

func (c *Cache) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if c.entries[p].lastUsed <= c.entries[i].lastUsed {
			break
		}
		c.swap(p, i)
		i = p
	}
}

func (c *Cache) siftDown(i int) {
	n := len(c.entries)
	for {
		left := 2*i + 1
		right := left + 1
		if left >= n {
			break
		}
		smallest := left
		if right < n && c.entries[right].lastUsed < c.entries[left].lastUsed {
			smallest = right
		}
		if c.entries[i].lastUsed <= c.entries[smallest].lastUsed {
			break
		}
		c.swap(i, smallest)
		i = smallest
	}
}
