package lrucache

import (
	"testing"

	"github.com/arborix/synthcore/internal/combokey"
)

func key(s string) combokey.Key { return combokey.Of(s) }

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2)
	c.Put(key("a"), []int{1})
	c.Put(key("b"), []int{2})
	if _, ok := c.Get(key("a")); !ok {
		t.Fatal("expected a to still be cached")
	}
	// a is now most recently used; b is least recently used.
	c.Put(key("c"), []int{3})
	if _, ok := c.Get(key("b")); ok {
		t.Fatal("expected b to be evicted")
	}
	if _, ok := c.Get(key("a")); !ok {
		t.Fatal("expected a to survive eviction")
	}
	if _, ok := c.Get(key("c")); !ok {
		t.Fatal("expected c to be cached")
	}
}

func TestZeroCapacityDisablesCaching(t *testing.T) {
	c := New(0)
	c.Put(key("a"), []int{1})
	if _, ok := c.Get(key("a")); ok {
		t.Fatal("zero-capacity cache should never hit")
	}
}
