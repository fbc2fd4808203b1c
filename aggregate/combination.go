package aggregate

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// Combination is an ordered sequence of attribute values, canonically
// sorted by "{header_name}:{value}" so that the ordering is stable
// under header-column permutation. All column indices in a Combination
// are distinct, and its length is always in [1, L] for whatever L the
// caller enforces.
type Combination struct {
	attrs []AttributeValue
}

// NewCombination builds a canonically-sorted Combination from an
// unordered set of attribute values. headers is the owning DataBlock's
// header list, used only to compute the sort key.
func NewCombination(headers []string, attrs []AttributeValue) (Combination, error) {
	cp := slices.Clone(attrs)
	cols := make(map[int]bool, len(cp))
	for _, a := range cp {
		if cols[a.Column] {
			return Combination{}, fmt.Errorf("combination: duplicate column %d", a.Column)
		}
		cols[a.Column] = true
	}
	sortKey := func(a AttributeValue) string {
		return headers[a.Column] + ":" + a.Value
	}
	slices.SortFunc(cp, func(a, b AttributeValue) bool {
		return sortKey(a) < sortKey(b)
	})
	return Combination{attrs: cp}, nil
}

// Len reports the combination's arity.
func (c Combination) Len() int { return len(c.attrs) }

// Attrs returns the combination's attribute values in canonical order.
// The caller must not mutate the returned slice.
func (c Combination) Attrs() []AttributeValue { return c.attrs }

// Columns returns the set of column indices present in the combination.
func (c Combination) Columns() map[int]bool {
	out := make(map[int]bool, len(c.attrs))
	for _, a := range c.attrs {
		out[a.Column] = true
	}
	return out
}

// HasColumn reports whether the combination already has a value for
// column.
func (c Combination) HasColumn(column int) bool {
	for _, a := range c.attrs {
		if a.Column == column {
			return true
		}
	}
	return false
}

// String renders the combination's canonical string form,
// "h1:v1;h2:v2;...". headers and values are assumed to already be
// escaped (EscapeToken applied at ingestion), so this is pure
// concatenation.
func (c Combination) String(headers []string) string {
	var b strings.Builder
	for i, a := range c.attrs {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(headers[a.Column])
		b.WriteByte(':')
		b.WriteString(a.Value)
	}
	return b.String()
}

// ParseCombination parses a canonical combination string back into a
// Combination, given the owning DataBlock's headers (used to resolve
// header names to column indices). Round-tripping a combination
// through String and ParseCombination is the identity.
func ParseCombination(headers []string, s string) (Combination, error) {
	if s == "" {
		return Combination{}, fmt.Errorf("combination: empty string")
	}
	colByName := make(map[string]int, len(headers))
	for i, h := range headers {
		colByName[h] = i
	}
	parts := strings.Split(s, ";")
	attrs := make([]AttributeValue, 0, len(parts))
	for _, p := range parts {
		idx := strings.IndexByte(p, ':')
		if idx < 0 {
			return Combination{}, fmt.Errorf("combination: malformed term %q", p)
		}
		name, value := p[:idx], p[idx+1:]
		col, ok := colByName[name]
		if !ok {
			return Combination{}, fmt.Errorf("combination: unknown header %q", name)
		}
		attrs = append(attrs, AttributeValue{Column: col, Value: value})
	}
	return NewCombination(headers, attrs)
}

// Subcombinations yields every proper, non-empty sub-combination of c
// whose length falls in [minLen, maxLen] (inclusive), in canonical
// order within each subset. Used by add_missing_parent_combinations,
// normalize_noisy_combinations, and the synthesizer's oversampling
// check.
func (c Combination) Subcombinations(minLen, maxLen int) []Combination {
	n := c.Len()
	if maxLen > n-1 {
		maxLen = n - 1
	}
	if minLen < 1 {
		minLen = 1
	}
	var out []Combination
	for length := minLen; length <= maxLen; length++ {
		combinations(c.attrs, length, func(subset []AttributeValue) {
			cp := slices.Clone(subset)
			out = append(out, Combination{attrs: cp})
		})
	}
	return out
}

// AllCombinations yields every combination of attrs with length in
// [1, maxLen] (each already canonically sorted, since attrs is
// traversed in the canonical order established by the caller).
func AllCombinations(attrs []AttributeValue, maxLen int) []Combination {
	n := len(attrs)
	if maxLen > n {
		maxLen = n
	}
	var out []Combination
	for length := 1; length <= maxLen; length++ {
		combinations(attrs, length, func(subset []AttributeValue) {
			out = append(out, Combination{attrs: slices.Clone(subset)})
		})
	}
	return out
}

// combinations calls emit once for every length-sized subsequence of
// attrs (attrs is assumed already sorted in canonical order, so every
// subsequence emitted is itself canonically sorted).
func combinations(attrs []AttributeValue, length int, emit func([]AttributeValue)) {
	n := len(attrs)
	if length <= 0 || length > n {
		return
	}
	idx := make([]int, length)
	for i := range idx {
		idx[i] = i
	}
	buf := make([]AttributeValue, length)
	for {
		for i, p := range idx {
			buf[i] = attrs[p]
		}
		emit(buf)

		i := length - 1
		for i >= 0 && idx[i] == i+n-length {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < length; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
