package aggregate

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Record is a set of attribute values, no two sharing a column index.
// Records are identified by their position in a DataBlock's Records
// slice (the "record index"), which is stable for the life of the
// aggregated data built from that block.
type Record struct {
	attrs []AttributeValue // sorted by Column
}

// NewRecord builds a Record from an unordered set of attribute values,
// rejecting duplicate column indices.
func NewRecord(attrs []AttributeValue) (Record, error) {
	cp := slices.Clone(attrs)
	slices.SortFunc(cp, func(a, b AttributeValue) bool { return a.Column < b.Column })
	for i := 1; i < len(cp); i++ {
		if cp[i].Column == cp[i-1].Column {
			return Record{}, fmt.Errorf("record has two values for column %d", cp[i].Column)
		}
	}
	return Record{attrs: cp}, nil
}

// Attrs returns the record's attribute values in column order. The
// caller must not mutate the returned slice.
func (r Record) Attrs() []AttributeValue { return r.attrs }

// Len reports the number of non-empty attributes in the record.
func (r Record) Len() int { return len(r.attrs) }

// Contains reports whether r has exactly av at av.Column.
func (r Record) Contains(av AttributeValue) bool {
	for _, a := range r.attrs {
		if a.Column == av.Column {
			return a.Value == av.Value
		}
	}
	return false
}

// Without returns a copy of r with the attribute at column dropped, if
// present.
func (r Record) Without(column int) Record {
	out := make([]AttributeValue, 0, len(r.attrs))
	for _, a := range r.attrs {
		if a.Column != column {
			out = append(out, a)
		}
	}
	return Record{attrs: out}
}
