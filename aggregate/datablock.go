package aggregate

import "fmt"

// DataBlock is an immutable, in-memory, column-indexed record store.
// It is shared by read-only reference across every aggregator chunk
// (spec.md §5's shared-resource policy): construction is the only
// mutation point.
type DataBlock struct {
	headers []string // escaped header names, in column order
	records []Record
	index   map[AttributeValue][]int // attribute value -> sorted record indices
}

// NewDataBlock builds a DataBlock from already-escaped headers and
// records, computing the attribute-rows inverted index (spec §4.1
// step 1). Headers must be unique and non-empty.
func NewDataBlock(headers []string, records []Record) (*DataBlock, error) {
	seen := make(map[string]bool, len(headers))
	for _, h := range headers {
		if h == "" {
			return nil, fmt.Errorf("data block: empty header name")
		}
		if seen[h] {
			return nil, fmt.Errorf("data block: duplicate header %q", h)
		}
		seen[h] = true
	}
	db := &DataBlock{
		headers: headers,
		records: records,
		index:   make(map[AttributeValue][]int),
	}
	for ri, rec := range records {
		for _, av := range rec.attrs {
			if av.Column < 0 || av.Column >= len(headers) {
				return nil, fmt.Errorf("data block: record %d references out-of-range column %d", ri, av.Column)
			}
			db.index[av] = append(db.index[av], ri)
		}
	}
	return db, nil
}

// Headers returns the ordered column names.
func (db *DataBlock) Headers() []string { return db.headers }

// NumColumns reports the number of declared columns.
func (db *DataBlock) NumColumns() int { return len(db.headers) }

// NumRecords reports the number of records in the block.
func (db *DataBlock) NumRecords() int { return len(db.records) }

// Record returns the record at the given zero-based index.
func (db *DataBlock) Record(i int) Record { return db.records[i] }

// Records returns every record in the block, in order. The caller must
// not mutate the returned slice.
func (db *DataBlock) Records() []Record { return db.records }

// Rows returns the sorted list of record indices containing av.
func (db *DataBlock) Rows(av AttributeValue) []int { return db.index[av] }

// Occurrences reports how many records contain av, i.e. its global
// occurrence count, used to weight attribute dropping in the
// record-attribute selector.
func (db *DataBlock) Occurrences(av AttributeValue) int { return len(db.index[av]) }

// DistinctValues returns every attribute value observed anywhere in the
// block, in unspecified order. Used by the noise aggregator to extend
// surviving combinations with attributes from columns they don't
// already use.
func (db *DataBlock) DistinctValues() []AttributeValue {
	out := make([]AttributeValue, 0, len(db.index))
	for av := range db.index {
		out = append(out, av)
	}
	return out
}

// NewDataBlockFromIndex reconstructs a DataBlock directly from its
// attribute-rows index, with no backing record slice. This is what a
// persisted aggregate artifact decodes into: the artifact never carries
// raw row data (spec.md §6), only combinations and the record indices
// that contain them, which is exactly an inverted index keyed by
// single-attribute combinations. Record(i) on the result returns an
// empty placeholder, not the original row; every other DataBlock method
// (Headers, NumRecords, Rows, Occurrences, DistinctValues) answers from
// the given index. Entries written after noise addition carry no record
// sets, so for such an artifact Rows and Occurrences report no rows.
func NewDataBlockFromIndex(headers []string, numRecords int, index map[AttributeValue][]int) *DataBlock {
	return &DataBlock{
		headers: headers,
		records: make([]Record, numRecords),
		index:   index,
	}
}

// HeaderName returns the escaped header name for a column index.
func (db *DataBlock) HeaderName(column int) string { return db.headers[column] }
