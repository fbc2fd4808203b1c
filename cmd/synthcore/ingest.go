package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/arborix/synthcore/aggregate"
	"github.com/arborix/synthcore/config"
)

// readCSV reads a flat CSV file into a DataBlock, applying cfg's
// record limit, column whitelist, and sensitive-zeros columns at
// ingestion (spec.md §6). Duplicate headers are an Ingestion error
// (spec.md §7).
func readCSV(path string, cfg config.Config) (*aggregate.DataBlock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rawHeaders, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("ingestion: reading header row: %w", err)
	}

	use := make(map[string]bool, len(cfg.UseColumns))
	for _, c := range cfg.UseColumns {
		use[c] = true
	}
	sensitive := make(map[string]bool, len(cfg.SensitiveZeros))
	for _, c := range cfg.SensitiveZeros {
		sensitive[c] = true
	}

	var headers []string
	var cols []int
	for i, h := range rawHeaders {
		if len(use) > 0 && !use[h] {
			continue
		}
		headers = append(headers, aggregate.EscapeToken(h))
		cols = append(cols, i)
	}

	var records []aggregate.Record
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ingestion: reading row %d: %w", len(records)+1, err)
		}
		if cfg.RecordLimit > 0 && len(records) >= cfg.RecordLimit {
			break
		}
		var attrs []aggregate.AttributeValue
		for outCol, srcCol := range cols {
			if srcCol >= len(row) {
				return nil, fmt.Errorf("ingestion: row %d is narrower than the header row", len(records)+1)
			}
			raw := row[srcCol]
			if aggregate.IsExcluded(raw, sensitive[rawHeaders[srcCol]]) {
				continue
			}
			attrs = append(attrs, aggregate.AttributeValue{Column: outCol, Value: aggregate.EscapeToken(raw)})
		}
		rec, err := aggregate.NewRecord(attrs)
		if err != nil {
			return nil, fmt.Errorf("ingestion: row %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}

	block, err := aggregate.NewDataBlock(headers, records)
	if err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}
	return block, nil
}

// writeCSV writes synthesized records to path: the header row echoes
// the input headers, and each row is written as given, so empty
// columns must already hold the empty-value placeholder (see
// synth.Record.ToRow) (spec.md §6).
func writeCSV(path string, headers []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	unescaped := make([]string, len(headers))
	for i, h := range headers {
		unescaped[i] = aggregate.UnescapeToken(h)
	}
	if err := w.Write(unescaped); err != nil {
		return fmt.Errorf("writing header row: %w", err)
	}
	for _, row := range rows {
		out := make([]string, len(row))
		for i, v := range row {
			out[i] = aggregate.UnescapeToken(v)
		}
		if err := w.Write(out); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
