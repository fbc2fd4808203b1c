// Package persist encodes and decodes the self-describing aggregate
// artifact that passes between the DP pipeline and the synthesizer
// (spec.md §6): headers, reporting length, every combination's count
// and sorted record set, and the per-length sensitivity matrix.
//
// Grounded on the teacher's ion/blockfmt package (zstd-compressed,
// checksummed blob encoding) for the envelope shape, and on fsenv.go's
// use of blake2b for content checksums. Wide inputs can produce
// millions of combinations, so the serialized body is zstd-compressed
// before it ever touches disk or a wire.
package persist

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"

	"github.com/arborix/synthcore/aggregate"
)

// magic identifies the artifact envelope and its wire version.
var magic = [8]byte{'s', 'y', 'n', 't', 'h', 'c', 'o', 1}

// checksumSize is the length of a BLAKE2b-256 digest.
const checksumSize = 32

// Encode writes data's self-describing artifact to w: a short header
// (magic, a fresh run UUID, and a BLAKE2b-256 checksum of the
// serialized body) followed by the zstd-compressed body. It returns the
// run UUID it stamped the artifact with.
func Encode(data *aggregate.AggregatedData, w io.Writer) (uuid.UUID, error) {
	body := serialize(data)

	sum := blake2b.Sum256(body)
	runID := uuid.New()

	if _, err := w.Write(magic[:]); err != nil {
		return uuid.Nil, fmt.Errorf("persist: writing magic: %w", err)
	}
	runIDBytes, err := runID.MarshalBinary()
	if err != nil {
		return uuid.Nil, fmt.Errorf("persist: marshaling run id: %w", err)
	}
	if _, err := w.Write(runIDBytes); err != nil {
		return uuid.Nil, fmt.Errorf("persist: writing run id: %w", err)
	}
	if _, err := w.Write(sum[:]); err != nil {
		return uuid.Nil, fmt.Errorf("persist: writing checksum: %w", err)
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return uuid.Nil, fmt.Errorf("persist: creating zstd writer: %w", err)
	}
	if _, err := enc.Write(body); err != nil {
		enc.Close()
		return uuid.Nil, fmt.Errorf("persist: compressing body: %w", err)
	}
	if err := enc.Close(); err != nil {
		return uuid.Nil, fmt.Errorf("persist: closing zstd writer: %w", err)
	}
	return runID, nil
}

// Decode reads an artifact written by Encode, verifying its checksum
// before reconstructing the AggregatedData. The returned AggregatedData's
// Block has no backing row data (see aggregate.NewDataBlockFromIndex) —
// an artifact only carries combinations, not raw records.
func Decode(r io.Reader) (*aggregate.AggregatedData, uuid.UUID, error) {
	var gotMagic [8]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil {
		return nil, uuid.Nil, fmt.Errorf("persist: reading magic: %w", err)
	}
	if gotMagic != magic {
		return nil, uuid.Nil, fmt.Errorf("persist: not a synthcore aggregate artifact (bad magic)")
	}
	runIDBytes := make([]byte, 16)
	if _, err := io.ReadFull(r, runIDBytes); err != nil {
		return nil, uuid.Nil, fmt.Errorf("persist: reading run id: %w", err)
	}
	runID, err := uuid.FromBytes(runIDBytes)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("persist: parsing run id: %w", err)
	}
	wantSum := make([]byte, checksumSize)
	if _, err := io.ReadFull(r, wantSum); err != nil {
		return nil, uuid.Nil, fmt.Errorf("persist: reading checksum: %w", err)
	}

	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("persist: creating zstd reader: %w", err)
	}
	defer dec.Close()
	body, err := io.ReadAll(dec)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("persist: decompressing body: %w", err)
	}

	gotSum := blake2b.Sum256(body)
	if !bytes.Equal(gotSum[:], wantSum) {
		return nil, uuid.Nil, fmt.Errorf("persist: checksum mismatch, artifact is corrupt or truncated")
	}

	data, err := deserialize(body)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return data, runID, nil
}

// serialize renders data as a deterministic, line-oriented byte stream:
// header count and names, reporting length, entry count and each
// combination's canonical string/count/sorted-record-list, the
// optional DP-protected record count, and the sensitivity matrix.
func serialize(data *aggregate.AggregatedData) []byte {
	var buf bytes.Buffer
	headers := data.Block.Headers()

	fmt.Fprintf(&buf, "%d\n", len(headers))
	for _, h := range headers {
		fmt.Fprintf(&buf, "%s\n", h)
	}
	fmt.Fprintf(&buf, "%d\n", data.ReportingLength)
	fmt.Fprintf(&buf, "%d\n", data.Block.NumRecords())

	keys := data.Keys()
	sort.Strings(keys)
	fmt.Fprintf(&buf, "%d\n", len(keys))
	for _, key := range keys {
		e, _ := data.Get(key)
		rowStrs := make([]string, len(e.Records))
		for i, r := range e.Records {
			rowStrs[i] = strconv.Itoa(r)
		}
		fmt.Fprintf(&buf, "%s\t%d\t%s\n", key, e.Count, strings.Join(rowStrs, ","))
	}

	if data.ProtectedRecordCount != nil {
		fmt.Fprintf(&buf, "%d\n", *data.ProtectedRecordCount)
	} else {
		fmt.Fprintf(&buf, "-1\n")
	}

	for l := 0; l <= data.ReportingLength; l++ {
		strs := make([]string, len(data.Sensitivity[l]))
		for i, v := range data.Sensitivity[l] {
			strs[i] = strconv.Itoa(v)
		}
		fmt.Fprintf(&buf, "%s\n", strings.Join(strs, ","))
	}
	return buf.Bytes()
}

// deserialize is serialize's inverse.
func deserialize(body []byte) (*aggregate.AggregatedData, error) {
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	readLine := func() (string, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", io.ErrUnexpectedEOF
		}
		return sc.Text(), nil
	}
	readInt := func() (int, error) {
		line, err := readLine()
		if err != nil {
			return 0, err
		}
		return strconv.Atoi(line)
	}

	numHeaders, err := readInt()
	if err != nil {
		return nil, fmt.Errorf("persist: reading header count: %w", err)
	}
	headers := make([]string, numHeaders)
	for i := range headers {
		headers[i], err = readLine()
		if err != nil {
			return nil, fmt.Errorf("persist: reading header %d: %w", i, err)
		}
	}
	reportingLength, err := readInt()
	if err != nil {
		return nil, fmt.Errorf("persist: reading reporting length: %w", err)
	}
	numRecords, err := readInt()
	if err != nil {
		return nil, fmt.Errorf("persist: reading record count: %w", err)
	}
	numEntries, err := readInt()
	if err != nil {
		return nil, fmt.Errorf("persist: reading entry count: %w", err)
	}

	type rawEntry struct {
		key     string
		count   int
		records []int
	}
	entries := make([]rawEntry, numEntries)
	index := make(map[aggregate.AttributeValue][]int)
	for i := 0; i < numEntries; i++ {
		line, err := readLine()
		if err != nil {
			return nil, fmt.Errorf("persist: reading entry %d: %w", i, err)
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("persist: malformed entry line %q", line)
		}
		count, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("persist: entry %q has bad count: %w", parts[0], err)
		}
		var records []int
		if parts[2] != "" {
			for _, s := range strings.Split(parts[2], ",") {
				r, err := strconv.Atoi(s)
				if err != nil {
					return nil, fmt.Errorf("persist: entry %q has bad record index %q: %w", parts[0], s, err)
				}
				records = append(records, r)
			}
		}
		entries[i] = rawEntry{key: parts[0], count: count, records: records}
	}

	protectedLine, err := readInt()
	if err != nil {
		return nil, fmt.Errorf("persist: reading protected record count: %w", err)
	}

	sensitivity := make([][]int, reportingLength+1)
	for l := range sensitivity {
		line, err := readLine()
		if err != nil {
			return nil, fmt.Errorf("persist: reading sensitivity row %d: %w", l, err)
		}
		row := make([]int, numRecords)
		if line != "" {
			fields := strings.Split(line, ",")
			if len(fields) != numRecords {
				return nil, fmt.Errorf("persist: sensitivity row %d has %d fields, want %d", l, len(fields), numRecords)
			}
			for i, f := range fields {
				row[i], err = strconv.Atoi(f)
				if err != nil {
					return nil, fmt.Errorf("persist: sensitivity row %d field %d: %w", l, i, err)
				}
			}
		}
		sensitivity[l] = row
	}

	for _, e := range entries {
		combo, err := aggregate.ParseCombination(headers, e.key)
		if err != nil {
			return nil, fmt.Errorf("persist: parsing combination %q: %w", e.key, err)
		}
		if combo.Len() == 1 {
			index[combo.Attrs()[0]] = append([]int(nil), e.records...)
		}
	}

	block := aggregate.NewDataBlockFromIndex(headers, numRecords, index)
	data := aggregate.NewAggregatedData(block, reportingLength)
	data.Sensitivity = sensitivity
	if protectedLine >= 0 {
		pc := protectedLine
		data.ProtectedRecordCount = &pc
	}
	for _, e := range entries {
		combo, err := aggregate.ParseCombination(headers, e.key)
		if err != nil {
			return nil, fmt.Errorf("persist: parsing combination %q: %w", e.key, err)
		}
		data.Set(&aggregate.Entry{Combination: combo, Count: e.count, Records: e.records})
	}
	return data, nil
}
