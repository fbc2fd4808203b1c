// Package aggregate implements the combinatorial aggregator: the
// immutable column-indexed data block, the canonically-ordered value
// combination, the parallel aggregator, and the aggregated-data
// operations described in spec sections 3, 4.1 and 4.2.
//
// Grounded on the teacher's columnar, symbol-table-indexed data model
// (ion.Datum/ion.Symtab) and its db package's config-struct conventions,
// generalized from "Ion values in a query engine" to "attribute values
// in a privacy pipeline".
package aggregate

import "strings"

// AttributeValue is a single (column, value) pair. Equality is
// structural: two AttributeValues are equal iff both fields match.
type AttributeValue struct {
	Column int
	Value  string
}

const (
	escapedSemicolon = "<semicolon>"
	escapedColon     = "<colon>"
)

// EscapeToken replaces the reserved combination-string delimiters (';'
// and ':') in a raw header or value with their escaped forms. Applied
// at ingestion, before the DataBlock is built (NewDataBlock expects
// already-escaped input), so canonical string forms never need further
// escaping.
func EscapeToken(raw string) string {
	if !strings.ContainsAny(raw, ";:") {
		return raw
	}
	raw = strings.ReplaceAll(raw, ";", escapedSemicolon)
	raw = strings.ReplaceAll(raw, ":", escapedColon)
	return raw
}

// UnescapeToken reverses EscapeToken.
func UnescapeToken(escaped string) string {
	if !strings.Contains(escaped, "<") {
		return escaped
	}
	escaped = strings.ReplaceAll(escaped, escapedSemicolon, ";")
	escaped = strings.ReplaceAll(escaped, escapedColon, ":")
	return escaped
}

// IsExcluded reports whether a raw value must never appear as an
// attribute value: the empty string always, and the literal "0" unless
// the column has been declared sensitive-zeros.
func IsExcluded(raw string, sensitiveZeros bool) bool {
	if raw == "" {
		return true
	}
	if raw == "0" && !sensitiveZeros {
		return true
	}
	return false
}
