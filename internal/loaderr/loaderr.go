// Package loaderr defines the classified error returned by every stage of a
// file load. The classification decides how far a failure propagates: a
// record-level error only bumps the errored counter, a table-level error
// aborts one file, and nothing here aborts the whole run.
package loaderr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a load failure.
type Kind int

const (
	// Unknown is any database failure that has no more specific kind.
	Unknown Kind = iota
	// TableNotFound means schema introspection found no such table.
	TableNotFound
	// RecordFailure means the database rejected the generated upsert for one row.
	RecordFailure
	// ValueConversion means a field could not be converted to its column type.
	ValueConversion
	// UnrecognizedColumns means the file header names columns the table lacks.
	UnrecognizedColumns
	// MissingKeyColumns means a primary-key column is absent from the header.
	MissingKeyColumns
)

func (k Kind) String() string {
	switch k {
	case TableNotFound:
		return "table_not_found"
	case RecordFailure:
		return "record_failure"
	case ValueConversion:
		return "value_conversion"
	case UnrecognizedColumns:
		return "unrecognized_columns"
	case MissingKeyColumns:
		return "missing_key_columns"
	default:
		return "unknown"
	}
}

// RecordLevel reports whether the kind is scoped to a single row.
func (k Kind) RecordLevel() bool {
	return k == RecordFailure || k == ValueConversion
}

// Error is a classified load failure. Table is always set by the time the
// error leaves the loader; the other fields are filled when relevant.
type Error struct {
	Kind  Kind
	Table string

	// Column and Value describe a ValueConversion failure.
	Column string
	Value  string
	Type   string

	// Command and Params carry the generated SQL and a parameter listing for
	// RecordFailure diagnostics.
	Command string
	Params  string

	// Columns lists offending header names (UnrecognizedColumns,
	// MissingKeyColumns).
	Columns []string

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	switch e.Kind {
	case TableNotFound:
		fmt.Fprintf(&b, "table %q does not exist", e.Table)
	case ValueConversion:
		fmt.Fprintf(&b, "cannot convert column %q value %q to data type %s", e.Column, e.Value, e.Type)
	case RecordFailure:
		fmt.Fprintf(&b, "cannot process load record for table %q", e.Table)
	case UnrecognizedColumns:
		fmt.Fprintf(&b, "file contains columns (%s) that are not in table %q", strings.Join(e.Columns, ", "), e.Table)
	case MissingKeyColumns:
		fmt.Fprintf(&b, "file is missing primary key columns (%s) of table %q", strings.Join(e.Columns, ", "), e.Table)
	default:
		fmt.Fprintf(&b, "load table %q", e.Table)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Detail renders the full diagnostic text, including the command and the
// parameter listing when present.
func (e *Error) Detail() string {
	var b strings.Builder
	b.WriteString(e.Error())
	if e.Command != "" {
		fmt.Fprintf(&b, "\nCommand: %s", e.Command)
	}
	if e.Params != "" {
		fmt.Fprintf(&b, "\nParameters:\nName\t\tValue\n%s", e.Params)
	}
	fmt.Fprintf(&b, "\nTableName: %s", e.Table)
	return b.String()
}

// New returns a classified error for table wrapping err.
func New(kind Kind, table string, err error) *Error {
	return &Error{Kind: kind, Table: table, Err: err}
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	if le, ok := As(err); ok {
		return le.Kind
	}
	return Unknown
}

// IsRecordLevel reports whether err should only count against one record.
func IsRecordLevel(err error) bool {
	le, ok := As(err)
	return ok && le.Kind.RecordLevel()
}

// WithTable stamps table onto err when it is an *Error without one.
func WithTable(err error, table string) error {
	if le, ok := As(err); ok && le.Table == "" {
		le.Table = table
	}
	return err
}
