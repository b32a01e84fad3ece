// Package schema models the live metadata of a target table: one Column
// descriptor per database column, keyed case-insensitively, plus the resolver
// that reads it from the database catalog.
package schema

import (
	"golang.org/x/text/cases"
)

// Kind is the native Go-side data type a column's values convert to.
type Kind uint8

const (
	KindString Kind = iota
	KindInt64
	KindInt32
	KindInt16
	KindUint8
	KindBool
	KindFloat64
	KindFloat32
	KindDecimal
	KindDate
	KindDateTime
	KindDateTimeOffset
	KindTime
	KindUUID
	KindBytes
)

var kindNames = [...]string{
	KindString:         "string",
	KindInt64:          "int64",
	KindInt32:          "int32",
	KindInt16:          "int16",
	KindUint8:          "uint8",
	KindBool:           "bool",
	KindFloat64:        "float64",
	KindFloat32:        "float32",
	KindDecimal:        "decimal",
	KindDate:           "date",
	KindDateTime:       "datetime",
	KindDateTimeOffset: "datetimeoffset",
	KindTime:           "time",
	KindUUID:           "uuid",
	KindBytes:          "bytes",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Textual reports whether values of this kind are passed through as text.
func (k Kind) Textual() bool { return k == KindString }

// Column is the resolved, immutable descriptor of one table column.
type Column struct {
	Name string
	// Kind is the native data type; TypeName is the database's own type tag
	// (e.g. "NVARCHAR", "INT4").
	Kind     Kind
	TypeName string
	// Ordinal is the zero-based position in the table.
	Ordinal      int
	IsPrimaryKey bool
	IsIdentity   bool
	// MaxLength is the declared character length; 0 means unbounded.
	MaxLength int
	Nullable  bool
}

// Fold returns the locale-independent case folding of s used for every
// column and header comparison.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// EqualFold compares two identifiers under Fold.
func EqualFold(a, b string) bool { return Fold(a) == Fold(b) }

// Columns is an ordered descriptor set with a case-folded index.
type Columns struct {
	list  []*Column
	index map[string]int
}

// NewColumns returns an empty set.
func NewColumns() *Columns {
	return &Columns{index: map[string]int{}}
}

// Add appends c unless a column with the same folded name exists. It
// reports whether c was added; the first occurrence wins.
func (cs *Columns) Add(c Column) bool {
	key := Fold(c.Name)
	if _, dup := cs.index[key]; dup {
		return false
	}
	c.Ordinal = len(cs.list)
	cs.index[key] = len(cs.list)
	cs.list = append(cs.list, &c)
	return true
}

// Lookup finds a column by case-insensitive name.
func (cs *Columns) Lookup(name string) (Column, bool) {
	if cs == nil {
		return Column{}, false
	}
	i, ok := cs.index[Fold(name)]
	if !ok {
		return Column{}, false
	}
	return *cs.list[i], true
}

// mark applies fn to the named column if present.
func (cs *Columns) mark(name string, fn func(c *Column)) bool {
	i, ok := cs.index[Fold(name)]
	if !ok {
		return false
	}
	fn(cs.list[i])
	return true
}

// Len returns the number of columns.
func (cs *Columns) Len() int {
	if cs == nil {
		return 0
	}
	return len(cs.list)
}

// All returns copies of the descriptors in table order.
func (cs *Columns) All() []Column {
	if cs == nil {
		return nil
	}
	out := make([]Column, len(cs.list))
	for i, c := range cs.list {
		out[i] = *c
	}
	return out
}

// PrimaryKey returns the primary-key columns in table order.
func (cs *Columns) PrimaryKey() []Column {
	var out []Column
	for _, c := range cs.All() {
		if c.IsPrimaryKey {
			out = append(out, c)
		}
	}
	return out
}
