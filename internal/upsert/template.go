// Package upsert builds the per-file parameterized command that inserts a
// row, or in safe mode updates it when its primary key already exists. The
// column binding and key selection live here; the SQL text is produced by a
// dialect Renderer.
package upsert

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"dataloader/internal/loaderr"
	"dataloader/internal/schema"
)

// Mode selects whether existing rows may be updated.
type Mode int

const (
	// InsertOnly never updates; a key collision fails the record.
	InsertOnly Mode = iota
	// Safe inserts new rows and updates existing ones.
	Safe
)

func (m Mode) String() string {
	if m == Safe {
		return "safe"
	}
	return "insert-only"
}

// Result column names selected back by every command.
const (
	InsertedColumn = "InsertedRecords"
	UpdatedColumn  = "UpdatedRecords"
	existsVar      = "RecordExists"
)

// Param binds one descriptor to one header of the input file.
type Param struct {
	Column schema.Column
	// Header is the header text as it appears in the file; Field is its
	// zero-based position in each record.
	Header string
	Field  int
	// Name is the database parameter name, unique within the command.
	Name string
	// Position is the 1-based bind position; Placeholder is the text the
	// command uses to reference the parameter.
	Position    int
	Placeholder string
}

// Template is the command for one table/file pair. It is immutable once built.
type Template struct {
	Table   string
	Command string
	// Params are the bound columns in header order.
	Params []Param
	// Keys are the predicate columns in descriptor order.
	Keys []Param
	// Updates are the columns assigned by the update branch (safe mode only).
	Updates            []Param
	HasIdentityColumns bool
	Mode               Mode
}

// Conditional reports whether the command probes for an existing row before
// inserting. Insert-only commands and tables without a primary key always insert.
func (t *Template) Conditional() bool {
	return t.Mode == Safe && len(t.Keys) > 0
}

// Renderer turns a bound Template into dialect SQL.
type Renderer interface {
	// Placeholder returns the command text referencing p.
	Placeholder(p Param) string
	// Render returns the full command for t. Params, Keys, Updates and the
	// placeholders are already set.
	Render(t *Template) string
}

var errNoColumns = errors.New("file header names no columns")

// Build binds headers to cols and renders the command for table. Headers
// that match no column are reported together as loaderr.UnrecognizedColumns
// before any text is generated. In safe mode, key columns missing from the
// headers are loaderr.MissingKeyColumns.
func Build(table string, cols *schema.Columns, headers []string, mode Mode, r Renderer) (*Template, error) {
	t := &Template{Table: table, Mode: mode}

	bound := make(map[string]int, len(headers))
	var unknown []string
	for i, h := range headers {
		c, ok := cols.Lookup(h)
		if !ok {
			unknown = append(unknown, h)
			continue
		}
		key := schema.Fold(c.Name)
		if _, dup := bound[key]; dup {
			// A second header for the same column cannot be bound.
			unknown = append(unknown, h)
			continue
		}
		bound[key] = len(t.Params)
		t.Params = append(t.Params, Param{Column: c, Header: h, Field: i})
	}
	if len(unknown) > 0 {
		return nil, &loaderr.Error{Kind: loaderr.UnrecognizedColumns, Table: table, Columns: unknown}
	}
	if len(t.Params) == 0 {
		return nil, loaderr.New(loaderr.Unknown, table, errNoColumns)
	}

	pk := cols.PrimaryKey()
	missing := lo.FilterMap(pk, func(c schema.Column, _ int) (string, bool) {
		_, ok := bound[schema.Fold(c.Name)]
		return c.Name, !ok
	})
	// Only the safe-mode existence probe binds the key; insert-only files may
	// leave out generated key columns.
	if len(missing) > 0 && mode == Safe {
		return nil, &loaderr.Error{Kind: loaderr.MissingKeyColumns, Table: table, Columns: missing}
	}

	names := paramNames(t.Params)
	for i := range t.Params {
		t.Params[i].Name = names[i]
		t.Params[i].Position = i + 1
		t.Params[i].Placeholder = r.Placeholder(t.Params[i])
	}

	if len(missing) == 0 {
		t.Keys = lo.Map(pk, func(c schema.Column, _ int) Param {
			return t.Params[bound[schema.Fold(c.Name)]]
		})
	}
	t.HasIdentityColumns = lo.SomeBy(t.Params, func(p Param) bool { return p.Column.IsIdentity })
	if mode == Safe {
		t.Updates = lo.Filter(t.Params, func(p Param, _ int) bool {
			return !p.Column.IsPrimaryKey && !p.Column.IsIdentity
		})
	}

	t.Command = r.Render(t)
	return t, nil
}

// reserved holds the command's own variable names.
var reserved = []string{existsVar, InsertedColumn, UpdatedColumn}

// paramNames derives one identifier-safe, case-insensitively unique name per
// parameter from its column name.
func paramNames(ps []Param) []string {
	used := make(map[string]bool, len(ps)+len(reserved))
	for _, r := range reserved {
		used[schema.Fold(r)] = true
	}
	out := make([]string, len(ps))
	for i, p := range ps {
		base := sanitize(p.Column.Name)
		name := base
		for n := 2; used[schema.Fold(name)]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		used[schema.Fold(name)] = true
		out[i] = name
	}
	return out
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "p_" + s
	}
	return s
}

// Equalities renders "ident = placeholder" for every param, joined by sep.
// Dialects use it for predicates (" AND ") and assignment lists (", ").
func Equalities(ps []Param, quote func(string) string, sep string) string {
	return strings.Join(lo.Map(ps, func(p Param, _ int) string {
		return quote(p.Column.Name) + " = " + p.Placeholder
	}), sep)
}

// ColumnList renders the quoted column names of ps, comma separated.
func ColumnList(ps []Param, quote func(string) string) string {
	return strings.Join(lo.Map(ps, func(p Param, _ int) string { return quote(p.Column.Name) }), ", ")
}

// PlaceholderList renders the placeholders of ps, comma separated.
func PlaceholderList(ps []Param) string {
	return strings.Join(lo.Map(ps, func(p Param, _ int) string { return p.Placeholder }), ", ")
}
