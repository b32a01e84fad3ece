package schema

import (
	"context"
	"database/sql"
	"fmt"

	"dataloader/internal/loaderr"
)

// unboundedLength is the smallest reported length treated as "no limit"
// (drivers report MAX types as roughly 2^31).
const unboundedLength = 1 << 30

// Queryer is the subset of *sql.Conn / *sql.DB the resolver needs.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Catalog supplies the database-specific statements and type mapping used
// to describe a table. Dialects in internal/storage implement it.
type Catalog interface {
	// ProbeQuery returns a statement selecting every column of table while
	// returning no rows.
	ProbeQuery(table string) string
	// AttributeQuery returns a statement yielding (name, nullable, identity)
	// for every column of table.
	AttributeQuery(table string) (string, []any)
	// PrimaryKeyQuery returns a statement yielding the primary-key column
	// names of table in key order.
	PrimaryKeyQuery(table string) (string, []any)
	// KindOf maps a database type name to a native kind.
	KindOf(typeName string) Kind
	// IsTableNotFound reports whether err means the table does not exist.
	IsTableNotFound(err error) bool
}

// Resolver reads column descriptors for a table through a Catalog.
type Resolver struct {
	catalog Catalog
}

// NewResolver returns a Resolver backed by catalog.
func NewResolver(catalog Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve returns the descriptor set for table. The probe runs first so a
// missing table is reported as loaderr.TableNotFound; every other failure
// is loaderr.Unknown. Both carry table and the cause.
func (r *Resolver) Resolve(ctx context.Context, q Queryer, table string) (*Columns, error) {
	cols, err := r.probe(ctx, q, table)
	if err != nil {
		kind := loaderr.Unknown
		if r.catalog.IsTableNotFound(err) {
			kind = loaderr.TableNotFound
		}
		return nil, loaderr.New(kind, table, fmt.Errorf("cannot get metadata for table: %w", err))
	}
	if err := r.attributes(ctx, q, table, cols); err != nil {
		return nil, loaderr.New(loaderr.Unknown, table, fmt.Errorf("read column attributes: %w", err))
	}
	if err := r.primaryKey(ctx, q, table, cols); err != nil {
		return nil, loaderr.New(loaderr.Unknown, table, fmt.Errorf("read primary key: %w", err))
	}
	return cols, nil
}

func (r *Resolver) probe(ctx context.Context, q Queryer, table string) (*Columns, error) {
	rows, err := q.QueryContext(ctx, r.catalog.ProbeQuery(table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}

	cols := NewColumns()
	for _, ct := range types {
		c := Column{
			Name:     ct.Name(),
			TypeName: ct.DatabaseTypeName(),
			Nullable: true,
		}
		c.Kind = r.catalog.KindOf(c.TypeName)
		if n, ok := ct.Nullable(); ok {
			c.Nullable = n
		}
		if c.Kind == KindString || c.Kind == KindBytes {
			if l, ok := ct.Length(); ok && l > 0 && l < unboundedLength {
				c.MaxLength = int(l)
			}
		}
		cols.Add(c)
	}

	// The probe returns no rows; drain to surface deferred errors.
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cols, nil
}

func (r *Resolver) attributes(ctx context.Context, q Queryer, table string, cols *Columns) error {
	query, args := r.catalog.AttributeQuery(table)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name               string
			nullable, identity bool
		)
		if err := rows.Scan(&name, &nullable, &identity); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		cols.mark(name, func(c *Column) {
			c.Nullable = nullable
			c.IsIdentity = identity
		})
	}
	return rows.Err()
}

func (r *Resolver) primaryKey(ctx context.Context, q Queryer, table string, cols *Columns) error {
	query, args := r.catalog.PrimaryKeyQuery(table)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		// Key columns the probe did not report are ignored.
		cols.mark(name, func(c *Column) { c.IsPrimaryKey = true })
	}
	return rows.Err()
}
