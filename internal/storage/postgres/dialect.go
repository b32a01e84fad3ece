// Package postgres is the PostgreSQL backend. The insert-else-update decision
// is expressed as data-modifying CTEs so one round trip returns both counts.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"dataloader/internal/schema"
	"dataloader/internal/storage"
	"dataloader/internal/upsert"
)

// Kind is the registry name of this backend.
const Kind = "postgres"

// undefinedTable is SQLSTATE 42P01.
const undefinedTable = "42P01"

func init() {
	storage.Register(Kind, storage.Backend{Dialect: Dialect{}, Open: Open})
}

// Open validates dsn and connects through pgx's database/sql driver.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if _, err := pgx.ParseConfig(dsn); err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	return storage.OpenSQL(ctx, "pgx", dsn)
}

// Dialect implements storage.Dialect for PostgreSQL.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Name() string { return Kind }

func (Dialect) ProbeQuery(table string) string {
	return "SELECT * FROM " + pgFQN(table) + " LIMIT 0"
}

const attributeSQL = `SELECT a.attname, NOT a.attnotnull, a.attidentity <> ''
FROM pg_attribute AS a
WHERE a.attrelid = $1::regclass AND a.attnum > 0 AND NOT a.attisdropped
ORDER BY a.attnum`

const primaryKeySQL = `SELECT a.attname
FROM pg_index AS i
JOIN pg_attribute AS a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
WHERE i.indrelid = $1::regclass AND i.indisprimary
ORDER BY array_position(i.indkey::int2[], a.attnum)`

func (Dialect) AttributeQuery(table string) (string, []any) {
	return attributeSQL, []any{pgFQN(table)}
}

func (Dialect) PrimaryKeyQuery(table string) (string, []any) {
	return primaryKeySQL, []any{pgFQN(table)}
}

func (Dialect) IsTableNotFound(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}

var kinds = map[string]schema.Kind{
	"INT8":        schema.KindInt64,
	"INT4":        schema.KindInt32,
	"INT2":        schema.KindInt16,
	"BOOL":        schema.KindBool,
	"FLOAT8":      schema.KindFloat64,
	"FLOAT4":      schema.KindFloat32,
	"NUMERIC":     schema.KindDecimal,
	"DATE":        schema.KindDate,
	"TIMESTAMP":   schema.KindDateTime,
	"TIMESTAMPTZ": schema.KindDateTimeOffset,
	"TIME":        schema.KindTime,
	"UUID":        schema.KindUUID,
	"BYTEA":       schema.KindBytes,
}

func (Dialect) KindOf(typeName string) schema.Kind {
	if k, ok := kinds[strings.ToUpper(typeName)]; ok {
		return k
	}
	return schema.KindString
}

// Placeholder casts the positional parameter to the column type so every
// reference in the CTEs infers the same type.
func (Dialect) Placeholder(p upsert.Param) string {
	ph := fmt.Sprintf("$%d", p.Position)
	if castable(p.Column.TypeName) {
		ph += "::" + p.Column.TypeName
	}
	return ph
}

// castable rejects empty names and the numeric OIDs pgx reports for types it
// does not know.
func castable(typeName string) bool {
	return typeName != "" && (typeName[0] < '0' || typeName[0] > '9')
}

func (Dialect) Render(t *upsert.Template) string {
	table := pgFQN(t.Table)
	cols := upsert.ColumnList(t.Params, pgIdent)
	vals := upsert.PlaceholderList(t.Params)
	overriding := ""
	if t.HasIdentityColumns {
		overriding = " OVERRIDING SYSTEM VALUE"
	}

	var b strings.Builder
	if !t.Conditional() {
		fmt.Fprintf(&b, "WITH inserted AS (\n\tINSERT INTO %s (%s)%s\n\tVALUES (%s)\n\tRETURNING 1\n)\n", table, cols, overriding, vals)
		fmt.Fprintf(&b, "SELECT (SELECT count(*) FROM inserted)::int AS %s, 0 AS %s", pgIdent(upsert.InsertedColumn), pgIdent(upsert.UpdatedColumn))
		return b.String()
	}

	pred := upsert.Equalities(t.Keys, pgIdent, " AND ")
	fmt.Fprintf(&b, "WITH existing AS (\n\tSELECT 1 FROM %s WHERE %s LIMIT 1\n),\n", table, pred)
	fmt.Fprintf(&b, "inserted AS (\n\tINSERT INTO %s (%s)%s\n\tSELECT %s\n\tWHERE NOT EXISTS (SELECT 1 FROM existing)\n\tRETURNING 1\n),\n", table, cols, overriding, vals)
	if len(t.Updates) > 0 {
		fmt.Fprintf(&b, "updated AS (\n\tUPDATE %s SET %s\n\tWHERE %s AND EXISTS (SELECT 1 FROM existing)\n\tRETURNING 1\n)\n",
			table, upsert.Equalities(t.Updates, pgIdent, ", "), pred)
	} else {
		b.WriteString("updated AS (\n\tSELECT 1 FROM existing\n)\n")
	}
	fmt.Fprintf(&b, "SELECT (SELECT count(*) FROM inserted)::int AS %s, (SELECT count(*) FROM updated)::int AS %s",
		pgIdent(upsert.InsertedColumn), pgIdent(upsert.UpdatedColumn))
	return b.String()
}

// BindArg passes values positionally; durations become pgtype.Time.
func (Dialect) BindArg(_ upsert.Param, v any) any {
	if d, ok := v.(time.Duration); ok {
		return pgtype.Time{Microseconds: d.Microseconds(), Valid: true}
	}
	return v
}

// ConstraintChecks toggles the table's triggers, which include the internal
// foreign-key triggers. This needs superuser or table ownership.
func (Dialect) ConstraintChecks(table string, enable bool) string {
	if enable {
		return "ALTER TABLE " + pgFQN(table) + " ENABLE TRIGGER ALL"
	}
	return "ALTER TABLE " + pgFQN(table) + " DISABLE TRIGGER ALL"
}

// reseedSQL moves every identity sequence of a table to the column's
// current maximum. %[1]s is the table as a string literal.
const reseedSQL = `DO $reseed$
DECLARE
	col text;
	seq text;
BEGIN
	FOR col, seq IN
		SELECT a.attname, pg_get_serial_sequence(%[1]s, a.attname)
		FROM pg_attribute AS a
		WHERE a.attrelid = %[1]s::regclass AND a.attidentity <> '' AND NOT a.attisdropped
	LOOP
		EXECUTE format('SELECT setval(%%L, max(%%I)) FROM %%s HAVING max(%%I) IS NOT NULL', seq, col, %[1]s, col);
	END LOOP;
END
$reseed$`

// IdentityInsert needs nothing to allow explicit values, since the insert
// says OVERRIDING SYSTEM VALUE. Closing the window reseeds the identity
// sequences so later generated values do not collide with loaded keys.
func (Dialect) IdentityInsert(table string, allow bool) string {
	if allow {
		return ""
	}
	return fmt.Sprintf(reseedSQL, pgLiteral(pgFQN(table)))
}

// pgIdent safely quotes an identifier using "double quotes".
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgLiteral quotes s as a string literal.
func pgLiteral(s string) string { return `'` + strings.ReplaceAll(s, `'`, `''`) + `'` }

// pgFQN quotes a possibly schema-qualified name like "public.employee" to
// "public"."employee".
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}
