// Package mssql is the Microsoft SQL Server backend: catalog queries against
// sys.columns/sys.indexes, the T-SQL upsert batch, typed parameter binding
// through go-mssqldb, and the NOCHECK / IDENTITY_INSERT window toggles.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"dataloader/internal/schema"
	"dataloader/internal/storage"
	"dataloader/internal/upsert"
)

// Kind is the registry name of this backend.
const Kind = "mssql"

// errInvalidObject is SQL Server's "Invalid object name" error number.
const errInvalidObject = 208

func init() {
	storage.Register(Kind, storage.Backend{Dialect: Dialect{}, Open: Open})
}

// Open validates dsn and connects with the "sqlserver" driver.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	return storage.OpenSQL(ctx, "sqlserver", dsn)
}

// Dialect implements storage.Dialect for SQL Server.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Name() string { return Kind }

// ProbeQuery selects every column and no rows.
func (Dialect) ProbeQuery(table string) string {
	return "SELECT TOP(0) * FROM " + msFQN(table)
}

const attributeSQL = `SELECT c.name, c.is_nullable, c.is_identity
FROM sys.columns AS c
WHERE c.object_id = OBJECT_ID(@p1)
ORDER BY c.column_id`

const primaryKeySQL = `SELECT c.name
FROM sys.indexes AS i
JOIN sys.index_columns AS ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
JOIN sys.columns AS c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
WHERE i.is_primary_key = 1 AND i.object_id = OBJECT_ID(@p1)
ORDER BY ic.key_ordinal`

func (Dialect) AttributeQuery(table string) (string, []any) {
	return attributeSQL, []any{msFQN(table)}
}

func (Dialect) PrimaryKeyQuery(table string) (string, []any) {
	return primaryKeySQL, []any{msFQN(table)}
}

// IsTableNotFound matches error 208 ("Invalid object name").
func (Dialect) IsTableNotFound(err error) bool {
	var numbered interface{ SQLErrorNumber() int32 }
	if errors.As(err, &numbered) {
		return numbered.SQLErrorNumber() == errInvalidObject
	}
	return false
}

var kinds = map[string]schema.Kind{
	"BIGINT":           schema.KindInt64,
	"INT":              schema.KindInt32,
	"SMALLINT":         schema.KindInt16,
	"TINYINT":          schema.KindUint8,
	"BIT":              schema.KindBool,
	"FLOAT":            schema.KindFloat64,
	"REAL":             schema.KindFloat32,
	"DECIMAL":          schema.KindDecimal,
	"NUMERIC":          schema.KindDecimal,
	"MONEY":            schema.KindDecimal,
	"SMALLMONEY":       schema.KindDecimal,
	"DATE":             schema.KindDate,
	"DATETIME":         schema.KindDateTime,
	"DATETIME2":        schema.KindDateTime,
	"SMALLDATETIME":    schema.KindDateTime,
	"DATETIMEOFFSET":   schema.KindDateTimeOffset,
	"TIME":             schema.KindTime,
	"UNIQUEIDENTIFIER": schema.KindUUID,
	"BINARY":           schema.KindBytes,
	"VARBINARY":        schema.KindBytes,
	"IMAGE":            schema.KindBytes,
	"TIMESTAMP":        schema.KindBytes,
}

// KindOf maps a driver type name; anything unlisted loads as a string.
func (Dialect) KindOf(typeName string) schema.Kind {
	if k, ok := kinds[strings.ToUpper(typeName)]; ok {
		return k
	}
	return schema.KindString
}

func (Dialect) Placeholder(p upsert.Param) string { return "@" + p.Name }

// Render produces the T-SQL batch. XACT_ABORT makes any failing statement
// abort the batch so the error reaches the caller instead of a count row.
func (Dialect) Render(t *upsert.Template) string {
	table := msFQN(t.Table)

	var b strings.Builder
	b.WriteString("SET NOCOUNT ON;\nSET XACT_ABORT ON;\n")
	fmt.Fprintf(&b, "DECLARE @RecordExists AS bit = 0;\nDECLARE @%s AS int = 0;\nDECLARE @%s AS int = 0;\n",
		upsert.InsertedColumn, upsert.UpdatedColumn)

	insert := fmt.Sprintf("INSERT INTO %s (%s)\nVALUES (%s);\nSET @%s = 1;\n",
		table, upsert.ColumnList(t.Params, msIdent), upsert.PlaceholderList(t.Params), upsert.InsertedColumn)

	if !t.Conditional() {
		b.WriteString(insert)
	} else {
		pred := upsert.Equalities(t.Keys, msIdent, " AND ")
		fmt.Fprintf(&b, "SELECT @RecordExists = 1 FROM %s WHERE %s;\n", table, pred)
		b.WriteString("IF (@RecordExists = 0)\nBEGIN\n")
		b.WriteString(insert)
		b.WriteString("END\nELSE\nBEGIN\n")
		if len(t.Updates) > 0 {
			fmt.Fprintf(&b, "UPDATE %s\nSET %s\nWHERE %s;\n", table, upsert.Equalities(t.Updates, msIdent, ", "), pred)
		}
		fmt.Fprintf(&b, "SET @%s = 1;\nEND\n", upsert.UpdatedColumn)
	}

	fmt.Fprintf(&b, "SELECT @%[1]s AS %[1]s, @%[2]s AS %[2]s;", upsert.InsertedColumn, upsert.UpdatedColumn)
	return b.String()
}

// BindArg names the argument after the parameter and narrows Go values to
// the column's SQL type where the driver would otherwise guess.
func (Dialect) BindArg(p upsert.Param, v any) any {
	switch x := v.(type) {
	case nil:
		// An untyped NULL goes out as nvarchar, which binary columns refuse.
		if p.Column.Kind == schema.KindBytes {
			v = []byte(nil)
		}
	case string:
		if nonUnicode(p.Column.TypeName) {
			v = mssql.VarChar(x)
		}
	case time.Duration:
		v = civil.Time{
			Hour:       int(x / time.Hour),
			Minute:     int(x % time.Hour / time.Minute),
			Second:     int(x % time.Minute / time.Second),
			Nanosecond: int(x % time.Second),
		}
	case time.Time:
		if p.Column.Kind == schema.KindDate {
			v = civil.DateOf(x)
		}
	}
	return sql.Named(p.Name, v)
}

func nonUnicode(typeName string) bool {
	switch strings.ToUpper(typeName) {
	case "CHAR", "VARCHAR", "TEXT":
		return true
	}
	return false
}

func (Dialect) ConstraintChecks(table string, enable bool) string {
	if enable {
		return "ALTER TABLE " + msFQN(table) + " CHECK CONSTRAINT ALL"
	}
	return "ALTER TABLE " + msFQN(table) + " NOCHECK CONSTRAINT ALL"
}

func (Dialect) IdentityInsert(table string, allow bool) string {
	if allow {
		return "SET IDENTITY_INSERT " + msFQN(table) + " ON"
	}
	return "SET IDENTITY_INSERT " + msFQN(table) + " OFF"
}

// msIdent safely quotes an identifier using [brackets] for MSSQL.
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// msFQN quotes a possibly schema-qualified name like "dbo.Employee" to
// "[dbo].[Employee]". If no dot is present, returns a single quoted ident.
func msFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = msIdent(p)
	}
	return strings.Join(parts, ".")
}
