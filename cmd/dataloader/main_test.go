package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dataloader/internal/config"
	"dataloader/internal/datasource"
	"dataloader/internal/datasource/file"
	"dataloader/internal/metrics"
	"dataloader/internal/schema"
	"dataloader/internal/storage"
	"dataloader/internal/upsert"
)

// stubDialect answers every catalog question for a one-column table "Code"
// that is also the primary key.
type stubDialect struct{}

func (stubDialect) Name() string                             { return "stub" }
func (stubDialect) ProbeQuery(t string) string               { return "PROBE " + t }
func (stubDialect) AttributeQuery(t string) (string, []any)  { return "ATTRS " + t, nil }
func (stubDialect) PrimaryKeyQuery(t string) (string, []any) { return "PKEYS " + t, nil }
func (stubDialect) KindOf(string) schema.Kind                { return schema.KindString }
func (stubDialect) IsTableNotFound(error) bool               { return false }
func (stubDialect) Placeholder(upsert.Param) string          { return "?" }
func (stubDialect) Render(t *upsert.Template) string         { return "UPSERT " + t.Table }
func (stubDialect) BindArg(_ upsert.Param, v any) any        { return v }
func (stubDialect) ConstraintChecks(string, bool) string     { return "" }
func (stubDialect) IdentityInsert(string, bool) string       { return "" }

func testCfg(t *testing.T) *config.Config {
	t.Helper()
	c := config.Defaults()
	c.Connection = "sqlserver://sa:secret@db:1433?database=app"
	c.BaseDir = t.TempDir()
	return &c
}

type fixture struct {
	deps   Deps
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	mock   sqlmock.Sqlmock
}

func newFixture(t *testing.T, jobs []datasource.Job) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}, mock: mock}
	f.deps = Deps{
		Open: func(context.Context, string, string) (*sql.DB, storage.Dialect, error) {
			return db, stubDialect{}, nil
		},
		Discover: func(string, file.Options) ([]datasource.Job, error) { return jobs, nil },
		NewLogger: func(io.Writer, string, string) (*zap.SugaredLogger, error) {
			return zap.NewNop().Sugar(), nil
		},
		NewMetrics: func(*config.Config) (metrics.Backend, error) { return nil, nil },
		Kinds:      func() []string { return []string{"mssql", "postgres"} },
		Stdout:     f.stdout,
		Stderr:     f.stderr,
	}
	return f
}

type memSource string

func (m memSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(m))), nil
}

func TestDefaultDeps_ProvidesProductionWiring(t *testing.T) {
	d := defaultDeps()
	if d.Open == nil || d.Discover == nil || d.NewLogger == nil || d.NewMetrics == nil || d.Kinds == nil {
		t.Fatalf("defaultDeps() has nil functions: %+v", d)
	}
	kinds := d.Kinds()
	if !strings.Contains(strings.Join(kinds, ","), "mssql") || !strings.Contains(strings.Join(kinds, ","), "postgres") {
		t.Fatalf("registered kinds = %v", kinds)
	}
}

func TestRun_LoadsAndReports(t *testing.T) {
	jobs := []datasource.Job{{Group: "Reference", Name: "Codes.csv", Table: "Codes", Source: memSource("code\nA\nB\n")}}
	f := newFixture(t, jobs)
	f.mock.ExpectQuery("PROBE Codes").WillReturnRows(f.mock.NewRowsWithColumnDefinition(
		f.mock.NewColumn("Code").OfType("VARCHAR", "").Nullable(false),
	))
	f.mock.ExpectQuery("ATTRS Codes").WillReturnRows(sqlmock.NewRows([]string{"name", "nullable", "identity"}))
	f.mock.ExpectQuery("PKEYS Codes").WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Code"))
	f.mock.ExpectQuery("UPSERT Codes").WithArgs("A").WillReturnRows(sqlmock.NewRows([]string{"i", "u"}).AddRow(1, 0))
	f.mock.ExpectQuery("UPSERT Codes").WithArgs("B").WillReturnRows(sqlmock.NewRows([]string{"i", "u"}).AddRow(1, 0))

	code := run(context.Background(), testCfg(t), f.deps)
	require.Equal(t, 0, code, f.stderr.String())
	require.NoError(t, f.mock.ExpectationsWereMet())

	out := f.stdout.String()
	assert.True(t, strings.HasPrefix(out, "Database Data Loader\n\n"))
	assert.Contains(t, out, "Data files directory: ")
	assert.Contains(t, out, "Connection: sqlserver://sa:xxxxx@db:1433?database=app")
	assert.NotContains(t, out, "secret")
	assert.Contains(t, out, "Codes.csv")
	assert.True(t, strings.HasSuffix(out, "Data Load Complete\n"), out)
}

func TestRun_ConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{"missing connection", func(c *config.Config) { c.Connection = "" }, "argument 'connection' is missing but is required"},
		{"missing dir", func(c *config.Config) { c.BaseDir = filepath.Join(c.BaseDir, "nope") }, "does not reference an actual directory"},
		{"unknown driver", func(c *config.Config) { c.Driver = "oracle" }, "unknown driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			cfg := testCfg(t)
			tt.mutate(cfg)

			assert.Equal(t, -1, run(context.Background(), cfg, f.deps))
			assert.Contains(t, f.stderr.String(), tt.wantErr)
			assert.NotContains(t, f.stdout.String(), "Data Load Complete")
		})
	}
}

func TestRun_ConnectionFailureIsConfigError(t *testing.T) {
	f := newFixture(t, nil)
	f.deps.Open = func(context.Context, string, string) (*sql.DB, storage.Dialect, error) {
		return nil, nil, errors.New("login failed")
	}
	assert.Equal(t, -1, run(context.Background(), testCfg(t), f.deps))
	assert.Contains(t, f.stdout.String(), "Data Load Complete")
}

func TestRootCmd_FlagsAndExitCode(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Reference"), 0o755))

	f := newFixture(t, nil)
	env := map[string]string{"DATALOADER_CONNECTION": "server=db;user id=sa;password=hunter2"}
	cmd := newRootCmd(f.deps, func(k string) string { return env[k] })
	cmd.SetArgs([]string{"--baseDir", dir})

	err := cmd.ExecuteContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, exitCode(err))
	assert.Contains(t, f.stdout.String(), "Connection: server=db;user id=sa;password=xxxxx")

	cmd = newRootCmd(f.deps, func(string) string { return "" })
	cmd.SetArgs([]string{"--baseDir", dir})
	err = cmd.ExecuteContext(context.Background())
	assert.Equal(t, -1, exitCode(err))

	cmd = newRootCmd(f.deps, func(string) string { return "" })
	cmd.SetArgs([]string{"--no-such-flag"})
	assert.Equal(t, -1, exitCode(cmd.ExecuteContext(context.Background())))
}

func TestNewMetricsBackend(t *testing.T) {
	cfg := config.Defaults()

	b, err := newMetricsBackend(&cfg)
	assert.NoError(t, err)
	assert.Nil(t, b)

	cfg.MetricsBackend = "pushgateway"
	b, err = newMetricsBackend(&cfg)
	assert.NoError(t, err)
	assert.Nil(t, b, "pushgateway without URL is disabled")

	cfg.PushgatewayURL = "http://pushgateway:9091"
	b, err = newMetricsBackend(&cfg)
	require.NoError(t, err)
	assert.NotNil(t, b)

	cfg.MetricsBackend = "datadog"
	b, err = newMetricsBackend(&cfg)
	require.NoError(t, err)
	assert.NotNil(t, b)
}
