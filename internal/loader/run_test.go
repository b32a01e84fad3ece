package loader

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataloader/internal/datasource"
	"dataloader/internal/loaderr"
)

func TestWorst(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b, want ExitCode
	}{
		{ExitSuccess, ExitSuccess, ExitSuccess},
		{ExitSuccess, ExitFailure, ExitFailure},
		{ExitTableNotFound, ExitFailure, ExitTableNotFound},
		{ExitUnrecognized, ExitConfig, ExitUnrecognized},
		{ExitFailure, ExitUnrecognized, ExitFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Worst(tt.a, tt.b), "Worst(%d, %d)", tt.a, tt.b)
	}
}

func TestCodeForAndOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		res         FileResult
		wantCode    ExitCode
		wantOutcome string
	}{
		{"clean", FileResult{Stats: Statistics{Total: 3, Created: 3}}, ExitSuccess, "ok"},
		{"record errors", FileResult{Stats: Statistics{Total: 3, Errored: 1}}, ExitFailure, "errors"},
		{"missing table", FileResult{Err: loaderr.New(loaderr.TableNotFound, "T", nil)}, ExitTableNotFound, "table_not_found"},
		{"missing key", FileResult{Err: &loaderr.Error{Kind: loaderr.MissingKeyColumns}}, ExitUnrecognized, "missing_key_columns"},
		{"wrapped unknown", FileResult{Err: fmt.Errorf("x: %w", loaderr.New(loaderr.Unknown, "T", errors.New("io")))}, ExitFailure, "unknown"},
		{"canceled", FileResult{Err: context.Canceled}, ExitFailure, "canceled"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantCode, tt.res.Code())
			assert.Equal(t, tt.wantOutcome, tt.res.Outcome())
		})
	}
}

func TestStatistics(t *testing.T) {
	t.Parallel()

	s := Statistics{Total: 2, Created: 1, Errored: 1}.Add(Statistics{Total: 1, Updated: 1})
	assert.Equal(t, Statistics{Total: 3, Created: 1, Updated: 1, Errored: 1}, s)
	assert.Equal(t, "Statistics: 1 Inserted, 1 Updated, 1 Errored, 3 Total", s.String())
}

// A missing table aborts only its own file; the next file still loads and
// the run reports the worst code.
func TestRun_ContinuesAfterFileFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	h.mock.ExpectQuery("PROBE dbo.Missing").WillReturnError(errNoTable)
	h.expectEmployee(false)
	h.expectExec("CHECKS dbo.Employee off")
	h.mock.ExpectQuery("UPSERT dbo.Employee insert-only").WithArgs(int32(7), "Ann").WillReturnRows(counts(1, 0))
	h.expectExec("CHECKS dbo.Employee on")

	jobs := []datasource.Job{
		{Group: "Reference", Name: "dbo.Missing.csv", Table: "dbo.Missing", Source: memSource("Id\n1\n")},
		employeeJob("Id,Name\n7,Ann\n", false),
	}
	results, code := h.l.Run(context.Background(), h.db, jobs)
	require.Len(t, results, 2)
	assert.Equal(t, ExitTableNotFound, code)
	assert.Equal(t, loaderr.TableNotFound, loaderr.KindOf(results[0].Err))
	assert.NoError(t, results[1].Err)
	assert.Equal(t, Statistics{Total: 1, Created: 1}, results[1].Stats)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestRun_CanceledBeforeStart(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, code := h.l.Run(ctx, h.db, []datasource.Job{employeeJob("Id\n1\n", false)})
	assert.Empty(t, results)
	assert.Equal(t, ExitFailure, code)
}
