// Package loader drives the load of one file at a time: it resolves the
// target table, builds the upsert command from the header, and applies
// every record through it on a single pinned connection.
package loader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"dataloader/internal/convert"
	"dataloader/internal/datasource"
	"dataloader/internal/loaderr"
	"dataloader/internal/metrics"
	"dataloader/internal/parser/csv"
	"dataloader/internal/rejects"
	"dataloader/internal/schema"
	"dataloader/internal/storage"
	"dataloader/internal/upsert"
)

// Conn is the subset of *sql.Conn the loader uses. Statements that toggle
// session state (identity insert) only hold when every call lands on the
// same session, so pass a *sql.Conn rather than a *sql.DB.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Options tunes a Loader.
type Options struct {
	// Job labels metrics.
	Job string
	CSV csv.Options
	// RejectsDir, when set, receives one <group>/<file>.rejects.csv per file
	// that had failed records.
	RejectsDir string
}

// Loader loads files into tables of one database.
type Loader struct {
	dialect  storage.Dialect
	resolver *schema.Resolver
	conv     *convert.Service
	log      *zap.SugaredLogger
	opt      Options
}

// New returns a Loader. A nil conv uses the built-in converters and a nil
// log discards output.
func New(d storage.Dialect, conv *convert.Service, log *zap.SugaredLogger, opt Options) *Loader {
	if conv == nil {
		conv = convert.NewService(nil)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if opt.Job == "" {
		opt.Job = "dataloader"
	}
	return &Loader{
		dialect:  d,
		resolver: schema.NewResolver(d),
		conv:     conv,
		log:      log,
		opt:      opt,
	}
}

// LoadRecord applies one record through t and adds the reported counts to
// stats. Conversion failures are loaderr.ValueConversion; a rejected
// command is loaderr.RecordFailure carrying the command and parameters.
// stats.Total and stats.Errored are left to the caller.
func (l *Loader) LoadRecord(ctx context.Context, conn Conn, rec []string, t *upsert.Template, stats *Statistics) error {
	args := make([]any, len(t.Params))
	for i, p := range t.Params {
		v, err := l.conv.Value(p.Column, csv.Field(rec, p.Field))
		if err != nil {
			return loaderr.WithTable(err, t.Table)
		}
		args[i] = l.dialect.BindArg(p, v)
	}

	var ins, upd sql.NullInt64
	err := func() error {
		rows, err := conn.QueryContext(ctx, t.Command, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		if rows.Next() {
			if err := rows.Scan(&ins, &upd); err != nil {
				return err
			}
		}
		return rows.Err()
	}()
	if err != nil {
		return &loaderr.Error{
			Kind:    loaderr.RecordFailure,
			Table:   t.Table,
			Command: t.Command,
			Params:  paramListing(t, rec),
			Err:     err,
		}
	}
	stats.Created += ins.Int64
	stats.Updated += upd.Int64
	return nil
}

func paramListing(t *upsert.Template, rec []string) string {
	var b strings.Builder
	for _, p := range t.Params {
		fmt.Fprintf(&b, "%s\t\t'%s'\n", p.Name, csv.Field(rec, p.Field))
	}
	return b.String()
}

// LoadFile loads one job. Record-level failures are counted and logged; any
// other failure stops the file and is returned with the statistics so far.
// A file with no header row loads nothing.
func (l *Loader) LoadFile(ctx context.Context, conn Conn, job datasource.Job) (stats Statistics, err error) {
	l.log.Infof("Loading File: %s", job.Name)
	start := time.Now()
	defer func() {
		metrics.RecordStep(l.opt.Job, "file", err, time.Since(start))
		metrics.RecordRows(l.opt.Job, job.Table, metrics.KindProcessed, stats.Total)
		metrics.RecordRows(l.opt.Job, job.Table, metrics.KindInserted, stats.Created)
		metrics.RecordRows(l.opt.Job, job.Table, metrics.KindUpdated, stats.Updated)
		metrics.RecordRows(l.opt.Job, job.Table, metrics.KindErrored, stats.Errored)
	}()

	mode := upsert.InsertOnly
	if job.Safe {
		mode = upsert.Safe
	}

	stepStart := time.Now()
	cols, err := l.resolver.Resolve(ctx, conn, job.Table)
	metrics.RecordStep(l.opt.Job, "metadata", err, time.Since(stepStart))
	if err != nil {
		return stats, err
	}

	rc, err := job.Source.Open(ctx)
	if err != nil {
		return stats, loaderr.New(loaderr.Unknown, job.Table, fmt.Errorf("open file: %w", err))
	}
	defer rc.Close()

	r, err := csv.NewReader(rc, l.opt.CSV)
	if errors.Is(err, csv.ErrNoHeader) {
		l.log.Warnw("loader: file has no header row", "file", job.Name)
		l.log.Info(stats.String())
		return stats, nil
	}
	if err != nil {
		return stats, loaderr.New(loaderr.Unknown, job.Table, err)
	}

	stepStart = time.Now()
	t, err := upsert.Build(job.Table, cols, r.Headers(), mode, l.dialect)
	metrics.RecordStep(l.opt.Job, "template", err, time.Since(stepStart))
	if err != nil {
		return stats, err
	}
	l.log.Debugw("loader: command built", "table", t.Table, "mode", t.Mode.String(), "command", t.Command)

	rej := &rejectSink{l: l, job: job, headers: r.Headers()}
	defer rej.close()

	var win *window
	defer func() {
		if win != nil {
			win.restore(context.WithoutCancel(ctx))
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rec, rerr := r.Read()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if win == nil {
			win = l.openWindow(ctx, conn, t)
		}
		stats.Total++

		if rerr != nil {
			if !csv.IsParseError(rerr) {
				return stats, loaderr.New(loaderr.Unknown, job.Table, fmt.Errorf("read file: %w", rerr))
			}
			stats.Errored++
			l.log.Errorf("Cannot load record %d. Details: %v", stats.Total, rerr)
			rej.add("parse_error", csv.ErrorLine(rerr), rerr.Error(), nil)
			continue
		}

		if err := l.LoadRecord(ctx, conn, rec, t, &stats); err != nil {
			if cerr := ctx.Err(); cerr != nil {
				stats.Total--
				return stats, cerr
			}
			le, ok := loaderr.As(err)
			if !ok || !le.Kind.RecordLevel() {
				return stats, err
			}
			stats.Errored++
			l.log.Errorf("Cannot load record %d. Details: %s", stats.Total, le.Detail())
			rej.add(le.Kind.String(), r.Line(), le.Error(), rec)
		}
	}

	l.log.Info(stats.String())
	return stats, nil
}

// window holds the per-file session toggles. They are set before the first
// data record and restored once after the last, also when the file aborts.
type window struct {
	l        *Loader
	conn     Conn
	table    string
	identity bool
}

func (l *Loader) openWindow(ctx context.Context, conn Conn, t *upsert.Template) *window {
	w := &window{l: l, conn: conn, table: t.Table}
	w.toggle(ctx, l.dialect.ConstraintChecks(t.Table, false),
		"Constraints could not be disabled on table '%s', data failures may occur.")
	if t.HasIdentityColumns {
		w.identity = true
		w.toggle(ctx, l.dialect.IdentityInsert(t.Table, true),
			"Identity insert could not be enabled on table '%s', data failures may occur.")
	}
	return w
}

func (w *window) restore(ctx context.Context) {
	w.toggle(ctx, w.l.dialect.ConstraintChecks(w.table, true),
		"Constraints could not be enabled on table '%s', data failures may occur.")
	if w.identity {
		w.toggle(ctx, w.l.dialect.IdentityInsert(w.table, false),
			"Identity insert could not be disabled on table '%s', data failures may occur.")
	}
}

func (w *window) toggle(ctx context.Context, stmt, warning string) {
	if stmt == "" {
		return
	}
	if _, err := w.conn.ExecContext(ctx, stmt); err != nil {
		w.l.log.Warnw(fmt.Sprintf(warning, w.table), "error", err)
	}
}

// rejectSink opens the rejects file on the first failure. A file that
// cannot be created is reported once and rejects are then dropped.
type rejectSink struct {
	l       *Loader
	job     datasource.Job
	headers []string
	log     *rejects.Log
	failed  bool
}

func (s *rejectSink) add(reason string, line int, msg string, rec []string) {
	if s.l.opt.RejectsDir == "" || s.failed {
		return
	}
	if s.log == nil {
		name := strings.TrimSuffix(s.job.Name, filepath.Ext(s.job.Name)) + ".rejects.csv"
		lg, err := rejects.Create(filepath.Join(s.l.opt.RejectsDir, s.job.Group, name), s.headers)
		if err != nil {
			s.failed = true
			s.l.log.Warnw("loader: rejects disabled for file", "file", s.job.Name, "error", err)
			return
		}
		s.log = lg
	}
	if err := s.log.Add(reason, line, msg, rec); err != nil {
		s.l.log.Warnw("loader: write reject", "file", s.job.Name, "error", err)
	}
}

func (s *rejectSink) close() {
	if s.log == nil {
		return
	}
	if err := s.log.Close(); err != nil {
		s.l.log.Warnw("loader: close rejects", "path", s.log.Path(), "error", err)
		return
	}
	s.l.log.Infow("loader: rejected records written", "path", s.log.Path(), "counts", s.log.Counts())
}
