package loader

import (
	"context"
	"errors"
	"time"

	"dataloader/internal/datasource"
	"dataloader/internal/loaderr"
	"dataloader/internal/metrics"
)

// FileResult is the outcome of one job.
type FileResult struct {
	Job      datasource.Job
	Stats    Statistics
	Err      error
	Duration time.Duration
}

// Code is the exit code this file contributes to the run. A file whose
// records failed counts as a failure even though it finished.
func (r FileResult) Code() ExitCode {
	if r.Err != nil {
		return CodeFor(r.Err)
	}
	if r.Stats.Errored > 0 {
		return ExitFailure
	}
	return ExitSuccess
}

// Outcome names the result for reports and metrics: "ok", "errors" or the
// error kind.
func (r FileResult) Outcome() string {
	switch {
	case r.Err != nil && (errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, context.DeadlineExceeded)):
		return "canceled"
	case r.Err != nil:
		return loaderr.KindOf(r.Err).String()
	case r.Stats.Errored > 0:
		return "errors"
	default:
		return "ok"
	}
}

// Run loads jobs in order on conn. A failed file is logged and the run
// moves on; only cancellation of ctx stops it early. It returns one result
// per attempted job and the worst exit code among them.
func (l *Loader) Run(ctx context.Context, conn Conn, jobs []datasource.Job) ([]FileResult, ExitCode) {
	results := make([]FileResult, 0, len(jobs))
	code := ExitSuccess
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		stats, err := l.LoadFile(ctx, conn, job)
		res := FileResult{Job: job, Stats: stats, Err: err, Duration: time.Since(start)}
		results = append(results, res)
		code = Worst(code, res.Code())
		metrics.RecordFile(l.opt.Job, res.Outcome())

		if err != nil {
			if le, ok := loaderr.As(err); ok {
				l.log.Errorw(le.Error(), "file", job.Name, "kind", le.Kind.String())
			} else {
				l.log.Errorw("loader: file aborted", "file", job.Name, "error", err)
			}
		}
	}
	if ctx.Err() != nil {
		l.log.Warnw("loader: run canceled", "loaded", len(results), "files", len(jobs))
		code = Worst(code, ExitFailure)
	}
	return results, code
}
