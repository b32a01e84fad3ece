// Package metrics records load outcomes through a pluggable backend. The
// default backend discards everything, so instrumentation is always safe to
// call; cmd/dataloader installs a Pushgateway or DogStatsD backend when
// configured.
package metrics

import "time"

// Metric names shared by every backend.
const (
	StepTotal        = "dataloader_step_total"
	StepDuration     = "dataloader_step_duration_seconds"
	RecordsTotal     = "dataloader_records_total"
	FileOutcomeTotal = "dataloader_files_total"
)

// Record kinds counted under RecordsTotal.
const (
	KindProcessed = "processed"
	KindInserted  = "inserted"
	KindUpdated   = "updated"
	KindErrored   = "errored"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a duration-style value.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes buffered metrics.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing one.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordStep counts one execution of a pipeline step (e.g. "metadata",
// "template", "file") and observes its duration.
func RecordStep(job, step string, err error, d time.Duration) {
	lbls := Labels{"job": job, "step": step, "status": status(err)}
	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRows adds delta records of kind for table. Non-positive deltas are
// ignored.
func RecordRows(job, table, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RecordsTotal, float64(delta), Labels{"job": job, "table": table, "kind": kind})
}

// RecordFile counts one finished file under its outcome ("ok" or an error
// kind such as "table_not_found").
func RecordFile(job, outcome string) {
	backend.IncCounter(FileOutcomeTotal, 1, Labels{"job": job, "outcome": outcome})
}
