package datadog

import (
	"reflect"
	"testing"

	"dataloader/internal/metrics"
)

type recorder struct {
	counts []string
	hists  []string
	tags   [][]string
	closed bool
}

func (r *recorder) Count(name string, _ int64, tags []string, _ float64) error {
	r.counts = append(r.counts, name)
	r.tags = append(r.tags, tags)
	return nil
}

func (r *recorder) Histogram(name string, _ float64, tags []string, _ float64) error {
	r.hists = append(r.hists, name)
	r.tags = append(r.tags, tags)
	return nil
}

func (r *recorder) Close() error {
	r.closed = true
	return nil
}

func TestNewBackend_RequiresAddr(t *testing.T) {
	if _, err := NewBackend(Config{}); err == nil {
		t.Fatalf("NewBackend(empty) error = nil")
	}
}

func TestNewBackend_UDP(t *testing.T) {
	// UDP needs no listener for the client to be created.
	b, err := NewBackend(Config{Addr: "127.0.0.1:8125", Namespace: "dataloader.", GlobalTags: []string{"env:test"}})
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": metrics.KindInserted})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
}

func TestBackend_ForwardsWithTags(t *testing.T) {
	rec := &recorder{}
	b := &Backend{client: rec}

	b.IncCounter(metrics.RecordsTotal, 2, metrics.Labels{"table": "Dept", "kind": metrics.KindUpdated, "job": "nightly"})
	b.ObserveHistogram(metrics.StepDuration, 0.25, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if !reflect.DeepEqual(rec.counts, []string{metrics.RecordsTotal}) || !reflect.DeepEqual(rec.hists, []string{metrics.StepDuration}) {
		t.Fatalf("recorded = %v / %v", rec.counts, rec.hists)
	}
	want := []string{"job:nightly", "kind:updated", "table:Dept"}
	if !reflect.DeepEqual(rec.tags[0], want) {
		t.Fatalf("tags = %v, want %v", rec.tags[0], want)
	}
	if rec.tags[1] != nil {
		t.Fatalf("empty labels tags = %v, want nil", rec.tags[1])
	}
	if !rec.closed {
		t.Fatalf("Flush() did not close client")
	}
}

func TestZeroBackend(t *testing.T) {
	b := &Backend{}
	b.IncCounter("x", 1, nil)
	b.ObserveHistogram("x", 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
}
