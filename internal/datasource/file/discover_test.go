package file

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestDiscover_LayoutAndModes(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	writeFile(t, filepath.Join(base, "Reference", "dbo.Employee.csv"), "Id\n")
	writeFile(t, filepath.Join(base, "Reference", "Dept.CSV"), "Id\n")
	writeFile(t, filepath.Join(base, "Reference", "notes.txt"), "skip")
	writeFile(t, filepath.Join(base, "updateable", "Employee.csv"), "Id\n")
	writeFile(t, filepath.Join(base, "stray.csv"), "top-level files are ignored")
	if err := os.MkdirAll(filepath.Join(base, "Reference", "nested.csv"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	jobs, err := Discover(base, Options{})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	type got struct {
		group, table string
		safe         bool
	}
	want := []got{
		{"Reference", "Dept", false},
		{"Reference", "dbo.Employee", false},
		{"updateable", "Employee", true},
	}
	if len(jobs) != len(want) {
		t.Fatalf("Discover() = %d jobs, want %d: %+v", len(jobs), len(want), jobs)
	}
	for i, j := range jobs {
		if (got{j.Group, j.Table, j.Safe}) != want[i] {
			t.Fatalf("jobs[%d] = %+v, want %+v", i, got{j.Group, j.Table, j.Safe}, want[i])
		}
	}

	rc, err := jobs[0].Source.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "Id\n" {
		t.Fatalf("Open() content = %q", b)
	}
}

func TestDiscover_CustomOptions(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	writeFile(t, filepath.Join(base, "Live", "a.tsv"), "")
	writeFile(t, filepath.Join(base, "Live", "b.csv"), "")

	jobs, err := Discover(base, Options{UpdateableDir: "live", Extension: "tsv"})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(jobs) != 1 || jobs[0].Table != "a" || !jobs[0].Safe {
		t.Fatalf("Discover() = %+v", jobs)
	}
}

func TestDiscover_MissingBase(t *testing.T) {
	t.Parallel()

	_, err := Discover(filepath.Join(t.TempDir(), "nope"), Options{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Discover() error = %v, want ErrNotExist", err)
	}
}

func TestLocalOpen_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLocal("/does/not/matter").Open(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Open() error = %v, want context.Canceled", err)
	}
}
