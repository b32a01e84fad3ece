package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := New(&buf, "info", "json")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	log.Debugw("hidden")
	log.Infow("Loading File", "file", "Employee.csv")
	_ = log.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["msg"] != "Loading File" || entry["file"] != "Employee.csv" {
		t.Fatalf("entry = %v", entry)
	}
}

func TestNew_ConsoleAndUnknownFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := New(&buf, "warn", "console")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	log.Info("skipped")
	log.Warn("Constraints could not be disabled")
	if out := buf.String(); !strings.Contains(out, "WARN") || strings.Contains(out, "skipped") {
		t.Fatalf("console output = %q", out)
	}

	if _, err := New(&buf, "info", "xml"); err == nil {
		t.Fatalf("New(xml) error = nil")
	}
}
