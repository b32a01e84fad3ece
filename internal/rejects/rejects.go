// Package rejects writes the records a load could not apply to a CSV file
// next to the reason they failed, so they can be fixed and reloaded.
package rejects

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// leading columns written before the record's own fields.
var leading = []string{"reason", "line_number", "error"}

// Log is an open rejects file. It is not safe for concurrent use.
type Log struct {
	path    string
	f       *os.File
	w       *csv.Writer
	reasons map[string]int
}

// Create creates path (and its parent directories) and writes the header:
// the leading reason columns followed by headers.
func Create(path string, headers []string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create rejects file: %w", err)
	}
	w := csv.NewWriter(f)
	hdr := make([]string, 0, len(leading)+len(headers))
	hdr = append(append(hdr, leading...), headers...)
	if err := w.Write(hdr); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write rejects header: %w", err)
	}
	return &Log{path: path, f: f, w: w, reasons: make(map[string]int)}, nil
}

// Path returns the file being written.
func (l *Log) Path() string { return l.path }

// Add appends one rejected record.
func (l *Log) Add(reason string, line int, msg string, record []string) error {
	l.reasons[reason]++
	row := make([]string, 0, len(leading)+len(record))
	row = append(row, reason, strconv.Itoa(line), msg)
	row = append(row, record...)
	return l.w.Write(row)
}

// Counts returns the number of rejects per reason.
func (l *Log) Counts() map[string]int {
	out := make(map[string]int, len(l.reasons))
	for k, v := range l.reasons {
		out[k] = v
	}
	return out
}

// Close flushes and closes the file.
func (l *Log) Close() error {
	l.w.Flush()
	werr := l.w.Error()
	cerr := l.f.Close()
	if werr != nil {
		return fmt.Errorf("flush rejects: %w", werr)
	}
	return cerr
}
