// Package csv reads header-first delimited files one record at a time.
//
// Input is decoded through a BOM sniffer: UTF-16 files with a byte-order mark
// are transcoded to UTF-8 and a UTF-8 mark is dropped, so the first header
// never carries U+FEFF. Records whose fields are all blank are skipped, and
// short records read as empty strings for the missing fields.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"dataloader/internal/schema"
)

// ErrNoHeader is returned by NewReader for an input without a header row.
var ErrNoHeader = errors.New("csv: no header row")

const utf8BOM = "\uFEFF"

// Options tunes the underlying encoding/csv reader.
type Options struct {
	// Comma is the field delimiter; zero means ','.
	Comma      rune
	LazyQuotes bool
}

// Reader yields data records after the header.
type Reader struct {
	cr      *csv.Reader
	headers []string
	index   map[string]int
	line    int
}

// NewReader wraps r and consumes the header row.
func NewReader(r io.Reader, opt Options) (*Reader, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(decoded)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.LazyQuotes = opt.LazyQuotes
	// Width is not enforced; short rows read as blanks.
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	h, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	headers := normalizeHeaders(h)
	index := make(map[string]int, len(headers))
	for i, name := range headers {
		key := schema.Fold(name)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	return &Reader{cr: cr, headers: headers, index: index}, nil
}

// Headers returns the trimmed header names in file order.
func (r *Reader) Headers() []string { return r.headers }

// Index returns the position of the named header, matched case-insensitively.
func (r *Reader) Index(name string) (int, bool) {
	i, ok := r.index[schema.Fold(name)]
	return i, ok
}

// Read returns the next non-blank record. It returns io.EOF at the end of
// input. A malformed record yields a *csv.ParseError; reading may continue
// after it.
func (r *Reader) Read() ([]string, error) {
	for {
		rec, err := r.cr.Read()
		if err != nil {
			return nil, err
		}
		if !blank(rec) {
			r.line, _ = r.cr.FieldPos(0)
			return rec, nil
		}
	}
}

// Line reports the input line on which the last record read started.
func (r *Reader) Line() int { return r.line }

// Field returns rec[i], or "" when the record is too short.
func Field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}

// IsParseError reports whether err is a per-record syntax error.
func IsParseError(err error) bool {
	var pe *csv.ParseError
	return errors.As(err, &pe)
}

// ErrorLine returns the line a parse error's record started on, or 0.
func ErrorLine(err error) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.StartLine
	}
	return 0
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// normalizeHeaders trims surrounding space and any leftover BOM; case is
// kept because matching against columns folds it.
func normalizeHeaders(h []string) []string {
	res := make([]string, len(h))
	for i, col := range h {
		c := col
		if i == 0 {
			c = strings.TrimPrefix(c, utf8BOM)
		}
		res[i] = strings.TrimSpace(c)
	}
	return res
}
