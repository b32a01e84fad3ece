package convert

import (
	"strings"
	"unicode/utf8"

	"dataloader/internal/loaderr"
	"dataloader/internal/schema"
)

// nullToken is the literal that nullable columns read as NULL.
const nullToken = "NULL"

// Service resolves field values against column descriptors.
type Service struct {
	reg *Registry
}

// NewService returns a Service using reg. A nil reg gets the built-ins plus
// the time-of-day extension.
func NewService(reg *Registry) *Service {
	if reg == nil {
		reg = WithTimeOfDay(NewRegistry())
	}
	return &Service{reg: reg}
}

// Value converts raw for col. A nil value with a nil error is the database
// NULL. Rules, in order:
//   - textual columns are truncated to MaxLength characters and never NULL;
//   - nullable columns read blank text or NULL (any case) as NULL;
//   - everything else goes through the registry converter for col.Kind.
//
// Failures are *loaderr.Error with Kind ValueConversion.
func (s *Service) Value(col schema.Column, raw string) (any, error) {
	if col.Kind.Textual() {
		return Truncate(raw, col.MaxLength), nil
	}
	if col.Nullable && IsNullToken(raw) {
		return nil, nil
	}

	conv, ok := s.reg.Lookup(col.Kind)
	if !ok {
		return nil, conversionError(col, raw, errNoConverter)
	}
	v, err := conv.ConvertFromString(strings.TrimSpace(raw))
	if err != nil {
		return nil, conversionError(col, raw, err)
	}
	return v, nil
}

// IsNullToken reports whether raw stands for NULL in a nullable column.
func IsNullToken(raw string) bool {
	t := strings.TrimSpace(raw)
	return t == "" || strings.EqualFold(t, nullToken)
}

// Truncate cuts s to at most n characters; n <= 0 means no limit.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n || utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

type converterError string

func (e converterError) Error() string { return string(e) }

const errNoConverter = converterError("no converter registered")

func conversionError(col schema.Column, raw string, err error) error {
	typ := col.Kind.String()
	if col.TypeName != "" {
		typ = col.TypeName
	}
	return &loaderr.Error{
		Kind:   loaderr.ValueConversion,
		Column: col.Name,
		Value:  raw,
		Type:   typ,
		Err:    err,
	}
}
