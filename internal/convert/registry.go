// Package convert turns raw delimited-text fields into values of a column's
// native type. Converters live in an explicit Registry keyed by schema.Kind;
// the registry is built once at pipeline start and handed to a Service, so
// nothing here is process-global.
package convert

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"

	"dataloader/internal/schema"
)

// Converter parses one field's text into a native value.
type Converter interface {
	ConvertFromString(text string) (any, error)
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc func(text string) (any, error)

// ConvertFromString calls f(text).
func (f ConverterFunc) ConvertFromString(text string) (any, error) { return f(text) }

// Registry maps kinds to converters.
type Registry struct {
	converters map[schema.Kind]Converter
}

// NewRegistry returns a registry with the built-in converters for every kind.
func NewRegistry() *Registry {
	r := &Registry{converters: make(map[schema.Kind]Converter, 16)}
	r.Register(schema.KindString, ConverterFunc(func(s string) (any, error) { return s, nil }))
	r.Register(schema.KindInt64, intConverter(64))
	r.Register(schema.KindInt32, intConverter(32))
	r.Register(schema.KindInt16, intConverter(16))
	r.Register(schema.KindUint8, ConverterFunc(parseUint8))
	r.Register(schema.KindBool, ConverterFunc(parseBool))
	r.Register(schema.KindFloat64, floatConverter(64))
	r.Register(schema.KindFloat32, floatConverter(32))
	r.Register(schema.KindDecimal, ConverterFunc(parseDecimal))
	r.Register(schema.KindDate, ConverterFunc(parseDateTime))
	r.Register(schema.KindDateTime, ConverterFunc(parseDateTime))
	r.Register(schema.KindDateTimeOffset, ConverterFunc(parseDateTime))
	r.Register(schema.KindTime, ConverterFunc(parseClock))
	r.Register(schema.KindUUID, ConverterFunc(parseUUID))
	r.Register(schema.KindBytes, ConverterFunc(parseHex))
	return r
}

// Register installs c for kind and returns the converter it replaced, if any.
func (r *Registry) Register(kind schema.Kind, c Converter) Converter {
	prev := r.converters[kind]
	r.converters[kind] = c
	return prev
}

// Lookup returns the converter for kind.
func (r *Registry) Lookup(kind schema.Kind) (Converter, bool) {
	c, ok := r.converters[kind]
	return c, ok
}

// WithTimeOfDay installs TimeOfDay for schema.KindTime on top of whatever
// converter was registered for it, and returns r.
func WithTimeOfDay(r *Registry) *Registry {
	prev, _ := r.Lookup(schema.KindTime)
	r.Register(schema.KindTime, TimeOfDay{Default: prev})
	return r
}

// TimeOfDay reads any textual timestamp as a duration: the text is parsed
// as a full date-time and only its time of day is kept. Empty text goes to
// Default.
type TimeOfDay struct {
	Default Converter
}

// ConvertFromString implements Converter.
func (c TimeOfDay) ConvertFromString(text string) (any, error) {
	if text == "" {
		if c.Default == nil {
			return nil, fmt.Errorf("empty time value")
		}
		return c.Default.ConvertFromString(text)
	}
	t, err := dateparse.ParseAny(text)
	if err != nil {
		// Bare clock text is a valid timestamp with an implied date.
		if d, cerr := parseClock(text); cerr == nil {
			return d, nil
		}
		return nil, err
	}
	return sinceMidnight(t), nil
}

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

// --- built-in converters -----------------------------------------------------

func intConverter(bits int) Converter {
	return ConverterFunc(func(s string) (any, error) {
		v, err := strconv.ParseInt(s, 10, bits)
		if err != nil {
			return nil, err
		}
		switch bits {
		case 16:
			return int16(v), nil
		case 32:
			return int32(v), nil
		default:
			return v, nil
		}
	})
}

func parseUint8(s string) (any, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return nil, err
	}
	return uint8(v), nil
}

func floatConverter(bits int) Converter {
	return ConverterFunc(func(s string) (any, error) {
		v, err := strconv.ParseFloat(s, bits)
		if err != nil {
			return nil, err
		}
		if bits == 32 {
			return float32(v), nil
		}
		return v, nil
	})
}

// parseDecimal validates s as an exact decimal and passes the text through so
// no precision is lost on the way to the server.
func parseDecimal(s string) (any, error) {
	if strings.ContainsRune(s, '/') {
		return nil, fmt.Errorf("invalid decimal %q", s)
	}
	if _, ok := new(big.Rat).SetString(s); !ok {
		return nil, fmt.Errorf("invalid decimal %q", s)
	}
	return s, nil
}

func parseBool(s string) (any, error) {
	switch strings.ToLower(s) {
	case "1", "t", "true", "yes", "y":
		return true, nil
	case "0", "f", "false", "no", "n":
		return false, nil
	default:
		return nil, fmt.Errorf("invalid boolean %q", s)
	}
}

func parseDateTime(s string) (any, error) {
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return nil, err
	}
	return t, nil
}

var clockLayouts = []string{"15:04:05.999999999", "15:04:05", "15:04"}

// parseClock reads "hh:mm[:ss[.fffffff]]" into a duration since midnight.
func parseClock(s string) (any, error) {
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return sinceMidnight(t), nil
		}
	}
	return nil, fmt.Errorf("invalid time of day %q", s)
}

func parseUUID(s string) (any, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func parseHex(s string) (any, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return b, nil
}
