package contracts

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is a loosely typed row at the storage/HTTP boundary.
// Parse* functions turn it into validated structs; nothing past the boundary sees a Record.
type Record map[string]any

// String returns the first non-empty value among keys as a trimmed string
func (r Record) String(keys ...string) string {
	for _, key := range keys {
		v, ok := r[key]
		if !ok || v == nil {
			continue
		}
		var s string
		switch x := v.(type) {
		case string:
			s = x
		case []byte:
			s = string(x)
		case fmt.Stringer:
			s = x.String()
		default:
			s = fmt.Sprint(x)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// Float returns the numeric value of key; ok is false when missing, null or unparsable
func (r Record) Float(key string) (float64, bool) {
	v, exists := r[key]
	if !exists || v == nil {
		return 0, false
	}

	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FloatOr returns the numeric value of key or def
func (r Record) FloatOr(key string, def float64) float64 {
	if f, ok := r.Float(key); ok {
		return f
	}
	return def
}

// Int returns the first parsable integer among keys, or 0
func (r Record) Int(keys ...string) int {
	for _, key := range keys {
		if f, ok := r.Float(key); ok && f != 0 {
			return int(f)
		}
	}
	return 0
}

// Date returns the first present date among keys, normalized with Day
func (r Record) Date(keys ...string) (time.Time, error) {
	for _, key := range keys {
		v, ok := r[key]
		if !ok || v == nil {
			continue
		}
		switch x := v.(type) {
		case time.Time:
			if x.IsZero() {
				continue
			}
			return Day(x), nil
		case string:
			if strings.TrimSpace(x) == "" {
				continue
			}
			return ParseDay(x)
		default:
			return ParseDay(fmt.Sprint(x))
		}
	}
	return time.Time{}, fmt.Errorf("missing %s", strings.Join(keys, "/"))
}
