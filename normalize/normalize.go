// Package normalize owns every coercion of loosely-typed remote payload
// fields. Timestamps arrive as RFC3339 strings, unix seconds, unix
// milliseconds, or numeric strings; numbers sometimes arrive stringified.
// No other package may parse raw payload fields directly.
package normalize

import (
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"time"
)

// Values at or above this are treated as unix milliseconds, below it as
// unix seconds. 946684800000 is midnight 2000-01-01 UTC in milliseconds.
// A true epoch-seconds value that large would be misclassified; accepted
// limitation inherited from observed remote behavior.
const millisThreshold = 946684800000

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp converts a heterogeneous raw timestamp into a UTC instant.
// It never fails: unparseable input logs a warning and yields nil.
func Timestamp(raw any) *time.Time {
	switch v := raw.(type) {
	case nil:
		return nil
	case time.Time:
		if v.IsZero() {
			return nil
		}
		utc := v.UTC()
		return &utc
	case string:
		return timestampFromString(v)
	case json.Number:
		return timestampFromString(v.String())
	case float64:
		return timestampFromUnix(int64(v))
	case int64:
		return timestampFromUnix(v)
	case int:
		return timestampFromUnix(int64(v))
	default:
		log.Printf("normalize: unsupported timestamp type %T", raw)
		return nil
	}
}

func timestampFromString(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if isDigits(raw) {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.Printf("normalize: numeric timestamp overflow %q", raw)
			return nil
		}
		return timestampFromUnix(n)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	log.Printf("normalize: could not parse timestamp %q", raw)
	return nil
}

func timestampFromUnix(n int64) *time.Time {
	if n <= 0 {
		return nil
	}
	var t time.Time
	if n >= millisThreshold {
		t = time.UnixMilli(n).UTC()
	} else {
		t = time.Unix(n, 0).UTC()
	}
	return &t
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// FormatTimestamp renders a nullable instant as canonical ISO-8601 UTC,
// or "" when nil.
func FormatTimestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Float coerces a raw payload number (float, int, numeric string,
// json.Number) into a nullable float. Anything else yields nil.
func Float(raw any) *float64 {
	switch v := raw.(type) {
	case nil:
		return nil
	case float64:
		return &v
	case float32:
		f := float64(v)
		return &f
	case int:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return &f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return &f
		}
	}
	return nil
}

// Int coerces a raw payload number into a nullable int, truncating
// fractional values. Anything non-numeric yields nil.
func Int(raw any) *int {
	switch v := raw.(type) {
	case nil:
		return nil
	case int:
		return &v
	case int64:
		n := int(v)
		return &n
	case float64:
		n := int(v)
		return &n
	case json.Number:
		if i, err := v.Int64(); err == nil {
			n := int(i)
			return &n
		}
		if f, err := v.Float64(); err == nil {
			n := int(f)
			return &n
		}
	case string:
		trimmed := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			n := int(i)
			return &n
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			n := int(f)
			return &n
		}
	}
	return nil
}
