package model

import (
	"encoding/json"
	"strconv"
	"time"
)

type (
	// Record is one message of a category. The schema is defined by OpenF1,
	// values are accessed defensively.
	Record map[string]any
	// Collections holds the raw records per category (a historical batch or the
	// current buffer contents).
	Collections map[Category][]Record
)

// date layouts used by OpenF1
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func (r Record) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

func (r Record) Int(key string) (int, bool) {
	switch val := r[key].(type) {
	case int:
		return val, true
	case int32:
		return int(val), true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i), true
		}
		if f, err := val.Float64(); err == nil {
			return int(f), true
		}
	case string:
		if i, err := strconv.Atoi(val); err == nil {
			return i, true
		}
	}
	return -1, false
}

func (r Record) Float(key string) (float64, bool) {
	switch val := r[key].(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f, true
		}
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
	}
	return -1, false
}

func (r Record) String(key string) (string, bool) {
	switch val := r[key].(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case nil:
		return "", false
	default:
		return "", false
	}
}

// StringOr returns the string value of key or def if missing/empty
func (r Record) StringOr(key, def string) string {
	if s, ok := r.String(key); ok && s != "" {
		return s
	}
	return def
}

func (r Record) Bool(key string) (bool, bool) {
	if b, ok := r[key].(bool); ok {
		return b, true
	}
	return false, false
}

func (r Record) Time(key string) (time.Time, bool) {
	s, ok := r.String(key)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DriverNumber returns the driver_number field of the record
func (r Record) DriverNumber() (int, bool) {
	n, ok := r.Int("driver_number")
	if !ok || n <= 0 {
		return -1, false
	}
	return n, true
}

// Clone returns a shallow copy of the record
func (r Record) Clone() Record {
	ret := make(Record, len(r))
	for k, v := range r {
		ret[k] = v
	}
	return ret
}

// Get returns the records of category c (nil when absent)
func (c Collections) Get(cat Category) ([]Record, bool) {
	v, ok := c[cat]
	return v, ok
}
