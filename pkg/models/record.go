package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Record is one extracted row. Its field set is fixed at construction and
// every field holds nil, a string or a float64.
type Record struct {
	fields []string
	values map[string]any
}

// NewRecord creates a record with every field set to nil
func NewRecord(fields []string) *Record {
	r := &Record{
		fields: fields,
		values: make(map[string]any, len(fields)),
	}
	for _, f := range fields {
		r.values[f] = nil
	}
	return r
}

// Fields returns the record's field names in schema order
func (r *Record) Fields() []string {
	return r.fields
}

// Has reports whether name is part of the record's field set
func (r *Record) Has(name string) bool {
	_, ok := r.values[name]
	return ok
}

// Set stores a value. Unknown fields are ignored so the field set never changes.
// Integers are widened to float64; NaN and infinities are stored as null.
func (r *Record) Set(name string, v any) {
	if !r.Has(name) {
		return
	}
	r.values[name] = normalize(v)
}

// Get returns the value of a field (nil when absent or unknown)
func (r *Record) Get(name string) any {
	return r.values[name]
}

// String returns a field's value if it holds a non-empty string
func (r *Record) String(name string) (string, bool) {
	s, ok := r.values[name].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Number returns a field's value if it holds a number
func (r *Record) Number(name string) (float64, bool) {
	n, ok := r.values[name].(float64)
	return n, ok
}

// Key returns the field's value formatted as a dedup key; empty when null
func (r *Record) Key(name string) string {
	return FormatValue(r.values[name])
}

// Map returns the values as a plain map
func (r *Record) Map() map[string]any {
	m := make(map[string]any, len(r.values))
	for k, v := range r.values {
		m[k] = v
	}
	return m
}

// MarshalJSON writes the fields in schema order, absent values as null
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.values[f])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FormatValue renders a record value as text (used for CSV and keys)
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return normalize(float64(t))
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	default:
		return v
	}
}
