package model

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// Record is one opaque input row, e.g. a single employee's pay line. Records
// are open-ended key/value maps; the only contract is that each carries one of
// its task type's identifying keys.
type Record map[string]any

// Batch is an ordered sequence of records analyzed together.
type Batch []Record

// ID returns the first non-empty identifying value of r for task type t.
func (r Record) ID(t TaskType) (string, bool) {
	for _, k := range t.IdentifyingKeys() {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		s := FormatValue(v)
		if s != "" {
			return s, true
		}
	}
	return "", false
}

// FormatValue renders a scalar record value as text. Floats never use exponent
// form, so a decoded 1000123 renders as "1000123" wherever ids are compared.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return fmt.Sprint(t)
	}
}

// Keys returns the record's keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of r. Values are opaque scalars in practice, so
// a shallow copy is enough to keep corrections from mutating the caller's input.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Clone copies every record of b.
func (b Batch) Clone() Batch {
	if b == nil {
		return nil
	}
	out := make(Batch, len(b))
	for i, r := range b {
		out[i] = r.Clone()
	}
	return out
}

// SameShape reports whether other has the same record count as b and each
// record carries exactly the same key set as its counterpart.
func (b Batch) SameShape(other Batch) bool {
	if len(b) != len(other) {
		return false
	}
	for i := range b {
		if !reflect.DeepEqual(b[i].Keys(), other[i].Keys()) {
			return false
		}
	}
	return true
}

// AnalysisRequest is a single unit of work for the orchestrator. It is
// consumed once: one attempt plus at most one fallback.
type AnalysisRequest struct {
	TaskType      TaskType `json:"task_type"`
	Records       Batch    `json:"records"`
	CorrelationID string   `json:"correlation_id"`
}
