package models

import (
	"time"
)

// Record is an opaque key/value payload describing one entity. Keys are
// dot-notated paths; values may be primitives, times, arrays, or nested
// maps. Arrays are treated as leaves by the merge field walk.
type Record map[string]any

// Clone returns a deep copy of the record. Nested maps and slices are
// copied; primitive values are shared (they are immutable).
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case Record:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// SourceRecord is one input record participating in matching or merging.
type SourceRecord struct {
	ID        string    `json:"id" validate:"required"`
	Record    Record    `json:"record" validate:"required"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the source record, payload included.
func (s SourceRecord) Clone() SourceRecord {
	out := s
	out.Record = s.Record.Clone()
	return out
}

// PairSide is one side of a candidate pair: the record plus its identity
// and an optional source tag naming the system it arrived from.
type PairSide struct {
	ID     string `json:"id" validate:"required"`
	Source string `json:"source,omitempty"`
	Record Record `json:"record" validate:"required"`
}

// RecordPair is two records presented to the matching engine for scoring.
type RecordPair struct {
	Left  PairSide `json:"left"`
	Right PairSide `json:"right"`
}

// SortOrder controls result ordering in list/query operations.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)
