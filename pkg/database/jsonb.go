package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB maps a jsonb column onto a typed Go value. Record payloads,
// potential-match lists, and provenance field maps all ride through this
// wrapper, so it implements both Scan and Value.
type JSONB[T any] struct {
	Data T
}

// Scan decodes the column into Data. A NULL column leaves Data at its
// zero value; the reviewqueue decision column relies on that.
func (j *JSONB[T]) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		var zero T
		j.Data = zero
		return nil
	case []byte:
		return json.Unmarshal(v, &j.Data)
	case string:
		return json.Unmarshal([]byte(v), &j.Data)
	default:
		return fmt.Errorf("JSONB.Scan: expected []byte or string, got %T", src)
	}
}

// Value encodes Data for the driver.
func (j JSONB[T]) Value() (driver.Value, error) {
	return json.Marshal(j.Data)
}
