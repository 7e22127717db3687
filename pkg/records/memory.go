// Package records provides source record stores implementing the
// DatabaseAdapter contract.
package records

import (
	"context"
	"sort"
	"sync"

	"github.com/8arr3tt/have-we-met-sub007/pkg/criteria"
	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/fieldpath"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// MemoryAdapter is the in-process DatabaseAdapter used by tests and
// single-node deployments. All results are deep copies.
type MemoryAdapter struct {
	mu      sync.RWMutex
	records map[string]models.SourceRecord
	// order preserves insertion sequence so unordered queries stay stable.
	order []string
}

var _ models.DatabaseAdapter = (*MemoryAdapter)(nil)

// NewMemoryAdapter returns an empty in-memory record store.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{records: make(map[string]models.SourceRecord)}
}

// FindByBlockingKeys returns records whose payloads carry every given
// blocking key value. Keys are dot-notated paths.
func (a *MemoryAdapter) FindByBlockingKeys(ctx context.Context, keys map[string]any, opts models.QueryOptions) ([]models.SourceRecord, error) {
	filter := models.FilterCriteria{}
	for path, value := range keys {
		filter[path] = value
	}
	return a.FindAll(ctx, filter, opts)
}

// FindByIDs returns the stored records matching the requested ids, in
// request order. Missing ids are simply absent from the result.
func (a *MemoryAdapter) FindByIDs(_ context.Context, ids []string) ([]models.SourceRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	found := make([]models.SourceRecord, 0, len(ids))
	for _, id := range ids {
		if record, ok := a.records[id]; ok {
			found = append(found, record.Clone())
		}
	}
	return found, nil
}

// FindAll returns the records matching the filter, ordered and paged per
// the query options.
func (a *MemoryAdapter) FindAll(_ context.Context, filter models.FilterCriteria, opts models.QueryOptions) ([]models.SourceRecord, error) {
	if err := criteria.Validate(filter); err != nil {
		return nil, err
	}

	a.mu.RLock()
	matched := a.matchLocked(filter)
	a.mu.RUnlock()

	sortRecords(matched, opts.OrderBy, opts.OrderDirection)

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return []models.SourceRecord{}, nil
		}
		matched = matched[opts.Offset:]
	}
	if limit := opts.EffectiveLimit(); len(matched) > limit {
		matched = matched[:limit]
	}

	if len(opts.Fields) > 0 {
		for i := range matched {
			matched[i].Record = Project(matched[i].Record, opts.Fields)
		}
	}
	return matched, nil
}

// Count returns how many stored records match the filter.
func (a *MemoryAdapter) Count(_ context.Context, filter models.FilterCriteria) (int, error) {
	if err := criteria.Validate(filter); err != nil {
		return 0, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.matchLocked(filter)), nil
}

// Insert stores a new record. Duplicate ids are rejected.
func (a *MemoryAdapter) Insert(_ context.Context, record models.SourceRecord) error {
	if record.ID == "" {
		return &errors.MergeValidationError{Reason: "record requires an id"}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.insertLocked(record)
}

func (a *MemoryAdapter) insertLocked(record models.SourceRecord) error {
	if _, exists := a.records[record.ID]; exists {
		return &errors.DuplicateRecordError{ID: record.ID}
	}
	a.records[record.ID] = record.Clone()
	a.order = append(a.order, record.ID)
	return nil
}

// Update replaces a stored record.
func (a *MemoryAdapter) Update(_ context.Context, record models.SourceRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.records[record.ID]; !exists {
		return &errors.RecordNotFoundError{ID: record.ID}
	}
	a.records[record.ID] = record.Clone()
	return nil
}

// Delete removes a stored record.
func (a *MemoryAdapter) Delete(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.records[id]; !exists {
		return &errors.RecordNotFoundError{ID: id}
	}
	delete(a.records, id)
	for i, existing := range a.order {
		if existing == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	return nil
}

// BatchInsert stores the records atomically: one duplicate rejects the
// whole batch.
func (a *MemoryAdapter) BatchInsert(_ context.Context, records []models.SourceRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, record := range records {
		if record.ID == "" {
			return &errors.MergeValidationError{Reason: "record requires an id"}
		}
		if _, exists := a.records[record.ID]; exists {
			return &errors.DuplicateRecordError{ID: record.ID}
		}
	}
	for _, record := range records {
		if err := a.insertLocked(record); err != nil {
			return err
		}
	}
	return nil
}

// BatchUpdate replaces the records atomically: one missing id rejects the
// whole batch.
func (a *MemoryAdapter) BatchUpdate(_ context.Context, records []models.SourceRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, record := range records {
		if _, exists := a.records[record.ID]; !exists {
			return &errors.RecordNotFoundError{ID: record.ID}
		}
	}
	for _, record := range records {
		a.records[record.ID] = record.Clone()
	}
	return nil
}

// Transaction runs fn directly. The in-memory store has no isolation to
// offer beyond its per-call locking.
func (a *MemoryAdapter) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Len returns the number of stored records.
func (a *MemoryAdapter) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}

// matchLocked applies the filter, ignoring pagination.
func (a *MemoryAdapter) matchLocked(filter models.FilterCriteria) []models.SourceRecord {
	matched := make([]models.SourceRecord, 0, len(a.records))
	for _, id := range a.order {
		record := a.records[id]
		if !criteria.Matches(record.Record, filter) {
			continue
		}
		matched = append(matched, record.Clone())
	}
	return matched
}

// sortRecords orders by a payload path, with created_at and updated_at
// resolving to the record envelope. Ties keep insertion order.
func sortRecords(records []models.SourceRecord, orderBy string, direction models.SortOrder) {
	if orderBy == "" {
		return
	}
	desc := direction == models.SortDesc

	sort.SliceStable(records, func(i, j int) bool {
		var less bool
		switch orderBy {
		case "created_at":
			if records[i].CreatedAt.Equal(records[j].CreatedAt) {
				return false
			}
			less = records[i].CreatedAt.Before(records[j].CreatedAt)
		case "updated_at":
			if records[i].UpdatedAt.Equal(records[j].UpdatedAt) {
				return false
			}
			less = records[i].UpdatedAt.Before(records[j].UpdatedAt)
		case "id":
			if records[i].ID == records[j].ID {
				return false
			}
			less = records[i].ID < records[j].ID
		default:
			cmp := comparePayloadValues(records[i].Record, records[j].Record, orderBy)
			if cmp == 0 {
				return false
			}
			less = cmp < 0
		}
		if desc {
			return !less
		}
		return less
	})
}

func comparePayloadValues(left, right models.Record, path string) int {
	lv, lok := fieldpath.Get(left, path)
	rv, rok := fieldpath.Get(right, path)
	// missing values order after present ones
	if !lok && !rok {
		return 0
	}
	if !lok {
		return 1
	}
	if !rok {
		return -1
	}

	if lf, ok := toFloat(lv); ok {
		if rf, ok := toFloat(rv); ok {
			switch {
			case lf < rf:
				return -1
			case lf > rf:
				return 1
			default:
				return 0
			}
		}
	}

	ls, lsOK := lv.(string)
	rs, rsOK := rv.(string)
	if lsOK && rsOK {
		switch {
		case ls < rs:
			return -1
		case ls > rs:
			return 1
		default:
			return 0
		}
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Project reduces a payload to the requested dot-notated paths. Missing
// paths are skipped.
func Project(record models.Record, fields []string) models.Record {
	out := models.Record{}
	for _, path := range fields {
		if value, ok := fieldpath.Get(record, path); ok {
			fieldpath.Set(out, path, value)
		}
	}
	return out
}
