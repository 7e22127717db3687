package models

import (
	"context"
)

// Filter operators accepted inside FilterCriteria condition maps.
const (
	OpEq   = "$eq"
	OpNe   = "$ne"
	OpGt   = "$gt"
	OpGte  = "$gte"
	OpLt   = "$lt"
	OpLte  = "$lte"
	OpIn   = "$in"
	OpLike = "$like"
)

// FilterCriteria selects records by field value. A plain value means
// equality; a map of operator to operand applies that comparison.
// Keys are dot-notated field paths.
type FilterCriteria map[string]any

// QueryOptions pages and orders adapter reads.
type QueryOptions struct {
	// Limit defaults to 1000 to keep unbounded scans off the hot path.
	Limit          int       `json:"limit,omitempty"`
	Offset         int       `json:"offset,omitempty"`
	OrderBy        string    `json:"order_by,omitempty"`
	OrderDirection SortOrder `json:"order_direction,omitempty"`
	// Fields projects the returned payload to these paths.
	Fields []string `json:"fields,omitempty"`
}

// EffectiveLimit resolves the default page size.
func (o QueryOptions) EffectiveLimit() int {
	if o.Limit <= 0 {
		return 1000
	}
	return o.Limit
}

// DatabaseAdapter is the storage contract the toolkit depends on for source
// records. Implementations wrap a concrete backend; the toolkit never
// touches a driver directly.
type DatabaseAdapter interface {
	// FindByBlockingKeys returns candidate records sharing the given
	// blocking key values, used to keep pairwise scoring tractable.
	FindByBlockingKeys(ctx context.Context, keys map[string]any, opts QueryOptions) ([]SourceRecord, error)
	FindByIDs(ctx context.Context, ids []string) ([]SourceRecord, error)
	FindAll(ctx context.Context, filter FilterCriteria, opts QueryOptions) ([]SourceRecord, error)
	Count(ctx context.Context, filter FilterCriteria) (int, error)
	Insert(ctx context.Context, record SourceRecord) error
	Update(ctx context.Context, record SourceRecord) error
	Delete(ctx context.Context, id string) error
	BatchInsert(ctx context.Context, records []SourceRecord) error
	BatchUpdate(ctx context.Context, records []SourceRecord) error
	// Transaction runs fn atomically when the backend supports it.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// QueueAdapter is the storage contract behind the review queue.
type QueueAdapter interface {
	Insert(ctx context.Context, item *QueueItem) error
	Update(ctx context.Context, item *QueueItem) error
	Get(ctx context.Context, id string) (*QueueItem, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter QueueFilter) ([]*QueueItem, error)
	Count(ctx context.Context, filter QueueFilter) (int, error)
}
