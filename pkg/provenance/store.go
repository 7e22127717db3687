// Package provenance tracks which source records produced each golden
// record, so merges stay auditable and reversible.
package provenance

import (
	"context"
	"time"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// UnmergeMeta is the audit trail attached when a merge is undone.
type UnmergeMeta struct {
	UnmergedAt time.Time
	UnmergedBy string
	Reason     string
}

// Store persists merge attribution. Save upserts by golden record id and
// keeps a source-id index current so reverse lookups stay cheap.
type Store interface {
	Save(ctx context.Context, p *models.Provenance) error
	// Get returns a ProvenanceNotFoundError when no row exists.
	Get(ctx context.Context, goldenRecordID string) (*models.Provenance, error)
	Exists(ctx context.Context, goldenRecordID string) (bool, error)
	Delete(ctx context.Context, goldenRecordID string) error
	// Count tallies stored rows, skipping unmerged ones unless asked.
	Count(ctx context.Context, includeUnmerged bool) (int, error)
	Clear(ctx context.Context) error

	// GetBySourceID returns every provenance row a source record took part
	// in, newest merge first unless the query says otherwise.
	GetBySourceID(ctx context.Context, sourceRecordID string, query models.ProvenanceQuery) ([]*models.Provenance, error)

	// MarkUnmerged flags a row as undone while keeping the original merge
	// metadata intact.
	MarkUnmerged(ctx context.Context, goldenRecordID string, meta UnmergeMeta) error

	// GetFieldHistory lists the recorded attributions of one field.
	GetFieldHistory(ctx context.Context, goldenRecordID, field string) ([]models.FieldHistoryEntry, error)

	// GetMergeTimeline returns merges inside the query window, oldest first
	// unless the query says otherwise.
	GetMergeTimeline(ctx context.Context, query models.TimelineQuery) ([]*models.Provenance, error)

	// FindGoldenRecordsBySource returns the ids of the golden records a
	// source record currently contributes to. Unmerged rows are excluded.
	FindGoldenRecordsBySource(ctx context.Context, sourceRecordID string) ([]string, error)
}
