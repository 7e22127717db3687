package reviewqueue

import (
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/8arr3tt/have-we-met-sub007/pkg/database"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

func FromQueueItem(item *models.QueueItem) *QueueItemRow {
	row := &QueueItemRow{
		ID:               item.ID,
		CandidateRecord:  database.JSONB[models.SourceRecord]{Data: item.CandidateRecord},
		PotentialMatches: database.JSONB[[]models.PotentialMatch]{Data: item.PotentialMatches},
		Status:           string(item.Status),
		Priority:         item.Priority,
		Tags:             pq.StringArray(item.Tags),
		Context:          database.JSONB[map[string]any]{Data: item.Context},
		CreatedAt:        item.CreatedAt,
		UpdatedAt:        item.UpdatedAt,
		DecidedBy:        sql.NullString{String: item.DecidedBy, Valid: item.DecidedBy != ""},
		Decision:         database.JSONB[*models.Decision]{Data: item.Decision},
		ReviewedBy:       sql.NullString{String: item.ReviewedBy, Valid: item.ReviewedBy != ""},
	}
	if item.DecidedAt != nil {
		row.DecidedAt = sql.NullTime{Time: *item.DecidedAt, Valid: true}
	}
	return row
}

type QueueItemRow struct {
	ID               string                                  `db:"id"`
	CandidateRecord  database.JSONB[models.SourceRecord]     `db:"candidate_record"`
	PotentialMatches database.JSONB[[]models.PotentialMatch] `db:"potential_matches"`
	Status           string                                  `db:"status"`
	Priority         int                                     `db:"priority"`
	Tags             pq.StringArray                          `db:"tags"`
	Context          database.JSONB[map[string]any]          `db:"context"`
	CreatedAt        time.Time                               `db:"created_at"`
	UpdatedAt        time.Time                               `db:"updated_at"`
	DecidedAt        sql.NullTime                            `db:"decided_at"`
	DecidedBy        sql.NullString                          `db:"decided_by"`
	Decision         database.JSONB[*models.Decision]        `db:"decision"`
	ReviewedBy       sql.NullString                          `db:"reviewed_by"`
}

const queueTable = "review_queue"

var queueItemStruct = database.NewStruct(new(QueueItemRow))

func ToQueueItem(row *QueueItemRow) *models.QueueItem {
	item := &models.QueueItem{
		ID:               row.ID,
		CandidateRecord:  row.CandidateRecord.Data,
		PotentialMatches: row.PotentialMatches.Data,
		Status:           models.QueueStatus(row.Status),
		Priority:         row.Priority,
		Tags:             []string(row.Tags),
		Context:          row.Context.Data,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
		DecidedBy:        row.DecidedBy.String,
		Decision:         row.Decision.Data,
		ReviewedBy:       row.ReviewedBy.String,
	}
	if row.DecidedAt.Valid {
		t := row.DecidedAt.Time
		item.DecidedAt = &t
	}
	return item
}
