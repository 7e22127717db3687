package records

import (
	"time"

	"github.com/8arr3tt/have-we-met-sub007/pkg/database"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

func FromSourceRecord(record models.SourceRecord, now time.Time) *SourceRecordRow {
	row := &SourceRecordRow{
		ID:        record.ID,
		Record:    database.JSONB[models.Record]{Data: record.Record},
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = now
	}
	return row
}

type SourceRecordRow struct {
	ID        string                        `db:"id"`
	Record    database.JSONB[models.Record] `db:"record"`
	CreatedAt time.Time                     `db:"created_at"`
	UpdatedAt time.Time                     `db:"updated_at"`
}

const recordsTable = "source_records"

var sourceRecordStruct = database.NewStruct(new(SourceRecordRow))

func ToSourceRecord(row *SourceRecordRow) models.SourceRecord {
	return models.SourceRecord{
		ID:        row.ID,
		Record:    row.Record.Data,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
