package sourcearchive

import (
	"time"

	"github.com/8arr3tt/have-we-met-sub007/pkg/database"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

func FromSourceRecord(goldenRecordID string, record models.SourceRecord, archivedAt time.Time) *ArchivedRecordRow {
	return &ArchivedRecordRow{
		GoldenRecordID: goldenRecordID,
		SourceRecordID: record.ID,
		Record:         database.JSONB[models.SourceRecord]{Data: record},
		ArchivedAt:     archivedAt,
	}
}

type ArchivedRecordRow struct {
	GoldenRecordID string                              `db:"golden_record_id"`
	SourceRecordID string                              `db:"source_record_id"`
	Record         database.JSONB[models.SourceRecord] `db:"record"`
	ArchivedAt     time.Time                           `db:"archived_at"`
}

const archiveTable = "source_archive"

var archivedRecordStruct = database.NewStruct(new(ArchivedRecordRow))

func ToSourceRecord(row *ArchivedRecordRow) models.SourceRecord {
	return row.Record.Data
}
