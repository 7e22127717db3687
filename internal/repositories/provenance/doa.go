package provenance

import (
	"database/sql"
	"time"

	"github.com/8arr3tt/have-we-met-sub007/pkg/database"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

func FromProvenance(p *models.Provenance) *ProvenanceRow {
	row := &ProvenanceRow{
		GoldenRecordID:  p.GoldenRecordID,
		SourceRecordIDs: database.JSONB[[]string]{Data: p.SourceRecordIDs},
		FieldSources:    database.JSONB[map[string]models.FieldProvenance]{Data: p.FieldSources},
		StrategyUsed:    sql.NullString{String: p.StrategyUsed, Valid: p.StrategyUsed != ""},
		MergedAt:        p.MergedAt,
		MergedBy:        sql.NullString{String: p.MergedBy, Valid: p.MergedBy != ""},
		QueueItemID:     sql.NullString{String: p.QueueItemID, Valid: p.QueueItemID != ""},
		Unmerged:        p.Unmerged,
		UnmergedBy:      sql.NullString{String: p.UnmergedBy, Valid: p.UnmergedBy != ""},
		UnmergeReason:   sql.NullString{String: p.UnmergeReason, Valid: p.UnmergeReason != ""},
	}
	if p.UnmergedAt != nil {
		row.UnmergedAt = sql.NullTime{Time: *p.UnmergedAt, Valid: true}
	}
	return row
}

type ProvenanceRow struct {
	GoldenRecordID  string                                            `db:"golden_record_id"`
	SourceRecordIDs database.JSONB[[]string]                          `db:"source_record_ids"`
	FieldSources    database.JSONB[map[string]models.FieldProvenance] `db:"field_sources"`
	StrategyUsed    sql.NullString                                    `db:"strategy_used"`
	MergedAt        time.Time                                         `db:"merged_at"`
	MergedBy        sql.NullString                                    `db:"merged_by"`
	QueueItemID     sql.NullString                                    `db:"queue_item_id"`
	Unmerged        bool                                              `db:"unmerged"`
	UnmergedAt      sql.NullTime                                      `db:"unmerged_at"`
	UnmergedBy      sql.NullString                                    `db:"unmerged_by"`
	UnmergeReason   sql.NullString                                    `db:"unmerge_reason"`
}

const (
	provenanceTable   = "provenance"
	sourceLinkTable   = "provenance_sources"
	fieldHistoryTable = "provenance_field_history"
)

var provenanceStruct = database.NewStruct(new(ProvenanceRow))

func ToProvenance(row *ProvenanceRow) *models.Provenance {
	p := &models.Provenance{
		GoldenRecordID:  row.GoldenRecordID,
		SourceRecordIDs: row.SourceRecordIDs.Data,
		FieldSources:    row.FieldSources.Data,
		StrategyUsed:    row.StrategyUsed.String,
		MergedAt:        row.MergedAt,
		MergedBy:        row.MergedBy.String,
		QueueItemID:     row.QueueItemID.String,
		Unmerged:        row.Unmerged,
		UnmergedBy:      row.UnmergedBy.String,
		UnmergeReason:   row.UnmergeReason.String,
	}
	if row.UnmergedAt.Valid {
		t := row.UnmergedAt.Time
		p.UnmergedAt = &t
	}
	return p
}

// FieldHistoryRow is one attribution revision kept per merge, unlike the
// in-memory store which only holds the current one.
type FieldHistoryRow struct {
	ID             string                                 `db:"id"`
	GoldenRecordID string                                 `db:"golden_record_id"`
	Field          string                                 `db:"field"`
	MergedAt       time.Time                              `db:"merged_at"`
	Provenance     database.JSONB[models.FieldProvenance] `db:"provenance"`
}

var fieldHistoryStruct = database.NewStruct(new(FieldHistoryRow))

func ToFieldHistoryEntry(row *FieldHistoryRow) models.FieldHistoryEntry {
	return models.FieldHistoryEntry{
		GoldenRecordID: row.GoldenRecordID,
		MergedAt:       row.MergedAt,
		Provenance:     row.Provenance.Data,
	}
}
