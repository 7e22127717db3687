package models

import (
	"time"
)

// FieldProvenance records which source supplied one field of a golden
// record and what the alternatives were.
type FieldProvenance struct {
	Field           string           `json:"field"`
	SourceRecordID  string           `json:"source_record_id"`
	Strategy        string           `json:"strategy"`
	CandidateValues []CandidateValue `json:"candidate_values,omitempty"`
	HadConflict     bool             `json:"had_conflict,omitempty"`
	ConflictNote    string           `json:"conflict_note,omitempty"`
}

// Provenance is the full attribution ledger for one golden record.
type Provenance struct {
	GoldenRecordID  string                     `json:"golden_record_id" db:"golden_record_id"`
	SourceRecordIDs []string                   `json:"source_record_ids" db:"source_record_ids"`
	FieldSources    map[string]FieldProvenance `json:"field_sources"`
	StrategyUsed    string                     `json:"strategy_used" db:"strategy_used"`
	MergedAt        time.Time                  `json:"merged_at" db:"merged_at"`
	MergedBy        string                     `json:"merged_by,omitempty" db:"merged_by"`
	QueueItemID     string                     `json:"queue_item_id,omitempty" db:"queue_item_id"`
	Unmerged        bool                       `json:"unmerged,omitempty" db:"unmerged"`
	UnmergedAt      *time.Time                 `json:"unmerged_at,omitempty" db:"unmerged_at"`
	UnmergedBy      string                     `json:"unmerged_by,omitempty" db:"unmerged_by"`
	UnmergeReason   string                     `json:"unmerge_reason,omitempty" db:"unmerge_reason"`
}

// IsUnmerged reports whether the merge has been undone. Older rows carry
// only the timestamp, so a set UnmergedAt counts even when the flag is off.
func (p *Provenance) IsUnmerged() bool {
	return p.Unmerged || p.UnmergedAt != nil
}

// Clone returns a deep copy so store callers can mutate results freely.
func (p *Provenance) Clone() *Provenance {
	if p == nil {
		return nil
	}
	out := *p
	out.SourceRecordIDs = append([]string(nil), p.SourceRecordIDs...)
	if p.FieldSources != nil {
		out.FieldSources = make(map[string]FieldProvenance, len(p.FieldSources))
		for k, v := range p.FieldSources {
			v.CandidateValues = append([]CandidateValue(nil), v.CandidateValues...)
			out.FieldSources[k] = v
		}
	}
	if p.UnmergedAt != nil {
		t := *p.UnmergedAt
		out.UnmergedAt = &t
	}
	return &out
}

// ProvenanceQuery filters and pages provenance lookups by source record.
type ProvenanceQuery struct {
	// IncludeUnmerged keeps records whose merge was later undone.
	IncludeUnmerged bool `json:"include_unmerged,omitempty"`
	Limit           int  `json:"limit,omitempty"`
	Offset          int  `json:"offset,omitempty"`
	// SortOrder orders by merge time. Defaults to desc (newest first).
	SortOrder SortOrder `json:"sort_order,omitempty"`
}

// TimelineQuery selects a window of merge history for one golden record.
type TimelineQuery struct {
	Since  *time.Time `json:"since,omitempty"`
	Until  *time.Time `json:"until,omitempty"`
	Limit  int        `json:"limit,omitempty"`
	Offset int        `json:"offset,omitempty"`
	// SortOrder defaults to asc (oldest first) so the timeline reads
	// forward.
	SortOrder SortOrder `json:"sort_order,omitempty"`
}

// FieldHistoryEntry is one observation of a field across merge history.
type FieldHistoryEntry struct {
	GoldenRecordID string          `json:"golden_record_id"`
	MergedAt       time.Time       `json:"merged_at"`
	Provenance     FieldProvenance `json:"provenance"`
}

// ArchivedRecord is a source record preserved at merge time so unmerge can
// restore it byte for byte.
type ArchivedRecord struct {
	GoldenRecordID string       `json:"golden_record_id" db:"golden_record_id"`
	SourceRecord   SourceRecord `json:"source_record"`
	ArchivedAt     time.Time    `json:"archived_at" db:"archived_at"`
}

// ProvenanceListResponse pages provenance rows over the wire.
type ProvenanceListResponse struct {
	Items      []*Provenance `json:"items"`
	TotalCount int           `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
}
