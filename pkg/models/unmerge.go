package models

import (
	"time"
)

// UnmergeMode selects how much of a merge to undo.
type UnmergeMode string

const (
	// UnmergeFull restores every source record and retires the golden
	// record.
	UnmergeFull UnmergeMode = "full"
	// UnmergePartial extracts named source records and leaves the rest
	// merged.
	UnmergePartial UnmergeMode = "partial"
	// UnmergeSplit regroups the source records into new golden records.
	UnmergeSplit UnmergeMode = "split"
)

// UnmergeRequest undoes a previous merge.
type UnmergeRequest struct {
	GoldenRecordID string      `json:"golden_record_id" validate:"required"`
	Mode           UnmergeMode `json:"mode,omitempty"`
	// SourceRecordIDs names the records to extract in partial mode.
	SourceRecordIDs []string `json:"source_record_ids,omitempty"`
	// Groups partitions the source record ids in split mode.
	Groups       [][]string `json:"groups,omitempty"`
	UnmergedBy   string     `json:"unmerged_by,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	DeleteGolden *bool      `json:"delete_golden,omitempty"`
}

// CanUnmergeResult answers an effect-free unmerge feasibility check.
type CanUnmergeResult struct {
	CanUnmerge bool   `json:"can_unmerge"`
	Reason     string `json:"reason,omitempty"`
	// Provenance is included when the golden record has one.
	Provenance *Provenance `json:"provenance,omitempty"`
	// SourceRecordCount is how many archived records would be restored.
	SourceRecordCount int `json:"source_record_count,omitempty"`
}

// UnmergeResult reports what an unmerge actually did.
type UnmergeResult struct {
	GoldenRecordID  string         `json:"golden_record_id"`
	Mode            UnmergeMode    `json:"mode"`
	RestoredRecords []SourceRecord `json:"restored_records"`
	// RemainingRecordIDs lists the sources still merged after a partial
	// unmerge.
	RemainingRecordIDs []string `json:"remaining_record_ids,omitempty"`
	// NewGoldenRecords holds the re-merged outcomes of a split.
	NewGoldenRecords    []MergeResult `json:"new_golden_records,omitempty"`
	GoldenRecordDeleted bool          `json:"golden_record_deleted"`
	UnmergedAt          time.Time     `json:"unmerged_at"`
	UnmergedBy          string        `json:"unmerged_by,omitempty"`
	Reason              string        `json:"reason,omitempty"`
}
