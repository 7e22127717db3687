package models

import (
	"time"
)

// Built-in merge strategy names accepted by FieldStrategyConfig.Strategy
// and MergeConfig.DefaultStrategy.
const (
	StrategyPreferFirst   = "preferFirst"
	StrategyPreferLast    = "preferLast"
	StrategyPreferNonNull = "preferNonNull"
	StrategyPreferNewer   = "preferNewer"
	StrategyPreferOlder   = "preferOlder"
	StrategyPreferLonger  = "preferLonger"
	StrategyPreferShorter = "preferShorter"
	StrategyConcatenate   = "concatenate"
	StrategyUnion         = "union"
	StrategyMostFrequent  = "mostFrequent"
	StrategyAverage       = "average"
	StrategySum           = "sum"
	StrategyMin           = "min"
	StrategyMax           = "max"
	StrategyCustom        = "custom"
)

// NullHandling values for StrategyOptions.
const (
	NullHandlingSkip    = "skip"
	NullHandlingInclude = "include"
)

// ConflictResolution picks the behavior when multiple sources disagree on a
// field and no explicit strategy was configured for it.
type ConflictResolution string

const (
	// ConflictUseDefault resolves with the default strategy.
	ConflictUseDefault ConflictResolution = "useDefault"
	// ConflictMark resolves with the default strategy and records the
	// conflict as deferred for manual review.
	ConflictMark ConflictResolution = "markConflict"
	// ConflictError aborts the merge on the first conflicting field.
	ConflictError ConflictResolution = "error"
)

// FieldValue is one candidate value for a field during a merge, tagged with
// the record it came from.
type FieldValue struct {
	SourceID string `json:"source_id"`
	Value    any    `json:"value"`
	// Timestamp is the source record's update time, used by the
	// newer/older strategies.
	Timestamp time.Time `json:"timestamp,omitempty"`
	// Index is the source record's position in the merge input.
	Index int `json:"index"`
}

// IsNull reports whether the candidate value is absent.
func (v FieldValue) IsNull() bool {
	return v.Value == nil
}

// StrategyOptions tunes a merge strategy. Unknown strategies read Params.
type StrategyOptions struct {
	// Separator joins values for concatenate. Defaults to ", ".
	Separator string `json:"separator,omitempty"`
	// DateField overrides the record timestamp as the recency source for
	// preferNewer and preferOlder. Dot paths are allowed.
	DateField string `json:"date_field,omitempty"`
	// NullHandling is "skip" (default) or "include".
	NullHandling string `json:"null_handling,omitempty"`
	// MaxItems caps the element count produced by union. Zero means no cap.
	MaxItems int `json:"max_items,omitempty"`
	// Params carries options for custom strategies.
	Params map[string]any `json:"params,omitempty"`
}

// SkipNulls reports whether null values are dropped before the strategy runs.
func (o StrategyOptions) SkipNulls() bool {
	return o.NullHandling != NullHandlingInclude
}

// StrategyFunc merges the candidate values for one field. Returning a nil
// value leaves the field out of the golden record.
type StrategyFunc func(values []FieldValue, opts StrategyOptions) (any, error)

// FieldStrategyConfig binds a strategy to a field path. The path may name a
// parent object; the longest matching prefix wins when several apply.
type FieldStrategyConfig struct {
	Field    string          `json:"field" validate:"required"`
	Strategy string          `json:"strategy" validate:"required"`
	Options  StrategyOptions `json:"options,omitempty"`
	// Custom is invoked when Strategy is "custom".
	Custom StrategyFunc `json:"-"`
}

// MergeConfig is the full merge ruleset for a record type.
type MergeConfig struct {
	// DefaultStrategy applies to fields with no explicit configuration.
	// Defaults to preferNonNull.
	DefaultStrategy string                `json:"default_strategy,omitempty"`
	FieldStrategies []FieldStrategyConfig `json:"field_strategies,omitempty"`
	// TrackProvenance records per-field attribution. Defaults to true.
	TrackProvenance *bool `json:"track_provenance,omitempty"`
	// ConflictResolution defaults to useDefault.
	ConflictResolution ConflictResolution `json:"conflict_resolution,omitempty"`
	// Schema, when set, widens the field walk to all schema paths and
	// rejects records that do not validate against it.
	Schema *RecordSchema `json:"schema,omitempty"`
}

// ProvenanceEnabled reports whether the merge should record attribution.
func (c MergeConfig) ProvenanceEnabled() bool {
	if c.TrackProvenance == nil {
		return true
	}
	return *c.TrackProvenance
}

// MergeRequest merges two or more source records into a golden record.
type MergeRequest struct {
	SourceRecords []SourceRecord `json:"source_records" validate:"required,min=2"`
	// TargetRecordID fixes the golden record id. When empty the first
	// source id is reused, or a fresh uuid when that is empty too.
	TargetRecordID string `json:"target_record_id,omitempty"`
	MergedBy       string `json:"merged_by,omitempty"`
	// QueueItemID links the merge back to the review decision that
	// triggered it.
	QueueItemID string       `json:"queue_item_id,omitempty"`
	Config      *MergeConfig `json:"config,omitempty"`
}

// CandidateValue is a field value observed during conflict detection or
// provenance capture.
type CandidateValue struct {
	SourceID string `json:"source_id"`
	Value    any    `json:"value"`
}

// Conflict resolution outcomes recorded on FieldConflict.Resolution.
const (
	ConflictResolvedAuto     = "auto"
	ConflictResolvedDeferred = "deferred"
)

// FieldConflict describes one field where sources disagreed.
type FieldConflict struct {
	Field         string           `json:"field"`
	Values        []CandidateValue `json:"values"`
	Resolution    string           `json:"resolution"`
	ResolvedValue any              `json:"resolved_value,omitempty"`
	Note          string           `json:"note,omitempty"`
}

// MergeStats summarizes a completed merge.
type MergeStats struct {
	TotalFields         int            `json:"total_fields"`
	ConflictCount       int            `json:"conflict_count"`
	SourceContributions map[string]int `json:"source_contributions"`
	DurationMs          int64          `json:"duration_ms"`
}

// MergeResult is the outcome of a merge: the golden record plus everything
// needed to audit or undo it.
type MergeResult struct {
	GoldenRecordID string          `json:"golden_record_id"`
	GoldenRecord   Record          `json:"golden_record"`
	SourceRecords  []SourceRecord  `json:"source_records"`
	Conflicts      []FieldConflict `json:"conflicts,omitempty"`
	Provenance     *Provenance     `json:"provenance,omitempty"`
	Stats          MergeStats      `json:"stats"`
	MergedAt       time.Time       `json:"merged_at"`
}
