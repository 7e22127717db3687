// Package merging builds golden records from groups of source records,
// resolving field conflicts through configurable strategies.
package merging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/fieldpath"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/provenance"
	"github.com/8arr3tt/have-we-met-sub007/pkg/schema"
	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing"
)

// Engine merges source records into golden records. A nil tracker disables
// persistence; the merge result still carries the provenance object.
type Engine struct {
	logger   ectologger.Logger
	registry *Registry
	tracker  *provenance.Tracker
}

// NewEngine creates a merge engine. A nil registry falls back to a fresh
// one holding only the builtins.
func NewEngine(logger ectologger.Logger, registry *Registry, tracker *provenance.Tracker) *Engine {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Engine{
		logger:   logger,
		registry: registry,
		tracker:  tracker,
	}
}

// Registry returns the strategy registry the engine resolves against.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Merge combines the request's source records into one golden record,
// detecting conflicts field by field and recording provenance.
func (e *Engine) Merge(ctx context.Context, req models.MergeRequest) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Merge")
	defer span.End()

	started := time.Now()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	config := resolveConfig(req.Config)
	sources := req.SourceRecords

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"source_count":     len(sources),
		"default_strategy": config.DefaultStrategy,
	})

	fieldPaths, shapeConflict := schema.CollectPaths(config.Schema, sources)
	if shapeConflict != nil {
		strategyName, _, _ := resolveStrategy(shapeConflict.Path, config)
		return nil, &errors.StrategyTypeMismatchError{
			Field:    shapeConflict.Path,
			Strategy: strategyName,
			Reason:   fmt.Sprintf("field is an object in %s but a plain value in %s", shapeConflict.ObjectIn, shapeConflict.ValueIn),
		}
	}

	golden := models.Record{}
	fieldSources := make(map[string]models.FieldProvenance)
	contributions := make(map[string]int, len(sources))
	for _, src := range sources {
		contributions[src.ID] = 0
	}
	var conflicts []models.FieldConflict

	for _, path := range fieldPaths {
		strategyName, opts, customFn := resolveStrategy(path, config)

		fn := customFn
		if fn == nil {
			if strategyName == models.StrategyCustom {
				return nil, &errors.CustomStrategyMissingError{Field: path}
			}
			resolved, err := e.registry.Resolve(strategyName)
			if err != nil {
				return nil, err
			}
			fn = resolved
		}

		values := collectValues(sources, path, opts)
		nonNull := nonNullValues(values)

		merged, err := fn(values, opts)
		if err != nil {
			return nil, fmt.Errorf("strategy '%s' failed on field '%s': %w", strategyName, path, err)
		}

		hadConflict := len(nonNull) >= 2 && !allDeepEqual(nonNull)
		conflictNote := ""

		if hadConflict {
			candidates := candidateValues(nonNull)

			switch config.ConflictResolution {
			case models.ConflictError:
				return nil, &errors.MergeConflictError{Field: path, Values: candidates}

			case models.ConflictMark:
				conflicts = append(conflicts, models.FieldConflict{
					Field:      path,
					Values:     candidates,
					Resolution: models.ConflictResolvedDeferred,
				})
				// deferred fields stay out of the golden record; the
				// provenance entry keeps the dispute auditable, with no
				// winning source to attribute
				if config.ProvenanceEnabled() {
					fieldSources[path] = models.FieldProvenance{
						Field:           path,
						Strategy:        strategyName,
						CandidateValues: candidates,
						HadConflict:     true,
						ConflictNote:    "deferred for manual review",
					}
				}
				continue

			default:
				conflictNote = fmt.Sprintf("resolved automatically by the '%s' strategy", strategyName)
				conflicts = append(conflicts, models.FieldConflict{
					Field:         path,
					Values:        candidates,
					Resolution:    models.ConflictResolvedAuto,
					ResolvedValue: merged,
					Note:          conflictNote,
				})
			}
		}

		if merged == nil {
			continue
		}

		sourceID := attributeValue(merged, values, sources[0].ID)
		fieldpath.Set(golden, path, merged)
		contributions[sourceID]++

		if config.ProvenanceEnabled() {
			fieldSources[path] = models.FieldProvenance{
				Field:           path,
				SourceRecordID:  sourceID,
				Strategy:        strategyName,
				CandidateValues: candidateValues(nonNull),
				HadConflict:     hadConflict,
				ConflictNote:    conflictNote,
			}
		}
	}

	goldenID := req.TargetRecordID
	if goldenID == "" {
		goldenID = sources[0].ID
	}
	if goldenID == "" {
		goldenID = uuid.NewString()
	}

	mergedAt := time.Now()

	var prov *models.Provenance
	if config.ProvenanceEnabled() {
		sourceIDs := make([]string, len(sources))
		for i, src := range sources {
			sourceIDs[i] = src.ID
		}
		prov = &models.Provenance{
			GoldenRecordID:  goldenID,
			SourceRecordIDs: sourceIDs,
			FieldSources:    fieldSources,
			StrategyUsed:    config.DefaultStrategy,
			MergedAt:        mergedAt,
			MergedBy:        req.MergedBy,
			QueueItemID:     req.QueueItemID,
		}
	}

	result := &models.MergeResult{
		GoldenRecordID: goldenID,
		GoldenRecord:   golden,
		SourceRecords:  sources,
		Conflicts:      conflicts,
		Provenance:     prov,
		Stats: models.MergeStats{
			TotalFields:         len(fieldPaths),
			ConflictCount:       len(conflicts),
			SourceContributions: contributions,
			DurationMs:          time.Since(started).Milliseconds(),
		},
		MergedAt: mergedAt,
	}

	if e.tracker != nil && prov != nil {
		if err := e.tracker.Record(ctx, result); err != nil {
			log.WithError(err).Error("Failed to record merge provenance")
			return nil, err
		}
	}

	log.WithFields(map[string]any{
		"golden_record_id": goldenID,
		"field_count":      len(fieldPaths),
		"conflict_count":   len(conflicts),
	}).Info("Merged source records into golden record")

	return result, nil
}

func validateRequest(req models.MergeRequest) error {
	if len(req.SourceRecords) < 2 {
		return &errors.InsufficientSourcesError{Count: len(req.SourceRecords)}
	}

	seen := make(map[string]bool, len(req.SourceRecords))
	for _, src := range req.SourceRecords {
		if src.ID == "" {
			return &errors.MergeValidationError{Reason: "every source record requires a non-empty id"}
		}
		if seen[src.ID] {
			return &errors.MergeValidationError{Reason: fmt.Sprintf("duplicate source record id '%s'", src.ID)}
		}
		seen[src.ID] = true
		if src.Record == nil {
			return &errors.MergeValidationError{Reason: fmt.Sprintf("source record '%s' carries no payload", src.ID)}
		}
		if src.CreatedAt.IsZero() || src.UpdatedAt.IsZero() {
			return &errors.MergeValidationError{Reason: fmt.Sprintf("source record '%s' is missing created/updated timestamps", src.ID)}
		}
	}
	return nil
}

func resolveConfig(config *models.MergeConfig) models.MergeConfig {
	resolved := models.MergeConfig{}
	if config != nil {
		resolved = *config
	}
	if resolved.DefaultStrategy == "" {
		resolved.DefaultStrategy = models.StrategyPreferNonNull
	}
	if resolved.ConflictResolution == "" {
		resolved.ConflictResolution = models.ConflictUseDefault
	}
	return resolved
}

// resolveStrategy picks the strategy for a field path: an exact field config
// wins, then the longest configured parent path, then the default.
func resolveStrategy(path string, config models.MergeConfig) (string, models.StrategyOptions, models.StrategyFunc) {
	var parent *models.FieldStrategyConfig

	for i := range config.FieldStrategies {
		fs := &config.FieldStrategies[i]
		if fs.Field == path {
			return fs.Strategy, fs.Options, fs.Custom
		}
		if strings.HasPrefix(path, fs.Field+".") {
			if parent == nil || len(fs.Field) > len(parent.Field) {
				parent = fs
			}
		}
	}

	if parent != nil {
		return parent.Strategy, parent.Options, parent.Custom
	}
	return config.DefaultStrategy, models.StrategyOptions{}, nil
}

func collectValues(sources []models.SourceRecord, path string, opts models.StrategyOptions) []models.FieldValue {
	values := make([]models.FieldValue, len(sources))
	for i, src := range sources {
		value, ok := fieldpath.Get(src.Record, path)
		if !ok {
			value = nil
		}
		values[i] = models.FieldValue{
			SourceID:  src.ID,
			Value:     value,
			Timestamp: valueTimestamp(src, opts),
			Index:     i,
		}
	}
	return values
}

// valueTimestamp resolves the recency of one source for the newer/older
// strategies: the configured date field when set, the record's update time
// otherwise.
func valueTimestamp(src models.SourceRecord, opts models.StrategyOptions) time.Time {
	if opts.DateField != "" {
		if raw, ok := fieldpath.Get(src.Record, opts.DateField); ok {
			if ts, ok := coerceTime(raw); ok {
				return ts
			}
		}
		return time.Time{}
	}
	return src.UpdatedAt
}

func coerceTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func nonNullValues(values []models.FieldValue) []models.FieldValue {
	nonNull := make([]models.FieldValue, 0, len(values))
	for _, v := range values {
		if !v.IsNull() {
			nonNull = append(nonNull, v)
		}
	}
	return nonNull
}

func allDeepEqual(values []models.FieldValue) bool {
	for i := 1; i < len(values); i++ {
		if !DeepEqual(values[0].Value, values[i].Value) {
			return false
		}
	}
	return true
}

func candidateValues(values []models.FieldValue) []models.CandidateValue {
	candidates := make([]models.CandidateValue, len(values))
	for i, v := range values {
		candidates[i] = models.CandidateValue{SourceID: v.SourceID, Value: v.Value}
	}
	return candidates
}

// attributeValue names the source that supplied the merged value. Derived
// values such as sums match no source and fall back to the first record.
func attributeValue(merged any, values []models.FieldValue, fallback string) string {
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		if DeepEqual(merged, v.Value) {
			return v.SourceID
		}
	}
	return fallback
}
