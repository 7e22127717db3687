// Package unmerge reverses merges: it restores the archived source records
// behind a golden record and updates provenance so the reversal is auditable.
package unmerge

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/merging"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/provenance"
	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing"
)

// Callbacks are the hooks the executor calls to touch record storage. Either
// hook may be nil when the caller has nothing to restore or delete there.
type Callbacks struct {
	// RestoreSource is called once per restored source record, before the
	// record leaves the archive.
	RestoreSource func(ctx context.Context, record models.SourceRecord) error
	// DeleteGoldenRecord is called in full mode, or when the request asks
	// for the golden record to be deleted.
	DeleteGoldenRecord func(ctx context.Context, goldenRecordID string) error
}

// Executor undoes merges. Full mode restores every source record, partial
// mode restores a chosen subset, and split mode restores everything and then
// re-merges the requested groups into new golden records.
type Executor struct {
	store     provenance.Store
	archive   provenance.Archive
	merger    *merging.Engine
	callbacks Callbacks
	logger    ectologger.Logger
}

// NewExecutor creates an unmerge executor. The merger is only needed for
// split mode and may be nil otherwise.
func NewExecutor(store provenance.Store, archive provenance.Archive, merger *merging.Engine, callbacks Callbacks, logger ectologger.Logger) *Executor {
	return &Executor{
		store:     store,
		archive:   archive,
		merger:    merger,
		callbacks: callbacks,
		logger:    logger,
	}
}

// Unmerge reverses the merge behind req.GoldenRecordID. An empty mode means
// full. The returned result lists what was restored, what stays merged, and
// any golden records created by a split.
func (e *Executor) Unmerge(ctx context.Context, req models.UnmergeRequest) (*models.UnmergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "unmerge.Executor.Unmerge")
	defer span.End()

	mode, err := resolveMode(req)
	if err != nil {
		return nil, err
	}
	if mode == models.UnmergeSplit && e.merger == nil {
		return nil, &errors.UnmergeError{GoldenRecordID: req.GoldenRecordID, Reason: "split unmerge requires a merge engine"}
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"golden_record_id": req.GoldenRecordID,
		"mode":             string(mode),
	})

	prov, err := e.store.Get(ctx, req.GoldenRecordID)
	if err != nil {
		return nil, err
	}
	if prov.IsUnmerged() {
		return nil, &errors.AlreadyUnmergedError{GoldenRecordID: req.GoldenRecordID, UnmergedAt: prov.UnmergedAt}
	}

	restoreIDs, err := resolveRestoreIDs(mode, req, prov)
	if err != nil {
		return nil, err
	}

	restored, err := e.fetchArchived(ctx, req.GoldenRecordID, restoreIDs)
	if err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{"restore_count": len(restored)}).Debug("Restoring archived source records")

	if e.callbacks.RestoreSource != nil {
		for _, record := range restored {
			if err := e.callbacks.RestoreSource(ctx, record); err != nil {
				return nil, fmt.Errorf("failed to restore source record '%s': %w", record.ID, err)
			}
		}
	}

	if err := e.archive.Remove(ctx, req.GoldenRecordID, restoreIDs); err != nil {
		return nil, fmt.Errorf("failed to remove restored records from the archive: %w", err)
	}

	goldenDeleted := mode == models.UnmergeFull || (req.DeleteGolden != nil && *req.DeleteGolden)
	if goldenDeleted && e.callbacks.DeleteGoldenRecord != nil {
		if err := e.callbacks.DeleteGoldenRecord(ctx, req.GoldenRecordID); err != nil {
			return nil, fmt.Errorf("failed to delete golden record '%s': %w", req.GoldenRecordID, err)
		}
	}

	unmergedAt := time.Now()
	meta := provenance.UnmergeMeta{
		UnmergedAt: unmergedAt,
		UnmergedBy: req.UnmergedBy,
		Reason:     req.Reason,
	}
	if err := e.store.MarkUnmerged(ctx, req.GoldenRecordID, meta); err != nil {
		return nil, fmt.Errorf("failed to mark provenance as unmerged for golden record '%s': %w", req.GoldenRecordID, err)
	}

	var newGoldens []models.MergeResult
	if mode == models.UnmergeSplit {
		newGoldens, err = e.mergeGroups(ctx, req, restored)
		if err != nil {
			return nil, err
		}
	}

	result := &models.UnmergeResult{
		GoldenRecordID:      req.GoldenRecordID,
		Mode:                mode,
		RestoredRecords:     restored,
		RemainingRecordIDs:  remainingIDs(prov.SourceRecordIDs, restoreIDs),
		NewGoldenRecords:    newGoldens,
		GoldenRecordDeleted: goldenDeleted,
		UnmergedAt:          unmergedAt,
		UnmergedBy:          req.UnmergedBy,
		Reason:              req.Reason,
	}

	log.WithFields(map[string]any{
		"restored_count":        len(result.RestoredRecords),
		"remaining_count":       len(result.RemainingRecordIDs),
		"new_golden_count":      len(result.NewGoldenRecords),
		"golden_record_deleted": result.GoldenRecordDeleted,
	}).Info("Unmerged golden record")

	return result, nil
}

// CanUnmerge runs the unmerge preconditions without changing anything.
// Failed checks come back as a result with CanUnmerge false, not an error;
// only store failures are returned as errors.
func (e *Executor) CanUnmerge(ctx context.Context, goldenRecordID string) (*models.CanUnmergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "unmerge.Executor.CanUnmerge")
	defer span.End()

	prov, err := e.store.Get(ctx, goldenRecordID)
	if err != nil {
		var notFound *errors.ProvenanceNotFoundError
		if stderrors.As(err, &notFound) {
			return &models.CanUnmergeResult{CanUnmerge: false, Reason: err.Error()}, nil
		}
		return nil, err
	}

	if prov.IsUnmerged() {
		reason := (&errors.AlreadyUnmergedError{GoldenRecordID: goldenRecordID, UnmergedAt: prov.UnmergedAt}).Error()
		return &models.CanUnmergeResult{CanUnmerge: false, Reason: reason}, nil
	}

	return &models.CanUnmergeResult{
		CanUnmerge:        true,
		Provenance:        prov,
		SourceRecordCount: len(prov.SourceRecordIDs),
	}, nil
}

func resolveMode(req models.UnmergeRequest) (models.UnmergeMode, error) {
	if req.GoldenRecordID == "" {
		return "", &errors.UnmergeError{GoldenRecordID: req.GoldenRecordID, Reason: "golden record id is required"}
	}

	mode := req.Mode
	if mode == "" {
		mode = models.UnmergeFull
	}
	switch mode {
	case models.UnmergeFull, models.UnmergePartial, models.UnmergeSplit:
		return mode, nil
	default:
		return "", &errors.UnmergeError{GoldenRecordID: req.GoldenRecordID, Reason: fmt.Sprintf("unknown unmerge mode '%s'", mode)}
	}
}

// resolveRestoreIDs decides which archived records come back out, and checks
// that every requested id actually belongs to this golden record.
func resolveRestoreIDs(mode models.UnmergeMode, req models.UnmergeRequest, prov *models.Provenance) ([]string, error) {
	var ids []string
	switch mode {
	case models.UnmergeFull:
		ids = append(ids, prov.SourceRecordIDs...)
	case models.UnmergePartial:
		if len(req.SourceRecordIDs) == 0 {
			return nil, &errors.UnmergeError{GoldenRecordID: req.GoldenRecordID, Reason: "partial unmerge requires source record ids"}
		}
		seen := make(map[string]struct{}, len(req.SourceRecordIDs))
		for _, id := range req.SourceRecordIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	case models.UnmergeSplit:
		if len(req.Groups) == 0 {
			return nil, &errors.UnmergeError{GoldenRecordID: req.GoldenRecordID, Reason: "split unmerge requires groups"}
		}
		seen := make(map[string]struct{})
		for i, group := range req.Groups {
			if len(group) == 0 {
				return nil, &errors.UnmergeError{GoldenRecordID: req.GoldenRecordID, Reason: fmt.Sprintf("split group %d is empty", i)}
			}
			for _, id := range group {
				if _, dup := seen[id]; dup {
					return nil, &errors.UnmergeError{GoldenRecordID: req.GoldenRecordID, Reason: fmt.Sprintf("source record '%s' is listed in more than one group", id)}
				}
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}

	members := make(map[string]struct{}, len(prov.SourceRecordIDs))
	for _, id := range prov.SourceRecordIDs {
		members[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := members[id]; !ok {
			return nil, &errors.UnmergeError{GoldenRecordID: req.GoldenRecordID, Reason: fmt.Sprintf("source record '%s' is not part of this golden record", id)}
		}
	}
	return ids, nil
}

// fetchArchived loads the requested records and turns any gap between the
// request and the archive into a SourceRecordNotFoundError.
func (e *Executor) fetchArchived(ctx context.Context, goldenRecordID string, restoreIDs []string) ([]models.SourceRecord, error) {
	archived, err := e.archive.Get(ctx, goldenRecordID, restoreIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load archived records for golden record '%s': %w", goldenRecordID, err)
	}

	found := make(map[string]struct{}, len(archived))
	for _, record := range archived {
		found[record.ID] = struct{}{}
	}
	for _, id := range restoreIDs {
		if _, ok := found[id]; !ok {
			return nil, &errors.SourceRecordNotFoundError{GoldenRecordID: goldenRecordID, SourceRecordID: id}
		}
	}
	return archived, nil
}

// mergeGroups re-merges each split group of two or more records into a new
// golden record. Single-record groups just stay restored on their own.
func (e *Executor) mergeGroups(ctx context.Context, req models.UnmergeRequest, restored []models.SourceRecord) ([]models.MergeResult, error) {
	byID := make(map[string]models.SourceRecord, len(restored))
	for _, record := range restored {
		byID[record.ID] = record
	}

	var results []models.MergeResult
	for _, group := range req.Groups {
		if len(group) < 2 {
			continue
		}
		sources := make([]models.SourceRecord, 0, len(group))
		for _, id := range group {
			sources = append(sources, byID[id])
		}
		// The just-unmerged golden id is never reused for a split result.
		target := ""
		if group[0] == req.GoldenRecordID {
			target = uuid.NewString()
		}
		merged, err := e.merger.Merge(ctx, models.MergeRequest{
			SourceRecords:  sources,
			TargetRecordID: target,
			MergedBy:       req.UnmergedBy,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to merge split group starting at '%s': %w", group[0], err)
		}
		results = append(results, *merged)
	}
	return results, nil
}

func remainingIDs(all, restored []string) []string {
	gone := make(map[string]struct{}, len(restored))
	for _, id := range restored {
		gone[id] = struct{}{}
	}
	var remaining []string
	for _, id := range all {
		if _, ok := gone[id]; !ok {
			remaining = append(remaining, id)
		}
	}
	return remaining
}
