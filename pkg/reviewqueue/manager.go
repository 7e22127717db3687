package reviewqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing"
)

// Manager runs the review queue over a storage adapter: enqueueing
// borderline matches, recording reviewer decisions, and reporting
// aggregate stats.
type Manager struct {
	adapter models.QueueAdapter
	logger  ectologger.Logger
	now     func() time.Time
}

// NewManager creates a queue manager over the given adapter.
func NewManager(adapter models.QueueAdapter, logger ectologger.Logger) *Manager {
	return &Manager{
		adapter: adapter,
		logger:  logger,
		now:     time.Now,
	}
}

// Add enqueues one borderline match. The item gets a fresh uuid, pending
// status, and creation timestamps.
func (m *Manager) Add(ctx context.Context, req models.EnqueueRequest) (*models.QueueItem, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Manager.Add")
	defer span.End()

	if err := validateEnqueue(req); err != nil {
		return nil, err
	}

	now := m.now()
	item := &models.QueueItem{
		ID:               uuid.NewString(),
		CandidateRecord:  req.CandidateRecord,
		PotentialMatches: req.PotentialMatches,
		Status:           models.QueueStatusPending,
		Priority:         req.Priority,
		Tags:             req.Tags,
		Context:          req.Context,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := m.adapter.Insert(ctx, item); err != nil {
		return nil, err
	}

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"queue_item_id": item.ID,
		"candidate_id":  item.CandidateRecord.ID,
		"match_count":   len(item.PotentialMatches),
		"priority":      item.Priority,
	}).Info("Queued borderline match for review")

	return item, nil
}

// AddBatch enqueues several borderline matches. Requests are validated
// up front so a bad entry fails the batch before anything is stored.
func (m *Manager) AddBatch(ctx context.Context, reqs []models.EnqueueRequest) ([]*models.QueueItem, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Manager.AddBatch")
	defer span.End()

	for i, req := range reqs {
		if err := validateEnqueue(req); err != nil {
			return nil, fmt.Errorf("batch entry %d: %w", i, err)
		}
	}

	items := make([]*models.QueueItem, 0, len(reqs))
	for _, req := range reqs {
		item, err := m.Add(ctx, req)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Get returns one queue item by id.
func (m *Manager) Get(ctx context.Context, id string) (*models.QueueItem, error) {
	return m.adapter.Get(ctx, id)
}

// List returns a filtered, ordered page of queue items along with the
// total matching count.
func (m *Manager) List(ctx context.Context, filter models.QueueFilter) (*models.QueueListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Manager.List")
	defer span.End()

	items, err := m.adapter.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := m.adapter.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	page := 1
	pageSize := len(items)
	if filter.Limit > 0 {
		pageSize = filter.Limit
		page = filter.Offset/filter.Limit + 1
	}

	return &models.QueueListResponse{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Confirm records a confirm decision and moves the item to confirmed.
func (m *Manager) Confirm(ctx context.Context, id string, req models.DecideRequest) (*models.QueueItem, error) {
	return m.decide(ctx, id, models.DecisionConfirm, req)
}

// Reject records a reject decision and moves the item to rejected.
func (m *Manager) Reject(ctx context.Context, id string, req models.DecideRequest) (*models.QueueItem, error) {
	return m.decide(ctx, id, models.DecisionReject, req)
}

// Merge records a merge decision and moves the item to merged. The caller
// performs the actual merge; the queue only records the verdict.
func (m *Manager) Merge(ctx context.Context, id string, req models.DecideRequest) (*models.QueueItem, error) {
	return m.decide(ctx, id, models.DecisionMerge, req)
}

func (m *Manager) decide(ctx context.Context, id string, action models.DecisionAction, req models.DecideRequest) (*models.QueueItem, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Manager.decide")
	defer span.End()

	target, ok := statusForAction(action)
	if !ok {
		return nil, &errors.QueueOperationError{Op: "decide", Cause: fmt.Errorf("unknown decision action '%s'", action)}
	}

	item, err := m.adapter.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validateTransition(item.ID, item.Status, target); err != nil {
		return nil, err
	}
	if err := validateSelection(item, action, req.Decision.SelectedMatchID); err != nil {
		return nil, err
	}

	now := m.now()
	decision := req.Decision
	decision.Action = action

	item.Status = target
	item.Decision = &decision
	item.DecidedAt = &now
	item.DecidedBy = req.DecidedBy
	item.ReviewedBy = req.DecidedBy
	item.UpdatedAt = now

	if err := m.adapter.Update(ctx, item); err != nil {
		return nil, err
	}

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"queue_item_id": item.ID,
		"action":        string(action),
		"decided_by":    req.DecidedBy,
	}).Info("Recorded review decision")

	return item, nil
}

// UpdateStatus moves an item along a legal state machine edge without
// recording a decision.
func (m *Manager) UpdateStatus(ctx context.Context, id string, status models.QueueStatus) (*models.QueueItem, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Manager.UpdateStatus")
	defer span.End()

	item, err := m.adapter.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validateTransition(item.ID, item.Status, status); err != nil {
		return nil, err
	}

	item.Status = status
	item.UpdatedAt = m.now()

	if err := m.adapter.Update(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// Delete removes a queue item outright.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.adapter.Delete(ctx, id)
}

// Cleanup deletes items created before olderThan, optionally restricted to
// one status and capped at limit. It returns how many items were removed.
func (m *Manager) Cleanup(ctx context.Context, olderThan time.Time, status *models.QueueStatus, limit int) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Manager.Cleanup")
	defer span.End()

	filter := models.QueueFilter{Until: &olderThan, Limit: limit}
	if status != nil {
		filter.Status = []models.QueueStatus{*status}
	}

	items, err := m.adapter.List(ctx, filter)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, item := range items {
		if !item.CreatedAt.Before(olderThan) {
			continue
		}
		if err := m.adapter.Delete(ctx, item.ID); err != nil {
			return removed, err
		}
		removed++
	}

	if removed > 0 {
		m.logger.WithContext(ctx).WithFields(map[string]any{
			"removed":    removed,
			"older_than": olderThan,
		}).Info("Cleaned up review queue items")
	}
	return removed, nil
}

// Stats aggregates the queue: counts by status, average wait time across
// decided items, the oldest pending item, and decision throughput.
func (m *Manager) Stats(ctx context.Context) (*models.QueueStats, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Manager.Stats")
	defer span.End()

	items, err := m.adapter.List(ctx, models.QueueFilter{})
	if err != nil {
		return nil, err
	}

	stats := &models.QueueStats{
		ByStatus: map[models.QueueStatus]int{
			models.QueueStatusPending:   0,
			models.QueueStatusReviewing: 0,
			models.QueueStatusConfirmed: 0,
			models.QueueStatusRejected:  0,
			models.QueueStatusMerged:    0,
			models.QueueStatusExpired:   0,
		},
	}

	now := m.now()
	var totalWait time.Duration
	decided := 0

	for _, item := range items {
		stats.Total++
		stats.ByStatus[item.Status]++

		if item.Status == models.QueueStatusPending {
			if stats.OldestPending == nil || item.CreatedAt.Before(*stats.OldestPending) {
				createdAt := item.CreatedAt
				stats.OldestPending = &createdAt
			}
		}

		if item.DecidedAt == nil {
			continue
		}
		decided++
		totalWait += item.DecidedAt.Sub(item.CreatedAt)

		age := now.Sub(*item.DecidedAt)
		if age <= 24*time.Hour {
			stats.Throughput.Last24Hours++
		}
		if age <= 7*24*time.Hour {
			stats.Throughput.Last7Days++
		}
		if age <= 30*24*time.Hour {
			stats.Throughput.Last30Days++
		}
	}

	if decided > 0 {
		stats.AvgWaitTimeMs = (totalWait / time.Duration(decided)).Milliseconds()
	}
	return stats, nil
}

func validateEnqueue(req models.EnqueueRequest) error {
	if req.CandidateRecord.ID == "" {
		return &errors.QueueOperationError{Op: "add", Cause: fmt.Errorf("candidate record requires an id")}
	}
	if len(req.PotentialMatches) == 0 {
		return &errors.QueueOperationError{Op: "add", Cause: fmt.Errorf("at least one potential match is required")}
	}
	for i, match := range req.PotentialMatches {
		if match.RecordID == "" {
			return &errors.QueueOperationError{Op: "add", Cause: fmt.Errorf("potential match %d requires a record id", i)}
		}
	}
	return nil
}

// validateSelection enforces SelectedMatchID for decisions that act on a
// specific match: required when several candidates exist, and it must name
// one of them. Rejections apply to the whole item.
func validateSelection(item *models.QueueItem, action models.DecisionAction, selectedMatchID string) error {
	if action == models.DecisionReject {
		return nil
	}
	if selectedMatchID == "" {
		if len(item.PotentialMatches) > 1 {
			return &errors.QueueOperationError{
				Op:    "decide",
				Cause: fmt.Errorf("a selected match id is required when the item holds multiple potential matches"),
			}
		}
		return nil
	}

	matches := ectolinq.Filter(item.PotentialMatches, func(match models.PotentialMatch) bool {
		return match.RecordID == selectedMatchID
	})
	if len(matches) == 0 {
		return &errors.QueueOperationError{
			Op:    "decide",
			Cause: fmt.Errorf("selected match '%s' is not among the item's potential matches", selectedMatchID),
		}
	}
	return nil
}
