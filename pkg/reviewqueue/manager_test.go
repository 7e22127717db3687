package reviewqueue

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func enqueueReq(candidateID string, matchIDs ...string) models.EnqueueRequest {
	matches := make([]models.PotentialMatch, 0, len(matchIDs))
	for _, id := range matchIDs {
		matches = append(matches, models.PotentialMatch{RecordID: id, Score: 3.2})
	}
	return models.EnqueueRequest{
		CandidateRecord: models.SourceRecord{
			ID:     candidateID,
			Record: models.Record{"name": "Alice Johnson"},
		},
		PotentialMatches: matches,
	}
}

func newManager(t *testing.T, frozen time.Time) (*Manager, *MemoryAdapter) {
	t.Helper()
	adapter := NewMemoryAdapter()
	manager := NewManager(adapter, testLogger())
	manager.now = func() time.Time { return frozen }
	return manager, adapter
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to models.QueueStatus
		legal    bool
	}{
		{models.QueueStatusPending, models.QueueStatusReviewing, true},
		{models.QueueStatusPending, models.QueueStatusConfirmed, true},
		{models.QueueStatusPending, models.QueueStatusRejected, true},
		{models.QueueStatusPending, models.QueueStatusMerged, true},
		{models.QueueStatusPending, models.QueueStatusExpired, true},
		{models.QueueStatusReviewing, models.QueueStatusConfirmed, true},
		{models.QueueStatusReviewing, models.QueueStatusRejected, true},
		{models.QueueStatusReviewing, models.QueueStatusMerged, true},
		{models.QueueStatusReviewing, models.QueueStatusExpired, true},
		{models.QueueStatusReviewing, models.QueueStatusPending, false},
		{models.QueueStatusPending, models.QueueStatusPending, false},
		{models.QueueStatusConfirmed, models.QueueStatusRejected, false},
		{models.QueueStatusConfirmed, models.QueueStatusExpired, false},
		{models.QueueStatusRejected, models.QueueStatusReviewing, false},
		{models.QueueStatusMerged, models.QueueStatusExpired, false},
		{models.QueueStatusExpired, models.QueueStatusPending, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.legal, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestManager_Add(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("applies defaults", func(t *testing.T) {
		manager, _ := newManager(t, frozen)

		req := enqueueReq("cand-1", "match-1")
		req.Priority = 7
		req.Tags = []string{"billing"}

		item, err := manager.Add(ctx, req)
		require.NoError(t, err)
		assert.NotEmpty(t, item.ID)
		assert.Equal(t, models.QueueStatusPending, item.Status)
		assert.Equal(t, 7, item.Priority)
		assert.Equal(t, []string{"billing"}, item.Tags)
		assert.True(t, item.CreatedAt.Equal(frozen))
		assert.True(t, item.UpdatedAt.Equal(frozen))
		assert.Nil(t, item.DecidedAt)

		stored, err := manager.Get(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, item.ID, stored.ID)
	})

	t.Run("rejects a candidate without an id", func(t *testing.T) {
		manager, _ := newManager(t, frozen)

		_, err := manager.Add(ctx, enqueueReq("", "match-1"))
		var opErr *errors.QueueOperationError
		require.ErrorAs(t, err, &opErr)
		assert.Contains(t, err.Error(), "candidate record requires an id")
	})

	t.Run("rejects an empty match list", func(t *testing.T) {
		manager, _ := newManager(t, frozen)

		_, err := manager.Add(ctx, enqueueReq("cand-1"))
		var opErr *errors.QueueOperationError
		require.ErrorAs(t, err, &opErr)
		assert.Contains(t, err.Error(), "at least one potential match")
	})

	t.Run("rejects a match without a record id", func(t *testing.T) {
		manager, _ := newManager(t, frozen)

		_, err := manager.Add(ctx, enqueueReq("cand-1", ""))
		var opErr *errors.QueueOperationError
		require.ErrorAs(t, err, &opErr)
	})
}

func TestManager_AddBatch(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("enqueues every request", func(t *testing.T) {
		manager, adapter := newManager(t, frozen)

		items, err := manager.AddBatch(ctx, []models.EnqueueRequest{
			enqueueReq("cand-1", "match-1"),
			enqueueReq("cand-2", "match-2"),
		})
		require.NoError(t, err)
		assert.Len(t, items, 2)

		count, err := adapter.Count(ctx, models.QueueFilter{})
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("a bad entry fails the batch before anything is stored", func(t *testing.T) {
		manager, adapter := newManager(t, frozen)

		_, err := manager.AddBatch(ctx, []models.EnqueueRequest{
			enqueueReq("cand-1", "match-1"),
			enqueueReq("cand-2"),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "batch entry 1")

		count, err := adapter.Count(ctx, models.QueueFilter{})
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestManager_Decisions(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("confirm from pending", func(t *testing.T) {
		manager, _ := newManager(t, frozen)
		item, err := manager.Add(ctx, enqueueReq("cand-1", "match-1"))
		require.NoError(t, err)

		decided, err := manager.Confirm(ctx, item.ID, models.DecideRequest{
			DecidedBy: "reviewer@example.com",
			Decision:  models.Decision{Notes: "same person"},
		})
		require.NoError(t, err)

		assert.Equal(t, models.QueueStatusConfirmed, decided.Status)
		require.NotNil(t, decided.Decision)
		assert.Equal(t, models.DecisionConfirm, decided.Decision.Action)
		assert.Equal(t, "same person", decided.Decision.Notes)
		require.NotNil(t, decided.DecidedAt)
		assert.True(t, decided.DecidedAt.Equal(frozen))
		assert.Equal(t, "reviewer@example.com", decided.DecidedBy)
		assert.Equal(t, "reviewer@example.com", decided.ReviewedBy)
	})

	t.Run("reject from reviewing", func(t *testing.T) {
		manager, _ := newManager(t, frozen)
		item, err := manager.Add(ctx, enqueueReq("cand-1", "match-1"))
		require.NoError(t, err)
		_, err = manager.UpdateStatus(ctx, item.ID, models.QueueStatusReviewing)
		require.NoError(t, err)

		decided, err := manager.Reject(ctx, item.ID, models.DecideRequest{
			DecidedBy: "reviewer@example.com",
			Decision:  models.Decision{},
		})
		require.NoError(t, err)
		assert.Equal(t, models.QueueStatusRejected, decided.Status)
		assert.Equal(t, models.DecisionReject, decided.Decision.Action)
	})

	t.Run("merge keeps the selected match", func(t *testing.T) {
		manager, _ := newManager(t, frozen)
		item, err := manager.Add(ctx, enqueueReq("cand-1", "match-1", "match-2"))
		require.NoError(t, err)

		confidence := 0.9
		decided, err := manager.Merge(ctx, item.ID, models.DecideRequest{
			DecidedBy: "reviewer@example.com",
			Decision: models.Decision{
				SelectedMatchID: "match-2",
				Confidence:      &confidence,
			},
		})
		require.NoError(t, err)
		assert.Equal(t, models.QueueStatusMerged, decided.Status)
		assert.Equal(t, "match-2", decided.Decision.SelectedMatchID)
		require.NotNil(t, decided.Decision.Confidence)
		assert.InDelta(t, 0.9, *decided.Decision.Confidence, 1e-9)
	})

	t.Run("selection is required with multiple matches", func(t *testing.T) {
		manager, _ := newManager(t, frozen)
		item, err := manager.Add(ctx, enqueueReq("cand-1", "match-1", "match-2"))
		require.NoError(t, err)

		_, err = manager.Confirm(ctx, item.ID, models.DecideRequest{DecidedBy: "reviewer@example.com"})
		var opErr *errors.QueueOperationError
		require.ErrorAs(t, err, &opErr)
		assert.Contains(t, err.Error(), "selected match id is required")
	})

	t.Run("selection must name a known match", func(t *testing.T) {
		manager, _ := newManager(t, frozen)
		item, err := manager.Add(ctx, enqueueReq("cand-1", "match-1", "match-2"))
		require.NoError(t, err)

		_, err = manager.Confirm(ctx, item.ID, models.DecideRequest{
			DecidedBy: "reviewer@example.com",
			Decision:  models.Decision{SelectedMatchID: "match-9"},
		})
		var opErr *errors.QueueOperationError
		require.ErrorAs(t, err, &opErr)
		assert.Contains(t, err.Error(), "not among the item's potential matches")
	})

	t.Run("rejection needs no selection", func(t *testing.T) {
		manager, _ := newManager(t, frozen)
		item, err := manager.Add(ctx, enqueueReq("cand-1", "match-1", "match-2"))
		require.NoError(t, err)

		decided, err := manager.Reject(ctx, item.ID, models.DecideRequest{DecidedBy: "reviewer@example.com"})
		require.NoError(t, err)
		assert.Equal(t, models.QueueStatusRejected, decided.Status)
	})

	t.Run("terminal items cannot be decided again", func(t *testing.T) {
		manager, _ := newManager(t, frozen)
		item, err := manager.Add(ctx, enqueueReq("cand-1", "match-1"))
		require.NoError(t, err)
		_, err = manager.Confirm(ctx, item.ID, models.DecideRequest{DecidedBy: "reviewer@example.com"})
		require.NoError(t, err)

		_, err = manager.Reject(ctx, item.ID, models.DecideRequest{DecidedBy: "reviewer@example.com"})
		var transitionErr *errors.InvalidTransitionError
		require.ErrorAs(t, err, &transitionErr)
		assert.Equal(t, models.QueueStatusConfirmed, transitionErr.From)
		assert.Equal(t, models.QueueStatusRejected, transitionErr.To)
	})

	t.Run("unknown item", func(t *testing.T) {
		manager, _ := newManager(t, frozen)

		_, err := manager.Confirm(ctx, "item-9", models.DecideRequest{DecidedBy: "reviewer@example.com"})
		var notFound *errors.QueueItemNotFoundError
		require.ErrorAs(t, err, &notFound)
	})
}

func TestManager_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("legal transition", func(t *testing.T) {
		manager, _ := newManager(t, frozen)
		item, err := manager.Add(ctx, enqueueReq("cand-1", "match-1"))
		require.NoError(t, err)

		updated, err := manager.UpdateStatus(ctx, item.ID, models.QueueStatusReviewing)
		require.NoError(t, err)
		assert.Equal(t, models.QueueStatusReviewing, updated.Status)
		assert.Nil(t, updated.Decision)
	})

	t.Run("illegal transition", func(t *testing.T) {
		manager, _ := newManager(t, frozen)
		item, err := manager.Add(ctx, enqueueReq("cand-1", "match-1"))
		require.NoError(t, err)
		_, err = manager.UpdateStatus(ctx, item.ID, models.QueueStatusExpired)
		require.NoError(t, err)

		_, err = manager.UpdateStatus(ctx, item.ID, models.QueueStatusPending)
		var transitionErr *errors.InvalidTransitionError
		require.ErrorAs(t, err, &transitionErr)
	})
}

func TestManager_List(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	manager, _ := newManager(t, frozen)
	for _, candidate := range []string{"cand-1", "cand-2", "cand-3", "cand-4", "cand-5"} {
		_, err := manager.Add(ctx, enqueueReq(candidate, "match-1"))
		require.NoError(t, err)
	}

	resp, err := manager.List(ctx, models.QueueFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Items, 2)
	assert.Equal(t, 5, resp.TotalCount)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 2, resp.PageSize)
}

func TestManager_Cleanup(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	seed := func(t *testing.T) (*Manager, *MemoryAdapter) {
		t.Helper()
		manager, adapter := newManager(t, frozen)
		require.NoError(t, adapter.Insert(ctx, queueItem("old-rejected", models.QueueStatusRejected, 0, frozen.AddDate(0, 0, -60))))
		require.NoError(t, adapter.Insert(ctx, queueItem("old-expired", models.QueueStatusExpired, 0, frozen.AddDate(0, 0, -45))))
		require.NoError(t, adapter.Insert(ctx, queueItem("old-pending", models.QueueStatusPending, 0, frozen.AddDate(0, 0, -40))))
		require.NoError(t, adapter.Insert(ctx, queueItem("fresh-pending", models.QueueStatusPending, 0, frozen.AddDate(0, 0, -1))))
		return manager, adapter
	}

	t.Run("removes items created before the cutoff", func(t *testing.T) {
		manager, adapter := seed(t)

		removed, err := manager.Cleanup(ctx, frozen.AddDate(0, 0, -30), nil, 0)
		require.NoError(t, err)
		assert.Equal(t, 3, removed)

		remaining, err := adapter.List(ctx, models.QueueFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"fresh-pending"}, itemIDs(remaining))
	})

	t.Run("status restriction", func(t *testing.T) {
		manager, adapter := seed(t)
		expired := models.QueueStatusExpired

		removed, err := manager.Cleanup(ctx, frozen.AddDate(0, 0, -30), &expired, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		remaining, err := adapter.List(ctx, models.QueueFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"old-rejected", "old-pending", "fresh-pending"}, itemIDs(remaining))
	})

	t.Run("limit caps the removal", func(t *testing.T) {
		manager, adapter := seed(t)

		removed, err := manager.Cleanup(ctx, frozen.AddDate(0, 0, -30), nil, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		count, err := adapter.Count(ctx, models.QueueFilter{})
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestManager_Stats(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	decidedItem := func(id string, status models.QueueStatus, createdAt, decidedAt time.Time) *models.QueueItem {
		item := queueItem(id, status, 0, createdAt)
		item.DecidedAt = &decidedAt
		item.DecidedBy = "reviewer@example.com"
		return item
	}

	t.Run("aggregates the queue", func(t *testing.T) {
		manager, adapter := newManager(t, frozen)

		require.NoError(t, adapter.Insert(ctx, queueItem("pending-old", models.QueueStatusPending, 0, frozen.Add(-72*time.Hour))))
		require.NoError(t, adapter.Insert(ctx, queueItem("pending-new", models.QueueStatusPending, 0, frozen.Add(-1*time.Hour))))
		require.NoError(t, adapter.Insert(ctx, queueItem("reviewing", models.QueueStatusReviewing, 0, frozen.Add(-2*time.Hour))))
		// Waited 1h, decided an hour ago.
		require.NoError(t, adapter.Insert(ctx, decidedItem("confirmed", models.QueueStatusConfirmed,
			frozen.Add(-2*time.Hour), frozen.Add(-1*time.Hour))))
		// Waited 24h, decided three days ago.
		require.NoError(t, adapter.Insert(ctx, decidedItem("rejected", models.QueueStatusRejected,
			frozen.Add(-4*24*time.Hour), frozen.Add(-3*24*time.Hour))))
		// Waited 48h, decided ten days ago.
		require.NoError(t, adapter.Insert(ctx, decidedItem("merged", models.QueueStatusMerged,
			frozen.Add(-12*24*time.Hour), frozen.Add(-10*24*time.Hour))))

		stats, err := manager.Stats(ctx)
		require.NoError(t, err)

		assert.Equal(t, 6, stats.Total)
		assert.Equal(t, 2, stats.ByStatus[models.QueueStatusPending])
		assert.Equal(t, 1, stats.ByStatus[models.QueueStatusReviewing])
		assert.Equal(t, 1, stats.ByStatus[models.QueueStatusConfirmed])
		assert.Equal(t, 1, stats.ByStatus[models.QueueStatusRejected])
		assert.Equal(t, 1, stats.ByStatus[models.QueueStatusMerged])
		assert.Equal(t, 0, stats.ByStatus[models.QueueStatusExpired])

		sum := 0
		for _, count := range stats.ByStatus {
			sum += count
		}
		assert.Equal(t, stats.Total, sum)

		// (1h + 24h + 48h) / 3 decided items.
		assert.Equal(t, int64((73*time.Hour/3)/time.Millisecond), stats.AvgWaitTimeMs)

		require.NotNil(t, stats.OldestPending)
		assert.True(t, stats.OldestPending.Equal(frozen.Add(-72*time.Hour)))

		assert.Equal(t, 1, stats.Throughput.Last24Hours)
		assert.Equal(t, 2, stats.Throughput.Last7Days)
		assert.Equal(t, 3, stats.Throughput.Last30Days)
	})

	t.Run("empty queue", func(t *testing.T) {
		manager, _ := newManager(t, frozen)

		stats, err := manager.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.Total)
		assert.Zero(t, stats.AvgWaitTimeMs)
		assert.Nil(t, stats.OldestPending)
		assert.Zero(t, stats.Throughput.Last30Days)
	})
}
