package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/matching"
	"github.com/8arr3tt/have-we-met-sub007/pkg/merging"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/processor"
	"github.com/8arr3tt/have-we-met-sub007/pkg/provenance"
	"github.com/8arr3tt/have-we-met-sub007/pkg/reviewqueue"
	"github.com/8arr3tt/have-we-met-sub007/pkg/unmerge"
)

// resolutionStack wires the intake pipeline the way an embedding application
// would, with in-memory adapters behind every port.
type resolutionStack struct {
	matcher   *matching.Engine
	merger    *merging.Engine
	store     *provenance.MemoryStore
	archive   *provenance.MemoryArchive
	queue     *reviewqueue.Manager
	inventory *processor.MemoryInventory
	processor *processor.Processor
}

func newResolutionStack(t *testing.T) *resolutionStack {
	t.Helper()

	matcher, err := matching.NewEngine(models.MatchConfig{
		Fields: []models.FieldMatchConfig{
			{Field: "name", Strategy: models.ComparatorJaroWinkler, Weight: 2.0},
			{Field: "email", Strategy: models.ComparatorExact, Weight: 1.5},
			{Field: "phone", Strategy: models.ComparatorExact, Weight: 1.0},
		},
		Thresholds: models.MatchThresholds{NoMatch: 2.0, DefiniteMatch: 3.5},
	}, testLogger())
	require.NoError(t, err)

	store := provenance.NewMemoryStore()
	archive := provenance.NewMemoryArchive()
	tracker := provenance.NewTracker(store, archive, testLogger())
	merger := merging.NewEngine(testLogger(), nil, tracker)
	queue := reviewqueue.NewManager(reviewqueue.NewMemoryAdapter(), testLogger())
	inventory := processor.NewMemoryInventory()

	return &resolutionStack{
		matcher:   matcher,
		merger:    merger,
		store:     store,
		archive:   archive,
		queue:     queue,
		inventory: inventory,
		processor: processor.NewProcessor(testLogger(), matcher, merger, queue, inventory),
	}
}

func person(id, name, email, phone string) models.SourceRecord {
	return stamped(id, models.Record{"name": name, "email": email, "phone": phone})
}

func TestIntakeMergeUnmergeJourney(t *testing.T) {
	ctx := context.Background()
	stack := newResolutionStack(t)

	first, err := stack.processor.ProcessRecord(ctx, person("rec-1", "Dana Cruz", "dana@example.com", "555-0100"), "crm")
	require.NoError(t, err)
	require.Equal(t, processor.OutcomeStandalone, first.Outcome)

	second, err := stack.processor.ProcessRecord(ctx, person("rec-2", "Dana Cruz", "dana@example.com", "555-0100"), "billing")
	require.NoError(t, err)
	require.Equal(t, processor.OutcomeMerged, second.Outcome)

	merge := second.MergeResult
	require.NotNil(t, merge)
	assert.Equal(t, "rec-2", merge.GoldenRecordID)

	prov, err := stack.store.Get(ctx, merge.GoldenRecordID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"rec-1", "rec-2"}, prov.SourceRecordIDs)
	assert.Equal(t, "intake-processor", prov.MergedBy)

	archived, err := stack.archive.GetAll(ctx, merge.GoldenRecordID)
	require.NoError(t, err)
	assert.Len(t, archived, 2)

	require.Equal(t, []string{"rec-2"}, stack.inventory.IDs())

	var deletedGoldens []string
	executor := unmerge.NewExecutor(stack.store, stack.archive, nil, unmerge.Callbacks{
		RestoreSource: func(ctx context.Context, record models.SourceRecord) error {
			return stack.inventory.SaveStandalone(ctx, record)
		},
		DeleteGoldenRecord: func(_ context.Context, goldenRecordID string) error {
			deletedGoldens = append(deletedGoldens, goldenRecordID)
			return nil
		},
	}, testLogger())

	check, err := executor.CanUnmerge(ctx, merge.GoldenRecordID)
	require.NoError(t, err)
	assert.True(t, check.CanUnmerge)
	assert.Equal(t, 2, check.SourceRecordCount)

	result, err := executor.Unmerge(ctx, models.UnmergeRequest{
		GoldenRecordID: merge.GoldenRecordID,
		UnmergedBy:     "steward-1",
		Reason:         "householding mistake",
	})
	require.NoError(t, err)

	assert.Equal(t, models.UnmergeFull, result.Mode)
	assert.True(t, result.GoldenRecordDeleted)
	assert.Equal(t, []string{merge.GoldenRecordID}, deletedGoldens)
	assert.ElementsMatch(t, merge.SourceRecords, result.RestoredRecords)
	assert.Empty(t, result.RemainingRecordIDs)
	assert.Equal(t, []string{"rec-1", "rec-2"}, stack.inventory.IDs())

	prov, err = stack.store.Get(ctx, merge.GoldenRecordID)
	require.NoError(t, err)
	assert.True(t, prov.IsUnmerged())
	require.NotNil(t, prov.UnmergedAt)
	assert.Equal(t, "steward-1", prov.UnmergedBy)
	assert.Equal(t, "householding mistake", prov.UnmergeReason)

	t.Run("a second unmerge of the same golden record is refused", func(t *testing.T) {
		_, err := executor.Unmerge(ctx, models.UnmergeRequest{
			GoldenRecordID: merge.GoldenRecordID,
			UnmergedBy:     "steward-1",
		})

		var already *errors.AlreadyUnmergedError
		require.ErrorAs(t, err, &already)
		assert.Equal(t, merge.GoldenRecordID, already.GoldenRecordID)
	})

	t.Run("an unknown golden record fails the precondition check without an error", func(t *testing.T) {
		check, err := executor.CanUnmerge(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, check.CanUnmerge)
		assert.NotEmpty(t, check.Reason)
	})
}

func TestBorderlineIntakeLandsInReview(t *testing.T) {
	ctx := context.Background()
	stack := newResolutionStack(t)

	_, err := stack.processor.ProcessRecord(ctx, person("rec-1", "Dana Cruz", "dana@example.com", "555-0100"), "crm")
	require.NoError(t, err)

	// name and email agree but the phone does not, which lands exactly on
	// the definite threshold; only totals strictly above it merge on their own
	result, err := stack.processor.ProcessRecord(ctx, person("rec-3", "Dana Cruz", "dana@example.com", "555-0199"), "web")
	require.NoError(t, err)

	require.Equal(t, processor.OutcomeQueued, result.Outcome)
	require.NotNil(t, result.QueueItem)
	assert.Equal(t, models.QueueStatusPending, result.QueueItem.Status)

	require.Len(t, result.QueueItem.PotentialMatches, 1)
	match := result.QueueItem.PotentialMatches[0]
	assert.Equal(t, "rec-1", match.RecordID)
	assert.InDelta(t, 3.5, match.Score, 1e-9)

	listed, err := stack.queue.List(ctx, models.QueueFilter{
		Status: []models.QueueStatus{models.QueueStatusPending},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, listed.TotalCount)
}

func TestProvenanceRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := provenance.NewMemoryStore()

	saved := &models.Provenance{
		GoldenRecordID:  "golden-7",
		SourceRecordIDs: []string{"src-1", "src-2"},
		FieldSources: map[string]models.FieldProvenance{
			"name": {Field: "name", SourceRecordID: "src-1", Strategy: models.StrategyPreferNonNull},
		},
		StrategyUsed: models.StrategyPreferNonNull,
		MergedAt:     recordStamp,
		MergedBy:     "intake-processor",
	}
	require.NoError(t, store.Save(ctx, saved))

	t.Run("a read returns exactly what was written", func(t *testing.T) {
		got, err := store.Get(ctx, "golden-7")
		require.NoError(t, err)
		assert.Equal(t, saved, got)
	})

	t.Run("reads are copies, not aliases", func(t *testing.T) {
		got, err := store.Get(ctx, "golden-7")
		require.NoError(t, err)
		got.SourceRecordIDs[0] = "tampered"
		got.FieldSources["name"] = models.FieldProvenance{Field: "name", SourceRecordID: "tampered"}

		fresh, err := store.Get(ctx, "golden-7")
		require.NoError(t, err)
		assert.Equal(t, "src-1", fresh.SourceRecordIDs[0])
		assert.Equal(t, "src-1", fresh.FieldSources["name"].SourceRecordID)
	})

	t.Run("marking unmerged updates the row and hides it from source lookups", func(t *testing.T) {
		goldens, err := store.FindGoldenRecordsBySource(ctx, "src-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"golden-7"}, goldens)

		unmergedAt := recordStamp.Add(48 * time.Hour)
		require.NoError(t, store.MarkUnmerged(ctx, "golden-7", provenance.UnmergeMeta{
			UnmergedAt: unmergedAt,
			UnmergedBy: "steward-1",
			Reason:     "split household",
		}))

		got, err := store.Get(ctx, "golden-7")
		require.NoError(t, err)
		assert.True(t, got.IsUnmerged())
		require.NotNil(t, got.UnmergedAt)
		assert.True(t, got.UnmergedAt.Equal(unmergedAt))
		assert.Equal(t, "steward-1", got.UnmergedBy)
		assert.Equal(t, "split household", got.UnmergeReason)

		goldens, err = store.FindGoldenRecordsBySource(ctx, "src-1")
		require.NoError(t, err)
		assert.Empty(t, goldens)
	})
}

func TestSplitUnmergeRegroupsSources(t *testing.T) {
	ctx := context.Background()
	stack := newResolutionStack(t)

	accounts := []models.SourceRecord{
		person("acct-1", "Dana Cruz", "dana@example.com", "555-0100"),
		person("acct-2", "Dana Cruz", "dana@work.example", "555-0111"),
		person("acct-3", "D. Cruz", "dana@example.com", "555-0100"),
	}

	merged, err := stack.merger.Merge(ctx, models.MergeRequest{
		SourceRecords: accounts,
		MergedBy:      "steward-1",
	})
	require.NoError(t, err)
	require.Equal(t, "acct-1", merged.GoldenRecordID)

	executor := unmerge.NewExecutor(stack.store, stack.archive, stack.merger, unmerge.Callbacks{}, testLogger())

	result, err := executor.Unmerge(ctx, models.UnmergeRequest{
		GoldenRecordID: "acct-1",
		Mode:           models.UnmergeSplit,
		Groups:         [][]string{{"acct-1", "acct-3"}, {"acct-2"}},
		UnmergedBy:     "steward-1",
		Reason:         "two different people share this account",
	})
	require.NoError(t, err)

	assert.Equal(t, models.UnmergeSplit, result.Mode)
	assert.False(t, result.GoldenRecordDeleted)
	assert.Len(t, result.RestoredRecords, 3)
	assert.Empty(t, result.RemainingRecordIDs)

	// groups of one just stay restored; the pair re-merges under a fresh id
	require.Len(t, result.NewGoldenRecords, 1)
	regrouped := result.NewGoldenRecords[0]
	assert.NotEmpty(t, regrouped.GoldenRecordID)
	assert.NotEqual(t, "acct-1", regrouped.GoldenRecordID)
	require.NotNil(t, regrouped.Provenance)
	assert.ElementsMatch(t, []string{"acct-1", "acct-3"}, regrouped.Provenance.SourceRecordIDs)

	newProv, err := stack.store.Get(ctx, regrouped.GoldenRecordID)
	require.NoError(t, err)
	assert.Equal(t, "steward-1", newProv.MergedBy)

	old, err := stack.store.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, old.IsUnmerged())
}
