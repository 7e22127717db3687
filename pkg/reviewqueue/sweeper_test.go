package reviewqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

func TestSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	manager, adapter := newManager(t, frozen)
	require.NoError(t, adapter.Insert(ctx, queueItem("stale-pending", models.QueueStatusPending, 0, frozen.AddDate(0, 0, -40))))
	require.NoError(t, adapter.Insert(ctx, queueItem("stale-reviewing", models.QueueStatusReviewing, 0, frozen.AddDate(0, 0, -35))))
	require.NoError(t, adapter.Insert(ctx, queueItem("fresh-pending", models.QueueStatusPending, 0, frozen.AddDate(0, 0, -1))))
	require.NoError(t, adapter.Insert(ctx, queueItem("old-confirmed", models.QueueStatusConfirmed, 0, frozen.AddDate(0, 0, -60))))

	sweeper := NewSweeper(manager, SweeperConfig{MaxItemAge: 30 * 24 * time.Hour}, testLogger())
	sweeper.now = func() time.Time { return frozen }

	expired, err := sweeper.sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, expired)

	for id, want := range map[string]models.QueueStatus{
		"stale-pending":   models.QueueStatusExpired,
		"stale-reviewing": models.QueueStatusExpired,
		"fresh-pending":   models.QueueStatusPending,
		"old-confirmed":   models.QueueStatusConfirmed,
	} {
		item, err := adapter.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, item.Status, id)
	}

	// A second sweep finds nothing left to expire.
	expired, err = sweeper.sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestSweeper_StartStop(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	manager, _ := newManager(t, frozen)
	sweeper := NewSweeper(manager, SweeperConfig{Interval: time.Hour}, testLogger())

	require.NoError(t, sweeper.Start(ctx))
	assert.True(t, sweeper.IsRunning())

	err := sweeper.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	require.NoError(t, sweeper.Stop(ctx))
	assert.False(t, sweeper.IsRunning())

	// Stopping twice is a no-op.
	require.NoError(t, sweeper.Stop(ctx))
}

func TestSweeper_Defaults(t *testing.T) {
	frozen := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	manager, _ := newManager(t, frozen)

	sweeper := NewSweeper(manager, SweeperConfig{}, testLogger())
	assert.Equal(t, DefaultSweepInterval, sweeper.config.Interval)
	assert.Equal(t, DefaultMaxItemAge, sweeper.config.MaxItemAge)
}
