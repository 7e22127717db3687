package records

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

func seedRecord(id, name, city string, age int) models.SourceRecord {
	return models.SourceRecord{
		ID: id,
		Record: models.Record{
			"name":    name,
			"age":     age,
			"address": map[string]any{"city": city},
		},
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

func seededAdapter(t *testing.T) *MemoryAdapter {
	t.Helper()
	adapter := NewMemoryAdapter()
	ctx := context.Background()
	require.NoError(t, adapter.Insert(ctx, seedRecord("rec-1", "Alice", "Berlin", 34)))
	require.NoError(t, adapter.Insert(ctx, seedRecord("rec-2", "Bob", "Munich", 51)))
	require.NoError(t, adapter.Insert(ctx, seedRecord("rec-3", "Carol", "Berlin", 28)))
	return adapter
}

func TestMemoryAdapter_Insert(t *testing.T) {
	t.Run("rejects a duplicate id", func(t *testing.T) {
		adapter := seededAdapter(t)
		err := adapter.Insert(context.Background(), seedRecord("rec-1", "Alice", "Berlin", 34))

		var dup *errors.DuplicateRecordError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "rec-1", dup.ID)
	})

	t.Run("rejects an empty id", func(t *testing.T) {
		adapter := NewMemoryAdapter()
		err := adapter.Insert(context.Background(), models.SourceRecord{Record: models.Record{}})
		assert.Error(t, err)
	})

	t.Run("stores a copy, not the caller's map", func(t *testing.T) {
		adapter := NewMemoryAdapter()
		record := seedRecord("rec-1", "Alice", "Berlin", 34)
		require.NoError(t, adapter.Insert(context.Background(), record))

		record.Record["name"] = "Mallory"
		found, err := adapter.FindByIDs(context.Background(), []string{"rec-1"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "Alice", found[0].Record["name"])
	})
}

func TestMemoryAdapter_FindByIDs(t *testing.T) {
	adapter := seededAdapter(t)

	t.Run("returns records in request order", func(t *testing.T) {
		found, err := adapter.FindByIDs(context.Background(), []string{"rec-3", "rec-1"})
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, "rec-3", found[0].ID)
		assert.Equal(t, "rec-1", found[1].ID)
	})

	t.Run("missing ids are absent, not errors", func(t *testing.T) {
		found, err := adapter.FindByIDs(context.Background(), []string{"rec-1", "ghost"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "rec-1", found[0].ID)
	})
}

func TestMemoryAdapter_FindAll(t *testing.T) {
	adapter := seededAdapter(t)
	ctx := context.Background()

	t.Run("empty filter returns everything in insertion order", func(t *testing.T) {
		found, err := adapter.FindAll(ctx, nil, models.QueryOptions{})
		require.NoError(t, err)
		require.Len(t, found, 3)
		assert.Equal(t, "rec-1", found[0].ID)
		assert.Equal(t, "rec-3", found[2].ID)
	})

	t.Run("filters on nested paths", func(t *testing.T) {
		found, err := adapter.FindAll(ctx, models.FilterCriteria{"address.city": "Berlin"}, models.QueryOptions{})
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, "rec-1", found[0].ID)
		assert.Equal(t, "rec-3", found[1].ID)
	})

	t.Run("operator conditions apply", func(t *testing.T) {
		found, err := adapter.FindAll(ctx, models.FilterCriteria{
			"age": map[string]any{models.OpGte: 30},
		}, models.QueryOptions{})
		require.NoError(t, err)
		require.Len(t, found, 2)
	})

	t.Run("orders by payload path", func(t *testing.T) {
		found, err := adapter.FindAll(ctx, nil, models.QueryOptions{OrderBy: "age"})
		require.NoError(t, err)
		require.Len(t, found, 3)
		assert.Equal(t, "rec-3", found[0].ID)
		assert.Equal(t, "rec-2", found[2].ID)
	})

	t.Run("descending order flips the sort", func(t *testing.T) {
		found, err := adapter.FindAll(ctx, nil, models.QueryOptions{OrderBy: "age", OrderDirection: models.SortDesc})
		require.NoError(t, err)
		require.Len(t, found, 3)
		assert.Equal(t, "rec-2", found[0].ID)
	})

	t.Run("limit and offset page the result", func(t *testing.T) {
		found, err := adapter.FindAll(ctx, nil, models.QueryOptions{OrderBy: "id", Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "rec-2", found[0].ID)
	})

	t.Run("field projection prunes the payload", func(t *testing.T) {
		found, err := adapter.FindAll(ctx, models.FilterCriteria{"name": "Alice"}, models.QueryOptions{
			Fields: []string{"name", "address.city"},
		})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, models.Record{
			"name":    "Alice",
			"address": map[string]any{"city": "Berlin"},
		}, found[0].Record)
	})

	t.Run("invalid operator fails loudly", func(t *testing.T) {
		_, err := adapter.FindAll(ctx, models.FilterCriteria{
			"name": map[string]any{"$regex": ".*"},
		}, models.QueryOptions{})
		assert.Error(t, err)
	})
}

func TestMemoryAdapter_FindByBlockingKeys(t *testing.T) {
	adapter := seededAdapter(t)

	found, err := adapter.FindByBlockingKeys(context.Background(), map[string]any{
		"address.city": "Berlin",
	}, models.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, found, 2)
}

func TestMemoryAdapter_Count(t *testing.T) {
	adapter := seededAdapter(t)

	count, err := adapter.Count(context.Background(), models.FilterCriteria{"address.city": "Berlin"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMemoryAdapter_UpdateDelete(t *testing.T) {
	t.Run("update replaces the payload", func(t *testing.T) {
		adapter := seededAdapter(t)
		updated := seedRecord("rec-1", "Alice Smith", "Hamburg", 35)
		require.NoError(t, adapter.Update(context.Background(), updated))

		found, err := adapter.FindByIDs(context.Background(), []string{"rec-1"})
		require.NoError(t, err)
		assert.Equal(t, "Alice Smith", found[0].Record["name"])
	})

	t.Run("update of a missing record fails", func(t *testing.T) {
		adapter := NewMemoryAdapter()
		err := adapter.Update(context.Background(), seedRecord("ghost", "x", "y", 1))

		var notFound *errors.RecordNotFoundError
		assert.ErrorAs(t, err, &notFound)
	})

	t.Run("delete removes the record", func(t *testing.T) {
		adapter := seededAdapter(t)
		require.NoError(t, adapter.Delete(context.Background(), "rec-2"))
		assert.Equal(t, 2, adapter.Len())

		err := adapter.Delete(context.Background(), "rec-2")
		var notFound *errors.RecordNotFoundError
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestMemoryAdapter_Batches(t *testing.T) {
	t.Run("batch insert is all or nothing", func(t *testing.T) {
		adapter := seededAdapter(t)
		err := adapter.BatchInsert(context.Background(), []models.SourceRecord{
			seedRecord("rec-9", "Dave", "Rome", 40),
			seedRecord("rec-1", "Dup", "Rome", 41),
		})

		var dup *errors.DuplicateRecordError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, 3, adapter.Len())
	})

	t.Run("batch update is all or nothing", func(t *testing.T) {
		adapter := seededAdapter(t)
		err := adapter.BatchUpdate(context.Background(), []models.SourceRecord{
			seedRecord("rec-1", "Alice2", "Berlin", 34),
			seedRecord("ghost", "x", "y", 1),
		})
		require.Error(t, err)

		found, findErr := adapter.FindByIDs(context.Background(), []string{"rec-1"})
		require.NoError(t, findErr)
		assert.Equal(t, "Alice", found[0].Record["name"])
	})
}

func TestMemoryAdapter_Transaction(t *testing.T) {
	adapter := seededAdapter(t)

	err := adapter.Transaction(context.Background(), func(ctx context.Context) error {
		return adapter.Insert(ctx, seedRecord("rec-4", "Dave", "Rome", 40))
	})
	require.NoError(t, err)
	assert.Equal(t, 4, adapter.Len())
}
