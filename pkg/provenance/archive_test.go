package provenance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

func archiveSources() []models.SourceRecord {
	return []models.SourceRecord{
		{ID: "src-2", Record: models.Record{"name": "A. Johnson", "phone": "555-0100"}},
		{ID: "src-1", Record: models.Record{"name": "Alice Johnson", "email": "alice@example.com"}},
	}
}

func sourceIDs(records []models.SourceRecord) []string {
	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}
	return ids
}

func TestMemoryArchive(t *testing.T) {
	ctx := context.Background()

	t.Run("save and get all", func(t *testing.T) {
		archive := NewMemoryArchive()
		require.NoError(t, archive.Save(ctx, "golden-1", archiveSources()))

		records, err := archive.GetAll(ctx, "golden-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"src-1", "src-2"}, sourceIDs(records))
		assert.Equal(t, "alice@example.com", records[0].Record["email"])
	})

	t.Run("get returns only the ids it has", func(t *testing.T) {
		archive := NewMemoryArchive()
		require.NoError(t, archive.Save(ctx, "golden-1", archiveSources()))

		records, err := archive.Get(ctx, "golden-1", []string{"src-1", "src-9"})
		require.NoError(t, err)
		assert.Equal(t, []string{"src-1"}, sourceIDs(records))
	})

	t.Run("has", func(t *testing.T) {
		archive := NewMemoryArchive()
		require.NoError(t, archive.Save(ctx, "golden-1", archiveSources()))

		ok, err := archive.Has(ctx, "golden-1", "src-1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = archive.Has(ctx, "golden-1", "src-9")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = archive.Has(ctx, "golden-9", "src-1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("remove", func(t *testing.T) {
		archive := NewMemoryArchive()
		require.NoError(t, archive.Save(ctx, "golden-1", archiveSources()))

		require.NoError(t, archive.Remove(ctx, "golden-1", []string{"src-1"}))

		records, err := archive.GetAll(ctx, "golden-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"src-2"}, sourceIDs(records))

		require.NoError(t, archive.Remove(ctx, "golden-1", []string{"src-2"}))
		records, err = archive.GetAll(ctx, "golden-1")
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("clear", func(t *testing.T) {
		archive := NewMemoryArchive()
		require.NoError(t, archive.Save(ctx, "golden-1", archiveSources()))

		require.NoError(t, archive.Clear(ctx))

		records, err := archive.GetAll(ctx, "golden-1")
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("archived records are isolated from callers", func(t *testing.T) {
		archive := NewMemoryArchive()
		input := archiveSources()
		require.NoError(t, archive.Save(ctx, "golden-1", input))

		input[0].Record["phone"] = "tampered"

		records, err := archive.GetAll(ctx, "golden-1")
		require.NoError(t, err)
		require.Equal(t, "src-2", records[1].ID)
		assert.Equal(t, "555-0100", records[1].Record["phone"])

		records[1].Record["phone"] = "also tampered"
		fresh, err := archive.Get(ctx, "golden-1", []string{"src-2"})
		require.NoError(t, err)
		assert.Equal(t, "555-0100", fresh[0].Record["phone"])
	})

	t.Run("saving again overwrites by source id", func(t *testing.T) {
		archive := NewMemoryArchive()
		require.NoError(t, archive.Save(ctx, "golden-1", archiveSources()))

		updated := []models.SourceRecord{
			{ID: "src-1", Record: models.Record{"name": "Alice J.", "email": "aj@example.com"}},
		}
		require.NoError(t, archive.Save(ctx, "golden-1", updated))

		records, err := archive.GetAll(ctx, "golden-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"src-1", "src-2"}, sourceIDs(records))
		assert.Equal(t, "aj@example.com", records[0].Record["email"])
	})

}
