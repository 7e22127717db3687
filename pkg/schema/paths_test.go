package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

func TestCollectPaths(t *testing.T) {
	t.Run("unions schema and payload paths", func(t *testing.T) {
		schema := &models.RecordSchema{
			Fields: map[string]models.FieldDefinition{
				"name": {Type: models.FieldTypeString},
				"address": {Type: models.FieldTypeObject, Fields: map[string]models.FieldDefinition{
					"city": {Type: models.FieldTypeString},
				}},
			},
		}
		sources := []models.SourceRecord{
			{ID: "rec-1", Record: models.Record{"email": "alice@example.com"}},
			{ID: "rec-2", Record: models.Record{"name": "Alice", "phone": "555-0100"}},
		}

		paths, conflict := CollectPaths(schema, sources)
		require.Nil(t, conflict)

		assert.Equal(t, []string{"address.city", "email", "name", "phone"}, paths)
	})

	t.Run("payload objects recurse and arrays stay leaves", func(t *testing.T) {
		sources := []models.SourceRecord{
			{ID: "rec-1", Record: models.Record{
				"address": map[string]any{"city": "Berlin", "geo": map[string]any{"lat": 52.52}},
				"emails":  []any{"a@example.com", "b@example.com"},
			}},
		}

		paths, conflict := CollectPaths(nil, sources)
		require.Nil(t, conflict)

		assert.Equal(t, []string{"address.city", "address.geo.lat", "emails"}, paths)
	})

	t.Run("empty payload objects count as leaves", func(t *testing.T) {
		sources := []models.SourceRecord{
			{ID: "rec-1", Record: models.Record{"tags": map[string]any{}}},
		}

		paths, conflict := CollectPaths(nil, sources)
		require.Nil(t, conflict)
		assert.Equal(t, []string{"tags"}, paths)
	})

	t.Run("reports a value and object collision across sources", func(t *testing.T) {
		sources := []models.SourceRecord{
			{ID: "rec-1", Record: models.Record{"address": "12 Main St"}},
			{ID: "rec-2", Record: models.Record{"address": map[string]any{"city": "Berlin"}}},
		}

		paths, conflict := CollectPaths(nil, sources)
		require.NotNil(t, conflict)

		assert.Nil(t, paths)
		assert.Equal(t, "address", conflict.Path)
		assert.Equal(t, "source 'rec-2'", conflict.ObjectIn)
		assert.Equal(t, "source 'rec-1'", conflict.ValueIn)
	})

	t.Run("reports a collision between schema and payload", func(t *testing.T) {
		schema := &models.RecordSchema{
			Fields: map[string]models.FieldDefinition{
				"name": {Type: models.FieldTypeString},
			},
		}
		sources := []models.SourceRecord{
			{ID: "rec-1", Record: models.Record{"name": map[string]any{"first": "Alice"}}},
		}

		_, conflict := CollectPaths(schema, sources)
		require.NotNil(t, conflict)

		assert.Equal(t, "name", conflict.Path)
		assert.Equal(t, "source 'rec-1'", conflict.ObjectIn)
		assert.Equal(t, "the schema", conflict.ValueIn)
	})

	t.Run("a memberless schema object merges as a unit", func(t *testing.T) {
		schema := &models.RecordSchema{
			Fields: map[string]models.FieldDefinition{
				"metadata": {Type: models.FieldTypeObject},
			},
		}
		sources := []models.SourceRecord{
			{ID: "rec-1", Record: models.Record{"metadata": map[string]any{"origin": "import"}}},
		}

		paths, conflict := CollectPaths(schema, sources)
		require.Nil(t, conflict)

		assert.Equal(t, []string{"metadata", "metadata.origin"}, paths)
	})

	t.Run("a memberless schema object rejects a scalar payload value", func(t *testing.T) {
		schema := &models.RecordSchema{
			Fields: map[string]models.FieldDefinition{
				"metadata": {Type: models.FieldTypeObject},
			},
		}
		sources := []models.SourceRecord{
			{ID: "rec-1", Record: models.Record{"metadata": "none"}},
		}

		_, conflict := CollectPaths(schema, sources)
		require.NotNil(t, conflict)

		assert.Equal(t, "metadata", conflict.Path)
		assert.Equal(t, "the schema", conflict.ObjectIn)
		assert.Equal(t, "source 'rec-1'", conflict.ValueIn)
	})
}
