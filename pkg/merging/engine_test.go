package merging

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/provenance"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func boolPtr(b bool) *bool { return &b }

// stamped builds a source record with fixed non-zero timestamps.
func stamped(id string, payload models.Record) models.SourceRecord {
	return models.SourceRecord{
		ID:        id,
		Record:    payload,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

func testSources() []models.SourceRecord {
	return []models.SourceRecord{
		{
			ID: "src-1",
			Record: models.Record{
				"name":  "Alice Johnson",
				"email": "alice@example.com",
				"address": map[string]any{
					"city": "Berlin",
					"zip":  "10115",
				},
			},
			CreatedAt: time.Date(2023, 11, 2, 8, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
		},
		{
			ID: "src-2",
			Record: models.Record{
				"name":  "Alice Johnson",
				"email": "a.johnson@example.com",
				"phone": "555-0100",
				"address": map[string]any{
					"city": "Berlin",
				},
			},
			CreatedAt: time.Date(2023, 12, 18, 11, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC),
		},
	}
}

func TestEngine_Merge(t *testing.T) {
	engine := NewEngine(testLogger(), nil, nil)

	t.Run("merges with the default strategy", func(t *testing.T) {
		result, err := engine.Merge(context.Background(), models.MergeRequest{
			SourceRecords: testSources(),
			MergedBy:      "reviewer@example.com",
		})
		require.NoError(t, err)

		assert.Equal(t, "src-1", result.GoldenRecordID)
		assert.Equal(t, "Alice Johnson", result.GoldenRecord["name"])
		assert.Equal(t, "alice@example.com", result.GoldenRecord["email"])
		assert.Equal(t, "555-0100", result.GoldenRecord["phone"])

		address, ok := result.GoldenRecord["address"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "Berlin", address["city"])
		assert.Equal(t, "10115", address["zip"])

		assert.Equal(t, 5, result.Stats.TotalFields)
		assert.Equal(t, 1, result.Stats.ConflictCount)
		assert.Equal(t, 4, result.Stats.SourceContributions["src-1"])
		assert.Equal(t, 1, result.Stats.SourceContributions["src-2"])
	})

	t.Run("records automatically resolved conflicts", func(t *testing.T) {
		result, err := engine.Merge(context.Background(), models.MergeRequest{
			SourceRecords: testSources(),
		})
		require.NoError(t, err)

		require.Len(t, result.Conflicts, 1)
		conflict := result.Conflicts[0]
		assert.Equal(t, "email", conflict.Field)
		assert.Equal(t, models.ConflictResolvedAuto, conflict.Resolution)
		assert.Equal(t, "alice@example.com", conflict.ResolvedValue)
		assert.Contains(t, conflict.Note, models.StrategyPreferNonNull)
		assert.Len(t, conflict.Values, 2)
	})

	t.Run("builds provenance for every golden field", func(t *testing.T) {
		result, err := engine.Merge(context.Background(), models.MergeRequest{
			SourceRecords: testSources(),
			MergedBy:      "reviewer@example.com",
			QueueItemID:   "queue-42",
		})
		require.NoError(t, err)

		prov := result.Provenance
		require.NotNil(t, prov)
		assert.Equal(t, result.GoldenRecordID, prov.GoldenRecordID)
		assert.Equal(t, []string{"src-1", "src-2"}, prov.SourceRecordIDs)
		assert.Equal(t, "reviewer@example.com", prov.MergedBy)
		assert.Equal(t, "queue-42", prov.QueueItemID)
		assert.Len(t, prov.FieldSources, 5)

		email := prov.FieldSources["email"]
		assert.Equal(t, "src-1", email.SourceRecordID)
		assert.True(t, email.HadConflict)
		assert.NotEmpty(t, email.ConflictNote)

		phone := prov.FieldSources["phone"]
		assert.Equal(t, "src-2", phone.SourceRecordID)
		assert.False(t, phone.HadConflict)
	})

	t.Run("rejects fewer than two sources", func(t *testing.T) {
		_, err := engine.Merge(context.Background(), models.MergeRequest{
			SourceRecords: testSources()[:1],
		})
		require.Error(t, err)

		var insufficient *errors.InsufficientSourcesError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, 1, insufficient.Count)
	})

	t.Run("rejects duplicate source ids", func(t *testing.T) {
		sources := testSources()
		sources[1].ID = sources[0].ID

		_, err := engine.Merge(context.Background(), models.MergeRequest{SourceRecords: sources})
		require.Error(t, err)

		var invalid *errors.MergeValidationError
		require.ErrorAs(t, err, &invalid)
		assert.Contains(t, invalid.Reason, "duplicate")
	})

	t.Run("rejects empty source ids", func(t *testing.T) {
		sources := testSources()
		sources[0].ID = ""

		_, err := engine.Merge(context.Background(), models.MergeRequest{SourceRecords: sources})

		var invalid *errors.MergeValidationError
		require.ErrorAs(t, err, &invalid)
	})

	t.Run("rejects sources without timestamps", func(t *testing.T) {
		sources := testSources()
		sources[1].UpdatedAt = time.Time{}

		_, err := engine.Merge(context.Background(), models.MergeRequest{SourceRecords: sources})
		require.Error(t, err)

		var invalid *errors.MergeValidationError
		require.ErrorAs(t, err, &invalid)
		assert.Contains(t, invalid.Reason, "timestamps")
		assert.Contains(t, invalid.Reason, "src-2")
	})

	t.Run("rejects a field that is an object in one source and a value in another", func(t *testing.T) {
		sources := []models.SourceRecord{
			stamped("src-1", models.Record{"address": "12 Main St"}),
			stamped("src-2", models.Record{"address": map[string]any{"city": "Berlin"}}),
		}

		_, err := engine.Merge(context.Background(), models.MergeRequest{SourceRecords: sources})
		require.Error(t, err)

		var mismatch *errors.StrategyTypeMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "address", mismatch.Field)
		assert.Equal(t, models.StrategyPreferNonNull, mismatch.Strategy)
		assert.Contains(t, mismatch.Reason, "source 'src-2'")
		assert.Contains(t, mismatch.Reason, "source 'src-1'")
	})

	t.Run("target record id wins over the first source id", func(t *testing.T) {
		result, err := engine.Merge(context.Background(), models.MergeRequest{
			SourceRecords:  testSources(),
			TargetRecordID: "golden-7",
		})
		require.NoError(t, err)
		assert.Equal(t, "golden-7", result.GoldenRecordID)
	})

	t.Run("markConflict leaves the disputed field unset", func(t *testing.T) {
		result, err := engine.Merge(context.Background(), models.MergeRequest{
			SourceRecords: testSources(),
			Config:        &models.MergeConfig{ConflictResolution: models.ConflictMark},
		})
		require.NoError(t, err)

		_, present := result.GoldenRecord["email"]
		assert.False(t, present)

		require.Len(t, result.Conflicts, 1)
		assert.Equal(t, models.ConflictResolvedDeferred, result.Conflicts[0].Resolution)

		// the dispute stays auditable: provenance records the conflict but
		// attributes no winning source
		tracked, ok := result.Provenance.FieldSources["email"]
		require.True(t, ok)
		assert.True(t, tracked.HadConflict)
		assert.Empty(t, tracked.SourceRecordID)
		assert.Len(t, tracked.CandidateValues, 2)
	})

	t.Run("error policy aborts on the first conflict", func(t *testing.T) {
		_, err := engine.Merge(context.Background(), models.MergeRequest{
			SourceRecords: testSources(),
			Config:        &models.MergeConfig{ConflictResolution: models.ConflictError},
		})
		require.Error(t, err)

		var conflict *errors.MergeConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "email", conflict.Field)
		assert.Len(t, conflict.Values, 2)
	})
}

func TestEngine_MergeStrategyResolution(t *testing.T) {
	engine := NewEngine(testLogger(), nil, nil)

	sources := []models.SourceRecord{
		stamped("src-1", models.Record{
			"address": map[string]any{"city": "Berlin", "zip": "10115"},
		}),
		stamped("src-2", models.Record{
			"address": map[string]any{"city": "Munich", "zip": "80331"},
		}),
	}

	t.Run("parent path config covers nested fields", func(t *testing.T) {
		result, err := engine.Merge(context.Background(), models.MergeRequest{
			SourceRecords: sources,
			Config: &models.MergeConfig{
				FieldStrategies: []models.FieldStrategyConfig{
					{Field: "address", Strategy: models.StrategyPreferLast},
				},
			},
		})
		require.NoError(t, err)

		address := result.GoldenRecord["address"].(map[string]any)
		assert.Equal(t, "Munich", address["city"])
		assert.Equal(t, "80331", address["zip"])
		assert.Equal(t, models.StrategyPreferLast, result.Provenance.FieldSources["address.city"].Strategy)
	})

	t.Run("exact field config beats the parent path", func(t *testing.T) {
		result, err := engine.Merge(context.Background(), models.MergeRequest{
			SourceRecords: sources,
			Config: &models.MergeConfig{
				FieldStrategies: []models.FieldStrategyConfig{
					{Field: "address", Strategy: models.StrategyPreferLast},
					{Field: "address.city", Strategy: models.StrategyPreferFirst},
				},
			},
		})
		require.NoError(t, err)

		address := result.GoldenRecord["address"].(map[string]any)
		assert.Equal(t, "Berlin", address["city"])
		assert.Equal(t, "80331", address["zip"])
	})

	t.Run("unknown configured strategy fails the merge", func(t *testing.T) {
		_, err := engine.Merge(context.Background(), models.MergeRequest{
			SourceRecords: sources,
			Config: &models.MergeConfig{
				FieldStrategies: []models.FieldStrategyConfig{
					{Field: "address", Strategy: "bogus"},
				},
			},
		})
		require.Error(t, err)

		var notFound *errors.StrategyNotFoundError
		assert.ErrorAs(t, err, &notFound)
	})

	t.Run("custom strategy without a function fails", func(t *testing.T) {
		_, err := engine.Merge(context.Background(), models.MergeRequest{
			SourceRecords: sources,
			Config: &models.MergeConfig{
				FieldStrategies: []models.FieldStrategyConfig{
					{Field: "address.city", Strategy: models.StrategyCustom},
				},
			},
		})
		require.Error(t, err)

		var missing *errors.CustomStrategyMissingError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "address.city", missing.Field)
	})

	t.Run("custom strategy runs when provided", func(t *testing.T) {
		result, err := engine.Merge(context.Background(), models.MergeRequest{
			SourceRecords: sources,
			Config: &models.MergeConfig{
				FieldStrategies: []models.FieldStrategyConfig{
					{
						Field:    "address.city",
						Strategy: models.StrategyCustom,
						Custom: func(values []models.FieldValue, _ models.StrategyOptions) (any, error) {
							return "resolved-by-hand", nil
						},
					},
				},
			},
		})
		require.NoError(t, err)

		address := result.GoldenRecord["address"].(map[string]any)
		assert.Equal(t, "resolved-by-hand", address["city"])
		// the value matches no source, so attribution falls back
		assert.Equal(t, "src-1", result.Provenance.FieldSources["address.city"].SourceRecordID)
	})
}

func TestEngine_MergeTimestamps(t *testing.T) {
	engine := NewEngine(testLogger(), nil, nil)

	t.Run("preferNewer follows record update times", func(t *testing.T) {
		result, err := engine.Merge(context.Background(), models.MergeRequest{
			SourceRecords: testSources(),
			Config: &models.MergeConfig{
				FieldStrategies: []models.FieldStrategyConfig{
					{Field: "email", Strategy: models.StrategyPreferNewer},
				},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "a.johnson@example.com", result.GoldenRecord["email"])
	})

	t.Run("dateField overrides the record update time", func(t *testing.T) {
		sources := []models.SourceRecord{
			{
				ID: "src-1",
				Record: models.Record{
					"email":      "old-system@example.com",
					"verifiedAt": "2024-06-01T00:00:00Z",
				},
				CreatedAt: time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC),
				UpdatedAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			{
				ID: "src-2",
				Record: models.Record{
					"email":      "new-system@example.com",
					"verifiedAt": "2024-01-01T00:00:00Z",
				},
				CreatedAt: time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC),
				UpdatedAt: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
			},
		}

		result, err := engine.Merge(context.Background(), models.MergeRequest{
			SourceRecords: sources,
			Config: &models.MergeConfig{
				FieldStrategies: []models.FieldStrategyConfig{
					{
						Field:    "email",
						Strategy: models.StrategyPreferNewer,
						Options:  models.StrategyOptions{DateField: "verifiedAt"},
					},
				},
			},
		})
		require.NoError(t, err)

		// src-1 verified later even though src-2 updated later
		assert.Equal(t, "old-system@example.com", result.GoldenRecord["email"])
	})
}

func TestEngine_MergeDerivedValues(t *testing.T) {
	engine := NewEngine(testLogger(), nil, nil)

	sources := []models.SourceRecord{
		stamped("src-1", models.Record{"visits": 2}),
		stamped("src-2", models.Record{"visits": 3}),
	}

	result, err := engine.Merge(context.Background(), models.MergeRequest{
		SourceRecords: sources,
		Config: &models.MergeConfig{
			FieldStrategies: []models.FieldStrategyConfig{
				{Field: "visits", Strategy: models.StrategySum},
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 5.0, result.GoldenRecord["visits"])
	assert.Equal(t, "src-1", result.Provenance.FieldSources["visits"].SourceRecordID)
	assert.Equal(t, 1, result.Stats.SourceContributions["src-1"])
	assert.Equal(t, 0, result.Stats.SourceContributions["src-2"])
}

func TestEngine_MergeWithSchema(t *testing.T) {
	engine := NewEngine(testLogger(), nil, nil)

	schema := &models.RecordSchema{
		Fields: map[string]models.FieldDefinition{
			"name":         {Type: models.FieldTypeString},
			"email":        {Type: models.FieldTypeString},
			"loyalty_tier": {Type: models.FieldTypeString},
		},
	}

	sources := []models.SourceRecord{
		stamped("src-1", models.Record{"name": "Alice"}),
		stamped("src-2", models.Record{"email": "alice@example.com"}),
	}

	t.Run("schema paths widen the field walk", func(t *testing.T) {
		result, err := engine.Merge(context.Background(), models.MergeRequest{
			SourceRecords: sources,
			Config:        &models.MergeConfig{Schema: schema},
		})
		require.NoError(t, err)

		// loyalty_tier comes from the schema walk but no source supplies it
		assert.Equal(t, 3, result.Stats.TotalFields)
		_, present := result.GoldenRecord["loyalty_tier"]
		assert.False(t, present)
		assert.Equal(t, "Alice", result.GoldenRecord["name"])
		assert.Equal(t, "alice@example.com", result.GoldenRecord["email"])
	})

	t.Run("a schema shape collision fails the merge", func(t *testing.T) {
		_, err := engine.Merge(context.Background(), models.MergeRequest{
			SourceRecords: []models.SourceRecord{
				stamped("src-1", models.Record{"name": map[string]any{"first": "Alice"}}),
				stamped("src-2", models.Record{"email": "alice@example.com"}),
			},
			Config: &models.MergeConfig{Schema: schema},
		})
		require.Error(t, err)

		var mismatch *errors.StrategyTypeMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "name", mismatch.Field)
		assert.Contains(t, mismatch.Reason, "the schema")
	})
}

func TestEngine_MergeWithTracker(t *testing.T) {
	store := provenance.NewMemoryStore()
	archive := provenance.NewMemoryArchive()
	tracker := provenance.NewTracker(store, archive, testLogger())
	engine := NewEngine(testLogger(), nil, tracker)

	t.Run("persists provenance and archives sources", func(t *testing.T) {
		result, err := engine.Merge(context.Background(), models.MergeRequest{
			SourceRecords: testSources(),
		})
		require.NoError(t, err)

		saved, err := store.Get(context.Background(), result.GoldenRecordID)
		require.NoError(t, err)
		assert.Equal(t, []string{"src-1", "src-2"}, saved.SourceRecordIDs)

		archived, err := archive.GetAll(context.Background(), result.GoldenRecordID)
		require.NoError(t, err)
		assert.Len(t, archived, 2)
	})

	t.Run("disabled tracking skips persistence", func(t *testing.T) {
		require.NoError(t, store.Clear(context.Background()))
		require.NoError(t, archive.Clear(context.Background()))

		result, err := engine.Merge(context.Background(), models.MergeRequest{
			SourceRecords: testSources(),
			Config:        &models.MergeConfig{TrackProvenance: boolPtr(false)},
		})
		require.NoError(t, err)
		assert.Nil(t, result.Provenance)

		count, err := store.Count(context.Background(), true)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestDeepEqual(t *testing.T) {
	t.Run("numbers compare across widths", func(t *testing.T) {
		assert.True(t, DeepEqual(1, 1.0))
		assert.True(t, DeepEqual(int64(7), 7))
		assert.False(t, DeepEqual(1, 2))
	})

	t.Run("null only equals null", func(t *testing.T) {
		assert.True(t, DeepEqual(nil, nil))
		assert.False(t, DeepEqual(nil, ""))
		assert.False(t, DeepEqual(0, nil))
	})

	t.Run("type mismatches are differences", func(t *testing.T) {
		assert.False(t, DeepEqual("1", 1))
		assert.False(t, DeepEqual(true, "true"))
	})

	t.Run("arrays compare element-wise", func(t *testing.T) {
		assert.True(t, DeepEqual([]any{1, "a"}, []any{1.0, "a"}))
		assert.False(t, DeepEqual([]any{1, 2}, []any{2, 1}))
		assert.False(t, DeepEqual([]any{1}, []any{1, 2}))
	})

	t.Run("mappings compare by key set then value", func(t *testing.T) {
		assert.True(t, DeepEqual(
			map[string]any{"a": 1, "b": map[string]any{"c": "x"}},
			map[string]any{"a": 1, "b": map[string]any{"c": "x"}},
		))
		assert.False(t, DeepEqual(
			map[string]any{"a": 1},
			map[string]any{"a": 1, "b": 2},
		))
		assert.False(t, DeepEqual(
			map[string]any{"a": 1},
			map[string]any{"a": 2},
		))
	})

	t.Run("record values unwrap to plain mappings", func(t *testing.T) {
		assert.True(t, DeepEqual(models.Record{"a": 1}, map[string]any{"a": 1}))
	})

	t.Run("times compare by instant", func(t *testing.T) {
		utc := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		assert.True(t, DeepEqual(utc, utc.In(time.FixedZone("PST", -8*3600))))
	})
}
