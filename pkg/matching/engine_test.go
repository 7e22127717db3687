package matching

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/normalizers"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func personConfig() models.MatchConfig {
	return models.MatchConfig{
		Fields: []models.FieldMatchConfig{
			{Field: "name", Strategy: models.ComparatorJaroWinkler, Weight: 2.0},
			{Field: "email", Strategy: models.ComparatorExact, Weight: 1.5},
			{Field: "phone", Strategy: models.ComparatorExact, Weight: 1.0},
		},
		Thresholds: models.MatchThresholds{NoMatch: 2.0, DefiniteMatch: 3.5},
	}
}

func TestNewEngine(t *testing.T) {
	t.Run("accepts a valid config", func(t *testing.T) {
		engine, err := NewEngine(personConfig(), testLogger())
		require.NoError(t, err)
		assert.NotNil(t, engine)
	})

	t.Run("rejects an empty field list", func(t *testing.T) {
		_, err := NewEngine(models.MatchConfig{}, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one field")
	})

	t.Run("rejects a non-positive weight", func(t *testing.T) {
		config := personConfig()
		config.Fields[0].Weight = 0

		_, err := NewEngine(config, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "positive weight")
	})

	t.Run("rejects a field threshold outside the unit interval", func(t *testing.T) {
		config := personConfig()
		config.Fields[1].Threshold = floatPtr(1.5)

		_, err := NewEngine(config, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "threshold")
	})

	t.Run("rejects an unknown normalizer name", func(t *testing.T) {
		config := personConfig()
		config.Fields[0].Normalizers = []string{normalizers.Lowercase, "no_such_normalizer"}

		_, err := NewEngine(config, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown normalizer")
	})

	t.Run("unknown strategy lists the available comparators", func(t *testing.T) {
		config := personConfig()
		config.Fields[0].Strategy = "cosine"

		_, err := NewEngine(config, testLogger())
		require.Error(t, err)

		var notFound *errors.StrategyNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "cosine", notFound.Strategy)
		assert.Contains(t, notFound.Available, models.ComparatorExact)
		assert.Contains(t, notFound.Available, models.ComparatorJaroWinkler)
	})

	t.Run("rejects a definite threshold at or below the no-match threshold", func(t *testing.T) {
		config := personConfig()
		config.Thresholds = models.MatchThresholds{NoMatch: 3.0, DefiniteMatch: 3.0}

		_, err := NewEngine(config, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must exceed")
	})

	t.Run("rejects a definite threshold above the maximum possible total", func(t *testing.T) {
		config := personConfig()
		config.Thresholds.DefiniteMatch = 5.0

		_, err := NewEngine(config, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "maximum possible total")
	})

	t.Run("field comparator override satisfies strategy resolution", func(t *testing.T) {
		config := models.MatchConfig{
			Fields: []models.FieldMatchConfig{
				{
					Field:    "age",
					Strategy: "ageProximity",
					Weight:   1.0,
					Comparator: func(left, right any, _ models.ComparatorOptions) (float64, error) {
						return 1.0, nil
					},
				},
			},
			Thresholds: models.MatchThresholds{NoMatch: 0.3, DefiniteMatch: 0.9},
		}

		_, err := NewEngine(config, testLogger())
		assert.NoError(t, err)
	})
}

func TestEngine_Compare(t *testing.T) {
	engine, err := NewEngine(personConfig(), testLogger())
	require.NoError(t, err)

	alice := models.Record{
		"name":  "Alice Johnson",
		"email": "alice@example.com",
		"phone": "555-0100",
	}

	t.Run("identical records score the maximum total", func(t *testing.T) {
		pair := models.RecordPair{
			Left:  models.PairSide{ID: "rec-1", Record: alice},
			Right: models.PairSide{ID: "rec-2", Record: alice.Clone()},
		}

		breakdown, err := engine.Compare(context.Background(), pair)
		require.NoError(t, err)

		assert.InDelta(t, 4.5, breakdown.Total, 0.0001)
		assert.InDelta(t, 1.0, breakdown.NormalizedTotal, 0.0001)
		assert.Equal(t, models.ClassificationDefiniteMatch, breakdown.Classification)
		assert.Len(t, breakdown.Fields, 3)
	})

	t.Run("total is the sum of the weighted field scores", func(t *testing.T) {
		pair := models.RecordPair{
			Left: models.PairSide{ID: "rec-1", Record: alice},
			Right: models.PairSide{ID: "rec-2", Record: models.Record{
				"name":  "Alice Jonson",
				"email": "alice@example.com",
				"phone": "555-0199",
			}},
		}

		breakdown, err := engine.Compare(context.Background(), pair)
		require.NoError(t, err)

		var sum float64
		for _, field := range breakdown.Fields {
			sum += field.WeightedScore
		}
		assert.InDelta(t, sum, breakdown.Total, 0.0001)
		assert.InDelta(t, sum/4.5, breakdown.NormalizedTotal, 0.0001)
	})

	t.Run("fields absent on both sides count as a match", func(t *testing.T) {
		pair := models.RecordPair{
			Left:  models.PairSide{ID: "rec-1", Record: models.Record{"name": "Alice Johnson", "email": "alice@example.com"}},
			Right: models.PairSide{ID: "rec-2", Record: models.Record{"name": "Alice Johnson", "email": "alice@example.com"}},
		}

		breakdown, err := engine.Compare(context.Background(), pair)
		require.NoError(t, err)

		// phone is missing on both sides, exact treats that as equal nulls
		assert.InDelta(t, 4.5, breakdown.Total, 0.0001)
	})

	t.Run("a field absent on one side scores zero", func(t *testing.T) {
		pair := models.RecordPair{
			Left:  models.PairSide{ID: "rec-1", Record: alice},
			Right: models.PairSide{ID: "rec-2", Record: models.Record{"name": "Alice Johnson", "email": "alice@example.com"}},
		}

		breakdown, err := engine.Compare(context.Background(), pair)
		require.NoError(t, err)

		require.Len(t, breakdown.Fields, 3)
		assert.Equal(t, 0.0, breakdown.Fields[2].WeightedScore)
		assert.InDelta(t, 3.5, breakdown.Total, 0.0001)
	})

	t.Run("normalizers canonicalize values before comparison", func(t *testing.T) {
		config := models.MatchConfig{
			Fields: []models.FieldMatchConfig{
				{Field: "phone", Strategy: models.ComparatorExact, Weight: 1.0, Normalizers: []string{normalizers.Phone}},
			},
			Thresholds: models.MatchThresholds{NoMatch: 0.3, DefiniteMatch: 0.9},
		}
		normalizing, err := NewEngine(config, testLogger())
		require.NoError(t, err)

		pair := models.RecordPair{
			Left:  models.PairSide{ID: "rec-1", Record: models.Record{"phone": "+1 (555) 010-4477"}},
			Right: models.PairSide{ID: "rec-2", Record: models.Record{"phone": "1-555-010-4477"}},
		}

		breakdown, err := normalizing.Compare(context.Background(), pair)
		require.NoError(t, err)

		require.Len(t, breakdown.Fields, 1)
		assert.Equal(t, 1.0, breakdown.Fields[0].Similarity)
		// the breakdown reports the raw values as evidence
		assert.Equal(t, "+1 (555) 010-4477", breakdown.Fields[0].LeftValue)
	})

	t.Run("below-threshold fields contribute nothing", func(t *testing.T) {
		config := models.MatchConfig{
			Fields: []models.FieldMatchConfig{
				{Field: "name", Strategy: models.ComparatorJaroWinkler, Weight: 2.0, Threshold: floatPtr(0.9)},
				{Field: "email", Strategy: models.ComparatorExact, Weight: 1.5},
			},
			Thresholds: models.MatchThresholds{NoMatch: 1.0, DefiniteMatch: 3.0},
		}
		gated, err := NewEngine(config, testLogger())
		require.NoError(t, err)

		pair := models.RecordPair{
			Left:  models.PairSide{ID: "rec-1", Record: models.Record{"name": "dwayne", "email": "alice@example.com"}},
			Right: models.PairSide{ID: "rec-2", Record: models.Record{"name": "duane", "email": "alice@example.com"}},
		}

		breakdown, err := gated.Compare(context.Background(), pair)
		require.NoError(t, err)

		require.Len(t, breakdown.Fields, 2)
		assert.True(t, breakdown.Fields[0].ThresholdFailed)
		assert.Equal(t, 0.0, breakdown.Fields[0].WeightedScore)
		assert.Greater(t, breakdown.Fields[0].Similarity, 0.0)
		assert.InDelta(t, 1.5, breakdown.Total, 0.0001)
	})
}

func TestEngine_Classify(t *testing.T) {
	config := models.MatchConfig{
		Fields: []models.FieldMatchConfig{
			{Field: "a", Strategy: models.ComparatorExact, Weight: 2.0},
			{Field: "b", Strategy: models.ComparatorExact, Weight: 1.5},
		},
		Thresholds: models.MatchThresholds{NoMatch: 1.5, DefiniteMatch: 3.5},
	}
	engine, err := NewEngine(config, testLogger())
	require.NoError(t, err)

	t.Run("below no-match threshold", func(t *testing.T) {
		assert.Equal(t, models.ClassificationNoMatch, engine.Classify(1.49))
	})

	t.Run("thresholds themselves classify as possible", func(t *testing.T) {
		assert.Equal(t, models.ClassificationPossibleMatch, engine.Classify(1.5))
		assert.Equal(t, models.ClassificationPossibleMatch, engine.Classify(3.5))
	})

	t.Run("strictly above definite threshold", func(t *testing.T) {
		assert.Equal(t, models.ClassificationDefiniteMatch, engine.Classify(3.51))
	})

	t.Run("a perfect pair landing on the definite threshold stays possible", func(t *testing.T) {
		pair := models.RecordPair{
			Left:  models.PairSide{ID: "rec-1", Record: models.Record{"a": "x", "b": "y"}},
			Right: models.PairSide{ID: "rec-2", Record: models.Record{"a": "x", "b": "y"}},
		}

		breakdown, err := engine.Compare(context.Background(), pair)
		require.NoError(t, err)
		assert.InDelta(t, 3.5, breakdown.Total, 0.0001)
		assert.Equal(t, models.ClassificationPossibleMatch, breakdown.Classification)
	})
}

func TestEngine_FindMatches(t *testing.T) {
	config := models.MatchConfig{
		Fields: []models.FieldMatchConfig{
			{Field: "name", Strategy: models.ComparatorExact, Weight: 2.0},
			{Field: "city", Strategy: models.ComparatorExact, Weight: 1.0},
		},
		Thresholds: models.MatchThresholds{NoMatch: 0.9, DefiniteMatch: 2.5},
	}
	engine, err := NewEngine(config, testLogger())
	require.NoError(t, err)

	record := models.PairSide{ID: "rec-0", Record: models.Record{"name": "alice", "city": "berlin"}}
	candidates := []models.PairSide{
		{ID: "c-1", Record: models.Record{"name": "alice", "city": "paris"}},
		{ID: "c-2", Record: models.Record{"name": "alice", "city": "rome"}},
		{ID: "c-3", Record: models.Record{"name": "alice", "city": "berlin"}},
		{ID: "c-4", Record: models.Record{"name": "bob", "city": "berlin"}},
		{ID: "c-5", Record: models.Record{"name": "bob", "city": "rome"}},
	}

	t.Run("ranks by total with id as tie break", func(t *testing.T) {
		resp, err := engine.FindMatches(context.Background(), models.FindMatchesRequest{
			Record:     record,
			Candidates: candidates,
		})
		require.NoError(t, err)

		// c-5 scores zero and is filtered by the default possible minimum
		require.Len(t, resp.Matches, 4)
		assert.Equal(t, "c-3", resp.Matches[0].Candidate.ID)
		assert.Equal(t, "c-1", resp.Matches[1].Candidate.ID)
		assert.Equal(t, "c-2", resp.Matches[2].Candidate.ID)
		assert.Equal(t, "c-4", resp.Matches[3].Candidate.ID)
		assert.Equal(t, 4, resp.TotalCount)
	})

	t.Run("minimum classification filters the list", func(t *testing.T) {
		resp, err := engine.FindMatches(context.Background(), models.FindMatchesRequest{
			Record:            record,
			Candidates:        candidates,
			MinClassification: models.ClassificationDefiniteMatch,
		})
		require.NoError(t, err)

		require.Len(t, resp.Matches, 1)
		assert.Equal(t, "c-3", resp.Matches[0].Candidate.ID)
		assert.Equal(t, models.ClassificationDefiniteMatch, resp.Matches[0].Breakdown.Classification)
	})

	t.Run("limit truncates after ranking but keeps the full count", func(t *testing.T) {
		resp, err := engine.FindMatches(context.Background(), models.FindMatchesRequest{
			Record:     record,
			Candidates: candidates,
			Limit:      2,
		})
		require.NoError(t, err)

		require.Len(t, resp.Matches, 2)
		assert.Equal(t, "c-3", resp.Matches[0].Candidate.ID)
		assert.Equal(t, "c-1", resp.Matches[1].Candidate.ID)
		assert.Equal(t, 4, resp.TotalCount)
	})

	t.Run("no candidates yields an empty response", func(t *testing.T) {
		resp, err := engine.FindMatches(context.Background(), models.FindMatchesRequest{
			Record:     record,
			Candidates: []models.PairSide{},
		})
		require.NoError(t, err)

		assert.Empty(t, resp.Matches)
		assert.Equal(t, 0, resp.TotalCount)
	})
}

func TestEngine_CompareBatch(t *testing.T) {
	config := models.MatchConfig{
		Fields: []models.FieldMatchConfig{
			{Field: "name", Strategy: models.ComparatorExact, Weight: 1.0},
		},
		Thresholds: models.MatchThresholds{NoMatch: 0.3, DefiniteMatch: 0.9},
	}
	engine, err := NewEngine(config, testLogger())
	require.NoError(t, err)

	t.Run("preserves input order across workers", func(t *testing.T) {
		pairs := make([]models.RecordPair, 6)
		for i := range pairs {
			left := models.Record{"name": "alice"}
			right := models.Record{"name": "alice"}
			if i%2 == 1 {
				right = models.Record{"name": "bob"}
			}
			pairs[i] = models.RecordPair{
				Left:  models.PairSide{ID: "l", Record: left},
				Right: models.PairSide{ID: "r", Record: right},
			}
		}

		results, err := engine.CompareBatch(context.Background(), pairs, 3)
		require.NoError(t, err)
		require.Len(t, results, 6)

		for i, result := range results {
			if i%2 == 0 {
				assert.Equal(t, 1.0, result.Total, "pair %d", i)
			} else {
				assert.Equal(t, 0.0, result.Total, "pair %d", i)
			}
		}
	})

	t.Run("empty input returns an empty slice", func(t *testing.T) {
		results, err := engine.CompareBatch(context.Background(), nil, 2)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("cancelled context aborts the batch", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		pairs := []models.RecordPair{
			{Left: models.PairSide{Record: models.Record{"name": "alice"}}, Right: models.PairSide{Record: models.Record{"name": "alice"}}},
		}

		_, err := engine.CompareBatch(ctx, pairs, 2)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestEngine_WithComparator(t *testing.T) {
	ageProximity := func(left, right any, _ models.ComparatorOptions) (float64, error) {
		lf, lok := toFloat(left)
		rf, rok := toFloat(right)
		if !lok || !rok {
			return 0.0, nil
		}
		return NumericProximity(lf, rf, 10), nil
	}

	config := models.MatchConfig{
		Fields: []models.FieldMatchConfig{
			{Field: "name", Strategy: models.ComparatorExact, Weight: 1.0},
			{Field: "age", Strategy: "ageProximity", Weight: 1.0},
		},
		Thresholds: models.MatchThresholds{NoMatch: 0.5, DefiniteMatch: 1.5},
	}

	engine, err := NewEngine(config, testLogger(), WithComparator("ageProximity", ageProximity))
	require.NoError(t, err)

	pair := models.RecordPair{
		Left:  models.PairSide{ID: "rec-1", Record: models.Record{"name": "alice", "age": 30}},
		Right: models.PairSide{ID: "rec-2", Record: models.Record{"name": "alice", "age": 35}},
	}

	breakdown, err := engine.Compare(context.Background(), pair)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, breakdown.Total, 0.0001)
	assert.Equal(t, models.ClassificationPossibleMatch, breakdown.Classification)
}
