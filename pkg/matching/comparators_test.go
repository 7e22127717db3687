package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

func boolPtr(b bool) *bool        { return &b }
func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

func TestExact(t *testing.T) {
	t.Run("equal strings fold case by default", func(t *testing.T) {
		score, err := Exact("Alice", "alice", models.ComparatorOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1.0, score)
	})

	t.Run("case sensitive option", func(t *testing.T) {
		score, err := Exact("Alice", "alice", models.ComparatorOptions{CaseSensitive: true})
		require.NoError(t, err)
		assert.Equal(t, 0.0, score)
	})

	t.Run("numbers compare by value across widths", func(t *testing.T) {
		score, err := Exact(1, 1.0, models.ComparatorOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1.0, score)
	})

	t.Run("type mismatch scores zero", func(t *testing.T) {
		score, err := Exact("1", 1.0, models.ComparatorOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0.0, score)
	})

	t.Run("both null is a vacuous match", func(t *testing.T) {
		score, err := Exact(nil, nil, models.ComparatorOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1.0, score)
	})

	t.Run("both null scores zero when nullMatchesNull is off", func(t *testing.T) {
		score, err := Exact(nil, nil, models.ComparatorOptions{NullMatchesNull: boolPtr(false)})
		require.NoError(t, err)
		assert.Equal(t, 0.0, score)
	})

	t.Run("one null scores zero", func(t *testing.T) {
		score, err := Exact("alice", nil, models.ComparatorOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0.0, score)
	})

	t.Run("dates compare by value", func(t *testing.T) {
		utc := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		other := utc.In(time.FixedZone("PST", -8*3600))
		score, err := Exact(utc, other, models.ComparatorOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1.0, score)
	})

	t.Run("booleans", func(t *testing.T) {
		score, err := Exact(true, true, models.ComparatorOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1.0, score)

		score, err = Exact(true, false, models.ComparatorOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0.0, score)
	})
}

func TestLevenshtein(t *testing.T) {
	t.Run("identical strings", func(t *testing.T) {
		score, err := Levenshtein("smith", "smith", models.ComparatorOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1.0, score)
	})

	t.Run("kitten to sitting", func(t *testing.T) {
		// 3 edits over max length 7
		score, err := Levenshtein("kitten", "sitting", models.ComparatorOptions{})
		require.NoError(t, err)
		assert.InDelta(t, 1.0-3.0/7.0, score, 0.0001)
	})

	t.Run("whitespace collapses before comparison", func(t *testing.T) {
		score, err := Levenshtein("john   smith", "john smith", models.ComparatorOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1.0, score)
	})

	t.Run("case folds by default", func(t *testing.T) {
		score, err := Levenshtein("SMITH", "smith", models.ComparatorOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1.0, score)
	})

	t.Run("both empty strings match", func(t *testing.T) {
		score, err := Levenshtein("", "", models.ComparatorOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1.0, score)
	})

	t.Run("one null scores zero", func(t *testing.T) {
		score, err := Levenshtein(nil, "smith", models.ComparatorOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0.0, score)
	})

	t.Run("numbers stringify", func(t *testing.T) {
		score, err := Levenshtein(12345, 12346, models.ComparatorOptions{})
		require.NoError(t, err)
		assert.InDelta(t, 0.8, score, 0.0001)
	})
}

func TestJaroWinkler(t *testing.T) {
	t.Run("identical strings", func(t *testing.T) {
		score, err := JaroWinkler("martha", "martha", models.ComparatorOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1.0, score)
	})

	t.Run("martha and marhta", func(t *testing.T) {
		score, err := JaroWinkler("martha", "marhta", models.ComparatorOptions{})
		require.NoError(t, err)
		assert.InDelta(t, 0.9611, score, 0.001)
	})

	t.Run("prefix bonus disabled via maxPrefixLength", func(t *testing.T) {
		score, err := JaroWinkler("martha", "marhta", models.ComparatorOptions{MaxPrefixLength: intPtr(0)})
		require.NoError(t, err)
		assert.InDelta(t, 0.9444, score, 0.001)
	})

	t.Run("custom prefix scale", func(t *testing.T) {
		base, err := JaroWinkler("martha", "marhta", models.ComparatorOptions{MaxPrefixLength: intPtr(0)})
		require.NoError(t, err)

		boosted, err := JaroWinkler("martha", "marhta", models.ComparatorOptions{PrefixScale: floatPtr(0.2)})
		require.NoError(t, err)
		assert.Greater(t, boosted, base)
	})

	t.Run("dissimilar strings score low", func(t *testing.T) {
		score, err := JaroWinkler("alice", "zebra", models.ComparatorOptions{})
		require.NoError(t, err)
		assert.Less(t, score, 0.6)
	})

	t.Run("both null is a vacuous match", func(t *testing.T) {
		score, err := JaroWinkler(nil, nil, models.ComparatorOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1.0, score)
	})
}

func TestSoundex(t *testing.T) {
	t.Run("encodes classic examples", func(t *testing.T) {
		assert.Equal(t, "R163", EncodeSoundex("Robert", 4))
		assert.Equal(t, "R163", EncodeSoundex("Rupert", 4))
		assert.Equal(t, "S530", EncodeSoundex("Smith", 4))
	})

	t.Run("matching codes score one", func(t *testing.T) {
		score, err := Soundex("Robert", "Rupert", models.ComparatorOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1.0, score)
	})

	t.Run("different codes score zero", func(t *testing.T) {
		score, err := Soundex("Robert", "Smith", models.ComparatorOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0.0, score)
	})

	t.Run("max code length option", func(t *testing.T) {
		long := EncodeSoundex("Washington", 6)
		assert.Len(t, long, 6)
	})
}

func TestMetaphone(t *testing.T) {
	t.Run("smith and smyth share a code", func(t *testing.T) {
		assert.Equal(t, EncodeMetaphone("Smith", 4), EncodeMetaphone("Smyth", 4))

		score, err := Metaphone("Smith", "Smyth", models.ComparatorOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1.0, score)
	})

	t.Run("different names score zero", func(t *testing.T) {
		score, err := Metaphone("Smith", "Jones", models.ComparatorOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0.0, score)
	})

	t.Run("ph encodes as f", func(t *testing.T) {
		assert.Equal(t, EncodeMetaphone("Philip", 4), EncodeMetaphone("Filip", 4))
	})

	t.Run("ignores non-letters", func(t *testing.T) {
		assert.Equal(t, EncodeMetaphone("O'Brien", 4), EncodeMetaphone("OBrien", 4))
	})
}

func TestDateProximity(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 1.0, DateProximity(base, base, 30))
	assert.InDelta(t, 0.5, DateProximity(base, base.AddDate(0, 0, 15), 30), 0.001)
	assert.Equal(t, 0.0, DateProximity(base, base.AddDate(0, 0, 45), 30))
	assert.Equal(t, 0.0, DateProximity(time.Time{}, base, 30))
}

func TestNumericProximity(t *testing.T) {
	assert.Equal(t, 1.0, NumericProximity(10, 10, 5))
	assert.InDelta(t, 0.6, NumericProximity(10, 12, 5), 0.001)
	assert.Equal(t, 0.0, NumericProximity(10, 20, 5))
}
