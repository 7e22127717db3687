package models

// MatchClassification buckets a raw weighted total against the configured
// thresholds.
type MatchClassification string

const (
	ClassificationNoMatch       MatchClassification = "no_match"
	ClassificationPossibleMatch MatchClassification = "possible_match"
	ClassificationDefiniteMatch MatchClassification = "definite_match"
)

// Comparator strategy names accepted by FieldMatchConfig.Strategy.
const (
	ComparatorExact       = "exact"
	ComparatorLevenshtein = "levenshtein"
	ComparatorJaroWinkler = "jaroWinkler"
	ComparatorSoundex     = "soundex"
	ComparatorMetaphone   = "metaphone"
)

// ComparatorOptions tunes an individual comparator. Nil pointers fall back
// to the documented defaults.
type ComparatorOptions struct {
	// CaseSensitive disables the default lowercase fold before comparison.
	CaseSensitive bool `json:"case_sensitive,omitempty"`
	// NullMatchesNull controls the score when both values are absent.
	// Defaults to true (similarity 1).
	NullMatchesNull *bool `json:"null_matches_null,omitempty"`
	// PrefixScale is the jaroWinkler prefix bonus scale. Defaults to 0.1.
	PrefixScale *float64 `json:"prefix_scale,omitempty"`
	// MaxPrefixLength caps the jaroWinkler common prefix. Defaults to 4.
	MaxPrefixLength *int `json:"max_prefix_length,omitempty"`
	// MaxCodeLength caps phonetic code length for soundex and metaphone.
	// Defaults to 4.
	MaxCodeLength *int `json:"max_code_length,omitempty"`
}

// NullMatches reports whether two absent values should score 1.
func (o ComparatorOptions) NullMatches() bool {
	if o.NullMatchesNull == nil {
		return true
	}
	return *o.NullMatchesNull
}

// FieldMatchConfig describes how a single field contributes to a pair score.
type FieldMatchConfig struct {
	Field    string  `json:"field" validate:"required"`
	Strategy string  `json:"strategy" validate:"required"`
	Weight   float64 `json:"weight" validate:"required,gt=0"`
	// Threshold, when set, zeroes the field's contribution if the
	// similarity falls below it. Must be within [0, 1].
	Threshold *float64          `json:"threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	Options   ComparatorOptions `json:"options,omitempty"`
	// Normalizers are applied in order to string values on both sides
	// before the comparator runs. The score breakdown still reports the
	// raw values.
	Normalizers []string `json:"normalizers,omitempty"`
	// Comparator overrides Strategy with a caller-supplied function.
	Comparator ComparatorFunc `json:"-"`
}

// ComparatorFunc scores two raw field values in [0, 1].
type ComparatorFunc func(left, right any, opts ComparatorOptions) (float64, error)

// MatchThresholds partitions the raw weighted total into classifications.
// Totals below NoMatch classify as no_match, totals strictly above
// DefiniteMatch classify as definite_match, everything between is a
// possible_match routed to review.
type MatchThresholds struct {
	NoMatch       float64 `json:"no_match" validate:"gte=0"`
	DefiniteMatch float64 `json:"definite_match"`
}

// MatchConfig is the full matching ruleset for a record type.
type MatchConfig struct {
	Fields     []FieldMatchConfig `json:"fields" validate:"required,min=1,dive"`
	Thresholds MatchThresholds    `json:"thresholds"`
}

// MaxPossibleTotal returns the weighted total a perfect pair would score.
func (c MatchConfig) MaxPossibleTotal() float64 {
	var sum float64
	for _, f := range c.Fields {
		sum += f.Weight
	}
	return sum
}

// FieldScore is the per-field contribution inside a score breakdown.
type FieldScore struct {
	Field         string  `json:"field"`
	Strategy      string  `json:"strategy"`
	LeftValue     any     `json:"left_value,omitempty"`
	RightValue    any     `json:"right_value,omitempty"`
	Similarity    float64 `json:"similarity"`
	Weight        float64 `json:"weight"`
	WeightedScore float64 `json:"weighted_score"`
	// ThresholdFailed marks a field whose contribution was zeroed.
	ThresholdFailed bool `json:"threshold_failed,omitempty"`
}

// ScoreBreakdown is the full scoring outcome for one record pair.
type ScoreBreakdown struct {
	Fields []FieldScore `json:"fields"`
	// Total is the raw weighted sum; thresholds apply to this value.
	Total float64 `json:"total"`
	// NormalizedTotal is Total divided by the sum of weights, in [0, 1].
	NormalizedTotal float64             `json:"normalized_total"`
	Classification  MatchClassification `json:"classification"`
}

// CandidateMatch pairs a scored candidate with its breakdown when ranking
// one record against many.
type CandidateMatch struct {
	Candidate PairSide       `json:"candidate"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// MatchRequest scores a single pair over the wire.
type MatchRequest struct {
	Pair   RecordPair   `json:"pair" validate:"required"`
	Config *MatchConfig `json:"config,omitempty"`
}

// MatchResponse is the scored pair returned for a MatchRequest.
type MatchResponse struct {
	Pair      RecordPair     `json:"pair"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// FindMatchesRequest ranks one record against a candidate set.
type FindMatchesRequest struct {
	Record     PairSide     `json:"record" validate:"required"`
	Candidates []PairSide   `json:"candidates" validate:"required"`
	Config     *MatchConfig `json:"config,omitempty"`
	// MinClassification drops candidates classified below it. Defaults to
	// possible_match.
	MinClassification MatchClassification `json:"min_classification,omitempty"`
	Limit             int                 `json:"limit,omitempty"`
}

// FindMatchesResponse is the ranked candidate list for a find request.
type FindMatchesResponse struct {
	Record     PairSide         `json:"record"`
	Matches    []CandidateMatch `json:"matches"`
	TotalCount int              `json:"total_count"`
}
