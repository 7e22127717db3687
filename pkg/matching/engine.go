package matching

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/fieldpath"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/normalizers"
	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing"
)

// Engine scores record pairs against a fixed match config. Construction
// validates the config; a constructed engine never fails on strategy
// resolution.
type Engine struct {
	config      models.MatchConfig
	comparators map[string]models.ComparatorFunc
	logger      ectologger.Logger
}

// EngineOption customizes engine construction.
type EngineOption func(*Engine)

// WithComparator registers a named comparator before the config is
// validated, so field configs may reference it by strategy name.
func WithComparator(name string, fn models.ComparatorFunc) EngineOption {
	return func(e *Engine) {
		if name != "" && fn != nil {
			e.comparators[name] = fn
		}
	}
}

func NewEngine(config models.MatchConfig, logger ectologger.Logger, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		config:      config,
		comparators: Builtins(),
		logger:      logger,
	}

	for _, opt := range opts {
		opt(e)
	}

	if err := e.validateConfig(); err != nil {
		return nil, err
	}

	return e, nil
}

func (e *Engine) validateConfig() error {
	if len(e.config.Fields) == 0 {
		return fmt.Errorf("match config requires at least one field")
	}

	for _, field := range e.config.Fields {
		if field.Field == "" {
			return fmt.Errorf("match config field path must not be empty")
		}
		if field.Weight <= 0 {
			return fmt.Errorf("match config field '%s' requires a positive weight, got %v", field.Field, field.Weight)
		}
		if field.Threshold != nil && (*field.Threshold < 0 || *field.Threshold > 1) {
			return fmt.Errorf("match config field '%s' threshold must be within [0, 1], got %v", field.Field, *field.Threshold)
		}
		for _, name := range field.Normalizers {
			if _, ok := normalizers.Lookup(name); !ok {
				return fmt.Errorf("match config field '%s' references unknown normalizer '%s'", field.Field, name)
			}
		}
		if _, err := e.resolveComparator(field); err != nil {
			return err
		}
	}

	thresholds := e.config.Thresholds
	if thresholds.NoMatch < 0 {
		return fmt.Errorf("no-match threshold must not be negative, got %v", thresholds.NoMatch)
	}
	if thresholds.DefiniteMatch <= thresholds.NoMatch {
		return fmt.Errorf("definite-match threshold (%v) must exceed no-match threshold (%v)", thresholds.DefiniteMatch, thresholds.NoMatch)
	}
	if maxTotal := e.config.MaxPossibleTotal(); thresholds.DefiniteMatch > maxTotal {
		return fmt.Errorf("definite-match threshold (%v) exceeds the maximum possible total (%v)", thresholds.DefiniteMatch, maxTotal)
	}

	return nil
}

func (e *Engine) resolveComparator(field models.FieldMatchConfig) (models.ComparatorFunc, error) {
	if field.Comparator != nil {
		return field.Comparator, nil
	}

	if fn, ok := e.comparators[field.Strategy]; ok {
		return fn, nil
	}

	names := make([]string, 0, len(e.comparators))
	for name := range e.comparators {
		names = append(names, name)
	}
	sort.Strings(names)

	return nil, &errors.StrategyNotFoundError{Strategy: field.Strategy, Available: names}
}

// Config returns the engine's match config.
func (e *Engine) Config() models.MatchConfig {
	return e.config
}

// Compare scores one record pair field by field.
func (e *Engine) Compare(ctx context.Context, pair models.RecordPair) (models.ScoreBreakdown, error) {
	ctx, span := tracing.StartSpan(ctx, "MatchEngine.Compare")
	defer span.End()

	breakdown := models.ScoreBreakdown{
		Fields: make([]models.FieldScore, 0, len(e.config.Fields)),
	}

	var totalWeight float64
	for _, field := range e.config.Fields {
		comparator, err := e.resolveComparator(field)
		if err != nil {
			return models.ScoreBreakdown{}, err
		}

		leftValue, leftOK := fieldpath.Get(pair.Left.Record, field.Field)
		rightValue, rightOK := fieldpath.Get(pair.Right.Record, field.Field)
		if !leftOK {
			leftValue = nil
		}
		if !rightOK {
			rightValue = nil
		}

		similarity, err := comparator(normalized(leftValue, field.Normalizers), normalized(rightValue, field.Normalizers), field.Options)
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"field":    field.Field,
				"strategy": field.Strategy,
			}).Error("comparator failed")
			return models.ScoreBreakdown{}, fmt.Errorf("comparator '%s' failed on field '%s': %w", field.Strategy, field.Field, err)
		}

		// comparator results are clamped to [0, 1]
		if similarity < 0 {
			similarity = 0
		} else if similarity > 1 {
			similarity = 1
		}

		score := models.FieldScore{
			Field:      field.Field,
			Strategy:   field.Strategy,
			LeftValue:  leftValue,
			RightValue: rightValue,
			Similarity: similarity,
			Weight:     field.Weight,
		}

		weighted := similarity * field.Weight
		if field.Threshold != nil && similarity < *field.Threshold {
			// below-threshold fields contribute nothing
			weighted = 0
			score.ThresholdFailed = true
		}
		score.WeightedScore = weighted

		breakdown.Fields = append(breakdown.Fields, score)
		breakdown.Total += weighted
		totalWeight += field.Weight
	}

	if totalWeight > 0 {
		breakdown.NormalizedTotal = breakdown.Total / totalWeight
	}
	breakdown.Classification = e.Classify(breakdown.Total)

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"left_id":        pair.Left.ID,
		"right_id":       pair.Right.ID,
		"total":          breakdown.Total,
		"classification": breakdown.Classification,
	}).Debug("scored record pair")

	return breakdown, nil
}

// normalized applies the field's normalizer chain to string values. Other
// types pass through untouched.
func normalized(value any, names []string) any {
	if len(names) == 0 {
		return value
	}
	s, ok := value.(string)
	if !ok {
		return value
	}
	return normalizers.Apply(s, names...)
}

// Classify buckets a raw weighted total against the configured thresholds.
func (e *Engine) Classify(total float64) models.MatchClassification {
	switch {
	case total < e.config.Thresholds.NoMatch:
		return models.ClassificationNoMatch
	case total > e.config.Thresholds.DefiniteMatch:
		return models.ClassificationDefiniteMatch
	default:
		return models.ClassificationPossibleMatch
	}
}

func classificationRank(c models.MatchClassification) int {
	switch c {
	case models.ClassificationDefiniteMatch:
		return 2
	case models.ClassificationPossibleMatch:
		return 1
	default:
		return 0
	}
}

// FindMatches scores one record against a candidate set and returns the
// candidates at or above the requested classification, ranked best first.
func (e *Engine) FindMatches(ctx context.Context, req models.FindMatchesRequest) (*models.FindMatchesResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "MatchEngine.FindMatches")
	defer span.End()

	minClassification := req.MinClassification
	if minClassification == "" {
		minClassification = models.ClassificationPossibleMatch
	}
	minRank := classificationRank(minClassification)

	matches := make([]models.CandidateMatch, 0, len(req.Candidates))
	for _, candidate := range req.Candidates {
		pair := models.RecordPair{Left: req.Record, Right: candidate}
		breakdown, err := e.Compare(ctx, pair)
		if err != nil {
			return nil, err
		}

		if classificationRank(breakdown.Classification) < minRank {
			continue
		}

		matches = append(matches, models.CandidateMatch{
			Candidate: candidate,
			Breakdown: breakdown,
		})
	}

	// rank by total descending; equal totals order by candidate id so
	// repeated runs return identical lists
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Breakdown.Total != matches[j].Breakdown.Total {
			return matches[i].Breakdown.Total > matches[j].Breakdown.Total
		}
		return matches[i].Candidate.ID < matches[j].Candidate.ID
	})

	totalCount := len(matches)
	if req.Limit > 0 && len(matches) > req.Limit {
		matches = matches[:req.Limit]
	}

	return &models.FindMatchesResponse{
		Record:     req.Record,
		Matches:    matches,
		TotalCount: totalCount,
	}, nil
}

// CompareBatch scores pairs concurrently, preserving input order in the
// result. A non-positive worker count defaults to 4.
func (e *Engine) CompareBatch(ctx context.Context, pairs []models.RecordPair, workers int) ([]models.ScoreBreakdown, error) {
	if len(pairs) == 0 {
		return []models.ScoreBreakdown{}, nil
	}

	if workers <= 0 {
		workers = 4
	}
	if workers > len(pairs) {
		workers = len(pairs)
	}

	results := make([]models.ScoreBreakdown, len(pairs))
	errs := make([]error, len(pairs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i], errs[i] = e.Compare(ctx, pairs[i])
			}
		}()
	}

feed:
	for i := range pairs {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}
