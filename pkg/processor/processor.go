// Package processor drives record intake end to end. Each inbound record
// runs through the pre-match service pipeline, is ranked against candidate
// records, and is routed by classification: definite matches merge
// automatically, possible matches land in the review queue, and everything
// else is stored standalone.
package processor

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	ctxpkg "github.com/8arr3tt/have-we-met-sub007/pkg/context"
	"github.com/8arr3tt/have-we-met-sub007/pkg/events"
	"github.com/8arr3tt/have-we-met-sub007/pkg/kafka"
	"github.com/8arr3tt/have-we-met-sub007/pkg/matching"
	"github.com/8arr3tt/have-we-met-sub007/pkg/merging"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/reviewqueue"
	"github.com/8arr3tt/have-we-met-sub007/pkg/services"
	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing"
)

// RecordInventory is the application's record store. It supplies the
// candidates an incoming record is scored against and absorbs the records
// the pipeline produces. Candidate generation (blocking, indexing) lives
// upstream of the toolkit; implementations decide how wide a candidate set
// to return.
type RecordInventory interface {
	// Candidates returns the known records the incoming record should be
	// scored against, timestamps included so a definite match can merge
	// directly.
	Candidates(ctx context.Context, record models.SourceRecord) ([]models.SourceRecord, error)
	// SaveGolden upserts the golden record produced by an automatic merge
	// and retires the absorbed sources as standalone candidates.
	SaveGolden(ctx context.Context, result *models.MergeResult) error
	// SaveStandalone stores a record that matched nothing so later intake
	// can be scored against it.
	SaveStandalone(ctx context.Context, record models.SourceRecord) error
}

// Outcome names the route an intake record took.
type Outcome string

const (
	// OutcomeMerged means a definite match was merged automatically.
	OutcomeMerged Outcome = "merged"
	// OutcomeQueued means possible matches were sent to the review queue.
	OutcomeQueued Outcome = "queued"
	// OutcomeStandalone means nothing matched and the record was stored
	// as its own entity.
	OutcomeStandalone Outcome = "standalone"
	// OutcomeRejected means a required pre-match service rejected the
	// record; it is not matched or stored.
	OutcomeRejected Outcome = "rejected"
)

// IntakeResult reports where a record landed and what was produced on the
// way there.
type IntakeResult struct {
	Outcome Outcome `json:"outcome"`
	// Record is the record as it was matched, enrichments included.
	Record models.SourceRecord `json:"record"`
	Flags  []string            `json:"flags,omitempty"`
	// Matches is the ranked candidate list, empty when nothing scored at
	// or above possible_match.
	Matches         []models.CandidateMatch `json:"matches,omitempty"`
	MergeResult     *models.MergeResult     `json:"merge_result,omitempty"`
	QueueItem       *models.QueueItem       `json:"queue_item,omitempty"`
	RejectedBy      string                  `json:"rejected_by,omitempty"`
	RejectionReason string                  `json:"rejection_reason,omitempty"`
}

// Processor routes inbound records through matching and merging.
type Processor struct {
	logger      ectologger.Logger
	matcher     *matching.Engine
	merger      *merging.Engine
	queue       *reviewqueue.Manager
	inventory   RecordInventory
	executor    *services.Executor
	emitter     *events.Emitter
	mergeConfig *models.MergeConfig
}

// Option configures optional processor collaborators.
type Option func(*Processor)

// WithServiceExecutor runs the pre-match and post-match service pipelines
// around matching.
func WithServiceExecutor(executor *services.Executor) Option {
	return func(p *Processor) {
		p.executor = executor
	}
}

// WithEmitter publishes record.merged events for automatic merges.
func WithEmitter(emitter *events.Emitter) Option {
	return func(p *Processor) {
		p.emitter = emitter
	}
}

// WithMergeConfig overrides the merge configuration used for automatic
// merges.
func WithMergeConfig(config *models.MergeConfig) Option {
	return func(p *Processor) {
		p.mergeConfig = config
	}
}

// NewProcessor creates a record intake processor.
func NewProcessor(
	logger ectologger.Logger,
	matcher *matching.Engine,
	merger *merging.Engine,
	queue *reviewqueue.Manager,
	inventory RecordInventory,
	opts ...Option,
) *Processor {
	p := &Processor{
		logger:    logger,
		matcher:   matcher,
		merger:    merger,
		queue:     queue,
		inventory: inventory,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handler adapts the processor to the Kafka consumer contract. Terminal
// outcomes (including rejections) return nil so the message commits;
// transient failures propagate so the message is redelivered.
func (p *Processor) Handler() kafka.MessageHandler {
	return func(ctx context.Context, msg *kafka.IncomingMessage) error {
		record, err := msg.SourceRecord()
		if err != nil {
			return err
		}
		if cid := msg.GetCorrelationID(); cid != "" {
			ctx = ctxpkg.SetCorrelationID(ctx, cid)
		}

		result, err := p.ProcessRecord(ctx, record, msg.GetSource())
		if err != nil {
			return err
		}

		p.logger.WithContext(ctx).WithFields(map[string]any{
			"record_id": record.ID,
			"source":    msg.GetSource(),
			"outcome":   result.Outcome,
		}).Info("Record processed")
		return nil
	}
}

// ProcessRecord runs one record through enrichment, matching, and routing.
// The source names the producing system; it travels with the record into
// matching and the review queue context. Rejection by a required service
// is a routed outcome, not an error.
func (p *Processor) ProcessRecord(ctx context.Context, record models.SourceRecord, source string) (*IntakeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.ProcessRecord")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"record_id": record.ID,
		"source":    source,
	})

	out := &IntakeResult{
		Outcome: OutcomeStandalone,
		Record:  record.Clone(),
	}

	// records without timestamps are stamped at intake
	now := time.Now()
	if out.Record.CreatedAt.IsZero() {
		out.Record.CreatedAt = now
	}
	if out.Record.UpdatedAt.IsZero() {
		out.Record.UpdatedAt = now
	}

	// Pre-match enrichment
	if p.executor != nil {
		pipeline, err := p.executor.ExecutePreMatch(ctx, out.Record.Record)
		if err != nil {
			log.WithError(err).Error("Failed to run pre-match pipeline")
			return nil, err
		}
		out.Flags = append(out.Flags, pipeline.Flags...)
		if !pipeline.Proceed {
			out.Outcome = OutcomeRejected
			out.RejectedBy = pipeline.RejectedBy
			out.RejectionReason = pipeline.RejectionReason
			log.WithFields(map[string]any{
				"rejected_by": pipeline.RejectedBy,
				"reason":      pipeline.RejectionReason,
			}).Info("Record rejected by pre-match pipeline")
			return out, nil
		}
		out.Record.Record = pipeline.EnrichedRecord
	}

	// Score against the known records
	candidates, err := p.inventory.Candidates(ctx, out.Record)
	if err != nil {
		log.WithError(err).Error("Failed to load candidates")
		return nil, err
	}

	var matches []models.CandidateMatch
	if len(candidates) > 0 {
		sides := make([]models.PairSide, len(candidates))
		for i, candidate := range candidates {
			sides[i] = models.PairSide{ID: candidate.ID, Record: candidate.Record}
		}

		resp, err := p.matcher.FindMatches(ctx, models.FindMatchesRequest{
			Record: models.PairSide{
				ID:     out.Record.ID,
				Source: source,
				Record: out.Record.Record,
			},
			Candidates: sides,
		})
		if err != nil {
			log.WithError(err).Error("Failed to rank candidates")
			return nil, err
		}
		matches = resp.Matches
	}

	if len(matches) == 0 {
		return out, p.storeStandalone(ctx, out, log)
	}
	out.Matches = matches
	best := matches[0]

	// Post-match services see the best score and may adjust it before the
	// routing decision.
	classification := best.Breakdown.Classification
	if p.executor != nil {
		breakdown := best.Breakdown
		pipeline, err := p.executor.ExecutePostMatch(ctx, out.Record.Record, &breakdown)
		if err != nil {
			log.WithError(err).Error("Failed to run post-match pipeline")
			return nil, err
		}
		out.Flags = append(out.Flags, pipeline.Flags...)
		if !pipeline.Proceed {
			out.Outcome = OutcomeRejected
			out.RejectedBy = pipeline.RejectedBy
			out.RejectionReason = pipeline.RejectionReason
			log.WithFields(map[string]any{
				"rejected_by": pipeline.RejectedBy,
				"reason":      pipeline.RejectionReason,
			}).Info("Record rejected by post-match pipeline")
			return out, nil
		}
		if len(pipeline.ScoreAdjustments) > 0 {
			total := best.Breakdown.Total
			for _, adj := range pipeline.ScoreAdjustments {
				total += adj.Adjustment
			}
			classification = p.matcher.Classify(total)
			log.WithFields(map[string]any{
				"raw_total":      best.Breakdown.Total,
				"adjusted_total": total,
				"classification": classification,
			}).Debug("Applied post-match score adjustments")
		}
	}

	switch classification {
	case models.ClassificationDefiniteMatch:
		// matches are drawn from the candidate set, so the lookup holds
		byID := make(map[string]models.SourceRecord, len(candidates))
		for _, candidate := range candidates {
			byID[candidate.ID] = candidate
		}
		return out, p.mergeBest(ctx, out, byID[best.Candidate.ID], log)
	case models.ClassificationPossibleMatch:
		return out, p.enqueue(ctx, out, source, log)
	default:
		return out, p.storeStandalone(ctx, out, log)
	}
}

// mergeBest merges the incoming record with its definite match and stores
// the resulting golden record.
func (p *Processor) mergeBest(ctx context.Context, out *IntakeResult, candidate models.SourceRecord, log ectologger.Logger) error {
	result, err := p.merger.Merge(ctx, models.MergeRequest{
		SourceRecords: []models.SourceRecord{out.Record, candidate},
		MergedBy:      "intake-processor",
		Config:        p.mergeConfig,
	})
	if err != nil {
		log.WithError(err).WithFields(map[string]any{
			"candidate_id": candidate.ID,
		}).Error("Failed to merge definite match")
		return err
	}
	out.Outcome = OutcomeMerged
	out.MergeResult = result

	if err := p.inventory.SaveGolden(ctx, result); err != nil {
		log.WithError(err).WithFields(map[string]any{
			"golden_record_id": result.GoldenRecordID,
		}).Error("Failed to store golden record")
		return err
	}

	if p.emitter != nil {
		strategy := models.StrategyPreferNonNull
		if p.mergeConfig != nil && p.mergeConfig.DefaultStrategy != "" {
			strategy = p.mergeConfig.DefaultStrategy
		}
		p.emitter.EmitRecordMerged(ctx, result, strategy)
	}

	log.WithFields(map[string]any{
		"golden_record_id": result.GoldenRecordID,
		"candidate_id":     candidate.ID,
		"conflicts":        len(result.Conflicts),
	}).Info("Record merged automatically")
	return nil
}

// enqueue sends the record and its ranked matches to the review queue.
func (p *Processor) enqueue(ctx context.Context, out *IntakeResult, source string, log ectologger.Logger) error {
	potential := make([]models.PotentialMatch, 0, len(out.Matches))
	for _, match := range out.Matches {
		breakdown := match.Breakdown
		potential = append(potential, models.PotentialMatch{
			RecordID:  match.Candidate.ID,
			Record:    match.Candidate.Record,
			Score:     match.Breakdown.Total,
			Breakdown: &breakdown,
		})
	}

	reqContext := map[string]any{}
	if source != "" {
		reqContext["source"] = source
	}
	if len(out.Flags) > 0 {
		reqContext["flags"] = out.Flags
	}

	item, err := p.queue.Add(ctx, models.EnqueueRequest{
		CandidateRecord:  out.Record,
		PotentialMatches: potential,
		Context:          reqContext,
	})
	if err != nil {
		log.WithError(err).Error("Failed to enqueue possible match")
		return err
	}
	out.Outcome = OutcomeQueued
	out.QueueItem = item

	log.WithFields(map[string]any{
		"queue_item_id": item.ID,
		"match_count":   len(potential),
	}).Info("Record queued for review")
	return nil
}

// storeStandalone stores a record that matched nothing.
func (p *Processor) storeStandalone(ctx context.Context, out *IntakeResult, log ectologger.Logger) error {
	if err := p.inventory.SaveStandalone(ctx, out.Record); err != nil {
		log.WithError(err).Error("Failed to store standalone record")
		return err
	}
	out.Outcome = OutcomeStandalone
	log.Debug("Record stored standalone")
	return nil
}
