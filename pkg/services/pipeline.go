package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	ctxpkg "github.com/8arr3tt/have-we-met-sub007/pkg/context"
	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/fieldpath"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing"
)

// callerTag names the executor in service contexts.
const callerTag = "service-executor"

// ExecutePreMatch runs the pre-match phase: validation and enrichment
// before any records are compared.
func (x *Executor) ExecutePreMatch(ctx context.Context, record models.Record) (*models.PipelineResult, error) {
	ctx, span := tracing.StartSpan(ctx, "ServiceExecutor.ExecutePreMatch")
	defer span.End()

	return x.run(ctx, models.ExecutePreMatch, record, nil)
}

// ExecutePostMatch runs the post-match phase. The match score is exposed to
// services through their context so they can adjust or veto it.
func (x *Executor) ExecutePostMatch(ctx context.Context, record models.Record, matchResult *models.ScoreBreakdown) (*models.PipelineResult, error) {
	ctx, span := tracing.StartSpan(ctx, "ServiceExecutor.ExecutePostMatch")
	defer span.End()

	return x.run(ctx, models.ExecutePostMatch, record, matchResult)
}

func (x *Executor) run(ctx context.Context, phase models.ExecutionPoint, record models.Record, score *models.ScoreBreakdown) (*models.PipelineResult, error) {
	started := x.now()

	correlationID := ctxpkg.GetCorrelationID(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
		ctx = ctxpkg.SetCorrelationID(ctx, correlationID)
	}

	log := x.logger.WithContext(ctx).WithFields(map[string]any{
		"phase":          string(phase),
		"correlation_id": correlationID,
	})

	regs := x.selected(phase)

	result := &models.PipelineResult{
		Proceed:        true,
		Results:        make(map[string]*models.ServiceResult, len(regs)),
		EnrichedRecord: record.Clone(),
	}
	if result.EnrichedRecord == nil {
		result.EnrichedRecord = models.Record{}
	}

	if len(regs) == 0 {
		result.DurationMs = x.now().Sub(started).Milliseconds()
		return result, nil
	}

	log.WithFields(map[string]any{"services": len(regs)}).Debug("Running service pipeline")

	var err error
	if x.config.Parallel {
		err = x.runParallel(ctx, phase, correlationID, score, regs, result)
	} else {
		err = x.runSequential(ctx, phase, correlationID, score, regs, result)
	}
	if err != nil {
		log.WithError(err).Warn("Service pipeline aborted")
		return nil, err
	}

	result.DurationMs = x.now().Sub(started).Milliseconds()

	if !result.Proceed {
		log.WithFields(map[string]any{
			"rejected_by":      result.RejectedBy,
			"rejection_reason": result.RejectionReason,
		}).Warn("Service pipeline rejected record")
	}

	return result, nil
}

// runSequential threads the enriched record through the services in order:
// each service observes every enrichment produced before it. A required
// rejection stops the remaining services from running.
func (x *Executor) runSequential(ctx context.Context, phase models.ExecutionPoint, correlationID string, score *models.ScoreBreakdown, regs []*registration, result *models.PipelineResult) error {
	for _, reg := range regs {
		if err := ctx.Err(); err != nil {
			return aborted(err)
		}

		svcResult := x.callService(ctx, reg, result.EnrichedRecord, phase, correlationID, score)
		x.interpret(reg, svcResult, result)

		if !result.Proceed {
			return nil
		}
	}
	return nil
}

// runParallel fans the batch out against the same input snapshot, then
// merges outcomes in input order so enrichment and flags stay
// deterministic regardless of completion order.
func (x *Executor) runParallel(ctx context.Context, phase models.ExecutionPoint, correlationID string, score *models.ScoreBreakdown, regs []*registration, result *models.PipelineResult) error {
	if err := ctx.Err(); err != nil {
		return aborted(err)
	}

	snapshot := result.EnrichedRecord.Clone()
	results := make([]*models.ServiceResult, len(regs))

	var wg sync.WaitGroup
	for i, reg := range regs {
		wg.Add(1)
		go func(i int, reg *registration) {
			defer wg.Done()
			results[i] = x.callService(ctx, reg, snapshot, phase, correlationID, score)
		}(i, reg)
	}
	wg.Wait()

	for i, reg := range regs {
		x.interpret(reg, results[i], result)
	}
	return nil
}

func aborted(cause error) error {
	return errors.NewServiceError(models.ErrorKindTimeout, "pipeline_aborted",
		"service pipeline aborted by cancellation").AddCause(cause)
}

// interpret folds one service outcome into the pipeline result according
// to the service's kind and failure policies.
func (x *Executor) interpret(reg *registration, svcResult *models.ServiceResult, out *models.PipelineResult) {
	name := reg.plugin.Name()
	out.Results[name] = svcResult

	if svcResult.Skipped {
		return
	}

	if svcResult.ScoreAdjustment != nil {
		out.ScoreAdjustments = append(out.ScoreAdjustments, models.ScoreAdjustmentRecord{
			ServiceName: name,
			Adjustment:  *svcResult.ScoreAdjustment,
			Reason:      stringValue(svcResult.Data, "adjustment_reason"),
		})
	}

	if svcResult.Error != nil || !svcResult.Success {
		detail := fmt.Sprintf("service '%s' failed", name)
		if svcResult.Error != nil {
			detail = svcResult.Error.Message
		}
		x.applyPolicy(reg, reg.config.OnFailure, "failed", detail, out)
		return
	}

	switch reg.plugin.Kind() {
	case models.ServiceKindValidation:
		if svcResult.Valid != nil && !*svcResult.Valid {
			detail := fmt.Sprintf("service '%s' reported the record invalid", name)
			x.applyPolicy(reg, reg.config.OnInvalid, "invalid", detail, out)
		}

	case models.ServiceKindLookup:
		if svcResult.Found != nil && !*svcResult.Found {
			detail := fmt.Sprintf("service '%s' found no result", name)
			x.applyPolicy(reg, reg.config.OnNotFound, "not_found", detail, out)
			return
		}
		x.enrich(reg, svcResult, out)

	case models.ServiceKindCustom:
		if reg.config.ResultPredicate != nil && !reg.config.ResultPredicate(svcResult.Data) {
			detail := fmt.Sprintf("service '%s' result predicate returned false", name)
			x.applyPolicy(reg, reg.config.OnFailure, "failed", detail, out)
			return
		}
		out.Flags = append(out.Flags, dataFlags(svcResult.Data)...)
	}
}

// applyPolicy handles one failure signal. Reject only aborts the pipeline
// when the service is required; on optional services it degrades to a
// flag so the failure stays visible.
func (x *Executor) applyPolicy(reg *registration, policy models.FailurePolicy, marker, detail string, out *models.PipelineResult) {
	name := reg.plugin.Name()

	switch policy {
	case models.PolicyReject:
		if reg.config.Required {
			if out.Proceed {
				out.Proceed = false
				out.RejectedBy = name
				out.RejectionReason = detail
			}
			return
		}
		out.Flags = append(out.Flags, name+":"+marker)

	case models.PolicyFlag:
		out.Flags = append(out.Flags, name+":"+marker)

	case models.PolicyContinue:
	}
}

// enrich copies mapped lookup outputs into the enriched record. Mapping
// keys are target record paths; values are jmespath expressions over the
// service data. Targets apply in sorted order so overlapping writes are
// deterministic.
func (x *Executor) enrich(reg *registration, svcResult *models.ServiceResult, out *models.PipelineResult) {
	if len(reg.config.FieldMapping) == 0 || len(svcResult.Data) == 0 {
		return
	}

	targets := make([]string, 0, len(reg.config.FieldMapping))
	for target := range reg.config.FieldMapping {
		targets = append(targets, target)
	}
	sort.Strings(targets)

	for _, target := range targets {
		expr := reg.config.FieldMapping[target]
		value, err := x.searchExpr(expr, svcResult.Data)
		if err != nil {
			x.logger.WithError(err).WithFields(map[string]any{
				"service":    reg.plugin.Name(),
				"target":     target,
				"expression": expr,
			}).Warn("Failed to evaluate field mapping expression")
			continue
		}
		if value == nil {
			continue
		}
		fieldpath.Set(out.EnrichedRecord, target, value)
	}
}

// dataFlags extracts the conventional "flags" list a custom service may
// return in its data payload.
func dataFlags(data map[string]any) []string {
	if data == nil {
		return nil
	}

	switch raw := data["flags"].(type) {
	case []string:
		return raw
	case []any:
		flags := make([]string, 0, len(raw))
		for _, item := range raw {
			if s, ok := item.(string); ok {
				flags = append(flags, s)
			}
		}
		return flags
	default:
		return nil
	}
}

func stringValue(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}
