package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/8arr3tt/have-we-met-sub007/pkg/cache"
	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/fieldpath"
	"github.com/8arr3tt/have-we-met-sub007/pkg/metrics"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/resilience"
)

// callService runs one registered service against the current record:
// field projection, cache-aside read, the resilience-wrapped plugin call,
// stale fallback, and the cache write-back. It never returns an error;
// failures are normalized into the result for policy interpretation.
func (x *Executor) callService(ctx context.Context, reg *registration, record models.Record, phase models.ExecutionPoint, correlationID string, score *models.ScoreBreakdown) *models.ServiceResult {
	name := reg.plugin.Name()
	config := reg.config
	started := x.now()

	log := x.logger.WithContext(ctx).WithFields(map[string]any{
		"service":        name,
		"phase":          string(phase),
		"correlation_id": correlationID,
	})

	input := record
	if len(config.Fields) > 0 {
		input = projectFields(record, config.Fields)
	}

	cacheKey, cacheable := x.cacheKey(reg, input, log)

	if cacheable {
		if hit, ok := x.cache.Get(ctx, cacheKey, cache.GetOptions{}); ok {
			if cached, decoded := decodeCachedResult(hit.Value); decoded {
				metrics.RecordCacheHit()
				x.finishResult(cached, name, started, true, hit.IsStale)
				metrics.RecordServiceExecution(name, "cached", x.now().Sub(started).Seconds())
				log.Debug("Serving service result from cache")
				return cached
			}
			x.cache.Delete(ctx, cacheKey)
		}
		metrics.RecordCacheMiss()
	}

	svcCtx := &models.ServiceContext{
		CorrelationID: correlationID,
		Phase:         phase,
		Caller:        callerTag,
		StartedAt:     started,
		MatchScore:    score,
		Params:        config.Params,
	}

	value, err := resilience.WithResilience(ctx, func(ctx context.Context) (*models.ServiceResult, error) {
		return reg.plugin.Execute(ctx, input, svcCtx)
	}, resilience.Config{
		ServiceName: name,
		Timeout:     config.Timeout,
		Retry:       x.instrumentRetry(name, config.Retry),
		Breaker:     x.breakers.Get(name),
	})
	if err == nil && value == nil {
		err = errors.NewServiceErrorf(models.ErrorKindPlugin, "nil_result",
			"service '%s' returned no result", name)
	}

	if err != nil {
		if cacheable && config.Cache.StaleOnError {
			if hit, ok := x.cache.Get(ctx, cacheKey, cache.GetOptions{AllowStale: true}); ok {
				if cached, decoded := decodeCachedResult(hit.Value); decoded {
					metrics.RecordCacheHit()
					x.finishResult(cached, name, started, true, true)
					metrics.RecordServiceExecution(name, "stale", x.now().Sub(started).Seconds())
					log.WithError(err).Warn("Serving stale cache entry after service failure")
					return cached
				}
			}
		}

		svcErr := errors.WrapServiceError(err).AddService(name)
		log.WithError(svcErr).Error("Service call failed")
		metrics.RecordServiceExecution(name, "failure", x.now().Sub(started).Seconds())

		result := &models.ServiceResult{
			ServiceName: name,
			Success:     false,
			Error:       svcErr.Info(),
		}
		x.finishResult(result, name, started, false, false)
		return result
	}

	x.finishResult(value, name, started, false, false)
	metrics.RecordServiceExecution(name, "success", x.now().Sub(started).Seconds())

	if cacheable && value.Success {
		if cacheErr := x.cache.Set(ctx, cacheKey, *value, cache.SetOptions{
			TTL:         config.Cache.TTL,
			StaleWindow: config.Cache.StaleWindow,
		}); cacheErr != nil {
			log.WithError(cacheErr).Warn("Failed to cache service result")
		}
	}

	return value
}

// cacheKey resolves the key for this call. Caching is off when the
// executor has no cache, the service has no cache config, or the key
// cannot be built.
func (x *Executor) cacheKey(reg *registration, input models.Record, log ectologger.Logger) (string, bool) {
	if x.cache == nil || reg.config.Cache == nil {
		return "", false
	}

	if reg.config.Cache.Key != nil {
		return reg.config.Cache.Key(reg.plugin.Name(), input), true
	}

	key, err := cache.BuildKey("", reg.plugin.Name(), input)
	if err != nil {
		log.WithError(err).Warn("Failed to build cache key, caching disabled for this call")
		return "", false
	}
	return key, true
}

// instrumentRetry chains the retry-attempt metric onto the service's retry
// hook. The config is copied so registrations stay untouched.
func (x *Executor) instrumentRetry(name string, config *models.RetryConfig) *models.RetryConfig {
	if config == nil {
		return nil
	}

	instrumented := *config
	userHook := instrumented.OnRetry
	instrumented.OnRetry = func(err error, attempt int, delay time.Duration) {
		metrics.RecordRetryAttempt(name)
		if userHook != nil {
			userHook(err, attempt, delay)
		}
	}
	return &instrumented
}

// finishResult stamps ownership, timing, and cache provenance on a result
// before it is handed to interpretation.
func (x *Executor) finishResult(result *models.ServiceResult, name string, started time.Time, cached, stale bool) {
	completed := x.now()
	result.ServiceName = name
	result.Cached = cached
	result.Stale = stale
	result.Timing = models.ServiceTiming{
		StartedAt:   started,
		CompletedAt: completed,
		DurationMs:  completed.Sub(started).Milliseconds(),
	}
}

// projectFields narrows the record to the configured paths. Absent paths
// are left out rather than written as nulls.
func projectFields(record models.Record, fields []string) models.Record {
	projected := models.Record{}
	for _, path := range fields {
		if value, ok := fieldpath.Get(record, path); ok {
			fieldpath.Set(projected, path, value)
		}
	}
	return projected
}

// decodeCachedResult recovers a ServiceResult from whatever shape the
// cache backend stored: the struct itself from the in-memory cache, or a
// generic map round-tripped through the Redis JSON envelope.
func decodeCachedResult(value any) (*models.ServiceResult, bool) {
	switch stored := value.(type) {
	case *models.ServiceResult:
		if stored == nil {
			return nil, false
		}
		out := *stored
		return &out, true
	case models.ServiceResult:
		out := stored
		return &out, true
	case map[string]any:
		raw, err := json.Marshal(stored)
		if err != nil {
			return nil, false
		}
		var out models.ServiceResult
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, false
		}
		return &out, true
	default:
		return nil, false
	}
}
