package models

import (
	"time"
)

// ErrorKind classifies a failure for retry and policy decisions.
type ErrorKind string

const (
	ErrorKindTimeout       ErrorKind = "timeout"
	ErrorKindNetwork       ErrorKind = "network"
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindNotFound      ErrorKind = "not_found"
	ErrorKindRejected      ErrorKind = "rejected"
	ErrorKindUnavailable   ErrorKind = "unavailable"
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindPlugin        ErrorKind = "plugin"
	ErrorKindUnknown       ErrorKind = "unknown"

	// ErrorKindAll is a RetryOn wildcard matching every kind.
	ErrorKindAll ErrorKind = "all"

	// ErrorKindServer is accepted in RetryOn as an alias for unknown, the
	// kind unclassified upstream failures land in.
	ErrorKindServer ErrorKind = "server"
)

// Matches reports whether a RetryOn entry covers the given kind.
func (k ErrorKind) Matches(kind ErrorKind) bool {
	if k == ErrorKindAll {
		return true
	}
	if k == ErrorKindServer {
		return kind == ErrorKindUnknown || kind == ErrorKindServer
	}
	return k == kind
}

// ServiceKind classifies an external service plugin.
type ServiceKind string

const (
	ServiceKindValidation ServiceKind = "validation"
	ServiceKindLookup     ServiceKind = "lookup"
	ServiceKindCustom     ServiceKind = "custom"
)

// Valid reports whether the kind is one of the recognized values.
func (k ServiceKind) Valid() bool {
	switch k {
	case ServiceKindValidation, ServiceKindLookup, ServiceKindCustom:
		return true
	}
	return false
}

// ExecutionPoint is the pipeline phase a service runs in.
type ExecutionPoint string

const (
	ExecutePreMatch  ExecutionPoint = "pre-match"
	ExecutePostMatch ExecutionPoint = "post-match"
	ExecuteBoth      ExecutionPoint = "both"
)

// RunsIn reports whether a service configured with this point participates
// in the given phase.
func (p ExecutionPoint) RunsIn(phase ExecutionPoint) bool {
	return p == phase || p == ExecuteBoth
}

// FailurePolicy decides what the pipeline does when a service fails,
// reports invalid, or finds no result.
type FailurePolicy string

const (
	// PolicyReject stops the pipeline when the service is required,
	// otherwise flags.
	PolicyReject FailurePolicy = "reject"
	// PolicyFlag records a marker on the pipeline result and continues.
	PolicyFlag FailurePolicy = "flag"
	// PolicyContinue ignores the outcome entirely.
	PolicyContinue FailurePolicy = "continue"
)

// RetryConfig shapes the exponential backoff schedule for retried calls.
// Zero values fall back to the documented defaults.
type RetryConfig struct {
	// MaxAttempts counts the initial call plus retries. Defaults to 3.
	MaxAttempts int `json:"max_attempts,omitempty"`
	// InitialDelay seeds the backoff. Defaults to 100ms.
	InitialDelay time.Duration `json:"initial_delay,omitempty"`
	// MaxDelay caps the backoff. Defaults to 5s.
	MaxDelay time.Duration `json:"max_delay,omitempty"`
	// Multiplier grows the delay between attempts. Defaults to 2.
	Multiplier float64 `json:"multiplier,omitempty"`
	// Jitter applies a +/-20% random spread to each delay. Defaults on.
	Jitter *bool `json:"jitter,omitempty"`
	// RetryOn limits retries to the listed error kinds. Empty means the
	// error's own retryable flag decides.
	RetryOn []ErrorKind `json:"retry_on,omitempty"`
	// ShouldRetry, when set, overrides RetryOn and the error flag.
	ShouldRetry func(err error, attempt int) bool `json:"-"`
	// OnRetry observes each scheduled retry before its delay elapses.
	OnRetry func(err error, attempt int, delay time.Duration) `json:"-"`
}

// BreakerConfig shapes a circuit breaker.
// Zero values fall back to the documented defaults.
type BreakerConfig struct {
	// FailureThreshold opens the circuit once this many failures land
	// inside the window. Defaults to 5.
	FailureThreshold int `json:"failure_threshold,omitempty"`
	// FailureWindow is the sliding window failures are counted in.
	// Defaults to 60s.
	FailureWindow time.Duration `json:"failure_window,omitempty"`
	// OpenDuration is how long the circuit stays open before probing.
	// Defaults to 30s.
	OpenDuration time.Duration `json:"open_duration,omitempty"`
	// HalfOpenSuccesses closes the circuit after this many consecutive
	// probe successes. Defaults to 2.
	HalfOpenSuccesses int `json:"half_open_successes,omitempty"`
	// IsFailure decides which errors count against the threshold.
	// Defaults to counting every error.
	IsFailure func(err error) bool `json:"-"`
	// OnStateChange observes transitions. Called outside the breaker lock.
	OnStateChange func(name string, from, to string) `json:"-"`
	// OnFailure observes each counted failure. Called outside the lock.
	OnFailure func(name string, err error) `json:"-"`
	// OnSuccess observes each recorded success. Called outside the lock.
	OnSuccess func(name string) `json:"-"`
}

// ServiceCacheConfig enables result caching for one service.
type ServiceCacheConfig struct {
	// TTL is the fresh lifetime of a cached result. Defaults to 300s.
	TTL time.Duration `json:"ttl,omitempty"`
	// StaleWindow extends the lifetime for stale reads. Zero disables
	// stale serving.
	StaleWindow time.Duration `json:"stale_window,omitempty"`
	// StaleOnError serves a stale result when the live call fails.
	StaleOnError bool `json:"stale_on_error,omitempty"`
	// Key overrides the default input-hash cache key.
	Key func(serviceName string, input Record) string `json:"-"`
}

// ServiceConfig is the per-service execution policy.
type ServiceConfig struct {
	ExecutionPoint ExecutionPoint `json:"execution_point,omitempty"`
	// Required promotes reject policies into pipeline rejection.
	Required bool `json:"required,omitempty"`
	// Priority orders execution; lower runs first. Defaults to 100.
	Priority *int `json:"priority,omitempty"`
	// Timeout bounds a single call. Defaults to 5s.
	Timeout time.Duration `json:"timeout,omitempty"`
	// OnFailure defaults to flag.
	OnFailure FailurePolicy `json:"on_failure,omitempty"`
	// OnInvalid applies to validation services reporting invalid.
	// Defaults to flag.
	OnInvalid FailurePolicy `json:"on_invalid,omitempty"`
	// OnNotFound applies to lookup services reporting no result.
	// Defaults to continue.
	OnNotFound FailurePolicy       `json:"on_not_found,omitempty"`
	Retry      *RetryConfig        `json:"retry,omitempty"`
	Breaker    *BreakerConfig      `json:"breaker,omitempty"`
	Cache      *ServiceCacheConfig `json:"cache,omitempty"`
	// Fields restricts the input passed to the service to these paths.
	Fields []string `json:"fields,omitempty"`
	// FieldMapping renames enrichment outputs before they are merged
	// into the working record. Values are jmespath expressions evaluated
	// against the service data.
	FieldMapping map[string]string `json:"field_mapping,omitempty"`
	// ResultPredicate, for custom services, marks the result as a
	// rejection when it returns false.
	ResultPredicate func(data map[string]any) bool `json:"-"`
	// Params is passed through to the service untouched.
	Params map[string]any `json:"params,omitempty"`
}

// EffectivePriority resolves the default priority.
func (c ServiceConfig) EffectivePriority() int {
	if c.Priority == nil {
		return 100
	}
	return *c.Priority
}

// ExecutorConfig is the pipeline-wide policy.
type ExecutorConfig struct {
	// ExecutionOrder pins an explicit service order. Services not listed
	// run after the listed ones in priority order.
	ExecutionOrder []string `json:"execution_order,omitempty"`
	// Parallel runs each phase's services concurrently against the same
	// input snapshot.
	Parallel bool `json:"parallel,omitempty"`
	// Defaults seeds every service config before per-service overrides.
	Defaults *ServiceConfig `json:"defaults,omitempty"`
}

// ServiceTiming is the wall-clock span of one service call.
type ServiceTiming struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}

// ServiceErrorInfo is the serializable error a service reported.
type ServiceErrorInfo struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Kind      ErrorKind `json:"kind"`
	Retryable bool      `json:"retryable"`
}

// ServiceResult is one service's outcome within a pipeline run.
type ServiceResult struct {
	ServiceName string `json:"service_name"`
	Success     bool   `json:"success"`
	// Valid is set by validation services.
	Valid *bool `json:"valid,omitempty"`
	// Found is set by lookup services.
	Found *bool          `json:"found,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
	// ScoreAdjustment nudges the match score in post-match phase.
	ScoreAdjustment *float64          `json:"score_adjustment,omitempty"`
	Error           *ServiceErrorInfo `json:"error,omitempty"`
	Timing          ServiceTiming     `json:"timing"`
	Cached          bool              `json:"cached"`
	Stale           bool              `json:"stale,omitempty"`
	Skipped         bool              `json:"skipped,omitempty"`
	SkipReason      string            `json:"skip_reason,omitempty"`
}

// ScoreAdjustmentRecord attributes one score change to a service.
type ScoreAdjustmentRecord struct {
	ServiceName string  `json:"service_name"`
	Adjustment  float64 `json:"adjustment"`
	Reason      string  `json:"reason,omitempty"`
}

// PipelineResult is the aggregate outcome of running one phase.
type PipelineResult struct {
	// Proceed is false when a required service rejected the record.
	Proceed bool                      `json:"proceed"`
	Results map[string]*ServiceResult `json:"results"`
	// EnrichedRecord is the input plus all merged enrichments.
	EnrichedRecord Record `json:"enriched_record"`
	// Flags collects "service:reason" markers from flag policies.
	Flags            []string                `json:"flags,omitempty"`
	ScoreAdjustments []ScoreAdjustmentRecord `json:"score_adjustments,omitempty"`
	RejectedBy       string                  `json:"rejected_by,omitempty"`
	RejectionReason  string                  `json:"rejection_reason,omitempty"`
	DurationMs       int64                   `json:"duration_ms"`
}

// ServiceContext is the metadata handed to every service call.
type ServiceContext struct {
	CorrelationID string         `json:"correlation_id"`
	Phase         ExecutionPoint `json:"phase"`
	Caller        string         `json:"caller,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	// MatchScore is present in post-match phase.
	MatchScore *ScoreBreakdown `json:"match_score,omitempty"`
	Params     map[string]any  `json:"params,omitempty"`
}
