package services

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmespath/go-jmespath"

	"github.com/8arr3tt/have-we-met-sub007/pkg/cache"
	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/metrics"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/resilience"
)

// DefaultServiceTimeout bounds a single service call when neither the
// service config nor the executor defaults name one.
const DefaultServiceTimeout = 5 * time.Second

// registration is one service with its effective config and its place in
// the registration sequence.
type registration struct {
	plugin Plugin
	config models.ServiceConfig
	order  int
}

// RegisteredService is the read-only view of one registration.
type RegisteredService struct {
	Name   string               `json:"name"`
	Kind   models.ServiceKind   `json:"kind"`
	Config models.ServiceConfig `json:"config"`
}

// Executor runs registered service plugins around the match pipeline. All
// state mutation happens through Register/Unregister; pipeline runs read a
// consistent snapshot.
type Executor struct {
	config   models.ExecutorConfig
	logger   ectologger.Logger
	cache    cache.Cache
	breakers *resilience.Registry
	now      func() time.Time

	mu        sync.RWMutex
	services  map[string]*registration
	nextOrder int

	exprMu sync.RWMutex
	exprs  map[string]*jmespath.JMESPath
}

// ExecutorOption customizes executor construction.
type ExecutorOption func(*Executor)

// WithCache attaches a result cache. Services opt in per config; without a
// cache their cache configs are ignored.
func WithCache(c cache.Cache) ExecutorOption {
	return func(x *Executor) {
		x.cache = c
	}
}

// WithBreakerRegistry shares an existing breaker registry, so callers
// outside the executor observe the same circuit state.
func WithBreakerRegistry(r *resilience.Registry) ExecutorOption {
	return func(x *Executor) {
		if r != nil {
			x.breakers = r
		}
	}
}

// NewExecutor creates an executor with no services registered.
func NewExecutor(config models.ExecutorConfig, logger ectologger.Logger, opts ...ExecutorOption) *Executor {
	x := &Executor{
		config:   config,
		logger:   logger,
		now:      time.Now,
		services: make(map[string]*registration),
		exprs:    make(map[string]*jmespath.JMESPath),
	}

	for _, opt := range opts {
		opt(x)
	}

	if x.breakers == nil {
		x.breakers = resilience.NewRegistry(x.instrumentBreaker(models.BreakerConfig{}))
	}

	return x
}

// Register adds a plugin under its own name. The executor defaults are
// merged in first, then documented fallbacks; the stored config is the
// effective one.
func (x *Executor) Register(plugin Plugin, config models.ServiceConfig) error {
	name := plugin.Name()
	if name == "" {
		return &errors.ServiceNotFoundError{Name: name}
	}
	if !plugin.Kind().Valid() {
		return errors.NewServiceErrorf(models.ErrorKindConfiguration, "invalid_service_kind",
			"service '%s' has unrecognized kind '%s'", name, plugin.Kind())
	}

	effective := x.mergeDefaults(config)

	x.mu.Lock()
	if _, exists := x.services[name]; exists {
		x.mu.Unlock()
		return &errors.ServiceAlreadyRegisteredError{Name: name}
	}
	x.services[name] = &registration{
		plugin: plugin,
		config: effective,
		order:  x.nextOrder,
	}
	x.nextOrder++
	x.mu.Unlock()

	if effective.Breaker != nil {
		x.breakers.Configure(name, x.instrumentBreaker(*effective.Breaker))
	}

	x.logger.WithFields(map[string]any{
		"service":         name,
		"kind":            string(plugin.Kind()),
		"execution_point": string(effective.ExecutionPoint),
		"priority":        effective.EffectivePriority(),
	}).Info("Registered service")

	return nil
}

// Unregister removes a service and its breaker, reporting whether it was
// registered.
func (x *Executor) Unregister(name string) bool {
	x.mu.Lock()
	_, exists := x.services[name]
	delete(x.services, name)
	x.mu.Unlock()

	if exists {
		x.breakers.Remove(name)
	}
	return exists
}

// Services lists registrations in overall execution order.
func (x *Executor) Services() []RegisteredService {
	regs := x.ordered(func(*registration) bool { return true })

	services := make([]RegisteredService, 0, len(regs))
	for _, reg := range regs {
		services = append(services, RegisteredService{
			Name:   reg.plugin.Name(),
			Kind:   reg.plugin.Kind(),
			Config: reg.config,
		})
	}
	return services
}

// mergeDefaults resolves the effective config for one service: the given
// config wins field by field over the executor defaults, which win over
// the documented fallbacks.
func (x *Executor) mergeDefaults(config models.ServiceConfig) models.ServiceConfig {
	defaults := models.ServiceConfig{}
	if x.config.Defaults != nil {
		defaults = *x.config.Defaults
	}

	if config.ExecutionPoint == "" {
		config.ExecutionPoint = defaults.ExecutionPoint
	}
	if config.ExecutionPoint == "" {
		config.ExecutionPoint = models.ExecutePreMatch
	}
	if config.Priority == nil {
		config.Priority = defaults.Priority
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultServiceTimeout
	}
	if config.OnFailure == "" {
		config.OnFailure = defaults.OnFailure
	}
	if config.OnFailure == "" {
		config.OnFailure = models.PolicyFlag
	}
	if config.OnInvalid == "" {
		config.OnInvalid = defaults.OnInvalid
	}
	if config.OnInvalid == "" {
		config.OnInvalid = models.PolicyFlag
	}
	if config.OnNotFound == "" {
		config.OnNotFound = defaults.OnNotFound
	}
	if config.OnNotFound == "" {
		config.OnNotFound = models.PolicyContinue
	}
	if config.Retry == nil {
		config.Retry = defaults.Retry
	}
	if config.Breaker == nil {
		config.Breaker = defaults.Breaker
	}
	if config.Cache == nil {
		config.Cache = defaults.Cache
	}
	if len(config.Fields) == 0 {
		config.Fields = defaults.Fields
	}
	if len(config.FieldMapping) == 0 {
		config.FieldMapping = defaults.FieldMapping
	}
	if config.ResultPredicate == nil {
		config.ResultPredicate = defaults.ResultPredicate
	}
	if len(config.Params) == 0 {
		config.Params = defaults.Params
	}

	return config
}

// selected returns the services participating in a phase, in execution
// order: names pinned by the executor's ExecutionOrder first, then the rest
// by ascending priority with registration order breaking ties.
func (x *Executor) selected(phase models.ExecutionPoint) []*registration {
	return x.ordered(func(reg *registration) bool {
		return reg.config.ExecutionPoint.RunsIn(phase)
	})
}

func (x *Executor) ordered(include func(*registration) bool) []*registration {
	x.mu.RLock()
	regs := make([]*registration, 0, len(x.services))
	for _, reg := range x.services {
		if include(reg) {
			regs = append(regs, reg)
		}
	}
	x.mu.RUnlock()

	pinned := make(map[string]int, len(x.config.ExecutionOrder))
	for i, name := range x.config.ExecutionOrder {
		pinned[name] = i
	}

	sort.SliceStable(regs, func(i, j int) bool {
		pi, iPinned := pinned[regs[i].plugin.Name()]
		pj, jPinned := pinned[regs[j].plugin.Name()]
		if iPinned || jPinned {
			if iPinned && jPinned {
				return pi < pj
			}
			return iPinned
		}
		if a, b := regs[i].config.EffectivePriority(), regs[j].config.EffectivePriority(); a != b {
			return a < b
		}
		return regs[i].order < regs[j].order
	})

	return regs
}

// HealthStatus probes every registered service and overlays circuit state:
// an open circuit marks the service unhealthy even when its own healthcheck
// passes. Plugins without a healthcheck count as healthy.
func (x *Executor) HealthStatus(ctx context.Context) HealthStatus {
	regs := x.ordered(func(*registration) bool { return true })

	status := HealthStatus{
		Healthy:  true,
		Services: make(map[string]ServiceHealth, len(regs)),
	}

	for _, reg := range regs {
		name := reg.plugin.Name()
		health := ServiceHealth{
			Name:         name,
			Healthy:      true,
			CircuitState: x.breakers.Get(name).State(),
		}

		if checker, ok := reg.plugin.(HealthChecker); ok {
			if err := checker.HealthCheck(ctx); err != nil {
				health.Healthy = false
				health.Error = err.Error()
			}
		}
		if health.CircuitState == resilience.CircuitOpen {
			health.Healthy = false
		}

		if !health.Healthy {
			status.Healthy = false
		}
		status.Services[name] = health
	}

	return status
}

// CircuitStatus snapshots every service breaker keyed by service name.
func (x *Executor) CircuitStatus() map[string]resilience.CircuitStatus {
	return x.breakers.AllStatus()
}

// Dispose releases every plugin that holds resources and clears the
// executor. Dispose failures are collected, not short-circuited.
func (x *Executor) Dispose() error {
	x.mu.Lock()
	regs := make([]*registration, 0, len(x.services))
	for _, reg := range x.services {
		regs = append(regs, reg)
	}
	x.services = make(map[string]*registration)
	x.mu.Unlock()

	sort.Slice(regs, func(i, j int) bool { return regs[i].order < regs[j].order })

	var errs []error
	for _, reg := range regs {
		disposer, ok := reg.plugin.(Disposer)
		if !ok {
			continue
		}
		if err := disposer.Dispose(); err != nil {
			x.logger.WithError(err).WithFields(map[string]any{
				"service": reg.plugin.Name(),
			}).Error("Failed to dispose service")
			errs = append(errs, err)
		}
	}

	x.breakers.Clear()
	return stderrors.Join(errs...)
}

// instrumentBreaker chains metrics and logging onto a breaker config's
// callbacks without displacing caller hooks.
func (x *Executor) instrumentBreaker(config models.BreakerConfig) models.BreakerConfig {
	userHook := config.OnStateChange
	logger := x.logger
	config.OnStateChange = func(name, from, to string) {
		metrics.RecordBreakerTransition(name, from, to)
		logger.WithFields(map[string]any{
			"service": name,
			"from":    from,
			"to":      to,
		}).Warn("Circuit breaker changed state")
		if userHook != nil {
			userHook(name, from, to)
		}
	}
	return config
}

// searchExpr evaluates a jmespath expression against service data, keeping
// compiled expressions for reuse.
func (x *Executor) searchExpr(expr string, data map[string]any) (any, error) {
	x.exprMu.RLock()
	compiled, ok := x.exprs[expr]
	x.exprMu.RUnlock()

	if !ok {
		var err error
		compiled, err = jmespath.Compile(expr)
		if err != nil {
			return nil, err
		}
		x.exprMu.Lock()
		x.exprs[expr] = compiled
		x.exprMu.Unlock()
	}

	return compiled.Search(data)
}
