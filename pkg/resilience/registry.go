package resilience

import (
	"sort"
	"sync"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// Registry hands out one circuit breaker per service name so every caller
// hitting the same dependency shares its state.
type Registry struct {
	defaults models.BreakerConfig

	mu        sync.RWMutex
	breakers  map[string]*CircuitBreaker
	overrides map[string]models.BreakerConfig
}

// NewRegistry creates a breaker registry. The defaults apply to every
// breaker without a per-name override.
func NewRegistry(defaults models.BreakerConfig) *Registry {
	return &Registry{
		defaults:  defaults,
		breakers:  make(map[string]*CircuitBreaker),
		overrides: make(map[string]models.BreakerConfig),
	}
}

// Get returns the breaker for the named service, creating it on first use.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.RLock()
	if cb, ok := r.breakers[name]; ok {
		r.mu.RUnlock()
		return cb
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	config := r.defaults
	if override, ok := r.overrides[name]; ok {
		config = override
	}

	cb := NewCircuitBreaker(name, config)
	r.breakers[name] = cb
	return cb
}

// Configure sets a per-name config override. An existing breaker is rebuilt
// so the new thresholds take effect; its counters start fresh.
func (r *Registry) Configure(name string, config models.BreakerConfig) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.overrides[name] = config
	cb := NewCircuitBreaker(name, config)
	r.breakers[name] = cb
	return cb
}

// Remove drops the named breaker and its override.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, name)
	delete(r.overrides, name)
}

// ResetAll forces every breaker closed.
func (r *Registry) ResetAll() {
	for _, cb := range r.snapshot() {
		cb.Reset()
	}
}

// OpenCircuits returns the names of breakers currently open, sorted.
func (r *Registry) OpenCircuits() []string {
	var open []string
	for _, cb := range r.snapshot() {
		if cb.State() == CircuitOpen {
			open = append(open, cb.Name())
		}
	}
	sort.Strings(open)
	return open
}

// AllStatus returns a snapshot of every breaker keyed by service name.
func (r *Registry) AllStatus() map[string]CircuitStatus {
	breakers := r.snapshot()
	status := make(map[string]CircuitStatus, len(breakers))
	for _, cb := range breakers {
		status[cb.Name()] = cb.Status()
	}
	return status
}

// Clear drops every breaker and override.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers = make(map[string]*CircuitBreaker)
	r.overrides = make(map[string]models.BreakerConfig)
}

// snapshot copies the breaker set so iteration never holds the registry
// lock while touching breaker locks.
func (r *Registry) snapshot() []*CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	return breakers
}
