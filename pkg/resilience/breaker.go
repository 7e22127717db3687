package resilience

import (
	"sync"
	"time"

	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// CircuitState is where a breaker sits in its lifecycle.
type CircuitState string

const (
	// CircuitClosed passes calls through and counts failures.
	CircuitClosed CircuitState = "closed"
	// CircuitOpen fails calls fast until the reset timeout elapses.
	CircuitOpen CircuitState = "open"
	// CircuitHalfOpen lets probe calls through to test recovery.
	CircuitHalfOpen CircuitState = "half-open"
)

// Breaker defaults applied when the config leaves a field zero.
const (
	DefaultFailureThreshold  = 5
	DefaultFailureWindow     = 60 * time.Second
	DefaultOpenDuration      = 30 * time.Second
	DefaultHalfOpenSuccesses = 2
)

// CircuitStatus is a point-in-time snapshot of one breaker.
type CircuitStatus struct {
	Name     string       `json:"name"`
	State    CircuitState `json:"state"`
	Failures int          `json:"failures"`
	// Successes counts consecutive half-open probe successes.
	Successes int        `json:"successes"`
	OpenedAt  *time.Time `json:"opened_at,omitempty"`
	ResetAt   *time.Time `json:"reset_at,omitempty"`
}

// CircuitBreaker guards one service. Failures inside a sliding window open
// the circuit; after the open period it probes with a few calls and closes
// again once enough succeed. All state changes happen under the breaker's
// lock; callbacks fire after it is released.
type CircuitBreaker struct {
	name   string
	config models.BreakerConfig
	now    func() time.Time

	mu        sync.Mutex
	state     CircuitState
	failures  []time.Time
	successes int
	openedAt  time.Time
}

// NewCircuitBreaker creates a closed breaker for the named service.
func NewCircuitBreaker(name string, config models.BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultFailureThreshold
	}
	if config.FailureWindow <= 0 {
		config.FailureWindow = DefaultFailureWindow
	}
	if config.OpenDuration <= 0 {
		config.OpenDuration = DefaultOpenDuration
	}
	if config.HalfOpenSuccesses <= 0 {
		config.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}

	return &CircuitBreaker{
		name:   name,
		config: config,
		now:    time.Now,
		state:  CircuitClosed,
	}
}

// Name returns the service name the breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Allow reports whether a call may proceed. While open it returns a
// BreakerOpenError carrying the reset time; once that time has passed the
// breaker moves to half-open and the call goes through as a probe.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()

	if cb.state == CircuitOpen {
		resetAt := cb.openedAt.Add(cb.config.OpenDuration)
		if cb.now().Before(resetAt) {
			cb.mu.Unlock()
			return &errors.BreakerOpenError{Name: cb.name, ResetAt: resetAt}
		}
		notify := cb.transition(CircuitHalfOpen)
		cb.mu.Unlock()
		notify()
		return nil
	}

	cb.mu.Unlock()
	return nil
}

// RecordSuccess counts a successful call. In half-open it closes the breaker
// once enough consecutive probes succeed; in closed it clears the failure
// window.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()

	notify := func() {}
	switch cb.state {
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.HalfOpenSuccesses {
			notify = cb.transition(CircuitClosed)
		}
	case CircuitClosed:
		cb.failures = cb.failures[:0]
	}

	onSuccess := cb.config.OnSuccess
	cb.mu.Unlock()

	notify()
	if onSuccess != nil {
		onSuccess(cb.name)
	}
}

// RecordFailure counts a failed call. In closed it opens the breaker once
// the window holds enough failures; in half-open any failure reopens
// immediately with a fresh reset timeout. Errors the config's IsFailure
// rejects are ignored.
func (cb *CircuitBreaker) RecordFailure(err error) {
	if cb.config.IsFailure != nil && !cb.config.IsFailure(err) {
		return
	}

	cb.mu.Lock()

	notify := func() {}
	switch cb.state {
	case CircuitClosed:
		now := cb.now()
		cb.failures = append(cb.failures, now)
		cb.pruneWindow(now)
		if len(cb.failures) >= cb.config.FailureThreshold {
			notify = cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		notify = cb.transition(CircuitOpen)
	}

	onFailure := cb.config.OnFailure
	cb.mu.Unlock()

	notify()
	if onFailure != nil {
		onFailure(cb.name, err)
	}
}

// Trip forces the breaker open, as if the failure threshold had been hit.
func (cb *CircuitBreaker) Trip() {
	cb.mu.Lock()
	notify := func() {}
	if cb.state != CircuitOpen {
		notify = cb.transition(CircuitOpen)
	}
	cb.mu.Unlock()
	notify()
}

// Reset forces the breaker closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	notify := func() {}
	if cb.state != CircuitClosed {
		notify = cb.transition(CircuitClosed)
	} else {
		cb.failures = cb.failures[:0]
		cb.successes = 0
	}
	cb.mu.Unlock()
	notify()
}

// ForceHalfOpen moves the breaker straight to half-open, skipping the rest
// of the open period.
func (cb *CircuitBreaker) ForceHalfOpen() {
	cb.mu.Lock()
	notify := func() {}
	if cb.state != CircuitHalfOpen {
		notify = cb.transition(CircuitHalfOpen)
	}
	cb.mu.Unlock()
	notify()
}

// State returns the current circuit state, honoring an elapsed open period.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && !cb.now().Before(cb.openedAt.Add(cb.config.OpenDuration)) {
		// the next Allow would transition; report what callers will see
		return CircuitHalfOpen
	}
	return cb.state
}

// Status returns a snapshot of the breaker for health reporting.
func (cb *CircuitBreaker) Status() CircuitStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	status := CircuitStatus{
		Name:      cb.name,
		State:     cb.state,
		Failures:  len(cb.failures),
		Successes: cb.successes,
	}
	if cb.state == CircuitOpen {
		openedAt := cb.openedAt
		resetAt := cb.openedAt.Add(cb.config.OpenDuration)
		status.OpenedAt = &openedAt
		status.ResetAt = &resetAt
	}
	return status
}

// transition flips the state and returns the callback to fire once the lock
// is released. Callers must hold cb.mu.
func (cb *CircuitBreaker) transition(to CircuitState) func() {
	from := cb.state
	cb.state = to

	switch to {
	case CircuitOpen:
		cb.openedAt = cb.now()
		cb.successes = 0
	case CircuitHalfOpen:
		cb.successes = 0
	case CircuitClosed:
		cb.failures = cb.failures[:0]
		cb.successes = 0
	}

	onChange := cb.config.OnStateChange
	if onChange == nil {
		return func() {}
	}
	name := cb.name
	return func() { onChange(name, string(from), string(to)) }
}

// pruneWindow drops failures that slid out of the counting window. Callers
// must hold cb.mu.
func (cb *CircuitBreaker) pruneWindow(now time.Time) {
	cutoff := now.Add(-cb.config.FailureWindow)
	kept := cb.failures[:0]
	for _, t := range cb.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	cb.failures = kept
}
