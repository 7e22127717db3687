package merging

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// Registry maps strategy names to merge functions. A fresh registry starts
// with the builtins loaded; callers may add their own or replace existing
// entries. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]models.StrategyFunc
}

// NewRegistry returns a registry preloaded with the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[string]models.StrategyFunc)}
	r.RegisterBuiltins()
	return r
}

// Register binds a name to a strategy, replacing any previous binding.
func (r *Registry) Register(name string, fn models.StrategyFunc) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("strategy name must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("strategy '%s' requires a merge function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[name] = fn
	return nil
}

// Resolve looks a strategy up by name.
func (r *Registry) Resolve(name string) (models.StrategyFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.strategies[name]
	if !ok {
		return nil, &errors.StrategyNotFoundError{Strategy: name, Available: r.namesLocked()}
	}
	return fn, nil
}

// Has reports whether a strategy is registered under the name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.strategies[name]
	return ok
}

// Names returns the registered strategy names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear removes every registered strategy, builtins included.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies = make(map[string]models.StrategyFunc)
}

// RegisterBuiltins loads the built-in strategies. Calling it repeatedly, or
// after Clear, always converges on the same set.
func (r *Registry) RegisterBuiltins() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, fn := range Builtins() {
		r.strategies[name] = fn
	}
}
