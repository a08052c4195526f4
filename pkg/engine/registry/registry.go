// Package registry maps engine names to factories. Engines register from
// init, so importing an engine package makes it available:
//
//	import _ "github.com/ajitpratap0/fls/pkg/engine/parquet"
//
//	eng, err := registry.Create(cfg)
package registry

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/fls/pkg/config"
	"github.com/ajitpratap0/fls/pkg/engine"
	"github.com/ajitpratap0/fls/pkg/flserrors"
	"github.com/ajitpratap0/fls/pkg/logger"
)

// Factory creates a configured engine.
type Factory func(cfg config.EngineConfig) (engine.Engine, error)

// Registry manages engine registration and instantiation.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name. Registering a name twice is a config
// error.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return flserrors.Newf(flserrors.ErrorTypeConfig, "engine %s already registered", name)
	}
	r.factories[name] = factory
	logger.Debug("engine registered", zap.String("name", name))
	return nil
}

// Create instantiates the engine named by cfg.Name.
func (r *Registry) Create(cfg config.EngineConfig) (engine.Engine, error) {
	r.mu.RLock()
	factory, exists := r.factories[cfg.Name]
	r.mu.RUnlock()

	if !exists {
		return nil, flserrors.Newf(flserrors.ErrorTypeConfig, "engine %q not found", cfg.Name).
			WithDetail("available", r.List())
	}
	eng, err := factory(cfg)
	if err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeConfig, "failed to create engine "+cfg.Name)
	}
	return eng, nil
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[name]
	return exists
}

// Register adds a factory to the global registry. It panics on a duplicate
// name, which can only happen through a programming error in an init
// function.
func Register(name string, factory Factory) {
	if err := globalRegistry.Register(name, factory); err != nil {
		panic(err)
	}
}

// Create instantiates an engine from the global registry.
func Create(cfg config.EngineConfig) (engine.Engine, error) {
	return globalRegistry.Create(cfg)
}

// List names the engines in the global registry.
func List() []string {
	return globalRegistry.List()
}

// Has reports whether the global registry knows name.
func Has(name string) bool {
	return globalRegistry.Has(name)
}
