package orchestrator

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"relay/internal/adapter"
	"relay/internal/logger"
	"relay/pkg/errors"
	"relay/pkg/metrics"
)

// Registry owns lazy adapter construction. A provider's loader runs at
// most once no matter how many goroutines ask for it concurrently, and
// the constructed instance is cached until Destroy.
type Registry struct {
	mu        sync.RWMutex
	loaders   map[string]adapter.Loader
	instances map[string]adapter.Adapter
	group     singleflight.Group
	logger    logger.Logger
}

func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		loaders:   make(map[string]adapter.Loader),
		instances: make(map[string]adapter.Adapter),
		logger:    log,
	}
}

// Register installs a loader for a provider. Registering over a loaded
// provider keeps the existing instance until Destroy.
func (r *Registry) Register(name string, loader adapter.Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[name] = loader
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.loaders))
	for name := range r.loaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Registered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.loaders[name]
	return ok
}

// IsLoaded reports whether the provider's adapter has been constructed.
func (r *Registry) IsLoaded(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.instances[name]
	return ok
}

// Get returns the provider's adapter, constructing it on first use.
// Concurrent first calls share one in-flight construction.
func (r *Registry) Get(ctx context.Context, name string) (adapter.Adapter, error) {
	r.mu.RLock()
	if instance, ok := r.instances[name]; ok {
		r.mu.RUnlock()
		return instance, nil
	}
	loader, registered := r.loaders[name]
	r.mu.RUnlock()

	if !registered {
		return nil, errors.ErrProviderUnavailable.WithDetail("provider", name)
	}

	result, err, _ := r.group.Do(name, func() (interface{}, error) {
		r.mu.RLock()
		instance, ok := r.instances[name]
		r.mu.RUnlock()
		if ok {
			return instance, nil
		}

		built, err := loader(ctx)
		if err != nil {
			metrics.ProviderLoadsTotal.WithLabelValues(name, "error").Inc()
			return nil, errors.ErrConstruction.
				WithCause(err).
				WithDetail("provider", name)
		}
		if err := built.Initialize(ctx); err != nil {
			metrics.ProviderLoadsTotal.WithLabelValues(name, "error").Inc()
			return nil, errors.ErrConstruction.
				WithCause(err).
				WithDetail("provider", name)
		}

		r.mu.Lock()
		r.instances[name] = built
		r.mu.Unlock()

		metrics.ProviderLoadsTotal.WithLabelValues(name, "success").Inc()
		r.logger.DebugwCtx(ctx, "Provider adapter loaded", "provider", name)
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(adapter.Adapter), nil
}

// Loaded returns the constructed adapters, keyed by provider name.
func (r *Registry) Loaded() map[string]adapter.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]adapter.Adapter, len(r.instances))
	for name, instance := range r.instances {
		out[name] = instance
	}
	return out
}

// Destroy tears down every loaded adapter and clears the instance cache.
// Safe to call with providers that were never loaded.
func (r *Registry) Destroy(ctx context.Context) error {
	r.mu.Lock()
	instances := r.instances
	r.instances = make(map[string]adapter.Adapter)
	r.mu.Unlock()

	var firstErr error
	for name, instance := range instances {
		if err := instance.Destroy(ctx); err != nil {
			r.logger.WarnwCtx(ctx, "Adapter teardown failed",
				"provider", name,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
