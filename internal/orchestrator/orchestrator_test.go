package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/adapter"
	"relay/internal/config"
	"relay/internal/constants"
	"relay/internal/logger"
	"relay/pkg/models"
)

// stubAdapter answers every dispatch with a scripted error and optional
// delay.
type stubAdapter struct {
	name  string
	err   error
	delay time.Duration

	mu    sync.Mutex
	calls int
}

func (s *stubAdapter) Name() string                         { return s.name }
func (s *stubAdapter) Initialize(ctx context.Context) error { return nil }
func (s *stubAdapter) Flush(ctx context.Context) error      { return nil }
func (s *stubAdapter) Destroy(ctx context.Context) error    { return nil }

func (s *stubAdapter) dispatch(ctx context.Context) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.err
}

func (s *stubAdapter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubAdapter) Track(ctx context.Context, event models.Event) error { return s.dispatch(ctx) }
func (s *stubAdapter) Identify(ctx context.Context, payload models.IdentifyPayload) error {
	return s.dispatch(ctx)
}
func (s *stubAdapter) Group(ctx context.Context, payload models.GroupPayload) error {
	return s.dispatch(ctx)
}
func (s *stubAdapter) Page(ctx context.Context, payload models.PagePayload) error {
	return s.dispatch(ctx)
}

type stubRouter struct {
	decision models.RouteDecision
	routeAll bool
}

func (r *stubRouter) Route(ctx context.Context, event models.Event, available []string) models.RouteDecision {
	if r.routeAll {
		return models.RouteDecision{TargetProviders: available}
	}
	return r.decision
}

func newOrchestrator(t *testing.T, strategy string, continueOnError bool, adapters map[string]*stubAdapter, priorities map[string]int) (*Orchestrator, *Registry) {
	t.Helper()

	registry := NewRegistry(logger.NopLogger())
	providers := make(map[string]config.ProviderConfig, len(adapters))
	for name, a := range adapters {
		a := a
		registry.Register(name, func(ctx context.Context) (adapter.Adapter, error) {
			return a, nil
		})
		providers[name] = config.ProviderConfig{Priority: priorities[name]}
	}

	cfg := &config.Config{
		Providers: providers,
		Orchestrator: config.OrchestratorConfig{
			Strategy:        strategy,
			ContinueOnError: continueOnError,
			DispatchTimeout: 200 * time.Millisecond,
		},
	}

	return New(registry, &stubRouter{routeAll: true}, cfg, nil, logger.NopLogger()), registry
}

func trackEvent() models.Event {
	return models.Event{Name: "purchase", UserID: "user-1", Timestamp: time.Now()}
}

func TestParallelPartialFailureStillSucceeds(t *testing.T) {
	adapters := map[string]*stubAdapter{
		"a": {name: "a"},
		"b": {name: "b", err: fmt.Errorf("downstream unavailable")},
	}
	o, _ := newOrchestrator(t, constants.StrategyParallel, false, adapters, map[string]int{"a": 1, "b": 2})

	result := o.Track(context.Background(), trackEvent())

	assert.True(t, result.Success)
	assert.True(t, result.Succeeded("a"))
	require.Contains(t, result.PerProvider, "b")
	assert.False(t, result.PerProvider["b"].Success)
	assert.True(t, result.PerProvider["b"].Loaded)
	assert.NotEmpty(t, result.PerProvider["b"].Error)
}

func TestParallelSlowProviderDoesNotDelaySiblings(t *testing.T) {
	adapters := map[string]*stubAdapter{
		"fast": {name: "fast"},
		"slow": {name: "slow", delay: time.Hour},
	}
	o, _ := newOrchestrator(t, constants.StrategyParallel, false, adapters, map[string]int{"fast": 1, "slow": 2})

	start := time.Now()
	result := o.Track(context.Background(), trackEvent())

	assert.Less(t, time.Since(start), time.Second, "slow provider is cut off by its own timeout")
	assert.True(t, result.Succeeded("fast"))
	assert.False(t, result.Succeeded("slow"))
	assert.True(t, result.Success)
}

func TestSequentialStopsOnFailure(t *testing.T) {
	adapters := map[string]*stubAdapter{
		"a": {name: "a", err: fmt.Errorf("boom")},
		"b": {name: "b"},
	}
	o, _ := newOrchestrator(t, constants.StrategySequential, false, adapters, map[string]int{"a": 1, "b": 2})

	result := o.Track(context.Background(), trackEvent())

	assert.False(t, result.Success)
	assert.Equal(t, 0, adapters["b"].callCount(), "later providers are skipped without continue_on_error")
}

func TestSequentialContinuesOnError(t *testing.T) {
	adapters := map[string]*stubAdapter{
		"a": {name: "a", err: fmt.Errorf("boom")},
		"b": {name: "b"},
	}
	o, _ := newOrchestrator(t, constants.StrategySequential, true, adapters, map[string]int{"a": 1, "b": 2})

	result := o.Track(context.Background(), trackEvent())

	assert.True(t, result.Success)
	assert.Equal(t, 1, adapters["b"].callCount())
}

func TestFailoverStopsAtFirstSuccess(t *testing.T) {
	adapters := map[string]*stubAdapter{
		"a": {name: "a", err: fmt.Errorf("boom")},
		"b": {name: "b"},
		"c": {name: "c"},
	}
	o, _ := newOrchestrator(t, constants.StrategyFailover, false, adapters, map[string]int{"a": 1, "b": 2, "c": 3})

	result := o.Track(context.Background(), trackEvent())

	assert.True(t, result.Success)
	assert.Equal(t, 1, adapters["a"].callCount())
	assert.Equal(t, 1, adapters["b"].callCount())
	assert.Equal(t, 0, adapters["c"].callCount(), "failover never reaches providers after the first success")
	assert.NotContains(t, result.PerProvider, "c")
}

func TestTrackHonoursRoutingDecision(t *testing.T) {
	adapters := map[string]*stubAdapter{
		"a": {name: "a"},
		"b": {name: "b"},
	}
	o, _ := newOrchestrator(t, constants.StrategyParallel, false, adapters, map[string]int{"a": 1, "b": 2})
	o.router = &stubRouter{decision: models.RouteDecision{TargetProviders: []string{"b"}}}

	result := o.Track(context.Background(), trackEvent())

	assert.True(t, result.Success)
	assert.Equal(t, 0, adapters["a"].callCount())
	assert.Equal(t, 1, adapters["b"].callCount())
}

func TestIdentifyTargetsAllProviders(t *testing.T) {
	adapters := map[string]*stubAdapter{
		"a": {name: "a"},
		"b": {name: "b"},
	}
	o, _ := newOrchestrator(t, constants.StrategyParallel, false, adapters, map[string]int{"a": 1, "b": 2})
	// Routing rules do not apply to identity updates.
	o.router = &stubRouter{decision: models.RouteDecision{TargetProviders: []string{"b"}}}

	result := o.Identify(context.Background(), models.IdentifyPayload{UserID: "user-1", Timestamp: time.Now()})

	assert.True(t, result.Success)
	assert.Equal(t, 1, adapters["a"].callCount())
	assert.Equal(t, 1, adapters["b"].callCount())
}

func TestConstructionFailureRecordedAsNotLoaded(t *testing.T) {
	registry := NewRegistry(logger.NopLogger())
	registry.Register("broken", func(ctx context.Context) (adapter.Adapter, error) {
		return nil, fmt.Errorf("no credentials")
	})

	cfg := &config.Config{
		Orchestrator: config.OrchestratorConfig{Strategy: constants.StrategyParallel},
	}
	o := New(registry, &stubRouter{routeAll: true}, cfg, nil, logger.NopLogger())

	result := o.Track(context.Background(), trackEvent())

	assert.False(t, result.Success)
	require.Contains(t, result.PerProvider, "broken")
	assert.False(t, result.PerProvider["broken"].Loaded)
	assert.Contains(t, result.PerProvider["broken"].Error, "CONSTRUCTION_ERROR")
}

type panicAdapter struct {
	stubAdapter
}

func (p *panicAdapter) Track(ctx context.Context, event models.Event) error {
	panic("adapter bug")
}

func TestPanickingAdapterIsIsolated(t *testing.T) {
	registry := NewRegistry(logger.NopLogger())
	healthy := &stubAdapter{name: "healthy"}
	registry.Register("healthy", func(ctx context.Context) (adapter.Adapter, error) {
		return healthy, nil
	})
	registry.Register("broken", func(ctx context.Context) (adapter.Adapter, error) {
		return &panicAdapter{stubAdapter{name: "broken"}}, nil
	})

	cfg := &config.Config{
		Orchestrator: config.OrchestratorConfig{Strategy: constants.StrategyParallel},
	}
	o := New(registry, &stubRouter{routeAll: true}, cfg, nil, logger.NopLogger())

	result := o.Track(context.Background(), trackEvent())

	assert.True(t, result.Success)
	assert.True(t, result.Succeeded("healthy"))
	require.Contains(t, result.PerProvider, "broken")
	assert.False(t, result.PerProvider["broken"].Success)
	assert.Contains(t, result.PerProvider["broken"].Error, "panic")
}

func TestRegistryConstructsOncePerProvider(t *testing.T) {
	var constructions atomic.Int32
	registry := NewRegistry(logger.NopLogger())
	registry.Register("a", func(ctx context.Context) (adapter.Adapter, error) {
		time.Sleep(10 * time.Millisecond)
		constructions.Add(1)
		return &stubAdapter{name: "a"}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := registry.Get(context.Background(), "a")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), constructions.Load(), "concurrent first use shares one construction")
	assert.True(t, registry.IsLoaded("a"))
}

func TestRegistryUnknownProvider(t *testing.T) {
	registry := NewRegistry(logger.NopLogger())
	_, err := registry.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROVIDER_UNAVAILABLE")
}

func TestDestroyIsSafeWithUnloadedProviders(t *testing.T) {
	a := &stubAdapter{name: "a"}
	adapters := map[string]*stubAdapter{"a": a, "never": {name: "never"}}
	o, registry := newOrchestrator(t, constants.StrategyFailover, false, adapters, map[string]int{"a": 1, "never": 2})

	require.True(t, o.Track(context.Background(), trackEvent()).Success)
	require.True(t, registry.IsLoaded("a"))
	require.False(t, registry.IsLoaded("never"))

	assert.NoError(t, o.Destroy(context.Background()))
	assert.False(t, registry.IsLoaded("a"))
}
