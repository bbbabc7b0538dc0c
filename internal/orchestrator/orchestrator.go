package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"relay/internal/adapter"
	"relay/internal/audit"
	"relay/internal/config"
	"relay/internal/constants"
	"relay/internal/logger"
	"relay/pkg/errors"
	"relay/pkg/metrics"
	"relay/pkg/models"
	"relay/pkg/tracing"
)

// Router narrows the provider set for one event. Satisfied by
// *router.Router; tests substitute a stub.
type Router interface {
	Route(ctx context.Context, event models.Event, available []string) models.RouteDecision
}

// Orchestrator fans one operation out to the selected providers under
// the configured execution strategy and aggregates per-provider
// outcomes. It never fails a call for ordinary provider errors; the
// ExecutionResult carries the detail.
type Orchestrator struct {
	registry *Registry
	router   Router
	cfg      config.OrchestratorConfig
	priority map[string]int
	audit    audit.Store
	logger   logger.Logger
}

func New(registry *Registry, rt Router, cfg *config.Config, auditStore audit.Store, log logger.Logger) *Orchestrator {
	if auditStore == nil {
		auditStore = audit.NopStore{}
	}

	oc := cfg.Orchestrator
	if oc.Strategy == "" {
		oc.Strategy = constants.StrategyParallel
	}
	if oc.DispatchTimeout <= 0 {
		oc.DispatchTimeout = constants.DefaultDispatchTimeout
	}

	priority := make(map[string]int, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		priority[name] = pc.Priority
	}

	return &Orchestrator{
		registry: registry,
		router:   rt,
		cfg:      oc,
		priority: priority,
		audit:    auditStore,
		logger:   log,
	}
}

// Track routes the event, then dispatches it to the selected providers.
func (o *Orchestrator) Track(ctx context.Context, event models.Event) models.ExecutionResult {
	ctx, span := tracing.GetTracer("dispatch-service").Start(ctx, "orchestrator.track")
	defer span.End()

	available := o.registry.Names()
	targets := available
	if o.router != nil {
		decision := o.router.Route(ctx, event, available)
		targets = decision.TargetProviders
		if len(decision.AppliedRules) > 0 {
			o.logger.DebugwCtx(ctx, "Routing decision",
				"event", event.Name,
				"targets", targets,
				"applied_rules", decision.AppliedRules,
				"excluded", decision.Excluded,
			)
		}
	}

	result := o.execute(ctx, constants.OperationTrack, targets, func(ctx context.Context, a adapter.Adapter) error {
		return a.Track(ctx, event)
	})
	o.record(constants.OperationTrack, event.Name, event.Identifier(), result)
	return result
}

// Identify targets every registered provider; identity updates are not
// routed per event.
func (o *Orchestrator) Identify(ctx context.Context, payload models.IdentifyPayload) models.ExecutionResult {
	ctx, span := tracing.GetTracer("dispatch-service").Start(ctx, "orchestrator.identify")
	defer span.End()

	result := o.execute(ctx, constants.OperationIdentify, o.registry.Names(), func(ctx context.Context, a adapter.Adapter) error {
		return a.Identify(ctx, payload)
	})
	o.record(constants.OperationIdentify, "", payload.UserID, result)
	return result
}

func (o *Orchestrator) Group(ctx context.Context, payload models.GroupPayload) models.ExecutionResult {
	ctx, span := tracing.GetTracer("dispatch-service").Start(ctx, "orchestrator.group")
	defer span.End()

	result := o.execute(ctx, constants.OperationGroup, o.registry.Names(), func(ctx context.Context, a adapter.Adapter) error {
		return a.Group(ctx, payload)
	})
	o.record(constants.OperationGroup, "", payload.GroupID, result)
	return result
}

func (o *Orchestrator) Page(ctx context.Context, payload models.PagePayload) models.ExecutionResult {
	ctx, span := tracing.GetTracer("dispatch-service").Start(ctx, "orchestrator.page")
	defer span.End()

	result := o.execute(ctx, constants.OperationPage, o.registry.Names(), func(ctx context.Context, a adapter.Adapter) error {
		return a.Page(ctx, payload)
	})
	o.record(constants.OperationPage, payload.Name, payload.UserID, result)
	return result
}

// Flush drains the buffers of every loaded adapter. Providers that were
// never loaded have nothing to flush.
func (o *Orchestrator) Flush(ctx context.Context) error {
	var firstErr error
	for name, instance := range o.registry.Loaded() {
		if err := instance.Flush(ctx); err != nil {
			o.logger.WarnwCtx(ctx, "Adapter flush failed",
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

// Destroy tears down every loaded adapter and clears the registry cache.
func (o *Orchestrator) Destroy(ctx context.Context) error {
	return o.registry.Destroy(ctx)
}

type dispatchFunc func(ctx context.Context, a adapter.Adapter) error

func (o *Orchestrator) execute(ctx context.Context, operation string, targets []string, call dispatchFunc) models.ExecutionResult {
	start := time.Now()
	ordered := o.orderByPriority(targets)

	var perProvider map[string]models.ProviderResult
	switch o.cfg.Strategy {
	case constants.StrategySequential:
		perProvider = o.runSequential(ctx, operation, ordered, call)
	case constants.StrategyFailover:
		perProvider = o.runFailover(ctx, operation, ordered, call)
	default:
		perProvider = o.runParallel(ctx, operation, ordered, call)
	}

	result := models.ExecutionResult{
		PerProvider: perProvider,
		Duration:    time.Since(start),
	}
	result.Success = overallSuccess(perProvider)

	status := "success"
	if !result.Success {
		status = "error"
	}
	metrics.DispatchTotal.WithLabelValues(operation, o.cfg.Strategy, status).Inc()
	metrics.ObserveDispatchDuration(operation, o.cfg.Strategy, result.Duration)

	return result
}

func (o *Orchestrator) runParallel(ctx context.Context, operation string, targets []string, call dispatchFunc) map[string]models.ProviderResult {
	results := make(map[string]models.ProviderResult, len(targets))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, name := range targets {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			pr := o.attempt(ctx, name, operation, call)
			mu.Lock()
			results[name] = pr
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) runSequential(ctx context.Context, operation string, targets []string, call dispatchFunc) map[string]models.ProviderResult {
	results := make(map[string]models.ProviderResult, len(targets))
	for _, name := range targets {
		pr := o.attempt(ctx, name, operation, call)
		results[name] = pr
		if !pr.Success && !o.cfg.ContinueOnError {
			break
		}
	}
	return results
}

func (o *Orchestrator) runFailover(ctx context.Context, operation string, targets []string, call dispatchFunc) map[string]models.ProviderResult {
	results := make(map[string]models.ProviderResult, len(targets))
	for _, name := range targets {
		pr := o.attempt(ctx, name, operation, call)
		results[name] = pr
		if pr.Success {
			break
		}
	}
	return results
}

// attempt loads the adapter and runs one dispatch under the per-call
// timeout. The timeout is a race against the operation so a slow
// provider cannot delay its siblings.
func (o *Orchestrator) attempt(ctx context.Context, name, operation string, call dispatchFunc) models.ProviderResult {
	start := time.Now()

	instance, err := o.registry.Get(ctx, name)
	if err != nil {
		o.logger.WarnwCtx(ctx, "Provider load failed",
			"provider", name,
			"operation", operation,
			"error", err,
		)
		metrics.ProviderRequestsTotal.WithLabelValues(name, operation, "load_error").Inc()
		return models.ProviderResult{
			Success:  false,
			Error:    err.Error(),
			Duration: time.Since(start),
			Loaded:   false,
		}
	}

	opCtx, cancel := context.WithTimeout(ctx, o.cfg.DispatchTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		// A panicking adapter must not take the whole dispatcher down.
		defer func() {
			if r := recover(); r != nil {
				done <- errors.RecoverPanic(r)
			}
		}()
		done <- call(opCtx, instance)
	}()

	var opErr error
	select {
	case opErr = <-done:
	case <-opCtx.Done():
		opErr = errors.ErrTimeout.
			WithDetail("provider", name).
			WithDetail("operation", operation)
	}

	duration := time.Since(start)
	metrics.ObserveProviderRequestDuration(name, operation, duration)

	if opErr != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(name, operation, "error").Inc()
		o.logger.WarnwCtx(ctx, "Provider dispatch failed",
			"provider", name,
			"operation", operation,
			"duration_ms", duration.Milliseconds(),
			"error", opErr,
		)
		return models.ProviderResult{
			Success:  false,
			Error:    opErr.Error(),
			Duration: duration,
			Loaded:   true,
		}
	}

	metrics.ProviderRequestsTotal.WithLabelValues(name, operation, "success").Inc()
	return models.ProviderResult{
		Success:  true,
		Duration: duration,
		Loaded:   true,
	}
}

// orderByPriority sorts providers by ascending configured priority so
// sequential and failover strategies attempt the most preferred first.
func (o *Orchestrator) orderByPriority(targets []string) []string {
	ordered := make([]string, len(targets))
	copy(ordered, targets)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := o.priority[ordered[i]], o.priority[ordered[j]]
		if pi != pj {
			return pi < pj
		}
		return ordered[i] < ordered[j]
	})
	return ordered
}

// record writes the outcome to the audit store off the hot path.
func (o *Orchestrator) record(operation, eventName, identifier string, result models.ExecutionResult) {
	rec := audit.NewRecord(operation, eventName, identifier, o.cfg.Strategy, result)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := o.audit.Record(ctx, rec); err != nil {
			o.logger.Warnw("Audit record failed",
				"operation", operation,
				"error", err,
			)
		}
	}()
}

// overallSuccess holds when at least one provider accepted the
// operation, or when there was nothing to dispatch.
func overallSuccess(perProvider map[string]models.ProviderResult) bool {
	if len(perProvider) == 0 {
		return true
	}
	for _, pr := range perProvider {
		if pr.Success {
			return true
		}
	}
	return false
}
