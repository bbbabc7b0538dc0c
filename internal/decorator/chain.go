package decorator

import (
	"relay/internal/adapter"
	"relay/internal/config"
	"relay/internal/consent"
	"relay/internal/logger"
	"relay/pkg/circuitbreaker"
	"relay/pkg/retry"
)

// Compose wraps a base adapter with the configured resilience layers.
// Composition order is privacy, then batching, then retry/breaker, then
// the base adapter: consent decisions happen before anything is buffered
// or touches the network, and every network attempt is counted by the
// breaker.
func Compose(base adapter.Adapter, cfg *config.Config, providerCfg config.ProviderConfig, store consent.Store, log logger.Logger) adapter.Adapter {
	wrapped := base

	wrapped = NewRetryBreaker(wrapped, policyFrom(cfg.Retry), breakerFor(base.Name(), cfg.CircuitBreaker), log)

	if cfg.Batching.Enabled {
		wrapped = NewBatching(wrapped, batchingFor(cfg.Batching, providerCfg), log)
	}

	if store != nil {
		wrapped = NewPrivacy(wrapped, cfg.Privacy, providerCfg.Category, store, log)
	}

	return wrapped
}

func policyFrom(cfg config.RetryConfig) retry.Policy {
	policy := retry.DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		policy.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		policy.MaxInterval = cfg.MaxInterval
	}
	if cfg.Multiplier > 0 {
		policy.Multiplier = cfg.Multiplier
	}
	if cfg.MaxElapsedTime > 0 {
		policy.MaxElapsedTime = cfg.MaxElapsedTime
	}
	return policy
}

func breakerFor(name string, cfg config.CircuitBreakerConfig) *circuitbreaker.Wrapper {
	if !cfg.Enabled {
		return nil
	}

	bc := circuitbreaker.DefaultConfig(name)
	if cfg.MaxRequests > 0 {
		bc.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		bc.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		bc.Timeout = cfg.Timeout
	}
	if cfg.FailureThreshold > 0 {
		bc.FailureThreshold = cfg.FailureThreshold
	}
	return circuitbreaker.NewWrapper(bc)
}

// batchingFor applies per-provider overrides to the global batching
// defaults.
func batchingFor(cfg config.BatchingConfig, providerCfg config.ProviderConfig) config.BatchingConfig {
	out := cfg
	if providerCfg.BatchSize > 0 {
		out.MaxSize = providerCfg.BatchSize
	}
	if providerCfg.FlushInterval > 0 {
		out.FlushInterval = providerCfg.FlushInterval
	}
	return out
}
