package config

import (
	"fmt"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateProviders(cfg.Providers); err != nil {
		errors = append(errors, err)
	}

	if err := validateOrchestrator(cfg); err != nil {
		errors = append(errors, err)
	}

	if err := validateRouting(cfg.Routing); err != nil {
		errors = append(errors, err)
	}

	if err := validateBatching(cfg.Batching); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateProviders(providers map[string]ProviderConfig) error {
	if len(providers) == 0 {
		return &ValidationError{
			Field:   "providers",
			Message: "at least one provider must be configured",
		}
	}

	for name, p := range providers {
		switch p.Type {
		case "webhook":
			if p.Enabled && p.Endpoint == "" {
				return &ValidationError{
					Field:   fmt.Sprintf("providers.%s.endpoint", name),
					Message: "webhook providers require an endpoint",
				}
			}
		case "kafka":
			if p.Enabled && len(p.Brokers) == 0 {
				return &ValidationError{
					Field:   fmt.Sprintf("providers.%s.brokers", name),
					Message: "kafka providers require at least one broker",
				}
			}
			if p.Enabled && p.Topic == "" {
				return &ValidationError{
					Field:   fmt.Sprintf("providers.%s.topic", name),
					Message: "kafka providers require a topic",
				}
			}
		default:
			return &ValidationError{
				Field:   fmt.Sprintf("providers.%s.type", name),
				Message: fmt.Sprintf("unknown provider type: %s (supported: webhook, kafka)", p.Type),
			}
		}

		if p.BatchSize < 0 {
			return &ValidationError{
				Field:   fmt.Sprintf("providers.%s.batch_size", name),
				Message: "batch_size must be non-negative",
			}
		}
	}

	return nil
}

func validateOrchestrator(cfg *Config) error {
	switch cfg.Orchestrator.Strategy {
	case "parallel", "sequential", "failover":
	default:
		return &ValidationError{
			Field:   "orchestrator.strategy",
			Message: fmt.Sprintf("unknown strategy: %s (supported: parallel, sequential, failover)", cfg.Orchestrator.Strategy),
		}
	}

	if cfg.Orchestrator.DispatchTimeout < 0 {
		return &ValidationError{
			Field:   "orchestrator.dispatch_timeout",
			Message: "dispatch_timeout must be non-negative",
		}
	}

	for i, name := range cfg.Orchestrator.DefaultProviders {
		if _, ok := cfg.Providers[name]; !ok {
			return &ValidationError{
				Field:   fmt.Sprintf("orchestrator.default_providers[%d]", i),
				Message: fmt.Sprintf("unknown provider: %s", name),
			}
		}
	}

	return nil
}

func validateRouting(cfg RoutingConfig) error {
	switch cfg.Fallback.OnEmpty {
	case "all", "defaults", "none":
	default:
		return &ValidationError{
			Field:   "routing.fallback.on_empty",
			Message: fmt.Sprintf("unknown fallback policy: %s (supported: all, defaults, none)", cfg.Fallback.OnEmpty),
		}
	}

	if cfg.Reload.IntervalSeconds < 0 {
		return &ValidationError{
			Field:   "routing.reload.interval_seconds",
			Message: "interval_seconds must be non-negative",
		}
	}

	return nil
}

func validateBatching(cfg BatchingConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.MaxSize <= 0 {
		return &ValidationError{
			Field:   "batching.max_size",
			Message: "max_size must be positive when batching is enabled",
		}
	}

	if cfg.FlushInterval <= 0 {
		return &ValidationError{
			Field:   "batching.flush_interval",
			Message: "flush_interval must be positive when batching is enabled",
		}
	}

	if cfg.ItemRetryCap < 0 {
		return &ValidationError{
			Field:   "batching.item_retry_cap",
			Message: "item_retry_cap must be non-negative",
		}
	}

	return nil
}
