package models

import "time"

// ProviderResult records the outcome of dispatching one operation to one
// provider. Loaded distinguishes "adapter construction failed" from
// "adapter constructed but the operation failed".
type ProviderResult struct {
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ms"`
	Loaded   bool          `json:"loaded"`
}

// ExecutionResult aggregates per-provider outcomes for a single dispatch.
// It is produced fresh per operation and never mutated afterwards.
type ExecutionResult struct {
	Success     bool                      `json:"success"`
	PerProvider map[string]ProviderResult `json:"per_provider"`
	Duration    time.Duration             `json:"total_duration_ms"`
}

// Succeeded reports whether the named provider accepted the operation.
func (r ExecutionResult) Succeeded(provider string) bool {
	pr, ok := r.PerProvider[provider]
	return ok && pr.Success
}

// RouteDecision is the router's answer for a single event: which providers
// receive it, which rules fired, and which providers a rule excluded.
type RouteDecision struct {
	TargetProviders []string `json:"target_providers"`
	AppliedRules    []string `json:"applied_rules,omitempty"`
	Excluded        []string `json:"excluded,omitempty"`
}
