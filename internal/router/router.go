package router

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"reflect"
	"sort"
	"sync"

	"relay/internal/config"
	"relay/internal/constants"
	"relay/internal/logger"
	"relay/pkg/cel"
	"relay/pkg/errors"
	"relay/pkg/metrics"
	"relay/pkg/models"
)

// Router selects, per event, which providers receive it. Rules are held
// in memory and evaluated in descending priority order; every rule-set
// mutation invalidates the decision cache.
type Router struct {
	mu       sync.RWMutex
	rules    []compiledRule
	defaults []string
	fallback string

	evaluator *cel.Evaluator
	cache     *decisionCache
	logger    logger.Logger

	// seed keeps weighted bucketing stable across restarts and
	// deterministic in tests.
	seed  string
	rngMu sync.Mutex
	rng   *rand.Rand
}

type Options struct {
	DefaultProviders []string
	Fallback         string
	Seed             string
	RandSource       rand.Source
}

func New(opts Options, log logger.Logger) (*Router, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	fallback := opts.Fallback
	if fallback == "" {
		fallback = constants.FallbackDefaults
	}
	src := opts.RandSource
	if src == nil {
		src = rand.NewSource(int64(fnvHash(opts.Seed)))
	}

	return &Router{
		defaults:  opts.DefaultProviders,
		fallback:  fallback,
		evaluator: evaluator,
		cache:     newDecisionCache(),
		logger:    log,
		seed:      opts.Seed,
		rng:       rand.New(src),
	}, nil
}

// NewFromConfig builds a router from the service configuration.
func NewFromConfig(cfg *config.Config, log logger.Logger) (*Router, error) {
	return New(Options{
		DefaultProviders: cfg.Orchestrator.DefaultProviders,
		Fallback:         cfg.Routing.Fallback.OnEmpty,
	}, log)
}

// Route narrows the available provider set for one event. It never
// fails: an unevaluable rule is skipped and logged.
func (r *Router) Route(ctx context.Context, event models.Event, available []string) models.RouteDecision {
	key := cacheKey(event, available)
	if decision, ok := r.cache.Get(key); ok {
		metrics.RoutingDecisionsTotal.WithLabelValues("cache").Inc()
		return decision
	}

	decision := r.compute(ctx, event, available)
	r.cache.Set(key, decision)
	metrics.RoutingDecisionsTotal.WithLabelValues("computed").Inc()
	return decision
}

func (r *Router) compute(ctx context.Context, event models.Event, available []string) models.RouteDecision {
	r.mu.RLock()
	rules := make([]compiledRule, len(r.rules))
	copy(rules, r.rules)
	defaults := r.defaults
	fallback := r.fallback
	r.mu.RUnlock()

	target := intersect(defaults, available)
	if len(defaults) == 0 {
		target = append([]string(nil), available...)
	}

	decision := models.RouteDecision{
		AppliedRules: []string{},
		Excluded:     []string{},
	}

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		matched, err := r.matches(ctx, rule, event)
		if err != nil {
			r.logger.WarnwCtx(ctx, "Skipping unevaluable rule",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
				"error", err,
			)
			continue
		}
		if !matched {
			continue
		}
		if !r.weightApplies(rule, event) {
			continue
		}

		decision.AppliedRules = append(decision.AppliedRules, rule.Name)
		metrics.IncRoutingRuleMatch(rule.Name, rule.Target.Action)

		switch rule.Target.Action {
		case constants.ActionRouteTo:
			target = intersect(rule.Target.Providers, available)
		case constants.ActionExcludeFrom:
			var excluded []string
			target, excluded = subtract(target, rule.Target.Providers)
			decision.Excluded = append(decision.Excluded, excluded...)
		case constants.ActionDuplicateTo:
			target = union(target, intersect(rule.Target.Providers, available))
		}
	}

	if len(target) == 0 {
		switch fallback {
		case constants.FallbackAll:
			metrics.FallbackUsageTotal.WithLabelValues("router", "all", "empty_target").Inc()
			target = append([]string(nil), available...)
		case constants.FallbackDefaults:
			metrics.FallbackUsageTotal.WithLabelValues("router", "defaults", "empty_target").Inc()
			target = intersect(defaults, available)
		case constants.FallbackNone:
			// Empty target is a valid outcome.
		}
	}

	decision.TargetProviders = target
	return decision
}

// matches checks every populated condition field; all must hold.
func (r *Router) matches(ctx context.Context, rule compiledRule, event models.Event) (bool, error) {
	cond := rule.Condition

	if len(cond.EventNames) > 0 && !contains(cond.EventNames, event.Name) {
		return false, nil
	}
	if rule.nameRegex != nil && !rule.nameRegex.MatchString(event.Name) {
		return false, nil
	}
	if len(cond.UserIDs) > 0 && !contains(cond.UserIDs, event.Identifier()) {
		return false, nil
	}
	if cond.UserSegment != "" && cond.UserSegment != event.UserSegment() {
		return false, nil
	}
	for key, want := range cond.Properties {
		got, ok := event.Properties[key]
		if !ok || !propertyEquals(want, got) {
			return false, nil
		}
	}
	if cond.Expression != "" {
		matched, err := r.evaluator.EvaluatePredicate(ctx, cond.Expression, event)
		if err != nil {
			return false, err
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

// weightApplies decides the A/B arm. Users are pinned to a stable bucket
// per rule; events without an identifier fall back to the router's RNG.
func (r *Router) weightApplies(rule compiledRule, event models.Event) bool {
	weight := rule.Target.Weight
	if weight <= 0 || weight >= 100 {
		return true
	}

	id := event.Identifier()
	if id == "" {
		r.rngMu.Lock()
		draw := r.rng.Intn(100)
		r.rngMu.Unlock()
		return draw < weight
	}

	bucket := fnvHash(r.seed+rule.Name+id) % 100
	return int(bucket) < weight
}

// ValidateRule checks a rule without touching the active set. The
// management API calls it before persisting.
func (r *Router) ValidateRule(rule RoutingRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.Condition.Expression != "" {
		if err := r.evaluator.ValidatePredicate(rule.Condition.Expression); err != nil {
			return errors.ErrValidation.
				WithDetail("message", "invalid rule expression").
				WithCause(err)
		}
	}
	if _, err := compileRule(rule); err != nil {
		return errors.ErrValidation.WithCause(err)
	}
	return nil
}

// AddRule appends a rule and invalidates the cache.
func (r *Router) AddRule(rule RoutingRule) error {
	if err := r.ValidateRule(rule); err != nil {
		return err
	}
	compiled, err := compileRule(rule)
	if err != nil {
		return errors.ErrValidation.WithCause(err)
	}

	r.mu.Lock()
	r.rules = append(r.rules, compiled)
	r.sortLocked()
	count := len(r.rules)
	r.mu.Unlock()

	r.invalidate(count)
	return nil
}

func (r *Router) RemoveRule(id string) error {
	r.mu.Lock()
	idx := r.indexLocked(id)
	if idx < 0 {
		r.mu.Unlock()
		return errors.ErrNotFound.WithDetail("rule_id", id)
	}
	r.rules = append(r.rules[:idx], r.rules[idx+1:]...)
	count := len(r.rules)
	r.mu.Unlock()

	r.invalidate(count)
	return nil
}

func (r *Router) UpdateRule(rule RoutingRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	compiled, err := compileRule(rule)
	if err != nil {
		return errors.ErrValidation.WithCause(err)
	}

	r.mu.Lock()
	idx := r.indexLocked(rule.ID)
	if idx < 0 {
		r.mu.Unlock()
		return errors.ErrNotFound.WithDetail("rule_id", rule.ID)
	}
	r.rules[idx] = compiled
	r.sortLocked()
	count := len(r.rules)
	r.mu.Unlock()

	r.invalidate(count)
	return nil
}

func (r *Router) SetRuleEnabled(id string, enabled bool) error {
	r.mu.Lock()
	idx := r.indexLocked(id)
	if idx < 0 {
		r.mu.Unlock()
		return errors.ErrNotFound.WithDetail("rule_id", id)
	}
	r.rules[idx].Enabled = enabled
	count := len(r.rules)
	r.mu.Unlock()

	r.invalidate(count)
	return nil
}

// ReplaceRules swaps the whole rule set, dropping rules that fail to
// compile. Used by the periodic reloader.
func (r *Router) ReplaceRules(ctx context.Context, rules []RoutingRule) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		c, err := compileRule(rule)
		if err != nil {
			r.logger.WarnwCtx(ctx, "Dropping uncompilable rule",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
				"error", err,
			)
			continue
		}
		compiled = append(compiled, c)
	}

	r.mu.Lock()
	r.rules = compiled
	r.sortLocked()
	count := len(r.rules)
	r.mu.Unlock()

	r.invalidate(count)
	r.logger.InfowCtx(ctx, "Replaced routing rules", "rules_count", count)
}

func (r *Router) Rules() []RoutingRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoutingRule, len(r.rules))
	for i, rule := range r.rules {
		out[i] = rule.RoutingRule
	}
	return out
}

func (r *Router) invalidate(activeCount int) {
	r.cache.Clear()
	metrics.SetRoutingActiveRules(activeCount)
}

func (r *Router) indexLocked(id string) int {
	for i, rule := range r.rules {
		if rule.ID == id {
			return i
		}
	}
	return -1
}

func (r *Router) sortLocked() {
	sort.SliceStable(r.rules, func(i, j int) bool {
		if r.rules[i].Priority != r.rules[j].Priority {
			return r.rules[i].Priority > r.rules[j].Priority
		}
		return r.rules[i].CreatedAt.Before(r.rules[j].CreatedAt)
	})
}

// propertyEquals compares property values with numeric widening, since
// JSON decoding turns every number into float64.
func propertyEquals(want, got interface{}) bool {
	if wf, ok := toFloat(want); ok {
		gf, ok2 := toFloat(got)
		return ok2 && wf == gf
	}
	return reflect.DeepEqual(want, got)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func fnvHash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	out := make([]string, 0, len(a))
	for _, v := range a {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, v := range a {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	for _, v := range b {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// subtract returns a without members of b, plus which members were
// actually removed.
func subtract(a, b []string) ([]string, []string) {
	drop := make(map[string]struct{}, len(b))
	for _, v := range b {
		drop[v] = struct{}{}
	}
	kept := make([]string, 0, len(a))
	var removed []string
	for _, v := range a {
		if _, ok := drop[v]; ok {
			removed = append(removed, v)
			continue
		}
		kept = append(kept, v)
	}
	return kept, removed
}
