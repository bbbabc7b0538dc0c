package router

import (
	"fmt"
	"regexp"
	"time"

	"relay/internal/constants"
	"relay/pkg/errors"
)

// Condition is a conjunction: every populated field must match for the
// rule to apply. An empty condition matches every event.
type Condition struct {
	EventNames     []string               `json:"event_names,omitempty"`
	EventNameRegex string                 `json:"event_name_regex,omitempty"`
	UserIDs        []string               `json:"user_ids,omitempty"`
	UserSegment    string                 `json:"user_segment,omitempty"`
	Properties     map[string]interface{} `json:"properties,omitempty"`
	Expression     string                 `json:"expression,omitempty"`
}

// Target names the providers a matched rule acts on. Weight below 100
// applies the rule to only that percentage of matching traffic.
type Target struct {
	Providers []string `json:"providers"`
	Action    string   `json:"action"`
	Weight    int      `json:"weight,omitempty"`
}

type RoutingRule struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Condition Condition `json:"condition"`
	Target    Target    `json:"target"`
	Priority  int       `json:"priority"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

func (r RoutingRule) Validate() error {
	if r.Name == "" {
		return errors.ErrValidation.WithDetail("message", "rule name is required")
	}
	switch r.Target.Action {
	case constants.ActionRouteTo, constants.ActionExcludeFrom, constants.ActionDuplicateTo:
	default:
		return errors.ErrValidation.WithDetail("message",
			fmt.Sprintf("unknown action %q", r.Target.Action))
	}
	if len(r.Target.Providers) == 0 {
		return errors.ErrValidation.WithDetail("message", "rule target needs at least one provider")
	}
	if r.Target.Weight < 0 || r.Target.Weight > 100 {
		return errors.ErrValidation.WithDetail("message", "weight must be between 0 and 100")
	}
	if r.Condition.EventNameRegex != "" {
		if _, err := regexp.Compile(r.Condition.EventNameRegex); err != nil {
			return errors.ErrValidation.
				WithDetail("message", "invalid event name regex").
				WithCause(err)
		}
	}
	return nil
}

// compiledRule carries the precompiled regex so matching never compiles
// on the hot path.
type compiledRule struct {
	RoutingRule
	nameRegex *regexp.Regexp
}

func compileRule(rule RoutingRule) (compiledRule, error) {
	out := compiledRule{RoutingRule: rule}
	if rule.Condition.EventNameRegex != "" {
		re, err := regexp.Compile(rule.Condition.EventNameRegex)
		if err != nil {
			return compiledRule{}, fmt.Errorf("rule %q: invalid regex: %w", rule.Name, err)
		}
		out.nameRegex = re
	}
	return out, nil
}
