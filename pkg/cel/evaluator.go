package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"relay/pkg/models"
)

// Evaluator compiles and runs routing predicates written in CEL against
// an event. The environment exposes the event's stable surface; provider
// specific data never appears here.
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("userId", cel.StringType),
		cel.Variable("anonymousId", cel.StringType),
		cel.Variable("userSegment", cel.StringType),
		cel.Variable("timestamp", cel.TimestampType),
		cel.Variable("properties", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("context", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

// ValidatePredicate additionally requires the expression to yield a bool.
func (e *Evaluator) ValidatePredicate(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("predicate expression must return bool, got %v", ast.OutputType())
	}

	return nil
}

// EvaluatePredicate runs a boolean predicate against an event.
func (e *Evaluator) EvaluatePredicate(ctx context.Context, expression string, event models.Event) (bool, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return false, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return false, fmt.Errorf("predicate expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return false, fmt.Errorf("failed to create CEL program: %w", err)
	}

	result, _, err := program.ContextEval(ctx, e.eventVars(event))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

func (e *Evaluator) CompileExpression(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}

func (e *Evaluator) eventVars(event models.Event) map[string]interface{} {
	props := event.Properties
	if props == nil {
		props = map[string]interface{}{}
	}

	return map[string]interface{}{
		"name":        event.Name,
		"userId":      event.UserID,
		"anonymousId": event.AnonymousID,
		"userSegment": event.UserSegment(),
		"timestamp":   event.Timestamp,
		"properties":  props,
		"context":     e.contextToMap(event.Context),
	}
}

func (e *Evaluator) contextToMap(evctx *models.EventContext) map[string]interface{} {
	result := make(map[string]interface{})
	if evctx == nil {
		return result
	}

	if evctx.Page != nil {
		result["page"] = map[string]interface{}{
			"url":      evctx.Page.URL,
			"path":     evctx.Page.Path,
			"title":    evctx.Page.Title,
			"referrer": evctx.Page.Referrer,
		}
	}

	if evctx.User != nil {
		result["user"] = map[string]interface{}{
			"email":  evctx.User.Email,
			"ip":     evctx.User.IP,
			"locale": evctx.User.Locale,
		}
	}

	if evctx.Device != nil {
		result["device"] = map[string]interface{}{
			"user_agent": evctx.Device.UserAgent,
			"os":         evctx.Device.OS,
			"type":       evctx.Device.Type,
		}
	}

	if evctx.Campaign != nil {
		result["campaign"] = map[string]interface{}{
			"source": evctx.Campaign.Source,
			"medium": evctx.Campaign.Medium,
			"name":   evctx.Campaign.Name,
		}
	}

	if evctx.Session != nil {
		result["session"] = map[string]interface{}{
			"id": evctx.Session.ID,
		}
	}

	return result
}
