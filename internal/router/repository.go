package router

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"relay/pkg/errors"
)

// Repository persists routing rules. The router itself is storage
// agnostic; the service wires this to the reloader.
type Repository interface {
	GetActiveRules(ctx context.Context) ([]RoutingRule, error)
	ListRules(ctx context.Context) ([]RoutingRule, error)
	GetRule(ctx context.Context, id string) (*RoutingRule, error)
	CreateRule(ctx context.Context, rule *RoutingRule) error
	UpdateRule(ctx context.Context, rule *RoutingRule) error
	DeleteRule(ctx context.Context, id string) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const ruleColumns = `id, name, condition, target, priority, enabled, created_at, updated_at`

func (r *PostgresRepository) GetActiveRules(ctx context.Context) ([]RoutingRule, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM routing_rules
		WHERE enabled = true
		ORDER BY priority DESC, created_at ASC
	`, ruleColumns)
	return r.queryRules(ctx, query)
}

func (r *PostgresRepository) ListRules(ctx context.Context) ([]RoutingRule, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM routing_rules
		ORDER BY priority DESC, created_at ASC
	`, ruleColumns)
	return r.queryRules(ctx, query)
}

func (r *PostgresRepository) GetRule(ctx context.Context, id string) (*RoutingRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM routing_rules WHERE id = $1`, ruleColumns)

	rule, err := scanRule(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound.WithDetail("rule_id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

func (r *PostgresRepository) CreateRule(ctx context.Context, rule *RoutingRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	condition, target, err := marshalRule(rule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO routing_rules (id, name, condition, target, priority, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.Name, condition, target, rule.Priority, rule.Enabled, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return errors.ErrConflict.
				WithCause(err).
				WithDetail("message", fmt.Sprintf("rule with name %q already exists", rule.Name))
		}
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateRule(ctx context.Context, rule *RoutingRule) error {
	rule.UpdatedAt = time.Now().UTC()

	condition, target, err := marshalRule(rule)
	if err != nil {
		return err
	}

	query := `
		UPDATE routing_rules
		SET name = $2, condition = $3, target = $4, priority = $5, enabled = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		rule.ID, rule.Name, condition, target, rule.Priority, rule.Enabled, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return requireRowAffected(result, rule.ID)
}

func (r *PostgresRepository) DeleteRule(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM routing_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return requireRowAffected(result, id)
}

func (r *PostgresRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE routing_rules SET enabled = $2, updated_at = $3 WHERE id = $1`,
		id, enabled, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update rule state: %w", err)
	}
	return requireRowAffected(result, id)
}

func (r *PostgresRepository) queryRules(ctx context.Context, query string) ([]RoutingRule, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []RoutingRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return rules, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*RoutingRule, error) {
	var rule RoutingRule
	var condition, target []byte

	if err := row.Scan(
		&rule.ID,
		&rule.Name,
		&condition,
		&target,
		&rule.Priority,
		&rule.Enabled,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(condition, &rule.Condition); err != nil {
		return nil, fmt.Errorf("failed to unmarshal condition: %w", err)
	}
	if err := json.Unmarshal(target, &rule.Target); err != nil {
		return nil, fmt.Errorf("failed to unmarshal target: %w", err)
	}
	return &rule, nil
}

func marshalRule(rule *RoutingRule) ([]byte, []byte, error) {
	condition, err := json.Marshal(rule.Condition)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal condition: %w", err)
	}
	target, err := json.Marshal(rule.Target)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal target: %w", err)
	}
	return condition, target, nil
}

func requireRowAffected(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return errors.ErrNotFound.WithDetail("rule_id", id)
	}
	return nil
}
