package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/config"
	"relay/internal/constants"
	"relay/internal/router"
	"relay/pkg/errors"
	"relay/pkg/models"
)

func relayReloadConfig() config.ReloadConfig {
	return config.ReloadConfig{IntervalSeconds: 1}
}

func orderRule(name string, priority int, providers ...string) *router.RoutingRule {
	return &router.RoutingRule{
		Name: name,
		Condition: router.Condition{
			EventNames: []string{"Order Completed"},
		},
		Target: router.Target{
			Providers: providers,
			Action:    constants.ActionRouteTo,
		},
		Priority: priority,
		Enabled:  true,
	}
}

func TestRuleRepositoryCRUD(t *testing.T) {
	infra := SetupPostgres(t)
	repo := router.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	rule := orderRule("orders to mixpanel", 10, "mixpanel")
	require.NoError(t, repo.CreateRule(ctx, rule))
	require.NotEmpty(t, rule.ID)
	require.False(t, rule.CreatedAt.IsZero())

	fetched, err := repo.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule.Name, fetched.Name)
	assert.Equal(t, []string{"Order Completed"}, fetched.Condition.EventNames)
	assert.Equal(t, []string{"mixpanel"}, fetched.Target.Providers)

	fetched.Target.Providers = []string{"mixpanel", "amplitude"}
	fetched.Priority = 20
	require.NoError(t, repo.UpdateRule(ctx, fetched))

	updated, err := repo.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, updated.Priority)
	assert.Len(t, updated.Target.Providers, 2)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	require.NoError(t, repo.SetEnabled(ctx, rule.ID, false))
	disabled, err := repo.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.False(t, disabled.Enabled)

	require.NoError(t, repo.DeleteRule(ctx, rule.ID))
	_, err = repo.GetRule(ctx, rule.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestRuleRepositoryRejectsDuplicateName(t *testing.T) {
	infra := SetupPostgres(t)
	repo := router.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	require.NoError(t, repo.CreateRule(ctx, orderRule("unique name", 1, "mixpanel")))

	err := repo.CreateRule(ctx, orderRule("unique name", 2, "amplitude"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestRuleRepositoryActiveRulesOrdering(t *testing.T) {
	infra := SetupPostgres(t)
	repo := router.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	low := orderRule("low priority", 1, "mixpanel")
	high := orderRule("high priority", 100, "amplitude")
	off := orderRule("disabled rule", 50, "segment")
	off.Enabled = false

	require.NoError(t, repo.CreateRule(ctx, low))
	require.NoError(t, repo.CreateRule(ctx, high))
	require.NoError(t, repo.CreateRule(ctx, off))

	active, err := repo.GetActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "high priority", active[0].Name)
	assert.Equal(t, "low priority", active[1].Name)

	all, err := repo.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestReloaderAppliesPersistedRules(t *testing.T) {
	infra := SetupPostgres(t)
	repo := router.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	require.NoError(t, repo.CreateRule(ctx, orderRule("orders to mixpanel", 10, "mixpanel")))

	rt, err := router.New(router.Options{}, createTestLogger())
	require.NoError(t, err)

	reloader := router.NewReloader(repo, rt, relayReloadConfig(), createTestLogger())
	require.NoError(t, reloader.Reload(ctx, true))
	require.Len(t, rt.Rules(), 1)

	decision := rt.Route(ctx, models.Event{
		Name:      "Order Completed",
		UserID:    "user-1",
		Timestamp: time.Now(),
	}, []string{"mixpanel", "amplitude"})
	assert.Equal(t, []string{"mixpanel"}, decision.TargetProviders)
}
