package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/consent"
	"relay/pkg/models"
)

func TestRedisConsentStoreRoundTrip(t *testing.T) {
	infra := SetupRedis(t)
	store := consent.NewRedisStore(infra.RedisClient, 0)
	ctx := context.Background()

	missing, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, missing, "absent record reads as nil, not an error")

	status := models.ConsentStatus{
		Granted: true,
		Categories: map[string]bool{
			"analytics": true,
			"ads":       false,
		},
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, store.Set(ctx, "user-1", status))

	fetched, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.True(t, fetched.Granted)
	assert.True(t, fetched.Allows("analytics"))
	assert.False(t, fetched.Allows("ads"))

	require.NoError(t, store.Delete(ctx, "user-1"))
	deleted, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, deleted)
}

func TestRedisConsentStoreTTL(t *testing.T) {
	infra := SetupRedis(t)
	store := consent.NewRedisStore(infra.RedisClient, 500*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "user-2", models.ConsentStatus{Granted: true}))

	assert.Eventually(t, func() bool {
		status, err := store.Get(ctx, "user-2")
		return err == nil && status == nil
	}, 5*time.Second, 100*time.Millisecond, "record expires after the TTL")
}
