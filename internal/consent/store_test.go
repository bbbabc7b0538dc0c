package consent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/pkg/models"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	got, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, got, "unknown identifier has no record")

	status := models.ConsentStatus{
		Granted:    true,
		Categories: map[string]bool{"analytics": true, "advertising": false},
		Timestamp:  time.Now(),
	}
	require.NoError(t, s.Set(ctx, "user-1", status))

	got, err = s.Get(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Granted)
	assert.True(t, got.Allows("analytics"))
	assert.False(t, got.Allows("advertising"))

	require.NoError(t, s.Delete(ctx, "user-1"))
	got, err = s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "user-1", models.ConsentStatus{
		Granted:    true,
		Categories: map[string]bool{"analytics": true},
	}))

	got, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	got.Categories["analytics"] = false

	again, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, again.Allows("analytics"), "mutating a returned record must not affect the store")
}
