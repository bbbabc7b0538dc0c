package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/config"
	"relay/internal/logger"
	"relay/pkg/errors"
	"relay/pkg/models"
)

func testEvent() models.Event {
	return models.Event{
		Name:      "purchase",
		UserID:    "user-1",
		Timestamp: time.Now(),
		Properties: map[string]interface{}{
			"amount": 42.0,
		},
	}
}

func newWebhook(t *testing.T, endpoint string) *WebhookAdapter {
	t.Helper()
	a := NewWebhookAdapter("amplitude", config.ProviderConfig{
		Type:     "webhook",
		Enabled:  true,
		Endpoint: endpoint,
		APIKey:   "key-123",
		Headers:  map[string]string{"X-Tenant": "acme"},
	}, logger.NopLogger())
	require.NoError(t, a.Initialize(context.Background()))
	return a
}

func TestWebhookTrackPostsItem(t *testing.T) {
	var gotAuth, gotTenant string
	var gotItem Item

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotTenant = r.Header.Get("X-Tenant")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotItem))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := newWebhook(t, srv.URL)
	require.NoError(t, a.Track(context.Background(), testEvent()))

	assert.Equal(t, "Bearer key-123", gotAuth)
	assert.Equal(t, "acme", gotTenant)
	assert.Equal(t, "track", gotItem.Operation)
	require.NotNil(t, gotItem.Event)
	assert.Equal(t, "purchase", gotItem.Event.Name)
}

func TestWebhookServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := newWebhook(t, srv.URL)
	err := a.Track(context.Background(), testEvent())
	require.Error(t, err)

	var appErr *errors.Error
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.IsRetryable())
}

func TestWebhookClientErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	a := newWebhook(t, srv.URL)
	err := a.Track(context.Background(), testEvent())
	require.Error(t, err)

	var appErr *errors.Error
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.IsFatal())
	assert.False(t, appErr.IsRetryable())
}

func TestWebhookDisabledIsSilentNoop(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	a := NewWebhookAdapter("amplitude", config.ProviderConfig{
		Type:     "webhook",
		Enabled:  false,
		Endpoint: srv.URL,
	}, logger.NopLogger())
	require.NoError(t, a.Initialize(context.Background()))

	assert.NoError(t, a.Track(context.Background(), testEvent()))
	assert.NoError(t, a.Identify(context.Background(), models.IdentifyPayload{UserID: "u"}))
	assert.Equal(t, int32(0), calls.Load())
}

func TestWebhookInitializeRequiresEndpoint(t *testing.T) {
	a := NewWebhookAdapter("broken", config.ProviderConfig{
		Type:    "webhook",
		Enabled: true,
	}, logger.NopLogger())

	err := a.Initialize(context.Background())
	assert.True(t, errors.Is(err, errors.ErrConstruction))
}

func TestWebhookSendBatchUsesBatchEndpoint(t *testing.T) {
	var batchCalls, itemCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/batch", func(w http.ResponseWriter, r *http.Request) {
		batchCalls.Add(1)
		var payload struct {
			Batch []Item `json:"batch"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Len(t, payload.Batch, 2)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		itemCalls.Add(1)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := NewWebhookAdapter("amplitude", config.ProviderConfig{
		Type:          "webhook",
		Enabled:       true,
		Endpoint:      srv.URL,
		BatchEndpoint: srv.URL + "/batch",
	}, logger.NopLogger())
	require.NoError(t, a.Initialize(context.Background()))

	items := []Item{TrackItem(testEvent()), PageItem(models.PagePayload{Name: "Home", UserID: "u"})}
	require.NoError(t, a.SendBatch(context.Background(), items))

	assert.Equal(t, int32(1), batchCalls.Load())
	assert.Equal(t, int32(0), itemCalls.Load())
}

func TestWebhookDestroyIsIdempotent(t *testing.T) {
	a := newWebhook(t, "http://localhost:0")
	require.NoError(t, a.Destroy(context.Background()))
	require.NoError(t, a.Destroy(context.Background()))
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		wantErr   bool
		retryable bool
	}{
		{"ok", 200, false, false},
		{"created", 201, false, false},
		{"bad request", 400, true, false},
		{"unauthorized", 401, true, false},
		{"request timeout", 408, true, true},
		{"too many requests", 429, true, true},
		{"server error", 500, true, true},
		{"gateway timeout", 504, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyStatus(tt.code)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var appErr *errors.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.retryable, appErr.IsRetryable())
		})
	}
}
