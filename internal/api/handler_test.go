package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/consent"
	"relay/internal/logger"
	"relay/internal/router"
	"relay/pkg/models"
)

type stubDispatcher struct {
	lastCtx   context.Context
	lastEvent models.Event
	calls     map[string]int
}

func newStubDispatcher() *stubDispatcher {
	return &stubDispatcher{calls: make(map[string]int)}
}

func (s *stubDispatcher) result() models.ExecutionResult {
	return models.ExecutionResult{
		Success: true,
		PerProvider: map[string]models.ProviderResult{
			"mixpanel": {Success: true, Loaded: true},
		},
	}
}

func (s *stubDispatcher) Track(ctx context.Context, event models.Event) models.ExecutionResult {
	s.calls["track"]++
	s.lastCtx = ctx
	s.lastEvent = event
	return s.result()
}

func (s *stubDispatcher) Identify(ctx context.Context, payload models.IdentifyPayload) models.ExecutionResult {
	s.calls["identify"]++
	s.lastCtx = ctx
	return s.result()
}

func (s *stubDispatcher) Group(ctx context.Context, payload models.GroupPayload) models.ExecutionResult {
	s.calls["group"]++
	s.lastCtx = ctx
	return s.result()
}

func (s *stubDispatcher) Page(ctx context.Context, payload models.PagePayload) models.ExecutionResult {
	s.calls["page"]++
	s.lastCtx = ctx
	return s.result()
}

func newIngestServer(t *testing.T) (*gin.Engine, *stubDispatcher) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	dispatcher := newStubDispatcher()
	NewIngestHandler(dispatcher, logger.NopLogger()).RegisterRoutes(engine)
	return engine, dispatcher
}

func postJSON(engine *gin.Engine, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestTrackDispatchesValidEvent(t *testing.T) {
	engine, dispatcher := newIngestServer(t)

	rec := postJSON(engine, "/api/v1/track", map[string]interface{}{
		"name":    "Order Completed",
		"user_id": "user-1",
		"properties": map[string]interface{}{
			"amount": 99.5,
		},
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, dispatcher.calls["track"])
	assert.Equal(t, "Order Completed", dispatcher.lastEvent.Name)
	assert.False(t, dispatcher.lastEvent.Timestamp.IsZero(), "timestamp defaults to now")

	var result models.ExecutionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Contains(t, result.PerProvider, "mixpanel")
}

func TestTrackRejectsEventWithoutIdentifier(t *testing.T) {
	engine, dispatcher := newIngestServer(t)

	rec := postJSON(engine, "/api/v1/track", map[string]interface{}{
		"name": "Order Completed",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, dispatcher.calls["track"])
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestTrackThreadsDoNotTrackHeader(t *testing.T) {
	engine, dispatcher := newIngestServer(t)

	rec := postJSON(engine, "/api/v1/track", map[string]interface{}{
		"name":    "Page Scrolled",
		"user_id": "user-1",
	}, map[string]string{"DNT": "1"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, consent.IsDoNotTrack(dispatcher.lastCtx))
}

func TestIdentifyRequiresUserID(t *testing.T) {
	engine, dispatcher := newIngestServer(t)

	rec := postJSON(engine, "/api/v1/identify", map[string]interface{}{
		"traits": map[string]interface{}{"plan": "pro"},
	}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, dispatcher.calls["identify"])
}

func TestGroupAndPageDispatch(t *testing.T) {
	engine, dispatcher := newIngestServer(t)

	rec := postJSON(engine, "/api/v1/group", map[string]interface{}{
		"group_id": "acme",
		"user_id":  "user-1",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(engine, "/api/v1/page", map[string]interface{}{
		"name":    "Pricing",
		"user_id": "user-1",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1, dispatcher.calls["group"])
	assert.Equal(t, 1, dispatcher.calls["page"])
}

func newRulesServer(t *testing.T) (*gin.Engine, *router.Router) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rt, err := router.New(router.Options{}, logger.NopLogger())
	require.NoError(t, err)

	engine := gin.New()
	NewRulesHandler(rt, nil, nil, logger.NopLogger()).RegisterRoutes(engine)
	return engine, rt
}

func TestRulesCRUDWithoutRepository(t *testing.T) {
	engine, rt := newRulesServer(t)

	rec := postJSON(engine, "/api/v1/rules/routing", map[string]interface{}{
		"name": "orders to mixpanel",
		"condition": map[string]interface{}{
			"event_names": []string{"Order Completed"},
		},
		"target": map[string]interface{}{
			"providers": []string{"mixpanel"},
			"action":    "route_to",
		},
		"priority": 10,
		"enabled":  true,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created router.RoutingRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	require.Len(t, rt.Rules(), 1)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules/routing/"+created.ID, nil)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/api/v1/rules/routing/"+created.ID+"/enabled",
		bytes.NewReader([]byte(`{"enabled": false}`)))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/rules/routing/"+created.ID, nil)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rt.Rules())
}

func TestCreateRuleRejectsInvalidExpression(t *testing.T) {
	engine, rt := newRulesServer(t)

	rec := postJSON(engine, "/api/v1/rules/routing", map[string]interface{}{
		"name": "broken",
		"condition": map[string]interface{}{
			"expression": "this is not CEL ((",
		},
		"target": map[string]interface{}{
			"providers": []string{"mixpanel"},
			"action":    "route_to",
		},
		"enabled": true,
	}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rt.Rules())
}

func TestConsentEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := consent.NewMemoryStore()
	engine := gin.New()
	NewConsentHandler(store, logger.NopLogger()).RegisterRoutes(engine)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/consent/user-1", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/api/v1/consent/user-1",
		bytes.NewReader([]byte(`{"granted": true, "categories": {"analytics": true, "ads": false}}`)))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/consent/user-1", nil)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.ConsentStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Granted)
	assert.False(t, status.Allows("ads"))

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/consent/user-1", nil)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
