package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/niraliveastro/astro-call-service/internal/auth"
	"github.com/niraliveastro/astro-call-service/internal/model"
	"github.com/niraliveastro/astro-call-service/internal/repository"
	"github.com/niraliveastro/astro-call-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	engine   *gin.Engine
	hub      *service.EventHub
	calls    *service.CallService
	statuses *service.StatusService
	verifier *auth.Verifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	hub := service.NewEventHub(service.HubConfig{
		HeartbeatInterval: time.Minute,
		HealthInterval:    time.Minute,
		BufferSize:        16,
	}, nil)
	t.Cleanup(hub.CloseAll)

	statuses := service.NewStatusService(repository.NewMemoryStatusStore(), hub, nil, nil)
	calls := service.NewCallService(repository.NewMemoryCallStore(), statuses, hub, nil, nil)
	verifier := auth.NewVerifier(testSecret)

	callH := NewCallHandler(calls, nil)
	statusH := NewStatusHandler(statuses, verifier, nil)
	eventsH := NewEventsHandler(hub, nil)
	wsH := NewWSEventsHandler(hub, 1024, 1024, nil)
	adminH := NewAdminHandler(calls, 2*time.Minute, nil)

	r := gin.New()
	r.POST("/calls", callH.Post)
	r.GET("/calls", callH.List)
	r.POST("/astrologer/status", statusH.Set)
	r.GET("/astrologer/status", statusH.Get)
	r.GET("/events", eventsH.Stream)
	r.GET("/ws/events", wsH.ServeWS)
	r.GET("/admin/calls", adminH.ListCalls)
	r.POST("/admin/fix-pending-calls", adminH.FixPendingCalls)

	return &testEnv{engine: r, hub: hub, calls: calls, statuses: statuses, verifier: verifier}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func decodeCall(t *testing.T, w *httptest.ResponseRecorder) model.Call {
	t.Helper()
	var out struct {
		Success bool       `json:"success"`
		Call    model.Call `json:"call"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	require.True(t, out.Success)
	return out.Call
}

func TestCallHandler_CreateQueuedThenPending(t *testing.T) {
	env := newTestEnv(t)

	w := doJSON(t, env.engine, http.MethodPost, "/calls", gin.H{"action": "create-call", "astrologerId": "A1", "userId": "U1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	queued := decodeCall(t, w)
	assert.Equal(t, model.CallStatusQueued, queued.Status)
	require.NotNil(t, queued.Position)
	assert.Equal(t, 1, *queued.Position)
	assert.Equal(t, model.CallTypeVideo, queued.CallType)

	require.Equal(t, http.StatusOK, doJSON(t, env.engine, http.MethodPost, "/astrologer/status",
		gin.H{"astrologerId": "A1", "action": "set-online"}).Code)

	w = doJSON(t, env.engine, http.MethodPost, "/calls", gin.H{"action": "create-call", "astrologerId": "A1", "userId": "U2", "callType": "voice"})
	require.Equal(t, http.StatusOK, w.Code)
	pending := decodeCall(t, w)
	assert.Equal(t, model.CallStatusPending, pending.Status)
	assert.Nil(t, pending.Position)
	assert.Equal(t, model.CallTypeVoice, pending.CallType)

	w = doJSON(t, env.engine, http.MethodPost, "/calls", gin.H{"action": "get-queue", "astrologerId": "A1"})
	require.Equal(t, http.StatusOK, w.Code)
	q := decode(t, w)["queue"].([]interface{})
	require.Len(t, q, 1)
	assert.Equal(t, queued.ID, q[0].(map[string]interface{})["id"])
}

func TestCallHandler_Validation(t *testing.T) {
	env := newTestEnv(t)
	long := strings.Repeat("x", maxIDLength+1)

	cases := []struct {
		name string
		body gin.H
		want string
	}{
		{"unknown action", gin.H{"action": "dance", "astrologerId": "A1"}, "Invalid action"},
		{"missing astrologer", gin.H{"action": "get-queue"}, "Astrologer ID is required"},
		{"long astrologer id", gin.H{"action": "get-queue", "astrologerId": long}, "Invalid astrologer ID"},
		{"long user id", gin.H{"action": "create-call", "astrologerId": "A1", "userId": long}, "Invalid user ID"},
		{"long call id", gin.H{"action": "update-call-status", "astrologerId": "A1", "callId": long, "status": "active"}, "Invalid call ID"},
		{"bad call type", gin.H{"action": "create-call", "astrologerId": "A1", "userId": "U1", "callType": "fax"}, "Invalid call type"},
		{"missing user", gin.H{"action": "create-call", "astrologerId": "A1"}, "User ID is required"},
		{"missing call id", gin.H{"action": "update-call-status", "astrologerId": "A1", "status": "active"}, "Valid callId is required"},
		{"bad status", gin.H{"action": "update-call-status", "astrologerId": "A1", "callId": "c1", "status": "ringing"}, "Invalid status"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, env.engine, http.MethodPost, "/calls", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tc.want, decode(t, w)["error"])
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/calls", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallHandler_UpdateStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.statuses.Set(ctx, "A1", model.AvailabilityOnline))
	call, err := env.calls.CreateCall(ctx, "A1", "U1", "")
	require.NoError(t, err)

	update := func(astrologerID, callID, status string) *httptest.ResponseRecorder {
		return doJSON(t, env.engine, http.MethodPost, "/calls", gin.H{
			"action": "update-call-status", "astrologerId": astrologerID, "callId": callID, "status": status,
		})
	}

	assert.Equal(t, http.StatusNotFound, update("A1", "call-missing", "active").Code)
	assert.Equal(t, http.StatusNotFound, update("A2", call.ID, "active").Code, "calls of another astrologer are invisible")

	w := update("A1", call.ID, "active")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.CallStatusActive, decodeCall(t, w).Status)

	require.Equal(t, http.StatusOK, update("A1", call.ID, "completed").Code)
	w = update("A1", call.ID, "active")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "invalid call status transition")
}

func TestCallHandler_List(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.calls.CreateCall(ctx, "A1", "U1", "")
	require.NoError(t, err)
	_, err = env.calls.CreateCall(ctx, "A2", "U1", "")
	require.NoError(t, err)

	w := doJSON(t, env.engine, http.MethodGet, "/calls?astrologerId=A1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["calls"], 1)

	w = doJSON(t, env.engine, http.MethodGet, "/calls", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["calls"], 2)

	w = doJSON(t, env.engine, http.MethodGet, "/calls?userId=U1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["calls"], 2)

	w = doJSON(t, env.engine, http.MethodGet, "/calls?userId=U1&astrologerId=A2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode(t, w)["calls"].([]interface{})
	require.Len(t, history, 1)
	assert.Equal(t, "A2", history[0].(map[string]interface{})["astrologerId"])

	assert.Equal(t, []interface{}{}, decode(t, doJSON(t, env.engine, http.MethodGet, "/calls?userId=U9", nil))["calls"])
	w = doJSON(t, env.engine, http.MethodGet, "/calls?userId="+strings.Repeat("u", maxIDLength+1), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, env.engine, http.MethodPost, "/calls", gin.H{"action": "get-astrologer-calls", "astrologerId": "nobody"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, decode(t, w)["calls"])
}

func TestStatusHandler_SetAndGet(t *testing.T) {
	env := newTestEnv(t)

	w := doJSON(t, env.engine, http.MethodGet, "/astrologer/status?astrologerId=A1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "offline", body["status"])
	assert.Equal(t, []interface{}{}, body["pendingCalls"])
	assert.NotEmpty(t, body["lastSeen"])

	w = doJSON(t, env.engine, http.MethodPost, "/astrologer/status", gin.H{"astrologerId": "A1", "action": "set-busy"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "busy", decode(t, w)["status"])

	w = doJSON(t, env.engine, http.MethodGet, "/astrologer/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["astrologers"], 1)

	w = doJSON(t, env.engine, http.MethodPost, "/astrologer/status", gin.H{"astrologerId": "A1", "action": "set-asleep"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid action", decode(t, w)["error"])

	w = doJSON(t, env.engine, http.MethodPost, "/astrologer/status", gin.H{"action": "set-online"})
	assert.Equal(t, "Astrologer ID is required", decode(t, w)["error"])
}

func TestStatusHandler_BearerToken(t *testing.T) {
	env := newTestEnv(t)
	own, err := env.verifier.Sign("A1", nil)
	require.NoError(t, err)
	other, err := env.verifier.Sign("A2", nil)
	require.NoError(t, err)
	body := gin.H{"astrologerId": "A1", "action": "set-online"}

	w := doJSON(t, env.engine, http.MethodPost, "/astrologer/status", body, "Authorization", "Bearer "+other)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Unauthorized", decode(t, w)["error"])
	assert.Equal(t, model.AvailabilityOffline, env.statuses.Get(context.Background(), "A1").Status)

	w = doJSON(t, env.engine, http.MethodPost, "/astrologer/status", body, "Authorization", "Bearer "+own)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, env.engine, http.MethodPost, "/astrologer/status", body, "Authorization", "Bearer not-a-jwt")
	assert.Equal(t, http.StatusOK, w.Code, "unverifiable tokens are ignored")
}

func TestHealthHandler(t *testing.T) {
	hub := service.NewEventHub(service.DefaultHubConfig(), nil)
	r := gin.New()
	healthy := NewHealthHandler(nil, hub)
	r.GET("/health", healthy.Health)
	r.GET("/ready", healthy.Ready)
	failing := NewHealthHandler(func(context.Context) error { return assert.AnError }, nil)
	r.GET("/ready-failing", failing.Ready)

	w := doJSON(t, r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "astro-call-service", body["service"])
	assert.Contains(t, body, "connections")

	assert.Equal(t, http.StatusOK, doJSON(t, r, http.MethodGet, "/ready", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, doJSON(t, r, http.MethodGet, "/ready-failing", nil).Code)
}
