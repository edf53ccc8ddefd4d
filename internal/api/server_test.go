package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xkanth/rangeindexer/internal/state"
)

func newTestServer(t *testing.T) (*Server, *state.State) {
	t.Helper()
	st := state.New(1000)
	return NewServer(st, "test-key", "127.0.0.1:0", zerolog.Nop()), st
}

func do(t *testing.T, s *Server, method, path, apiKey, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody *strings.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	} else {
		reqBody = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reqBody)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth_IsPublic(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAPIRoutes_RejectMissingKey(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/status", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIRoutes_RejectWrongKey(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/status", "wrong", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptions_IsExemptFromAuth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodOptions, "/api/status", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatus_ReflectsState(t *testing.T) {
	s, st := newTestServer(t)
	st.SetHeadAndLastBlock(2500, 2400)

	rec := do(t, s, http.MethodGet, "/api/status", "test-key", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"behind":100`)
	assert.Contains(t, rec.Body.String(), `"status":"running"`)
}

func TestPause_SetsStateAndIsIdempotent(t *testing.T) {
	s, st := newTestServer(t)
	do(t, s, http.MethodPost, "/api/pause", "test-key", "")
	do(t, s, http.MethodPost, "/api/pause", "test-key", "")
	assert.True(t, st.Paused())
	assert.Equal(t, state.StatusPaused, st.Snapshot().Status)
}

func TestResume_ClearsPause(t *testing.T) {
	s, st := newTestServer(t)
	st.Pause()
	rec := do(t, s, http.MethodPost, "/api/resume", "test-key", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, st.Paused())
}

func TestReindex_RejectsInvertedRange(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/reindex", "test-key", `{"from": 500, "to": 100}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReindex_QueuesRequestAndClearsPause(t *testing.T) {
	s, st := newTestServer(t)
	st.Pause()
	rec := do(t, s, http.MethodPost, "/api/reindex", "test-key", `{"from": 100, "to": 200, "strategy": "raw_logs"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, st.Paused())

	req := st.TakePendingReindex()
	require.NotNil(t, req)
	assert.Equal(t, uint64(100), req.From)
	assert.Equal(t, uint64(200), req.To)
	assert.Equal(t, "raw_logs", req.Strategy)
}

func TestReindex_EmptyBodyIsAccepted(t *testing.T) {
	s, st := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/reindex", "test-key", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, st.TakePendingReindex())
}

func TestReset_ClearsEverything(t *testing.T) {
	s, st := newTestServer(t)
	st.SetIndex(&state.IndexProgress{From: 1, To: 10})
	st.SubmitReindex(state.IndexProgress{From: 1, To: 2})
	st.Pause()

	rec := do(t, s, http.MethodPost, "/api/reset", "test-key", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	snap := st.Snapshot()
	assert.Nil(t, snap.Index)
	assert.Nil(t, snap.PendingReindex)
	assert.Equal(t, state.StatusRunning, snap.Status)
	assert.False(t, snap.Paused)
}
