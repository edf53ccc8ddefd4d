// Package api implements the authenticated HTTP control surface: status
// reporting plus pause/resume/reindex/reset commands. Handlers only
// mutate supervisory state and return; the supervisor and follower
// observe the mutation at their own checkpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/0xkanth/rangeindexer/internal/state"
)

// Server is the control API's HTTP handler.
type Server struct {
	state      *state.State
	apiKey     string
	httpServer *http.Server
	logger     zerolog.Logger
}

// NewServer builds a Server bound to addr (e.g. "0.0.0.0:3000"),
// authenticating /api/* routes against apiKey.
func NewServer(st *state.State, apiKey, addr string, logger zerolog.Logger) *Server {
	s := &Server{state: st, apiKey: apiKey, logger: logger}

	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/pause", s.handlePause).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/resume", s.handleResume).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/reindex", s.handleReindex).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost, http.MethodOptions)

	s.httpServer = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start blocks serving HTTP until the server is shut down.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "content-type, x-api-key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("X-API-Key") != s.apiKey {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "msg": "invalid or missing X-API-Key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// statusResponse mirrors the wire contract's snake_case fields.
type statusResponse struct {
	Status    state.Status   `json:"status"`
	LastBlock uint64         `json:"last_block"`
	Head      uint64         `json:"head"`
	Behind    uint64         `json:"behind"`
	Index     *indexResponse `json:"index,omitempty"`
}

type indexResponse struct {
	From      uint64 `json:"from"`
	To        uint64 `json:"to"`
	Current   uint64 `json:"current"`
	Strategy  string `json:"strategy,omitempty"`
	IsReindex bool   `json:"is_reindex"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()

	behind := uint64(0)
	if snap.Head > snap.LastBlock {
		behind = snap.Head - snap.LastBlock
	}

	resp := statusResponse{
		Status:    snap.Status,
		LastBlock: snap.LastBlock,
		Head:      snap.Head,
		Behind:    behind,
	}
	if snap.Index != nil {
		resp.Index = &indexResponse{
			From:      snap.Index.From,
			To:        snap.Index.To,
			Current:   snap.Index.Current,
			Strategy:  snap.Index.Strategy,
			IsReindex: snap.Index.IsReindex,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.state.Pause()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "msg": "paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.state.Resume()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "msg": "resumed"})
}

type reindexRequest struct {
	From     uint64 `json:"from"`
	To       uint64 `json:"to"`
	Strategy string `json:"strategy"`
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	var req reindexRequest
	if r.Body != nil {
		// A missing or empty body means "reindex everything from each
		// strategy's own from_block to the current safe head" — not an
		// error, so a decode failure on an empty body is ignored.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if req.From > 0 && req.To > 0 && req.From > req.To {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "msg": "from must be <= to"})
		return
	}

	s.state.SubmitReindex(state.IndexProgress{
		From:      req.From,
		To:        req.To,
		Strategy:  req.Strategy,
		IsReindex: true,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "msg": "reindex queued"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.state.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "msg": "reset"})
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
