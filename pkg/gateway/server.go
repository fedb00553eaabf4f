// Package gateway exposes the agent over HTTP: a chat endpoint, session
// management, health, metrics, and a websocket progress stream.
package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/probelab/scout/internal/observability"
	"github.com/probelab/scout/internal/tracing"
	"github.com/probelab/scout/pkg/agent"
	"github.com/probelab/scout/pkg/session"
	"github.com/rs/zerolog"
)

// Server is the HTTP gateway in front of the agent runner.
type Server struct {
	runner      *agent.Runner
	store       *session.Store
	broadcaster *Broadcaster
	logger      zerolog.Logger
	secret      string

	httpServer *http.Server
}

// ServerConfig holds gateway configuration.
type ServerConfig struct {
	Host   string
	Port   int
	Runner *agent.Runner
	Store  *session.Store
	Logger zerolog.Logger
	// SharedSecret, when set, is required as a Bearer token on /api routes.
	SharedSecret string
}

// NewServer creates the gateway with all routes registered.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("agent runner is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}

	s := &Server{
		runner:      cfg.Runner,
		store:       cfg.Store,
		broadcaster: NewBroadcaster(cfg.Logger),
		logger:      cfg.Logger,
		secret:      cfg.SharedSecret,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/ws", s.broadcaster.HandleWS)
	mux.HandleFunc("/api/chat", s.authorized(s.handleChat))
	mux.HandleFunc("/api/sessions/", s.authorized(s.handleSession))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // agent runs can be slow
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("Gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway server failed: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Gateway shutting down")
	s.broadcaster.Close()
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the gateway's route mux.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Broadcaster exposes the progress stream so the runner's sink can feed it.
func (s *Server) Broadcaster() *Broadcaster {
	return s.broadcaster
}

// Sink returns an agent event sink that forwards tool-call progress to
// connected websocket clients.
func (s *Server) Sink() agent.Sink {
	return func(event agent.ToolCallEvent) {
		s.broadcaster.Broadcast(ProgressEvent{
			Type:      "tool_call_" + event.Phase,
			SessionID: event.SessionID,
			Iteration: event.Iteration,
			Tool:      event.Call.Name,
			Arguments: event.Call.Arguments,
			Error:     event.Call.Error,
		})
	}
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	if s.secret == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.secret)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Sessions: s.store.Count(),
		Clients:  s.broadcaster.ClientCount(),
	})
}

// handleChat runs one agent turn. The gateway owns persistence: the user and
// assistant messages are written to the session only after the run succeeds,
// so a failed run leaves no partial turn behind.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	start := time.Now()

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message cannot be empty")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.store.CreateSession()
	} else if _, ok := s.store.GetSession(sessionID); !ok {
		// Expired or unknown: start fresh under a new id rather than failing.
		sessionID = s.store.CreateSession()
	}

	// A dropped client must not cancel an in-flight run; the turn completes
	// and persists regardless of whether anyone is still reading the response.
	ctx := tracing.NewRequestContext(context.WithoutCancel(r.Context()))
	logger := tracing.LoggerFromContext(ctx, s.logger)

	result, err := s.runner.Run(ctx, req.Message, sessionID)
	observability.RecordChatRequest(time.Since(start), err == nil)
	if err != nil {
		logger.Error().Err(err).Str("session_id", sessionID).Msg("Chat turn failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.store.AddMessage(sessionID, "user", req.Message)
	s.store.AddMessage(sessionID, "assistant", result.Content)

	logger.Info().
		Str("session_id", sessionID).
		Int("tool_calls", len(result.ToolCalls)).
		Dur("duration", time.Since(start)).
		Msg("Chat turn completed")

	writeJSON(w, http.StatusOK, ChatResponse{
		Content:       result.Content,
		ToolCallCount: len(result.ToolCalls),
		TraceID:       result.TraceID,
		SessionID:     sessionID,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodDelete:
		if !s.store.DeleteSession(id) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		sess, ok := s.store.GetSession(id)
		if !ok {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSON(w, http.StatusOK, sess)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
