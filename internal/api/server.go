// Package api implements Quill's HTTP API: a chat endpoint driving the
// agent loop, a websocket event stream, and health/version endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quillhq/quill-agent/internal/agent"
	"github.com/quillhq/quill-agent/internal/buildinfo"
	"github.com/quillhq/quill-agent/internal/events"
	"github.com/quillhq/quill-agent/internal/memory"
	"github.com/quillhq/quill-agent/internal/vault"
)

// writeJSON encodes v to w. Failures usually mean the client hung up;
// they are logged at debug and otherwise ignored.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	listen string
	loop   *agent.Loop
	index  *vault.Index
	memory *memory.Store
	bus    *events.Bus
	logger *slog.Logger
	server *http.Server

	upgrader websocket.Upgrader
}

// NewServer creates the API server. index, mem and bus are optional;
// their endpoints degrade gracefully when absent.
func NewServer(listen string, loop *agent.Loop, index *vault.Index, mem *memory.Store, bus *events.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		listen: listen,
		loop:   loop,
		index:  index,
		memory: mem,
		bus:    bus,
		logger: logger.With("component", "api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 32 * 1024,
		},
	}
}

// Handler returns the routed handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /", s.handleRoot)
	return s.withLogging(mux)
}

// Start begins serving HTTP requests and blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.listen,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // agent requests stream slowly
	}
	s.logger.Info("starting API server", "listen", s.listen)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	Model          string `json:"model,omitempty"`
}

// ChatResponse is the reply to POST /api/chat.
type ChatResponse struct {
	Answer     string         `json:"answer"`
	Sources    []agent.Source `json:"sources,omitempty"`
	Reason     string         `json:"reason"`
	Iterations int            `json:"iterations"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	res, err := s.loop.Run(r.Context(), &agent.Request{
		ConversationID: req.ConversationID,
		Message:        req.Message,
		Model:          req.Model,
	})
	if err != nil {
		s.logger.Error("chat request failed", "error", err)
		s.errorResponse(w, http.StatusBadGateway, "the model request failed")
		return
	}

	writeJSON(w, ChatResponse{
		Answer:     res.Answer,
		Sources:    res.Sources,
		Reason:     res.Reason,
		Iterations: res.Iterations,
	}, s.logger)
}

// handleEvents streams bus events to a websocket client until it
// disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "event stream not enabled")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := s.bus.Subscribe(64)
	defer s.bus.Unsubscribe(ch)

	// Drain reads so close frames and pings are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status": "healthy",
		"uptime": buildinfo.Uptime().String(),
	}
	if s.index != nil {
		health["notes_indexed"] = s.index.NoteCount()
	}
	if s.memory != nil {
		health["memory"] = s.memory.Stats()
	}
	writeJSON(w, health, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"name":    "Quill",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error": %q}`+"\n", message)
}
