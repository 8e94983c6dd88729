// Package api implements the HTTP chat API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/mail"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nugget/verity/internal/agent"
	"github.com/nugget/verity/internal/buildinfo"
	"github.com/nugget/verity/internal/conversation"
)

// Runner answers one question. [agent.Loop] satisfies it.
type Runner interface {
	Run(ctx context.Context, question string) (*agent.Result, error)
	Model() string
}

// Sessions records chat messages and serves chat history.
// [conversation.Cache] satisfies it.
type Sessions interface {
	Append(ctx context.Context, m conversation.Message) (conversation.Message, error)
	History(ctx context.Context, chatID string, f conversation.Filter) ([]conversation.Message, error)
}

// Owners lists the chats an owner has taken part in and registers the
// address digests are sent to. [conversation.Store] satisfies it.
type Owners interface {
	ChatIDs(ctx context.Context, ownerID string) ([]string, error)
	PutOwner(ctx context.Context, o conversation.Owner) error
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address  string
	port     int
	runner   Runner
	sessions Sessions
	owners   Owners
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates a new API server. sessions may be nil, in which
// case chat messages are not recorded and the history routes answer
// 404.
func NewServer(address string, port int, runner Runner, sessions Sessions, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:  address,
		port:     port,
		runner:   runner,
		sessions: sessions,
		logger:   logger.With("component", "api"),
	}
}

// SetOwners enables the /v1/owners routes.
func (s *Server) SetOwners(o Owners) {
	s.owners = o
}

// Handler builds the router. Exposed for tests and for embedding the
// API into another server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.withLogging)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Post("/chat", s.handleChat)
		r.Get("/chats/{id}/messages", s.handleChatMessages)
		r.Put("/owners/{id}", s.handlePutOwner)
		r.Get("/owners/{id}/chats", s.handleOwnerChats)
	})

	return r
}

// Start begins serving HTTP requests. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // agent runs with several searches are slow
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
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
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", chiMiddleware.GetReqID(r.Context()),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Verity",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.BuildInfo(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	ChatID  string `json:"chat_id"`
	OwnerID string `json:"owner_id,omitempty"`
	Message string `json:"message"`
	Persona string `json:"persona,omitempty"`
}

// ChatResponse is the reply to POST /v1/chat.
type ChatResponse struct {
	ChatID     string `json:"chat_id"`
	MessageID  string `json:"message_id,omitempty"`
	Response   string `json:"response"`
	Model      string `json:"model"`
	Iterations int    `json:"iterations"`
	ToolCalls  int    `json:"tool_calls,omitempty"`
	Exhausted  bool   `json:"exhausted,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.ChatID == "" {
		s.errorResponse(w, http.StatusBadRequest, "chat_id is required")
		return
	}

	s.record(r.Context(), conversation.Message{
		ChatID:  req.ChatID,
		OwnerID: req.OwnerID,
		Role:    conversation.RoleUser,
		Content: req.Message,
		Persona: req.Persona,
	})

	res, err := s.runner.Run(r.Context(), req.Message)
	if err != nil {
		s.logger.Error("agent loop failed", "chat_id", req.ChatID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "agent error: "+err.Error())
		return
	}

	reply := s.record(r.Context(), conversation.Message{
		ChatID:  req.ChatID,
		OwnerID: req.OwnerID,
		Role:    conversation.RoleAssistant,
		Content: res.Answer,
		Persona: req.Persona,
	})

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ChatResponse{
		ChatID:     req.ChatID,
		MessageID:  reply.ID,
		Response:   res.Answer,
		Model:      s.runner.Model(),
		Iterations: res.Iterations,
		ToolCalls:  res.ToolCalls,
		Exhausted:  res.Exhausted,
	}, s.logger)
}

// record appends m to the session cache. Failures are logged; the chat
// itself still succeeds.
func (s *Server) record(ctx context.Context, m conversation.Message) conversation.Message {
	if s.sessions == nil {
		return m
	}
	saved, err := s.sessions.Append(ctx, m)
	if err != nil {
		s.logger.Warn("failed to record chat message",
			"chat_id", m.ChatID, "role", m.Role, "error", err)
		return m
	}
	return saved
}

func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.errorResponse(w, http.StatusNotFound, "chat history not available")
		return
	}
	chatID := chi.URLParam(r, "id")
	f := conversation.Filter{
		OwnerID: r.URL.Query().Get("owner_id"),
		Limit:   parseIntParam(r, "limit", 0),
	}

	msgs, err := s.sessions.History(r.Context(), chatID, f)
	if err != nil {
		s.logger.Error("history query failed", "chat_id", chatID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "history query failed")
		return
	}
	if msgs == nil {
		msgs = []conversation.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"chat_id":  chatID,
		"messages": msgs,
		"count":    len(msgs),
	}, s.logger)
}

func (s *Server) handleOwnerChats(w http.ResponseWriter, r *http.Request) {
	if s.owners == nil {
		s.errorResponse(w, http.StatusNotFound, "chat listing not available")
		return
	}
	ownerID := chi.URLParam(r, "id")
	ids, err := s.owners.ChatIDs(r.Context(), ownerID)
	if err != nil {
		s.logger.Error("chat listing failed", "owner_id", ownerID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "chat listing failed")
		return
	}
	if ids == nil {
		ids = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"owner_id": ownerID,
		"chat_ids": ids,
	}, s.logger)
}

// OwnerRequest is the body of PUT /v1/owners/{id}.
type OwnerRequest struct {
	Name         string `json:"name"`
	ReportsEmail string `json:"reports_email,omitempty"`
}

func (s *Server) handlePutOwner(w http.ResponseWriter, r *http.Request) {
	if s.owners == nil {
		s.errorResponse(w, http.StatusNotFound, "owner registry not available")
		return
	}
	var req OwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ReportsEmail != "" {
		if _, err := mail.ParseAddress(req.ReportsEmail); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid reports_email")
			return
		}
	}

	o := conversation.Owner{
		ID:           chi.URLParam(r, "id"),
		Name:         req.Name,
		ReportsEmail: req.ReportsEmail,
	}
	if err := s.owners.PutOwner(r.Context(), o); err != nil {
		s.logger.Error("owner update failed", "owner_id", o.ID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "owner update failed")
		return
	}
	s.logger.Info("owner registered", "owner_id", o.ID, "has_email", o.ReportsEmail != "")

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, o, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}

// IsClosed reports whether err is the normal result of Shutdown.
func IsClosed(err error) bool {
	return errors.Is(err, http.ErrServerClosed)
}
