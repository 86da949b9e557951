// Package web serves the vizzy chat API over HTTP.
//
// Every response body is JSON. Chat turns run synchronously: the request
// blocks until the orchestrator has produced its answer, which may include
// several minutes of remote image generation.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hurricanerix/vizzy/internal/chat"
	"github.com/hurricanerix/vizzy/internal/image"
	"github.com/hurricanerix/vizzy/internal/logging"
	"github.com/hurricanerix/vizzy/internal/prompt"
)

const (
	// DefaultAddr is the default address the server listens on.
	DefaultAddr = "localhost:8000"

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 15 * time.Second

	// WriteTimeout bounds a whole chat turn, including every image tier.
	WriteTimeout = 10 * time.Minute

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout = 60 * time.Second

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 30 * time.Second

	// MaxRequestBodySize is the maximum size of POST request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// MaxMessageLength is the maximum length of a chat message (10KB).
	MaxMessageLength = chat.MaxMessageBytes

	// DefaultService is the service name reported by the root endpoint.
	DefaultService = "Vizzy Chat API"
)

// Chatter runs chat turns. *chat.Orchestrator implements it.
type Chatter interface {
	HandleMessage(ctx context.Context, req chat.Request) (chat.Result, error)
	Reset(ctx context.Context, userID string) error
}

// Info is reported by the root and health endpoints.
type Info struct {
	Service   string
	Version   string
	Model     string
	Primary   string
	Secondary string
}

// Options configures a Server. Zero values select defaults.
type Options struct {
	Addr        string
	CORSOrigins []string
	Info        Info
	Storage     *image.Storage
	Logger      *logging.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Server provides the HTTP API.
type Server struct {
	addr    string
	server  *http.Server
	handler http.Handler
	chat    Chatter
	info    Info
	storage *image.Storage
	limiter *rateLimiter
	logger  *logging.Logger
	now     func() time.Time
}

// NewServer creates a Server that hands chat turns to c.
func NewServer(c Chatter, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.Storage == nil {
		opts.Storage = image.NewStorage()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Info.Service == "" {
		opts.Info.Service = DefaultService
	}

	s := &Server{
		addr:    opts.Addr,
		chat:    c,
		info:    opts.Info,
		storage: opts.Storage,
		limiter: newRateLimiter(opts.Now),
		logger:  opts.Logger,
		now:     opts.Now,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var handler http.Handler = mux
	if len(opts.CORSOrigins) > 0 {
		handler = cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
			AllowCredentials: true,
			MaxAge:           300,
		})(handler)
	}
	s.handler = otelhttp.NewHandler(handler, "vizzy",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))

	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.handler,
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleInfo)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /reset", s.handleReset)

	mux.HandleFunc("GET /images/{id}", s.handleImage)
}

// ListenAndServe starts the HTTP server and blocks until the context is cancelled.
// Returns an error if the server fails to start or encounters a non-graceful shutdown error.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.limiter.startCleanup(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting web server on http://%s", s.addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down web server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		s.logger.Info("Web server stopped")
		return nil

	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, infoResponse{
		Service:   s.info.Service,
		Version:   s.info.Version,
		Status:    "operational",
		Model:     s.info.Model,
		Primary:   s.info.Primary,
		Secondary: s.info.Secondary,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:              "healthy",
		PrimaryConfigured:   s.info.Primary != "",
		SecondaryConfigured: s.info.Secondary != "",
		Timestamp:           s.now().Unix(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ready"})
}

// handleChat runs one chat turn.
// POST /chat {"user_id", "message", "conversation_id"?, "mode"?}
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	// SECURITY: Limit request body size
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Debug("Failed to decode chat request: %v", err)
		s.writeError(w, http.StatusBadRequest, req.ConversationID, "invalid request body")
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = newConversationID()
	}

	mode, err := parseMode(req.Mode)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, conversationID, err.Error())
		return
	}

	// SECURITY: Validate message length before any work is done
	if len(req.Message) > MaxMessageLength {
		s.logger.Warn("Message too long for user %s: %d bytes", req.UserID, len(req.Message))
		s.writeError(w, http.StatusBadRequest, conversationID, chat.ErrMessageTooLong.Error())
		return
	}

	// SECURITY: Check rate limit
	if req.UserID != "" && !s.limiter.allowChat(req.UserID) {
		s.logger.Warn("Rate limit exceeded for user %s", req.UserID)
		s.writeError(w, http.StatusTooManyRequests, conversationID, "too many requests, please wait a moment")
		return
	}

	result, err := s.chat.HandleMessage(r.Context(), chat.Request{
		UserID:  req.UserID,
		Message: req.Message,
		Mode:    mode,
	})
	switch {
	case errors.Is(err, chat.ErrSynthesisFailed):
		s.writeResult(w, http.StatusInternalServerError, conversationID, result)
		return
	case isValidation(err):
		s.writeError(w, http.StatusBadRequest, conversationID, err.Error())
		return
	case err != nil:
		// SECURITY: Log full error server-side but send generic message to client
		s.logger.Error("Chat turn failed for user %s: %v", req.UserID, err)
		s.writeError(w, http.StatusInternalServerError, conversationID, "An error occurred while processing your message. Please try again.")
		return
	}

	s.writeResult(w, http.StatusOK, conversationID, result)
}

// handleReset forgets a user's conversation state.
// POST /reset {"user_id"}
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}

	userID := strings.TrimSpace(req.UserID)
	if err := s.chat.Reset(r.Context(), userID); err != nil {
		if errors.Is(err, chat.ErrEmptyUserID) {
			s.writeError(w, http.StatusBadRequest, "", err.Error())
			return
		}
		s.logger.Error("Reset failed for user %s: %v", userID, err)
		s.writeError(w, http.StatusInternalServerError, "", "failed to reset conversation")
		return
	}
	s.limiter.cleanup(userID)

	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// handleImage serves a generated image by ID.
// GET /images/{id}
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(r.PathValue("id"), ".png")
	if id == "" {
		http.Error(w, "Missing image ID", http.StatusBadRequest)
		return
	}

	pngData, _, _, err := s.storage.Get(id)
	if err != nil {
		if errors.Is(err, image.ErrNotFound) {
			http.Error(w, "Image not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, image.ErrInvalidID) {
			http.Error(w, "Invalid image ID", http.StatusBadRequest)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pngData); err != nil {
		s.logger.Debug("Failed to write image data for %s: %v", id, err)
	}
}

func (s *Server) writeResult(w http.ResponseWriter, status int, conversationID string, result chat.Result) {
	writeJSON(w, status, envelope{
		Type:           result.Type(),
		Content:        s.content(result),
		Timestamp:      s.now().UTC().Format(time.RFC3339),
		ConversationID: conversationID,
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, conversationID, message string) {
	s.writeResult(w, status, conversationID, &chat.ErrorAnswer{Text: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func isValidation(err error) bool {
	return errors.Is(err, chat.ErrEmptyMessage) ||
		errors.Is(err, prompt.ErrUnknownMode) ||
		errors.Is(err, chat.ErrEmptyUserID) ||
		errors.Is(err, chat.ErrMessageTooLong)
}
