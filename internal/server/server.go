// Package server exposes the chat engine over a JSON/SSE HTTP API: session
// management, document upload, streamed chat turns and the optional
// snapshot archive, plus health, readiness and Prometheus endpoints.
// It is started by the `docchat serve` command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/docchat-go/internal/chat"
	"github.com/54b3r/docchat-go/internal/embedder"
	"github.com/54b3r/docchat-go/internal/ingestion"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/session"
	"github.com/54b3r/docchat-go/internal/store"
)

// DefaultMaxUploadBytes caps a document upload when Config.MaxUploadBytes is zero.
const DefaultMaxUploadBytes = 50 << 20

var (
	// errArchiveDisabled is returned by archive routes when no archive is configured.
	errArchiveDisabled = errors.New("server: snapshot archive is not configured")
	// errBadRequest marks a malformed request body or form.
	errBadRequest = errors.New("server: bad request")
)

// New constructs a Server around the engine.
func New(eng *chat.Engine, cfg *Config) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(prometheus.DefaultRegisterer)
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	if total := eng.Chat.Config().TotalTimeout; cfg.WriteTimeout <= total {
		cfg.Logger.Warn("server: write timeout does not exceed the chat timeout, long answers will be cut off",
			slog.Duration("write_timeout", cfg.WriteTimeout),
			slog.Duration("chat_timeout", total),
		)
	}
	if cfg.APIKey == "" {
		cfg.Logger.Warn("server: DOCCHAT_API_KEY is not set, /api/* authentication is disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)

	s := &Server{
		engine:  eng,
		archive: cfg.Archive,
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		pingers: cfg.Pingers,
		stopRL:  stopRL,
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /api/chat", s.handleChat)

	api.HandleFunc("GET /api/sessions", s.handleListSessions)
	api.HandleFunc("POST /api/sessions", s.handleCreateSession)
	api.HandleFunc("POST /api/sessions/import", s.handleImportSession)
	api.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	api.HandleFunc("PATCH /api/sessions/{id}", s.handleUpdateSession)
	api.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	api.HandleFunc("POST /api/sessions/{id}/switch", s.handleSwitchSession)
	api.HandleFunc("POST /api/sessions/{id}/duplicate", s.handleDuplicateSession)
	api.HandleFunc("GET /api/sessions/{id}/export", s.handleExportSession)
	api.HandleFunc("GET /api/sessions/{id}/stats", s.handleSessionStats)
	api.HandleFunc("DELETE /api/sessions/{id}/messages", s.handleClearMessages)
	api.HandleFunc("POST /api/sessions/{id}/document", s.handleUploadDocument)
	api.HandleFunc("DELETE /api/sessions/{id}/document", s.handleClearDocument)

	api.HandleFunc("POST /api/sessions/{id}/archive", s.handleArchiveSession)
	api.HandleFunc("GET /api/archive", s.handleListArchive)
	api.HandleFunc("GET /api/archive/{id}", s.handleGetArchive)
	api.HandleFunc("POST /api/archive/{id}/restore", s.handleRestoreArchive)

	root := http.NewServeMux()
	root.HandleFunc("GET /api/health", s.handleHealth)
	root.HandleFunc("GET /api/ready", s.handleReady)
	root.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))
	root.Handle("/api/", rl.middleware(authMiddleware(cfg.APIKey, api)))

	s.handler = requestLogger(cfg.Logger, s.metrics.instrument(root))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Handler returns the fully wrapped route tree.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.log.Info("server: shutting down", slog.Duration("timeout", s.cfg.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v with the given status.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(ctx).Error("server: response encode failed", slog.Any("error", err))
	}
}

// writeJSONError writes {"error": msg}.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEvent{Error: msg})
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidName),
		errors.Is(err, session.ErrInvalidSnapshot),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ingestion.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ingestion.ErrEmptyContent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, embedder.ErrNoModel), errors.Is(err, errArchiveDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and writes it with the status its sentinel maps to.
// Internal errors are not echoed to the client.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	log := logging.FromContext(ctx)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("server: request failed", slog.Any("error", err))
		msg = "internal error"
	} else {
		log.Warn("server: request rejected", slog.Int("status", status), slog.Any("error", err))
	}
	writeJSONError(w, status, msg)
}

// maxJSONBody caps JSON request bodies other than snapshot imports.
const maxJSONBody = 1 << 20

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid JSON body: %w", errBadRequest, err)
	}
	return nil
}
