package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docchat-go/internal/chat"
	"github.com/54b3r/docchat-go/internal/session"
	"github.com/54b3r/docchat-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// exceed the chat total timeout or long answers are cut off.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// MaxUploadBytes caps a document upload (default: 50 MiB).
	MaxUploadBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on /api/*
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Metrics receives server and turn metrics. If nil, metrics are
	// registered against prometheus.DefaultRegisterer.
	Metrics *Metrics
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
	// Embedder reports the embedding provider's state in upload responses.
	// May be nil.
	Embedder EmbedderStatus
	// Archive is the optional snapshot archive. Archive routes answer 503
	// when it is nil.
	Archive store.Archive
}

// Server is the HTTP server that exposes the chat engine.
type Server struct {
	// engine owns the sessions, uploads and streaming turns.
	engine *chat.Engine
	// archive is the optional snapshot archive.
	archive store.Archive
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// handler is the fully wrapped route tree, exposed for tests.
	handler http.Handler
	// log is the structured logger for this server instance.
	log *slog.Logger
	// metrics holds the Prometheus collectors.
	metrics *Metrics
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// SessionID selects the session; empty means the current session.
	SessionID string `json:"session_id"`
	// Message is the user's question.
	Message string `json:"message"`
	// Params are optional per-turn generation overrides.
	Params chat.Params `json:"params"`
}

// createSessionRequest is the JSON body for POST /api/sessions.
type createSessionRequest struct {
	Name string `json:"name"`
}

// updateSessionRequest is the JSON body for PATCH /api/sessions/{id}.
// Absent fields are left unchanged.
type updateSessionRequest struct {
	Name         *string `json:"name"`
	SystemPrompt *string `json:"system_prompt"`
}

// sessionView is the JSON representation of a session summary.
type sessionView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	DocumentName string    `json:"document_name"`
	SystemPrompt string    `json:"system_prompt"`
	Messages     int       `json:"messages"`
	Current      bool      `json:"current"`
}

// sessionDetail adds the message history to a summary.
type sessionDetail struct {
	sessionView
	History []session.Message `json:"history"`
}

// listSessionsResponse is the JSON response for GET /api/sessions.
type listSessionsResponse struct {
	Current  string        `json:"current"`
	Sessions []sessionView `json:"sessions"`
}

// importResponse is the JSON response for POST /api/sessions/import.
type importResponse struct {
	Session  sessionView `json:"session"`
	Imported int         `json:"imported"`
	Skipped  int         `json:"skipped"`
}

// uploadResponse is the JSON response for POST /api/sessions/{id}/document.
type uploadResponse struct {
	Document  string `json:"document"`
	Chunks    int    `json:"chunks"`
	Backend   string `json:"backend"`
	Dimension int    `json:"dimension"`
	Model     string `json:"model"`
	Degraded  bool   `json:"degraded"`
}

// textEvent is the data payload of reasoning and content SSE events.
type textEvent struct {
	Text string `json:"text"`
}

// errorEvent is the data payload of an error SSE event.
type errorEvent struct {
	Error string `json:"error"`
}
