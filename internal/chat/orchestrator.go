// Package chat drives one streamed assistant turn at a time per session. An
// Orchestrator assembles the outgoing request (system instruction, retrieved
// document context, budgeted history and the new user message) and returns a
// Turn, which pulls deltas from the chat model, keeps the reasoning and
// answer traces apart and always writes exactly one assistant message back to
// the session when it finishes.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docchat-go/internal/budget"
	"github.com/54b3r/docchat-go/internal/index"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/rag"
	"github.com/54b3r/docchat-go/internal/session"
)

// Generation defaults.
const (
	DefaultMaxTokens         = 65536
	DefaultTemperature       = 1.0
	DefaultTopP              = 0.95
	DefaultTotalTimeout      = 120 * time.Second
	DefaultInactivityTimeout = 30 * time.Second
)

var (
	// ErrStreamInactive is the cause of a stream that went quiet for longer
	// than the inactivity timeout.
	ErrStreamInactive = errors.New("chat: no data received within the inactivity timeout")
	// ErrStreamAbandoned is the cause of a turn closed before any delta arrived.
	ErrStreamAbandoned = errors.New("chat: stream abandoned before any output")
	// ErrEmptyMessage is returned by Send for a blank user message.
	ErrEmptyMessage = errors.New("chat: message must not be empty")
)

// Streamer is the part of an eino chat model the orchestrator needs.
// Every model.BaseChatModel satisfies it.
type Streamer interface {
	Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error)
}

// Retriever produces framed document context for a question.
type Retriever interface {
	RetrieveContext(ctx context.Context, idx index.Index, query string, opts rag.Options) (string, bool)
}

// Observer receives turn lifecycle events, typically to feed metrics.
type Observer interface {
	TurnStarted()
	TurnFinished(outcome string, elapsed time.Duration)
}

// Config holds the generation defaults and the stream timeouts.
type Config struct {
	// Model overrides the backend's configured model name when non-empty.
	Model string
	// MaxTokens caps the response length.
	MaxTokens int
	// Temperature controls sampling randomness.
	Temperature float32
	// TopP is the nucleus sampling mass.
	TopP float32
	// TotalTimeout bounds a whole turn.
	TotalTimeout time.Duration
	// InactivityTimeout bounds the gap between two upstream deltas.
	InactivityTimeout time.Duration
	// MaxContextTokens is the estimated budget for the outgoing request.
	// History is trimmed oldest-first to fit.
	MaxContextTokens int
}

// DefaultConfig returns the package defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:         DefaultMaxTokens,
		Temperature:       DefaultTemperature,
		TopP:              DefaultTopP,
		TotalTimeout:      DefaultTotalTimeout,
		InactivityTimeout: DefaultInactivityTimeout,
		MaxContextTokens:  budget.DefaultMaxContextTokens,
	}
}

// ConfigFromEnv reads MODEL_MAX_TOKENS, MODEL_TEMPERATURE, MODEL_TOP_P,
// CHAT_TIMEOUT, CHAT_INACTIVITY_TIMEOUT and CHAT_MAX_CONTEXT_TOKENS over the
// defaults. Unparseable values are ignored.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v, err := strconv.Atoi(os.Getenv("MODEL_MAX_TOKENS")); err == nil && v > 0 {
		cfg.MaxTokens = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("MODEL_TEMPERATURE"), 32); err == nil && v >= 0 {
		cfg.Temperature = float32(v)
	}
	if v, err := strconv.ParseFloat(os.Getenv("MODEL_TOP_P"), 32); err == nil && v > 0 {
		cfg.TopP = float32(v)
	}
	if d, err := time.ParseDuration(os.Getenv("CHAT_TIMEOUT")); err == nil && d > 0 {
		cfg.TotalTimeout = d
	}
	if d, err := time.ParseDuration(os.Getenv("CHAT_INACTIVITY_TIMEOUT")); err == nil && d > 0 {
		cfg.InactivityTimeout = d
	}
	if v, err := strconv.Atoi(os.Getenv("CHAT_MAX_CONTEXT_TOKENS")); err == nil && v > 0 {
		cfg.MaxContextTokens = v
	}
	return cfg
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.Temperature <= 0 {
		c.Temperature = d.Temperature
	}
	if c.TopP <= 0 {
		c.TopP = d.TopP
	}
	if c.TotalTimeout <= 0 {
		c.TotalTimeout = d.TotalTimeout
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = d.InactivityTimeout
	}
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = d.MaxContextTokens
	}
	return c
}

// Params are per-turn overrides. Zero values fall back to the Config and
// session defaults; Threshold falls back only when nil, so 0 can be asked
// for explicitly.
type Params struct {
	Model        string   `json:"model,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	Temperature  float32  `json:"temperature,omitempty"`
	TopP         float32  `json:"top_p,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	TopK         int      `json:"top_k,omitempty"`
	Threshold    *float32 `json:"threshold,omitempty"`
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithRetriever enables document context injection.
func WithRetriever(r Retriever) Option {
	return func(o *Orchestrator) { o.retriever = r }
}

// WithObserver registers a lifecycle observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator starts turns against a chat model.
type Orchestrator struct {
	// model is the upstream chat model.
	model Streamer

	// sessions owns the conversations turns are written to.
	sessions *session.Registry

	// retriever is optional; without it no document context is injected.
	retriever Retriever

	// observer is optional.
	observer Observer

	cfg Config
	now func() time.Time
}

// New constructs an Orchestrator. Zero cfg fields take the package defaults.
func New(m Streamer, sessions *session.Registry, cfg Config, opts ...Option) (*Orchestrator, error) {
	if m == nil {
		return nil, fmt.Errorf("chat: model must not be nil")
	}
	if sessions == nil {
		return nil, fmt.Errorf("chat: session registry must not be nil")
	}
	o := &Orchestrator{
		model:    m,
		sessions: sessions,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// Send starts a turn. It takes the session's stream lock, builds the request
// and records the user message before any upstream call is made. The returned
// Turn owns the lock until it is closed; callers must range over Deltas or
// call Close.
func (o *Orchestrator) Send(ctx context.Context, sessionID, text string, p Params) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	s, err := o.sessions.Acquire(sessionID)
	if err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx).With(slog.String("session_id", s.ID()))
	ctx = logging.WithLogger(ctx, log)

	msgs, withContext := o.buildMessages(ctx, s, text, p)
	s.Append(session.Message{Role: session.RoleUser, Content: text, Timestamp: o.now().UTC()})

	if o.observer != nil {
		o.observer.TurnStarted()
	}
	log.Info("chat: turn started",
		slog.Int("messages", len(msgs)),
		slog.Bool("document_context", withContext),
	)

	return &Turn{
		orch:     o,
		session:  s,
		parent:   ctx,
		log:      log,
		messages: msgs,
		opts:     o.modelOptions(p),
		started:  o.now(),
		state:    StateInit,
	}, nil
}

// buildMessages assembles [system (+ context)] + trimmed history + user.
func (o *Orchestrator) buildMessages(ctx context.Context, s *session.Session, text string, p Params) ([]*schema.Message, bool) {
	system := p.SystemPrompt
	if strings.TrimSpace(system) == "" {
		system = s.SystemPrompt()
	}

	withContext := false
	if o.retriever != nil {
		if idx := s.Index(); idx != nil {
			framed, ok := o.retriever.RetrieveContext(ctx, idx, text, rag.Options{
				DocumentName: s.DocumentName(),
				TopK:         p.TopK,
				Threshold:    p.Threshold,
			})
			if ok {
				system = rag.AugmentSystemPrompt(system, framed)
				withContext = true
			}
		}
	}

	var history []*schema.Message
	for _, m := range s.Messages() {
		switch m.Role {
		case session.RoleUser:
			history = append(history, schema.UserMessage(m.Content))
		case session.RoleAssistant:
			history = append(history, schema.AssistantMessage(m.Content, nil))
		case session.RoleSystem:
			history = append(history, schema.SystemMessage(m.Content))
		}
	}

	systemMsg := schema.SystemMessage(system)
	userMsg := schema.UserMessage(text)

	fixed := []*schema.Message{systemMsg, userMsg}
	if !budget.Fits(fixed, o.cfg.MaxContextTokens) {
		logging.FromContext(ctx).Warn("budget: system instruction and question alone exceed the context budget",
			slog.Int("estimated_tokens", budget.EstimateMessages(fixed)),
			slog.Int("max_tokens", o.cfg.MaxContextTokens),
		)
	}
	before := len(history)
	history = budget.TrimHistory(fixed, history, o.cfg.MaxContextTokens)
	if dropped := before - len(history); dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(history)),
			slog.Int("max_tokens", o.cfg.MaxContextTokens),
		)
	}

	out := make([]*schema.Message, 0, len(history)+2)
	out = append(out, systemMsg)
	out = append(out, history...)
	out = append(out, userMsg)
	return out, withContext
}

// modelOptions resolves per-turn generation options.
func (o *Orchestrator) modelOptions(p Params) []model.Option {
	maxTokens := o.cfg.MaxTokens
	if p.MaxTokens > 0 {
		maxTokens = p.MaxTokens
	}
	temperature := o.cfg.Temperature
	if p.Temperature > 0 {
		temperature = p.Temperature
	}
	topP := o.cfg.TopP
	if p.TopP > 0 {
		topP = p.TopP
	}

	opts := []model.Option{
		model.WithMaxTokens(maxTokens),
		model.WithTemperature(temperature),
		model.WithTopP(topP),
	}
	name := o.cfg.Model
	if p.Model != "" {
		name = p.Model
	}
	if name != "" {
		opts = append(opts, model.WithModel(name))
	}
	return opts
}
