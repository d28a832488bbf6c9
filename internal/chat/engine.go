package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/docchat-go/internal/ingestion"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/session"
)

// Ingester builds an index from an uploaded file.
type Ingester interface {
	Run(ctx context.Context, raw []byte, filename string, progress func(msg string)) (*ingestion.Result, error)
}

// Engine bundles the session registry, the upload pipeline and the
// orchestrator behind the operations the HTTP API and CLI expose.
type Engine struct {
	Sessions *session.Registry
	Chat     *Orchestrator

	ingester Ingester
}

// NewEngine constructs an Engine.
func NewEngine(sessions *session.Registry, orch *Orchestrator, ingester Ingester) (*Engine, error) {
	if sessions == nil || orch == nil || ingester == nil {
		return nil, fmt.Errorf("chat: engine needs a registry, an orchestrator and an ingester")
	}
	return &Engine{Sessions: sessions, Chat: orch, ingester: ingester}, nil
}

// UploadDocument ingests a file and binds the resulting index to the
// session, replacing and clearing any previous document. If the session
// disappears while the upload runs, the new index is released.
func (e *Engine) UploadDocument(ctx context.Context, sessionID string, raw []byte, filename string, progress func(string)) (*ingestion.Result, error) {
	if _, err := e.Sessions.Get(sessionID); err != nil {
		return nil, err
	}

	res, err := e.ingester.Run(ctx, raw, filename, progress)
	if err != nil {
		return nil, err
	}
	if err := e.Sessions.BindDocument(sessionID, res.Document.Name, res.Index); err != nil {
		res.Index.Clear()
		return nil, err
	}

	logging.FromContext(ctx).Info("chat: document bound to session",
		slog.String("session_id", sessionID),
		slog.String("document", res.Document.Name),
		slog.Int("chunks", res.Index.Size()),
	)
	return res, nil
}

// Send starts a turn on the session. See Orchestrator.Send.
func (e *Engine) Send(ctx context.Context, sessionID, text string, p Params) (*Turn, error) {
	return e.Chat.Send(ctx, sessionID, text, p)
}
