package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/54b3r/docchat-go/internal/logging"
)

// SSE event names emitted by POST /api/chat.
const (
	eventReasoning = "reasoning"
	eventContent   = "content"
	eventError     = "error"
	eventDone      = "done"
)

// handleChat handles POST /api/chat. It streams the answer as Server-Sent
// Events: reasoning and content deltas as they arrive, an error event when
// the turn failed, and always a final done event. A client that disconnects
// mid-stream abandons the turn, which keeps the partial answer.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req chatRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	id := req.SessionID
	if id == "" {
		id = s.currentID()
	}

	// Busy and unknown sessions are rejected before any SSE header is sent.
	turn, err := s.engine.Send(ctx, id, req.Message, req.Params)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	defer turn.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sse := &sseWriter{w: w, rc: http.NewResponseController(w)}
	log := logging.FromContext(ctx).With(slog.String("session_id", id))

	for d := range turn.Deltas() {
		if d.Reasoning != "" {
			if err := sse.event(eventReasoning, textEvent{Text: d.Reasoning}); err != nil {
				log.Warn("chat: client write failed, abandoning turn", slog.Any("error", err))
				return
			}
		}
		if d.Content != "" {
			if err := sse.event(eventContent, textEvent{Text: d.Content}); err != nil {
				log.Warn("chat: client write failed, abandoning turn", slog.Any("error", err))
				return
			}
		}
		if d.Err != nil {
			_ = sse.event(eventError, errorEvent{Error: d.Err.Error()})
		}
	}
	_ = sse.raw(eventDone, "[DONE]")
}

// sseWriter emits Server-Sent Event frames and flushes after each one.
type sseWriter struct {
	// w is the underlying response writer.
	w http.ResponseWriter
	// rc flushes through any middleware wrappers.
	rc *http.ResponseController
}

// event writes one frame whose data line is the JSON encoding of v. JSON
// never contains a raw newline, so a frame is always a single data line.
func (s *sseWriter) event(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("server: encode %s event: %w", name, err)
	}
	return s.raw(name, string(data))
}

// raw writes one frame with a literal data line.
func (s *sseWriter) raw(name, data string) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return s.rc.Flush()
}
