package server

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/session"
)

// newSessionView summarises sess. currentID marks the current session.
func newSessionView(sess *session.Session, currentID string) sessionView {
	return sessionView{
		ID:           sess.ID(),
		Name:         sess.Name(),
		CreatedAt:    sess.CreatedAt(),
		DocumentName: sess.DocumentName(),
		SystemPrompt: sess.SystemPrompt(),
		Messages:     sess.Len(),
		Current:      sess.ID() == currentID,
	}
}

func (s *Server) currentID() string { return s.engine.Sessions.Current().ID() }

// handleListSessions handles GET /api/sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	current := s.currentID()
	list := s.engine.Sessions.List()
	resp := listSessionsResponse{Current: current, Sessions: make([]sessionView, 0, len(list))}
	for _, sess := range list {
		resp.Sessions = append(resp.Sessions, newSessionView(sess, current))
	}
	writeJSON(r.Context(), w, http.StatusOK, resp)
}

// handleCreateSession handles POST /api/sessions. The body is optional.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	sess := s.engine.Sessions.Create(req.Name)
	logging.FromContext(r.Context()).Info("server: session created",
		slog.String("session_id", sess.ID()),
		slog.String("name", sess.Name()),
	)
	writeJSON(r.Context(), w, http.StatusCreated, newSessionView(sess, s.currentID()))
}

// handleGetSession handles GET /api/sessions/{id}.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.Sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	history := sess.Messages()
	if history == nil {
		history = []session.Message{}
	}
	writeJSON(r.Context(), w, http.StatusOK, sessionDetail{
		sessionView: newSessionView(sess, s.currentID()),
		History:     history,
	})
}

// handleUpdateSession handles PATCH /api/sessions/{id}.
func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req updateSessionRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	reg := s.engine.Sessions
	if req.Name != nil {
		if err := reg.Rename(id, *req.Name); err != nil {
			writeError(r.Context(), w, err)
			return
		}
	}
	if req.SystemPrompt != nil {
		if err := reg.SetSystemPrompt(id, *req.SystemPrompt); err != nil {
			writeError(r.Context(), w, err)
			return
		}
	}

	sess, err := reg.Get(id)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, newSessionView(sess, s.currentID()))
}

// handleDeleteSession handles DELETE /api/sessions/{id}. The response
// carries the current session afterwards, which is new when the last
// session was deleted.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.Sessions.Delete(id); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	logging.FromContext(r.Context()).Info("server: session deleted", slog.String("session_id", id))
	s.handleListSessions(w, r)
}

// handleSwitchSession handles POST /api/sessions/{id}/switch.
func (s *Server) handleSwitchSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.Sessions.Switch(id); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	sess, err := s.engine.Sessions.Get(id)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, newSessionView(sess, id))
}

// handleDuplicateSession handles POST /api/sessions/{id}/duplicate.
func (s *Server) handleDuplicateSession(w http.ResponseWriter, r *http.Request) {
	dup, err := s.engine.Sessions.Duplicate(r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusCreated, newSessionView(dup, s.currentID()))
}

// handleExportSession handles GET /api/sessions/{id}/export.
func (s *Server) handleExportSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Sessions.Export(r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "session-"+snap.ID+".json"))
	writeJSON(r.Context(), w, http.StatusOK, snap)
}

// handleImportSession handles POST /api/sessions/import. The body is a
// snapshot as produced by export.
func (s *Server) handleImportSession(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes))
	if err != nil {
		writeError(r.Context(), w, fmt.Errorf("%w: read snapshot: %w", errBadRequest, err))
		return
	}
	sess, res, err := s.engine.Sessions.Import(data)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	logging.FromContext(r.Context()).Info("server: session imported",
		slog.String("session_id", sess.ID()),
		slog.Int("imported", res.Imported),
		slog.Int("skipped", res.Skipped),
	)
	writeJSON(r.Context(), w, http.StatusCreated, importResponse{
		Session:  newSessionView(sess, s.currentID()),
		Imported: res.Imported,
		Skipped:  res.Skipped,
	})
}

// handleSessionStats handles GET /api/sessions/{id}/stats.
func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Sessions.Stats(r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, st)
}

// handleClearMessages handles DELETE /api/sessions/{id}/messages.
func (s *Server) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Sessions.ClearHistory(r.PathValue("id")); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
