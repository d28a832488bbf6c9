package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/store"
)

// defaultArchiveLimit bounds GET /api/archive without a limit parameter.
const defaultArchiveLimit = 50

// handleArchiveSession handles POST /api/sessions/{id}/archive.
func (s *Server) handleArchiveSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.archive == nil {
		writeError(ctx, w, errArchiveDisabled)
		return
	}
	snap, err := s.engine.Sessions.Export(r.PathValue("id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	entry, err := s.archive.Save(ctx, snap)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	logging.FromContext(ctx).Info("server: session archived",
		slog.String("session_id", snap.ID),
		slog.Int64("archive_id", entry.ID),
		slog.Int("messages", entry.Messages),
	)
	writeJSON(ctx, w, http.StatusCreated, entry)
}

// handleListArchive handles GET /api/archive?limit=N, newest first.
func (s *Server) handleListArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.archive == nil {
		writeError(ctx, w, errArchiveDisabled)
		return
	}
	limit := defaultArchiveLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(ctx, w, fmt.Errorf("%w: limit %q is not an integer", errBadRequest, v))
			return
		}
		limit = n
	}
	entries, err := s.archive.List(ctx, limit)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	writeJSON(ctx, w, http.StatusOK, entries)
}

// archiveRecord loads the record named by the {id} path value.
func (s *Server) archiveRecord(r *http.Request) (*store.Record, error) {
	if s.archive == nil {
		return nil, errArchiveDisabled
	}
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: archive id %q", store.ErrNotFound, raw)
	}
	return s.archive.Get(r.Context(), id)
}

// handleGetArchive handles GET /api/archive/{id}.
func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	rec, err := s.archiveRecord(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, rec)
}

// handleRestoreArchive handles POST /api/archive/{id}/restore by importing
// the archived snapshot as a new session.
func (s *Server) handleRestoreArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := s.archiveRecord(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	sess, res, err := s.engine.Sessions.Import(rec.Payload)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, importResponse{
		Session:  newSessionView(sess, s.currentID()),
		Imported: res.Imported,
		Skipped:  res.Skipped,
	})
}
