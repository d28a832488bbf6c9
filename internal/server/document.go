package server

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/54b3r/docchat-go/internal/logging"
)

// handleUploadDocument handles POST /api/sessions/{id}/document. The file
// travels in the multipart field "file". The new index replaces the
// session's previous document.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)
	id := r.PathValue("id")

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: multipart field \"file\": %w", errBadRequest, err))
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: read upload: %w", errBadRequest, err))
		return
	}
	name := filepath.Base(header.Filename)

	start := time.Now()
	res, err := s.engine.UploadDocument(ctx, id, raw, name, func(msg string) {
		log.Debug("server: upload progress", slog.String("session_id", id), slog.String("stage", msg))
	})
	if err != nil {
		s.metrics.ObserveUpload("error", 0, time.Since(start))
		writeError(ctx, w, err)
		return
	}
	s.metrics.ObserveUpload("ok", res.Index.Size(), time.Since(start))

	resp := uploadResponse{
		Document:  res.Document.Name,
		Chunks:    res.Index.Size(),
		Backend:   string(res.Index.Backend()),
		Dimension: res.Index.Dimension(),
		Model:     res.Model,
	}
	if s.cfg.Embedder != nil {
		resp.Degraded = s.cfg.Embedder.Degraded()
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

// handleClearDocument handles DELETE /api/sessions/{id}/document.
func (s *Server) handleClearDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Sessions.ClearDocument(r.PathValue("id")); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
