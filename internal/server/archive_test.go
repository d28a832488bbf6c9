package server

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/54b3r/docchat-go/internal/session"
	"github.com/54b3r/docchat-go/internal/store"
)

func newArchiveHarness(t *testing.T) *harness {
	t.Helper()
	archive, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = archive.Close() })
	return newHarness(t, nil, &Config{Archive: archive})
}

func TestArchive_SaveListGetRestore(t *testing.T) {
	t.Parallel()

	h := newArchiveHarness(t)
	src := h.sessions.Current()
	src.Append(
		session.Message{Role: session.RoleUser, Content: "q"},
		session.Message{Role: session.RoleAssistant, Content: "a"},
	)

	w := h.do(t, http.MethodPost, "/api/sessions/"+src.ID()+"/archive", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("archive status = %d, body %s", w.Code, w.Body.String())
	}
	entry := decode[store.Entry](t, w)
	if entry.SessionID != src.ID() || entry.Messages != 2 {
		t.Errorf("entry = %+v", entry)
	}

	list := decode[[]store.Entry](t, h.do(t, http.MethodGet, "/api/archive", nil))
	if len(list) != 1 || list[0].ID != entry.ID {
		t.Fatalf("list = %+v", list)
	}

	path := "/api/archive/" + strconv.FormatInt(entry.ID, 10)
	rec := decode[store.Record](t, h.do(t, http.MethodGet, path, nil))
	if rec.Name != src.Name() || len(rec.Payload) == 0 {
		t.Errorf("record = %+v", rec)
	}

	w = h.do(t, http.MethodPost, path+"/restore", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("restore status = %d", w.Code)
	}
	restored := decode[importResponse](t, w)
	if restored.Imported != 2 || restored.Session.ID == src.ID() {
		t.Errorf("restore = %+v", restored)
	}
	if h.sessions.Len() != 2 {
		t.Errorf("sessions = %d after restore, want 2", h.sessions.Len())
	}
}

func TestArchive_Errors(t *testing.T) {
	t.Parallel()

	h := newArchiveHarness(t)
	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"unknown session", http.MethodPost, "/api/sessions/nope/archive", http.StatusNotFound},
		{"unknown record", http.MethodGet, "/api/archive/999", http.StatusNotFound},
		{"non-numeric id", http.MethodGet, "/api/archive/abc", http.StatusNotFound},
		{"bad limit", http.MethodGet, "/api/archive?limit=many", http.StatusBadRequest},
		{"restore unknown", http.MethodPost, "/api/archive/999/restore", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if w := h.do(t, tc.method, tc.path, nil); w.Code != tc.status {
				t.Errorf("%s %s = %d, want %d", tc.method, tc.path, w.Code, tc.status)
			}
		})
	}
}

func TestArchive_Disabled(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, nil)
	id := h.sessions.Current().ID()
	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/sessions/" + id + "/archive"},
		{http.MethodGet, "/api/archive"},
		{http.MethodGet, "/api/archive/1"},
		{http.MethodPost, "/api/archive/1/restore"},
	} {
		if w := h.do(t, tc.method, tc.path, nil); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s = %d, want 503", tc.method, tc.path, w.Code)
		}
	}
}

func TestArchive_EmptyListIsArray(t *testing.T) {
	t.Parallel()

	h := newArchiveHarness(t)
	w := h.do(t, http.MethodGet, "/api/archive", nil)
	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want []", body)
	}
}
