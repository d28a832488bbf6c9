package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/54b3r/docchat-go/internal/index"
	"github.com/54b3r/docchat-go/internal/ingestion"
	"github.com/54b3r/docchat-go/internal/session"
)

// fakeIngester returns a two-chunk flat index for any upload.
type fakeIngester struct {
	calls int
	err   error
}

func (f *fakeIngester) Run(_ context.Context, _ []byte, filename string, _ func(string)) (*ingestion.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	idx, err := index.NewFlat(2)
	if err != nil {
		return nil, err
	}
	if err := idx.Add([]string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}); err != nil {
		return nil, err
	}
	return &ingestion.Result{
		Document: &ingestion.Document{Name: filename, Chunks: []ingestion.Chunk{{Text: "a"}, {Text: "b"}}},
		Index:    idx,
		Model:    "fake",
	}, nil
}

func newTestEngine(t *testing.T, ing Ingester) *Engine {
	t.Helper()
	sessions := session.NewRegistry()
	orch, err := New(&scriptStreamer{}, sessions, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e, err := NewEngine(sessions, orch, ing)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestEngine_UploadDocumentBindsIndex(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &fakeIngester{})
	s := e.Sessions.Current()

	first, err := e.UploadDocument(context.Background(), s.ID(), []byte("x"), "first.txt", nil)
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if s.DocumentName() != "first.txt" || s.Index() != first.Index {
		t.Fatalf("session bound to %q / %v", s.DocumentName(), s.Index())
	}

	if _, err := e.UploadDocument(context.Background(), s.ID(), []byte("y"), "second.txt", nil); err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if s.DocumentName() != "second.txt" {
		t.Errorf("document = %q, want second.txt", s.DocumentName())
	}
	if first.Index.Size() != 0 {
		t.Error("replaced index was not cleared")
	}
}

func TestEngine_UploadDocumentErrors(t *testing.T) {
	t.Parallel()

	ing := &fakeIngester{}
	e := newTestEngine(t, ing)
	if _, err := e.UploadDocument(context.Background(), "missing", nil, "a.txt", nil); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("unknown session error = %v, want ErrNotFound", err)
	}
	if ing.calls != 0 {
		t.Error("ingester ran for an unknown session")
	}

	failing := &fakeIngester{err: ingestion.ErrEmptyContent}
	e = newTestEngine(t, failing)
	s := e.Sessions.Current()
	if _, err := e.UploadDocument(context.Background(), s.ID(), nil, "a.txt", nil); !errors.Is(err, ingestion.ErrEmptyContent) {
		t.Errorf("ingest error = %v, want ErrEmptyContent", err)
	}
	if s.Index() != nil {
		t.Error("failed upload bound an index")
	}
}

func TestNewEngine_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewEngine(nil, nil, nil); err == nil {
		t.Error("expected error for missing dependencies")
	}
}
