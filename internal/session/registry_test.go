package session

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/54b3r/docchat-go/internal/index"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(WithClock(func() time.Time { return fixedNow }))
}

func TestNewRegistry_StartsWithSessionOne(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	cur := r.Current()
	if cur.Name() != "Session 1" {
		t.Errorf("name = %q, want Session 1", cur.Name())
	}
	if cur.SystemPrompt() != DefaultSystemPrompt {
		t.Errorf("system prompt = %q", cur.SystemPrompt())
	}
}

func TestCreate_DefaultNamesCount(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	s2 := r.Create("")
	s3 := r.Create("  ")
	named := r.Create("Research")
	s5 := r.Create("")

	for _, tc := range []struct {
		s    *Session
		want string
	}{{s2, "Session 2"}, {s3, "Session 3"}, {named, "Research"}, {s5, "Session 5"}} {
		if tc.s.Name() != tc.want {
			t.Errorf("name = %q, want %q", tc.s.Name(), tc.want)
		}
	}
	if r.Current().Name() != "Session 1" {
		t.Error("Create changed the current session")
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	a := r.Create("A")
	b := r.Create("B")

	b.Append(Message{Role: RoleUser, Content: "only for B", Timestamp: fixedNow})

	if a.Len() != 0 {
		t.Errorf("session A has %d messages, want 0", a.Len())
	}
	if b.Len() != 1 {
		t.Errorf("session B has %d messages, want 1", b.Len())
	}
}

func TestDelete_LastSessionCreatesReplacement(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	only := r.Current()

	if err := r.Delete(only.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	cur := r.Current()
	if cur == nil || cur.ID() == only.ID() {
		t.Fatal("no fresh current session after deleting the last one")
	}
	if cur.Len() != 0 {
		t.Errorf("replacement has %d messages", cur.Len())
	}
	if cur.Name() != "Session 2" {
		t.Errorf("replacement name = %q, want Session 2", cur.Name())
	}
}

func TestDelete_CurrentSwitchesToFirstRemaining(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	first := r.Current()
	second := r.Create("")
	third := r.Create("")

	if err := r.Switch(third.ID()); err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if err := r.Delete(third.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if r.Current().ID() != first.ID() {
		t.Errorf("current = %q, want first session", r.Current().Name())
	}

	// Deleting a non-current session leaves current alone.
	if err := r.Delete(second.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if r.Current().ID() != first.ID() {
		t.Error("deleting another session changed current")
	}
}

func TestDelete_ReleasesIndex(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	s := r.Create("")
	idx, _ := index.NewFlat(2)
	_ = idx.Add([]string{"a"}, [][]float32{{1, 0}})
	if err := r.BindDocument(s.ID(), "a.txt", idx); err != nil {
		t.Fatalf("BindDocument: %v", err)
	}

	if err := r.Delete(s.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if idx.Size() != 0 {
		t.Error("deleted session's index still holds entries")
	}
}

func TestAcquire(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	s := r.Current()

	got, err := r.Acquire(s.ID())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got != s {
		t.Fatal("Acquire returned a different session")
	}
	if _, err := r.Acquire(s.ID()); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("second Acquire = %v, want ErrSessionBusy", err)
	}
	if err := r.Delete(s.ID()); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("Delete while acquired = %v, want ErrSessionBusy", err)
	}
	if _, err := r.Acquire("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Acquire unknown = %v, want ErrNotFound", err)
	}

	s.Release()
	if err := r.Delete(s.ID()); err != nil {
		t.Fatalf("Delete after release: %v", err)
	}
	if _, err := r.Acquire(s.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Acquire deleted = %v, want ErrNotFound", err)
	}
}

func TestAcquire_RacesDelete(t *testing.T) {
	t.Parallel()

	for range 50 {
		r := newTestRegistry(t)
		id := r.Create("target").ID()

		var wg sync.WaitGroup
		var acquired *Session
		var acquireErr, deleteErr error
		wg.Go(func() { acquired, acquireErr = r.Acquire(id) })
		wg.Go(func() { deleteErr = r.Delete(id) })
		wg.Wait()

		switch {
		case acquireErr == nil:
			// Acquire won: Delete must have seen the stream lock held.
			if !errors.Is(deleteErr, ErrSessionBusy) {
				t.Fatalf("Delete after Acquire = %v, want ErrSessionBusy", deleteErr)
			}
			acquired.Release()
		case errors.Is(acquireErr, ErrNotFound):
			if deleteErr != nil {
				t.Fatalf("Delete won but returned %v", deleteErr)
			}
		default:
			t.Fatalf("Acquire = %v", acquireErr)
		}
	}
}

func TestBusySession(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	s := r.Current()
	if !s.TryAcquire() {
		t.Fatal("TryAcquire on idle session failed")
	}

	if s.TryAcquire() {
		t.Fatal("second TryAcquire succeeded")
	}
	if err := r.Delete(s.ID()); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("Delete busy = %v, want ErrSessionBusy", err)
	}
	if err := r.ClearHistory(s.ID()); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("ClearHistory busy = %v, want ErrSessionBusy", err)
	}
	// Metadata changes do not need the stream lock.
	if err := r.Rename(s.ID(), "Renamed"); err != nil {
		t.Errorf("Rename busy: %v", err)
	}
	if err := r.Switch(s.ID()); err != nil {
		t.Errorf("Switch busy: %v", err)
	}

	s.Release()
	if err := r.Delete(s.ID()); err != nil {
		t.Errorf("Delete after release: %v", err)
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	for name, err := range map[string]error{
		"switch":    r.Switch("nope"),
		"delete":    r.Delete("nope"),
		"rename":    r.Rename("nope", "x"),
		"clear":     r.ClearHistory("nope"),
		"bind":      r.BindDocument("nope", "a", nil),
		"sysprompt": r.SetSystemPrompt("nope", "x"),
	} {
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: error = %v, want ErrNotFound", name, err)
		}
	}
	if _, err := r.Duplicate("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("duplicate: error = %v, want ErrNotFound", err)
	}
}

func TestRename_Empty(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	if err := r.Rename(r.Current().ID(), "   "); !errors.Is(err, ErrInvalidName) {
		t.Errorf("error = %v, want ErrInvalidName", err)
	}
}

func TestDuplicate(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	src := r.Current()
	idx, _ := index.NewFlat(2)
	_ = idx.Add([]string{"a"}, [][]float32{{1, 0}})
	_ = r.BindDocument(src.ID(), "manual.pdf", idx)
	_ = r.SetSystemPrompt(src.ID(), "Answer in French.")
	src.Append(Message{Role: RoleUser, Content: "hi", Timestamp: fixedNow})

	dup, err := r.Duplicate(src.ID())
	if err != nil {
		t.Fatalf("Duplicate: %v", err)
	}
	if dup.ID() == src.ID() {
		t.Fatal("duplicate shares the id")
	}
	if dup.Name() != "Session 1 (Copy)" {
		t.Errorf("name = %q", dup.Name())
	}
	if dup.DocumentName() != "manual.pdf" || dup.SystemPrompt() != "Answer in French." {
		t.Errorf("metadata not copied: %q / %q", dup.DocumentName(), dup.SystemPrompt())
	}
	if dup.Index() != nil {
		t.Error("duplicate shares the source index")
	}

	// Deep copy: appending to the source leaves the copy alone.
	src.Append(Message{Role: RoleAssistant, Content: "hello", Timestamp: fixedNow})
	if dup.Len() != 1 {
		t.Errorf("duplicate has %d messages, want 1", dup.Len())
	}
}

func TestBindDocument_ReplacedIndexCleared(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	id := r.Current().ID()
	first, _ := index.NewFlat(2)
	_ = first.Add([]string{"a"}, [][]float32{{1, 0}})
	second, _ := index.NewFlat(2)

	_ = r.BindDocument(id, "one.txt", first)
	_ = r.BindDocument(id, "two.txt", second)
	if first.Size() != 0 {
		t.Error("replaced index was not cleared")
	}
	if r.Current().DocumentName() != "two.txt" {
		t.Errorf("document name = %q", r.Current().DocumentName())
	}

	if err := r.ClearDocument(id); err != nil {
		t.Fatalf("ClearDocument: %v", err)
	}
	if r.Current().Index() != nil || r.Current().DocumentName() != "" {
		t.Error("ClearDocument left document state behind")
	}
}

func TestStatsAndClearHistory(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	s := r.Current()
	s.Append(
		Message{Role: RoleUser, Content: "héllo"},
		Message{Role: RoleAssistant, Content: "hi", Reasoning: "ignored"},
		Message{Role: RoleUser, Content: "bye"},
	)

	st, err := r.Stats(s.ID())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := Stats{Total: 3, User: 2, Assistant: 1, Characters: 10}
	if st != want {
		t.Errorf("Stats() = %+v, want %+v", st, want)
	}

	if err := r.ClearHistory(s.ID()); err != nil {
		t.Fatalf("ClearHistory: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() after clear = %d", s.Len())
	}
}

func TestSetSystemPrompt_EmptyRestoresDefault(t *testing.T) {
	t.Parallel()

	r := NewRegistry(WithSystemPrompt("Be terse."))
	id := r.Current().ID()
	_ = r.SetSystemPrompt(id, "Be verbose.")
	_ = r.SetSystemPrompt(id, "")
	if got := r.Current().SystemPrompt(); got != "Be terse." {
		t.Errorf("system prompt = %q, want registry default", got)
	}
}

func TestExportImport_RoundTrip(t *testing.T) {
	t.Parallel()

	src := newTestRegistry(t)
	s := src.Current()
	_ = src.BindDocument(s.ID(), "faq.md", nil)
	s.Append(
		Message{Role: RoleSystem, Content: "context note", Timestamp: fixedNow},
		Message{Role: RoleUser, Content: "What is covered?", Timestamp: fixedNow.Add(time.Second)},
		Message{Role: RoleAssistant, Content: "Defects.", Reasoning: "check warranty", Timestamp: fixedNow.Add(2 * time.Second)},
	)

	snap, err := src.Export(s.ID())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	dst := newTestRegistry(t)
	imported, res, err := dst.Import(data)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res != (ImportResult{Imported: 3, Skipped: 0}) {
		t.Errorf("result = %+v", res)
	}
	if imported.ID() == s.ID() {
		t.Error("import reused the exported id")
	}
	if imported.Name() != s.Name() || imported.DocumentName() != "faq.md" {
		t.Errorf("metadata = %q / %q", imported.Name(), imported.DocumentName())
	}

	got, want := imported.Messages(), s.Messages()
	if len(got) != len(want) {
		t.Fatalf("imported %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Role != want[i].Role || got[i].Content != want[i].Content ||
			got[i].Reasoning != want[i].Reasoning || !got[i].Timestamp.Equal(want[i].Timestamp) {
			t.Errorf("message %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestExport_JSONShape(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	r.Current().Append(Message{Role: RoleUser, Content: "hi", Timestamp: fixedNow})
	snap, _ := r.Export(r.Current().ID())
	data, _ := json.Marshal(snap)

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"id", "name", "created_at", "document_name", "messages"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("export lacks %q", key)
		}
	}
	msg := raw["messages"].([]any)[0].(map[string]any)
	if _, ok := msg["reasoning"]; ok {
		t.Error("empty reasoning should be omitted")
	}
}

func TestImport_SkipsInvalidRole(t *testing.T) {
	t.Parallel()

	data := []byte(`{
		"name": "Imported",
		"messages": [
			{"role": "user", "content": "one", "timestamp": "2026-01-01T00:00:00Z"},
			{"role": "assistant", "content": "two"},
			{"role": "hacker", "content": "rm -rf /"},
			{"role": "user", "content": "three"}
		]
	}`)

	r := newTestRegistry(t)
	s, res, err := r.Import(data)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Imported != 3 || res.Skipped != 1 {
		t.Errorf("result = %+v, want 3 imported 1 skipped", res)
	}
	if s.Len() != 3 {
		t.Errorf("session has %d messages, want 3", s.Len())
	}
	msgs := s.Messages()
	if !msgs[1].Timestamp.Equal(fixedNow) {
		t.Errorf("missing timestamp = %v, want import time", msgs[1].Timestamp)
	}
	if r.Len() != 2 || r.Current().ID() == s.ID() {
		t.Error("import should add a session without switching to it")
	}
}

func TestImport_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		data        string
		wantErr     bool
		wantSkipped int
		wantName    string
	}{
		{name: "not json", data: `{nope`, wantErr: true},
		{name: "array document", data: `[]`, wantErr: true},
		{name: "missing messages", data: `{"name":"x"}`, wantErr: true},
		{name: "messages not array", data: `{"messages":"hi"}`, wantErr: true},
		{name: "messages null", data: `{"messages":null}`, wantErr: true},
		{name: "empty messages", data: `{"messages":[]}`, wantName: "Session 2"},
		{
			name:        "content not text",
			data:        `{"messages":[{"role":"user","content":42},{"role":"user","content":"ok"}]}`,
			wantSkipped: 1,
			wantName:    "Session 2",
		},
		{
			name:        "missing role and null entry",
			data:        `{"messages":[{"content":"x"},null,"str"]}`,
			wantSkipped: 3,
			wantName:    "Session 2",
		},
		{
			name:        "content too long",
			data:        `{"messages":[{"role":"user","content":"` + strings.Repeat("a", MaxContentChars+1) + `"}]}`,
			wantSkipped: 1,
			wantName:    "Session 2",
		},
		{
			name:     "bad header fields ignored",
			data:     `{"name":"Kept","created_at":"yesterday","messages":[]}`,
			wantName: "Kept",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := newTestRegistry(t)
			s, res, err := r.Import([]byte(tc.data))
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidSnapshot) {
					t.Fatalf("error = %v, want ErrInvalidSnapshot", err)
				}
				if r.Len() != 1 {
					t.Error("rejected import still added a session")
				}
				return
			}
			if err != nil {
				t.Fatalf("Import: %v", err)
			}
			if res.Skipped != tc.wantSkipped {
				t.Errorf("skipped = %d, want %d", res.Skipped, tc.wantSkipped)
			}
			if s.Name() != tc.wantName {
				t.Errorf("name = %q, want %q", s.Name(), tc.wantName)
			}
		})
	}
}

func TestRegistry_ConcurrentUse(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := r.Create("")
			s.Append(Message{Role: RoleUser, Content: "x"})
			if i%2 == 0 {
				_ = r.Delete(s.ID())
			} else {
				_ = r.Switch(s.ID())
			}
			_ = r.List()
		}()
	}
	wg.Wait()

	if r.Len() != 9 {
		t.Errorf("Len() = %d, want 9", r.Len())
	}
	if r.Current() == nil {
		t.Error("no current session")
	}
}
