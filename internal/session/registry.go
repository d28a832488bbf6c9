package session

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/docchat-go/internal/index"
)

// DefaultSystemPrompt is the base instruction of new sessions.
const DefaultSystemPrompt = "You are a helpful AI assistant."

var (
	// ErrNotFound is returned for an unknown session id.
	ErrNotFound = errors.New("session: not found")
	// ErrSessionBusy is returned when a session has a response in flight.
	ErrSessionBusy = errors.New("session: a response is still streaming")
	// ErrInvalidName is returned for an empty session name.
	ErrInvalidName = errors.New("session: name must not be empty")
)

// Option customises a Registry.
type Option func(*Registry)

// WithSystemPrompt sets the base instruction given to new sessions.
func WithSystemPrompt(prompt string) Option {
	return func(r *Registry) { r.systemPrompt = prompt }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry owns every session and the notion of the current one. It always
// holds at least one session. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
	current  string
	counter  int

	systemPrompt string
	now          func() time.Time
}

// NewRegistry returns a registry holding "Session 1", which is current.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions:     make(map[string]*Session),
		systemPrompt: DefaultSystemPrompt,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.current = r.createLocked("").id
	return r
}

// createLocked adds a session. The caller holds r.mu or is the constructor.
func (r *Registry) createLocked(name string) *Session {
	r.counter++
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Session %d", r.counter)
	}
	s := &Session{
		id:           uuid.NewString(),
		createdAt:    r.now().UTC(),
		name:         name,
		systemPrompt: r.systemPrompt,
	}
	r.add(s)
	return s
}

func (r *Registry) add(s *Session) {
	r.sessions[s.id] = s
	r.order = append(r.order, s.id)
}

// Create adds a session. An empty name produces "Session N".
func (r *Registry) Create(name string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createLocked(name)
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(id)
}

// Acquire looks up id and takes its stream lock in one critical section, so
// a concurrent Delete either runs first or sees the session busy. The caller
// must Release the session when the stream ends.
func (r *Registry) Acquire(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.getLocked(id)
	if err != nil {
		return nil, err
	}
	if !s.TryAcquire() {
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, id)
	}
	return s, nil
}

func (r *Registry) getLocked(id string) (*Session, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Current returns the current session. It is never nil.
func (r *Registry) Current() *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[r.current]
}

// List returns every session in creation order.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, len(r.order))
	for i, id := range r.order {
		out[i] = r.sessions[id]
	}
	return out
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Switch makes id the current session.
func (r *Registry) Switch(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.getLocked(id); err != nil {
		return err
	}
	r.current = id
	return nil
}

// Delete removes a session and releases its index. Deleting the current
// session makes the first remaining one current; deleting the last one
// creates a fresh session in the same critical section.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.getLocked(id)
	if err != nil {
		return err
	}
	if !s.TryAcquire() {
		return fmt.Errorf("%w: %s", ErrSessionBusy, id)
	}
	defer s.Release()

	delete(r.sessions, id)
	r.order = slices.DeleteFunc(r.order, func(v string) bool { return v == id })
	s.bind("", nil)

	if len(r.order) == 0 {
		r.current = r.createLocked("").id
		return nil
	}
	if r.current == id {
		r.current = r.order[0]
	}
	return nil
}

// Rename sets a session's display name.
func (r *Registry) Rename(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
	return nil
}

// Duplicate copies a session's messages, document name and system prompt
// under a new id. The copy has no index: the original keeps sole ownership
// of it, so the copy answers without document context until a document is
// uploaded to it.
func (r *Registry) Duplicate(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, err := r.getLocked(id)
	if err != nil {
		return nil, err
	}

	src.mu.RLock()
	dup := &Session{
		id:           uuid.NewString(),
		createdAt:    r.now().UTC(),
		name:         src.name + " (Copy)",
		documentName: src.documentName,
		systemPrompt: src.systemPrompt,
		messages:     slices.Clone(src.messages),
	}
	src.mu.RUnlock()

	r.add(dup)
	return dup, nil
}

// BindDocument attaches a freshly built index to a session. The index it
// replaces is cleared.
func (r *Registry) BindDocument(id, name string, idx index.Index) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	s.bind(name, idx)
	return nil
}

// ClearDocument detaches and clears the session's index.
func (r *Registry) ClearDocument(id string) error {
	return r.BindDocument(id, "", nil)
}

// ClearHistory empties the message list. It fails with ErrSessionBusy while
// a response is streaming into the session.
func (r *Registry) ClearHistory(id string) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	if !s.TryAcquire() {
		return fmt.Errorf("%w: %s", ErrSessionBusy, id)
	}
	defer s.Release()

	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
	return nil
}

// SetSystemPrompt replaces the session's base instruction. An empty prompt
// restores the registry default.
func (r *Registry) SetSystemPrompt(id, prompt string) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = r.systemPrompt
	}
	s.mu.Lock()
	s.systemPrompt = prompt
	s.mu.Unlock()
	return nil
}

// Stats returns the message statistics of a session.
func (r *Registry) Stats(id string) (Stats, error) {
	s, err := r.Get(id)
	if err != nil {
		return Stats{}, err
	}
	return s.Stats(), nil
}

// Export returns a snapshot of a session.
func (r *Registry) Export(id string) (Snapshot, error) {
	s, err := r.Get(id)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := slices.Clone(s.messages)
	if msgs == nil {
		msgs = []Message{}
	}
	return Snapshot{
		ID:           s.id,
		Name:         s.name,
		CreatedAt:    s.createdAt,
		DocumentName: s.documentName,
		SystemPrompt: s.systemPrompt,
		Messages:     msgs,
	}, nil
}

// Import adds a session built from a JSON snapshot under a new id. Entries
// that fail validation are skipped and counted; only a snapshot without a
// messages array is rejected. The imported session does not become current.
func (r *Registry) Import(data []byte) (*Session, ImportResult, error) {
	p, err := parseSnapshot(data, r.now().UTC())
	if err != nil {
		return nil, ImportResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.createLocked(p.name)
	s.createdAt = p.createdAt
	s.documentName = p.documentName
	if p.systemPrompt != nil && strings.TrimSpace(*p.systemPrompt) != "" {
		s.systemPrompt = *p.systemPrompt
	}
	s.messages = p.messages
	return s, p.result, nil
}
