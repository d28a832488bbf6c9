// Package session holds per-conversation state. A Registry owns every
// Session, guarantees at least one exists, and implements the lifecycle
// operations (create, switch, delete, rename, duplicate, export, import).
// Each Session carries a single-writer stream lock so that an in-flight
// response cannot interleave with a registry mutation on the same session.
package session

import (
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/54b3r/docchat-go/internal/index"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn in a conversation.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Reasoning string    `json:"reasoning,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats summarises a session's history.
type Stats struct {
	Total      int `json:"total"`
	User       int `json:"user"`
	Assistant  int `json:"assistant"`
	Characters int `json:"characters"`
}

// Session is one conversation. Its fields are guarded by mu; the message
// list additionally has a single writer at a time, held through
// TryAcquire/Release by whoever streams into it.
type Session struct {
	id        string
	createdAt time.Time

	mu           sync.RWMutex
	name         string
	documentName string
	systemPrompt string
	messages     []Message
	index        index.Index

	stream sync.Mutex
}

// ID returns the session's immutable identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Name returns the display name.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// DocumentName returns the bound document's filename, or "".
func (s *Session) DocumentName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.documentName
}

// SystemPrompt returns the session's base instruction.
func (s *Session) SystemPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.systemPrompt
}

// Index returns the bound vector index, or nil.
func (s *Session) Index() index.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// Messages returns a copy of the history.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

// Len returns the number of messages.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Append adds messages to the history. Callers streaming into the session
// must hold the stream lock.
func (s *Session) Append(msgs ...Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
}

// TryAcquire takes the stream lock without blocking and reports whether it
// succeeded.
func (s *Session) TryAcquire() bool { return s.stream.TryLock() }

// Release gives up the stream lock taken by TryAcquire.
func (s *Session) Release() { s.stream.Unlock() }

// Stats counts messages by role and totals their content length in runes.
func (s *Session) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Total: len(s.messages)}
	for _, m := range s.messages {
		switch m.Role {
		case RoleUser:
			st.User++
		case RoleAssistant:
			st.Assistant++
		}
		st.Characters += utf8.RuneCountInString(m.Content)
	}
	return st
}

// bind swaps in a new document index and releases the one it replaces.
func (s *Session) bind(name string, idx index.Index) {
	s.mu.Lock()
	old := s.index
	s.documentName = name
	s.index = idx
	s.mu.Unlock()

	if old != nil && old != idx {
		old.Clear()
	}
}
