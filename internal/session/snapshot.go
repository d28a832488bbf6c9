package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// MaxContentChars caps the content of an imported message, in runes.
const MaxContentChars = 100000

// ErrInvalidSnapshot is returned when a snapshot is not a JSON object with a
// messages array.
var ErrInvalidSnapshot = errors.New("session: invalid snapshot")

// Snapshot is the export format of a session.
type Snapshot struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	DocumentName string    `json:"document_name"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`
}

// ImportResult reports how many snapshot entries were kept and dropped.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// snapshotEntry is the validated shape of one imported message.
type snapshotEntry struct {
	Role      string     `json:"role" validate:"required,oneof=user assistant system"`
	Content   string     `json:"content" validate:"max=100000"`
	Reasoning string     `json:"reasoning" validate:"max=100000"`
	Timestamp *time.Time `json:"timestamp"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// parsedSnapshot is a snapshot after structural checks.
type parsedSnapshot struct {
	name         string
	documentName string
	systemPrompt *string
	createdAt    time.Time
	messages     []Message
	result       ImportResult
}

// parseSnapshot decodes data leniently. Only a non-object document or a
// missing or non-array messages key fails the whole parse; header fields
// that do not decode are ignored and message entries that fail to decode
// or validate are skipped and counted.
func parseSnapshot(data []byte, now time.Time) (*parsedSnapshot, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	rawMessages, ok := fields["messages"]
	if !ok {
		return nil, fmt.Errorf("%w: missing messages", ErrInvalidSnapshot)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(rawMessages, &entries); err != nil || entries == nil {
		return nil, fmt.Errorf("%w: messages is not an array", ErrInvalidSnapshot)
	}

	p := &parsedSnapshot{createdAt: now}
	_ = json.Unmarshal(fields["name"], &p.name)
	_ = json.Unmarshal(fields["document_name"], &p.documentName)
	if raw, ok := fields["system_prompt"]; ok {
		var prompt string
		if json.Unmarshal(raw, &prompt) == nil {
			p.systemPrompt = &prompt
		}
	}
	var created time.Time
	if json.Unmarshal(fields["created_at"], &created) == nil && !created.IsZero() {
		p.createdAt = created
	}
	p.name = strings.TrimSpace(p.name)

	p.messages = make([]Message, 0, len(entries))
	for _, raw := range entries {
		var e snapshotEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			p.result.Skipped++
			continue
		}
		if err := validate.Struct(e); err != nil {
			p.result.Skipped++
			continue
		}
		ts := now
		if e.Timestamp != nil && !e.Timestamp.IsZero() {
			ts = *e.Timestamp
		}
		p.messages = append(p.messages, Message{
			Role:      Role(e.Role),
			Content:   e.Content,
			Reasoning: e.Reasoning,
			Timestamp: ts,
		})
	}
	p.result.Imported = len(p.messages)
	return p, nil
}
