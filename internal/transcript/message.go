package transcript

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is a single entry in the transcript. Values are immutable once
// stored: every change produces a new Message at the same position.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Created int64  `json:"created"` // unix seconds
}

// CreatedTime returns Created as a time.Time.
func (m Message) CreatedTime() time.Time {
	return time.Unix(m.Created, 0)
}

// withContent returns a copy of m carrying content.
func (m Message) withContent(content string) Message {
	m.Content = content
	return m
}

// NewID returns a fresh message identifier.
func NewID() string {
	return uuid.NewString()
}

// Snapshot is a read-only copy of the transcript at one instant.
type Snapshot []Message

// Last returns the final message, or false when the snapshot is empty.
func (s Snapshot) Last() (Message, bool) {
	if len(s) == 0 {
		return Message{}, false
	}
	return s[len(s)-1], true
}
