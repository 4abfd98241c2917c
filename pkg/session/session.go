// Package session implements the Session Manager (creation, lookup,
// destruction, idle eviction) that backs a Recursive Completion Loop's
// conversational transcript and interpreter variable store across turns.
package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/opencompletion/rce/pkg/interpreter"
)

var (
	ErrInvalidSessionID = errors.New("session: invalid session id")
	ErrSessionClosed    = errors.New("session: session is closed")
	ErrInvalidMessage   = errors.New("session: invalid message")
)

// ToolCall records a tool invocation against one transcript message.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Output    any            `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp,omitempty"`
}

// Message is a single conversational turn persisted in a session.
type Message struct {
	ID        string     `json:"id"`
	Role      string     `json:"role"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Filter constrains the message subset returned by Session.List.
type Filter struct {
	Role   string
	Limit  int
	Offset int
}

// Session bundles a conversational transcript with the persistent
// interpreter variable store a sub_complete/interpreter tool call may read
// and write across turns. All access to a given Session must be serialized
// by its caller — Manager does this by holding a per-session mutex around
// every operation dispatched through it.
type Session struct {
	id          string
	mu          sync.Mutex
	messages    []Message
	interp      *interpreter.Session
	createdAt   time.Time
	lastAccess  time.Time
	closed      bool
	seq         uint64
}

func newSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		id:         id,
		interp:     interpreter.NewSession(),
		createdAt:  now,
		lastAccess: now,
	}
}

// ID returns the session's stable identifier.
func (s *Session) ID() string { return s.id }

// Interpreter returns the persistent interpreter variable store scoped to
// this session.
func (s *Session) Interpreter() *interpreter.Session { return s.interp }

// Append adds a message to the transcript.
func (s *Session) Append(msg Message) error {
	if strings.TrimSpace(msg.Role) == "" {
		return ErrInvalidMessage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.seq++
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	s.messages = append(s.messages, msg)
	s.lastAccess = time.Now().UTC()
	return nil
}

// List returns a filtered, defensively copied slice of the transcript.
func (s *Session) List(filter Filter) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	var result []Message
	skipped := 0
	for _, msg := range s.messages {
		if filter.Role != "" && msg.Role != filter.Role {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		result = append(result, msg)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

// Touch updates the last-access timestamp used by the Manager's idle sweep.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastAccess = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastAccess)
}

// WithLock runs fn with the session's exclusive lock held — the seam
// Manager.Execute uses to guard an interpreter.Execute call against
// concurrent use of the same session from two sub-completion branches.
func (s *Session) WithLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return fn()
}

// Close marks the session closed; subsequent operations fail with
// ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
