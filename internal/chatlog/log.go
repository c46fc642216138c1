// ABOUTME: Append-only conversation log shared by every agent in a session.
// ABOUTME: Supports streaming placeholders, in-place retry replacement, and value snapshots.

package chatlog

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrMessageNotFound is returned when a message ID does not exist in the log.
var ErrMessageNotFound = errors.New("message not found")

// ErrMessageClosed is returned when mutating a message that is no longer open.
var ErrMessageClosed = errors.New("message already finalized")

// Role identifies who authored a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Message is a single entry in the conversation. Once appended it is
// immutable, except for an open streaming placeholder which accumulates
// fragments until it is finalized or discarded.
type Message struct {
	ID        string
	Role      Role
	AgentID   string
	AgentName string
	Content   string
	Timestamp time.Time
	Open      bool
}

// Log is the ordered conversation record. Append is safe under concurrent
// calls from different agents; each agent only ever mutates the one open
// placeholder it owns, so writers never contend on the same entry.
type Log struct {
	mu       sync.RWMutex
	messages []Message
	notify   *Broadcaster
}

// New creates an empty Log. The broadcaster may be nil if nobody needs
// change notifications.
func New(notify *Broadcaster) *Log {
	return &Log{notify: notify}
}

// Append adds a message to the tail of the log. A missing ID or timestamp
// is filled in. Returns the stored message.
func (l *Log) Append(msg Message) Message {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	l.mu.Lock()
	l.messages = append(l.messages, msg)
	l.mu.Unlock()

	l.publish()
	return msg
}

// AppendUser is shorthand for appending a user-role message.
func (l *Log) AppendUser(content string) Message {
	return l.Append(Message{Role: RoleUser, Content: content})
}

// OpenPlaceholder appends an empty, open message for a streaming agent turn
// and returns its ID. Fragments arrive via AppendFragment until the turn
// reaches a terminal state.
func (l *Log) OpenPlaceholder(agentID, agentName string) string {
	msg := l.Append(Message{
		Role:      RoleAgent,
		AgentID:   agentID,
		AgentName: agentName,
		Open:      true,
	})
	return msg.ID
}

// AppendFragment adds streamed text to an open placeholder and republishes
// the change so observers see partial content before completion.
func (l *Log) AppendFragment(id, text string) error {
	l.mu.Lock()
	i, ok := l.indexLocked(id)
	if !ok {
		l.mu.Unlock()
		return ErrMessageNotFound
	}
	if !l.messages[i].Open {
		l.mu.Unlock()
		return ErrMessageClosed
	}
	l.messages[i].Content += text
	l.mu.Unlock()

	l.publish()
	return nil
}

// Finalize closes an open placeholder. Further fragments are rejected.
// Finalizing an already-closed message is a no-op.
func (l *Log) Finalize(id string) {
	l.mu.Lock()
	i, ok := l.indexLocked(id)
	changed := ok && l.messages[i].Open
	if changed {
		l.messages[i].Open = false
	}
	l.mu.Unlock()

	if changed {
		l.publish()
	}
}

// DiscardIfEmpty removes a placeholder only if no content ever arrived,
// so a failed stream never leaves an empty agent turn in the log. Returns
// true if the message was removed.
func (l *Log) DiscardIfEmpty(id string) bool {
	l.mu.Lock()
	i, ok := l.indexLocked(id)
	if !ok || l.messages[i].Content != "" {
		l.mu.Unlock()
		return false
	}
	l.messages = append(l.messages[:i], l.messages[i+1:]...)
	l.mu.Unlock()

	l.publish()
	return true
}

// Replace swaps the content of a prior closed message in place, keeping its
// position. Used by retry: the regenerated reply takes the old one's slot.
func (l *Log) Replace(id, content string) error {
	l.mu.Lock()
	i, ok := l.indexLocked(id)
	if !ok {
		l.mu.Unlock()
		return ErrMessageNotFound
	}
	l.messages[i].Content = content
	l.messages[i].Timestamp = time.Now()
	l.mu.Unlock()

	l.publish()
	return nil
}

// Get returns a copy of the message with the given ID.
func (l *Log) Get(id string) (Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i, ok := l.indexLocked(id); ok {
		return l.messages[i], true
	}
	return Message{}, false
}

// Snapshot returns a value copy of the full log, open placeholders included.
// Concurrent mutation of the live log never affects a returned snapshot.
func (l *Log) Snapshot() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// History returns a value copy excluding open placeholders. This is the
// view handed to providers: an in-flight agent's partial reply is never
// part of another agent's request.
func (l *Log) History() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, 0, len(l.messages))
	for _, m := range l.messages {
		if m.Open {
			continue
		}
		out = append(out, m)
	}
	return out
}

// HistoryBefore returns the closed messages strictly preceding the message
// with the given ID. Used by retry to rebuild the request an agent
// originally answered.
func (l *Log) HistoryBefore(id string) ([]Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.indexLocked(id)
	if !ok {
		return nil, ErrMessageNotFound
	}
	out := make([]Message, 0, i)
	for _, m := range l.messages[:i] {
		if m.Open {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Len reports the number of messages, open placeholders included.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Reset replaces the entire log contents. Used by session restore.
func (l *Log) Reset(messages []Message) {
	l.mu.Lock()
	l.messages = make([]Message, len(messages))
	copy(l.messages, messages)
	l.mu.Unlock()

	l.publish()
}

func (l *Log) indexLocked(id string) (int, bool) {
	for i := range l.messages {
		if l.messages[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

func (l *Log) publish() {
	if l.notify != nil {
		l.notify.Publish()
	}
}
