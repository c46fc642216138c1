// ABOUTME: Session snapshot model and the persistence collaborator boundary.
// ABOUTME: A snapshot captures conversation and configuration, never in-flight turn state.

package session

import (
	"context"
	"errors"
	"time"

	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/agent"
	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/chatlog"
	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/orchestrator"
)

// ErrNotFound is returned by Store.Load for unknown session IDs.
var ErrNotFound = errors.New("session not found")

// Snapshot is everything needed to redraw a conversation and reconfigure
// future turns. Turn state is deliberately absent: a restored session always
// starts idle.
type Snapshot struct {
	SessionID string
	Agents    []agent.Descriptor
	Messages  []chatlog.Message
	Policy    orchestrator.Policy
	Selection []string
	Streaming bool
	SavedAt   time.Time
}

// Store is the external persistence collaborator.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, sessionID string) (*Snapshot, error)
}
