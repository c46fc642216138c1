// ABOUTME: Capture and restore of session snapshots against a live coordinator.
// ABOUTME: Capture closes partial streamed replies and drops empty placeholders.

package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/chatlog"
	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/orchestrator"
)

// Snapshotter serializes the state of one session.
type Snapshotter struct {
	sessionID string
	coord     *orchestrator.Coordinator
}

// NewSnapshotter creates a snapshotter for the given coordinator. An empty
// session ID gets a generated one.
func NewSnapshotter(sessionID string, coord *orchestrator.Coordinator) *Snapshotter {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	return &Snapshotter{sessionID: sessionID, coord: coord}
}

// SessionID returns the opaque session identifier.
func (s *Snapshotter) SessionID() string { return s.sessionID }

// Capture produces a snapshot of the conversation and turn configuration.
// An in-progress placeholder with no content yet is omitted entirely; one
// with partial content is captured as a closed message. Turn state is never
// captured.
func (s *Snapshotter) Capture() Snapshot {
	raw := s.coord.Log().Snapshot()
	messages := make([]chatlog.Message, 0, len(raw))
	for _, m := range raw {
		if m.Open {
			if m.Content == "" {
				continue
			}
			m.Open = false
		}
		messages = append(messages, m)
	}

	return Snapshot{
		SessionID: s.sessionID,
		Agents:    s.coord.Agents(),
		Messages:  messages,
		Policy:    s.coord.Policy(),
		Selection: s.coord.Selection(),
		Streaming: s.coord.Streaming(),
		SavedAt:   time.Now(),
	}
}

// Restore rebuilds the conversation and configuration from a snapshot. The
// coordinator comes back idle: no agent resumes mid-turn.
func (s *Snapshotter) Restore(snap Snapshot) {
	s.sessionID = snap.SessionID

	for _, d := range snap.Agents {
		s.coord.AddAgent(d)
	}
	s.coord.Select(snap.Selection)
	s.coord.SetPolicy(snap.Policy)
	s.coord.SetStreaming(snap.Streaming)
	s.coord.Log().Reset(snap.Messages)
}
