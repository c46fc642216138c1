// ABOUTME: Autosaver hands a fresh snapshot to the persistence collaborator
// ABOUTME: after every completed log change; save failures are logged, never fatal.

package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/chatlog"
)

// saveTimeout bounds each save so a slow store never wedges the session.
const saveTimeout = 5 * time.Second

// Autosaver subscribes to conversation changes and persists a snapshot after
// each completed step. While a streamed reply is still open, saves are
// deferred: the finalizing mutation publishes its own change signal.
type Autosaver struct {
	snapshotter *Snapshotter
	store       Store
	notify      *chatlog.Broadcaster
	logger      *slog.Logger
}

// NewAutosaver creates an autosaver. Pass nil logger for default.
func NewAutosaver(snapshotter *Snapshotter, store Store, notify *chatlog.Broadcaster, logger *slog.Logger) *Autosaver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Autosaver{
		snapshotter: snapshotter,
		store:       store,
		notify:      notify,
		logger:      logger.With("component", "autosaver"),
	}
}

// Run consumes change signals until ctx is cancelled. Call it on its own
// goroutine.
func (a *Autosaver) Run(ctx context.Context) {
	changes, subID := a.notify.Subscribe(ctx)
	defer a.notify.Unsubscribe(subID)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			a.saveIfSettled(ctx)
		}
	}
}

// saveIfSettled persists a snapshot unless a streamed reply is mid-flight.
func (a *Autosaver) saveIfSettled(ctx context.Context) {
	for _, m := range a.snapshotter.coord.Log().Snapshot() {
		if m.Open {
			// An in-progress turn step; the terminal mutation will
			// re-trigger the save.
			return
		}
	}

	snap := a.snapshotter.Capture()

	// Separate timeout context so persistence outlives a cancelled turn.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	if err := a.store.Save(saveCtx, snap); err != nil {
		a.logger.Error("failed to save session snapshot",
			"error", err,
			"session_id", snap.SessionID)
		return
	}
	a.logger.Debug("session snapshot saved",
		"session_id", snap.SessionID,
		"messages", len(snap.Messages))
}
