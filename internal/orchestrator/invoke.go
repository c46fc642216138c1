// ABOUTME: Single-agent invocation lifecycle: request building, streaming placeholders,
// ABOUTME: and the terminal-outcome funnel that suppresses duplicate completion signals.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/agent"
	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/chatlog"
)

// ErrProviderFailure indicates the provider call failed, mid-stream or whole.
var ErrProviderFailure = errors.New("provider failure")

// ErrStreamStart indicates a streaming call could not be initiated.
var ErrStreamStart = errors.New("stream start failure")

// ErrAgentBusy indicates the agent already has an invocation in flight.
var ErrAgentBusy = errors.New("agent busy")

// ErrRetryStreaming indicates a retry was requested for an in-progress
// streaming reply, which has no defined behavior.
var ErrRetryStreaming = errors.New("retry of an in-progress streaming reply is not supported")

// invocation tracks one agent turn from provider call to terminal outcome.
// A turn can reach terminal state through three independent paths (stream
// error, stream done, outer failure); the done flag makes the first one win
// and every later one a no-op.
type invocation struct {
	id            string // stream source ID
	agentID       string
	turnSeq       uint64
	partOfTurn    bool
	placeholderID string
	replaceID     string // non-empty for retry: log entry replaced on success
	done          atomic.Bool
}

// invoke starts one agent invocation as part of the turn with the given
// sequence number. It never blocks on the provider: the call itself runs on
// its own goroutine (non-streaming) or behind the chunk subscription
// (streaming).
func (c *Coordinator) invoke(ctx context.Context, seq uint64, agentID string, history []chatlog.Message) {
	inv := &invocation{
		id:         uuid.New().String(),
		agentID:    agentID,
		turnSeq:    seq,
		partOfTurn: true,
	}

	desc, err := c.descriptor(agentID)
	if err == nil {
		err = desc.Validate()
	}
	if err != nil {
		// Fail fast: no network call, nothing appended.
		c.terminal(inv, "", err)
		return
	}

	c.emit(TurnEvent{Kind: EventAgentStarted, AgentID: agentID})
	c.logger.Debug("invoking agent",
		"agent_id", agentID,
		"source_id", inv.id,
		"history_len", len(history))

	req := buildRequest(desc, history)

	if c.Streaming() {
		c.startStream(ctx, inv, desc, req)
		return
	}

	go c.runGenerate(ctx, inv, desc, req)
}

// runGenerate performs a whole-response provider call. On success the
// completed message is appended (or, for retry, replaces the old one in
// place); on failure nothing is appended.
func (c *Coordinator) runGenerate(ctx context.Context, inv *invocation, desc agent.Descriptor, req agent.GenerateRequest) {
	res, err := c.client.Generate(ctx, desc.ProviderID, req)
	if err != nil {
		c.terminal(inv, "", fmt.Errorf("%w: agent %q: %v", ErrProviderFailure, desc.ID, err))
		return
	}

	if inv.replaceID != "" {
		if err := c.log.Replace(inv.replaceID, res.Content); err != nil {
			c.terminal(inv, "", fmt.Errorf("replacing message: %w", err))
			return
		}
		c.terminal(inv, inv.replaceID, nil)
		return
	}

	msg := c.log.Append(chatlog.Message{
		Role:      chatlog.RoleAgent,
		AgentID:   desc.ID,
		AgentName: desc.Name(),
		Content:   res.Content,
	})
	c.terminal(inv, msg.ID, nil)
}

// startStream opens the placeholder first, then initiates the stream. The
// placeholder is visible (empty) before the first fragment arrives; a failed
// start removes it again.
func (c *Coordinator) startStream(ctx context.Context, inv *invocation, desc agent.Descriptor, req agent.GenerateRequest) {
	inv.placeholderID = c.log.OpenPlaceholder(desc.ID, desc.Name())

	c.mu.Lock()
	c.invocations[inv.id] = inv
	c.mu.Unlock()

	if err := c.client.GenerateStream(ctx, desc.ProviderID, req, inv.id); err != nil {
		c.mu.Lock()
		delete(c.invocations, inv.id)
		c.mu.Unlock()
		c.log.DiscardIfEmpty(inv.placeholderID)
		c.terminal(inv, "", fmt.Errorf("%w: agent %q: %v", ErrStreamStart, desc.ID, err))
	}
}

// dispatch is the session's only chunk subscription. It routes every chunk
// to the invocation that owns its source ID; chunks for finished or unknown
// sources are dropped.
func (c *Coordinator) dispatch() {
	defer c.dispatchWG.Done()

	for chunk := range c.client.Chunks() {
		c.mu.Lock()
		inv, ok := c.invocations[chunk.SourceID]
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("chunk for unknown source", "source_id", chunk.SourceID)
			continue
		}
		c.handleChunk(inv, chunk)
	}
}

// handleChunk folds one stream chunk into the invocation's placeholder.
func (c *Coordinator) handleChunk(inv *invocation, chunk agent.StreamChunk) {
	switch {
	case chunk.Err != "":
		// Keep partial content; only an empty placeholder is removed so
		// the log never shows an empty agent turn.
		removed := c.log.DiscardIfEmpty(inv.placeholderID)
		if !removed {
			c.log.Finalize(inv.placeholderID)
		}
		messageID := inv.placeholderID
		if removed {
			messageID = ""
		}
		c.closeStream(inv)
		c.terminal(inv, messageID, fmt.Errorf("%w: agent %q: %s", ErrProviderFailure, inv.agentID, chunk.Err))

	case chunk.Done:
		c.log.Finalize(inv.placeholderID)
		c.closeStream(inv)
		c.terminal(inv, inv.placeholderID, nil)

	default:
		if err := c.log.AppendFragment(inv.placeholderID, chunk.Text); err != nil {
			c.logger.Debug("dropping late fragment",
				"source_id", inv.id,
				"error", err)
		}
	}
}

// closeStream removes the invocation from the dispatch table so later
// chunks for the same source are ignored.
func (c *Coordinator) closeStream(inv *invocation) {
	c.mu.Lock()
	delete(c.invocations, inv.id)
	c.mu.Unlock()
}

// terminal is the single funnel for all completion paths of one invocation.
// The atomic done flag guarantees exactly one outcome notification and one
// advance schedule per invocation, no matter how many paths fire.
func (c *Coordinator) terminal(inv *invocation, messageID string, err error) {
	if !inv.done.CompareAndSwap(false, true) {
		c.logger.Debug("duplicate terminal signal suppressed",
			"agent_id", inv.agentID,
			"source_id", inv.id)
		return
	}
	c.settle(inv, messageID, err)
}

// Retry re-invokes the agent behind one historical reply and replaces that
// reply in place on success. It never re-triggers the agents that followed,
// and it is only defined for completed, non-streaming entries.
func (c *Coordinator) Retry(ctx context.Context, messageID string) error {
	msg, ok := c.log.Get(messageID)
	if !ok {
		return chatlog.ErrMessageNotFound
	}
	if msg.Role != chatlog.RoleAgent {
		return fmt.Errorf("message %s is not an agent reply", messageID)
	}
	if msg.Open {
		return ErrRetryStreaming
	}

	desc, err := c.descriptor(msg.AgentID)
	if err != nil {
		return err
	}
	if err := desc.Validate(); err != nil {
		return err
	}

	history, err := c.log.HistoryBefore(messageID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.inFlight[msg.AgentID] {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAgentBusy, msg.AgentID)
	}
	c.inFlight[msg.AgentID] = true
	seq := c.turnSeq
	c.mu.Unlock()

	inv := &invocation{
		id:        uuid.New().String(),
		agentID:   msg.AgentID,
		turnSeq:   seq,
		replaceID: messageID,
	}

	c.logger.Info("retrying agent reply",
		"agent_id", msg.AgentID,
		"message_id", messageID)
	c.emit(TurnEvent{Kind: EventAgentStarted, AgentID: msg.AgentID})

	go c.runGenerate(ctx, inv, desc, buildRequest(desc, history))
	return nil
}

// buildRequest shapes the provider request from an agent's point of view:
// its own past replies are assistant turns, everyone else (user, director,
// other agents) speaks as the user, with other agents' lines attributed by
// name so the model can tell the speakers apart.
func buildRequest(d agent.Descriptor, history []chatlog.Message) agent.GenerateRequest {
	msgs := make([]agent.ChatMessage, 0, len(history))
	for _, m := range history {
		switch {
		case m.Role == chatlog.RoleAgent && m.AgentID == d.ID:
			msgs = append(msgs, agent.ChatMessage{Role: "assistant", Content: m.Content})
		case m.Role == chatlog.RoleAgent:
			msgs = append(msgs, agent.ChatMessage{Role: "user", Content: m.AgentName + ": " + m.Content})
		default:
			msgs = append(msgs, agent.ChatMessage{Role: "user", Content: m.Content})
		}
	}
	return agent.GenerateRequest{
		Model:        d.Model,
		SystemPrompt: d.SystemPrompt,
		Messages:     msgs,
	}
}
