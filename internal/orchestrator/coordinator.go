// ABOUTME: Coordinator: turn state, policy dispatch, and the advance debounce latch.
// ABOUTME: Exactly one deferred "who goes next" pass runs no matter how many completions race.

package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/agent"
	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/chatlog"
)

// Coordinator routes conversational events to agent invocations under the
// active turn policy. All turn state lives behind one mutex; goroutines
// exist only for provider calls and the chunk dispatch loop.
type Coordinator struct {
	log    *chatlog.Log
	client agent.Client
	logger *slog.Logger

	mu         sync.Mutex
	agents     map[string]agent.Descriptor
	agentOrder []string
	roster     *agent.Roster
	policy     Policy
	streaming  bool

	// Ephemeral turn state. Reset whenever a new conversational event
	// starts a turn; never persisted.
	turnSeq       uint64
	turnActive    bool
	turnPolicy    Policy
	selection     []string
	responded     map[string]bool
	inFlight      map[string]bool
	loading       map[string]bool
	advanceQueued bool
	turnCtx       context.Context

	invocations map[string]*invocation

	events chan<- TurnEvent

	dispatchWG sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the slog logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithEvents attaches a consumer channel for turn lifecycle events. Sends
// are non-blocking: a full channel drops the event.
func WithEvents(ch chan<- TurnEvent) Option {
	return func(c *Coordinator) { c.events = ch }
}

// WithPolicy sets the initial turn policy. Defaults to PolicyBroadcast.
func WithPolicy(p Policy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithStreaming enables streaming delivery for agent replies.
func WithStreaming(enabled bool) Option {
	return func(c *Coordinator) { c.streaming = enabled }
}

// New creates a Coordinator and subscribes it to the client's chunk channel.
// The subscription is the only one for the session; chunks are routed to
// invocations by source ID. Call Close when the session ends.
func New(log *chatlog.Log, client agent.Client, opts ...Option) *Coordinator {
	c := &Coordinator{
		log:         log,
		client:      client,
		agents:      make(map[string]agent.Descriptor),
		roster:      agent.NewRoster(),
		responded:   make(map[string]bool),
		inFlight:    make(map[string]bool),
		loading:     make(map[string]bool),
		invocations: make(map[string]*invocation),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "orchestrator")

	c.dispatchWG.Add(1)
	go c.dispatch()

	return c
}

// Close cancels the chunk subscription and waits for the dispatch loop.
func (c *Coordinator) Close() error {
	err := c.client.Close()
	c.dispatchWG.Wait()
	return err
}

// AddAgent registers a descriptor and appends it to the turn selection.
// Re-adding an existing agent moves it to the end of the selection.
func (c *Coordinator) AddAgent(d agent.Descriptor) {
	c.mu.Lock()
	if _, known := c.agents[d.ID]; !known {
		c.agentOrder = append(c.agentOrder, d.ID)
	}
	c.agents[d.ID] = d
	c.mu.Unlock()

	c.roster.Add(d.ID)
}

// RemoveAgent drops an agent from the selection and the registry.
func (c *Coordinator) RemoveAgent(id string) {
	c.roster.Remove(id)

	c.mu.Lock()
	delete(c.agents, id)
	for i, have := range c.agentOrder {
		if have == id {
			c.agentOrder = append(c.agentOrder[:i], c.agentOrder[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
}

// Agents returns the registered descriptors in registration order.
func (c *Coordinator) Agents() []agent.Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]agent.Descriptor, 0, len(c.agentOrder))
	for _, id := range c.agentOrder {
		out = append(out, c.agents[id])
	}
	return out
}

// Selection returns the current turn selection order.
func (c *Coordinator) Selection() []string { return c.roster.IDs() }

// Select replaces the turn selection, preserving the given order.
func (c *Coordinator) Select(ids []string) { c.roster.Reset(ids) }

// Policy returns the session turn policy.
func (c *Coordinator) Policy() Policy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy
}

// SetPolicy changes the session turn policy for subsequent turns.
func (c *Coordinator) SetPolicy(p Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy = p
}

// Streaming reports whether streaming delivery is enabled.
func (c *Coordinator) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// SetStreaming toggles streaming delivery for subsequent invocations.
func (c *Coordinator) SetStreaming(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streaming = enabled
}

// Log returns the conversation log the coordinator folds replies into.
func (c *Coordinator) Log() *chatlog.Log { return c.log }

// UserMessage appends a user entry and starts a turn for the full current
// selection under the session policy.
func (c *Coordinator) UserMessage(ctx context.Context, content string) {
	c.log.AppendUser(content)
	c.StartTurn(ctx, c.roster.IDs(), c.Policy())
}

// StartTurn resets the ephemeral turn state and begins invoking the given
// selection under the given policy. The selection order is significant only
// under PolicySequential.
func (c *Coordinator) StartTurn(ctx context.Context, selection []string, policy Policy) {
	c.mu.Lock()
	c.turnSeq++
	seq := c.turnSeq
	c.turnActive = true
	c.turnPolicy = policy
	c.selection = append([]string(nil), selection...)
	c.responded = make(map[string]bool)
	c.inFlight = make(map[string]bool)
	c.loading = make(map[string]bool)
	c.advanceQueued = false
	c.turnCtx = ctx
	c.mu.Unlock()

	c.logger.Info("turn started",
		"policy", policy.String(),
		"agents", len(selection))

	if len(selection) == 0 {
		c.finishTurn(seq)
		return
	}

	switch policy {
	case PolicyBroadcast:
		c.startBroadcast(ctx, seq, selection)
	case PolicySequential:
		// The initial scan goes through the same debounce latch as every
		// completion-triggered scan.
		c.scheduleAdvance(seq)
	}
}

// startBroadcast invokes every selected agent with the identical history
// snapshot, taken before any invocation starts so no agent sees another's
// not-yet-complete reply.
func (c *Coordinator) startBroadcast(ctx context.Context, seq uint64, selection []string) {
	history := c.log.History()
	for _, id := range selection {
		c.mu.Lock()
		c.inFlight[id] = true
		c.loading[id] = true
		c.mu.Unlock()
		c.invoke(ctx, seq, id, history)
	}
}

// scheduleAdvance queues one deferred "find the next agent" pass. Completion
// signals from every terminal path land here; the latch coalesces concurrent
// attempts so the next agent is never double-invoked.
func (c *Coordinator) scheduleAdvance(seq uint64) {
	c.mu.Lock()
	if seq != c.turnSeq || !c.turnActive || c.advanceQueued {
		c.mu.Unlock()
		return
	}
	c.advanceQueued = true
	c.mu.Unlock()

	go c.advance(seq)
}

// advance runs the deferred scan: pick the first selected agent that has not
// responded, is not in flight, and is not loading; lock it before invoking.
func (c *Coordinator) advance(seq uint64) {
	c.mu.Lock()
	if seq != c.turnSeq || !c.turnActive {
		// A pass queued for a superseded turn never touches the latch of
		// the turn that replaced it.
		c.mu.Unlock()
		return
	}
	c.advanceQueued = false

	var nextID string
	busy := false
	for _, id := range c.selection {
		if c.responded[id] {
			continue
		}
		if c.inFlight[id] || c.loading[id] {
			busy = true
			continue
		}
		nextID = id
		break
	}

	if nextID == "" {
		c.mu.Unlock()
		if !busy {
			// Every selected agent has responded this turn.
			c.finishTurn(seq)
		}
		return
	}

	// Lock the agent before its invocation starts; this closes the window
	// where a second completion path could pick it again.
	c.inFlight[nextID] = true
	c.loading[nextID] = true
	ctx := c.turnCtx
	c.mu.Unlock()

	// Current history, not the turn-start snapshot: later agents see the
	// replies of the agents before them.
	c.invoke(ctx, seq, nextID, c.log.History())
}

// finishTurn marks the turn inactive and notifies consumers.
func (c *Coordinator) finishTurn(seq uint64) {
	c.mu.Lock()
	if seq != c.turnSeq || !c.turnActive {
		c.mu.Unlock()
		return
	}
	c.turnActive = false
	c.mu.Unlock()

	c.logger.Info("turn finished")
	c.emit(TurnEvent{Kind: EventTurnFinished})
}

// settle folds one agent's terminal outcome into the turn state and, under
// the sequential policy, schedules the next scan. Failures advance the turn
// exactly as completions do.
func (c *Coordinator) settle(inv *invocation, messageID string, err error) {
	c.mu.Lock()
	stale := inv.turnSeq != c.turnSeq
	if !stale {
		// A stale completion belongs to a superseded turn; its locks were
		// already wiped by the reset and must not unlock the new turn.
		if inv.partOfTurn {
			c.responded[inv.agentID] = true
		}
		delete(c.inFlight, inv.agentID)
		delete(c.loading, inv.agentID)
	}
	policy := c.turnPolicy
	active := c.turnActive
	seq := c.turnSeq
	allResponded := true
	for _, id := range c.selection {
		if !c.responded[id] {
			allResponded = false
			break
		}
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("agent turn failed",
			"agent_id", inv.agentID,
			"error", err)
		c.emit(TurnEvent{Kind: EventAgentFailed, AgentID: inv.agentID, MessageID: messageID, Err: err})
	} else {
		c.logger.Debug("agent turn completed",
			"agent_id", inv.agentID,
			"message_id", messageID)
		c.emit(TurnEvent{Kind: EventAgentCompleted, AgentID: inv.agentID, MessageID: messageID})
	}

	if stale {
		return
	}

	if !inv.partOfTurn {
		// A settling retry frees its agent's lock. A sequential turn that
		// parked on that lock needs a fresh scan or it never resumes.
		if active && policy == PolicySequential {
			c.scheduleAdvance(seq)
		}
		return
	}

	switch policy {
	case PolicySequential:
		c.scheduleAdvance(inv.turnSeq)
	case PolicyBroadcast:
		if allResponded {
			c.finishTurn(inv.turnSeq)
		}
	}
}

// emit sends a turn event to the consumer channel without ever blocking.
func (c *Coordinator) emit(ev TurnEvent) {
	if c.events == nil {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.logger.Debug("event consumer full, dropping event", "kind", ev.Kind)
	}
}

// descriptor looks up a registered agent. Unknown IDs fail like missing
// configuration: fast, with no network call.
func (c *Coordinator) descriptor(id string) (agent.Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.agents[id]
	if !ok {
		return agent.Descriptor{}, fmt.Errorf("%w: unknown agent %q", agent.ErrMisconfigured, id)
	}
	return d, nil
}
