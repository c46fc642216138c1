// ABOUTME: Tests for the invocation lifecycle: streaming placeholders, duplicate
// ABOUTME: terminal-signal suppression, stream start failures, and retry.

package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/agent"
	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/chatlog"
)

func TestStreaming_PlaceholderFillsIncrementally(t *testing.T) {
	c, client, events := newTestCoordinator(t, WithPolicy(PolicySequential), WithStreaming(true))
	c.AddAgent(testDescriptor("A"))

	c.UserMessage(context.Background(), "Hello")
	src := client.streamSource(t, 1)

	// The empty placeholder appears before any fragment.
	require.Eventually(t, func() bool { return c.Log().Len() == 2 }, time.Second, 5*time.Millisecond)

	client.push(agent.StreamChunk{SourceID: src, Text: "Hi, "})
	client.push(agent.StreamChunk{SourceID: src, Text: "I'm A"})

	// Partial content is observable before completion.
	require.Eventually(t, func() bool {
		snap := c.Log().Snapshot()
		return len(snap) == 2 && snap[1].Content == "Hi, I'm A" && snap[1].Open
	}, time.Second, 5*time.Millisecond)

	client.push(agent.StreamChunk{SourceID: src, Done: true})
	ev := waitFor(t, events, EventAgentCompleted)
	assert.Equal(t, "A", ev.AgentID)
	waitFor(t, events, EventTurnFinished)

	snap := c.Log().Snapshot()
	require.Len(t, snap, 2)
	assert.False(t, snap[1].Open)
	assert.Equal(t, "Hi, I'm A", snap[1].Content)
}

func TestStreaming_MidStreamErrorKeepsPartialContent(t *testing.T) {
	c, client, events := newTestCoordinator(t, WithPolicy(PolicySequential), WithStreaming(true))
	c.AddAgent(testDescriptor("A"))

	c.UserMessage(context.Background(), "Hello")
	src := client.streamSource(t, 1)

	client.push(agent.StreamChunk{SourceID: src, Text: "partial "})
	require.Eventually(t, func() bool {
		snap := c.Log().Snapshot()
		return len(snap) == 2 && snap[1].Content == "partial "
	}, time.Second, 5*time.Millisecond)

	client.push(agent.StreamChunk{SourceID: src, Err: "connection reset"})

	failed := waitFor(t, events, EventAgentFailed)
	assert.ErrorIs(t, failed.Err, ErrProviderFailure)
	waitFor(t, events, EventTurnFinished)

	// Partial content survives, finalized.
	snap := c.Log().Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "partial ", snap[1].Content)
	assert.False(t, snap[1].Open)
}

func TestStreaming_ErrorBeforeAnyContentRemovesPlaceholder(t *testing.T) {
	c, client, events := newTestCoordinator(t, WithPolicy(PolicySequential), WithStreaming(true))
	c.AddAgent(testDescriptor("A"))

	c.UserMessage(context.Background(), "Hello")
	src := client.streamSource(t, 1)

	require.Eventually(t, func() bool { return c.Log().Len() == 2 }, time.Second, 5*time.Millisecond)
	client.push(agent.StreamChunk{SourceID: src, Err: "refused"})

	failed := waitFor(t, events, EventAgentFailed)
	assert.Empty(t, failed.MessageID)
	waitFor(t, events, EventTurnFinished)

	// No empty agent turn left behind.
	assert.Equal(t, 1, c.Log().Len())
}

func TestStreaming_DuplicateTerminalSignalsAdvanceOnce(t *testing.T) {
	c, client, events := newTestCoordinator(t, WithPolicy(PolicySequential), WithStreaming(true))
	c.AddAgent(testDescriptor("A"))
	c.AddAgent(testDescriptor("B"))

	c.UserMessage(context.Background(), "Hello")
	srcA := client.streamSource(t, 1)

	client.push(agent.StreamChunk{SourceID: srcA, Text: "reply A"})
	// Three redundant terminal signals for the same invocation.
	client.push(agent.StreamChunk{SourceID: srcA, Done: true})
	client.push(agent.StreamChunk{SourceID: srcA, Err: "late error"})
	client.push(agent.StreamChunk{SourceID: srcA, Done: true})

	srcB := client.streamSource(t, 2)
	client.push(agent.StreamChunk{SourceID: srcB, Text: "reply B"})
	client.push(agent.StreamChunk{SourceID: srcB, Done: true})

	waitFor(t, events, EventTurnFinished)

	// B was invoked exactly once despite A's duplicate signals.
	assert.Len(t, client.streamCallsCopy(), 2)

	snap := c.Log().Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "reply A", snap[1].Content)
	assert.Equal(t, "reply B", snap[2].Content)

	// And only one turn_finished fired.
	for {
		select {
		case ev := <-events:
			assert.NotEqual(t, EventTurnFinished, ev.Kind, "duplicate turn_finished")
		case <-time.After(100 * time.Millisecond):
			return
		}
	}
}

func TestStreaming_BroadcastInterleavedStreams(t *testing.T) {
	c, client, events := newTestCoordinator(t, WithPolicy(PolicyBroadcast), WithStreaming(true))
	c.AddAgent(testDescriptor("A"))
	c.AddAgent(testDescriptor("B"))

	c.UserMessage(context.Background(), "Hello")
	srcA := client.streamSource(t, 1)
	srcB := client.streamSource(t, 2)

	// Both placeholders are open before any fragment arrives, and each
	// agent's history snapshot excludes the other's open placeholder.
	require.Eventually(t, func() bool { return c.Log().Len() == 3 }, time.Second, 5*time.Millisecond)
	for _, call := range client.streamCallsCopy() {
		require.Len(t, call.req.Messages, 1)
	}

	// Fragments interleave across the two open placeholders.
	client.push(agent.StreamChunk{SourceID: srcA, Text: "A one "})
	client.push(agent.StreamChunk{SourceID: srcB, Text: "B one "})
	client.push(agent.StreamChunk{SourceID: srcA, Text: "A two"})
	client.push(agent.StreamChunk{SourceID: srcB, Text: "B two"})

	require.Eventually(t, func() bool {
		snap := c.Log().Snapshot()
		return len(snap) == 3 && snap[1].Content == "A one A two" && snap[2].Content == "B one B two"
	}, time.Second, 5*time.Millisecond)

	// Completion order is independent of invocation order.
	client.push(agent.StreamChunk{SourceID: srcB, Done: true})
	client.push(agent.StreamChunk{SourceID: srcA, Done: true})
	waitFor(t, events, EventTurnFinished)

	snap := c.Log().Snapshot()
	require.Len(t, snap, 3)
	assert.False(t, snap[1].Open)
	assert.False(t, snap[2].Open)
	assert.Equal(t, "A one A two", snap[1].Content)
	assert.Equal(t, "B one B two", snap[2].Content)
}

func TestStreaming_StartFailureAdvancesTurn(t *testing.T) {
	c, client, events := newTestCoordinator(t, WithPolicy(PolicySequential), WithStreaming(true))
	c.AddAgent(testDescriptor("A"))
	c.AddAgent(testDescriptor("B"))
	client.streamStartErr["model-A"] = errors.New("no such provider")

	c.UserMessage(context.Background(), "Hello")

	failed := waitFor(t, events, EventAgentFailed)
	assert.Equal(t, "A", failed.AgentID)
	assert.ErrorIs(t, failed.Err, ErrStreamStart)

	// B's stream still starts; finish it.
	srcB := client.streamSource(t, 1)
	client.push(agent.StreamChunk{SourceID: srcB, Text: "reply B"})
	client.push(agent.StreamChunk{SourceID: srcB, Done: true})
	waitFor(t, events, EventTurnFinished)

	// A's failed start left no placeholder behind.
	snap := c.Log().Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "reply B", snap[1].Content)
}

func TestStreaming_ChunkForUnknownSourceIsIgnored(t *testing.T) {
	c, client, events := newTestCoordinator(t, WithPolicy(PolicySequential), WithStreaming(true))
	c.AddAgent(testDescriptor("A"))

	c.UserMessage(context.Background(), "Hello")
	src := client.streamSource(t, 1)

	client.push(agent.StreamChunk{SourceID: "bogus", Text: "noise"})
	client.push(agent.StreamChunk{SourceID: src, Text: "real"})
	client.push(agent.StreamChunk{SourceID: src, Done: true})

	waitFor(t, events, EventTurnFinished)
	snap := c.Log().Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "real", snap[1].Content)
}

func TestRetry_ReplacesReplyInPlaceWithoutRetriggering(t *testing.T) {
	c, client, events := newTestCoordinator(t, WithPolicy(PolicySequential))
	c.AddAgent(testDescriptor("A"))
	c.AddAgent(testDescriptor("B"))
	client.replies["model-A"] = "first take"
	client.replies["model-B"] = "B's reply"

	c.UserMessage(context.Background(), "Hello")
	waitFor(t, events, EventTurnFinished)

	snap := c.Log().Snapshot()
	require.Len(t, snap, 3)
	replyA := snap[1]

	client.mu.Lock()
	client.replies["model-A"] = "second take"
	client.mu.Unlock()

	require.NoError(t, c.Retry(context.Background(), replyA.ID))
	ev := waitFor(t, events, EventAgentCompleted)
	assert.Equal(t, "A", ev.AgentID)
	assert.Equal(t, replyA.ID, ev.MessageID)

	// Same position, same ID, new content; B untouched.
	snap = c.Log().Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, replyA.ID, snap[1].ID)
	assert.Equal(t, "second take", snap[1].Content)
	assert.Equal(t, "B's reply", snap[2].Content)

	// The retry request saw only the history before A's reply.
	calls := client.generateCallsCopy()
	require.Len(t, calls, 3)
	retryReq := calls[2].req
	require.Len(t, retryReq.Messages, 1)
	assert.Equal(t, "Hello", retryReq.Messages[0].Content)
}

func TestRetry_RejectsOpenStreamingReply(t *testing.T) {
	c, client, _ := newTestCoordinator(t, WithPolicy(PolicySequential), WithStreaming(true))
	c.AddAgent(testDescriptor("A"))

	c.UserMessage(context.Background(), "Hello")
	client.streamSource(t, 1)
	require.Eventually(t, func() bool { return c.Log().Len() == 2 }, time.Second, 5*time.Millisecond)

	open := c.Log().Snapshot()[1]
	assert.ErrorIs(t, c.Retry(context.Background(), open.ID), ErrRetryStreaming)
}

func TestRetry_RejectsNonAgentMessages(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	user := c.Log().AppendUser("hello")
	err := c.Retry(context.Background(), user.ID)
	assert.Error(t, err)

	err = c.Retry(context.Background(), "missing")
	assert.ErrorIs(t, err, chatlog.ErrMessageNotFound)
}

func TestRetry_DuringActiveSequentialTurnStillAdvances(t *testing.T) {
	c, client, events := newTestCoordinator(t, WithPolicy(PolicySequential))
	c.AddAgent(testDescriptor("A"))
	c.AddAgent(testDescriptor("B"))
	client.replies["model-A"] = "A's line"
	client.replies["model-B"] = "B's line"

	c.UserMessage(context.Background(), "first")
	waitFor(t, events, EventTurnFinished)
	replyB := c.Log().Snapshot()[2]

	releaseA := make(chan struct{})
	releaseB := make(chan struct{})
	client.mu.Lock()
	client.blocks["model-A"] = releaseA
	client.blocks["model-B"] = releaseB
	client.mu.Unlock()

	// A new turn parks with A in flight.
	c.UserMessage(context.Background(), "second")
	require.Eventually(t, func() bool { return client.generateCount() == 3 }, time.Second, 5*time.Millisecond)

	// Retry B's old reply while the turn runs; the retry blocks too.
	require.NoError(t, c.Retry(context.Background(), replyB.ID))
	require.Eventually(t, func() bool { return client.generateCount() == 4 }, time.Second, 5*time.Millisecond)

	// A finishes; the advance scan parks because the retry holds B's lock.
	close(releaseA)
	ev := waitFor(t, events, EventAgentCompleted)
	assert.Equal(t, "A", ev.AgentID)
	time.Sleep(50 * time.Millisecond)

	// The settling retry must wake the parked turn: B still gets invoked
	// and the turn terminates.
	close(releaseB)
	waitFor(t, events, EventTurnFinished)

	assert.Equal(t, 5, client.generateCount())
	assert.Equal(t, 6, c.Log().Len())
}

func TestRetry_RejectsBusyAgent(t *testing.T) {
	c, client, events := newTestCoordinator(t, WithPolicy(PolicySequential))
	c.AddAgent(testDescriptor("A"))
	client.replies["model-A"] = "take one"

	c.UserMessage(context.Background(), "Hello")
	waitFor(t, events, EventTurnFinished)
	reply := c.Log().Snapshot()[1]

	release := make(chan struct{})
	client.mu.Lock()
	client.blocks["model-A"] = release
	client.mu.Unlock()

	require.NoError(t, c.Retry(context.Background(), reply.ID))
	err := c.Retry(context.Background(), reply.ID)
	assert.ErrorIs(t, err, ErrAgentBusy)

	close(release)
	waitFor(t, events, EventAgentCompleted)
}

func TestBuildRequest_RoleAttribution(t *testing.T) {
	d := testDescriptor("A")
	history := []chatlog.Message{
		{Role: chatlog.RoleUser, Content: "Hello"},
		{Role: chatlog.RoleAgent, AgentID: "A", AgentName: "Agent A", Content: "my line"},
		{Role: chatlog.RoleAgent, AgentID: "B", AgentName: "Agent B", Content: "their line"},
	}

	req := buildRequest(d, history)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, agent.ChatMessage{Role: "user", Content: "Hello"}, req.Messages[0])
	assert.Equal(t, agent.ChatMessage{Role: "assistant", Content: "my line"}, req.Messages[1])
	assert.Equal(t, agent.ChatMessage{Role: "user", Content: "Agent B: their line"}, req.Messages[2])
	assert.Equal(t, "model-A", req.Model)
	assert.Equal(t, "You are A", req.SystemPrompt)
}
