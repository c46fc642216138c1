// ABOUTME: Tests for HTML transcript export.
// ABOUTME: Verifies markdown rendering for agents and escaping for user lines.

package transcript

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/chatlog"
)

func TestExport_RendersAgentMarkdown(t *testing.T) {
	messages := []chatlog.Message{
		{ID: "m1", Role: chatlog.RoleUser, Content: "Tell me a *story*", Timestamp: time.Now()},
		{ID: "m2", Role: chatlog.RoleAgent, AgentID: "a1", AgentName: "Alice", Content: "Once upon a **time**", Timestamp: time.Now()},
	}

	var sb strings.Builder
	require.NoError(t, Export(&sb, "Test <Stage>", messages))
	out := sb.String()

	// Title is escaped.
	assert.Contains(t, out, "<title>Test &lt;Stage&gt;</title>")

	// User content stays verbatim (escaped, not rendered).
	assert.Contains(t, out, "Tell me a *story*")

	// Agent content is markdown-rendered.
	assert.Contains(t, out, "<strong>time</strong>")
	assert.Contains(t, out, "<h2>Alice</h2>")
}

func TestExport_FallsBackToAgentID(t *testing.T) {
	messages := []chatlog.Message{
		{ID: "m1", Role: chatlog.RoleAgent, AgentID: "a1", Content: "hi", Timestamp: time.Now()},
	}

	var sb strings.Builder
	require.NoError(t, Export(&sb, "t", messages))
	assert.Contains(t, sb.String(), "<h2>a1</h2>")
}

func TestExport_EmptyConversation(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, Export(&sb, "empty", nil))
	assert.Contains(t, sb.String(), "</html>")
}
