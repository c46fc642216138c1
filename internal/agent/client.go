// ABOUTME: Provider client boundary - one chat request per invocation,
// ABOUTME: delivered whole or as a stream of chunks routed by source ID.

package agent

import "context"

// ChatMessage is one entry of the request history sent to a provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest shapes a single chat completion request.
type GenerateRequest struct {
	Model        string
	SystemPrompt string
	Messages     []ChatMessage
}

// GenerateResult is the whole-response form of a completion.
type GenerateResult struct {
	Content string
}

// StreamChunk is one incremental piece of a streaming completion.
// SourceID routes the chunk back to the invocation that started the stream.
// Exactly one of Text, Err, or Done is meaningful per chunk; a chunk with
// Err or Done set is terminal for its source.
type StreamChunk struct {
	SourceID string
	Text     string
	Err      string
	Done     bool
}

// Client is the external provider boundary. Implementations own request
// shaping, authentication, and transport; the orchestrator only sees this
// surface.
//
// GenerateStream returns once the stream has started (or failed to start);
// chunks then arrive asynchronously on the Chunks channel. The orchestrator
// subscribes exactly once per session and dispatches by SourceID.
type Client interface {
	Generate(ctx context.Context, providerID string, req GenerateRequest) (*GenerateResult, error)
	GenerateStream(ctx context.Context, providerID string, req GenerateRequest, sourceID string) error
	Chunks() <-chan StreamChunk
	Close() error
}
