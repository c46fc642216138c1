// ABOUTME: In-process scripted provider client for local stages and tests.
// ABOUTME: Replies come from a script function; streaming splits replies into word chunks.

package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ScriptFunc produces the reply for one invocation. Returning an error makes
// the invocation fail the way a real provider failure would.
type ScriptFunc func(providerID string, req GenerateRequest) (string, error)

// EchoScript replies with the last message of the history, prefixed by the
// model name. Handy default for local stages.
func EchoScript(providerID string, req GenerateRequest) (string, error) {
	last := ""
	if n := len(req.Messages); n > 0 {
		last = req.Messages[n-1].Content
	}
	return fmt.Sprintf("[%s] %s", req.Model, last), nil
}

// ScriptedClient implements Client without any network. Streaming replies
// are emitted word by word on the shared chunk channel, preserving per-source
// chunk order.
type ScriptedClient struct {
	script     ScriptFunc
	chunkDelay time.Duration

	mu      sync.Mutex
	closed  bool
	streams sync.WaitGroup
	chunks  chan StreamChunk
}

// NewScriptedClient creates a scripted client. A nil script defaults to
// EchoScript.
func NewScriptedClient(script ScriptFunc) *ScriptedClient {
	if script == nil {
		script = EchoScript
	}
	return &ScriptedClient{
		script: script,
		chunks: make(chan StreamChunk, 64),
	}
}

// SetChunkDelay adds an artificial pause between streamed chunks. Zero by
// default so tests run fast.
func (c *ScriptedClient) SetChunkDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunkDelay = d
}

// Generate runs the script synchronously.
func (c *ScriptedClient) Generate(ctx context.Context, providerID string, req GenerateRequest) (*GenerateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := c.script(providerID, req)
	if err != nil {
		return nil, err
	}
	return &GenerateResult{Content: content}, nil
}

// GenerateStream runs the script and schedules its reply as word chunks on
// the subscription channel. A script error fails the stream start.
func (c *ScriptedClient) GenerateStream(ctx context.Context, providerID string, req GenerateRequest, sourceID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client closed")
	}
	content, err := c.script(providerID, req)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	delay := c.chunkDelay
	c.streams.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.streams.Done()
		words := strings.SplitAfter(content, " ")
		for _, w := range words {
			if w == "" {
				continue
			}
			if delay > 0 {
				time.Sleep(delay)
			}
			select {
			case <-ctx.Done():
				c.emit(StreamChunk{SourceID: sourceID, Err: ctx.Err().Error()})
				return
			default:
			}
			c.emit(StreamChunk{SourceID: sourceID, Text: w})
		}
		c.emit(StreamChunk{SourceID: sourceID, Done: true})
	}()
	return nil
}

// Chunks returns the shared chunk subscription channel.
func (c *ScriptedClient) Chunks() <-chan StreamChunk {
	return c.chunks
}

// Close waits for in-flight streams and closes the subscription channel.
func (c *ScriptedClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.streams.Wait()
	close(c.chunks)
	return nil
}

// emit sends on the subscription channel. Close waits for stream goroutines
// before closing the channel, so in-flight streams never hit a closed send.
func (c *ScriptedClient) emit(chunk StreamChunk) {
	c.chunks <- chunk
}
