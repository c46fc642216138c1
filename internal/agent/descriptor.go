// ABOUTME: Agent descriptor: identity plus provider configuration for one responder.
// ABOUTME: Immutable for the lifetime of a session; validated before any network call.

package agent

import (
	"errors"
	"fmt"
)

// ErrMisconfigured indicates an agent lacks the configuration required to
// make a provider call. Invocation fails fast on this - no request is sent
// and nothing is appended to the conversation.
var ErrMisconfigured = errors.New("agent misconfigured")

// Descriptor holds everything needed to invoke one agent.
type Descriptor struct {
	ID           string `toml:"id" json:"id"`
	DisplayName  string `toml:"name" json:"name"`
	ProviderID   string `toml:"provider" json:"provider"`
	Model        string `toml:"model" json:"model"`
	SystemPrompt string `toml:"system_prompt" json:"system_prompt"`
}

// Validate reports whether the descriptor can be invoked at all.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: missing agent id", ErrMisconfigured)
	}
	if d.ProviderID == "" {
		return fmt.Errorf("%w: agent %q has no provider", ErrMisconfigured, d.ID)
	}
	if d.Model == "" {
		return fmt.Errorf("%w: agent %q has no model", ErrMisconfigured, d.ID)
	}
	return nil
}

// Name returns the display name, falling back to the ID.
func (d Descriptor) Name() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.ID
}
