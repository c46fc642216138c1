// ABOUTME: Scenario definitions: the cast of agents and turn setup for one stage.
// ABOUTME: TOML files with [[agents]] blocks, an optional policy, and a selection order.

package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/agent"
)

// Scenario describes a reusable stage setup.
type Scenario struct {
	Title string `toml:"title"`

	// Policy overrides the service default for this scenario. Optional.
	Policy string `toml:"policy"`

	// Selection is the initial turn order. Empty means all agents in file
	// order.
	Selection []string `toml:"selection"`

	Agents []agent.Descriptor `toml:"agents"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	var sc Scenario
	if _, err := toml.DecodeFile(path, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario file: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("validating scenario: %w", err)
	}
	return &sc, nil
}

// Validate checks agent uniqueness and that every selected ID exists.
func (s *Scenario) Validate() error {
	if len(s.Agents) == 0 {
		return fmt.Errorf("scenario has no agents")
	}

	seen := make(map[string]bool, len(s.Agents))
	for _, d := range s.Agents {
		if d.ID == "" {
			return fmt.Errorf("agent %q has no id", d.DisplayName)
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate agent id %q", d.ID)
		}
		seen[d.ID] = true
	}

	switch s.Policy {
	case "", "broadcast", "sequential":
	default:
		return fmt.Errorf("policy must be \"broadcast\" or \"sequential\", got %q", s.Policy)
	}

	for _, id := range s.Selection {
		if !seen[id] {
			return fmt.Errorf("selection references unknown agent %q", id)
		}
	}
	return nil
}

// SelectionOrDefault returns the configured selection, or all agents in file
// order when none is given.
func (s *Scenario) SelectionOrDefault() []string {
	if len(s.Selection) > 0 {
		return append([]string(nil), s.Selection...)
	}
	ids := make([]string, len(s.Agents))
	for i, d := range s.Agents {
		ids[i] = d.ID
	}
	return ids
}
