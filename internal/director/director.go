// ABOUTME: Director extension: injects stage commands and narration into the log,
// ABOUTME: then delegates a sequential turn to a chosen subset of agents.

package director

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/chatlog"
	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/orchestrator"
)

// Director inserts synthetic, non-agent entries into the conversation and
// drives targeted turns through the coordinator. Commands are addressed to a
// subset of agents; narration is addressed to everyone.
type Director struct {
	coord  *orchestrator.Coordinator
	logger *slog.Logger
}

// New creates a Director. Pass nil logger for default.
func New(coord *orchestrator.Coordinator, logger *slog.Logger) *Director {
	if logger == nil {
		logger = slog.Default()
	}
	return &Director{
		coord:  coord,
		logger: logger.With("component", "director"),
	}
}

// Command appends a directive addressed to the given agents and, if the
// addressee list is non-empty, runs a sequential turn for exactly that
// subset. The just-inserted directive is part of the history every addressee
// sees. Selection order follows the addressee order.
func (d *Director) Command(ctx context.Context, text string, addressees []string) chatlog.Message {
	msg := d.coord.Log().AppendUser(renderCommand(text, d.addresseeNames(addressees)))

	d.logger.Info("director command",
		"addressees", len(addressees))

	if len(addressees) > 0 {
		d.coord.StartTurn(ctx, addressees, orchestrator.PolicySequential)
	}
	return msg
}

// Narrate appends scene narration addressed to all agents. Narration on its
// own does not start a turn; pass the narration to Command when a response
// is wanted.
func (d *Director) Narrate(ctx context.Context, text string) chatlog.Message {
	msg := d.coord.Log().AppendUser(fmt.Sprintf("(Narration) %s", text))
	d.logger.Info("director narration")
	return msg
}

// addresseeNames maps agent IDs to display names for rendering; unknown IDs
// keep their raw form so the entry still reads sensibly.
func (d *Director) addresseeNames(ids []string) []string {
	byID := make(map[string]string)
	for _, desc := range d.coord.Agents() {
		byID[desc.ID] = desc.Name()
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := byID[id]; ok {
			names = append(names, name)
		} else {
			names = append(names, id)
		}
	}
	return names
}

// renderCommand folds the addressee list into the entry content so the
// direction is visible in the conversation itself.
func renderCommand(text string, names []string) string {
	if len(names) == 0 {
		return fmt.Sprintf("(Director) %s", text)
	}
	return fmt.Sprintf("(Director, to %s) %s", strings.Join(names, ", "), text)
}
