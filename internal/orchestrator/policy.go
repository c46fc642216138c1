// ABOUTME: Turn-taking policies: broadcast to every selected agent at once,
// ABOUTME: or strictly one at a time in selection order.

package orchestrator

import "fmt"

// Policy selects how a turn fans out across the selected agents.
type Policy int

const (
	// PolicyBroadcast invokes every selected agent concurrently with the
	// same history snapshot. Completions are independent.
	PolicyBroadcast Policy = iota

	// PolicySequential invokes the selected agents one at a time in
	// selection order; each sees the replies of the agents before it.
	PolicySequential
)

// String returns the config-file spelling of the policy.
func (p Policy) String() string {
	switch p {
	case PolicyBroadcast:
		return "broadcast"
	case PolicySequential:
		return "sequential"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy converts a config-file spelling into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "broadcast":
		return PolicyBroadcast, nil
	case "sequential":
		return PolicySequential, nil
	default:
		return PolicyBroadcast, fmt.Errorf("unknown turn policy %q", s)
	}
}
