// ABOUTME: Ordered turn selection roster.
// ABOUTME: Insertion order is the sequential tie-break; re-adding moves an agent to the end.

package agent

import "sync"

// Roster stores the ordered set of agent IDs selected for upcoming turns.
// Under the sequential policy the stored order defines invocation order, so
// it is preserved explicitly across additions and removals. Removing and
// re-adding an agent moves it to the end.
type Roster struct {
	mu  sync.RWMutex
	ids []string
}

// NewRoster creates a roster seeded with the given IDs in order.
func NewRoster(ids ...string) *Roster {
	r := &Roster{}
	for _, id := range ids {
		r.Add(id)
	}
	return r
}

// Add appends an agent to the selection. If already present it is moved
// to the end.
func (r *Roster) Add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(id)
	r.ids = append(r.ids, id)
}

// Remove drops an agent from the selection. Unknown IDs are ignored.
func (r *Roster) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(id)
}

// Contains reports whether the agent is selected.
func (r *Roster) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, have := range r.ids {
		if have == id {
			return true
		}
	}
	return false
}

// IDs returns a copy of the selection in order.
func (r *Roster) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// Len reports the number of selected agents.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

// Reset replaces the selection wholesale, preserving the given order.
// Used by session restore.
func (r *Roster) Reset(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = make([]string, len(ids))
	copy(r.ids, ids)
}

func (r *Roster) removeLocked(id string) {
	for i, have := range r.ids {
		if have == id {
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			return
		}
	}
}
