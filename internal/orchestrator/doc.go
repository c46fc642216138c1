// Package orchestrator decides which agents speak, in what order, and folds
// their streamed or whole replies back into the shared conversation log.
//
// # Overview
//
// The Coordinator owns both halves of the problem: invoking a single agent
// (building the request from the log, calling the provider, folding streamed
// fragments into a placeholder, reporting exactly one terminal outcome) and
// advancing the turn (broadcast fan-out or strict one-at-a-time sequencing).
// Keeping both on one object lets completion call advancement as a plain
// method instead of a forward-declared callback.
//
// # Turn policies
//
//   - PolicyBroadcast: every selected agent is invoked concurrently with the
//     identical history snapshot, taken before any invocation starts. No
//     ordering between completions.
//   - PolicySequential: agents are invoked one at a time in selection order;
//     each invocation sees the replies of the agents before it in the same
//     turn. A failure advances the turn exactly as a success would.
//
// # Exactly-once completion
//
// A single invocation can reach terminal state through three independent
// paths: a mid-stream error chunk, a stream done chunk, or a failure while
// preparing or sending the request. All three funnel into one terminal
// method guarded by an atomic per-invocation flag, so duplicate signals are
// no-ops. "Advance to the next agent" is itself debounced: concurrent
// completion paths coalesce into a single deferred scan through a shared
// latch, which is what prevents double-invoking the next agent.
//
// # Streaming
//
// The Coordinator holds the session's only subscription to the client's
// chunk channel and routes each chunk to its invocation by source ID. A
// streaming turn opens an empty placeholder message immediately; fragments
// accumulate into it and are observable before completion. On a stream
// error the placeholder is removed only if still empty, otherwise the
// partial content is kept and finalized.
package orchestrator
