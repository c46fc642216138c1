// Package session captures and restores session snapshots.
//
// A Snapshot holds the conversation log, the agent roster, and the turn
// configuration - everything needed to redraw the conversation and run
// future turns. It never holds in-flight turn state: a restored session
// always starts idle, and a reply that was still streaming (with no content
// yet) at capture time is absent from the snapshot.
//
// The Autosaver subscribes to conversation change notifications and hands a
// fresh snapshot to the persistence collaborator after every completed step.
package session
