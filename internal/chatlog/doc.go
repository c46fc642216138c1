// ABOUTME: Package chatlog holds the shared, ordered conversation record.
// ABOUTME: All agent and user messages flow through the Log - it is the source of truth.
package chatlog
