// ABOUTME: Package store persists session snapshots.
// ABOUTME: SQLite-backed implementation plus an in-memory mock for tests.
package store
