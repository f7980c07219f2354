// ABOUTME: Package documentation for conversation
// ABOUTME: Explains sessions, the reconciler log, and the manager

// Package conversation synchronizes open direct-message conversations.
//
// A Session owns everything one open conversation needs: the ordered message
// log, the single event bus subscription, and a presence view of the peer.
// Opening a session loads persisted history and subscribes to insert events
// concurrently; local sends appear immediately as optimistic pending entries
// and are reconciled with store receipts and bus echoes by client token, so
// each message is shown exactly once regardless of arrival order.
//
// The Manager hands out sessions and guarantees at most one per (self, peer)
// pair in the process: a participant reopening the same conversation closes
// their previous session, and its subscription is released before the new one
// is acquired. Each participant of a conversation owns their own session.
package conversation
