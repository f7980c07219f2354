// Package bus adapts a push/event service into filtered per-conversation
// subscriptions.
//
// # Contract
//
// A subscription covers one unordered account pair and delivers each
// matching insert event at most once, in receipt order. Receipt order can
// differ from creation order across network paths; sessions re-order and
// deduplicate, the bus does not.
//
// Handles are owned by the session that opened them, one handle per open
// conversation, and Unsubscribe is idempotent on every implementation.
// There is deliberately no process-wide shared handle slot.
//
// # Implementations
//
//   - Broadcaster: in-process fan-out for single-node deployments and tests
//   - NATSBus: core NATS pub/sub, subject "dm.msg.<lo>:<hi>", JSON payloads
package bus
