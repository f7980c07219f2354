// Package store provides persistent storage for dmgate using SQLite.
//
// # Architecture
//
// The Store interface is the persistence collaborator for the DM sync
// engine. Two implementations exist:
//
//   - SQLiteStore: production implementation backed by modernc.org/sqlite
//     with WAL mode and automatic schema creation
//   - MockStore: in-memory implementation for tests
//
// # Data
//
// Accounts are owned by the external identity/profile service; this core
// reads them and refreshes last_seen on activity. Messages are immutable
// rows: no update or delete operations exist.
//
// Every message row carries the client_token generated by the sender at
// send time. The token is echoed back on insert events so that sessions can
// match a server echo to its optimistic local entry by token equality.
//
// # Ordering
//
// QueryMessages returns both directions of an unordered account pair,
// ascending by (created_at, id); the id breaks timestamp ties so ordering
// is total and argument order never matters.
package store
