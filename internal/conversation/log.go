// ABOUTME: Dedup reconciler merging optimistic echoes with remote insert events
// ABOUTME: Maintains one ordered, duplicate-free log per session

package conversation

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fernwood-social/dmgate/internal/bus"
	"github.com/fernwood-social/dmgate/internal/store"
)

// Outcome describes what applying a remote event did to the log.
type Outcome int

const (
	// OutcomeAppended means the event was new and added as a received entry.
	OutcomeAppended Outcome = iota
	// OutcomePromoted means the event confirmed a pending local entry in
	// place; no entry was added.
	OutcomePromoted
	// OutcomeDuplicate means the log already contained the message; nothing
	// changed.
	OutcomeDuplicate
)

// Log is a session's ordered message log. Local sends are appended
// optimistically with a client token; server receipts and bus echoes are
// matched back by token equality, so a message is counted exactly once no
// matter how many events reference it or in which order they land.
//
// Log is not self-synchronizing; the owning session serializes access.
type Log struct {
	self    int64
	entries []*store.Message
	seen    map[string]struct{}       // persisted message ids present in entries
	byToken map[string]*store.Message // client token -> locally sent entry
}

// NewLog creates an empty log for a session owned by the given account.
func NewLog(self int64) *Log {
	return &Log{
		self:    self,
		seen:    make(map[string]struct{}),
		byToken: make(map[string]*store.Message),
	}
}

// LoadHistory merges persisted history into the log, skipping ids already
// present (an event may have arrived while the load was in flight). Returns
// the number of entries added.
func (l *Log) LoadHistory(msgs []store.Message) int {
	added := 0
	for _, m := range msgs {
		if _, dup := l.seen[m.ID]; dup {
			continue
		}
		entry := m
		if entry.Sender == l.self {
			entry.State = store.StateConfirmed
		} else {
			entry.State = store.StateReceived
		}
		l.entries = append(l.entries, &entry)
		l.seen[entry.ID] = struct{}{}
		if entry.Sender == l.self && entry.ClientToken != "" {
			l.byToken[entry.ClientToken] = &entry
		}
		added++
	}
	return added
}

// AppendLocal adds an optimistic pending entry for a local send and assigns
// it a fresh client token. The entry has no id yet; its timestamp is the
// local clock until the store's receipt replaces it.
func (l *Log) AppendLocal(peer int64, body string) *store.Message {
	entry := &store.Message{
		Sender:      l.self,
		Receiver:    peer,
		Body:        body,
		ClientToken: uuid.New().String(),
		CreatedAt:   time.Now().UTC(),
		State:       store.StatePendingLocal,
	}
	l.entries = append(l.entries, entry)
	l.byToken[entry.ClientToken] = entry
	return entry
}

// Confirm attaches the store receipt to the pending entry with the given
// token. It never appends: the optimistic entry is promoted in place. A
// token already confirmed by an earlier bus echo is a no-op success.
func (l *Log) Confirm(token, id string, createdAt time.Time) bool {
	entry, ok := l.byToken[token]
	if !ok {
		return false
	}
	l.attach(entry, id, createdAt)
	return true
}

// MarkFailed flags a pending local entry whose insert was rejected. The
// entry stays visible so the user can resend; a resend is a new message
// with a new token.
func (l *Log) MarkFailed(token string) bool {
	entry, ok := l.byToken[token]
	if !ok || entry.State != store.StatePendingLocal {
		return false
	}
	entry.State = store.StateFailed
	return true
}

// ApplyRemote reconciles an inserted-message event into the log.
//
// Match order: a message id already present wins (duplicate); then a client
// token matching one of our own sends promotes that entry in place; anything
// else is a genuinely remote message and is appended as received.
func (l *Log) ApplyRemote(ev bus.Event) Outcome {
	if ev.ID != "" {
		if _, dup := l.seen[ev.ID]; dup {
			return OutcomeDuplicate
		}
	}

	if ev.ClientToken != "" {
		if entry, ok := l.byToken[ev.ClientToken]; ok && entry.Sender == ev.Sender {
			already := entry.State == store.StateConfirmed
			l.attach(entry, ev.ID, ev.CreatedAt)
			if already {
				return OutcomeDuplicate
			}
			return OutcomePromoted
		}
	}

	entry := &store.Message{
		ID:          ev.ID,
		Sender:      ev.Sender,
		Receiver:    ev.Receiver,
		Body:        ev.Body,
		ClientToken: ev.ClientToken,
		CreatedAt:   ev.CreatedAt,
		State:       store.StateReceived,
	}
	l.entries = append(l.entries, entry)
	if entry.ID != "" {
		l.seen[entry.ID] = struct{}{}
	}
	return OutcomeAppended
}

// attach records the persisted id and timestamp on a locally sent entry and
// marks it confirmed. Idempotent.
func (l *Log) attach(entry *store.Message, id string, createdAt time.Time) {
	if entry.ID == "" && id != "" {
		entry.ID = id
	}
	if !createdAt.IsZero() {
		entry.CreatedAt = createdAt
	}
	if entry.State == store.StatePendingLocal {
		entry.State = store.StateConfirmed
	}
	if entry.ID != "" {
		l.seen[entry.ID] = struct{}{}
	}
}

// Messages returns a sorted copy of the log, ascending by (created_at, id).
// The id breaks timestamp ties; pending entries order by their local clock
// until confirmed.
func (l *Log) Messages() []store.Message {
	out := make([]store.Message, len(l.entries))
	for i, e := range l.entries {
		out[i] = *e
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of entries in the log.
func (l *Log) Len() int {
	return len(l.entries)
}

// Clear discards all entries. The durable copy stays with the store.
func (l *Log) Clear() {
	l.entries = nil
	l.seen = make(map[string]struct{})
	l.byToken = make(map[string]*store.Message)
}
