// ABOUTME: Event Bus Adapter contract for pushed insert events
// ABOUTME: Defines Event, Bus and Handle plus the canonical conversation key

package bus

import (
	"context"
	"strconv"
	"time"
)

// Event is an inserted-message notification. It carries exactly the fields a
// session needs to reconcile the insert against its local log.
type Event struct {
	ID          string    `json:"id"`
	Sender      int64     `json:"sender"`
	Receiver    int64     `json:"receiver"`
	Body        string    `json:"body"`
	ClientToken string    `json:"client_token"`
	CreatedAt   time.Time `json:"created_at"`
}

// Key returns the canonical conversation key for an unordered account pair:
// "lo:hi". Key(a,b) == Key(b,a).
func Key(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return strconv.FormatInt(a, 10) + ":" + strconv.FormatInt(b, 10)
}

// Handle identifies one live subscription. Unsubscribe is idempotent:
// calling it twice, or on a handle whose subscription is already gone, is a
// no-op, never an error.
type Handle interface {
	Unsubscribe()
}

// Bus delivers inserted-message events for conversations. Each event
// matching the subscribed pair is delivered at most once per subscription,
// in receipt order. Receipt order is not guaranteed to equal creation order
// across network paths; final ordering is the reconciler's job, not the
// bus's.
type Bus interface {
	// Subscribe registers fn for inserts whose {sender,receiver} equals the
	// unordered pair {a,b}. fn is invoked sequentially per subscription.
	Subscribe(ctx context.Context, a, b int64, fn func(Event)) (Handle, error)
	// Publish emits an insert event to all matching subscribers.
	Publish(ctx context.Context, ev Event) error
}
