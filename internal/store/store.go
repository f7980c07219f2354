// ABOUTME: Store interface and data types for dmgate persistence
// ABOUTME: Defines Account, Message, Receipt and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrAccountNotFound is returned when a requested account does not exist
var ErrAccountNotFound = errors.New("account not found")

// ErrDuplicateAccount is returned when creating an account whose external
// identity is already registered
var ErrDuplicateAccount = errors.New("account already exists")

// ErrSend is returned when a message could not be persisted. The message has
// no partial side effects: callers must not assume it was stored unless
// InsertMessage returned successfully.
var ErrSend = errors.New("send failed")

// MaxBodyBytes is the maximum accepted message body size.
const MaxBodyBytes = 4096

// DeliveryState tracks the lifecycle of a message in a session's in-memory
// log. Persisted rows carry no state; the reconciler assigns it.
type DeliveryState string

const (
	// StatePendingLocal marks an optimistic local echo not yet acknowledged
	// by the store.
	StatePendingLocal DeliveryState = "pending_local"
	// StateConfirmed marks a locally sent message matched to its server
	// receipt or echo.
	StateConfirmed DeliveryState = "confirmed"
	// StateReceived marks a message that arrived from the other participant.
	StateReceived DeliveryState = "received"
	// StateFailed marks a local send whose insert was rejected. The user may
	// resend; a resend is a fresh message with a fresh token.
	StateFailed DeliveryState = "failed"
)

// Account is a registered participant. Accounts are owned and mutated by the
// identity/profile service; this core only reads them, except for the
// monotone last-seen refresh.
type Account struct {
	ID          int64
	ExternalID  string // auth-provider subject, opaque to this core
	DisplayName string
	AvatarURL   string
	LastSeen    time.Time // zero when the account has never been seen
}

// Profile is the canonical display projection for an account. It is always
// this exact two-field shape; callers never sniff join-result shapes.
type Profile struct {
	Name   string
	Avatar string
}

// Message is a single direct message between two accounts.
type Message struct {
	ID          string // uuid, empty until persisted
	Sender      int64
	Receiver    int64
	Body        string
	ClientToken string // idempotency token generated at send time
	CreatedAt   time.Time
	State       DeliveryState
}

// Receipt is the acknowledgement returned by a successful insert.
type Receipt struct {
	ID        string
	CreatedAt time.Time
}

// Store defines the persistence operations the DM sync engine depends on.
type Store interface {
	// Accounts
	CreateAccount(ctx context.Context, account *Account) error
	AccountByExternalID(ctx context.Context, externalID string) (*Account, error)
	Profile(ctx context.Context, accountID int64) (*Profile, error)
	ReadLastSeen(ctx context.Context, accountID int64) (time.Time, error)
	// TouchLastSeen records activity for an account. Writes are monotone:
	// a timestamp older than the stored one is ignored.
	TouchLastSeen(ctx context.Context, accountID int64, t time.Time) error

	// Messages
	// InsertMessage persists a message and returns its id and timestamp.
	// Validation or transport failures are wrapped in ErrSend.
	InsertMessage(ctx context.Context, sender, receiver int64, body, clientToken string) (*Receipt, error)
	// QueryMessages returns the conversation between a and b, both
	// directions, ascending by (created_at, id). Argument order does not
	// matter. An empty conversation yields an empty slice, not an error.
	QueryMessages(ctx context.Context, a, b int64, limit int) ([]Message, error)

	// Close releases any resources held by the store
	Close() error
}
