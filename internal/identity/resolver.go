// ABOUTME: Identity Resolver mapping external identities to internal account ids
// ABOUTME: Caches display profiles for the lifetime of the resolver

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fernwood-social/dmgate/internal/store"
)

// ErrUnknownIdentity is returned when no account matches an external
// identity. Fatal to opening a conversation.
var ErrUnknownIdentity = errors.New("unknown identity")

// AccountReader defines what the resolver needs from storage.
type AccountReader interface {
	AccountByExternalID(ctx context.Context, externalID string) (*store.Account, error)
	Profile(ctx context.Context, accountID int64) (*store.Profile, error)
}

// Resolver maps opaque external identities to stable internal account ids
// and caches id -> display profile lookups. Cache entries live for the
// resolver's lifetime and are never invalidated: display name changes are
// not expected to be observed mid-session.
type Resolver struct {
	reader AccountReader
	logger *slog.Logger

	mu       sync.RWMutex
	profiles map[int64]*store.Profile
}

// NewResolver creates a resolver backed by the given account reader.
// Pass nil logger for default.
func NewResolver(reader AccountReader, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		reader:   reader,
		logger:   logger.With("component", "identity"),
		profiles: make(map[int64]*store.Profile),
	}
}

// Resolve maps an external identity to its internal account id.
func (r *Resolver) Resolve(ctx context.Context, externalID string) (int64, error) {
	account, err := r.reader.AccountByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrUnknownIdentity, externalID)
		}
		return 0, fmt.Errorf("resolving identity: %w", err)
	}
	return account.ID, nil
}

// LookupDisplay returns the display profile for an account, cached after the
// first successful lookup.
func (r *Resolver) LookupDisplay(ctx context.Context, accountID int64) (*store.Profile, error) {
	r.mu.RLock()
	p, ok := r.profiles[accountID]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := r.reader.Profile(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: account %d", ErrUnknownIdentity, accountID)
		}
		return nil, fmt.Errorf("looking up profile: %w", err)
	}

	r.mu.Lock()
	r.profiles[accountID] = p
	r.mu.Unlock()

	r.logger.Debug("profile cached", "account_id", accountID, "name", p.Name)
	return p, nil
}
