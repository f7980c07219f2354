// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu         sync.RWMutex
	nextID     int64
	accounts   map[int64]*Account  // keyed by account ID
	byExternal map[string]int64    // external_id -> account ID
	messages   []Message           // insertion order
	byToken    map[string]struct{} // client tokens already inserted

	// InsertErr, when set, is returned by InsertMessage. Lets tests exercise
	// the failed delivery state.
	InsertErr error
	// QueryErr, when set, is returned by QueryMessages.
	QueryErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		nextID:     1,
		accounts:   make(map[int64]*Account),
		byExternal: make(map[string]int64),
		byToken:    make(map[string]struct{}),
	}
}

// CreateAccount stores a new account and assigns it an ID.
func (m *MockStore) CreateAccount(ctx context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byExternal[account.ExternalID]; exists {
		return ErrDuplicateAccount
	}

	a := *account
	a.ID = m.nextID
	m.nextID++

	m.accounts[a.ID] = &a
	m.byExternal[a.ExternalID] = a.ID
	account.ID = a.ID
	return nil
}

// AccountByExternalID retrieves an account by external identity.
func (m *MockStore) AccountByExternalID(ctx context.Context, externalID string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byExternal[externalID]
	if !ok {
		return nil, ErrAccountNotFound
	}

	// Return a copy
	result := *m.accounts[id]
	return &result, nil
}

// Profile returns the display projection for an account.
func (m *MockStore) Profile(ctx context.Context, accountID int64) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &Profile{Name: a.DisplayName, Avatar: a.AvatarURL}, nil
}

// ReadLastSeen returns the last-seen timestamp for an account.
func (m *MockStore) ReadLastSeen(ctx context.Context, accountID int64) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[accountID]
	if !ok {
		return time.Time{}, ErrAccountNotFound
	}
	return a.LastSeen, nil
}

// TouchLastSeen updates last-seen, keeping it monotonically non-decreasing.
func (m *MockStore) TouchLastSeen(ctx context.Context, accountID int64, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	if t.After(a.LastSeen) {
		a.LastSeen = t
	}
	return nil
}

// InsertMessage validates and stores a message.
func (m *MockStore) InsertMessage(ctx context.Context, sender, receiver int64, body, clientToken string) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InsertErr != nil {
		return nil, m.InsertErr
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: empty body", ErrSend)
	}
	if len(body) > MaxBodyBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrSend, MaxBodyBytes)
	}
	if sender == receiver {
		return nil, fmt.Errorf("%w: sender and receiver are the same account", ErrSend)
	}
	if clientToken == "" {
		return nil, fmt.Errorf("%w: missing client token", ErrSend)
	}
	if _, dup := m.byToken[clientToken]; dup {
		return nil, fmt.Errorf("%w: duplicate client token", ErrSend)
	}

	receipt := &Receipt{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	}

	m.messages = append(m.messages, Message{
		ID:          receipt.ID,
		Sender:      sender,
		Receiver:    receiver,
		Body:        body,
		ClientToken: clientToken,
		CreatedAt:   receipt.CreatedAt,
	})
	m.byToken[clientToken] = struct{}{}

	return receipt, nil
}

// QueryMessages returns the exchange between a and b, ascending by
// (created_at, id), regardless of argument order.
func (m *MockStore) QueryMessages(ctx context.Context, a, b int64, limit int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	if limit <= 0 {
		limit = 200
	}

	result := []Message{}
	for _, msg := range m.messages {
		if (msg.Sender == a && msg.Receiver == b) || (msg.Sender == b && msg.Receiver == a) {
			result = append(result, msg)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}
