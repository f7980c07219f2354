// ABOUTME: Tests for the in-memory MockStore
// ABOUTME: Keeps the mock behaviorally aligned with the SQLite implementation

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance
var _ Store = (*MockStore)(nil)
var _ Store = (*SQLiteStore)(nil)

func TestMockStore_SymmetricQuery(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	alice := createTestAccount(t, m, "auth0|alice", "Alice")
	bob := createTestAccount(t, m, "auth0|bob", "Bob")

	_, err := m.InsertMessage(ctx, alice.ID, bob.ID, "hi", "t1")
	require.NoError(t, err)
	_, err = m.InsertMessage(ctx, bob.ID, alice.ID, "yo", "t2")
	require.NoError(t, err)

	ab, err := m.QueryMessages(ctx, alice.ID, bob.ID, 0)
	require.NoError(t, err)
	ba, err := m.QueryMessages(ctx, bob.ID, alice.ID, 0)
	require.NoError(t, err)

	assert.Equal(t, ab, ba)
	assert.Len(t, ab, 2)
}

func TestMockStore_RejectsDuplicateToken(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	alice := createTestAccount(t, m, "auth0|alice", "Alice")
	bob := createTestAccount(t, m, "auth0|bob", "Bob")

	_, err := m.InsertMessage(ctx, alice.ID, bob.ID, "hi", "same-token")
	require.NoError(t, err)

	_, err = m.InsertMessage(ctx, alice.ID, bob.ID, "hi again", "same-token")
	assert.ErrorIs(t, err, ErrSend)
}

func TestMockStore_InjectedInsertError(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	alice := createTestAccount(t, m, "auth0|alice", "Alice")
	bob := createTestAccount(t, m, "auth0|bob", "Bob")

	m.InsertErr = ErrSend
	_, err := m.InsertMessage(ctx, alice.ID, bob.ID, "hi", "t1")
	assert.ErrorIs(t, err, ErrSend)

	m.InsertErr = nil
	_, err = m.InsertMessage(ctx, alice.ID, bob.ID, "hi", "t1")
	assert.NoError(t, err)
}
