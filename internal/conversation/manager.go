// ABOUTME: Manager is the upward interface for opening and closing sessions
// ABOUTME: Enforces one session per (self, peer) pair with serial open/close

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fernwood-social/dmgate/internal/bus"
	"github.com/fernwood-social/dmgate/internal/identity"
	"github.com/fernwood-social/dmgate/internal/metrics"
	"github.com/fernwood-social/dmgate/internal/presence"
)

// Options tunes session behavior.
type Options struct {
	// OpenTimeout bounds the concurrent history load + subscribe on open.
	// The session falls to Errored when it elapses. Default 10s.
	OpenTimeout time.Duration
	// HistoryLimit caps the number of messages loaded on open. Default 200.
	HistoryLimit int
}

func (o Options) withDefaults() Options {
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = 10 * time.Second
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 200
	}
	return o
}

// pairKey identifies a session by its owning participant and peer, in that
// order. The two participants of one conversation each own their own session
// (and handle); the exclusivity rule applies per participant, so reopening
// the same pair replaces only that participant's session.
type pairKey struct {
	self int64
	peer int64
}

// Manager owns all open sessions in this process. It guarantees at most one
// session per (self, peer) pair: opening over an existing pair closes the
// old session, releasing its handle, before the new session acquires one.
type Manager struct {
	st       SessionStore
	b        bus.Bus
	resolver *identity.Resolver
	est      *presence.Estimator
	opts     Options
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[pairKey]*Session
}

// NewManager creates a session manager. Pass nil logger for default.
func NewManager(st SessionStore, b bus.Bus, resolver *identity.Resolver, est *presence.Estimator, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		st:       st,
		b:        b,
		resolver: resolver,
		est:      est,
		opts:     opts.withDefaults(),
		sessions: make(map[pairKey]*Session),
		logger:   logger.With("component", "conversation"),
	}
}

// Open resolves the caller's identity and opens a session with the given
// peer. The returned session is Loading; it transitions to Live or Errored
// asynchronously and signals Updates on every change.
func (m *Manager) Open(ctx context.Context, selfExternalID string, peerID int64) (*Session, error) {
	selfID, err := m.resolver.Resolve(ctx, selfExternalID)
	if err != nil {
		return nil, err
	}
	if selfID == peerID {
		return nil, ErrSelfConversation
	}
	// Verify the peer exists (and warm the profile cache for rendering).
	if _, err := m.resolver.LookupDisplay(ctx, peerID); err != nil {
		return nil, fmt.Errorf("looking up peer: %w", err)
	}

	key := pairKey{self: selfID, peer: peerID}

	m.mu.Lock()
	// Release before acquire: whatever session currently holds this pair is
	// evicted and closed before the replacement subscribes. Closing drops
	// the lock, so concurrent opens for the same pair can interleave here;
	// the loop re-checks after relocking and evicts again, so the last
	// installer wins and every loser is closed, never orphaned.
	for {
		old := m.sessions[key]
		if old == nil {
			break
		}
		delete(m.sessions, key)
		m.mu.Unlock()
		old.Close()
		m.mu.Lock()
	}
	s := newSession(selfID, peerID, m.st, m.b, m.est, m.opts.OpenTimeout, m.opts.HistoryLimit, m.logger)
	s.onClose = m.release
	m.sessions[key] = s
	m.mu.Unlock()

	metrics.SessionsActive.Inc()
	m.logger.Debug("session opened", "conversation_key", bus.Key(selfID, peerID), "self", selfID, "peer", peerID)

	s.open()
	return s, nil
}

// Close closes a session. Idempotent.
func (m *Manager) Close(s *Session) {
	s.Close()
}

// CloseAll closes every open session. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		s.Close()
	}
}

// release is the session onClose hook. It runs exactly once per session.
func (m *Manager) release(s *Session) {
	k := pairKey{self: s.self, peer: s.peer}
	m.mu.Lock()
	if m.sessions[k] == s {
		delete(m.sessions, k)
	}
	m.mu.Unlock()
	metrics.SessionsActive.Dec()
}
