// ABOUTME: Conversation Session owning one subscription, one log, one presence snapshot
// ABOUTME: State machine Idle -> Loading -> Live -> Closing -> Closed, with Errored

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fernwood-social/dmgate/internal/bus"
	"github.com/fernwood-social/dmgate/internal/metrics"
	"github.com/fernwood-social/dmgate/internal/presence"
	"github.com/fernwood-social/dmgate/internal/store"
)

// SessionState is the lifecycle state of a conversation session.
type SessionState string

const (
	StateIdle    SessionState = "idle"
	StateLoading SessionState = "loading"
	StateLive    SessionState = "live"
	StateClosing SessionState = "closing"
	StateClosed  SessionState = "closed"
	StateErrored SessionState = "errored"
)

// sendTimeout bounds the store insert and event publish for one send.
const sendTimeout = 5 * time.Second

// SessionStore defines what a session needs from storage.
type SessionStore interface {
	QueryMessages(ctx context.Context, a, b int64, limit int) ([]store.Message, error)
	InsertMessage(ctx context.Context, sender, receiver int64, body, clientToken string) (*store.Receipt, error)
	ReadLastSeen(ctx context.Context, accountID int64) (time.Time, error)
}

// Session synchronizes one open two-party conversation: it loads history,
// echoes local sends optimistically, ingests pushed insert events, and keeps
// the log ordered and duplicate-free. All async completions are applied
// under one lock, the session's single serialization point, and are
// discarded once the session leaves the Loading/Live states (superseded
// guard).
//
// A session holds zero or one bus handle at any instant and releases it on
// every exit path.
type Session struct {
	self int64
	peer int64
	key  string

	st  SessionStore
	b   bus.Bus
	est *presence.Estimator

	mu     sync.Mutex
	state  SessionState
	reason error
	log    *Log
	handle bus.Handle

	updates chan struct{}
	onClose func(*Session)

	// lifeCtx spans the whole session. The subscription is bound to it, not
	// to the open timeout, so a Live session keeps receiving events until
	// Close cancels it.
	lifeCtx  context.Context
	lifeStop context.CancelFunc

	openTimeout  time.Duration
	historyLimit int

	logger *slog.Logger
}

func newSession(self, peer int64, st SessionStore, b bus.Bus, est *presence.Estimator, openTimeout time.Duration, historyLimit int, logger *slog.Logger) *Session {
	lifeCtx, lifeStop := context.WithCancel(context.Background())
	return &Session{
		self:         self,
		peer:         peer,
		key:          bus.Key(self, peer),
		st:           st,
		b:            b,
		est:          est,
		state:        StateIdle,
		log:          NewLog(self),
		updates:      make(chan struct{}, 1),
		lifeCtx:      lifeCtx,
		lifeStop:     lifeStop,
		openTimeout:  openTimeout,
		historyLimit: historyLimit,
		logger:       logger.With("component", "session", "conversation_key", bus.Key(self, peer)),
	}
}

// Self returns the owning participant's account id.
func (s *Session) Self() int64 { return s.self }

// Peer returns the other participant's account id.
func (s *Session) Peer() int64 { return s.peer }

// Key returns the session's conversation key.
func (s *Session) Key() string { return s.key }

// open begins the history load and subscription concurrently and transitions
// to Live once both complete, or Errored if either fails or the open timeout
// elapses.
func (s *Session) open() {
	s.mu.Lock()
	if s.state != StateIdle {
		// Already opened, or closed before open could run.
		s.mu.Unlock()
		return
	}
	s.state = StateLoading
	s.mu.Unlock()
	s.notify()

	go func() {
		ctx, cancel := context.WithTimeout(s.lifeCtx, s.openTimeout)
		defer cancel()

		var (
			history []store.Message
			histErr error
			handle  bus.Handle
			subErr  error
			wg      sync.WaitGroup
		)

		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			history, histErr = s.st.QueryMessages(ctx, s.self, s.peer, s.historyLimit)
			metrics.HistoryLoadSeconds.Observe(time.Since(start).Seconds())
		}()
		// The subscription outlives the open: it is bound to the session
		// lifetime context, not the open timeout.
		wg.Add(1)
		go func() {
			defer wg.Done()
			handle, subErr = s.b.Subscribe(s.lifeCtx, s.self, s.peer, s.handleEvent)
		}()
		wg.Wait()

		s.mu.Lock()
		if s.state != StateLoading {
			// Closed while loading: discard the completion and release the
			// handle we just acquired.
			s.mu.Unlock()
			if handle != nil {
				handle.Unsubscribe()
			}
			return
		}

		switch {
		case histErr != nil:
			s.state = StateErrored
			s.reason = fmt.Errorf("%w: %v", ErrHistoryLoad, histErr)
		case subErr != nil:
			s.state = StateErrored
			s.reason = fmt.Errorf("%w: %v", ErrSubscription, subErr)
		default:
			s.log.LoadHistory(history)
			s.handle = handle
			s.state = StateLive
		}
		state, reason := s.state, s.reason
		s.mu.Unlock()

		if state == StateErrored {
			// The subscription may have opened even though history failed.
			if handle != nil {
				handle.Unsubscribe()
			}
			s.lifeStop()
			s.logger.Warn("session open failed", "error", reason)
		} else {
			s.logger.Debug("session live", "history", len(history))
		}
		s.notify()
	}()
}

// Send appends an optimistic pending entry and persists it asynchronously.
// Returns the message's client token. On insert failure the entry is marked
// failed; the session itself survives.
func (s *Session) Send(body string) (string, error) {
	s.mu.Lock()
	if s.state != StateLive {
		state := s.state
		s.mu.Unlock()
		return "", fmt.Errorf("%w: state %s", ErrNotLive, state)
	}
	entry := s.log.AppendLocal(s.peer, body)
	token := entry.ClientToken
	s.mu.Unlock()
	s.notify()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		receipt, err := s.st.InsertMessage(ctx, s.self, s.peer, body, token)
		if err != nil {
			s.mu.Lock()
			if s.state == StateLive {
				s.log.MarkFailed(token)
			}
			s.mu.Unlock()
			metrics.SendFailures.Inc()
			s.logger.Warn("send failed", "error", err)
			s.notify()
			return
		}

		s.mu.Lock()
		if s.state == StateLive {
			// A session closed mid-insert skips the log update; the event
			// below still goes out because the message is durable either way.
			s.log.Confirm(token, receipt.ID, receipt.CreatedAt)
		}
		s.mu.Unlock()
		metrics.MessagesSent.Inc()
		s.notify()

		ev := bus.Event{
			ID:          receipt.ID,
			Sender:      s.self,
			Receiver:    s.peer,
			Body:        body,
			ClientToken: token,
			CreatedAt:   receipt.CreatedAt,
		}
		// Published even when this session was superseded mid-insert: the
		// event serves the peer, not this session's state.
		if err := s.b.Publish(ctx, ev); err != nil {
			// Live delivery degrades; the message is persisted and will be
			// seen on the peer's next history load.
			s.logger.Warn("publishing insert event", "error", err, "message_id", receipt.ID)
		}
	}()

	return token, nil
}

// handleEvent is the bus callback. Events for a session that is no longer
// loading or live are discarded without mutating anything.
func (s *Session) handleEvent(ev bus.Event) {
	s.mu.Lock()
	if s.state != StateLive && s.state != StateLoading {
		s.mu.Unlock()
		return
	}
	outcome := s.log.ApplyRemote(ev)
	s.mu.Unlock()

	metrics.EventsDelivered.Inc()
	if outcome == OutcomeDuplicate {
		metrics.EventsDuplicate.Inc()
		return
	}
	s.notify()
}

// Messages returns the ordered, duplicate-free log.
func (s *Session) Messages() []store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.Messages()
}

// State returns the session's lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the reason a session is Errored, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Presence computes a point-in-time presence snapshot for the peer.
func (s *Session) Presence(ctx context.Context) (presence.Snapshot, error) {
	lastSeen, err := s.st.ReadLastSeen(ctx, s.peer)
	if err != nil {
		return presence.Snapshot{}, fmt.Errorf("reading last seen: %w", err)
	}
	now := time.Now().UTC()
	return presence.Snapshot{
		Online:     s.est.Online(lastSeen, now),
		LastSeen:   lastSeen,
		ObservedAt: now,
	}, nil
}

// Updates returns a coalescing notification channel. A receive means the
// observable state (log, lifecycle state, or presence inputs) may have
// changed and the boundary should re-render.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// Close tears the session down: releases the subscription (idempotent),
// discards the in-memory log, and flips to Closed. Completions still in
// flight for this session are detected and discarded, never applied. Safe to
// call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()

	if handle != nil {
		handle.Unsubscribe()
	}
	s.lifeStop()

	s.mu.Lock()
	s.log.Clear()
	s.state = StateClosed
	s.mu.Unlock()
	s.notify()

	if s.onClose != nil {
		s.onClose(s)
	}
	s.logger.Debug("session closed")
}

// notify signals the updates channel without blocking.
func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
