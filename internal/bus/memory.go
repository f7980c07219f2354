// ABOUTME: In-memory fan-out implementation of the Bus interface
// ABOUTME: Used by single-node deployments and tests

package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned when subscribing on a closed broadcaster.
var ErrClosed = errors.New("broadcaster closed")

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// memSub is one registered subscriber. Events are drained by a dedicated
// goroutine so fn sees them sequentially, in receipt order. The channel is
// never closed; done signals shutdown, which keeps Publish free of
// send-on-closed races.
type memSub struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *memSub) stop() {
	s.once.Do(func() { close(s.done) })
}

// Broadcaster provides in-process pub/sub for insert events, keyed by
// conversation key. Publishing is non-blocking: events are dropped for
// subscribers whose buffers are full.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*memSub // conversation key -> subID -> sub
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]*memSub),
		logger:      logger.With("component", "bus"),
	}
}

// memHandle implements Handle for one broadcaster subscription.
type memHandle struct {
	b     *Broadcaster
	key   string
	subID string
}

func (h *memHandle) Unsubscribe() {
	h.b.unsubscribe(h.key, h.subID)
}

// Subscribe registers fn for the unordered pair {a,b}. The subscription is
// also released when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, a, peer int64, fn func(Event)) (Handle, error) {
	key := Key(a, peer)
	subID := uuid.New().String()
	sub := &memSub{
		ch:   make(chan Event, subscriberBufferSize),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := b.subscribers[key]; !ok {
		b.subscribers[key] = make(map[string]*memSub)
	}
	b.subscribers[key][subID] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "conversation_key", key, "sub_id", subID)

	// Drain loop: delivers events one at a time in receipt order.
	go func() {
		for {
			select {
			case ev := <-sub.ch:
				fn(ev)
			case <-sub.done:
				return
			}
		}
	}()

	// Auto-cleanup on context cancellation
	go func() {
		select {
		case <-ctx.Done():
			b.unsubscribe(key, subID)
		case <-sub.done:
		}
	}()

	return &memHandle{b: b, key: key, subID: subID}, nil
}

// Publish sends an event to every subscriber of the event's conversation
// key. Non-blocking: slow subscribers lose events rather than stalling the
// publisher.
func (b *Broadcaster) Publish(ctx context.Context, ev Event) error {
	key := Key(ev.Sender, ev.Receiver)

	b.mu.RLock()
	subs := b.subscribers[key]
	targets := make([]*memSub, 0, len(subs))
	for _, sub := range subs {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"conversation_key", key,
				"event_id", ev.ID)
		}
	}
	return nil
}

// unsubscribe removes a subscription and stops its drain goroutine. Safe to
// call repeatedly.
func (b *Broadcaster) unsubscribe(key, subID string) {
	b.mu.Lock()
	subs, ok := b.subscribers[key]
	if !ok {
		b.mu.Unlock()
		return
	}
	sub, exists := subs[subID]
	if !exists {
		b.mu.Unlock()
		return
	}
	delete(subs, subID)
	if len(subs) == 0 {
		delete(b.subscribers, key)
	}
	b.mu.Unlock()

	sub.stop()
	b.logger.Debug("subscriber removed", "conversation_key", key, "sub_id", subID)
}

// Close shuts down the broadcaster and stops all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	var all []*memSub
	for key, subs := range b.subscribers {
		for subID, sub := range subs {
			all = append(all, sub)
			delete(subs, subID)
		}
		delete(b.subscribers, key)
	}
	b.mu.Unlock()

	for _, sub := range all {
		sub.stop()
	}
	b.logger.Debug("broadcaster closed")
}
