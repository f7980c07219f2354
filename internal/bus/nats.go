// ABOUTME: NATS-backed implementation of the Bus interface
// ABOUTME: One subject per conversation key, JSON payloads, core pub/sub

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
)

// subjectPrefix is the subject namespace for insert events.
const subjectPrefix = "dm.msg"

// SubjectFor returns the NATS subject for a conversation pair.
func SubjectFor(a, b int64) string {
	return subjectPrefix + "." + Key(a, b)
}

// NATSBus implements Bus over a core NATS connection. Delivery is
// at-most-once per subscription, which matches the engine's contract:
// durable history lives in the store, and the reconciler drops any
// duplicate the transport might still produce.
type NATSBus struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewNATSBus wraps an established NATS connection. The caller owns the
// connection's lifecycle.
func NewNATSBus(nc *nats.Conn, logger *slog.Logger) *NATSBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSBus{
		nc:     nc,
		logger: logger.With("component", "bus"),
	}
}

// natsHandle wraps one subscription. Unsubscribe is guarded by sync.Once so
// double-release and stale handles are no-ops.
type natsHandle struct {
	sub    *nats.Subscription
	once   sync.Once
	logger *slog.Logger
}

func (h *natsHandle) Unsubscribe() {
	h.once.Do(func() {
		if err := h.sub.Unsubscribe(); err != nil {
			// Already drained or the connection is gone. Either way the
			// subscription no longer delivers, which is all the contract asks.
			h.logger.Debug("unsubscribe on stale subscription", "error", err)
		}
	})
}

// Subscribe registers fn for inserts on the pair's subject. NATS invokes the
// callback sequentially per subscription, preserving receipt order.
func (b *NATSBus) Subscribe(ctx context.Context, a, peer int64, fn func(Event)) (Handle, error) {
	subject := SubjectFor(a, peer)

	sub, err := b.nc.Subscribe(subject, func(m *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			b.logger.Warn("dropping malformed event", "subject", subject, "error", err)
			return
		}
		fn(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}

	b.logger.Debug("subscribed", "subject", subject)
	return &natsHandle{sub: sub, logger: b.logger}, nil
}

// Publish emits an insert event on the pair's subject.
func (b *NATSBus) Publish(ctx context.Context, ev Event) error {
	subject := SubjectFor(ev.Sender, ev.Receiver)

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}

	b.logger.Debug("published event", "subject", subject, "event_id", ev.ID)
	return nil
}
