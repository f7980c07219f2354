// ABOUTME: WebSocket conversation handler streaming session state to clients
// ABOUTME: One connection drives one session; frames are JSON both ways

package gateway

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/fernwood-social/dmgate/internal/conversation"
	"github.com/fernwood-social/dmgate/internal/identity"
	"github.com/fernwood-social/dmgate/internal/presence"
	"github.com/fernwood-social/dmgate/internal/store"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	presencePeriod   = 30 * time.Second
	maxInboundFrame  = 8192
	touchTimeout     = 2 * time.Second
	presenceDeadline = 2 * time.Second
)

// clientFrame is what we accept from the client.
type clientFrame struct {
	Type string `json:"type" validate:"required,oneof=send ping"`
	Body string `json:"body" validate:"omitempty,max=4096"`
}

// serverFrame is what we push to the client.
type serverFrame struct {
	Type     string        `json:"type"`
	State    string        `json:"state,omitempty"`
	Error    string        `json:"error,omitempty"`
	Token    string        `json:"token,omitempty"`
	Messages []messageView `json:"messages,omitempty"`
	Presence *presenceView `json:"presence,omitempty"`
}

type messageView struct {
	ID        string    `json:"id,omitempty"`
	Sender    int64     `json:"sender"`
	Receiver  int64     `json:"receiver"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

type presenceView struct {
	Online     bool      `json:"online"`
	LastSeen   time.Time `json:"last_seen,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

func viewOf(msgs []store.Message) []messageView {
	out := make([]messageView, len(msgs))
	for i, m := range msgs {
		out[i] = messageView{
			ID:        m.ID,
			Sender:    m.Sender,
			Receiver:  m.Receiver,
			Body:      m.Body,
			State:     string(m.State),
			CreatedAt: m.CreatedAt,
		}
	}
	return out
}

// handleConversation owns one WebSocket connection for the lifetime of one
// session. A writer goroutine pushes snapshots on session updates, presence
// on a timer, and pings; the read loop accepts send frames. Closing the
// connection closes the session, which releases its subscription.
func (g *Gateway) handleConversation(c *websocket.Conn) {
	externalID, _ := c.Locals(localExternalID).(string)
	if externalID == "" {
		_ = c.WriteJSON(serverFrame{Type: "error", Error: "not authenticated"})
		_ = c.Close()
		return
	}

	peerID, err := strconv.ParseInt(c.Params("peerID"), 10, 64)
	if err != nil || peerID <= 0 {
		_ = c.WriteJSON(serverFrame{Type: "error", Error: "invalid peer id"})
		_ = c.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := g.manager.Open(ctx, externalID, peerID)
	if err != nil {
		_ = c.WriteJSON(serverFrame{Type: "error", Error: openErrorMessage(err)})
		_ = c.Close()
		return
	}
	defer session.Close()

	logger := g.logger.With("conversation_key", session.Key(), "self", session.Self())
	logger.Info("conversation connected")
	defer logger.Info("conversation disconnected")

	g.touch(session.Self())

	done := make(chan struct{})
	go g.writeLoop(ctx, c, session, done)

	g.readLoop(ctx, c, session)
	cancel()
	<-done
}

// writeLoop pushes state and message snapshots whenever the session signals,
// presence on a timer, and keepalive pings.
func (g *Gateway) writeLoop(ctx context.Context, c *websocket.Conn, session *conversation.Session, done chan<- struct{}) {
	defer close(done)

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()
	presenceTicker := time.NewTicker(presencePeriod)
	defer presenceTicker.Stop()

	// Initial snapshot so the client renders immediately
	if !g.writeSnapshot(c, session) {
		return
	}
	g.writePresence(ctx, c, session)

	for {
		select {
		case <-ctx.Done():
			return
		case <-session.Updates():
			if !g.writeSnapshot(c, session) {
				return
			}
			state := session.State()
			if state == conversation.StateClosed || state == conversation.StateErrored {
				return
			}
		case <-presenceTicker.C:
			if !g.writePresence(ctx, c, session) {
				return
			}
		case <-pingTicker.C:
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeSnapshot sends the session's lifecycle state and full ordered log.
func (g *Gateway) writeSnapshot(c *websocket.Conn, session *conversation.Session) bool {
	frame := serverFrame{
		Type:     "state",
		State:    string(session.State()),
		Messages: viewOf(session.Messages()),
	}
	if err := session.Err(); err != nil {
		frame.Error = err.Error()
	}
	_ = c.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.WriteJSON(frame); err != nil {
		g.logger.Debug("snapshot write failed", "error", err)
		return false
	}
	return true
}

func (g *Gateway) writePresence(ctx context.Context, c *websocket.Conn, session *conversation.Session) bool {
	pctx, cancel := context.WithTimeout(ctx, presenceDeadline)
	snap, err := session.Presence(pctx)
	cancel()
	if err != nil {
		g.logger.Debug("presence read failed", "error", err)
		return true
	}
	_ = c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteJSON(serverFrame{Type: "presence", Presence: presenceViewOf(snap)}) == nil
}

func presenceViewOf(snap presence.Snapshot) *presenceView {
	return &presenceView{
		Online:     snap.Online,
		LastSeen:   snap.LastSeen,
		ObservedAt: snap.ObservedAt,
	}
}

// readLoop accepts client frames until the connection drops.
func (g *Gateway) readLoop(ctx context.Context, c *websocket.Conn, session *conversation.Session) {
	c.SetReadLimit(maxInboundFrame)
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame clientFrame
		if err := c.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Debug("read failed", "error", err)
			}
			return
		}

		if err := g.validate.Struct(frame); err != nil {
			_ = c.WriteJSON(serverFrame{Type: "error", Error: "invalid frame"})
			continue
		}

		// Any inbound frame is user activity
		g.touch(session.Self())

		switch frame.Type {
		case "ping":
			// Activity only
		case "send":
			if frame.Body == "" {
				_ = c.WriteJSON(serverFrame{Type: "error", Error: "empty body"})
				continue
			}
			token, err := session.Send(frame.Body)
			if err != nil {
				_ = c.WriteJSON(serverFrame{Type: "error", Error: err.Error()})
				continue
			}
			_ = c.WriteJSON(serverFrame{Type: "accepted", Token: token})
		}
	}
}

// touch records user activity for presence. Best effort.
func (g *Gateway) touch(accountID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	defer cancel()
	if err := g.st.TouchLastSeen(ctx, accountID, time.Now().UTC()); err != nil {
		g.logger.Debug("touch last seen failed", "error", err, "account_id", accountID)
	}
}

// openErrorMessage maps open failures to client-safe strings.
func openErrorMessage(err error) string {
	switch {
	case errors.Is(err, identity.ErrUnknownIdentity):
		return "unknown identity"
	case errors.Is(err, conversation.ErrSelfConversation):
		return "cannot open a conversation with yourself"
	default:
		return "failed to open conversation"
	}
}
