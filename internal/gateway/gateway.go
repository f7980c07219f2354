// ABOUTME: HTTP/WebSocket gateway exposing conversations to clients
// ABOUTME: Wires auth middleware, health checks, metrics, and the ws route

package gateway

import (
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/fernwood-social/dmgate/internal/auth"
	"github.com/fernwood-social/dmgate/internal/conversation"
	"github.com/fernwood-social/dmgate/internal/metrics"
	"github.com/fernwood-social/dmgate/internal/store"
)

// Options configures the gateway's optional surfaces.
type Options struct {
	MetricsEnabled bool
	MetricsPath    string
}

// Gateway serves the client-facing HTTP API: health checks, Prometheus
// metrics, and the per-conversation WebSocket endpoint.
type Gateway struct {
	app      *fiber.App
	manager  *conversation.Manager
	st       store.Store
	verifier auth.TokenVerifier
	validate *validator.Validate
	logger   *slog.Logger
}

// New creates a gateway and registers its routes. Pass nil logger for
// default.
func New(manager *conversation.Manager, st store.Store, verifier auth.TokenVerifier, opts Options, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
		manager:  manager,
		st:       st,
		verifier: verifier,
		validate: validator.New(),
		logger:   logger.With("component", "gateway"),
	}
	g.routes(opts)
	return g
}

func (g *Gateway) routes(opts Options) {
	g.app.Use(recover.New())

	g.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	g.app.Get("/health/ready", func(c *fiber.Ctx) error {
		// Readiness means storage answers
		if _, err := g.st.QueryMessages(c.Context(), 0, 0, 1); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ready"})
	})

	if opts.MetricsEnabled {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.app.Get(path, adaptor.HTTPHandler(metrics.Handler()))
	}

	ws := g.app.Group("/ws", g.requireAuth)
	ws.Use(func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	ws.Get("/dm/:peerID", websocket.New(g.handleConversation))
}

// Listen serves until Shutdown is called.
func (g *Gateway) Listen(addr string) error {
	return g.app.Listen(addr)
}

// Shutdown stops the HTTP server gracefully.
func (g *Gateway) Shutdown() error {
	return g.app.Shutdown()
}

// App exposes the underlying Fiber app for tests.
func (g *Gateway) App() *fiber.App {
	return g.app
}
