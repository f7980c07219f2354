// ABOUTME: Entry point for the dmgate direct-message sync server
// ABOUTME: Wires store, event bus, sessions, and the WebSocket gateway

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/nats-io/nats.go"

	"github.com/fernwood-social/dmgate/internal/auth"
	"github.com/fernwood-social/dmgate/internal/bus"
	"github.com/fernwood-social/dmgate/internal/config"
	"github.com/fernwood-social/dmgate/internal/conversation"
	"github.com/fernwood-social/dmgate/internal/gateway"
	"github.com/fernwood-social/dmgate/internal/identity"
	"github.com/fernwood-social/dmgate/internal/presence"
	"github.com/fernwood-social/dmgate/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _                       _
  __| |_ __ ___   __ _  __ _| |_ ___
 / _' | '_ ' _ \ / _' |/ _' | __/ _ \
| (_| | | | | | | (_| | (_| | ||  __/
 \__,_|_| |_| |_|\__, |\__,_|\__\___|
                 |___/
`

// getConfigPath returns the path to the dmgate config file.
// Priority: DMGATE_CONFIG env var > XDG_CONFIG_HOME/dmgate/config.yaml > ~/.config/dmgate/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("DMGATE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "dmgate", "config.yaml")
}

// getDataPath returns the path to the dmgate data directory.
// Priority: XDG_DATA_HOME/dmgate > ~/.local/share/dmgate
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "dmgate")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: dmgate <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                            Start the gateway server")
		fmt.Println("  bootstrap --id ID --name NAME    Create an account and a connection token")
		fmt.Println("  health                           Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "bootstrap":
		err = runBootstrap(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	if cfg.NATS.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("NATS:     ")
		cyan.Println(cfg.NATS.URL)
	}
	fmt.Println()

	logger.Info("starting dmgate",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"nats", cfg.NATS.Enabled,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	var (
		eventBus bus.Bus
		natsConn *nats.Conn
		localBus *bus.Broadcaster
	)
	if cfg.NATS.Enabled {
		natsConn, err = nats.Connect(cfg.NATS.URL,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer natsConn.Close()
		eventBus = bus.NewNATSBus(natsConn, logger)
	} else {
		localBus = bus.NewBroadcaster(logger)
		defer localBus.Close()
		eventBus = localBus
	}

	resolver := identity.NewResolver(st, logger)

	threshold := cfg.Presence.Threshold
	if threshold <= 0 {
		threshold = presence.DefaultThreshold
	}
	est := &presence.Estimator{Threshold: threshold}

	manager := conversation.NewManager(st, eventBus, resolver, est, conversation.Options{
		OpenTimeout:  cfg.Sessions.OpenTimeout,
		HistoryLimit: cfg.Sessions.HistoryLimit,
	}, logger)
	defer manager.CloseAll()

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))

	gw := gateway.New(manager, st, verifier, gateway.Options{
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
	}, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Listen(cfg.Server.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := gw.Shutdown(); err != nil {
		logger.Warn("gateway shutdown", "error", err)
	}
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// runBootstrap performs first-time setup:
// 1. Creates a config file with a random JWT secret (if not exists)
// 2. Creates the account in the database
// 3. Generates a connection token for the account
//
// One command per account: dmgate bootstrap --id alice@example.org --name "Alice"
func runBootstrap(ctx context.Context) error {
	var externalID, displayName string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--id":
			if i+1 >= len(args) {
				return fmt.Errorf("--id requires a value")
			}
			externalID = args[i+1]
			i++
		case strings.HasPrefix(arg, "--id="):
			externalID = strings.TrimPrefix(arg, "--id=")
		case arg == "--name" || arg == "-n":
			if i+1 >= len(args) {
				return fmt.Errorf("--name requires a value")
			}
			displayName = args[i+1]
			i++
		case strings.HasPrefix(arg, "--name="):
			displayName = strings.TrimPrefix(arg, "--name=")
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	externalID = strings.TrimSpace(externalID)
	displayName = strings.TrimSpace(displayName)
	if externalID == "" {
		return fmt.Errorf("--id flag is required")
	}
	if displayName == "" {
		return fmt.Errorf("--name flag is required")
	}
	if len(displayName) > 100 {
		return fmt.Errorf("display name exceeds maximum length of 100 characters")
	}

	configPath := getConfigPath()
	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "dmgate.db")

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	var cfg *config.Config
	var jwtSecret string

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Generate random JWT secret
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		jwtSecret = base64.StdEncoding.EncodeToString(secretBytes)

		configDir := filepath.Dir(configPath)
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		if err := os.MkdirAll(dataPath, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		configContent := fmt.Sprintf(`# dmgate configuration
# Generated by dmgate bootstrap

server:
  http_addr: "localhost:8080"

database:
  path: "%s"

nats:
  enabled: false
  url: "nats://localhost:4222"

auth:
  jwt_secret: "%s"

presence:
  threshold: "5m"

sessions:
  open_timeout: "10s"
  history_limit: 200

logging:
  level: "info"
  format: "text"

metrics:
  enabled: false
  path: "/metrics"
`, dbPath, jwtSecret)

		if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}

		green.Printf("  ✓ Created config: %s\n", configPath)

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	} else {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		jwtSecret = cfg.Auth.JWTSecret

		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)

	account := &store.Account{
		ExternalID:  externalID,
		DisplayName: displayName,
	}
	if err := s.CreateAccount(ctx, account); err != nil {
		return fmt.Errorf("creating account: %w", err)
	}

	green.Printf("  ✓ Created account %d: %s\n", account.ID, displayName)

	verifier := auth.NewJWTVerifier([]byte(jwtSecret))

	// Default TTL: 30 days
	tokenTTL := 30 * 24 * time.Hour
	expiresAt := time.Now().Add(tokenTTL).UTC()

	token, err := verifier.Generate(externalID, tokenTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  Account")
	cyan.Println("  -------")
	fmt.Printf("  ID:           %d\n", account.ID)
	fmt.Printf("  External ID:  %s\n", externalID)
	fmt.Printf("  Display Name: %s\n", displayName)
	fmt.Printf("  Token:        %s\n", token)
	fmt.Printf("  Expires:      %s\n", expiresAt.Format("Jan 02, 2006"))
	fmt.Println()
	fmt.Println("  Connect with:")
	fmt.Printf("    ws://%s/ws/dm/<peer-id>?token=<token>\n", cfg.Server.HTTPAddr)
	fmt.Println()

	return nil
}
