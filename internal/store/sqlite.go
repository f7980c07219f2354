// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides account/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout is RFC3339 with a fixed nine-digit fraction. RFC3339Nano trims
// trailing zeros, which breaks the string comparisons SQLite does in
// last_seen guards and ORDER BY created_at; the fixed width keeps stored
// values lexicographically sortable.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS accounts (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			external_id  TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			avatar_url   TEXT NOT NULL DEFAULT '',
			last_seen    TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_accounts_external
			ON accounts(external_id);

		CREATE TABLE IF NOT EXISTS messages (
			id           TEXT PRIMARY KEY,
			sender_id    INTEGER NOT NULL,
			receiver_id  INTEGER NOT NULL,
			body         TEXT NOT NULL,
			client_token TEXT NOT NULL UNIQUE,
			created_at   TEXT NOT NULL,
			FOREIGN KEY (sender_id) REFERENCES accounts(id),
			FOREIGN KEY (receiver_id) REFERENCES accounts(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_pair_created
			ON messages(sender_id, receiver_id, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// CreateAccount inserts a new account row. Used by bootstrap and tests; in
// production accounts are provisioned by the identity/profile service.
func (s *SQLiteStore) CreateAccount(ctx context.Context, account *Account) error {
	var lastSeen any
	if !account.LastSeen.IsZero() {
		lastSeen = account.LastSeen.UTC().Format(timeLayout)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (external_id, display_name, avatar_url, last_seen) VALUES (?, ?, ?, ?)`,
		account.ExternalID, account.DisplayName, account.AvatarURL, lastSeen,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("inserting account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading account id: %w", err)
	}
	account.ID = id

	s.logger.Debug("account created", "account_id", id, "external_id", account.ExternalID)
	return nil
}

// AccountByExternalID looks up an account by its external identity.
func (s *SQLiteStore) AccountByExternalID(ctx context.Context, externalID string) (*Account, error) {
	account := &Account{}
	var lastSeen sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, external_id, display_name, avatar_url, last_seen FROM accounts WHERE external_id = ?`,
		externalID,
	).Scan(&account.ID, &account.ExternalID, &account.DisplayName, &account.AvatarURL, &lastSeen)

	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying account: %w", err)
	}

	if lastSeen.Valid {
		account.LastSeen, err = time.Parse(timeLayout, lastSeen.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_seen: %w", err)
		}
	}

	return account, nil
}

// Profile returns the display projection for an account.
func (s *SQLiteStore) Profile(ctx context.Context, accountID int64) (*Profile, error) {
	p := &Profile{}

	err := s.db.QueryRowContext(ctx,
		`SELECT display_name, avatar_url FROM accounts WHERE id = ?`,
		accountID,
	).Scan(&p.Name, &p.Avatar)

	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}

	return p, nil
}

// ReadLastSeen returns the last recorded activity timestamp for an account.
// Returns the zero time when the account has never been seen.
func (s *SQLiteStore) ReadLastSeen(ctx context.Context, accountID int64) (time.Time, error) {
	var lastSeen sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT last_seen FROM accounts WHERE id = ?`, accountID,
	).Scan(&lastSeen)

	if err == sql.ErrNoRows {
		return time.Time{}, ErrAccountNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("querying last_seen: %w", err)
	}

	if !lastSeen.Valid {
		return time.Time{}, nil
	}

	t, err := time.Parse(timeLayout, lastSeen.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing last_seen: %w", err)
	}
	return t, nil
}

// TouchLastSeen records activity for an account. The WHERE clause keeps the
// stored value monotonically non-decreasing, so out-of-order touches from
// concurrent connections cannot move it backwards.
func (s *SQLiteStore) TouchLastSeen(ctx context.Context, accountID int64, t time.Time) error {
	ts := t.UTC().Format(timeLayout)

	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET last_seen = ? WHERE id = ? AND (last_seen IS NULL OR last_seen < ?)`,
		ts, accountID, ts,
	)
	if err != nil {
		return fmt.Errorf("updating last_seen: %w", err)
	}
	return nil
}

// InsertMessage validates and persists a message, returning its assigned id
// and timestamp. Any failure is wrapped in ErrSend and leaves no partial row.
func (s *SQLiteStore) InsertMessage(ctx context.Context, sender, receiver int64, body, clientToken string) (*Receipt, error) {
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

	receipt := &Receipt{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, sender_id, receiver_id, body, client_token, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		receipt.ID, sender, receiver, body, clientToken, receipt.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: inserting message: %v", ErrSend, err)
	}

	s.logger.Debug("message inserted",
		"message_id", receipt.ID,
		"sender", sender,
		"receiver", receiver,
	)
	return receipt, nil
}

// QueryMessages returns the full exchange between a and b in either
// sender/receiver role, ascending by (created_at, id). The id is the
// tie-break for equal timestamps so pagination and rendering stay
// deterministic.
func (s *SQLiteStore) QueryMessages(ctx context.Context, a, b int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 500 {
		limit = 500
	}

	query := `
		SELECT id, sender_id, receiver_id, body, client_token, created_at
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, a, b, b, a, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		var createdAt string

		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.Receiver, &msg.Body, &msg.ClientToken, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}
