// Package credstore is the durable local key-value store behind client
// authentication. It holds at most one guest credential (token + absolute
// expiry) and the last effective identity string. Durable identity-provider
// accounts live elsewhere (see identity/); this store never sees them.
//
// The store is a single-file SQLite database with one kv table. Each Store
// owns one connection, so every write is serialized.
package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Persisted keys. These three are the whole durable client-side contract.
const (
	KeyGuestToken       = "guest_token"
	KeyGuestTokenExpiry = "guest_token_expiry"
	KeyUserID           = "user_id"
)

// dirPerms restricts the data directory to the owner; the database holds a
// bearer token.
const dirPerms = 0o700

const (
	sqlGet    = `SELECT value FROM kv WHERE key = ?`
	sqlDelete = `DELETE FROM kv WHERE key = ?`
	sqlUpsert = `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
)

// Guest is an ephemeral, server-issued credential.
type Guest struct {
	Token  string
	Expiry time.Time
}

// Valid reports whether g is usable at now: strictly before expiry.
func (g *Guest) Valid(now time.Time) bool {
	return g != nil && g.Token != "" && now.Before(g.Expiry)
}

// Store is the credential store. Safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	path   string

	nowFunc func() time.Time // injectable for deterministic tests
}

// Open opens (creating if needed) the store at path and applies migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return nil, fmt.Errorf("credstore: creating directory for %s: %w", path, err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("credstore: opening database %s: %w", path, err)
	}

	// Sole-writer pattern: one connection serializes every statement.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("credential store opened", slog.String("path", path))

	return &Store{
		db:      db,
		logger:  logger,
		path:    path,
		nowFunc: time.Now,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("credstore: closing %s: %w", s.path, err)
	}

	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Guest returns the stored guest credential, or nil if none is stored.
// Expiry is NOT checked here; callers decide what "now" means. A half-written
// or unparseable entry is purged and reported as absent.
func (s *Store) Guest(ctx context.Context) (*Guest, error) {
	token, hasToken, err := s.get(ctx, KeyGuestToken)
	if err != nil {
		return nil, err
	}

	rawExpiry, hasExpiry, err := s.get(ctx, KeyGuestTokenExpiry)
	if err != nil {
		return nil, err
	}

	if !hasToken && !hasExpiry {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	expiry, parseErr := time.Parse(time.RFC3339Nano, rawExpiry)
	if !hasToken || !hasExpiry || token == "" || parseErr != nil {
		s.logger.Warn("purging malformed guest credential",
			slog.Bool("has_token", hasToken),
			slog.Bool("has_expiry", hasExpiry),
		)

		if purgeErr := s.PurgeGuest(ctx); purgeErr != nil {
			return nil, purgeErr
		}

		return nil, nil //nolint:nilnil // malformed counts as absent
	}

	return &Guest{Token: token, Expiry: expiry}, nil
}

// SaveGuest stores g, replacing any previous guest credential. Both keys are
// written in one transaction so a reader never sees a token without expiry.
func (s *Store) SaveGuest(ctx context.Context, g Guest) error {
	if g.Token == "" {
		return errors.New("credstore: refusing to save empty guest token")
	}

	if g.Expiry.IsZero() {
		return errors.New("credstore: refusing to save guest token without expiry")
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		now := s.nowFunc().Unix()

		if _, err := tx.ExecContext(ctx, sqlUpsert, KeyGuestToken, g.Token, now); err != nil {
			return fmt.Errorf("credstore: writing guest token: %w", err)
		}

		expiry := g.Expiry.UTC().Format(time.RFC3339Nano)
		if _, err := tx.ExecContext(ctx, sqlUpsert, KeyGuestTokenExpiry, expiry, now); err != nil {
			return fmt.Errorf("credstore: writing guest expiry: %w", err)
		}

		return nil
	})
}

// PurgeGuest deletes the guest credential. Idempotent.
func (s *Store) PurgeGuest(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, key := range []string{KeyGuestToken, KeyGuestTokenExpiry} {
			if _, err := tx.ExecContext(ctx, sqlDelete, key); err != nil {
				return fmt.Errorf("credstore: deleting %s: %w", key, err)
			}
		}

		return nil
	})
}

// LastIdentity returns the last effective identity, or "" if none is cached.
func (s *Store) LastIdentity(ctx context.Context) (string, error) {
	v, _, err := s.get(ctx, KeyUserID)
	return v, err
}

// SaveLastIdentity caches id as the last effective identity.
func (s *Store) SaveLastIdentity(ctx context.Context, id string) error {
	if id == "" {
		return s.ClearLastIdentity(ctx)
	}

	if _, err := s.db.ExecContext(ctx, sqlUpsert, KeyUserID, id, s.nowFunc().Unix()); err != nil {
		return fmt.Errorf("credstore: writing %s: %w", KeyUserID, err)
	}

	return nil
}

// ClearLastIdentity forgets the cached identity.
func (s *Store) ClearLastIdentity(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqlDelete, KeyUserID); err != nil {
		return fmt.Errorf("credstore: deleting %s: %w", KeyUserID, err)
	}

	return nil
}

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	var v string

	err := s.db.QueryRowContext(ctx, sqlGet, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("credstore: reading %s: %w", key, err)
	}

	return v, true, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("credstore: beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("credstore: committing: %w", err)
	}

	return nil
}
