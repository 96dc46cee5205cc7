// Package db persists the gateway's roster and credentials in Postgres so a
// restart comes back warm instead of re-fetching the whole friend graph.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/simbabque/twirc/crypto"
	"github.com/simbabque/twirc/gateway"
)

var (
	sealer     crypto.Sealer
	sealerOnce sync.Once
	sealerErr  error
)

// initSealer reads ENCRYPTION_KEY lazily on first credential access. Without
// a key, credentials are stored in plaintext.
func initSealer() {
	sealerOnce.Do(func() {
		key := os.Getenv("ENCRYPTION_KEY")
		if key == "" {
			slog.Warn("ENCRYPTION_KEY not set, stored credentials will be plaintext")
			return
		}
		s, err := crypto.NewAESSealer(key)
		if err != nil {
			sealerErr = fmt.Errorf("init credential encryption: %w", err)
			slog.Error("credential encryption init failed", slog.Any("err", sealerErr))
			return
		}
		sealer = s
		slog.Info("credential encryption enabled")
	})
}

func getSealer() (crypto.Sealer, error) {
	initSealer()
	if sealerErr != nil {
		return nil, sealerErr
	}
	return sealer, nil
}

// Connect opens a Postgres connection for the given DSN.
func Connect(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is empty")
	}
	return sql.Open("pgx", dsn)
}

// Migrate applies idempotent schema changes for all required tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS friend_cache (
			id BIGINT PRIMARY KEY,
			nick TEXT NOT NULL,
			name TEXT,
			fetched_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS follower_set (
			id BIGINT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS roster_meta (
			key TEXT PRIMARY KEY,
			value TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			name TEXT PRIMARY KEY,
			secret TEXT,
			sealed BOOLEAN DEFAULT FALSE,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_friend_cache_nick ON friend_cache (LOWER(nick))`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Store implements the gateway's persistence surface over *sql.DB.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const refreshedAtKey = "followers_refreshed_at"

// SaveRoster replaces the persisted friend cache and follower set in one
// transaction so a crash never leaves the two halves out of step.
func (s *Store) SaveRoster(ctx context.Context, friends []*gateway.UserProfile, followers []uint64, refreshed time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin roster save: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			slog.Debug("roster save rollback", slog.Any("err", err))
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM friend_cache`); err != nil {
		return fmt.Errorf("clear friend cache: %w", err)
	}
	for _, p := range friends {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO friend_cache (id, nick, name, fetched_at) VALUES ($1, $2, $3, $4)`,
			int64(p.ID), p.Nick, p.Name, p.FetchedAt); err != nil {
			return fmt.Errorf("save friend %d: %w", p.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM follower_set`); err != nil {
		return fmt.Errorf("clear follower set: %w", err)
	}
	for _, id := range followers {
		if _, err := tx.ExecContext(ctx, `INSERT INTO follower_set (id) VALUES ($1)`, int64(id)); err != nil {
			return fmt.Errorf("save follower %d: %w", id, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO roster_meta (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		refreshedAtKey, refreshed.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("save refresh timestamp: %w", err)
	}

	return tx.Commit()
}

// LoadRoster reads back what SaveRoster wrote. An empty database yields empty
// slices and a zero timestamp, not an error.
func (s *Store) LoadRoster(ctx context.Context) (friends []*gateway.UserProfile, followers []uint64, refreshed time.Time, err error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, nick, name, fetched_at FROM friend_cache`)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("load friend cache: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var nick string
		var name sql.NullString
		var fetched time.Time
		if err := rows.Scan(&id, &nick, &name, &fetched); err != nil {
			return nil, nil, time.Time{}, fmt.Errorf("scan friend: %w", err)
		}
		friends = append(friends, &gateway.UserProfile{ID: uint64(id), Nick: nick, Name: name.String, FetchedAt: fetched})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("load friend cache: %w", err)
	}

	frows, err := s.db.QueryContext(ctx, `SELECT id FROM follower_set`)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("load follower set: %w", err)
	}
	defer frows.Close()
	for frows.Next() {
		var id int64
		if err := frows.Scan(&id); err != nil {
			return nil, nil, time.Time{}, fmt.Errorf("scan follower: %w", err)
		}
		followers = append(followers, uint64(id))
	}
	if err := frows.Err(); err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("load follower set: %w", err)
	}

	var stamp string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM roster_meta WHERE key = $1`, refreshedAtKey).Scan(&stamp)
	switch {
	case err == sql.ErrNoRows:
		// Cold store.
	case err != nil:
		return nil, nil, time.Time{}, fmt.Errorf("load refresh timestamp: %w", err)
	default:
		refreshed, err = time.Parse(time.RFC3339Nano, stamp)
		if err != nil {
			slog.Warn("unparseable refresh timestamp, treating roster as stale", slog.String("value", stamp))
			refreshed = time.Time{}
		}
	}

	return friends, followers, refreshed, nil
}

// SaveCredential stores a named secret, sealed when encryption is configured.
func (s *Store) SaveCredential(ctx context.Context, name, secret string) error {
	sl, err := getSealer()
	if err != nil {
		return err
	}
	sealed := false
	if sl != nil {
		secret, err = crypto.SealString(sl, secret)
		if err != nil {
			return fmt.Errorf("seal credential %s: %w", name, err)
		}
		sealed = true
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO credentials (name, secret, sealed, updated_at) VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (name) DO UPDATE SET secret = EXCLUDED.secret, sealed = EXCLUDED.sealed, updated_at = NOW()`,
		name, secret, sealed)
	if err != nil {
		return fmt.Errorf("save credential %s: %w", name, err)
	}
	return nil
}

// LoadCredential returns a stored secret, unsealing when it was stored
// sealed. Missing credentials return ("", nil).
func (s *Store) LoadCredential(ctx context.Context, name string) (string, error) {
	var secret string
	var sealed bool
	err := s.db.QueryRowContext(ctx, `SELECT secret, sealed FROM credentials WHERE name = $1`, name).Scan(&secret, &sealed)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load credential %s: %w", name, err)
	}
	if !sealed {
		return secret, nil
	}
	sl, err := getSealer()
	if err != nil {
		return "", err
	}
	if sl == nil {
		return "", fmt.Errorf("credential %s is sealed but no encryption key is configured", name)
	}
	return crypto.OpenString(sl, secret)
}
