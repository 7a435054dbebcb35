// Package db provides the optional Postgres connection, schema migration and small data
// access helpers: the chat transcript, token balances and stored OAuth tokens.
// Without DB_DSN the bot runs purely on flat files.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// Connect opens a Postgres connection for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return database, nil
}

// Migrate applies idempotent schema changes for all required tables and indices.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_log (
			id BIGSERIAL PRIMARY KEY,
			message_id TEXT,
			role TEXT NOT NULL,
			platform TEXT,
			author TEXT,
			content TEXT NOT NULL,
			answered BOOLEAN DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS token_balances (
			username TEXT PRIMARY KEY,
			balance INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS oauth_tokens (
			provider TEXT PRIMARY KEY,
			access_token TEXT,
			refresh_token TEXT,
			expires_at TIMESTAMPTZ,
			scope TEXT,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_log_created ON chat_log(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_log_author ON chat_log(author)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// TranscriptEntry is one row of the chat transcript.
type TranscriptEntry struct {
	MessageID string
	Role      string
	Platform  string
	Author    string
	Content   string
	Answered  bool
}

// Transcript appends conversation turns to chat_log.
type Transcript struct{ DB *sql.DB }

// Record inserts one transcript entry.
func (t *Transcript) Record(ctx context.Context, e TranscriptEntry) error {
	_, err := t.DB.ExecContext(ctx, `INSERT INTO chat_log (message_id, role, platform, author, content, answered, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`, e.MessageID, e.Role, e.Platform, e.Author, e.Content, e.Answered)
	return err
}

// RecentTranscript returns the newest limit entries, oldest first.
func (t *Transcript) RecentTranscript(ctx context.Context, limit int) ([]TranscriptEntry, error) {
	rows, err := t.DB.QueryContext(ctx, `SELECT message_id, role, platform, author, content, answered FROM (
			SELECT id, COALESCE(message_id,'') AS message_id, role, COALESCE(platform,'') AS platform,
			       COALESCE(author,'') AS author, content, COALESCE(answered,false) AS answered
			FROM chat_log ORDER BY id DESC LIMIT $1) t ORDER BY id ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TranscriptEntry
	for rows.Next() {
		var e TranscriptEntry
		if err := rows.Scan(&e.MessageID, &e.Role, &e.Platform, &e.Author, &e.Content, &e.Answered); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertOAuthToken stores or updates an OAuth token for a provider (e.g. twitch).
func UpsertOAuthToken(ctx context.Context, dbx *sql.DB, provider, access, refresh string, expiry time.Time, scope string) error {
	q := `INSERT INTO oauth_tokens(provider, access_token, refresh_token, expires_at, scope, updated_at)
		  VALUES($1,$2,$3,$4,$5,NOW())
		  ON CONFLICT(provider) DO UPDATE SET
		    access_token=EXCLUDED.access_token,
		    refresh_token=EXCLUDED.refresh_token,
		    expires_at=EXCLUDED.expires_at,
		    scope=EXCLUDED.scope,
		    updated_at=NOW()`
	_, err := dbx.ExecContext(ctx, q, provider, access, refresh, expiry, scope)
	return err
}

// GetOAuthToken retrieves a stored token row; returns zero values if not found.
func GetOAuthToken(ctx context.Context, dbx *sql.DB, provider string) (access, refresh string, expiry time.Time, scope string, err error) {
	var sc sql.NullString
	var exp sql.NullTime
	row := dbx.QueryRowContext(ctx, `SELECT access_token, refresh_token, expires_at, scope FROM oauth_tokens WHERE provider = $1`, provider)
	err = row.Scan(&access, &refresh, &exp, &sc)
	if err == sql.ErrNoRows {
		return "", "", time.Time{}, "", nil
	}
	if err != nil {
		return "", "", time.Time{}, "", err
	}
	return access, refresh, exp.Time, sc.String, nil
}

// TokenStoreAdapter implements oauth.TokenStore on top of the oauth_tokens table.
// With a Sealer the access and refresh tokens are encrypted at rest.
type TokenStoreAdapter struct {
	DB     *sql.DB
	Sealer *Sealer
}

func (t *TokenStoreAdapter) Get(ctx context.Context, provider string) (access, refresh string, expiry time.Time, err error) {
	access, refresh, expiry, _, err = GetOAuthToken(ctx, t.DB, provider)
	if err != nil {
		return "", "", time.Time{}, err
	}
	if access, err = t.Sealer.Open(access); err != nil {
		return "", "", time.Time{}, fmt.Errorf("open %s access token: %w", provider, err)
	}
	if refresh, err = t.Sealer.Open(refresh); err != nil {
		return "", "", time.Time{}, fmt.Errorf("open %s refresh token: %w", provider, err)
	}
	return access, refresh, expiry, nil
}

func (t *TokenStoreAdapter) Put(ctx context.Context, provider, access, refresh string, expiry time.Time, scope string) error {
	sealedAccess, err := t.Sealer.Seal(access)
	if err != nil {
		return err
	}
	sealedRefresh, err := t.Sealer.Seal(refresh)
	if err != nil {
		return err
	}
	return UpsertOAuthToken(ctx, t.DB, provider, sealedAccess, sealedRefresh, expiry, scope)
}
