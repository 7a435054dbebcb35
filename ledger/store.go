package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps balances in a JSON object file ({"user": balance}), rewritten on every Put.
type FileStore struct {
	Path string

	mu       sync.Mutex
	balances map[string]int
}

// NewFileStore returns a JSON file store at path.
func NewFileStore(path string) *FileStore { return &FileStore{Path: path} }

func (f *FileStore) Load(_ context.Context) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances = make(map[string]int)
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return copyBalances(f.balances), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &f.balances); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Path, err)
		}
	}
	return copyBalances(f.balances), nil
}

func (f *FileStore) Put(_ context.Context, user string, balance int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances == nil {
		f.balances = make(map[string]int)
	}
	f.balances[user] = balance
	b, err := json.MarshalIndent(f.balances, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".tokens-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	return os.Rename(tmp.Name(), f.Path)
}

// PostgresStore keeps balances in the token_balances table (see db.Migrate).
type PostgresStore struct{ DB *sql.DB }

func (p *PostgresStore) Load(ctx context.Context) (map[string]int, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT username, balance FROM token_balances`)
	if err != nil {
		return nil, fmt.Errorf("query token_balances: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var user string
		var bal int
		if err := rows.Scan(&user, &bal); err != nil {
			return nil, err
		}
		out[user] = bal
	}
	return out, rows.Err()
}

func (p *PostgresStore) Put(ctx context.Context, user string, balance int) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO token_balances (username, balance, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (username) DO UPDATE SET balance=EXCLUDED.balance, updated_at=NOW()`, user, balance)
	return err
}

func copyBalances(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
