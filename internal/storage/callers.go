package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertCaller registers a caller identity with its API-key hash.
// Existing callers get their hash replaced (key rotation via restart).
func (db *DB) UpsertCaller(ctx context.Context, callerID, keyHash string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO callers (caller_id, key_hash, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(caller_id) DO UPDATE SET key_hash = excluded.key_hash`,
		callerID, keyHash, fmtTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("storage: upsert caller: %w", err)
	}
	return nil
}

// GetCallerKeyHash returns the stored API-key hash for a caller.
func (db *DB) GetCallerKeyHash(ctx context.Context, callerID string) (string, error) {
	var hash string
	err := db.conn.QueryRowContext(ctx,
		`SELECT key_hash FROM callers WHERE caller_id = ?`, callerID,
	).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("storage: get caller: %w", err)
	}
	return hash, nil
}
