package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OpenProgressSession records a new streaming connection for a correlation id
// and returns the session row id.
func (db *DB) OpenProgressSession(ctx context.Context, correlationID uuid.UUID, callerID, kind string) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO progress_sessions (correlation_id, caller_id, kind, opened_at)
		 VALUES (?, ?, ?, ?)`,
		correlationID.String(), callerID, kind, fmtTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("storage: open progress session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage: progress session id: %w", err)
	}
	return id, nil
}

// CloseProgressSession marks a streaming connection as closed with the
// terminal state observed by the transport ("completed", "failed", or
// "disconnected" when the client went away first).
func (db *DB) CloseProgressSession(ctx context.Context, sessionID int64, terminalState string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE progress_sessions SET closed_at = ?, terminal_state = ? WHERE id = ?`,
		fmtTime(time.Now()), terminalState, sessionID,
	)
	if err != nil {
		return fmt.Errorf("storage: close progress session: %w", err)
	}
	return nil
}
