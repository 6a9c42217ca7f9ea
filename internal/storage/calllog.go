package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/merchly-ai/attest/internal/model"
)

// AICallLog is one ledger row: a single attempted completion, success or
// failure. Rows are written exactly once and never updated.
type AICallLog struct {
	ID            uuid.UUID
	CorrelationID uuid.UUID
	CallerID      string
	Provider      model.ProviderName
	Model         string
	Purpose       model.Purpose
	Usage         model.TokenUsage
	Latency       time.Duration
	CostUSD       float64
	Status        string // "ok" or "error"
	Error         string
	CreatedAt     time.Time
}

// InsertAICallLog appends one completion attempt to the ledger.
func (db *DB) InsertAICallLog(ctx context.Context, l AICallLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO ai_call_logs
		 (id, correlation_id, caller_id, provider, model, purpose,
		  input_tokens, output_tokens, total_tokens, latency_ms, cost_usd,
		  status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID.String(), l.CorrelationID.String(), l.CallerID, string(l.Provider),
		l.Model, string(l.Purpose), l.Usage.Input, l.Usage.Output, l.Usage.Total,
		l.Latency.Milliseconds(), l.CostUSD, l.Status, l.Error, fmtTime(l.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("storage: insert ai call log: %w", err)
	}
	return nil
}

// CountCallLogsByCorrelation returns the number of ledger rows tied to one
// correlation id. Zero means no provider call was ever attempted.
func (db *DB) CountCallLogsByCorrelation(ctx context.Context, correlationID uuid.UUID) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ai_call_logs WHERE correlation_id = ?`,
		correlationID.String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count call logs: %w", err)
	}
	return n, nil
}
