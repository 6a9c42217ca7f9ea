package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/merchly-ai/attest/internal/model"
)

// RuleCheck is the persisted record of one rule-validation invocation.
// The full structured outcome is serialized into the outcome column for
// later retrieval; the score and status columns exist for aggregation.
type RuleCheck struct {
	ID              uuid.UUID // correlation id
	CallerID        string
	Category        model.RuleCategory
	Domain          string
	Provider        model.ProviderName
	Model           string
	Status          model.ComplianceStatus
	ComplianceScore int
	Success         bool
	Outcome         model.RuleValidationOutcome
	Latency         time.Duration
	Error           string
	CreatedAt       time.Time
}

// InsertRuleCheck appends one validation record.
func (db *DB) InsertRuleCheck(ctx context.Context, r RuleCheck) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	outcome, err := json.Marshal(r.Outcome)
	if err != nil {
		return fmt.Errorf("storage: marshal outcome: %w", err)
	}
	success := 0
	if r.Success {
		success = 1
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO rule_checks
		 (id, caller_id, category, domain, provider, model, status,
		  compliance_score, success, outcome, latency_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.CallerID, string(r.Category), r.Domain,
		string(r.Provider), r.Model, string(r.Status), r.ComplianceScore,
		success, string(outcome), r.Latency.Milliseconds(), r.Error,
		fmtTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("storage: insert rule check: %w", err)
	}
	return nil
}

// GetRuleCheck retrieves one validation record by correlation id.
func (db *DB) GetRuleCheck(ctx context.Context, id uuid.UUID) (RuleCheck, error) {
	var (
		r         RuleCheck
		idStr     string
		success   int
		outcome   string
		latencyMS int64
		createdAt string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, caller_id, category, domain, provider, model, status,
		        compliance_score, success, outcome, latency_ms, error, created_at
		 FROM rule_checks WHERE id = ?`, id.String(),
	).Scan(&idStr, &r.CallerID, &r.Category, &r.Domain, &r.Provider, &r.Model,
		&r.Status, &r.ComplianceScore, &success, &outcome, &latencyMS,
		&r.Error, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RuleCheck{}, ErrNotFound
		}
		return RuleCheck{}, fmt.Errorf("storage: get rule check: %w", err)
	}
	r.ID, err = uuid.Parse(idStr)
	if err != nil {
		return RuleCheck{}, fmt.Errorf("storage: parse rule check id: %w", err)
	}
	r.Success = success == 1
	if err := json.Unmarshal([]byte(outcome), &r.Outcome); err != nil {
		return RuleCheck{}, fmt.Errorf("storage: unmarshal outcome: %w", err)
	}
	r.Latency = time.Duration(latencyMS) * time.Millisecond
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return RuleCheck{}, fmt.Errorf("storage: parse rule check time: %w", err)
	}
	return r, nil
}
