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

// TestRun is the persisted record of one generation pipeline invocation.
// One row per invocation, success or failure; never updated afterwards.
type TestRun struct {
	ID                uuid.UUID // correlation id
	CallerID          string
	TargetFunction    string
	Category          model.TestCategory
	Complexity        model.ComplexityTier
	Provider          model.ProviderName
	Model             string
	Status            model.TestRunStatus
	EstimatedCoverage int
	Recommendations   []string
	TestCode          string
	Latency           time.Duration
	Error             string
	CreatedAt         time.Time
}

// InsertTestRun appends one generation record.
func (db *DB) InsertTestRun(ctx context.Context, r TestRun) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	recs, err := json.Marshal(r.Recommendations)
	if err != nil {
		return fmt.Errorf("storage: marshal recommendations: %w", err)
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO test_runs
		 (id, caller_id, target_function, category, complexity, provider, model,
		  status, estimated_coverage, recommendations, test_code, latency_ms,
		  error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.CallerID, r.TargetFunction, string(r.Category),
		string(r.Complexity), string(r.Provider), r.Model, string(r.Status),
		r.EstimatedCoverage, string(recs), r.TestCode, r.Latency.Milliseconds(),
		r.Error, fmtTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("storage: insert test run: %w", err)
	}
	return nil
}

// GetTestRun retrieves one generation record by correlation id.
func (db *DB) GetTestRun(ctx context.Context, id uuid.UUID) (TestRun, error) {
	var (
		r         TestRun
		idStr     string
		recs      string
		latencyMS int64
		createdAt string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, caller_id, target_function, category, complexity, provider,
		        model, status, estimated_coverage, recommendations, test_code,
		        latency_ms, error, created_at
		 FROM test_runs WHERE id = ?`, id.String(),
	).Scan(&idStr, &r.CallerID, &r.TargetFunction, &r.Category, &r.Complexity,
		&r.Provider, &r.Model, &r.Status, &r.EstimatedCoverage, &recs,
		&r.TestCode, &latencyMS, &r.Error, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TestRun{}, ErrNotFound
		}
		return TestRun{}, fmt.Errorf("storage: get test run: %w", err)
	}
	r.ID, err = uuid.Parse(idStr)
	if err != nil {
		return TestRun{}, fmt.Errorf("storage: parse test run id: %w", err)
	}
	if err := json.Unmarshal([]byte(recs), &r.Recommendations); err != nil {
		return TestRun{}, fmt.Errorf("storage: unmarshal recommendations: %w", err)
	}
	r.Latency = time.Duration(latencyMS) * time.Millisecond
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return TestRun{}, fmt.Errorf("storage: parse test run time: %w", err)
	}
	return r, nil
}
