package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/merchly-ai/attest/internal/model"
)

// InsertMetricEvent appends one immutable telemetry event. The category and
// domain dimensions are lifted into columns for grouping; the full map is
// kept alongside.
func (db *DB) InsertMetricEvent(ctx context.Context, e model.MetricEvent) error {
	dims, err := json.Marshal(orEmpty(e.Dimensions))
	if err != nil {
		return fmt.Errorf("storage: marshal dimensions: %w", err)
	}
	meta, err := json.Marshal(orEmpty(e.Metadata))
	if err != nil {
		return fmt.Errorf("storage: marshal metadata: %w", err)
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO metric_events
		 (type, value, category, domain, caller_id, session_id, dimensions, metadata, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.Type), e.Value, e.Dimensions["category"], e.Dimensions["domain"],
		e.CallerID, e.SessionID, string(dims), string(meta), fmtTime(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("storage: insert metric event: %w", err)
	}
	return nil
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
