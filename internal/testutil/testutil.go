// Package testutil provides shared test infrastructure: quiet loggers and
// in-memory stores ready for package-level tests.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/merchly-ai/attest/internal/storage"
)

// DiscardLogger returns a logger that drops everything. Use it where the
// code under test logs but the log output is not under test.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// NewTestDB opens a migrated in-memory store that is closed when the test
// finishes.
func NewTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.OpenInMemory(DiscardLogger())
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
