package testgen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrSourceUnavailable means the target source could not be read. It is
// returned before any provider call is made; no ledger row exists for the
// attempt.
var ErrSourceUnavailable = errors.New("testgen: source unavailable")

// maxSourceBytes bounds how much source is embedded into a prompt.
const maxSourceBytes = 128 * 1024

// SourceReader resolves a request's source path to its contents.
type SourceReader interface {
	Read(ctx context.Context, path string) (string, error)
}

// FileSourceReader reads source files from a confined root directory.
// Paths are resolved relative to the root; escapes via ".." or absolute
// paths are rejected.
type FileSourceReader struct {
	root string
}

// NewFileSourceReader creates a reader confined to root.
func NewFileSourceReader(root string) *FileSourceReader {
	return &FileSourceReader{root: root}
}

// Read returns the file contents, or ErrSourceUnavailable when the path is
// missing, unreadable, escapes the root, or exceeds the size bound.
func (r *FileSourceReader) Read(_ context.Context, path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: absolute path %q", ErrSourceUnavailable, path)
	}
	full := filepath.Join(r.root, filepath.Clean(path))
	rel, err := filepath.Rel(r.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path %q escapes source root", ErrSourceUnavailable, path)
	}

	info, err := os.Stat(full)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %q is a directory", ErrSourceUnavailable, path)
	}
	if info.Size() > maxSourceBytes {
		return "", fmt.Errorf("%w: %q exceeds %d bytes", ErrSourceUnavailable, path, maxSourceBytes)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return string(data), nil
}
