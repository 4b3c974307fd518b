package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/IshaanNene/storyscraper/internal/types"
)

// FileStorage writes the metadata JSON and transcript HTML into the
// per-story directory.
type FileStorage struct {
	logger *slog.Logger
}

// NewFileStorage creates a new file storage backend.
func NewFileStorage(logger *slog.Logger) *FileStorage {
	return &FileStorage{
		logger: logger.With("component", "file_storage"),
	}
}

func (s *FileStorage) Name() string { return "file" }

// Store writes paths.Metadata and paths.Transcript, replacing any previous
// versions. The story directory is created if missing.
func (s *FileStorage) Store(ctx context.Context, story *types.Story, paths types.Paths) error {
	if err := os.MkdirAll(paths.Dir, 0o755); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("create story dir: %w", err)}
	}

	data, err := EncodeRecord(story.Record)
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}
	if err := os.WriteFile(paths.Metadata, data, 0o644); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("write metadata: %w", err)}
	}

	if err := os.WriteFile(paths.Transcript, []byte(story.Transcript), 0o644); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("write transcript: %w", err)}
	}

	s.logger.Info("story files written",
		"uid", story.UID,
		"metadata", paths.Metadata,
		"transcript", paths.Transcript,
	)
	return nil
}

func (s *FileStorage) Close() error { return nil }

// EncodeRecord renders rec as JSON with a 4-space indent. HTML characters and
// non-ASCII text are written literally.
func EncodeRecord(rec types.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("encode JSON: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
