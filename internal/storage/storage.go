package storage

import (
	"context"

	"github.com/IshaanNene/storyscraper/internal/types"
)

// Storage is the interface for all story persistence backends.
type Storage interface {
	// Store persists the story's metadata (and whatever else the backend keeps).
	Store(ctx context.Context, story *types.Story, paths types.Paths) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}
