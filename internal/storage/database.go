package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/storyscraper/internal/types"
)

// MongoStorage upserts story records into a MongoDB collection, keyed by uid.
type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	count      int
	logger     *slog.Logger
}

// NewMongoStorage connects to MongoDB and verifies the connection.
func NewMongoStorage(ctx context.Context, uri, database, collection string, logger *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoStorage{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger.With("component", "mongo_storage"),
	}, nil
}

func (s *MongoStorage) Name() string { return "mongodb" }

// Store replaces the document for the story's uid, inserting it if new.
func (s *MongoStorage) Store(ctx context.Context, story *types.Story, paths types.Paths) error {
	doc := StoryDocument(story, paths)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.collection.ReplaceOne(ctx,
		bson.M{"_id": story.UID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("mongodb upsert: %w", err)}
	}

	s.count++
	s.logger.Debug("story indexed in mongodb", "uid", story.UID)
	return nil
}

func (s *MongoStorage) Close() error {
	s.logger.Info("mongodb storage closing", "total_stories", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// StoryDocument builds the MongoDB document for a story. Record fields are
// stored under "record"; json.Number values become int64 or float64.
func StoryDocument(story *types.Story, paths types.Paths) bson.M {
	return bson.M{
		"_id":         story.UID,
		"title":       story.Title,
		"_source_url": story.SourceURL,
		"_timestamp":  time.Now().UTC(),
		"record":      bsonValue(map[string]any(story.Record)),
		"renditions":  map[string]string(story.Renditions),
		"dir":         paths.Dir,
	}
}

func bsonValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(bson.M, len(val))
		for k, item := range val {
			out[k] = bsonValue(item)
		}
		return out
	case types.Record:
		return bsonValue(map[string]any(val))
	case []any:
		out := make(bson.A, len(val))
		for i, item := range val {
			out[i] = bsonValue(item)
		}
		return out
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	default:
		return val
	}
}

// --- Multi-Storage Fan-Out ---

// MultiStorage writes a story to several backends in order.
type MultiStorage struct {
	backends []Storage
	logger   *slog.Logger
}

// NewMultiStorage creates a storage that fans out to multiple backends.
func NewMultiStorage(backends []Storage, logger *slog.Logger) *MultiStorage {
	return &MultiStorage{
		backends: backends,
		logger:   logger.With("component", "multi_storage"),
	}
}

func (s *MultiStorage) Name() string { return "multi" }

// Store stops at the first backend that fails.
func (s *MultiStorage) Store(ctx context.Context, story *types.Story, paths types.Paths) error {
	for _, backend := range s.backends {
		if err := backend.Store(ctx, story, paths); err != nil {
			s.logger.Error("backend store failed", "backend", backend.Name(), "error", err)
			return err
		}
	}
	return nil
}

func (s *MultiStorage) Close() error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
