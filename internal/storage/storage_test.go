package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/IshaanNene/storyscraper/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func testStory() *types.Story {
	return &types.Story{
		SourceURL: "https://news.example.com/news/42",
		UID:       "42",
		Title:     "Вечерние новости",
		Record: types.Record{
			"uid":      json.Number("42"),
			"title":    "Вечерние новости",
			"duration": json.Number("93.5"),
			"html":     "<b>&</b>",
			"mbr":      []any{map[string]any{"name": "ld", "src": "//cdn.example.com/ld.mp4"}},
		},
		Transcript: "<div>\n Текст\n</div>\n",
		Renditions: types.Renditions{"ld": "https://cdn.example.com/ld.mp4"},
	}
}

func TestEncodeRecordFormatting(t *testing.T) {
	data, err := EncodeRecord(types.Record{"title": "Привет", "tag": "<b>", "n": json.Number("7")})
	if err != nil {
		t.Fatal(err)
	}

	want := "{\n    \"n\": 7,\n    \"tag\": \"<b>\",\n    \"title\": \"Привет\"\n}"
	if string(data) != want {
		t.Errorf("got:\n%s\nwant:\n%s", data, want)
	}
}

func TestFileStorageWritesArtifacts(t *testing.T) {
	root := t.TempDir()
	story := testStory()
	paths, err := types.DerivePaths(root, story.UID, []string{"ld"})
	if err != nil {
		t.Fatal(err)
	}

	s := NewFileStorage(testLogger)
	if err := s.Store(context.Background(), story, paths); err != nil {
		t.Fatalf("store: %v", err)
	}

	meta, err := os.ReadFile(filepath.Join(root, "42", "metadata_42.json"))
	if err != nil {
		t.Fatalf("metadata not written: %v", err)
	}
	if !strings.Contains(string(meta), `"title": "Вечерние новости"`) {
		t.Errorf("non-ASCII title not literal: %s", meta)
	}
	if !strings.Contains(string(meta), "\n    \"uid\": 42") {
		t.Errorf("expected 4-space indent and numeric uid: %s", meta)
	}

	var roundTrip map[string]any
	if err := json.Unmarshal(meta, &roundTrip); err != nil {
		t.Errorf("metadata is not valid JSON: %v", err)
	}

	transcript, err := os.ReadFile(filepath.Join(root, "42", "transcript_42.html"))
	if err != nil {
		t.Fatalf("transcript not written: %v", err)
	}
	if string(transcript) != story.Transcript {
		t.Errorf("unexpected transcript %q", transcript)
	}

	// Storing again overwrites in place.
	if err := s.Store(context.Background(), story, paths); err != nil {
		t.Errorf("second store should succeed: %v", err)
	}
}

func TestFileStorageReportsErrors(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "42")
	if err := os.WriteFile(blocker, []byte("not a dir"), 0o644); err != nil {
		t.Fatal(err)
	}
	paths, _ := types.DerivePaths(root, "42", nil)

	err := NewFileStorage(testLogger).Store(context.Background(), testStory(), paths)
	var se *types.StorageError
	if !errors.As(err, &se) || se.Backend != "file" {
		t.Errorf("expected file StorageError, got %v", err)
	}
}

func TestStoryDocument(t *testing.T) {
	story := testStory()
	paths, _ := types.DerivePaths("/srv", story.UID, []string{"ld"})
	doc := StoryDocument(story, paths)

	if doc["_id"] != "42" {
		t.Errorf("unexpected _id %v", doc["_id"])
	}
	rec, ok := doc["record"].(bson.M)
	if !ok {
		t.Fatalf("record should be bson.M, got %T", doc["record"])
	}
	if rec["uid"] != int64(42) {
		t.Errorf("uid should become int64, got %T %v", rec["uid"], rec["uid"])
	}
	if rec["duration"] != 93.5 {
		t.Errorf("duration should become float64, got %v", rec["duration"])
	}
	mbr, ok := rec["mbr"].(bson.A)
	if !ok || len(mbr) != 1 {
		t.Fatalf("mbr should be bson.A, got %T", rec["mbr"])
	}
	if _, ok := mbr[0].(bson.M); !ok {
		t.Errorf("nested objects should be bson.M, got %T", mbr[0])
	}
}

type recordingStorage struct {
	name   string
	err    error
	stored int
	closed bool
}

func (r *recordingStorage) Store(ctx context.Context, story *types.Story, paths types.Paths) error {
	r.stored++
	return r.err
}
func (r *recordingStorage) Close() error { r.closed = true; return nil }
func (r *recordingStorage) Name() string { return r.name }

func TestMultiStorageStopsOnFailure(t *testing.T) {
	boom := errors.New("disk full")
	a := &recordingStorage{name: "a", err: boom}
	b := &recordingStorage{name: "b"}
	m := NewMultiStorage([]Storage{a, b}, testLogger)

	err := m.Store(context.Background(), testStory(), types.Paths{})
	if !errors.Is(err, boom) {
		t.Errorf("expected first backend error, got %v", err)
	}
	if b.stored != 0 {
		t.Error("later backends should not run after a failure")
	}

	if err := m.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("all backends should be closed")
	}
}
