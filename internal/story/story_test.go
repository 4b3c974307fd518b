package story

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/IshaanNene/storyscraper/internal/config"
	"github.com/IshaanNene/storyscraper/internal/media"
	"github.com/IshaanNene/storyscraper/internal/parser"
	"github.com/IshaanNene/storyscraper/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const articleHTML = `<!DOCTYPE html>
<html><head><title>Evening news</title></head>
<body>
  <div class="video-transcript"><p>Hello &amp; welcome</p><p>Второй абзац</p></div>
  <div class="video-player" data-playlist-url="/api/playlist/42?format=json"></div>
</body></html>`

// newsServer serves one article, its playlist and two video renditions.
type newsServer struct {
	*httptest.Server
	playlist func(host string) string
	article  string

	mu        sync.Mutex
	videoHits map[string]int
}

// hits reports how often the named video was requested.
func (ns *newsServer) hits(name string) int {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.videoHits[name]
}

func (ns *newsServer) totalHits() int {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	total := 0
	for _, n := range ns.videoHits {
		total += n
	}
	return total
}

func newNewsServer(t *testing.T) *newsServer {
	t.Helper()
	ns := &newsServer{
		videoHits: map[string]int{},
		article:   articleHTML,
		playlist: func(host string) string {
			return fmt.Sprintf(`[{
				"uid": 42,
				"title": "Вечерние новости",
				"duration": 93.5,
				"poster": "https://cdn.example.com/p.jpg",
				"poster_thumb": "https://cdn.example.com/t.jpg",
				"has_ads": false,
				"embed": "<iframe></iframe>",
				"can_embed": true,
				"timeline_actions": [],
				"mbr": [
					{"name": "ld", "src": "//%s/media/ld.mp4"},
					{"name": "hd", "src": "/media/hd.mp4"}
				]
			}]`, host)
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/news/42", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, ns.article)
	})
	mux.HandleFunc("/api/playlist/42", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "json" {
			http.Error(w, "missing format", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, ns.playlist(r.Host))
	})
	mux.HandleFunc("/media/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/media/")
		ns.mu.Lock()
		ns.videoHits[name]++
		ns.mu.Unlock()
		w.Header().Set("Content-Type", "video/mp4")
		fmt.Fprint(w, "video:"+name)
	})

	ns.Server = httptest.NewServer(mux)
	t.Cleanup(ns.Close)
	return ns
}

// fakeRunner stands in for ffmpeg by writing the output file (last argument).
type fakeRunner struct {
	args [][]string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	f.args = append(f.args, args)
	return os.WriteFile(args[len(args)-1], []byte("mp3"), 0o644)
}

func (f *fakeRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return []byte("ffmpeg version test"), nil
}

func newTestScraper(t *testing.T, opts ...Option) *Scraper {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Fetcher.RequestTimeout = 5 * time.Second

	opts = append([]Option{WithPacer(media.NoPacer{})}, opts...)
	s, err := New(cfg, testLogger, opts...)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestScrapeAndSaveEndToEnd(t *testing.T) {
	ns := newNewsServer(t)
	runner := &fakeRunner{}
	s := newTestScraper(t, WithAudioExtractor(media.NewAudioExtractor(testLogger, media.WithCommandRunner(runner))))

	story, err := s.Scrape(context.Background(), ns.URL+"/news/42")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}

	if story.UID != "42" {
		t.Errorf("expected uid 42, got %q", story.UID)
	}
	if story.Title != "Вечерние новости" {
		t.Errorf("unexpected title %q", story.Title)
	}
	for _, key := range []string{"poster", "poster_thumb", "has_ads", "embed", "can_embed", "timeline_actions"} {
		if _, ok := story.Record[key]; ok {
			t.Errorf("key %q should have been removed", key)
		}
	}
	if !strings.HasPrefix(story.Transcript, `<div class="video-transcript">`) {
		t.Errorf("transcript should start with the container tag:\n%s", story.Transcript)
	}
	if !strings.Contains(story.Transcript, "Hello &amp; welcome") {
		t.Errorf("transcript text missing:\n%s", story.Transcript)
	}

	host := strings.TrimPrefix(ns.URL, "http://")
	wantRenditions := types.Renditions{
		"ld": "http://" + host + "/media/ld.mp4",
		"hd": "http://" + host + "/media/hd.mp4",
	}
	for label, want := range wantRenditions {
		if got := story.Renditions[label]; got != want {
			t.Errorf("rendition %s: got %q, want %q", label, got, want)
		}
	}

	root := t.TempDir()
	result, err := s.Save(context.Background(), story, SaveOptions{
		Root:       root,
		Renditions: []string{"ld"},
		Audio:      true,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	dir := filepath.Join(root, "42")
	for _, name := range []string{"metadata_42.json", "transcript_42.html", "video_ld.mp4", "audio.mp3"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "video_hd.mp4")); !os.IsNotExist(err) {
		t.Error("hd was not requested and must not be downloaded")
	}

	meta, err := os.ReadFile(filepath.Join(dir, "metadata_42.json"))
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(meta, &decoded); err != nil {
		t.Fatalf("metadata is not JSON: %v", err)
	}
	if _, ok := decoded["poster"]; ok {
		t.Error("metadata should not contain excluded keys")
	}
	if !strings.Contains(string(meta), `"title": "Вечерние новости"`) {
		t.Errorf("title should be written literally:\n%s", meta)
	}

	if result.AudioPath != filepath.Join(dir, "audio.mp3") {
		t.Errorf("unexpected audio path %q", result.AudioPath)
	}
	if len(runner.args) != 1 || runner.args[0][1] != filepath.Join(dir, "video_ld.mp4") {
		t.Errorf("audio should be extracted from the ld video, got %v", runner.args)
	}
	if n := ns.hits("ld.mp4"); n != 1 {
		t.Errorf("expected one ld download, got %d", n)
	}

	m := s.Metrics()
	if m.PagesFetched.Load() != 1 || m.PlaylistsFetched.Load() != 1 {
		t.Errorf("unexpected fetch counters: %v", m.Snapshot())
	}
	if m.VideosDownloaded.Load() != 1 || m.RecordsStored.Load() != 1 || m.AudioExtracted.Load() != 1 {
		t.Errorf("unexpected save counters: %v", m.Snapshot())
	}

	// A second save keeps the existing video.
	if _, err := s.Save(context.Background(), story, SaveOptions{Root: root, Renditions: []string{"ld"}}); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if n := ns.hits("ld.mp4"); n != 1 {
		t.Errorf("existing video must not be downloaded again, hits=%d", n)
	}
	if m.VideosSkipped.Load() != 1 {
		t.Errorf("expected one skipped video, got %d", m.VideosSkipped.Load())
	}
}

func TestSaveRejectsUnknownRenditionBeforeWriting(t *testing.T) {
	ns := newNewsServer(t)
	s := newTestScraper(t)

	story, err := s.Scrape(context.Background(), ns.URL+"/news/42")
	if err != nil {
		t.Fatal(err)
	}

	root := t.TempDir()
	_, err = s.Save(context.Background(), story, SaveOptions{Root: root, Renditions: []string{"ld", "4k"}})
	if !errors.Is(err, types.ErrUnknownRendition) {
		t.Fatalf("expected ErrUnknownRendition, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "42")); !os.IsNotExist(err) {
		t.Error("nothing should be written for an unknown rendition")
	}
	if n := ns.totalHits(); n != 0 {
		t.Errorf("no video should be requested, got %d requests", n)
	}
}

func TestSaveRequiresExistingRoot(t *testing.T) {
	s := newTestScraper(t)
	story := &types.Story{UID: "42", Renditions: types.Renditions{"ld": "http://x/ld.mp4"}}

	_, err := s.Save(context.Background(), story, SaveOptions{
		Root:       filepath.Join(t.TempDir(), "missing"),
		Renditions: []string{"ld"},
	})
	if err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestSaveDefaultsToConfiguredRenditions(t *testing.T) {
	ns := newNewsServer(t)
	s := newTestScraper(t)

	story, err := s.Scrape(context.Background(), ns.URL+"/news/42")
	if err != nil {
		t.Fatal(err)
	}

	root := t.TempDir()
	result, err := s.Save(context.Background(), story, SaveOptions{Root: root})
	if err != nil {
		t.Fatalf("save without renditions: %v", err)
	}

	if len(result.Downloads) != 1 || result.Downloads[0].Rendition != "ld" {
		t.Errorf("expected the configured ld rendition, got %+v", result.Downloads)
	}
	if _, err := os.Stat(filepath.Join(root, "42", "video_ld.mp4")); err != nil {
		t.Errorf("expected video_ld.mp4: %v", err)
	}
	if n := ns.hits("hd.mp4"); n != 0 {
		t.Errorf("hd is not configured and must not be requested, hits=%d", n)
	}
}

func TestSaveAudioSourceMustBeRequested(t *testing.T) {
	s := newTestScraper(t)
	story := &types.Story{UID: "42", Renditions: types.Renditions{"ld": "http://x/ld.mp4", "hd": "http://x/hd.mp4"}}

	_, err := s.Save(context.Background(), story, SaveOptions{
		Root:           t.TempDir(),
		Renditions:     []string{"ld"},
		Audio:          true,
		AudioRendition: "hd",
	})
	if !errors.Is(err, types.ErrUnknownRendition) {
		t.Errorf("expected ErrUnknownRendition, got %v", err)
	}
}

func TestScrapeFailures(t *testing.T) {
	tests := []struct {
		name     string
		article  string
		playlist string
		path     string
		wantErr  error
	}{
		{
			name:    "page not found",
			path:    "/missing",
			wantErr: types.ErrUnexpectedStatus,
		},
		{
			name:    "no transcript",
			article: `<div class="video-player" data-playlist-url="/api/playlist/42?format=json"></div>`,
			wantErr: types.ErrSelectorNotFound,
		},
		{
			name: "two transcripts",
			article: `<div class="video-transcript">a</div><div class="video-transcript">b</div>
				<div class="video-player" data-playlist-url="/api/playlist/42?format=json"></div>`,
			wantErr: types.ErrSelectorAmbiguous,
		},
		{
			name:    "player without attribute",
			article: `<div class="video-transcript">a</div><div class="video-player"></div>`,
			wantErr: types.ErrSelectorNotFound,
		},
		{
			name:     "playlist is an object",
			playlist: `{"uid": 42}`,
			wantErr:  types.ErrPlaylistShape,
		},
		{
			name:     "playlist has two entries",
			playlist: `[{"uid": 1}, {"uid": 2}]`,
			wantErr:  types.ErrPlaylistShape,
		},
		{
			name:     "playlist without uid",
			playlist: `[{"title": "x", "mbr": [{"name": "ld", "src": "/a.mp4"}]}]`,
			wantErr:  types.ErrMissingUID,
		},
		{
			name:     "playlist without mbr",
			playlist: `[{"uid": 42}]`,
			wantErr:  types.ErrNoRenditions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns := newNewsServer(t)
			if tt.article != "" {
				ns.article = tt.article
			}
			if tt.playlist != "" {
				body := tt.playlist
				ns.playlist = func(string) string { return body }
			}
			path := "/news/42"
			if tt.path != "" {
				path = tt.path
			}

			s := newTestScraper(t)
			_, err := s.Scrape(context.Background(), ns.URL+path)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestScrapePlaylistNotFound(t *testing.T) {
	ns := newNewsServer(t)
	ns.article = `<div class="video-transcript">a</div>
		<div class="video-player" data-playlist-url="/api/nothing-here"></div>`

	s := newTestScraper(t)
	_, err := s.Scrape(context.Background(), ns.URL+"/news/42")

	var fe *types.FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 FetchError, got %v", err)
	}
	if s.Metrics().FetchFailures.Load() != 1 {
		t.Errorf("expected one fetch failure, got %d", s.Metrics().FetchFailures.Load())
	}
}

func pageFor(t *testing.T, rawURL, body string) *Page {
	t.Helper()
	req, err := types.NewRequest(rawURL, types.TagPage)
	if err != nil {
		t.Fatal(err)
	}
	root, err := html.Parse(strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	return &Page{Request: req, Root: root}
}

func TestDiscoverPlaylist(t *testing.T) {
	loc := parser.NewCSSLocator(testLogger)

	tests := []struct {
		name string
		attr string
		want string
	}{
		{"absolute path", "/api/playlist/42?format=json", "https://news.example.com/api/playlist/42?format=json"},
		{"relative path", "api/playlist/42", "https://news.example.com/api/playlist/42"},
		{"other host", "https://api.example.com/p/42", "https://api.example.com/p/42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := pageFor(t, "https://news.example.com/world/2024/story?id=7",
				`<div class="video-player" data-playlist-url="`+tt.attr+`"></div>`)
			got, err := DiscoverPlaylist(page, loc, "div.video-player", "data-playlist-url")
			if err != nil {
				t.Fatal(err)
			}
			if got.String() != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	page := pageFor(t, "https://news.example.com/a", `<div class="video-player" data-playlist-url=""></div>`)
	if _, err := DiscoverPlaylist(page, loc, "div.video-player", "data-playlist-url"); !errors.Is(err, types.ErrMissingAttribute) {
		t.Errorf("empty attribute: expected ErrMissingAttribute, got %v", err)
	}

	page = pageFor(t, "https://news.example.com/a", `<div class="video-player"></div><div class="video-player"></div>`)
	if _, err := DiscoverPlaylist(page, loc, "div.video-player", "data-playlist-url"); !errors.Is(err, types.ErrSelectorAmbiguous) {
		t.Errorf("two players: expected ErrSelectorAmbiguous, got %v", err)
	}
}

func TestExtractTranscriptXPath(t *testing.T) {
	page := pageFor(t, "https://news.example.com/a", `<div class="video-transcript"><p>One</p></div>`)
	got, err := ExtractTranscript(page, parser.NewXPathLocator(testLogger), `//div[@class="video-transcript"]`)
	if err != nil {
		t.Fatal(err)
	}
	want := "<div class=\"video-transcript\">\n <p>\n  One\n </p>\n</div>\n"
	if got != want {
		t.Errorf("got:\n%q\nwant:\n%q", got, want)
	}
}

func TestBuildRenditions(t *testing.T) {
	page, _ := url.Parse("https://news.example.com/world/story")
	rec := types.Record{
		"mbr": []any{
			map[string]any{"name": "ld", "src": "//cdn.example.com/v/ld.mp4"},
			map[string]any{"name": "sd", "src": "https://other.example.com/sd.mp4"},
			map[string]any{"name": "hd", "src": "/v/hd.mp4"},
			map[string]any{"name": "", "src": "/v/nameless.mp4"},
			map[string]any{"name": "nosrc"},
			"garbage",
		},
	}

	got, err := BuildRenditions(rec, page)
	if err != nil {
		t.Fatal(err)
	}
	want := types.Renditions{
		"ld": "https://cdn.example.com/v/ld.mp4",
		"sd": "https://other.example.com/sd.mp4",
		"hd": "https://news.example.com/v/hd.mp4",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s: got %q, want %q", k, got[k], v)
		}
	}

	if _, err := BuildRenditions(types.Record{"uid": 1}, page); !errors.Is(err, types.ErrNoRenditions) {
		t.Errorf("missing mbr: expected ErrNoRenditions, got %v", err)
	}
	if _, err := BuildRenditions(types.Record{"mbr": []any{}}, page); !errors.Is(err, types.ErrNoRenditions) {
		t.Errorf("empty mbr: expected ErrNoRenditions, got %v", err)
	}
}

// Every mbr entry with a name and a src maps to exactly one rendition.
func TestBuildRenditionsCoversEveryEntry(t *testing.T) {
	page, _ := url.Parse("http://news.example.com/")
	for n := 1; n <= 20; n++ {
		mbr := make([]any, n)
		for i := range mbr {
			mbr[i] = map[string]any{
				"name": fmt.Sprintf("r%d", i),
				"src":  fmt.Sprintf("//cdn%d.example.com/%d.mp4", i%3, i),
			}
		}
		got, err := BuildRenditions(types.Record{"mbr": mbr}, page)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != n {
			t.Fatalf("n=%d: got %d renditions", n, len(got))
		}
		for i := 0; i < n; i++ {
			want := fmt.Sprintf("http://cdn%d.example.com/%d.mp4", i%3, i)
			if got[fmt.Sprintf("r%d", i)] != want {
				t.Errorf("n=%d r%d: got %q", n, i, got[fmt.Sprintf("r%d", i)])
			}
		}
	}
}

func TestDecodePlaylistKeepsNumbers(t *testing.T) {
	rec, err := DecodePlaylist([]byte(`[{"uid": 12345678901234567, "ratio": 1.5}]`), "u")
	if err != nil {
		t.Fatal(err)
	}
	if n, ok := rec["uid"].(json.Number); !ok || n.String() != "12345678901234567" {
		t.Errorf("uid should stay an exact json.Number, got %T %v", rec["uid"], rec["uid"])
	}
	if rec.UID() != "12345678901234567" {
		t.Errorf("unexpected uid %q", rec.UID())
	}

	for _, body := range []string{``, `[]`, `[1]`, `[{}] [{}]`, `null`} {
		if _, err := DecodePlaylist([]byte(body), "u"); !errors.Is(err, types.ErrPlaylistShape) {
			t.Errorf("%q: expected ErrPlaylistShape, got %v", body, err)
		}
	}
}

func TestSimplifyLeavesInputUntouched(t *testing.T) {
	full := types.Record{"uid": "1", "poster": "p", "title": "t"}
	simple := Simplify(full, []string{"poster", "absent"})

	if _, ok := simple["poster"]; ok {
		t.Error("poster should be removed")
	}
	if len(simple) != 2 {
		t.Errorf("unexpected keys %v", simple.Keys())
	}
	if _, ok := full["poster"]; !ok {
		t.Error("input record must not be modified")
	}
}

func TestBuildRenditionsProtocolRelative(t *testing.T) {
	page, _ := url.Parse("https://news.example.com/story")
	rec := types.Record{"mbr": []any{
		map[string]any{"name": "ld", "src": "//host/a.mp4"},
		map[string]any{"name": "hd", "src": "//host/b.mp4"},
	}}

	got, err := BuildRenditions(rec, page)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got["ld"] != "https://host/a.mp4" || got["hd"] != "https://host/b.mp4" {
		t.Errorf("unexpected renditions %v", got)
	}
}
