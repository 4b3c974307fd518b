package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics tracks counters for a scrape run.
type Metrics struct {
	PagesFetched     atomic.Int64
	PlaylistsFetched atomic.Int64
	ParseFailures    atomic.Int64
	FetchFailures    atomic.Int64

	VideosDownloaded atomic.Int64
	VideosSkipped    atomic.Int64
	DownloadFailures atomic.Int64
	BytesDownloaded  atomic.Int64

	RecordsStored  atomic.Int64
	AudioExtracted atomic.Int64

	logger *slog.Logger
	server *http.Server
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		value int64
	}{
		{"storyscraper_pages_fetched_total", "Article pages fetched", m.PagesFetched.Load()},
		{"storyscraper_playlists_fetched_total", "Playlist documents fetched", m.PlaylistsFetched.Load()},
		{"storyscraper_parse_failures_total", "Pages or playlists with unexpected structure", m.ParseFailures.Load()},
		{"storyscraper_fetch_failures_total", "Failed page or playlist requests", m.FetchFailures.Load()},
		{"storyscraper_videos_downloaded_total", "Video renditions downloaded", m.VideosDownloaded.Load()},
		{"storyscraper_videos_skipped_total", "Video renditions skipped because the file existed", m.VideosSkipped.Load()},
		{"storyscraper_download_failures_total", "Failed video downloads", m.DownloadFailures.Load()},
		{"storyscraper_bytes_downloaded_total", "Video bytes written", m.BytesDownloaded.Load()},
		{"storyscraper_records_stored_total", "Story records written to storage backends", m.RecordsStored.Load()},
		{"storyscraper_audio_extracted_total", "Audio tracks extracted", m.AudioExtracted.Load()},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", metric.name)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// StartServer starts the metrics HTTP server in the background.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	m.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Shutdown stops the metrics server if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"pages_fetched":     m.PagesFetched.Load(),
		"playlists_fetched": m.PlaylistsFetched.Load(),
		"parse_failures":    m.ParseFailures.Load(),
		"fetch_failures":    m.FetchFailures.Load(),
		"videos_downloaded": m.VideosDownloaded.Load(),
		"videos_skipped":    m.VideosSkipped.Load(),
		"download_failures": m.DownloadFailures.Load(),
		"bytes_downloaded":  m.BytesDownloaded.Load(),
		"records_stored":    m.RecordsStored.Load(),
		"audio_extracted":   m.AudioExtracted.Load(),
	}
}
