package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/IshaanNene/storyscraper/internal/config"
	"github.com/IshaanNene/storyscraper/internal/observability"
	"github.com/IshaanNene/storyscraper/internal/types"
)

// DownloadResult tracks one rendition handled by the downloader.
type DownloadResult struct {
	Rendition   string        `json:"rendition"`
	URL         string        `json:"url"`
	LocalPath   string        `json:"local_path"`
	Size        int64         `json:"size"`
	ContentType string        `json:"content_type,omitempty"`
	Hash        string        `json:"hash,omitempty"`
	Skipped     bool          `json:"skipped"`
	Duration    time.Duration `json:"duration"`
}

// Job is a single rendition to fetch into Path.
type Job struct {
	Rendition string
	URL       string
	Path      string
}

// Retriever streams the resource at rawURL into the file dest.
type Retriever interface {
	Retrieve(ctx context.Context, rawURL, dest string) (*DownloadResult, error)
}

// HTTPRetriever implements Retriever with a plain HTTP GET.
type HTTPRetriever struct {
	client  *http.Client
	maxSize int64
	logger  *slog.Logger
}

// NewHTTPRetriever creates a retriever for video files.
func NewHTTPRetriever(cfg config.DownloadConfig, logger *slog.Logger) *HTTPRetriever {
	return &HTTPRetriever{
		client:  &http.Client{Timeout: cfg.Timeout},
		maxSize: cfg.MaxSizeMB * 1024 * 1024,
		logger:  logger.With("component", "http_retriever"),
	}
}

// Retrieve implements Retriever. A file left half-written by a failed copy
// is removed.
func (r *HTTPRetriever) Retrieve(ctx context.Context, rawURL, dest string) (*DownloadResult, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", types.ErrUnexpectedStatus, resp.StatusCode)
	}

	if r.maxSize > 0 && resp.ContentLength > r.maxSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", resp.ContentLength, r.maxSize)
	}

	f, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	hasher := sha256.New()
	writer := io.MultiWriter(f, hasher)

	// Read one byte past the cap so a body without Content-Length that is
	// too large is detected instead of silently truncated.
	var reader io.Reader = resp.Body
	if r.maxSize > 0 {
		reader = io.LimitReader(resp.Body, r.maxSize+1)
	}

	size, err := io.Copy(writer, reader)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return nil, fmt.Errorf("write file: %w", err)
	}
	if r.maxSize > 0 && size > r.maxSize {
		os.Remove(dest)
		return nil, fmt.Errorf("file too large: more than %d bytes", r.maxSize)
	}

	hash := hex.EncodeToString(hasher.Sum(nil))
	result := &DownloadResult{
		URL:         rawURL,
		LocalPath:   dest,
		Size:        size,
		ContentType: resp.Header.Get("Content-Type"),
		Hash:        hash,
		Duration:    time.Since(start),
	}

	r.logger.Debug("file downloaded",
		"url", rawURL,
		"size", size,
		"hash", hash[:16],
		"duration", result.Duration,
	)

	return result, nil
}

// Downloader fetches renditions one after another, skipping files that
// already exist and pacing successive retrievals.
type Downloader struct {
	retriever Retriever
	pacer     Pacer
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// DownloaderOption configures a Downloader.
type DownloaderOption func(*Downloader)

// WithPacer sets the delay strategy used between retrievals.
func WithPacer(p Pacer) DownloaderOption {
	return func(d *Downloader) { d.pacer = p }
}

// WithMetrics records download counters into m.
func WithMetrics(m *observability.Metrics) DownloaderOption {
	return func(d *Downloader) { d.metrics = m }
}

// NewDownloader creates a sequential downloader around retriever.
func NewDownloader(retriever Retriever, logger *slog.Logger, opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		retriever: retriever,
		pacer:     NoPacer{},
		logger:    logger.With("component", "media_downloader"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DownloadAll processes jobs in order. An existing destination is skipped
// without calling the retriever. The pacer runs before every retrieval except
// the first. The first failure stops the loop and is returned along with the
// results gathered so far.
func (d *Downloader) DownloadAll(ctx context.Context, jobs []Job) ([]*DownloadResult, error) {
	results := make([]*DownloadResult, 0, len(jobs))
	retrieved := 0

	for _, job := range jobs {
		exists, err := fileExists(job.Path)
		if err != nil {
			return results, &types.DownloadError{Rendition: job.Rendition, URL: job.URL, Err: err}
		}
		if exists {
			d.logger.Info("download skipped, file exists", "rendition", job.Rendition, "path", job.Path)
			if d.metrics != nil {
				d.metrics.VideosSkipped.Add(1)
			}
			results = append(results, &DownloadResult{
				Rendition: job.Rendition,
				URL:       job.URL,
				LocalPath: job.Path,
				Skipped:   true,
			})
			continue
		}

		if retrieved > 0 {
			if err := d.pacer.Wait(ctx); err != nil {
				return results, err
			}
		}

		d.logger.Info("download started", "rendition", job.Rendition, "url", job.URL)
		res, err := d.retriever.Retrieve(ctx, job.URL, job.Path)
		retrieved++
		if err != nil {
			if d.metrics != nil {
				d.metrics.DownloadFailures.Add(1)
			}
			return results, &types.DownloadError{Rendition: job.Rendition, URL: job.URL, Err: err}
		}

		res.Rendition = job.Rendition
		if d.metrics != nil {
			d.metrics.VideosDownloaded.Add(1)
			d.metrics.BytesDownloaded.Add(res.Size)
		}
		d.logger.Info("download complete",
			"rendition", job.Rendition,
			"path", job.Path,
			"size", humanSize(res.Size),
		)
		results = append(results, res)
	}

	return results, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
