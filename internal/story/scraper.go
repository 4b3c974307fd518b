package story

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/IshaanNene/storyscraper/internal/config"
	"github.com/IshaanNene/storyscraper/internal/fetcher"
	"github.com/IshaanNene/storyscraper/internal/media"
	"github.com/IshaanNene/storyscraper/internal/observability"
	"github.com/IshaanNene/storyscraper/internal/parser"
	"github.com/IshaanNene/storyscraper/internal/storage"
	"github.com/IshaanNene/storyscraper/internal/types"
)

// AudioExtractor turns a downloaded video into an audio file.
type AudioExtractor interface {
	Extract(ctx context.Context, src, dest string) error
}

// Scraper runs the article pipeline: Scrape builds a Story from a page and
// Save writes it (and its media) under a root directory.
type Scraper struct {
	cfg *config.Config

	pageFetcher     fetcher.Fetcher
	playlistFetcher fetcher.Fetcher
	locator         parser.Locator
	storage         storage.Storage
	retriever       media.Retriever
	pacer           media.Pacer
	downloader      *media.Downloader
	audio           AudioExtractor
	metrics         *observability.Metrics

	logger *slog.Logger
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithPageFetcher overrides the fetcher used for the article page.
func WithPageFetcher(f fetcher.Fetcher) Option {
	return func(s *Scraper) { s.pageFetcher = f }
}

// WithPlaylistFetcher overrides the fetcher used for the playlist JSON.
func WithPlaylistFetcher(f fetcher.Fetcher) Option {
	return func(s *Scraper) { s.playlistFetcher = f }
}

// WithStorage replaces the default file storage.
func WithStorage(st storage.Storage) Option {
	return func(s *Scraper) { s.storage = st }
}

// WithRetriever replaces the HTTP video retriever.
func WithRetriever(r media.Retriever) Option {
	return func(s *Scraper) { s.retriever = r }
}

// WithPacer replaces the fixed interval between video downloads.
func WithPacer(p media.Pacer) Option {
	return func(s *Scraper) { s.pacer = p }
}

// WithAudioExtractor replaces the ffmpeg-based extractor.
func WithAudioExtractor(a AudioExtractor) Option {
	return func(s *Scraper) { s.audio = a }
}

// WithMetrics records pipeline counters into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Scraper) { s.metrics = m }
}

// New creates a Scraper from cfg. Components not supplied through opts are
// built from the configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Scraper, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Scraper{
		cfg:    cfg,
		logger: logger.With("component", "story_scraper"),
	}
	for _, opt := range opts {
		opt(s)
	}

	loc, err := parser.NewLocator(cfg.Parser.SelectorType, logger)
	if err != nil {
		return nil, err
	}
	s.locator = loc

	if s.pageFetcher == nil {
		f, err := fetcher.New(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create fetcher: %w", err)
		}
		s.pageFetcher = f
	}
	if s.playlistFetcher == nil {
		// A browser cannot hand back raw JSON, so the playlist always goes over HTTP.
		if s.pageFetcher.Type() == "http" {
			s.playlistFetcher = s.pageFetcher
		} else {
			f, err := fetcher.NewHTTPFetcher(cfg, logger)
			if err != nil {
				return nil, fmt.Errorf("create playlist fetcher: %w", err)
			}
			s.playlistFetcher = f
		}
	}

	if s.storage == nil {
		s.storage = storage.NewFileStorage(logger)
	}
	if s.retriever == nil {
		s.retriever = media.NewHTTPRetriever(cfg.Download, logger)
	}
	if s.pacer == nil {
		s.pacer = media.FixedPacer{Interval: cfg.Download.Interval}
	}
	if s.metrics == nil {
		s.metrics = observability.NewMetrics(logger)
	}
	if s.audio == nil {
		s.audio = media.NewAudioExtractor(logger,
			media.WithFFmpegPath(cfg.Audio.FFmpegPath),
			media.WithBitrate(cfg.Audio.Bitrate),
		)
	}

	s.downloader = media.NewDownloader(s.retriever, logger,
		media.WithPacer(s.pacer),
		media.WithMetrics(s.metrics),
	)

	return s, nil
}

// Metrics returns the counters the scraper records into.
func (s *Scraper) Metrics() *observability.Metrics { return s.metrics }

// Scrape fetches the article page and its playlist and returns the
// assembled story. Nothing is written to disk.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*types.Story, error) {
	start := time.Now()
	s.logger.Info("scrape started", "url", rawURL)

	page, err := FetchPage(ctx, s.pageFetcher, rawURL)
	if err != nil {
		return nil, s.fail("fetch page", err)
	}
	s.metrics.PagesFetched.Add(1)

	transcript, err := ExtractTranscript(page, s.locator, s.cfg.Parser.TranscriptSelector)
	if err != nil {
		return nil, s.fail("extract transcript", err)
	}

	playlistURL, err := DiscoverPlaylist(page, s.locator, s.cfg.Parser.PlaylistSelector, s.cfg.Parser.PlaylistAttribute)
	if err != nil {
		return nil, s.fail("discover playlist", err)
	}
	s.logger.Debug("playlist discovered", "playlist_url", playlistURL.String())

	full, err := FetchPlaylist(ctx, s.playlistFetcher, playlistURL)
	if err != nil {
		return nil, s.fail("fetch playlist", err)
	}
	s.metrics.PlaylistsFetched.Add(1)

	rec := Simplify(full, s.cfg.Story.ExcludedKeys)
	uid := rec.UID()
	if uid == "" {
		return nil, s.fail("read uid", &types.ParseError{URL: playlistURL.String(), Err: types.ErrMissingUID})
	}

	renditions, err := BuildRenditions(rec, page.Request.URL)
	if err != nil {
		return nil, s.fail("build renditions", &types.ParseError{URL: playlistURL.String(), Err: err})
	}

	story := &types.Story{
		SourceURL:  rawURL,
		UID:        uid,
		Title:      rec.Title(),
		Record:     rec,
		Transcript: transcript,
		Renditions: renditions,
	}

	s.logger.Info("scrape complete",
		"uid", story.UID,
		"title", story.Title,
		"renditions", renditions.Labels(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return story, nil
}

// SaveOptions controls what Save writes.
type SaveOptions struct {
	// Root must be an existing directory; the story directory goes under it.
	Root string

	// Renditions are downloaded in this order. Empty means the configured
	// story.renditions.
	Renditions []string

	// Audio enables MP3 extraction from AudioRendition.
	Audio bool

	// AudioRendition defaults to the last entry of Renditions.
	AudioRendition string
}

// Result describes what Save produced.
type Result struct {
	Story     *types.Story
	Paths     types.Paths
	Downloads []*media.DownloadResult
	AudioPath string
}

// Save writes the story metadata and transcript, downloads the requested
// renditions and optionally extracts audio. Every requested label is checked
// against the story before anything is written.
func (s *Scraper) Save(ctx context.Context, story *types.Story, opts SaveOptions) (*Result, error) {
	if err := config.ValidateRoot(opts.Root); err != nil {
		return nil, err
	}
	renditions := opts.Renditions
	if len(renditions) == 0 {
		renditions = s.cfg.Story.Renditions
	}
	for _, label := range renditions {
		if _, ok := story.Renditions[label]; !ok {
			return nil, fmt.Errorf("%w: %q (available: %v)", types.ErrUnknownRendition, label, story.Renditions.Labels())
		}
	}

	audioLabel := opts.AudioRendition
	if opts.Audio {
		if audioLabel == "" {
			audioLabel = renditions[len(renditions)-1]
		}
		if !containsLabel(renditions, audioLabel) {
			return nil, fmt.Errorf("%w: audio source %q is not among the requested renditions", types.ErrUnknownRendition, audioLabel)
		}
	}

	paths, err := types.DerivePaths(opts.Root, story.UID, renditions)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(paths.Dir, 0o755); err != nil {
		return nil, &types.StorageError{Backend: "file", Err: fmt.Errorf("create story dir: %w", err)}
	}

	result := &Result{Story: story, Paths: paths}

	if err := s.storage.Store(ctx, story, paths); err != nil {
		return result, s.fail("store story", err)
	}
	s.metrics.RecordsStored.Add(1)

	jobs := make([]media.Job, 0, len(renditions))
	for _, label := range renditions {
		dest, _ := paths.Video(label)
		jobs = append(jobs, media.Job{Rendition: label, URL: story.Renditions[label], Path: dest})
	}

	downloads, err := s.downloader.DownloadAll(ctx, jobs)
	result.Downloads = downloads
	if err != nil {
		return result, s.fail("download renditions", err)
	}

	if opts.Audio {
		src, _ := paths.Video(audioLabel)
		if err := s.audio.Extract(ctx, src, paths.Audio); err != nil {
			return result, s.fail("extract audio", err)
		}
		s.metrics.AudioExtracted.Add(1)
		result.AudioPath = paths.Audio
	}

	s.logger.Info("story saved",
		"uid", story.UID,
		"dir", paths.Dir,
		"videos", len(downloads),
		"audio", result.AudioPath != "",
	)
	return result, nil
}

// Close releases the fetchers and the storage backend.
func (s *Scraper) Close() error {
	var errs []error
	if s.pageFetcher != nil {
		errs = append(errs, s.pageFetcher.Close())
	}
	if s.playlistFetcher != nil && s.playlistFetcher != s.pageFetcher {
		errs = append(errs, s.playlistFetcher.Close())
	}
	if s.storage != nil {
		errs = append(errs, s.storage.Close())
	}
	return errors.Join(errs...)
}

func (s *Scraper) fail(stage string, err error) error {
	var fe *types.FetchError
	var pe *types.ParseError
	switch {
	case errors.As(err, &fe):
		s.metrics.FetchFailures.Add(1)
	case errors.As(err, &pe):
		s.metrics.ParseFailures.Add(1)
	}
	s.logger.Error("pipeline stage failed", "stage", stage, "error", err)
	return fmt.Errorf("%s: %w", stage, err)
}

func containsLabel(labels []string, want string) bool {
	for _, l := range labels {
		if l == want {
			return true
		}
	}
	return false
}
