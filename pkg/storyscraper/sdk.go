// Package storyscraper provides a public SDK for embedding StoryScraper as a library.
//
// Example usage:
//
//	archiver := storyscraper.NewArchiver(
//	    storyscraper.WithOutput("./stories"),
//	    storyscraper.WithRenditions("ld", "hd"),
//	    storyscraper.WithAudio(""),
//	)
//	defer archiver.Close()
//
//	result, err := archiver.Archive(ctx, "https://news.example.com/story/42")
package storyscraper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/IshaanNene/storyscraper/internal/config"
	"github.com/IshaanNene/storyscraper/internal/media"
	"github.com/IshaanNene/storyscraper/internal/story"
	"github.com/IshaanNene/storyscraper/internal/types"
)

// Story is a scraped story: simplified record, transcript and rendition URLs.
type Story = types.Story

// Result describes the files written for one story.
type Result = story.Result

// Pacer decides how long to wait between two video downloads.
type Pacer = media.Pacer

// NoPacer downloads back to back.
type NoPacer = media.NoPacer

// Archiver is the high-level API for using StoryScraper as a library.
type Archiver struct {
	cfg     *config.Config
	logger  *slog.Logger
	scraper *story.Scraper
	extra   []story.Option
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithOutput sets the existing root directory stories are written under.
func WithOutput(root string) Option {
	return func(a *Archiver) { a.cfg.Storage.Root = root }
}

// WithRenditions sets the rendition labels to download, in order.
func WithRenditions(labels ...string) Option {
	return func(a *Archiver) { a.cfg.Story.Renditions = labels }
}

// WithAudio enables MP3 extraction. An empty rendition means the last
// requested one.
func WithAudio(rendition string) Option {
	return func(a *Archiver) {
		a.cfg.Audio.Enabled = true
		a.cfg.Audio.Rendition = rendition
	}
}

// WithInterval sets the pause between video downloads.
func WithInterval(d time.Duration) Option {
	return func(a *Archiver) { a.cfg.Download.Interval = d }
}

// WithUserAgent sets a custom User-Agent.
func WithUserAgent(ua string) Option {
	return func(a *Archiver) { a.cfg.Fetcher.UserAgents = []string{ua} }
}

// WithProxy routes page and playlist requests through a proxy.
func WithProxy(proxyURL string) Option {
	return func(a *Archiver) { a.cfg.Fetcher.Proxy = proxyURL }
}

// WithBrowser renders the story page in a headless browser.
func WithBrowser(stealth bool) Option {
	return func(a *Archiver) {
		a.cfg.Fetcher.Type = "browser"
		a.cfg.Fetcher.Stealth = stealth
	}
}

// WithXPath switches page lookups to XPath expressions.
func WithXPath(transcript, player string) Option {
	return func(a *Archiver) {
		a.cfg.Parser.SelectorType = "xpath"
		a.cfg.Parser.TranscriptSelector = transcript
		a.cfg.Parser.PlaylistSelector = player
	}
}

// WithPacer replaces the fixed interval between downloads.
func WithPacer(p Pacer) Option {
	return func(a *Archiver) { a.extra = append(a.extra, story.WithPacer(p)) }
}

// WithLogger sets the logger used by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archiver) { a.logger = logger }
}

// WithVerbose enables debug-level logging.
func WithVerbose() Option {
	return func(a *Archiver) { a.cfg.Logging.Level = "debug" }
}

// NewArchiver creates a new Archiver with the given options.
func NewArchiver(opts ...Option) *Archiver {
	a := &Archiver{cfg: config.DefaultConfig()}
	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		level := slog.LevelInfo
		if a.cfg.Logging.Level == "debug" {
			level = slog.LevelDebug
		}
		a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return a
}

func (a *Archiver) init() error {
	if a.scraper != nil {
		return nil
	}
	s, err := story.New(a.cfg, a.logger, a.extra...)
	if err != nil {
		return err
	}
	a.scraper = s
	return nil
}

// Scrape fetches the story without writing anything.
func (a *Archiver) Scrape(ctx context.Context, rawURL string) (*Story, error) {
	if err := config.ValidateURL(rawURL); err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if err := a.init(); err != nil {
		return nil, err
	}
	return a.scraper.Scrape(ctx, rawURL)
}

// Archive scrapes rawURL and writes metadata, transcript, videos and
// optional audio under the output root.
func (a *Archiver) Archive(ctx context.Context, rawURL string) (*Result, error) {
	s, err := a.Scrape(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return a.scraper.Save(ctx, s, story.SaveOptions{
		Root:           a.cfg.Storage.Root,
		Renditions:     a.cfg.Story.Renditions,
		Audio:          a.cfg.Audio.Enabled,
		AudioRendition: a.cfg.Audio.Rendition,
	})
}

// Stats returns pipeline counters.
func (a *Archiver) Stats() map[string]int64 {
	if a.scraper != nil {
		return a.scraper.Metrics().Snapshot()
	}
	return nil
}

// Close releases fetchers and storage.
func (a *Archiver) Close() error {
	if a.scraper != nil {
		return a.scraper.Close()
	}
	return nil
}
