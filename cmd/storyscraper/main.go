package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/storyscraper/internal/config"
	"github.com/IshaanNene/storyscraper/internal/media"
	"github.com/IshaanNene/storyscraper/internal/observability"
	"github.com/IshaanNene/storyscraper/internal/storage"
	"github.com/IshaanNene/storyscraper/internal/story"
)

var (
	cfgFile        string
	verbose        bool
	outputRoot     string
	renditions     string
	audio          bool
	audioRendition string
	interval       time.Duration
	useBrowser     bool
	userAgent      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "storyscraper",
		Short: "StoryScraper: news story transcript, metadata and video archiver",
		Long: `StoryScraper archives a single news story page.

For one article URL it saves:
  • the video transcript as prettified HTML
  • the story's playlist metadata as JSON (non-essential keys removed)
  • the requested video renditions (e.g. ld, hd), one download at a time
  • optionally an MP3 audio track extracted with ffmpeg`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// scrapeCmd creates the "scrape" subcommand.
func scrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [url]",
		Short: "Archive one story page",
		Long:  "Fetch the story page and its playlist, then write metadata, transcript, videos and optional audio under the output root.",
		Args:  cobra.ExactArgs(1),
		RunE:  runScrape,
	}

	cmd.Flags().StringVarP(&outputRoot, "output", "o", "", "existing root directory for story folders")
	cmd.Flags().StringVarP(&renditions, "renditions", "r", "", "comma-separated rendition labels to download, in order (e.g. ld,hd)")
	cmd.Flags().BoolVar(&audio, "audio", false, "extract an MP3 audio track")
	cmd.Flags().StringVar(&audioRendition, "audio-rendition", "", "rendition to extract audio from (default: last requested)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "pause between video downloads")
	cmd.Flags().BoolVar(&useBrowser, "browser", false, "render the story page in a headless browser")
	cmd.Flags().StringVar(&userAgent, "user-agent", "", "custom User-Agent string")

	return cmd
}

// runScrape executes the scrape command.
func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	applyCLIOverrides(cmd, cfg)

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := config.ValidateRoot(cfg.Storage.Root); err != nil {
		return err
	}

	rawURL := args[0]
	if err := config.ValidateURL(rawURL); err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	logger := setupLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down...", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	metrics := observability.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		if err := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			metrics.Shutdown(shutdownCtx)
		}()
	}

	var scraper *story.Scraper
	opts := []story.Option{story.WithMetrics(metrics)}
	if cfg.Audio.Enabled {
		extractor := media.NewAudioExtractor(logger,
			media.WithFFmpegPath(cfg.Audio.FFmpegPath),
			media.WithBitrate(cfg.Audio.Bitrate),
		)
		if err := extractor.VerifyInstalled(ctx); err != nil {
			return err
		}
		opts = append(opts, story.WithAudioExtractor(extractor))
	}
	if cfg.Storage.Mongo.Enabled {
		mongoStore, err := storage.NewMongoStorage(ctx,
			cfg.Storage.Mongo.URI,
			cfg.Storage.Mongo.Database,
			cfg.Storage.Mongo.Collection,
			logger,
		)
		if err != nil {
			return fmt.Errorf("create mongo storage: %w", err)
		}
		multi := storage.NewMultiStorage(
			[]storage.Storage{storage.NewFileStorage(logger), mongoStore},
			logger,
		)
		defer func() {
			if scraper == nil {
				multi.Close()
			}
		}()
		opts = append(opts, story.WithStorage(multi))
	}

	scraper, err = story.New(cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer scraper.Close()

	logger.Info("starting scrape",
		"url", rawURL,
		"root", cfg.Storage.Root,
		"renditions", cfg.Story.Renditions,
		"audio", cfg.Audio.Enabled,
		"fetcher", cfg.Fetcher.Type,
	)

	start := time.Now()
	s, err := scraper.Scrape(ctx, rawURL)
	if err != nil {
		return err
	}

	result, err := scraper.Save(ctx, s, story.SaveOptions{
		Root:           cfg.Storage.Root,
		Renditions:     cfg.Story.Renditions,
		Audio:          cfg.Audio.Enabled,
		AudioRendition: cfg.Audio.Rendition,
	})
	if err != nil {
		return err
	}

	elapsed := time.Since(start)
	stats := metrics.Snapshot()

	logger.Info("scrape complete",
		"elapsed", elapsed,
		"uid", s.UID,
		"downloaded", stats["videos_downloaded"],
		"skipped", stats["videos_skipped"],
		"bytes", stats["bytes_downloaded"],
	)

	fmt.Printf("\n✅ Story %s saved in %s\n", s.UID, elapsed.Round(time.Millisecond))
	fmt.Printf("   Title:       %s\n", s.Title)
	fmt.Printf("   Directory:   %s\n", result.Paths.Dir)
	fmt.Printf("   Metadata:    %s\n", result.Paths.Metadata)
	fmt.Printf("   Transcript:  %s\n", result.Paths.Transcript)
	for _, d := range result.Downloads {
		state := "downloaded"
		if d.Skipped {
			state = "already present"
		}
		fmt.Printf("   Video %-6s %s (%s)\n", d.Rendition+":", d.LocalPath, state)
	}
	if result.AudioPath != "" {
		fmt.Printf("   Audio:       %s\n", result.AudioPath)
	}

	return nil
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("StoryScraper %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Fetcher:\n")
			fmt.Printf("  Type:              %s\n", cfg.Fetcher.Type)
			fmt.Printf("  Request Timeout:   %s\n", cfg.Fetcher.RequestTimeout)
			fmt.Printf("  Follow Redirects:  %v\n", cfg.Fetcher.FollowRedirects)
			fmt.Printf("  Max Body Size:     %d bytes\n", cfg.Fetcher.MaxBodySize)
			fmt.Printf("  Proxy:             %s\n", orNone(cfg.Fetcher.Proxy))
			fmt.Printf("  User Agents:       %d configured\n", len(cfg.Fetcher.UserAgents))
			fmt.Printf("\nParser:\n")
			fmt.Printf("  Selector Type:     %s\n", cfg.Parser.SelectorType)
			fmt.Printf("  Transcript:        %s\n", cfg.Parser.TranscriptSelector)
			fmt.Printf("  Player:            %s [%s]\n", cfg.Parser.PlaylistSelector, cfg.Parser.PlaylistAttribute)
			fmt.Printf("\nStory:\n")
			fmt.Printf("  Renditions:        %s\n", strings.Join(cfg.Story.Renditions, ", "))
			fmt.Printf("  Excluded Keys:     %s\n", strings.Join(cfg.Story.ExcludedKeys, ", "))
			fmt.Printf("\nDownload:\n")
			fmt.Printf("  Interval:          %s\n", cfg.Download.Interval)
			fmt.Printf("  Timeout:           %s\n", cfg.Download.Timeout)
			fmt.Printf("\nAudio:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Audio.Enabled)
			fmt.Printf("  Rendition:         %s\n", orDefault(cfg.Audio.Rendition, "last requested"))
			fmt.Printf("  Bitrate:           %s\n", cfg.Audio.Bitrate)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Root:              %s\n", cfg.Storage.Root)
			fmt.Printf("  MongoDB:           %v\n", cfg.Storage.Mongo.Enabled)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			return nil
		},
	}
	return cmd
}

// setupLogger creates a structured logger.
func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// applyCLIOverrides applies command-line flag values to the config.
// Only flags set explicitly replace config values.
func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Storage.Root = outputRoot
	}
	if flags.Changed("renditions") {
		var labels []string
		for _, r := range strings.Split(renditions, ",") {
			if r = strings.TrimSpace(r); r != "" {
				labels = append(labels, r)
			}
		}
		cfg.Story.Renditions = labels
	}
	if flags.Changed("audio") {
		cfg.Audio.Enabled = audio
	}
	if flags.Changed("audio-rendition") {
		cfg.Audio.Rendition = audioRendition
	}
	if flags.Changed("interval") {
		cfg.Download.Interval = interval
	}
	if useBrowser {
		cfg.Fetcher.Type = "browser"
	}
	if userAgent != "" {
		cfg.Fetcher.UserAgents = []string{userAgent}
	}
}

func orNone(s string) string { return orDefault(s, "none") }

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
