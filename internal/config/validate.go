package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Fetcher.Type != "http" && cfg.Fetcher.Type != "browser" {
		return fmt.Errorf("fetcher.type must be 'http' or 'browser', got %q", cfg.Fetcher.Type)
	}
	if cfg.Fetcher.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher.request_timeout must be > 0")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}
	if cfg.Fetcher.Proxy != "" {
		if _, err := url.Parse(cfg.Fetcher.Proxy); err != nil {
			return fmt.Errorf("invalid proxy URL %q: %w", cfg.Fetcher.Proxy, err)
		}
	}

	if cfg.Parser.SelectorType != "css" && cfg.Parser.SelectorType != "xpath" {
		return fmt.Errorf("parser.selector_type must be 'css' or 'xpath', got %q", cfg.Parser.SelectorType)
	}
	if strings.TrimSpace(cfg.Parser.TranscriptSelector) == "" {
		return fmt.Errorf("parser.transcript_selector is required")
	}
	if strings.TrimSpace(cfg.Parser.PlaylistSelector) == "" {
		return fmt.Errorf("parser.playlist_selector is required")
	}
	if strings.TrimSpace(cfg.Parser.PlaylistAttribute) == "" {
		return fmt.Errorf("parser.playlist_attribute is required")
	}

	if len(cfg.Story.Renditions) == 0 {
		return fmt.Errorf("story.renditions must name at least one rendition")
	}
	for _, r := range cfg.Story.Renditions {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("story.renditions contains an empty label")
		}
	}

	if cfg.Download.Interval < 0 {
		return fmt.Errorf("download.interval must be >= 0")
	}
	if cfg.Download.Timeout <= 0 {
		return fmt.Errorf("download.timeout must be > 0")
	}
	if cfg.Download.MaxSizeMB < 0 {
		return fmt.Errorf("download.max_size_mb must be >= 0, got %d", cfg.Download.MaxSizeMB)
	}

	if cfg.Audio.Enabled {
		if cfg.Audio.FFmpegPath == "" {
			return fmt.Errorf("audio.ffmpeg_path is required when audio is enabled")
		}
		if cfg.Audio.Rendition != "" && !contains(cfg.Story.Renditions, cfg.Audio.Rendition) {
			return fmt.Errorf("audio.rendition %q is not among requested renditions %v", cfg.Audio.Rendition, cfg.Story.Renditions)
		}
	}

	if cfg.Storage.Mongo.Enabled {
		if cfg.Storage.Mongo.URI == "" || cfg.Storage.Mongo.Database == "" || cfg.Storage.Mongo.Collection == "" {
			return fmt.Errorf("storage.mongo requires uri, database and collection")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateRoot checks that the storage root exists and is a directory.
// The per-story directory is created beneath it, never the root itself.
func ValidateRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("storage root %q: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %q is not a directory", root)
	}
	return nil
}

// ValidateURL checks if a URL string is a valid article URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
