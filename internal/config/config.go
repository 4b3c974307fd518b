package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for storyscraper.
type Config struct {
	Fetcher  FetcherConfig  `mapstructure:"fetcher"  yaml:"fetcher"`
	Parser   ParserConfig   `mapstructure:"parser"   yaml:"parser"`
	Story    StoryConfig    `mapstructure:"story"    yaml:"story"`
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	Audio    AudioConfig    `mapstructure:"audio"    yaml:"audio"`
	Storage  StorageConfig  `mapstructure:"storage"  yaml:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"  yaml:"metrics"`
}

// FetcherConfig controls how the article page and playlist are requested.
type FetcherConfig struct {
	Type            string        `mapstructure:"type"              yaml:"type"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"   yaml:"request_timeout"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	Proxy           string        `mapstructure:"proxy"             yaml:"proxy"`
	Stealth         bool          `mapstructure:"stealth"           yaml:"stealth"`
	UserAgents      []string      `mapstructure:"user_agents"       yaml:"user_agents"`
}

// ParserConfig holds the fixed selectors used to locate page content.
type ParserConfig struct {
	SelectorType       string `mapstructure:"selector_type"       yaml:"selector_type"` // css, xpath
	TranscriptSelector string `mapstructure:"transcript_selector" yaml:"transcript_selector"`
	PlaylistSelector   string `mapstructure:"playlist_selector"   yaml:"playlist_selector"`
	PlaylistAttribute  string `mapstructure:"playlist_attribute"  yaml:"playlist_attribute"`
}

// StoryConfig controls record simplification and rendition choice.
type StoryConfig struct {
	ExcludedKeys []string `mapstructure:"excluded_keys" yaml:"excluded_keys"`
	Renditions   []string `mapstructure:"renditions"    yaml:"renditions"`
}

// DownloadConfig controls video retrieval.
type DownloadConfig struct {
	Interval  time.Duration `mapstructure:"interval"    yaml:"interval"`
	Timeout   time.Duration `mapstructure:"timeout"     yaml:"timeout"`
	MaxSizeMB int64         `mapstructure:"max_size_mb" yaml:"max_size_mb"`
}

// AudioConfig controls audio track extraction.
type AudioConfig struct {
	Enabled    bool   `mapstructure:"enabled"     yaml:"enabled"`
	Rendition  string `mapstructure:"rendition"   yaml:"rendition"` // empty = last requested rendition
	Bitrate    string `mapstructure:"bitrate"     yaml:"bitrate"`
	FFmpegPath string `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
}

// StorageConfig controls where artifacts are written.
type StorageConfig struct {
	Root  string      `mapstructure:"root"  yaml:"root"`
	Mongo MongoConfig `mapstructure:"mongo" yaml:"mongo"`
}

// MongoConfig controls the optional MongoDB record index.
type MongoConfig struct {
	Enabled    bool   `mapstructure:"enabled"    yaml:"enabled"`
	URI        string `mapstructure:"uri"        yaml:"uri"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Fetcher: FetcherConfig{
			Type:            "http",
			RequestTimeout:  30 * time.Second,
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
		},
		Parser: ParserConfig{
			SelectorType:       "css",
			TranscriptSelector: "div.video-transcript",
			PlaylistSelector:   "div.video-player[data-playlist-url]",
			PlaylistAttribute:  "data-playlist-url",
		},
		Story: StoryConfig{
			ExcludedKeys: []string{
				"poster",
				"poster_thumb",
				"has_ads",
				"embed",
				"can_embed",
				"timeline_actions",
			},
			Renditions: []string{"ld"},
		},
		Download: DownloadConfig{
			Interval:  60 * time.Second,
			Timeout:   30 * time.Minute,
			MaxSizeMB: 0,
		},
		Audio: AudioConfig{
			Enabled:    false,
			Bitrate:    "192k",
			FFmpegPath: "ffmpeg",
		},
		Storage: StorageConfig{
			Root: "./output",
			Mongo: MongoConfig{
				Enabled:    false,
				URI:        "mongodb://localhost:27017",
				Database:   "storyscraper",
				Collection: "stories",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
