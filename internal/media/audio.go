package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/IshaanNene/storyscraper/internal/types"
)

// DefaultAudioBitrate is the default bitrate for audio extraction.
const DefaultAudioBitrate = "192k"

// CommandRunner runs external commands. Tests substitute a fake.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecCommandRunner is the production implementation using os/exec.
type ExecCommandRunner struct{}

// Run executes a command and returns any error.
func (r *ExecCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Output executes a command and returns its output.
func (r *ExecCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// AudioExtractor writes the audio track of a video to an mp3 using ffmpeg.
type AudioExtractor struct {
	ffmpegPath string
	bitrate    string
	runner     CommandRunner
	logger     *slog.Logger
}

// AudioOption configures an AudioExtractor.
type AudioOption func(*AudioExtractor)

// WithFFmpegPath sets a custom ffmpeg executable path.
func WithFFmpegPath(path string) AudioOption {
	return func(e *AudioExtractor) {
		if path != "" {
			e.ffmpegPath = path
		}
	}
}

// WithBitrate sets the mp3 bitrate, e.g. "128k".
func WithBitrate(bitrate string) AudioOption {
	return func(e *AudioExtractor) {
		if bitrate != "" {
			e.bitrate = bitrate
		}
	}
}

// WithCommandRunner sets a custom command runner.
func WithCommandRunner(runner CommandRunner) AudioOption {
	return func(e *AudioExtractor) { e.runner = runner }
}

// NewAudioExtractor creates an ffmpeg-backed extractor.
func NewAudioExtractor(logger *slog.Logger, opts ...AudioOption) *AudioExtractor {
	e := &AudioExtractor{
		ffmpegPath: "ffmpeg",
		bitrate:    DefaultAudioBitrate,
		runner:     &ExecCommandRunner{},
		logger:     logger.With("component", "audio_extractor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract decodes src and writes its audio track to dest, overwriting dest.
// src must already exist.
func (e *AudioExtractor) Extract(ctx context.Context, src, dest string) error {
	if ok, err := fileExists(src); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", types.ErrSourceMissing, src)
	}

	args := []string{
		"-i", src,
		"-vn",
		"-acodec", "libmp3lame",
		"-ab", e.bitrate,
		"-y",
		dest,
	}

	e.logger.Info("extracting audio", "source", src, "output", dest, "bitrate", e.bitrate)
	if err := e.runner.Run(ctx, e.ffmpegPath, args...); err != nil {
		return fmt.Errorf("ffmpeg audio extraction failed: %w", err)
	}
	return nil
}

// VerifyInstalled checks that ffmpeg is available.
func (e *AudioExtractor) VerifyInstalled(ctx context.Context) error {
	if _, err := e.runner.Output(ctx, e.ffmpegPath, "-version"); err != nil {
		return fmt.Errorf("ffmpeg not found or not executable: %w", err)
	}
	return nil
}
