package types

import (
	"fmt"
	"path/filepath"
	"strings"
)

// AudioFilename is the fixed name of the extracted audio track.
const AudioFilename = "audio.mp3"

// Paths are the on-disk destinations for one story's artifacts.
type Paths struct {
	Dir        string
	Metadata   string
	Transcript string
	Videos     map[string]string
	Audio      string
}

// DerivePaths computes all destinations for uid under root. It is a pure
// function of its arguments: the same inputs always give the same paths.
func DerivePaths(root, uid string, labels []string) (Paths, error) {
	if err := checkUID(uid); err != nil {
		return Paths{}, err
	}

	dir := filepath.Join(root, uid)
	videos := make(map[string]string, len(labels))
	for _, label := range labels {
		videos[label] = filepath.Join(dir, VideoFilename(label))
	}

	return Paths{
		Dir:        dir,
		Metadata:   filepath.Join(dir, "metadata_"+uid+".json"),
		Transcript: filepath.Join(dir, "transcript_"+uid+".html"),
		Videos:     videos,
		Audio:      filepath.Join(dir, AudioFilename),
	}, nil
}

// VideoFilename returns the file name used for a rendition.
func VideoFilename(label string) string {
	return "video_" + label + ".mp4"
}

// Video returns the destination for a rendition label.
func (p Paths) Video(label string) (string, bool) {
	path, ok := p.Videos[label]
	return path, ok
}

// uid becomes a directory name, so anything that could escape root is refused.
func checkUID(uid string) error {
	switch {
	case strings.TrimSpace(uid) == "":
		return ErrMissingUID
	case uid == "." || uid == "..",
		strings.ContainsAny(uid, `/\`),
		strings.ContainsRune(uid, 0):
		return fmt.Errorf("%w: %q", ErrMissingUID, uid)
	}
	return nil
}
