// Package track reads display metadata (title/artist/album/genre/year) off
// an audio file's ID3/Vorbis/MP4 tags. It is what is left of the original
// track-library scanner once the filesystem crawler and time-of-day
// scheduling around it were dropped as out of scope: a LivePlayer only
// needs *something* to log when it opens a track, not a library to browse.
package track

import (
	"log/slog"
	"os"

	"github.com/dhowden/tag"
)

// Metadata is the subset of tag fields a LivePlayer surfaces when it opens
// a track, mirrored from original_source's track extraction.
type Metadata struct {
	Title  string
	Artist string
	Album  string
	Genre  string
	Year   int
}

// Probe reads tag metadata from the file at path. If tags are absent or
// unreadable, it returns a zero Metadata and a nil error: a missing tag is
// not a failure condition for playback, callers fall back to their own
// display name.
func Probe(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		slog.Debug("no readable tags", "path", path, "error", err)
		return Metadata{}, nil
	}

	return Metadata{
		Title:  m.Title(),
		Artist: m.Artist(),
		Album:  m.Album(),
		Genre:  m.Genre(),
		Year:   m.Year(),
	}, nil
}
