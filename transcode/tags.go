package transcode

import (
	"fmt"
	"os"

	"github.com/dhowden/tag"
)

// Tags is the descriptive metadata embedded in an audio file
type Tags struct {
	Title    string
	Artist   string
	Album    string
	Genre    string
	FileType string
}

// ReadTags reads ID3, Vorbis comment or MP4 metadata from filename. Files
// without any tags return tag.ErrNoTagsFound.
func ReadTags(filename string) (*Tags, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("read tags: %w", err)
	}

	return &Tags{
		Title:    m.Title(),
		Artist:   m.Artist(),
		Album:    m.Album(),
		Genre:    m.Genre(),
		FileType: string(m.FileType()),
	}, nil
}

func (t *Tags) applyTo(m *StreamMetadata) {
	if t == nil || m == nil {
		return
	}
	m.Title = t.Title
	m.Artist = t.Artist
	m.Album = t.Album
	m.Genre = t.Genre
}
