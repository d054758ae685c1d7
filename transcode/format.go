package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

// Format is a container format the native backend understands
type Format string

const (
	FormatWAV  Format = "wav"
	FormatFLAC Format = "flac"
	FormatMP3  Format = "mp3"
)

// ErrUnsupportedFormat is returned by the native backend for containers it
// cannot decode (Ogg, MP4 and anything unrecognised)
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// DetectFormat sniffs the container of r and rewinds it. RIFF/WAVE and fLaC
// magic are checked directly; everything else goes through tag.Identify,
// which recognises ID3-tagged MP3 among others. Untagged MP3 streams are
// recognised by their frame sync word, with the file extension as a last
// resort.
func DetectFormat(r io.ReadSeeker, filename string) (Format, error) {
	head := make([]byte, 12)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("read header: %w", err)
	}
	head = head[:n]
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind: %w", err)
	}

	switch {
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return FormatWAV, nil
	case len(head) >= 4 && bytes.Equal(head[0:4], []byte("fLaC")):
		return FormatFLAC, nil
	}

	_, fileType, idErr := tag.Identify(r)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind: %w", err)
	}
	if idErr == nil {
		switch fileType {
		case tag.MP3:
			return FormatMP3, nil
		case tag.FLAC:
			return FormatFLAC, nil
		default:
			return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, fileType)
		}
	}

	if len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0 {
		return FormatMP3, nil
	}
	if strings.EqualFold(filepath.Ext(filename), ".mp3") {
		return FormatMP3, nil
	}

	return "", ErrUnsupportedFormat
}
