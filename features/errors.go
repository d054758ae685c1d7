package features

import (
	"errors"
	"fmt"
)

var (
	// ErrDependencyMissing means the configured decoding backend cannot run.
	// It is reported before any file is touched.
	ErrDependencyMissing = errors.New("analysis dependency unavailable")

	// ErrInputMissing means no file identifiers were supplied
	ErrInputMissing = errors.New("No files provided")
)

// Analysis stages, used as the prefix of per-file error messages
const (
	StageLoad             = "load"
	StageBeatTrack        = "beat_track"
	StageChroma           = "chroma"
	StageRMS              = "rms"
	StageOnsetStrength    = "onset_strength"
	StagePredominantPulse = "predominant_pulse"
	StageSpectralCentroid = "spectral_centroid"
)

// FileError is a failure confined to one file's analysis
type FileError struct {
	Path  string
	Stage string
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}
