package tonal

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-mood/algorithms/common"
	"github.com/RyanBlaney/sonido-mood/algorithms/stats"
)

// DefaultKey is reported when no key candidate correlates at all
const DefaultKey = "C major"

// correlationFloor is below any valid Pearson coefficient
const correlationFloor = -2.0

// ChromaMatrix holds pitch-class energies: 12 rows (C..B) by T frames
type ChromaMatrix [][]float64

// Validate checks the matrix has 12 rows of equal, non-zero length holding
// finite non-negative values
func (c ChromaMatrix) Validate() error {
	if len(c) != len(PitchNames) {
		return fmt.Errorf("chroma matrix has %d rows, want %d", len(c), len(PitchNames))
	}
	frames := len(c[0])
	if frames == 0 {
		return fmt.Errorf("chroma matrix has no frames")
	}
	for pc, row := range c {
		if len(row) != frames {
			return fmt.Errorf("chroma row %d has %d frames, want %d", pc, len(row), frames)
		}
		for t, v := range row {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("chroma value %v at [%d][%d] is not a finite non-negative number", v, pc, t)
			}
		}
	}
	return nil
}

// Frames returns the number of frames T
func (c ChromaMatrix) Frames() int {
	if len(c) == 0 {
		return 0
	}
	return len(c[0])
}

// MeanVector averages each pitch-class row over time
func (c ChromaMatrix) MeanVector() []float64 {
	v := make([]float64, len(c))
	for pc, row := range c {
		v[pc] = common.Mean(row)
	}
	return v
}

// KeyMode represents major or minor mode
type KeyMode int

const (
	KeyModeMajor KeyMode = iota
	KeyModeMinor
)

func (m KeyMode) String() string {
	if m == KeyModeMinor {
		return "minor"
	}
	return "major"
}

// KeyEstimate is the winning key candidate
type KeyEstimate struct {
	Key         int     `json:"key"`         // Tonic pitch class (0=C, 1=C#, ..., 11=B)
	Mode        KeyMode `json:"mode"`        // Major or Minor
	Name        string  `json:"key_name"`    // e.g. "A minor"
	Correlation float64 `json:"correlation"` // Pearson coefficient of the winner, -2 if none
}

// KeyDetector implements Krumhansl-Schmuckler key finding: the time-averaged
// chroma vector is correlated against every transposition of a major and a
// minor template and the best match wins.
type KeyDetector struct {
	major PitchProfile
	minor PitchProfile
}

// NewKeyDetector creates a detector over custom major and minor templates
func NewKeyDetector(major, minor PitchProfile) *KeyDetector {
	return &KeyDetector{major: major, minor: minor}
}

// NewKeyDetectorForProfile creates a detector over a built-in profile set
func NewKeyDetectorForProfile(p KeyProfile) *KeyDetector {
	tmpl := p.Template()
	return NewKeyDetector(tmpl.Major, tmpl.Minor)
}

var defaultDetector = NewKeyDetectorForProfile(KeyProfileKrumhansl)

// DetectKey labels chroma with the default Krumhansl-Schmuckler detector
func DetectKey(chroma ChromaMatrix) string {
	return defaultDetector.DetectKey(chroma)
}

// DetectKey returns a label such as "C# minor"
func (kd *KeyDetector) DetectKey(chroma ChromaMatrix) string {
	return kd.EstimateKey(chroma).Name
}

// EstimateKey scans tonics C..B, major before minor at each tonic, and keeps
// the first candidate with the strictly highest correlation. Candidates
// whose correlation is undefined (zero-variance chroma) never win, so a
// silent or malformed matrix yields C major.
func (kd *KeyDetector) EstimateKey(chroma ChromaMatrix) KeyEstimate {
	best := KeyEstimate{
		Key:         0,
		Mode:        KeyModeMajor,
		Name:        DefaultKey,
		Correlation: correlationFloor,
	}
	if chroma.Validate() != nil {
		return best
	}

	v := chroma.MeanVector()
	for shift := range len(PitchNames) {
		for _, mode := range []KeyMode{KeyModeMajor, KeyModeMinor} {
			profile := kd.major
			if mode == KeyModeMinor {
				profile = kd.minor
			}
			rotated := profile.Rotate(shift)

			// NaN compares false, so undefined correlations are skipped
			r := stats.Pearson(v, rotated[:])
			if r > best.Correlation {
				best = KeyEstimate{
					Key:         shift,
					Mode:        mode,
					Name:        PitchNames[shift] + " " + mode.String(),
					Correlation: r,
				}
			}
		}
	}

	return best
}
