// Package features turns one audio file into tempo, key, energy,
// danceability, valence and mood.
package features

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/RyanBlaney/sonido-mood/algorithms/common"
	"github.com/RyanBlaney/sonido-mood/algorithms/tonal"
	"github.com/RyanBlaney/sonido-mood/logging"
)

// Calibration constants
const (
	TargetSampleRate = 22050
	MaxDuration      = 180 * time.Second

	// mean RMS mapped to energy 1.0
	EnergyNormalization = 0.15
	// mean spectral centroid (Hz) mapped to valence 1.0
	ValenceNormalization = 5000.0
)

// Library is the set of signal analysis primitives the extractor needs
type Library interface {
	Load(path string, targetSR int, mono bool, maxDuration time.Duration) ([]float64, int, error)
	BeatTrack(samples []float64, sr int) (float64, error)
	Chroma(samples []float64, sr int) (tonal.ChromaMatrix, error)
	RMS(samples []float64) ([]float64, error)
	OnsetStrength(samples []float64, sr int) ([]float64, error)
	PredominantPulse(onsetEnvelope []float64, sr int) ([]float64, error)
	SpectralCentroid(samples []float64, sr int) ([]float64, error)
}

// Extractor computes the descriptors of a file. It keeps no per-call state,
// so one Extractor may serve many goroutines.
type Extractor struct {
	lib    Library
	keys   *tonal.KeyDetector
	logger logging.Logger
}

// Option configures an Extractor
type Option func(*Extractor)

// WithKeyDetector replaces the default Krumhansl-Schmuckler detector
func WithKeyDetector(kd *tonal.KeyDetector) Option {
	return func(e *Extractor) {
		if kd != nil {
			e.keys = kd
		}
	}
}

// WithLogger sets the logger, the global logger is used otherwise
func WithLogger(logger logging.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExtractor creates an extractor over lib
func NewExtractor(lib Library, opts ...Option) *Extractor {
	e := &Extractor{
		lib:    lib,
		keys:   tonal.NewKeyDetectorForProfile(tonal.KeyProfileKrumhansl),
		logger: logging.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithFields(logging.Fields{
		"component": "feature_extractor",
	})
	return e
}

// descriptors before output rounding
type descriptors struct {
	bpm          float64
	key          tonal.KeyEstimate
	energy       float64
	danceability float64
	valence      float64
}

// Analyze never returns an error: every failure, including a panic inside a
// primitive, becomes a failed result whose message is "<stage>: <cause>".
func (e *Extractor) Analyze(path string) AnalysisResult {
	logger := e.logger.WithFields(logging.Fields{
		"function": "Analyze",
		"path":     path,
	})
	start := time.Now()

	d, err := e.extract(path, logger)
	if err != nil {
		logger.Error(err, "Analysis failed")
		return NewFailure(err.Error())
	}

	mood := ClassifyMood(d.energy, d.valence, d.bpm)

	logger.Debug("Analysis completed", logging.Fields{
		"bpm":             d.bpm,
		"key":             d.key.Name,
		"key_correlation": d.key.Correlation,
		"energy":          d.energy,
		"danceability":    d.danceability,
		"valence":         d.valence,
		"mood":            mood,
		"elapsed":         time.Since(start).Seconds(),
	})

	return NewSuccess(
		common.Round(d.bpm, 1),
		d.key.Name,
		common.Round(d.energy, 3),
		common.Round(d.danceability, 3),
		common.Round(d.valence, 3),
		mood,
	)
}

func (e *Extractor) extract(path string, logger logging.Logger) (descriptors, error) {
	var (
		d       descriptors
		samples []float64
		sr      int
	)

	err := e.stage(path, StageLoad, logger, func() (err error) {
		samples, sr, err = e.lib.Load(path, TargetSampleRate, true, MaxDuration)
		return err
	})
	if err != nil {
		return d, err
	}

	err = e.stage(path, StageBeatTrack, logger, func() (err error) {
		d.bpm, err = e.lib.BeatTrack(samples, sr)
		if err == nil && (math.IsNaN(d.bpm) || math.IsInf(d.bpm, 0)) {
			err = fmt.Errorf("non-finite tempo %v", d.bpm)
		}
		return err
	})
	if err != nil {
		return d, err
	}

	err = e.stage(path, StageChroma, logger, func() error {
		chroma, err := e.lib.Chroma(samples, sr)
		if err != nil {
			return err
		}
		if err := chroma.Validate(); err != nil {
			return err
		}
		d.key = e.keys.EstimateKey(chroma)
		return nil
	})
	if err != nil {
		return d, err
	}

	err = e.stage(path, StageRMS, logger, func() error {
		rms, err := e.lib.RMS(samples)
		if err != nil {
			return err
		}
		d.energy = common.Unit(common.Mean(rms) / EnergyNormalization)
		return nil
	})
	if err != nil {
		return d, err
	}

	var onset []float64
	err = e.stage(path, StageOnsetStrength, logger, func() (err error) {
		onset, err = e.lib.OnsetStrength(samples, sr)
		return err
	})
	if err != nil {
		return d, err
	}

	err = e.stage(path, StagePredominantPulse, logger, func() error {
		pulse, err := e.lib.PredominantPulse(onset, sr)
		if err != nil {
			return err
		}
		d.danceability = common.Unit(common.Mean(pulse))
		return nil
	})
	if err != nil {
		return d, err
	}

	err = e.stage(path, StageSpectralCentroid, logger, func() error {
		centroid, err := e.lib.SpectralCentroid(samples, sr)
		if err != nil {
			return err
		}
		d.valence = common.Unit(common.Mean(centroid) / ValenceNormalization)
		return nil
	})
	return d, err
}

// stage runs fn, turning an error or a panic into a *FileError for the stage
func (e *Extractor) stage(path, name string, logger logging.Logger, fn func() error) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &FileError{Path: path, Stage: name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := fn(); err != nil {
		var fe *FileError
		if errors.As(err, &fe) {
			return fe
		}
		return &FileError{Path: path, Stage: name, Err: err}
	}

	logger.Debug("Stage completed", logging.Fields{
		"stage":   name,
		"elapsed": time.Since(start).Seconds(),
	})
	return nil
}
