// Package audiolib provides the signal analysis primitives used by the
// feature extractor: decoding, beat tracking, chroma, RMS, onset strength,
// predominant local pulse and spectral centroid. Frame parameters follow the
// usual music-information-retrieval defaults (2048-point frames, 512-sample
// hop, centred frames).
package audiolib

import (
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-mood/algorithms/chroma"
	"github.com/RyanBlaney/sonido-mood/algorithms/spectral"
	"github.com/RyanBlaney/sonido-mood/algorithms/temporal"
	"github.com/RyanBlaney/sonido-mood/algorithms/tonal"
	"github.com/RyanBlaney/sonido-mood/logging"
	"github.com/RyanBlaney/sonido-mood/transcode"
)

// Library implements the analysis primitives. It holds no per-call state
// and is safe for concurrent use.
type Library struct {
	decoder *transcode.Decoder
	logger  logging.Logger
}

// New creates a library that loads files through decoder
func New(decoder *transcode.Decoder) *Library {
	if decoder == nil {
		decoder = transcode.NewDecoder(nil)
	}
	return &Library{
		decoder: decoder,
		logger: logging.WithFields(logging.Fields{
			"component": "audiolib",
		}),
	}
}

// Load decodes path at targetSR, downmixed to one channel when mono is set,
// keeping at most maxDuration of audio (0 keeps everything)
func (l *Library) Load(path string, targetSR int, mono bool, maxDuration time.Duration) ([]float64, int, error) {
	channels := 0
	if mono {
		channels = 1
	}

	data, err := l.decoder.WithTarget(targetSR, channels, maxDuration).DecodeFile(path)
	if err != nil {
		return nil, 0, err
	}
	if len(data.PCM) == 0 {
		return nil, 0, fmt.Errorf("no audio samples decoded")
	}

	if m := data.Metadata; m != nil {
		l.logger.Debug("Loaded audio", logging.Fields{
			"path":     path,
			"backend":  m.Backend,
			"codec":    m.Codec,
			"duration": data.Duration.Seconds(),
			"title":    m.Title,
			"artist":   m.Artist,
			"genre":    m.Genre,
		})
	}
	return data.PCM, data.SampleRate, nil
}

// BeatTrack estimates the global tempo in BPM. Audio without any onset
// energy has tempo 0.
func (l *Library) BeatTrack(samples []float64, sr int) (float64, error) {
	envelope, err := l.OnsetStrength(samples, sr)
	if err != nil {
		return 0, err
	}
	return temporal.NewTempoEstimation(sr, spectral.DefaultHopSize).EstimateTempo(envelope), nil
}

// Chroma computes the 12 x T STFT chromagram
func (l *Library) Chroma(samples []float64, sr int) (tonal.ChromaMatrix, error) {
	c, err := chroma.NewChromaSTFTDefault(sr).Compute(samples, spectral.DefaultFFTSize, spectral.DefaultHopSize)
	if err != nil {
		return nil, err
	}
	return tonal.ChromaMatrix(c), nil
}

// RMS computes frame-wise root mean square energy
func (l *Library) RMS(samples []float64) ([]float64, error) {
	return temporal.NewDefaultEnvelope().ComputeRMS(samples)
}

// OnsetStrength computes the mel spectral flux onset envelope
func (l *Library) OnsetStrength(samples []float64, sr int) ([]float64, error) {
	return temporal.NewOnsetDetection(sr).OnsetStrength(samples)
}

// PredominantPulse computes the PLP curve of an onset envelope, values in [0, 1]
func (l *Library) PredominantPulse(onsetEnvelope []float64, sr int) ([]float64, error) {
	return temporal.NewPredominantPulse(sr, spectral.DefaultHopSize).Compute(onsetEnvelope)
}

// SpectralCentroid computes the per-frame spectral centroid in Hz
func (l *Library) SpectralCentroid(samples []float64, sr int) ([]float64, error) {
	stftResult, err := spectral.NewSTFT().Compute(samples, spectral.DefaultFFTSize, spectral.DefaultHopSize, sr)
	if err != nil {
		return nil, err
	}
	return spectral.NewSpectralCentroid(sr, spectral.DefaultFFTSize).ComputeFrames(stftResult.Magnitude), nil
}
