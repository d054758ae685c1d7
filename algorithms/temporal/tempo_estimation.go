package temporal

import (
	"math"

	"github.com/RyanBlaney/sonido-mood/algorithms/spectral"
	"github.com/RyanBlaney/sonido-mood/algorithms/stats"
)

// Tempo estimation defaults
const (
	DefaultTempogramWindow = 384
	DefaultStartBPM        = 120.0
	DefaultMaxTempo        = 320.0
)

// TempoEstimation estimates a global tempo from an onset strength envelope
// using an autocorrelation tempogram weighted by a log-normal tempo prior
type TempoEstimation struct {
	sampleRate int
	hopSize    int
	winLength  int
	startBPM   float64
	stdBPM     float64 // prior width in octaves
	maxTempo   float64
	window     []float64
}

// NewTempoEstimation creates a tempo estimator for envelopes sampled every
// hopSize samples
func NewTempoEstimation(sampleRate, hopSize int) *TempoEstimation {
	return &TempoEstimation{
		sampleRate: sampleRate,
		hopSize:    hopSize,
		winLength:  DefaultTempogramWindow,
		startBPM:   DefaultStartBPM,
		stdBPM:     1.0,
		maxTempo:   DefaultMaxTempo,
		window:     spectral.PeriodicHann(DefaultTempogramWindow),
	}
}

// EstimateTempo returns the tempo in BPM. An envelope without any onset
// energy has no tempo and yields 0.
func (te *TempoEstimation) EstimateTempo(onsetEnvelope []float64) float64 {
	if !hasEnergy(onsetEnvelope) {
		return 0.0
	}

	tempogram := te.meanTempogram(onsetEnvelope)

	best := -1
	bestScore := math.Inf(-1)
	for lag := 1; lag < len(tempogram); lag++ {
		bpm := te.lagToBPM(lag)
		if bpm > te.maxTempo {
			continue
		}
		z := (math.Log2(bpm) - math.Log2(te.startBPM)) / te.stdBPM
		score := math.Log1p(1e6*tempogram[lag]) - 0.5*z*z
		if score > bestScore {
			best, bestScore = lag, score
		}
	}

	if best < 0 {
		return 0.0
	}
	return te.lagToBPM(best)
}

func (te *TempoEstimation) lagToBPM(lag int) float64 {
	return 60.0 * float64(te.sampleRate) / (float64(te.hopSize) * float64(lag))
}

// meanTempogram computes the time-averaged autocorrelation tempogram. Each
// window is Hann-weighted, autocorrelated and scaled so its peak is 1.
func (te *TempoEstimation) meanTempogram(onsetEnvelope []float64) []float64 {
	padded := padLinearRamp(onsetEnvelope, te.winLength/2)
	numFrames := spectral.FrameCount(len(padded), te.winLength, 1)

	mean := make([]float64, te.winLength)
	frame := make([]float64, te.winLength)
	for t := range numFrames {
		for i, w := range te.window {
			frame[i] = padded[t+i] * w
		}

		ac := stats.Autocorrelation(frame, te.winLength)
		peak := 0.0
		for _, v := range ac {
			peak = math.Max(peak, math.Abs(v))
		}
		if peak == 0 {
			continue
		}
		for i, v := range ac {
			mean[i] += v / peak
		}
	}

	if numFrames > 0 {
		for i := range mean {
			mean[i] /= float64(numFrames)
		}
	}
	return mean
}

// padLinearRamp pads both ends with width samples that ramp linearly from 0
// to the adjacent edge value
func padLinearRamp(x []float64, width int) []float64 {
	n := len(x)
	out := make([]float64, n+2*width)
	copy(out[width:], x)
	if n == 0 || width == 0 {
		return out
	}

	first, last := x[0], x[n-1]
	for i := range width {
		out[i] = first * float64(i) / float64(width)
		out[width+n+i] = last * float64(width-1-i) / float64(width)
	}
	return out
}

func hasEnergy(x []float64) bool {
	for _, v := range x {
		if v != 0 {
			return true
		}
	}
	return false
}
