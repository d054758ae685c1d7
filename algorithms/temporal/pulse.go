package temporal

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/RyanBlaney/sonido-mood/algorithms/spectral"
)

// Pulse tracking defaults
const (
	DefaultPulseMinTempo = 30.0
	DefaultPulseMaxTempo = 300.0
)

// PredominantPulse estimates the predominant local pulse (PLP) curve of an
// onset envelope. For every frame the strongest periodicity of a Fourier
// tempogram within the tempo range is kept as a unit-amplitude sinusoid; the
// sinusoids are overlap-added back into a curve that peaks on the beat.
type PredominantPulse struct {
	sampleRate int
	hopSize    int
	winLength  int
	minTempo   float64
	maxTempo   float64
	window     []float64
	stft       *spectral.STFT
	fft        *spectral.FFT
}

// NewPredominantPulse creates a PLP estimator for envelopes sampled every
// hopSize samples
func NewPredominantPulse(sampleRate, hopSize int) *PredominantPulse {
	return &PredominantPulse{
		sampleRate: sampleRate,
		hopSize:    hopSize,
		winLength:  DefaultTempogramWindow,
		minTempo:   DefaultPulseMinTempo,
		maxTempo:   DefaultPulseMaxTempo,
		window:     spectral.PeriodicHann(DefaultTempogramWindow),
		stft:       spectral.NewSTFT(),
		fft:        spectral.NewFFT(),
	}
}

// Compute returns a pulse curve the same length as onsetEnvelope with values
// in [0, 1]. A silent envelope gives an all-zero curve.
func (pp *PredominantPulse) Compute(onsetEnvelope []float64) ([]float64, error) {
	n := len(onsetEnvelope)
	if n == 0 {
		return nil, fmt.Errorf("empty onset envelope")
	}

	tempogram, err := pp.stft.Compute(onsetEnvelope, pp.winLength, 1, pp.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("fourier tempogram: %w", err)
	}

	// bin k of the tempogram oscillates at k * binBPM beats per minute
	binBPM := 60.0 * float64(pp.sampleRate) / float64(pp.hopSize) / float64(pp.winLength)
	lo := int(math.Ceil(pp.minTempo / binBPM))
	hi := min(int(math.Floor(pp.maxTempo/binBPM)), tempogram.FreqBins-1)

	pad := pp.winLength / 2
	pulse := make([]float64, n+2*pad)
	envelope := make([]float64, n+2*pad)
	spectrum := make([]complex128, pp.winLength)

	for t, frame := range tempogram.Complex {
		keepPeakBins(frame, spectrum, lo, hi)

		// overlap-add with the Hann synthesis window
		segment := pp.fft.ComputeInverseReal(spectrum)
		for i, w := range pp.window {
			pulse[t+i] += segment[i] * w
			envelope[t+i] += w * w
		}
	}

	out := make([]float64, n)
	peak := 0.0
	for i := range out {
		v := pulse[pad+i]
		if e := envelope[pad+i]; e > 1e-12 {
			v /= e
		}
		v = math.Max(v, 0)
		out[i] = v
		peak = math.Max(peak, v)
	}

	if peak > 0 {
		for i := range out {
			out[i] /= peak
		}
	}
	return out, nil
}

// keepPeakBins fills spectrum with the bins of frame in [lo, hi] whose
// magnitude equals the frame peak, scaled to unit magnitude, plus their
// conjugate mirrors. Every bin tied at the peak is kept. All other bins
// are zero.
func keepPeakBins(frame, spectrum []complex128, lo, hi int) {
	clear(spectrum)
	n := len(spectrum)

	peakMag := 0.0
	for k := lo; k <= hi; k++ {
		peakMag = math.Max(peakMag, cmplx.Abs(frame[k]))
	}
	if peakMag == 0 {
		return
	}

	for k := lo; k <= hi; k++ {
		if cmplx.Abs(frame[k]) < peakMag {
			continue
		}
		c := frame[k] / complex(peakMag, 0)
		spectrum[k] = c
		if k != 0 && 2*k != n {
			spectrum[n-k] = cmplx.Conj(c)
		}
	}
}
