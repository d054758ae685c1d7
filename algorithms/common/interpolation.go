package common

import (
	"math"
)

// DefaultLanczosLobes is the kernel half-width used for resampling decoded audio
const DefaultLanczosLobes = 3

// Resampler converts signals between sample rates with a windowed-sinc
// (Lanczos) kernel. When downsampling the kernel is stretched so that it also
// acts as the anti-aliasing low-pass filter.
type Resampler struct {
	lobes float64
}

// NewResampler creates a resampler with the given number of Lanczos lobes
func NewResampler(lobes int) *Resampler {
	if lobes <= 0 {
		lobes = DefaultLanczosLobes
	}
	return &Resampler{lobes: float64(lobes)}
}

// Resample resamples signal from originalRate to targetRate. The output holds
// ceil(len(signal) * targetRate / originalRate) samples.
func (r *Resampler) Resample(signal []float64, originalRate, targetRate int) []float64 {
	if len(signal) == 0 || originalRate <= 0 || targetRate <= 0 {
		return signal
	}
	if originalRate == targetRate {
		out := make([]float64, len(signal))
		copy(out, signal)
		return out
	}

	ratio := float64(originalRate) / float64(targetRate)
	newLength := int(math.Ceil(float64(len(signal)) * float64(targetRate) / float64(originalRate)))
	if newLength <= 0 {
		return []float64{}
	}

	// cutoff relative to the input Nyquist
	cutoff := math.Min(1.0, float64(targetRate)/float64(originalRate))
	support := r.lobes / cutoff

	resampled := make([]float64, newLength)
	for i := range resampled {
		center := float64(i) * ratio
		lo := int(math.Floor(center-support)) + 1
		hi := int(math.Floor(center + support))

		sum, weights := 0.0, 0.0
		for j := lo; j <= hi; j++ {
			if j < 0 || j >= len(signal) {
				continue
			}
			w := lanczosKernel((center-float64(j))*cutoff, r.lobes)
			sum += signal[j] * w
			weights += w
		}
		if weights != 0 {
			resampled[i] = sum / weights
		}
	}

	return resampled
}

// lanczosKernel computes Lanczos kernel function
func lanczosKernel(x, a float64) float64 {
	if math.Abs(x) < 1e-10 {
		return 1.0
	}
	if math.Abs(x) >= a {
		return 0.0
	}

	px := math.Pi * x
	return (a * math.Sin(px) * math.Sin(px/a)) / (px * px)
}
