package spectral

import (
	"math"
)

// Slaney mel scale: linear below 1 kHz, logarithmic above
const (
	melFSp        = 200.0 / 3
	melMinLogHz   = 1000.0
	melMinLogMel  = melMinLogHz / melFSp
	melLogStep    = 0.06875177742094912 // log(6.4) / 27
	DefaultNumMel = 128
)

// MelScale provides mel frequency conversion utilities
type MelScale struct{}

// NewMelScale creates a converter using the Slaney mel scale
func NewMelScale() *MelScale {
	return &MelScale{}
}

// HzToMel converts frequency in Hz to mel scale
func (ms *MelScale) HzToMel(hz float64) float64 {
	if hz < melMinLogHz {
		return hz / melFSp
	}
	return melMinLogMel + math.Log(hz/melMinLogHz)/melLogStep
}

// MelToHz converts mel scale to frequency in Hz
func (ms *MelScale) MelToHz(mel float64) float64 {
	if mel < melMinLogMel {
		return mel * melFSp
	}
	return melMinLogHz * math.Exp(melLogStep*(mel-melMinLogMel))
}

// CreateMelFilterBank creates an area-normalized triangular filter bank
// (numFilters x fftSize/2+1). Filter edges are placed on continuous
// frequencies rather than rounded to FFT bins, so narrow low filters are not
// lost at small FFT sizes.
func (ms *MelScale) CreateMelFilterBank(numFilters int, fftSize int, sampleRate int, lowFreq, highFreq float64) [][]float64 {
	if numFilters <= 0 || fftSize <= 0 || sampleRate <= 0 {
		return nil
	}
	if highFreq <= 0 {
		highFreq = float64(sampleRate) / 2
	}

	lowMel := ms.HzToMel(lowFreq)
	highMel := ms.HzToMel(highFreq)

	hzPoints := make([]float64, numFilters+2)
	melStep := (highMel - lowMel) / float64(numFilters+1)
	for i := range hzPoints {
		hzPoints[i] = ms.MelToHz(lowMel + float64(i)*melStep)
	}

	numBins := fftSize/2 + 1
	fftFreqs := make([]float64, numBins)
	for k := range fftFreqs {
		fftFreqs[k] = float64(k) * float64(sampleRate) / float64(fftSize)
	}

	filterBank := make([][]float64, numFilters)
	for m := range filterBank {
		filterBank[m] = make([]float64, numBins)
		left, center, right := hzPoints[m], hzPoints[m+1], hzPoints[m+2]
		norm := 2.0 / (right - left)

		for k, f := range fftFreqs {
			lower := (f - left) / (center - left)
			upper := (right - f) / (right - center)
			w := math.Max(0, math.Min(lower, upper))
			filterBank[m][k] = w * norm
		}
	}

	return filterBank
}

// ApplyFilterBank applies a mel filter bank to a power spectrum
func (ms *MelScale) ApplyFilterBank(powerSpectrum []float64, filterBank [][]float64) []float64 {
	if len(filterBank) == 0 || len(powerSpectrum) == 0 {
		return []float64{}
	}

	melSpectrum := make([]float64, len(filterBank))
	for i, filter := range filterBank {
		sum := 0.0
		for j := 0; j < len(filter) && j < len(powerSpectrum); j++ {
			sum += powerSpectrum[j] * filter[j]
		}
		melSpectrum[i] = sum
	}

	return melSpectrum
}

// PowerToDB converts a Time x Band power spectrogram to decibels in place
// relative to 1.0. Values are floored at amin and the dynamic range is
// limited to topDB below the global peak (topDB <= 0 disables the limit).
func PowerToDB(spec [][]float64, amin, topDB float64) [][]float64 {
	peak := math.Inf(-1)
	for _, frame := range spec {
		for i, p := range frame {
			db := 10.0 * math.Log10(math.Max(amin, p))
			frame[i] = db
			peak = math.Max(peak, db)
		}
	}

	if topDB > 0 {
		floor := peak - topDB
		for _, frame := range spec {
			for i, db := range frame {
				if db < floor {
					frame[i] = floor
				}
			}
		}
	}
	return spec
}
