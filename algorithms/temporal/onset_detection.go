package temporal

import (
	"fmt"

	"github.com/RyanBlaney/sonido-mood/algorithms/spectral"
)

const (
	onsetAmin  = 1e-10
	onsetTopDB = 80.0
)

// OnsetDetection computes an onset strength envelope from the log-power mel
// spectrogram (spectral flux on a perceptual frequency axis)
type OnsetDetection struct {
	sampleRate int
	fftSize    int
	hopSize    int
	stft       *spectral.STFT
	melScale   *spectral.MelScale
	flux       *spectral.SpectralFlux
	filterBank [][]float64
}

// NewOnsetDetection creates an onset detector using 128 mel bands, 2048/512
// framing and a lag of one frame
func NewOnsetDetection(sampleRate int) *OnsetDetection {
	ms := spectral.NewMelScale()
	return &OnsetDetection{
		sampleRate: sampleRate,
		fftSize:    spectral.DefaultFFTSize,
		hopSize:    spectral.DefaultHopSize,
		stft:       spectral.NewSTFT(),
		melScale:   ms,
		flux:       spectral.NewSpectralFlux(1),
		filterBank: ms.CreateMelFilterBank(spectral.DefaultNumMel, spectral.DefaultFFTSize, sampleRate, 0, float64(sampleRate)/2),
	}
}

// OnsetStrength returns one value per STFT frame. Frames whose difference
// would reach before the start of the signal are 0; the envelope is delayed
// by half a window so each value lines up with the frame where the energy
// rise is centred.
func (od *OnsetDetection) OnsetStrength(signal []float64) ([]float64, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}

	stftResult, err := od.stft.Compute(signal, od.fftSize, od.hopSize, od.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("stft: %w", err)
	}

	power := stftResult.Power()
	melSpec := make([][]float64, len(power))
	for t, frame := range power {
		melSpec[t] = od.melScale.ApplyFilterBank(frame, od.filterBank)
	}
	spectral.PowerToDB(melSpec, onsetAmin, onsetTopDB)

	flux := od.flux.ComputeMean(melSpec)

	numFrames := stftResult.TimeFrames
	envelope := make([]float64, numFrames)
	offset := od.flux.Lag() + od.fftSize/(2*od.hopSize)
	for i, v := range flux {
		if offset+i >= numFrames {
			break
		}
		envelope[offset+i] = v
	}

	return envelope, nil
}

// HopSize returns the hop between envelope frames in samples
func (od *OnsetDetection) HopSize() int {
	return od.hopSize
}
