package chroma

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-mood/algorithms/spectral"
)

// NumPitchClasses is the number of chroma bins, C through B
const NumPitchClasses = 12

// ChromaSTFT computes a chromagram from a Short-Time Fourier Transform.
// Spectral power is folded onto the 12 semitone classes (all C notes share
// one bin) using equal temperament around the tuning frequency.
type ChromaSTFT struct {
	sampleRate int
	stft       *spectral.STFT
	tuningFreq float64 // A4 frequency (default 440 Hz)
	minFreq    float64 // Minimum frequency to consider
	maxFreq    float64 // Maximum frequency to consider
}

// NewChromaSTFT creates a new STFT-based chromagram calculator
func NewChromaSTFT(sampleRate int, tuningFreq float64) *ChromaSTFT {
	return &ChromaSTFT{
		sampleRate: sampleRate,
		stft:       spectral.NewSTFT(),
		tuningFreq: tuningFreq,
		minFreq:    80.0,   // Approximate E2
		maxFreq:    8000.0, // High enough for harmonics
	}
}

// NewChromaSTFTDefault creates chromagram with standard A4=440Hz tuning
func NewChromaSTFTDefault(sampleRate int) *ChromaSTFT {
	return NewChromaSTFT(sampleRate, 440.0)
}

// Compute returns a 12 x T chromagram (rows are pitch classes, columns are
// centred frames). Each column is scaled so its largest entry is 1; silent
// columns stay zero.
func (cs *ChromaSTFT) Compute(signal []float64, windowSize, hopSize int) ([][]float64, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}

	stftResult, err := cs.stft.Compute(signal, windowSize, hopSize, cs.sampleRate)
	if err != nil {
		return nil, err
	}

	mapping := cs.calculateChromaMapping(stftResult.FreqBins, stftResult.FreqResolution)

	chromagram := make([][]float64, NumPitchClasses)
	for pc := range chromagram {
		chromagram[pc] = make([]float64, stftResult.TimeFrames)
	}

	frame := make([]float64, NumPitchClasses)
	for t := range stftResult.TimeFrames {
		clear(frame)
		for f, magnitude := range stftResult.Magnitude[t] {
			if bin := mapping[f]; bin >= 0 {
				frame[bin] += magnitude * magnitude
			}
		}

		normalizeMax(frame)
		for pc, v := range frame {
			chromagram[pc][t] = v
		}
	}

	return chromagram, nil
}

// calculateChromaMapping maps FFT bins to chroma bins, -1 for bins outside
// the analysed frequency range
func (cs *ChromaSTFT) calculateChromaMapping(freqBins int, freqResolution float64) []int {
	mapping := make([]int, freqBins)

	for f := range freqBins {
		frequency := float64(f) * freqResolution

		if frequency < cs.minFreq || frequency > cs.maxFreq {
			mapping[f] = -1
			continue
		}

		// MIDI 60 is middle C, so MIDI mod 12 is the pitch class with C = 0
		midiNote := cs.frequencyToMIDI(frequency)
		mapping[f] = int(math.Round(midiNote)) % NumPitchClasses
	}

	return mapping
}

// frequencyToMIDI converts frequency to MIDI note number
func (cs *ChromaSTFT) frequencyToMIDI(frequency float64) float64 {
	if frequency <= 0 {
		return 0
	}
	return 69.0 + 12.0*math.Log2(frequency/cs.tuningFreq)
}

func normalizeMax(frame []float64) {
	peak := 0.0
	for _, v := range frame {
		peak = math.Max(peak, v)
	}
	if peak <= 1e-10 {
		return
	}
	for i := range frame {
		frame[i] /= peak
	}
}
