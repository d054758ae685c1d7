package temporal

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-mood/algorithms/spectral"
)

// Envelope provides amplitude envelope extraction
type Envelope struct {
	frameSize int
	hopSize   int
}

// NewEnvelope creates an envelope extractor with the given frame geometry
func NewEnvelope(frameSize, hopSize int) *Envelope {
	return &Envelope{frameSize: frameSize, hopSize: hopSize}
}

// NewDefaultEnvelope uses the analyzer's standard 2048/512 framing
func NewDefaultEnvelope() *Envelope {
	return NewEnvelope(spectral.DefaultFFTSize, spectral.DefaultHopSize)
}

// ComputeRMS computes the root mean square of each centred frame. The signal
// is zero-padded by frameSize/2 on both sides, giving 1 + len(signal)/hopSize
// frames.
func (e *Envelope) ComputeRMS(signal []float64) ([]float64, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}
	if e.frameSize <= 0 || e.hopSize <= 0 {
		return nil, fmt.Errorf("invalid frame geometry %d/%d", e.frameSize, e.hopSize)
	}

	padded := spectral.PadCenter(signal, e.frameSize)
	numFrames := spectral.FrameCount(len(padded), e.frameSize, e.hopSize)
	envelope := make([]float64, numFrames)

	for i := range numFrames {
		startIdx := i * e.hopSize

		sumSquares := 0.0
		for _, v := range padded[startIdx : startIdx+e.frameSize] {
			sumSquares += v * v
		}
		envelope[i] = math.Sqrt(sumSquares / float64(e.frameSize))
	}

	return envelope, nil
}
