package spectral

// SpectralCentroid computes the spectral centroid (center of mass) of a spectrum
type SpectralCentroid struct {
	freqBins []float64
}

// NewSpectralCentroid creates a centroid calculator for spectra produced by an
// fftSize-point transform at sampleRate.
func NewSpectralCentroid(sampleRate, fftSize int) *SpectralCentroid {
	numBins := fftSize/2 + 1
	freqBins := make([]float64, numBins)
	for k := range freqBins {
		freqBins[k] = float64(k) * float64(sampleRate) / float64(fftSize)
	}
	return &SpectralCentroid{freqBins: freqBins}
}

// Compute calculates the spectral centroid in Hz of a single magnitude
// spectrum. A silent frame has centroid 0.
func (sc *SpectralCentroid) Compute(spectrum []float64) float64 {
	numerator := 0.0
	denominator := 0.0

	for i := 0; i < len(spectrum) && i < len(sc.freqBins); i++ {
		numerator += sc.freqBins[i] * spectrum[i]
		denominator += spectrum[i]
	}

	if denominator == 0 {
		return 0
	}

	return numerator / denominator
}

// ComputeFrames processes every frame of a Time x Frequency spectrogram
func (sc *SpectralCentroid) ComputeFrames(spectrogram [][]float64) []float64 {
	centroids := make([]float64, len(spectrogram))
	for t, spectrum := range spectrogram {
		centroids[t] = sc.Compute(spectrum)
	}
	return centroids
}
