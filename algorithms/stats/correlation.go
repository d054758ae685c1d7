package stats

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/stat"
)

// Pearson returns the Pearson correlation coefficient of a and b.
// The result is NaN when the lengths differ, when fewer than two samples are
// given, or when either input has zero variance. Callers comparing
// correlations must treat NaN as "no evidence".
func Pearson(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return math.NaN()
	}
	return stat.Correlation(a, b, nil)
}

// Autocorrelation computes the raw (unnormalized) autocorrelation of x for
// lags 0..maxLag-1 using a zero-padded FFT. maxLag <= 0 or larger than len(x)
// means len(x).
func Autocorrelation(x []float64, maxLag int) []float64 {
	n := len(x)
	if n == 0 {
		return []float64{}
	}
	if maxLag <= 0 || maxLag > n {
		maxLag = n
	}

	// pad to avoid circular wrap-around
	size := 1
	for size < 2*n-1 {
		size <<= 1
	}
	padded := make([]float64, size)
	copy(padded, x)

	spectrum := fft.FFTReal(padded)
	for i, c := range spectrum {
		re, im := real(c), imag(c)
		spectrum[i] = complex(re*re+im*im, 0)
	}
	inverse := fft.IFFT(spectrum)

	out := make([]float64, maxLag)
	for i := range out {
		out[i] = real(inverse[i])
	}
	return out
}
