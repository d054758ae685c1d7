package common

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// Max returns the largest element, 0 for an empty slice
func Max(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Max(data)
}

// Sum returns the sum of all elements
func Sum(data []float64) float64 {
	return floats.Sum(data)
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}

	sumSquares := 0.0
	for _, val := range data {
		sumSquares += val * val
	}

	return math.Sqrt(sumSquares / float64(len(data)))
}

// Clamp clamps value to [min, max]. NaN clamps to min.
func Clamp(value, min, max float64) float64 {
	if math.IsNaN(value) || value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// Unit clamps value to [0, 1]
func Unit(value float64) float64 {
	return Clamp(value, 0, 1)
}

// Round rounds x to the given number of decimal places, choosing the closest
// decimal representation of the binary value (2.675 rounds to 2.67 because
// the stored double is just below 2.675). NaN and Inf are returned unchanged.
func Round(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	s := strconv.FormatFloat(x, 'f', places, 64)
	r, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return x
	}
	return r
}
