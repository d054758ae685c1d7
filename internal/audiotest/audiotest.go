// Package audiotest renders synthetic signals and writes them as WAV files
// for package tests.
package audiotest

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

// Sine renders a sine wave of the given amplitude
func Sine(freq, amplitude float64, sampleRate int, seconds float64) []float64 {
	n := int(seconds * float64(sampleRate))
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

// Chord sums equal-amplitude sines, scaled so the peak stays below 1
func Chord(freqs []float64, sampleRate int, seconds float64) []float64 {
	n := int(seconds * float64(sampleRate))
	out := make([]float64, n)
	amp := 0.9 / float64(len(freqs))
	for _, f := range freqs {
		for i := range out {
			out[i] += amp * math.Sin(2*math.Pi*f*float64(i)/float64(sampleRate))
		}
	}
	return out
}

// Clicks renders decaying 1 kHz bursts at the given tempo
func Clicks(bpm float64, sampleRate int, seconds float64) []float64 {
	n := int(seconds * float64(sampleRate))
	out := make([]float64, n)
	period := int(60.0 / bpm * float64(sampleRate))
	burst := int(0.05 * float64(sampleRate))

	for start := 0; start < n; start += period {
		for i := 0; i < burst && start+i < n; i++ {
			env := math.Exp(-float64(i) / float64(burst) * 5)
			out[start+i] = 0.8 * env * math.Sin(2*math.Pi*1000*float64(i)/float64(sampleRate))
		}
	}
	return out
}

// WriteWAV writes interleaved samples in [-1, 1] as a 16-bit PCM WAV file
// under t.TempDir and returns its path
func WriteWAV(t testing.TB, name string, samples []float64, sampleRate, channels int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(math.Round(math.Max(-1, math.Min(1, s)) * 32767))
	}

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: channels},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())

	return path
}

// WriteFile writes arbitrary bytes under t.TempDir, for corrupt inputs
func WriteFile(t testing.TB, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}
