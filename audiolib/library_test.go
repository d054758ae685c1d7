package audiolib

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-mood/internal/audiotest"
	"github.com/RyanBlaney/sonido-mood/transcode"
)

const sr = 22050

func newNativeLibrary() *Library {
	cfg := transcode.DefaultDecoderConfig()
	cfg.Backend = transcode.BackendNative
	return New(transcode.NewDecoder(cfg))
}

func TestLoadResamplesAndTruncates(t *testing.T) {
	path := audiotest.WriteWAV(t, "tone.wav", audiotest.Sine(440, 0.5, 44100, 2), 44100, 1)

	samples, rate, err := newNativeLibrary().Load(path, sr, true, time.Second)
	require.NoError(t, err)
	assert.Equal(t, sr, rate)
	assert.Len(t, samples, sr)
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := newNativeLibrary().Load("/nonexistent/file.wav", sr, true, 0)
	assert.Error(t, err)
}

func TestFrameCountsAgree(t *testing.T) {
	lib := newNativeLibrary()
	samples := audiotest.Chord([]float64{261.63, 329.63, 392.0}, sr, 3)

	rms, err := lib.RMS(samples)
	require.NoError(t, err)
	chroma, err := lib.Chroma(samples, sr)
	require.NoError(t, err)
	onset, err := lib.OnsetStrength(samples, sr)
	require.NoError(t, err)
	pulse, err := lib.PredominantPulse(onset, sr)
	require.NoError(t, err)
	centroid, err := lib.SpectralCentroid(samples, sr)
	require.NoError(t, err)

	require.NoError(t, chroma.Validate())
	frames := chroma.Frames()
	assert.Len(t, rms, frames)
	assert.Len(t, onset, frames)
	assert.Len(t, pulse, frames)
	assert.Len(t, centroid, frames)
}

func TestCentroidOfSineIsItsFrequency(t *testing.T) {
	centroid, err := newNativeLibrary().SpectralCentroid(audiotest.Sine(2000, 0.5, sr, 1), sr)
	require.NoError(t, err)
	assert.InDelta(t, 2000, centroid[len(centroid)/2], 50)
}

func TestBeatTrackClicks(t *testing.T) {
	bpm, err := newNativeLibrary().BeatTrack(audiotest.Clicks(120, sr, 20), sr)
	require.NoError(t, err)
	assert.InDelta(t, 120, bpm, 6)
}

func TestBeatTrackSilence(t *testing.T) {
	bpm, err := newNativeLibrary().BeatTrack(make([]float64, sr*2), sr)
	require.NoError(t, err)
	assert.Equal(t, 0.0, bpm)
}

func TestRMSOfSine(t *testing.T) {
	rms, err := newNativeLibrary().RMS(audiotest.Sine(440, 0.5, sr, 1))
	require.NoError(t, err)
	assert.InDelta(t, 0.5/math.Sqrt2, rms[len(rms)/2], 0.01)
}

func TestPrimitivesRejectEmptyInput(t *testing.T) {
	lib := newNativeLibrary()

	_, err := lib.RMS(nil)
	assert.Error(t, err)
	_, err = lib.Chroma(nil, sr)
	assert.Error(t, err)
	_, err = lib.OnsetStrength(nil, sr)
	assert.Error(t, err)
	_, err = lib.PredominantPulse(nil, sr)
	assert.Error(t, err)
	_, err = lib.SpectralCentroid(nil, sr)
	assert.Error(t, err)
	_, err = lib.BeatTrack(nil, sr)
	assert.Error(t, err)
}
