package tonal

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chromaFrom repeats v as every column of a 12 x frames matrix
func chromaFrom(v PitchProfile, frames int) ChromaMatrix {
	c := make(ChromaMatrix, 12)
	for pc := range c {
		c[pc] = make([]float64, frames)
		for t := range frames {
			c[pc][t] = v[pc]
		}
	}
	return c
}

func allLabels() map[string]bool {
	labels := make(map[string]bool, 24)
	for _, name := range PitchNames {
		labels[name+" major"] = true
		labels[name+" minor"] = true
	}
	return labels
}

func TestDetectKeyIdentity(t *testing.T) {
	tmpl := KeyProfileKrumhansl.Template()

	assert.Equal(t, "C major", DetectKey(chromaFrom(tmpl.Major, 5)))
	assert.Equal(t, "C minor", DetectKey(chromaFrom(tmpl.Minor, 5)))

	est := defaultDetector.EstimateKey(chromaFrom(tmpl.Major, 1))
	assert.InDelta(t, 1.0, est.Correlation, 1e-12)
	assert.Equal(t, KeyModeMajor, est.Mode)
}

func TestDetectKeyRotation(t *testing.T) {
	tmpl := KeyProfileKrumhansl.Template()

	for k, name := range PitchNames {
		assert.Equal(t, name+" major", DetectKey(chromaFrom(tmpl.Major.Rotate(k), 3)), "major shift %d", k)
		assert.Equal(t, name+" minor", DetectKey(chromaFrom(tmpl.Minor.Rotate(k), 3)), "minor shift %d", k)
	}
}

func TestDetectKeyTieBreakPrefersMajor(t *testing.T) {
	same := KeyProfileKrumhansl.Template().Major
	kd := NewKeyDetector(same, same)

	assert.Equal(t, "D# major", kd.DetectKey(chromaFrom(same.Rotate(3), 2)))
}

func TestDetectKeyTieBreakPrefersLowerOffset(t *testing.T) {
	periodic := PitchProfile{5, 1, 3, 1, 4, 2, 5, 1, 3, 1, 4, 2}
	minor := KeyProfileKrumhansl.Template().Minor
	kd := NewKeyDetector(periodic, minor)

	// offsets 0 and 6 correlate perfectly; the earlier one wins
	assert.Equal(t, "C major", kd.DetectKey(chromaFrom(periodic, 4)))
	assert.Equal(t, "C# major", kd.DetectKey(chromaFrom(periodic.Rotate(7), 4)))
}

func TestDetectKeyDegenerate(t *testing.T) {
	var zero PitchProfile
	assert.Equal(t, DefaultKey, DetectKey(chromaFrom(zero, 10)))

	flat := PitchProfile{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	est := defaultDetector.EstimateKey(chromaFrom(flat, 10))
	assert.Equal(t, DefaultKey, est.Name)
	assert.Equal(t, correlationFloor, est.Correlation)

	assert.Equal(t, DefaultKey, DetectKey(ChromaMatrix{{1, 2}}))
	assert.Equal(t, DefaultKey, DetectKey(nil))
}

func TestDetectKeyAlwaysReturnsValidLabel(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	labels := allLabels()

	for range 50 {
		frames := 1 + rng.IntN(20)
		c := make(ChromaMatrix, 12)
		for pc := range c {
			c[pc] = make([]float64, frames)
			for t := range c[pc] {
				c[pc][t] = rng.Float64()
			}
		}
		assert.True(t, labels[DetectKey(c)])
	}
}

func TestDetectKeyDeterministic(t *testing.T) {
	c := chromaFrom(KeyProfileTemperley.Template().Minor.Rotate(9), 6)
	first := DetectKey(c)
	for range 10 {
		assert.Equal(t, first, DetectKey(c))
	}
}

func TestChromaMatrixValidate(t *testing.T) {
	good := chromaFrom(PitchProfile{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, 2)
	require.NoError(t, good.Validate())
	assert.Equal(t, 2, good.Frames())

	tests := map[string]ChromaMatrix{
		"too few rows": good[:11],
		"no frames":    chromaFrom(PitchProfile{}, 0),
		"ragged":       append(ChromaMatrix{{1}}, good[1:]...),
	}
	negative := chromaFrom(PitchProfile{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, 2)
	negative[4][1] = -0.1
	tests["negative"] = negative
	nan := chromaFrom(PitchProfile{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, 2)
	nan[0][0] = math.NaN()
	tests["nan"] = nan

	for name, c := range tests {
		assert.Error(t, c.Validate(), name)
	}
}

func TestRotate(t *testing.T) {
	p := KeyProfileKrumhansl.Template().Major
	r := p.Rotate(1)
	assert.Equal(t, p[0], r[1])
	assert.Equal(t, p[11], r[0])
	assert.Equal(t, p, p.Rotate(12))
	assert.Equal(t, p.Rotate(11), p.Rotate(-1))

	// the shared template is untouched
	assert.Equal(t, 6.35, KeyProfileKrumhansl.Template().Major[0])
}

func TestParseKeyProfile(t *testing.T) {
	p, err := ParseKeyProfile("temperley")
	require.NoError(t, err)
	assert.Equal(t, KeyProfileTemperley, p)
	assert.Equal(t, "temperley", p.String())

	_, err = ParseKeyProfile("edma")
	assert.Error(t, err)
}
