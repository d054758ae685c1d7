package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-mood/config"
	"github.com/RyanBlaney/sonido-mood/internal/app"
	"github.com/RyanBlaney/sonido-mood/internal/audiotest"
)

type cliResult struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var stdout, stderr bytes.Buffer
	a := &app.App{
		Viper:  config.NewViper(),
		Stdin:  strings.NewReader(stdin),
		Stdout: &stdout,
		Stderr: &stderr,
	}
	code := Execute(context.Background(), a, args)
	return cliResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func decodeObject(t *testing.T, s string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &out), s)
	return out
}

func TestAnalyzeCommand(t *testing.T) {
	path := audiotest.WriteWAV(t, "tone.wav", audiotest.Sine(440, 0.5, 22050, 2), 22050, 1)

	res := runCLI(t, "", "--decoder", "native", "analyze", path)
	require.Equal(t, 0, res.code, res.stdout)

	out := decodeObject(t, res.stdout)
	assert.Equal(t, true, out["success"])
	for _, key := range []string{"bpm", "key", "energy", "danceability", "valence", "mood"} {
		assert.Contains(t, out, key)
	}
}

func TestAnalyzeCommandPerFileFailureExitsZero(t *testing.T) {
	path := audiotest.WriteFile(t, "broken.mp3", []byte("definitely not audio"))

	res := runCLI(t, "", "--decoder", "native", "analyze", path)
	assert.Equal(t, 0, res.code)

	out := decodeObject(t, res.stdout)
	assert.Equal(t, false, out["success"])
	assert.True(t, strings.HasPrefix(out["error"].(string), "load: "))
}

func TestAnalyzeCommandWithoutInput(t *testing.T) {
	res := runCLI(t, "", "--decoder", "native", "analyze")
	assert.Equal(t, 1, res.code)
	assert.JSONEq(t, `{"error":"No files provided"}`, res.stdout)
}

func TestDependencyMissingIsFatal(t *testing.T) {
	t.Setenv("SONIDO_MOOD_DECODER_FFMPEG_PATH", "/nonexistent/ffmpeg")

	res := runCLI(t, "", "--decoder", "ffmpeg", "batch", "a.wav", "b.wav")
	assert.Equal(t, 1, res.code)

	out := decodeObject(t, res.stdout)
	assert.True(t, strings.HasPrefix(out["error"].(string), "analysis dependency unavailable"), out["error"])
}

func TestInvalidConfigIsFatal(t *testing.T) {
	res := runCLI(t, "", "--decoder", "gstreamer", "analyze", "a.wav")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, decodeObject(t, res.stdout)["error"], "decoder.backend")
}

func TestBatchCommand(t *testing.T) {
	good := []string{
		audiotest.WriteWAV(t, "a.wav", audiotest.Sine(440, 0.5, 22050, 2), 22050, 1),
		audiotest.WriteWAV(t, "b.wav", audiotest.Clicks(120, 22050, 3), 22050, 1),
	}
	missing := filepath.Join(t.TempDir(), "missing.wav")

	res := runCLI(t, "", "--decoder", "native", "batch", "--workers", "2", good[0], good[1], missing, good[0])
	require.Equal(t, 0, res.code, res.stdout)

	out := decodeObject(t, res.stdout)
	require.Len(t, out, 3)
	for _, p := range good {
		assert.Equal(t, true, out[p].(map[string]any)["success"], p)
	}
	assert.Equal(t, false, out[missing].(map[string]any)["success"])
}

func TestBatchCommandStdin(t *testing.T) {
	path := audiotest.WriteWAV(t, "a.wav", audiotest.Sine(440, 0.5, 22050, 1), 22050, 1)
	input, err := json.Marshal(map[string]any{"files": []string{path, "/nonexistent.wav"}, "workers": 2})
	require.NoError(t, err)

	res := runCLI(t, string(input), "--decoder", "native", "batch", "--stdin")
	require.Equal(t, 0, res.code, res.stdout)
	assert.Len(t, decodeObject(t, res.stdout), 2)
}

func TestBatchCommandStdinIgnoresArguments(t *testing.T) {
	path := audiotest.WriteWAV(t, "a.wav", audiotest.Sine(440, 0.5, 22050, 1), 22050, 1)
	input, err := json.Marshal(map[string]any{"files": []string{path}})
	require.NoError(t, err)

	res := runCLI(t, string(input), "--decoder", "native", "batch", "--stdin", "/nonexistent.wav")
	require.Equal(t, 0, res.code, res.stdout)

	out := decodeObject(t, res.stdout)
	assert.Len(t, out, 1)
	assert.Contains(t, out, path)
	assert.NotContains(t, out, "/nonexistent.wav")

	// arguments alone never satisfy stdin mode
	res = runCLI(t, `{"files": []}`, "--decoder", "native", "batch", "--stdin", path)
	assert.Equal(t, 1, res.code)
	assert.JSONEq(t, `{"error":"No files provided"}`, res.stdout)
}

func TestBatchCommandInvalidStdin(t *testing.T) {
	res := runCLI(t, "{not json", "--decoder", "native", "batch", "--stdin")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, decodeObject(t, res.stdout)["error"], "invalid JSON input")
}

func TestBatchCommandWithoutInput(t *testing.T) {
	res := runCLI(t, `{"files": []}`, "--decoder", "native", "batch", "--stdin")
	assert.Equal(t, 1, res.code)
	assert.JSONEq(t, `{"error":"No files provided"}`, res.stdout)

	res = runCLI(t, "", "--decoder", "native", "batch")
	assert.Equal(t, 1, res.code)
}

func TestYAMLOutputAndMetrics(t *testing.T) {
	path := audiotest.WriteWAV(t, "a.wav", audiotest.Sine(440, 0.5, 22050, 1), 22050, 1)
	metricsFile := filepath.Join(t.TempDir(), "sonido_mood.prom")

	res := runCLI(t, "", "--decoder", "native", "--output", "yaml", "--metrics-file", metricsFile, "batch", path)
	require.Equal(t, 0, res.code, res.stdout)
	assert.Contains(t, res.stdout, "success: true")
	assert.Contains(t, res.stdout, "mood: ")

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `sonido_mood_files_total{status="success"} 1`)
	assert.Contains(t, string(data), "sonido_mood_batch_workers 1")
}

func TestDebugFlagLogsToStderr(t *testing.T) {
	path := audiotest.WriteWAV(t, "a.wav", audiotest.Sine(440, 0.5, 22050, 1), 22050, 1)

	res := runCLI(t, "", "--decoder", "native", "--debug", "analyze", path)
	require.Equal(t, 0, res.code)
	assert.Contains(t, res.stderr, "[DEBUG]")
	assert.NotContains(t, res.stdout, "[DEBUG]")
}
