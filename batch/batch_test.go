package batch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/RyanBlaney/sonido-mood/audiolib"
	"github.com/RyanBlaney/sonido-mood/features"
	"github.com/RyanBlaney/sonido-mood/internal/audiotest"
	"github.com/RyanBlaney/sonido-mood/logging"
	"github.com/RyanBlaney/sonido-mood/transcode"
)

// fakeAnalyzer fails paths containing "bad", panics on "panic" and tracks
// peak concurrency
type fakeAnalyzer struct {
	delay   time.Duration
	calls   atomic.Int32
	running atomic.Int32
	peak    atomic.Int32
}

func (f *fakeAnalyzer) Analyze(path string) features.AnalysisResult {
	f.calls.Add(1)
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(f.delay)

	switch {
	case strings.Contains(path, "panic"):
		panic("decoder exploded")
	case strings.Contains(path, "bad"):
		return features.NewFailure("load: unsupported audio format")
	}
	return features.NewSuccess(120, "C major", 0.5, 0.5, 0.5, features.MoodNeutral)
}

// recordingObserver checks that the observer sees every result once
type recordingObserver struct {
	mu      sync.Mutex
	total   int
	workers int
	seen    map[string]int
}

func (r *recordingObserver) OnStart(total, workers int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total, r.workers = total, workers
	r.seen = make(map[string]int)
}

func (r *recordingObserver) OnResult(id string, _ features.AnalysisResult, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[id]++
}

func newTestOrchestrator(a Analyzer, opts Options) *Orchestrator {
	opts.Logger = &logging.NoOpLogger{}
	return NewOrchestrator(NewInProcessRunner(a), opts)
}

func paths(n int, pattern string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf(pattern, i)
	}
	return out
}

func TestWorkerCount(t *testing.T) {
	def := min(runtime.NumCPU(), DefaultMaxWorkers)

	assert.Equal(t, min(def, 10), WorkerCount(0, 10))
	assert.Equal(t, 1, WorkerCount(0, 1))
	assert.Equal(t, 8, WorkerCount(8, 20))
	assert.Equal(t, 3, WorkerCount(8, 3))
	assert.Equal(t, min(def, 10), WorkerCount(-2, 10))
	assert.Equal(t, 1, WorkerCount(0, 0))
}

func TestAnalyzeBatchCompleteness(t *testing.T) {
	defer goleak.VerifyNone(t)

	input := append(paths(20, "good-%d.wav"), paths(7, "bad-%d.wav")...)
	input = append(input, "panic-1.wav")

	obs := &recordingObserver{}
	results := newTestOrchestrator(&fakeAnalyzer{}, Options{Workers: 3, Observer: obs}).
		AnalyzeBatch(context.Background(), input)

	require.Len(t, results, len(input))
	for _, p := range input {
		r, ok := results[p]
		require.True(t, ok, p)
		switch {
		case strings.HasPrefix(p, "good"):
			assert.True(t, r.Success(), p)
		case strings.HasPrefix(p, "bad"):
			assert.Equal(t, "load: unsupported audio format", r.ErrorMessage())
		default:
			assert.Equal(t, "worker failed: decoder exploded", r.ErrorMessage())
		}
	}

	assert.Equal(t, len(input), obs.total)
	assert.Equal(t, 3, obs.workers)
	assert.Len(t, obs.seen, len(input))
	for id, n := range obs.seen {
		assert.Equal(t, 1, n, id)
	}
}

func TestAnalyzeBatchBoundsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	a := &fakeAnalyzer{delay: 5 * time.Millisecond}
	results := newTestOrchestrator(a, Options{Workers: 2}).
		AnalyzeBatch(context.Background(), paths(12, "f-%d.wav"))

	assert.Len(t, results, 12)
	assert.LessOrEqual(t, a.peak.Load(), int32(2))
	assert.Equal(t, int32(12), a.calls.Load())
}

func TestAnalyzeBatchDuplicatesCollapse(t *testing.T) {
	defer goleak.VerifyNone(t)

	a := &fakeAnalyzer{}
	results := newTestOrchestrator(a, Options{}).
		AnalyzeBatch(context.Background(), []string{"a.wav", "b.wav", "a.wav", "a.wav"})

	assert.Len(t, results, 2)
	assert.Equal(t, int32(2), a.calls.Load())
}

func TestAnalyzeBatchEmptyAndSingle(t *testing.T) {
	defer goleak.VerifyNone(t)

	o := newTestOrchestrator(&fakeAnalyzer{}, Options{})
	assert.Empty(t, o.AnalyzeBatch(context.Background(), nil))

	results := o.AnalyzeBatch(context.Background(), []string{"bad.wav"})
	require.Len(t, results, 1)
	assert.False(t, results["bad.wav"].Success())

	results = o.AnalyzeBatch(context.Background(), []string{"panic.wav"})
	assert.Equal(t, "worker failed: decoder exploded", results["panic.wav"].ErrorMessage())
}

func TestAnalyzeBatchCancelledStillCoversEveryPath(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := paths(10, "f-%d.wav")
	a := &fakeAnalyzer{}
	results := newTestOrchestrator(a, Options{Workers: 2}).AnalyzeBatch(ctx, input)

	require.Len(t, results, len(input))
	assert.Equal(t, int32(0), a.calls.Load())
	for _, p := range input {
		assert.Equal(t, "context canceled", results[p].ErrorMessage())
	}

	single := newTestOrchestrator(a, Options{}).AnalyzeBatch(ctx, []string{"one.wav"})
	assert.Equal(t, "context canceled", single["one.wav"].ErrorMessage())
}

func TestAnalyzeBatchCancelMidway(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &fakeAnalyzer{delay: 20 * time.Millisecond}
	obs := &recordingObserver{}
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	input := paths(40, "f-%d.wav")
	results := newTestOrchestrator(a, Options{Workers: 2, Observer: obs}).AnalyzeBatch(ctx, input)

	require.Len(t, results, len(input))
	assert.Less(t, a.calls.Load(), int32(len(input)))
	assert.Len(t, obs.seen, len(input))

	succeeded := 0
	for _, r := range results {
		if r.Success() {
			succeeded++
		} else {
			assert.Equal(t, "context canceled", r.ErrorMessage())
		}
	}
	assert.Equal(t, int(a.calls.Load()), succeeded)
}

func TestAnalyzeBatchRealFilesWithCorruptInput(t *testing.T) {
	defer goleak.VerifyNone(t)

	good := []string{
		audiotest.WriteWAV(t, "a.wav", audiotest.Sine(440, 0.5, 22050, 2), 22050, 1),
		audiotest.WriteWAV(t, "b.wav", audiotest.Clicks(120, 22050, 4), 22050, 1),
		audiotest.WriteWAV(t, "c.wav", audiotest.Chord([]float64{220, 277.18, 329.63}, 44100, 2), 44100, 2),
	}
	corrupt := audiotest.WriteFile(t, "corrupt.wav", []byte("RIFF\x24\x00\x00\x00WAVEjunkjunkjunk"))
	missing := filepath.Join(t.TempDir(), "missing.mp3")

	cfg := transcode.DefaultDecoderConfig()
	cfg.Backend = transcode.BackendNative
	extractor := features.NewExtractor(audiolib.New(transcode.NewDecoder(cfg)),
		features.WithLogger(&logging.NoOpLogger{}))

	input := append(append([]string{}, good...), corrupt, missing)
	results := newTestOrchestrator(extractor, Options{Workers: 2}).AnalyzeBatch(context.Background(), input)

	require.Len(t, results, len(input))
	for _, p := range good {
		assert.True(t, results[p].Success(), "%s: %s", p, results[p].ErrorMessage())
	}
	assert.False(t, results[corrupt].Success())
	assert.True(t, strings.HasPrefix(results[corrupt].ErrorMessage(), "load: "))
	assert.False(t, results[missing].Success())
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestProcessRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}

	tests := []struct {
		name    string
		script  string
		success bool
		message string
	}{
		{
			name:    "success",
			script:  `echo '{"bpm":99.5,"key":"G minor","energy":0.1,"danceability":0.2,"valence":0.3,"mood":"melancholic","success":true}'`,
			success: true,
		},
		{
			name:    "per-file failure",
			script:  `echo '{"error":"load: unsupported audio format","success":false}'`,
			message: "load: unsupported audio format",
		},
		{
			name:    "crash",
			script:  `echo 'fatal' >&2; exit 3`,
			message: "worker failed: exit status 3",
		},
		{
			name:    "fatal payload",
			script:  `echo '{"error":"analysis dependency unavailable"}'; exit 1`,
			message: "worker failed: exit status 1: analysis dependency unavailable",
		},
		{
			name:    "garbage",
			script:  `echo 'not json'`,
			message: "worker failed: invalid result",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner, err := NewProcessRunner(writeScript(t, tt.script), "--decoder", "native")
			require.NoError(t, err)

			result := runner.Run(context.Background(), "song.wav")
			assert.Equal(t, tt.success, result.Success())
			if tt.success {
				assert.Equal(t, 99.5, result.BPM())
				assert.Equal(t, "G minor", result.Key())
				assert.Equal(t, features.MoodMelancholic, result.Mood())
				return
			}
			assert.True(t, strings.HasPrefix(result.ErrorMessage(), tt.message), result.ErrorMessage())
		})
	}
}

func TestProcessRunnerPassesArguments(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}

	// echoes its arguments back as the error message
	runner, err := NewProcessRunner(writeScript(t, `printf '{"error":"%s","success":false}' "$*"`), "--decoder", "native")
	require.NoError(t, err)

	result := runner.Run(context.Background(), "dir/song.wav")
	assert.Equal(t, "--decoder native analyze dir/song.wav", result.ErrorMessage())
}

func TestProgressObserver(t *testing.T) {
	defer goleak.VerifyNone(t)

	var buf bytes.Buffer
	progress := NewProgressObserver(&buf)
	obs := MultiObserver{progress, &recordingObserver{}}

	results := newTestOrchestrator(&fakeAnalyzer{}, Options{Workers: 2, Observer: obs}).
		AnalyzeBatch(context.Background(), paths(5, "f-%d.wav"))
	progress.Wait()

	assert.Len(t, results, 5)
}
