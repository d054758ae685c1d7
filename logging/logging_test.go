package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, false)

	logger.Debug("hidden")
	logger.Info("shown", Fields{"path": "a.wav"})
	logger.Error(errors.New("boom"), "failed")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[INFO] shown path=a.wav")
	assert.Contains(t, out, "[ERROR] failed: boom")
}

func TestWithFieldsSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	root := NewWriterLogger(&buf, false)
	child := root.WithFields(Fields{"component": "batch"})

	root.SetLevel(DebugLevel)
	child.Debug("dispatch", Fields{"workers": 4})

	assert.Contains(t, buf.String(), "[DEBUG] dispatch component=batch workers=4")
}

func TestWithContextPicksUpFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, false)

	ctx := ContextWithFields(context.Background(), Fields{"run": "r1"})
	ctx = ContextWithFields(ctx, Fields{"file": "x.mp3"})
	logger.WithContext(ctx).Info("hello")

	assert.Contains(t, buf.String(), "file=x.mp3 run=r1")
}

func TestFatalCallsExit(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, false)
	code := -1
	logger.exit = func(c int) { code = c }

	logger.Fatal(errors.New("no ffmpeg"), "cannot start")

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "[FATAL] cannot start: no ffmpeg")
}

func TestSetGlobalLoggerNil(t *testing.T) {
	prev := GetGlobalLogger()
	t.Cleanup(func() { SetGlobalLogger(prev) })

	SetGlobalLogger(nil)
	assert.IsType(t, &NoOpLogger{}, GetGlobalLogger())
}
