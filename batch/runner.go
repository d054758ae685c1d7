package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/RyanBlaney/sonido-mood/features"
	"github.com/RyanBlaney/sonido-mood/logging"
)

// Runner analyses a single file in some execution context
type Runner interface {
	Run(ctx context.Context, path string) features.AnalysisResult
}

// Analyzer is satisfied by *features.Extractor
type Analyzer interface {
	Analyze(path string) features.AnalysisResult
}

// InProcessRunner analyses on the calling goroutine. The extractor holds no
// mutable state, so one runner serves every worker.
type InProcessRunner struct {
	analyzer Analyzer
}

func NewInProcessRunner(analyzer Analyzer) *InProcessRunner {
	return &InProcessRunner{analyzer: analyzer}
}

func (r *InProcessRunner) Run(_ context.Context, path string) features.AnalysisResult {
	return r.analyzer.Analyze(path)
}

// ProcessRunner analyses each file in a child process running
// "<executable> [args...] analyze <path>", so a crash or runaway allocation
// in one file cannot take down the batch.
type ProcessRunner struct {
	executable string
	args       []string
	logger     logging.Logger
}

// NewProcessRunner creates a runner for executable. An empty executable
// means the current binary. args are passed before the analyze subcommand.
func NewProcessRunner(executable string, args ...string) (*ProcessRunner, error) {
	if executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate executable: %w", err)
		}
		executable = exe
	}

	return &ProcessRunner{
		executable: executable,
		args:       args,
		logger: logging.WithFields(logging.Fields{
			"component": "process_runner",
		}),
	}, nil
}

// Run starts the child and parses its JSON output. Running children are not
// killed when ctx is cancelled.
func (r *ProcessRunner) Run(ctx context.Context, path string) features.AnalysisResult {
	args := append(append([]string{}, r.args...), "analyze", path)
	cmd := exec.CommandContext(context.WithoutCancel(ctx), r.executable, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var result features.AnalysisResult
	parseErr := json.Unmarshal(stdout.Bytes(), &result)

	if runErr != nil {
		r.logger.Error(runErr, "Worker process failed", logging.Fields{
			"path":   path,
			"stderr": lastLine(stderr.String()),
		})
		msg := "worker failed: " + runErr.Error()
		if payload := errorPayload(stdout.Bytes()); payload != "" {
			msg += ": " + payload
		}
		return features.NewFailure(msg)
	}
	if parseErr != nil {
		return features.NewFailure(fmt.Sprintf("worker failed: invalid result: %v", parseErr))
	}
	return result
}

// errorPayload extracts the message of a fatal {"error": "..."} payload
func errorPayload(data []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) != nil {
		return ""
	}
	return payload.Error
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
