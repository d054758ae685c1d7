// Package batch analyses many files concurrently on a bounded worker pool.
// Every submitted identifier ends up in the result map exactly once, and a
// failure in one file never affects the others.
package batch

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-mood/features"
	"github.com/RyanBlaney/sonido-mood/logging"
)

// DefaultMaxWorkers caps the default pool size
const DefaultMaxWorkers = 4

// ResultMap maps each submitted identifier to its result
type ResultMap map[string]features.AnalysisResult

// Task pairs an identifier with its result slot
type Task struct {
	ID      string
	Result  features.AnalysisResult
	Elapsed time.Duration
}

// Observer is notified as a batch progresses. Calls for one batch come from
// a single goroutine.
type Observer interface {
	OnStart(total, workers int)
	OnResult(id string, result features.AnalysisResult, elapsed time.Duration)
}

// Options configures an Orchestrator
type Options struct {
	// Workers is the pool size, 0 means min(NumCPU, DefaultMaxWorkers)
	Workers  int
	Observer Observer
	Logger   logging.Logger
}

// Orchestrator runs a Runner over a set of identifiers
type Orchestrator struct {
	runner   Runner
	workers  int
	observer Observer
	logger   logging.Logger
}

// NewOrchestrator creates an orchestrator that analyses files with runner
func NewOrchestrator(runner Runner, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	return &Orchestrator{
		runner:   runner,
		workers:  opts.Workers,
		observer: observer,
		logger: logger.WithFields(logging.Fields{
			"component": "batch_orchestrator",
		}),
	}
}

// WorkerCount resolves the pool size for a batch of tasks
func WorkerCount(requested, tasks int) int {
	w := requested
	if w <= 0 {
		w = min(runtime.NumCPU(), DefaultMaxWorkers)
	}
	return max(1, min(w, tasks))
}

// AnalyzeBatch analyses every unique path and returns one entry per path.
// Results are collected in completion order. Cancelling ctx stops
// dispatching; running tasks finish and paths never dispatched are recorded
// as failures carrying the context error.
func (o *Orchestrator) AnalyzeBatch(ctx context.Context, paths []string) ResultMap {
	tasks := uniqueTasks(paths)
	results := make(ResultMap, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	workers := WorkerCount(o.workers, len(tasks))
	logger := o.logger.WithFields(logging.Fields{
		"function": "AnalyzeBatch",
		"files":    len(tasks),
		"workers":  workers,
	})
	logger.Info("Starting batch analysis")
	o.observer.OnStart(len(tasks), workers)

	start := time.Now()
	if len(tasks) == 1 {
		// not worth a pool
		if ctx.Err() == nil {
			o.collect(results, o.execute(ctx, tasks[0]))
		}
	} else {
		o.runPool(ctx, tasks, workers, results)
	}

	failed := 0
	for _, t := range tasks {
		if _, ok := results[t.ID]; !ok {
			t.Result = features.NewFailure(contextError(ctx))
			o.collect(results, t)
		}
		if !results[t.ID].Success() {
			failed++
		}
	}

	logger.Info("Batch analysis completed", logging.Fields{
		"succeeded": len(tasks) - failed,
		"failed":    failed,
		"elapsed":   time.Since(start).Seconds(),
	})
	return results
}

// runPool feeds tasks through a bounded queue to a fixed set of workers;
// a single aggregator owns the result map while the pool runs
func (o *Orchestrator) runPool(ctx context.Context, tasks []*Task, workers int, results ResultMap) {
	jobs := make(chan *Task, workers)
	done := make(chan *Task, workers)

	var g errgroup.Group
	g.Go(func() error {
		defer close(jobs)
		for _, t := range tasks {
			if ctx.Err() != nil {
				return nil
			}
			select {
			case jobs <- t:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})

	for range workers {
		g.Go(func() error {
			for t := range jobs {
				done <- o.execute(ctx, t)
			}
			return nil
		})
	}

	aggregated := make(chan struct{})
	go func() {
		defer close(aggregated)
		for t := range done {
			o.collect(results, t)
		}
	}()

	_ = g.Wait()
	close(done)
	<-aggregated
}

// execute runs one task; a panic escaping the runner becomes a failure
func (o *Orchestrator) execute(ctx context.Context, t *Task) (out *Task) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error(fmt.Errorf("%v", r), "Worker panicked", logging.Fields{"path": t.ID})
			t.Result = features.NewFailure(fmt.Sprintf("worker failed: %v", r))
		}
		t.Elapsed = time.Since(start)
		out = t
	}()

	t.Result = o.runner.Run(ctx, t.ID)
	return t
}

func (o *Orchestrator) collect(results ResultMap, t *Task) {
	results[t.ID] = t.Result
	o.observer.OnResult(t.ID, t.Result, t.Elapsed)
}

// uniqueTasks keeps the first occurrence of each path
func uniqueTasks(paths []string) []*Task {
	seen := make(map[string]struct{}, len(paths))
	tasks := make([]*Task, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		tasks = append(tasks, &Task{ID: p})
	}
	return tasks
}

func contextError(ctx context.Context) string {
	if err := ctx.Err(); err != nil {
		return err.Error()
	}
	return "task was not run"
}

type nopObserver struct{}

func (nopObserver) OnStart(int, int)                                        {}
func (nopObserver) OnResult(string, features.AnalysisResult, time.Duration) {}

// MultiObserver fans notifications out to several observers
type MultiObserver []Observer

func (m MultiObserver) OnStart(total, workers int) {
	for _, obs := range m {
		obs.OnStart(total, workers)
	}
}

func (m MultiObserver) OnResult(id string, result features.AnalysisResult, elapsed time.Duration) {
	for _, obs := range m {
		obs.OnResult(id, result, elapsed)
	}
}
