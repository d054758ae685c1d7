// Package metrics records batch analysis metrics on a private Prometheus
// registry and writes them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/RyanBlaney/sonido-mood/features"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Recorder contains the analysis metrics. It implements batch.Observer.
type Recorder struct {
	FilesTotal       *prometheus.CounterVec
	FailuresTotal    *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	BatchWorkers     prometheus.Gauge
	BatchFiles       prometheus.Gauge

	registry *prometheus.Registry
}

// NewRecorder creates a recorder and registers it with registry. A nil
// registry gets a fresh one.
func NewRecorder(registry *prometheus.Registry) (*Recorder, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Recorder{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register analysis metrics: %w", err)
	}
	return m, nil
}

func (m *Recorder) initMetrics() {
	m.FilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonido_mood_files_total",
			Help: "Total number of analysed files partitioned by outcome.",
		},
		[]string{"status"},
	)
	m.FailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonido_mood_failures_total",
			Help: "Total number of failed analyses partitioned by the stage that failed.",
		},
		[]string{"stage"},
	)
	m.AnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sonido_mood_analysis_duration_seconds",
			Help:    "Time taken to analyse one file",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)
	m.BatchWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sonido_mood_batch_workers",
			Help: "Worker pool size of the most recent batch.",
		},
	)
	m.BatchFiles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sonido_mood_batch_files",
			Help: "Number of unique files submitted in the most recent batch.",
		},
	)
}

// Describe implements the prometheus.Collector interface.
func (m *Recorder) Describe(ch chan<- *prometheus.Desc) {
	m.FilesTotal.Describe(ch)
	m.FailuresTotal.Describe(ch)
	ch <- m.AnalysisDuration.Desc()
	ch <- m.BatchWorkers.Desc()
	ch <- m.BatchFiles.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *Recorder) Collect(ch chan<- prometheus.Metric) {
	m.FilesTotal.Collect(ch)
	m.FailuresTotal.Collect(ch)
	ch <- m.AnalysisDuration
	ch <- m.BatchWorkers
	ch <- m.BatchFiles
}

func (m *Recorder) OnStart(total, workers int) {
	m.BatchFiles.Set(float64(total))
	m.BatchWorkers.Set(float64(workers))
}

func (m *Recorder) OnResult(_ string, result features.AnalysisResult, elapsed time.Duration) {
	if result.Success() {
		m.FilesTotal.WithLabelValues(StatusSuccess).Inc()
	} else {
		m.FilesTotal.WithLabelValues(StatusFailure).Inc()
		m.FailuresTotal.WithLabelValues(FailureStage(result.ErrorMessage())).Inc()
	}
	// undispatched tasks were never timed
	if elapsed > 0 {
		m.AnalysisDuration.Observe(elapsed.Seconds())
	}
}

// WriteTextfile writes all metrics to path atomically
func (m *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

var knownStages = map[string]bool{
	features.StageLoad:             true,
	features.StageBeatTrack:        true,
	features.StageChroma:           true,
	features.StageRMS:              true,
	features.StageOnsetStrength:    true,
	features.StagePredominantPulse: true,
	features.StageSpectralCentroid: true,
}

// FailureStage extracts the stage label from a failure message, "worker"
// for pool-level failures and "other" for anything unrecognised
func FailureStage(message string) string {
	prefix, _, _ := strings.Cut(message, ":")
	switch {
	case knownStages[prefix]:
		return prefix
	case prefix == "worker failed":
		return "worker"
	case prefix == "context canceled", prefix == "context deadline exceeded":
		return "canceled"
	}
	return "other"
}
