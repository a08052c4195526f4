// Package metrics exposes Prometheus metrics for the fls pipeline stages.
//
// Every stage of a session (configure, ingest, project, emit, open, decode)
// reports through ObserveStage, which bumps the stage counter and records
// the stage duration. Emission also reports the artifact size, opening an
// artifact reports its compression ratio and ingestion samples the process
// resident set size.
//
//	timer := metrics.NewTimer()
//	err := doIngest()
//	metrics.ObserveStage("ingest", "fls", timer.Stop(), err)
//
// The collectors live in the default registry, so a driver can expose them
// over HTTP or dump them once with WriteToTextfile.
package metrics

import (
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/process"
)

const namespace = "fls"

var (
	// StageOperations counts stage calls.
	// Labels: stage, engine, status (success/error)
	StageOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_operations_total",
			Help:      "Total number of pipeline stage calls",
		},
		[]string{"stage", "engine", "status"},
	)

	// StageDuration tracks how long each stage takes in seconds.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets: []float64{
				0.0001, // 100μs - state-only transitions
				0.001,
				0.01,
				0.1,
				1,
				10,
				60, // large inputs
			},
		},
		[]string{"stage", "engine"},
	)

	// RowsProcessed counts rows ingested, emitted and decoded.
	RowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_processed_total",
			Help:      "Total number of rows moved through a stage",
		},
		[]string{"stage", "engine"},
	)

	// ArtifactBytes records the size of every artifact written.
	ArtifactBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_size_bytes",
			Help:      "Size of emitted artifacts in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10), // 1KB .. 256GB
		},
		[]string{"engine"},
	)

	// CompressionRatio is raw chunk bytes over stored chunk bytes for the
	// last artifact an engine wrote.
	CompressionRatio = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "compression_ratio",
			Help:      "Raw to stored size ratio of the last emitted artifact",
		},
		[]string{"engine", "codec"},
	)

	// ProcessResidentBytes is the resident set size sampled after ingestion.
	ProcessResidentBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_resident_memory_bytes",
			Help:      "Resident set size of the fls process",
		},
	)

	// Throughput tracks rows per second of the last completed stage.
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "throughput_rows_per_second",
			Help:      "Rows per second of the last completed stage",
		},
		[]string{"stage", "engine"},
	)
)

// Status returns the status label for err.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveStage records one stage call.
func ObserveStage(stage, engine string, d time.Duration, err error) {
	StageOperations.WithLabelValues(stage, engine, Status(err)).Inc()
	StageDuration.WithLabelValues(stage, engine).Observe(d.Seconds())
}

// ObserveRows adds rows to the stage's row counter and updates throughput.
func ObserveRows(stage, engine string, rows int64, d time.Duration) {
	RowsProcessed.WithLabelValues(stage, engine).Add(float64(rows))
	if d > 0 {
		Throughput.WithLabelValues(stage, engine).Set(float64(rows) / d.Seconds())
	}
}

// ObserveArtifact records the size of the artifact written to path.
func ObserveArtifact(engine, path string) {
	if st, err := os.Stat(path); err == nil {
		ArtifactBytes.WithLabelValues(engine).Observe(float64(st.Size()))
	}
}

// ObserveCompression sets the compression ratio of an artifact. Engines
// that do not track chunk sizes report zero, which is ignored.
func ObserveCompression(engine, codec string, ratio float64) {
	if ratio > 0 {
		CompressionRatio.WithLabelValues(engine, codec).Set(ratio)
	}
}

var (
	selfOnce sync.Once
	self     *process.Process
)

// SampleProcessMemory updates ProcessResidentBytes and returns the sampled
// value. Zero means the platform could not report it.
func SampleProcessMemory() uint64 {
	selfOnce.Do(func() {
		self, _ = process.NewProcess(int32(os.Getpid())) //nolint:gosec // G115: pids fit int32
	})
	if self == nil {
		return 0
	}
	info, err := self.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	ProcessResidentBytes.Set(float64(info.RSS))
	return info.RSS
}

// WriteToTextfile writes every registered metric to path in the Prometheus
// text exposition format.
func WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

// Timer measures a stage's duration.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the time elapsed since NewTimer. It may be called more than
// once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
