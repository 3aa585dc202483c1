// Package metrics exposes publishing run counters for Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the collectors for publishing runs.
type Metrics struct {
	RunsTotal         *prometheus.CounterVec
	RunDuration       *prometheus.HistogramVec
	CompressionsTotal *prometheus.CounterVec
	QualityUsed       prometheus.Histogram
	SegmentsDropped   *prometheus.CounterVec
}

// New creates and registers the collectors once per process.
//
// Metrics:
//   - autopost_runs_total{provider,target,result}
//   - autopost_run_duration_seconds{provider}
//   - autopost_compressions_total{resized}
//   - autopost_compression_quality
//   - autopost_caption_segments_dropped_total{segment}
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "autopost_runs_total",
					Help: "Publishing attempts per provider and target",
				},
				[]string{"provider", "target", "result"}, // "success" or "failure"
			),
			RunDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "autopost_run_duration_seconds",
					Help:    "Duration of a full publishing run in seconds",
					Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
				},
				[]string{"provider"},
			),
			CompressionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "autopost_compressions_total",
					Help: "Images fitted under a byte ceiling",
				},
				[]string{"resized"},
			),
			QualityUsed: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "autopost_compression_quality",
					Help:    "JPEG quality chosen for published images",
					Buckets: prometheus.LinearBuckets(20, 10, 9),
				},
			),
			SegmentsDropped: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "autopost_caption_segments_dropped_total",
					Help: "Optional caption segments dropped to fit the character ceiling",
				},
				[]string{"segment"},
			),
		}
	})
	return globalMetrics
}

// RecordRun counts one provider/target attempt.
func (m *Metrics) RecordRun(provider, target string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.RunsTotal.WithLabelValues(provider, target, result).Inc()
}

// RecordCompression counts one compressed image.
func (m *Metrics) RecordCompression(quality int, resized bool) {
	m.CompressionsTotal.WithLabelValues(strconv.FormatBool(resized)).Inc()
	m.QualityUsed.Observe(float64(quality))
}

// RecordDropped counts each dropped caption segment.
func (m *Metrics) RecordDropped(ids []string) {
	for _, id := range ids {
		m.SegmentsDropped.WithLabelValues(id).Inc()
	}
}

// WriteTextfile dumps the default registry for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
