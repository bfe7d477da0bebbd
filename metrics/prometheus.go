package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes pipeline metrics to Prometheus. Each collector owns its
// registry so several pipelines, or tests, never clash.
type Collector struct {
	Registry *prometheus.Registry

	StageDuration   *prometheus.HistogramVec
	StagePixels     *prometheus.CounterVec
	StageErrors     *prometheus.CounterVec
	TrainingSamples prometheus.Gauge
	CVThreshold     prometheus.Gauge
	QualityFlags    *prometheus.CounterVec
	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
}

func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		Registry: reg,

		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
			},
			[]string{"stage"},
		),

		StagePixels: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_pixels_total",
				Help:      "Pixels written by pipeline stages by kind",
			},
			[]string{"stage", "kind"}, // "valid", "nan"
		),

		StageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_errors_total",
				Help:      "Total number of failed pipeline stages",
			},
			[]string{"stage"},
		),

		TrainingSamples: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sharpener_training_samples",
				Help:      "Coarse cells used to train the last sharpening model",
			},
		),

		CVThreshold: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sharpener_cv_threshold",
				Help:      "Homogeneity threshold applied by the last sharpening",
			},
		),

		QualityFlags: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "energy_balance_flags_total",
				Help:      "Energy balance pixels by quality flag",
			},
			[]string{"flag"},
		),

		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Pipeline runs by status",
			},
			[]string{"status"},
		),

		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of whole pipeline runs in seconds",
				Buckets:   []float64{1, 10, 30, 60, 300, 600, 1800, 3600},
			},
		),
	}
}

// Handler serves the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveStage(stage *StageInfo) {
	c.StageDuration.WithLabelValues(stage.Name).Observe(stage.Duration.Seconds())
	if stage.Error != "" {
		c.StageErrors.WithLabelValues(stage.Name).Inc()
		return
	}
	c.StagePixels.WithLabelValues(stage.Name, "valid").Add(float64(stage.Pixels - stage.NaNPixels))
	c.StagePixels.WithLabelValues(stage.Name, "nan").Add(float64(stage.NaNPixels))
}

func (c *Collector) ObserveSharpener(info *SharpenerInfo) {
	c.TrainingSamples.Set(float64(info.TrainingSamples))
	c.CVThreshold.Set(info.CVThreshold)
}

func (c *Collector) ObserveFlags(counts map[int]int) {
	for flag, n := range counts {
		c.QualityFlags.WithLabelValues(strconv.Itoa(flag)).Add(float64(n))
	}
}

func (c *Collector) ObserveRun(status string, d time.Duration) {
	c.RunsTotal.WithLabelValues(status).Inc()
	c.RunDuration.Observe(d.Seconds())
}
