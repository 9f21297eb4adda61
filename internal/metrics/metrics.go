// Package metrics exposes Prometheus counters for prediction throughput and
// coverage scans.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Target status labels.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Collector bundles the prediction metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Predictions     *prometheus.CounterVec
	Targets         *prometheus.CounterVec
	TargetDurations *prometheus.HistogramVec
	ScanInFlight    prometheus.Gauge
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	predictions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hfpredict_predictions_total",
		Help: "Frequency predictions produced, labeled by best-mode layer (none when no mode).",
	}, []string{"layer"}), "hfpredict_predictions_total")
	if err != nil {
		return nil, err
	}

	targets, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hfpredict_scan_targets_total",
		Help: "Coverage scan targets processed, labeled by status.",
	}, []string{"status"}), "hfpredict_scan_targets_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hfpredict_target_duration_seconds",
		Help:    "Time to predict one circuit in seconds.",
		Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"status"}), "hfpredict_target_duration_seconds")
	if err != nil {
		return nil, err
	}

	inFlight, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hfpredict_scan_in_flight",
		Help: "Coverage scan targets currently being predicted.",
	}), "hfpredict_scan_in_flight")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:        gatherer,
		Predictions:     predictions,
		Targets:         targets,
		TargetDurations: durations,
		ScanInFlight:    inFlight,
	}, nil
}

// ObservePrediction counts one frequency prediction.
func (c *Collector) ObservePrediction(layer string) {
	if c == nil || c.Predictions == nil {
		return
	}
	if layer == "" {
		layer = "none"
	}
	c.Predictions.WithLabelValues(layer).Inc()
}

// ObserveTarget records one scan target and its latency.
func (c *Collector) ObserveTarget(failed bool, elapsed time.Duration) {
	if c == nil {
		return
	}
	status := StatusOK
	if failed {
		status = StatusFailed
	}
	if c.Targets != nil {
		c.Targets.WithLabelValues(status).Inc()
	}
	if c.TargetDurations != nil {
		c.TargetDurations.WithLabelValues(status).Observe(elapsed.Seconds())
	}
}

// TargetStarted and TargetDone track the in-flight gauge.
func (c *Collector) TargetStarted() {
	if c == nil || c.ScanInFlight == nil {
		return
	}
	c.ScanInFlight.Inc()
}

func (c *Collector) TargetDone() {
	if c == nil || c.ScanInFlight == nil {
		return
	}
	c.ScanInFlight.Dec()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
