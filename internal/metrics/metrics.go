// Package metrics holds the Prometheus collectors shared by the HTTP and IPC
// transports.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one process. Each instance has its own
// registry, so tests can create as many as they like.
//
// Metrics:
//   - streetmatch_compare_total{transport,label} - verdicts served
//   - streetmatch_compare_errors_total{transport,kind} - failed comparisons
//   - streetmatch_compare_duration_seconds{transport} - comparison latency
//   - streetmatch_feedback_total{label,status} - feedback updates applied
//   - streetmatch_geocode_total{result} - geocoding outcomes
//   - streetmatch_model_updates - updates applied to the live model
type Metrics struct {
	Registry *prometheus.Registry

	CompareTotal    *prometheus.CounterVec
	CompareErrors   *prometheus.CounterVec
	CompareDuration *prometheus.HistogramVec
	FeedbackTotal   *prometheus.CounterVec
	GeocodeTotal    *prometheus.CounterVec
	ModelUpdates    prometheus.Gauge
}

// New creates and registers all collectors, plus the Go and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		CompareTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streetmatch_compare_total",
				Help: "Total number of comparisons served, by final label",
			},
			[]string{"transport", "label"},
		),
		CompareErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streetmatch_compare_errors_total",
				Help: "Total number of failed comparisons",
			},
			[]string{"transport", "kind"}, // "invalid_input", "persistence", "internal"
		),
		CompareDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "streetmatch_compare_duration_seconds",
				Help:    "Duration of a comparison including any feedback update",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
			[]string{"transport"},
		),
		FeedbackTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streetmatch_feedback_total",
				Help: "Total number of feedback labels received",
			},
			[]string{"label", "status"}, // "ok", "not_saved", "rejected"
		),
		GeocodeTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streetmatch_geocode_total",
				Help: "Total number of geocoding requests by result",
			},
			[]string{"result"},
		),
		ModelUpdates: f.NewGauge(prometheus.GaugeOpts{
			Name: "streetmatch_model_updates",
			Help: "Number of online updates applied to the live model",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveCompare records one comparison. kind is empty on success.
func (m *Metrics) ObserveCompare(transport, label, kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CompareDuration.WithLabelValues(transport).Observe(elapsed.Seconds())
	if kind != "" {
		m.CompareErrors.WithLabelValues(transport, kind).Inc()
	}
	if label != "" {
		m.CompareTotal.WithLabelValues(transport, label).Inc()
	}
}

// ObserveFeedback records one feedback label and the live update count.
func (m *Metrics) ObserveFeedback(label, status string, updates int) {
	if m == nil {
		return
	}
	m.FeedbackTotal.WithLabelValues(label, status).Inc()
	m.ModelUpdates.Set(float64(updates))
}

// ObserveGeocode records one geocoding outcome.
func (m *Metrics) ObserveGeocode(result string) {
	if m == nil {
		return
	}
	m.GeocodeTotal.WithLabelValues(result).Inc()
}
