// Package metrics exposes Prometheus counters for the light link and the
// HTTP surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry creates a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the scrape handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Metrics holds the application metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	FramesSent    *prometheus.CounterVec // labels: command
	WriteErrors   *prometheus.CounterVec // labels: command
	WriteSeconds  prometheus.Histogram
	ColorRequests *prometheus.CounterVec // labels: result=ok|invalid|failed
	Connected     prometheus.Gauge
}

// New registers and returns the application metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "light_frames_sent_total",
			Help: "Frames written to the light characteristic.",
		}, []string{"command"}),
		WriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "light_frame_write_errors_total",
			Help: "Frames whose write failed or timed out.",
		}, []string{"command"}),
		WriteSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "light_frame_write_seconds",
			Help:    "Time spent in a single characteristic write.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		}),
		ColorRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "light_requests_total",
			Help: "HTTP light requests by result.",
		}, []string{"result"}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "light_connected",
			Help: "1 while the light connection is up.",
		}),
	}
	reg.MustRegister(m.FramesSent, m.WriteErrors, m.WriteSeconds, m.ColorRequests, m.Connected)
	return m
}

// ObserveWrite records one characteristic write.
func (m *Metrics) ObserveWrite(command string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.WriteSeconds.Observe(d.Seconds())
	if err != nil {
		m.WriteErrors.WithLabelValues(command).Inc()
		return
	}
	m.FramesSent.WithLabelValues(command).Inc()
}

// ObserveRequest records the outcome of one HTTP light request.
func (m *Metrics) ObserveRequest(result string) {
	if m == nil {
		return
	}
	m.ColorRequests.WithLabelValues(result).Inc()
}

// SetConnected updates the connection gauge.
func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.Connected.Set(1)
		return
	}
	m.Connected.Set(0)
}
