package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RenderMetrics observes document renders. It satisfies render.Observer.
type RenderMetrics struct {
	duration *prometheus.HistogramVec
	pages    *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

func newRenderMetrics(registerer prometheus.Registerer) *RenderMetrics {
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mtr_render_duration_seconds",
		Help:    "PDF render duration per document family.",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"document"})
	pages := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mtr_render_pages",
		Help:    "Pages per rendered document.",
		Buckets: []float64{1, 2, 3, 4, 6, 10},
	}, []string{"document"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mtr_render_failures_total",
		Help: "Failed renders per document family.",
	}, []string{"document"})
	registerer.MustRegister(duration, pages, failures)
	return &RenderMetrics{duration: duration, pages: pages, failures: failures}
}

// ObserveRender records one render outcome.
func (m *RenderMetrics) ObserveRender(document string, pages int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(document).Observe(elapsed.Seconds())
	if err != nil {
		m.failures.WithLabelValues(document).Inc()
		return
	}
	m.pages.WithLabelValues(document).Observe(float64(pages))
}
