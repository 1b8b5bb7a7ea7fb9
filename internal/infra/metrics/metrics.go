// internal/infra/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"raritygate/internal/application/gate"
)

// Metrics は検証結果と HTTP リクエストの計測値です。
type Metrics struct {
	registry *prometheus.Registry

	decisions       *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

var _ gate.DecisionObserver = (*Metrics)(nil)

// New は専用レジストリ上にメトリクスを登録します。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raritygate",
			Name:      "decisions_total",
			Help:      "Validation decisions by index source and outcome (accept, reject, error).",
		}, []string{"source", "outcome"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "raritygate",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}
}

func (m *Metrics) ObserveDecision(source gate.Source, outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(source.String(), outcome).Inc()
}

// Handler は /metrics 用のハンドラです。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware は route（ServeMux のパターン）ごとのレイテンシを記録します。
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.requestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
