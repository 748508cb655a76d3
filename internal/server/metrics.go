package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	registry     *prometheus.Registry
	requests     *prometheus.CounterVec
	formulae     prometheus.Gauge
	lintIssues   *prometheus.GaugeVec
	reloads      prometheus.Counter
	reloadErrors prometheus.Counter
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &metrics{
		registry: reg,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tapkeeper_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "code"},
		),
		formulae: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tapkeeper_formulae",
				Help: "Number of formulae in the tap",
			},
		),
		lintIssues: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tapkeeper_lint_issues",
				Help: "Lint issues in the tap by severity",
			},
			[]string{"severity"},
		),
		reloads: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tapkeeper_index_reloads_total",
				Help: "Total number of tap index reloads",
			},
		),
		reloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tapkeeper_index_reload_errors_total",
				Help: "Total number of failed tap index reloads",
			},
		),
	}
}

// instrument counts requests by matched route so that formula names do not
// become label values.
func (m *metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}
