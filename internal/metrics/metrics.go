// Package metrics exposes Prometheus counters for shell decisions and the
// control API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgnsrekt/nearil_shell/internal/capability"
	"github.com/dgnsrekt/nearil_shell/internal/deeplink"
	"github.com/dgnsrekt/nearil_shell/internal/navigation"
)

// Metrics holds the shell's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Navigations      *prometheus.CounterVec
	LaunchFailures   *prometheus.CounterVec
	Activations      *prometheus.CounterVec
	CapabilityEvents *prometheus.CounterVec
	PromptsPending   prometheus.Gauge
	JournalDropped   prometheus.Counter

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Navigations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nearil_navigation_decisions_total",
				Help: "Navigation decisions by verdict and deciding rule",
			},
			[]string{"verdict", "rule"},
		),
		LaunchFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nearil_external_launch_failures_total",
				Help: "External actions that failed to start",
			},
			[]string{"action"},
		),
		Activations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nearil_activations_total",
				Help: "Activation events by classification and result",
			},
			[]string{"kind", "result"},
		),
		CapabilityEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nearil_capability_events_total",
				Help: "Capability bridge outcomes by request kind",
			},
			[]string{"kind", "result"},
		),
		PromptsPending: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "nearil_permission_prompts_pending",
				Help: "Native permission prompts awaiting an answer",
			},
		),
		JournalDropped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "nearil_journal_dropped_records_total",
				Help: "Events not journaled because the write buffer was full",
			},
		),
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nearil_http_requests_total",
				Help: "Control API requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nearil_http_request_duration_seconds",
				Help:    "Control API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Navigation implements shell.Observer.
func (m *Metrics) Navigation(d navigation.Decision) {
	m.Navigations.WithLabelValues(d.Verdict.String(), d.Rule).Inc()
	if d.LaunchErr != nil && d.Intent != nil {
		m.LaunchFailures.WithLabelValues(string(d.Intent.Action)).Inc()
	}
}

// Activation implements shell.Observer.
func (m *Metrics) Activation(o deeplink.Outcome) {
	kind := string(o.Kind)
	if kind == "" {
		kind = "none"
	}
	m.Activations.WithLabelValues(kind, o.Result).Inc()
}

// Capability implements shell.Observer.
func (m *Metrics) Capability(e capability.Event) {
	m.CapabilityEvents.WithLabelValues(string(e.Kind), e.Result).Inc()
}

// PromptsChanged records the number of outstanding permission prompts.
func (m *Metrics) PromptsChanged(n int) {
	m.PromptsPending.Set(float64(n))
}

// Middleware counts control API requests by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
