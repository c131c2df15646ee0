// Package metrics exposes prometheus counters for the proxy and the session core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	upstream *prometheus.CounterVec
	cache    *prometheus.CounterVec
	fetches  *prometheus.CounterVec
	sessions prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "city_weather_requests_total",
				Help: "Total HTTP requests by route, method and status.",
			},
			[]string{"route", "method", "status"},
		),
		upstream: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "city_weather_proxy_upstream_total",
				Help: "Upstream calls made by the proxy by action and result.",
			},
			[]string{"action", "result"},
		),
		cache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "city_weather_proxy_cache_total",
				Help: "Proxy cache lookups by action and result.",
			},
			[]string{"action", "result"},
		),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "city_weather_session_fetches_total",
				Help: "Session fetches by part and result.",
			},
			[]string{"part", "result"},
		),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "city_weather_sessions",
			Help: "Live sessions.",
		}),
	}
	m.registry.MustRegister(
		m.requests, m.upstream, m.cache, m.fetches, m.sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(route, method, status string) {
	m.requests.WithLabelValues(route, method, status).Inc()
}

// ObserveUpstream implements proxy.Recorder.
func (m *Metrics) ObserveUpstream(action string, err error) {
	m.upstream.WithLabelValues(action, result(err)).Inc()
}

// ObserveCache implements proxy.Recorder.
func (m *Metrics) ObserveCache(action string, hit bool) {
	r := "miss"
	if hit {
		r = "hit"
	}
	m.cache.WithLabelValues(action, r).Inc()
}

// ObserveFetch implements weather.Recorder.
func (m *Metrics) ObserveFetch(part string, err error) {
	m.fetches.WithLabelValues(part, result(err)).Inc()
}

func (m *Metrics) SetSessions(n int) {
	m.sessions.Set(float64(n))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
