package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics contains Prometheus metrics for outgoing API calls.
type APIMetrics struct {
	registry *prometheus.Registry

	requestsTotal *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
	transportErrs *prometheus.CounterVec
}

// NewAPIMetrics creates and registers API call metrics.
func NewAPIMetrics(registry *prometheus.Registry) (*APIMetrics, error) {
	m := &APIMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *APIMetrics) initMetrics() {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfmigrate_api_requests_total",
			Help: "API requests by target API, method and status code",
		},
		[]string{"api", "method", "status_code"}, // api: source, destination, download
	)

	m.rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfmigrate_api_rate_limited_total",
			Help: "Responses with status 429",
		},
		[]string{"api"},
	)

	m.transportErrs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfmigrate_api_transport_errors_total",
			Help: "Requests that failed before a response arrived",
		},
		[]string{"api"},
	)
}

// Describe implements the Collector interface
func (m *APIMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.requestsTotal.Describe(ch)
	m.rateLimited.Describe(ch)
	m.transportErrs.Describe(ch)
}

// Collect implements the Collector interface
func (m *APIMetrics) Collect(ch chan<- prometheus.Metric) {
	m.requestsTotal.Collect(ch)
	m.rateLimited.Collect(ch)
	m.transportErrs.Collect(ch)
}

// RecordResponse counts one request outcome.
func (m *APIMetrics) RecordResponse(api string, req *http.Request, resp *http.Response, err error) {
	if err != nil || resp == nil {
		m.transportErrs.WithLabelValues(api).Inc()
		return
	}
	m.requestsTotal.WithLabelValues(api, req.Method, strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode == http.StatusTooManyRequests {
		m.rateLimited.WithLabelValues(api).Inc()
	}
}

// Hook returns an after-response hook for an httpclient tagged with api.
func (m *APIMetrics) Hook(api string) func(*http.Request, *http.Response, error) {
	return func(req *http.Request, resp *http.Response, err error) {
		m.RecordResponse(api, req, resp, err)
	}
}
