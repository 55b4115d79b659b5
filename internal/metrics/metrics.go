package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestLatency  *prometheus.HistogramVec
	FallbacksTotal  *prometheus.CounterVec
	ProviderHealthy *prometheus.GaugeVec
	TokensTotal     *prometheus.CounterVec
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_requests_total",
			Help: "Assistant replies by the path that produced them",
		}, []string{"provider", "source"}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assistant_request_latency_ms",
			Help:    "Reply latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 12),
		}, []string{"provider"}),
		FallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_fallbacks_total",
			Help: "Requests served by a provider other than the first choice",
		}, []string{"from", "to"}),
		ProviderHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "assistant_provider_eligible",
			Help: "1 when the provider can be selected, 0 otherwise",
		}, []string{"provider"}),
		TokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_tokens_estimated_total",
			Help: "Estimated tokens sent to and received from remote providers",
		}, []string{"provider"}),
	}
	reg.MustRegister(m.RequestsTotal, m.RequestLatency, m.FallbacksTotal, m.ProviderHealthy, m.TokensTotal)
	return m
}

func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
