// Package metrics exposes Prometheus counters for outreach, records and webhook traffic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	MessagesSent     *prometheus.CounterVec
	CallsPlaced      *prometheus.CounterVec
	CallOutcomes     *prometheus.CounterVec
	RecordsDispatch  *prometheus.CounterVec
	SignaturePolls   *prometheus.CounterVec
	Webhooks         *prometheus.CounterVec
	ActivityDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Name:      "messages_sent_total",
			Help:      "Outbound SMS attempts by result.",
		}, []string{"result"}),
		CallsPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Name:      "calls_placed_total",
			Help:      "Outbound calls by purpose and result.",
		}, []string{"purpose", "result"}),
		CallOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Name:      "call_outcomes_total",
			Help:      "Completed calls by outcome.",
		}, []string{"outcome"}),
		RecordsDispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Name:      "records_dispatch_total",
			Help:      "Records requests sent by channel and result.",
		}, []string{"channel", "result"}),
		SignaturePolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Name:      "signature_polls_total",
			Help:      "E-signature status polls by observed status.",
		}, []string{"status"}),
		Webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Name:      "webhooks_total",
			Help:      "Inbound webhooks by kind and result.",
		}, []string{"kind", "result"}),
		ActivityDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "outreach",
			Name:      "platform_call_duration_seconds",
			Help:      "Latency of outbound platform calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"platform"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.MessagesSent,
		m.CallsPlaced,
		m.CallOutcomes,
		m.RecordsDispatch,
		m.SignaturePolls,
		m.Webhooks,
		m.ActivityDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
