package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	eventsIndexed *prometheus.CounterVec
	lastIndexed   prometheus.Gauge
	chainHead     prometheus.Gauge
	rpcErrors     prometheus.Counter
	sinkErrors    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		eventsIndexed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lynx",
			Name:      "events_indexed_total",
			Help:      "Decoded contract events delivered to the sink.",
		}, []string{"event"}),
		lastIndexed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lynx",
			Name:      "last_indexed_block",
			Help:      "Highest block whose logs have been fully delivered.",
		}),
		chainHead: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lynx",
			Name:      "chain_head_block",
			Help:      "Latest block number reported by the RPC endpoint.",
		}),
		rpcErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lynx",
			Name:      "rpc_errors_total",
			Help:      "Failed RPC calls made by the sync loop.",
		}),
		sinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lynx",
			Name:      "sink_errors_total",
			Help:      "Events the sink refused.",
		}),
	}
	reg.MustRegister(m.eventsIndexed, m.lastIndexed, m.chainHead, m.rpcErrors, m.sinkErrors)
	return m
}
