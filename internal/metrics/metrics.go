package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveListeners tracks listeners currently attached per subscription kind
	ActiveListeners = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainsub_active_listeners",
			Help: "Number of listeners currently attached",
		},
		[]string{"kind"},
	)

	// MessagesDelivered tracks messages handed to listeners
	MessagesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsub_messages_delivered_total",
			Help: "Total number of messages delivered to listeners",
		},
		[]string{"kind", "event"},
	)

	// ErrorsEmitted tracks errors routed to error channels
	ErrorsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsub_errors_emitted_total",
			Help: "Total number of errors routed to error listeners",
		},
		[]string{"kind", "error_type"},
	)

	// ErrorsDropped tracks errors emitted while no error listener was registered
	ErrorsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsub_errors_dropped_total",
			Help: "Total number of errors dropped for lack of an error listener",
		},
		[]string{"kind"},
	)

	// RPCCallsTotal tracks backend calls per method
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsub_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"method"},
	)

	// RPCErrorsTotal tracks failed backend calls per method
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsub_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"method"},
	)

	// RPCLatency tracks backend call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainsub_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// ChainLatestBlock tracks the latest block seen by the block poller
	ChainLatestBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainsub_chain_latest_block",
			Help: "Latest block height observed by the poller",
		},
	)

	// JournalWriteErrors tracks outcome journal failures
	JournalWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsub_journal_write_errors_total",
			Help: "Total number of failed outcome journal writes",
		},
		[]string{"backend"},
	)

	// OutcomesDropped tracks outcomes discarded because a handler queue was full
	OutcomesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsub_outcomes_dropped_total",
			Help: "Total number of outcomes dropped by a full handler queue",
		},
		[]string{"handler"},
	)
)
