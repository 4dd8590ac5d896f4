package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wager",
	Subsystem: "ledger",
	Name:      "entries_total",
	Help:      "Transactions appended to the ledger by kind.",
}, []string{"kind"})

var LedgerCoins = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wager",
	Subsystem: "ledger",
	Name:      "coins_moved_total",
	Help:      "Absolute coins moved by transaction kind.",
}, []string{"kind"})

var InsufficientFunds = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "wager",
	Subsystem: "ledger",
	Name:      "insufficient_funds_total",
	Help:      "Guarded debits rejected for lack of funds.",
})

var TxRetries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "wager",
	Subsystem: "db",
	Name:      "serialization_retries_total",
	Help:      "Transactions retried after a serialization failure or deadlock.",
})

var StaleRetries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "wager",
	Subsystem: "api",
	Name:      "stale_state_retries_total",
	Help:      "Requests retried after losing a status compare-and-swap.",
})

var Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wager",
	Subsystem: "state",
	Name:      "transitions_total",
	Help:      "Terminal state transitions by entity and transition.",
}, []string{"entity", "transition"})

var SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wager",
	Subsystem: "sweep",
	Name:      "runs_total",
	Help:      "Sweep executions by name and result.",
}, []string{"sweep", "result"})

var SweepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wager",
	Subsystem: "sweep",
	Name:      "failures_total",
	Help:      "Entities a sweep failed to process.",
}, []string{"sweep"})

var SweepItems = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wager",
	Subsystem: "sweep",
	Name:      "items_total",
	Help:      "Entities changed by sweeps.",
}, []string{"sweep"})

var OutboxPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wager",
	Subsystem: "outbox",
	Name:      "published_total",
	Help:      "Outbox events handed to publishers by event kind.",
}, []string{"kind"})

var OutboxFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "wager",
	Subsystem: "outbox",
	Name:      "publish_failures_total",
	Help:      "Outbox events a publisher failed to accept.",
})

var HTTPRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "wager",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by route pattern and status.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "status"})
