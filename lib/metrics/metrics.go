// Package metrics holds the prometheus collectors of the balance processor, labelled by service name.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes of a notification.
const (
	OutcomeOK        = "ok"
	OutcomeMalformed = "malformed"
	OutcomeFailed    = "failed"
)

var (
	// Dispatch loop
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "balproc",
		Subsystem: "dispatch",
		Name:      "notifications_total",
		Help:      "Notifications acknowledged by outcome",
	}, []string{"service", "outcome"})

	PipelineLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "balproc",
		Subsystem: "dispatch",
		Name:      "pipeline_duration_seconds",
		Help:      "Time from delivery to acknowledgement",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"service"})

	// Extractor and filter
	Candidates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "balproc",
		Subsystem: "extractor",
		Name:      "candidates_total",
		Help:      "Candidate addresses by stage (extracted, tracked)",
	}, []string{"service", "stage"})

	// Fetcher
	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "balproc",
		Subsystem: "fetcher",
		Name:      "errors_total",
		Help:      "Ledger balance queries that failed or timed out",
	}, []string{"service", "kind"})

	// Reconciler
	AccountsReconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "balproc",
		Subsystem: "reconciler",
		Name:      "accounts_total",
		Help:      "Accounts written to the store",
	}, []string{"service"})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "balproc",
		Subsystem: "reconciler",
		Name:      "store_errors_total",
		Help:      "Store writes that failed",
	}, []string{"service"})

	// Publisher
	MessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "balproc",
		Subsystem: "publisher",
		Name:      "messages_total",
		Help:      "Balance messages published",
	}, []string{"service"})
)
