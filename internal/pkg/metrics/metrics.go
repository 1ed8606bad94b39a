package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BillingSyncsTotal counts Sync Engine runs by outcome (ok, provider_error, store_error, invalid).
	BillingSyncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coursefox",
		Subsystem: "billing",
		Name:      "syncs_total",
		Help:      "Subscription sync runs by outcome.",
	}, []string{"outcome"})

	// BillingSyncDuration tracks provider round-trip plus cache write latency.
	BillingSyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "coursefox",
		Subsystem: "billing",
		Name:      "sync_duration_seconds",
		Help:      "Subscription sync duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})

	// BillingWebhooksTotal counts webhook deliveries by gateway outcome.
	BillingWebhooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coursefox",
		Subsystem: "billing",
		Name:      "webhooks_total",
		Help:      "Billing webhook deliveries by outcome.",
	}, []string{"outcome"})

	// JobsTotal counts finished background jobs by type and outcome.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coursefox",
		Subsystem: "jobqueue",
		Name:      "jobs_total",
		Help:      "Background jobs by type and outcome.",
	}, []string{"type", "outcome"})
)
