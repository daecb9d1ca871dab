// Package metrics provides Prometheus metrics for the apmatch service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InvoicesMatchedTotal tracks invoices processed by match outcome
	InvoicesMatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apmatch",
			Subsystem: "matching",
			Name:      "invoices_total",
			Help:      "Total number of invoices processed by match status",
		},
		[]string{"tenant_id", "match_status"},
	)

	// MatchDuration tracks how long a single invoice takes to match
	MatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apmatch",
			Subsystem: "matching",
			Name:      "invoice_duration_seconds",
			Help:      "Duration of single invoice matching in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"tenant_id"},
	)

	// ExceptionsCreatedTotal tracks exceptions created by type and severity
	ExceptionsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apmatch",
			Subsystem: "exceptions",
			Name:      "created_total",
			Help:      "Total number of match exceptions created",
		},
		[]string{"tenant_id", "exception_type", "severity"},
	)

	// EnhancementCallsTotal tracks ML confidence enhancement calls
	EnhancementCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apmatch",
			Subsystem: "enhancement",
			Name:      "calls_total",
			Help:      "Total number of ML enhancement calls by outcome",
		},
		[]string{"status"},
	)

	// JobsProcessedTotal tracks match jobs processed from the queue
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apmatch",
			Subsystem: "jobs",
			Name:      "processed_total",
			Help:      "Total number of match jobs processed from the queue",
		},
		[]string{"status"},
	)

	// JobDuration tracks batch job duration in seconds
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apmatch",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Duration of match jobs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"tenant_id"},
	)

	// DLQJobsTotal tracks jobs sent to the dead letter queue
	DLQJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apmatch",
			Subsystem: "dlq",
			Name:      "jobs_total",
			Help:      "Total number of jobs sent to dead letter queue",
		},
		[]string{"tenant_id", "reason"},
	)

	// VendorMergesTotal tracks vendor merges by outcome
	VendorMergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apmatch",
			Subsystem: "vendors",
			Name:      "merges_total",
			Help:      "Total number of vendor merges by outcome",
		},
		[]string{"tenant_id", "status"},
	)

	// KafkaMessagesPublished tracks audit events published to Kafka
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apmatch",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)
)

// RecordInvoiceMatch records the outcome of matching a single invoice
func RecordInvoiceMatch(tenantID, matchStatus string, durationSeconds float64) {
	InvoicesMatchedTotal.WithLabelValues(tenantID, matchStatus).Inc()
	MatchDuration.WithLabelValues(tenantID).Observe(durationSeconds)
}

// RecordException records a created match exception
func RecordException(tenantID, exceptionType, severity string) {
	ExceptionsCreatedTotal.WithLabelValues(tenantID, exceptionType, severity).Inc()
}

// RecordEnhancementCall records an ML enhancement attempt
func RecordEnhancementCall(status string) {
	EnhancementCallsTotal.WithLabelValues(status).Inc()
}

// RecordJob records a completed match job
func RecordJob(tenantID, status string, durationSeconds float64) {
	JobsProcessedTotal.WithLabelValues(status).Inc()
	JobDuration.WithLabelValues(tenantID).Observe(durationSeconds)
}

// RecordDLQJob records a dead letter queue job
func RecordDLQJob(tenantID, reason string) {
	DLQJobsTotal.WithLabelValues(tenantID, reason).Inc()
}

// RecordVendorMerge records a vendor merge attempt
func RecordVendorMerge(tenantID, status string) {
	VendorMergesTotal.WithLabelValues(tenantID, status).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}
