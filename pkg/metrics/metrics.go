// Package metrics holds the Prometheus collectors for the contact job pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dispatcher
	JobsClaimed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hrm_contact_jobs_claimed_total",
		Help: "Contact jobs claimed for an attempt by the dispatcher",
	}, []string{"job_type"})

	JobsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hrm_contact_jobs_published_total",
		Help: "Dispatch messages published to the job queue",
	}, []string{"job_type"})

	PublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hrm_contact_jobs_publish_failures_total",
		Help: "Dispatch messages that could not be published",
	}, []string{"job_type"})

	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hrm_contact_jobs_dispatch_duration_seconds",
		Help:    "Duration of one dispatcher tick",
		Buckets: prometheus.DefBuckets,
	})

	// Completion handler
	Completions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hrm_contact_jobs_completions_total",
		Help: "Completion messages handled, by attempt result and outcome",
	}, []string{"job_type", "result", "outcome"})

	CompletionMessageErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hrm_contact_jobs_completion_message_errors_total",
		Help: "Completion messages left unacknowledged after a handling error",
	})

	// Sweeper
	CleanupOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hrm_contact_jobs_cleanup_total",
		Help: "Completed jobs examined by the cleanup sweeper, by outcome",
	}, []string{"outcome"})

	// Backlog, refreshed by a scheduled task
	PendingJobs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hrm_contact_jobs_pending",
		Help: "Contact jobs not yet completed",
	}, []string{"job_type"})
)
