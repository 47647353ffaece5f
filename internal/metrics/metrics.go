package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

/*
Metrics Types:

- CounterVec: reactions by outcome, trigger runs by source, notifier
  failures by action kind.

- Histogram: reconcile latency and trigger durations, so we see
  percentiles and not only averages.

- Gauge: live websocket subscribers.

Registration:
Collectors are registered on the Registerer handed to New. The service
passes prometheus.DefaultRegisterer; tests pass a fresh registry so
repeated construction never collides.
*/

type Metrics struct {
	ReactionsProcessed *prometheus.CounterVec
	ReactionsIgnored   *prometheus.CounterVec
	ReactionsRejected  *prometheus.CounterVec
	ReconcileTime      prometheus.Histogram

	PollsOpened     prometheus.Counter
	RemindersSent   prometheus.Counter
	TriggerRuns     *prometheus.CounterVec
	TriggerFailures *prometheus.CounterVec
	TriggerSkipped  *prometheus.CounterVec
	TriggerDuration *prometheus.HistogramVec

	FeedFailures *prometheus.CounterVec

	NotifierSent     *prometheus.CounterVec
	NotifierFailures *prometheus.CounterVec

	TallySubscribers prometheus.Gauge
}

func New(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		ReactionsProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconciler",
				Name:      "reactions_processed_total",
				Help:      "Reactions that changed a poll response",
			},
			[]string{"action", "response"},
		),
		ReactionsIgnored: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconciler",
				Name:      "reactions_ignored_total",
				Help:      "Reactions ignored (unknown emoji, unknown message, stale removal)",
			},
			[]string{"reason"},
		),
		ReactionsRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconciler",
				Name:      "reactions_rejected_total",
				Help:      "Reactions rejected with an error",
			},
			[]string{"reason"},
		),
		ReconcileTime: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "reconciler",
				Name:      "reconcile_time_seconds",
				Help:      "Histogram of reaction reconcile times",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
			},
		),

		PollsOpened: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "polls_opened_total",
				Help:      "Polls created",
			},
		),
		RemindersSent: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "reminders_claimed_total",
				Help:      "Reminder recipients claimed, including channel-wide reminders",
			},
		),
		TriggerRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "trigger_runs_total",
				Help:      "Trigger runs by source",
			},
			[]string{"trigger", "source"},
		),
		TriggerFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "trigger_failures_total",
				Help:      "Trigger runs that returned an error",
			},
			[]string{"trigger"},
		),
		TriggerSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "trigger_skipped_total",
				Help:      "Trigger ticks skipped because a run was in progress",
			},
			[]string{"trigger"},
		),
		TriggerDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "trigger_duration_seconds",
				Help:      "Histogram of trigger run durations",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"trigger"},
		),

		FeedFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "fetch_failures_total",
				Help:      "Feed snapshots that could not be built",
			},
			[]string{"team", "reason"},
		),

		NotifierSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notifier",
				Name:      "actions_sent_total",
				Help:      "Chat actions handed to the transport",
			},
			[]string{"kind"},
		),
		NotifierFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notifier",
				Name:      "action_failures_total",
				Help:      "Chat actions the transport failed to deliver",
			},
			[]string{"kind"},
		),

		TallySubscribers: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pubsub",
				Name:      "tally_subscribers",
				Help:      "Connected live tally websocket clients",
			},
		),
	}
}
