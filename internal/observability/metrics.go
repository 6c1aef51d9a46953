// Package observability holds the Prometheus collectors for the accrual engine.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activitiesLogged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ergolife",
		Subsystem: "accrual",
		Name:      "activities_logged_total",
		Help:      "Number of chores recorded, labeled by whether the completion bonus applied.",
	}, []string{"bonus"})

	pointsAwarded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ergolife",
		Subsystem: "accrual",
		Name:      "points_awarded_total",
		Help:      "Total points credited to wallets by logged chores.",
	})

	streakTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ergolife",
		Subsystem: "accrual",
		Name:      "streak_transitions_total",
		Help:      "Streak tracker outcomes grouped by message.",
	}, []string{"message"})

	streakFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ergolife",
		Subsystem: "accrual",
		Name:      "streak_update_failures_total",
		Help:      "Post-commit streak updates that failed and were skipped.",
	})

	logActivityDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ergolife",
		Subsystem: "accrual",
		Name:      "log_activity_duration_seconds",
		Help:      "End-to-end latency of logging a chore.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	})

	lastActivityGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ergolife",
		Subsystem: "accrual",
		Name:      "last_activity_logged_timestamp_seconds",
		Help:      "Unix timestamp of the most recent chore committed to the store.",
	})
)

func init() {
	prometheus.MustRegister(activitiesLogged, pointsAwarded, streakTransitions, streakFailures, logActivityDuration, lastActivityGauge)
}

// RecordActivityLogged counts a committed chore and its points.
func RecordActivityLogged(points int, bonus bool, ts time.Time) {
	activitiesLogged.WithLabelValues(strconv.FormatBool(bonus)).Inc()
	pointsAwarded.Add(float64(points))
	if !ts.IsZero() {
		lastActivityGauge.Set(float64(ts.Unix()))
	}
}

// RecordStreakTransition counts a streak outcome.
func RecordStreakTransition(message string) {
	streakTransitions.WithLabelValues(message).Inc()
}

// RecordStreakFailure counts a swallowed streak update failure.
func RecordStreakFailure() {
	streakFailures.Inc()
}

// ObserveLogActivity records the latency of a LogActivity call.
func ObserveLogActivity(d time.Duration) {
	logActivityDuration.Observe(d.Seconds())
}
