package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	fetchAttemptsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "leaderboard",
		Subsystem: "strava",
		Name:      "fetch_attempts_total",
		Help:      "Number of activity listing requests issued, retries included.",
	})

	fetchExhaustedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "leaderboard",
		Subsystem: "strava",
		Name:      "fetch_exhausted_total",
		Help:      "Number of activity fetches that failed every retry attempt.",
	})

	tokenRefreshCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leaderboard",
		Subsystem: "strava",
		Name:      "token_refreshes_total",
		Help:      "Number of OAuth refresh grants, labeled by outcome.",
	}, []string{"outcome"})

	syncFailedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "leaderboard",
		Subsystem: "sync",
		Name:      "participant_failures_total",
		Help:      "Number of participant/week sync units that ended in failure.",
	})

	weeklyUpsertGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "leaderboard",
		Subsystem: "persistence",
		Name:      "last_weekly_upsert_timestamp_seconds",
		Help:      "Unix timestamp of the most recent weekly aggregate upserted to Postgres.",
	})
)

func init() {
	prometheus.MustRegister(fetchAttemptsCounter, fetchExhaustedCounter, tokenRefreshCounter, syncFailedCounter, weeklyUpsertGauge)
}

// RecordFetchAttempt counts one activity listing request.
func RecordFetchAttempt() {
	fetchAttemptsCounter.Inc()
}

// RecordFetchExhausted counts a fetch that failed all attempts.
func RecordFetchExhausted() {
	fetchExhaustedCounter.Inc()
}

// RecordTokenRefresh counts a refresh grant outcome ("success" or "failure").
func RecordTokenRefresh(outcome string) {
	tokenRefreshCounter.WithLabelValues(outcome).Inc()
}

// RecordSyncFailure counts a failed participant/week sync unit.
func RecordSyncFailure() {
	syncFailedCounter.Inc()
}

// RecordWeeklyUpserted updates the persistence watermark gauge.
func RecordWeeklyUpserted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	weeklyUpsertGauge.Set(float64(ts.Unix()))
}
