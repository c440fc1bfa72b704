// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the discovery and gamification engine.
var (
	// Counters.
	PointsAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_awarded_total",
			Help: "Total points awarded, by action",
		},
		[]string{"action"},
	)

	BadgesAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badges_awarded_total",
			Help: "Total badges awarded",
		},
		[]string{"badge"},
	)

	LevelUpsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "level_ups_total",
			Help: "Total level-up events",
		},
	)

	LeaderboardRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_requests_total",
			Help: "Total leaderboard queries served",
		},
		[]string{"category", "period"},
	)

	RecommendationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_requests_total",
			Help: "Total recommendation queries served",
		},
		[]string{"kind", "strategy"},
	)

	RecommendationStrategyFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_strategy_failures_total",
			Help: "Sub-strategy failures excluded from hybrid merges",
		},
		[]string{"strategy"},
	)

	AggregateDivergenceTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aggregate_divergence_total",
			Help: "Aggregates found diverging from ledger replay",
		},
	)

	// Gauges.
	TrendingCandidates = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trending_candidates",
			Help: "Candidates considered in the last trending computation",
		},
		[]string{"kind"},
	)

	// Histograms.
	ScoringDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scoring_duration_seconds",
			Help:    "Duration of scoring computations",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)
)

// RecordBadgeAwarded increments the badge award counter.
func RecordBadgeAwarded(badge string) {
	BadgesAwardedTotal.WithLabelValues(badge).Inc()
}

// RecordPointsAwarded adds awarded points to the action counter.
func RecordPointsAwarded(action string, points int) {
	if points < 0 {
		points = -points
	}
	PointsAwardedTotal.WithLabelValues(action).Add(float64(points))
}
