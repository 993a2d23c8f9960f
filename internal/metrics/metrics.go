// Package metrics exposes Prometheus collectors for the collection run.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchOutcomesTotal *prometheus.CounterVec
	fetchRetriesTotal  prometheus.Counter
	robotsDeniedTotal  prometheus.Counter
	newsItemsTotal     prometheus.Counter
	indicatorRowsTotal prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govpulse_fetch_outcomes_total",
				Help: "Terminal fetch outcomes, labeled by outcome class.",
			},
			[]string{"outcome"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "govpulse_fetch_retries_total",
				Help: "Retry attempts issued by the fetch client.",
			},
		)

		robotsDeniedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "govpulse_robots_denied_total",
				Help: "Requests short-circuited by robots policy.",
			},
		)

		newsItemsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "govpulse_news_items_written_total",
				Help: "News records appended to the output stream.",
			},
		)

		indicatorRowsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "govpulse_indicator_rows_written_total",
				Help: "Indicator rows written to the output table.",
			},
		)
	})
}

// ObserveFetchOutcome records one terminal fetch outcome.
func ObserveFetchOutcome(outcome string) {
	Init()
	fetchOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRetry records one retry attempt.
func ObserveRetry() {
	Init()
	fetchRetriesTotal.Inc()
}

// ObserveRobotsDenied records one robots-policy denial.
func ObserveRobotsDenied() {
	Init()
	robotsDeniedTotal.Inc()
}

// ObserveNewsItem records one accepted news record.
func ObserveNewsItem() {
	Init()
	newsItemsTotal.Inc()
}

// ObserveIndicatorRow records one written indicator row.
func ObserveIndicatorRow() {
	Init()
	indicatorRowsTotal.Inc()
}
