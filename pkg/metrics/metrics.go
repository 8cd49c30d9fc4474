package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eth_stats"

var (
	registerOnce sync.Once

	BeaconRequestFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "beacon",
			Name:      "request_failures_total",
			Help:      "Beacon API requests that failed after all retries, by endpoint.",
		},
		[]string{"endpoint"},
	)

	Collections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "runs_total",
			Help:      "Collection windows attempted, by result.",
		},
		[]string{"result"},
	)

	LastCollectedEpoch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "last_collected_epoch",
			Help:      "Last finalized epoch persisted in a snapshot.",
		},
	)

	CollectionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "duration_seconds",
			Help:      "Time spent collecting one window.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	StatsRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Stats API requests, by route and status code.",
		},
		[]string{"route", "code"},
	)
)

// Register adds every collector to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			BeaconRequestFailures,
			Collections,
			LastCollectedEpoch,
			CollectionDuration,
			StatsRequests,
		)
		for _, result := range []string{"ok", "empty", "error"} {
			Collections.WithLabelValues(result).Add(0)
		}
	})
}
