package main

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	generatedWords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textgen_generated_words_total",
			Help: "Number of words generated, by corpus.",
		},
		[]string{"corpus"},
	)
	generateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "textgen_generate_duration_seconds",
			Help:    "Time spent generating one response, by corpus.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
		[]string{"corpus"},
	)
	rejectedRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textgen_rejected_requests_total",
			Help: "Number of generation requests rejected, by reason.",
		},
		[]string{"reason"},
	)
	markovRerolls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "textgen_markov_rerolls_total",
			Help: "Number of times the Markov cursor was re-rolled.",
		},
	)
	textgenCollectors = []prometheus.Collector{
		generatedWords,
		generateDuration,
		rejectedRequests,
		markovRerolls,
	}

	metricsOnce sync.Once
)

func initMetrics() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(textgenCollectors...)
	})
}
