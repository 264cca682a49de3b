package benchmark

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prefillTokensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiln_prefill_tokens_total",
		Help: "Total number of prompt tokens prefilled",
	})

	decodeTokensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiln_decode_tokens_total",
		Help: "Total number of tokens decoded across all candidates",
	})

	prefillTurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kiln_prefill_turn_duration_seconds",
		Help:    "Duration of prefill turns",
		Buckets: prometheus.DefBuckets,
	})

	decodeTurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kiln_decode_turn_duration_seconds",
		Help:    "Duration of decode turns",
		Buckets: prometheus.DefBuckets,
	})

	markDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kiln_mark_duration_seconds",
		Help:    "Durations of labelled pipeline sections",
		Buckets: prometheus.DefBuckets,
	}, []string{"label"})
)
