package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Voting
	VotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devnewz_votes_total",
			Help: "Vote transitions by target kind, requested vote and outcome",
		},
		[]string{"target", "vote", "result"},
	)

	KarmaUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devnewz_karma_updates_total",
			Help: "Karma delta applications by result (ok, failed, skipped)",
		},
		[]string{"result"},
	)

	// Comments
	CommentsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "devnewz_comments_deleted_total",
			Help: "Comments removed, descendants included",
		},
	)

	// HTTP
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devnewz_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// Ranking
	RerankBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "devnewz_rerank_batch_size",
			Help:    "Number of posts rescored per rerank batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
	)
)

func init() {
	prometheus.MustRegister(VotesTotal)
	prometheus.MustRegister(KarmaUpdatesTotal)
	prometheus.MustRegister(CommentsDeleted)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(RerankBatchSize)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
