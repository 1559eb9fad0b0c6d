package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reelrank_events_recorded_total",
		Help: "Interaction events folded into the ledger",
	}, []string{"kind"})
	EventsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reelrank_events_rejected_total",
		Help: "Interaction events rejected before mutation",
	}, []string{"reason"})
	StorageErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reelrank_storage_errors_total",
		Help: "Storage operations that failed",
	}, []string{"op"})
	RankRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reelrank_rank_requests_total",
		Help: "Ranking requests by mode",
	}, []string{"mode"})
	RankDegraded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reelrank_rank_degraded_total",
		Help: "Ranking requests answered without full scoring data",
	}, []string{"mode"})
	RankDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reelrank_rank_duration_seconds",
		Help:    "Ranking latency seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})
	RescoreRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reelrank_rescore_runs_total",
		Help: "Completed rescore passes",
	})
	RescoreErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reelrank_rescore_errors_total",
		Help: "Failed rescore passes",
	})
	TrendingItems = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reelrank_trending_items",
		Help: "Items flagged trending after the last rescore pass",
	})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reelrank_command_runs_total",
		Help: "CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reelrank_command_errors_total",
		Help: "CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(EventsRecorded, EventsRejected, StorageErrors, RankRequests, RankDegraded,
		RankDuration, RescoreRuns, RescoreErrors, TrendingItems, CommandRuns, CommandErrors)
}

// Handler serves /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return mux
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	go func() { _ = http.ListenAndServe(addr, Handler()) }()
}

// ObserveRank records a ranking request's latency.
func ObserveRank(mode string, start time.Time) {
	RankDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}

func IncCommandRun(cmd string)   { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
