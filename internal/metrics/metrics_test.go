package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsExposure(t *testing.T) {
	EventsRecorded.WithLabelValues("view").Inc()
	EventsRejected.WithLabelValues("validation").Inc()
	StorageErrors.WithLabelValues("record_event").Inc()
	RankRequests.WithLabelValues("trending").Inc()
	RankDegraded.WithLabelValues("trending").Inc()
	ObserveRank("trending", time.Now().Add(-50*time.Millisecond))
	RescoreRuns.Inc()
	RescoreErrors.Inc()
	TrendingItems.Set(2)
	IncCommandRun("rank")
	IncCommandError("rank")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, m := range []string{
		"reelrank_events_recorded_total",
		"reelrank_events_rejected_total",
		"reelrank_storage_errors_total",
		"reelrank_rank_requests_total",
		"reelrank_rank_degraded_total",
		"reelrank_rank_duration_seconds",
		"reelrank_rescore_runs_total",
		"reelrank_rescore_errors_total",
		"reelrank_trending_items",
		"reelrank_command_runs_total",
		"reelrank_command_errors_total",
	} {
		if !strings.Contains(body, m) {
			t.Fatalf("expected metric %s in body", m)
		}
	}
}

func TestCommandCounters(t *testing.T) {
	before := testutil.ToFloat64(CommandRuns.WithLabelValues("stats"))
	IncCommandRun("stats")
	if got := testutil.ToFloat64(CommandRuns.WithLabelValues("stats")); got != before+1 {
		t.Fatalf("command runs = %v, want %v", got, before+1)
	}
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status: %d", rec.Code)
	}
}
