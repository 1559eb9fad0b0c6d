package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"reelrank/internal/metrics"
)

type fakeRescorer struct {
	calls atomic.Int32
	n     int
	err   error
}

func (f *fakeRescorer) Rescore(context.Context) (int, error) {
	f.calls.Add(1)
	return f.n, f.err
}

func TestRunRescoreOncePublishesTrendingCount(t *testing.T) {
	runs := testutil.ToFloat64(metrics.RescoreRuns)
	n, err := RunRescoreOnce(context.Background(), &fakeRescorer{n: 4})
	if err != nil || n != 4 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if got := testutil.ToFloat64(metrics.TrendingItems); got != 4 {
		t.Fatalf("trending gauge = %v", got)
	}
	if got := testutil.ToFloat64(metrics.RescoreRuns); got != runs+1 {
		t.Fatalf("runs = %v, want %v", got, runs+1)
	}
}

func TestRunRescoreOnceCountsErrors(t *testing.T) {
	before := testutil.ToFloat64(metrics.RescoreErrors)
	if _, err := RunRescoreOnce(context.Background(), &fakeRescorer{err: errors.New("boom")}); err == nil {
		t.Fatal("expected error")
	}
	if got := testutil.ToFloat64(metrics.RescoreErrors); got != before+1 {
		t.Fatalf("errors = %v, want %v", got, before+1)
	}
}

func TestRunRescoreLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &fakeRescorer{err: errors.New("transient")}
	done := make(chan error, 1)
	go func() { done <- RunRescoreLoop(ctx, r, 5*time.Millisecond) }()
	deadline := time.After(2 * time.Second)
	for r.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("loop ran %d times", r.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("loop returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}
