package model

import (
	"context"
	"math"
	"testing"
	"time"
)

func dur(v float64) *float64 { return &v }

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestApplyWatchTimeAndEngagement(t *testing.T) {
	var p ItemPerformance
	for _, d := range []float64{10, 20, 30} {
		p.Apply(InteractionEvent{ItemID: "x", Kind: KindView, WatchDurationSeconds: dur(d)})
	}
	if !almost(p.AverageWatchTimeSeconds, 22.5) {
		t.Fatalf("avg watch = %v, want 22.5", p.AverageWatchTimeSeconds)
	}
	p.Apply(InteractionEvent{ItemID: "x", Kind: KindLike})
	if p.TotalViews != 3 || p.TotalLikes != 1 {
		t.Fatalf("totals = %+v", p)
	}
	if !almost(p.EngagementRate, 1.0/3.0) {
		t.Fatalf("engagement = %v", p.EngagementRate)
	}
	if p.ItemID != "x" {
		t.Fatalf("item id not seeded: %q", p.ItemID)
	}
}

func TestRunningAverageSequence(t *testing.T) {
	avg := 0.0
	want := []float64{10, 15, 22.5}
	for i, s := range []float64{10, 20, 30} {
		avg = RunningAverage(avg, s)
		if !almost(avg, want[i]) {
			t.Fatalf("step %d avg=%v want %v", i, avg, want[i])
		}
	}
}

func TestEngagementRateNoViews(t *testing.T) {
	if got := EngagementRate(2, 1, 0, 0); got != 3 {
		t.Fatalf("rate with zero views = %v, want 3", got)
	}
}

func TestRecordApply(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	var r InteractionRecord
	r.Apply(InteractionEvent{UserID: "u", ItemID: "i", Kind: KindView, WatchDurationSeconds: dur(12)}, at)
	r.Apply(InteractionEvent{UserID: "u", ItemID: "i", Kind: KindView}, at)
	r.Apply(InteractionEvent{UserID: "u", ItemID: "i", Kind: KindShare}, at.Add(time.Minute))
	r.Apply(InteractionEvent{UserID: "u", ItemID: "i", Kind: KindComment}, at.Add(2*time.Minute))
	if r.Views != 2 || r.Shares != 1 || r.Comments != 1 || r.Likes != 0 {
		t.Fatalf("counters = %+v", r)
	}
	if r.WatchTimeSeconds != 12 {
		t.Fatalf("watch time = %v", r.WatchTimeSeconds)
	}
	if !r.LastUpdatedAt.Equal(at.Add(2 * time.Minute)) {
		t.Fatalf("last updated = %v", r.LastUpdatedAt)
	}
	if !r.Engaged() {
		t.Fatalf("share should count as engaged")
	}
	r.Apply(InteractionEvent{UserID: "u", ItemID: "i", Kind: KindLike}, at.Add(-time.Hour))
	if r.Likes != 1 || !r.LastUpdatedAt.Equal(at.Add(2*time.Minute)) {
		t.Fatalf("late like moved last updated to %v", r.LastUpdatedAt)
	}
}

func TestSubScores(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		got  float64
		want float64
	}{
		{"recency fresh", RecencyScore(now, now), 1},
		{"recency 12h", RecencyScore(now.Add(-12*time.Hour), now), 0.5},
		{"recency 30h", RecencyScore(now.Add(-30*time.Hour), now), 0},
		{"recency future", RecencyScore(now.Add(time.Hour), now), 1},
		{"recency unknown", RecencyScore(time.Time{}, now), 0},
		{"engagement", EngagementScore(0.25), 0.5},
		{"engagement cap", EngagementScore(3), 1},
		{"watch", WatchTimeScore(15), 0.5},
		{"watch cap", WatchTimeScore(90), 1},
		{"velocity", VelocityScore(4), 0.4},
		{"velocity cap", VelocityScore(25), 1},
	}
	for _, c := range cases {
		if !almost(c.got, c.want) {
			t.Errorf("%s: got %v want %v", c.name, c.got, c.want)
		}
	}
}

func TestTrendingScoreDeterministic(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	in := TrendingInputs{
		CreatedAt:               now.Add(-6 * time.Hour),
		Now:                     now,
		EngagementRate:          0.2,
		AverageWatchTimeSeconds: 24,
		RecentActivity:          5,
	}
	// 0.2*0.75 + 0.3*0.4 + 0.3*0.8 + 0.2*0.5
	want := 0.15 + 0.12 + 0.24 + 0.1
	a, b := TrendingScore(in), TrendingScore(in)
	if a != b {
		t.Fatalf("not deterministic: %v vs %v", a, b)
	}
	if !almost(a, want) {
		t.Fatalf("score = %v want %v", a, want)
	}
}

func TestScoreSetsTrendingFlag(t *testing.T) {
	now := time.Now().UTC()
	p := ItemPerformance{EngagementRate: 1, AverageWatchTimeSeconds: 60}
	p.Score(now, now, 10)
	if !almost(p.TrendingScore, 1) || !p.IsTrending {
		t.Fatalf("expected saturated trending, got %+v", p)
	}
	p = ItemPerformance{EngagementRate: 1, AverageWatchTimeSeconds: 60}
	p.Score(time.Time{}, now, 10)
	// 0.3 + 0.3 + 0.2: still above the threshold without recency
	if !p.IsTrending {
		t.Fatalf("0.8 should be trending")
	}
	p = ItemPerformance{EngagementRate: 1, AverageWatchTimeSeconds: 60}
	p.Score(time.Time{}, now, 0)
	if p.IsTrending {
		t.Fatalf("0.6 should not be trending")
	}
}

func TestOverlayAndIndex(t *testing.T) {
	a := IndexItems([]Item{{ID: "1", AuthorID: "a"}})
	b := IndexItems([]Item{{ID: "1", AuthorID: "b"}, {ID: "2", AuthorID: "b"}})
	l := Overlay(nil, a, b)
	if it, ok := l.Lookup(context.Background(), "1"); !ok || it.AuthorID != "a" {
		t.Fatalf("overlay precedence broken: %+v", it)
	}
	if it, ok := l.Lookup(context.Background(), "2"); !ok || it.AuthorID != "b" {
		t.Fatalf("fallback broken: %+v", it)
	}
	if _, ok := l.Lookup(context.Background(), "3"); ok {
		t.Fatalf("unknown item resolved")
	}
}

func TestIsVideoType(t *testing.T) {
	for typ, want := range map[string]bool{"video": true, "Reel": true, "text": false, "": false, "image": false} {
		if IsVideoType(typ) != want {
			t.Errorf("IsVideoType(%q) != %v", typ, want)
		}
	}
}

func TestCreatedAtFromID(t *testing.T) {
	want := time.UnixMilli(1717243200000).UTC()
	for _, id := range []string{"reel_1717243200000_42", "reel:1717243200000", "video_1717243200000"} {
		if got := CreatedAtFromID(id); !got.Equal(want) {
			t.Fatalf("%s: got %v", id, got)
		}
	}
	for _, id := range []string{"X", "reel_abc_1", "1717243200000", "reel_-5"} {
		if got := CreatedAtFromID(id); !got.IsZero() {
			t.Fatalf("%s: expected zero time, got %v", id, got)
		}
	}
}
