package model

import (
	"math"
	"time"
)

// Trending score weights and normalization constants.
const (
	WeightRecency    = 0.2
	WeightEngagement = 0.3
	WeightWatchTime  = 0.3
	WeightVelocity   = 0.2

	// TrendingThreshold is the score above which an item counts as trending.
	TrendingThreshold = 0.7

	// VelocityWindow is how far back recent activity is counted.
	VelocityWindow = time.Hour

	recencyHorizonHours = 24.0
	watchPlateauSeconds = 30.0
	velocityCap         = 10.0
)

// Apply folds ev into the record. LastUpdatedAt only moves forward, so a late
// event never makes the record look older.
func (r *InteractionRecord) Apply(ev InteractionEvent, at time.Time) {
	if r.UserID == "" {
		r.UserID = ev.UserID
		r.ItemID = ev.ItemID
	}
	switch ev.Kind {
	case KindView:
		r.Views++
		if ev.WatchDurationSeconds != nil {
			r.WatchTimeSeconds += *ev.WatchDurationSeconds
		}
	case KindLike:
		r.Likes++
	case KindShare:
		r.Shares++
	case KindComment:
		r.Comments++
	}
	if at.After(r.LastUpdatedAt) {
		r.LastUpdatedAt = at
	}
}

// Apply folds ev into the item totals, the watch-time average and the
// engagement rate. It does not touch the trending score; see Score.
func (p *ItemPerformance) Apply(ev InteractionEvent) {
	if p.ItemID == "" {
		p.ItemID = ev.ItemID
	}
	switch ev.Kind {
	case KindView:
		p.TotalViews++
		if ev.WatchDurationSeconds != nil {
			p.AverageWatchTimeSeconds = RunningAverage(p.AverageWatchTimeSeconds, *ev.WatchDurationSeconds)
		}
	case KindLike:
		p.TotalLikes++
	case KindShare:
		p.TotalShares++
	case KindComment:
		p.TotalComments++
	}
	p.EngagementRate = EngagementRate(p.TotalLikes, p.TotalShares, p.TotalComments, p.TotalViews)
}

// Score recomputes TrendingScore and IsTrending from the current counters.
func (p *ItemPerformance) Score(createdAt, now time.Time, recentActivity int) {
	p.TrendingScore = TrendingScore(TrendingInputs{
		CreatedAt:               createdAt,
		Now:                     now,
		EngagementRate:          p.EngagementRate,
		AverageWatchTimeSeconds: p.AverageWatchTimeSeconds,
		RecentActivity:          recentActivity,
	})
	p.IsTrending = p.TrendingScore > TrendingThreshold
}

// RunningAverage is the two-point running average used for watch time:
// (avg + sample) / 2. A zero average is seeded with the sample itself.
// Later samples weigh more than earlier ones; this is not a cumulative mean.
func RunningAverage(avg, sample float64) float64 {
	if avg == 0 {
		return sample
	}
	return (avg + sample) / 2
}

// EngagementRate is (likes+shares+comments) / max(views, 1).
func EngagementRate(likes, shares, comments, views int64) float64 {
	denom := views
	if denom < 1 {
		denom = 1
	}
	return float64(likes+shares+comments) / float64(denom)
}

// TrendingInputs are everything the trending score depends on.
type TrendingInputs struct {
	CreatedAt               time.Time // zero when unknown
	Now                     time.Time
	EngagementRate          float64
	AverageWatchTimeSeconds float64
	RecentActivity          int
}

// TrendingScore is a pure function of its inputs, in [0,1].
func TrendingScore(in TrendingInputs) float64 {
	score := WeightRecency*RecencyScore(in.CreatedAt, in.Now) +
		WeightEngagement*EngagementScore(in.EngagementRate) +
		WeightWatchTime*WatchTimeScore(in.AverageWatchTimeSeconds) +
		WeightVelocity*VelocityScore(in.RecentActivity)
	return clamp01(score)
}

// RecencyScore decays linearly from 1 at creation to 0 after 24 hours.
func RecencyScore(createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return 0
	}
	hours := now.Sub(createdAt).Hours()
	return clamp01(math.Max(0, 1-hours/recencyHorizonHours))
}

func EngagementScore(rate float64) float64 { return clamp01(math.Min(rate*2, 1)) }

// WatchTimeScore plateaus at 30 seconds of average watch time.
func WatchTimeScore(avgSeconds float64) float64 {
	return clamp01(math.Min(avgSeconds/watchPlateauSeconds, 1))
}

// VelocityScore saturates at 10 recent interactions.
func VelocityScore(recent int) float64 {
	return clamp01(math.Min(float64(recent)/velocityCap, 1))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Clamp01 clamps v into [0,1]; NaN maps to 0.
func Clamp01(v float64) float64 { return clamp01(v) }
