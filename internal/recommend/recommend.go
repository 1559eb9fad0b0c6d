// Package recommend ranks caller-supplied reel candidates in three modes:
// personalized, trending and discovery.
package recommend

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"reelrank/internal/metrics"
	"reelrank/internal/model"
	"reelrank/internal/util"
)

const (
	ModePersonalized = "personalized"
	ModeTrending     = "trending"
	ModeDiscovery    = "discovery"
)

// Personalization weights. The sum exceeds 1; the score is clamped.
const (
	WeightHashtag     = 0.3
	WeightAuthor      = 0.4
	WeightActiveHour  = 0.1
	WeightContentType = 0.2
	WeightTrending    = 0.3

	// ExplorationShare is the part of a personalized score replaced by noise.
	ExplorationShare = 0.2
	// UnscoredCeiling bounds the random score of items with no performance yet.
	UnscoredCeiling = 0.3
)

// Reader is the read side of the ledger ranking needs.
type Reader interface {
	RecordsForUser(ctx context.Context, userID string) ([]model.InteractionRecord, error)
	Performances(ctx context.Context, itemIDs []string) (map[string]model.ItemPerformance, error)
}

// Options configures a Ranker. Zero values are replaced by defaults.
type Options struct {
	Rand   Rand
	Now    func() time.Time
	Logger zerolog.Logger
}

// Ranker is safe for concurrent use.
type Ranker struct {
	reader Reader
	lookup model.MetadataLookup
	rng    Rand
	now    func() time.Time
	logger zerolog.Logger
}

// NewRanker builds a Ranker. lookup resolves metadata of items a user engaged
// with that are not among the current candidates; it may be nil.
func NewRanker(r Reader, lookup model.MetadataLookup, opts Options) *Ranker {
	rng := opts.Rand
	if rng == nil {
		rng = NewRand(0)
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Ranker{
		reader: r,
		lookup: lookup,
		rng:    rng,
		now:    now,
		logger: opts.Logger.With().Str("component", "recommend").Logger(),
	}
}

type scored struct {
	item  model.Item
	score float64
}

// Profile derives the user's current preference profile. Unknown users get an
// empty profile.
func (r *Ranker) Profile(ctx context.Context, userID string) (model.PreferenceProfile, error) {
	return r.profile(ctx, userID, nil)
}

// profile resolves engaged items against the candidates first, then the lookup.
func (r *Ranker) profile(ctx context.Context, userID string, candidates []model.Item) (model.PreferenceProfile, error) {
	recs, err := r.reader.RecordsForUser(ctx, userID)
	if err != nil {
		return model.EmptyProfile(), err
	}
	return DeriveProfile(ctx, recs, model.Overlay(model.IndexItems(candidates), r.lookup)), nil
}

// Personalized orders video candidates by profile match plus trending score,
// blended with fresh noise on every call. It returns at most count items.
func (r *Ranker) Personalized(ctx context.Context, userID string, candidates []model.Item, count int) []model.Item {
	defer metrics.ObserveRank(ModePersonalized, time.Now())
	metrics.RankRequests.WithLabelValues(ModePersonalized).Inc()
	items := eligible(candidates)
	if len(items) == 0 || count <= 0 {
		return []model.Item{}
	}
	profile, err := r.profile(ctx, userID, candidates)
	if err != nil {
		return r.degrade(ModePersonalized, err, items, count)
	}
	perf, err := r.reader.Performances(ctx, ids(items))
	if err != nil {
		return r.degrade(ModePersonalized, err, items, count)
	}
	hour := r.now().UTC().Hour()
	out := make([]scored, len(items))
	for i, it := range items {
		s := matchScore(profile, it, hour) + WeightTrending*perf[it.ID].TrendingScore
		s = model.Clamp01(s)
		out[i] = scored{item: it, score: s*(1-ExplorationShare) + r.rng.Float64()*ExplorationShare}
	}
	return top(out, count)
}

func matchScore(p model.PreferenceProfile, it model.Item, hour int) float64 {
	var s float64
	for _, tag := range util.NormalizeTags(it.Hashtags) {
		if p.FavoriteHashtags.Has(tag) {
			s += WeightHashtag
			break
		}
	}
	if it.AuthorID != "" && p.FavoriteAuthors.Has(it.AuthorID) {
		s += WeightAuthor
	}
	if p.ActiveAt(hour) {
		s += WeightActiveHour
	}
	if p.PreferredContentTypes.Has(normalizeType(it.ContentType)) {
		s += WeightContentType
	}
	return s
}

// Trending orders video candidates by stored trending score. Items without a
// performance aggregate get a random score below UnscoredCeiling.
func (r *Ranker) Trending(ctx context.Context, candidates []model.Item, count int) []model.Item {
	defer metrics.ObserveRank(ModeTrending, time.Now())
	metrics.RankRequests.WithLabelValues(ModeTrending).Inc()
	items := eligible(candidates)
	if len(items) == 0 || count <= 0 {
		return []model.Item{}
	}
	perf, err := r.reader.Performances(ctx, ids(items))
	if err != nil {
		return r.degrade(ModeTrending, err, items, count)
	}
	out := make([]scored, len(items))
	for i, it := range items {
		p, ok := perf[it.ID]
		s := p.TrendingScore
		if !ok {
			s = r.rng.Float64() * UnscoredCeiling
		}
		out[i] = scored{item: it, score: s}
	}
	return top(out, count)
}

// Discovery returns a uniform shuffle of the video candidates, truncated to count.
func (r *Ranker) Discovery(_ context.Context, candidates []model.Item, count int) []model.Item {
	defer metrics.ObserveRank(ModeDiscovery, time.Now())
	metrics.RankRequests.WithLabelValues(ModeDiscovery).Inc()
	items := eligible(candidates)
	if len(items) == 0 || count <= 0 {
		return []model.Item{}
	}
	shuffle(r.rng, items)
	return truncate(items, count)
}

// shuffle is Fisher-Yates.
func shuffle(rng Rand, items []model.Item) {
	for i := len(items) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}

// degrade answers with the unranked candidates when scoring data is unavailable.
func (r *Ranker) degrade(mode string, err error, items []model.Item, count int) []model.Item {
	metrics.RankDegraded.WithLabelValues(mode).Inc()
	r.logger.Warn().Err(err).Str("mode", mode).Int("candidates", len(items)).Msg("ranking degraded to unranked order")
	return truncate(items, count)
}

// eligible copies the video-like candidates, preserving order.
func eligible(candidates []model.Item) []model.Item {
	out := make([]model.Item, 0, len(candidates))
	for _, it := range candidates {
		if model.IsVideoType(it.ContentType) {
			out = append(out, it)
		}
	}
	return out
}

func ids(items []model.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func top(s []scored, count int) []model.Item {
	sort.SliceStable(s, func(i, j int) bool { return s[i].score > s[j].score })
	if len(s) > count {
		s = s[:count]
	}
	out := make([]model.Item, len(s))
	for i := range s {
		out[i] = s[i].item
	}
	return out
}

func truncate(items []model.Item, count int) []model.Item {
	if len(items) > count {
		return items[:count]
	}
	return items
}
