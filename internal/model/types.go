package model

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// InteractionKind is the kind of action a user took on an item.
type InteractionKind string

const (
	KindView    InteractionKind = "view"
	KindLike    InteractionKind = "like"
	KindShare   InteractionKind = "share"
	KindComment InteractionKind = "comment"
)

// Short-form content types eligible for reel ranking.
const (
	ContentVideo = "video"
	ContentReel  = "reel"
)

// IsVideoType reports whether contentType is one of the short-form video types.
func IsVideoType(contentType string) bool {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case ContentVideo, ContentReel:
		return true
	}
	return false
}

// InteractionEvent is a single reported user action. It is never stored as-is;
// the ledger folds it into an InteractionRecord and the item's ItemPerformance.
type InteractionEvent struct {
	UserID string          `json:"userId" validate:"required,notblank,nocontrol"`
	ItemID string          `json:"itemId" validate:"required,notblank,nocontrol"`
	Kind   InteractionKind `json:"kind" validate:"required,oneof=view like share comment"`
	// Only meaningful for views.
	WatchDurationSeconds *float64  `json:"watchDurationSeconds,omitempty" validate:"omitempty,gte=0"`
	OccurredAt           time.Time `json:"occurredAt"`
}

// InteractionRecord holds cumulative counters for one (user, item) pair.
type InteractionRecord struct {
	UserID           string    `json:"userId"`
	ItemID           string    `json:"itemId"`
	Views            int64     `json:"views"`
	Likes            int64     `json:"likes"`
	Shares           int64     `json:"shares"`
	Comments         int64     `json:"comments"`
	WatchTimeSeconds float64   `json:"watchTimeSeconds"`
	CompletionRate   float64   `json:"completionRate"` // reserved, never populated
	LastUpdatedAt    time.Time `json:"lastUpdatedAt"`
}

// Engaged reports whether the user liked or shared the item.
func (r InteractionRecord) Engaged() bool { return r.Likes > 0 || r.Shares > 0 }

// ItemPerformance is the per-item aggregate across all users.
type ItemPerformance struct {
	ItemID                  string    `json:"itemId"`
	TotalViews              int64     `json:"totalViews"`
	TotalLikes              int64     `json:"totalLikes"`
	TotalShares             int64     `json:"totalShares"`
	TotalComments           int64     `json:"totalComments"`
	AverageWatchTimeSeconds float64   `json:"averageWatchTimeSeconds"`
	EngagementRate          float64   `json:"engagementRate"`
	TrendingScore           float64   `json:"trendingScore"`
	IsTrending              bool      `json:"isTrending"`
	UpdatedAt               time.Time `json:"updatedAt"`
}

// Item is a content unit together with the metadata ranking needs.
type Item struct {
	ID              string   `json:"id"`
	Hashtags        []string `json:"hashtags,omitempty"`
	AuthorID        string   `json:"authorId,omitempty"`
	ContentType     string   `json:"contentType"`
	CreatedAtMillis int64    `json:"createdAtMillis,omitempty"`
}

// CreatedAt returns the item's creation time, or the zero time if unknown.
func (it Item) CreatedAt() time.Time {
	if it.CreatedAtMillis <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(it.CreatedAtMillis).UTC()
}

// CreatedAtFromID parses the millisecond timestamp some item ids carry as their
// second ':' or '_' delimited segment ("reel_1717243200000_42"). It returns the
// zero time when the id has no such segment.
func CreatedAtFromID(id string) time.Time {
	parts := strings.FieldsFunc(id, func(r rune) bool { return r == ':' || r == '_' })
	if len(parts) < 2 {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// MetadataLookup resolves item metadata. A false result means the item is unknown.
type MetadataLookup interface {
	Lookup(ctx context.Context, itemID string) (Item, bool)
}

// MetadataFunc adapts a function to MetadataLookup.
type MetadataFunc func(ctx context.Context, itemID string) (Item, bool)

func (f MetadataFunc) Lookup(ctx context.Context, itemID string) (Item, bool) { return f(ctx, itemID) }

// ItemIndex is an in-memory MetadataLookup keyed by item id.
type ItemIndex map[string]Item

// IndexItems builds an ItemIndex; later duplicates win.
func IndexItems(items []Item) ItemIndex {
	idx := make(ItemIndex, len(items))
	for _, it := range items {
		idx[it.ID] = it
	}
	return idx
}

func (idx ItemIndex) Lookup(_ context.Context, itemID string) (Item, bool) {
	it, ok := idx[itemID]
	return it, ok
}

// Overlay consults each lookup in order and returns the first hit. Nil entries are skipped.
func Overlay(lookups ...MetadataLookup) MetadataLookup {
	return MetadataFunc(func(ctx context.Context, itemID string) (Item, bool) {
		for _, l := range lookups {
			if l == nil {
				continue
			}
			if it, ok := l.Lookup(ctx, itemID); ok {
				return it, true
			}
		}
		return Item{}, false
	})
}

// Set is an unordered string set that marshals as a sorted JSON array.
type Set map[string]struct{}

func (s Set) Add(v string) { s[v] = struct{}{} }

func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s Set) MarshalJSON() ([]byte, error) { return json.Marshal(s.Sorted()) }

// PreferenceProfile is a user's derived personalization signal. It is never persisted.
type PreferenceProfile struct {
	FavoriteHashtags      Set   `json:"favoriteHashtags"`
	FavoriteAuthors       Set   `json:"favoriteAuthors"`
	ActiveHours           []int `json:"activeHours"`
	PreferredContentTypes Set   `json:"preferredContentTypes"`
}

// EmptyProfile returns a profile with no preferences.
func EmptyProfile() PreferenceProfile {
	return PreferenceProfile{
		FavoriteHashtags:      Set{},
		FavoriteAuthors:       Set{},
		ActiveHours:           []int{},
		PreferredContentTypes: Set{},
	}
}

// ActiveAt reports whether hour is one of the profile's active hours.
func (p PreferenceProfile) ActiveAt(hour int) bool {
	for _, h := range p.ActiveHours {
		if h == hour {
			return true
		}
	}
	return false
}
