package recommend

import (
	"context"
	"strings"
	"time"

	"reelrank/internal/analytics"
	"reelrank/internal/model"
	"reelrank/internal/util"
)

// ActiveHourCount is how many hours of day a profile keeps.
const ActiveHourCount = 6

// DeriveProfile builds a preference profile from a user's records. Active hours
// come from every record; hashtags, authors and content types only from records
// the user liked or shared, resolved through lookup. Items lookup cannot resolve
// contribute nothing.
func DeriveProfile(ctx context.Context, records []model.InteractionRecord, lookup model.MetadataLookup) model.PreferenceProfile {
	p := model.EmptyProfile()
	ts := make([]time.Time, 0, len(records))
	for _, r := range records {
		ts = append(ts, r.LastUpdatedAt)
	}
	p.ActiveHours = analytics.ActiveHours(ts, ActiveHourCount)
	if lookup == nil {
		return p
	}
	for _, r := range records {
		if !r.Engaged() {
			continue
		}
		it, ok := lookup.Lookup(ctx, r.ItemID)
		if !ok {
			continue
		}
		for _, tag := range util.NormalizeTags(it.Hashtags) {
			p.FavoriteHashtags.Add(tag)
		}
		if a := strings.TrimSpace(it.AuthorID); a != "" {
			p.FavoriteAuthors.Add(a)
		}
		if ct := normalizeType(it.ContentType); ct != "" {
			p.PreferredContentTypes.Add(ct)
		}
	}
	return p
}

func normalizeType(ct string) string { return strings.ToLower(strings.TrimSpace(ct)) }
