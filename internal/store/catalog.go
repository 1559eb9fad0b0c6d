package store

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"reelrank/internal/model"
)

type catalog struct {
	s      Store
	logger zerolog.Logger
}

// Catalog exposes the store's item table as a model.MetadataLookup. Read
// failures other than ErrNotFound are logged and reported as a miss.
func Catalog(s Store, logger zerolog.Logger) model.MetadataLookup {
	return catalog{s: s, logger: logger.With().Str("component", "catalog").Logger()}
}

func (c catalog) Lookup(ctx context.Context, itemID string) (model.Item, bool) {
	it, err := c.s.Item(ctx, itemID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn().Err(err).Str("item_id", itemID).Msg("catalog lookup failed")
		}
		return model.Item{}, false
	}
	return it, true
}
