// Package ledger records user interactions with reels and keeps each item's
// performance aggregate in step with them.
//
// RecordEvent folds an event into the (user, item) InteractionRecord and, in the
// same storage transaction, into the item's ItemPerformance: totals, watch-time
// average, engagement rate and trending score. A caller never observes one
// without the other, and a failed write leaves both untouched.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"reelrank/internal/metrics"
	"reelrank/internal/model"
	"reelrank/internal/store"
	"reelrank/internal/validation"
)

// ErrPersist marks storage failures during RecordEvent.
var ErrPersist = errors.New("persist interaction")

// Ledger is safe for concurrent use. Writes to the same item are serialized;
// writes to different items proceed in parallel as far as the store allows.
type Ledger struct {
	store  store.Store
	lookup model.MetadataLookup
	now    func() time.Time
	locks  *keyedMutex
	logger zerolog.Logger
}

// Options configures a Ledger. Zero values are replaced by defaults.
type Options struct {
	// Lookup resolves item creation time for the recency sub-score. Nil means
	// recency is always 0.
	Lookup model.MetadataLookup
	Now    func() time.Time
	Logger zerolog.Logger
}

func New(s store.Store, opts Options) *Ledger {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Ledger{
		store:  s,
		lookup: opts.Lookup,
		now:    now,
		locks:  newKeyedMutex(64),
		logger: opts.Logger.With().Str("component", "ledger").Logger(),
	}
}

// RecordEvent validates ev and applies it. Validation failures wrap
// validation.ErrInvalidEvent; storage failures wrap ErrPersist.
func (l *Ledger) RecordEvent(ctx context.Context, ev model.InteractionEvent) error {
	if err := validation.ValidateEvent(ev); err != nil {
		metrics.EventsRejected.WithLabelValues("validation").Inc()
		return err
	}
	now := l.now()
	at := ev.OccurredAt
	if at.IsZero() {
		at = now
	}
	at = at.UTC()
	// resolved before the transaction: a catalog lookup may share the store's connection
	createdAt := l.createdAt(ctx, ev.ItemID)

	unlock := l.locks.Lock(ev.ItemID)
	defer unlock()

	var perf model.ItemPerformance
	err := l.store.Update(ctx, func(tx store.Tx) error {
		rec, _, err := tx.Record(ev.UserID, ev.ItemID)
		if err != nil {
			return fmt.Errorf("load record: %w", err)
		}
		rec.Apply(ev, at)
		if err := tx.PutRecord(rec); err != nil {
			return fmt.Errorf("put record: %w", err)
		}

		perf, _, err = tx.Performance(ev.ItemID)
		if err != nil {
			return fmt.Errorf("load performance: %w", err)
		}
		perf.Apply(ev)
		recent, err := tx.CountRecentRecords(ev.ItemID, now.Add(-model.VelocityWindow))
		if err != nil {
			return fmt.Errorf("count recent: %w", err)
		}
		perf.Score(createdAt, now, recent)
		perf.UpdatedAt = now
		if err := tx.PutPerformance(perf); err != nil {
			return fmt.Errorf("put performance: %w", err)
		}
		return nil
	})
	if err != nil {
		metrics.StorageErrors.WithLabelValues("record_event").Inc()
		l.logger.Error().Err(err).Str("user_id", ev.UserID).Str("item_id", ev.ItemID).Str("kind", string(ev.Kind)).Msg("record event failed")
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	metrics.EventsRecorded.WithLabelValues(string(ev.Kind)).Inc()
	l.logger.Debug().
		Str("user_id", ev.UserID).
		Str("item_id", ev.ItemID).
		Str("kind", string(ev.Kind)).
		Float64("trending_score", perf.TrendingScore).
		Bool("is_trending", perf.IsTrending).
		Msg("event recorded")
	return nil
}

// createdAt prefers catalog metadata and falls back to a timestamp embedded in the id.
func (l *Ledger) createdAt(ctx context.Context, itemID string) time.Time {
	if l.lookup != nil {
		if it, ok := l.lookup.Lookup(ctx, itemID); ok && !it.CreatedAt().IsZero() {
			return it.CreatedAt()
		}
	}
	return model.CreatedAtFromID(itemID)
}

// RecordsForUser returns every InteractionRecord of userID.
func (l *Ledger) RecordsForUser(ctx context.Context, userID string) ([]model.InteractionRecord, error) {
	recs, err := l.store.RecordsForUser(ctx, userID)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("records_for_user").Inc()
		return nil, fmt.Errorf("records for user %s: %w", userID, err)
	}
	return recs, nil
}

// RecordsForItem returns every InteractionRecord of itemID, one per user.
func (l *Ledger) RecordsForItem(ctx context.Context, itemID string) ([]model.InteractionRecord, error) {
	recs, err := l.store.RecordsForItem(ctx, itemID)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("records_for_item").Inc()
		return nil, fmt.Errorf("records for item %s: %w", itemID, err)
	}
	return recs, nil
}

// Performance returns the item's aggregate, or store.ErrNotFound.
func (l *Ledger) Performance(ctx context.Context, itemID string) (model.ItemPerformance, error) {
	return l.store.Performance(ctx, itemID)
}

// Rescore recomputes the trending score of every stored item against the
// current clock without touching any counter. It returns the number of items
// that are trending afterwards.
func (l *Ledger) Rescore(ctx context.Context) (int, error) {
	ids, err := l.store.ItemIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list items: %w", err)
	}
	trending := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return trending, err
		}
		ok, err := l.rescoreItem(ctx, id)
		if err != nil {
			return trending, fmt.Errorf("rescore %s: %w", id, err)
		}
		if ok {
			trending++
		}
	}
	return trending, nil
}

func (l *Ledger) rescoreItem(ctx context.Context, itemID string) (bool, error) {
	now := l.now()
	createdAt := l.createdAt(ctx, itemID)
	unlock := l.locks.Lock(itemID)
	defer unlock()
	var trending bool
	err := l.store.Update(ctx, func(tx store.Tx) error {
		perf, ok, err := tx.Performance(itemID)
		if err != nil || !ok {
			return err
		}
		recent, err := tx.CountRecentRecords(itemID, now.Add(-model.VelocityWindow))
		if err != nil {
			return err
		}
		perf.Score(createdAt, now, recent)
		perf.UpdatedAt = now
		trending = perf.IsTrending
		return tx.PutPerformance(perf)
	})
	return trending, err
}
