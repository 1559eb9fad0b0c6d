// Package store defines the persistence contract for interaction records,
// item performance aggregates and the item catalog. Backends live in the
// sqlite and badgerkv subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"reelrank/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("store closed")
)

// Tx is the view of the store inside a single read-write transaction.
// Everything written through a Tx becomes visible atomically on commit.
type Tx interface {
	// Record returns the (user, item) record; ok is false if it does not exist yet.
	Record(userID, itemID string) (rec model.InteractionRecord, ok bool, err error)
	PutRecord(rec model.InteractionRecord) error
	Performance(itemID string) (perf model.ItemPerformance, ok bool, err error)
	PutPerformance(perf model.ItemPerformance) error
	// CountRecentRecords counts the item's records updated at or after since.
	CountRecentRecords(itemID string, since time.Time) (int, error)
}

// Store is implemented by every backend. Update runs fn in one transaction and
// commits only if fn returns nil.
type Store interface {
	Update(ctx context.Context, fn func(Tx) error) error

	RecordsForUser(ctx context.Context, userID string) ([]model.InteractionRecord, error)
	RecordsForItem(ctx context.Context, itemID string) ([]model.InteractionRecord, error)
	Performance(ctx context.Context, itemID string) (model.ItemPerformance, error)
	Performances(ctx context.Context, itemIDs []string) (map[string]model.ItemPerformance, error)
	ItemIDs(ctx context.Context) ([]string, error)

	PutItem(ctx context.Context, it model.Item) error
	Item(ctx context.Context, itemID string) (model.Item, error)

	// Reset deletes all records, aggregates and catalog entries.
	Reset(ctx context.Context) error
	Close() error
}
