// Package badgerkv stores the ledger in an embedded BadgerDB key-value store.
//
// Key layout (<n> is the uvarint byte length of the segment that follows, so
// one id can never be a prefix of another):
//
//	rec:<n><item><user>    InteractionRecord (JSON)
//	urec:<n><user><item>   empty, secondary index for per-user reads
//	perf:<item>            ItemPerformance (JSON)
//	meta:<item>            catalog Item (JSON)
package badgerkv

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"reelrank/internal/model"
	"reelrank/internal/store"
)

const (
	prefixRecord    = "rec:"
	prefixUserIndex = "urec:"
	prefixPerf      = "perf:"
	prefixMeta      = "meta:"

	conflictRetries = 3
)

// Options configures the badger backend.
type Options struct {
	Path       string
	InMemory   bool
	SyncWrites bool
}

// DB is a store.Store backed by BadgerDB.
type DB struct {
	db     *badger.DB
	closed atomic.Bool
}

var _ store.Store = (*DB)(nil)

func Open(o Options) (*DB, error) {
	opts := badger.DefaultOptions(o.Path)
	if o.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = o.SyncWrites
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	return d.db.Close()
}

// keyPrefix is prefix followed by the length-prefixed id.
func keyPrefix(prefix, id string) []byte {
	b := append([]byte(prefix), binary.AppendUvarint(nil, uint64(len(id)))...)
	return append(b, id...)
}

func recordKey(itemID, userID string) []byte {
	return append(keyPrefix(prefixRecord, itemID), userID...)
}

func userIndexKey(userID, itemID string) []byte {
	return append(keyPrefix(prefixUserIndex, userID), itemID...)
}

func perfKey(itemID string) []byte { return []byte(prefixPerf + itemID) }

func metaKey(itemID string) []byte { return []byte(prefixMeta + itemID) }

// Update runs fn in a read-write transaction, retrying on write conflicts.
func (d *DB) Update(ctx context.Context, fn func(store.Tx) error) error {
	if d.closed.Load() {
		return store.ErrClosed
	}
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = d.db.Update(func(txn *badger.Txn) error {
			return fn(&kvTx{txn: txn})
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

type kvTx struct{ txn *badger.Txn }

func getJSON(txn *badger.Txn, key []byte, v any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	err = item.Value(func(val []byte) error { return json.Unmarshal(val, v) })
	if err != nil {
		return false, fmt.Errorf("unmarshal %q: %w", key, err)
	}
	return true, nil
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", key, err)
	}
	return txn.Set(key, data)
}

func (t *kvTx) Record(userID, itemID string) (model.InteractionRecord, bool, error) {
	var rec model.InteractionRecord
	ok, err := getJSON(t.txn, recordKey(itemID, userID), &rec)
	return rec, ok, err
}

func (t *kvTx) PutRecord(rec model.InteractionRecord) error {
	if err := setJSON(t.txn, recordKey(rec.ItemID, rec.UserID), rec); err != nil {
		return err
	}
	return t.txn.Set(userIndexKey(rec.UserID, rec.ItemID), nil)
}

func (t *kvTx) Performance(itemID string) (model.ItemPerformance, bool, error) {
	var p model.ItemPerformance
	ok, err := getJSON(t.txn, perfKey(itemID), &p)
	return p, ok, err
}

func (t *kvTx) PutPerformance(p model.ItemPerformance) error {
	return setJSON(t.txn, perfKey(p.ItemID), p)
}

func (t *kvTx) CountRecentRecords(itemID string, since time.Time) (int, error) {
	n := 0
	err := eachRecordOfItem(t.txn, itemID, func(rec model.InteractionRecord) {
		if !rec.LastUpdatedAt.Before(since) {
			n++
		}
	})
	return n, err
}

func eachRecordOfItem(txn *badger.Txn, itemID string, fn func(model.InteractionRecord)) error {
	prefix := keyPrefix(prefixRecord, itemID)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var rec model.InteractionRecord
		if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
			return fmt.Errorf("unmarshal record %q: %w", it.Item().Key(), err)
		}
		fn(rec)
	}
	return nil
}

func (d *DB) view(fn func(txn *badger.Txn) error) error {
	if d.closed.Load() {
		return store.ErrClosed
	}
	return d.db.View(fn)
}

// RecordsForUser returns the user's records ordered by item id.
func (d *DB) RecordsForUser(ctx context.Context, userID string) ([]model.InteractionRecord, error) {
	var out []model.InteractionRecord
	err := d.view(func(txn *badger.Txn) error {
		prefix := keyPrefix(prefixUserIndex, userID)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			itemID := string(bytes.TrimPrefix(it.Item().Key(), prefix))
			var rec model.InteractionRecord
			ok, err := getJSON(txn, recordKey(itemID, userID), &rec)
			if err != nil {
				return err
			}
			if ok {
				out = append(out, rec)
			}
		}
		return nil
	})
	return out, err
}

// RecordsForItem returns the item's records ordered by user id.
func (d *DB) RecordsForItem(ctx context.Context, itemID string) ([]model.InteractionRecord, error) {
	var out []model.InteractionRecord
	err := d.view(func(txn *badger.Txn) error {
		return eachRecordOfItem(txn, itemID, func(rec model.InteractionRecord) { out = append(out, rec) })
	})
	return out, err
}

func (d *DB) Performance(ctx context.Context, itemID string) (model.ItemPerformance, error) {
	var p model.ItemPerformance
	err := d.view(func(txn *badger.Txn) error {
		ok, err := getJSON(txn, perfKey(itemID), &p)
		if err == nil && !ok {
			return store.ErrNotFound
		}
		return err
	})
	return p, err
}

func (d *DB) Performances(ctx context.Context, itemIDs []string) (map[string]model.ItemPerformance, error) {
	out := make(map[string]model.ItemPerformance, len(itemIDs))
	err := d.view(func(txn *badger.Txn) error {
		for _, id := range itemIDs {
			if err := ctx.Err(); err != nil {
				return err
			}
			var p model.ItemPerformance
			ok, err := getJSON(txn, perfKey(id), &p)
			if err != nil {
				return err
			}
			if ok {
				out[id] = p
			}
		}
		return nil
	})
	return out, err
}

func (d *DB) ItemIDs(ctx context.Context) ([]string, error) {
	var out []string
	err := d.view(func(txn *badger.Txn) error {
		prefix := []byte(prefixPerf)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			out = append(out, string(bytes.TrimPrefix(it.Item().Key(), prefix)))
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

func (d *DB) PutItem(ctx context.Context, it model.Item) error {
	if d.closed.Load() {
		return store.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, metaKey(it.ID), it)
	})
}

func (d *DB) Item(ctx context.Context, itemID string) (model.Item, error) {
	var it model.Item
	err := d.view(func(txn *badger.Txn) error {
		ok, err := getJSON(txn, metaKey(itemID), &it)
		if err == nil && !ok {
			return store.ErrNotFound
		}
		return err
	})
	return it, err
}

func (d *DB) Reset(ctx context.Context) error {
	if d.closed.Load() {
		return store.ErrClosed
	}
	return d.db.DropAll()
}
