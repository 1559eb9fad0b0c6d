// Package sqlite is the default durable backend, a single SQLite file in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"reelrank/internal/model"
	"reelrank/internal/store"
)

// DB is a store.Store backed by SQLite.
type DB struct{ sql *sql.DB }

var _ store.Store = (*DB)(nil)

// Open opens (or creates) the database at path. ":memory:" gives a private
// in-memory database, which is what the tests use.
func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer; one connection also keeps ":memory:" a single database.
	d.SetMaxOpenConns(1)
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;`); err != nil {
		_ = d.Close()
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS interaction_records (
	  user_id TEXT NOT NULL,
	  item_id TEXT NOT NULL,
	  views INTEGER NOT NULL DEFAULT 0,
	  likes INTEGER NOT NULL DEFAULT 0,
	  shares INTEGER NOT NULL DEFAULT 0,
	  comments INTEGER NOT NULL DEFAULT 0,
	  watch_time_seconds REAL NOT NULL DEFAULT 0,
	  completion_rate REAL NOT NULL DEFAULT 0,
	  last_updated_at INTEGER NOT NULL,
	  PRIMARY KEY (user_id, item_id)
	);
	CREATE INDEX IF NOT EXISTS idx_records_item_updated ON interaction_records(item_id, last_updated_at);
	CREATE TABLE IF NOT EXISTS item_performance (
	  item_id TEXT PRIMARY KEY,
	  total_views INTEGER NOT NULL DEFAULT 0,
	  total_likes INTEGER NOT NULL DEFAULT 0,
	  total_shares INTEGER NOT NULL DEFAULT 0,
	  total_comments INTEGER NOT NULL DEFAULT 0,
	  average_watch_time_seconds REAL NOT NULL DEFAULT 0,
	  engagement_rate REAL NOT NULL DEFAULT 0,
	  trending_score REAL NOT NULL DEFAULT 0,
	  is_trending INTEGER NOT NULL DEFAULT 0,
	  updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS item_catalog (
	  item_id TEXT PRIMARY KEY,
	  author_id TEXT NOT NULL DEFAULT '',
	  content_type TEXT NOT NULL DEFAULT '',
	  hashtags TEXT NOT NULL DEFAULT '[]',
	  created_at_ms INTEGER NOT NULL DEFAULT 0
	);
	`)
	return err
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Update runs fn inside a SQL transaction.
func (d *DB) Update(ctx context.Context, fn func(store.Tx) error) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&sqlTx{ctx: ctx, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type sqlTx struct {
	ctx context.Context
	q   queryer
}

const recordColumns = `user_id, item_id, views, likes, shares, comments, watch_time_seconds, completion_rate, last_updated_at`

const perfColumns = `item_id, total_views, total_likes, total_shares, total_comments, average_watch_time_seconds, engagement_rate, trending_score, is_trending, updated_at`

func (t *sqlTx) Record(userID, itemID string) (model.InteractionRecord, bool, error) {
	row := t.q.QueryRowContext(t.ctx, `SELECT `+recordColumns+` FROM interaction_records WHERE user_id=? AND item_id=?`, userID, itemID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.InteractionRecord{}, false, nil
	}
	if err != nil {
		return model.InteractionRecord{}, false, err
	}
	return rec, true, nil
}

func (t *sqlTx) PutRecord(r model.InteractionRecord) error {
	_, err := t.q.ExecContext(t.ctx, `INSERT INTO interaction_records(`+recordColumns+`) VALUES(?,?,?,?,?,?,?,?,?)
	ON CONFLICT(user_id, item_id) DO UPDATE SET
	  views=excluded.views, likes=excluded.likes, shares=excluded.shares, comments=excluded.comments,
	  watch_time_seconds=excluded.watch_time_seconds, completion_rate=excluded.completion_rate,
	  last_updated_at=excluded.last_updated_at`,
		r.UserID, r.ItemID, r.Views, r.Likes, r.Shares, r.Comments, r.WatchTimeSeconds, r.CompletionRate, r.LastUpdatedAt.UnixMilli())
	return err
}

func (t *sqlTx) Performance(itemID string) (model.ItemPerformance, bool, error) {
	row := t.q.QueryRowContext(t.ctx, `SELECT `+perfColumns+` FROM item_performance WHERE item_id=?`, itemID)
	p, err := scanPerformance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ItemPerformance{}, false, nil
	}
	if err != nil {
		return model.ItemPerformance{}, false, err
	}
	return p, true, nil
}

func (t *sqlTx) PutPerformance(p model.ItemPerformance) error {
	_, err := t.q.ExecContext(t.ctx, `INSERT INTO item_performance(`+perfColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT(item_id) DO UPDATE SET
	  total_views=excluded.total_views, total_likes=excluded.total_likes, total_shares=excluded.total_shares,
	  total_comments=excluded.total_comments, average_watch_time_seconds=excluded.average_watch_time_seconds,
	  engagement_rate=excluded.engagement_rate, trending_score=excluded.trending_score,
	  is_trending=excluded.is_trending, updated_at=excluded.updated_at`,
		p.ItemID, p.TotalViews, p.TotalLikes, p.TotalShares, p.TotalComments, p.AverageWatchTimeSeconds,
		p.EngagementRate, p.TrendingScore, p.IsTrending, p.UpdatedAt.UnixMilli())
	return err
}

func (t *sqlTx) CountRecentRecords(itemID string, since time.Time) (int, error) {
	var n int
	err := t.q.QueryRowContext(t.ctx, `SELECT COUNT(*) FROM interaction_records WHERE item_id=? AND last_updated_at>=?`, itemID, since.UnixMilli()).Scan(&n)
	return n, err
}

// RecordsForUser returns the user's records ordered by item id.
func (d *DB) RecordsForUser(ctx context.Context, userID string) ([]model.InteractionRecord, error) {
	return d.queryRecords(ctx, `SELECT `+recordColumns+` FROM interaction_records WHERE user_id=? ORDER BY item_id`, userID)
}

// RecordsForItem returns the item's records ordered by user id.
func (d *DB) RecordsForItem(ctx context.Context, itemID string) ([]model.InteractionRecord, error) {
	return d.queryRecords(ctx, `SELECT `+recordColumns+` FROM interaction_records WHERE item_id=? ORDER BY user_id`, itemID)
}

func (d *DB) queryRecords(ctx context.Context, q string, arg string) ([]model.InteractionRecord, error) {
	rows, err := d.sql.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.InteractionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (d *DB) Performance(ctx context.Context, itemID string) (model.ItemPerformance, error) {
	p, ok, err := (&sqlTx{ctx: ctx, q: d.sql}).Performance(itemID)
	if err != nil {
		return p, err
	}
	if !ok {
		return p, store.ErrNotFound
	}
	return p, nil
}

// Performances loads aggregates for the given ids; unknown ids are absent from the map.
func (d *DB) Performances(ctx context.Context, itemIDs []string) (map[string]model.ItemPerformance, error) {
	out := make(map[string]model.ItemPerformance, len(itemIDs))
	// batch to stay well under SQLite's bound-parameter limit
	const batch = 500
	for i := 0; i < len(itemIDs); i += batch {
		end := i + batch
		if end > len(itemIDs) {
			end = len(itemIDs)
		}
		chunk := itemIDs[i:end]
		args := make([]any, len(chunk))
		for j, id := range chunk {
			args[j] = id
		}
		q := `SELECT ` + perfColumns + ` FROM item_performance WHERE item_id IN (?` + strings.Repeat(",?", len(chunk)-1) + `)`
		rows, err := d.sql.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			p, err := scanPerformance(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out[p.ItemID] = p
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ItemIDs lists every item with a performance aggregate.
func (d *DB) ItemIDs(ctx context.Context) ([]string, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT item_id FROM item_performance ORDER BY item_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (d *DB) PutItem(ctx context.Context, it model.Item) error {
	tags, err := json.Marshal(it.Hashtags)
	if err != nil {
		return err
	}
	_, err = d.sql.ExecContext(ctx, `INSERT INTO item_catalog(item_id, author_id, content_type, hashtags, created_at_ms) VALUES(?,?,?,?,?)
	ON CONFLICT(item_id) DO UPDATE SET author_id=excluded.author_id, content_type=excluded.content_type,
	  hashtags=excluded.hashtags, created_at_ms=excluded.created_at_ms`,
		it.ID, it.AuthorID, it.ContentType, string(tags), it.CreatedAtMillis)
	return err
}

func (d *DB) Item(ctx context.Context, itemID string) (model.Item, error) {
	it := model.Item{ID: itemID}
	var tags string
	err := d.sql.QueryRowContext(ctx, `SELECT author_id, content_type, hashtags, created_at_ms FROM item_catalog WHERE item_id=?`, itemID).
		Scan(&it.AuthorID, &it.ContentType, &tags, &it.CreatedAtMillis)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Item{}, store.ErrNotFound
	}
	if err != nil {
		return model.Item{}, err
	}
	if err := json.Unmarshal([]byte(tags), &it.Hashtags); err != nil {
		return model.Item{}, fmt.Errorf("decode hashtags for %s: %w", itemID, err)
	}
	return it, nil
}

func (d *DB) Reset(ctx context.Context) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for _, table := range []string{"interaction_records", "item_performance", "item_catalog"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return tx.Commit()
}

type scanner interface{ Scan(dest ...any) error }

func scanRecord(s scanner) (model.InteractionRecord, error) {
	var r model.InteractionRecord
	var ts int64
	if err := s.Scan(&r.UserID, &r.ItemID, &r.Views, &r.Likes, &r.Shares, &r.Comments, &r.WatchTimeSeconds, &r.CompletionRate, &ts); err != nil {
		return r, err
	}
	r.LastUpdatedAt = time.UnixMilli(ts).UTC()
	return r, nil
}

func scanPerformance(s scanner) (model.ItemPerformance, error) {
	var p model.ItemPerformance
	var ts int64
	if err := s.Scan(&p.ItemID, &p.TotalViews, &p.TotalLikes, &p.TotalShares, &p.TotalComments,
		&p.AverageWatchTimeSeconds, &p.EngagementRate, &p.TrendingScore, &p.IsTrending, &ts); err != nil {
		return p, err
	}
	p.UpdatedAt = time.UnixMilli(ts).UTC()
	return p, nil
}
