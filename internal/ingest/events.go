// Package ingest bulk-loads interaction events and catalog items from
// newline-delimited JSON.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"reelrank/internal/logging"
	"reelrank/internal/model"
	"reelrank/internal/validation"
)

const maxLineBytes = 1 << 20

// Recorder is the write side of the ledger.
type Recorder interface {
	RecordEvent(ctx context.Context, ev model.InteractionEvent) error
}

// ItemWriter stores catalog entries.
type ItemWriter interface {
	PutItem(ctx context.Context, it model.Item) error
}

// Result summarises one import.
type Result struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// Events records one event per line. Blank lines are skipped. Lines that do
// not decode or fail validation are counted and skipped; a storage failure
// stops the import.
func Events(ctx context.Context, rec Recorder, r io.Reader) (Result, error) {
	var res Result
	err := eachLine(r, func(n int, line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var ev model.InteractionEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			res.Rejected++
			logging.Warn("ingest_event_decode", map[string]any{"line": n, "error": err.Error()})
			return nil
		}
		if err := rec.RecordEvent(ctx, ev); err != nil {
			if errors.Is(err, validation.ErrInvalidEvent) {
				res.Rejected++
				logging.Warn("ingest_event_invalid", map[string]any{"line": n, "error": err.Error()})
				return nil
			}
			return fmt.Errorf("line %d: %w", n, err)
		}
		res.Accepted++
		return nil
	})
	return res, err
}

// Items stores one catalog item per line. Items without an id or content type
// are counted as rejected.
func Items(ctx context.Context, w ItemWriter, r io.Reader) (Result, error) {
	var res Result
	err := eachLine(r, func(n int, line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var it model.Item
		if err := json.Unmarshal(line, &it); err != nil || strings.TrimSpace(it.ID) == "" || strings.TrimSpace(it.ContentType) == "" {
			res.Rejected++
			logging.Warn("ingest_item_rejected", map[string]any{"line": n})
			return nil
		}
		if err := w.PutItem(ctx, it); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		res.Accepted++
		return nil
	})
	return res, err
}

func eachLine(r io.Reader, fn func(n int, line []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	n := 0
	for sc.Scan() {
		n++
		line := sc.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		if err := fn(n, line); err != nil {
			return err
		}
	}
	return sc.Err()
}
