package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"reelrank/internal/ledger"
	"reelrank/internal/model"
	"reelrank/internal/recommend"
	"reelrank/internal/store"
	"reelrank/internal/store/sqlite"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts Options) (*Server, store.Store) {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	now := func() time.Time { return testNow }
	catalog := store.Catalog(db, zerolog.Nop())
	l := ledger.New(db, ledger.Options{Lookup: catalog, Now: now, Logger: zerolog.Nop()})
	rk := recommend.NewRanker(db, catalog, recommend.Options{Rand: recommend.NewRand(1), Now: now, Logger: zerolog.Nop()})
	opts.Logger = zerolog.Nop()
	return New(l, rk, db, opts), db
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *APIError       `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func TestRecordEventAndReadPerformance(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Router()
	ev := map[string]any{"userId": "u1", "itemId": "X", "kind": "view", "watchDurationSeconds": 12.0}
	if rec, _ := do(t, h, http.MethodPost, "/v1/events", ev); rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec, env := do(t, h, http.MethodGet, "/v1/items/X/performance", nil)
	if rec.Code != http.StatusOK || env.Status != "success" {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var p model.ItemPerformance
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatal(err)
	}
	if p.TotalViews != 1 || p.AverageWatchTimeSeconds != 12 {
		t.Fatalf("performance = %+v", p)
	}
	rec, env = do(t, h, http.MethodGet, "/v1/users/u1/interactions", nil)
	var recs []model.InteractionRecord
	if err := json.Unmarshal(env.Data, &recs); err != nil || rec.Code != http.StatusOK || len(recs) != 1 {
		t.Fatalf("interactions: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRecordEventRejectsInvalid(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Router()
	rec, env := do(t, h, http.MethodPost, "/v1/events", map[string]any{"userId": "u1", "itemId": "X", "kind": "bookmark"})
	if rec.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != CodeValidation {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec, env = do(t, h, http.MethodPost, "/v1/events", "{not json")
	if rec.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != CodeBadRequest {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if rec, _ := do(t, h, http.MethodGet, "/v1/items/X/performance", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("invalid events created an aggregate: %d", rec.Code)
	}
}

func TestRankModes(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Router()
	count := 10
	body := RankRequest{UserID: "u1", Count: &count, Candidates: []model.Item{
		{ID: "a", ContentType: "video"},
		{ID: "b", ContentType: "text"},
		{ID: "c", ContentType: "reel"},
	}}
	for _, mode := range []string{"personalized", "trending", "discovery"} {
		rec, env := do(t, h, http.MethodPost, "/v1/rank/"+mode, body)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d body=%s", mode, rec.Code, rec.Body.String())
		}
		var out RankResponse
		if err := json.Unmarshal(env.Data, &out); err != nil {
			t.Fatal(err)
		}
		if out.Mode != mode || len(out.Items) != 2 {
			t.Fatalf("%s: %+v", mode, out)
		}
		for _, it := range out.Items {
			if it.ID == "b" {
				t.Fatalf("%s returned a text item", mode)
			}
		}
	}
	if rec, env := do(t, h, http.MethodPost, "/v1/rank/random", body); rec.Code != http.StatusBadRequest || env.Error.Code != CodeInvalidMode {
		t.Fatalf("unknown mode: %d %s", rec.Code, rec.Body.String())
	}
	if rec, _ := do(t, h, http.MethodPost, "/v1/rank/personalized", RankRequest{Count: &count}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing user: %d", rec.Code)
	}
}

func TestRankCountDefaultsToCandidates(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Router()
	cands := `[{"id":"a","contentType":"video"},{"id":"b","contentType":"text"},{"id":"c","contentType":"video"},{"id":"d","contentType":"reel"}]`
	for body, want := range map[string]int{
		`{"userId":"u1","candidates":` + cands + `}`:           3,
		`{"userId":"u1","count":0,"candidates":` + cands + `}`: 0,
		`{"userId":"u1","count":2,"candidates":` + cands + `}`: 2,
	} {
		rec, env := do(t, h, http.MethodPost, "/v1/rank/trending", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d body=%s", body, rec.Code, rec.Body.String())
		}
		var out RankResponse
		if err := json.Unmarshal(env.Data, &out); err != nil {
			t.Fatal(err)
		}
		if len(out.Items) != want {
			t.Fatalf("%s: got %d items, want %d", body, len(out.Items), want)
		}
	}
	if rec, _ := do(t, h, http.MethodPost, "/v1/rank/trending", `{"count":-1,"candidates":[]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("negative count: %d", rec.Code)
	}
}

func TestProfileUsesCatalog(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Router()
	item := model.Item{AuthorID: "alice", Hashtags: []string{"#Cats"}, ContentType: "video"}
	if rec, _ := do(t, h, http.MethodPut, "/v1/items/r1", item); rec.Code != http.StatusOK {
		t.Fatalf("put item: %d %s", rec.Code, rec.Body.String())
	}
	if rec, _ := do(t, h, http.MethodPost, "/v1/events", map[string]any{"userId": "u1", "itemId": "r1", "kind": "like"}); rec.Code != http.StatusNoContent {
		t.Fatalf("like: %d", rec.Code)
	}
	rec, env := do(t, h, http.MethodGet, "/v1/users/u1/profile", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile: %d", rec.Code)
	}
	var p struct {
		FavoriteAuthors  []string `json:"favoriteAuthors"`
		FavoriteHashtags []string `json:"favoriteHashtags"`
		ActiveHours      []int    `json:"activeHours"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatal(err)
	}
	if len(p.FavoriteAuthors) != 1 || p.FavoriteAuthors[0] != "alice" || len(p.FavoriteHashtags) != 1 || p.FavoriteHashtags[0] != "cats" {
		t.Fatalf("profile = %+v", p)
	}
	if len(p.ActiveHours) != 1 || p.ActiveHours[0] != 12 {
		t.Fatalf("active hours = %v", p.ActiveHours)
	}
	if rec, _ := do(t, h, http.MethodPut, "/v1/items/r1", model.Item{ID: "other", ContentType: "video"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("mismatched id accepted: %d", rec.Code)
	}
}

func TestResetDeletesEverything(t *testing.T) {
	srv, db := newTestServer(t, Options{})
	h := srv.Router()
	do(t, h, http.MethodPost, "/v1/events", map[string]any{"userId": "u1", "itemId": "X", "kind": "share"})
	if rec, _ := do(t, h, http.MethodDelete, "/v1/data", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("reset: %d", rec.Code)
	}
	if rec, _ := do(t, h, http.MethodGet, "/v1/items/X/performance", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("performance after reset: %d", rec.Code)
	}
	if recs, _ := db.RecordsForUser(context.Background(), "u1"); len(recs) != 0 {
		t.Fatalf("records after reset: %+v", recs)
	}
}

func TestRateLimitPerClient(t *testing.T) {
	srv, _ := newTestServer(t, Options{RequestsPerSecond: 0.5, Burst: 1})
	h := srv.Router()
	if rec, _ := do(t, h, http.MethodGet, "/v1/users/u/interactions", nil); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	rec, env := do(t, h, http.MethodGet, "/v1/users/u/interactions", nil)
	if rec.Code != http.StatusTooManyRequests || env.Error == nil || env.Error.Code != CodeRateLimited {
		t.Fatalf("second request: %d %s", rec.Code, rec.Body.String())
	}
	if ra := rec.Header().Get("Retry-After"); ra == "" || ra == "0" {
		t.Fatalf("Retry-After = %q", ra)
	}
	other := httptest.NewRequest(http.MethodGet, "/v1/users/u/interactions", nil)
	other.RemoteAddr = "10.0.0.9:5555"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, other)
	if w.Code != http.StatusOK {
		t.Fatalf("other client throttled: %d", w.Code)
	}
	if rec, _ := do(t, h, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("health throttled: %d", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Router()
	req := httptest.NewRequest(http.MethodGet, "/v1/items/none/performance", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "req-123" {
		t.Fatalf("request id = %q", got)
	}
	rec2, _ := do(t, h, http.MethodGet, "/health", nil)
	if rec2.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected generated request id")
	}
}
