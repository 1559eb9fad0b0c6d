// Package api exposes the ledger and ranker over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"reelrank/internal/ledger"
	"reelrank/internal/metrics"
	"reelrank/internal/recommend"
	"reelrank/internal/store"
)

const maxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	// Per-client token bucket; RequestsPerSecond <= 0 disables throttling
	RequestsPerSecond float64
	Burst             int
	Logger            zerolog.Logger
}

type Server struct {
	ledger  *ledger.Ledger
	ranker  *recommend.Ranker
	store   store.Store
	limiter *clientLimiter
	logger  zerolog.Logger
}

func New(l *ledger.Ledger, rk *recommend.Ranker, s store.Store, opts Options) *Server {
	return &Server{
		ledger:  l,
		ranker:  rk,
		store:   s,
		limiter: newClientLimiter(opts.RequestsPerSecond, opts.Burst),
		logger:  opts.Logger.With().Str("component", "api").Logger(),
	}
}

// Router builds the HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(s.logger))

	mh := metrics.Handler()
	r.Method(http.MethodGet, "/health", mh)
	r.Method(http.MethodGet, "/metrics", mh)

	r.Route("/v1", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.middleware)
		}
		r.Post("/events", s.handleRecordEvent)
		r.Get("/users/{userID}/interactions", s.handleUserInteractions)
		r.Get("/users/{userID}/profile", s.handleUserProfile)
		r.Put("/items/{itemID}", s.handlePutItem)
		r.Get("/items/{itemID}/performance", s.handleItemPerformance)
		r.Post("/rank/{mode}", s.handleRank)
		r.Delete("/data", s.handleReset)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info().Str("addr", addr).Msg("api listening")
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info().Msg("api stopped")
	return nil
}
