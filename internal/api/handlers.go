package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"reelrank/internal/metrics"
	"reelrank/internal/model"
	"reelrank/internal/recommend"
	"reelrank/internal/store"
	"reelrank/internal/validation"
)

// RankRequest is the body of POST /v1/rank/{mode}. An omitted count ranks
// every eligible candidate; an explicit 0 returns an empty list.
type RankRequest struct {
	UserID     string       `json:"userId"`
	Count      *int         `json:"count,omitempty" validate:"omitempty,gte=0,lte=1000"`
	Candidates []model.Item `json:"candidates"`
}

type RankResponse struct {
	Mode  string       `json:"mode"`
	Items []model.Item `json:"items"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var ev model.InteractionEvent
	if err := decodeBody(w, r, &ev); err != nil {
		metrics.EventsRejected.WithLabelValues("decode").Inc()
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error(), nil)
		return
	}
	err := s.ledger.RecordEvent(r.Context(), ev)
	var verr *validation.EventError
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.As(err, &verr):
		respondError(w, r, http.StatusBadRequest, CodeValidation, verr.Error(), verr.Fields)
	case errors.Is(err, validation.ErrInvalidEvent):
		respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error(), nil)
	default:
		respondError(w, r, http.StatusInternalServerError, CodeStorage, "failed to record event", nil)
	}
}

func (s *Server) handleUserInteractions(w http.ResponseWriter, r *http.Request) {
	recs, err := s.ledger.RecordsForUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.logger.Error().Err(err).Msg("records for user")
		respondError(w, r, http.StatusInternalServerError, CodeStorage, "failed to load interactions", nil)
		return
	}
	if recs == nil {
		recs = []model.InteractionRecord{}
	}
	respondData(w, r, http.StatusOK, recs)
}

func (s *Server) handleUserProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.ranker.Profile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.logger.Error().Err(err).Msg("derive profile")
		respondError(w, r, http.StatusInternalServerError, CodeStorage, "failed to derive profile", nil)
		return
	}
	respondData(w, r, http.StatusOK, p)
}

func (s *Server) handlePutItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "itemID")
	var it model.Item
	if err := decodeBody(w, r, &it); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error(), nil)
		return
	}
	if it.ID != "" && it.ID != id {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "body id does not match path", nil)
		return
	}
	it.ID = id
	if strings.TrimSpace(it.ContentType) == "" {
		respondError(w, r, http.StatusBadRequest, CodeValidation, "contentType is required", nil)
		return
	}
	if err := s.store.PutItem(r.Context(), it); err != nil {
		metrics.StorageErrors.WithLabelValues("put_item").Inc()
		s.logger.Error().Err(err).Str("item_id", id).Msg("put item")
		respondError(w, r, http.StatusInternalServerError, CodeStorage, "failed to store item", nil)
		return
	}
	respondData(w, r, http.StatusOK, it)
}

func (s *Server) handleItemPerformance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "itemID")
	p, err := s.ledger.Performance(r.Context(), id)
	switch {
	case err == nil:
		respondData(w, r, http.StatusOK, p)
	case errors.Is(err, store.ErrNotFound):
		respondError(w, r, http.StatusNotFound, CodeNotFound, "no performance recorded for "+id, nil)
	default:
		s.logger.Error().Err(err).Str("item_id", id).Msg("load performance")
		respondError(w, r, http.StatusInternalServerError, CodeStorage, "failed to load performance", nil)
	}
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	mode := chi.URLParam(r, "mode")
	var req RankRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error(), nil)
		return
	}
	if err := validation.Validator().Struct(req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeValidation, "count must be between 0 and 1000", nil)
		return
	}
	count := len(req.Candidates)
	if req.Count != nil {
		count = *req.Count
	}
	var items []model.Item
	switch mode {
	case recommend.ModePersonalized:
		if strings.TrimSpace(req.UserID) == "" {
			respondError(w, r, http.StatusBadRequest, CodeValidation, "userId is required", nil)
			return
		}
		items = s.ranker.Personalized(r.Context(), req.UserID, req.Candidates, count)
	case recommend.ModeTrending:
		items = s.ranker.Trending(r.Context(), req.Candidates, count)
	case recommend.ModeDiscovery:
		items = s.ranker.Discovery(r.Context(), req.Candidates, count)
	default:
		respondError(w, r, http.StatusBadRequest, CodeInvalidMode, "mode must be personalized, trending or discovery", nil)
		return
	}
	respondData(w, r, http.StatusOK, RankResponse{Mode: mode, Items: items})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Reset(r.Context()); err != nil {
		metrics.StorageErrors.WithLabelValues("reset").Inc()
		s.logger.Error().Err(err).Msg("reset")
		respondError(w, r, http.StatusInternalServerError, CodeStorage, "failed to reset data", nil)
		return
	}
	s.logger.Warn().Msg("all interaction data deleted")
	w.WriteHeader(http.StatusNoContent)
}
