package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"reelrank/internal/logging"
)

// Error codes returned in APIError.Code.
const (
	CodeBadRequest  = "BAD_REQUEST"
	CodeValidation  = "VALIDATION_ERROR"
	CodeStorage     = "STORAGE_ERROR"
	CodeNotFound    = "NOT_FOUND"
	CodeInvalidMode = "INVALID_MODE"
	CodeRateLimited = "RATE_LIMITED"
)

// Response wraps every JSON body the API returns.
type Response struct {
	Status   string    `json:"status"`
	Data     any       `json:"data"`
	Metadata Metadata  `json:"metadata"`
	Error    *APIError `json:"error,omitempty"`
}

type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"requestId,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, resp *Response) {
	resp.Metadata = Metadata{Timestamp: time.Now().UTC(), RequestID: middleware.GetReqID(r.Context())}
	data, err := json.Marshal(resp)
	if err != nil {
		logging.Error("api_marshal_error", map[string]any{"error": err.Error()})
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func respondData(w http.ResponseWriter, r *http.Request, status int, data any) {
	respondJSON(w, r, status, &Response{Status: "success", Data: data})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	respondJSON(w, r, status, &Response{Status: "error", Error: &APIError{Code: code, Message: message, Details: details}})
}
