package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"elaqe.org/internal/audit"
	"elaqe.org/internal/auth"
	"elaqe.org/internal/directory"
	"elaqe.org/internal/messaging"
	"elaqe.org/internal/obs"
	"elaqe.org/internal/paging"
)

// envelope is the body of every API response.
type envelope struct {
	Success    bool         `json:"success"`
	Message    string       `json:"message,omitempty"`
	Data       any          `json:"data,omitempty"`
	Pagination *paging.Info `json:"pagination,omitempty"`
	RequestID  string       `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, code int, msg string, data any) {
	writeJSON(w, code, envelope{Success: true, Message: msg, Data: data})
}

func writePage(w http.ResponseWriter, data any, info paging.Info) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Pagination: &info})
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, envelope{Success: false, Message: msg, RequestID: RequestIDFromContext(r.Context())})
}

// handleError maps domain errors onto HTTP statuses.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, directory.ErrInvalidInput),
		errors.Is(err, directory.ErrConflict),
		errors.Is(err, audit.ErrInvalidEntry),
		errors.Is(err, messaging.ErrReadTrackingDisabled):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		obs.LoggerFrom(r.Context()).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// pageRequest reads page and limit; malformed values fall back to defaults.
func pageRequest(r *http.Request) paging.Request {
	q := r.URL.Query()
	return paging.Request{
		Page:  parseInt(q.Get("page")),
		Limit: parseInt(q.Get("limit")),
	}
}

func parseInt(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
