package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/clickstudio/connect-core/internal/core/domain"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error   string `json:"error" example:"invalid request body"`
	Code    string `json:"code,omitempty" example:"invalid_state"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps a core error onto a status code and a message
// that is safe to show to the user.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		rateErr      *domain.RateLimitError
		vendorErr    *domain.VendorError
		reconnectErr *domain.ReconnectError
	)

	switch {
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds()))
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: rateErr.Error(), Code: "rate_limited"})
	case errors.Is(err, domain.ErrInvalidState):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_state"})
	case errors.As(err, &reconnectErr):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: reconnectErr.Error(), Code: "reconnect_required"})
	case errors.Is(err, domain.ErrReconnectRequired):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "reconnect_required"})
	case errors.Is(err, domain.ErrNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: "not_configured"})
	case errors.Is(err, domain.ErrCircuitOpen):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: "circuit_open"})
	case errors.Is(err, domain.ErrNotConnected), errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "not_connected"})
	case errors.Is(err, domain.ErrUnsupportedPlatform):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "unsupported_platform"})
	case errors.Is(err, domain.ErrTextTooLong),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrNoPage),
		errors.Is(err, domain.ErrNoInstagramAccount):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_request"})
	case errors.Is(err, domain.ErrRefreshInProgress):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "refresh_in_progress"})
	case errors.As(err, &vendorErr):
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: vendorErr.Error(), Code: "vendor_error"})
	default:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
