package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"ride-share/internal/ride-service/domain"
	"ride-share/pkg/logger"
)

// envelope is the shape of every response body.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// mapErrorToStatusCode maps domain error kinds to HTTP status codes
func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *RideHandler) writeError(w http.ResponseWriter, r *http.Request, action string, err error) {
	status := mapErrorToStatusCode(err)
	log := logger.FromContext(r.Context(), h.logger).WithFields(logger.LogFields{
		"status": status,
		"path":   r.URL.Path,
	})
	if status >= http.StatusInternalServerError {
		log.Error(action, err)
	} else {
		log.Debug(action, err.Error())
	}

	body := envelope{Success: false, Message: domain.Message(err)}

	var dup *domain.BookingConflictError
	if errors.As(err, &dup) {
		data := map[string]interface{}{"reservation": toReservationResponse(dup.Existing)}
		if dup.Ride != nil {
			data["ride"] = toRideResponse(dup.Ride)
		}
		body.Data = data
	}
	writeJSON(w, status, body)
}
