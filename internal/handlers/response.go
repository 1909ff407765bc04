package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/ragdesk/ragdesk/internal/ragapi"
	"github.com/ragdesk/ragdesk/internal/services"
	"github.com/ragdesk/ragdesk/internal/transcript"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// decodeBody decodes and validates a JSON request body. An empty body is
// only accepted when optional is set.
func decodeBody(r *http.Request, dst any, optional bool) error {
	if r.Body == nil || r.ContentLength == 0 {
		if optional {
			return nil
		}
		return errors.New("request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	return validate.Struct(dst)
}

// statusFor maps a service error to its HTTP status and user-facing message.
func statusFor(err error) (int, string) {
	var apiErr *ragapi.APIError
	switch {
	case errors.Is(err, transcript.ErrEmptyQuery):
		return http.StatusBadRequest, "query is empty"
	case errors.Is(err, transcript.ErrSubmitInFlight):
		return http.StatusConflict, "a query is already being submitted"
	case errors.Is(err, transcript.ErrRevalidateInFlight):
		return http.StatusConflict, "message is already being revalidated"
	case errors.Is(err, transcript.ErrUnknownMessage):
		return http.StatusNotFound, "message not found"
	case errors.Is(err, services.ErrViewNotFound), errors.Is(err, transcript.ErrClosed):
		return http.StatusNotFound, "view not found"
	case errors.As(err, &apiErr):
		msg := apiErr.ServerMessage()
		if apiErr.Unauthorized() {
			if msg == "" {
				msg = "not authenticated"
			}
			return http.StatusUnauthorized, msg
		}
		if msg == "" {
			msg = "backend request failed"
		}
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return apiErr.StatusCode, msg
		}
		return http.StatusBadGateway, msg
	default:
		return http.StatusBadGateway, "backend unavailable"
	}
}

// writeServiceError writes err as a response. A backend that no longer
// accepts the desk's credentials also logs the desk out locally.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if desk, ok := services.DeskFromContext(r.Context()); ok {
		if _, lerr := desk.NoteBackendError(r.Context(), err); lerr != nil {
			zerolog.Ctx(r.Context()).Error().Err(lerr).Str("desk_id", desk.ID).Msg("failed to record logout after backend rejected credentials")
		}
	}
	writeError(w, status, msg)
}
