package ragapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Operation  string
	StatusCode int

	// Msg is the backend's "msg" field, empty when the body had none
	Msg string

	Body string
}

func newAPIError(op string, status int, body []byte) *APIError {
	e := &APIError{
		Operation:  op,
		StatusCode: status,
		Body:       strings.TrimSpace(string(body)),
	}
	var payload struct {
		Msg any `json:"msg"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch v := payload.Msg.(type) {
		case string:
			e.Msg = v
		case nil:
		default:
			e.Msg = fmt.Sprint(v)
		}
	}
	return e
}

func (e *APIError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s failed with status %d: %s", e.Operation, e.StatusCode, e.Msg)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s failed with status %d: %s", e.Operation, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s failed with status %d", e.Operation, e.StatusCode)
}

// ServerMessage is the message the backend meant for the user.
func (e *APIError) ServerMessage() string {
	return e.Msg
}

// Unauthorized reports whether the backend rejected the session's credentials.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusUnprocessableEntity
}
