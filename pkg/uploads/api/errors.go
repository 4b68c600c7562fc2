package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/catalog-uploads/pkg/uploads"
	"github.com/tendant/catalog-uploads/pkg/uploads/auth"
)

// ErrMalformedBody is returned when a request body is not the expected JSON
var ErrMalformedBody = errors.New("malformed request body")

// ErrorResponse is the body of every failed call
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Reason string `json:"reason,omitempty"`
}

// MapError translates a service or auth error into a status, a stable code and a
// caller-safe message.
func MapError(err error) (status int, code, msg string) {
	switch {
	case errors.Is(err, ErrMalformedBody):
		return http.StatusBadRequest, "malformed_body", "invalid request body"
	case errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized, "missing_token", "missing token"
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid_token", "invalid token"
	case errors.Is(err, auth.ErrNotConfigured):
		return http.StatusInternalServerError, "auth_not_configured", "auth not configured"
	}

	var e *uploads.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}

	msg = uploads.MessageOf(err)
	switch e.Kind {
	case uploads.KindValidation, uploads.KindIntegrity:
		status = http.StatusBadRequest
	case uploads.KindUnauthenticated:
		status = http.StatusUnauthorized
	case uploads.KindForbidden:
		status = http.StatusForbidden
	case uploads.KindNotFound:
		status = http.StatusNotFound
	default:
		status = http.StatusInternalServerError
	}
	return status, e.Kind.String(), msg
}

// WriteError renders err as an ErrorResponse
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := MapError(err)
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{
		Error:  msg,
		Code:   code,
		Reason: string(uploads.ReasonOf(err)),
	})
}
