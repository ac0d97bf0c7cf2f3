// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrValidation = errors.New("validation failed")
)

// fieldErrorer is implemented by validation errors that carry per-field detail.
type fieldErrorer interface {
	FieldErrors() map[string]string
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		detail := ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: err.Error()}
		var fe fieldErrorer
		if errors.As(err, &fe) {
			detail.Errors = fe.FieldErrors()
		}
		JSON(w, http.StatusBadRequest, detail)
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
