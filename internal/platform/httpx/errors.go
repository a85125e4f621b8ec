// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/harbor-wms/harbor-wms/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicateIdentifier):
		Problem(w, http.StatusConflict, "Duplicate Identifier", err.Error())
	case errors.Is(err, shared.ErrConcurrentModification):
		Problem(w, http.StatusConflict, "Concurrent Modification", err.Error())
	case errors.Is(err, shared.ErrInvalidState):
		Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrInsufficientStock),
		errors.Is(err, shared.ErrQuantityExceeded),
		errors.Is(err, shared.ErrOverReceipt):
		Problem(w, http.StatusUnprocessableEntity, "Stock Constraint Violated", err.Error())
	case errors.Is(err, shared.ErrInvalidLocation):
		Problem(w, http.StatusUnprocessableEntity, "Invalid Location", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrPermissionDenied):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
