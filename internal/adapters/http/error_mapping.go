package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/claim-intake/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrValidation), domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrSuperseded):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrTriage), domain.IsKind(err, domain.ErrNetwork), domain.IsKind(err, domain.ErrStream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
