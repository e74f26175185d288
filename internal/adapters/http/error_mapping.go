package httpadapter

import (
	"net/http"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrSyncInProgress):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrCapacity):
		return http.StatusTooManyRequests
	case domain.IsKind(err, domain.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
