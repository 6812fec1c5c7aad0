package httpadapter

import (
	"net/http"

	"github.com/toolrank-io/toolrank/internal/core/domain"
)

// statusForKind is checked in order; the first kind found in the chain wins.
var statusForKind = []struct {
	kind   error
	status int
}{
	{domain.ErrInvalidInput, http.StatusBadRequest},
	{domain.ErrToolNotFound, http.StatusNotFound},
	{domain.ErrTaskNotFound, http.StatusNotFound},
	{domain.ErrNoPlan, http.StatusServiceUnavailable},
	{domain.ErrTemporary, http.StatusServiceUnavailable},
	{domain.ErrUnavailable, http.StatusServiceUnavailable},
}

func mapErrorToHTTPStatus(err error) int {
	for _, entry := range statusForKind {
		if domain.IsKind(err, entry.kind) {
			return entry.status
		}
	}
	return http.StatusInternalServerError
}
