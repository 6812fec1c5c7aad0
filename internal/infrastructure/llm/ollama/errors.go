package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/toolrank-io/toolrank/internal/core/domain"
	"github.com/toolrank-io/toolrank/internal/infrastructure/resilience"
)

// HTTPStatusError is a non-200 reply from Ollama, body truncated.
type HTTPStatusError struct {
	Path       string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	msg := fmt.Sprintf("ollama %s: %s", e.Path, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func classify(err error) resilience.Classification {
	var statusErr *HTTPStatusError
	var netErr net.Error
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return resilience.Classification{}
	case resilience.IsCircuitOpen(err):
		return resilience.Classification{Retryable: true, CountsAsFailure: true}
	case errors.As(err, &statusErr):
		if transientStatus(statusErr.StatusCode) {
			return resilience.Classification{Retryable: true, CountsAsFailure: true}
		}
		return resilience.Classification{}
	case errors.As(err, &netErr):
		return resilience.Classification{Retryable: true, CountsAsFailure: true}
	default:
		return resilience.Classification{CountsAsFailure: true}
	}
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func wrapTemporary(operation string, err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsKind(err, domain.ErrTemporary):
		return err
	case resilience.IsCircuitOpen(err):
		return domain.WrapError(domain.ErrUnavailable, operation, err)
	case classify(err).Retryable:
		return domain.WrapError(domain.ErrTemporary, operation, err)
	default:
		return err
	}
}
