package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/toolrank-io/toolrank/internal/core/domain"
	"github.com/toolrank-io/toolrank/internal/infrastructure/resilience"
)

type httpStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *httpStatusError) Error() string {
	msg := fmt.Sprintf("%s status: %s", e.Operation, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func isStatus(err error, code int) bool {
	var statusErr *httpStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}

func classify(err error) resilience.Classification {
	var statusErr *httpStatusError
	var netErr net.Error
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return resilience.Classification{}
	case resilience.IsCircuitOpen(err):
		return resilience.Classification{Retryable: true, CountsAsFailure: true}
	case errors.As(err, &statusErr):
		switch statusErr.StatusCode {
		case http.StatusRequestTimeout,
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return resilience.Classification{Retryable: true, CountsAsFailure: true}
		}
		// Remaining statuses are request-shaped and say nothing about service health.
		return resilience.Classification{}
	case errors.As(err, &netErr):
		return resilience.Classification{Retryable: true, CountsAsFailure: true}
	default:
		return resilience.Classification{CountsAsFailure: true}
	}
}

func wrapTemporary(operation string, err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrUnavailable):
		return err
	case resilience.IsCircuitOpen(err):
		return domain.WrapError(domain.ErrUnavailable, operation, err)
	case classify(err).Retryable:
		return domain.WrapError(domain.ErrTemporary, operation, err)
	default:
		return err
	}
}
