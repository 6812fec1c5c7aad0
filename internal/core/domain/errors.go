package domain

import (
	"errors"
	"fmt"
)

// Request-shaped failures that surface directly to API clients.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrToolNotFound = errors.New("tool not found")
	ErrTaskNotFound = errors.New("sync task not found")
)

// Planning and execution failures inside the retrieval pipeline.
var (
	// ErrNoPlan is the one total-failure case: nothing to execute.
	ErrNoPlan = errors.New("no plan produced")

	ErrInvalidPlan     = errors.New("invalid plan")
	ErrUnknownStep     = errors.New("unknown step")
	ErrStepFailed      = errors.New("step failed")
	ErrStrategyTimeout = errors.New("strategy timeout")
)

// Dependency health failures, raised by the infrastructure layer.
var (
	ErrTemporary   = errors.New("temporary failure")
	ErrUnavailable = errors.New("dependency unavailable")
)

// WrapError tags err with a semantic kind and the failing operation.
// A nil err stays nil.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

// IsKind reports whether kind appears anywhere in err's chain.
func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
