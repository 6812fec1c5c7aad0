package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	defaultAttempts   = 3
	defaultBackoff    = 100 * time.Millisecond
	defaultBackoffCap = 400 * time.Millisecond
	defaultGrowth     = 2.0

	defaultMinSamples     = 10
	defaultTripRatio      = 0.5
	defaultOpenFor        = 30 * time.Second
	defaultHalfOpenProbes = 2
)

// Policy bounds how hard an Executor leans on a failing dependency.
type Policy struct {
	Attempts      int
	Backoff       time.Duration
	BackoffCap    time.Duration
	BackoffGrowth float64

	Breaker        bool
	MinSamples     uint32
	TripRatio      float64
	OpenFor        time.Duration
	HalfOpenProbes uint32

	Logger *slog.Logger
}

func DefaultPolicy() Policy {
	return Policy{
		Attempts:      defaultAttempts,
		Backoff:       defaultBackoff,
		BackoffCap:    defaultBackoffCap,
		BackoffGrowth: defaultGrowth,

		Breaker:        true,
		MinSamples:     defaultMinSamples,
		TripRatio:      defaultTripRatio,
		OpenFor:        defaultOpenFor,
		HalfOpenProbes: defaultHalfOpenProbes,
	}
}

func (p Policy) sanitized() Policy {
	if p.Attempts < 1 {
		p.Attempts = defaultAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = defaultBackoff
	}
	if p.BackoffCap < p.Backoff {
		p.BackoffCap = p.Backoff
	}
	if p.BackoffGrowth < 1 {
		p.BackoffGrowth = defaultGrowth
	}
	if p.MinSamples == 0 {
		p.MinSamples = defaultMinSamples
	}
	if p.TripRatio <= 0 || p.TripRatio > 1 {
		p.TripRatio = defaultTripRatio
	}
	if p.OpenFor <= 0 {
		p.OpenFor = defaultOpenFor
	}
	if p.HalfOpenProbes == 0 {
		p.HalfOpenProbes = defaultHalfOpenProbes
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return p
}

// Classification tells the Executor how to treat one failed call.
type Classification struct {
	Retryable       bool
	CountsAsFailure bool
}

// Classifier inspects errors from one dependency. It must accept nil.
type Classifier func(error) Classification

type Executor struct {
	policy   Policy
	classify Classifier

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func New(policy Policy, classify Classifier) *Executor {
	if classify == nil {
		classify = func(err error) Classification {
			return Classification{CountsAsFailure: err != nil}
		}
	}
	return &Executor{
		policy:   policy.sanitized(),
		classify: classify,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// Do runs fn with retries under the operation's circuit breaker. A whole
// retry burst counts as one breaker sample, judged by its final error.
func (e *Executor) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	if !e.policy.Breaker {
		return e.attempt(ctx, operation, fn)
	}
	_, err := e.breakerFor(operation).Execute(func() (struct{}, error) {
		return struct{}{}, e.attempt(ctx, operation, fn)
	})
	return err
}

func (e *Executor) attempt(ctx context.Context, operation string, fn func(context.Context) error) error {
	var err error
	delay := e.policy.Backoff
	for left := e.policy.Attempts; left > 0; left-- {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if left == 1 || !e.classify(err).Retryable {
			return err
		}

		e.policy.Logger.Warn("dependency call failed, retrying",
			"operation", operation,
			"attempts_left", left-1,
			"delay", delay,
			"error", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		delay = min(time.Duration(float64(delay)*e.policy.BackoffGrowth), e.policy.BackoffCap)
	}
	return err
}

func (e *Executor) breakerFor(operation string) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if breaker, ok := e.breakers[operation]; ok {
		return breaker
	}

	p := e.policy
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        operation,
		MaxRequests: p.HalfOpenProbes,
		Timeout:     p.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= p.MinSamples &&
				float64(counts.TotalFailures) >= p.TripRatio*float64(counts.Requests)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !e.classify(err).CountsAsFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.Logger.Warn("breaker state changed",
				"operation", name,
				"from", from.String(),
				"to", to.String())
		},
	})
	e.breakers[operation] = breaker
	return breaker
}

// IsCircuitOpen reports whether err means the breaker rejected the call
// before it reached the dependency.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
