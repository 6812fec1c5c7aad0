package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"

	"github.com/toolrank-io/toolrank/internal/core/domain"
	"github.com/toolrank-io/toolrank/internal/core/ports"
)

const (
	defaultMaxConcurrentStrategies = 16
	defaultStrategyTimeout         = 10 * time.Second
)

type ExecutorConfig struct {
	Logger                  *slog.Logger
	Clock                   clockwork.Clock
	Registry                ports.StepRegistry
	MaxConcurrentStrategies int
	StrategyTimeout         time.Duration
}

func (c *ExecutorConfig) Validate() error {
	if c.Registry == nil {
		return domain.WrapError(domain.ErrInvalidInput, "executor config", fmt.Errorf("step registry is required"))
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.MaxConcurrentStrategies <= 0 {
		c.MaxConcurrentStrategies = defaultMaxConcurrentStrategies
	}
	if c.StrategyTimeout <= 0 {
		c.StrategyTimeout = defaultStrategyTimeout
	}
	return nil
}

// Strategies fan out on a shared bounded pool; steps within one strategy stay sequential.
type PlanExecutor struct {
	log             *slog.Logger
	clock           clockwork.Clock
	registry        ports.StepRegistry
	pool            pond.Pool
	strategyTimeout time.Duration
}

func NewPlanExecutor(cfg ExecutorConfig) (*PlanExecutor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PlanExecutor{
		log:             cfg.Logger,
		clock:           cfg.Clock,
		registry:        cfg.Registry,
		pool:            pond.NewPool(cfg.MaxConcurrentStrategies),
		strategyTimeout: cfg.StrategyTimeout,
	}, nil
}

func (e *PlanExecutor) Close() {
	e.pool.StopAndWait()
}

// ExecuteSingle returns the results of the last step that produced a result
// list. On error the step trace so far is still returned.
func (e *PlanExecutor) ExecuteSingle(ctx context.Context, plan domain.Plan, exec domain.ExecutionContext) ([]domain.SearchResult, []domain.StepOutcome, error) {
	if err := plan.Validate(); err != nil {
		return nil, nil, err
	}

	outputs := make([]domain.StepOutput, len(plan.Steps))
	trace := make([]domain.StepOutcome, 0, len(plan.Steps))
	var results []domain.SearchResult

	for i, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return nil, trace, domain.WrapError(domain.ErrStrategyTimeout, "execute plan", err)
		}

		fn, ok := e.registry.Lookup(step.Name)
		if !ok {
			return nil, trace, domain.WrapError(domain.ErrUnknownStep, "execute plan",
				fmt.Errorf("step %d (%s) is not registered", i, step.Name))
		}

		started := e.clock.Now()
		out, err := fn(ctx, exec, stepParams(step, outputs))
		outcome := domain.StepOutcome{
			Name:        step.Name,
			Duration:    e.clock.Since(started),
			ResultCount: len(out.Results),
		}
		if err != nil {
			outcome.Err = err.Error()
			trace = append(trace, outcome)
			e.log.Warn("step failed", "plan", plan.Name, "step", step.Name, "error", err)
			return nil, trace, domain.WrapError(domain.ErrStepFailed, "execute plan",
				fmt.Errorf("step %d (%s): %w", i, step.Name, err))
		}
		trace = append(trace, outcome)
		outputs[i] = out
		if out.Results != nil {
			results = out.Results
		}
		e.log.Debug("step done", "plan", plan.Name, "step", step.Name,
			"results", len(out.Results), "duration", outcome.Duration)
	}
	return results, trace, nil
}

type indexedOutcome struct {
	index   int
	outcome domain.StrategyOutcome
}

// A failing strategy never aborts its siblings. When ctx expires first,
// unfinished strategies are marked timed out and left to finish alone.
func (e *PlanExecutor) ExecuteMultiStrategy(ctx context.Context, plan domain.MultiStrategyPlan, exec domain.ExecutionContext) ([]domain.StrategyOutcome, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	timeout := exec.StrategyTimeout
	if timeout <= 0 {
		timeout = e.strategyTimeout
	}

	resCh := make(chan indexedOutcome, len(plan.Strategies))
	for i, strategy := range plan.Strategies {
		strategyExec := exec.Clone()
		e.pool.Submit(func() {
			strategyCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			// Buffered: the send cannot block after the collector gives up.
			resCh <- indexedOutcome{index: i, outcome: e.runStrategy(strategyCtx, strategy, strategyExec, i)}
		})
	}

	outcomes := make([]domain.StrategyOutcome, len(plan.Strategies))
	filled := make([]bool, len(plan.Strategies))
	for remaining := len(plan.Strategies); remaining > 0; remaining-- {
		select {
		case r := <-resCh:
			outcomes[r.index] = r.outcome
			filled[r.index] = true
		case <-ctx.Done():
			for i := range outcomes {
				if !filled[i] {
					outcomes[i] = domain.StrategyOutcome{
						Strategy: strategyName(plan.Strategies[i], i),
						Success:  false,
						Err:      domain.WrapError(domain.ErrStrategyTimeout, "execute strategy", ctx.Err()).Error(),
					}
				}
			}
			e.log.Warn("multi-strategy execution abandoned", "strategies", len(plan.Strategies), "cause", ctx.Err())
			return outcomes, nil
		}
	}
	return outcomes, nil
}

func (e *PlanExecutor) runStrategy(ctx context.Context, plan domain.Plan, exec domain.ExecutionContext, index int) domain.StrategyOutcome {
	name := strategyName(plan, index)
	started := e.clock.Now()
	results, trace, err := e.ExecuteSingle(ctx, plan, exec)
	outcome := domain.StrategyOutcome{
		Strategy: name,
		Success:  err == nil,
		Results:  results,
		Steps:    trace,
		Duration: e.clock.Since(started),
	}
	if err != nil {
		if ctx.Err() != nil {
			err = domain.WrapError(domain.ErrStrategyTimeout, "execute strategy", ctx.Err())
		}
		outcome.Err = err.Error()
		outcome.Results = nil
		e.log.Warn("strategy failed", "strategy", name, "duration", outcome.Duration, "error", err)
	}
	return outcome
}

// The plan owns its parameter maps; they are copied before mutation.
func stepParams(step domain.Step, outputs []domain.StepOutput) map[string]any {
	params := make(map[string]any, len(step.Parameters)+1)
	for k, v := range step.Parameters {
		params[k] = v
	}
	if step.InputFromStepIndex != nil {
		params[domain.ParamInput] = outputs[*step.InputFromStepIndex]
	}
	return params
}

func strategyName(plan domain.Plan, index int) string {
	if plan.Name != "" {
		return plan.Name
	}
	return fmt.Sprintf("strategy-%d", index)
}
