package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jonboulle/clockwork"

	"github.com/toolrank-io/toolrank/internal/core/domain"
	"github.com/toolrank-io/toolrank/internal/core/ports"
)

type SearchServiceConfig struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Planner  ports.PlanSource
	Executor *PlanExecutor
	Fusion   *FusionEngine
	Skipper  *StageSkipper

	Dedup          domain.DeduplicationConfig
	ResultSetMerge domain.ResultSetMergeConfig
}

func (c *SearchServiceConfig) Validate() error {
	if c.Planner == nil {
		return domain.WrapError(domain.ErrInvalidInput, "search service", fmt.Errorf("plan source is required"))
	}
	if c.Executor == nil {
		return domain.WrapError(domain.ErrInvalidInput, "search service", fmt.Errorf("executor is required"))
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Fusion == nil {
		c.Fusion = NewFusionEngine(c.Logger)
	}
	if c.Skipper == nil {
		c.Skipper = NewStageSkipper(c.Logger, domain.DefaultSkipGains())
	}
	c.Dedup = c.Dedup.Normalize()
	c.ResultSetMerge = c.ResultSetMerge.Normalize()
	return nil
}

type SearchService struct {
	log      *slog.Logger
	clock    clockwork.Clock
	planner  ports.PlanSource
	executor *PlanExecutor
	fusion   *FusionEngine
	skipper  *StageSkipper
	dedup    domain.DeduplicationConfig
	merge    domain.ResultSetMergeConfig
}

func NewSearchService(cfg SearchServiceConfig) (*SearchService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SearchService{
		log:      cfg.Logger,
		clock:    cfg.Clock,
		planner:  cfg.Planner,
		executor: cfg.Executor,
		fusion:   cfg.Fusion,
		skipper:  cfg.Skipper,
		dedup:    cfg.Dedup,
		merge:    cfg.ResultSetMerge,
	}, nil
}

func (s *SearchService) Search(ctx context.Context, req domain.SearchRequest) (domain.SearchOutcome, error) {
	if req.Query == "" {
		return domain.SearchOutcome{}, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("empty query"))
	}

	var (
		timings []domain.StageTiming
		errs    []domain.ErrorRecord
	)
	stage := func(name string) func() {
		started := s.clock.Now()
		return func() {
			timings = append(timings, domain.StageTiming{Stage: name, Duration: s.clock.Since(started)})
		}
	}
	record := func(stage string, err error) {
		errs = append(errs, domain.ErrorRecord{Stage: stage, Message: err.Error(), Timestamp: s.clock.Now()})
		s.log.Warn("search stage degraded", "stage", stage, "query", req.Query, "error", err)
	}

	done := stage(domain.StagePlan)
	draft, err := s.planner.BuildPlan(ctx, req.Query)
	done()
	if err != nil {
		return domain.SearchOutcome{}, domain.WrapError(domain.ErrNoPlan, "build plan", err)
	}
	if err := draft.Validate(); err != nil {
		return domain.SearchOutcome{}, err
	}

	done = stage(domain.StageOptimize)
	optimized, decision := s.skipper.Optimize(req.Query, draft.Signals, draft.Confidence, draft)
	if err := optimized.Validate(); err != nil {
		// Skipping emptied the plan entirely; run the unoptimized draft.
		record(domain.StageOptimize, err)
		optimized = draft
		decision.SkippedStages = nil
	}
	done()

	exec := domain.ExecutionContext{Query: req.Query, Params: req.Params, StrategyTimeout: req.Timeout}

	var strategies []domain.StrategyOutcome
	done = stage(domain.StageExecute)
	if optimized.IsMultiStrategy() {
		strategies, err = s.executor.ExecuteMultiStrategy(ctx, *optimized.Multi, exec)
		if err != nil {
			record(domain.StageExecute, err)
		}
		for _, outcome := range strategies {
			if !outcome.Success {
				record(domain.StageExecute, fmt.Errorf("strategy %s: %s", outcome.Strategy, outcome.Err))
			}
		}
	} else {
		strategies = []domain.StrategyOutcome{s.runSinglePlan(ctx, *optimized.Single, exec)}
		if !strategies[0].Success {
			record(domain.StageExecute, fmt.Errorf("strategy %s: %s", strategies[0].Strategy, strategies[0].Err))
		}
	}
	done()

	done = stage(domain.StageFusion)
	merged, stats := s.fuse(optimized, decision, strategies)
	done()
	if merged == nil {
		merged = []domain.MergedResult{}
	}
	if req.Limit > 0 && len(merged) > req.Limit {
		merged = merged[:req.Limit]
	}

	s.log.Info("search completed",
		"query", req.Query,
		"results", len(merged),
		"strategies", len(strategies),
		"skipped_stages", decision.SkippedStages,
		"degraded", len(errs) > 0)

	return domain.SearchOutcome{
		Query:   req.Query,
		Results: merged,
		Metadata: domain.ExecutionMetadata{
			Skip:       decision,
			Strategies: strategies,
			MergeStats: stats,
			Timings:    timings,
			Errors:     errs,
			Degraded:   len(errs) > 0,
		},
	}, nil
}

func (s *SearchService) runSinglePlan(ctx context.Context, plan domain.Plan, exec domain.ExecutionContext) domain.StrategyOutcome {
	name := plan.Name
	if name == "" {
		name = "primary"
	}
	started := s.clock.Now()
	results, trace, err := s.executor.ExecuteSingle(ctx, plan, exec)
	outcome := domain.StrategyOutcome{
		Strategy: name,
		Success:  err == nil,
		Results:  results,
		Steps:    trace,
		Duration: s.clock.Since(started),
	}
	if err != nil {
		outcome.Err = err.Error()
		outcome.Results = nil
	}
	return outcome
}

func (s *SearchService) fuse(draft domain.PlanDraft, decision domain.StageSkippingDecision, strategies []domain.StrategyOutcome) ([]domain.MergedResult, domain.MergeStats) {
	if draft.IsMultiStrategy() && len(strategies) > 1 {
		if slices.Contains(decision.SkippedStages, domain.StageResultMerging) {
			return s.fusion.Merge(concatBySuccess(strategies), domain.DeduplicationConfig{
				Strategy:      domain.DedupIDBased,
				RRFK:          s.dedup.RRFK,
				SourceWeights: s.dedup.SourceWeights,
			})
		}
		name := draft.Multi.MergeStrategy
		if name == "" {
			name = domain.MergeWeighted
		}
		return s.fusion.MergeResultSets(strategies, draft.Multi.NormalizedWeights(), name, s.merge)
	}
	return s.fusion.Merge(groupBySource(strategies), s.dedup)
}

func concatBySuccess(strategies []domain.StrategyOutcome) map[string][]domain.SearchResult {
	var all []domain.SearchResult
	for _, outcome := range strategies {
		if outcome.Success {
			all = append(all, outcome.Results...)
		}
	}
	if all == nil {
		return map[string][]domain.SearchResult{}
	}
	return map[string][]domain.SearchResult{"combined": all}
}

func groupBySource(strategies []domain.StrategyOutcome) map[string][]domain.SearchResult {
	out := make(map[string][]domain.SearchResult)
	for _, outcome := range strategies {
		if !outcome.Success {
			continue
		}
		for _, r := range outcome.Results {
			key := r.SourceType
			if key == "" {
				key = domain.SourceSemantic
			}
			out[key] = append(out[key], r)
		}
	}
	return out
}
