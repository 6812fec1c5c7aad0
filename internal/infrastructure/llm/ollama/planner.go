package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/toolrank-io/toolrank/internal/core/domain"
)

// A down or garbled model degrades to heuristic signals; retrieval never blocks on the LLM.
type Planner struct {
	client *Client
	log    *slog.Logger
}

func NewPlanner(client *Client, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Planner{client: client, log: logger}
}

type intentExtraction struct {
	domain.IntentSignals
	Confidence float64 `json:"confidence"`
}

func (p *Planner) BuildPlan(ctx context.Context, query string) (domain.PlanDraft, error) {
	signals, confidence, err := p.extractIntent(ctx, query)
	if err != nil {
		p.log.Warn("intent extraction failed, falling back to heuristics", "error", err)
		signals, confidence = heuristicSignals(query)
	}
	return buildDraft(signals, confidence), nil
}

func (p *Planner) extractIntent(ctx context.Context, query string) (domain.IntentSignals, float64, error) {
	respText, err := p.client.generateJSON(ctx, buildIntentPrompt(query))
	if err != nil {
		return domain.IntentSignals{}, 0, err
	}

	var extraction intentExtraction
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &extraction); err != nil {
		return domain.IntentSignals{}, 0, fmt.Errorf("parse intent json: %w", err)
	}

	confidence := extraction.Confidence
	switch {
	case confidence <= 0:
		// The model omitted or zeroed confidence; fall back to neutral.
		confidence = 0.5
	case confidence > 1:
		confidence = 1
	}
	return extraction.IntentSignals, confidence, nil
}

func heuristicSignals(query string) (domain.IntentSignals, float64) {
	q := strings.ToLower(query)
	signals := domain.IntentSignals{
		IsComparative: domain.HasComparativeMarker(query),
		FreeOnly:      containsWord(q, "free"),
	}
	if signals.FreeOnly || strings.Contains(q, "$") ||
		containsWord(q, "under") || containsWord(q, "cheap") || containsWord(q, "cheapest") {
		signals.HasPriceConstraint = true
	}
	return signals, 0.4
}

func containsWord(lowered, word string) bool {
	return strings.Contains(" "+lowered+" ", " "+word+" ")
}

func buildDraft(signals domain.IntentSignals, confidence float64) domain.PlanDraft {
	structured := signals.HasPriceConstraint || signals.FreeOnly || signals.MaxPrice != nil ||
		len(signals.Categories) > 0 || len(signals.Interfaces) > 0 ||
		len(signals.UserTypes) > 0 || len(signals.Deployment) > 0

	draft := domain.PlanDraft{Signals: signals, Confidence: confidence}
	if signals.PopulatedFieldCount() <= 1 && !signals.IsComparative && !structured {
		draft.Single = singlePlan()
		return draft
	}
	draft.Multi = multiPlan(signals, structured)
	return draft
}

func singlePlan() *domain.Plan {
	return &domain.Plan{
		Name: "primary",
		Steps: []domain.Step{
			{Name: domain.StepLocalNLP},
			{Name: domain.StepSemanticSearch, InputFromStepIndex: intRef(0)},
			{Name: domain.StepSemanticExpansion, InputFromStepIndex: intRef(1)},
			{Name: domain.StepContextEnrichment, InputFromStepIndex: intRef(2)},
			{Name: domain.StepQualityAssessment, InputFromStepIndex: intRef(3)},
		},
	}
}

func multiPlan(signals domain.IntentSignals, structured bool) *domain.MultiStrategyPlan {
	strategies := []domain.Plan{{
		Name: "semantic",
		Steps: []domain.Step{
			{Name: domain.StepLocalNLP},
			{Name: domain.StepSemanticSearch, InputFromStepIndex: intRef(0)},
			{Name: domain.StepContextEnrichment, InputFromStepIndex: intRef(1)},
			{Name: domain.StepQualityAssessment, InputFromStepIndex: intRef(2)},
		},
	}}
	weights := []float64{1.0}

	if len(signals.Functionality) > 0 || signals.IsComparative {
		strategies = append(strategies, domain.Plan{
			Name:  "functionality",
			Steps: []domain.Step{{Name: domain.StepFunctionalitySearch}},
		})
		weights = append(weights, 0.9)
	}
	if len(signals.Categories) > 0 || signals.IsComparative {
		strategies = append(strategies, domain.Plan{
			Name:  "categories",
			Steps: []domain.Step{{Name: domain.StepCategorySearch}},
		})
		weights = append(weights, 0.8)
	}
	if structured {
		strategies = append(strategies, domain.Plan{
			Name: "structured",
			Steps: []domain.Step{{
				Name:       domain.StepStructuredFilter,
				Parameters: structuredParams(signals),
			}},
		})
		weights = append(weights, 0.7)
	}

	merge := domain.MergeWeighted
	switch {
	case len(signals.ToolNames) > 0:
		merge = domain.MergeBest
	case signals.IsComparative:
		merge = domain.MergeDiverse
	}

	return &domain.MultiStrategyPlan{
		Strategies:    strategies,
		Weights:       weights,
		MergeStrategy: merge,
	}
}

func structuredParams(signals domain.IntentSignals) map[string]any {
	params := make(map[string]any)
	if len(signals.Categories) > 0 {
		params["categories"] = signals.Categories
	}
	if len(signals.Interfaces) > 0 {
		params["interfaces"] = signals.Interfaces
	}
	if len(signals.Deployment) > 0 {
		params["deployment"] = signals.Deployment
	}
	if len(signals.UserTypes) > 0 {
		params["user_types"] = signals.UserTypes
	}
	if signals.MaxPrice != nil {
		params["max_price"] = *signals.MaxPrice
	}
	if signals.FreeOnly {
		params["free_only"] = true
	}
	return params
}

func intRef(i int) *int { return &i }
