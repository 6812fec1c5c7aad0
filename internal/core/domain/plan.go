package domain

import (
	"fmt"
	"time"
)

const (
	StepSemanticSearch      = "semantic-search"
	StepFunctionalitySearch = "functionality-search"
	StepCategorySearch      = "category-search"
	StepStructuredFilter    = "structured-filter"
	StepLocalNLP            = "local-nlp"
	StepSemanticExpansion   = "semantic-expansion"
	StepContextEnrichment   = "context-enrichment"
	StepQualityAssessment   = "quality-assessment"

	// Not a plan step: names the orchestrator-level fusion pass, which the
	// skipper targets like any other stage.
	StageResultMerging = "result-merging"
)

// ParamInput is reserved: the executor injects dependency output under it.
const ParamInput = "input"

type Step struct {
	Name               string         `json:"name"`
	Parameters         map[string]any `json:"parameters,omitempty"`
	InputFromStepIndex *int           `json:"input_from_step_index,omitempty"`
}

type Plan struct {
	Name  string `json:"name,omitempty"`
	Steps []Step `json:"steps"`
}

func (p Plan) Validate() error {
	if len(p.Steps) == 0 {
		return WrapError(ErrInvalidPlan, "plan validate", fmt.Errorf("plan %q has no steps", p.Name))
	}
	for i, step := range p.Steps {
		if step.Name == "" {
			return WrapError(ErrInvalidPlan, "plan validate", fmt.Errorf("step %d has no name", i))
		}
		if step.InputFromStepIndex == nil {
			continue
		}
		dep := *step.InputFromStepIndex
		if dep < 0 || dep >= i {
			return WrapError(ErrInvalidPlan, "plan validate",
				fmt.Errorf("step %d (%s) references step %d; dependencies must point to an earlier step", i, step.Name, dep))
		}
	}
	return nil
}

func (p Plan) ContainsStep(name string) bool {
	for _, s := range p.Steps {
		if s.Name == name {
			return true
		}
	}
	return false
}

type MergeStrategyName string

const (
	MergeWeighted MergeStrategyName = "weighted"
	MergeBest     MergeStrategyName = "best"
	MergeDiverse  MergeStrategyName = "diverse"
)

type MultiStrategyPlan struct {
	Strategies    []Plan            `json:"strategies"`
	Weights       []float64         `json:"weights,omitempty"`
	MergeStrategy MergeStrategyName `json:"merge_strategy,omitempty"`
}

func (p MultiStrategyPlan) Validate() error {
	if len(p.Strategies) == 0 {
		return WrapError(ErrInvalidPlan, "multi-strategy validate", fmt.Errorf("no strategies"))
	}
	if len(p.Weights) != 0 && len(p.Weights) != len(p.Strategies) {
		return WrapError(ErrInvalidPlan, "multi-strategy validate",
			fmt.Errorf("%d weights for %d strategies", len(p.Weights), len(p.Strategies)))
	}
	for _, s := range p.Strategies {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (p MultiStrategyPlan) NormalizedWeights() []float64 {
	if len(p.Weights) == len(p.Strategies) {
		return p.Weights
	}
	w := make([]float64, len(p.Strategies))
	for i := range w {
		w[i] = 1.0
	}
	return w
}

func (p MultiStrategyPlan) ContainsStep(name string) bool {
	for _, s := range p.Strategies {
		if s.ContainsStep(name) {
			return true
		}
	}
	return false
}

type ExecutionContext struct {
	Query           string         `json:"query"`
	Params          map[string]any `json:"params,omitempty"`
	StrategyTimeout time.Duration  `json:"strategy_timeout,omitempty"`
}

func (c ExecutionContext) Clone() ExecutionContext {
	out := c
	if c.Params != nil {
		out.Params = make(map[string]any, len(c.Params))
		for k, v := range c.Params {
			out.Params[k] = v
		}
	}
	return out
}

type StepOutput struct {
	Results []SearchResult `json:"results,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

type StepOutcome struct {
	Name        string        `json:"name"`
	Duration    time.Duration `json:"duration"`
	ResultCount int           `json:"result_count"`
	Err         string        `json:"error,omitempty"`
}

type StrategyOutcome struct {
	Strategy string         `json:"strategy"`
	Success  bool           `json:"success"`
	Results  []SearchResult `json:"results,omitempty"`
	Steps    []StepOutcome  `json:"steps,omitempty"`
	Err      string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration"`
}

type IntentSignals struct {
	ToolNames     []string `json:"tool_names,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	Functionality []string `json:"functionality,omitempty"`
	Interfaces    []string `json:"interfaces,omitempty"`
	UserTypes     []string `json:"user_types,omitempty"`
	Deployment    []string `json:"deployment,omitempty"`

	HasPriceConstraint bool     `json:"has_price_constraint,omitempty"`
	MaxPrice           *float64 `json:"max_price,omitempty"`
	FreeOnly           bool     `json:"free_only,omitempty"`
	IsComparative      bool     `json:"is_comparative,omitempty"`
}

func (s IntentSignals) PopulatedFieldCount() int {
	n := 0
	for _, f := range [][]string{s.ToolNames, s.Categories, s.Functionality, s.Interfaces, s.UserTypes, s.Deployment} {
		if len(f) > 0 {
			n++
		}
	}
	return n
}

// Exactly one of Single/Multi is set.
type PlanDraft struct {
	Single     *Plan              `json:"single,omitempty"`
	Multi      *MultiStrategyPlan `json:"multi,omitempty"`
	Signals    IntentSignals      `json:"signals"`
	Confidence float64            `json:"confidence"`
}

func (d PlanDraft) Validate() error {
	switch {
	case d.Single == nil && d.Multi == nil:
		return WrapError(ErrNoPlan, "draft validate", fmt.Errorf("draft carries neither a single nor a multi-strategy plan"))
	case d.Single != nil && d.Multi != nil:
		return WrapError(ErrInvalidPlan, "draft validate", fmt.Errorf("draft carries both a single and a multi-strategy plan"))
	case d.Single != nil:
		return d.Single.Validate()
	default:
		return d.Multi.Validate()
	}
}

func (d PlanDraft) IsMultiStrategy() bool {
	return d.Multi != nil
}

func (d PlanDraft) ContainsStage(name string) bool {
	if name == StageResultMerging {
		return d.Multi != nil && len(d.Multi.Strategies) > 1
	}
	if d.Single != nil {
		return d.Single.ContainsStep(name)
	}
	if d.Multi != nil {
		return d.Multi.ContainsStep(name)
	}
	return false
}
