package domain

import "time"

type SearchRequest struct {
	Query   string         `json:"query"`
	Limit   int            `json:"limit,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
	Timeout time.Duration  `json:"-"`
}

const (
	StagePlan     = "plan"
	StageOptimize = "optimize"
	StageExecute  = "execute"
	StageFusion   = "fusion"
)

type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
}

type ErrorRecord struct {
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type ExecutionMetadata struct {
	Skip       StageSkippingDecision `json:"skip"`
	Strategies []StrategyOutcome     `json:"strategies,omitempty"`
	MergeStats MergeStats            `json:"merge_stats"`
	Timings    []StageTiming         `json:"timings,omitempty"`
	Errors     []ErrorRecord         `json:"errors,omitempty"`
	Degraded   bool                  `json:"degraded"`
}

// The degraded shape is an empty result list plus error records.
type SearchOutcome struct {
	Query    string            `json:"query"`
	Results  []MergedResult    `json:"results"`
	Metadata ExecutionMetadata `json:"metadata"`
}
