package domain

import "strings"

type ComplexityClass string

const (
	ComplexitySimple   ComplexityClass = "simple"
	ComplexityModerate ComplexityClass = "moderate"
	ComplexityComplex  ComplexityClass = "complex"
)

const (
	FactorTerm        = "term"
	FactorIntent      = "intent"
	FactorPrice       = "price_constraint"
	FactorComparative = "comparative"
)

type ComplexityAnalysis struct {
	Class           ComplexityClass    `json:"class"`
	Confidence      float64            `json:"confidence"`
	Score           float64            `json:"score"`
	TermCount       int                `json:"term_count"`
	FactorScores    map[string]float64 `json:"factor_scores"`
	SkipEligibility map[string]bool    `json:"skip_eligibility"`
}

func HasComparativeMarker(query string) bool {
	q := " " + strings.ToLower(query) + " "
	for _, marker := range []string{
		" vs ", " vs. ", " versus ",
		" compare ", " compared ", " comparison ",
		" better than ", " alternative to ", " alternatives to ",
	} {
		if strings.Contains(q, marker) {
			return true
		}
	}
	return false
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// QualityValidation is advisory; it is surfaced in metadata, never enforced.
type QualityValidation struct {
	Score  float64 `json:"score"`
	Passed bool    `json:"passed"`
}

type StageSkippingDecision struct {
	SkippedStages []string           `json:"skipped_stages"`
	GainEstimate  float64            `json:"gain_estimate"`
	RiskLevel     RiskLevel          `json:"risk_level"`
	Quality       QualityValidation  `json:"quality"`
	Analysis      ComplexityAnalysis `json:"analysis"`
}

// Gains are latency percents; they sum and cap at GainCap.
type SkipGainTable struct {
	Gains   map[string]float64 `json:"gains" yaml:"gains"`
	GainCap float64            `json:"gain_cap" yaml:"gain_cap"`
}

func DefaultSkipGains() SkipGainTable {
	return SkipGainTable{
		Gains: map[string]float64{
			StepContextEnrichment: 30,
			StepLocalNLP:          20,
			StageResultMerging:    15,
			StepQualityAssessment: 10,
			StepSemanticExpansion: 5,
		},
		GainCap: 60,
	}
}

func (t SkipGainTable) Normalize() SkipGainTable {
	out := t
	def := DefaultSkipGains()
	if len(out.Gains) == 0 {
		out.Gains = def.Gains
	}
	if out.GainCap <= 0 {
		out.GainCap = def.GainCap
	}
	return out
}
