package usecase

import (
	"log/slog"
	"sort"

	"github.com/toolrank-io/toolrank/internal/core/domain"
)

const (
	termFactorWeight        = 0.3
	intentFactorWeight      = 0.4
	priceFactorWeight       = 0.15
	comparativeFactorWeight = 0.15

	// termCountCeiling is where term density saturates at 1.0.
	termCountCeiling = 10
	// intentFieldCount must match the populated-field slots of IntentSignals.
	intentFieldCount = 6
)

type StageSkipper struct {
	log   *slog.Logger
	gains domain.SkipGainTable
}

func NewStageSkipper(logger *slog.Logger, gains domain.SkipGainTable) *StageSkipper {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StageSkipper{log: logger, gains: gains.Normalize()}
}

func (s *StageSkipper) AnalyzeComplexity(query string, signals domain.IntentSignals, confidence float64) domain.ComplexityAnalysis {
	termCount := len(splitAlphaNumLower(query))

	termFactor := float64(termCount) / termCountCeiling
	if termFactor > 1 {
		termFactor = 1
	}
	intentFactor := float64(signals.PopulatedFieldCount()) / intentFieldCount
	priceFactor := 0.0
	if signals.HasPriceConstraint {
		priceFactor = 1.0
	}
	comparativeFactor := 0.0
	if signals.IsComparative || domain.HasComparativeMarker(query) {
		comparativeFactor = 1.0
	}

	score := termFactorWeight*termFactor +
		intentFactorWeight*intentFactor +
		priceFactorWeight*priceFactor +
		comparativeFactorWeight*comparativeFactor

	var class domain.ComplexityClass
	switch {
	case score < 0.5 && confidence > 0.7:
		class = domain.ComplexitySimple
	case score < 0.8 || (score < 0.9 && confidence > 0.5):
		class = domain.ComplexityModerate
	default:
		class = domain.ComplexityComplex
	}

	simple := class == domain.ComplexitySimple
	return domain.ComplexityAnalysis{
		Class:      class,
		Confidence: confidence,
		Score:      score,
		TermCount:  termCount,
		FactorScores: map[string]float64{
			domain.FactorTerm:        termFactor,
			domain.FactorIntent:      intentFactor,
			domain.FactorPrice:       priceFactor,
			domain.FactorComparative: comparativeFactor,
		},
		// Only enrichment gates on the complexity class; the rest go by confidence and term count.
		SkipEligibility: map[string]bool{
			domain.StepContextEnrichment: simple && confidence > 0.7,
			domain.StepLocalNLP:          termCount <= 4 && confidence > 0.6,
			domain.StageResultMerging:    confidence > 0.9,
			domain.StepQualityAssessment: confidence > 0.8,
			domain.StepSemanticExpansion: termCount >= termCountCeiling/2,
		},
	}
}

func (s *StageSkipper) Optimize(query string, signals domain.IntentSignals, confidence float64, draft domain.PlanDraft) (domain.PlanDraft, domain.StageSkippingDecision) {
	analysis := s.AnalyzeComplexity(query, signals, confidence)

	skipped := make([]string, 0, len(analysis.SkipEligibility))
	gain := 0.0
	for stage, eligible := range analysis.SkipEligibility {
		if !eligible || !draft.ContainsStage(stage) {
			continue
		}
		skipped = append(skipped, stage)
		gain += s.gains.Gains[stage]
	}
	sort.Strings(skipped)
	if gain > s.gains.GainCap {
		gain = s.gains.GainCap
	}

	risk := domain.RiskLow
	if gain > 40 {
		risk = domain.RiskMedium
	}
	if analysis.Class == domain.ComplexityComplex && len(skipped) > 2 {
		risk = domain.RiskHigh
	}

	quality := domain.QualityValidation{Score: 1.0 - gain/100*0.3}
	if analysis.Class == domain.ComplexityComplex && len(skipped) > 0 {
		quality.Score -= 0.1
	}
	if risk == domain.RiskHigh {
		quality.Score -= 0.1
	}
	if confidence < 0.6 {
		quality.Score -= 0.1
	}
	quality.Passed = quality.Score > 0.7 && risk != domain.RiskHigh

	decision := domain.StageSkippingDecision{
		SkippedStages: skipped,
		GainEstimate:  gain,
		RiskLevel:     risk,
		Quality:       quality,
		Analysis:      analysis,
	}

	optimized := filterDraft(draft, skipped)
	s.log.Debug("stage skipping decided",
		"class", string(analysis.Class),
		"score", analysis.Score,
		"skipped", skipped,
		"gain", gain,
		"risk", string(risk),
		"quality", quality.Score)
	return optimized, decision
}

func filterDraft(draft domain.PlanDraft, skipped []string) domain.PlanDraft {
	if len(skipped) == 0 {
		return draft
	}
	drop := make(map[string]struct{}, len(skipped))
	for _, name := range skipped {
		drop[name] = struct{}{}
	}

	out := draft
	if draft.Single != nil {
		filtered := filterPlan(*draft.Single, drop)
		out.Single = &filtered
	}
	if draft.Multi != nil {
		multi := *draft.Multi
		multi.Strategies = make([]domain.Plan, len(draft.Multi.Strategies))
		for i, strategy := range draft.Multi.Strategies {
			multi.Strategies[i] = filterPlan(strategy, drop)
		}
		out.Multi = &multi
	}
	return out
}

// filterPlan re-points dependencies on dropped steps at the nearest earlier
// surviving step, or clears them when none remains.
func filterPlan(plan domain.Plan, drop map[string]struct{}) domain.Plan {
	out := domain.Plan{Name: plan.Name, Steps: make([]domain.Step, 0, len(plan.Steps))}
	newIndex := make([]int, len(plan.Steps))

	for i, step := range plan.Steps {
		if _, skip := drop[step.Name]; skip {
			newIndex[i] = -1
			continue
		}
		kept := step
		if step.InputFromStepIndex != nil {
			if dep := remapDependency(*step.InputFromStepIndex, newIndex); dep >= 0 {
				kept.InputFromStepIndex = &dep
			} else {
				kept.InputFromStepIndex = nil
			}
		}
		newIndex[i] = len(out.Steps)
		out.Steps = append(out.Steps, kept)
	}
	return out
}

func remapDependency(dep int, newIndex []int) int {
	for i := dep; i >= 0; i-- {
		if newIndex[i] >= 0 {
			return newIndex[i]
		}
	}
	return -1
}
