package usecase

import (
	"sort"
	"strings"

	"github.com/toolrank-io/toolrank/internal/core/domain"
)

// weights must be parallel to outcomes; failed strategies contribute nothing.
func (f *FusionEngine) MergeResultSets(outcomes []domain.StrategyOutcome, weights []float64, strategy domain.MergeStrategyName, cfg domain.ResultSetMergeConfig) ([]domain.MergedResult, domain.MergeStats) {
	cfg = cfg.Normalize()

	stats := domain.MergeStats{
		Strategy: string(strategy),
		BySource: make(map[string]int, len(outcomes)),
	}
	for _, o := range outcomes {
		if !o.Success {
			continue
		}
		stats.InputCount += len(o.Results)
		stats.BySource[o.Strategy] += len(o.Results)
	}

	var merged []domain.MergedResult
	switch strategy {
	case domain.MergeBest:
		merged = f.mergeBest(outcomes, weights, cfg)
	case domain.MergeDiverse:
		merged = f.mergeDiverse(outcomes, cfg)
	default:
		merged = f.mergeWeighted(outcomes, weights, cfg)
	}

	stats.OutputCount = len(merged)
	stats.DuplicatesRemoved = stats.InputCount - stats.OutputCount
	return merged, stats
}

// RRF across strategies: the strategy weight multiplies the facet source weight.
func (f *FusionEngine) mergeWeighted(outcomes []domain.StrategyOutcome, weights []float64, cfg domain.ResultSetMergeConfig) []domain.MergedResult {
	acc := make(map[string]*domain.MergedResult)
	best := make(map[string]float64)
	order := make([]string, 0)

	for si, outcome := range outcomes {
		if !outcome.Success {
			continue
		}
		strategyWeight := 1.0
		if si < len(weights) {
			strategyWeight = weights[si]
		}
		for pos, result := range outcome.Results {
			rank := resultRank(result, pos)
			contribution := 1.0 / float64(cfg.Dedup.RRFK+rank)
			weight := strategyWeight * cfg.Dedup.SourceWeight(result.SourceType)

			entry, ok := acc[result.ID]
			if !ok {
				entry = &domain.MergedResult{ID: result.ID, Item: result.Payload}
				acc[result.ID] = entry
				order = append(order, result.ID)
				best[result.ID] = result.Score
			} else if result.Score > best[result.ID] {
				best[result.ID] = result.Score
				entry.Item = result.Payload
			}

			entry.RRFScore += contribution
			entry.WeightedScore += contribution * weight
			entry.Sources = append(entry.Sources, domain.SourceAttribution{
				SourceType: result.SourceType,
				Score:      result.Score,
				Rank:       rank,
				Weight:     weight,
			})
			entry.MergedFromCount = len(entry.Sources)
		}
	}

	out := make([]domain.MergedResult, 0, len(order))
	for _, id := range order {
		out = append(out, *acc[id])
	}
	sortMerged(out)
	return out
}

// Per id the highest-weight strategy wins; ties go to raw score, then strategy order.
func (f *FusionEngine) mergeBest(outcomes []domain.StrategyOutcome, weights []float64, cfg domain.ResultSetMergeConfig) []domain.MergedResult {
	type bestPick struct {
		result         domain.SearchResult
		rank           int
		strategyWeight float64
	}

	picks := make(map[string]bestPick)
	order := make([]string, 0)

	for si, outcome := range outcomes {
		if !outcome.Success {
			continue
		}
		strategyWeight := 1.0
		if si < len(weights) {
			strategyWeight = weights[si]
		}
		for pos, result := range outcome.Results {
			rank := resultRank(result, pos)
			current, ok := picks[result.ID]
			if !ok {
				picks[result.ID] = bestPick{result: result, rank: rank, strategyWeight: strategyWeight}
				order = append(order, result.ID)
				continue
			}
			if strategyWeight > current.strategyWeight ||
				(strategyWeight == current.strategyWeight && result.Score > current.result.Score) {
				picks[result.ID] = bestPick{result: result, rank: rank, strategyWeight: strategyWeight}
			}
		}
	}

	out := make([]domain.MergedResult, 0, len(order))
	for _, id := range order {
		p := picks[id]
		out = append(out, domain.MergedResult{
			ID:            p.result.ID,
			Item:          p.result.Payload,
			RRFScore:      1.0 / float64(cfg.Dedup.RRFK+p.rank),
			WeightedScore: p.result.Score * p.strategyWeight,
			Sources: []domain.SourceAttribution{{
				SourceType: p.result.SourceType,
				Score:      p.result.Score,
				Rank:       p.rank,
				Weight:     p.strategyWeight,
			}},
			MergedFromCount: 1,
		})
	}
	sortMerged(out)
	return out
}

// Greedy by score, preferring unseen tags; the first MinDiverseResults pass unconditionally.
func (f *FusionEngine) mergeDiverse(outcomes []domain.StrategyOutcome, cfg domain.ResultSetMergeConfig) []domain.MergedResult {
	type candidate struct {
		result domain.SearchResult
		rank   int
	}

	seenIDs := make(map[string]struct{})
	candidates := make([]candidate, 0)
	for _, outcome := range outcomes {
		if !outcome.Success {
			continue
		}
		for pos, result := range outcome.Results {
			if _, ok := seenIDs[result.ID]; ok {
				continue
			}
			seenIDs[result.ID] = struct{}{}
			candidates = append(candidates, candidate{result: result, rank: resultRank(result, pos)})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].result.Score != candidates[j].result.Score {
			return candidates[i].result.Score > candidates[j].result.Score
		}
		return candidates[i].result.ID < candidates[j].result.ID
	})

	seenTags := make(map[string]struct{})
	out := make([]domain.MergedResult, 0, len(candidates))
	for _, c := range candidates {
		tags := payloadTags(c.result.Payload)
		if len(out) >= cfg.MinDiverseResults && !introducesNewTag(tags, seenTags) {
			continue
		}
		for _, t := range tags {
			seenTags[t] = struct{}{}
		}
		out = append(out, domain.MergedResult{
			ID:            c.result.ID,
			Item:          c.result.Payload,
			RRFScore:      1.0 / float64(cfg.Dedup.RRFK+c.rank),
			WeightedScore: c.result.Score,
			Sources: []domain.SourceAttribution{{
				SourceType: c.result.SourceType,
				Score:      c.result.Score,
				Rank:       c.rank,
				Weight:     1.0,
			}},
			MergedFromCount: 1,
		})
	}
	return out
}

func introducesNewTag(tags []string, seen map[string]struct{}) bool {
	for _, t := range tags {
		if _, ok := seen[t]; !ok {
			return true
		}
	}
	return false
}

func payloadTags(payload map[string]any) []string {
	if payload == nil {
		return nil
	}
	out := make([]string, 0, 4)
	for _, key := range []string{"categories", "functionality"} {
		switch v := payload[key].(type) {
		case []string:
			for _, s := range v {
				if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
					out = append(out, s)
				}
			}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
						out = append(out, s)
					}
				}
			}
		case string:
			for _, s := range strings.Split(v, ",") {
				if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
