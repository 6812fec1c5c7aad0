package usecase

import (
	"log/slog"
	"sort"

	"github.com/toolrank-io/toolrank/internal/core/domain"
)

type FusionEngine struct {
	logger *slog.Logger
}

func NewFusionEngine(logger *slog.Logger) *FusionEngine {
	return &FusionEngine{logger: logger}
}

// Sources are visited in lexicographic key order for deterministic output.
func (f *FusionEngine) Merge(resultsBySource map[string][]domain.SearchResult, cfg domain.DeduplicationConfig) ([]domain.MergedResult, domain.MergeStats) {
	cfg = cfg.Normalize()

	stats := domain.MergeStats{
		Strategy: string(cfg.Strategy),
		BySource: make(map[string]int, len(resultsBySource)),
	}
	for source, results := range resultsBySource {
		stats.InputCount += len(results)
		stats.BySource[source] = len(results)
	}

	var merged []domain.MergedResult
	switch cfg.Strategy {
	case domain.DedupIDBased:
		merged = f.mergeIDBased(flattenBySource(resultsBySource), cfg.RRFK)
	case domain.DedupContentBased:
		merged, stats.Batches = f.mergeContentBased(flattenBySource(resultsBySource), cfg, nil)
	case domain.DedupHybrid:
		byID := f.mergeIDBased(flattenBySource(resultsBySource), cfg.RRFK)
		merged, stats.Batches = f.collapseByContent(byID, cfg, nil)
	case domain.DedupRRFEnhanced:
		fused := f.fuseRRF(resultsBySource, cfg)
		merged, stats.Batches = f.collapseByContent(fused, cfg, cfg.VectorTypeThresholds)
	default:
		merged = f.mergeIDBased(flattenBySource(resultsBySource), cfg.RRFK)
	}

	sortMerged(merged)

	stats.OutputCount = len(merged)
	stats.DuplicatesRemoved = stats.InputCount - stats.OutputCount
	if f.logger != nil {
		f.logger.Debug("fusion merge",
			"strategy", string(cfg.Strategy),
			"input", stats.InputCount,
			"output", stats.OutputCount,
			"removed", stats.DuplicatesRemoved)
	}
	return merged, stats
}

// fuseRRF: every occurrence of an id contributes 1/(k+rank) to its rrf
// score and a weight-scaled share to its weighted score.
func (f *FusionEngine) fuseRRF(resultsBySource map[string][]domain.SearchResult, cfg domain.DeduplicationConfig) []domain.MergedResult {
	acc := make(map[string]*domain.MergedResult)
	best := make(map[string]float64)
	order := make([]string, 0)

	for _, source := range sortedSourceKeys(resultsBySource) {
		for pos, result := range resultsBySource[source] {
			rank := resultRank(result, pos)
			contribution := 1.0 / float64(cfg.RRFK+rank)
			weight := cfg.SourceWeight(result.SourceType)

			entry, ok := acc[result.ID]
			if !ok {
				entry = &domain.MergedResult{ID: result.ID}
				acc[result.ID] = entry
				order = append(order, result.ID)
				best[result.ID] = result.Score
				entry.Item = result.Payload
			} else if result.Score > best[result.ID] {
				// On payload disagreement the highest raw score wins.
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
	return out
}

func (f *FusionEngine) mergeIDBased(results []domain.SearchResult, rrfK int) []domain.MergedResult {
	seen := make(map[string]struct{}, len(results))
	out := make([]domain.MergedResult, 0, len(results))
	for pos, result := range results {
		if _, ok := seen[result.ID]; ok {
			continue
		}
		seen[result.ID] = struct{}{}
		out = append(out, singleSourceMerged(result, resultRank(result, pos), rrfK))
	}
	return out
}

func (f *FusionEngine) mergeContentBased(results []domain.SearchResult, cfg domain.DeduplicationConfig, thresholds map[string]float64) ([]domain.MergedResult, int) {
	entries := make([]domain.MergedResult, 0, len(results))
	for pos, result := range results {
		entries = append(entries, singleSourceMerged(result, resultRank(result, pos), cfg.RRFK))
	}
	return f.collapseByContent(entries, cfg, thresholds)
}

// An exact fingerprint match short-circuits the bounded-window similarity scan.
func (f *FusionEngine) collapseByContent(entries []domain.MergedResult, cfg domain.DeduplicationConfig, thresholds map[string]float64) ([]domain.MergedResult, int) {
	if len(entries) <= 1 {
		return entries, 0
	}

	window := len(entries)
	batches := 1
	if cfg.EnableParallelProcessing && cfg.BatchSize > 0 && len(entries) > cfg.BatchSize {
		window = cfg.BatchSize
		batches = (len(entries) + cfg.BatchSize - 1) / cfg.BatchSize
	}

	reps := make([]domain.MergedResult, 0, len(entries))
	byFingerprint := make(map[string]int, len(entries))

	for _, entry := range entries {
		fp, comparable := contentFingerprint(entry.Item, cfg.Fields)
		if !comparable {
			// Malformed or empty payload passes through unmerged.
			reps = append(reps, entry)
			continue
		}

		if idx, ok := byFingerprint[fp]; ok {
			reps[idx] = absorbMerged(reps[idx], entry)
			continue
		}

		collapsed := false
		start := len(reps) - window
		if start < 0 {
			start = 0
		}
		for i := len(reps) - 1; i >= start; i-- {
			sim, ok := fieldSimilarity(reps[i].Item, entry.Item, cfg.Fields)
			if !ok {
				continue
			}
			if sim >= pairThreshold(reps[i], entry, cfg, thresholds) {
				reps[i] = absorbMerged(reps[i], entry)
				collapsed = true
				break
			}
		}
		if !collapsed {
			byFingerprint[fp] = len(reps)
			reps = append(reps, entry)
		}
	}
	return reps, batches
}

// With per-source-type thresholds the stricter of the two primary sources wins.
func pairThreshold(a, b domain.MergedResult, cfg domain.DeduplicationConfig, thresholds map[string]float64) float64 {
	if len(thresholds) == 0 {
		return cfg.SimilarityThreshold
	}
	ta := sourceThreshold(a, cfg.SimilarityThreshold, thresholds)
	tb := sourceThreshold(b, cfg.SimilarityThreshold, thresholds)
	if tb > ta {
		return tb
	}
	return ta
}

func sourceThreshold(m domain.MergedResult, fallback float64, thresholds map[string]float64) float64 {
	primary := primarySourceType(m)
	if t, ok := thresholds[primary]; ok {
		return t
	}
	return fallback
}

func primarySourceType(m domain.MergedResult) string {
	bestType := ""
	bestWeight := -1.0
	bestRank := 0
	for _, s := range m.Sources {
		if s.Weight > bestWeight || (s.Weight == bestWeight && s.Rank < bestRank) {
			bestWeight = s.Weight
			bestRank = s.Rank
			bestType = s.SourceType
		}
	}
	return bestType
}

func absorbMerged(rep, dup domain.MergedResult) domain.MergedResult {
	if bestRawScore(dup) > bestRawScore(rep) {
		rep.Item = dup.Item
	}
	rep.RRFScore += dup.RRFScore
	rep.WeightedScore += dup.WeightedScore
	rep.Sources = append(rep.Sources, dup.Sources...)
	rep.MergedFromCount = len(rep.Sources)
	return rep
}

func bestRawScore(m domain.MergedResult) float64 {
	best := 0.0
	for _, s := range m.Sources {
		if s.Score > best {
			best = s.Score
		}
	}
	return best
}

func singleSourceMerged(result domain.SearchResult, rank, rrfK int) domain.MergedResult {
	weight := 1.0
	contribution := 1.0 / float64(rrfK+rank)
	return domain.MergedResult{
		ID:            result.ID,
		Item:          result.Payload,
		RRFScore:      contribution,
		WeightedScore: contribution * weight,
		Sources: []domain.SourceAttribution{{
			SourceType: result.SourceType,
			Score:      result.Score,
			Rank:       rank,
			Weight:     weight,
		}},
		MergedFromCount: 1,
	}
}

func resultRank(result domain.SearchResult, pos int) int {
	if result.Rank >= 1 {
		return result.Rank
	}
	return pos + 1
}

func sortMerged(merged []domain.MergedResult) {
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].WeightedScore != merged[j].WeightedScore {
			return merged[i].WeightedScore > merged[j].WeightedScore
		}
		if merged[i].RRFScore != merged[j].RRFScore {
			return merged[i].RRFScore > merged[j].RRFScore
		}
		return merged[i].ID < merged[j].ID
	})
}

func sortedSourceKeys(resultsBySource map[string][]domain.SearchResult) []string {
	keys := make([]string, 0, len(resultsBySource))
	for k := range resultsBySource {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func flattenBySource(resultsBySource map[string][]domain.SearchResult) []domain.SearchResult {
	out := make([]domain.SearchResult, 0)
	for _, source := range sortedSourceKeys(resultsBySource) {
		out = append(out, resultsBySource[source]...)
	}
	return out
}
