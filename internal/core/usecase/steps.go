package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/toolrank-io/toolrank/internal/core/domain"
	"github.com/toolrank-io/toolrank/internal/core/ports"
)

const (
	defaultStepLimit    = 10
	maxEnrichedResults  = 5
	defaultRelatedLimit = 3
	maxExpansionSeeds   = 3
)

type StepDeps struct {
	Logger   *slog.Logger
	Embedder ports.Embedder
	Index    ports.VectorIndex
	Tools    ports.ToolStore
	// Graph is optional: without it context enrichment is a passthrough.
	Graph ports.RelationGraph
}

type stepRegistry struct {
	steps map[string]ports.StepFunc
	names []string
}

func (r *stepRegistry) Lookup(name string) (ports.StepFunc, bool) {
	fn, ok := r.steps[name]
	return fn, ok
}

func (r *stepRegistry) Names() []string {
	return append([]string(nil), r.names...)
}

func NewStepRegistry(deps StepDeps) (ports.StepRegistry, error) {
	if deps.Embedder == nil || deps.Index == nil || deps.Tools == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "step registry",
			fmt.Errorf("embedder, vector index and tool store are required"))
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	s := &builtinSteps{deps: deps}

	steps := map[string]ports.StepFunc{
		domain.StepSemanticSearch:      s.facetSearch(domain.SourceSemantic),
		domain.StepFunctionalitySearch: s.facetSearch(domain.SourceFunctionality),
		domain.StepCategorySearch:      s.facetSearch(domain.SourceCategories),
		domain.StepStructuredFilter:    s.structuredFilter,
		domain.StepLocalNLP:            s.localNLP,
		domain.StepSemanticExpansion:   s.semanticExpansion,
		domain.StepContextEnrichment:   s.contextEnrichment,
		domain.StepQualityAssessment:   s.qualityAssessment,
	}
	names := make([]string, 0, len(steps))
	for name := range steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return &stepRegistry{steps: steps, names: names}, nil
}

type builtinSteps struct {
	deps StepDeps
}

// A local-nlp dependency's normalized query takes precedence over the raw one.
func (s *builtinSteps) facetSearch(facet string) ports.StepFunc {
	return func(ctx context.Context, exec domain.ExecutionContext, params map[string]any) (domain.StepOutput, error) {
		query := paramString(params, "query", exec.Query)
		if in, ok := inputOutput(params); ok {
			if normalized, _ := in.Data["normalized_query"].(string); normalized != "" {
				query = normalized
			}
		}
		if query == "" {
			return domain.StepOutput{}, domain.WrapError(domain.ErrInvalidInput, "facet search",
				fmt.Errorf("empty query for %s facet", facet))
		}

		vector, err := s.deps.Embedder.EmbedQuery(ctx, query)
		if err != nil {
			return domain.StepOutput{}, fmt.Errorf("embed query: %w", err)
		}
		hits, err := s.deps.Index.SearchFacet(ctx, facet, vector, paramInt(params, "limit", defaultStepLimit))
		if err != nil {
			return domain.StepOutput{}, fmt.Errorf("search %s facet: %w", facet, err)
		}
		return domain.StepOutput{Results: hitsToResults(hits, facet)}, nil
	}
}

func (s *builtinSteps) structuredFilter(ctx context.Context, exec domain.ExecutionContext, params map[string]any) (domain.StepOutput, error) {
	filter := domain.StructuredFilter{
		Categories: paramStringSlice(params, "categories"),
		Interfaces: paramStringSlice(params, "interfaces"),
		Deployment: paramStringSlice(params, "deployment"),
		UserTypes:  paramStringSlice(params, "user_types"),
		FreeOnly:   paramBool(params, "free_only"),
		Limit:      paramInt(params, "limit", defaultStepLimit),
	}
	if price, ok := paramFloat(params, "max_price"); ok {
		filter.MaxPrice = &price
	}

	tools, err := s.deps.Tools.SearchStructured(ctx, filter)
	if err != nil {
		return domain.StepOutput{}, fmt.Errorf("structured filter: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(tools))
	for i, tool := range tools {
		results = append(results, domain.SearchResult{
			ID: tool.ID,
			// Structured matches are binary; rank carries the store's ordering.
			Score:      1.0,
			SourceType: domain.SourceStructured,
			Rank:       i + 1,
			Payload:    tool.IndexPayload(),
		})
	}
	return domain.StepOutput{Results: results}, nil
}

func (s *builtinSteps) localNLP(ctx context.Context, exec domain.ExecutionContext, params map[string]any) (domain.StepOutput, error) {
	terms := make([]string, 0, 8)
	for _, token := range splitAlphaNumLower(exec.Query) {
		if _, stop := queryStopwords[token]; stop {
			continue
		}
		terms = append(terms, token)
	}
	return domain.StepOutput{Data: map[string]any{
		"normalized_query": strings.Join(terms, " "),
		"terms":            terms,
		"term_count":       len(terms),
	}}, nil
}

func (s *builtinSteps) semanticExpansion(ctx context.Context, exec domain.ExecutionContext, params map[string]any) (domain.StepOutput, error) {
	query := exec.Query
	if in, ok := inputOutput(params); ok {
		if seeds := expansionSeeds(in); len(seeds) > 0 {
			query = query + " " + strings.Join(seeds, " ")
		}
	}
	if query == "" {
		return domain.StepOutput{}, domain.WrapError(domain.ErrInvalidInput, "semantic expansion", fmt.Errorf("empty query"))
	}

	vector, err := s.deps.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return domain.StepOutput{}, fmt.Errorf("embed expanded query: %w", err)
	}
	limit := paramInt(params, "limit", defaultStepLimit) * 2
	hits, err := s.deps.Index.SearchFacet(ctx, domain.SourceSemantic, vector, limit)
	if err != nil {
		return domain.StepOutput{}, fmt.Errorf("search expanded: %w", err)
	}
	return domain.StepOutput{Results: hitsToResults(hits, domain.SourceSemanticExpanded)}, nil
}

func expansionSeeds(in domain.StepOutput) []string {
	if terms := anyStringSlice(in.Data["terms"]); len(terms) > 0 {
		return terms
	}
	seeds := make([]string, 0, maxExpansionSeeds)
	for _, r := range in.Results {
		if name, _ := r.Payload["name"].(string); name != "" {
			seeds = append(seeds, name)
		}
		if len(seeds) == maxExpansionSeeds {
			break
		}
	}
	return seeds
}

// Graph failures degrade to a passthrough; enrichment never fails a strategy.
func (s *builtinSteps) contextEnrichment(ctx context.Context, exec domain.ExecutionContext, params map[string]any) (domain.StepOutput, error) {
	in, ok := inputOutput(params)
	if !ok || len(in.Results) == 0 {
		return domain.StepOutput{Data: map[string]any{"enriched": 0}}, nil
	}
	if s.deps.Graph == nil {
		return domain.StepOutput{Results: in.Results, Data: map[string]any{"enriched": 0}}, nil
	}

	relatedLimit := paramInt(params, "related_limit", defaultRelatedLimit)
	enriched := make([]domain.SearchResult, len(in.Results))
	copy(enriched, in.Results)

	count := 0
	for i := range enriched {
		if i == maxEnrichedResults {
			break
		}
		relations, err := s.deps.Graph.RelatedTools(ctx, enriched[i].ID, relatedLimit)
		if err != nil {
			s.deps.Logger.Warn("context enrichment degraded", "tool", enriched[i].ID, "error", err)
			continue
		}
		if len(relations) == 0 {
			continue
		}
		related := make([]map[string]any, 0, len(relations))
		for _, rel := range relations {
			related = append(related, map[string]any{
				"tool_id":  rel.ToolID,
				"relation": rel.Relation,
				"name":     rel.Name,
			})
		}
		payload := make(map[string]any, len(enriched[i].Payload)+1)
		for k, v := range enriched[i].Payload {
			payload[k] = v
		}
		payload["related"] = related
		enriched[i].Payload = payload
		count++
	}
	return domain.StepOutput{Results: enriched, Data: map[string]any{"enriched": count}}, nil
}

func (s *builtinSteps) qualityAssessment(ctx context.Context, exec domain.ExecutionContext, params map[string]any) (domain.StepOutput, error) {
	in, ok := inputOutput(params)
	if !ok || len(in.Results) == 0 {
		return domain.StepOutput{Data: map[string]any{"assessed": 0}}, nil
	}

	minScore, _ := paramFloat(params, "min_score")
	queryTokens := toTokenSet(exec.Query)

	lowest, highest := in.Results[0].Score, in.Results[0].Score
	for _, r := range in.Results[1:] {
		if r.Score < lowest {
			lowest = r.Score
		}
		if r.Score > highest {
			highest = r.Score
		}
	}
	scoreRange := highest - lowest
	normalize := func(v float64) float64 {
		if scoreRange <= 0 {
			if v > 0 {
				return 1
			}
			return 0
		}
		return (v - lowest) / scoreRange
	}

	assessed := make([]domain.SearchResult, 0, len(in.Results))
	for _, r := range in.Results {
		name, _ := r.Payload["name"].(string)
		description, _ := r.Payload["description"].(string)
		overlap := tokenOverlap(queryTokens, toTokenSet(name+" "+description))
		nameHit := 0.0
		if name != "" && strings.Contains(strings.ToLower(name), strings.ToLower(strings.TrimSpace(exec.Query))) {
			nameHit = 1.0
		}
		scored := r
		scored.Score = 0.60*normalize(r.Score) + 0.30*overlap + 0.10*nameHit
		if scored.Score < minScore {
			continue
		}
		assessed = append(assessed, scored)
	}

	sort.SliceStable(assessed, func(i, j int) bool {
		if assessed[i].Score != assessed[j].Score {
			return assessed[i].Score > assessed[j].Score
		}
		return assessed[i].ID < assessed[j].ID
	})
	for i := range assessed {
		assessed[i].Rank = i + 1
	}
	return domain.StepOutput{
		Results: assessed,
		Data:    map[string]any{"assessed": len(assessed), "dropped": len(in.Results) - len(assessed)},
	}, nil
}

func hitsToResults(hits []domain.FacetHit, sourceType string) []domain.SearchResult {
	results := make([]domain.SearchResult, 0, len(hits))
	for i, hit := range hits {
		results = append(results, domain.SearchResult{
			ID:         hit.ToolID,
			Score:      hit.Score,
			SourceType: sourceType,
			Rank:       i + 1,
			Payload:    hit.Payload,
		})
	}
	return results
}

var queryStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "for": {}, "with": {},
	"to": {}, "of": {}, "in": {}, "on": {}, "at": {}, "by": {}, "is": {},
	"are": {}, "be": {}, "that": {}, "this": {}, "it": {}, "as": {},
	"from": {}, "what": {}, "which": {}, "how": {}, "do": {}, "does": {},
	"can": {}, "i": {}, "me": {}, "my": {}, "we": {}, "our": {}, "you": {},
	"your": {}, "show": {}, "find": {}, "need": {}, "want": {}, "looking": {},
}

func inputOutput(params map[string]any) (domain.StepOutput, bool) {
	v, ok := params[domain.ParamInput]
	if !ok {
		return domain.StepOutput{}, false
	}
	out, isOutput := v.(domain.StepOutput)
	return out, isOutput
}

func paramString(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

// paramInt tolerates JSON-decoded numbers, which arrive as float64.
func paramInt(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return int(v)
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return fallback
}

func paramFloat(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func paramBool(params map[string]any, key string) bool {
	v, _ := params[key].(bool)
	return v
}

func paramStringSlice(params map[string]any, key string) []string {
	return anyStringSlice(params[key])
}

func anyStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(vv) == "" {
			return nil
		}
		parts := strings.Split(vv, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}
