package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/toolrank-io/toolrank/internal/core/domain"
	"github.com/toolrank-io/toolrank/internal/core/ports"
)

type stubEmbedder struct {
	lastQuery string
	vector    []float32
	err       error
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vector
	}
	return out, s.err
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	s.lastQuery = text
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

type stubIndex struct {
	lastFacet string
	lastLimit int
	hits      []domain.FacetHit
	err       error
	indexed   map[string][]domain.FacetPoint
	deleted   []string
}

func (s *stubIndex) EnsureFacets(ctx context.Context) error { return nil }

func (s *stubIndex) IndexFacet(ctx context.Context, facet string, points []domain.FacetPoint) error {
	if s.indexed == nil {
		s.indexed = make(map[string][]domain.FacetPoint)
	}
	s.indexed[facet] = append(s.indexed[facet], points...)
	return nil
}

func (s *stubIndex) SearchFacet(ctx context.Context, facet string, vector []float32, limit int) ([]domain.FacetHit, error) {
	s.lastFacet = facet
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

func (s *stubIndex) DeleteTool(ctx context.Context, facet, toolID string) error {
	s.deleted = append(s.deleted, facet+"/"+toolID)
	return nil
}

type stubToolStore struct {
	lastFilter domain.StructuredFilter
	tools      []domain.Tool
	err        error
	byID       map[string]*domain.Tool
	byName     map[string]*domain.Tool
	upserted   []domain.Tool
	datasheets map[string]string
}

func (s *stubToolStore) GetByID(ctx context.Context, id string) (*domain.Tool, error) {
	if t, ok := s.byID[id]; ok {
		copyTool := *t
		return &copyTool, nil
	}
	return nil, domain.ErrToolNotFound
}

func (s *stubToolStore) GetByIDs(ctx context.Context, ids []string) ([]domain.Tool, error) {
	return nil, nil
}

func (s *stubToolStore) GetByName(ctx context.Context, name string) (*domain.Tool, error) {
	if t, ok := s.byName[name]; ok {
		copyTool := *t
		return &copyTool, nil
	}
	return nil, domain.ErrToolNotFound
}

func (s *stubToolStore) Upsert(ctx context.Context, tool *domain.Tool) error {
	s.upserted = append(s.upserted, *tool)
	if s.byID == nil {
		s.byID = make(map[string]*domain.Tool)
	}
	copyTool := *tool
	s.byID[tool.ID] = &copyTool
	return nil
}

func (s *stubToolStore) SetDatasheet(ctx context.Context, id, text string) error {
	if s.datasheets == nil {
		s.datasheets = make(map[string]string)
	}
	s.datasheets[id] = text
	if t, ok := s.byID[id]; ok {
		t.Datasheet = text
	}
	return nil
}

func (s *stubToolStore) SearchStructured(ctx context.Context, filter domain.StructuredFilter) ([]domain.Tool, error) {
	s.lastFilter = filter
	return s.tools, s.err
}

type stubGraph struct {
	relations map[string][]domain.ToolRelation
	calls     int
	err       error
	upserts   []string
	upsertErr error
}

func (s *stubGraph) RelatedTools(ctx context.Context, toolID string, limit int) ([]domain.ToolRelation, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.relations[toolID], nil
}

func (s *stubGraph) UpsertRelations(ctx context.Context, toolID, toolName string, relations []domain.CatalogRelation) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts = append(s.upserts, toolName)
	return nil
}

type stepStubs struct {
	embedder *stubEmbedder
	index    *stubIndex
	tools    *stubToolStore
	graph    *stubGraph
}

func newTestStepRegistry(t *testing.T) (ports.StepRegistry, *stepStubs) {
	t.Helper()
	stubs := &stepStubs{
		embedder: &stubEmbedder{vector: []float32{0.1, 0.2, 0.3}},
		index:    &stubIndex{},
		tools:    &stubToolStore{},
		graph:    &stubGraph{relations: map[string][]domain.ToolRelation{}},
	}
	registry, err := NewStepRegistry(StepDeps{
		Embedder: stubs.embedder,
		Index:    stubs.index,
		Tools:    stubs.tools,
		Graph:    stubs.graph,
	})
	if err != nil {
		t.Fatalf("expected registry, got error %v", err)
	}
	return registry, stubs
}

func mustStep(t *testing.T, registry ports.StepRegistry, name string) ports.StepFunc {
	t.Helper()
	fn, ok := registry.Lookup(name)
	if !ok {
		t.Fatalf("expected step %q to be registered", name)
	}
	return fn
}

func TestStepRegistryRegistersAllBuiltins(t *testing.T) {
	registry, _ := newTestStepRegistry(t)

	want := []string{
		domain.StepCategorySearch,
		domain.StepContextEnrichment,
		domain.StepFunctionalitySearch,
		domain.StepLocalNLP,
		domain.StepQualityAssessment,
		domain.StepSemanticExpansion,
		domain.StepSemanticSearch,
		domain.StepStructuredFilter,
	}
	if got := registry.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected names %v, got %v", want, got)
	}
}

func TestStepRegistryRequiresCoreDeps(t *testing.T) {
	if _, err := NewStepRegistry(StepDeps{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestFacetSearchMapsHitsPerFacet(t *testing.T) {
	cases := []struct {
		step   string
		facet  string
		source string
	}{
		{domain.StepSemanticSearch, domain.SourceSemantic, domain.SourceSemantic},
		{domain.StepFunctionalitySearch, domain.SourceFunctionality, domain.SourceFunctionality},
		{domain.StepCategorySearch, domain.SourceCategories, domain.SourceCategories},
	}
	for _, tc := range cases {
		registry, stubs := newTestStepRegistry(t)
		stubs.index.hits = []domain.FacetHit{
			{ToolID: "tool-1", Score: 0.93, Payload: map[string]any{"name": "CRM Pro"}},
			{ToolID: "tool-2", Score: 0.81},
		}
		fn := mustStep(t, registry, tc.step)

		out, err := fn(context.Background(), domain.ExecutionContext{Query: "crm"}, map[string]any{})
		if err != nil {
			t.Fatalf("%s: expected success, got %v", tc.step, err)
		}
		if stubs.index.lastFacet != tc.facet {
			t.Fatalf("%s: expected facet %q, got %q", tc.step, tc.facet, stubs.index.lastFacet)
		}
		if stubs.index.lastLimit != defaultStepLimit {
			t.Fatalf("%s: expected default limit %d, got %d", tc.step, defaultStepLimit, stubs.index.lastLimit)
		}
		if len(out.Results) != 2 {
			t.Fatalf("%s: expected 2 results, got %d", tc.step, len(out.Results))
		}
		first := out.Results[0]
		if first.ID != "tool-1" || first.SourceType != tc.source || first.Rank != 1 {
			t.Fatalf("%s: unexpected first result %+v", tc.step, first)
		}
		if name, _ := first.Payload["name"].(string); name != "CRM Pro" {
			t.Fatalf("%s: expected payload passthrough, got %v", tc.step, first.Payload)
		}
		if out.Results[1].Rank != 2 {
			t.Fatalf("%s: expected rank 2, got %d", tc.step, out.Results[1].Rank)
		}
	}
}

func TestFacetSearchPrefersNormalizedQuery(t *testing.T) {
	registry, stubs := newTestStepRegistry(t)
	fn := mustStep(t, registry, domain.StepSemanticSearch)

	params := map[string]any{
		domain.ParamInput: domain.StepOutput{Data: map[string]any{"normalized_query": "crm startups"}},
	}
	if _, err := fn(context.Background(), domain.ExecutionContext{Query: "find me CRM for startups"}, params); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if stubs.embedder.lastQuery != "crm startups" {
		t.Fatalf("expected normalized query to be embedded, got %q", stubs.embedder.lastQuery)
	}
}

func TestFacetSearchHonorsLimitParam(t *testing.T) {
	registry, stubs := newTestStepRegistry(t)
	fn := mustStep(t, registry, domain.StepFunctionalitySearch)

	if _, err := fn(context.Background(), domain.ExecutionContext{Query: "crm"}, map[string]any{"limit": float64(25)}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if stubs.index.lastLimit != 25 {
		t.Fatalf("expected limit 25, got %d", stubs.index.lastLimit)
	}
}

func TestFacetSearchRejectsEmptyQuery(t *testing.T) {
	registry, _ := newTestStepRegistry(t)
	fn := mustStep(t, registry, domain.StepSemanticSearch)

	_, err := fn(context.Background(), domain.ExecutionContext{}, map[string]any{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestStructuredFilterMapsParamsAndRows(t *testing.T) {
	registry, stubs := newTestStepRegistry(t)
	stubs.tools.tools = []domain.Tool{
		{ID: "tool-1", Name: "CRM Pro", Description: "sales crm", Categories: []string{"crm", "sales"}, Free: true},
		{ID: "tool-2", Name: "Lead Hub", Categories: []string{"crm"}, PriceMonthly: 29},
	}
	fn := mustStep(t, registry, domain.StepStructuredFilter)

	params := map[string]any{
		"categories": []any{"crm", "sales"},
		"max_price":  float64(50),
		"free_only":  true,
		"limit":      float64(5),
	}
	out, err := fn(context.Background(), domain.ExecutionContext{Query: "crm"}, params)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	filter := stubs.tools.lastFilter
	if !reflect.DeepEqual(filter.Categories, []string{"crm", "sales"}) {
		t.Fatalf("expected categories [crm sales], got %v", filter.Categories)
	}
	if filter.MaxPrice == nil || *filter.MaxPrice != 50 {
		t.Fatalf("expected max price 50, got %v", filter.MaxPrice)
	}
	if !filter.FreeOnly || filter.Limit != 5 {
		t.Fatalf("unexpected filter %+v", filter)
	}

	if len(out.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out.Results))
	}
	first := out.Results[0]
	if first.ID != "tool-1" || first.SourceType != domain.SourceStructured || first.Rank != 1 || first.Score != 1.0 {
		t.Fatalf("unexpected first result %+v", first)
	}
	if category, _ := first.Payload["category"].(string); category != "crm, sales" {
		t.Fatalf("expected joined category, got %v", first.Payload["category"])
	}
}

func TestLocalNLPStripsStopwords(t *testing.T) {
	registry, _ := newTestStepRegistry(t)
	fn := mustStep(t, registry, domain.StepLocalNLP)

	out, err := fn(context.Background(), domain.ExecutionContext{Query: "Find me the best CRM tools for startups"}, map[string]any{})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if out.Results != nil {
		t.Fatalf("expected side-channel data only, got %d results", len(out.Results))
	}
	if normalized, _ := out.Data["normalized_query"].(string); normalized != "best crm tools startups" {
		t.Fatalf("expected normalized query, got %q", normalized)
	}
	terms, ok := out.Data["terms"].([]string)
	if !ok || len(terms) != 4 {
		t.Fatalf("expected 4 terms, got %v", out.Data["terms"])
	}
	if count, _ := out.Data["term_count"].(int); count != 4 {
		t.Fatalf("expected term count 4, got %v", out.Data["term_count"])
	}
}

func TestSemanticExpansionGrowsQueryWithTerms(t *testing.T) {
	registry, stubs := newTestStepRegistry(t)
	fn := mustStep(t, registry, domain.StepSemanticExpansion)

	params := map[string]any{
		domain.ParamInput: domain.StepOutput{Data: map[string]any{"terms": []string{"crm", "sales"}}},
	}
	if _, err := fn(context.Background(), domain.ExecutionContext{Query: "pipeline tool"}, params); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if stubs.embedder.lastQuery != "pipeline tool crm sales" {
		t.Fatalf("expected expanded query, got %q", stubs.embedder.lastQuery)
	}
	if stubs.index.lastFacet != domain.SourceSemantic {
		t.Fatalf("expected semantic facet, got %q", stubs.index.lastFacet)
	}
	if stubs.index.lastLimit != defaultStepLimit*2 {
		t.Fatalf("expected doubled limit %d, got %d", defaultStepLimit*2, stubs.index.lastLimit)
	}
}

func TestSemanticExpansionSeedsFromResultNames(t *testing.T) {
	registry, stubs := newTestStepRegistry(t)
	fn := mustStep(t, registry, domain.StepSemanticExpansion)

	params := map[string]any{
		domain.ParamInput: domain.StepOutput{Results: []domain.SearchResult{
			{ID: "t1", Payload: map[string]any{"name": "Alpha"}},
			{ID: "t2", Payload: map[string]any{"name": "Beta"}},
			{ID: "t3", Payload: map[string]any{"name": "Gamma"}},
			{ID: "t4", Payload: map[string]any{"name": "Delta"}},
		}},
	}
	if _, err := fn(context.Background(), domain.ExecutionContext{Query: "crm"}, params); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if stubs.embedder.lastQuery != "crm Alpha Beta Gamma" {
		t.Fatalf("expected at most three seeds, got %q", stubs.embedder.lastQuery)
	}
}

func TestSemanticExpansionMarksSource(t *testing.T) {
	registry, stubs := newTestStepRegistry(t)
	stubs.index.hits = []domain.FacetHit{{ToolID: "tool-9", Score: 0.4}}
	fn := mustStep(t, registry, domain.StepSemanticExpansion)

	out, err := fn(context.Background(), domain.ExecutionContext{Query: "crm"}, map[string]any{})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(out.Results) != 1 || out.Results[0].SourceType != domain.SourceSemanticExpanded {
		t.Fatalf("expected expanded source type, got %+v", out.Results)
	}
}

func TestContextEnrichmentAddsRelations(t *testing.T) {
	registry, stubs := newTestStepRegistry(t)
	stubs.graph.relations["tool-1"] = []domain.ToolRelation{
		{ToolID: "tool-7", Relation: "integrates_with", Name: "Zap Bridge"},
	}
	fn := mustStep(t, registry, domain.StepContextEnrichment)

	original := map[string]any{"name": "CRM Pro"}
	params := map[string]any{
		domain.ParamInput: domain.StepOutput{Results: []domain.SearchResult{
			{ID: "tool-1", Score: 0.9, Payload: original},
			{ID: "tool-2", Score: 0.8},
		}},
	}
	out, err := fn(context.Background(), domain.ExecutionContext{Query: "crm"}, params)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	related, ok := out.Results[0].Payload["related"].([]map[string]any)
	if !ok || len(related) != 1 {
		t.Fatalf("expected one related entry, got %v", out.Results[0].Payload["related"])
	}
	if related[0]["tool_id"] != "tool-7" || related[0]["relation"] != "integrates_with" {
		t.Fatalf("unexpected relation %v", related[0])
	}
	if _, mutated := original["related"]; mutated {
		t.Fatalf("expected input payload to stay untouched")
	}
	if enriched, _ := out.Data["enriched"].(int); enriched != 1 {
		t.Fatalf("expected 1 enriched result, got %v", out.Data["enriched"])
	}
}

func TestContextEnrichmentSurvivesGraphFailure(t *testing.T) {
	registry, stubs := newTestStepRegistry(t)
	stubs.graph.err = errors.New("bolt connection refused")
	fn := mustStep(t, registry, domain.StepContextEnrichment)

	params := map[string]any{
		domain.ParamInput: domain.StepOutput{Results: []domain.SearchResult{{ID: "tool-1", Score: 0.9}}},
	}
	out, err := fn(context.Background(), domain.ExecutionContext{Query: "crm"}, params)
	if err != nil {
		t.Fatalf("expected enrichment to degrade, got %v", err)
	}
	if len(out.Results) != 1 || out.Results[0].ID != "tool-1" {
		t.Fatalf("expected passthrough results, got %+v", out.Results)
	}
	if enriched, _ := out.Data["enriched"].(int); enriched != 0 {
		t.Fatalf("expected 0 enriched results, got %v", out.Data["enriched"])
	}
}

func TestContextEnrichmentCapsGraphLookups(t *testing.T) {
	registry, stubs := newTestStepRegistry(t)
	fn := mustStep(t, registry, domain.StepContextEnrichment)

	results := make([]domain.SearchResult, 7)
	for i := range results {
		results[i] = domain.SearchResult{ID: string(rune('a' + i)), Score: 1.0 - float64(i)*0.1}
	}
	params := map[string]any{domain.ParamInput: domain.StepOutput{Results: results}}
	if _, err := fn(context.Background(), domain.ExecutionContext{Query: "crm"}, params); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if stubs.graph.calls != maxEnrichedResults {
		t.Fatalf("expected %d graph lookups, got %d", maxEnrichedResults, stubs.graph.calls)
	}
}

func TestContextEnrichmentWithoutInputIsNoop(t *testing.T) {
	registry, stubs := newTestStepRegistry(t)
	fn := mustStep(t, registry, domain.StepContextEnrichment)

	out, err := fn(context.Background(), domain.ExecutionContext{Query: "crm"}, map[string]any{})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if out.Results != nil || stubs.graph.calls != 0 {
		t.Fatalf("expected no work without input, got %+v", out)
	}
}

func TestQualityAssessmentBlendsLexicalSignals(t *testing.T) {
	registry, _ := newTestStepRegistry(t)
	fn := mustStep(t, registry, domain.StepQualityAssessment)

	params := map[string]any{
		domain.ParamInput: domain.StepOutput{Results: []domain.SearchResult{
			{ID: "tool-a", Score: 0.9, SourceType: domain.SourceSemantic, Rank: 1,
				Payload: map[string]any{"name": "Spreadsheet Helper", "description": "pivot tables"}},
			{ID: "tool-b", Score: 0.85, SourceType: domain.SourceSemantic, Rank: 2,
				Payload: map[string]any{"name": "Email Automation Bot", "description": "automates campaigns"}},
			{ID: "tool-c", Score: 0.5, SourceType: domain.SourceSemantic, Rank: 3,
				Payload: map[string]any{"name": "Photo Editor", "description": "filters"}},
		}},
	}
	out, err := fn(context.Background(), domain.ExecutionContext{Query: "email automation"}, params)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(out.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out.Results))
	}
	if out.Results[0].ID != "tool-b" || out.Results[1].ID != "tool-a" || out.Results[2].ID != "tool-c" {
		t.Fatalf("expected order [tool-b tool-a tool-c], got %v",
			[]string{out.Results[0].ID, out.Results[1].ID, out.Results[2].ID})
	}
	for i, r := range out.Results {
		if r.Rank != i+1 {
			t.Fatalf("expected rank %d, got %d", i+1, r.Rank)
		}
	}
}

func TestQualityAssessmentDropsBelowMinScore(t *testing.T) {
	registry, _ := newTestStepRegistry(t)
	fn := mustStep(t, registry, domain.StepQualityAssessment)

	params := map[string]any{
		"min_score": 0.5,
		domain.ParamInput: domain.StepOutput{Results: []domain.SearchResult{
			{ID: "tool-a", Score: 0.9, Payload: map[string]any{"name": "Spreadsheet Helper"}},
			{ID: "tool-b", Score: 0.85, Payload: map[string]any{"name": "Email Automation Bot"}},
			{ID: "tool-c", Score: 0.5, Payload: map[string]any{"name": "Photo Editor"}},
		}},
	}
	out, err := fn(context.Background(), domain.ExecutionContext{Query: "email automation"}, params)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("expected tool-c to be dropped, got %d results", len(out.Results))
	}
	if dropped, _ := out.Data["dropped"].(int); dropped != 1 {
		t.Fatalf("expected 1 dropped, got %v", out.Data["dropped"])
	}
}

func TestQualityAssessmentUniformScoresTieOnID(t *testing.T) {
	registry, _ := newTestStepRegistry(t)
	fn := mustStep(t, registry, domain.StepQualityAssessment)

	params := map[string]any{
		domain.ParamInput: domain.StepOutput{Results: []domain.SearchResult{
			{ID: "b-tool", Score: 0.7, Payload: map[string]any{"name": "Beta"}},
			{ID: "a-tool", Score: 0.7, Payload: map[string]any{"name": "Alpha"}},
		}},
	}
	out, err := fn(context.Background(), domain.ExecutionContext{Query: "unrelated query"}, params)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if out.Results[0].ID != "a-tool" {
		t.Fatalf("expected id tiebreak, got %v", []string{out.Results[0].ID, out.Results[1].ID})
	}
}

func TestParamHelpersAcceptDecodedJSONShapes(t *testing.T) {
	params := map[string]any{
		"limit":      float64(7),
		"categories": []any{"crm", " ", "sales"},
		"tags":       "a, b ,c",
		"ratio":      3,
	}
	if got := paramInt(params, "limit", 10); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if got := paramInt(params, "missing", 10); got != 10 {
		t.Fatalf("expected fallback 10, got %d", got)
	}
	if got := paramStringSlice(params, "categories"); !reflect.DeepEqual(got, []string{"crm", "sales"}) {
		t.Fatalf("expected [crm sales], got %v", got)
	}
	if got := paramStringSlice(params, "tags"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("expected [a b c], got %v", got)
	}
	if got, ok := paramFloat(params, "ratio"); !ok || got != 3 {
		t.Fatalf("expected 3, got %v", got)
	}
}
