package domain

const (
	SourceSemantic         = "semantic"
	SourceFunctionality    = "functionality"
	SourceCategories       = "categories"
	SourceStructured       = "structured"
	SourceSemanticExpanded = "semantic_expanded"
)

type SearchResult struct {
	ID         string         `json:"id"`
	Score      float64        `json:"score"`
	SourceType string         `json:"source_type"`
	Rank       int            `json:"rank"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type SourceAttribution struct {
	SourceType string  `json:"source_type"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank"`
	Weight     float64 `json:"weight"`
}

// MergedFromCount always equals len(Sources).
type MergedResult struct {
	ID              string              `json:"id"`
	Item            map[string]any      `json:"item,omitempty"`
	RRFScore        float64             `json:"rrf_score"`
	WeightedScore   float64             `json:"weighted_score"`
	Sources         []SourceAttribution `json:"sources"`
	MergedFromCount int                 `json:"merged_from_count"`
}

type MergeStats struct {
	Strategy          string         `json:"strategy"`
	InputCount        int            `json:"input_count"`
	OutputCount       int            `json:"output_count"`
	DuplicatesRemoved int            `json:"duplicates_removed"`
	BySource          map[string]int `json:"by_source,omitempty"`
	Batches           int            `json:"batches,omitempty"`
}

type DedupStrategy string

const (
	DedupIDBased      DedupStrategy = "id_based"
	DedupContentBased DedupStrategy = "content_based"
	DedupHybrid       DedupStrategy = "hybrid"
	DedupRRFEnhanced  DedupStrategy = "rrf_enhanced"
)

// Exact-match fields skip the token and edit-distance blend.
type FieldWeight struct {
	Field      string  `json:"field" yaml:"field"`
	Weight     float64 `json:"weight" yaml:"weight"`
	ExactMatch bool    `json:"exact_match,omitempty" yaml:"exact_match,omitempty"`
}

type DeduplicationConfig struct {
	Strategy                 DedupStrategy      `json:"strategy" yaml:"strategy"`
	RRFK                     int                `json:"rrf_k" yaml:"rrf_k"`
	SimilarityThreshold      float64            `json:"similarity_threshold" yaml:"similarity_threshold"`
	SourceWeights            map[string]float64 `json:"source_weights,omitempty" yaml:"source_weights,omitempty"`
	VectorTypeThresholds     map[string]float64 `json:"vector_type_thresholds,omitempty" yaml:"vector_type_thresholds,omitempty"`
	Fields                   []FieldWeight      `json:"fields,omitempty" yaml:"fields,omitempty"`
	BatchSize                int                `json:"batch_size" yaml:"batch_size"`
	EnableParallelProcessing bool               `json:"enable_parallel_processing" yaml:"enable_parallel_processing"`
}

const DefaultRRFK = 60

func DefaultSourceWeights() map[string]float64 {
	return map[string]float64{
		SourceSemantic:         1.0,
		SourceFunctionality:    0.9,
		SourceCategories:       0.8,
		SourceStructured:       0.7,
		SourceSemanticExpanded: 0.6,
	}
}

func DefaultFieldWeights() []FieldWeight {
	return []FieldWeight{
		{Field: "name", Weight: 0.4},
		{Field: "description", Weight: 0.35},
		{Field: "category", Weight: 0.25, ExactMatch: true},
	}
}

func DefaultDeduplicationConfig() DeduplicationConfig {
	return DeduplicationConfig{
		Strategy:            DedupRRFEnhanced,
		RRFK:                DefaultRRFK,
		SimilarityThreshold: 0.8,
		SourceWeights:       DefaultSourceWeights(),
		VectorTypeThresholds: map[string]float64{
			SourceSemantic:      0.85,
			SourceFunctionality: 0.8,
			SourceCategories:    0.75,
		},
		Fields:    DefaultFieldWeights(),
		BatchSize: 100,
	}
}

func (c DeduplicationConfig) Normalize() DeduplicationConfig {
	out := c
	def := DefaultDeduplicationConfig()

	if out.Strategy == "" {
		out.Strategy = def.Strategy
	}
	if out.RRFK <= 0 {
		out.RRFK = def.RRFK
	}
	if out.SimilarityThreshold <= 0 || out.SimilarityThreshold > 1 {
		out.SimilarityThreshold = def.SimilarityThreshold
	}
	if len(out.SourceWeights) == 0 {
		out.SourceWeights = def.SourceWeights
	}
	if len(out.VectorTypeThresholds) == 0 {
		out.VectorTypeThresholds = def.VectorTypeThresholds
	}
	if len(out.Fields) == 0 {
		out.Fields = def.Fields
	}
	if out.BatchSize <= 0 {
		out.BatchSize = def.BatchSize
	}
	return out
}

func (c DeduplicationConfig) SourceWeight(sourceType string) float64 {
	if w, ok := c.SourceWeights[sourceType]; ok {
		return w
	}
	return 1.0
}

type ResultSetMergeConfig struct {
	Dedup             DeduplicationConfig `json:"dedup" yaml:"dedup"`
	MinDiverseResults int                 `json:"min_diverse_results" yaml:"min_diverse_results"`
}

func (c ResultSetMergeConfig) Normalize() ResultSetMergeConfig {
	out := c
	out.Dedup = out.Dedup.Normalize()
	if out.MinDiverseResults <= 0 {
		out.MinDiverseResults = 5
	}
	return out
}
