package domain

// Facet identifiers double as the source type on that facet's results.
func AllFacets() []string {
	return []string{SourceSemantic, SourceFunctionality, SourceCategories}
}

// ChunkIndex disambiguates multiple semantic chunks of one tool.
type FacetPoint struct {
	ToolID     string         `json:"tool_id"`
	ChunkIndex int            `json:"chunk_index"`
	Vector     []float32      `json:"vector"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type FacetHit struct {
	ToolID  string         `json:"tool_id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload,omitempty"`
}
