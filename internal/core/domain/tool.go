package domain

import (
	"strings"
	"time"
)

type Tool struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Datasheet     string    `json:"datasheet,omitempty"`
	Categories    []string  `json:"categories,omitempty"`
	Functionality []string  `json:"functionality,omitempty"`
	Interfaces    []string  `json:"interfaces,omitempty"`
	UserTypes     []string  `json:"user_types,omitempty"`
	Deployment    []string  `json:"deployment,omitempty"`
	PriceMonthly  float64   `json:"price_monthly"`
	Free          bool      `json:"free"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (t Tool) FacetText(facet string) string {
	switch facet {
	case SourceSemantic:
		parts := make([]string, 0, 3)
		for _, p := range []string{t.Name, t.Description, t.Datasheet} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		return strings.Join(parts, "\n")
	case SourceFunctionality:
		return strings.Join(t.Functionality, ", ")
	case SourceCategories:
		return strings.Join(t.Categories, ", ")
	}
	return ""
}

func (t Tool) IndexPayload() map[string]any {
	return map[string]any{
		"name":          t.Name,
		"description":   t.Description,
		"category":      strings.Join(t.Categories, ", "),
		"categories":    t.Categories,
		"functionality": t.Functionality,
		"price_monthly": t.PriceMonthly,
		"free":          t.Free,
	}
}

type StructuredFilter struct {
	Categories []string `json:"categories,omitempty"`
	Interfaces []string `json:"interfaces,omitempty"`
	Deployment []string `json:"deployment,omitempty"`
	UserTypes  []string `json:"user_types,omitempty"`
	MaxPrice   *float64 `json:"max_price,omitempty"`
	FreeOnly   bool     `json:"free_only,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

type ToolRelation struct {
	ToolID   string `json:"tool_id"`
	Relation string `json:"relation"`
	Name     string `json:"name,omitempty"`
}

const (
	RelationIntegratesWith = "INTEGRATES_WITH"
	RelationAlternativeTo  = "ALTERNATIVE_TO"
)
