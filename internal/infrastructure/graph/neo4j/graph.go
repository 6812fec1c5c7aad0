package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/toolrank-io/toolrank/internal/core/domain"
)

const defaultRelatedLimit = 10

// Nodes are keyed by tool name; ids attach once the named tool is imported.
type RelationGraph struct {
	driver   neo4j.DriverWithContext
	database string
}

func New(ctx context.Context, uri, username, password, database string) (*RelationGraph, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}

	return &RelationGraph{driver: driver, database: database}, nil
}

func (g *RelationGraph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

func (g *RelationGraph) session(ctx context.Context) neo4j.SessionWithContext {
	return g.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: g.database})
}

// Matches are undirected: an edge recorded on either side surfaces for both.
func (g *RelationGraph) RelatedTools(ctx context.Context, toolID string, limit int) ([]domain.ToolRelation, error) {
	if limit <= 0 {
		limit = defaultRelatedLimit
	}

	session := g.session(ctx)
	defer session.Close(ctx)

	const query = `
MATCH (t:Tool {id: $id})-[r:INTEGRATES_WITH|ALTERNATIVE_TO]-(other:Tool)
RETURN other.id AS tool_id, other.name AS name, type(r) AS relation
ORDER BY other.name
LIMIT $limit
`
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"id": toolID, "limit": limit})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		relations := make([]domain.ToolRelation, 0, len(records))
		for _, record := range records {
			relations = append(relations, recordToRelation(record))
		}
		return relations, nil
	})
	if err != nil {
		return nil, fmt.Errorf("related tools for %s: %w", toolID, err)
	}
	return result.([]domain.ToolRelation), nil
}

func (g *RelationGraph) UpsertRelations(ctx context.Context, toolID, toolName string, relations []domain.CatalogRelation) error {
	if toolName == "" {
		return fmt.Errorf("upsert relations: %w", domain.ErrInvalidInput)
	}

	session := g.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
MERGE (t:Tool {name: $name})
SET t.id = $id
`, map[string]any{"name": toolName, "id": toolID}); err != nil {
			return nil, err
		}

		for _, relation := range relations {
			if relation.TargetName == "" {
				continue
			}
			query, err := relationQuery(relation.Relation)
			if err != nil {
				return nil, err
			}
			if _, err := tx.Run(ctx, query, map[string]any{
				"name":   toolName,
				"target": relation.TargetName,
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("upsert relations for %s: %w", toolName, err)
	}
	return nil
}

// Cypher cannot parameterize relationship types; each known type gets its own merge.
func relationQuery(relation string) (string, error) {
	switch relation {
	case domain.RelationIntegratesWith:
		return `
MERGE (t:Tool {name: $name})
MERGE (o:Tool {name: $target})
MERGE (t)-[:INTEGRATES_WITH]->(o)
`, nil
	case domain.RelationAlternativeTo:
		return `
MERGE (t:Tool {name: $name})
MERGE (o:Tool {name: $target})
MERGE (t)-[:ALTERNATIVE_TO]->(o)
`, nil
	}
	return "", fmt.Errorf("unknown relation type %q", relation)
}

func recordToRelation(record *neo4j.Record) domain.ToolRelation {
	var relation domain.ToolRelation
	if v, ok := record.Get("tool_id"); ok {
		// Placeholder nodes carry no id until their own import runs.
		relation.ToolID, _ = v.(string)
	}
	if v, ok := record.Get("name"); ok {
		relation.Name, _ = v.(string)
	}
	if v, ok := record.Get("relation"); ok {
		relation.Relation, _ = v.(string)
	}
	return relation
}
