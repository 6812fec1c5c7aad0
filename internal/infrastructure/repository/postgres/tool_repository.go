package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/toolrank-io/toolrank/internal/core/domain"
)

// schemaLock serializes bootstrap DDL across api/worker startups.
const schemaLock = int64(2026082501)

const defaultFilterLimit = 20

const toolColumns = `id, name, description, datasheet, categories, functionality, interfaces, user_types, deployment, price_monthly, free, created_at, updated_at`

type ToolRepository struct {
	db *sql.DB
}

func NewToolRepository(db *sql.DB) *ToolRepository {
	return &ToolRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ToolRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLock); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS tools (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	datasheet TEXT NOT NULL DEFAULT '',
	categories JSONB NOT NULL DEFAULT '[]'::jsonb,
	functionality JSONB NOT NULL DEFAULT '[]'::jsonb,
	interfaces JSONB NOT NULL DEFAULT '[]'::jsonb,
	user_types JSONB NOT NULL DEFAULT '[]'::jsonb,
	deployment JSONB NOT NULL DEFAULT '[]'::jsonb,
	price_monthly DOUBLE PRECISION NOT NULL DEFAULT 0,
	free BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tools_name ON tools(lower(name));
CREATE INDEX IF NOT EXISTS idx_tools_updated_at ON tools(updated_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ToolRepository) GetByID(ctx context.Context, id string) (*domain.Tool, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+toolColumns+`
FROM tools
WHERE id = $1
`, id)

	tool, err := scanTool(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tool %s: %w", id, domain.ErrToolNotFound)
		}
		return nil, fmt.Errorf("get tool by id: %w", err)
	}
	return &tool, nil
}

func (r *ToolRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Tool, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("marshal ids: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT `+toolColumns+`
FROM tools
WHERE id IN (SELECT jsonb_array_elements_text($1::jsonb))
`, idsJSON)
	if err != nil {
		return nil, fmt.Errorf("get tools by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.Tool, len(ids))
	for rows.Next() {
		tool, err := scanTool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		byID[tool.ID] = tool
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tools: %w", err)
	}

	out := make([]domain.Tool, 0, len(byID))
	for _, id := range ids {
		if tool, ok := byID[id]; ok {
			out = append(out, tool)
		}
	}
	return out, nil
}

func (r *ToolRepository) GetByName(ctx context.Context, name string) (*domain.Tool, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+toolColumns+`
FROM tools
WHERE lower(name) = lower($1)
`, name)

	tool, err := scanTool(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tool %q: %w", name, domain.ErrToolNotFound)
		}
		return nil, fmt.Errorf("get tool by name: %w", err)
	}
	return &tool, nil
}

func (r *ToolRepository) Upsert(ctx context.Context, tool *domain.Tool) error {
	lists, err := marshalToolLists(tool)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO tools (`+toolColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	description = EXCLUDED.description,
	datasheet = EXCLUDED.datasheet,
	categories = EXCLUDED.categories,
	functionality = EXCLUDED.functionality,
	interfaces = EXCLUDED.interfaces,
	user_types = EXCLUDED.user_types,
	deployment = EXCLUDED.deployment,
	price_monthly = EXCLUDED.price_monthly,
	free = EXCLUDED.free,
	updated_at = EXCLUDED.updated_at
`,
		tool.ID, tool.Name, tool.Description, tool.Datasheet,
		lists[0], lists[1], lists[2], lists[3], lists[4],
		tool.PriceMonthly, tool.Free, tool.CreatedAt, tool.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert tool: %w", err)
	}
	return nil
}

func (r *ToolRepository) SetDatasheet(ctx context.Context, id, text string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE tools
SET datasheet = $2, updated_at = $3
WHERE id = $1
`, id, text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set datasheet: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set datasheet rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("tool %s: %w", id, domain.ErrToolNotFound)
	}
	return nil
}

func (r *ToolRepository) SearchStructured(ctx context.Context, filter domain.StructuredFilter) ([]domain.Tool, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultFilterLimit
	}

	listParams := make([]any, 0, 4)
	for _, values := range [][]string{filter.Categories, filter.Interfaces, filter.Deployment, filter.UserTypes} {
		raw, err := marshalStrings(values)
		if err != nil {
			return nil, fmt.Errorf("marshal filter: %w", err)
		}
		listParams = append(listParams, raw)
	}

	query := `
SELECT ` + toolColumns + `
FROM tools
WHERE ` + jsonbOverlap("categories", 1) + `
  AND ` + jsonbOverlap("interfaces", 2) + `
  AND ` + jsonbOverlap("deployment", 3) + `
  AND ` + jsonbOverlap("user_types", 4) + `
  AND ($5::double precision IS NULL OR price_monthly <= $5)
  AND (NOT $6::boolean OR free)
ORDER BY price_monthly ASC, name ASC
LIMIT $7
`

	args := append(listParams, filter.MaxPrice, filter.FreeOnly, limit)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search structured: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Tool, 0, limit)
	for rows.Next() {
		tool, err := scanTool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		out = append(out, tool)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tools: %w", err)
	}
	return out, nil
}

func (r *ToolRepository) ListForReindex(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id
FROM tools
ORDER BY updated_at DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list tools for reindex: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tool id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tool ids: %w", err)
	}
	return ids, nil
}

// Any-overlap on a JSONB list column; an empty filter array means no constraint.
func jsonbOverlap(column string, param int) string {
	return fmt.Sprintf(`(jsonb_array_length($%d::jsonb) = 0 OR EXISTS (
	SELECT 1 FROM jsonb_array_elements_text(%s) have(v)
	JOIN jsonb_array_elements_text($%d::jsonb) want(v) ON lower(have.v) = lower(want.v)))`, param, column, param)
}

func marshalToolLists(tool *domain.Tool) ([5][]byte, error) {
	var out [5][]byte
	for i, values := range [][]string{tool.Categories, tool.Functionality, tool.Interfaces, tool.UserTypes, tool.Deployment} {
		raw, err := marshalStrings(values)
		if err != nil {
			return out, fmt.Errorf("marshal tool lists: %w", err)
		}
		out[i] = raw
	}
	return out, nil
}

func marshalStrings(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

type toolScanner interface {
	Scan(dest ...interface{}) error
}

func scanTool(row toolScanner) (domain.Tool, error) {
	var tool domain.Tool
	var categories, functionality, interfaces, userTypes, deployment []byte

	err := row.Scan(
		&tool.ID,
		&tool.Name,
		&tool.Description,
		&tool.Datasheet,
		&categories,
		&functionality,
		&interfaces,
		&userTypes,
		&deployment,
		&tool.PriceMonthly,
		&tool.Free,
		&tool.CreatedAt,
		&tool.UpdatedAt,
	)
	if err != nil {
		return domain.Tool{}, err
	}

	for _, col := range []struct {
		name string
		raw  []byte
		dst  *[]string
	}{
		{"categories", categories, &tool.Categories},
		{"functionality", functionality, &tool.Functionality},
		{"interfaces", interfaces, &tool.Interfaces},
		{"user_types", userTypes, &tool.UserTypes},
		{"deployment", deployment, &tool.Deployment},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return domain.Tool{}, fmt.Errorf("unmarshal %s: %w", col.name, err)
		}
	}
	return tool, nil
}
