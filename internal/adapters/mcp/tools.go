package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/toolrank-io/toolrank/internal/core/domain"
	"github.com/toolrank-io/toolrank/internal/core/ports"
)

type SearchTool struct {
	searcher     ports.ToolSearcher
	defaultLimit int
	timeout      time.Duration
}

func NewSearchTool(searcher ports.ToolSearcher, defaultLimit int, timeout time.Duration) *SearchTool {
	return &SearchTool{searcher: searcher, defaultLimit: defaultLimit, timeout: timeout}
}

func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("search_tools",
		mcp.WithDescription("Search the tool catalog by describing the task a tool should solve. Returns ranked results with per-source attribution."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural-language description of the task or the kind of tool needed."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results to return."),
		),
	)
}

func (t *SearchTool) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	limit := request.GetInt("limit", t.defaultLimit)
	if limit <= 0 {
		limit = t.defaultLimit
	}

	outcome, err := t.searcher.Search(ctx, domain.SearchRequest{
		Query:   query,
		Limit:   limit,
		Timeout: t.timeout,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	raw, err := json.Marshal(outcome)
	if err != nil {
		return nil, fmt.Errorf("encode search outcome: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}

type GetTool struct {
	tools ports.ToolReader
}

func NewGetTool(tools ports.ToolReader) *GetTool {
	return &GetTool{tools: tools}
}

func (t *GetTool) Definition() mcp.Tool {
	return mcp.NewTool("get_tool",
		mcp.WithDescription("Fetch the full catalog record for one tool by its id, as returned by search_tools."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Tool identifier from a search result."),
		),
	)
}

func (t *GetTool) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(id) == "" {
		return mcp.NewToolResultError("tool id is required"), nil
	}

	tool, err := t.tools.GetTool(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get tool: %v", err)), nil
	}

	raw, err := json.Marshal(tool)
	if err != nil {
		return nil, fmt.Errorf("encode tool: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
