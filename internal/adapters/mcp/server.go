package mcpadapter

import (
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/toolrank-io/toolrank/internal/core/ports"
)

func NewServer(version string, searcher ports.ToolSearcher, tools ports.ToolReader, defaultLimit int, searchTimeout time.Duration) *server.MCPServer {
	s := server.NewMCPServer(
		"toolrank",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	searchTool := NewSearchTool(searcher, defaultLimit, searchTimeout)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	getTool := NewGetTool(tools)
	s.AddTool(getTool.Definition(), getTool.Handle)

	return s
}

func serverInstructions() string {
	return `ToolRank searches a catalog of SaaS and software tools.

Use search_tools with a natural-language description of the task the user
needs a tool for (e.g. "CRM for a small sales team"). Results are ranked by
fused relevance across several retrieval sources; each result carries the
tool id, scores, and per-source attribution. A degraded response still
contains usable results; check metadata.degraded and metadata.errors.

Use get_tool with an id from a search result to fetch the full tool record
(description, categories, platforms, pricing).`
}
