package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// SchemaTool handles the describe_schema MCP tool.
type SchemaTool struct {
	obs Observer
}

// NewSchemaTool creates a SchemaTool.
func NewSchemaTool(obs Observer) *SchemaTool {
	return &SchemaTool{obs: obs}
}

// Definition returns the MCP tool definition for describe_schema.
func (t *SchemaTool) Definition() mcp.Tool {
	return mcp.NewTool("describe_schema",
		mcp.WithDescription(
			"List every table the query tool serves, its safe columns, whether it is global "+
				"(no user_id needed) and the maximum rows a query returns.",
		),
	)
}

// Handle processes the describe_schema tool call.
func (t *SchemaTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.obs.DescribeSchema(), nil)
}
