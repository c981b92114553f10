package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pulse-os/pulse-observer/internal/policy"
)

// QueryTool handles the query MCP tool.
type QueryTool struct {
	base
}

// NewQueryTool creates a QueryTool.
func NewQueryTool(obs Observer, timeout time.Duration) *QueryTool {
	return &QueryTool{base: newBase(obs, timeout)}
}

// Definition returns the MCP tool definition for query.
func (t *QueryTool) Definition() mcp.Tool {
	return mcp.NewTool("query",
		mcp.WithDescription(
			"Read rows from an allowlisted Omega table. Only safe columns can be returned; "+
				"asking for any other column is denied with the offending names listed. "+
				"User-scoped tables require user_id. Call describe_schema to see tables and safe columns.",
		),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("Table name, e.g. pulse_signals, pulse_goals, pulse_autonomy_levels"),
		),
		mcp.WithString("columns",
			mcp.Description("Comma-separated column names (default: every safe column)"),
		),
		mcp.WithString("user_id",
			mcp.Description("Caller identity; required for every table that is not global"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum rows to return; capped by the server's max query limit"),
		),
	)
}

// Handle processes the query tool call.
func (t *QueryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	table := req.GetString("table", "")
	if table == "" {
		return invalid("'table' is required")
	}
	columns, err := stringsArg(req, "columns")
	if err != nil {
		return invalid("%v", err)
	}

	ctx, cancel := t.callCtx(ctx)
	defer cancel()

	res, err := t.obs.Query(ctx, policy.AccessRequest{
		Table:   table,
		Columns: columns,
		UserID:  req.GetString("user_id", ""),
		Limit:   intArg(req, "limit", 0),
	})
	return respond(res, err)
}
