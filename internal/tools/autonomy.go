package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// AutonomyTool handles the check_autonomy MCP tool.
type AutonomyTool struct {
	base
}

// NewAutonomyTool creates an AutonomyTool.
func NewAutonomyTool(obs Observer, timeout time.Duration) *AutonomyTool {
	return &AutonomyTool{base: newBase(obs, timeout)}
}

// Definition returns the MCP tool definition for check_autonomy.
func (t *AutonomyTool) Definition() mcp.Tool {
	return mcp.NewTool("check_autonomy",
		mcp.WithDescription(
			"Look up the caller's current autonomy tier (L0 Observe to L3 Delegate) and why it "+
				"was granted. Read-only: tiers are never changed through this server.",
		),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Caller identity"),
		),
	)
}

// Handle processes the check_autonomy tool call.
func (t *AutonomyTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := t.callCtx(ctx)
	defer cancel()

	st, err := t.obs.CheckAutonomy(ctx, req.GetString("user_id", ""))
	return respond(st, err)
}
