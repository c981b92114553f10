package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pulse-os/pulse-observer/internal/gateway"
)

// OutcomeTool handles the record_outcome MCP tool.
type OutcomeTool struct {
	base
}

// NewOutcomeTool creates an OutcomeTool.
func NewOutcomeTool(obs Observer, timeout time.Duration) *OutcomeTool {
	return &OutcomeTool{base: newBase(obs, timeout)}
}

// Definition returns the MCP tool definition for record_outcome.
func (t *OutcomeTool) Definition() mcp.Tool {
	return mcp.NewTool("record_outcome",
		mcp.WithDescription(
			"Attach a realized outcome to one of the caller's predictions, or queue an outcome "+
				"for one of the caller's proposals. Recording the same outcome twice is a no-op "+
				"that returns the stored value. Unknown ids fail with not_found.",
		),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Caller identity"),
		),
		mcp.WithString("target_id",
			mcp.Required(),
			mcp.Description("Prediction or proposal id"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("What actually happened"),
		),
		mcp.WithNumber("accuracy",
			mcp.Description("How accurate the prediction turned out, 0 to 1"),
		),
		mcp.WithString("note",
			mcp.Description("Optional short note kept with a proposal outcome. Rejected for prediction targets"),
		),
	)
}

// Handle processes the record_outcome tool call.
func (t *OutcomeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	accuracy, err := floatArg(req, "accuracy")
	if err != nil {
		return invalid("%v", err)
	}

	ctx, cancel := t.callCtx(ctx)
	defer cancel()

	rec, err := t.obs.RecordOutcome(ctx,
		req.GetString("user_id", ""),
		req.GetString("target_id", ""),
		gateway.Outcome{
			Value:    req.GetString("value", ""),
			Accuracy: accuracy,
			Note:     req.GetString("note", ""),
		},
	)
	return respond(rec, err)
}
