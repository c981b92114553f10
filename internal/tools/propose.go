package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pulse-os/pulse-observer/internal/gateway"
)

// proposeFunc is the gateway call a propose tool delegates to.
type proposeFunc func(ctx context.Context, userID string, payload json.RawMessage) (*gateway.ProposalRecord, error)

// ProposeTool handles propose_improvement and propose_test_signal. Both
// only append to the review queue.
type ProposeTool struct {
	base
	name        string
	description string
	propose     proposeFunc
}

// NewProposeImprovementTool creates the propose_improvement tool.
func NewProposeImprovementTool(obs Observer, timeout time.Duration) *ProposeTool {
	return &ProposeTool{
		base: newBase(obs, timeout),
		name: "propose_improvement",
		description: "Queue an improvement proposal for Guardian review. The proposal is stored with " +
			"status pending_review and nothing is applied or executed. Returns the queued record.",
		propose: obs.ProposeImprovement,
	}
}

// NewProposeTestSignalTool creates the propose_test_signal tool.
func NewProposeTestSignalTool(obs Observer, timeout time.Duration) *ProposeTool {
	return &ProposeTool{
		base: newBase(obs, timeout),
		name: "propose_test_signal",
		description: "Queue a synthetic signal for Guardian review. The signal is not injected into " +
			"the live signal stream; it waits in the review queue with status pending_review.",
		propose: obs.ProposeTestSignal,
	}
}

// Definition returns the MCP tool definition.
func (t *ProposeTool) Definition() mcp.Tool {
	return mcp.NewTool(t.name,
		mcp.WithDescription(t.description),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Caller identity"),
		),
		mcp.WithString("payload",
			mcp.Required(),
			mcp.Description("JSON object describing the proposal"),
		),
	)
}

// Handle processes the tool call.
func (t *ProposeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, err := objectArg(req, "payload")
	if err != nil {
		return invalid("%v", err)
	}

	ctx, cancel := t.callCtx(ctx)
	defer cancel()

	rec, err := t.propose(ctx, req.GetString("user_id", ""), payload)
	return respond(rec, err)
}
