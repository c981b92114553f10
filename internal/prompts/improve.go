package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ImprovePrompt handles the observer-improve MCP prompt.
// It walks the AI through drafting an improvement proposal for Guardian review.
type ImprovePrompt struct{}

// NewImprovePrompt creates an ImprovePrompt.
func NewImprovePrompt() *ImprovePrompt {
	return &ImprovePrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ImprovePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("observer-improve",
		mcp.WithPromptDescription(
			"Draft an improvement proposal from observed calibration data. "+
				"The proposal is queued for Guardian review; nothing is executed.",
		),
		mcp.WithArgument("user_id",
			mcp.ArgumentDescription("The user the proposal is for"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("focus",
			mcp.ArgumentDescription("What the proposal should address, e.g. 'overconfidence in estimates'"),
		),
	)
}

// Handle processes the observer-improve prompt request.
func (p *ImprovePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	userID := strings.TrimSpace(req.Params.Arguments["user_id"])
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	focus := "the weakest area the calibration data shows"
	if f := strings.TrimSpace(req.Params.Arguments["focus"]); f != "" {
		focus = f
	}

	return &mcp.GetPromptResult{
		Description: "Improvement proposal for " + userID,
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					fmt.Sprintf("I want an improvement proposal for user %q focused on %s.\n\n", userID, focus) +
						"Steps:\n" +
						"1. Run `check_autonomy` for the user. The proposal must not ask for anything above the current tier.\n" +
						"2. Run `analyze_calibration` and use its buckets as evidence.\n" +
						"3. Call `propose_improvement` with a JSON object payload containing " +
						"`title`, `rationale` and `evidence`. Keep it specific and small.\n" +
						"4. Report the returned proposal id and its `pending_review` status.\n\n" +
						"Proposals are reviewed by the Guardian. Do not describe them as applied.",
				),
			},
		},
	}, nil
}
