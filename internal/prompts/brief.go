// Package prompts implements MCP prompt handlers for the observer.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence of observer tool calls.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// BriefPrompt handles the observer-brief MCP prompt.
// It asks the AI to summarize a user's calibration and autonomy standing.
type BriefPrompt struct{}

// NewBriefPrompt creates a BriefPrompt.
func NewBriefPrompt() *BriefPrompt {
	return &BriefPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *BriefPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("observer-brief",
		mcp.WithPromptDescription(
			"Summarize how well-calibrated a user's predictions are "+
				"and what autonomy tier the system currently holds for them.",
		),
		mcp.WithArgument("user_id",
			mcp.ArgumentDescription("The user to brief on"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("prediction_type",
			mcp.ArgumentDescription("Optional prediction type to focus the calibration summary on"),
		),
	)
}

// Handle processes the observer-brief prompt request.
func (p *BriefPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	userID := strings.TrimSpace(req.Params.Arguments["user_id"])
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	calibrationArgs := fmt.Sprintf("user_id=%q", userID)
	if pt := strings.TrimSpace(req.Params.Arguments["prediction_type"]); pt != "" {
		calibrationArgs += fmt.Sprintf(", prediction_type=%q", pt)
	}

	return &mcp.GetPromptResult{
		Description: "Observer brief for " + userID,
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					fmt.Sprintf("Please run `check_autonomy` with user_id=%q and "+
						"`analyze_calibration` with %s.\n\n", userID, calibrationArgs) +
						"Then:\n" +
						"1. State the current autonomy tier and whether actions at that tier need approval\n" +
						"2. Summarize the calibration assessment, quoting the resolution rate and calibration error\n" +
						"3. Point out the months or confidence buckets that drift the most\n" +
						"4. If the data is insufficient, say so plainly instead of guessing\n\n" +
						"Do not propose changes in this brief. Any envelope with kind `denied` " +
						"or `error` should be reported as-is.",
				),
			},
		},
	}, nil
}
