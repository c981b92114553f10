package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pulse-os/pulse-observer/internal/gateway"
)

// CalibrationTool handles the analyze_calibration MCP tool.
type CalibrationTool struct {
	base
}

// NewCalibrationTool creates a CalibrationTool.
func NewCalibrationTool(obs Observer, timeout time.Duration) *CalibrationTool {
	return &CalibrationTool{base: newBase(obs, timeout)}
}

// Definition returns the MCP tool definition for analyze_calibration.
func (t *CalibrationTool) Definition() mcp.Tool {
	return mcp.NewTool("analyze_calibration",
		mcp.WithDescription(
			"Summarize how well the caller's predictions were calibrated: per-month buckets "+
				"and weighted totals of confidence, accuracy and calibration error, plus an "+
				"assessment (well_calibrated, overconfident, underconfident, insufficient_data). "+
				"Reads only the aggregated calibration view.",
		),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Caller identity"),
		),
		mcp.WithString("prediction_type",
			mcp.Description("Only include this prediction type"),
		),
		mcp.WithString("from",
			mcp.Description("First month to include, YYYY-MM"),
		),
		mcp.WithString("to",
			mcp.Description("Last month to include, YYYY-MM"),
		),
	)
}

// Handle processes the analyze_calibration tool call.
func (t *CalibrationTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := t.callCtx(ctx)
	defer cancel()

	report, err := t.obs.AnalyzeCalibration(ctx, req.GetString("user_id", ""), gateway.CalibrationFilter{
		PredictionType: req.GetString("prediction_type", ""),
		From:           req.GetString("from", ""),
		To:             req.GetString("to", ""),
	})
	return respond(report, err)
}
