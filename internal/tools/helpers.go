// Package tools implements the MCP tool handlers of the observer gateway.
//
// Each tool follows the same pattern:
// - A struct with its dependencies (an Observer) injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a JSON envelope
//
// Domain failures never surface as Go errors: denials and operational
// errors are encoded in the envelope and flagged with IsError.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pulse-os/pulse-observer/internal/gateway"
	"github.com/pulse-os/pulse-observer/internal/policy"
)

// DefaultCallTimeout bounds a single tool call when none is configured.
const DefaultCallTimeout = 15 * time.Second

// Observer is the gateway surface the tools depend on.
type Observer interface {
	Query(ctx context.Context, req policy.AccessRequest) (*gateway.QueryResult, error)
	AnalyzeCalibration(ctx context.Context, userID string, filter gateway.CalibrationFilter) (*gateway.CalibrationReport, error)
	ProposeImprovement(ctx context.Context, userID string, payload json.RawMessage) (*gateway.ProposalRecord, error)
	ProposeTestSignal(ctx context.Context, userID string, payload json.RawMessage) (*gateway.ProposalRecord, error)
	RecordOutcome(ctx context.Context, userID, targetID string, outcome gateway.Outcome) (*gateway.OutcomeRecord, error)
	CheckAutonomy(ctx context.Context, userID string) (*gateway.AutonomyStatus, error)
	DescribeSchema() gateway.SchemaInfo
}

// base carries what every tool needs.
type base struct {
	obs     Observer
	timeout time.Duration
}

func newBase(obs Observer, timeout time.Duration) base {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return base{obs: obs, timeout: timeout}
}

// callCtx derives the per-call deadline from the request context.
func (b base) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

// respond encodes a result or error as an envelope.
func respond(result any, err error) (*mcp.CallToolResult, error) {
	env := gateway.OK(result)
	if err != nil {
		env = gateway.FromError(err)
	}
	data, mErr := json.MarshalIndent(env, "", "  ")
	if mErr != nil {
		return nil, fmt.Errorf("encoding response: %w", mErr)
	}
	res := mcp.NewToolResultText(string(data))
	res.IsError = env.IsFailure()
	return res, nil
}

// invalid builds an invalid_argument envelope for malformed tool input.
func invalid(format string, args ...any) (*mcp.CallToolResult, error) {
	return respond(nil, fmt.Errorf("%w: %s", gateway.ErrInvalidArgument, fmt.Sprintf(format, args...)))
}

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// floatArg extracts an optional number argument.
func floatArg(req mcp.CallToolRequest, key string) (*float64, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	v, ok := raw.(float64)
	if !ok {
		return nil, fmt.Errorf("'%s' must be a number", key)
	}
	return &v, nil
}

// stringsArg accepts either a JSON array of strings or a comma-separated
// string. Blank entries are dropped.
func stringsArg(req mcp.CallToolRequest, key string) ([]string, error) {
	var parts []string
	switch v := req.GetArguments()[key].(type) {
	case nil:
		return nil, nil
	case string:
		parts = strings.Split(v, ",")
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("'%s' must contain only strings", key)
			}
			parts = append(parts, s)
		}
	case []string:
		parts = v
	default:
		return nil, fmt.Errorf("'%s' must be a string or an array of strings", key)
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// objectArg returns a JSON object argument as raw JSON. Hosts may send
// it either as an object or as a JSON-encoded string.
func objectArg(req mcp.CallToolRequest, key string) (json.RawMessage, error) {
	switch v := req.GetArguments()[key].(type) {
	case nil:
		return nil, nil
	case string:
		return json.RawMessage(v), nil
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("'%s': %w", key, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("'%s' must be a JSON object", key)
	}
}
