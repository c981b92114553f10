// Package resources implements the observer's MCP resources.
//
// Resources provide read-only context the host can attach without a tool
// call. They use URI-based addressing (pulse://...).
package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pulse-os/pulse-observer/internal/brain"
	"github.com/pulse-os/pulse-observer/internal/gateway"
)

// Resource URIs.
const (
	SchemaURI         = "pulse://observer/schema"
	AutonomyLevelsURI = "pulse://observer/autonomy-levels"
	BrainIndexURI     = "pulse://observer/brain-modules"
	BrainTemplate     = "pulse://brain/{module}"

	brainPrefix = "pulse://brain/"
)

// SchemaSource provides the gateway's reference data.
type SchemaSource interface {
	DescribeSchema() gateway.SchemaInfo
	AutonomyLevels(ctx context.Context) ([]gateway.AutonomyLevel, error)
}

// BrainSource provides brain modules.
type BrainSource interface {
	Load(ctx context.Context, name string) (*brain.Module, error)
	List(ctx context.Context) ([]string, error)
}

// Handler manages observer resource endpoints.
type Handler struct {
	schema SchemaSource
	brain  BrainSource
}

// NewHandler creates a resource Handler. brain may be nil when no brain
// repository is configured.
func NewHandler(schema SchemaSource, brain BrainSource) *Handler {
	return &Handler{schema: schema, brain: brain}
}

// HasBrain reports whether brain resources should be registered.
func (h *Handler) HasBrain() bool { return h.brain != nil }

// SchemaResource returns the MCP resource definition for the table registry.
func (h *Handler) SchemaResource() mcp.Resource {
	return mcp.NewResource(
		SchemaURI,
		"Observer Schema",
		mcp.WithResourceDescription("Queryable tables, their safe columns and the max query limit"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleSchema returns the registry listing as JSON.
func (h *Handler) HandleSchema(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, h.schema.DescribeSchema())
}

// AutonomyLevelsResource returns the MCP resource definition for tier reference data.
func (h *Handler) AutonomyLevelsResource() mcp.Resource {
	return mcp.NewResource(
		AutonomyLevelsURI,
		"Autonomy Levels",
		mcp.WithResourceDescription("The L0-L3 autonomy tiers and whether each requires approval"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleAutonomyLevels returns the autonomy tiers as JSON.
func (h *Handler) HandleAutonomyLevels(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	levels, err := h.schema.AutonomyLevels(ctx)
	if err != nil {
		return errorResource(req.Params.URI, failureMessage(err)), nil
	}
	return jsonResource(req.Params.URI, levels)
}

// BrainIndexResource returns the MCP resource definition for the module list.
func (h *Handler) BrainIndexResource() mcp.Resource {
	return mcp.NewResource(
		BrainIndexURI,
		"Brain Modules",
		mcp.WithResourceDescription("Names of the coaching brain modules readable at pulse://brain/{module}"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleBrainIndex lists the available brain modules.
func (h *Handler) HandleBrainIndex(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	names, err := h.brain.List(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, names)
}

// BrainTemplateResource returns the resource template for single modules.
func (h *Handler) BrainTemplateResource() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		BrainTemplate,
		"Brain Module",
		mcp.WithTemplateDescription("A coaching brain module (markdown) fetched from the configured repository"),
		mcp.WithTemplateMIMEType("text/markdown"),
	)
}

// HandleBrainModule returns one brain module as markdown.
func (h *Handler) HandleBrainModule(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	name, ok := strings.CutPrefix(req.Params.URI, brainPrefix)
	if !ok {
		return nil, fmt.Errorf("unexpected brain URI %q", req.Params.URI)
	}

	m, err := h.brain.Load(ctx, name)
	if err != nil {
		if errors.Is(err, brain.ErrModuleNotFound) || errors.Is(err, brain.ErrInvalidModuleName) {
			return errorResource(req.Params.URI, err.Error()), nil
		}
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     m.Content,
		},
	}, nil
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// failureMessage renders a gateway error the way tools do, so storage
// causes stay out of resource text.
func failureMessage(err error) string {
	env := gateway.FromError(err)
	if env.Error != nil {
		return env.Error.Message
	}
	return env.Reason
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
