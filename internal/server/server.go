// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools, prompts and resources that depend on
// abstractions. No business logic lives here, only wiring.
package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/pulse-os/pulse-observer/internal/brain"
	"github.com/pulse-os/pulse-observer/internal/config"
	"github.com/pulse-os/pulse-observer/internal/gateway"
	"github.com/pulse-os/pulse-observer/internal/prompts"
	"github.com/pulse-os/pulse-observer/internal/resources"
	"github.com/pulse-os/pulse-observer/internal/schema"
	"github.com/pulse-os/pulse-observer/internal/storage"
	"github.com/pulse-os/pulse-observer/internal/tools"
	"go.uber.org/zap"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Name is the MCP server name reported to hosts.
const Name = "pulse-observer"

// New creates and configures the MCP server with all tools, prompts,
// and resources registered. This is the single place where all
// dependencies are resolved.
//
// The returned cleanup function closes the storage backend and must be
// called on shutdown (typically via defer). It is always non-nil.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*server.MCPServer, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// --- Create shared dependencies ---

	store, err := storage.Open(ctx, cfg.StorageBackend())
	if err != nil {
		return nil, noop, fmt.Errorf("opening storage: %w", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing storage", zap.Error(err))
		}
	}

	gw, err := gateway.New(gateway.Options{
		Registry:         schema.Default(),
		Store:            store,
		MaxQueryLimit:    cfg.MaxQueryLimit,
		Logger:           logger.Named("gateway"),
		AutonomyCacheTTL: cfg.Autonomy.CacheTTL,
	})
	if err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("creating gateway: %w", err)
	}

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		Name,
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	registerTools(s, gw, cfg)

	// --- Register prompts ---

	briefPrompt := prompts.NewBriefPrompt()
	s.AddPrompt(briefPrompt.Definition(), briefPrompt.Handle)

	improvePrompt := prompts.NewImprovePrompt()
	s.AddPrompt(improvePrompt.Definition(), improvePrompt.Handle)

	// --- Register resources ---
	//
	// The brain is optional: without a repo, or with a bad one, the
	// gateway still serves every tool. We log and skip its resources.

	var brainSource resources.BrainSource
	if cfg.Brain.Repo != "" {
		loader, err := brain.NewLoader(brain.Options{
			Repo:      cfg.Brain.Repo,
			Ref:       cfg.Brain.Ref,
			Dir:       cfg.Brain.Dir,
			Token:     cfg.Brain.Token,
			APIURL:    cfg.Brain.APIURL,
			CacheTTL:  cfg.Brain.CacheTTL,
			UserAgent: Name + "/" + Version,
			Logger:    logger.Named("brain"),
		})
		if err != nil {
			logger.Warn("brain modules disabled", zap.Error(err))
		} else {
			brainSource = loader
		}
	}

	resourceHandler := resources.NewHandler(gw, brainSource)
	s.AddResource(resourceHandler.SchemaResource(), resourceHandler.HandleSchema)
	s.AddResource(resourceHandler.AutonomyLevelsResource(), resourceHandler.HandleAutonomyLevels)
	if resourceHandler.HasBrain() {
		s.AddResource(resourceHandler.BrainIndexResource(), resourceHandler.HandleBrainIndex)
		s.AddResourceTemplate(resourceHandler.BrainTemplateResource(), resourceHandler.HandleBrainModule)
	}

	logger.Info("observer ready",
		zap.String("version", Version),
		zap.String("storage", cfg.Storage.Driver),
		zap.Int("max_query_limit", cfg.MaxQueryLimit),
		zap.Bool("brain", resourceHandler.HasBrain()),
	)

	return s, cleanup, nil
}

func noop() {}

// registerTools adds the observer tools. Every tool except describe_schema
// runs under the configured call timeout.
func registerTools(s *server.MCPServer, obs tools.Observer, cfg *config.Config) {
	queryTool := tools.NewQueryTool(obs, cfg.CallTimeout)
	s.AddTool(queryTool.Definition(), queryTool.Handle)

	calibrationTool := tools.NewCalibrationTool(obs, cfg.CallTimeout)
	s.AddTool(calibrationTool.Definition(), calibrationTool.Handle)

	improvementTool := tools.NewProposeImprovementTool(obs, cfg.CallTimeout)
	s.AddTool(improvementTool.Definition(), improvementTool.Handle)

	testSignalTool := tools.NewProposeTestSignalTool(obs, cfg.CallTimeout)
	s.AddTool(testSignalTool.Definition(), testSignalTool.Handle)

	outcomeTool := tools.NewOutcomeTool(obs, cfg.CallTimeout)
	s.AddTool(outcomeTool.Definition(), outcomeTool.Handle)

	autonomyTool := tools.NewAutonomyTool(obs, cfg.CallTimeout)
	s.AddTool(autonomyTool.Definition(), autonomyTool.Handle)

	schemaTool := tools.NewSchemaTool(obs)
	s.AddTool(schemaTool.Definition(), schemaTool.Handle)
}

// serverInstructions returns the system instructions that tell the AI
// how the observer behaves.
func serverInstructions() string {
	return `# Pulse Observer

You are connected to the Pulse OS observer gateway. It gives you read access
to a user's prediction and signal data and lets you queue proposals for
human review. It cannot execute, apply or approve anything.

## Responses

Every tool returns a JSON envelope with a "kind" field:
- "ok": the call succeeded; the data is in "result".
- "denied": the access policy refused the request. "code" and "reason" say
  why; "invalid_columns" lists columns you are not allowed to read. Do not
  retry a denial with the same arguments.
- "error": an operational failure. Retry only when "error.retryable" is true.

## Reading data

- Call describe_schema first to learn which tables and columns exist.
- Every per-user table requires user_id. Only global reference tables may be
  read without one.
- Request only the columns you need. Results are capped at the max query
  limit and "truncated" tells you when more rows exist.

## Writing

- propose_improvement and propose_test_signal only add items to the
  Guardian review queue with status pending_review.
- record_outcome is idempotent: recording the same outcome twice stores it once.
- Check the user's tier with check_autonomy before proposing anything that
  would change how the system acts for them.
`
}
