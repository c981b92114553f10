// Pulse Observer: the read-mostly MCP gateway over Pulse OS data.
//
// The observer lets an AI host inspect a user's predictions, signals and
// calibration through a column-level access policy, and queue improvement
// proposals for Guardian review. It never executes anything itself.
//
// Usage:
//
//	pulse-observer serve            # Start MCP server (stdio transport)
//	pulse-observer serve --http :8080
//	pulse-observer schema           # Print the table registry as YAML
//	pulse-observer config           # Print the effective configuration
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/pulse-os/pulse-observer/internal/config"
	"github.com/pulse-os/pulse-observer/internal/logging"
	"github.com/pulse-os/pulse-observer/internal/schema"
	observer "github.com/pulse-os/pulse-observer/internal/server"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "serve":
		err = runServe(args)
	case "schema":
		err = runSchema(args, os.Stdout)
	case "config":
		err = runConfig(args, os.Stdout)
	case "--help", "-h", "help":
		printUsage(os.Stdout)
		return
	case "--version", "-v", "version":
		fmt.Printf("pulse-observer v%s\n", observer.Version)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// serveOptions are the flags accepted by "serve".
type serveOptions struct {
	configPath string
	httpAddr   string
	logLevel   string
}

func parseServeFlags(args []string) (serveOptions, error) {
	var opts serveOptions
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file (default $"+config.EnvConfig+")")
	fs.StringVar(&opts.httpAddr, "http", "", "serve streamable HTTP on this address instead of stdio")
	fs.StringVar(&opts.logLevel, "log-level", "", "override the configured log level")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("serve: unexpected arguments %v", fs.Args())
	}
	return opts, nil
}

func runServe(args []string) error {
	opts, err := parseServeFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.httpAddr != "" {
		cfg.HTTP.Addr = opts.httpAddr
	}

	// Logs go to stderr so they never interfere with MCP's stdio
	// transport on stdout.
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// Graceful shutdown on interrupt.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, cleanup, err := observer.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	if cfg.HTTP.Addr != "" {
		return serveHTTP(ctx, s, cfg.HTTP.Addr, logger)
	}

	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(zap.NewStdLog(logger.Named("stdio")))
	err = stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func serveHTTP(ctx context.Context, s *server.MCPServer, addr string, logger *zap.Logger) error {
	httpServer := observer.NewHTTPServer(addr, s, logger.Named("http"))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving streamable HTTP", zap.String("addr", addr), zap.String("path", observer.MCPPath))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// runSchema prints the table registry, so operators can audit exactly
// which columns the observer will ever return.
func runSchema(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("schema", pflag.ContinueOnError)
	safeOnly := fs.Bool("safe-only", false, "omit all_columns from the output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tables := schema.Default().Tables()
	if *safeOnly {
		for i := range tables {
			tables[i].AllColumns = nil
		}
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any{"tables": tables}); err != nil {
		return fmt.Errorf("encoding schema: %w", err)
	}
	return enc.Close()
}

// runConfig prints the effective configuration with secrets redacted.
func runConfig(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to a YAML config file (default $"+config.EnvConfig+")")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if cfg.Brain.Token != "" {
		cfg.Brain.Token = "REDACTED"
	}
	if cfg.Storage.DatabaseURL != "" {
		cfg.Storage.DatabaseURL = redactDSN(cfg.Storage.DatabaseURL)
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `Pulse Observer v%s - read-mostly MCP gateway over Pulse OS data

Usage:
  pulse-observer serve [--config FILE] [--http ADDR] [--log-level LEVEL]
                        Start the MCP server (stdio unless --http is set)
  pulse-observer schema [--safe-only]
                        Print the table registry as YAML
  pulse-observer config [--config FILE]
                        Print the effective configuration
  pulse-observer version

Configuration:
  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "pulse-observer": {
        "command": "pulse-observer",
        "args": ["serve"]
      }
    }
  }

  Settings come from defaults, then the YAML file named by --config or
  $%s, then PULSE_* environment variables.
`, observer.Version, config.EnvConfig)
}
