// Package main implements the Overwatch MCP (Model Context Protocol) server.
//
// The server exposes Graylog log search, Prometheus queries, and InfluxDB
// Flux queries as MCP tools over stdio, making observability backends
// available to Claude Desktop and other MCP clients.
//
// Configuration comes from a YAML file plus environment variables:
//   - OVERWATCH_CONFIG: Path to the YAML configuration file (default: config.yaml)
//   - LOG_LEVEL: Logging verbosity (default: info)
//   - ENVIRONMENT: Set to "production" for production logging
//   - HEALTH_PORT: Port for the health/metrics HTTP server (default: 8080, 0 disables)
//   - TRACING_ENABLED: Set to "true" to emit OpenTelemetry spans to stderr
//
// Example usage:
//
//	export OVERWATCH_CONFIG="/etc/overwatch/config.yaml"
//	./overwatch-mcp
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/overwatch-obs/overwatch-mcp/internal/config"
	"github.com/overwatch-obs/overwatch-mcp/internal/server"
	"github.com/overwatch-obs/overwatch-mcp/internal/tracing"
)

// Build information - set at build time via ldflags
var (
	version = "dev"     // e.g., "v0.3.0" or "dev"
	commit  = "unknown" // Git commit SHA
)

const shutdownTimeout = 10 * time.Second

func main() {
	root := &cobra.Command{
		Use:   "overwatch-mcp",
		Short: "MCP server exposing Graylog, Prometheus, and InfluxDB as LLM tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Flags().Lookup("config").Value.String())
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (commit %s)", version, commit),
	}
	root.Flags().String("config", "", "path to the YAML configuration file (overrides OVERWATCH_CONFIG)")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "overwatch-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run(configFlag string) error {
	// Load .env file if it exists (optional, for development)
	_ = godotenv.Load()

	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	if configFlag != "" {
		env.ConfigFile = configFlag
	}

	logger, err := initLogger(env)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Ignore error on cleanup
	}()

	cfg, err := config.Load(env.ConfigFile)
	if err != nil {
		logger.Error("Failed to load configuration", zap.Error(err))
		return err
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", zap.Error(err))
		return err
	}

	logger.Info("Starting Overwatch MCP Server",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("config", env.ConfigFile),
		zap.String("environment", env.Environment),
	)

	shutdownTracing, err := tracing.InitOTel(tracing.OTelConfig{
		ServiceName:    "overwatch-mcp",
		ServiceVersion: version,
		Environment:    env.Environment,
		Enabled:        env.TracingEnabled,
	})
	if err != nil {
		logger.Error("Failed to initialize tracing", zap.Error(err))
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("Failed to shutdown tracing", zap.Error(err))
		}
	}()

	mcpServer, err := server.New(cfg, env, logger, version)
	if err != nil {
		logger.Error("Failed to create MCP server", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- mcpServer.Start(ctx)
	}()

	// Wait for shutdown signal or server exit
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverDone:
		if err != nil {
			logger.Error("Server error", zap.Error(err))
		}
		return err
	}

	logger.Info("Initiating graceful shutdown", zap.Duration("timeout", shutdownTimeout))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	select {
	case <-serverDone:
		logger.Info("Server shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout exceeded, forcing exit",
			zap.Duration("timeout", shutdownTimeout))
	}

	return nil
}

// initLogger builds a zap logger matching the configured environment.
// Logs always go to stderr; stdout is reserved for the MCP transport.
func initLogger(env *config.Env) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(env.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", env.LogLevel, err)
	}

	var cfg zap.Config
	if env.Environment == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = level
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return cfg.Build()
}
