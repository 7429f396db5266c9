// Package server provides the MCP server implementation for the
// observability adapter.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/overwatch-obs/overwatch-mcp/internal/cache"
	"github.com/overwatch-obs/overwatch-mcp/internal/client"
	"github.com/overwatch-obs/overwatch-mcp/internal/config"
	"github.com/overwatch-obs/overwatch-mcp/internal/errors"
	"github.com/overwatch-obs/overwatch-mcp/internal/health"
	"github.com/overwatch-obs/overwatch-mcp/internal/metrics"
	"github.com/overwatch-obs/overwatch-mcp/internal/tools"
)

// Datasource names used for tool routing and metrics labels.
const (
	datasourceGraylog    = "graylog"
	datasourcePrometheus = "prometheus"
	datasourceInfluxDB   = "influxdb"
)

var datasourceDisplayNames = map[string]string{
	datasourceGraylog:    "Graylog",
	datasourcePrometheus: "Prometheus",
	datasourceInfluxDB:   "InfluxDB",
}

// Server represents the MCP server
type Server struct {
	mcpServer    *mcp.Server
	config       *config.Config
	logger       *zap.Logger
	metrics      *metrics.Metrics
	caches       *cache.Manager
	version      string
	healthServer *health.Server

	graylog    *client.Graylog
	prometheus *client.Prometheus
	influxdb   *client.InfluxDB

	// available tracks which enabled datasources answered their startup
	// health check. Tools for an unavailable datasource stay registered
	// and report the condition per call, so a backend coming back does
	// not require a server restart.
	available map[string]bool
}

// New creates a new MCP server instance.
func New(cfg *config.Config, env *config.Env, logger *zap.Logger, version string) (*Server, error) {
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "Overwatch MCP Server",
		Version: version,
	}, &mcp.ServerOptions{
		HasTools: true,
	})

	s := &Server{
		mcpServer: mcpServer,
		config:    cfg,
		logger:    logger,
		metrics:   metrics.New(logger),
		caches:    newCacheManager(cfg.Cache),
		version:   version,
		available: make(map[string]bool),
	}

	s.caches.SetRecorder(s.metrics)

	checker := health.New(logger)

	if cfg.Graylog.Enabled {
		s.graylog = client.NewGraylog(&cfg.Graylog, cfg.Client, logger)
		s.graylog.SetMetrics(s.metrics)
		checker.Register(datasourceGraylog, s.graylog)
		s.probeDatasource(datasourceGraylog, s.graylog)
	}
	if cfg.Prometheus.Enabled {
		s.prometheus = client.NewPrometheus(&cfg.Prometheus, cfg.Client, logger)
		s.prometheus.SetMetrics(s.metrics)
		checker.Register(datasourcePrometheus, s.prometheus)
		s.probeDatasource(datasourcePrometheus, s.prometheus)
	}
	if cfg.InfluxDB.Enabled {
		s.influxdb = client.NewInfluxDB(&cfg.InfluxDB, cfg.Client, logger)
		s.influxdb.SetMetrics(s.metrics)
		checker.Register(datasourceInfluxDB, s.influxdb)
		s.probeDatasource(datasourceInfluxDB, s.influxdb)
	}

	anyAvailable := false
	for _, ok := range s.available {
		if ok {
			anyAvailable = true
			break
		}
	}
	if !anyAvailable {
		return nil, fmt.Errorf("no datasources available: all enabled backends failed their health check")
	}

	if env.HealthPort > 0 {
		s.healthServer = health.NewServer(checker, logger, env.HealthPort, "", true)
	}

	s.registerTools()

	return s, nil
}

// newCacheManager builds the per-tool cache manager from configuration.
func newCacheManager(cfg config.CacheConfig) *cache.Manager {
	overrides := make([]cache.TTLOverride, 0, len(cfg.TTLOverrides))
	for _, o := range cfg.TTLOverrides {
		overrides = append(overrides, cache.TTLOverride{Tool: o.Tool, TTLSeconds: o.TTLSeconds})
	}
	defaultTTL := time.Duration(cfg.DefaultTTLSeconds) * time.Second
	return cache.NewManager(defaultTTL, overrides, cfg.Enabled)
}

// probeDatasource runs a startup health check and records the result.
// An unreachable backend is a warning, not a startup failure.
func (s *Server) probeDatasource(name string, ds health.Datasource) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ok := ds.Health(ctx)
	s.available[name] = ok
	if ok {
		s.logger.Info("Datasource available", zap.String("datasource", name))
	} else {
		s.logger.Warn("Datasource enabled but not reachable, its tools will report errors",
			zap.String("datasource", name))
	}
}

// registerTools registers tools for every enabled datasource
func (s *Server) registerTools() {
	if s.graylog != nil {
		s.registerTool(datasourceGraylog,
			tools.NewGraylogSearchTool(s.graylog, &s.config.Graylog, s.caches, s.logger))
		s.registerTool(datasourceGraylog,
			tools.NewGraylogFieldsTool(s.graylog, &s.config.Graylog, s.caches, s.logger))
	}

	if s.prometheus != nil {
		s.registerTool(datasourcePrometheus,
			tools.NewPrometheusQueryTool(s.prometheus, &s.config.Prometheus, s.caches, s.logger))
		s.registerTool(datasourcePrometheus,
			tools.NewPrometheusQueryRangeTool(s.prometheus, &s.config.Prometheus, s.caches, s.logger))
		s.registerTool(datasourcePrometheus,
			tools.NewPrometheusMetricsTool(s.prometheus, &s.config.Prometheus, s.caches, s.logger))
	}

	if s.influxdb != nil {
		s.registerTool(datasourceInfluxDB,
			tools.NewInfluxDBQueryTool(s.influxdb, &s.config.InfluxDB, s.caches, s.logger))
	}

	s.logger.Info("Registered all MCP tools")
}

// registerTool wires one tool into the MCP server with availability
// gating and metrics tracking.
func (s *Server) registerTool(datasource string, t tools.Tool) {
	toolName := t.Name()

	mcpTool := &mcp.Tool{
		Name:        toolName,
		Description: t.Description(),
		InputSchema: t.InputSchema(),
		Annotations: t.Annotations(),
	}

	handler := func(ctx context.Context, request *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()

		if !s.available[datasource] {
			s.metrics.RecordToolExecution(toolName, false, time.Since(start))
			unavailable := errors.Newf(errors.CodeDatasourceUnavailable,
				"%s datasource is not available", datasourceDisplayNames[datasource])
			return tools.NewToolResultError(unavailable.JSON()), nil
		}

		var args map[string]interface{}
		if len(request.Params.Arguments) > 0 {
			if err := json.Unmarshal(request.Params.Arguments, &args); err != nil {
				s.metrics.RecordToolExecution(toolName, false, time.Since(start))
				return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
			}
		}

		result, err := t.Execute(ctx, args)
		success := err == nil && (result == nil || !result.IsError)
		s.metrics.RecordToolExecution(toolName, success, time.Since(start))

		return result, err
	}

	s.mcpServer.AddTool(mcpTool, handler)
	s.logger.Debug("Registered tool",
		zap.String("tool", mcpTool.Name),
		zap.String("datasource", datasource),
	)
}

// SetAvailable overrides a datasource's availability flag.
func (s *Server) SetAvailable(datasource string, available bool) {
	s.available[datasource] = available
}

// Start starts the MCP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting MCP server",
		zap.String("version", s.version),
		zap.Bool("graylog", s.graylog != nil),
		zap.Bool("prometheus", s.prometheus != nil),
		zap.Bool("influxdb", s.influxdb != nil),
	)

	// Start health HTTP server in background if configured
	if s.healthServer != nil {
		go func() {
			if err := s.healthServer.Start(); err != nil {
				s.logger.Error("Health server error", zap.Error(err))
			}
		}()
		s.healthServer.SetReady(true)
	}

	defer func() {
		// Log final metrics on shutdown
		s.metrics.LogStats()

		if s.healthServer != nil {
			s.healthServer.SetReady(false)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.healthServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("Failed to shutdown health server", zap.Error(err))
			}
		}

		s.closeClients()
	}()

	// Start serving using stdio transport
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) closeClients() {
	if s.graylog != nil {
		if err := s.graylog.Close(); err != nil {
			s.logger.Error("Failed to close Graylog client", zap.Error(err))
		}
	}
	if s.prometheus != nil {
		if err := s.prometheus.Close(); err != nil {
			s.logger.Error("Failed to close Prometheus client", zap.Error(err))
		}
	}
	if s.influxdb != nil {
		if err := s.influxdb.Close(); err != nil {
			s.logger.Error("Failed to close InfluxDB client", zap.Error(err))
		}
	}
}

// GetMetrics returns the server's metrics tracker for external access
func (s *Server) GetMetrics() *metrics.Metrics {
	return s.metrics
}
