package tools

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/overwatch-obs/overwatch-mcp/internal/cache"
	"github.com/overwatch-obs/overwatch-mcp/internal/config"
	"github.com/overwatch-obs/overwatch-mcp/internal/errors"
	"github.com/overwatch-obs/overwatch-mcp/internal/timerange"
	"github.com/overwatch-obs/overwatch-mcp/internal/tracing"
)

// PrometheusBackend is the subset of the Prometheus client the tools need.
type PrometheusBackend interface {
	Query(ctx context.Context, query, evalTime string) (map[string]interface{}, error)
	QueryRange(ctx context.Context, query string, rng *timerange.ValidatedRange, step string) (map[string]interface{}, error)
	Metrics(ctx context.Context) ([]string, error)
}

// PrometheusQueryTool runs an instant PromQL query
type PrometheusQueryTool struct {
	*BaseTool
	backend PrometheusBackend
	config  *config.PrometheusConfig
}

// NewPrometheusQueryTool creates a new instant query tool
func NewPrometheusQueryTool(backend PrometheusBackend, cfg *config.PrometheusConfig, caches *cache.Manager, logger *zap.Logger) *PrometheusQueryTool {
	return &PrometheusQueryTool{
		BaseTool: NewBaseTool(caches, logger),
		backend:  backend,
		config:   cfg,
	}
}

func (t *PrometheusQueryTool) Name() string { return "prometheus_query" }

func (t *PrometheusQueryTool) Description() string {
	return "Execute an instant PromQL query. Returns the current value of the expression. " +
		"Common patterns: rate(metric[5m]) for rates, sum by (label) (metric) for aggregation, " +
		"metric{label=\"value\"} for filtering."
}

func (t *PrometheusQueryTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "PromQL expression to evaluate",
			},
			"time": map[string]interface{}{
				"type":        "string",
				"description": "Evaluation time: Unix epoch, ISO timestamp, relative offset, or 'now' (default: now)",
			},
		},
		"required": []string{"query"},
	}
}

func (t *PrometheusQueryTool) Annotations() *mcp.ToolAnnotations {
	return QueryAnnotations("Prometheus Instant Query")
}

// Execute evaluates the instant query
func (t *PrometheusQueryTool) Execute(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	ctx, span := tracing.ToolSpan(ctx, t.Name())
	defer span.End()

	query, err := GetStringParam(args, "query", true)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	evalTime, err := GetStringParam(args, "time", false)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}

	result, err := t.backend.Query(ctx, query, evalTime)
	if err != nil {
		tracing.RecordError(span, err)
		return errorResult(err), nil
	}

	tracing.SetToolResult(span, "instant", 1)
	return t.FormatResponse(result)
}

// PrometheusQueryRangeTool runs a ranged PromQL query
type PrometheusQueryRangeTool struct {
	*BaseTool
	backend PrometheusBackend
	config  *config.PrometheusConfig
}

// NewPrometheusQueryRangeTool creates a new range query tool
func NewPrometheusQueryRangeTool(backend PrometheusBackend, cfg *config.PrometheusConfig, caches *cache.Manager, logger *zap.Logger) *PrometheusQueryRangeTool {
	return &PrometheusQueryRangeTool{
		BaseTool: NewBaseTool(caches, logger),
		backend:  backend,
		config:   cfg,
	}
}

func (t *PrometheusQueryRangeTool) Name() string { return "prometheus_query_range" }

func (t *PrometheusQueryRangeTool) Description() string {
	return "Execute a PromQL query over a time range. Returns a matrix of values for trend " +
		"analysis. Use for questions like 'how did X change over the last N hours'. " +
		"Step is auto-selected from the range when omitted."
}

func (t *PrometheusQueryRangeTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "PromQL expression to evaluate",
			},
			"start": map[string]interface{}{
				"type":        "string",
				"description": "Range start: Unix epoch, ISO timestamp, relative offset (-1h), or 'now'",
			},
			"end": map[string]interface{}{
				"type":        "string",
				"description": "Range end: Unix epoch, ISO timestamp, relative offset, or 'now'",
			},
			"step": map[string]interface{}{
				"type":        "string",
				"description": "Resolution step, e.g. 15s, 1m, 1h (default: auto)",
			},
		},
		"required": []string{"query", "start", "end"},
	}
}

func (t *PrometheusQueryRangeTool) Annotations() *mcp.ToolAnnotations {
	return QueryAnnotations("Prometheus Range Query")
}

// Execute evaluates the range query. Results for fully absolute ranges
// are cached; ranges with a relative bound resolve differently on every
// call and are never cached.
func (t *PrometheusQueryRangeTool) Execute(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	ctx, span := tracing.ToolSpan(ctx, t.Name())
	defer span.End()

	query, err := GetStringParam(args, "query", true)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	start, err := GetStringParam(args, "start", true)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	end, err := GetStringParam(args, "end", true)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	step, err := GetStringParam(args, "step", false)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}

	rng, err := timerange.Validate(start, end, t.config.MaxTimeRangeHours, 0,
		timerange.Options{AllowEpoch: true})
	if err != nil {
		tracing.RecordError(span, err)
		return errorResult(err), nil
	}

	cacheable := t.caches.Enabled() &&
		rng.From.Kind() == timerange.KindAbsolute &&
		rng.To.Kind() == timerange.KindAbsolute
	cacheKey := fmt.Sprintf("prom_range:%s:%s:%s:%s", query, start, end, step)
	c := t.caches.GetCache(t.Name())

	if cacheable {
		v, hit := c.Get(cacheKey)
		t.caches.RecordAccess(t.Name(), hit)
		_, cspan := tracing.CacheSpan(ctx, t.Name(), hit)
		cspan.End()
		if hit {
			if result, ok := v.(map[string]interface{}); ok {
				tracing.SetToolResult(span, "range_cached", 1)
				return t.FormatResponse(result)
			}
		}
	}

	result, err := t.backend.QueryRange(ctx, query, rng, step)
	if err != nil {
		tracing.RecordError(span, err)
		return errorResult(err), nil
	}

	if cacheable {
		c.Set(cacheKey, result)
	}

	tracing.SetToolResult(span, "range", 1)
	return t.FormatResponse(result)
}

// PrometheusMetricsTool lists known metric names
type PrometheusMetricsTool struct {
	*BaseTool
	backend PrometheusBackend
	config  *config.PrometheusConfig
}

// NewPrometheusMetricsTool creates a new metric listing tool
func NewPrometheusMetricsTool(backend PrometheusBackend, cfg *config.PrometheusConfig, caches *cache.Manager, logger *zap.Logger) *PrometheusMetricsTool {
	return &PrometheusMetricsTool{
		BaseTool: NewBaseTool(caches, logger),
		backend:  backend,
		config:   cfg,
	}
}

func (t *PrometheusMetricsTool) Name() string { return "prometheus_metrics" }

func (t *PrometheusMetricsTool) Description() string {
	return "List available Prometheus metric names. Use the pattern parameter to narrow " +
		"results, e.g. 'http_.*' for HTTP metrics. Metric names feed directly into " +
		"prometheus_query expressions."
}

func (t *PrometheusMetricsTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Case-insensitive regex to filter metric names",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of metrics to return",
				"default":     100,
			},
		},
	}
}

func (t *PrometheusMetricsTool) Annotations() *mcp.ToolAnnotations {
	return ReadOnlyAnnotations("List Prometheus Metrics")
}

// Execute lists the metric names, served from cache when fresh
func (t *PrometheusMetricsTool) Execute(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	ctx, span := tracing.ToolSpan(ctx, t.Name())
	defer span.End()

	pattern, err := GetStringParam(args, "pattern", false)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	limit, err := GetIntParamDefault(args, "limit", 100)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	if limit > t.config.MaxMetricResults {
		limit = t.config.MaxMetricResults
	}

	var re *regexp.Regexp
	if pattern != "" {
		re, err = regexp.Compile("(?i)" + pattern)
		if err != nil {
			perr := errors.Newf(errors.CodeInvalidPattern, "Invalid regex pattern: %s", pattern).
				WithDetails(map[string]interface{}{"error": err.Error()})
			tracing.RecordError(span, perr)
			return errorResult(perr), nil
		}
	}

	const cacheKey = "prometheus_metrics"
	c := t.caches.GetCache(t.Name())

	cached := false
	var all []string
	if t.caches.Enabled() {
		if v, ok := c.Get(cacheKey); ok {
			all, _ = v.([]string)
			cached = all != nil
		}
		t.caches.RecordAccess(t.Name(), cached)
		_, cspan := tracing.CacheSpan(ctx, t.Name(), cached)
		cspan.End()
	}
	if all == nil {
		all, err = t.backend.Metrics(ctx)
		if err != nil {
			tracing.RecordError(span, err)
			return errorResult(err), nil
		}
		if t.caches.Enabled() {
			c.Set(cacheKey, all)
		}
	}

	metrics := make([]string, 0, len(all))
	for _, name := range all {
		if re != nil && !re.MatchString(name) {
			continue
		}
		metrics = append(metrics, name)
	}
	sort.Strings(metrics)

	totalAvailable := len(metrics)
	if limit > 0 && len(metrics) > limit {
		metrics = metrics[:limit]
	}

	response := map[string]interface{}{
		"metrics":         metrics,
		"count":           len(metrics),
		"total_available": totalAvailable,
		"pattern":         pattern,
		"truncated":       totalAvailable > len(metrics),
		"cached":          cached,
	}

	tracing.SetToolResult(span, "metrics", len(metrics))
	return t.FormatResponse(response)
}
