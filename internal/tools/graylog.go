package tools

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/overwatch-obs/overwatch-mcp/internal/cache"
	"github.com/overwatch-obs/overwatch-mcp/internal/config"
	"github.com/overwatch-obs/overwatch-mcp/internal/errors"
	"github.com/overwatch-obs/overwatch-mcp/internal/timerange"
	"github.com/overwatch-obs/overwatch-mcp/internal/tracing"
)

// GraylogBackend is the subset of the Graylog client the tools need.
type GraylogBackend interface {
	Search(ctx context.Context, query string, rng *timerange.ValidatedRange, limit int, fields []string) (map[string]interface{}, error)
	Fields(ctx context.Context) (map[string]interface{}, error)
}

// envPatterns detect queries that already scope an environment, so the
// default filter must not be stacked on top.
var envPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\benvironment:`),
	regexp.MustCompile(`(?i)\benv:`),
	regexp.MustCompile(`(?i)\b(dev|development|staging|stage|test|qa|uat|preprod|prod|production)\b`),
}

// leadingWildcardPattern matches field queries like message:*timeout,
// which Graylog frequently rejects with a server error.
var leadingWildcardPattern = regexp.MustCompile(`:\*[^*\s]+`)

const leadingWildcardHint = ". HINT: Leading wildcards (*text) often fail in Graylog. " +
	"Try trailing wildcards (text*) or exact matches instead."

// GraylogSearchTool searches Graylog logs
type GraylogSearchTool struct {
	*BaseTool
	backend GraylogBackend
	config  *config.GraylogConfig
}

// NewGraylogSearchTool creates a new Graylog search tool
func NewGraylogSearchTool(backend GraylogBackend, cfg *config.GraylogConfig, caches *cache.Manager, logger *zap.Logger) *GraylogSearchTool {
	return &GraylogSearchTool{
		BaseTool: NewBaseTool(caches, logger),
		backend:  backend,
		config:   cfg,
	}
}

func (t *GraylogSearchTool) Name() string { return "graylog_search" }

func (t *GraylogSearchTool) Description() string {
	desc := "Search Graylog logs. Defaults to production environment. " +
		"When analyzing results: 1) Focus on ERROR/WARN levels first, " +
		"2) Group by source/service to find patterns, 3) Check timestamps for clustering. " +
		"Common queries: level:ERROR, source:appname, message:*exception*"
	if t.config.DefaultQueryFilter != "" {
		desc += fmt.Sprintf(" [Auto-filter: %s]", t.config.DefaultQueryFilter)
	}
	return desc
}

func (t *GraylogSearchTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Graylog search query using Lucene syntax",
			},
			"from_time": map[string]interface{}{
				"type":        "string",
				"description": "Start time: ISO timestamp, relative offset (-1h, -30m, -2d), or 'now'",
				"default":     "-1h",
			},
			"to_time": map[string]interface{}{
				"type":        "string",
				"description": "End time: ISO timestamp, relative offset, or 'now'",
				"default":     "now",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of messages to return",
				"default":     100,
			},
			"fields": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Specific fields to include in results",
			},
			"include_env_filter": map[string]interface{}{
				"type":        "boolean",
				"description": "Apply the configured default environment filter",
				"default":     true,
			},
		},
		"required": []string{"query"},
	}
}

func (t *GraylogSearchTool) Annotations() *mcp.ToolAnnotations {
	return QueryAnnotations("Search Graylog Logs")
}

// Execute performs the Graylog search
func (t *GraylogSearchTool) Execute(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	ctx, span := tracing.ToolSpan(ctx, t.Name())
	defer span.End()

	query, err := GetStringParam(args, "query", true)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	fromTime, err := GetStringParam(args, "from_time", false)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	if fromTime == "" {
		fromTime = fmt.Sprintf("-%dh", t.config.DefaultTimeRangeHours)
	}
	toTime, err := GetStringParam(args, "to_time", false)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	if toTime == "" {
		toTime = "now"
	}
	limit, err := GetIntParamDefault(args, "limit", t.config.DefaultResults)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	if limit > t.config.MaxResults {
		limit = t.config.MaxResults
	}
	fields, err := GetStringSliceParam(args, "fields")
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	includeEnvFilter, err := GetBoolParamDefault(args, "include_env_filter", true)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}

	rng, err := timerange.Validate(fromTime, toTime, t.config.MaxTimeRangeHours,
		timerange.GraylogTolerance, timerange.Options{})
	if err != nil {
		tracing.RecordError(span, err)
		return errorResult(err), nil
	}

	effective := t.applyDefaultFilter(query, includeEnvFilter)
	if leadingWildcardPattern.MatchString(effective) {
		t.logger.Warn("Query contains leading wildcard, Graylog may reject it",
			zap.String("query", effective))
	}

	result, err := t.backend.Search(ctx, effective, rng, limit, fields)
	if err != nil {
		tracing.RecordError(span, err)
		return t.searchErrorResult(err, effective), nil
	}

	messages, _ := result["messages"].([]interface{})
	total := len(messages)
	if v, ok := result["total_results"].(float64); ok {
		total = int(v)
	}

	response := map[string]interface{}{
		"total_results":   total,
		"returned":        len(messages),
		"truncated":       total > len(messages),
		"query":           query,
		"effective_query": effective,
		"filter_applied":  effective != query,
		"time_range": map[string]interface{}{
			"from": rng.FromTime.UTC().Format(time.RFC3339),
			"to":   rng.ToTime.UTC().Format(time.RFC3339),
		},
		"messages": messages,
		"_hints":   generateSearchHints(messages, total, query),
	}

	tracing.SetToolResult(span, "messages", len(messages))
	return t.FormatResponse(response)
}

// applyDefaultFilter combines the configured environment filter with the
// user query unless the query already scopes an environment.
func (t *GraylogSearchTool) applyDefaultFilter(query string, includeEnvFilter bool) string {
	filter := t.config.DefaultQueryFilter
	if !includeEnvFilter || filter == "" {
		return query
	}
	for _, p := range envPatterns {
		if p.MatchString(query) {
			return query
		}
	}
	if strings.TrimSpace(query) == "*" {
		return filter
	}
	return fmt.Sprintf("(%s) AND (%s)", filter, query)
}

// searchErrorResult renders a backend error, appending a wildcard hint
// when the failure shape matches Graylog choking on a leading wildcard.
func (t *GraylogSearchTool) searchErrorResult(err error, effectiveQuery string) *mcp.CallToolResult {
	e, ok := errors.As(err)
	if ok && e.Code == errors.CodeUpstreamServerError && leadingWildcardPattern.MatchString(effectiveQuery) {
		hinted := errors.New(e.Code, e.Message+leadingWildcardHint).WithDetails(e.Details)
		return NewToolResultError(hinted.JSON())
	}
	return errorResult(err)
}

// GraylogFieldsTool lists searchable Graylog fields
type GraylogFieldsTool struct {
	*BaseTool
	backend GraylogBackend
	config  *config.GraylogConfig
}

// NewGraylogFieldsTool creates a new Graylog fields tool
func NewGraylogFieldsTool(backend GraylogBackend, cfg *config.GraylogConfig, caches *cache.Manager, logger *zap.Logger) *GraylogFieldsTool {
	return &GraylogFieldsTool{
		BaseTool: NewBaseTool(caches, logger),
		backend:  backend,
		config:   cfg,
	}
}

func (t *GraylogFieldsTool) Name() string { return "graylog_fields" }

func (t *GraylogFieldsTool) Description() string {
	return "List searchable Graylog fields. Use the pattern parameter to narrow results, " +
		"e.g. 'http_.*' for HTTP fields. Field names feed directly into graylog_search queries."
}

func (t *GraylogFieldsTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Case-insensitive regex to filter field names",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of fields to return",
				"default":     100,
			},
		},
	}
}

func (t *GraylogFieldsTool) Annotations() *mcp.ToolAnnotations {
	return ReadOnlyAnnotations("List Graylog Fields")
}

// Execute lists the fields, served from cache when fresh
func (t *GraylogFieldsTool) Execute(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
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

	const cacheKey = "graylog_fields"
	c := t.caches.GetCache(t.Name())

	cached := false
	var raw map[string]interface{}
	if t.caches.Enabled() {
		if v, ok := c.Get(cacheKey); ok {
			raw, _ = v.(map[string]interface{})
			cached = raw != nil
		}
		t.caches.RecordAccess(t.Name(), cached)
		_, cspan := tracing.CacheSpan(ctx, t.Name(), cached)
		cspan.End()
	}
	if raw == nil {
		resp, err := t.backend.Fields(ctx)
		if err != nil {
			tracing.RecordError(span, err)
			return errorResult(err), nil
		}
		raw, _ = resp["fields"].(map[string]interface{})
		if raw == nil {
			raw = map[string]interface{}{}
		}
		if t.caches.Enabled() {
			c.Set(cacheKey, raw)
		}
	}

	fields := make([]map[string]interface{}, 0, len(raw))
	for name, info := range raw {
		if re != nil && !re.MatchString(name) {
			continue
		}
		fieldType := "unknown"
		switch v := info.(type) {
		case string:
			fieldType = v
		case map[string]interface{}:
			if tv, ok := v["type"].(string); ok {
				fieldType = tv
			}
		}
		fields = append(fields, map[string]interface{}{
			"name": name,
			"type": fieldType,
		})
	}
	sort.Slice(fields, func(i, j int) bool {
		return fields[i]["name"].(string) < fields[j]["name"].(string)
	})

	totalAvailable := len(fields)
	if limit > 0 && len(fields) > limit {
		fields = fields[:limit]
	}

	response := map[string]interface{}{
		"fields":          fields,
		"count":           len(fields),
		"total_available": totalAvailable,
		"pattern":         pattern,
		"truncated":       totalAvailable > len(fields),
		"cached":          cached,
	}

	tracing.SetToolResult(span, "fields", len(fields))
	return t.FormatResponse(response)
}
