package tools

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/overwatch-obs/overwatch-mcp/internal/cache"
	"github.com/overwatch-obs/overwatch-mcp/internal/client"
	"github.com/overwatch-obs/overwatch-mcp/internal/config"
	"github.com/overwatch-obs/overwatch-mcp/internal/tracing"
)

// InfluxBackend is the subset of the InfluxDB client the tool needs.
type InfluxBackend interface {
	Query(ctx context.Context, query, bucket string) (*client.FluxResult, error)
}

// InfluxDBQueryTool runs Flux queries against allow-listed buckets
type InfluxDBQueryTool struct {
	*BaseTool
	backend InfluxBackend
	config  *config.InfluxDBConfig
}

// NewInfluxDBQueryTool creates a new Flux query tool
func NewInfluxDBQueryTool(backend InfluxBackend, cfg *config.InfluxDBConfig, caches *cache.Manager, logger *zap.Logger) *InfluxDBQueryTool {
	return &InfluxDBQueryTool{
		BaseTool: NewBaseTool(caches, logger),
		backend:  backend,
		config:   cfg,
	}
}

func (t *InfluxDBQueryTool) Name() string { return "influxdb_query" }

func (t *InfluxDBQueryTool) Description() string {
	return "Execute Flux query against InfluxDB 2.x. Allowed buckets: " +
		strings.Join(t.config.AllowedBuckets, ", ") +
		". Structure: from(bucket) |> range(start) |> filter(fn: (r) => condition) |> " +
		"aggregateWindow(). Analyze: look for trends, anomalies, compare time periods"
}

func (t *InfluxDBQueryTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Flux query. Must reference the declared bucket via from(bucket: \"name\")",
			},
			"bucket": map[string]interface{}{
				"type":        "string",
				"description": "Bucket to query. Allowed: " + strings.Join(t.config.AllowedBuckets, ", "),
			},
		},
		"required": []string{"query", "bucket"},
	}
}

func (t *InfluxDBQueryTool) Annotations() *mcp.ToolAnnotations {
	return QueryAnnotations("InfluxDB Flux Query")
}

// Execute runs the Flux query
func (t *InfluxDBQueryTool) Execute(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	ctx, span := tracing.ToolSpan(ctx, t.Name())
	defer span.End()

	query, err := GetStringParam(args, "query", true)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	bucket, err := GetStringParam(args, "bucket", true)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}

	result, err := t.backend.Query(ctx, query, bucket)
	if err != nil {
		tracing.RecordError(span, err)
		return errorResult(err), nil
	}

	// The annotated CSV carries a leading unnamed column; drop it from
	// the response.
	columns := make([]string, 0, len(result.Columns))
	for _, col := range result.Columns {
		if col != "" {
			columns = append(columns, col)
		}
	}

	records := make([]map[string]string, 0, len(result.Records))
	for _, rec := range result.Records {
		cleaned := make(map[string]string, len(rec))
		for k, v := range rec {
			if k != "" {
				cleaned[k] = v
			}
		}
		records = append(records, cleaned)
	}

	response := map[string]interface{}{
		"tables": []map[string]interface{}{
			{
				"columns": columns,
				"records": records,
			},
		},
		"record_count": len(records),
		"truncated":    false,
	}

	tracing.SetToolResult(span, "records", len(records))
	return t.FormatResponse(response)
}
