package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/overwatch-obs/overwatch-mcp/internal/config"
	"github.com/overwatch-obs/overwatch-mcp/internal/errors"
	"github.com/overwatch-obs/overwatch-mcp/internal/timerange"
)

type graylogFake struct {
	searchQuery  string
	searchLimit  int
	searchRange  *timerange.ValidatedRange
	searchFields []string
	searchCalls  int
	searchResult map[string]interface{}
	searchErr    error

	fieldsCalls  int
	fieldsResult map[string]interface{}
	fieldsErr    error
}

func (f *graylogFake) Search(_ context.Context, query string, rng *timerange.ValidatedRange, limit int, fields []string) (map[string]interface{}, error) {
	f.searchCalls++
	f.searchQuery = query
	f.searchRange = rng
	f.searchLimit = limit
	f.searchFields = fields
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.searchResult == nil {
		return map[string]interface{}{"messages": []interface{}{}, "total_results": float64(0)}, nil
	}
	return f.searchResult, nil
}

func (f *graylogFake) Fields(_ context.Context) (map[string]interface{}, error) {
	f.fieldsCalls++
	if f.fieldsErr != nil {
		return nil, f.fieldsErr
	}
	return f.fieldsResult, nil
}

func graylogToolConfig() *config.GraylogConfig {
	return &config.GraylogConfig{
		Enabled:               true,
		URL:                   "https://graylog.example.com",
		Token:                 "token",
		TimeoutSeconds:        30,
		MaxTimeRangeHours:     24,
		DefaultTimeRangeHours: 1,
		MaxResults:            1000,
		DefaultResults:        100,
		DefaultQueryFilter:    "environment:production",
	}
}

func searchMessage(fields map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"message": fields}
}

func TestGraylogSearchAppliesDefaultFilter(t *testing.T) {
	fake := &graylogFake{}
	tool := NewGraylogSearchTool(fake, graylogToolConfig(), newTestCaches(true), zap.NewNop())

	res, err := tool.Execute(context.Background(), map[string]interface{}{"query": "level:ERROR"})
	require.NoError(t, err)
	require.False(t, res.IsError)

	assert.Equal(t, "(environment:production) AND (level:ERROR)", fake.searchQuery)

	body := decodeResult(t, res)
	assert.Equal(t, "level:ERROR", body["query"])
	assert.Equal(t, "(environment:production) AND (level:ERROR)", body["effective_query"])
	assert.Equal(t, true, body["filter_applied"])
}

func TestGraylogSearchSkipsFilterWhenEnvScoped(t *testing.T) {
	cases := []string{
		"env:staging level:ERROR",
		"environment:dev",
		"source:api AND staging",
		"message:prod-issue",
	}
	for _, query := range cases {
		fake := &graylogFake{}
		tool := NewGraylogSearchTool(fake, graylogToolConfig(), newTestCaches(true), zap.NewNop())

		res, err := tool.Execute(context.Background(), map[string]interface{}{"query": query})
		require.NoError(t, err)
		require.False(t, res.IsError, "query %q", query)
		assert.Equal(t, query, fake.searchQuery, "query %q must pass through unfiltered", query)
	}
}

func TestGraylogSearchWildcardQueryBecomesFilter(t *testing.T) {
	fake := &graylogFake{}
	tool := NewGraylogSearchTool(fake, graylogToolConfig(), newTestCaches(true), zap.NewNop())

	_, err := tool.Execute(context.Background(), map[string]interface{}{"query": " * "})
	require.NoError(t, err)
	assert.Equal(t, "environment:production", fake.searchQuery)
}

func TestGraylogSearchFilterOptOut(t *testing.T) {
	fake := &graylogFake{}
	tool := NewGraylogSearchTool(fake, graylogToolConfig(), newTestCaches(true), zap.NewNop())

	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"query":              "level:ERROR",
		"include_env_filter": false,
	})
	require.NoError(t, err)
	assert.Equal(t, "level:ERROR", fake.searchQuery)
}

func TestGraylogSearchLimitClamped(t *testing.T) {
	fake := &graylogFake{}
	tool := NewGraylogSearchTool(fake, graylogToolConfig(), newTestCaches(true), zap.NewNop())

	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"query": "level:ERROR",
		"limit": 5000.0,
	})
	require.NoError(t, err)
	assert.Equal(t, 1000, fake.searchLimit)

	_, err = tool.Execute(context.Background(), map[string]interface{}{"query": "level:ERROR"})
	require.NoError(t, err)
	assert.Equal(t, 100, fake.searchLimit, "absent limit falls back to the configured default")
}

func TestGraylogSearchDefaultTimeRange(t *testing.T) {
	fake := &graylogFake{}
	tool := NewGraylogSearchTool(fake, graylogToolConfig(), newTestCaches(true), zap.NewNop())

	_, err := tool.Execute(context.Background(), map[string]interface{}{"query": "level:ERROR"})
	require.NoError(t, err)

	require.NotNil(t, fake.searchRange)
	assert.Equal(t, "-1h", fake.searchRange.From.Raw())
	assert.Equal(t, "now", fake.searchRange.To.Raw())
}

func TestGraylogSearchInvalidTimeRange(t *testing.T) {
	fake := &graylogFake{}
	tool := NewGraylogSearchTool(fake, graylogToolConfig(), newTestCaches(true), zap.NewNop())

	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"query":     "level:ERROR",
		"from_time": "garbage",
	})
	require.NoError(t, err)
	assert.Equal(t, string(errors.CodeInvalidQuery), errorCode(t, res))
	assert.Zero(t, fake.searchCalls, "backend must not be reached for an invalid range")
}

func TestGraylogSearchRangeTooWide(t *testing.T) {
	fake := &graylogFake{}
	tool := NewGraylogSearchTool(fake, graylogToolConfig(), newTestCaches(true), zap.NewNop())

	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"query":     "level:ERROR",
		"from_time": "-3d",
	})
	require.NoError(t, err)
	assert.Equal(t, string(errors.CodeTimeRangeExceeded), errorCode(t, res))
}

func TestGraylogSearchTruncationAndHints(t *testing.T) {
	fake := &graylogFake{
		searchResult: map[string]interface{}{
			"total_results": float64(500),
			"messages": []interface{}{
				searchMessage(map[string]interface{}{"level": "ERROR", "source": "api"}),
				searchMessage(map[string]interface{}{"level": "ERROR", "source": "api"}),
				searchMessage(map[string]interface{}{"level": "WARN", "source": "worker"}),
			},
		},
	}
	tool := NewGraylogSearchTool(fake, graylogToolConfig(), newTestCaches(true), zap.NewNop())

	res, err := tool.Execute(context.Background(), map[string]interface{}{"query": "source:api"})
	require.NoError(t, err)

	body := decodeResult(t, res)
	assert.Equal(t, float64(500), body["total_results"])
	assert.Equal(t, float64(3), body["returned"])
	assert.Equal(t, true, body["truncated"])

	hints, ok := body["_hints"].(map[string]interface{})
	require.True(t, ok)

	tips, _ := hints["analysis_tips"].([]interface{})
	require.NotEmpty(t, tips)
	assert.Contains(t, tips, "Found 2 ERROR level logs - investigate these first")
	assert.Contains(t, tips, "Found 1 WARN level logs - check for degradation patterns")
	assert.Contains(t, tips,
		"Results truncated (3 of 500). Add filters or narrow time range for complete data.")

	filters, _ := hints["suggested_filters"].([]interface{})
	assert.Contains(t, filters, "level:ERROR")
	assert.Contains(t, filters, "source:api")

	levels, ok := hints["level_breakdown"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), levels["ERROR"])
}

func TestGraylogSearchNoResultsHint(t *testing.T) {
	fake := &graylogFake{}
	tool := NewGraylogSearchTool(fake, graylogToolConfig(), newTestCaches(true), zap.NewNop())

	res, err := tool.Execute(context.Background(), map[string]interface{}{"query": "level:ERROR"})
	require.NoError(t, err)

	body := decodeResult(t, res)
	hints := body["_hints"].(map[string]interface{})
	tips, _ := hints["analysis_tips"].([]interface{})
	assert.Equal(t, []interface{}{"No results found. Try broadening your query or time range."}, tips)
}

func TestGraylogSearchLeadingWildcardHint(t *testing.T) {
	fake := &graylogFake{
		searchErr: errors.New(errors.CodeUpstreamServerError, "Graylog API error (500)"),
	}
	tool := NewGraylogSearchTool(fake, graylogToolConfig(), newTestCaches(true), zap.NewNop())

	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"query": "message:*timeout",
	})
	require.NoError(t, err)
	require.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Leading wildcards (*text) often fail in Graylog")
}

func TestGraylogFieldsCaching(t *testing.T) {
	fake := &graylogFake{
		fieldsResult: map[string]interface{}{
			"fields": map[string]interface{}{
				"source":    "string",
				"level":     map[string]interface{}{"type": "long"},
				"timestamp": "date",
			},
		},
	}
	tool := NewGraylogFieldsTool(fake, graylogToolConfig(), newTestCaches(true), zap.NewNop())

	res, err := tool.Execute(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	body := decodeResult(t, res)
	assert.Equal(t, false, body["cached"])
	assert.Equal(t, 1, fake.fieldsCalls)

	res, err = tool.Execute(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	body = decodeResult(t, res)
	assert.Equal(t, true, body["cached"])
	assert.Equal(t, 1, fake.fieldsCalls, "second call must be served from cache")
}

func TestGraylogFieldsPatternFilter(t *testing.T) {
	fake := &graylogFake{
		fieldsResult: map[string]interface{}{
			"fields": map[string]interface{}{
				"HTTP_Method": "string",
				"http_status": map[string]interface{}{"type": "long"},
				"source":      "string",
			},
		},
	}
	tool := NewGraylogFieldsTool(fake, graylogToolConfig(), newTestCaches(false), zap.NewNop())

	res, err := tool.Execute(context.Background(), map[string]interface{}{"pattern": "http_.*"})
	require.NoError(t, err)

	body := decodeResult(t, res)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, float64(2), body["total_available"])
	assert.Equal(t, false, body["truncated"])

	fields, _ := body["fields"].([]interface{})
	require.Len(t, fields, 2)
	// Sorted by name, case sensitively.
	first := fields[0].(map[string]interface{})
	assert.Equal(t, "HTTP_Method", first["name"])
	assert.Equal(t, "string", first["type"])
	second := fields[1].(map[string]interface{})
	assert.Equal(t, "http_status", second["name"])
	assert.Equal(t, "long", second["type"])
}

func TestGraylogFieldsInvalidPattern(t *testing.T) {
	fake := &graylogFake{}
	tool := NewGraylogFieldsTool(fake, graylogToolConfig(), newTestCaches(true), zap.NewNop())

	res, err := tool.Execute(context.Background(), map[string]interface{}{"pattern": "["})
	require.NoError(t, err)
	assert.Equal(t, string(errors.CodeInvalidPattern), errorCode(t, res))
	assert.Zero(t, fake.fieldsCalls)
}

func TestGraylogFieldsLimit(t *testing.T) {
	raw := map[string]interface{}{}
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		raw[name] = "string"
	}
	fake := &graylogFake{fieldsResult: map[string]interface{}{"fields": raw}}
	tool := NewGraylogFieldsTool(fake, graylogToolConfig(), newTestCaches(false), zap.NewNop())

	res, err := tool.Execute(context.Background(), map[string]interface{}{"limit": 2.0})
	require.NoError(t, err)

	body := decodeResult(t, res)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, float64(5), body["total_available"])
	assert.Equal(t, true, body["truncated"])
}
