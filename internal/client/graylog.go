package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/overwatch-obs/overwatch-mcp/internal/config"
	"github.com/overwatch-obs/overwatch-mcp/internal/errors"
	"github.com/overwatch-obs/overwatch-mcp/internal/timerange"
	"github.com/overwatch-obs/overwatch-mcp/internal/tracing"
)

// Graylog is a client for the Graylog search API.
type Graylog struct {
	base   *Client
	config *config.GraylogConfig
	logger *zap.Logger
}

// NewGraylog creates a Graylog client. The configured URL may carry an
// "/api" suffix; it is stripped because request paths include it.
func NewGraylog(cfg *config.GraylogConfig, retry config.ClientConfig, logger *zap.Logger) *Graylog {
	base := New(Options{
		Name:    "graylog",
		BaseURL: normalizeBaseURL(cfg.URL, "/api"),
		Timeout: cfg.Timeout(),
		Headers: map[string]string{
			"Authorization": "Bearer " + cfg.Token,
			"Accept":        "application/json",
		},
		VerifySSL: cfg.VerifySSL,
	}, retry, logger)

	return &Graylog{base: base, config: cfg, logger: logger}
}

// SetMetrics attaches a request recorder to the underlying client.
func (g *Graylog) SetMetrics(r RequestRecorder) {
	g.base.SetMetrics(r)
}

// Search runs a Lucene query over the validated time range. When both
// bounds are relative the Graylog relative endpoint is used with the
// raw range expression; otherwise both bounds go to the absolute
// endpoint as epoch seconds.
func (g *Graylog) Search(ctx context.Context, query string, rng *timerange.ValidatedRange, limit int, fields []string) (map[string]interface{}, error) {
	ctx, span := tracing.APISpan(ctx, "graylog", "search")
	defer span.End()

	params := map[string]string{
		"query": query,
		"limit": strconv.Itoa(min(limit, g.config.MaxResults)),
	}
	if len(fields) > 0 {
		params["fields"] = strings.Join(fields, ",")
	}

	var path string
	if rng.From.IsRelative() && rng.To.IsRelative() {
		path = "/api/search/universal/relative"
		params["range"] = rng.From.Raw()
	} else {
		path = "/api/search/universal/absolute"
		params["from"] = strconv.FormatInt(rng.FromTime.Unix(), 10)
		params["to"] = strconv.FormatInt(rng.ToTime.Unix(), 10)
	}

	resp, err := g.base.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: params})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, errors.Newf(errors.CodeUpstreamClientError,
			"failed to decode Graylog response: %s", err.Error()).
			WithDetails(map[string]interface{}{"error": err.Error()})
	}
	return result, nil
}

// Fields fetches the catalog of indexed field names and types.
func (g *Graylog) Fields(ctx context.Context) (map[string]interface{}, error) {
	ctx, span := tracing.APISpan(ctx, "graylog", "fields")
	defer span.End()

	resp, err := g.base.Do(ctx, &Request{Method: http.MethodGet, Path: "/api/system/fields"})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, errors.Newf(errors.CodeUpstreamClientError,
			"failed to decode Graylog fields response: %s", err.Error()).
			WithDetails(map[string]interface{}{"error": err.Error()})
	}
	return result, nil
}

// Health reports whether Graylog answers its load balancer probe.
func (g *Graylog) Health(ctx context.Context) bool {
	resp, err := g.base.Do(ctx, &Request{Method: http.MethodGet, Path: "/api/system/lbstatus"})
	if err != nil {
		g.logger.Debug("Graylog health check failed", zap.Error(err))
		return false
	}
	return resp.StatusCode == http.StatusOK
}

// Close releases client resources.
func (g *Graylog) Close() error {
	return g.base.Close()
}
