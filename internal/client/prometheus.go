package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/overwatch-obs/overwatch-mcp/internal/config"
	"github.com/overwatch-obs/overwatch-mcp/internal/errors"
	"github.com/overwatch-obs/overwatch-mcp/internal/timerange"
	"github.com/overwatch-obs/overwatch-mcp/internal/tracing"
)

// Prometheus is a client for the Prometheus HTTP API.
type Prometheus struct {
	base   *Client
	config *config.PrometheusConfig
	logger *zap.Logger
}

// NewPrometheus creates a Prometheus client. A configured "/api/v1" or
// "/api" suffix is stripped because request paths include it.
func NewPrometheus(cfg *config.PrometheusConfig, retry config.ClientConfig, logger *zap.Logger) *Prometheus {
	base := New(Options{
		Name:      "prometheus",
		BaseURL:   normalizeBaseURL(cfg.URL, "/api/v1", "/api"),
		Timeout:   cfg.Timeout(),
		VerifySSL: cfg.VerifySSL,
	}, retry, logger)

	return &Prometheus{base: base, config: cfg, logger: logger}
}

// SetMetrics attaches a request recorder to the underlying client.
func (p *Prometheus) SetMetrics(r RequestRecorder) {
	p.base.SetMetrics(r)
}

// timeParam renders a time spec the way the Prometheus API expects:
// relative expressions pass through untouched, absolute instants become
// epoch seconds.
func timeParam(spec timerange.TimeSpec) string {
	if spec.IsRelative() {
		return spec.Raw()
	}
	return strconv.FormatFloat(spec.EpochSeconds(time.Now()), 'f', -1, 64)
}

// Query runs an instant PromQL query. evalTime is optional; empty means
// the server's current time.
func (p *Prometheus) Query(ctx context.Context, query, evalTime string) (map[string]interface{}, error) {
	ctx, span := tracing.APISpan(ctx, "prometheus", "query")
	defer span.End()

	params := map[string]string{"query": query}
	if evalTime != "" {
		spec, err := timerange.Parse(evalTime, timerange.Options{AllowEpoch: true})
		if err != nil {
			return nil, err
		}
		params["time"] = timeParam(spec)
	}

	return p.getEnveloped(ctx, "/api/v1/query", params, "Prometheus query failed")
}

// QueryRange runs a PromQL range query. When step is empty it is
// auto-calculated to target roughly 250 data points; relative bounds
// fall back to a 15s step.
func (p *Prometheus) QueryRange(ctx context.Context, query string, rng *timerange.ValidatedRange, step string) (map[string]interface{}, error) {
	ctx, span := tracing.APISpan(ctx, "prometheus", "query_range")
	defer span.End()

	if step == "" {
		step = autoStep(rng)
	}

	params := map[string]string{
		"query": query,
		"start": timeParam(rng.From),
		"end":   timeParam(rng.To),
		"step":  step,
	}

	return p.getEnveloped(ctx, "/api/v1/query_range", params, "Prometheus range query failed")
}

// autoStep picks a resolution giving roughly 250 points across the
// range. The span is only known for absolute bounds; relative bounds
// use the 15s default.
func autoStep(rng *timerange.ValidatedRange) string {
	if rng.From.IsRelative() || rng.To.IsRelative() {
		return "15s"
	}
	rangeSeconds := int(rng.ToTime.Sub(rng.FromTime).Seconds())
	stepSeconds := rangeSeconds / 250
	if stepSeconds < 1 {
		stepSeconds = 1
	}
	return fmt.Sprintf("%ds", stepSeconds)
}

// Metrics fetches all metric names.
func (p *Prometheus) Metrics(ctx context.Context) ([]string, error) {
	ctx, span := tracing.APISpan(ctx, "prometheus", "metrics")
	defer span.End()

	data, err := p.getRaw(ctx, "/api/v1/label/__name__/values", nil, "failed to fetch metrics")
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, errors.Newf(errors.CodeUpstreamClientError,
			"unexpected metric names payload: %s", err.Error()).
			WithDetails(map[string]interface{}{"error": err.Error()})
	}
	return names, nil
}

// envelope is the standard Prometheus API response wrapper.
type envelope struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	ErrorType string          `json:"errorType"`
	Error     string          `json:"error"`
}

func (p *Prometheus) getRaw(ctx context.Context, path string, params map[string]string, failMsg string) (json.RawMessage, error) {
	resp, err := p.base.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: params})
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, errors.Newf(errors.CodeUpstreamClientError,
			"failed to decode Prometheus response: %s", err.Error()).
			WithDetails(map[string]interface{}{"error": err.Error()})
	}

	if env.Status != "success" {
		message := env.Error
		if message == "" {
			message = "Unknown error"
		}
		return nil, errors.Newf(errors.CodeUpstreamClientError, "%s: %s", failMsg, message).
			WithDetails(map[string]interface{}{
				"status":     env.Status,
				"error_type": env.ErrorType,
				"error":      env.Error,
			})
	}
	return env.Data, nil
}

func (p *Prometheus) getEnveloped(ctx context.Context, path string, params map[string]string, failMsg string) (map[string]interface{}, error) {
	data, err := p.getRaw(ctx, path, params, failMsg)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, errors.Newf(errors.CodeUpstreamClientError,
			"unexpected Prometheus data payload: %s", err.Error()).
			WithDetails(map[string]interface{}{"error": err.Error()})
	}
	return result, nil
}

// Health reports whether Prometheus answers its liveness probe.
func (p *Prometheus) Health(ctx context.Context) bool {
	resp, err := p.base.Do(ctx, &Request{Method: http.MethodGet, Path: "/-/healthy"})
	if err != nil {
		p.logger.Debug("Prometheus health check failed", zap.Error(err))
		return false
	}
	return resp.StatusCode == http.StatusOK
}

// Close releases client resources.
func (p *Prometheus) Close() error {
	return p.base.Close()
}
