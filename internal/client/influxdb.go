package client

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/overwatch-obs/overwatch-mcp/internal/config"
	"github.com/overwatch-obs/overwatch-mcp/internal/errors"
	"github.com/overwatch-obs/overwatch-mcp/internal/tracing"
)

// InfluxDB is a client for the InfluxDB 2.x query API.
type InfluxDB struct {
	base   *Client
	config *config.InfluxDBConfig
	logger *zap.Logger
}

// NewInfluxDB creates an InfluxDB client. A configured "/api/v2" or
// "/api" suffix is stripped because request paths include it.
func NewInfluxDB(cfg *config.InfluxDBConfig, retry config.ClientConfig, logger *zap.Logger) *InfluxDB {
	base := New(Options{
		Name:    "influxdb",
		BaseURL: normalizeBaseURL(cfg.URL, "/api/v2", "/api"),
		Timeout: cfg.Timeout(),
		Headers: map[string]string{
			"Authorization": "Token " + cfg.Token,
			"Accept":        "application/csv",
			"Content-Type":  "application/vnd.flux",
		},
		VerifySSL: cfg.VerifySSL,
	}, retry, logger)

	return &InfluxDB{base: base, config: cfg, logger: logger}
}

// SetMetrics attaches a request recorder to the underlying client.
func (i *InfluxDB) SetMetrics(r RequestRecorder) {
	i.base.SetMetrics(r)
}

// ValidateBucket checks the bucket against the allow-list.
func (i *InfluxDB) ValidateBucket(bucket string) error {
	for _, allowed := range i.config.AllowedBuckets {
		if bucket == allowed {
			return nil
		}
	}
	return errors.Newf(errors.CodeBucketNotAllowed,
		"Bucket '%s' is not in allowed list", bucket).
		WithDetails(map[string]interface{}{
			"requested_bucket": bucket,
			"allowed_buckets":  i.config.AllowedBuckets,
		})
}

// validateQueryBucket requires the query to read from the declared
// bucket. The check is a plain substring match, which rejects queries
// that never name the bucket at all.
func validateQueryBucket(query, bucket string) error {
	spaced := fmt.Sprintf(`from(bucket: %q)`, bucket)
	tight := fmt.Sprintf(`from(bucket:%q)`, bucket)
	if !strings.Contains(query, spaced) && !strings.Contains(query, tight) {
		preview := query
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return errors.Newf(errors.CodeInvalidQuery,
			"Query must reference bucket '%s'", bucket).
			WithDetails(map[string]interface{}{
				"bucket": bucket,
				"query":  preview,
			})
	}
	return nil
}

// FluxResult is a parsed Flux query response. Columns preserve the CSV
// header order, which per-record maps cannot.
type FluxResult struct {
	Columns []string
	Records []map[string]string
}

// Query runs a Flux query against an allow-listed bucket and parses the
// annotated CSV response into records.
func (i *InfluxDB) Query(ctx context.Context, query, bucket string) (*FluxResult, error) {
	if err := i.ValidateBucket(bucket); err != nil {
		return nil, err
	}
	if err := validateQueryBucket(query, bucket); err != nil {
		return nil, err
	}

	ctx, span := tracing.APISpan(ctx, "influxdb", "query")
	defer span.End()

	resp, err := i.base.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   "/api/v2/query",
		Query:  map[string]string{"org": i.config.Org},
		Body:   []byte(query),
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	return parseAnnotatedCSV(string(resp.Body))
}

// parseAnnotatedCSV converts an InfluxDB annotated CSV payload into
// per-row maps keyed by column name. Annotation rows start with "#";
// the first non-annotation row is the header.
func parseAnnotatedCSV(text string) (*FluxResult, error) {
	empty := &FluxResult{Records: []map[string]string{}}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return empty, nil
	}

	lines := strings.Split(trimmed, "\n")
	hasAnnotations := false
	var dataLines []string
	for _, line := range lines {
		if strings.HasPrefix(line, "#") {
			hasAnnotations = true
			continue
		}
		dataLines = append(dataLines, line)
	}

	if !hasAnnotations && len(lines) > 1 {
		return nil, csvParseError("Invalid InfluxDB CSV format: missing annotation rows", text)
	}
	if len(dataLines) < 1 {
		return empty, nil
	}

	hasData := false
	for _, row := range dataLines[1:] {
		if strings.TrimSpace(row) != "" {
			hasData = true
			break
		}
	}
	if !hasData {
		return empty, nil
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(dataLines, "\n")))
	reader.FieldsPerRecord = -1
	parsed, err := reader.ReadAll()
	if err != nil {
		return nil, csvParseError(
			fmt.Sprintf("Failed to parse InfluxDB CSV response: %s", err.Error()), text)
	}
	if len(parsed) < 2 {
		return empty, nil
	}

	columns := parsed[0]
	records := make([]map[string]string, 0, len(parsed)-1)
	for _, row := range parsed[1:] {
		record := make(map[string]string, len(columns))
		for idx, col := range columns {
			if idx < len(row) {
				record[col] = row[idx]
			}
		}
		records = append(records, record)
	}

	return &FluxResult{Columns: columns, Records: records}, nil
}

func csvParseError(message, text string) error {
	preview := text
	if len(preview) > 500 {
		preview = preview[:500]
	}
	return errors.New(errors.CodeUpstreamClientError, message).
		WithDetails(map[string]interface{}{
			"csv_preview": preview,
		})
}

// AllowedBuckets returns the configured bucket allow-list.
func (i *InfluxDB) AllowedBuckets() []string {
	return i.config.AllowedBuckets
}

// Health reports whether InfluxDB answers its health endpoint.
func (i *InfluxDB) Health(ctx context.Context) bool {
	resp, err := i.base.Do(ctx, &Request{
		Method:  http.MethodGet,
		Path:    "/health",
		Headers: map[string]string{"Accept": "application/json"},
	})
	if err != nil {
		i.logger.Debug("InfluxDB health check failed", zap.Error(err))
		return false
	}
	return resp.StatusCode == http.StatusOK
}

// Close releases client resources.
func (i *InfluxDB) Close() error {
	return i.base.Close()
}
