package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/overwatch-obs/overwatch-mcp/internal/config"
	"github.com/overwatch-obs/overwatch-mcp/internal/timerange"
)

func graylogTestConfig(url string) *config.GraylogConfig {
	return &config.GraylogConfig{
		Enabled:           true,
		URL:               url,
		Token:             "test-token",
		TimeoutSeconds:    5,
		VerifySSL:         true,
		MaxTimeRangeHours: 24,
		MaxResults:        1000,
		DefaultResults:    100,
	}
}

func TestGraylogSearchRelativeUsesRangeParam(t *testing.T) {
	var gotPath string
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"total_results": 0, "messages": []}`))
	}))
	defer srv.Close()

	g := NewGraylog(graylogTestConfig(srv.URL), testRetry(), zap.NewNop())
	rng, err := timerange.Validate("-1h", "now", 24, timerange.GraylogTolerance, timerange.Options{})
	require.NoError(t, err)

	_, err = g.Search(context.Background(), "level:ERROR", rng, 50, []string{"message", "source"})
	require.NoError(t, err)

	assert.Equal(t, "/api/search/universal/relative", gotPath)
	assert.Equal(t, "-1h", gotQuery.Get("range"))
	assert.Equal(t, "level:ERROR", gotQuery.Get("query"))
	assert.Equal(t, "50", gotQuery.Get("limit"))
	assert.Equal(t, "message,source", gotQuery.Get("fields"))
}

func TestGraylogSearchAbsoluteUsesEpochBounds(t *testing.T) {
	var gotPath string
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"total_results": 0, "messages": []}`))
	}))
	defer srv.Close()

	g := NewGraylog(graylogTestConfig(srv.URL), testRetry(), zap.NewNop())
	rng, err := timerange.Validate(
		"2024-01-27T00:00:00Z", "2024-01-27T06:00:00Z", 24, timerange.GraylogTolerance, timerange.Options{})
	require.NoError(t, err)

	_, err = g.Search(context.Background(), "*", rng, 100, nil)
	require.NoError(t, err)

	assert.Equal(t, "/api/search/universal/absolute", gotPath)
	start := time.Date(2024, 1, 27, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "1706313600", gotQuery.Get("from"))
	assert.Equal(t, "1706335200", gotQuery.Get("to"))
	require.Equal(t, int64(1706313600), start.Unix())
	assert.Empty(t, gotQuery.Get("range"))
}

func TestGraylogSearchClampsLimit(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cfg := graylogTestConfig(srv.URL)
	cfg.MaxResults = 200
	g := NewGraylog(cfg, testRetry(), zap.NewNop())
	rng, err := timerange.Validate("-1h", "now", 24, timerange.GraylogTolerance, timerange.Options{})
	require.NoError(t, err)

	_, err = g.Search(context.Background(), "*", rng, 5000, nil)
	require.NoError(t, err)
	assert.Equal(t, "200", gotQuery.Get("limit"))
}

func TestGraylogURLNormalization(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"fields": {}}`))
	}))
	defer srv.Close()

	// Configured URL already ends in /api; the path must not double it.
	g := NewGraylog(graylogTestConfig(srv.URL+"/api"), testRetry(), zap.NewNop())
	_, err := g.Fields(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/api/system/fields", gotPath)
}

func TestGraylogHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/system/lbstatus", r.URL.Path)
		_, _ = w.Write([]byte("ALIVE"))
	}))
	defer srv.Close()

	g := NewGraylog(graylogTestConfig(srv.URL), testRetry(), zap.NewNop())
	assert.True(t, g.Health(context.Background()))

	down := NewGraylog(graylogTestConfig("http://127.0.0.1:1"), testRetry(), zap.NewNop())
	assert.False(t, down.Health(context.Background()))
}
