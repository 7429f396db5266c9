package tools

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overwatch-obs/overwatch-mcp/internal/cache"
)

func newTestCaches(enabled bool) *cache.Manager {
	return cache.NewManager(time.Minute, nil, enabled)
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content must be text")
	return text.Text
}

func decodeResult(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &m))
	return m
}

func errorCode(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.True(t, res.IsError)
	m := decodeResult(t, res)
	inner, ok := m["error"].(map[string]interface{})
	require.True(t, ok, "error result must carry the error envelope")
	code, _ := inner["code"].(string)
	return code
}

func TestGetStringParam(t *testing.T) {
	args := map[string]interface{}{"query": "level:ERROR", "limit": 10.0}

	v, err := GetStringParam(args, "query", true)
	require.NoError(t, err)
	assert.Equal(t, "level:ERROR", v)

	_, err = GetStringParam(args, "missing", true)
	assert.EqualError(t, err, "missing required parameter: missing")

	v, err = GetStringParam(args, "missing", false)
	require.NoError(t, err)
	assert.Empty(t, v)

	_, err = GetStringParam(args, "limit", true)
	assert.EqualError(t, err, "parameter limit must be a string")
}

func TestGetIntParam(t *testing.T) {
	args := map[string]interface{}{"limit": 25.0, "name": "x"}

	v, err := GetIntParam(args, "limit", true)
	require.NoError(t, err)
	assert.Equal(t, 25, v)

	_, err = GetIntParam(args, "name", false)
	assert.Error(t, err)

	v, err = GetIntParamDefault(args, "absent", 100)
	require.NoError(t, err)
	assert.Equal(t, 100, v)
}

func TestGetBoolParamDefault(t *testing.T) {
	args := map[string]interface{}{"flag": false}

	v, err := GetBoolParamDefault(args, "flag", true)
	require.NoError(t, err)
	assert.False(t, v)

	v, err = GetBoolParamDefault(args, "absent", true)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestGetStringSliceParam(t *testing.T) {
	args := map[string]interface{}{
		"fields": []interface{}{"timestamp", "level"},
		"bad":    []interface{}{"ok", 5.0},
	}

	v, err := GetStringSliceParam(args, "fields")
	require.NoError(t, err)
	assert.Equal(t, []string{"timestamp", "level"}, v)

	v, err = GetStringSliceParam(args, "absent")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = GetStringSliceParam(args, "bad")
	assert.Error(t, err)
}

func TestNewToolResultError(t *testing.T) {
	res := NewToolResultError("boom")
	assert.True(t, res.IsError)
	assert.Equal(t, "boom", resultText(t, res))

	res = NewToolResultError("")
	assert.Equal(t, "An unknown error occurred", resultText(t, res))
}
