// Package tools provides the MCP tool implementations for the
// observability datasources.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/overwatch-obs/overwatch-mcp/internal/cache"
)

// Tool is the interface every MCP tool implements.
type Tool interface {
	Name() string
	Description() string
	InputSchema() interface{}
	Annotations() *mcp.ToolAnnotations
	Execute(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error)
}

// BaseTool provides common functionality for all tools
type BaseTool struct {
	logger *zap.Logger
	caches *cache.Manager
}

// NewBaseTool creates a new base tool
func NewBaseTool(caches *cache.Manager, logger *zap.Logger) *BaseTool {
	return &BaseTool{
		logger: logger,
		caches: caches,
	}
}

// FormatResponse formats the response as a text/content for MCP
func (t *BaseTool) FormatResponse(result map[string]interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to format response: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, nil
}

// GetStringParam safely gets a string parameter from arguments
func GetStringParam(arguments map[string]interface{}, key string, required bool) (string, error) {
	val, exists := arguments[key]
	if !exists {
		if required {
			return "", fmt.Errorf("missing required parameter: %s", key)
		}
		return "", nil
	}

	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("parameter %s must be a string", key)
	}

	return str, nil
}

// GetIntParam safely gets an integer parameter from arguments
func GetIntParam(arguments map[string]interface{}, key string, required bool) (int, error) {
	val, exists := arguments[key]
	if !exists {
		if required {
			return 0, fmt.Errorf("missing required parameter: %s", key)
		}
		return 0, nil
	}

	// Handle both float64 (JSON numbers) and int
	switch v := val.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("parameter %s must be a number", key)
	}
}

// GetIntParamDefault gets an optional integer parameter, falling back
// to def when absent.
func GetIntParamDefault(arguments map[string]interface{}, key string, def int) (int, error) {
	if _, exists := arguments[key]; !exists {
		return def, nil
	}
	return GetIntParam(arguments, key, false)
}

// GetBoolParam safely gets a boolean parameter from arguments
func GetBoolParam(arguments map[string]interface{}, key string, required bool) (bool, error) {
	val, exists := arguments[key]
	if !exists {
		if required {
			return false, fmt.Errorf("missing required parameter: %s", key)
		}
		return false, nil
	}

	boolVal, ok := val.(bool)
	if !ok {
		return false, fmt.Errorf("parameter %s must be a boolean", key)
	}

	return boolVal, nil
}

// GetBoolParamDefault gets an optional boolean parameter, falling back
// to def when absent.
func GetBoolParamDefault(arguments map[string]interface{}, key string, def bool) (bool, error) {
	if _, exists := arguments[key]; !exists {
		return def, nil
	}
	return GetBoolParam(arguments, key, false)
}

// GetStringSliceParam safely gets a string array parameter from arguments
func GetStringSliceParam(arguments map[string]interface{}, key string) ([]string, error) {
	val, exists := arguments[key]
	if !exists {
		return nil, nil
	}

	items, ok := val.([]interface{})
	if !ok {
		return nil, fmt.Errorf("parameter %s must be an array of strings", key)
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %s must be an array of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}
