package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/overwatch-obs/overwatch-mcp/internal/errors"
)

// NewToolResultError creates an error result with the given message.
func NewToolResultError(message string) *mcp.CallToolResult {
	if message == "" {
		message = "An unknown error occurred"
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: message},
		},
		IsError: true,
	}
}

// errorResult renders an error as a tool result. Taxonomy errors render
// as their structured JSON envelope so callers can branch on the code.
func errorResult(err error) *mcp.CallToolResult {
	if e, ok := errors.As(err); ok {
		return NewToolResultError(e.JSON())
	}
	return NewToolResultError(err.Error())
}
