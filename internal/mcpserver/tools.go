// Package mcpserver registers MCP tools that expose Google Chat history.
// It adapts the chat package to the MCP SDK's tool handler interface.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	chatapi "google.golang.org/api/chat/v1"

	"github.com/chy168/google-chat-mcp-server/internal/chat"
)

// RegisterTools adds all chat tools to the given MCP server.
func RegisterTools(server *mcp.Server, c *chat.Client) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_chat_spaces",
		Description: "List all Google Chat spaces the authenticated user has access to. Use the returned space name (spaces/...) with list_space_messages.",
	}, listSpacesHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_space_messages",
		Description: "List messages from a Google Chat space with optional date filtering. A start date alone selects that whole day; with an end date the given instants bound the window. Dates are YYYY-MM-DD or RFC 3339.",
	}, listMessagesHandler(c))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// ListSpacesInput has no parameters.
type ListSpacesInput struct{}

// ListMessagesInput holds parameters for list_space_messages.
type ListMessagesInput struct {
	SpaceName string `json:"space_name" jsonschema:"required,space identifier, e.g. spaces/AAAA1234"`
	StartDate string `json:"start_date,omitempty" jsonschema:"optional start date (YYYY-MM-DD or RFC 3339); alone it selects the whole day"`
	EndDate   string `json:"end_date,omitempty" jsonschema:"optional end instant (YYYY-MM-DD or RFC 3339); requires start_date"`
}

// --- Results ---

// SpacesResult is the structured output of list_chat_spaces.
type SpacesResult struct {
	Spaces []*chatapi.Space `json:"spaces"`
}

// MessagesResult is the structured output of list_space_messages. Either
// Messages or Compact is populated, depending on the compact-mode flag.
type MessagesResult struct {
	Messages []*chatapi.Message    `json:"messages,omitempty"`
	Compact  []chat.CompactMessage `json:"compact_messages,omitempty"`
	Count    int                   `json:"count"`
}

// --- Handlers ---

func listSpacesHandler(c *chat.Client) mcp.ToolHandlerFor[ListSpacesInput, *SpacesResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ ListSpacesInput) (*mcp.CallToolResult, *SpacesResult, error) {
		spaces, err := c.ListSpaces(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list chat spaces: %w", err)
		}

		result := &SpacesResult{Spaces: spaces}
		return textResult(result), result, nil
	}
}

func listMessagesHandler(c *chat.Client) mcp.ToolHandlerFor[ListMessagesInput, *MessagesResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ListMessagesInput) (*mcp.CallToolResult, *MessagesResult, error) {
		if input.SpaceName == "" {
			return nil, nil, fmt.Errorf("space_name is required")
		}

		start, end, err := parseDateRange(input.StartDate, input.EndDate)
		if err != nil {
			return nil, nil, err
		}

		messages, err := c.ListMessages(ctx, input.SpaceName, start, end)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list messages in space: %w", err)
		}

		result := &MessagesResult{Count: len(messages)}
		if c.Compact() {
			result.Compact = c.CompactMessages(ctx, messages)
		} else {
			result.Messages = messages
		}

		return textResult(result), result, nil
	}
}

// parseDateRange parses the optional tool date arguments. An end date
// without a start date is rejected; range ordering is validated later by
// the filter builder.
func parseDateRange(startArg, endArg string) (start, end *time.Time, err error) {
	if startArg == "" {
		if endArg != "" {
			return nil, nil, fmt.Errorf("end_date requires start_date")
		}
		return nil, nil, nil
	}

	s, err := chat.ParseDateArg(startArg)
	if err != nil {
		return nil, nil, err
	}
	start = &s

	if endArg != "" {
		e, err := chat.ParseDateArg(endArg)
		if err != nil {
			return nil, nil, err
		}
		end = &e
	}

	return start, end, nil
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
