package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/archai/internal/extractor"
	"github.com/kalambet/archai/internal/session"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Sessions Sessions
	Version  string
}

// NewMCPServer creates an MCP server exposing the design conversation as
// tools and the session list as a resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	s := server.NewMCPServer(
		"archai",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("archai is a home-design assistant. Start a session, answer its questions one message at a time, confirm the summary, then poll get_session until the floor plan is ready."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("start_session",
			mcp.WithDescription("Start a new home-design session. Returns the session with its welcome message."),
		),
		mcpStartSession(deps),
	)

	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Send the user's next message to a design session and return the updated session."),
			mcp.WithString("session_id", mcp.Description("Session ID"), mcp.Required()),
			mcp.WithString("text", mcp.Description("The user's message"), mcp.Required()),
		),
		mcpSendMessage(deps),
	)

	s.AddTool(
		mcp.NewTool("get_session",
			mcp.WithDescription("Return the current stage, requirements and transcript of a session."),
			mcp.WithString("session_id", mcp.Description("Session ID"), mcp.Required()),
		),
		mcpGetSession(deps),
	)

	s.AddTool(
		mcp.NewTool("choose_interior",
			mcp.WithDescription("Answer the offer of an interior rendering once the floor plan is ready."),
			mcp.WithString("session_id", mcp.Description("Session ID"), mcp.Required()),
			mcp.WithBoolean("render", mcp.Description("true to render the interior, false to finish without it"), mcp.Required()),
		),
		mcpChooseInterior(deps),
	)

	s.AddTool(
		mcp.NewTool("explain_rationale",
			mcp.WithDescription("Explain how the collected requirements shape the design. Requires every requirement to be answered."),
			mcp.WithString("session_id", mcp.Description("Session ID"), mcp.Required()),
		),
		mcpExplainRationale(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"archai://sessions",
			"Design Sessions",
			mcp.WithResourceDescription("Every design session, most recently updated first"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSessions(deps),
	)

	return s
}

func mcpStartSession(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap, err := deps.Sessions.Create(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to start session: %v", err)), nil
		}
		return mcpJSON(snap), nil
	}
}

func mcpSendMessage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		text, err := req.RequireString("text")
		if err != nil || strings.TrimSpace(text) == "" {
			return mcpError("text is required"), nil
		}

		snap, err := deps.Sessions.SendMessage(ctx, id, text)
		if errors.Is(err, extractor.ErrExtraction) {
			// The session recorded the failure and stays usable.
			res := mcpJSON(snap)
			res.IsError = true
			return res, nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("send_message failed: %v", err)), nil
		}
		return mcpJSON(snap), nil
	}
}

func mcpGetSession(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		snap, err := deps.Sessions.Get(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("get_session failed: %v", err)), nil
		}
		return mcpJSON(snap), nil
	}
}

func mcpChooseInterior(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		render, err := req.RequireBool("render")
		if err != nil {
			return mcpError("render is required"), nil
		}
		snap, err := deps.Sessions.ChooseInterior(ctx, id, render)
		if err != nil {
			return mcpError(fmt.Sprintf("choose_interior failed: %v", err)), nil
		}
		return mcpJSON(snap), nil
	}
}

func mcpExplainRationale(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		text, err := deps.Sessions.Explain(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("explain_rationale failed: %v", err)), nil
		}
		return mcpText(text), nil
	}
}

func mcpResourceSessions(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		list, err := deps.Sessions.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list sessions: %w", err)
		}
		if list == nil {
			list = []session.Summary{}
		}

		b, err := json.Marshal(list)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sessions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
