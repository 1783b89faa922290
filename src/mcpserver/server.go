package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"galmuri-capture/src/apperr"
	"galmuri-capture/src/bridge"
)

// Caller is the part of *bridge.Bridge exposed as MCP tools.
type Caller interface {
	Call(ctx context.Context, method string) (any, error)
}

type toolEntry struct {
	def    mcp.Tool
	method string
}

var toolRegistry = map[string]toolEntry{
	"request_screen_capture": {
		def:    mcp.NewTool("request_screen_capture", mcp.WithDescription("Ask the user for screen capture consent. Reuses a still-valid grant.")),
		method: bridge.MethodRequestScreenCapture,
	},
	"show_overlay": {
		def:    mcp.NewTool("show_overlay", mcp.WithDescription("Show the capture trigger, requesting consent first when none is cached.")),
		method: bridge.MethodShowOverlay,
	},
	"hide_overlay": {
		def:    mcp.NewTool("hide_overlay", mcp.WithDescription("Remove the capture trigger if it is visible.")),
		method: bridge.MethodHideOverlay,
	},
	"check_overlay_permission": {
		def:    mcp.NewTool("check_overlay_permission", mcp.WithDescription("Report whether the capture trigger may be shown.")),
		method: bridge.MethodCheckOverlayPermission,
	},
	"request_overlay_permission": {
		def:    mcp.NewTool("request_overlay_permission", mcp.WithDescription("Open the OS settings page for overlay access when missing.")),
		method: bridge.MethodRequestOverlayPermission,
	},
	"capture_once": {
		def:    mcp.NewTool("capture_once", mcp.WithDescription("Capture the display once and return the PNG as base64.")),
		method: bridge.MethodCaptureOnce,
	},
}

// ToolNames lists the registered tool names.
func ToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// NewServer creates an MCP server with one tool per bridge method.
func NewServer(c Caller, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"galmuri-capture",
		version,
		server.WithToolCapabilities(true),
	)
	for _, entry := range toolRegistry {
		s.AddTool(entry.def, handler(c, entry.method))
	}
	return s
}

// Run serves the tools over stdio until the client disconnects.
func Run(c Caller, version string) error {
	return server.ServeStdio(NewServer(c, version))
}

func handler(c Caller, method string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := c.Call(ctx, method)
		if err != nil {
			return errorResult(err), nil
		}
		return successResult(map[string]any{"result": res})
	}
}

func errorResult(err error) *mcp.CallToolResult {
	e := apperr.From(err)
	payload := map[string]any{
		"error": map[string]any{
			"code":    e.Code,
			"message": e.Message,
			"status":  apperr.HTTPStatus(e.Code),
		},
	}
	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
