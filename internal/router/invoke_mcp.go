package router

import (
	"context"

	"github.com/ngoclaw/llmcoordinator/internal/errkit"
	"github.com/ngoclaw/llmcoordinator/internal/model"
)

// MCPPool is the subset of the consumed MCPPool interface (spec.md §6)
// the mcp invoke kind needs: forwarding a single tool call to a named
// server. Declared locally, mirroring internal/discovery's narrow view,
// to keep internal/router independent of internal/registry.
type MCPPool interface {
	Call(ctx context.Context, serverID, toolName string, args map[string]any) (any, error)
}

// MCPInvoker forwards a tool call to an MCP server by id per spec.md
// §4.8's "mcp" invoke kind. A missing pool or unresolvable server id is
// a fatal configuration error, not a retryable tool failure.
type MCPInvoker struct {
	Pool MCPPool
}

func NewMCPInvoker(pool MCPPool) *MCPInvoker {
	return &MCPInvoker{Pool: pool}
}

func (m *MCPInvoker) Invoke(ctx context.Context, route model.RouteInvoke, toolName, callID string, args map[string]any, ic InvokeContext) (any, error) {
	if m.Pool == nil {
		return nil, &errkit.ManifestError{Kind: "mcp", ID: toolName, Message: "no MCP pool configured"}
	}
	if route.MCPServer == "" {
		return nil, &errkit.ManifestError{Kind: "mcp", ID: toolName, Message: "route has no mcpServer"}
	}
	return m.Pool.Call(ctx, route.MCPServer, toolName, args)
}
