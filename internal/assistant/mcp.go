package assistant

import (
	"context"

	"github.com/eel-hour/Unified-Security-Assistant/internal/limit"
)

// ToolCaller matches the tool-call surface of the MCP client.
type ToolCaller interface {
	CallTool(ctx context.Context, tool string, arguments map[string]any) (string, error)
}

// mcpHandler guards MCP tool calls with the per-server breaker so one
// assistant cannot pile unbounded requests onto its subprocess.
type mcpHandler struct {
	caller  ToolCaller
	breaker *limit.Breaker
}

func (h *mcpHandler) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if err := h.breaker.Acquire(ctx); err != nil {
		return "", err
	}
	defer h.breaker.Release()
	return h.caller.CallTool(ctx, name, args)
}
