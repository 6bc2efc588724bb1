// Package mcp implements SPEC_FULL.md §4.15's default MCPPool: one
// stdio-transport session per configured server, speaking MCP via
// github.com/modelcontextprotocol/go-sdk. Session lifecycle is
// lazy-open-on-first-use, reentrant for subsequent sequential calls
// against the same server, and reset (the cached session is dropped, not
// closed, and re-dialed on the next call) on
// any transport-level failure, per spec.md §5. Grounded on the
// structure (not the wire protocol, which the sdk owns) of the
// picoclaw pkg/mcp client's per-server session map with a connect-once
// guard.
package mcp

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/ngoclaw/llmcoordinator/internal/errkit"
	"github.com/ngoclaw/llmcoordinator/internal/model"
	"github.com/ngoclaw/llmcoordinator/internal/telemetry"
)

// ServerConfig is one registry-declared MCP server (command + env).
type ServerConfig struct {
	ID      string
	Command []string
	Env     map[string]string
}

type session struct {
	mu   sync.Mutex
	conn *mcp.ClientSession
}

// Pool is the default MCPPool: dials a subprocess server on first use
// per server id and reuses the session for subsequent calls.
type Pool struct {
	client  *mcp.Client
	servers map[string]ServerConfig
	logger  telemetry.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewPool builds a Pool over the given server configs.
func NewPool(servers []ServerConfig, logger telemetry.Logger) *Pool {
	byID := make(map[string]ServerConfig, len(servers))
	for _, s := range servers {
		byID[s.ID] = s
	}
	return &Pool{
		client:   mcp.NewClient(&mcp.Implementation{Name: "llmcoordinator", Version: "0.1.0"}, nil),
		servers:  byID,
		logger:   logger,
		sessions: map[string]*session{},
	}
}

func (p *Pool) sessionFor(id string) (*session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[id]; ok {
		return s, nil
	}
	if _, ok := p.servers[id]; !ok {
		return nil, &errkit.ManifestError{Kind: "mcp_server", ID: id, Message: "unknown mcp server"}
	}
	s := &session{}
	p.sessions[id] = s
	return s, nil
}

// connect dials (or redials, after a prior failure reset conn to nil)
// the subprocess session for serverID.
func (p *Pool) connect(ctx context.Context, serverID string, s *session) error {
	if s.conn != nil {
		return nil
	}
	cfg := p.servers[serverID]
	if len(cfg.Command) == 0 {
		return &errkit.MCPConnectionError{ServerID: serverID, Message: "server has no command"}
	}

	cmd := exec.CommandContext(ctx, cfg.Command[0], cfg.Command[1:]...)
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	transport := &mcp.CommandTransport{Command: cmd}
	conn, err := p.client.Connect(ctx, transport, nil)
	if err != nil {
		return &errkit.MCPConnectionError{ServerID: serverID, Message: "connect failed", Cause: err}
	}
	s.conn = conn
	return nil
}

// ListTools satisfies internal/discovery.MCPPool.
func (p *Pool) ListTools(ctx context.Context, serverID string) ([]model.UnifiedTool, error) {
	s, err := p.sessionFor(serverID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := p.connect(ctx, serverID, s); err != nil {
		return nil, err
	}

	result, err := s.conn.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		s.conn = nil // reset on failure; next call redials
		return nil, &errkit.MCPConnectionError{ServerID: serverID, Message: "list tools failed", Cause: err}
	}

	out := make([]model.UnifiedTool, 0, len(result.Tools))
	for _, t := range result.Tools {
		var schema map[string]any
		if t.InputSchema != nil {
			schema = map[string]any{"raw": t.InputSchema}
		}
		out = append(out, model.UnifiedTool{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJSONSchema: schema,
		})
	}
	return out, nil
}

// Call satisfies internal/router.MCPPool.
func (p *Pool) Call(ctx context.Context, serverID, toolName string, args map[string]any) (any, error) {
	s, err := p.sessionFor(serverID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := p.connect(ctx, serverID, s); err != nil {
		return nil, err
	}

	result, err := s.conn.CallTool(ctx, &mcp.CallToolParams{Name: toolName, Arguments: args})
	if err != nil {
		s.conn = nil
		return nil, &errkit.MCPConnectionError{ServerID: serverID, Message: "call tool failed", Cause: err}
	}
	if result.IsError {
		text := ""
		for _, c := range result.Content {
			if tc, ok := c.(*mcp.TextContent); ok {
				text += tc.Text
			}
		}
		return nil, &errkit.ToolExecutionError{ToolName: toolName, Message: "mcp tool returned an error: " + text}
	}

	var texts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	if len(texts) == 1 {
		return texts[0], nil
	}
	return map[string]any{"content": texts}, nil
}

// Close shuts down every open session.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, s := range p.sessions {
		s.mu.Lock()
		if s.conn != nil {
			if err := s.conn.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			s.conn = nil
		}
		s.mu.Unlock()
	}
	return firstErr
}
