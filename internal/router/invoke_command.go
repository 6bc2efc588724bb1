package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/ngoclaw/llmcoordinator/internal/errkit"
	"github.com/ngoclaw/llmcoordinator/internal/model"
)

const maxTruncatedOutputLen = 2000

// CommandInvoker spawns a child process per spec.md §4.8's "command"
// invoke kind: environment merged onto inherited env, JSON context
// streamed to stdin, stdout parsed as JSON.
type CommandInvoker struct{}

func NewCommandInvoker() *CommandInvoker { return &CommandInvoker{} }

func (c *CommandInvoker) Invoke(ctx context.Context, route model.RouteInvoke, toolName, callID string, args map[string]any, ic InvokeContext) (any, error) {
	if len(route.Command) == 0 {
		return nil, &errkit.ManifestError{Kind: "command", ID: toolName, Message: "route has no command"}
	}

	cmd := exec.CommandContext(ctx, route.Command[0], route.Command[1:]...)
	cmd.Env = os.Environ()
	for k, v := range route.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	input, err := json.Marshal(map[string]any{
		"toolName": toolName,
		"callId":   callID,
		"args":     args,
		"provider": ic.Provider,
		"model":    ic.Model,
		"metadata": ic.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal command context: %w", err)
	}
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, &errkit.ToolExecutionError{ToolName: toolName, Message: "command timed out", Cause: ctx.Err()}
		}
		return nil, &errkit.ToolExecutionError{ToolName: toolName, Message: "command exited non-zero: " + stderr.String(), Cause: err}
	}

	var result any
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		raw := stdout.String()
		if len(raw) > maxTruncatedOutputLen {
			raw = raw[:maxTruncatedOutputLen] + "...[truncated]"
		}
		return nil, &errkit.ToolExecutionError{ToolName: toolName, Message: "command stdout is not valid JSON: " + raw, Cause: err}
	}
	return result, nil
}
