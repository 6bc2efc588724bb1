package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ngoclaw/llmcoordinator/internal/errkit"
	"github.com/ngoclaw/llmcoordinator/internal/model"
)

const maxHTTPErrorBodyLen = 2000

// HTTPInvoker POSTs the call context to route.URL as JSON per spec.md
// §4.8's "http" invoke kind. A status >= 400 response raises; the
// response body is the tool result (parsed as JSON, falling back to a
// raw string).
type HTTPInvoker struct {
	Client *http.Client
}

func NewHTTPInvoker(client *http.Client) *HTTPInvoker {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPInvoker{Client: client}
}

func (h *HTTPInvoker) Invoke(ctx context.Context, route model.RouteInvoke, toolName, callID string, args map[string]any, ic InvokeContext) (any, error) {
	if route.URL == "" {
		return nil, &errkit.ManifestError{Kind: "http", ID: toolName, Message: "route has no url"}
	}

	body, err := json.Marshal(map[string]any{
		"toolName": toolName,
		"callId":   callID,
		"args":     args,
		"provider": ic.Provider,
		"model":    ic.Model,
		"metadata": ic.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal http invoke context: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, route.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build http invoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range route.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, &errkit.ToolExecutionError{ToolName: toolName, Message: "http invoke request failed", Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errkit.ToolExecutionError{ToolName: toolName, Message: "read http invoke response", Cause: err}
	}

	if resp.StatusCode >= 400 {
		msg := string(respBody)
		if len(msg) > maxHTTPErrorBodyLen {
			msg = msg[:maxHTTPErrorBodyLen] + "...[truncated]"
		}
		return nil, &errkit.ToolExecutionError{
			ToolName: toolName,
			Message:  fmt.Sprintf("http invoke returned status %d: %s", resp.StatusCode, msg),
		}
	}

	var result any
	if err := json.Unmarshal(respBody, &result); err != nil {
		return string(respBody), nil
	}
	return result, nil
}
