// Package errkit implements the conceptual error kinds of spec.md §7 as
// concrete Go error types, grounded on the teacher's
// domain/service/llm_errors.go LLMErrorKind/ClassifyError pattern.
package errkit

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure for retry/surface decisions (component B in
// spec.md §2).
type Kind int

const (
	KindManifest Kind = iota
	KindProviderExecution
	KindToolExecution
	KindMCPConnection
	KindProviderPayload
	KindVectorEmbedding
)

func (k Kind) String() string {
	switch k {
	case KindManifest:
		return "manifest_error"
	case KindProviderExecution:
		return "provider_execution_error"
	case KindToolExecution:
		return "tool_execution_error"
	case KindMCPConnection:
		return "mcp_connection_error"
	case KindProviderPayload:
		return "provider_payload_error"
	case KindVectorEmbedding:
		return "vector_embedding_error"
	default:
		return "unknown"
	}
}

// IsRetryable reports whether the retry driver (internal/retry) should
// ever retry an error of this kind. Only provider-execution and
// mcp-connection failures are retryable; the driver additionally
// consults ProviderExecutionError.IsRateLimit for the two backoff modes.
func (k Kind) IsRetryable() bool {
	return k == KindProviderExecution || k == KindMCPConnection
}

// ManifestError: unknown provider/tool/server/kind. Fatal to the Run,
// never retried.
type ManifestError struct {
	Kind    string // "provider" | "tool" | "mcp_server" | "route_kind" | ...
	ID      string
	Message string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("[manifest_error] unknown %s %q: %s", e.Kind, e.ID, e.Message)
}

// ProviderExecutionError: HTTP 4xx/5xx, SDK failure, or malformed
// response. Retried by internal/retry per policy.
type ProviderExecutionError struct {
	Provider    string
	StatusCode  int
	IsRateLimit bool
	Body        string
	Cause       error
}

func (e *ProviderExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[provider_execution_error] %s (status %d): %v", e.Provider, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("[provider_execution_error] %s (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

func (e *ProviderExecutionError) Unwrap() error { return e.Cause }

// ToolExecutionError: router/timeout/subprocess/http/mcp failure at the
// tool layer. Callers convert this into a structured tool-result
// {error, message} rather than propagating it.
type ToolExecutionError struct {
	ToolName string
	Message  string
	Cause    error
}

func (e *ToolExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[tool_execution_error] %s: %s: %v", e.ToolName, e.Message, e.Cause)
	}
	return fmt.Sprintf("[tool_execution_error] %s: %s", e.ToolName, e.Message)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }

// MCPConnectionError: connect or protocol failure talking to an MCP
// server. internal/mcp's Pool drops the failed session so the next call
// redials; the failed call itself is not retried.
type MCPConnectionError struct {
	ServerID string
	Message  string
	Cause    error
}

func (e *MCPConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[mcp_connection_error] %s: %s: %v", e.ServerID, e.Message, e.Cause)
	}
	return fmt.Sprintf("[mcp_connection_error] %s: %s", e.ServerID, e.Message)
}

func (e *MCPConnectionError) Unwrap() error { return e.Cause }

// ProviderPayloadError: payload-extension schema mismatch. Fatal; the
// Run aborts before any HTTP request.
type ProviderPayloadError struct {
	Provider string
	Field    string
	Message  string
}

func (e *ProviderPayloadError) Error() string {
	return fmt.Sprintf("[provider_payload_error] %s: field %q: %s", e.Provider, e.Field, e.Message)
}

// VectorEmbeddingError: only fatal for a Run if vector-context injection
// was requested as required.
type VectorEmbeddingError struct {
	Store    string
	Required bool
	Cause    error
}

func (e *VectorEmbeddingError) Error() string {
	return fmt.Sprintf("[vector_embedding_error] %s (required=%v): %v", e.Store, e.Required, e.Cause)
}

func (e *VectorEmbeddingError) Unwrap() error { return e.Cause }

// ClassifyProviderError is a pattern-matching fallback for the case
// where a Compat returns a bare error instead of a typed
// ProviderExecutionError (e.g. straight from an SDK call), grounded on
// the teacher's ClassifyError. It only needs to recover isRateLimit and
// a status code well enough for the retry driver to make its two-mode
// backoff decision.
func ClassifyProviderError(err error, provider string, retryWords []string) *ProviderExecutionError {
	var existing *ProviderExecutionError
	if errors.As(err, &existing) {
		return existing
	}

	msg := strings.ToLower(err.Error())
	isRateLimit := strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests")
	for _, w := range retryWords {
		if w == "" {
			continue
		}
		if strings.Contains(msg, strings.ToLower(w)) {
			isRateLimit = true
			break
		}
	}

	return &ProviderExecutionError{
		Provider:    provider,
		StatusCode:  extractStatusCode(msg),
		IsRateLimit: isRateLimit,
		Body:        err.Error(),
		Cause:       err,
	}
}

var knownStatusCodes = []string{"400", "401", "403", "404", "429", "500", "502", "503", "504", "529"}

func extractStatusCode(lowerErrString string) int {
	for _, code := range knownStatusCodes {
		if strings.Contains(lowerErrString, code) {
			var n int
			fmt.Sscanf(code, "%d", &n)
			return n
		}
	}
	return 0
}
