package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ngoclaw/llmcoordinator/internal/errkit"
	"github.com/ngoclaw/llmcoordinator/internal/model"
	"github.com/ngoclaw/llmcoordinator/internal/telemetry"
)

// Caller drives one single-provider invocation per spec.md §4.7,
// grounded on the teacher's infrastructure/llm/anthropic/provider.go
// HTTP-building shape generalized away from one vendor.
type Caller struct {
	HTTPClient *http.Client
	Logger     telemetry.Logger
}

// NewCaller builds a Caller with a default HTTP client, matching the
// teacher's per-provider http.Client construction (reused here across
// all Compats instead of once per provider type).
func NewCaller(logger telemetry.Logger) *Caller {
	return &Caller{HTTPClient: &http.Client{}, Logger: logger}
}

// CallParams bundles spec.md §4.7's "given (...)" invocation inputs.
type CallParams struct {
	Manifest *ProviderManifest
	Compat   Compat
	Model    string
	Settings model.ProviderSettings
	Messages []model.Message
	Tools    []model.UnifiedTool
	Choice   *model.ToolChoice
	Extras   map[string]any
}

// Call performs spec.md §4.7 steps 1-4 for a non-streaming invocation.
func (c *Caller) Call(ctx context.Context, p CallParams) (*model.LLMResponse, error) {
	if sdkCompat, ok := p.Compat.(SDKCompat); ok {
		resp, err := sdkCompat.CallSDK(ctx, p.Model, p.Settings, p.Messages, p.Tools, p.Choice)
		if err != nil {
			return nil, errkit.ClassifyProviderError(err, p.Manifest.ID, p.Manifest.RetryWords)
		}
		resp.Provider = p.Manifest.ID
		return resp, validateShape(resp, p.Manifest.ID)
	}

	payload, err := p.Compat.BuildPayload(p.Model, p.Settings, p.Messages, p.Tools, p.Choice)
	if err != nil {
		return nil, &errkit.ProviderPayloadError{Provider: p.Manifest.ID, Message: err.Error()}
	}

	payload, err = applyExtensions(p.Compat, payload, p.Manifest.PayloadExtensions, p.Extras)
	if err != nil {
		return nil, &errkit.ProviderPayloadError{Provider: p.Manifest.ID, Message: err.Error()}
	}

	url := strings.ReplaceAll(p.Manifest.EndpointURLTemplate, "{model}", p.Model)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &errkit.ProviderPayloadError{Provider: p.Manifest.ID, Message: err.Error()}
	}

	method := p.Manifest.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.Manifest.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &errkit.ProviderExecutionError{Provider: p.Manifest.ID, Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errkit.ProviderExecutionError{Provider: p.Manifest.ID, Cause: err}
	}

	if resp.StatusCode >= 400 {
		return nil, &errkit.ProviderExecutionError{
			Provider:    p.Manifest.ID,
			StatusCode:  resp.StatusCode,
			IsRateLimit: isRateLimitResponse(resp, respBody, p.Manifest.RetryWords),
			Body:        string(respBody),
		}
	}

	llmResp, err := p.Compat.ParseResponse(respBody, p.Model)
	if err != nil {
		return nil, &errkit.ProviderExecutionError{Provider: p.Manifest.ID, Cause: err, Body: string(respBody)}
	}

	normalizeToolCalls(llmResp)
	llmResp.Provider = p.Manifest.ID
	return llmResp, validateShape(llmResp, p.Manifest.ID)
}

// validateShape implements spec.md §4.11's final validation rule, also
// applied here per call since §4.9 step entry re-checks the first
// successful call's shape.
func validateShape(resp *model.LLMResponse, provider string) error {
	if resp == nil || resp.Role != model.RoleAssistant {
		return &errkit.ProviderExecutionError{Provider: provider, Body: "malformed response"}
	}
	return nil
}

func normalizeToolCalls(resp *model.LLMResponse) {
	resp.Role = model.RoleAssistant
	for i := range resp.ToolCalls {
		if resp.ToolCalls[i].Arguments == nil {
			resp.ToolCalls[i].Arguments = map[string]any{}
		}
	}
}

// isRateLimitResponse implements spec.md §4.7 step 3's literal
// definition: isRateLimit is true iff a manifest retryWords entry
// matches the response body or headers, case-insensitively. A manifest
// that wants 429s treated as rate limits lists "429" (or "too many
// requests") in its own retryWords rather than this hard-coding it.
func isRateLimitResponse(resp *http.Response, body []byte, retryWords []string) bool {
	haystack := strings.ToLower(string(body))
	for k, vs := range resp.Header {
		haystack += " " + strings.ToLower(k) + " " + strings.ToLower(strings.Join(vs, " "))
	}
	for _, w := range retryWords {
		if w == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

func applyExtensions(compat Compat, payload Payload, exts []PayloadExtension, extras map[string]any) (Payload, error) {
	if ext, ok := compat.(PayloadExtensionCompat); ok {
		merged, err := ext.ApplyProviderExtensions(payload, extras)
		if err != nil {
			return nil, err
		}
		payload = merged
	}
	for _, pe := range exts {
		if err := injectPath(payload, pe); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

// injectPath applies one declarative PayloadExtension into payload at
// its nested path, honoring MergeUpdate (merge into an existing map) vs
// MergeReplace (overwrite wholesale).
func injectPath(payload Payload, pe PayloadExtension) error {
	if len(pe.Path) == 0 {
		return fmt.Errorf("payload extension has empty path")
	}
	cur := map[string]any(payload)
	for i, key := range pe.Path {
		last := i == len(pe.Path)-1
		if last {
			if pe.Merge == MergeUpdate {
				if existing, ok := cur[key].(map[string]any); ok {
					if incoming, ok := pe.Value.(map[string]any); ok {
						for k, v := range incoming {
							existing[k] = v
						}
						continue
					}
				}
			}
			cur[key] = pe.Value
			continue
		}
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	return nil
}
