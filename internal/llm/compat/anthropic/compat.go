// Package anthropic is a concrete llm.Compat for the Anthropic Messages
// API, grounded on the teacher's
// infrastructure/llm/anthropic/provider.go: it builds the /v1/messages
// JSON body by hand and parses content blocks back into
// ToolUsePart/TextPart-shaped model types. It also offers an SDK path
// via github.com/anthropics/anthropic-sdk-go; because Compat implements
// llm.SDKCompat, llm.Caller takes that path for every non-streaming call,
// whatever the manifest's sdk flag says — the concrete home for
// spec.md §4.7 step 2's "if the Compat exposes an SDK path" branch.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/ngoclaw/llmcoordinator/internal/llm"
	"github.com/ngoclaw/llmcoordinator/internal/model"
)

const apiVersion = "2023-06-01"

// Compat implements llm.Compat and llm.SDKCompat for Anthropic.
type Compat struct {
	APIKey string
	client *anthropicsdk.Client
}

// New builds an Anthropic Compat. The SDK client is constructed lazily
// on first CallSDK use, so building a Compat never needs an API key.
func New(apiKey string) *Compat {
	return &Compat{APIKey: apiKey}
}

var _ llm.Compat = (*Compat)(nil)
var _ llm.SDKCompat = (*Compat)(nil)

func (c *Compat) GetStreamingFlags() map[string]any {
	return map[string]any{"stream": true}
}

func (c *Compat) SerializeTools(tools []model.UnifiedTool) any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"name":         t.Name,
			"description":  t.Description,
			"input_schema": t.ParametersJSONSchema,
		})
	}
	return out
}

func (c *Compat) SerializeToolChoice(choice *model.ToolChoice) any {
	if choice == nil {
		return nil
	}
	switch choice.Mode {
	case model.ToolChoiceNone:
		return map[string]any{"type": "none"}
	case model.ToolChoiceSingle:
		return map[string]any{"type": "tool", "name": choice.Name}
	case model.ToolChoiceRequired:
		return map[string]any{"type": "any"}
	default:
		return map[string]any{"type": "auto"}
	}
}

func (c *Compat) BuildPayload(modelName string, settings model.ProviderSettings, messages []model.Message, tools []model.UnifiedTool, choice *model.ToolChoice) (llm.Payload, error) {
	maxTokens := 8192
	if settings.MaxTokens != nil {
		maxTokens = *settings.MaxTokens
	}

	payload := llm.Payload{
		"model":      modelName,
		"max_tokens": maxTokens,
	}
	if settings.Temperature != nil {
		payload["temperature"] = *settings.Temperature
	}

	var system string
	var apiMessages []map[string]any
	for _, m := range messages {
		switch m.Role {
		case model.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.TextContent()
		case model.RoleAssistant:
			var blocks []map[string]any
			if text := m.TextContent(); text != "" {
				blocks = append(blocks, map[string]any{"type": "text", "text": text})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, map[string]any{"type": "tool_use", "id": tc.ID, "name": tc.Name, "input": tc.Arguments})
			}
			if len(blocks) > 0 {
				apiMessages = append(apiMessages, map[string]any{"role": "assistant", "content": blocks})
			}
		case model.RoleTool:
			apiMessages = append(apiMessages, map[string]any{
				"role": "user",
				"content": []map[string]any{{
					"type":        "tool_result",
					"tool_use_id": m.ToolCallID,
					"content":     m.TextContent(),
				}},
			})
		default:
			apiMessages = append(apiMessages, map[string]any{
				"role":    "user",
				"content": []map[string]any{{"type": "text", "text": m.TextContent()}},
			})
		}
	}
	if system != "" {
		payload["system"] = system
	}
	payload["messages"] = apiMessages

	if len(tools) > 0 {
		payload["tools"] = c.SerializeTools(tools)
	}
	if tc := c.SerializeToolChoice(choice); tc != nil {
		payload["tool_choice"] = tc
	}

	return payload, nil
}

type apiResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text"`
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *Compat) ParseResponse(raw []byte, modelName string) (*model.LLMResponse, error) {
	var ar apiResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return nil, fmt.Errorf("parse anthropic response: %w", err)
	}

	resp := &model.LLMResponse{
		Model: modelName,
		Role:  model.RoleAssistant,
		Usage: &model.TokenUsage{
			InputTokens:  ar.Usage.InputTokens,
			OutputTokens: ar.Usage.OutputTokens,
			TotalTokens:  ar.Usage.InputTokens + ar.Usage.OutputTokens,
		},
	}

	for _, block := range ar.Content {
		switch block.Type {
		case "text":
			resp.Content = append(resp.Content, model.TextPart{Text: block.Text})
		case "tool_use":
			var args map[string]any
			_ = json.Unmarshal(block.Input, &args)
			resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}
	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = model.FinishToolCalls
	} else {
		resp.FinishReason = model.FinishStop
	}
	return resp, nil
}

func (c *Compat) ParseStreamChunk(chunk []byte) (model.ParsedChunk, error) {
	return parseSSEChunk(chunk)
}

// CallSDK implements llm.SDKCompat using anthropic-sdk-go directly;
// llm.Caller uses it for every non-streaming call to this Compat.
func (c *Compat) CallSDK(ctx context.Context, modelName string, settings model.ProviderSettings, messages []model.Message, tools []model.UnifiedTool, choice *model.ToolChoice) (*model.LLMResponse, error) {
	if c.client == nil {
		client := anthropicsdk.NewClient()
		c.client = &client
	}

	maxTokens := int64(8192)
	if settings.MaxTokens != nil {
		maxTokens = int64(*settings.MaxTokens)
	}

	var sdkMessages []anthropicsdk.MessageParam
	var system string
	for _, m := range messages {
		switch m.Role {
		case model.RoleSystem:
			system += m.TextContent()
		case model.RoleUser:
			sdkMessages = append(sdkMessages, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.TextContent())))
		case model.RoleAssistant:
			sdkMessages = append(sdkMessages, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(m.TextContent())))
		case model.RoleTool:
			sdkMessages = append(sdkMessages, anthropicsdk.NewUserMessage(anthropicsdk.NewToolResultBlock(m.ToolCallID, m.TextContent(), false)))
		}
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(modelName),
		MaxTokens: maxTokens,
		Messages:  sdkMessages,
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	resp := &model.LLMResponse{Model: modelName, Role: model.RoleAssistant}
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			resp.Content = append(resp.Content, model.TextPart{Text: v.Text})
		case anthropicsdk.ToolUseBlock:
			var args map[string]any
			_ = json.Unmarshal(v.Input, &args)
			resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{ID: v.ID, Name: v.Name, Arguments: args})
		}
	}
	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = model.FinishToolCalls
	} else {
		resp.FinishReason = model.FinishStop
	}
	resp.Usage = &model.TokenUsage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	return resp, nil
}
