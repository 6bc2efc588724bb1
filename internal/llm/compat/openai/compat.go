// Package openai is a concrete llm.Compat for the OpenAI Chat
// Completions wire format, grounded on the teacher's (absent, so
// modeled after) infrastructure/llm/anthropic/provider.go shape applied
// to OpenAI's schema, with an SDK path via github.com/openai/openai-go.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/ngoclaw/llmcoordinator/internal/llm"
	"github.com/ngoclaw/llmcoordinator/internal/model"
)

type Compat struct {
	APIKey string
	client *openaisdk.Client
}

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
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.ParametersJSONSchema,
			},
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
		return "none"
	case model.ToolChoiceSingle:
		return map[string]any{"type": "function", "function": map[string]any{"name": choice.Name}}
	case model.ToolChoiceRequired:
		return "required"
	default:
		return "auto"
	}
}

func (c *Compat) BuildPayload(modelName string, settings model.ProviderSettings, messages []model.Message, tools []model.UnifiedTool, choice *model.ToolChoice) (llm.Payload, error) {
	payload := llm.Payload{"model": modelName}
	if settings.Temperature != nil {
		payload["temperature"] = *settings.Temperature
	}
	if settings.MaxTokens != nil {
		payload["max_tokens"] = *settings.MaxTokens
	}
	if settings.TopP != nil {
		payload["top_p"] = *settings.TopP
	}
	if len(settings.Stop) > 0 {
		payload["stop"] = settings.Stop
	}

	var apiMessages []map[string]any
	for _, m := range messages {
		switch m.Role {
		case model.RoleSystem:
			apiMessages = append(apiMessages, map[string]any{"role": "system", "content": m.TextContent()})
		case model.RoleAssistant:
			msg := map[string]any{"role": "assistant", "content": m.TextContent()}
			if len(m.ToolCalls) > 0 {
				var calls []map[string]any
				for _, tc := range m.ToolCalls {
					args, _ := json.Marshal(tc.Arguments)
					calls = append(calls, map[string]any{
						"id":   tc.ID,
						"type": "function",
						"function": map[string]any{
							"name":      tc.Name,
							"arguments": string(args),
						},
					})
				}
				msg["tool_calls"] = calls
			}
			apiMessages = append(apiMessages, msg)
		case model.RoleTool:
			apiMessages = append(apiMessages, map[string]any{
				"role":         "tool",
				"tool_call_id": m.ToolCallID,
				"content":      m.TextContent(),
			})
		default:
			apiMessages = append(apiMessages, map[string]any{"role": "user", "content": m.TextContent()})
		}
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
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *Compat) ParseResponse(raw []byte, modelName string) (*model.LLMResponse, error) {
	var ar apiResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return nil, fmt.Errorf("parse openai response: %w", err)
	}
	if len(ar.Choices) == 0 {
		return nil, fmt.Errorf("openai response has no choices")
	}
	choice := ar.Choices[0]

	resp := &model.LLMResponse{
		Model: modelName,
		Role:  model.RoleAssistant,
		Usage: &model.TokenUsage{
			InputTokens:  ar.Usage.PromptTokens,
			OutputTokens: ar.Usage.CompletionTokens,
			TotalTokens:  ar.Usage.TotalTokens,
		},
	}
	if choice.Message.Content != "" {
		resp.Content = append(resp.Content, model.TextPart{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
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

// CallSDK implements llm.SDKCompat via openai-go.
func (c *Compat) CallSDK(ctx context.Context, modelName string, settings model.ProviderSettings, messages []model.Message, tools []model.UnifiedTool, choice *model.ToolChoice) (*model.LLMResponse, error) {
	if c.client == nil {
		client := openaisdk.NewClient()
		c.client = &client
	}

	var sdkMessages []openaisdk.ChatCompletionMessageParamUnion
	for _, m := range messages {
		switch m.Role {
		case model.RoleSystem:
			sdkMessages = append(sdkMessages, openaisdk.SystemMessage(m.TextContent()))
		case model.RoleUser:
			sdkMessages = append(sdkMessages, openaisdk.UserMessage(m.TextContent()))
		case model.RoleAssistant:
			sdkMessages = append(sdkMessages, openaisdk.AssistantMessage(m.TextContent()))
		case model.RoleTool:
			sdkMessages = append(sdkMessages, openaisdk.ToolMessage(m.TextContent(), m.ToolCallID))
		}
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    modelName,
		Messages: sdkMessages,
	}
	if settings.Temperature != nil {
		params.Temperature = openaisdk.Float(*settings.Temperature)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai sdk response has no choices")
	}
	msgContent := completion.Choices[0].Message.Content

	resp := &model.LLMResponse{Model: modelName, Role: model.RoleAssistant, FinishReason: model.FinishStop}
	if msgContent != "" {
		resp.Content = append(resp.Content, model.TextPart{Text: msgContent})
	}
	for _, tc := range completion.Choices[0].Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = model.FinishToolCalls
	}
	resp.Usage = &model.TokenUsage{
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:  int(completion.Usage.TotalTokens),
	}
	return resp, nil
}
