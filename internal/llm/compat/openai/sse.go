package openai

import (
	"encoding/json"

	"github.com/ngoclaw/llmcoordinator/internal/model"
)

// sseChunk mirrors OpenAI's Chat Completions streaming delta shape,
// grounded on the teacher's infrastructure/llm/openai/sse.go-equivalent
// pattern applied to OpenAI's schema.
type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func parseSSEChunk(raw []byte) (model.ParsedChunk, error) {
	var sc sseChunk
	if err := json.Unmarshal(raw, &sc); err != nil {
		return model.ParsedChunk{}, err
	}

	var out model.ParsedChunk
	if sc.Usage != nil {
		out.Usage = &model.TokenUsage{
			InputTokens:  sc.Usage.PromptTokens,
			OutputTokens: sc.Usage.CompletionTokens,
			TotalTokens:  sc.Usage.PromptTokens + sc.Usage.CompletionTokens,
		}
	}
	if len(sc.Choices) == 0 {
		return out, nil
	}
	choice := sc.Choices[0]
	out.Text = choice.Delta.Content
	for _, tc := range choice.Delta.ToolCalls {
		if tc.ID != "" {
			out.ToolEvents = append(out.ToolEvents, model.ToolStart{CallID: tc.ID, Name: tc.Function.Name})
		}
		if tc.Function.Arguments != "" {
			out.ToolEvents = append(out.ToolEvents, model.ToolArgsDelta{CallID: tc.ID, Delta: tc.Function.Arguments})
		}
	}
	if choice.FinishReason != nil && *choice.FinishReason == "tool_calls" {
		out.FinishedWithToolCalls = true
	}
	return out, nil
}
