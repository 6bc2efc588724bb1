package anthropic

import (
	"encoding/json"

	"github.com/ngoclaw/llmcoordinator/internal/model"
)

// sseEvent mirrors the subset of Anthropic's streaming event shapes
// needed to populate a model.ParsedChunk, grounded on the teacher's
// infrastructure/llm/anthropic/sse.go.
type sseEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Index       int `json:"index"`
	Usage       struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	MessageStartUsage struct {
		InputTokens int `json:"input_tokens"`
	} `json:"message,omitempty"`
}

// parseSSEChunk parses one already-unwrapped `data: {...}` JSON payload
// (the streaming coordinator is responsible for splitting the
// newline-delimited SSE frames and stripping the "data: " prefix /
// "[DONE]" terminator per spec.md §6).
func parseSSEChunk(raw []byte) (model.ParsedChunk, error) {
	var ev sseEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return model.ParsedChunk{}, err
	}

	var out model.ParsedChunk
	switch ev.Type {
	case "content_block_delta":
		switch ev.Delta.Type {
		case "text_delta":
			out.Text = ev.Delta.Text
		case "input_json_delta":
			out.ToolEvents = append(out.ToolEvents, model.ToolArgsDelta{Delta: ev.Delta.PartialJSON})
		}
	case "content_block_start":
		if ev.ContentBlock.Type == "tool_use" {
			out.ToolEvents = append(out.ToolEvents, model.ToolStart{CallID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name})
		}
	case "content_block_stop":
		// No ToolEnd is emitted; internal/streamloop assembles a call's
		// arguments from the ToolArgsDelta fragments that follow its
		// ToolStart.
	case "message_delta":
		if ev.Usage.OutputTokens > 0 {
			out.Usage = &model.TokenUsage{OutputTokens: ev.Usage.OutputTokens}
		}
	case "message_stop":
		out.FinishedWithToolCalls = false
	}
	return out, nil
}
