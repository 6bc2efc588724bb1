package messages

import (
	"testing"

	"github.com/ngoclaw/llmcoordinator/internal/model"
)

func TestPrepareSystemPromptPrepend(t *testing.T) {
	out := Prepare("be terse", []model.Message{{Role: model.RoleUser, Content: []model.ContentPart{model.TextPart{Text: "hi"}}}})
	if out[0].Role != model.RoleSystem {
		t.Fatalf("expected first message to be system")
	}
	tp, ok := out[0].Content[0].(model.TextPart)
	if !ok || tp.Text != "be terse" {
		t.Fatalf("expected first text part to equal systemPrompt, got %#v", out[0].Content[0])
	}
}

func TestAppendAssistantToolCallsUpdatesInPlace(t *testing.T) {
	msgs := []model.Message{{
		Role:      model.RoleAssistant,
		ToolCalls: []model.ToolCall{{ID: "c1", Name: "echo", Arguments: map[string]any{"x": 1.0}}},
	}}
	out := AppendAssistantToolCalls(msgs, []model.ToolCall{{ID: "c1", Name: "echo", Arguments: map[string]any{"x": 1.0}}}, AppendOptions{Content: "updated"})
	if len(out) != 1 {
		t.Fatalf("expected in-place update, got %d messages", len(out))
	}
	if out[0].TextContent() != "updated" {
		t.Fatalf("expected updated content, got %q", out[0].TextContent())
	}
}

func TestAppendToolResultSetsToolCallID(t *testing.T) {
	out := AppendToolResult(nil, "echo.text", "c1", map[string]any{"echoed": "cli"}, "1 of 1 remaining")
	if out[0].Role != model.RoleTool || out[0].ToolCallID != "c1" {
		t.Fatalf("expected tool message with ToolCallID c1, got %#v", out[0])
	}
	if len(out[0].Content) != 3 {
		t.Fatalf("expected 3 content parts (json, tool_result, countdown), got %d", len(out[0].Content))
	}
}
