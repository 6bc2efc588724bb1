package toolloop

import (
	"context"
	"testing"

	"github.com/ngoclaw/llmcoordinator/internal/model"
	"github.com/ngoclaw/llmcoordinator/internal/router"
	"github.com/ngoclaw/llmcoordinator/internal/telemetry"
)

type fakeInvoker struct {
	calls []string
}

func (f *fakeInvoker) RouteAndInvoke(ctx context.Context, toolName, callID string, args map[string]any, ic router.InvokeContext) (any, error) {
	f.calls = append(f.calls, toolName)
	return map[string]any{"ok": true}, nil
}

func TestRunDoneWithoutToolCalls(t *testing.T) {
	loop := New(&fakeInvoker{}, telemetry.NewNop())
	resp := &model.LLMResponse{Role: model.RoleAssistant}
	final, msgs, err := loop.Run(context.Background(), resp, nil, nil, nil, model.DefaultRuntimeSettings(), "p1", "m1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final != resp {
		t.Fatalf("expected the initial response returned unchanged")
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages appended, got %d", len(msgs))
	}
}

func TestRunExecutesToolsThenDone(t *testing.T) {
	inv := &fakeInvoker{}
	loop := New(inv, telemetry.NewNop())

	first := &model.LLMResponse{
		Role: model.RoleAssistant,
		ToolCalls: []model.ToolCall{
			{ID: "call_1", Name: "search", Arguments: map[string]any{"q": "go"}},
		},
	}
	second := &model.LLMResponse{Role: model.RoleAssistant, Content: []model.ContentPart{model.TextPart{Text: "done"}}}

	calls := 0
	caller := func(ctx context.Context, msgs []model.Message, tools []model.UnifiedTool, choice *model.ToolChoice) (*model.LLMResponse, error) {
		calls++
		return second, nil
	}

	final, msgs, err := loop.Run(context.Background(), first, nil, nil, nil, model.DefaultRuntimeSettings(), "p1", "m1", caller)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final != second {
		t.Fatalf("expected final response to be the post-tool assistant reply")
	}
	if calls != 1 {
		t.Fatalf("expected provider called exactly once after tool execution, got %d", calls)
	}
	if len(inv.calls) != 1 || inv.calls[0] != "search" {
		t.Fatalf("expected exactly one invocation of 'search', got %v", inv.calls)
	}
	// assistant-with-tool-calls + tool-result appended
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages appended (assistant+tool), got %d", len(msgs))
	}
	if msgs[0].Role != model.RoleAssistant || msgs[1].Role != model.RoleTool {
		t.Fatalf("expected [assistant, tool] roles, got [%v, %v]", msgs[0].Role, msgs[1].Role)
	}
}

func TestRunBudgetExhaustionTriggersFinalPrompt(t *testing.T) {
	inv := &fakeInvoker{}
	loop := New(inv, telemetry.NewNop())

	runtime := model.DefaultRuntimeSettings()
	runtime.MaxToolIterations = 1
	runtime.ToolFinalPromptEnabled = true

	first := &model.LLMResponse{
		Role:      model.RoleAssistant,
		ToolCalls: []model.ToolCall{{ID: "c1", Name: "t1", Arguments: map[string]any{}}},
	}
	finalResp := &model.LLMResponse{Role: model.RoleAssistant, Content: []model.ContentPart{model.TextPart{Text: "final"}}}

	callCount := 0
	caller := func(ctx context.Context, msgs []model.Message, tools []model.UnifiedTool, choice *model.ToolChoice) (*model.LLMResponse, error) {
		callCount++
		if tools != nil {
			t.Fatalf("final-prompt call must pass nil tools")
		}
		return finalResp, nil
	}

	final, _, err := loop.Run(context.Background(), first, nil, nil, nil, runtime, "p1", "m1", caller)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final != finalResp {
		t.Fatalf("expected final-prompt response returned")
	}
	if callCount != 1 {
		t.Fatalf("expected exactly one final-prompt call, got %d", callCount)
	}
	raw, ok := final.Raw["toolResults"].([]map[string]any)
	if !ok || len(raw) != 1 {
		t.Fatalf("expected one attached tool result, got %v", final.Raw["toolResults"])
	}
}
