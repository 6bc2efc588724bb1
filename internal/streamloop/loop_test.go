package streamloop

import (
	"context"
	"testing"

	"github.com/ngoclaw/llmcoordinator/internal/model"
	"github.com/ngoclaw/llmcoordinator/internal/router"
	"github.com/ngoclaw/llmcoordinator/internal/telemetry"
)

type fakeSource struct {
	chunks []model.ParsedChunk
	i      int
	closed bool
}

func (f *fakeSource) Next() (model.ParsedChunk, bool, error) {
	if f.i >= len(f.chunks) {
		return model.ParsedChunk{}, true, nil
	}
	c := f.chunks[f.i]
	f.i++
	return c, false, nil
}

func (f *fakeSource) Close() error { f.closed = true; return nil }

type fakeInvoker struct{ calls []string }

func (f *fakeInvoker) RouteAndInvoke(ctx context.Context, toolName, callID string, args map[string]any, ic router.InvokeContext) (any, error) {
	f.calls = append(f.calls, toolName)
	return map[string]any{"ok": true}, nil
}

func collect(ch <-chan model.StreamEvent) []model.StreamEvent {
	var out []model.StreamEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestRunNoToolCallsEmitsDeltasThenDone(t *testing.T) {
	inv := &fakeInvoker{}
	loop := New(inv, telemetry.NewNop())

	src := &fakeSource{chunks: []model.ParsedChunk{
		{Text: "hello "},
		{Text: "world"},
	}}

	ch := loop.Run(context.Background(), src, nil, nil, nil, model.DefaultRuntimeSettings(), "p1", "m1", nil)
	events := collect(ch)

	if !src.closed {
		t.Fatalf("expected the first stream source to be closed")
	}

	deltas := 0
	var done *model.DoneEvent
	for _, ev := range events {
		switch v := ev.(type) {
		case model.DeltaEvent:
			deltas++
		case model.DoneEvent:
			done = &v
		case model.ErrorEvent:
			t.Fatalf("unexpected error event: %v", v.Err)
		}
	}
	if deltas != 2 {
		t.Fatalf("expected 2 delta events, got %d", deltas)
	}
	if done == nil {
		t.Fatalf("expected exactly one done event")
	}
	if done.Response.TextJoined() != "hello world" {
		t.Fatalf("expected accumulated content 'hello world', got %q", done.Response.TextJoined())
	}
}

func TestRunWithToolCallsExecutesThenContinues(t *testing.T) {
	inv := &fakeInvoker{}
	loop := New(inv, telemetry.NewNop())

	first := &fakeSource{chunks: []model.ParsedChunk{
		{Text: "thinking"},
		{ToolEvents: []model.ToolCallEvent{
			model.ToolStart{CallID: "c1", Name: "search"},
			model.ToolEnd{CallID: "c1", Name: "search", Arguments: map[string]any{"q": "go"}},
		}, FinishedWithToolCalls: true},
	}}
	second := &fakeSource{chunks: []model.ParsedChunk{{Text: "final answer"}}}

	opens := 0
	opener := func(ctx context.Context, msgs []model.Message, tools []model.UnifiedTool, choice *model.ToolChoice) (ChunkSource, error) {
		opens++
		return second, nil
	}

	ch := loop.Run(context.Background(), first, nil, nil, nil, model.DefaultRuntimeSettings(), "p1", "m1", opener)
	events := collect(ch)

	if opens != 1 {
		t.Fatalf("expected exactly one follow-up stream open, got %d", opens)
	}
	if len(inv.calls) != 1 || inv.calls[0] != "search" {
		t.Fatalf("expected one invocation of 'search', got %v", inv.calls)
	}

	var done *model.DoneEvent
	for _, ev := range events {
		if v, ok := ev.(model.DoneEvent); ok {
			done = &v
		}
	}
	if done == nil {
		t.Fatalf("expected a done event")
	}
	if done.Response.TextJoined() != "thinkingfinal answer" {
		t.Fatalf("expected accumulated content across both turns, got %q", done.Response.TextJoined())
	}
	raw, ok := done.Response.Raw["toolResults"].([]map[string]any)
	if !ok || len(raw) != 1 {
		t.Fatalf("expected one attached tool result, got %v", done.Response.Raw["toolResults"])
	}
}
