package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/ngoclaw/llmcoordinator/internal/llm"
	"github.com/ngoclaw/llmcoordinator/internal/model"
	"github.com/ngoclaw/llmcoordinator/internal/registry"
	"github.com/ngoclaw/llmcoordinator/internal/retry"
	"github.com/ngoclaw/llmcoordinator/internal/router"
	"github.com/ngoclaw/llmcoordinator/internal/telemetry"
)

// fakeCompat implements llm.SDKCompat so Caller.Call takes the SDK
// short-circuit path instead of issuing a real HTTP request.
type fakeCompat struct {
	responses []*model.LLMResponse
	calls     int
}

func (f *fakeCompat) BuildPayload(modelName string, s model.ProviderSettings, msgs []model.Message, tools []model.UnifiedTool, choice *model.ToolChoice) (llm.Payload, error) {
	return llm.Payload{}, nil
}
func (f *fakeCompat) ParseResponse(raw []byte, modelName string) (*model.LLMResponse, error) {
	return nil, nil
}
func (f *fakeCompat) ParseStreamChunk(chunk []byte) (model.ParsedChunk, error) {
	return model.ParsedChunk{}, nil
}
func (f *fakeCompat) GetStreamingFlags() map[string]any       { return nil }
func (f *fakeCompat) SerializeTools(tools []model.UnifiedTool) any { return nil }
func (f *fakeCompat) SerializeToolChoice(choice *model.ToolChoice) any { return nil }

func (f *fakeCompat) CallSDK(ctx context.Context, modelName string, s model.ProviderSettings, msgs []model.Message, tools []model.UnifiedTool, choice *model.ToolChoice) (*model.LLMResponse, error) {
	resp := f.responses[f.calls]
	f.calls++
	resp.Model = modelName
	return resp, nil
}

type fakeToolInvoker struct {
	result map[string]any
}

func (f *fakeToolInvoker) Invoke(ctx context.Context, route model.RouteInvoke, toolName, callID string, args map[string]any, ic router.InvokeContext) (any, error) {
	return f.result, nil
}

func newTestCoordinator(t *testing.T, manifestID string, compat llm.Compat, toolInvoker router.Invoker) *Coordinator {
	t.Helper()
	var routes []model.ProcessRoute
	invokers := map[model.InvokeKind]router.Invoker{}
	if toolInvoker != nil {
		routes = []model.ProcessRoute{
			{ID: "echo", Match: model.RouteMatch{Kind: model.MatchExact, Pattern: "echo.text"}, Invoke: model.RouteInvoke{Kind: model.InvokeModule}},
		}
		invokers[model.InvokeModule] = toolInvoker
	}
	r, err := router.New(routes, invokers, 5*time.Second, 0, telemetry.NewNop())
	if err != nil {
		t.Fatalf("router.New: %v", err)
	}

	reg := &stubRegistry{manifest: &llm.ProviderManifest{ID: manifestID, CompatName: "fake"}, compat: compat}

	return New(
		reg, nil, nil, r,
		llm.NewCaller(telemetry.NewNop()),
		llm.NewStreamer(telemetry.NewNop()),
		retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, Multiplier: 1},
		telemetry.NewNop(), nil, nil, nil,
	)
}

// stubRegistry implements registry.Registry with just enough behavior to
// drive the coordinator through a single provider and an empty tool set.
type stubRegistry struct {
	manifest *llm.ProviderManifest
	compat   llm.Compat
}

func (s *stubRegistry) GetProvider(ctx context.Context, id string) (*llm.ProviderManifest, error) {
	return s.manifest, nil
}
func (s *stubRegistry) GetTool(ctx context.Context, name string) (*model.UnifiedTool, error) {
	return nil, nil
}
func (s *stubRegistry) GetTools(ctx context.Context, names []string) ([]model.UnifiedTool, error) {
	return nil, nil
}
func (s *stubRegistry) GetMCPServers(ctx context.Context, ids []string) ([]string, error) {
	return nil, nil
}
func (s *stubRegistry) GetVectorStore(ctx context.Context, id string) (*registry.VectorStoreManifest, error) {
	return nil, nil
}
func (s *stubRegistry) GetVectorStoreCompat(ctx context.Context, kind string) (any, error) {
	return nil, nil
}
func (s *stubRegistry) GetEmbeddingProvider(ctx context.Context, id string) (*registry.EmbeddingManifest, error) {
	return nil, nil
}
func (s *stubRegistry) GetEmbeddingCompat(ctx context.Context, kind string) (any, error) {
	return nil, nil
}
func (s *stubRegistry) GetProcessRoutes(ctx context.Context) ([]model.ProcessRoute, error) {
	return nil, nil
}
func (s *stubRegistry) GetCompatModule(ctx context.Context, name string) (llm.Compat, error) {
	return s.compat, nil
}

func TestRunSimpleCompletion(t *testing.T) {
	compat := &fakeCompat{responses: []*model.LLMResponse{
		{Role: model.RoleAssistant, Content: []model.ContentPart{model.TextPart{Text: "hello"}}},
	}}
	c := newTestCoordinator(t, "anthropic", compat, nil)

	spec := model.LLMCallSpec{
		Messages: []model.Message{
			{Role: model.RoleUser, Content: []model.ContentPart{model.TextPart{Text: "hi"}}},
		},
		LLMPriority: []model.ProviderModel{{Provider: "anthropic", Model: "claude"}},
	}

	resp, err := c.Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.TextJoined() != "hello" {
		t.Fatalf("expected passthrough text %q, got %q", "hello", resp.TextJoined())
	}
	if len(resp.ToolCalls) != 0 {
		t.Fatalf("expected no tool calls, got %v", resp.ToolCalls)
	}
	if compat.calls != 1 {
		t.Fatalf("expected exactly one provider call, got %d", compat.calls)
	}
}

func TestRunToolCallThenFinalAnswer(t *testing.T) {
	compat := &fakeCompat{responses: []*model.LLMResponse{
		{
			Role: model.RoleAssistant,
			ToolCalls: []model.ToolCall{
				{ID: "c1", Name: "echo.text", Arguments: map[string]any{"text": "cli"}},
			},
			FinishReason: model.FinishToolCalls,
		},
		{Role: model.RoleAssistant, Content: []model.ContentPart{model.TextPart{Text: "final response"}}},
	}}
	toolInvoker := &fakeToolInvoker{result: map[string]any{"echoed": "cli"}}
	c := newTestCoordinator(t, "anthropic", compat, toolInvoker)

	spec := model.LLMCallSpec{
		Messages: []model.Message{
			{Role: model.RoleUser, Content: []model.ContentPart{model.TextPart{Text: "run echo"}}},
		},
		FunctionToolNames: []string{"echo.text"},
		LLMPriority:       []model.ProviderModel{{Provider: "anthropic", Model: "claude"}},
		Settings: map[string]any{
			"maxToolIterations": 1,
		},
	}

	resp, err := c.Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.TextJoined() != "final response" {
		t.Fatalf("expected final text %q, got %q", "final response", resp.TextJoined())
	}
	if compat.calls != 2 {
		t.Fatalf("expected two provider calls (initial + final), got %d", compat.calls)
	}

	raw, ok := resp.Raw["toolResults"].([]map[string]any)
	if !ok || len(raw) != 1 {
		t.Fatalf("expected one toolResults entry, got %v", resp.Raw["toolResults"])
	}
	if raw[0]["tool"] != "echo.text" {
		t.Fatalf("expected tool %q, got %v", "echo.text", raw[0]["tool"])
	}
	result, ok := raw[0]["result"].(map[string]any)
	if !ok || result["echoed"] != "cli" {
		t.Fatalf("expected result {echoed: cli}, got %v", raw[0]["result"])
	}
}
