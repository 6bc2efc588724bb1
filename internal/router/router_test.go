package router

import (
	"context"
	"testing"
	"time"

	"github.com/ngoclaw/llmcoordinator/internal/errkit"
	"github.com/ngoclaw/llmcoordinator/internal/model"
	"github.com/ngoclaw/llmcoordinator/internal/telemetry"
)

type fakeInvoker struct {
	result any
	err    error
	delay  time.Duration
	calls  int
}

func (f *fakeInvoker) Invoke(ctx context.Context, route model.RouteInvoke, toolName, callID string, args map[string]any, ic InvokeContext) (any, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

func routeFor(kind model.MatchKind, pattern string, invoke model.InvokeKind) model.ProcessRoute {
	return model.ProcessRoute{
		ID:    pattern,
		Match: model.RouteMatch{Kind: kind, Pattern: pattern},
		Invoke: model.RouteInvoke{
			Kind:       invoke,
			ModuleName: "m",
		},
	}
}

func TestRouteAndInvokeExactPrefixRegexGlob(t *testing.T) {
	routes := []model.ProcessRoute{
		routeFor(model.MatchExact, "echo.text", model.InvokeModule),
		routeFor(model.MatchPrefix, "fs.", model.InvokeModule),
		routeFor(model.MatchRegex, "^search\\.[a-z]+$", model.InvokeModule),
		routeFor(model.MatchGlob, "git.*", model.InvokeModule),
	}
	inv := &fakeInvoker{result: map[string]any{"ok": true}}
	r, err := New(routes, map[model.InvokeKind]Invoker{model.InvokeModule: inv}, time.Second, 0, telemetry.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, name := range []string{"echo.text", "fs.read", "search.web", "git.status"} {
		if _, err := r.RouteAndInvoke(context.Background(), name, "c1", nil, InvokeContext{}); err != nil {
			t.Fatalf("RouteAndInvoke(%s): unexpected error: %v", name, err)
		}
	}
	if inv.calls != 4 {
		t.Fatalf("expected 4 invocations, got %d", inv.calls)
	}
}

func TestRouteAndInvokeFirstMatchWins(t *testing.T) {
	routes := []model.ProcessRoute{
		routeFor(model.MatchPrefix, "tool.", model.InvokeModule),
		routeFor(model.MatchExact, "tool.specific", model.InvokeCommand),
	}
	moduleInv := &fakeInvoker{result: "from-module"}
	cmdInv := &fakeInvoker{result: "from-command"}
	r, err := New(routes, map[model.InvokeKind]Invoker{
		model.InvokeModule:  moduleInv,
		model.InvokeCommand: cmdInv,
	}, time.Second, 0, telemetry.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := r.RouteAndInvoke(context.Background(), "tool.specific", "c1", nil, InvokeContext{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moduleInv.calls != 1 || cmdInv.calls != 0 {
		t.Fatalf("expected the first matching (prefix) route to win, module calls=%d command calls=%d", moduleInv.calls, cmdInv.calls)
	}
}

func TestRouteAndInvokeNoMatchIsToolExecutionError(t *testing.T) {
	r, err := New(nil, nil, time.Second, 0, telemetry.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = r.RouteAndInvoke(context.Background(), "unknown.tool", "c1", nil, InvokeContext{})
	var toolErr *errkit.ToolExecutionError
	if err == nil {
		t.Fatalf("expected an error for an unmatched tool name")
	}
	if !asToolExecutionError(err, &toolErr) {
		t.Fatalf("expected *errkit.ToolExecutionError, got %T: %v", err, err)
	}
}

func TestRouteAndInvokeUnknownKindIsManifestError(t *testing.T) {
	routes := []model.ProcessRoute{routeFor(model.MatchExact, "t", model.InvokeHTTP)}
	r, err := New(routes, map[model.InvokeKind]Invoker{}, time.Second, 0, telemetry.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = r.RouteAndInvoke(context.Background(), "t", "c1", nil, InvokeContext{})
	var manifestErr *errkit.ManifestError
	if err == nil {
		t.Fatalf("expected an error for a route kind with no registered invoker")
	}
	if !asManifestError(err, &manifestErr) {
		t.Fatalf("expected *errkit.ManifestError, got %T: %v", err, err)
	}
}

func TestRouteAndInvokeTimeout(t *testing.T) {
	routes := []model.ProcessRoute{
		{
			ID:        "slow",
			Match:     model.RouteMatch{Kind: model.MatchExact, Pattern: "slow"},
			Invoke:    model.RouteInvoke{Kind: model.InvokeModule},
			TimeoutMs: 10,
		},
	}
	inv := &fakeInvoker{result: "too late", delay: time.Second}
	r, err := New(routes, map[model.InvokeKind]Invoker{model.InvokeModule: inv}, time.Minute, 0, telemetry.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = r.RouteAndInvoke(context.Background(), "slow", "c1", nil, InvokeContext{})
	var toolErr *errkit.ToolExecutionError
	if err == nil {
		t.Fatalf("expected a timeout error")
	}
	if !asToolExecutionError(err, &toolErr) {
		t.Fatalf("expected *errkit.ToolExecutionError, got %T: %v", err, err)
	}
}

func TestRouteAndInvokeWrapsBareValue(t *testing.T) {
	routes := []model.ProcessRoute{routeFor(model.MatchExact, "bare", model.InvokeModule)}
	inv := &fakeInvoker{result: "plain-string"}
	r, err := New(routes, map[model.InvokeKind]Invoker{model.InvokeModule: inv}, time.Second, 0, telemetry.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := r.RouteAndInvoke(context.Background(), "bare", "c1", nil, InvokeContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("expected bare value wrapped in a map, got %T", result)
	}
	if m["result"] != "plain-string" {
		t.Fatalf("expected {result: plain-string}, got %v", m)
	}
}

func TestRouteAndInvokePassesThroughObjectResult(t *testing.T) {
	routes := []model.ProcessRoute{routeFor(model.MatchExact, "obj", model.InvokeModule)}
	inv := &fakeInvoker{result: map[string]any{"echoed": "cli"}}
	r, err := New(routes, map[model.InvokeKind]Invoker{model.InvokeModule: inv}, time.Second, 0, telemetry.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := r.RouteAndInvoke(context.Background(), "obj", "c1", nil, InvokeContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := result.(map[string]any)
	if !ok || m["echoed"] != "cli" {
		t.Fatalf("expected object result to pass through unwrapped, got %v", result)
	}
}

func asToolExecutionError(err error, target **errkit.ToolExecutionError) bool {
	e, ok := err.(*errkit.ToolExecutionError)
	if !ok {
		return false
	}
	*target = e
	return true
}

func asManifestError(err error, target **errkit.ManifestError) bool {
	e, ok := err.(*errkit.ManifestError)
	if !ok {
		return false
	}
	*target = e
	return true
}
