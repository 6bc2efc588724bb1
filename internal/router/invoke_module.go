package router

import (
	"context"

	"github.com/ngoclaw/llmcoordinator/internal/errkit"
	"github.com/ngoclaw/llmcoordinator/internal/model"
)

// ModuleHandler is the tool-handler module contract of spec.md §6:
// accepts {toolName, callId, args, provider, model, metadata} and
// returns either an object (passed through) or a primitive (wrapped by
// the caller).
type ModuleHandler func(ctx context.Context, call ModuleCall) (any, error)

type ModuleCall struct {
	ToolName string
	CallID   string
	Args     map[string]any
	Provider string
	Model    string
	Metadata map[string]any
}

// ModuleInvoker dispatches to an in-process module by name, preferring
// an exported ModuleHandler registered under that name (spec.md §4.8
// "module": "prefer exported handle, else default export, else module
// itself if callable" — collapsed here to a single Go-native registry
// since there is no dynamic module loading in a compiled language).
type ModuleInvoker struct {
	handlers map[string]ModuleHandler
}

func NewModuleInvoker() *ModuleInvoker {
	return &ModuleInvoker{handlers: map[string]ModuleHandler{}}
}

func (m *ModuleInvoker) Register(name string, h ModuleHandler) {
	m.handlers[name] = h
}

func (m *ModuleInvoker) Invoke(ctx context.Context, route model.RouteInvoke, toolName, callID string, args map[string]any, ic InvokeContext) (any, error) {
	name := route.ModuleName
	if name == "" {
		name = toolName
	}
	h, ok := m.handlers[name]
	if !ok {
		return nil, &errkit.ManifestError{Kind: "module", ID: name, Message: "no module handler registered"}
	}
	return h(ctx, ModuleCall{
		ToolName: toolName,
		CallID:   callID,
		Args:     args,
		Provider: ic.Provider,
		Model:    ic.Model,
		Metadata: ic.Metadata,
	})
}
