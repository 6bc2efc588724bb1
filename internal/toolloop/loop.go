// Package toolloop implements spec.md §4.9: the non-streaming tool-loop
// state machine AwaitingAssistant → ExecutingTools → (AwaitingAssistant |
// FinalPrompt | Done). Grounded on the teacher's
// domain/service/agent_loop.go Run loop shape (call → inspect tool
// calls → execute → re-call), generalized to a per-call budget and an
// optional final-prompt turn that spec.md's original lacks.
package toolloop

import (
	"context"
	"fmt"
	"sync"

	"github.com/ngoclaw/llmcoordinator/internal/contextmgr"
	"github.com/ngoclaw/llmcoordinator/internal/messages"
	"github.com/ngoclaw/llmcoordinator/internal/model"
	"github.com/ngoclaw/llmcoordinator/internal/router"
	"github.com/ngoclaw/llmcoordinator/internal/sanitize"
	"github.com/ngoclaw/llmcoordinator/internal/telemetry"
)

const finalPromptText = "No more tool calls are permitted this turn. Respond with your best final answer using the information already gathered."

// Budget tracks remaining tool-call consumption for one Run, seeded from
// runtime.maxToolIterations.
type Budget struct {
	mu        sync.Mutex
	max       int
	remaining int
}

func NewBudget(max int) *Budget {
	return &Budget{max: max, remaining: max}
}

// Consume decrements the budget if non-zero, returning whether the call
// is allowed to proceed.
func (b *Budget) Consume() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// Invoker is the subset of *router.Router the loop needs, narrowed for
// testability.
type Invoker interface {
	RouteAndInvoke(ctx context.Context, toolName, callID string, args map[string]any, ic router.InvokeContext) (any, error)
}

// ProviderCaller re-invokes the provider mid-loop with updated messages
// (spec.md §4.9 step 3's "call the provider again"); tools/choice are
// nil on the final-prompt turn.
type ProviderCaller func(ctx context.Context, msgs []model.Message, tools []model.UnifiedTool, choice *model.ToolChoice) (*model.LLMResponse, error)

// ToolResultEntry is one {tool, result} pair attached to the final
// response's Raw["toolResults"].
type ToolResultEntry struct {
	Tool   string
	CallID string
	Result any
}

// Loop runs spec.md §4.9 to completion.
type Loop struct {
	Invoker Invoker
	Logger  telemetry.Logger
}

func New(invoker Invoker, logger telemetry.Logger) *Loop {
	return &Loop{Invoker: invoker, Logger: logger}
}

// Run drives the state machine from an initial assistant response
// through to Done or FinalPrompt, returning the final response and the
// updated message history.
func (l *Loop) Run(
	ctx context.Context,
	initial *model.LLMResponse,
	msgs []model.Message,
	tools []model.UnifiedTool,
	choice *model.ToolChoice,
	runtime model.RuntimeSettings,
	provider, modelName string,
	call ProviderCaller,
) (*model.LLMResponse, []model.Message, error) {
	budget := NewBudget(runtime.MaxToolIterations)
	var resultLog []ToolResultEntry

	current := initial
	for {
		if len(current.ToolCalls) == 0 {
			return current, msgs, nil
		}

		msgs = messages.AppendAssistantToolCalls(msgs, current.ToolCalls, messages.AppendOptions{
			Content:    textFromParts(current.Content),
			Reasoning:  current.Reasoning,
			SanitizeFn: sanitize.Name,
		})

		outcomes := l.executeTurn(ctx, current.ToolCalls, budget, runtime.ParallelToolExecution, provider, modelName)

		for _, o := range outcomes {
			countdown := ""
			if runtime.ToolCountdownEnabled {
				used := runtime.MaxToolIterations - budget.Remaining()
				countdown = fmt.Sprintf("Tool calls used %d of %d — %d remaining", used, runtime.MaxToolIterations, budget.Remaining())
			}
			msgs = messages.AppendToolResult(msgs, o.Tool, o.CallID, o.Result, countdown)
			resultLog = append(resultLog, o)
		}

		msgs = contextmgr.PruneToolResults(msgs, runtime.PreserveToolResults)
		msgs = contextmgr.PruneReasoning(msgs, runtime.PreserveReasoning)

		if budget.Remaining() > 0 {
			next, err := call(ctx, msgs, tools, choice)
			if err != nil {
				return nil, msgs, err
			}
			current = next
			continue
		}

		if runtime.ToolFinalPromptEnabled {
			msgs = append(msgs, model.Message{
				Role:    model.RoleUser,
				Content: []model.ContentPart{model.TextPart{Text: finalPromptText}},
			})
			final, err := call(ctx, msgs, nil, nil)
			if err != nil {
				return nil, msgs, err
			}
			attachResults(final, resultLog)
			return final, msgs, nil
		}

		attachResults(current, resultLog)
		return current, msgs, nil
	}
}

type outcome = ToolResultEntry

// executeTurn runs one assistant turn's tool calls, sequentially or
// concurrently per runtime.parallelToolExecution, but always returns
// results in the original call order (spec.md §4.9 step 2b).
func (l *Loop) executeTurn(ctx context.Context, calls []model.ToolCall, budget *Budget, parallel bool, provider, modelName string) []outcome {
	outcomes := make([]outcome, len(calls))

	invoke := func(i int, tc model.ToolCall) {
		if !budget.Consume() {
			outcomes[i] = outcome{Tool: tc.Name, CallID: tc.ID, Result: map[string]any{"error": "tool_call_budget_exhausted"}}
			return
		}
		res, err := l.Invoker.RouteAndInvoke(ctx, tc.Name, tc.ID, tc.Arguments, router.InvokeContext{
			Provider: provider,
			Model:    modelName,
			Logger:   l.Logger,
		})
		if err != nil {
			outcomes[i] = outcome{Tool: tc.Name, CallID: tc.ID, Result: map[string]any{"error": err.Error()}}
			return
		}
		outcomes[i] = outcome{Tool: tc.Name, CallID: tc.ID, Result: res}
	}

	if parallel {
		var wg sync.WaitGroup
		for i, tc := range calls {
			wg.Add(1)
			go func(i int, tc model.ToolCall) {
				defer wg.Done()
				invoke(i, tc)
			}(i, tc)
		}
		wg.Wait()
	} else {
		for i, tc := range calls {
			invoke(i, tc)
		}
	}
	return outcomes
}

// textFromParts joins every TextPart in an LLMResponse's content, the
// same rule model.Message.TextContent applies to a message.
func textFromParts(parts []model.ContentPart) string {
	var out string
	for _, p := range parts {
		if t, ok := p.(model.TextPart); ok {
			if out != "" {
				out += "\n"
			}
			out += t.Text
		}
	}
	return out
}

func attachResults(resp *model.LLMResponse, log []ToolResultEntry) {
	if resp.Raw == nil {
		resp.Raw = map[string]any{}
	}
	entries := make([]map[string]any, len(log))
	for i, e := range log {
		entries[i] = map[string]any{"tool": e.Tool, "callId": e.CallID, "result": e.Result}
	}
	resp.Raw["toolResults"] = entries
}
