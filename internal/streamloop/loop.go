// Package streamloop implements spec.md §4.10: the streaming analogue
// of internal/toolloop, producing model.StreamEvent values with strict
// per-turn ordering (pre-tool deltas -> tool events -> silent tool
// execution -> post-tool deltas -> exactly one done/error). Grounded on
// the teacher's domain/service/agent_loop.go StreamRun channel-based
// producer shape, generalized from one provider to the
// discover-then-retry-then-loop pipeline the rest of this module
// implements.
package streamloop

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ngoclaw/llmcoordinator/internal/contextmgr"
	"github.com/ngoclaw/llmcoordinator/internal/messages"
	"github.com/ngoclaw/llmcoordinator/internal/model"
	"github.com/ngoclaw/llmcoordinator/internal/router"
	"github.com/ngoclaw/llmcoordinator/internal/sanitize"
	"github.com/ngoclaw/llmcoordinator/internal/telemetry"
	"github.com/ngoclaw/llmcoordinator/internal/toolloop"
)

// Invoker is the subset of *router.Router streamloop needs.
type Invoker interface {
	RouteAndInvoke(ctx context.Context, toolName, callID string, args map[string]any, ic router.InvokeContext) (any, error)
}

// StreamOpener opens a fresh chunk stream against the provider with the
// given (possibly updated) messages; tools/choice are nil on the
// final-prompt turn, mirroring toolloop.ProviderCaller.
type StreamOpener func(ctx context.Context, msgs []model.Message, tools []model.UnifiedTool, choice *model.ToolChoice) (ChunkSource, error)

// ChunkSource is the minimal iterator streamloop consumes; internal/llm's
// ChunkIterator satisfies it directly.
type ChunkSource interface {
	Next() (model.ParsedChunk, bool, error)
	Close() error
}

// Loop drives spec.md §4.10 to completion, emitting events on a channel.
type Loop struct {
	Invoker Invoker
	Logger  telemetry.Logger
}

func New(invoker Invoker, logger telemetry.Logger) *Loop {
	return &Loop{Invoker: invoker, Logger: logger}
}

// Run streams events onto the returned channel, which is closed after
// exactly one done or error event. first is the already-open stream from
// the initial successful provider call (spec.md §4.11's "delegates to
// §4.10 after the first provider resolution").
func (l *Loop) Run(
	ctx context.Context,
	first ChunkSource,
	msgs []model.Message,
	tools []model.UnifiedTool,
	choice *model.ToolChoice,
	runtime model.RuntimeSettings,
	provider, modelName string,
	open StreamOpener,
) <-chan model.StreamEvent {
	out := make(chan model.StreamEvent, 16)

	go func() {
		defer close(out)

		budget := toolloop.NewBudget(runtime.MaxToolIterations)
		var resultLog []toolloop.ToolResultEntry
		var accumulated []model.ContentPart
		var usage *model.TokenUsage
		var reasoning *model.Reasoning

		current := first
		for {
			turnCalls, turnText, finishedWithTools, turnUsage, turnReasoning, err := l.drainTurn(ctx, current, out)
			current.Close()
			if err != nil {
				out <- model.ErrorEvent{Err: err}
				return
			}
			if turnText != "" {
				accumulated = append(accumulated, model.TextPart{Text: turnText})
			}
			if turnUsage != nil {
				usage = turnUsage
			}
			if turnReasoning != nil {
				reasoning = turnReasoning
			}

			if !finishedWithTools {
				out <- model.DoneEvent{Response: model.LLMResponse{
					Provider:     provider,
					Model:        modelName,
					Role:         model.RoleAssistant,
					Content:      accumulated,
					FinishReason: model.FinishStop,
					Usage:        usage,
					Reasoning:    reasoning,
					Raw:          toolResultsRaw(resultLog),
				}}
				return
			}

			msgs = messages.AppendAssistantToolCalls(msgs, turnCalls, messages.AppendOptions{
				Content:    turnText,
				Reasoning:  turnReasoning,
				SanitizeFn: sanitize.Name,
			})

			outcomes := l.executeTurn(ctx, turnCalls, budget, runtime.ParallelToolExecution, provider, modelName)
			for _, o := range outcomes {
				msgs = messages.AppendToolResult(msgs, o.Tool, o.CallID, o.Result, "")
				resultLog = append(resultLog, o)
			}

			msgs = contextmgr.PruneToolResults(msgs, runtime.PreserveToolResults)
			msgs = contextmgr.PruneReasoning(msgs, runtime.PreserveReasoning)

			if budget.Remaining() <= 0 {
				if !runtime.ToolFinalPromptEnabled {
					out <- model.DoneEvent{Response: model.LLMResponse{
						Provider:     provider,
						Model:        modelName,
						Role:         model.RoleAssistant,
						Content:      accumulated,
						FinishReason: model.FinishToolCalls,
						Usage:        usage,
						Reasoning:    reasoning,
						Raw:          toolResultsRaw(resultLog),
					}}
					return
				}
				msgs = append(msgs, model.Message{
					Role:    model.RoleUser,
					Content: []model.ContentPart{model.TextPart{Text: finalPromptText}},
				})
				next, err := open(ctx, msgs, nil, nil)
				if err != nil {
					out <- model.ErrorEvent{Err: err}
					return
				}
				current = next
				continue
			}

			next, err := open(ctx, msgs, tools, choice)
			if err != nil {
				out <- model.ErrorEvent{Err: err}
				return
			}
			current = next
		}
	}()

	return out
}

const finalPromptText = "No more tool calls are permitted this turn. Respond with your best final answer using the information already gathered."

// drainTurn forwards every delta/tool event from one open stream to out
// until the stream ends, returning the accumulated tool calls and text
// for that turn. Tool execution itself never happens here, preserving
// spec.md §4.10's "silent to consumer" ordering requirement.
func (l *Loop) drainTurn(ctx context.Context, src ChunkSource, out chan<- model.StreamEvent) ([]model.ToolCall, string, bool, *model.TokenUsage, *model.Reasoning, error) {
	var text string
	var usage *model.TokenUsage
	var reasoning *model.Reasoning
	pending := map[string]*model.ToolCall{}
	argBuf := map[string]string{} // ToolArgsDelta fragments per call id
	var lastID string
	var order []string
	finished := false

	for {
		chunk, done, err := src.Next()
		if err != nil {
			return nil, text, false, usage, reasoning, err
		}
		if done {
			break
		}
		if chunk.Text != "" {
			text += chunk.Text
			out <- model.DeltaEvent{Content: chunk.Text}
		}
		for _, ev := range chunk.ToolEvents {
			out <- model.ToolStreamEvent{Event: ev}
			switch v := ev.(type) {
			case model.ToolStart:
				if _, ok := pending[v.CallID]; !ok {
					pending[v.CallID] = &model.ToolCall{ID: v.CallID, Name: v.Name, Arguments: map[string]any{}}
					order = append(order, v.CallID)
				}
				lastID = v.CallID
			case model.ToolArgsDelta:
				id := v.CallID
				if id == "" {
					id = lastID
				}
				argBuf[id] += v.Delta
			case model.ToolEnd:
				if tc, ok := pending[v.CallID]; ok {
					tc.Name = v.Name
					tc.Arguments = v.Arguments
				} else {
					pending[v.CallID] = &model.ToolCall{ID: v.CallID, Name: v.Name, Arguments: v.Arguments}
					order = append(order, v.CallID)
				}
			}
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if chunk.Reasoning != nil {
			reasoning = chunk.Reasoning
		}
		if chunk.FinishedWithToolCalls {
			finished = true
		}
	}

	calls := make([]model.ToolCall, 0, len(order))
	for _, id := range order {
		tc := pending[id]
		if s := argBuf[id]; len(tc.Arguments) == 0 && s != "" {
			_ = json.Unmarshal([]byte(s), &tc.Arguments)
		}
		calls = append(calls, *tc)
	}
	return calls, text, finished, usage, reasoning, nil
}

func (l *Loop) executeTurn(ctx context.Context, calls []model.ToolCall, budget *toolloop.Budget, parallel bool, provider, modelName string) []toolloop.ToolResultEntry {
	outcomes := make([]toolloop.ToolResultEntry, len(calls))

	invoke := func(i int, tc model.ToolCall) {
		if !budget.Consume() {
			outcomes[i] = toolloop.ToolResultEntry{Tool: tc.Name, CallID: tc.ID, Result: map[string]any{"error": "tool_call_budget_exhausted"}}
			return
		}
		res, err := l.Invoker.RouteAndInvoke(ctx, tc.Name, tc.ID, tc.Arguments, router.InvokeContext{
			Provider: provider,
			Model:    modelName,
			Logger:   l.Logger,
		})
		if err != nil {
			outcomes[i] = toolloop.ToolResultEntry{Tool: tc.Name, CallID: tc.ID, Result: map[string]any{"error": err.Error()}}
			return
		}
		outcomes[i] = toolloop.ToolResultEntry{Tool: tc.Name, CallID: tc.ID, Result: res}
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

func toolResultsRaw(log []toolloop.ToolResultEntry) map[string]any {
	entries := make([]map[string]any, len(log))
	for i, e := range log {
		entries[i] = map[string]any{"tool": e.Tool, "callId": e.CallID, "result": e.Result}
	}
	return map[string]any{"toolResults": entries}
}
