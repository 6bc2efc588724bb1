// Package messages implements spec.md §4.2: prepare, append
// assistant-with-tool-calls, append tool result.
package messages

import (
	"encoding/json"

	"github.com/ngoclaw/llmcoordinator/internal/model"
)

// Prepare builds the initial message list for a Run: if systemPrompt is
// set, prepend a system message containing it; subsequent adjacent
// system messages are merged into one, separated by a blank-line text
// part, preserving order.
func Prepare(systemPrompt string, specMessages []model.Message) []model.Message {
	var msgs []model.Message
	if systemPrompt != "" {
		msgs = append(msgs, model.Message{
			Role:    model.RoleSystem,
			Content: []model.ContentPart{model.TextPart{Text: systemPrompt}},
		})
	}
	msgs = append(msgs, specMessages...)
	return mergeAdjacentSystem(msgs)
}

func mergeAdjacentSystem(msgs []model.Message) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == model.RoleSystem && len(out) > 0 && out[len(out)-1].Role == model.RoleSystem {
			prev := &out[len(out)-1]
			prev.Content = append(prev.Content, model.TextPart{Text: ""})
			prev.Content = append(prev.Content, m.Content...)
			continue
		}
		out = append(out, m)
	}
	return out
}

// AppendOptions configures AppendAssistantToolCalls.
type AppendOptions struct {
	Content   string
	Reasoning *model.Reasoning
	SanitizeFn func(string) string
}

// AppendAssistantToolCalls appends an assistant message carrying calls,
// or — if an assistant message with an equivalent set of {id,name,args}
// already exists at the tail — updates it in place with new
// content/reasoning instead of appending a duplicate (spec.md §4.2,
// equality defined in spec.md §9 as set-equality on
// {id,name,canonicalized(arguments)}).
func AppendAssistantToolCalls(msgs []model.Message, calls []model.ToolCall, opts AppendOptions) []model.Message {
	sanitized := make([]model.ToolCall, len(calls))
	for i, c := range calls {
		name := c.Name
		if opts.SanitizeFn != nil {
			name = opts.SanitizeFn(name)
		}
		sanitized[i] = model.ToolCall{ID: c.ID, Name: name, Arguments: c.Arguments}
	}

	var content []model.ContentPart
	if opts.Content != "" {
		content = append(content, model.TextPart{Text: opts.Content})
	}

	if len(msgs) > 0 {
		tail := &msgs[len(msgs)-1]
		if tail.Role == model.RoleAssistant && toolCallSetsEqual(tail.ToolCalls, sanitized) {
			tail.Content = content
			tail.Reasoning = opts.Reasoning
			return msgs
		}
	}

	return append(msgs, model.Message{
		Role:      model.RoleAssistant,
		Content:   content,
		ToolCalls: sanitized,
		Reasoning: opts.Reasoning,
	})
}

// toolCallSetsEqual implements the set-equality on
// {id,name,canonicalized(arguments)} spec.md §9 specifies for the
// "update existing" branch.
func toolCallSetsEqual(a, b []model.ToolCall) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	key := func(c model.ToolCall) string {
		args, _ := json.Marshal(canonicalize(c.Arguments))
		return c.ID + "\x00" + c.Name + "\x00" + string(args)
	}
	set := make(map[string]bool, len(a))
	for _, c := range a {
		set[key(c)] = true
	}
	for _, c := range b {
		if !set[key(c)] {
			return false
		}
	}
	return true
}

// canonicalize sorts map keys deterministically via JSON re-marshaling
// through a generic any round-trip, so two equivalent argument maps with
// different key-insertion order compare equal.
func canonicalize(v map[string]any) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	raw, _ := json.Marshal(v)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out
}

// AppendToolResult appends a TOOL-role message per spec.md §4.2.
func AppendToolResult(msgs []model.Message, toolName, callID string, result any, countdownText string) []model.Message {
	resultJSON, isStr := jsonOrRaw(result)

	content := []model.ContentPart{model.TextPart{Text: resultJSON}}
	content = append(content, model.ToolResultPart{ToolName: toolName, Result: result})
	if countdownText != "" {
		content = append(content, model.TextPart{Text: countdownText})
	}
	_ = isStr

	return append(msgs, model.Message{
		Role:       model.RoleTool,
		ToolCallID: callID,
		Name:       toolName,
		Content:    content,
	})
}

func jsonOrRaw(result any) (string, bool) {
	if s, ok := result.(string); ok {
		return s, true
	}
	b, err := json.Marshal(result)
	if err != nil {
		return "", false
	}
	return string(b), false
}
