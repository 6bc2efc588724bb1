// Package contextmgr implements spec.md §4.3: pruning tool results and
// reasoning from conversation history under preservation policies, plus
// an informational token estimator. The cycle-identification and
// in-place redaction algorithm is spec.md's own (not the teacher's
// importance-scored adaptive pruning), but the package shape — a small
// Tokenizer interface and a config struct with sane defaults — is
// grounded on the teacher's domain/context/pruner.go.
package contextmgr

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/ngoclaw/llmcoordinator/internal/model"
)

const redactionPlaceholder = "[tool result redacted to preserve context budget]"

// cycle is one assistant message with non-empty ToolCalls plus the
// contiguous TOOL messages answering it, up to (not including) the next
// assistant message — spec.md §8's "Cycle identification" property.
type cycle struct {
	assistantIdx int
	toolIdxs     []int
}

func findCycles(msgs []model.Message) []cycle {
	var cycles []cycle
	for i, m := range msgs {
		if m.Role != model.RoleAssistant || len(m.ToolCalls) == 0 {
			continue
		}
		ids := make(map[string]bool, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			ids[tc.ID] = true
		}
		c := cycle{assistantIdx: i}
		for j := i + 1; j < len(msgs); j++ {
			if msgs[j].Role == model.RoleAssistant {
				break
			}
			if msgs[j].Role == model.RoleTool && ids[msgs[j].ToolCallID] {
				c.toolIdxs = append(c.toolIdxs, j)
			}
		}
		cycles = append(cycles, c)
	}
	return cycles
}

// PruneToolResults implements spec.md §4.3's pruneToolResults. policy.All
// is a no-op; policy.None redacts every cycle; otherwise the last
// policy.Count cycles are retained and earlier cycles' TOOL messages are
// redacted in place. Already-redacted messages are left as-is. Assistant
// and user/system messages are never removed.
func PruneToolResults(msgs []model.Message, policy model.PruneLimit) []model.Message {
	if policy.All {
		return msgs
	}

	cycles := findCycles(msgs)
	keepFromEnd := 0
	if !policy.None {
		keepFromEnd = policy.Count
	}

	redactFrom := len(cycles) - keepFromEnd
	if redactFrom < 0 {
		redactFrom = 0
	}

	for ci, c := range cycles {
		if ci >= redactFrom {
			continue
		}
		for _, idx := range c.toolIdxs {
			msgs[idx] = redactToolMessage(msgs[idx])
		}
	}
	return msgs
}

func redactToolMessage(m model.Message) model.Message {
	if isRedacted(m) {
		return m
	}
	m.Content = []model.ContentPart{
		model.TextPart{Text: redactionPlaceholder},
		model.ToolResultPart{
			ToolName: m.Name,
			Result:   map[string]any{"redacted": true, "reason": "context_pruning"},
		},
	}
	return m
}

func isRedacted(m model.Message) bool {
	for _, p := range m.Content {
		if trp, ok := p.(model.ToolResultPart); ok {
			if asMap, ok := trp.Result.(map[string]any); ok {
				if redacted, _ := asMap["redacted"].(bool); redacted {
					return true
				}
			}
		}
	}
	return false
}

// PruneReasoning implements spec.md §4.3's pruneReasoning: set
// reasoning.redacted=true on all assistant messages except the last N
// whose reasoning is non-empty.
func PruneReasoning(msgs []model.Message, policy model.PruneLimit) []model.Message {
	if policy.All {
		return msgs
	}

	keep := 0
	if !policy.None {
		keep = policy.Count
	}

	// Walk from the end, counting assistant messages with non-empty
	// reasoning; the first `keep` encountered are preserved.
	kept := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		m := &msgs[i]
		if m.Role != model.RoleAssistant || m.Reasoning == nil || m.Reasoning.Text == "" {
			continue
		}
		if kept < keep {
			kept++
			continue
		}
		m.Reasoning.Redacted = true
	}
	return msgs
}

// EstimateTokens is the informational estimator of spec.md §4.3: text ≈
// chars/4, image ≈ 768, tool_result ≈ JSON chars/6; summed over the
// conversation.
func EstimateTokens(msgs []model.Message) int {
	total := 0
	for _, m := range msgs {
		for _, p := range m.Content {
			switch v := p.(type) {
			case model.TextPart:
				total += utf8.RuneCountInString(v.Text) / 4
			case model.ImagePart:
				total += 768
			case model.ToolResultPart:
				b, _ := json.Marshal(v.Result)
				total += len(b) / 6
			case model.DocumentPart:
				total += len(v.Data) / 4
			}
		}
	}
	return total
}
