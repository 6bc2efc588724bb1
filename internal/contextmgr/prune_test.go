package contextmgr

import (
	"testing"

	"github.com/ngoclaw/llmcoordinator/internal/model"
)

func makeCycle(callID string) []model.Message {
	return []model.Message{
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: callID, Name: "t"}}},
		{Role: model.RoleTool, ToolCallID: callID, Name: "t", Content: []model.ContentPart{model.TextPart{Text: "result"}}},
	}
}

func TestPruneToolResultsKeepsNewestCycles(t *testing.T) {
	var msgs []model.Message
	for i := 0; i < 5; i++ {
		msgs = append(msgs, makeCycle(string(rune('a'+i)))...)
	}

	pruned := PruneToolResults(append([]model.Message{}, msgs...), model.PruneLimit{Count: 2})

	redactedCount := 0
	for _, m := range pruned {
		if m.Role == model.RoleTool && isRedacted(m) {
			redactedCount++
		}
	}
	if redactedCount != 3 {
		t.Fatalf("expected 3 oldest cycles redacted, got %d", redactedCount)
	}

	// the 2 newest must remain unchanged
	last4 := pruned[len(pruned)-4:]
	for _, m := range last4 {
		if m.Role == model.RoleTool && isRedacted(m) {
			t.Fatalf("expected newest cycles unredacted")
		}
	}
}

func TestPruneToolResultsAllIsNoOp(t *testing.T) {
	msgs := makeCycle("c1")
	out := PruneToolResults(append([]model.Message{}, msgs...), model.PruneLimit{All: true})
	if isRedacted(out[1]) {
		t.Fatalf("expected 'all' policy to redact nothing")
	}
}

func TestPruneToolResultsNoneRedactsAll(t *testing.T) {
	msgs := makeCycle("c1")
	out := PruneToolResults(append([]model.Message{}, msgs...), model.PruneLimit{None: true})
	if !isRedacted(out[1]) {
		t.Fatalf("expected 'none' policy to redact every cycle")
	}
}

func TestEstimateTokens(t *testing.T) {
	msgs := []model.Message{{Role: model.RoleUser, Content: []model.ContentPart{model.TextPart{Text: "12345678"}}}}
	if got := EstimateTokens(msgs); got != 2 {
		t.Fatalf("expected 2 tokens for 8 chars, got %d", got)
	}
}
