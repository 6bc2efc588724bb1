package model

// TokenUsage mirrors goa-ai's model.TokenUsage; every LLMResponse.Usage
// and StreamEvent done.Usage carries one.
type TokenUsage struct {
	InputTokens     int
	OutputTokens    int
	TotalTokens     int
	CacheReadTokens int
	CacheWriteTokens int
}

// FinishReason enumerates why a provider stopped generating.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
	FinishError     FinishReason = "error"
)

// LLMResponse is one provider call's normalized result.
type LLMResponse struct {
	Provider     string
	Model        string
	Role         Role // always RoleAssistant once validated
	Content      []ContentPart
	ToolCalls    []ToolCall
	FinishReason FinishReason
	Usage        *TokenUsage
	Reasoning    *Reasoning
	Raw          map[string]any // e.g. raw.toolResults attached by the tool loop
}

// TextJoined concatenates every TextPart in Content with no separator
// (Message.TextContent, by contrast, joins a message's parts with "\n").
func (r LLMResponse) TextJoined() string {
	var out string
	for _, p := range r.Content {
		if t, ok := p.(TextPart); ok {
			out += t.Text
		}
	}
	return out
}
