package model

import (
	"encoding/json"
	"fmt"
)

// StreamEvent is a tagged union: TokenEvent | DeltaEvent | ToolEvent |
// DoneEvent | ErrorEvent.
type StreamEvent interface {
	isStreamEvent()
}

type TokenEvent struct {
	Token string
}

func (TokenEvent) isStreamEvent() {}

func (e TokenEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string
		Token string
	}{"token", e.Token})
}

type DeltaEvent struct {
	Content string
}

func (DeltaEvent) isStreamEvent() {}

func (e DeltaEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    string
		Content string
	}{"delta", e.Content})
}

type ToolStreamEvent struct {
	Event ToolCallEvent
}

func (ToolStreamEvent) isStreamEvent() {}

func (e ToolStreamEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string
		Event ToolCallEvent
	}{"tool", e.Event})
}

type DoneEvent struct {
	Response LLMResponse
}

func (DoneEvent) isStreamEvent() {}

func (e DoneEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string
		Response LLMResponse
	}{"done", e.Response})
}

type ErrorEvent struct {
	Err error
}

func (ErrorEvent) isStreamEvent() {}

func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Type  string
		Error string
	}{"error", msg})
}

// UnmarshalStreamEvent rebuilds a StreamEvent from its Type
// discriminator, the Unmarshal-direction counterpart to each variant's
// MarshalJSON above. ErrorEvent round-trips only its message text, since
// an error value itself isn't serializable.
func UnmarshalStreamEvent(data []byte) (StreamEvent, error) {
	var head struct{ Type string }
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case "token":
		var v struct{ Token string }
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return TokenEvent{Token: v.Token}, nil
	case "delta":
		var v struct{ Content string }
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return DeltaEvent{Content: v.Content}, nil
	case "tool":
		var v struct{ Event json.RawMessage }
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		event, err := unmarshalToolCallEvent(v.Event)
		if err != nil {
			return nil, err
		}
		return ToolStreamEvent{Event: event}, nil
	case "done":
		var v struct {
			Response struct {
				LLMResponse
				Content []json.RawMessage
			}
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		resp := v.Response.LLMResponse
		for _, raw := range v.Response.Content {
			part, err := unmarshalContentPart(raw)
			if err != nil {
				return nil, err
			}
			resp.Content = append(resp.Content, part)
		}
		return DoneEvent{Response: resp}, nil
	case "error":
		var v struct{ Error string }
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return ErrorEvent{Err: fmt.Errorf("%s", v.Error)}, nil
	default:
		return nil, fmt.Errorf("model: unknown stream event type %q", head.Type)
	}
}

// ToolCallEvent is a tagged union: ToolStart | ToolArgsDelta | ToolEnd | ToolResult.
type ToolCallEvent interface {
	isToolCallEvent()
}

type ToolStart struct {
	CallID string
	Name   string
}

func (ToolStart) isToolCallEvent() {}

func (e ToolStart) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   string
		CallID string
		Name   string
	}{"start", e.CallID, e.Name})
}

type ToolArgsDelta struct {
	CallID string
	Delta  string
}

func (ToolArgsDelta) isToolCallEvent() {}

func (e ToolArgsDelta) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   string
		CallID string
		Delta  string
	}{"args_delta", e.CallID, e.Delta})
}

type ToolEnd struct {
	CallID    string
	Name      string
	Arguments map[string]any
}

func (ToolEnd) isToolCallEvent() {}

func (e ToolEnd) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      string
		CallID    string
		Name      string
		Arguments map[string]any
	}{"end", e.CallID, e.Name, e.Arguments})
}

type ToolResultEvent struct {
	CallID string
	Result any
}

func (ToolResultEvent) isToolCallEvent() {}

func (e ToolResultEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   string
		CallID string
		Result any
	}{"result", e.CallID, e.Result})
}

// unmarshalToolCallEvent dispatches a tagged JSON object to the
// concrete ToolCallEvent its Type discriminator names.
func unmarshalToolCallEvent(raw json.RawMessage) (ToolCallEvent, error) {
	var head struct{ Type string }
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case "start":
		var v struct{ CallID, Name string }
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return ToolStart{CallID: v.CallID, Name: v.Name}, nil
	case "args_delta":
		var v struct{ CallID, Delta string }
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return ToolArgsDelta{CallID: v.CallID, Delta: v.Delta}, nil
	case "end":
		var v struct {
			CallID, Name string
			Arguments    map[string]any
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return ToolEnd{CallID: v.CallID, Name: v.Name, Arguments: v.Arguments}, nil
	case "result":
		var v struct {
			CallID string
			Result any
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return ToolResultEvent{CallID: v.CallID, Result: v.Result}, nil
	default:
		return nil, fmt.Errorf("model: unknown tool call event type %q", head.Type)
	}
}

// ParsedChunk is what a Compat's parseStreamChunk returns per spec.md §4.7
// step 5.
type ParsedChunk struct {
	Text                  string
	ToolEvents            []ToolCallEvent
	FinishedWithToolCalls bool
	Usage                 *TokenUsage
	Reasoning             *Reasoning
}
