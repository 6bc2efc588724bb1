// Package model holds the shared data vocabulary for the coordinator:
// messages, tools, settings, responses and stream events. Types that
// behave as tagged unions are modeled as interfaces with a private
// marker method, the same idiom the teacher repo uses for its own
// model.Part union.
package model

import (
	"encoding/json"
	"fmt"
)

// Role identifies who authored a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of the conversation. Every ToolCalls entry must
// appear on an assistant message; every message carrying ToolCallID must
// be tool-role and reference a ToolCall.ID from an earlier assistant
// message in the same conversation.
type Message struct {
	Role       Role
	Content    []ContentPart
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
	Reasoning  *Reasoning
}

// UnmarshalJSON rebuilds Content's ContentPart interface values from
// their Type discriminator; encoding/json cannot do this on its own for
// an interface field with only unexported marker methods.
func (m *Message) UnmarshalJSON(data []byte) error {
	var aux struct {
		Role       Role
		Content    []json.RawMessage
		ToolCalls  []ToolCall
		ToolCallID string
		Name       string
		Reasoning  *Reasoning
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	content := make([]ContentPart, len(aux.Content))
	for i, raw := range aux.Content {
		part, err := unmarshalContentPart(raw)
		if err != nil {
			return fmt.Errorf("message: content[%d]: %w", i, err)
		}
		content[i] = part
	}

	m.Role = aux.Role
	m.Content = content
	m.ToolCalls = aux.ToolCalls
	m.ToolCallID = aux.ToolCallID
	m.Name = aux.Name
	m.Reasoning = aux.Reasoning
	return nil
}

// ContentPart is a tagged union: TextPart | ImagePart | ToolResultPart | DocumentPart.
type ContentPart interface {
	isContentPart()
}

type TextPart struct {
	Text string
}

func (TextPart) isContentPart() {}

func (p TextPart) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string
		Text string
	}{"text", p.Text})
}

type ImagePart struct {
	URL  string
	Mime string
}

func (ImagePart) isContentPart() {}

func (p ImagePart) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string
		URL  string
		Mime string
	}{"image", p.URL, p.Mime})
}

// ToolResultPart carries a tool's JSON result inline in message content,
// distinct from the Message-level tool-result envelope appended by
// internal/messages.
type ToolResultPart struct {
	ToolName string
	Result   any
}

func (ToolResultPart) isContentPart() {}

func (p ToolResultPart) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string
		ToolName string
		Result   any
	}{"tool_result", p.ToolName, p.Result})
}

type DocumentSource string

const (
	DocumentSourceBase64   DocumentSource = "base64"
	DocumentSourceURL      DocumentSource = "url"
	DocumentSourceFileID   DocumentSource = "file_id"
	DocumentSourceFilepath DocumentSource = "filepath"
)

type DocumentPart struct {
	Source          DocumentSource
	Mime            string
	Filename        string
	Data            string
	ProviderOptions map[string]any
}

func (DocumentPart) isContentPart() {}

func (p DocumentPart) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type            string
		Source          DocumentSource
		Mime            string
		Filename        string
		Data            string
		ProviderOptions map[string]any
	}{"document", p.Source, p.Mime, p.Filename, p.Data, p.ProviderOptions})
}

// unmarshalContentPart dispatches a tagged JSON object to the concrete
// ContentPart its Type discriminator names.
func unmarshalContentPart(raw json.RawMessage) (ContentPart, error) {
	var head struct{ Type string }
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case "text":
		var v struct{ Text string }
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return TextPart{Text: v.Text}, nil
	case "image":
		var v struct{ URL, Mime string }
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return ImagePart{URL: v.URL, Mime: v.Mime}, nil
	case "tool_result":
		var v struct {
			ToolName string
			Result   any
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return ToolResultPart{ToolName: v.ToolName, Result: v.Result}, nil
	case "document":
		var v struct {
			Source          DocumentSource
			Mime            string
			Filename        string
			Data            string
			ProviderOptions map[string]any
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return DocumentPart{Source: v.Source, Mime: v.Mime, Filename: v.Filename, Data: v.Data, ProviderOptions: v.ProviderOptions}, nil
	default:
		return nil, fmt.Errorf("model: unknown content part type %q", head.Type)
	}
}

// ToolCall is one tool invocation requested by the model. ID is
// provider-assigned and must be unique within its assistant message.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Reasoning carries a model's chain-of-thought, if surfaced. When
// Redacted is true, compats must either omit the field or substitute a
// placeholder on re-serialization.
type Reasoning struct {
	Text     string
	Redacted bool
	Metadata map[string]any
}

// TextContent joins every TextPart in a message, the common case for
// user-visible or loggable content.
func (m Message) TextContent() string {
	var out string
	for _, p := range m.Content {
		if t, ok := p.(TextPart); ok {
			if out != "" {
				out += "\n"
			}
			out += t.Text
		}
	}
	return out
}
