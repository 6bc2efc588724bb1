// Package llm implements spec.md §4.7: one provider call via HTTP or
// SDK, through its Compat. The Compat contract itself is spec.md §6's
// "consumed" interface; internal/llm/compat/* provides concrete
// implementations so the coordinator, retry driver, and
// provider-priority fallback can be exercised end to end.
package llm

import (
	"context"

	"github.com/ngoclaw/llmcoordinator/internal/model"
)

// Payload is the provider-specific wire body a Compat builds, an opaque
// map until serialized.
type Payload map[string]any

// ValueType is the declared type of one payload extension value,
// grounded on spec.md §9's "valueType ∈
// {any,object,array,string,number,boolean}".
type ValueType string

const (
	ValueAny     ValueType = "any"
	ValueObject  ValueType = "object"
	ValueArray   ValueType = "array"
	ValueString  ValueType = "string"
	ValueNumber  ValueType = "number"
	ValueBoolean ValueType = "boolean"
)

// MergeStrategy controls how a PayloadExtension's value is combined with
// whatever may already be at its path.
type MergeStrategy string

const (
	MergeUpdate  MergeStrategy = "update"
	MergeReplace MergeStrategy = "replace"
)

// PayloadExtension is one declarative manifest entry injecting a key
// into a nested payload path (spec.md §4.7 step 2 / §9).
type PayloadExtension struct {
	Path     []string // nested key path, e.g. ["extra_body", "top_k"]
	Value    any
	Type     ValueType
	Required bool
	Merge    MergeStrategy
}

// Compat is the vendor adapter contract of spec.md §6.
type Compat interface {
	BuildPayload(model string, settings model.ProviderSettings, messages []model.Message, tools []model.UnifiedTool, choice *model.ToolChoice) (Payload, error)
	ParseResponse(raw []byte, modelName string) (*model.LLMResponse, error)
	ParseStreamChunk(chunk []byte) (model.ParsedChunk, error)
	GetStreamingFlags() map[string]any
	SerializeTools(tools []model.UnifiedTool) any
	SerializeToolChoice(choice *model.ToolChoice) any
}

// SDKCompat is the optional SDK-path extension to Compat (spec.md §4.7
// step 2, "if the Compat exposes an SDK path, call it directly").
type SDKCompat interface {
	CallSDK(ctx context.Context, modelName string, settings model.ProviderSettings, messages []model.Message, tools []model.UnifiedTool, choice *model.ToolChoice) (*model.LLMResponse, error)
}

// StreamSDKCompat is the optional SDK streaming path.
type StreamSDKCompat interface {
	StreamSDK(ctx context.Context, modelName string, settings model.ProviderSettings, messages []model.Message, tools []model.UnifiedTool, choice *model.ToolChoice) (ChunkIterator, error)
}

// PayloadExtensionCompat is the optional provider-extension merge hook.
type PayloadExtensionCompat interface {
	ApplyProviderExtensions(payload Payload, extras map[string]any) (Payload, error)
}

// ChunkIterator yields ParsedChunk values from an SDK streaming call.
// Next returns (chunk, false, nil) per chunk and (zero, true, nil) at
// end-of-stream; a non-nil error aborts iteration.
type ChunkIterator interface {
	Next() (model.ParsedChunk, bool, error)
	Close() error
}
