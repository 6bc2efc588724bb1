// Package bedrock is an SDK-only llm.Compat over
// github.com/aws/aws-sdk-go-v2/service/bedrockruntime, grounded on
// goa-ai's features/model/bedrock package. It exists to give the
// provider-priority fallback chain (spec.md §4.6, §8 scenario 3) a
// third (provider, model) pair and to demonstrate that BuildPayload is
// optional once CallSDK is present.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/ngoclaw/llmcoordinator/internal/llm"
	"github.com/ngoclaw/llmcoordinator/internal/model"
)

type Compat struct {
	client *bedrockruntime.Client
}

func New(client *bedrockruntime.Client) *Compat {
	return &Compat{client: client}
}

var _ llm.SDKCompat = (*Compat)(nil)

// BuildPayload is intentionally unimplemented: Bedrock is reached only
// through CallSDK, so the HTTP-payload path of spec.md §4.7 step 2 never
// runs for this Compat.
func (c *Compat) BuildPayload(modelName string, settings model.ProviderSettings, messages []model.Message, tools []model.UnifiedTool, choice *model.ToolChoice) (llm.Payload, error) {
	return nil, fmt.Errorf("bedrock compat has no HTTP payload path, sdk:true is required")
}

func (c *Compat) ParseResponse(raw []byte, modelName string) (*model.LLMResponse, error) {
	return nil, fmt.Errorf("bedrock compat has no HTTP payload path")
}

func (c *Compat) ParseStreamChunk(chunk []byte) (model.ParsedChunk, error) {
	return model.ParsedChunk{}, fmt.Errorf("bedrock streaming goes through the SDK event stream, not raw chunks")
}

func (c *Compat) GetStreamingFlags() map[string]any { return nil }

func (c *Compat) SerializeTools(tools []model.UnifiedTool) any {
	out := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		schema, _ := json.Marshal(t.ParametersJSONSchema)
		out = append(out, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document{raw: schema}},
			},
		})
	}
	return out
}

func (c *Compat) SerializeToolChoice(choice *model.ToolChoice) any {
	if choice == nil {
		return nil
	}
	switch choice.Mode {
	case model.ToolChoiceSingle:
		return &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{Name: aws.String(choice.Name)}}
	case model.ToolChoiceRequired:
		return &types.ToolChoiceMemberAny{}
	default:
		return &types.ToolChoiceMemberAuto{}
	}
}

// CallSDK implements llm.SDKCompat via the Bedrock Converse API.
func (c *Compat) CallSDK(ctx context.Context, modelName string, settings model.ProviderSettings, messages []model.Message, tools []model.UnifiedTool, choice *model.ToolChoice) (*model.LLMResponse, error) {
	var sdkMessages []types.Message
	for _, m := range messages {
		if m.Role == model.RoleSystem {
			continue // Bedrock Converse carries system prompt as a separate field
		}
		role := types.ConversationRoleUser
		if m.Role == model.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		sdkMessages = append(sdkMessages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.TextContent()}},
		})
	}

	var system []types.SystemContentBlock
	for _, m := range messages {
		if m.Role == model.RoleSystem {
			system = append(system, &types.SystemContentBlockMemberText{Value: m.TextContent()})
		}
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelName),
		Messages: sdkMessages,
		System:   system,
	}
	if settings.Temperature != nil {
		t := float32(*settings.Temperature)
		input.InferenceConfig = &types.InferenceConfiguration{Temperature: aws.Float32(t)}
	}
	if len(tools) > 0 {
		toolConfig := &types.ToolConfiguration{Tools: c.SerializeTools(tools).([]types.Tool)}
		input.ToolConfig = toolConfig
	}

	out, err := c.client.Converse(ctx, input)
	if err != nil {
		return nil, err
	}

	resp := &model.LLMResponse{Model: modelName, Role: model.RoleAssistant, FinishReason: model.FinishStop}
	if msgOut, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msgOut.Value.Content {
			switch b := block.(type) {
			case *types.ContentBlockMemberText:
				resp.Content = append(resp.Content, model.TextPart{Text: b.Value})
			case *types.ContentBlockMemberToolUse:
				var args map[string]any
				if b.Value.Input != nil {
					raw, _ := b.Value.Input.MarshalSmithyDocument()
					_ = json.Unmarshal(raw, &args)
				}
				resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
					ID:        aws.ToString(b.Value.ToolUseId),
					Name:      aws.ToString(b.Value.Name),
					Arguments: args,
				})
			}
		}
	}
	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = model.FinishToolCalls
	}
	if out.Usage != nil {
		resp.Usage = &model.TokenUsage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}
	return resp, nil
}

// document is a minimal smithydocument.Marshaler wrapping a pre-encoded
// JSON schema, since the AWS SDK represents Bedrock tool schemas as an
// opaque smithy Document rather than a Go struct.
type document struct {
	raw []byte
}

func (d document) MarshalSmithyDocument() ([]byte, error) {
	return d.raw, nil
}

func (d document) UnmarshalSmithyDocument(v any) error {
	return json.Unmarshal(d.raw, v)
}
