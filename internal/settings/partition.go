// Package settings implements spec.md §4.1: splitting a flat settings
// map into {runtime, provider, extras}, total and disjoint.
package settings

import (
	"fmt"

	"github.com/ngoclaw/llmcoordinator/internal/model"
	"github.com/ngoclaw/llmcoordinator/internal/telemetry"
	"go.uber.org/zap"
)

var runtimeKeys = map[string]bool{
	"toolCountdownEnabled":   true,
	"toolFinalPromptEnabled": true,
	"maxToolIterations":      true,
	"preserveToolResults":    true,
	"preserveReasoning":      true,
	"parallelToolExecution":  true,
	"toolResultMaxChars":     true,
	"batchId":                true,
}

var providerKeys = map[string]bool{
	"temperature":      true,
	"topP":             true,
	"maxTokens":        true,
	"stop":             true,
	"responseFormat":   true,
	"seed":             true,
	"frequencyPenalty": true,
	"presencePenalty":  true,
	"logitBias":        true,
	"logprobs":         true,
	"topLogprobs":      true,
	"reasoning":        true,
	"reasoningBudget":  true,
}

// Partitioned is the disjoint three-way split of a flat settings map.
type Partitioned struct {
	Runtime  model.RuntimeSettings
	Provider model.ProviderSettings
	Extras   map[string]any
}

// Partition splits flat into {runtime, provider, extras} per spec.md
// §4.1. Every key in flat lands in exactly one bucket; unrecognized keys
// go to Extras and are logged once as "unsupported field" so nothing is
// silently dropped on the floor before reaching a provider payload
// extension.
func Partition(flat map[string]any, logger telemetry.Logger) Partitioned {
	out := Partitioned{
		Runtime:  model.DefaultRuntimeSettings(),
		Provider: model.ProviderSettings{},
		Extras:   map[string]any{},
	}

	for k, v := range flat {
		switch {
		case runtimeKeys[k]:
			applyRuntimeKey(&out.Runtime, k, v, logger)
		case providerKeys[k]:
			applyProviderKey(&out.Provider, k, v)
		default:
			out.Extras[k] = v
			if logger != nil {
				logger.Warn("unsupported field", zap.String("field", k))
			}
		}
	}
	return out
}

func applyRuntimeKey(r *model.RuntimeSettings, k string, v any, logger telemetry.Logger) {
	switch k {
	case "toolCountdownEnabled":
		if b, ok := v.(bool); ok {
			r.ToolCountdownEnabled = b
		}
	case "toolFinalPromptEnabled":
		if b, ok := v.(bool); ok {
			r.ToolFinalPromptEnabled = b
		}
	case "maxToolIterations":
		n, err := coerceNonNegativeInt(v)
		if err != nil {
			// A negative or non-numeric value is not rejected as a
			// configuration error: it is logged as a warning and the
			// default of 10 is used. Strings are not coerced to numbers.
			if logger != nil {
				logger.Warn("invalid maxToolIterations, using default", zap.String("error", err.Error()))
			}
			r.MaxToolIterations = 10
			return
		}
		r.MaxToolIterations = n
	case "preserveToolResults":
		r.PreserveToolResults = coercePruneLimit(v, 3)
	case "preserveReasoning":
		r.PreserveReasoning = coercePruneLimit(v, 3)
	case "parallelToolExecution":
		if b, ok := v.(bool); ok {
			r.ParallelToolExecution = b
		}
	case "toolResultMaxChars":
		if n, err := coerceNonNegativeInt(v); err == nil {
			r.ToolResultMaxChars = n
		}
	case "batchId":
		if s, ok := v.(string); ok {
			r.BatchID = s
		}
	}
}

func applyProviderKey(p *model.ProviderSettings, k string, v any) {
	switch k {
	case "temperature":
		p.Temperature = toFloatPtr(v)
	case "topP":
		p.TopP = toFloatPtr(v)
	case "maxTokens":
		p.MaxTokens = toIntPtr(v)
	case "stop":
		if ss, ok := v.([]string); ok {
			p.Stop = ss
		}
	case "responseFormat":
		p.ResponseFormat = v
	case "seed":
		p.Seed = toIntPtr(v)
	case "frequencyPenalty":
		p.FrequencyPenalty = toFloatPtr(v)
	case "presencePenalty":
		p.PresencePenalty = toFloatPtr(v)
	case "logitBias":
		if m, ok := v.(map[string]float64); ok {
			p.LogitBias = m
		}
	case "logprobs":
		if b, ok := v.(bool); ok {
			p.Logprobs = &b
		}
	case "topLogprobs":
		p.TopLogprobs = toIntPtr(v)
	case "reasoning":
		p.Reasoning = v
	case "reasoningBudget":
		p.ReasoningBudget = toIntPtr(v)
	}
}

func coerceNonNegativeInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return n, nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return int(n), nil
	case float64:
		if n < 0 {
			return 0, fmt.Errorf("negative value %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("not a number: %v (%T)", v, v)
	}
}

func coercePruneLimit(v any, def int) model.PruneLimit {
	switch s := v.(type) {
	case string:
		switch s {
		case "all":
			return model.PruneLimit{All: true}
		case "none":
			return model.PruneLimit{None: true}
		}
	case int:
		return model.PruneLimit{Count: s}
	case float64:
		return model.PruneLimit{Count: int(s)}
	}
	return model.PruneLimit{Count: def}
}

func toFloatPtr(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	}
	return nil
}

func toIntPtr(v any) *int {
	switch n := v.(type) {
	case int:
		return &n
	case float64:
		i := int(n)
		return &i
	}
	return nil
}
