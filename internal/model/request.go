package model

// ProviderModel names one (provider, model) pair in a priority list.
type ProviderModel struct {
	Provider string
	Model    string
}

// VectorContextMode controls how vector retrieval is surfaced to the model.
type VectorContextMode string

const (
	VectorContextInject VectorContextMode = "inject"
	VectorContextTool   VectorContextMode = "tool"
	VectorContextBoth   VectorContextMode = "both"
)

// VectorCtx configures inject-time retrieval and the synthesized
// vector_search pseudo-tool (spec.md §4.5 step 5).
type VectorCtx struct {
	Mode                VectorContextMode
	Locks               map[string]any    // locked params, server-enforced and hidden from the model
	ToolSchemaOverrides map[string]string // exposed param name -> renamed name
	// Required marks vector-context injection as mandatory: if every
	// vector store in VectorPriority fails or yields nothing, the Run
	// aborts with a Vector/EmbeddingError (spec.md §7) instead of
	// continuing without injection.
	Required bool
}

// LLMCallSpec is the single declarative request the Coordinator turns
// into a resilient multi-turn interaction.
type LLMCallSpec struct {
	SystemPrompt         string
	Messages             []Message
	FunctionToolNames    []string
	Tools                []UnifiedTool
	MCPServers           []string
	VectorPriority       []string
	VectorContext        *VectorCtx
	LLMPriority          []ProviderModel // ordered, non-empty
	ToolChoice           *ToolChoice
	RateLimitRetryDelays []float64 // seconds; fixed schedule when present

	Settings map[string]any // mixed runtime + provider, partitioned by internal/settings

	Metadata map[string]any

	// ThinkingOptions / CacheOptions are ambient plumbing so Compats that
	// support extended thinking or prompt caching have somewhere to put
	// the flags; they are not spec.md settings and default to zero value.
	Thinking *ThinkingOptions
	Cache    *CacheOptions
}

// ThinkingOptions threads extended-thinking knobs to a Compat, grounded
// on goa-ai's model.Request.Thinking.
type ThinkingOptions struct {
	Enable       bool
	Interleaved  bool
	BudgetTokens int
}

// CacheOptions threads prompt-caching checkpoints to a Compat, grounded
// on goa-ai's model.Request.Cache.
type CacheOptions struct {
	AfterSystem bool
	AfterTools  bool
}

// RuntimeSettings are partitioned out of LLMCallSpec.Settings by
// internal/settings; field names mirror spec.md §3's enumerated list.
type RuntimeSettings struct {
	ToolCountdownEnabled   bool
	ToolFinalPromptEnabled bool
	MaxToolIterations      int
	PreserveToolResults    PruneLimit
	PreserveReasoning      PruneLimit
	ParallelToolExecution  bool
	ToolResultMaxChars     int
	BatchID                string
}

// PruneLimit is "N | all | none" as spec.md §3 defines preserveToolResults
// and preserveReasoning.
type PruneLimit struct {
	All   bool
	None  bool
	Count int // meaningful only when !All && !None
}

// DefaultRuntimeSettings mirrors spec.md §3's stated defaults.
func DefaultRuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		ToolCountdownEnabled:   true,
		ToolFinalPromptEnabled: true,
		MaxToolIterations:      10,
		PreserveToolResults:    PruneLimit{Count: 3},
		PreserveReasoning:      PruneLimit{Count: 3},
		ParallelToolExecution:  false,
	}
}

// ProviderSettings are partitioned out of LLMCallSpec.Settings; the
// enumerated key set from spec.md §4.1.
type ProviderSettings struct {
	Temperature      *float64
	TopP             *float64
	MaxTokens        *int
	Stop             []string
	ResponseFormat   any
	Seed             *int
	FrequencyPenalty *float64
	PresencePenalty  *float64
	LogitBias        map[string]float64
	Logprobs         *bool
	TopLogprobs      *int
	Reasoning        any
	ReasoningBudget  *int
}
