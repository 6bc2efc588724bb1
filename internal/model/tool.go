package model

// UnifiedTool is the provider-agnostic tool description surfaced to a
// Compat. Name is the post-sanitization form by the time it reaches a
// provider payload.
type UnifiedTool struct {
	Name                 string
	Description          string
	ParametersJSONSchema map[string]any
}

// ToolChoiceMode selects how strongly the model is pushed toward tool use.
type ToolChoiceMode int

const (
	ToolChoiceAuto ToolChoiceMode = iota
	ToolChoiceNone
	ToolChoiceSingle
	ToolChoiceRequired
)

type ToolChoice struct {
	Mode  ToolChoiceMode
	Name  string   // set when Mode == ToolChoiceSingle
	Names []string // set when Mode == ToolChoiceRequired
}

// MatchKind is the pattern-matching strategy a ProcessRoute uses against
// a tool name.
type MatchKind string

const (
	MatchExact  MatchKind = "exact"
	MatchPrefix MatchKind = "prefix"
	MatchRegex  MatchKind = "regex"
	MatchGlob   MatchKind = "glob"
)

// InvokeKind selects how a matched route is executed.
type InvokeKind string

const (
	InvokeModule  InvokeKind = "module"
	InvokeCommand InvokeKind = "command"
	InvokeHTTP    InvokeKind = "http"
	InvokeMCP     InvokeKind = "mcp"
)

// ProcessRoute is one registry-provided mapping from a tool-name pattern
// to an invocation strategy.
type ProcessRoute struct {
	ID    string
	Match RouteMatch
	// Invoke is a tagged variant on InvokeKind; only the fields relevant
	// to Kind are populated.
	Invoke    RouteInvoke
	TimeoutMs int
	Metadata  map[string]any
}

type RouteMatch struct {
	Kind    MatchKind
	Pattern string
}

type RouteInvoke struct {
	Kind InvokeKind

	// InvokeModule
	ModuleName string

	// InvokeCommand
	Command []string
	Env     map[string]string

	// InvokeHTTP
	URL     string
	Headers map[string]string

	// InvokeMCP
	MCPServer string
}
