// Package discovery implements spec.md §4.5: the union of inline +
// registered + MCP + vector-search tools, merged last-writer-wins by
// original name, then sanitized into a nameMap.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ngoclaw/llmcoordinator/internal/errkit"
	"github.com/ngoclaw/llmcoordinator/internal/model"
	"github.com/ngoclaw/llmcoordinator/internal/sanitize"
	"github.com/ngoclaw/llmcoordinator/internal/telemetry"
)

// Registry is the subset of the consumed Registry interface discovery
// needs; defined here (not imported from internal/registry) to avoid a
// dependency cycle, since internal/registry's default implementation
// wants to depend on internal/llm, not the other way around, and
// internal/registry already depends on internal/llm — discovery only
// needs tool/MCP lookups, so it declares its own narrow view.
type Registry interface {
	GetTools(ctx context.Context, names []string) ([]model.UnifiedTool, error)
	GetMCPServers(ctx context.Context, ids []string) ([]string, error)
}

// MCPPool is the subset of the consumed MCPPool interface (spec.md §6)
// discovery needs to gather tools from active servers.
type MCPPool interface {
	ListTools(ctx context.Context, serverID string) ([]model.UnifiedTool, error)
}

// VectorStore resolves a query to zero or more synthesized tools,
// standing in for spec.md §4.5 step 4's vector-search fan-out. Out of
// scope per spec.md §1 beyond this interface.
type VectorStore interface {
	Resolve(ctx context.Context, query string) ([]model.UnifiedTool, error)
}

// Result is spec.md §4.5's discovery output.
type Result struct {
	Tools        []model.UnifiedTool
	MCPServerIDs []string
	NameMap      *sanitize.NameMap
	// InjectedContext is non-empty when VectorCtx.Mode is inject or both
	// and a vector store yielded results; the caller (internal/coordinator)
	// is responsible for folding it into the message list before the
	// provider call.
	InjectedContext string
}

// Options bundles the discovery inputs taken from an LLMCallSpec plus
// the collaborators it consults.
type Options struct {
	InlineTools       []model.UnifiedTool
	FunctionToolNames []string
	MCPServerIDs      []string
	VectorPriority    []string
	VectorQuery       string
	VectorContext     *model.VectorCtx

	Registry    Registry
	MCPPool     MCPPool
	VectorStore map[string]VectorStore // keyed by store id, priority order applied by caller
	Logger      telemetry.Logger
}

// Discover merges tool sources per spec.md §4.5, last-writer-wins keyed
// by original name, then sanitizes names and builds the nameMap.
func Discover(ctx context.Context, opts Options) (*Result, error) {
	byName := map[string]model.UnifiedTool{}
	var order []string

	add := func(t model.UnifiedTool) {
		if _, exists := byName[t.Name]; !exists {
			order = append(order, t.Name)
		}
		byName[t.Name] = t
	}

	// 1. spec.tools (inline)
	for _, t := range opts.InlineTools {
		add(t)
	}

	// 2. spec.functionToolNames resolved via registry
	if len(opts.FunctionToolNames) > 0 && opts.Registry != nil {
		tools, err := opts.Registry.GetTools(ctx, opts.FunctionToolNames)
		if err != nil {
			return nil, err
		}
		for _, t := range tools {
			add(t)
		}
	}

	// 3. MCP tools from active servers; failing servers are logged but skipped
	var activeMCPServers []string
	if opts.MCPPool != nil && len(opts.MCPServerIDs) > 0 {
		for _, id := range opts.MCPServerIDs {
			tools, err := opts.MCPPool.ListTools(ctx, id)
			if err != nil {
				if opts.Logger != nil {
					opts.Logger.Warn(fmt.Sprintf("mcp server %s: %v", id, err))
				}
				continue
			}
			activeMCPServers = append(activeMCPServers, id)
			for _, t := range tools {
				add(t)
			}
		}
	}

	// 4. vector stores in priority order, stop at first non-empty result
	var vectorResolved bool
	var vectorTools []model.UnifiedTool
	var lastVectorErr error
	if len(opts.VectorPriority) > 0 && opts.VectorStore != nil {
		for _, storeID := range opts.VectorPriority {
			store, ok := opts.VectorStore[storeID]
			if !ok {
				continue
			}
			tools, err := store.Resolve(ctx, opts.VectorQuery)
			if err != nil {
				lastVectorErr = err
				if opts.Logger != nil {
					opts.Logger.Warn(fmt.Sprintf("vector store %s: %v", storeID, err))
				}
				continue
			}
			if len(tools) > 0 {
				vectorResolved = true
				vectorTools = tools
				for _, t := range tools {
					add(t)
				}
				break
			}
		}
		if !vectorResolved && opts.VectorContext != nil && opts.VectorContext.Required {
			return nil, &errkit.VectorEmbeddingError{
				Store:    strings.Join(opts.VectorPriority, ","),
				Required: true,
				Cause:    lastVectorErr,
			}
		}
	}

	// inject-time retrieval (spec.md §3's vectorContext, mode inject|both):
	// fold the resolved vector content directly into a synthesized context
	// block instead of (or alongside) exposing it as a callable tool.
	var injectedContext string
	if vectorResolved && opts.VectorContext != nil &&
		(opts.VectorContext.Mode == model.VectorContextInject || opts.VectorContext.Mode == model.VectorContextBoth) {
		injectedContext = renderInjectedContext(vectorTools)
	}

	// 5. synthesized vector_search pseudo-tool
	if opts.VectorContext != nil && (opts.VectorContext.Mode == model.VectorContextTool || opts.VectorContext.Mode == model.VectorContextBoth) {
		pseudo, err := synthesizeVectorSearchTool(opts.VectorContext)
		if err != nil {
			return nil, err
		}
		add(pseudo)
	}

	nameMap := sanitize.NewNameMap()
	sort.Strings(order) // deterministic iteration order for tests/logging
	tools := make([]model.UnifiedTool, 0, len(order))
	for _, name := range order {
		t := byName[name]
		if err := validateSchema(t); err != nil {
			if opts.Logger != nil {
				opts.Logger.Warn(fmt.Sprintf("tool %s: dropped, invalid parameters schema: %v", t.Name, err))
			}
			continue
		}
		sanitizedName := nameMap.Add(t.Name)
		t.Name = sanitizedName
		tools = append(tools, t)
	}

	return &Result{Tools: tools, MCPServerIDs: activeMCPServers, NameMap: nameMap, InjectedContext: injectedContext}, nil
}

// renderInjectedContext flattens vector-resolved tools into a plain-text
// context block. Real embedding backends are out of scope (spec.md §1);
// a resolved tool's name/description stand in for the retrieved chunk
// text a concrete VectorStore would otherwise supply.
func renderInjectedContext(tools []model.UnifiedTool) string {
	var b strings.Builder
	for _, t := range tools {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(t.Name)
		if t.Description != "" {
			b.WriteString(": ")
			b.WriteString(t.Description)
		}
	}
	return b.String()
}

// synthesizeVectorSearchTool builds the vector_search pseudo-tool of
// spec.md §4.5 step 5: exposed parameters filtered by Locks (hidden from
// the model) and optionally renamed by ToolSchemaOverrides. Duplicate
// exposed names are a fatal configuration error.
func synthesizeVectorSearchTool(vc *model.VectorCtx) (model.UnifiedTool, error) {
	baseParams := map[string]any{
		"query": map[string]any{"type": "string"},
		"topK":  map[string]any{"type": "integer"},
		"store": map[string]any{"type": "string"},
	}

	properties := map[string]any{}
	seenExposed := map[string]bool{}
	for name, schema := range baseParams {
		if _, locked := vc.Locks[name]; locked {
			continue
		}
		exposedName := name
		if renamed, ok := vc.ToolSchemaOverrides[name]; ok {
			exposedName = renamed
		}
		if seenExposed[exposedName] {
			return model.UnifiedTool{}, fmt.Errorf("vector_search schema: duplicate exposed parameter name %q", exposedName)
		}
		seenExposed[exposedName] = true
		properties[exposedName] = schema
	}

	return model.UnifiedTool{
		Name:        "vector_search",
		Description: "Search configured vector stores for relevant context",
		ParametersJSONSchema: map[string]any{
			"type":       "object",
			"properties": properties,
		},
	}, nil
}
