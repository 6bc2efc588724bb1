package registry

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/ngoclaw/llmcoordinator/internal/errkit"
	"github.com/ngoclaw/llmcoordinator/internal/llm"
	"github.com/ngoclaw/llmcoordinator/internal/model"
	"gopkg.in/yaml.v3"
)

// fileManifest is the on-disk YAML shape SPEC_FULL.md §4.14 describes:
// providers, tools, MCP servers and process routes declared statically,
// with Compat module instances wired separately (a Go interface value
// has no YAML representation).
type fileManifest struct {
	Providers  []providerEntry    `yaml:"providers"`
	Tools      []toolEntry        `yaml:"tools"`
	MCPServers []mcpServerEntry   `yaml:"mcpServers"`
	Routes     []routeEntry       `yaml:"routes"`
	VectorStores []vectorStoreEntry `yaml:"vectorStores"`
	Embeddings   []embeddingEntry   `yaml:"embeddingProviders"`
}

type providerEntry struct {
	ID                   string                   `yaml:"id"`
	Compat               string                   `yaml:"compat"`
	SDK                  bool                     `yaml:"sdk"`
	EndpointURLTemplate  string                   `yaml:"endpointUrlTemplate"`
	StreamingURLTemplate string                   `yaml:"streamingUrlTemplate"`
	Headers              map[string]string        `yaml:"headers"`
	StreamingHeaders     map[string]string        `yaml:"streamingHeaders"`
	Method               string                   `yaml:"method"`
	RetryWords           []string                 `yaml:"retryWords"`
	Models               []string                 `yaml:"models"`
	PayloadExtensions    []payloadExtensionEntry  `yaml:"payloadExtensions"`
}

type payloadExtensionEntry struct {
	Path     []string `yaml:"path"`
	Value    any      `yaml:"value"`
	Type     string   `yaml:"type"`
	Required bool     `yaml:"required"`
	Merge    string   `yaml:"merge"`
}

type toolEntry struct {
	Name                 string         `yaml:"name"`
	Description          string         `yaml:"description"`
	ParametersJSONSchema map[string]any `yaml:"parametersJsonSchema"`
}

type mcpServerEntry struct {
	ID      string            `yaml:"id"`
	Command []string          `yaml:"command"`
	Env     map[string]string `yaml:"env"`
}

type routeEntry struct {
	ID    string `yaml:"id"`
	Match struct {
		Kind    string `yaml:"kind"`
		Pattern string `yaml:"pattern"`
	} `yaml:"match"`
	Invoke struct {
		Kind       string            `yaml:"kind"`
		ModuleName string            `yaml:"moduleName"`
		Command    []string          `yaml:"command"`
		Env        map[string]string `yaml:"env"`
		URL        string            `yaml:"url"`
		Headers    map[string]string `yaml:"headers"`
		MCPServer  string            `yaml:"mcpServer"`
	} `yaml:"invoke"`
	TimeoutMs int `yaml:"timeoutMs"`
}

type vectorStoreEntry struct {
	ID         string `yaml:"id"`
	CompatKind string `yaml:"compatKind"`
}

type embeddingEntry struct {
	ID         string `yaml:"id"`
	CompatKind string `yaml:"compatKind"`
}

// snapshot is the resolved, queryable form of one loaded manifest.
type snapshot struct {
	providers    map[string]*llm.ProviderManifest
	tools        map[string]model.UnifiedTool
	mcpServers   map[string]mcpServerEntry
	routes       []model.ProcessRoute
	vectorStores map[string]*VectorStoreManifest
	embeddings   map[string]*EmbeddingManifest
}

// FileRegistry is SPEC_FULL.md §4.14's default Registry: a YAML manifest
// loaded into memory, optionally kept fresh by a fsnotify watcher
// (watch.go). CompatModules and VectorStoreCompats/EmbeddingCompats map
// a manifest-declared kind/name to the Go object implementing it —
// those can't be described in YAML so they're supplied by the caller at
// construction, mirroring how the teacher's infrastructure/config
// package separates static config from wired Go dependencies.
type FileRegistry struct {
	mu       sync.RWMutex
	snap     *snapshot
	path     string
	compats  map[string]llm.Compat
	vstores  map[string]any
	embeds   map[string]any
}

// NewFileRegistry loads path once and returns a FileRegistry. compats
// maps a provider's "compat" field to a constructed llm.Compat instance.
func NewFileRegistry(path string, compats map[string]llm.Compat, vstores, embeds map[string]any) (*FileRegistry, error) {
	r := &FileRegistry{path: path, compats: compats, vstores: vstores, embeds: embeds}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads and re-parses the manifest file, atomically swapping
// the in-memory snapshot. A parse error leaves the previous snapshot in
// place.
func (r *FileRegistry) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read manifest %s: %w", r.path, err)
	}

	var fm fileManifest
	if err := yaml.Unmarshal(data, &fm); err != nil {
		return fmt.Errorf("parse manifest %s: %w", r.path, err)
	}

	snap := &snapshot{
		providers:    map[string]*llm.ProviderManifest{},
		tools:        map[string]model.UnifiedTool{},
		mcpServers:   map[string]mcpServerEntry{},
		vectorStores: map[string]*VectorStoreManifest{},
		embeddings:   map[string]*EmbeddingManifest{},
	}

	for _, p := range fm.Providers {
		exts := make([]llm.PayloadExtension, 0, len(p.PayloadExtensions))
		for _, pe := range p.PayloadExtensions {
			exts = append(exts, llm.PayloadExtension{
				Path:     pe.Path,
				Value:    pe.Value,
				Type:     llm.ValueType(pe.Type),
				Required: pe.Required,
				Merge:    llm.MergeStrategy(pe.Merge),
			})
		}
		snap.providers[p.ID] = &llm.ProviderManifest{
			ID:                   p.ID,
			CompatName:           p.Compat,
			SDK:                  p.SDK,
			EndpointURLTemplate:  p.EndpointURLTemplate,
			StreamingURLTemplate: p.StreamingURLTemplate,
			StreamingHeaders:     p.StreamingHeaders,
			Headers:              p.Headers,
			Method:               p.Method,
			RetryWords:           p.RetryWords,
			PayloadExtensions:    exts,
			Models:               p.Models,
		}
	}

	for _, t := range fm.Tools {
		snap.tools[t.Name] = model.UnifiedTool{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJSONSchema: t.ParametersJSONSchema,
		}
	}

	for _, s := range fm.MCPServers {
		snap.mcpServers[s.ID] = s
	}

	for _, rt := range fm.Routes {
		snap.routes = append(snap.routes, model.ProcessRoute{
			ID: rt.ID,
			Match: model.RouteMatch{
				Kind:    model.MatchKind(rt.Match.Kind),
				Pattern: rt.Match.Pattern,
			},
			Invoke: model.RouteInvoke{
				Kind:       model.InvokeKind(rt.Invoke.Kind),
				ModuleName: rt.Invoke.ModuleName,
				Command:    rt.Invoke.Command,
				Env:        rt.Invoke.Env,
				URL:        rt.Invoke.URL,
				Headers:    rt.Invoke.Headers,
				MCPServer:  rt.Invoke.MCPServer,
			},
			TimeoutMs: rt.TimeoutMs,
		})
	}

	for _, v := range fm.VectorStores {
		snap.vectorStores[v.ID] = &VectorStoreManifest{ID: v.ID, CompatKind: v.CompatKind}
	}
	for _, e := range fm.Embeddings {
		snap.embeddings[e.ID] = &EmbeddingManifest{ID: e.ID, CompatKind: e.CompatKind}
	}

	r.mu.Lock()
	r.snap = snap
	r.mu.Unlock()
	return nil
}

func (r *FileRegistry) current() *snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

func (r *FileRegistry) GetProvider(ctx context.Context, id string) (*llm.ProviderManifest, error) {
	p, ok := r.current().providers[id]
	if !ok {
		return nil, &errkit.ManifestError{Kind: "provider", ID: id, Message: "unknown provider"}
	}
	return p, nil
}

func (r *FileRegistry) GetTool(ctx context.Context, name string) (*model.UnifiedTool, error) {
	t, ok := r.current().tools[name]
	if !ok {
		return nil, &errkit.ManifestError{Kind: "tool", ID: name, Message: "unknown tool"}
	}
	return &t, nil
}

func (r *FileRegistry) GetTools(ctx context.Context, names []string) ([]model.UnifiedTool, error) {
	snap := r.current()
	out := make([]model.UnifiedTool, 0, len(names))
	for _, n := range names {
		t, ok := snap.tools[n]
		if !ok {
			return nil, &errkit.ManifestError{Kind: "tool", ID: n, Message: "unknown tool"}
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *FileRegistry) GetMCPServers(ctx context.Context, ids []string) ([]string, error) {
	snap := r.current()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := snap.mcpServers[id]; !ok {
			return nil, &errkit.ManifestError{Kind: "mcp_server", ID: id, Message: "unknown mcp server"}
		}
		out = append(out, id)
	}
	return out, nil
}

func (r *FileRegistry) GetVectorStore(ctx context.Context, id string) (*VectorStoreManifest, error) {
	v, ok := r.current().vectorStores[id]
	if !ok {
		return nil, &errkit.ManifestError{Kind: "vector_store", ID: id, Message: "unknown vector store"}
	}
	return v, nil
}

func (r *FileRegistry) GetVectorStoreCompat(ctx context.Context, kind string) (any, error) {
	c, ok := r.vstores[kind]
	if !ok {
		return nil, &errkit.ManifestError{Kind: "vector_store_compat", ID: kind, Message: "unknown vector store compat"}
	}
	return c, nil
}

func (r *FileRegistry) GetEmbeddingProvider(ctx context.Context, id string) (*EmbeddingManifest, error) {
	e, ok := r.current().embeddings[id]
	if !ok {
		return nil, &errkit.ManifestError{Kind: "embedding_provider", ID: id, Message: "unknown embedding provider"}
	}
	return e, nil
}

func (r *FileRegistry) GetEmbeddingCompat(ctx context.Context, kind string) (any, error) {
	c, ok := r.embeds[kind]
	if !ok {
		return nil, &errkit.ManifestError{Kind: "embedding_compat", ID: kind, Message: "unknown embedding compat"}
	}
	return c, nil
}

func (r *FileRegistry) GetProcessRoutes(ctx context.Context) ([]model.ProcessRoute, error) {
	return r.current().routes, nil
}

func (r *FileRegistry) GetCompatModule(ctx context.Context, name string) (llm.Compat, error) {
	c, ok := r.compats[name]
	if !ok {
		return nil, &errkit.ManifestError{Kind: "compat", ID: name, Message: "unknown compat module"}
	}
	return c, nil
}
