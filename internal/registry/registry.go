// Package registry defines the Registry interface consumed by
// internal/coordinator, which narrows it for internal/discovery
// (spec.md §6), plus one concrete,
// swappable default implementation (SPEC_FULL.md §4.14) backed by
// in-memory maps loaded from a YAML manifest, with optional fsnotify hot
// reload. The default implementation is NOT consulted by the core
// coordinator logic directly — only through the Registry interface.
package registry

import (
	"context"

	"github.com/ngoclaw/llmcoordinator/internal/llm"
	"github.com/ngoclaw/llmcoordinator/internal/model"
)

// VectorStoreManifest and EmbeddingManifest are out of scope per spec.md
// §1 ("Vector store and embedding backends... only their interfaces
// matter") but the Registry interface still declares accessors for them
// so a caller that wires a real implementation can do so without
// changing this interface.
type VectorStoreManifest struct {
	ID        string
	CompatKind string
}

type EmbeddingManifest struct {
	ID        string
	CompatKind string
}

// Registry is the external interface spec.md §6 consumes. All methods
// are async (context-bearing) and raise ManifestError on unknown id.
type Registry interface {
	GetProvider(ctx context.Context, id string) (*llm.ProviderManifest, error)
	GetTool(ctx context.Context, name string) (*model.UnifiedTool, error)
	GetTools(ctx context.Context, names []string) ([]model.UnifiedTool, error)
	GetMCPServers(ctx context.Context, ids []string) ([]string, error)
	GetVectorStore(ctx context.Context, id string) (*VectorStoreManifest, error)
	GetVectorStoreCompat(ctx context.Context, kind string) (any, error)
	GetEmbeddingProvider(ctx context.Context, id string) (*EmbeddingManifest, error)
	GetEmbeddingCompat(ctx context.Context, kind string) (any, error)
	GetProcessRoutes(ctx context.Context) ([]model.ProcessRoute, error)
	GetCompatModule(ctx context.Context, name string) (llm.Compat, error)
}
