// Package coordinator implements spec.md §4.11: the Run/RunStream
// facade wiring settings, messages, contextmgr, discovery, retry, llm,
// router, toolloop and streamloop together. Grounded on the teacher's
// domain/service/agent_loop.go Run/StreamRun entry points, which drive
// the same discover -> call -> loop pipeline for one vendor; this
// generalizes it across the provider-priority retry driver.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/ngoclaw/llmcoordinator/internal/discovery"
	"github.com/ngoclaw/llmcoordinator/internal/llm"
	"github.com/ngoclaw/llmcoordinator/internal/messages"
	"github.com/ngoclaw/llmcoordinator/internal/model"
	"github.com/ngoclaw/llmcoordinator/internal/registry"
	"github.com/ngoclaw/llmcoordinator/internal/retry"
	"github.com/ngoclaw/llmcoordinator/internal/router"
	"github.com/ngoclaw/llmcoordinator/internal/sanitize"
	"github.com/ngoclaw/llmcoordinator/internal/settings"
	"github.com/ngoclaw/llmcoordinator/internal/streamloop"
	"github.com/ngoclaw/llmcoordinator/internal/telemetry"
	"github.com/ngoclaw/llmcoordinator/internal/toolloop"
	"go.uber.org/zap"
)

// Coordinator is spec.md §4.11's facade. Registry, Router, Caller and
// Streamer are required; MCPPool, VectorStores, Metrics and Batch may be
// nil, and Tracer is held but not used by Run or RunStream. Coordinator
// itself holds no request-scoped state.
type Coordinator struct {
	Registry     registry.Registry
	MCPPool      discovery.MCPPool
	VectorStores map[string]discovery.VectorStore // keyed by store id; spec.md §4.5 step 4
	Router       *router.Router
	Caller       *llm.Caller
	Streamer     *llm.Streamer

	RetryPolicy retry.Policy
	Logger      telemetry.Logger
	Metrics     *telemetry.Metrics
	Tracer      *telemetry.Tracer
	Batch       *telemetry.BatchScope
}

func New(reg registry.Registry, mcpPool discovery.MCPPool, vectorStores map[string]discovery.VectorStore, r *router.Router, caller *llm.Caller, streamer *llm.Streamer, retryPolicy retry.Policy, logger telemetry.Logger, metrics *telemetry.Metrics, tracer *telemetry.Tracer, batch *telemetry.BatchScope) *Coordinator {
	return &Coordinator{
		Registry: reg, MCPPool: mcpPool, VectorStores: vectorStores, Router: r, Caller: caller, Streamer: streamer,
		RetryPolicy: retryPolicy, Logger: logger, Metrics: metrics, Tracer: tracer, Batch: batch,
	}
}

// prepared bundles the work shared by Run and RunStream: partitioned
// settings, prepared messages, discovered tools with their sanitized-name
// map, and the logger scoped for this Run. Attempts are built separately
// by buildAttempts.
type prepared struct {
	runtimeSettings model.RuntimeSettings
	providerSettings model.ProviderSettings
	extras          map[string]any
	msgs            []model.Message
	tools           []model.UnifiedTool
	nameMap         *sanitize.NameMap
	logger          telemetry.Logger
}

func (c *Coordinator) prepare(ctx context.Context, spec model.LLMCallSpec) (*prepared, error) {
	partitioned := settings.Partition(spec.Settings, c.Logger)

	logger := c.Logger
	if partitioned.Runtime.BatchID != "" && c.Batch != nil && c.Batch.SetIfChanged(partitioned.Runtime.BatchID) {
		logger = c.Logger.With(zap.String("batchId", partitioned.Runtime.BatchID))
	}

	msgs := messages.Prepare(spec.SystemPrompt, spec.Messages)

	result, err := discovery.Discover(ctx, discovery.Options{
		InlineTools:       spec.Tools,
		FunctionToolNames: spec.FunctionToolNames,
		MCPServerIDs:      spec.MCPServers,
		VectorPriority:    spec.VectorPriority,
		VectorQuery:       resolveVectorQuery(spec, msgs),
		VectorContext:     spec.VectorContext,
		Registry:          registryAdapter{c.Registry},
		MCPPool:           c.MCPPool,
		VectorStore:       c.VectorStores,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}

	if result.InjectedContext != "" {
		msgs = append(msgs, model.Message{
			Role:    model.RoleSystem,
			Content: []model.ContentPart{model.TextPart{Text: result.InjectedContext}},
		})
	}

	return &prepared{
		runtimeSettings:  partitioned.Runtime,
		providerSettings: partitioned.Provider,
		extras:           partitioned.Extras,
		msgs:             msgs,
		tools:            result.Tools,
		nameMap:          result.NameMap,
		logger:           logger,
	}, nil
}

// resolveVectorQuery implements spec.md §4.5 step 4's query resolution:
// metadata.vectorQuery if present, else the last user message's text.
func resolveVectorQuery(spec model.LLMCallSpec, msgs []model.Message) string {
	if q, ok := spec.Metadata["vectorQuery"].(string); ok && q != "" {
		return q
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleUser {
			return msgs[i].TextContent()
		}
	}
	return ""
}

// registryAdapter narrows *the* Registry interface down to
// discovery.Registry's subset.
type registryAdapter struct {
	reg registry.Registry
}

func (r registryAdapter) GetTools(ctx context.Context, names []string) ([]model.UnifiedTool, error) {
	return r.reg.GetTools(ctx, names)
}

func (r registryAdapter) GetMCPServers(ctx context.Context, ids []string) ([]string, error) {
	return r.reg.GetMCPServers(ctx, ids)
}

// buildAttempts resolves spec.LLMPriority into a retry.Attempt sequence,
// each entry's Fn performing spec.md §4.7's single-call + §4.9 shape
// validation.
func (c *Coordinator) buildAttempts(ctx context.Context, spec model.LLMCallSpec, p *prepared) ([]retry.Attempt, error) {
	attempts := make([]retry.Attempt, 0, len(spec.LLMPriority))
	for _, pm := range spec.LLMPriority {
		pm := pm
		manifest, err := c.Registry.GetProvider(ctx, pm.Provider)
		if err != nil {
			return nil, err
		}
		compat, err := c.Registry.GetCompatModule(ctx, manifest.CompatName)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, retry.Attempt{
			Provider: pm.Provider,
			Model:    pm.Model,
			Fn: func(ctx context.Context) (*model.LLMResponse, error) {
				return c.Caller.Call(ctx, llm.CallParams{
					Manifest: manifest,
					Compat:   compat,
					Model:    pm.Model,
					Settings: p.providerSettings,
					Messages: p.msgs,
					Tools:    p.tools,
					Choice:   spec.ToolChoice,
					Extras:   p.extras,
				})
			},
		})
	}
	if len(attempts) == 0 {
		return nil, fmt.Errorf("coordinator: llmPriority must be non-empty")
	}
	return attempts, nil
}

func ratePolicy(spec model.LLMCallSpec, base retry.Policy) retry.Policy {
	if len(spec.RateLimitRetryDelays) == 0 {
		return base
	}
	p := base
	p.RateLimitDelays = make([]time.Duration, len(spec.RateLimitRetryDelays))
	for i, secs := range spec.RateLimitRetryDelays {
		p.RateLimitDelays[i] = time.Duration(secs * float64(time.Second))
	}
	return p
}

// Run implements spec.md §4.11's non-streaming entry point.
func (c *Coordinator) Run(ctx context.Context, spec model.LLMCallSpec) (*model.LLMResponse, error) {
	p, err := c.prepare(ctx, spec)
	if err != nil {
		return nil, err
	}

	attempts, err := c.buildAttempts(ctx, spec, p)
	if err != nil {
		return nil, err
	}

	driver := retry.NewDriver(ratePolicy(spec, c.RetryPolicy), p.logger, c.Metrics)
	first, err := driver.Run(ctx, attempts)
	if err != nil {
		return nil, err
	}

	if len(first.ToolCalls) == 0 {
		return first, nil
	}

	loop := toolloop.New(invokerAdapter{c.Router}, p.logger)
	caller := func(ctx context.Context, msgs []model.Message, tools []model.UnifiedTool, choice *model.ToolChoice) (*model.LLMResponse, error) {
		return c.callOnce(ctx, spec, p, msgs, tools, choice)
	}

	final, _, err := loop.Run(ctx, first, p.msgs, p.tools, spec.ToolChoice, p.runtimeSettings, first.Provider, first.Model, caller)
	return final, err
}

// callOnce re-invokes the retry driver for a mid-loop provider call
// (spec.md §4.9 step 3), using the same attempt sequence so a transient
// provider failure mid-loop still fails over per §4.6.
func (c *Coordinator) callOnce(ctx context.Context, spec model.LLMCallSpec, p *prepared, msgs []model.Message, tools []model.UnifiedTool, choice *model.ToolChoice) (*model.LLMResponse, error) {
	pCopy := *p
	pCopy.msgs = msgs
	pCopy.tools = tools
	attempts, err := c.buildAttempts(ctx, spec, &pCopy)
	if err != nil {
		return nil, err
	}
	driver := retry.NewDriver(ratePolicy(spec, c.RetryPolicy), p.logger, c.Metrics)
	return driver.Run(ctx, attempts)
}

// RunStream implements spec.md §4.11's streaming entry point, delegating
// to §4.10 after the first provider resolution.
func (c *Coordinator) RunStream(ctx context.Context, spec model.LLMCallSpec) (<-chan model.StreamEvent, error) {
	p, err := c.prepare(ctx, spec)
	if err != nil {
		return nil, err
	}

	manifest, compat, pm, err := c.resolveFirstAvailable(ctx, spec)
	if err != nil {
		return nil, err
	}

	src, err := c.Streamer.Stream(ctx, llm.CallParams{
		Manifest: manifest,
		Compat:   compat,
		Model:    pm.Model,
		Settings: p.providerSettings,
		Messages: p.msgs,
		Tools:    p.tools,
		Choice:   spec.ToolChoice,
		Extras:   p.extras,
	})
	if err != nil {
		events := make(chan model.StreamEvent, 1)
		events <- model.ErrorEvent{Err: err}
		close(events)
		return events, nil
	}

	loop := streamloop.New(invokerAdapter{c.Router}, p.logger)
	opener := func(ctx context.Context, msgs []model.Message, tools []model.UnifiedTool, choice *model.ToolChoice) (streamloop.ChunkSource, error) {
		return c.Streamer.Stream(ctx, llm.CallParams{
			Manifest: manifest,
			Compat:   compat,
			Model:    pm.Model,
			Settings: p.providerSettings,
			Messages: msgs,
			Tools:    tools,
			Choice:   choice,
			Extras:   p.extras,
		})
	}

	return loop.Run(ctx, src, p.msgs, p.tools, spec.ToolChoice, p.runtimeSettings, pm.Provider, pm.Model, opener), nil
}

// resolveFirstAvailable resolves only the first provider in priority
// order; streaming does not retry across providers the way Run does
// (spec.md §4.10 focuses retry semantics on §4.6's non-stream driver,
// streaming surfaces provider failures as error events instead).
func (c *Coordinator) resolveFirstAvailable(ctx context.Context, spec model.LLMCallSpec) (*llm.ProviderManifest, llm.Compat, model.ProviderModel, error) {
	if len(spec.LLMPriority) == 0 {
		return nil, nil, model.ProviderModel{}, fmt.Errorf("coordinator: llmPriority must be non-empty")
	}
	pm := spec.LLMPriority[0]
	manifest, err := c.Registry.GetProvider(ctx, pm.Provider)
	if err != nil {
		return nil, nil, pm, err
	}
	compat, err := c.Registry.GetCompatModule(ctx, manifest.CompatName)
	if err != nil {
		return nil, nil, pm, err
	}
	return manifest, compat, pm, nil
}

// invokerAdapter narrows *router.Router to the toolloop/streamloop
// Invoker interfaces.
type invokerAdapter struct {
	r *router.Router
}

func (a invokerAdapter) RouteAndInvoke(ctx context.Context, toolName, callID string, args map[string]any, ic router.InvokeContext) (any, error) {
	return a.r.RouteAndInvoke(ctx, toolName, callID, args, ic)
}
