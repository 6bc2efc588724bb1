// Command demo is a small cobra CLI exercising the coordinator end to
// end: it loads a manifest + a call spec, wires the default Registry,
// router invokers, and provider Compats, then calls Run or RunStream.
// Grounded on the teacher's cmd/cli/main.go cobra-root-plus-subcommands
// shape and its infrastructure/config layered-viper loader.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ngoclaw/llmcoordinator/internal/coordinator"
	"github.com/ngoclaw/llmcoordinator/internal/llm"
	"github.com/ngoclaw/llmcoordinator/internal/llm/compat/anthropic"
	"github.com/ngoclaw/llmcoordinator/internal/llm/compat/bedrock"
	"github.com/ngoclaw/llmcoordinator/internal/llm/compat/openai"
	"github.com/ngoclaw/llmcoordinator/internal/mcp"
	"github.com/ngoclaw/llmcoordinator/internal/model"
	"github.com/ngoclaw/llmcoordinator/internal/registry"
	"github.com/ngoclaw/llmcoordinator/internal/retry"
	"github.com/ngoclaw/llmcoordinator/internal/router"
	"github.com/ngoclaw/llmcoordinator/internal/telemetry"
)

const (
	demoVersion = "0.1.0"
	demoName    = "llmcoordinator-demo"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   demoName,
		Short: "Drive the LLM coordinator against a manifest + call spec",
	}

	rootCmd.PersistentFlags().String("manifest", "manifest.yaml", "path to the registry manifest")
	rootCmd.PersistentFlags().String("spec", "spec.json", "path to a JSON-encoded LLMCallSpec")
	_ = viper.BindPFlag("manifest", rootCmd.PersistentFlags().Lookup("manifest"))
	_ = viper.BindPFlag("spec", rootCmd.PersistentFlags().Lookup("spec"))
	viper.SetEnvPrefix("LLMCOORDINATOR")
	viper.AutomaticEnv()

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run a non-streaming call",
		RunE:  runOnce,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "stream",
		Short: "Run a streaming call",
		RunE:  runStream,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use: "version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", demoName, demoVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func build(ctx context.Context) (*coordinator.Coordinator, error) {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	logger := telemetry.NewZapLogger(zapLogger)

	compats := map[string]llm.Compat{
		"anthropic": anthropic.New(os.Getenv("ANTHROPIC_API_KEY")),
		"openai":    openai.New(os.Getenv("OPENAI_API_KEY")),
	}
	if awsCfg, err := config.LoadDefaultConfig(ctx); err == nil {
		compats["bedrock"] = bedrock.New(bedrockruntime.NewFromConfig(awsCfg))
	} else {
		logger.Warn("bedrock compat unavailable: " + err.Error())
	}

	manifestPath := viper.GetString("manifest")
	reg, err := registry.NewFileRegistry(manifestPath, compats, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	if _, err := registry.NewWatcher(reg, logger); err != nil {
		logger.Warn("manifest hot-reload disabled: " + err.Error())
	}

	routes, err := reg.GetProcessRoutes(ctx)
	if err != nil {
		return nil, err
	}

	moduleInvoker := router.NewModuleInvoker()
	invokers := map[model.InvokeKind]router.Invoker{
		model.InvokeModule:  moduleInvoker,
		model.InvokeCommand: router.NewCommandInvoker(),
		model.InvokeHTTP:    router.NewHTTPInvoker(http.DefaultClient),
	}

	mcpServers, err := mcpServerConfigs(ctx, reg, routes)
	if err != nil {
		return nil, err
	}
	pool := mcp.NewPool(mcpServers, logger)
	invokers[model.InvokeMCP] = router.NewMCPInvoker(pool)

	r, err := router.New(routes, invokers, 30*time.Second, 8, logger)
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}

	batch := telemetry.NewBatchScope()
	metrics := telemetry.NewMetrics("llmcoordinator")

	// Vector store / embedding backends are out of scope (spec.md §1);
	// no concrete discovery.VectorStore is wired here, so
	// spec.vectorPriority fan-out is a no-op unless a caller embeds this
	// package and supplies its own Coordinator.VectorStores.
	return coordinator.New(
		reg, pool, nil, r,
		llm.NewCaller(logger),
		llm.NewStreamer(logger),
		retry.Policy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2},
		logger, metrics, telemetry.NewTracer("llmcoordinator"), batch,
	), nil
}

// mcpServerConfigs derives mcp.ServerConfig entries from every distinct
// mcpServer id referenced by a route. Only ID is filled in: neither the
// Registry interface nor FileRegistry exposes a server's command or
// environment, so Command and Env stay empty.
func mcpServerConfigs(ctx context.Context, reg *registry.FileRegistry, routes []model.ProcessRoute) ([]mcp.ServerConfig, error) {
	seen := map[string]bool{}
	var out []mcp.ServerConfig
	for _, r := range routes {
		if r.Invoke.Kind != model.InvokeMCP || r.Invoke.MCPServer == "" || seen[r.Invoke.MCPServer] {
			continue
		}
		seen[r.Invoke.MCPServer] = true
		out = append(out, mcp.ServerConfig{ID: r.Invoke.MCPServer})
	}
	return out, nil
}

func loadSpec(path string) (model.LLMCallSpec, error) {
	var spec model.LLMCallSpec
	data, err := os.ReadFile(path)
	if err != nil {
		return spec, fmt.Errorf("read spec: %w", err)
	}
	if err := json.Unmarshal(data, &spec); err != nil {
		return spec, fmt.Errorf("parse spec: %w", err)
	}
	return spec, nil
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c, err := build(ctx)
	if err != nil {
		return err
	}
	spec, err := loadSpec(viper.GetString("spec"))
	if err != nil {
		return err
	}

	resp, err := c.Run(ctx, spec)
	if err != nil {
		return err
	}
	out, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runStream(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c, err := build(ctx)
	if err != nil {
		return err
	}
	spec, err := loadSpec(viper.GetString("spec"))
	if err != nil {
		return err
	}

	events, err := c.RunStream(ctx, spec)
	if err != nil {
		return err
	}
	for ev := range events {
		switch v := ev.(type) {
		case model.DeltaEvent:
			fmt.Print(v.Content)
		case model.DoneEvent:
			fmt.Println()
			out, _ := json.MarshalIndent(v.Response, "", "  ")
			fmt.Println(string(out))
		case model.ErrorEvent:
			fmt.Fprintln(os.Stderr, "error:", v.Err)
		}
	}
	return nil
}
