package settings

import (
	"testing"

	"github.com/ngoclaw/llmcoordinator/internal/telemetry"
)

func TestPartitionTotalAndDisjoint(t *testing.T) {
	flat := map[string]any{
		"maxToolIterations": 5,
		"temperature":       0.7,
		"weirdVendorFlag":   "x",
	}
	out := Partition(flat, telemetry.NewNop())

	if out.Runtime.MaxToolIterations != 5 {
		t.Fatalf("expected MaxToolIterations 5, got %d", out.Runtime.MaxToolIterations)
	}
	if out.Provider.Temperature == nil || *out.Provider.Temperature != 0.7 {
		t.Fatalf("expected temperature 0.7, got %v", out.Provider.Temperature)
	}
	if _, ok := out.Extras["weirdVendorFlag"]; !ok {
		t.Fatalf("expected weirdVendorFlag to land in extras")
	}
}

func TestPartitionNegativeMaxToolIterationsIsConfigError(t *testing.T) {
	out := Partition(map[string]any{"maxToolIterations": -1}, telemetry.NewNop())
	if out.Runtime.MaxToolIterations != 10 {
		t.Fatalf("expected fallback to default 10, got %d", out.Runtime.MaxToolIterations)
	}
}

func TestPartitionPreserveToolResultsStringModes(t *testing.T) {
	out := Partition(map[string]any{"preserveToolResults": "all"}, telemetry.NewNop())
	if !out.Runtime.PreserveToolResults.All {
		t.Fatalf("expected All=true")
	}
}
