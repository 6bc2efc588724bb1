package discovery

import (
	"fmt"

	"github.com/ngoclaw/llmcoordinator/internal/model"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// validateSchema implements SPEC_FULL.md §4.13: a tool's declared
// ParametersJSONSchema must compile as a JSON Schema. A tool whose
// schema fails to compile is dropped from discovery and logged, not
// fatal to the whole Run — a deliberate Open-Question-style decision
// recorded in DESIGN.md, since spec.md §4.5 itself is silent on
// malformed schemas.
func validateSchema(t model.UnifiedTool) error {
	if t.ParametersJSONSchema == nil {
		return nil
	}
	c := jsonschema.NewCompiler()
	url := "mem://" + t.Name + ".json"
	if err := c.AddResource(url, t.ParametersJSONSchema); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	if _, err := c.Compile(url); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	return nil
}
