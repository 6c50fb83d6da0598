// internal/agent/tools.go
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"signal-workflows/internal/common/validation"
	"signal-workflows/pkg/registry"
)

// Tool is a capability an agent can call during its run.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage // JSON Schema
	Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error)
}

// ToolDef is the definition sent to the model.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Tools is an ordered set of tools keyed by name.
type Tools struct {
	tools map[string]Tool
	order []string
}

func NewTools(tools ...Tool) *Tools {
	t := &Tools{tools: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		t.Register(tool)
	}
	return t
}

// Register adds tool, replacing any tool of the same name.
func (t *Tools) Register(tool Tool) {
	if _, ok := t.tools[tool.Name()]; !ok {
		t.order = append(t.order, tool.Name())
	}
	t.tools[tool.Name()] = tool
}

func (t *Tools) Get(name string) (Tool, bool) {
	if t == nil {
		return nil, false
	}
	tool, ok := t.tools[name]
	return tool, ok
}

// Defs returns the tool definitions in registration order.
func (t *Tools) Defs() []ToolDef {
	if t == nil {
		return nil
	}
	out := make([]ToolDef, 0, len(t.order))
	for _, name := range t.order {
		tool := t.tools[name]
		out = append(out, ToolDef{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Parameters(),
		})
	}
	return out
}

// ActivityTool exposes an activity to the model. Calls go through the platform invoker carried
// by the context, with the options fixed when the tool was built.
type ActivityTool struct {
	md     *registry.ActivityMetadata
	opts   registry.CallOptions
	schema json.RawMessage
}

// NewActivityTool builds a tool from a defined activity. Per-tool options override the
// activity's declared defaults.
func NewActivityTool(def registry.ActivityDefinition, opts ...registry.CallOption) *ActivityTool {
	md := def.Metadata()
	resolved := registry.CallOptions{
		TaskQueue:              md.TaskQueue,
		StartToCloseTimeout:    md.StartToCloseTimeout,
		ScheduleToCloseTimeout: md.ScheduleToCloseTimeout,
		RetryPolicy:            md.RetryPolicy,
	}
	for _, opt := range opts {
		opt(&resolved)
	}

	schema := validation.SchemaFor(md.InputType)
	if schema.Type != "object" {
		// the model API only accepts object schemas
		schema = &validation.JSONSchema{Type: "object"}
	}
	raw, _ := json.Marshal(schema)

	return &ActivityTool{md: md, opts: resolved, schema: raw}
}

func (a *ActivityTool) Name() string { return a.md.Name }

func (a *ActivityTool) Description() string {
	if a.md.Description != "" {
		return a.md.Description
	}
	return "Runs the " + a.md.Name + " activity."
}

func (a *ActivityTool) Parameters() json.RawMessage { return a.schema }

// Options returns the effective call options of the tool.
func (a *ActivityTool) Options() registry.CallOptions { return a.opts }

func (a *ActivityTool) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	inv, ok := registry.InvokerFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: tool %s called outside a workflow context", registry.ErrNoInvoker, a.md.Name)
	}
	return inv.ExecuteActivity(ctx, a.md, params, a.opts)
}
