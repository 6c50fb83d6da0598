// pkg/registry/workflow.go
package registry

import (
	"fmt"
	"reflect"
)

// Workflow marks a struct as a durable workflow definition. Embed it in every workflow handler.
type Workflow struct{}

func (Workflow) durableWorkflow() {}

type workflowMarker interface {
	durableWorkflow()
}

var markerType = reflect.TypeOf((*workflowMarker)(nil)).Elem()

// IsWorkflow reports whether t (or a pointer to it) carries the workflow marker.
func IsWorkflow(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Implements(markerType) {
		return true
	}
	return t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(markerType)
}

// WorkflowOptions are declared alongside a workflow handler.
type WorkflowOptions struct {
	// Name defaults to the kebab-case handler type name.
	Name string
	// Version defaults to DefaultWorkflowVersion.
	Version     string
	Description string
	TaskQueue   string
}

// RegisterWorkflow validates handler and records it in reg. With a nil registry the metadata is
// still validated and returned, but nothing is registered.
func RegisterWorkflow(reg *WorkflowRegistry, handler any, opts WorkflowOptions) (*WorkflowMetadata, error) {
	if handler == nil {
		return nil, fmt.Errorf("%w: nil handler", ErrNotAWorkflow)
	}

	t := reflect.TypeOf(handler)
	typeName := SchemaType(t).Name()

	if !IsWorkflow(t) {
		return nil, fmt.Errorf("%w: %s does not embed registry.Workflow", ErrNotAWorkflow, typeName)
	}

	in, out, err := ExtractRunTypes(t)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", typeName, err)
	}

	name := opts.Name
	if name == "" {
		name = KebabName(typeName)
	}
	version := opts.Version
	if version == "" {
		version = DefaultWorkflowVersion
	}

	md := &WorkflowMetadata{
		Name:        name,
		Version:     version,
		Description: opts.Description,
		TaskQueue:   opts.TaskQueue,
		Handler:     handler,
		HandlerName: QualifiedTypeName(t),
		InputType:   in,
		OutputType:  out,
		run:         boundRun(handler),
	}

	if reg == nil {
		return md, nil
	}
	if err := reg.Add(md); err != nil {
		return nil, err
	}
	return md, nil
}

// boundRun returns the Run method bound to handler, taking the address of a value handler
// when Run has a pointer receiver.
func boundRun(handler any) reflect.Value {
	v := reflect.ValueOf(handler)
	if m := v.MethodByName(EntryPoint); m.IsValid() {
		return m
	}
	ptr := reflect.New(v.Type())
	ptr.Elem().Set(v)
	return ptr.MethodByName(EntryPoint)
}
