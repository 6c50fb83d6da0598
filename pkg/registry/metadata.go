// pkg/registry/metadata.go
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// DefaultWorkflowVersion is used when a workflow is registered without an explicit version.
const DefaultWorkflowVersion = "v2"

// WorkflowMetadata describes one registered workflow. It is immutable after registration.
type WorkflowMetadata struct {
	Name        string
	Version     string
	Description string
	TaskQueue   string

	Handler     any
	HandlerName string

	InputType  reflect.Type
	OutputType reflect.Type

	run reflect.Value
}

// Key is the registry key and public route segment, "{name}-{version}".
func (m *WorkflowMetadata) Key() string {
	return m.Name + "-" + m.Version
}

func (m *WorkflowMetadata) Identity() string { return m.HandlerName }

func (m *WorkflowMetadata) Queue() string { return m.TaskQueue }

// NewInput allocates a pointer to a zero input struct, ready for decoding.
func (m *WorkflowMetadata) NewInput() any {
	return reflect.New(SchemaType(m.InputType)).Interface()
}

// NewOutput allocates a pointer to a zero output struct, ready for decoding.
func (m *WorkflowMetadata) NewOutput() any {
	return reflect.New(SchemaType(m.OutputType)).Interface()
}

// DecodeInput decodes a JSON payload into the declared input type.
func (m *WorkflowMetadata) DecodeInput(raw []byte) (any, error) {
	in := m.NewInput()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, in); err != nil {
			return nil, fmt.Errorf("decode %s input: %w", m.Key(), err)
		}
	}
	return in, nil
}

// Call runs the workflow handler in-process. input may be the declared input type,
// a pointer to it, or raw JSON.
func (m *WorkflowMetadata) Call(ctx context.Context, input any) (any, error) {
	if !m.run.IsValid() {
		return nil, fmt.Errorf("%w: workflow %s has no bound Run method", ErrMissingEntryPoint, m.Key())
	}

	if raw, ok := input.(json.RawMessage); ok {
		decoded, err := m.DecodeInput(raw)
		if err != nil {
			return nil, NoRetry(err)
		}
		input = decoded
	}

	arg, err := adaptValue(input, m.InputType)
	if err != nil {
		return nil, NoRetry(fmt.Errorf("workflow %s: %w", m.Key(), err))
	}

	results := m.run.Call([]reflect.Value{reflect.ValueOf(ctx), arg})
	if errVal := results[1]; !errVal.IsNil() {
		return nil, errVal.Interface().(error)
	}
	return results[0].Interface(), nil
}

// ActivityMetadata describes one registered activity. It is immutable after registration.
type ActivityMetadata struct {
	Name        string
	Description string
	TaskQueue   string

	Handler     any
	HandlerName string

	StartToCloseTimeout    time.Duration
	ScheduleToCloseTimeout time.Duration
	RetryPolicy            *RetryPolicy

	InputType  reflect.Type
	OutputType reflect.Type

	invoke func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error)
}

func (m *ActivityMetadata) Identity() string { return m.HandlerName }

func (m *ActivityMetadata) Queue() string { return m.TaskQueue }

// Invoke runs the activity function in-process against a JSON payload.
func (m *ActivityMetadata) Invoke(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	if m.invoke == nil {
		return nil, fmt.Errorf("%w: activity %s has no bound function", ErrMissingEntryPoint, m.Name)
	}
	return m.invoke(ctx, raw)
}

// adaptValue converts v into a reflect.Value assignable to want, following one level of pointer.
// A nil input is refused when want is a pointer.
func adaptValue(v any, want reflect.Type) (reflect.Value, error) {
	if v == nil {
		if want.Kind() == reflect.Pointer {
			return reflect.Value{}, fmt.Errorf("nil input for %s", want)
		}
		return reflect.Zero(want), nil
	}
	val := reflect.ValueOf(v)
	switch {
	case val.Kind() == reflect.Pointer && val.IsNil() && want.Kind() == reflect.Pointer:
		return reflect.Value{}, fmt.Errorf("nil input for %s", want)
	case val.Type().AssignableTo(want):
		return val, nil
	case val.Kind() == reflect.Pointer && val.Type().Elem().AssignableTo(want):
		if val.IsNil() {
			return reflect.Zero(want), nil
		}
		return val.Elem(), nil
	case want.Kind() == reflect.Pointer && val.Type().AssignableTo(want.Elem()):
		ptr := reflect.New(want.Elem())
		ptr.Elem().Set(val)
		return ptr, nil
	}
	return reflect.Value{}, fmt.Errorf("input of type %s is not assignable to %s", val.Type(), want)
}
