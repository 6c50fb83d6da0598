// pkg/registry/activity.go
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// ActivityOptions are the defaults declared alongside an activity function.
type ActivityOptions struct {
	Name        string
	Description string
	TaskQueue   string

	StartToCloseTimeout    time.Duration
	ScheduleToCloseTimeout time.Duration

	// RetryPolicy is copied, with NoRetryError added to its non-retryable kinds. Mutually exclusive
	// with MaxRetries.
	RetryPolicy *RetryPolicy
	// MaxRetries builds DefaultRetryPolicy() capped at this many attempts. With neither set the
	// activity gets DefaultRetryPolicy() as is.
	MaxRetries int
}

// CallOptions are the effective options of a single activity invocation.
// Zero values leave the decision to the platform.
type CallOptions struct {
	TaskQueue              string
	StartToCloseTimeout    time.Duration
	ScheduleToCloseTimeout time.Duration
	RetryPolicy            *RetryPolicy
}

// CallOption overrides one declared default for a single call.
type CallOption func(*CallOptions)

func WithStartToCloseTimeout(d time.Duration) CallOption {
	return func(o *CallOptions) { o.StartToCloseTimeout = d }
}

func WithScheduleToCloseTimeout(d time.Duration) CallOption {
	return func(o *CallOptions) { o.ScheduleToCloseTimeout = d }
}

func WithRetryPolicy(p *RetryPolicy) CallOption {
	return func(o *CallOptions) { o.RetryPolicy = p }
}

func WithTaskQueue(q string) CallOption {
	return func(o *CallOptions) { o.TaskQueue = q }
}

// Invoker performs the out-of-process activity call on the execution platform.
type Invoker interface {
	ExecuteActivity(ctx context.Context, md *ActivityMetadata, input json.RawMessage, opts CallOptions) (json.RawMessage, error)
}

type invokerKey struct{}

// WithInvoker returns a context whose activity calls go through inv.
func WithInvoker(ctx context.Context, inv Invoker) context.Context {
	return context.WithValue(ctx, invokerKey{}, inv)
}

// InvokerFrom returns the invoker carried by ctx.
func InvokerFrom(ctx context.Context) (Invoker, bool) {
	inv, ok := ctx.Value(invokerKey{}).(Invoker)
	return inv, ok && inv != nil
}

// ActivityDefinition is the non-generic view of an Activity used by registries and workers.
type ActivityDefinition interface {
	Metadata() *ActivityMetadata
}

// Activity binds a function to its declared options.
type Activity[In, Out any] struct {
	fn   func(context.Context, In) (Out, error)
	meta *ActivityMetadata
}

// DefineActivity validates options and builds the activity metadata. It touches no registry.
func DefineActivity[In, Out any](fn func(context.Context, In) (Out, error), opts ActivityOptions) (*Activity[In, Out], error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil activity function", ErrMissingEntryPoint)
	}

	qualified := QualifiedFuncName(fn)
	name := opts.Name
	if name == "" {
		name = shortFuncName(qualified)
	}

	if opts.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: activity %s has negative MaxRetries %d", ErrConfigConflict, name, opts.MaxRetries)
	}
	if opts.RetryPolicy != nil && opts.MaxRetries > 0 {
		return nil, fmt.Errorf("%w: activity %s sets both RetryPolicy and MaxRetries", ErrConfigConflict, name)
	}
	var policy *RetryPolicy
	switch {
	case opts.RetryPolicy != nil:
		policy = opts.RetryPolicy.withNoRetry()
	case opts.MaxRetries > 0:
		policy = DefaultRetryPolicy()
		policy.MaximumAttempts = opts.MaxRetries
	default:
		policy = DefaultRetryPolicy()
	}

	a := &Activity[In, Out]{fn: fn}
	a.meta = &ActivityMetadata{
		Name:                   name,
		Description:            opts.Description,
		TaskQueue:              opts.TaskQueue,
		Handler:                fn,
		HandlerName:            qualified,
		StartToCloseTimeout:    opts.StartToCloseTimeout,
		ScheduleToCloseTimeout: opts.ScheduleToCloseTimeout,
		RetryPolicy:            policy,
		InputType:              reflect.TypeOf((*In)(nil)).Elem(),
		OutputType:             reflect.TypeOf((*Out)(nil)).Elem(),
		invoke:                 a.Invoke,
	}
	return a, nil
}

// MustDefineActivity is DefineActivity for package-level declarations.
func MustDefineActivity[In, Out any](fn func(context.Context, In) (Out, error), opts ActivityOptions) *Activity[In, Out] {
	a, err := DefineActivity(fn, opts)
	if err != nil {
		panic(err)
	}
	return a
}

func (a *Activity[In, Out]) Metadata() *ActivityMetadata { return a.meta }

func (a *Activity[In, Out]) Name() string { return a.meta.Name }

// Options resolves the effective options of one call: per-call value, else declared default,
// else zero for the platform default.
func (a *Activity[In, Out]) Options(opts ...CallOption) CallOptions {
	resolved := CallOptions{
		TaskQueue:              a.meta.TaskQueue,
		StartToCloseTimeout:    a.meta.StartToCloseTimeout,
		ScheduleToCloseTimeout: a.meta.ScheduleToCloseTimeout,
		RetryPolicy:            a.meta.RetryPolicy,
	}
	call := CallOptions{}
	for _, opt := range opts {
		opt(&call)
	}
	if call.TaskQueue != "" {
		resolved.TaskQueue = call.TaskQueue
	}
	if call.StartToCloseTimeout > 0 {
		resolved.StartToCloseTimeout = call.StartToCloseTimeout
	}
	if call.ScheduleToCloseTimeout > 0 {
		resolved.ScheduleToCloseTimeout = call.ScheduleToCloseTimeout
	}
	if call.RetryPolicy != nil {
		resolved.RetryPolicy = call.RetryPolicy
	}
	return resolved
}

// Execute schedules the activity on the platform through the Invoker carried by ctx.
func (a *Activity[In, Out]) Execute(ctx context.Context, in In, opts ...CallOption) (Out, error) {
	var out Out

	inv, ok := InvokerFrom(ctx)
	if !ok {
		return out, fmt.Errorf("%w: activity %s called outside a workflow context", ErrNoInvoker, a.meta.Name)
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return out, fmt.Errorf("%w: activity %s input: %v", ErrNotSerializable, a.meta.Name, err)
	}

	result, err := inv.ExecuteActivity(ctx, a.meta, payload, a.Options(opts...))
	if err != nil {
		return out, err
	}
	if len(result) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return out, fmt.Errorf("decode activity %s result: %w", a.meta.Name, err)
	}
	return out, nil
}

// Invoke runs the function locally against a JSON payload. Undecodable input is never retried.
func (a *Activity[In, Out]) Invoke(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var in In
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, NoRetry(fmt.Errorf("decode activity %s input: %w", a.meta.Name, err))
		}
	}

	out, err := a.fn(ctx, in)
	if err != nil {
		return nil, err
	}

	result, err := json.Marshal(out)
	if err != nil {
		return nil, NoRetry(fmt.Errorf("%w: activity %s output: %v", ErrNotSerializable, a.meta.Name, err))
	}
	return result, nil
}

// RegisterActivity adds a defined activity to reg. A nil registry is skipped silently.
func RegisterActivity(reg *ActivityRegistry, a ActivityDefinition) error {
	if reg == nil || a == nil {
		return nil
	}
	return reg.Add(a.Metadata())
}
