// pkg/registry/platform.go
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
)

// RunRequest asks the platform to run one workflow instance.
type RunRequest struct {
	Workflow   *WorkflowMetadata
	WorkflowID string
	TaskQueue  string
	Input      any
}

// RunHandle identifies a started workflow instance.
type RunHandle struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// Executor submits workflow runs to the execution platform.
type Executor interface {
	// Execute runs the workflow and blocks until its result is available.
	Execute(ctx context.Context, req RunRequest) (json.RawMessage, error)
	// Start submits the workflow and returns as soon as the platform accepted it.
	Start(ctx context.Context, req RunRequest) (*RunHandle, error)
}

// ChildRunner is implemented by invokers that can run another workflow from inside a workflow.
type ChildRunner interface {
	ExecuteChild(ctx context.Context, req RunRequest) (json.RawMessage, error)
}

// ExecuteChild runs req as a child of the current workflow and waits for its result.
func ExecuteChild(ctx context.Context, req RunRequest) (json.RawMessage, error) {
	inv, ok := InvokerFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: child workflow started outside a workflow context", ErrNoInvoker)
	}
	runner, ok := inv.(ChildRunner)
	if !ok {
		return nil, fmt.Errorf("%w: invoker %T cannot run child workflows", ErrNoInvoker, inv)
	}
	if req.Workflow == nil {
		return nil, fmt.Errorf("%w: run request without workflow", ErrMissingEntryPoint)
	}
	return runner.ExecuteChild(ctx, req)
}

// CompletionFunc observes the end of a run started through LocalExecutor.Start.
type CompletionFunc func(workflowID string, result json.RawMessage, err error)

// LocalExecutor runs workflows and their activities in-process. It has no durability and is meant
// for development and tests.
type LocalExecutor struct {
	OnComplete CompletionFunc

	seq     atomic.Int64
	wg      sync.WaitGroup
	invoker LocalInvoker
}

func (e *LocalExecutor) Execute(ctx context.Context, req RunRequest) (json.RawMessage, error) {
	if req.Workflow == nil {
		return nil, fmt.Errorf("%w: run request without workflow", ErrMissingEntryPoint)
	}
	result, err := req.Workflow.Call(WithInvoker(ctx, e.invoker), req.Input)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

func (e *LocalExecutor) Start(ctx context.Context, req RunRequest) (*RunHandle, error) {
	if req.Workflow == nil {
		return nil, fmt.Errorf("%w: run request without workflow", ErrMissingEntryPoint)
	}
	handle := &RunHandle{
		WorkflowID: req.WorkflowID,
		RunID:      fmt.Sprintf("local-%d", e.seq.Add(1)),
	}

	runCtx := context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		result, err := e.Execute(runCtx, req)
		if e.OnComplete != nil {
			e.OnComplete(req.WorkflowID, result, err)
		}
	}()
	return handle, nil
}

// Wait blocks until every run started with Start has finished.
func (e *LocalExecutor) Wait() {
	e.wg.Wait()
}

// LocalInvoker calls activity functions directly, bounded by their start-to-close timeout.
type LocalInvoker struct{}

func (LocalInvoker) ExecuteActivity(ctx context.Context, md *ActivityMetadata, input json.RawMessage, opts CallOptions) (json.RawMessage, error) {
	timeout := opts.StartToCloseTimeout
	if opts.ScheduleToCloseTimeout > 0 && (timeout == 0 || opts.ScheduleToCloseTimeout < timeout) {
		timeout = opts.ScheduleToCloseTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return md.Invoke(ctx, input)
}

// ExecuteChild runs the child workflow in the calling goroutine.
func (inv LocalInvoker) ExecuteChild(ctx context.Context, req RunRequest) (json.RawMessage, error) {
	result, err := req.Workflow.Call(WithInvoker(ctx, inv), req.Input)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}
