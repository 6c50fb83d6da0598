// internal/common/camunda/executor.go
package camunda

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"signal-workflows/internal/common/logger"
	"signal-workflows/internal/common/metrics"
	"signal-workflows/pkg/registry"
)

// Envelope is the variable set every generated process instance is created with.
type Envelope struct {
	Input      json.RawMessage `json:"input"`
	WorkflowID string          `json:"workflowId,omitempty"`
	RunID      string          `json:"runId,omitempty"`
	TaskQueue  string          `json:"taskQueue"`
	Retries    int             `json:"retries"`
	// TimeoutMs bounds a single attempt of an activity.
	TimeoutMs   int64                 `json:"timeoutMs,omitempty"`
	RetryPolicy *registry.RetryPolicy `json:"retryPolicy,omitempty"`
}

// Result is the variable set a job completes with. Exactly one of Output and Error is set.
type Result struct {
	Output json.RawMessage `json:"output,omitempty"`
	Error  *RemoteError    `json:"error,omitempty"`
}

// RemoteError is a failure that crossed the engine boundary. It keeps the kind of the original
// error so retry policies keep working one level up.
type RemoteError struct {
	ErrorKind string `json:"kind"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
}

func (e *RemoteError) Error() string { return e.Message }

func (e *RemoteError) Kind() string { return e.ErrorKind }

// ExecutorOptions configures Executor.
type ExecutorOptions struct {
	// DefaultQueue is used when neither the request nor the metadata names a queue.
	DefaultQueue string
	// DefaultRetries is the attempt budget of activities without a retry policy.
	DefaultRetries int
	Logger         logger.Logger
}

// Executor runs workflows and activities as instances of their generated processes. It implements
// registry.Executor for the API and registry.Invoker for workflow code running in a job worker.
type Executor struct {
	engine         Engine
	defaultQueue   string
	defaultRetries int
	logger         logger.Logger
}

var (
	_ registry.Executor = (*Executor)(nil)
	_ registry.Invoker     = (*Executor)(nil)
	_ registry.ChildRunner = (*Executor)(nil)
)

func NewExecutor(engine Engine, opts ExecutorOptions) *Executor {
	if opts.DefaultQueue == "" {
		opts.DefaultQueue = "default"
	}
	if opts.DefaultRetries <= 0 {
		opts.DefaultRetries = 3
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	return &Executor{
		engine:         engine,
		defaultQueue:   opts.DefaultQueue,
		defaultRetries: opts.DefaultRetries,
		logger:         opts.Logger.With(map[string]interface{}{"component": "executor"}),
	}
}

func (e *Executor) workflowEnvelope(req registry.RunRequest) (*Envelope, error) {
	if req.Workflow == nil {
		return nil, fmt.Errorf("%w: run request without workflow", registry.ErrMissingEntryPoint)
	}
	input, err := json.Marshal(req.Input)
	if err != nil {
		return nil, fmt.Errorf("%w: workflow %s input: %v", registry.ErrNotSerializable, req.Workflow.Key(), err)
	}
	queue := firstNonEmpty(req.TaskQueue, req.Workflow.Queue(), e.defaultQueue)
	return &Envelope{
		Input:      input,
		WorkflowID: req.WorkflowID,
		TaskQueue:  queue,
		// a failed workflow attempt is reported, not replayed
		Retries: 1,
	}, nil
}

// Execute runs the workflow and waits for its output.
func (e *Executor) Execute(ctx context.Context, req registry.RunRequest) (json.RawMessage, error) {
	env, err := e.workflowEnvelope(req)
	if err != nil {
		return nil, err
	}
	metrics.WorkflowsStarted.WithLabelValues(req.Workflow.Key(), env.TaskQueue).Inc()

	vars, err := e.engine.CreateInstanceWithResult(ctx, req.Workflow.Key(), env)
	if err != nil {
		return nil, err
	}
	return decodeResult(vars)
}

// Start submits the workflow. The process instance key is the run id.
func (e *Executor) Start(ctx context.Context, req registry.RunRequest) (*registry.RunHandle, error) {
	env, err := e.workflowEnvelope(req)
	if err != nil {
		return nil, err
	}
	metrics.WorkflowsStarted.WithLabelValues(req.Workflow.Key(), env.TaskQueue).Inc()

	key, err := e.engine.CreateInstance(ctx, req.Workflow.Key(), env)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Workflow started", map[string]interface{}{
		"workflow":           req.Workflow.Key(),
		"workflowId":         req.WorkflowID,
		"processInstanceKey": key,
		"taskQueue":          env.TaskQueue,
	})
	return &registry.RunHandle{WorkflowID: req.WorkflowID, RunID: strconv.FormatInt(key, 10)}, nil
}

// ExecuteChild runs a child workflow as its own process instance. The parent job waits for it,
// bounded by the caller's context.
func (e *Executor) ExecuteChild(ctx context.Context, req registry.RunRequest) (json.RawMessage, error) {
	e.logger.Debug("Starting child workflow", map[string]interface{}{
		"workflow":   req.Workflow.Key(),
		"workflowId": req.WorkflowID,
	})
	return e.Execute(ctx, req)
}

// ExecuteActivity runs the activity process and waits for it, retries included.
func (e *Executor) ExecuteActivity(ctx context.Context, md *registry.ActivityMetadata, input json.RawMessage, opts registry.CallOptions) (json.RawMessage, error) {
	retries := e.defaultRetries
	if opts.RetryPolicy != nil && opts.RetryPolicy.MaximumAttempts > 0 {
		retries = opts.RetryPolicy.MaximumAttempts
	}
	if len(input) == 0 {
		input = json.RawMessage("null")
	}

	env := &Envelope{
		Input:       input,
		TaskQueue:   firstNonEmpty(opts.TaskQueue, md.Queue(), e.defaultQueue),
		Retries:     retries,
		TimeoutMs:   opts.StartToCloseTimeout.Milliseconds(),
		RetryPolicy: opts.RetryPolicy,
	}

	if deadline := activityDeadline(opts, retries); deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	vars, err := e.engine.CreateInstanceWithResult(ctx, ActivityProcessID(md.Name), env)
	if err != nil {
		return nil, err
	}
	return decodeResult(vars)
}

// activityDeadline is the schedule-to-close timeout, or every attempt plus its backoff when only
// start-to-close is known.
func activityDeadline(opts registry.CallOptions, attempts int) time.Duration {
	if opts.ScheduleToCloseTimeout > 0 {
		return opts.ScheduleToCloseTimeout
	}
	if opts.StartToCloseTimeout <= 0 {
		return 0
	}
	total := time.Duration(attempts) * opts.StartToCloseTimeout
	for i := 1; i < attempts; i++ {
		total += opts.RetryPolicy.Backoff(i)
	}
	return total
}

func decodeResult(vars string) (json.RawMessage, error) {
	var res Result
	if vars != "" {
		if err := json.Unmarshal([]byte(vars), &res); err != nil {
			return nil, fmt.Errorf("decode process result: %w", err)
		}
	}
	if res.Error != nil {
		return nil, res.Error
	}
	return res.Output, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
