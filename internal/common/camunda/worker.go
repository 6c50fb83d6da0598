// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"signal-workflows/internal/common/errors"
	"signal-workflows/internal/common/logger"
	"signal-workflows/internal/common/metrics"
	"signal-workflows/internal/common/observability"
	"signal-workflows/pkg/registry"
)

// JobClient reports the outcome of a job back to the engine.
type JobClient interface {
	CompleteJob(ctx context.Context, jobKey int64, variables interface{}) error
	errors.JobFailer
}

// RunObserver is told about every finished workflow run that carries a workflow id.
type RunObserver interface {
	WorkflowFinished(ctx context.Context, workflowID string, output json.RawMessage, err error)
}

// Dispatcher turns activated jobs into workflow and activity calls.
type Dispatcher struct {
	invoker        registry.Invoker
	observer       RunObserver
	errorHandler   *errors.ErrorHandler
	obs            *observability.Observability
	logger         logger.Logger
	defaultTimeout time.Duration
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// Invoker runs the activities called by workflow code, normally the Executor.
	Invoker  registry.Invoker
	Observer RunObserver
	Metrics  *observability.Observability
	Logger   logger.Logger
	// DefaultTimeout bounds an attempt when neither the call nor the activity sets one.
	DefaultTimeout time.Duration
}

func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	if opts.Invoker == nil {
		opts.Invoker = registry.LocalInvoker{}
	}
	return &Dispatcher{
		invoker:        opts.Invoker,
		observer:       opts.Observer,
		errorHandler:   errors.NewErrorHandler(opts.Logger),
		obs:            opts.Metrics,
		logger:         opts.Logger.With(map[string]interface{}{"component": "dispatcher"}),
		defaultTimeout: opts.DefaultTimeout,
	}
}

func parseEnvelope(job entities.Job) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(job.GetVariables()), &env); err != nil {
		return nil, registry.NoRetry(fmt.Errorf("decode job variables: %w", err))
	}
	return &env, nil
}

func jobContext(job entities.Job, env *Envelope) errors.JobContext {
	jc := errors.JobContext{
		Key:                job.GetKey(),
		Type:               job.GetType(),
		ProcessInstanceKey: job.GetProcessInstanceKey(),
		Remaining:          job.GetRetries(),
	}
	if env != nil {
		jc.MaxAttempts = int32(env.Retries)
	}
	return jc
}

// HandleWorkflow runs one workflow job. The workflow's activity calls go through the dispatcher's invoker.
func (d *Dispatcher) HandleWorkflow(ctx context.Context, client JobClient, md *registry.WorkflowMetadata, job entities.Job) {
	start := time.Now()
	taskType := job.GetType()
	metrics.WorkerJobsActive.WithLabelValues(taskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(taskType).Dec()
	defer observeDuration(taskType, metrics.KindWorkflow, start)

	env, err := parseEnvelope(job)
	log := d.logger.With(map[string]interface{}{
		"workflow":           md.Key(),
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})
	if err != nil {
		d.finish(ctx, client, job, env, nil, metrics.KindWorkflow, err, log)
		return
	}
	log = log.With(map[string]interface{}{"workflowId": env.WorkflowID})
	log.Info("Processing workflow", nil)

	output, err := guard(log, "workflow "+md.Key(), func() (any, error) {
		return md.Call(registry.WithInvoker(ctx, d.invoker), env.Input)
	})
	var raw json.RawMessage
	if err == nil {
		raw, err = json.Marshal(output)
		if err != nil {
			err = registry.NoRetry(fmt.Errorf("%w: workflow %s output: %v", registry.ErrNotSerializable, md.Key(), err))
		}
	}

	final := d.finish(ctx, client, job, env, raw, metrics.KindWorkflow, err, log)
	if final && d.observer != nil && env.WorkflowID != "" {
		d.observer.WorkflowFinished(ctx, env.WorkflowID, raw, err)
	}
	d.obs.RecordRun(ctx, metrics.KindWorkflow, md.Key(), status(err), time.Since(start))
}

// HandleActivity runs one activity job, bounded by the per-call or declared start-to-close timeout.
func (d *Dispatcher) HandleActivity(ctx context.Context, client JobClient, md *registry.ActivityMetadata, job entities.Job) {
	start := time.Now()
	taskType := job.GetType()
	metrics.WorkerJobsActive.WithLabelValues(taskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(taskType).Dec()
	defer observeDuration(taskType, metrics.KindActivity, start)

	log := d.logger.With(map[string]interface{}{
		"activity": md.Name,
		"jobKey":   job.GetKey(),
	})

	env, err := parseEnvelope(job)
	if err != nil {
		d.finish(ctx, client, job, env, nil, metrics.KindActivity, err, log)
		return
	}

	timeout := time.Duration(env.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = md.StartToCloseTimeout
	}
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log.Debug("Processing activity", map[string]interface{}{"retriesLeft": job.GetRetries()})
	out, err := guard(log, "activity "+md.Name, func() (json.RawMessage, error) {
		return md.Invoke(callCtx, env.Input)
	})

	d.finish(ctx, client, job, env, out, metrics.KindActivity, err, log)
	d.obs.RecordRun(ctx, metrics.KindActivity, md.Name, status(err), time.Since(start))
}

// finish completes or fails the job and reports whether this was the last attempt.
// An exhausted job completes with an error result so callers waiting on the instance see the failure.
func (d *Dispatcher) finish(ctx context.Context, client JobClient, job entities.Job, env *Envelope, output json.RawMessage, kind string, runErr error, log logger.Logger) bool {
	taskType := job.GetType()

	if runErr == nil {
		if err := client.CompleteJob(ctx, job.GetKey(), Result{Output: output}); err != nil {
			log.Error("Failed to complete job", map[string]interface{}{"error": err.Error()})
			return false
		}
		metrics.WorkerJobsCompleted.WithLabelValues(taskType, kind).Inc()
		return true
	}

	stdErr := errors.Normalize(runErr)
	metrics.WorkerJobsFailed.WithLabelValues(taskType, kind, string(stdErr.Code)).Inc()

	var policy *registry.RetryPolicy
	if env != nil {
		policy = env.RetryPolicy
	}
	decision := errors.Decide(runErr, policy, jobContext(job, env))
	if decision.Retries > 0 {
		d.errorHandler.HandleJobError(ctx, client, jobContext(job, env), policy, runErr)
		return false
	}

	log.Error("Job exhausted", map[string]interface{}{
		"error":     runErr.Error(),
		"errorKind": registry.ErrorKind(runErr),
	})
	result := Result{Error: &RemoteError{
		ErrorKind: registry.ErrorKind(runErr),
		Code:      string(stdErr.Code),
		Message:   runErr.Error(),
	}}
	if err := client.CompleteJob(ctx, job.GetKey(), result); err != nil {
		log.Error("Failed to complete exhausted job", map[string]interface{}{"error": err.Error()})
	}
	return true
}

// guard turns a panic in a handler into a non-retryable failure of its job.
func guard[T any](log logger.Logger, what string, fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Handler panicked", map[string]interface{}{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			})
			err = registry.NoRetry(fmt.Errorf("%s panicked: %v", what, r))
		}
	}()
	return fn()
}

func observeDuration(taskType, kind string, start time.Time) {
	metrics.WorkerJobDuration.WithLabelValues(taskType, kind).Observe(time.Since(start).Seconds())
}

func status(err error) string {
	if err != nil {
		return "failed"
	}
	return "completed"
}

// zeebeJobClient adapts worker.JobClient to JobClient.
type zeebeJobClient struct {
	client worker.JobClient
}

func (c zeebeJobClient) CompleteJob(ctx context.Context, jobKey int64, variables interface{}) error {
	cmd, err := c.client.NewCompleteJobCommand().JobKey(jobKey).VariablesFromObject(variables)
	if err != nil {
		return fmt.Errorf("encode job result: %w", err)
	}
	_, err = cmd.Send(ctx)
	return err
}

func (c zeebeJobClient) FailJob(ctx context.Context, jobKey int64, failure errors.JobFailure) error {
	cmd := c.client.NewFailJobCommand().
		JobKey(jobKey).
		Retries(failure.Retries).
		RetryBackoff(failure.Backoff).
		ErrorMessage(failure.Message)

	if len(failure.Variables) > 0 {
		withVars, err := cmd.VariablesFromMap(failure.Variables)
		if err == nil {
			_, err = withVars.Send(ctx)
			return err
		}
	}
	_, err := cmd.Send(ctx)
	return err
}

// WorkerOptions configures the job workers opened for one task queue.
type WorkerOptions struct {
	TaskQueue      string
	MaxJobsActive  int
	DefaultTimeout time.Duration
	// WorkflowTimeout is the job lock held while a workflow runs.
	WorkflowTimeout time.Duration
	Name            string
}

// Worker owns the job workers serving one task queue.
type Worker struct {
	client     zbc.Client
	dispatcher *Dispatcher
	opts       WorkerOptions
	logger     logger.Logger
	workers    []worker.JobWorker
}

func NewWorker(client zbc.Client, dispatcher *Dispatcher, opts WorkerOptions, log logger.Logger) *Worker {
	if opts.MaxJobsActive <= 0 {
		opts.MaxJobsActive = 100
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 5 * time.Minute
	}
	if opts.WorkflowTimeout <= 0 {
		opts.WorkflowTimeout = time.Hour
	}
	return &Worker{
		client:     client,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     log.With(map[string]interface{}{"taskQueue": opts.TaskQueue}),
	}
}

// Start opens one job worker per workflow and activity served on the queue.
func (w *Worker) Start(p *registry.Provider) int {
	for _, md := range p.Workflows().GetAll(w.opts.TaskQueue) {
		md := md
		w.open(JobType(w.opts.TaskQueue, md.Key()), w.opts.WorkflowTimeout, func(client worker.JobClient, job entities.Job) {
			ctx, cancel := context.WithTimeout(context.Background(), w.opts.WorkflowTimeout)
			defer cancel()
			w.dispatcher.HandleWorkflow(ctx, zeebeJobClient{client: client}, md, job)
		})
	}
	for _, md := range p.Activities().GetAll(w.opts.TaskQueue) {
		md := md
		lock := md.StartToCloseTimeout
		if lock <= 0 {
			lock = w.opts.DefaultTimeout
		}
		// the lock must outlive the attempt so the failure can still be reported
		lock += 30 * time.Second
		w.open(JobType(w.opts.TaskQueue, ActivityProcessID(md.Name)), lock, func(client worker.JobClient, job entities.Job) {
			w.dispatcher.HandleActivity(context.Background(), zeebeJobClient{client: client}, md, job)
		})
	}

	w.logger.Info("Job workers started", map[string]interface{}{"count": len(w.workers)})
	return len(w.workers)
}

func (w *Worker) open(jobType string, timeout time.Duration, handler worker.JobHandler) {
	builder := w.client.NewJobWorker().
		JobType(jobType).
		Handler(handler).
		MaxJobsActive(w.opts.MaxJobsActive).
		Timeout(timeout)
	if w.opts.Name != "" {
		builder = builder.Name(w.opts.Name)
	}
	w.workers = append(w.workers, builder.Open())
	w.logger.Debug("Job worker opened", map[string]interface{}{"jobType": jobType, "timeout": timeout.String()})
}

// Stop closes every job worker and waits for in-flight handlers.
func (w *Worker) Stop() {
	w.logger.Info("Stopping job workers", map[string]interface{}{"count": len(w.workers)})
	for _, jw := range w.workers {
		jw.Close()
	}
	for _, jw := range w.workers {
		jw.AwaitClose()
	}
	w.workers = nil
}

// Deploy deploys the generated process of every workflow and activity served on queue.
func Deploy(ctx context.Context, engine Engine, p *registry.Provider, queue string, log logger.Logger) error {
	for _, def := range Processes(p, queue) {
		data, err := def.BPMN()
		if err != nil {
			return err
		}
		if err := engine.DeployResource(ctx, def.ResourceName(), data); err != nil {
			return fmt.Errorf("deploy %s: %w", def.ProcessID, err)
		}
		log.Info("Process deployed", map[string]interface{}{"processId": def.ProcessID})
	}
	return nil
}
