package camunda

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"signal-workflows/internal/common/errors"
	"signal-workflows/internal/common/logger"
	"signal-workflows/pkg/registry"
)

// ==========================
// Fixtures
// ==========================

type echoInput struct {
	Text string `json:"text"`
}

type echoOutput struct {
	Text string `json:"text"`
}

type flakyError struct{}

func (flakyError) Error() string { return "temporarily unavailable" }

var shout = registry.MustDefineActivity(func(_ context.Context, in echoInput) (echoOutput, error) {
	if in.Text == "" {
		return echoOutput{}, registry.NoRetry(stderrors.New("nothing to shout"))
	}
	if in.Text == "flaky" {
		return echoOutput{}, flakyError{}
	}
	return echoOutput{Text: strings.ToUpper(in.Text)}, nil
}, registry.ActivityOptions{Name: "shout", StartToCloseTimeout: time.Second, MaxRetries: 3})

var explode = registry.MustDefineActivity(func(_ context.Context, in echoInput) (echoOutput, error) {
	var out *echoOutput
	return *out, nil
}, registry.ActivityOptions{Name: "explode", MaxRetries: 3})

type ExplodingWorkflow struct{ registry.Workflow }

func (ExplodingWorkflow) Run(ctx context.Context, in *echoInput) (*echoOutput, error) {
	panic("unreachable state: " + in.Text)
}

type EchoWorkflow struct{ registry.Workflow }

func (EchoWorkflow) Run(ctx context.Context, in *echoInput) (*echoOutput, error) {
	out, err := shout.Execute(ctx, *in)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func echoMetadata(t *testing.T) *registry.WorkflowMetadata {
	md, err := registry.RegisterWorkflow(nil, EchoWorkflow{}, registry.WorkflowOptions{Version: "v1", TaskQueue: "research"})
	require.NoError(t, err)
	return md
}

// MockEngine is a testify mock of Engine.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) DeployResource(ctx context.Context, name string, definition []byte) error {
	return m.Called(ctx, name, definition).Error(0)
}

func (m *MockEngine) CreateInstance(ctx context.Context, processID string, variables interface{}) (int64, error) {
	args := m.Called(ctx, processID, variables)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEngine) CreateInstanceWithResult(ctx context.Context, processID string, variables interface{}) (string, error) {
	args := m.Called(ctx, processID, variables)
	return args.String(0), args.Error(1)
}

type completedJob struct {
	key       int64
	variables interface{}
}

// recordingJobClient captures what the dispatcher tells the engine.
type recordingJobClient struct {
	completed []completedJob
	failed    []errors.JobFailure
}

func (c *recordingJobClient) CompleteJob(_ context.Context, jobKey int64, variables interface{}) error {
	c.completed = append(c.completed, completedJob{key: jobKey, variables: variables})
	return nil
}

func (c *recordingJobClient) FailJob(_ context.Context, _ int64, failure errors.JobFailure) error {
	c.failed = append(c.failed, failure)
	return nil
}

type recordingObserver struct {
	workflowID string
	output     json.RawMessage
	err        error
	calls      int
}

func (o *recordingObserver) WorkflowFinished(_ context.Context, workflowID string, output json.RawMessage, err error) {
	o.workflowID, o.output, o.err = workflowID, output, err
	o.calls++
}

func createMockJob(key int64, jobType string, retries int32, env Envelope) entities.Job {
	variablesJSON, _ := json.Marshal(env)

	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                      key,
		Type:                     jobType,
		ProcessInstanceKey:       key * 10,
		BpmnProcessId:            "test-process",
		ProcessDefinitionVersion: 1,
		ProcessDefinitionKey:     1,
		ElementId:                "run",
		ElementInstanceKey:       1,
		CustomHeaders:            "{}",
		Worker:                   "test-worker",
		Retries:                  retries,
		Variables:                string(variablesJSON),
	}}
}

// ==========================
// BPMN Tests
// ==========================

func TestProcessDefinition_BPMN(t *testing.T) {
	def := WorkflowProcess(echoMetadata(t))
	assert.Equal(t, "echo-workflow-v1", def.ProcessID)
	assert.Equal(t, "echo-workflow-v1.bpmn", def.ResourceName())

	data, err := def.BPMN()
	require.NoError(t, err)
	doc := string(data)

	assert.Contains(t, doc, `<bpmn:process id="echo-workflow-v1" name="echo-workflow v1" isExecutable="true">`)
	assert.Contains(t, doc, `type="=taskQueue + &#34;:&#34; + &#34;echo-workflow-v1&#34;"`)
	assert.Contains(t, doc, `retries="=retries"`)
	assert.NotContains(t, doc, "bpmn:documentation")
}

func TestActivityProcess(t *testing.T) {
	def := ActivityProcess(shout.Metadata())
	assert.Equal(t, "activity-shout", def.ProcessID)
	assert.Equal(t, "research:activity-shout", JobType("research", def.ProcessID))

	def.Documentation = "Shouts <loudly> & proudly"
	data, err := def.BPMN()
	require.NoError(t, err)
	assert.Contains(t, string(data), "<bpmn:documentation>Shouts &lt;loudly&gt; &amp; proudly</bpmn:documentation>")
}

func TestProcessDefinition_InvalidID(t *testing.T) {
	for _, id := range []string{"", "1-starts-with-digit", "has space", "-leading"} {
		_, err := ProcessDefinition{ProcessID: id}.BPMN()
		assert.Error(t, err, id)
	}
}

// ==========================
// Executor Tests
// ==========================

func TestExecutor_Execute(t *testing.T) {
	engine := new(MockEngine)
	exec := NewExecutor(engine, ExecutorOptions{DefaultQueue: "default", Logger: logger.NewTestLogger(t)})
	md := echoMetadata(t)

	engine.On("CreateInstanceWithResult", mock.Anything, "echo-workflow-v1", mock.MatchedBy(func(env *Envelope) bool {
		return env.WorkflowID == "echo-1" && env.TaskQueue == "research" && env.Retries == 1 &&
			string(env.Input) == `{"text":"hi"}`
	})).Return(`{"input":{"text":"hi"},"output":{"text":"HI"}}`, nil).Once()

	out, err := exec.Execute(context.Background(), registry.RunRequest{Workflow: md, WorkflowID: "echo-1", Input: &echoInput{Text: "hi"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"HI"}`, string(out))
	engine.AssertExpectations(t)
}

func TestExecutor_ExecuteRemoteError(t *testing.T) {
	engine := new(MockEngine)
	exec := NewExecutor(engine, ExecutorOptions{})

	engine.On("CreateInstanceWithResult", mock.Anything, "echo-workflow-v1", mock.Anything).
		Return(`{"error":{"kind":"NoRetryError","code":"INTERNAL_ERROR","message":"nothing to shout"}}`, nil)

	_, err := exec.Execute(context.Background(), registry.RunRequest{Workflow: echoMetadata(t), TaskQueue: "override"})
	require.Error(t, err)
	assert.Equal(t, "nothing to shout", err.Error())
	assert.Equal(t, registry.NoRetryErrorKind, registry.ErrorKind(err))
}

func TestExecutor_Start(t *testing.T) {
	engine := new(MockEngine)
	exec := NewExecutor(engine, ExecutorOptions{})

	engine.On("CreateInstance", mock.Anything, "echo-workflow-v1", mock.MatchedBy(func(env *Envelope) bool {
		return env.TaskQueue == "override"
	})).Return(int64(2251799813685249), nil)

	handle, err := exec.Start(context.Background(), registry.RunRequest{Workflow: echoMetadata(t), WorkflowID: "echo-2", TaskQueue: "override"})
	require.NoError(t, err)
	assert.Equal(t, "echo-2", handle.WorkflowID)
	assert.Equal(t, "2251799813685249", handle.RunID)

	_, err = exec.Start(context.Background(), registry.RunRequest{})
	assert.ErrorIs(t, err, registry.ErrMissingEntryPoint)
}

func TestExecutor_ExecuteActivity(t *testing.T) {
	engine := new(MockEngine)
	exec := NewExecutor(engine, ExecutorOptions{DefaultQueue: "default", DefaultRetries: 2})

	var deadline time.Time
	engine.On("CreateInstanceWithResult", mock.Anything, "activity-shout", mock.MatchedBy(func(env *Envelope) bool {
		return env.TaskQueue == "default" && env.Retries == 3 && env.TimeoutMs == 1000 && env.RetryPolicy != nil
	})).Run(func(args mock.Arguments) {
		deadline, _ = args.Get(0).(context.Context).Deadline()
	}).Return(`{"output":{"text":"HEY"}}`, nil)

	ctx := registry.WithInvoker(context.Background(), exec)
	out, err := shout.Execute(ctx, echoInput{Text: "hey"})
	require.NoError(t, err)
	assert.Equal(t, "HEY", out.Text)
	assert.False(t, deadline.IsZero(), "activity calls are bounded")
	engine.AssertExpectations(t)
}

func TestExecutor_ExecuteChild(t *testing.T) {
	engine := new(MockEngine)
	exec := NewExecutor(engine, ExecutorOptions{})
	md := echoMetadata(t)

	engine.On("CreateInstanceWithResult", mock.Anything, "echo-workflow-v1", mock.MatchedBy(func(env *Envelope) bool {
		return env.WorkflowID == "child-7" && env.TaskQueue == "research"
	})).Return(`{"output":{"text":"CHILD"}}`, nil).Once()

	ctx := registry.WithInvoker(context.Background(), exec)
	out, err := registry.ExecuteChild(ctx, registry.RunRequest{Workflow: md, WorkflowID: "child-7", Input: echoInput{Text: "child"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"CHILD"}`, string(out))
	engine.AssertExpectations(t)
}

func TestActivityDeadline(t *testing.T) {
	policy := &registry.RetryPolicy{InitialInterval: time.Second, BackoffCoefficient: 2}

	assert.Equal(t, time.Minute, activityDeadline(registry.CallOptions{ScheduleToCloseTimeout: time.Minute, StartToCloseTimeout: time.Hour}, 3))
	assert.Zero(t, activityDeadline(registry.CallOptions{}, 3))
	// 3 attempts of 10s plus 1s and 2s of backoff
	assert.Equal(t, 33*time.Second, activityDeadline(registry.CallOptions{StartToCloseTimeout: 10 * time.Second, RetryPolicy: policy}, 3))
}

func TestExecuteWithRetry(t *testing.T) {
	rc := &RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	t.Run("transient errors are retried", func(t *testing.T) {
		calls := 0
		got, err := ExecuteWithRetry(context.Background(), rc, "op", func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, stderrors.New("rpc error: code = Unavailable")
			}
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, got)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausted retries map to platform unavailable", func(t *testing.T) {
		_, err := ExecuteWithRetry(context.Background(), rc, "op", func(context.Context) (int, error) {
			return 0, stderrors.New("connection refused")
		})
		stdErr, ok := errors.AsStandard(err)
		require.True(t, ok)
		assert.Equal(t, errors.ErrCodePlatformUnavailable, stdErr.Code)
	})

	t.Run("rejections are not retried", func(t *testing.T) {
		calls := 0
		_, err := ExecuteWithRetry(context.Background(), rc, "op", func(context.Context) (int, error) {
			calls++
			return 0, stderrors.New("rpc error: code = NotFound desc = no process with id")
		})
		assert.Equal(t, 1, calls)
		stdErr, ok := errors.AsStandard(err)
		require.True(t, ok)
		assert.Equal(t, errors.ErrCodePlatformRequestFailed, stdErr.Code)
	})
}

// ==========================
// Dispatcher Tests
// ==========================

func TestDispatcher_HandleWorkflow(t *testing.T) {
	observer := &recordingObserver{}
	d := NewDispatcher(DispatcherOptions{Invoker: registry.LocalInvoker{}, Observer: observer, Logger: logger.NewTestLogger(t)})
	client := &recordingJobClient{}

	job := createMockJob(1, "research:echo-workflow-v1", 1, Envelope{
		Input: json.RawMessage(`{"text":"hi"}`), WorkflowID: "echo-1", TaskQueue: "research", Retries: 1,
	})
	d.HandleWorkflow(context.Background(), client, echoMetadata(t), job)

	require.Len(t, client.completed, 1)
	assert.Empty(t, client.failed)
	res := client.completed[0].variables.(Result)
	assert.JSONEq(t, `{"text":"HI"}`, string(res.Output))
	assert.Nil(t, res.Error)

	assert.Equal(t, 1, observer.calls)
	assert.Equal(t, "echo-1", observer.workflowID)
	assert.NoError(t, observer.err)
}

func TestDispatcher_HandleWorkflowFailure(t *testing.T) {
	observer := &recordingObserver{}
	d := NewDispatcher(DispatcherOptions{Observer: observer})
	client := &recordingJobClient{}

	job := createMockJob(2, "research:echo-workflow-v1", 1, Envelope{
		Input: json.RawMessage(`{"text":""}`), WorkflowID: "echo-2", TaskQueue: "research", Retries: 1,
	})
	d.HandleWorkflow(context.Background(), client, echoMetadata(t), job)

	require.Len(t, client.completed, 1)
	res := client.completed[0].variables.(Result)
	require.NotNil(t, res.Error)
	assert.Equal(t, registry.NoRetryErrorKind, res.Error.ErrorKind)
	assert.Equal(t, "NoRetryError: nothing to shout", res.Error.Message)
	assert.EqualError(t, observer.err, "NoRetryError: nothing to shout")
}

func TestDispatcher_HandleActivity(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		retries       int32
		wantCompleted bool
		wantFailed    bool
		wantOutput    string
		wantErrorKind string
	}{
		{name: "success", input: `{"text":"go"}`, retries: 3, wantCompleted: true, wantOutput: `{"text":"GO"}`},
		{name: "retryable failure with retries left", input: `{"text":"flaky"}`, retries: 3, wantFailed: true},
		{name: "retryable failure on last attempt", input: `{"text":"flaky"}`, retries: 1, wantCompleted: true, wantErrorKind: "flakyError"},
		{name: "non retryable failure", input: `{"text":""}`, retries: 3, wantCompleted: true, wantErrorKind: registry.NoRetryErrorKind},
		{name: "undecodable input", input: `{"text":5}`, retries: 3, wantCompleted: true, wantErrorKind: registry.NoRetryErrorKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(DispatcherOptions{Logger: logger.NewTestLogger(t)})
			client := &recordingJobClient{}
			job := createMockJob(3, "default:activity-shout", tt.retries, Envelope{
				Input: json.RawMessage(tt.input), TaskQueue: "default", Retries: 3,
				RetryPolicy: &registry.RetryPolicy{MaximumAttempts: 3, NonRetryableErrorTypes: []string{registry.NoRetryErrorKind}},
			})

			d.HandleActivity(context.Background(), client, shout.Metadata(), job)

			assert.Equal(t, tt.wantCompleted, len(client.completed) == 1)
			assert.Equal(t, tt.wantFailed, len(client.failed) == 1)
			if tt.wantFailed {
				assert.Equal(t, tt.retries-1, client.failed[0].Retries)
				assert.Equal(t, time.Second, client.failed[0].Backoff)
			}
			if tt.wantCompleted {
				res := client.completed[0].variables.(Result)
				if tt.wantOutput != "" {
					assert.JSONEq(t, tt.wantOutput, string(res.Output))
				}
				if tt.wantErrorKind != "" {
					require.NotNil(t, res.Error)
					assert.Equal(t, tt.wantErrorKind, res.Error.ErrorKind)
				}
			}
		})
	}
}

func TestDispatcher_PanicFailsTheJob(t *testing.T) {
	t.Run("activity", func(t *testing.T) {
		d := NewDispatcher(DispatcherOptions{Logger: logger.NewTestLogger(t)})
		client := &recordingJobClient{}
		job := createMockJob(5, "default:activity-explode", 3, Envelope{
			Input: json.RawMessage(`{"text":"go"}`), TaskQueue: "default", Retries: 3,
		})

		require.NotPanics(t, func() {
			d.HandleActivity(context.Background(), client, explode.Metadata(), job)
		})

		require.Len(t, client.completed, 1)
		assert.Empty(t, client.failed)
		res := client.completed[0].variables.(Result)
		require.NotNil(t, res.Error)
		assert.Equal(t, registry.NoRetryErrorKind, res.Error.ErrorKind)
		assert.Contains(t, res.Error.Message, "activity explode panicked")
	})

	t.Run("workflow", func(t *testing.T) {
		md, err := registry.RegisterWorkflow(nil, ExplodingWorkflow{}, registry.WorkflowOptions{Version: "v1"})
		require.NoError(t, err)
		observer := &recordingObserver{}
		d := NewDispatcher(DispatcherOptions{Observer: observer, Logger: logger.NewTestLogger(t)})
		client := &recordingJobClient{}
		job := createMockJob(6, "default:exploding-workflow-v1", 1, Envelope{
			Input: json.RawMessage(`{"text":"boom"}`), WorkflowID: "exploding-1", TaskQueue: "default", Retries: 1,
		})

		require.NotPanics(t, func() {
			d.HandleWorkflow(context.Background(), client, md, job)
		})

		require.Len(t, client.completed, 1)
		res := client.completed[0].variables.(Result)
		require.NotNil(t, res.Error)
		assert.Contains(t, res.Error.Message, "panicked: unreachable state: boom")
		assert.Equal(t, 1, observer.calls)
		assert.Error(t, observer.err)
	})
}

func TestDispatcher_BadVariables(t *testing.T) {
	d := NewDispatcher(DispatcherOptions{})
	client := &recordingJobClient{}
	job := createMockJob(4, "default:activity-shout", 3, Envelope{})
	job.Variables = "not json"

	d.HandleActivity(context.Background(), client, shout.Metadata(), job)

	require.Len(t, client.completed, 1)
	assert.Equal(t, registry.NoRetryErrorKind, client.completed[0].variables.(Result).Error.ErrorKind)
}

// ==========================
// Deployment Tests
// ==========================

func TestDeploy(t *testing.T) {
	p := registry.NewProvider()
	_, err := registry.RegisterWorkflow(p.Workflows(), EchoWorkflow{}, registry.WorkflowOptions{Version: "v1"})
	require.NoError(t, err)
	require.NoError(t, registry.RegisterActivity(p.Activities(), shout))

	engine := new(MockEngine)
	engine.On("DeployResource", mock.Anything, "echo-workflow-v1.bpmn", mock.Anything).Return(nil).Once()
	engine.On("DeployResource", mock.Anything, "activity-shout.bpmn", mock.Anything).Return(nil).Once()

	require.NoError(t, Deploy(context.Background(), engine, p, "default", logger.NewNoOpLogger()))
	engine.AssertExpectations(t)
}
