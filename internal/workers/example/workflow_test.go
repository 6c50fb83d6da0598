package example

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"signal-workflows/internal/common/logger"
	"signal-workflows/pkg/registry"
)

type MockGreeter struct {
	mock.Mock
}

func (m *MockGreeter) Greeting(name string) string {
	return m.Called(name).String(0)
}

func setupProvider(t *testing.T, greeter Greeter) (*registry.Provider, *registry.WorkflowMetadata) {
	p := registry.NewProvider()
	md, err := Register(p, NewActivities(greeter, logger.NewTestLogger(t)))
	require.NoError(t, err)
	return p, md
}

func TestRegister(t *testing.T) {
	p, md := setupProvider(t, nil)

	assert.Equal(t, "example-workflow-v2", md.Key())
	act, ok := p.Activities().Get("say_hello")
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, act.StartToCloseTimeout)
}

func TestExampleWorkflow_Run(t *testing.T) {
	tests := []struct {
		name  string
		input *ExampleInput
		want  ExampleOutput
	}{
		{
			name:  "single iteration",
			input: &ExampleInput{Name: "Ada", Count: 1},
			want:  ExampleOutput{Result: "Hello from GreetingService, Ada! (iteration 1)", Iterations: 1},
		},
		{
			name:  "several iterations",
			input: &ExampleInput{Name: "Bo", Count: 3},
			want: ExampleOutput{
				Result: "Hello from GreetingService, Bo! (iteration 1), " +
					"Hello from GreetingService, Bo! (iteration 2), " +
					"Hello from GreetingService, Bo! (iteration 3)",
				Iterations: 3,
			},
		},
		{
			name:  "zero count runs once",
			input: &ExampleInput{Name: "Cy"},
			want:  ExampleOutput{Result: "Hello from GreetingService, Cy! (iteration 1)", Iterations: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, md := setupProvider(t, nil)

			raw, err := (&registry.LocalExecutor{}).Execute(context.Background(), registry.RunRequest{Workflow: md, Input: tt.input})
			require.NoError(t, err)

			var got ExampleOutput
			require.NoError(t, json.Unmarshal(raw, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExampleWorkflow_UsesInjectedGreeter(t *testing.T) {
	greeter := new(MockGreeter)
	greeter.On("Greeting", "Dee").Return("hi Dee").Twice()
	_, md := setupProvider(t, greeter)

	raw, err := (&registry.LocalExecutor{}).Execute(context.Background(), registry.RunRequest{
		Workflow: md,
		Input:    json.RawMessage(`{"name":"Dee","count":2}`),
	})

	require.NoError(t, err)
	assert.JSONEq(t, `{"result":"hi Dee (iteration 1), hi Dee (iteration 2)","iterations":2}`, string(raw))
	greeter.AssertExpectations(t)
}

func TestExampleWorkflow_OutsidePlatform(t *testing.T) {
	wf := ExampleWorkflow{Activities: NewActivities(nil, logger.NewNoOpLogger())}

	_, err := wf.Run(context.Background(), &ExampleInput{Name: "Ed", Count: 1})
	assert.ErrorIs(t, err, registry.ErrNoInvoker)
}

func TestExampleInput_Validate(t *testing.T) {
	assert.NoError(t, (&ExampleInput{Name: "x", Count: 100}).Validate())
	assert.Error(t, (&ExampleInput{Count: 1}).Validate())
	assert.Error(t, (&ExampleInput{Name: "x", Count: 101}).Validate())
	assert.Error(t, (&ExampleInput{Name: "x"}).Validate())
}
