package example

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signal-workflows/internal/common/logger"
	"signal-workflows/pkg/registry"
)

const (
	WorkflowName    = "example-workflow"
	WorkflowVersion = "v2"
)

// Activities are the activities of the example workflow, bound to their dependencies.
type Activities struct {
	SayHello *registry.Activity[string, string]
}

func NewActivities(greeter Greeter, log logger.Logger) *Activities {
	if greeter == nil {
		greeter = GreetingService{}
	}
	log = log.With(map[string]interface{}{"component": "example-activities"})

	return &Activities{
		SayHello: registry.MustDefineActivity(func(ctx context.Context, name string) (string, error) {
			log.Info("Saying hello", map[string]interface{}{"name": name})
			return greeter.Greeting(name), nil
		}, registry.ActivityOptions{
			Name:                "say_hello",
			Description:         "Returns a greeting for name.",
			StartToCloseTimeout: 10 * time.Second,
		}),
	}
}

// ExampleWorkflow greets input.Name once per iteration through the say_hello activity.
type ExampleWorkflow struct {
	registry.Workflow
	Activities *Activities
}

func (w ExampleWorkflow) Run(ctx context.Context, in *ExampleInput) (*ExampleOutput, error) {
	count := in.Count
	if count == 0 {
		count = 1
	}

	results := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		msg, err := w.Activities.SayHello.Execute(ctx, in.Name)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
		results = append(results, fmt.Sprintf("%s (iteration %d)", msg, i))
	}

	return &ExampleOutput{
		Result:     strings.Join(results, ", "),
		Iterations: count,
	}, nil
}

// Register adds the example workflow and its activities to p.
func Register(p *registry.Provider, acts *Activities) (*registry.WorkflowMetadata, error) {
	if err := registry.RegisterActivity(p.Activities(), acts.SayHello); err != nil {
		return nil, err
	}
	return registry.RegisterWorkflow(p.Workflows(), ExampleWorkflow{Activities: acts}, registry.WorkflowOptions{
		Name:        WorkflowName,
		Version:     WorkflowVersion,
		Description: "Example workflow that demonstrates basic functionality.",
	})
}
