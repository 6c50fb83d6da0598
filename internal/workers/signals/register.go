package signals

import (
	"signal-workflows/internal/common/logger"
	"signal-workflows/internal/workers/issues"
	"signal-workflows/internal/workers/research"
	"signal-workflows/pkg/registry"
)

const (
	ResearchIssueWorkflowName       = "research-issue"
	ProcessGithubIssuesWorkflowName = "process-github-issues"
	WorkflowVersion                 = "v1"
)

// Options wires the signal workflows to their activities and agent runner.
type Options struct {
	Issues   *issues.Activities
	Research *research.Activities
	Runner   AgentRunner
	// MaxParallel bounds concurrent research-issue children per scan.
	MaxParallel int
	Logger      logger.Logger
}

// Register adds research-issue and process-github-issues to p. The activities they use are
// registered by their own packages.
func Register(p *registry.Provider, opts Options) (researchIssue, processIssues *registry.WorkflowMetadata, err error) {
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}

	researchIssue, err = registry.RegisterWorkflow(p.Workflows(), ResearchIssueWorkflow{
		Issues: opts.Issues,
		Agents: NewAgents(opts.Issues, opts.Research),
		Runner: opts.Runner,
		Logger: opts.Logger,
	}, registry.WorkflowOptions{
		Name:        ResearchIssueWorkflowName,
		Version:     WorkflowVersion,
		Description: "Research a single issue for market demand using planner, researcher and reporter agents.",
	})
	if err != nil {
		return nil, nil, err
	}

	processIssues, err = registry.RegisterWorkflow(p.Workflows(), ProcessGithubIssuesWorkflow{
		Issues:      opts.Issues,
		Research:    researchIssue,
		MaxParallel: opts.MaxParallel,
		Logger:      opts.Logger,
	}, registry.WorkflowOptions{
		Name:        ProcessGithubIssuesWorkflowName,
		Version:     WorkflowVersion,
		Description: "Find issues with a demand label and research each one as a child workflow.",
	})
	if err != nil {
		return nil, nil, err
	}
	return researchIssue, processIssues, nil
}
