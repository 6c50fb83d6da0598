package signals

import (
	"context"
	"embed"
	"time"

	"signal-workflows/internal/agent"
	"signal-workflows/internal/workers/issues"
	"signal-workflows/internal/workers/research"
	"signal-workflows/pkg/registry"
)

const (
	PlannerAgent    = "planner"
	ResearcherAgent = "researcher"
	ReporterAgent   = "reporter"

	researcherMaxTurns = 150
)

//go:embed prompts/*.md
var prompts embed.FS

func loadPrompt(name string) string {
	data, err := prompts.ReadFile("prompts/" + name)
	if err != nil {
		return "You are a helpful assistant."
	}
	return string(data)
}

// AgentRunner runs one agent to completion.
type AgentRunner interface {
	Run(ctx context.Context, a *agent.Agent, input string, maxTurns int) (*agent.Result, error)
}

var _ AgentRunner = (*agent.Runner)(nil)

// Agents are the three phases of issue research.
type Agents struct {
	Planner    *agent.Agent
	Researcher *agent.Agent
	Reporter   *agent.Agent
}

func attempts(n int) *registry.RetryPolicy {
	p := registry.DefaultRetryPolicy()
	p.MaximumAttempts = n
	return p
}

// NewAgents wires the agents to the activities they may call as tools.
func NewAgents(iss *issues.Activities, res *research.Activities) *Agents {
	quick := func(def registry.ActivityDefinition) agent.Tool {
		return agent.NewActivityTool(def,
			registry.WithStartToCloseTimeout(2*time.Minute),
			registry.WithRetryPolicy(attempts(3)))
	}
	slow := func(def registry.ActivityDefinition, opts ...registry.CallOption) agent.Tool {
		return agent.NewActivityTool(def, append([]registry.CallOption{registry.WithStartToCloseTimeout(15 * time.Minute)}, opts...)...)
	}

	return &Agents{
		Planner: &agent.Agent{
			Name:         PlannerAgent,
			Instructions: loadPrompt("planner.md"),
			Tools: agent.NewTools(
				quick(iss.FetchIssueDetails),
				quick(iss.UpdateIssueComment),
				quick(iss.ListIssueComments),
				quick(iss.AppendToIssueComment),
			),
		},
		Researcher: &agent.Agent{
			Name:         ResearcherAgent,
			Instructions: loadPrompt("researcher.md"),
			MaxTurns:     researcherMaxTurns,
			Tools: agent.NewTools(
				quick(iss.FetchIssueDetails),
				quick(iss.MarkChecklistItemComplete),
				quick(iss.UpdateIssueComment),
				quick(iss.ListIssueComments),
				quick(iss.AppendToIssueComment),
				slow(res.FindSubreddits),
				slow(iss.PostGithubComment),
				slow(res.SearchInSubreddit, registry.WithRetryPolicy(attempts(3))),
				slow(res.GetLatestPosts, registry.WithRetryPolicy(attempts(3))),
				slow(res.GetPostContent, registry.WithRetryPolicy(attempts(3))),
				slow(res.GetPostContentByURL, registry.WithRetryPolicy(attempts(3))),
			),
		},
		Reporter: &agent.Agent{
			Name:         ReporterAgent,
			Instructions: loadPrompt("reporter.md"),
			Tools: agent.NewTools(
				quick(iss.FetchIssueDetails),
				quick(iss.PostGithubComment),
				quick(iss.ListIssueComments),
			),
		},
	}
}
