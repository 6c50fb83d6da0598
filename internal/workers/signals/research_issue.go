package signals

import (
	"context"
	"fmt"
	"time"

	"signal-workflows/internal/common/github"
	"signal-workflows/internal/common/logger"
	"signal-workflows/internal/workers/issues"
	"signal-workflows/pkg/registry"
)

const (
	LabelResearch   = "research"
	LabelInProgress = "research:inprogress"
	LabelDone       = "research:done"

	StatusResearched = "researched"

	cleanupTimeout = 2 * time.Minute
)

const wipComment = "## 🚧 Research Started\n\n" +
	"**Planner 📋** is creating a specialized research plan. Execution by **Researcher 🕵️** will follow shortly.\n\n" +
	"**Status**: Initializing..."

type ResearchIssueInput struct {
	IssueRef github.IssueReference `json:"issue_ref" description:"Reference to the issue to research"`
}

type ResearchIssueOutput struct {
	Title    string `json:"title" description:"Issue title"`
	Status   string `json:"status" description:"Research status"`
	Findings string `json:"findings" description:"Research findings markdown"`
}

// ResearchIssueWorkflow researches one issue: plan, execute, report. The issue labels track progress.
type ResearchIssueWorkflow struct {
	registry.Workflow

	Issues *issues.Activities
	Agents *Agents
	Runner AgentRunner
	Logger logger.Logger
}

func (w ResearchIssueWorkflow) Run(ctx context.Context, in *ResearchIssueInput) (*ResearchIssueOutput, error) {
	repo, number := in.IssueRef.Repository, in.IssueRef.Number
	log := w.Logger.With(map[string]interface{}{
		"workflow":   "research-issue",
		"repository": repo,
		"issue":      number,
	})
	log.Info("Researching issue", nil)

	out, err := w.research(ctx, log, repo, number)
	if err != nil {
		w.handleFailure(ctx, log, repo, number, err)
		return nil, err
	}
	return out, nil
}

func (w ResearchIssueWorkflow) research(ctx context.Context, log logger.Logger, repo string, number int) (*ResearchIssueOutput, error) {
	commentID, err := w.initialize(ctx, repo, number)
	if err != nil {
		return nil, err
	}
	details, err := w.Issues.FetchIssueDetails.Execute(ctx, issues.IssueInput{Repository: repo, IssueNumber: number})
	if err != nil {
		return nil, err
	}
	issueContext := buildIssueContext(repo, number, commentID, details)

	log.Info("Starting planning phase", map[string]interface{}{"agent": PlannerAgent})
	plan, err := w.Runner.Run(ctx, w.Agents.Planner, fmt.Sprintf(
		"%s\nYour task: Create a research plan and update the status comment (ID: %d).", issueContext, commentID), 0)
	if err != nil {
		return nil, err
	}

	log.Info("Starting research phase", map[string]interface{}{"agent": ResearcherAgent})
	findings, err := w.Runner.Run(ctx, w.Agents.Researcher, fmt.Sprintf(
		"%s\nPlan:\n%s\n\nYour task: Execute each item in the plan. Mark them as complete in the GitHub comment as you go.",
		issueContext, plan.FinalOutput), researcherMaxTurns)
	if err != nil {
		return nil, err
	}

	log.Info("Starting reporting phase", map[string]interface{}{"agent": ReporterAgent})
	report, err := w.Runner.Run(ctx, w.Agents.Reporter, fmt.Sprintf(
		"%s\nResearch Findings:\n%s\n\nYour task: Synthesize the findings and post a final verdict comment.",
		issueContext, findings.FinalOutput), 0)
	if err != nil {
		return nil, err
	}

	if err := w.swapLabel(ctx, repo, number, LabelInProgress, LabelDone); err != nil {
		return nil, err
	}

	log.Info("Issue researched", map[string]interface{}{
		"planTurns":     plan.Turns,
		"researchTurns": findings.Turns,
		"reportTurns":   report.Turns,
	})
	return &ResearchIssueOutput{
		Title:    details.Title,
		Status:   StatusResearched,
		Findings: report.FinalOutput,
	}, nil
}

// initialize moves the issue to in-progress and posts the status comment the agents keep updated.
func (w ResearchIssueWorkflow) initialize(ctx context.Context, repo string, number int) (int64, error) {
	if err := w.swapLabel(ctx, repo, number, LabelResearch, LabelInProgress); err != nil {
		return 0, err
	}
	posted, err := w.Issues.PostGithubComment.Execute(ctx, issues.PostCommentInput{
		Repository:  repo,
		IssueNumber: number,
		Body:        wipComment,
	})
	if err != nil {
		return 0, err
	}
	return posted.CommentID, nil
}

func (w ResearchIssueWorkflow) swapLabel(ctx context.Context, repo string, number int, from, to string) error {
	if _, err := w.Issues.RemoveIssueLabel.Execute(ctx, issues.RemoveLabelInput{
		Repository:  repo,
		IssueNumber: number,
		Label:       from,
	}); err != nil {
		return err
	}
	_, err := w.Issues.AddIssueLabels.Execute(ctx, issues.AddLabelsInput{
		Repository:  repo,
		IssueNumber: number,
		Labels:      []string{to},
	})
	return err
}

// handleFailure puts the issue back in the research queue and reports the error on it.
// Cleanup failures are logged; the original error is what the caller sees.
func (w ResearchIssueWorkflow) handleFailure(ctx context.Context, log logger.Logger, repo string, number int, cause error) {
	log.Error("Research workflow failed", map[string]interface{}{"error": cause.Error()})

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := w.swapLabel(ctx, repo, number, LabelInProgress, LabelResearch); err != nil {
		log.Error("Failed to cleanup after error", map[string]interface{}{"error": err.Error()})
		return
	}
	if _, err := w.Issues.PostGithubComment.Execute(ctx, issues.PostCommentInput{
		Repository:  repo,
		IssueNumber: number,
		Body:        "❌ **Research Workflow Failed**\n\nError: " + cause.Error(),
	}); err != nil {
		log.Error("Failed to cleanup after error", map[string]interface{}{"error": err.Error()})
	}
}

func buildIssueContext(repo string, number int, commentID int64, details issues.IssueSummary) string {
	return fmt.Sprintf("Issue Title: %s\nIssue Number: #%d\nRepository: %s\nBody: %s\nStatus Comment ID: %d\n",
		details.Title, number, repo, details.Body, commentID)
}
