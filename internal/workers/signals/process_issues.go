package signals

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"signal-workflows/internal/common/github"
	"signal-workflows/internal/common/logger"
	"signal-workflows/internal/workers/issues"
	"signal-workflows/pkg/registry"
)

const DefaultDemandLabel = "check-demand"

type ProcessGithubIssuesInput struct {
	Repository string `json:"repository" description:"Repository to scan (e.g. owner/repo)" schema:"pattern=^[^/]+/[^/]+$"`
	Label      string `json:"label" default:"check-demand" description:"Label to filter issues by"`
}

type ProcessGithubIssuesOutput struct {
	SignalsFound     int `json:"signals_found" description:"Number of issues discovered"`
	SignalsProcessed int `json:"signals_processed" description:"Number of issues successfully processed"`
}

// ProcessGithubIssuesWorkflow finds demand signals on a repository and researches each of them
// as a child research-issue run.
type ProcessGithubIssuesWorkflow struct {
	registry.Workflow

	Issues   *issues.Activities
	Research *registry.WorkflowMetadata
	// MaxParallel bounds concurrent child runs. Zero runs them all at once.
	MaxParallel int
	Logger      logger.Logger
}

func (w ProcessGithubIssuesWorkflow) Run(ctx context.Context, in *ProcessGithubIssuesInput) (*ProcessGithubIssuesOutput, error) {
	label := in.Label
	if label == "" {
		label = DefaultDemandLabel
	}
	log := w.Logger.With(map[string]interface{}{
		"workflow":   "process-github-issues",
		"repository": in.Repository,
		"label":      label,
	})

	found, err := w.Issues.FetchIssuesByLabel.Execute(ctx, issues.FetchIssuesByLabelInput{
		Repository: in.Repository,
		Label:      label,
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		log.Info("No issues found", nil)
		return &ProcessGithubIssuesOutput{}, nil
	}

	log.Info("Triggering research", map[string]interface{}{"count": len(found)})

	var processed atomic.Int64
	var g errgroup.Group
	if w.MaxParallel > 0 {
		g.SetLimit(w.MaxParallel)
	}
	for _, ref := range found {
		ref := ref
		g.Go(func() error {
			_, err := registry.ExecuteChild(ctx, registry.RunRequest{
				Workflow:   w.Research,
				WorkflowID: ChildWorkflowID(ref),
				Input:      ResearchIssueInput{IssueRef: ref},
			})
			if err != nil {
				log.Error("Failed to process issue", map[string]interface{}{
					"issue": ref.Number,
					"error": err.Error(),
				})
				return nil
			}
			processed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	out := &ProcessGithubIssuesOutput{
		SignalsFound:     len(found),
		SignalsProcessed: int(processed.Load()),
	}
	log.Info("Issues processed", map[string]interface{}{
		"found":     out.SignalsFound,
		"processed": out.SignalsProcessed,
	})
	return out, nil
}

// ChildWorkflowID is the run id of the research-issue child for ref.
func ChildWorkflowID(ref github.IssueReference) string {
	return fmt.Sprintf("research-issue-%s-%d", strings.ReplaceAll(ref.Repository, "/", "-"), ref.Number)
}
