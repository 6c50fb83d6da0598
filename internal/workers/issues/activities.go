package issues

import (
	"context"
	"time"

	"signal-workflows/internal/common/errors"
	"signal-workflows/internal/common/github"
	"signal-workflows/internal/common/logger"
	"signal-workflows/pkg/registry"
)

const (
	activityTimeout = 30 * time.Second
	maxRetries      = 3
)

// Activities wrap the GitHub issue operations.
type Activities struct {
	FetchIssuesByLabel        *registry.Activity[FetchIssuesByLabelInput, []github.IssueReference]
	FetchIssueDetails         *registry.Activity[IssueInput, IssueSummary]
	PostGithubComment         *registry.Activity[PostCommentInput, PostCommentOutput]
	ListIssueComments         *registry.Activity[IssueInput, []github.Comment]
	UpdateIssueComment        *registry.Activity[CommentInput, Status]
	AddIssueLabels            *registry.Activity[AddLabelsInput, Status]
	RemoveIssueLabel          *registry.Activity[RemoveLabelInput, Status]
	MarkChecklistItemComplete *registry.Activity[ChecklistItemInput, ChecklistItemOutput]
	AppendToIssueComment      *registry.Activity[CommentInput, Status]
}

type service struct {
	gh     GitHub
	logger logger.Logger
}

func NewActivities(gh GitHub, log logger.Logger) *Activities {
	s := &service{
		gh:     gh,
		logger: log.With(map[string]interface{}{"component": "issue-activities"}),
	}
	opts := func(name, description string) registry.ActivityOptions {
		return registry.ActivityOptions{
			Name:                name,
			Description:         description,
			StartToCloseTimeout: activityTimeout,
			MaxRetries:          maxRetries,
		}
	}

	checklist := opts("mark_checklist_item_complete", "Marks a checklist item as complete in a GitHub comment.")
	checklist.MaxRetries = 5

	return &Activities{
		FetchIssuesByLabel: registry.MustDefineActivity(s.fetchIssuesByLabel,
			opts("fetch_issues_by_label", "Fetches open issues carrying a label.")),
		FetchIssueDetails: registry.MustDefineActivity(s.fetchIssueDetails,
			opts("fetch_issue_details", "Fetches title, body, state, labels and author of an issue.")),
		PostGithubComment: registry.MustDefineActivity(s.postComment,
			opts("post_github_comment", "Posts a comment to a GitHub issue and returns its comment_id.")),
		ListIssueComments: registry.MustDefineActivity(s.listComments,
			opts("list_issue_comments", "Lists all comments on a GitHub issue.")),
		UpdateIssueComment: registry.MustDefineActivity(s.updateComment,
			opts("update_issue_comment", "Replaces the body of a GitHub issue comment.")),
		AddIssueLabels: registry.MustDefineActivity(s.addLabels,
			opts("add_issue_labels", "Adds labels to a GitHub issue.")),
		RemoveIssueLabel: registry.MustDefineActivity(s.removeLabel,
			opts("remove_issue_label", "Removes a label from a GitHub issue.")),
		MarkChecklistItemComplete: registry.MustDefineActivity(s.markChecklistItem, checklist),
		AppendToIssueComment: registry.MustDefineActivity(s.appendToComment,
			opts("append_to_issue_comment", "Appends markdown to an existing GitHub issue comment.")),
	}
}

// All returns every issue activity for registration.
func (a *Activities) All() []registry.ActivityDefinition {
	return []registry.ActivityDefinition{
		a.FetchIssuesByLabel,
		a.FetchIssueDetails,
		a.PostGithubComment,
		a.ListIssueComments,
		a.UpdateIssueComment,
		a.AddIssueLabels,
		a.RemoveIssueLabel,
		a.MarkChecklistItemComplete,
		a.AppendToIssueComment,
	}
}

func (s *service) fetchIssuesByLabel(ctx context.Context, in FetchIssuesByLabelInput) ([]github.IssueReference, error) {
	s.logger.Info("Fetching issues by label", map[string]interface{}{
		"repository": in.Repository,
		"label":      in.Label,
	})
	issues, err := s.gh.FetchIssuesByLabel(ctx, in.Repository, in.Label, "open")
	if err != nil {
		return nil, err
	}
	s.logger.Info("Found demand signals", map[string]interface{}{"count": len(issues)})
	return issues, nil
}

func (s *service) fetchIssueDetails(ctx context.Context, in IssueInput) (IssueSummary, error) {
	details, err := s.gh.FetchIssueDetails(ctx, in.Repository, in.IssueNumber)
	if err != nil {
		return IssueSummary{}, err
	}
	s.logger.Info("Fetched issue", map[string]interface{}{
		"repository": in.Repository,
		"issue":      in.IssueNumber,
		"title":      details.Title,
	})
	return IssueSummary{
		Title:  details.Title,
		Body:   details.Body,
		URL:    details.URL,
		State:  details.State,
		Labels: details.Labels,
		Author: details.Author,
	}, nil
}

func (s *service) postComment(ctx context.Context, in PostCommentInput) (PostCommentOutput, error) {
	s.logger.Info("Posting comment", map[string]interface{}{"repository": in.Repository, "issue": in.IssueNumber})
	id, err := s.gh.PostComment(ctx, in.Repository, in.IssueNumber, in.Body)
	if err != nil {
		return PostCommentOutput{}, err
	}
	return PostCommentOutput{OK: true, CommentID: id}, nil
}

func (s *service) listComments(ctx context.Context, in IssueInput) ([]github.Comment, error) {
	return s.gh.ListComments(ctx, in.Repository, in.IssueNumber)
}

func (s *service) updateComment(ctx context.Context, in CommentInput) (Status, error) {
	s.logger.Info("Updating comment", map[string]interface{}{"repository": in.Repository, "commentId": in.CommentID})
	if err := s.gh.UpdateComment(ctx, in.Repository, in.CommentID, in.Body); err != nil {
		return Status{}, err
	}
	return Status{OK: true}, nil
}

func (s *service) addLabels(ctx context.Context, in AddLabelsInput) (Status, error) {
	s.logger.Info("Adding labels", map[string]interface{}{
		"repository": in.Repository,
		"issue":      in.IssueNumber,
		"labels":     in.Labels,
	})
	if err := s.gh.AddLabels(ctx, in.Repository, in.IssueNumber, in.Labels); err != nil {
		return Status{}, err
	}
	return Status{OK: true}, nil
}

func (s *service) removeLabel(ctx context.Context, in RemoveLabelInput) (Status, error) {
	s.logger.Info("Removing label", map[string]interface{}{
		"repository": in.Repository,
		"issue":      in.IssueNumber,
		"label":      in.Label,
	})
	if err := s.gh.RemoveLabel(ctx, in.Repository, in.IssueNumber, in.Label); err != nil {
		return Status{}, err
	}
	return Status{OK: true}, nil
}

// markChecklistItem ticks "[ ] item" in the comment. A missing item is reported, not failed.
func (s *service) markChecklistItem(ctx context.Context, in ChecklistItemInput) (ChecklistItemOutput, error) {
	body, err := s.gh.GetComment(ctx, in.Repository, in.CommentID)
	if err != nil {
		return ChecklistItemOutput{}, err
	}

	updated, err := github.CheckItem(body, in.ItemText)
	if se, ok := errors.AsStandard(err); ok && se.Code == errors.ErrCodeChecklistItemNotFound {
		s.logger.Warn("Checklist item not found", map[string]interface{}{
			"commentId": in.CommentID,
			"item":      in.ItemText,
		})
		return ChecklistItemOutput{OK: true, Marked: false}, nil
	}
	if err != nil {
		return ChecklistItemOutput{}, err
	}

	if err := s.gh.UpdateComment(ctx, in.Repository, in.CommentID, updated); err != nil {
		return ChecklistItemOutput{}, err
	}
	return ChecklistItemOutput{OK: true, Marked: true}, nil
}

func (s *service) appendToComment(ctx context.Context, in CommentInput) (Status, error) {
	current, err := s.gh.GetComment(ctx, in.Repository, in.CommentID)
	if err != nil {
		return Status{}, err
	}
	if err := s.gh.UpdateComment(ctx, in.Repository, in.CommentID, current+"\n\n"+in.Body); err != nil {
		return Status{}, err
	}
	return Status{OK: true}, nil
}

// Register adds every issue activity to p.
func Register(p *registry.Provider, acts *Activities) error {
	for _, a := range acts.All() {
		if err := registry.RegisterActivity(p.Activities(), a); err != nil {
			return err
		}
	}
	return nil
}
