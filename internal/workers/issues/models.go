package issues

import (
	"context"

	"signal-workflows/internal/common/github"
)

// GitHub is the part of the GitHub client the issue activities use.
type GitHub interface {
	FetchIssuesByLabel(ctx context.Context, repository, label, state string) ([]github.IssueReference, error)
	FetchIssueDetails(ctx context.Context, repository string, number int) (*github.IssueDetails, error)
	PostComment(ctx context.Context, repository string, number int, body string) (int64, error)
	GetComment(ctx context.Context, repository string, commentID int64) (string, error)
	ListComments(ctx context.Context, repository string, number int) ([]github.Comment, error)
	UpdateComment(ctx context.Context, repository string, commentID int64, body string) error
	AddLabels(ctx context.Context, repository string, number int, labels []string) error
	RemoveLabel(ctx context.Context, repository string, number int, label string) error
}

var _ GitHub = (*github.Client)(nil)

type FetchIssuesByLabelInput struct {
	Repository string `json:"repository" description:"Repository in owner/repo form"`
	Label      string `json:"label" description:"Label to filter by (e.g. check-demand)"`
}

type IssueInput struct {
	Repository  string `json:"repository" description:"Repository in owner/repo form"`
	IssueNumber int    `json:"issue_number" description:"Issue number"`
}

type IssueSummary struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	URL    string   `json:"url"`
	State  string   `json:"state"`
	Labels []string `json:"labels"`
	Author string   `json:"author"`
}

type PostCommentInput struct {
	Repository  string `json:"repository" description:"Repository in owner/repo form"`
	IssueNumber int    `json:"issue_number" description:"Issue number"`
	Body        string `json:"body" description:"Markdown body"`
}

type PostCommentOutput struct {
	OK        bool  `json:"ok"`
	CommentID int64 `json:"comment_id"`
}

type CommentInput struct {
	Repository string `json:"repository" description:"Repository in owner/repo form"`
	CommentID  int64  `json:"comment_id" description:"Comment ID"`
	Body       string `json:"body" description:"Markdown body"`
}

type AddLabelsInput struct {
	Repository  string   `json:"repository" description:"Repository in owner/repo form"`
	IssueNumber int      `json:"issue_number" description:"Issue number"`
	Labels      []string `json:"labels" description:"Labels to add"`
}

type RemoveLabelInput struct {
	Repository  string `json:"repository" description:"Repository in owner/repo form"`
	IssueNumber int    `json:"issue_number" description:"Issue number"`
	Label       string `json:"label" description:"Label to remove"`
}

type ChecklistItemInput struct {
	Repository string `json:"repository" description:"Repository in owner/repo form"`
	CommentID  int64  `json:"comment_id" description:"Comment ID"`
	ItemText   string `json:"item_text" description:"Text of the checklist item, without the leading [ ]"`
}

type Status struct {
	OK bool `json:"ok"`
}

type ChecklistItemOutput struct {
	OK     bool `json:"ok"`
	Marked bool `json:"marked"`
}
