// internal/common/github/client.go
package github

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v66/github"

	"signal-workflows/internal/common/config"
	"signal-workflows/internal/common/errors"
	httpclient "signal-workflows/internal/common/http"
	"signal-workflows/internal/common/logger"
	"signal-workflows/pkg/registry"
)

const Platform = "github"

// IssueReference points at one issue.
type IssueReference struct {
	Platform   string `json:"platform" description:"Platform name (e.g. github)"`
	Number     int    `json:"number" description:"Issue number"`
	Repository string `json:"repository" description:"Repository in owner/repo form"`
	Title      string `json:"title" description:"Issue title"`
	URL        string `json:"url" description:"URL to the issue"`
}

// IssueDetails is the full view of an issue.
type IssueDetails struct {
	Platform   string    `json:"platform"`
	Number     int       `json:"number"`
	Repository string    `json:"repository"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Labels     []string  `json:"labels"`
	State      string    `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Author     string    `json:"author"`
	URL        string    `json:"url"`
}

type Comment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Client talks to the GitHub REST API through go-github.
type Client struct {
	gh     *gogithub.Client
	logger logger.Logger
}

func NewClient(cfg config.GitHubConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = log.With(map[string]interface{}{"component": "github"})

	transport := httpclient.NewClient(httpclient.Options{
		Timeout:    config.Seconds(cfg.Timeout),
		MaxRetries: cfg.MaxRetries,
		Logger:     log,
	})

	gh := gogithub.NewClient(transport.StandardClient())
	if cfg.Token != "" {
		gh = gh.WithAuthToken(cfg.Token)
	}
	if cfg.BaseURL != "" {
		if base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/"); err == nil {
			gh.BaseURL = base
		} else {
			log.Warn("Ignoring invalid GitHub base URL", map[string]interface{}{"baseURL": cfg.BaseURL})
		}
	}

	return &Client{gh: gh, logger: log}
}

func (c *Client) FetchIssuesByLabel(ctx context.Context, repository, label, state string) ([]IssueReference, error) {
	owner, repo, err := splitRepository(repository)
	if err != nil {
		return nil, err
	}
	if state == "" {
		state = "open"
	}

	issues, _, err := c.gh.Issues.ListByRepo(ctx, owner, repo, &gogithub.IssueListByRepoOptions{
		Labels:      []string{label},
		State:       state,
		ListOptions: gogithub.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, mapError("fetch issues", repository, err)
	}

	refs := make([]IssueReference, 0, len(issues))
	for _, issue := range issues {
		refs = append(refs, IssueReference{
			Platform:   Platform,
			Number:     issue.GetNumber(),
			Repository: repository,
			Title:      issue.GetTitle(),
			URL:        issue.GetHTMLURL(),
		})
	}
	c.logger.Debug("Fetched issues by label", map[string]interface{}{
		"repository": repository,
		"label":      label,
		"count":      len(refs),
	})
	return refs, nil
}

func (c *Client) FetchIssueDetails(ctx context.Context, repository string, number int) (*IssueDetails, error) {
	owner, repo, err := splitRepository(repository)
	if err != nil {
		return nil, err
	}
	issue, _, err := c.gh.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, mapError("fetch issue", issueResource(repository, number), err)
	}

	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}
	return &IssueDetails{
		Platform:   Platform,
		Number:     issue.GetNumber(),
		Repository: repository,
		Title:      issue.GetTitle(),
		Body:       issue.GetBody(),
		Labels:     labels,
		State:      issue.GetState(),
		CreatedAt:  issue.GetCreatedAt().Time,
		UpdatedAt:  issue.GetUpdatedAt().Time,
		Author:     issue.GetUser().GetLogin(),
		URL:        issue.GetHTMLURL(),
	}, nil
}

// PostComment creates a comment and returns its id.
func (c *Client) PostComment(ctx context.Context, repository string, number int, body string) (int64, error) {
	owner, repo, err := splitRepository(repository)
	if err != nil {
		return 0, err
	}
	created, _, err := c.gh.Issues.CreateComment(ctx, owner, repo, number, &gogithub.IssueComment{Body: gogithub.String(body)})
	if err != nil {
		return 0, mapError("post comment", issueResource(repository, number), err)
	}
	return created.GetID(), nil
}

// GetComment returns the body of a comment.
func (c *Client) GetComment(ctx context.Context, repository string, commentID int64) (string, error) {
	owner, repo, err := splitRepository(repository)
	if err != nil {
		return "", err
	}
	comment, _, err := c.gh.Issues.GetComment(ctx, owner, repo, commentID)
	if err != nil {
		return "", mapError("get comment", commentResource(repository, commentID), err)
	}
	return comment.GetBody(), nil
}

func (c *Client) ListComments(ctx context.Context, repository string, number int) ([]Comment, error) {
	owner, repo, err := splitRepository(repository)
	if err != nil {
		return nil, err
	}
	comments, _, err := c.gh.Issues.ListComments(ctx, owner, repo, number, &gogithub.IssueListCommentsOptions{
		ListOptions: gogithub.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, mapError("list comments", issueResource(repository, number), err)
	}

	out := make([]Comment, 0, len(comments))
	for _, cm := range comments {
		out = append(out, Comment{
			ID:        cm.GetID(),
			Body:      cm.GetBody(),
			Author:    cm.GetUser().GetLogin(),
			CreatedAt: cm.GetCreatedAt().Time,
		})
	}
	return out, nil
}

func (c *Client) UpdateComment(ctx context.Context, repository string, commentID int64, body string) error {
	owner, repo, err := splitRepository(repository)
	if err != nil {
		return err
	}
	_, _, err = c.gh.Issues.EditComment(ctx, owner, repo, commentID, &gogithub.IssueComment{Body: gogithub.String(body)})
	if err != nil {
		return mapError("update comment", commentResource(repository, commentID), err)
	}
	return nil
}

func (c *Client) AddLabels(ctx context.Context, repository string, number int, labels []string) error {
	owner, repo, err := splitRepository(repository)
	if err != nil {
		return err
	}
	if _, _, err := c.gh.Issues.AddLabelsToIssue(ctx, owner, repo, number, labels); err != nil {
		return mapError("add labels", issueResource(repository, number), err)
	}
	return nil
}

// RemoveLabel removes label from the issue. A label that is already gone is not an error.
func (c *Client) RemoveLabel(ctx context.Context, repository string, number int, label string) error {
	owner, repo, err := splitRepository(repository)
	if err != nil {
		return err
	}
	_, err = c.gh.Issues.RemoveLabelForIssue(ctx, owner, repo, number, label)
	if err == nil {
		return nil
	}
	err = mapError("remove label", issueResource(repository, number)+"/labels/"+label, err)
	if se, ok := errors.AsStandard(err); ok && se.Code == errors.ErrCodeGitHubNotFound {
		return nil
	}
	return err
}

// CheckItem turns "[ ] item" into "[x] item" in body.
func CheckItem(body, item string) (string, error) {
	target := "[ ] " + item
	if !strings.Contains(body, target) {
		return body, errors.NewChecklistItemNotFoundError(item)
	}
	return strings.ReplaceAll(body, target, "[x] "+item), nil
}

// splitRepository parses "owner/repo".
func splitRepository(repository string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", registry.NoRetry(errors.NewGitHubRequestFailedError("parse repository",
			fmt.Errorf("repository %q is not in owner/repo form", repository)))
	}
	return owner, repo, nil
}

func issueResource(repository string, number int) string {
	return fmt.Sprintf("%s#%d", repository, number)
}

func commentResource(repository string, commentID int64) string {
	return fmt.Sprintf("%s comment %d", repository, commentID)
}

func mapError(op, resource string, err error) error {
	var rateErr *gogithub.RateLimitError
	if stderrors.As(err, &rateErr) {
		return errors.NewGitHubRateLimitedError(rateErr.Rate.Reset.Time)
	}
	var abuseErr *gogithub.AbuseRateLimitError
	if stderrors.As(err, &abuseErr) {
		return errors.NewGitHubRateLimitedError(time.Now().Add(abuseErr.GetRetryAfter()))
	}

	var respErr *gogithub.ErrorResponse
	if !stderrors.As(err, &respErr) || respErr.Response == nil {
		return errors.NewGitHubRequestFailedError(op, err)
	}

	switch respErr.Response.StatusCode {
	case http.StatusNotFound:
		return errors.NewGitHubNotFoundError(resource)
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.NewGitHubUnauthorizedError(respErr.Message)
	case http.StatusTooManyRequests:
		return errors.NewGitHubRateLimitedError(rateLimitReset(respErr.Response.Header))
	default:
		return errors.NewGitHubRequestFailedError(op, err)
	}
}

func rateLimitReset(h http.Header) time.Time {
	secs, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}
