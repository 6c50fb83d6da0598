// internal/common/github/client_test.go
package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-workflows/internal/common/config"
	"signal-workflows/internal/common/errors"
	"signal-workflows/internal/common/logger"
	"signal-workflows/pkg/registry"
)

// ==========================
// Test Helper Functions
// ==========================

func setupServer(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.GitHubConfig{
		Token:   "test-token",
		BaseURL: srv.URL + "/",
		Timeout: 5,
	}, logger.NewTestLogger(t))
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

// ==========================
// Core Functionality Tests
// ==========================

func TestClient_FetchIssuesByLabel(t *testing.T) {
	client := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/app/issues", r.URL.Path)
		assert.Equal(t, "check-demand", r.URL.Query().Get("labels"))
		assert.Equal(t, "open", r.URL.Query().Get("state"))
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2022-11-28", r.Header.Get("X-GitHub-Api-Version"))

		writeJSON(t, w, []map[string]interface{}{
			{"number": 7, "title": "Dark mode", "html_url": "https://github.com/acme/app/issues/7"},
			{"number": 9, "title": "CSV export", "html_url": "https://github.com/acme/app/issues/9"},
		})
	})

	refs, err := client.FetchIssuesByLabel(context.Background(), "acme/app", "check-demand", "")

	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, IssueReference{
		Platform:   "github",
		Number:     7,
		Repository: "acme/app",
		Title:      "Dark mode",
		URL:        "https://github.com/acme/app/issues/7",
	}, refs[0])
}

func TestClient_FetchIssueDetails(t *testing.T) {
	client := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/app/issues/7", r.URL.Path)
		writeJSON(t, w, map[string]interface{}{
			"number":     7,
			"title":      "Dark mode",
			"body":       nil,
			"state":      "open",
			"labels":     []map[string]string{{"name": "research"}, {"name": "ui"}},
			"created_at": "2026-01-02T03:04:05Z",
			"updated_at": "2026-01-03T03:04:05Z",
			"user":       map[string]string{"login": "octocat"},
			"html_url":   "https://github.com/acme/app/issues/7",
		})
	})

	details, err := client.FetchIssueDetails(context.Background(), "acme/app", 7)

	require.NoError(t, err)
	assert.Equal(t, "Dark mode", details.Title)
	assert.Equal(t, "", details.Body)
	assert.Equal(t, []string{"research", "ui"}, details.Labels)
	assert.Equal(t, "octocat", details.Author)
	assert.Equal(t, 2026, details.CreatedAt.Year())
}

func TestClient_Comments(t *testing.T) {
	client := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/repos/acme/app/issues/7/comments":
			var in map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, "hello", in["body"])
			w.WriteHeader(http.StatusCreated)
			writeJSON(t, w, map[string]interface{}{"id": 42})
		case r.Method == http.MethodGet && r.URL.Path == "/repos/acme/app/issues/comments/42":
			writeJSON(t, w, map[string]interface{}{"id": 42, "body": "- [ ] step one"})
		case r.Method == http.MethodPatch && r.URL.Path == "/repos/acme/app/issues/comments/42":
			var in map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, "updated", in["body"])
			writeJSON(t, w, map[string]interface{}{"id": 42})
		case r.Method == http.MethodGet && r.URL.Path == "/repos/acme/app/issues/7/comments":
			writeJSON(t, w, []map[string]interface{}{
				{"id": 42, "body": "hello", "user": map[string]string{"login": "bot"}, "created_at": "2026-01-02T03:04:05Z"},
			})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	})
	ctx := context.Background()

	id, err := client.PostComment(ctx, "acme/app", 7, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	body, err := client.GetComment(ctx, "acme/app", id)
	require.NoError(t, err)
	assert.Equal(t, "- [ ] step one", body)

	require.NoError(t, client.UpdateComment(ctx, "acme/app", id, "updated"))

	comments, err := client.ListComments(ctx, "acme/app", 7)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "bot", comments[0].Author)
}

func TestClient_Labels(t *testing.T) {
	var removed []string
	client := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var in []string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, []string{"research:inprogress"}, in)
			writeJSON(t, w, []interface{}{})
		case http.MethodDelete:
			removed = append(removed, r.URL.EscapedPath())
			if r.URL.Path == "/repos/acme/app/issues/7/labels/gone" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeJSON(t, w, []interface{}{})
		}
	})
	ctx := context.Background()

	require.NoError(t, client.AddLabels(ctx, "acme/app", 7, []string{"research:inprogress"}))
	require.NoError(t, client.RemoveLabel(ctx, "acme/app", 7, "research:done"))
	require.NoError(t, client.RemoveLabel(ctx, "acme/app", 7, "gone"), "missing label is ignored")
	assert.Equal(t, []string{
		"/repos/acme/app/issues/7/labels/research:done",
		"/repos/acme/app/issues/7/labels/gone",
	}, removed)
}

// ==========================
// Error Mapping Tests
// ==========================

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		headers      map[string]string
		expectedCode errors.ErrorCode
		retryable    bool
	}{
		{"not found", http.StatusNotFound, nil, errors.ErrCodeGitHubNotFound, false},
		{"bad token", http.StatusUnauthorized, nil, errors.ErrCodeGitHubUnauthorized, false},
		{"forbidden", http.StatusForbidden, nil, errors.ErrCodeGitHubUnauthorized, false},
		{"rate limited", http.StatusForbidden, map[string]string{"X-RateLimit-Remaining": "0", "X-RateLimit-Reset": "1767225600"}, errors.ErrCodeGitHubRateLimited, true},
		{"validation", http.StatusUnprocessableEntity, nil, errors.ErrCodeGitHubRequestFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
			})

			_, err := client.FetchIssueDetails(context.Background(), "acme/app", 1)

			stdErr, ok := errors.AsStandard(err)
			require.True(t, ok, "expected StandardError, got %v", err)
			assert.Equal(t, tt.expectedCode, stdErr.Code)
			assert.Equal(t, tt.retryable, stdErr.Retryable)
		})
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(t, w, map[string]interface{}{"id": 42, "body": "done"})
	}))
	t.Cleanup(srv.Close)

	client := NewClient(config.GitHubConfig{BaseURL: srv.URL, Timeout: 5, MaxRetries: 3}, logger.NewTestLogger(t))

	body, err := client.GetComment(context.Background(), "acme/app", 42)

	require.NoError(t, err)
	assert.Equal(t, "done", body)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ServerErrorAfterRetries(t *testing.T) {
	var calls atomic.Int32
	client := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.FetchIssueDetails(context.Background(), "acme/app", 1)

	stdErr, ok := errors.AsStandard(err)
	require.True(t, ok, "expected StandardError, got %v", err)
	assert.Equal(t, errors.ErrCodeGitHubRequestFailed, stdErr.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RejectsMalformedRepository(t *testing.T) {
	client := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	})

	for _, repo := range []string{"", "acme", "/app", "acme/", "acme/app/extra"} {
		_, err := client.FetchIssueDetails(context.Background(), repo, 1)
		require.Error(t, err, repo)
		assert.Equal(t, registry.NoRetryErrorKind, registry.ErrorKind(err), repo)
	}
}

func TestCheckItem(t *testing.T) {
	body := "## Plan\n- [ ] find subreddits\n- [x] read issue"

	updated, err := CheckItem(body, "find subreddits")
	require.NoError(t, err)
	assert.Equal(t, "## Plan\n- [x] find subreddits\n- [x] read issue", updated)

	_, err = CheckItem(body, "read issue")
	stdErr, ok := errors.AsStandard(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeChecklistItemNotFound, stdErr.Code)
}
