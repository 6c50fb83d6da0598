// Package errors provides the structured runtime errors raised by activities and the platform layer.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"signal-workflows/pkg/registry"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes. The code doubles as the error kind
// matched against a retry policy's non-retryable types.
type ErrorCode string

const (
	ErrCodeGitHubRequestFailed ErrorCode = "GITHUB_REQUEST_FAILED"
	ErrCodeGitHubNotFound      ErrorCode = "GITHUB_NOT_FOUND"
	ErrCodeGitHubUnauthorized  ErrorCode = "GITHUB_UNAUTHORIZED"
	ErrCodeGitHubRateLimited   ErrorCode = "GITHUB_RATE_LIMITED"

	ErrCodeChecklistItemNotFound ErrorCode = "CHECKLIST_ITEM_NOT_FOUND"

	ErrCodeScrapingFailed  ErrorCode = "SCRAPING_FAILED"
	ErrCodeScrapingTimeout ErrorCode = "SCRAPING_TIMEOUT"

	ErrCodeAgentFailed   ErrorCode = "AGENT_FAILED"
	ErrCodeAgentTimeout  ErrorCode = "AGENT_TIMEOUT"
	ErrCodeAgentMaxTurns ErrorCode = "AGENT_MAX_TURNS"

	ErrCodePlatformUnavailable   ErrorCode = "PLATFORM_UNAVAILABLE"
	ErrCodePlatformRequestFailed ErrorCode = "PLATFORM_REQUEST_FAILED"
	ErrCodeWorkflowFailed        ErrorCode = "WORKFLOW_FAILED"

	ErrCodeRunNotFound    ErrorCode = "RUN_NOT_FOUND"
	ErrCodeRunStoreFailed ErrorCode = "RUN_STORE_FAILED"

	ErrCodeInputValidationFailed ErrorCode = "INPUT_VALIDATION_FAILED"
	ErrCodeInternal              ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error { return e.cause }

// Kind reports the code so retry policies can name it in NonRetryableErrorTypes.
func (e *StandardError) Kind() string { return string(e.Code) }

// WithMetadata returns e with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// ==========================
// 2. Error Constructors
// ==========================

// NewGitHubRequestFailedError creates a retryable GitHub API error.
func NewGitHubRequestFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeGitHubRequestFailed, "GitHub request failed",
		fmt.Sprintf("operation: %s, error: %v", operation, err), true, err)
}

// NewGitHubNotFoundError creates a non-retryable error for a missing repository, issue or comment.
func NewGitHubNotFoundError(resource string) *StandardError {
	return newError(ErrCodeGitHubNotFound, "GitHub resource not found", resource, false, nil)
}

// NewGitHubUnauthorizedError creates a non-retryable credentials error.
func NewGitHubUnauthorizedError(details string) *StandardError {
	return newError(ErrCodeGitHubUnauthorized, "GitHub rejected the token", details, false, nil)
}

// NewGitHubRateLimitedError creates a retryable rate limit error.
func NewGitHubRateLimitedError(resetAt time.Time) *StandardError {
	e := newError(ErrCodeGitHubRateLimited, "GitHub rate limit exceeded", "", true, nil)
	if !resetAt.IsZero() {
		e.Details = "resets at " + resetAt.UTC().Format(time.RFC3339)
		e.WithMetadata("resetAt", resetAt.UTC())
	}
	return e
}

// NewChecklistItemNotFoundError creates a non-retryable error for a missing unchecked item.
func NewChecklistItemNotFoundError(item string) *StandardError {
	return newError(ErrCodeChecklistItemNotFound, "Unchecked checklist item not found",
		fmt.Sprintf("item: %s", item), false, nil)
}

// NewScrapingFailedError creates a retryable scraping error.
func NewScrapingFailedError(url string, err error) *StandardError {
	return newError(ErrCodeScrapingFailed, "Scraping request failed",
		fmt.Sprintf("url: %s, error: %v", url, err), true, err)
}

// NewScrapingTimeoutError creates a retryable scraping timeout error.
func NewScrapingTimeoutError(url string) *StandardError {
	return newError(ErrCodeScrapingTimeout, "Scraping request timed out", fmt.Sprintf("url: %s", url), true, nil)
}

// NewAgentFailedError creates a retryable model call error.
func NewAgentFailedError(agent string, err error) *StandardError {
	return newError(ErrCodeAgentFailed, "Agent run failed",
		fmt.Sprintf("agent: %s, error: %v", agent, err), true, err)
}

// NewAgentTimeoutError creates a retryable model timeout error.
func NewAgentTimeoutError(agent string) *StandardError {
	return newError(ErrCodeAgentTimeout, "Agent run timed out", fmt.Sprintf("agent: %s", agent), true, nil)
}

// NewAgentMaxTurnsError creates a non-retryable error for an agent that never produced a final answer.
func NewAgentMaxTurnsError(agent string, turns int) *StandardError {
	return newError(ErrCodeAgentMaxTurns, "Agent exceeded its turn budget",
		fmt.Sprintf("agent: %s, turns: %d", agent, turns), false, nil)
}

// NewPlatformUnavailableError creates a retryable error for an unreachable broker.
func NewPlatformUnavailableError(err error) *StandardError {
	return newError(ErrCodePlatformUnavailable, "Execution platform unavailable", fmt.Sprint(err), true, err)
}

// NewPlatformRequestFailedError creates an error for a rejected platform command.
func NewPlatformRequestFailedError(operation string, err error) *StandardError {
	return newError(ErrCodePlatformRequestFailed, "Execution platform request failed",
		fmt.Sprintf("operation: %s, error: %v", operation, err), false, err)
}

// NewWorkflowFailedError reports a workflow whose handler returned an error.
func NewWorkflowFailedError(workflow string, err error) *StandardError {
	return newError(ErrCodeWorkflowFailed, "Workflow execution failed",
		fmt.Sprintf("workflow: %s, error: %v", workflow, err), false, err)
}

// NewRunNotFoundError creates a non-retryable error for an unknown workflow id.
func NewRunNotFoundError(workflowID string) *StandardError {
	return newError(ErrCodeRunNotFound, "Workflow run not found", fmt.Sprintf("workflowId: %s", workflowID), false, nil)
}

// NewRunStoreFailedError creates a retryable run store error.
func NewRunStoreFailedError(err error) *StandardError {
	return newError(ErrCodeRunStoreFailed, "Run store error", fmt.Sprint(err), true, err)
}

// NewInputValidationError creates a non-retryable input error.
func NewInputValidationError(details string) *StandardError {
	return newError(ErrCodeInputValidationFailed, "Input validation failed", details, false, nil)
}

// ==========================
// 3. Utility Functions
// ==========================

// AsStandard finds a StandardError in err's chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// Normalize ensures we always have a StandardError. Unknown errors are retryable unless marked
// with registry.NoRetry.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	if stdErr, ok := AsStandard(err); ok {
		return stdErr
	}
	kind := registry.ErrorKind(err)
	e := newError(ErrCodeInternal, "Unexpected error", err.Error(), kind != registry.NoRetryErrorKind, err)
	e.WithMetadata("kind", kind)
	return e
}

// IsRetryable reports whether err may succeed on another attempt under policy.
func IsRetryable(err error, policy *registry.RetryPolicy) bool {
	if err == nil {
		return false
	}
	if stdErr, ok := AsStandard(err); ok && !stdErr.Retryable {
		return false
	}
	return policy.IsRetryable(registry.ErrorKind(err))
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "GITHUB") || strings.HasPrefix(codeStr, "CHECKLIST"):
		return "GITHUB"
	case strings.HasPrefix(codeStr, "SCRAPING"):
		return "SCRAPING"
	case strings.HasPrefix(codeStr, "AGENT"):
		return "AI"
	case strings.HasPrefix(codeStr, "PLATFORM") || strings.HasPrefix(codeStr, "WORKFLOW"):
		return "PLATFORM"
	case strings.HasPrefix(codeStr, "RUN"):
		return "RUNS"
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
