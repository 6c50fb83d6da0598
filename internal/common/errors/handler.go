// internal/common/errors/handler.go
package errors

import (
	"context"
	"time"

	"signal-workflows/pkg/registry"
)

// JobFailure is what the engine is told about a failed job attempt.
type JobFailure struct {
	Retries   int32
	Backoff   time.Duration
	Message   string
	Variables map[string]interface{}
}

// JobFailer reports a failed attempt for jobKey to the engine.
type JobFailer interface {
	FailJob(ctx context.Context, jobKey int64, failure JobFailure) error
}

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// JobContext identifies the attempt being failed.
type JobContext struct {
	Key                int64
	Type               string
	ProcessInstanceKey int64
	// Remaining is the retry count the engine activated the job with.
	Remaining int32
	// MaxAttempts is the retry count the instance was created with.
	MaxAttempts int32
}

// Attempt is the 1-based number of the attempt that just failed.
func (j JobContext) Attempt() int {
	if j.MaxAttempts <= 0 || j.Remaining > j.MaxAttempts {
		return 1
	}
	return int(j.MaxAttempts-j.Remaining) + 1
}

// ErrorHandler fails jobs according to the retry policy of the activity they belong to.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Decide computes the failure for one attempt. A non-retryable error exhausts the job immediately.
func Decide(err error, policy *registry.RetryPolicy, job JobContext) JobFailure {
	stdErr := Normalize(err)

	failure := JobFailure{
		Message: err.Error(),
		Variables: map[string]interface{}{
			"errorCode":    string(stdErr.Code),
			"errorKind":    registry.ErrorKind(err),
			"errorMessage": stdErr.Message,
			"errorDetails": stdErr.Details,
			"retryable":    stdErr.Retryable,
		},
	}

	if !IsRetryable(err, policy) || job.Remaining <= 1 {
		failure.Retries = 0
		return failure
	}
	failure.Retries = job.Remaining - 1
	failure.Backoff = policy.Backoff(job.Attempt())
	return failure
}

// HandleJobError logs the failure and reports it through failer.
func (h *ErrorHandler) HandleJobError(ctx context.Context, failer JobFailer, job JobContext, policy *registry.RetryPolicy, err error) JobFailure {
	failure := Decide(err, policy, job)
	h.logError(job, failure)

	if sendErr := failer.FailJob(ctx, job.Key, failure); sendErr != nil {
		h.logger.Error("Failed to report job failure", map[string]interface{}{
			"jobKey": job.Key,
			"error":  sendErr.Error(),
		})
	}
	return failure
}

func (h *ErrorHandler) logError(job JobContext, failure JobFailure) {
	code, _ := failure.Variables["errorCode"].(string)
	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"attempt":          job.Attempt(),
		"errorCode":        code,
		"errorKind":        failure.Variables["errorKind"],
		"message":          failure.Message,
		"retriesLeft":      failure.Retries,
		"backoff":          failure.Backoff.String(),
		"errorCategory":    GetErrorCategory(ErrorCode(code)),
		"workflowInstance": job.ProcessInstanceKey,
	})
}
