package registry

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type quotaError struct{}

func (quotaError) Error() string { return "quota exceeded" }

type codedError struct{ code string }

func (e *codedError) Error() string { return e.code }
func (e *codedError) Kind() string  { return e.code }

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, []string{NoRetryErrorKind}, p.NonRetryableErrorTypes)
	assert.Zero(t, p.MaximumAttempts)

	p.NonRetryableErrorTypes = append(p.NonRetryableErrorTypes, "Other")
	assert.Len(t, DefaultRetryPolicy().NonRetryableErrorTypes, 1, "each call returns a fresh policy")
}

func TestRetryPolicy_IsRetryable(t *testing.T) {
	p := &RetryPolicy{NonRetryableErrorTypes: []string{NoRetryErrorKind, "GITHUB_NOT_FOUND"}}

	assert.False(t, p.IsRetryable(NoRetryErrorKind))
	assert.False(t, p.IsRetryable("GITHUB_NOT_FOUND"))
	assert.True(t, p.IsRetryable("GITHUB_REQUEST_FAILED"))

	bare := &RetryPolicy{MaximumAttempts: 5}
	assert.False(t, bare.IsRetryable(NoRetryErrorKind))
	assert.True(t, bare.IsRetryable("GITHUB_NOT_FOUND"))

	var none *RetryPolicy
	assert.False(t, none.IsRetryable(NoRetryErrorKind))
	assert.True(t, none.IsRetryable("anything"))
}

func TestRetryPolicy_Backoff(t *testing.T) {
	tests := []struct {
		name    string
		policy  *RetryPolicy
		attempt int
		want    time.Duration
	}{
		{name: "platform defaults first attempt", policy: nil, attempt: 1, want: time.Second},
		{name: "platform defaults third attempt", policy: nil, attempt: 3, want: 4 * time.Second},
		{name: "custom interval", policy: &RetryPolicy{InitialInterval: 500 * time.Millisecond, BackoffCoefficient: 3}, attempt: 2, want: 1500 * time.Millisecond},
		{name: "capped by maximum interval", policy: &RetryPolicy{MaximumInterval: 3 * time.Second}, attempt: 5, want: 3 * time.Second},
		{name: "attempt below one treated as first", policy: nil, attempt: 0, want: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Backoff(tt.attempt))
		})
	}
}

func TestRetryPolicy_Clone(t *testing.T) {
	p := &RetryPolicy{MaximumAttempts: 2, NonRetryableErrorTypes: []string{"A"}}
	c := p.Clone()
	c.NonRetryableErrorTypes[0] = "B"

	assert.Equal(t, "A", p.NonRetryableErrorTypes[0])
	assert.Nil(t, (*RetryPolicy)(nil).Clone())
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "no retry marker", err: NoRetry(errors.New("bad input")), want: NoRetryErrorKind},
		{name: "wrapped no retry marker", err: fmt.Errorf("step: %w", NoRetry(quotaError{})), want: NoRetryErrorKind},
		{name: "kinded error", err: fmt.Errorf("call: %w", &codedError{code: "GITHUB_NOT_FOUND"}), want: "GITHUB_NOT_FOUND"},
		{name: "plain typed error", err: quotaError{}, want: "quotaError"},
		{name: "pointer typed error", err: &quotaError{}, want: "quotaError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKind(tt.err))
		})
	}

	assert.NoError(t, NoRetry(nil))
}
