// pkg/registry/retry.go
package registry

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"
)

// NoRetryErrorKind is the error kind every default policy refuses to retry.
const NoRetryErrorKind = "NoRetryError"

const (
	defaultInitialInterval    = time.Second
	defaultBackoffCoefficient = 2.0
	defaultMaxIntervalFactor  = 100
)

// RetryPolicy describes how the platform retries a failed activity attempt.
// Zero values defer to the platform defaults; MaximumAttempts == 0 means unbounded.
type RetryPolicy struct {
	InitialInterval        time.Duration `json:"initialInterval,omitempty"`
	BackoffCoefficient     float64       `json:"backoffCoefficient,omitempty"`
	MaximumInterval        time.Duration `json:"maximumInterval,omitempty"`
	MaximumAttempts        int           `json:"maximumAttempts,omitempty"`
	NonRetryableErrorTypes []string      `json:"nonRetryableErrorTypes,omitempty"`
}

// DefaultRetryPolicy returns a fresh policy that only refuses NoRetryError failures.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		NonRetryableErrorTypes: []string{NoRetryErrorKind},
	}
}

// Clone returns a deep copy so callers can derive policies without sharing slices.
func (p *RetryPolicy) Clone() *RetryPolicy {
	if p == nil {
		return nil
	}
	c := *p
	c.NonRetryableErrorTypes = append([]string(nil), p.NonRetryableErrorTypes...)
	return &c
}

// IsRetryable reports whether a failure of the given kind may be retried under this policy.
// NoRetryError failures are never retried, whatever the policy lists.
func (p *RetryPolicy) IsRetryable(kind string) bool {
	if kind == NoRetryErrorKind {
		return false
	}
	if p == nil {
		return true
	}
	for _, t := range p.NonRetryableErrorTypes {
		if t == kind {
			return false
		}
	}
	return true
}

// withNoRetry returns a copy of p whose non-retryable kinds include NoRetryErrorKind.
func (p *RetryPolicy) withNoRetry() *RetryPolicy {
	c := p.Clone()
	for _, t := range c.NonRetryableErrorTypes {
		if t == NoRetryErrorKind {
			return c
		}
	}
	c.NonRetryableErrorTypes = append(c.NonRetryableErrorTypes, NoRetryErrorKind)
	return c
}

// Backoff returns the delay before the given attempt (1-based) is retried.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	initial := defaultInitialInterval
	coefficient := defaultBackoffCoefficient
	var maximum time.Duration
	if p != nil {
		if p.InitialInterval > 0 {
			initial = p.InitialInterval
		}
		if p.BackoffCoefficient >= 1 {
			coefficient = p.BackoffCoefficient
		}
		maximum = p.MaximumInterval
	}
	if maximum <= 0 {
		maximum = initial * defaultMaxIntervalFactor
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(initial) * math.Pow(coefficient, float64(attempt-1))
	if delay > float64(maximum) {
		return maximum
	}
	return time.Duration(delay)
}

// NoRetryError marks a failure that must never be retried, whatever the policy says about attempts.
type NoRetryError struct {
	Err error
}

func (e *NoRetryError) Error() string {
	return fmt.Sprintf("%s: %v", NoRetryErrorKind, e.Err)
}

func (e *NoRetryError) Unwrap() error { return e.Err }

// Kind implements the kinded interface used by ErrorKind.
func (e *NoRetryError) Kind() string { return NoRetryErrorKind }

// NoRetry wraps err so that ErrorKind reports NoRetryErrorKind.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return &NoRetryError{Err: err}
}

type kinded interface {
	Kind() string
}

// ErrorKind names a failure for matching against NonRetryableErrorTypes.
// A NoRetryError anywhere in the chain wins, then the first error exposing Kind(),
// then the Go type name of err itself.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var nr *NoRetryError
	if errors.As(err, &nr) {
		return NoRetryErrorKind
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "Error"
	}
	return t.Name()
}
