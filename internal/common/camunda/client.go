// internal/common/camunda/client.go
package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"signal-workflows/internal/common/config"
	"signal-workflows/internal/common/errors"
)

// Engine is the slice of the Zeebe gateway API the executor and the deployer use.
type Engine interface {
	DeployResource(ctx context.Context, name string, definition []byte) error
	CreateInstance(ctx context.Context, processID string, variables interface{}) (int64, error)
	// CreateInstanceWithResult waits for the instance to finish and returns its variables as JSON.
	CreateInstanceWithResult(ctx context.Context, processID string, variables interface{}) (string, error)
}

// Client wraps the Zeebe gRPC client with error mapping and retry logic.
type Client struct {
	client zbc.Client
	config *ClientConfig
}

// ClientConfig holds configuration for the Camunda/Zeebe client.
type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
	RequestTimeout         time.Duration
	RetryConfig            *RetryConfig
}

// RetryConfig defines retry behavior for transient gateway failures.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetryConfig = &RetryConfig{
	MaxRetries: 3,
	BaseDelay:  1 * time.Second,
	MaxDelay:   10 * time.Second,
}

// ClientConfigFrom maps the camunda config section.
func ClientConfigFrom(cfg config.CamundaConfig) *ClientConfig {
	return &ClientConfig{
		GatewayAddress:         cfg.BrokerAddress,
		UsePlaintextConnection: cfg.UsePlaintextConnection,
		ConnectionTimeout:      config.GetDuration(cfg.ConnectionTimeout),
		RequestTimeout:         config.GetDuration(cfg.RequestTimeout),
		RetryConfig:            DefaultRetryConfig,
	}
}

// NewClientWithConfig creates a client and checks the gateway answers a topology request.
func NewClientWithConfig(cfg *ClientConfig) (*Client, error) {
	if cfg.RetryConfig == nil {
		cfg.RetryConfig = DefaultRetryConfig
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 10 * time.Second
	}

	zeebeClient, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         cfg.GatewayAddress,
		UsePlaintextConnection: cfg.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Zeebe client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()

	if _, err := zeebeClient.NewTopologyCommand().Send(ctx); err != nil {
		zeebeClient.Close()
		return nil, fmt.Errorf("failed to connect to Zeebe broker at %s: %w", cfg.GatewayAddress, err)
	}

	return &Client{
		client: zeebeClient,
		config: cfg,
	}, nil
}

// GetClient returns the raw Zeebe client, used to open job workers.
func (c *Client) GetClient() zbc.Client {
	return c.client
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) DeployResource(ctx context.Context, name string, definition []byte) error {
	_, err := ExecuteWithRetry(ctx, c.config.RetryConfig, "deploy "+name, func(ctx context.Context) (struct{}, error) {
		ctx, cancel := c.withRequestTimeout(ctx)
		defer cancel()
		_, err := c.client.NewDeployResourceCommand().AddResource(definition, name).Send(ctx)
		return struct{}{}, err
	})
	return err
}

func (c *Client) CreateInstance(ctx context.Context, processID string, variables interface{}) (int64, error) {
	return ExecuteWithRetry(ctx, c.config.RetryConfig, "create instance "+processID, func(ctx context.Context) (int64, error) {
		cmd, err := c.client.NewCreateInstanceCommand().BPMNProcessId(processID).LatestVersion().VariablesFromObject(variables)
		if err != nil {
			return 0, errors.NewPlatformRequestFailedError("encode variables", err)
		}
		ctx, cancel := c.withRequestTimeout(ctx)
		defer cancel()
		resp, err := cmd.Send(ctx)
		if err != nil {
			return 0, err
		}
		return resp.GetProcessInstanceKey(), nil
	})
}

// CreateInstanceWithResult is not retried: a lost response does not mean the instance did not run.
func (c *Client) CreateInstanceWithResult(ctx context.Context, processID string, variables interface{}) (string, error) {
	cmd, err := c.client.NewCreateInstanceCommand().BPMNProcessId(processID).LatestVersion().VariablesFromObject(variables)
	if err != nil {
		return "", errors.NewPlatformRequestFailedError("encode variables", err)
	}
	resp, err := cmd.WithResult().Send(ctx)
	if err != nil {
		return "", mapZeebeError(err, "run "+processID, 0)
	}
	return resp.GetVariables(), nil
}

func (c *Client) withRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.RequestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.config.RequestTimeout)
}

// ExecuteWithRetry runs fn with exponential backoff. Only transient gateway errors are retried.
func ExecuteWithRetry[T any](ctx context.Context, rc *RetryConfig, operationName string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if rc == nil {
		rc = DefaultRetryConfig
	}

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if _, ok := errors.AsStandard(err); ok {
			return zero, err
		}
		if !isRetryableZeebeError(err) || attempt >= rc.MaxRetries {
			return zero, mapZeebeError(err, operationName, attempt)
		}

		delay := rc.BaseDelay * time.Duration(1<<attempt)
		if delay > rc.MaxDelay {
			delay = rc.MaxDelay
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, fmt.Errorf("operation %s cancelled after %d attempts: %w", operationName, attempt+1, ctx.Err())
		}
	}
}

func isRetryableZeebeError(err error) bool {
	msg := strings.ToLower(err.Error())
	retryablePhrases := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"unavailable",
		"unreachable",
		"broken pipe",
		"resource_exhausted",
	}
	for _, phrase := range retryablePhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// mapZeebeError converts gateway errors into StandardErrors.
func mapZeebeError(err error, operation string, attempt int) error {
	lowerMsg := strings.ToLower(err.Error())

	enhanced := fmt.Errorf("zeebe operation '%s' failed: %w", operation, err)
	if attempt > 0 {
		enhanced = fmt.Errorf("zeebe operation '%s' failed after %d attempts: %w", operation, attempt+1, err)
	}

	switch {
	case strings.Contains(lowerMsg, "connection refused"),
		strings.Contains(lowerMsg, "connection reset"),
		strings.Contains(lowerMsg, "unavailable"),
		strings.Contains(lowerMsg, "unreachable"),
		strings.Contains(lowerMsg, "timeout"),
		strings.Contains(lowerMsg, "deadline exceeded"):
		return errors.NewPlatformUnavailableError(enhanced)
	default:
		return errors.NewPlatformRequestFailedError(operation, enhanced)
	}
}

// HealthCheck performs a topology request against the gateway.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	if _, err := c.client.NewTopologyCommand().Send(ctx); err != nil {
		return fmt.Errorf("zeebe health check failed: %w", err)
	}
	return nil
}
