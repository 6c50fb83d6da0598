// internal/common/startup/startup.go
package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"signal-workflows/internal/common/camunda"
	"signal-workflows/internal/common/config"
	"signal-workflows/internal/common/database"
	"signal-workflows/internal/common/logger"
)

// RetryWithBackoff runs operation until it succeeds, doubling the delay after every failure.
func RetryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled: %w", operationName, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// ConnectZeebe opens the gateway client, retrying while the broker starts up.
func ConnectZeebe(ctx context.Context, cfg config.CamundaConfig, log logger.Logger) (*camunda.Client, error) {
	var client *camunda.Client
	err := RetryWithBackoff(ctx, func() error {
		var err error
		client, err = camunda.NewClientWithConfig(camunda.ClientConfigFrom(cfg))
		return err
	}, 10, 2*time.Second, log, "Zeebe client initialization")
	if err != nil {
		return nil, err
	}
	log.Info("Zeebe client connected successfully", map[string]interface{}{"gateway": cfg.BrokerAddress})
	return client, nil
}

// ConnectRedis opens the run store connection, retrying while the server starts up.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, log logger.Logger) (*redis.Client, error) {
	var rdb *redis.Client
	err := RetryWithBackoff(ctx, func() error {
		var err error
		rdb, err = database.NewRedis(ctx, cfg)
		return err
	}, 15, 2*time.Second, log, "Redis connection")
	if err != nil {
		return nil, err
	}
	log.Info("Redis connected successfully", map[string]interface{}{"address": cfg.Address})
	return rdb, nil
}

// RunTTL converts the configured retention of run records.
func RunTTL(cfg config.RedisConfig) time.Duration {
	return time.Duration(cfg.RunTTL) * time.Hour
}
