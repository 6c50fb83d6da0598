// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, the environment overlay and the process environment.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // overlay is optional

	return build(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return build(v)
}

func build(v *viper.Viper) (*Config, error) {
	// SERVER_PORT overrides server.port and so on.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// AutomaticEnv only sees keys viper already knows about; bind the ones that may be env-only.
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"app.environment",
		"server.host", "server.port", "server.api_prefix", "server.task_queue", "server.timeout", "server.executor",
		"worker.task_queue", "worker.max_jobs_active", "worker.timeout", "worker.max_retries",
		"worker.deploy_on_start", "worker.health_port", "worker.workflow_timeout", "worker.name", "worker.max_parallel_research",
		"camunda.broker_address", "camunda.use_plaintext", "camunda.request_timeout", "camunda.connection_timeout",
		"redis.address", "redis.password", "redis.db", "redis.run_ttl",
		"github.token", "github.base_url", "github.timeout", "github.max_retries",
		"scrapingbee.api_key", "scrapingbee.base_url", "scrapingbee.timeout",
		"agent.api_key", "agent.base_url", "agent.model", "agent.max_turns", "agent.timeout",
		"logging.level", "logging.format", "logging.output",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

// loadEnvFile loads the first .env found walking up towards the project root.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig falls back to the conventional variable names of the upstream services.
func overrideEmptyConfig(cfg *Config) {
	if cfg.GitHub.Token == "" {
		if val := os.Getenv("GITHUB_TOKEN"); val != "" {
			cfg.GitHub.Token = val
		}
	}
	if cfg.ScrapingBee.APIKey == "" {
		if val := os.Getenv("SCRAPING_BEE_API_KEY"); val != "" {
			cfg.ScrapingBee.APIKey = val
		}
	}
	if cfg.Agent.APIKey == "" {
		if val := os.Getenv("ANTHROPIC_API_KEY"); val != "" {
			cfg.Agent.APIKey = val
		}
	}
	if cfg.Camunda.BrokerAddress == "" {
		if val := os.Getenv("ZEEBE_ADDRESS"); val != "" {
			cfg.Camunda.BrokerAddress = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "signal-workflows"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.APIPrefix == "" {
		cfg.Server.APIPrefix = "/api/v1"
	}
	if cfg.Server.TaskQueue == "" {
		cfg.Server.TaskQueue = "default"
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = 30
	}
	if cfg.Server.Executor == "" {
		cfg.Server.Executor = "zeebe"
	}

	// Worker defaults
	if cfg.Worker.TaskQueue == "" {
		cfg.Worker.TaskQueue = "default"
	}
	if cfg.Worker.MaxJobsActive == 0 {
		cfg.Worker.MaxJobsActive = 100
	}
	if cfg.Worker.Timeout == 0 {
		cfg.Worker.Timeout = 300000
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = 3
	}
	if cfg.Worker.HealthPort == 0 {
		cfg.Worker.HealthPort = 8080
	}
	if cfg.Worker.WorkflowTimeout == 0 {
		cfg.Worker.WorkflowTimeout = 3600
	}
	if cfg.Worker.MaxParallelResearch == 0 {
		cfg.Worker.MaxParallelResearch = 5
	}

	// Camunda defaults
	if cfg.Camunda.BrokerAddress == "" {
		cfg.Camunda.BrokerAddress = "localhost:26500"
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}
	if cfg.Camunda.ConnectionTimeout == 0 {
		cfg.Camunda.ConnectionTimeout = 10000
	}

	// Redis defaults
	if cfg.Redis.Address == "" {
		cfg.Redis.Address = "localhost:6379"
	}
	if cfg.Redis.RunTTL == 0 {
		cfg.Redis.RunTTL = 72
	}

	// Integration defaults
	if cfg.GitHub.BaseURL == "" {
		cfg.GitHub.BaseURL = "https://api.github.com"
	}
	if cfg.GitHub.Timeout == 0 {
		cfg.GitHub.Timeout = 30
	}
	if cfg.GitHub.MaxRetries == 0 {
		cfg.GitHub.MaxRetries = 3
	}
	if cfg.ScrapingBee.BaseURL == "" {
		cfg.ScrapingBee.BaseURL = "https://app.scrapingbee.com/api/v1/"
	}
	if cfg.ScrapingBee.Timeout == 0 {
		cfg.ScrapingBee.Timeout = 60
	}
	if cfg.Agent.BaseURL == "" {
		cfg.Agent.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = "claude-sonnet-4-5"
	}
	if cfg.Agent.MaxTurns == 0 {
		cfg.Agent.MaxTurns = 15
	}
	if cfg.Agent.Timeout == 0 {
		cfg.Agent.Timeout = 120
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields.
func validateConfig(cfg *Config) error {
	if !strings.HasPrefix(cfg.Server.APIPrefix, "/") || strings.HasSuffix(cfg.Server.APIPrefix, "/") {
		return fmt.Errorf("server.api_prefix must start with '/' and not end with one, got %q", cfg.Server.APIPrefix)
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	switch cfg.Server.Executor {
	case "zeebe", "local":
	default:
		return fmt.Errorf("server.executor must be zeebe or local, got %q", cfg.Server.Executor)
	}
	if cfg.Server.Executor == "zeebe" && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}
	if cfg.Worker.MaxJobsActive < 1 {
		return fmt.Errorf("worker.max_jobs_active must be positive")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// Seconds converts seconds from config to time.Duration.
func Seconds(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
