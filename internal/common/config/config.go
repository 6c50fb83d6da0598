// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Camunda     CamundaConfig     `mapstructure:"camunda"`
	Redis       RedisConfig       `mapstructure:"redis"`
	GitHub      GitHubConfig      `mapstructure:"github"`
	ScrapingBee ScrapingBeeConfig `mapstructure:"scrapingbee"`
	Agent       AgentConfig       `mapstructure:"agent"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig holds settings for the HTTP API that fronts the workflows.
type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	APIPrefix string `mapstructure:"api_prefix"`
	TaskQueue string `mapstructure:"task_queue"`
	Timeout   int    `mapstructure:"timeout"` // seconds, bounds synchronous runs
	// Executor selects the execution platform: "zeebe" or "local".
	Executor string `mapstructure:"executor"`
}

// Address returns host:port for http.Server.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WorkerConfig holds the settings of the job worker process.
type WorkerConfig struct {
	TaskQueue     string `mapstructure:"task_queue"`
	MaxJobsActive int    `mapstructure:"max_jobs_active"`
	Timeout       int    `mapstructure:"timeout"`     // milliseconds, job lock when an activity declares none
	MaxRetries    int    `mapstructure:"max_retries"` // attempts when an activity declares no policy
	DeployOnStart bool   `mapstructure:"deploy_on_start"`
	HealthPort    int    `mapstructure:"health_port"`
	// WorkflowTimeout is the job lock, in seconds, held while one workflow runs.
	WorkflowTimeout int    `mapstructure:"workflow_timeout"`
	Name            string `mapstructure:"name"`
	// MaxParallelResearch bounds research-issue children started by one scan. Zero is unbounded.
	MaxParallelResearch int `mapstructure:"max_parallel_research"`
}

type CamundaConfig struct {
	BrokerAddress          string `mapstructure:"broker_address"`
	UsePlaintextConnection bool   `mapstructure:"use_plaintext"`
	RequestTimeout         int    `mapstructure:"request_timeout"` // milliseconds
	ConnectionTimeout      int    `mapstructure:"connection_timeout"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	RunTTL   int    `mapstructure:"run_ttl"` // hours a run status is kept
}

// GitHubConfig holds settings for the collaboration platform client.
type GitHubConfig struct {
	Token      string `mapstructure:"token"`
	BaseURL    string `mapstructure:"base_url"`
	Timeout    int    `mapstructure:"timeout"` // seconds
	MaxRetries int    `mapstructure:"max_retries"`
}

// ScrapingBeeConfig holds settings for the scraping client.
type ScrapingBeeConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"` // seconds
}

// AgentConfig holds settings for the LLM agent runner.
type AgentConfig struct {
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	Model    string `mapstructure:"model"`
	MaxTurns int    `mapstructure:"max_turns"`
	Timeout  int    `mapstructure:"timeout"` // seconds per model call
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
