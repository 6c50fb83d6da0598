// internal/workers/workers.go
package workers

import (
	"fmt"
	"time"

	"signal-workflows/internal/agent"
	"signal-workflows/internal/agent/claude"
	"signal-workflows/internal/common/config"
	"signal-workflows/internal/common/github"
	"signal-workflows/internal/common/logger"
	"signal-workflows/internal/common/observability"
	"signal-workflows/internal/common/scrapingbee"
	"signal-workflows/internal/workers/example"
	"signal-workflows/internal/workers/issues"
	"signal-workflows/internal/workers/research"
	"signal-workflows/internal/workers/signals"
	"signal-workflows/pkg/registry"
)

// Dependencies are the external clients the workflows and activities are bound to.
type Dependencies struct {
	GitHub  issues.GitHub
	Reddit  research.Reddit
	Greeter example.Greeter
	Agents  signals.AgentRunner

	MaxParallelResearch int
	Logger              logger.Logger
}

// NewDependencies builds the production clients from cfg.
func NewDependencies(cfg *config.Config, log logger.Logger, obs *observability.Observability) *Dependencies {
	runner := agent.NewRunner(claude.New(cfg.Agent), agent.RunnerOptions{
		MaxTurns:    cfg.Agent.MaxTurns,
		CallTimeout: config.Seconds(cfg.Agent.Timeout) + 10*time.Second,
		Metrics:     obs,
		Logger:      log,
	})

	return &Dependencies{
		GitHub:              github.NewClient(cfg.GitHub, log),
		Reddit:              scrapingbee.NewReddit(scrapingbee.NewClient(cfg.ScrapingBee, log)),
		Greeter:             example.GreetingService{},
		Agents:              runner,
		MaxParallelResearch: cfg.Worker.MaxParallelResearch,
		Logger:              log,
	}
}

// RegisterAll adds every workflow and activity of the service to p. The server and the worker
// both call it so that they agree on names, versions and routes.
func RegisterAll(p *registry.Provider, deps *Dependencies) error {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	exampleActs := example.NewActivities(deps.Greeter, log)
	if _, err := example.Register(p, exampleActs); err != nil {
		return fmt.Errorf("register example: %w", err)
	}

	issueActs := issues.NewActivities(deps.GitHub, log)
	if err := issues.Register(p, issueActs); err != nil {
		return fmt.Errorf("register issue activities: %w", err)
	}

	researchActs := research.NewActivities(deps.Reddit, log)
	if err := research.Register(p, researchActs); err != nil {
		return fmt.Errorf("register research activities: %w", err)
	}

	if _, _, err := signals.Register(p, signals.Options{
		Issues:      issueActs,
		Research:    researchActs,
		Runner:      deps.Agents,
		MaxParallel: deps.MaxParallelResearch,
		Logger:      log,
	}); err != nil {
		return fmt.Errorf("register signal workflows: %w", err)
	}

	log.Info("Registered workflows and activities", map[string]interface{}{
		"workflows":  p.Workflows().Len(),
		"activities": p.Activities().Len(),
	})
	return nil
}
