package workers

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-workflows/internal/common/config"
	"signal-workflows/internal/common/logger"
	"signal-workflows/internal/common/observability"
	"signal-workflows/pkg/registry"
)

func testConfig() *config.Config {
	return &config.Config{
		GitHub:      config.GitHubConfig{Token: "t", BaseURL: "http://127.0.0.1:1", Timeout: 1},
		ScrapingBee: config.ScrapingBeeConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1/", Timeout: 1},
		Agent:       config.AgentConfig{APIKey: "a", Model: "claude-test", MaxTurns: 5, Timeout: 1},
		Worker:      config.WorkerConfig{MaxParallelResearch: 3},
	}
}

func TestRegisterAll(t *testing.T) {
	p := registry.NewProvider()
	deps := NewDependencies(testConfig(), logger.NewTestLogger(t), observability.NewNoop())

	require.NoError(t, RegisterAll(p, deps))

	var workflows []string
	for _, md := range p.Workflows().GetAll("") {
		workflows = append(workflows, md.Key())
	}
	sort.Strings(workflows)
	assert.Equal(t, []string{
		"example-workflow-v2",
		"process-github-issues-v1",
		"research-issue-v1",
	}, workflows)

	assert.Equal(t, 1+9+5, p.Activities().Len())
	_, ok := p.Activities().Get("mark_checklist_item_complete")
	assert.True(t, ok)
	_, ok = p.Activities().Get("get_post_content_by_url")
	assert.True(t, ok)
}

func TestRegisterAll_Idempotent(t *testing.T) {
	p := registry.NewProvider()
	deps := NewDependencies(testConfig(), logger.NewNoOpLogger(), observability.NewNoop())

	require.NoError(t, RegisterAll(p, deps))
	require.NoError(t, RegisterAll(p, deps))

	assert.Equal(t, 3, p.Workflows().Len())
}
