// internal/agent/runner.go
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signal-workflows/internal/common/errors"
	"signal-workflows/internal/common/logger"
	"signal-workflows/internal/common/observability"
)

const (
	DefaultMaxTurns = 15
	ResponseTokens  = 4096
)

// Agent is a named system prompt plus the tools it may call.
type Agent struct {
	Name         string
	Instructions string
	Tools        *Tools
	// MaxTurns bounds model calls in one run. Zero uses the runner default.
	MaxTurns int
}

// Result is the outcome of one agent run.
type Result struct {
	FinalOutput string
	Turns       int
	ToolCalls   int
	Usage       Usage
}

// Runner drives the tool loop: call the model, run the tools it asks for, feed the results back,
// until the model ends its turn.
type Runner struct {
	provider Provider
	maxTurns int
	timeout  time.Duration
	obs      *observability.Observability
	logger   logger.Logger
}

type RunnerOptions struct {
	MaxTurns int
	// CallTimeout bounds every model call.
	CallTimeout time.Duration
	Metrics     *observability.Observability
	Logger      logger.Logger
}

func NewRunner(provider Provider, opts RunnerOptions) *Runner {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	return &Runner{
		provider: provider,
		maxTurns: opts.MaxTurns,
		timeout:  opts.CallTimeout,
		obs:      opts.Metrics,
		logger:   opts.Logger.With(map[string]interface{}{"component": "agent-runner"}),
	}
}

// Run executes agent against input. maxTurns overrides the agent and runner limits when positive.
func (r *Runner) Run(ctx context.Context, a *Agent, input string, maxTurns int) (*Result, error) {
	limit := r.maxTurns
	if a.MaxTurns > 0 {
		limit = a.MaxTurns
	}
	if maxTurns > 0 {
		limit = maxTurns
	}

	log := r.logger.With(map[string]interface{}{"agent": a.Name})
	messages := []Message{userText(input)}
	result := &Result{}
	defer func() { r.obs.RecordAgentTurns(ctx, a.Name, result.Turns) }()

	for {
		if result.Turns >= limit {
			log.Warn("Agent hit turn limit", map[string]interface{}{"limit": limit})
			return result, errors.NewAgentMaxTurnsError(a.Name, limit)
		}
		result.Turns++

		resp, err := r.send(ctx, &Request{
			MaxTokens: ResponseTokens,
			System:    a.Instructions,
			Messages:  messages,
			Tools:     a.Tools.Defs(),
		})
		if err != nil {
			if ctx.Err() != nil {
				return result, errors.NewAgentTimeoutError(a.Name)
			}
			return result, errors.NewAgentFailedError(a.Name, err)
		}

		result.Usage.InputTokens += resp.Usage.InputTokens
		result.Usage.OutputTokens += resp.Usage.OutputTokens
		log.Debug("Model response", map[string]interface{}{
			"turn":         result.Turns,
			"stopReason":   string(resp.StopReason),
			"inputTokens":  resp.Usage.InputTokens,
			"outputTokens": resp.Usage.OutputTokens,
		})

		messages = append(messages, Message{Role: "assistant", Content: resp.Content})

		if resp.StopReason != StopToolUse || !hasToolUse(resp.Content) {
			result.FinalOutput = finalText(resp.Content)
			log.Info("Agent finished", map[string]interface{}{
				"turns":     result.Turns,
				"toolCalls": result.ToolCalls,
			})
			return result, nil
		}

		results := r.runTools(ctx, log, a.Tools, resp.Content)
		result.ToolCalls += len(results)
		messages = append(messages, Message{Role: "user", Content: results})
	}
}

func (r *Runner) send(ctx context.Context, req *Request) (*Response, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.provider.Send(ctx, req)
}

// runTools executes every tool_use block in order. Tool failures are reported to the model,
// not to the caller.
func (r *Runner) runTools(ctx context.Context, log logger.Logger, tools *Tools, content []ContentBlock) []ContentBlock {
	var results []ContentBlock
	for _, block := range content {
		if block.Type != BlockToolUse {
			continue
		}

		tool, ok := tools.Get(block.Name)
		if !ok {
			results = append(results, toolError(block.ID, fmt.Sprintf("unknown tool: %s", block.Name)))
			continue
		}

		log.Info("Executing tool", map[string]interface{}{"tool": block.Name})
		output, err := tool.Execute(ctx, block.Input)
		if err != nil {
			log.Warn("Tool execution failed", map[string]interface{}{
				"tool":  block.Name,
				"error": err.Error(),
			})
			results = append(results, toolError(block.ID, fmt.Sprintf("tool error: %v", err)))
			continue
		}

		results = append(results, ContentBlock{
			Type:      BlockToolResult,
			ToolUseID: block.ID,
			Content:   string(output),
		})
	}
	return results
}

func hasToolUse(content []ContentBlock) bool {
	for _, block := range content {
		if block.Type == BlockToolUse {
			return true
		}
	}
	return false
}

func toolError(id, msg string) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: id, Content: msg, IsError: true}
}

func finalText(content []ContentBlock) string {
	var parts []string
	for _, block := range content {
		if block.Type == BlockText && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}
