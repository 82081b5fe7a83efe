// Package adk provides the AI composition provider. It prompts an
// OpenAI-compatible hosted model (Together AI by default) to emit a
// workflow definition, parses and validates the artifact, and in act mode
// hands it to the workflow runner for execution. It implements the
// domain.Provider interface.
package adk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/davidbz/forgeflow/internal/domain"
	"github.com/davidbz/forgeflow/internal/observability"
)

const (
	// DeepSeek-V3 pricing per 1K tokens (Together AI hosted).
	deepseekV3InputCostPer1K  = 0.00125
	deepseekV3OutputCostPer1K = 0.00125

	// Llama 3.3 70B pricing per 1K tokens.
	llama70BInputCostPer1K  = 0.00088
	llama70BOutputCostPer1K = 0.00088

	// Token conversion factor (tokens to per-1K)
	tokensToPerK = 1000.0
)

// ModelConfig contains model configuration including pricing.
type ModelConfig struct {
	InputCostPer1K  float64 // USD per 1K input tokens
	OutputCostPer1K float64 // USD per 1K output tokens
}

// Provider implements the domain.Provider interface for the ADK backend.
type Provider struct {
	client openai.Client
	model  string
	runner domain.WorkflowRunner
	name   string
}

// NewProvider creates a new ADK provider. runner may be nil, in which case
// the provider only composes (no execute capability).
func NewProvider(config Config, runner domain.WorkflowRunner) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("ADK API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(config.Timeout)*time.Second))
	}

	if config.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(config.MaxRetries))
	}

	return &Provider{
		client: openai.NewClient(opts...),
		model:  config.Model,
		runner: runner,
		name:   "adk",
	}, nil
}

// Compose turns the task into a workflow artifact. In act mode the
// composed workflow is also executed through the runner.
func (p *Provider) Compose(ctx context.Context, req *domain.ComposeRequest) (*domain.ComposeResult, error) {
	if err := domain.ValidateRequest(req); err != nil {
		return nil, err
	}

	if req.Mode == domain.ModeAct && p.runner == nil {
		return nil, fmt.Errorf("%w: no workflow runner configured", domain.ErrBackendUnavailable)
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling composition model")

	resp, err := p.client.Chat.Completions.New(ctx, p.toSDKParams(req))
	if err != nil {
		logger.Error("composition model call failed", observability.Error(err))
		return nil, classifyBackendError(err)
	}

	logger.Debug("composition model call succeeded",
		observability.Int("prompt_tokens", int(resp.Usage.PromptTokens)),
		observability.Int("completion_tokens", int(resp.Usage.CompletionTokens)),
	)

	wf, err := parseWorkflow(resp)
	if err != nil {
		return nil, err
	}

	result := &domain.ComposeResult{
		ID:         resp.ID,
		Provider:   p.name,
		Mode:       req.Mode,
		Workflow:   wf,
		Usage:      p.toUsage(resp),
		FinishTime: time.Now(),
	}

	if req.Mode == domain.ModeAct {
		execution, execErr := p.execute(ctx, wf, req.Context)
		if execErr != nil {
			return nil, execErr
		}
		result.Execution = execution
		result.FinishTime = time.Now()
	}

	return result, nil
}

// Stream composes with incremental delivery: partial events carry model
// deltas (and, in act mode, relayed execution events); the final event
// carries the complete result.
func (p *Provider) Stream(ctx context.Context, req *domain.ComposeRequest) (<-chan domain.StreamEvent, error) {
	if err := domain.ValidateRequest(req); err != nil {
		return nil, err
	}

	if req.Mode == domain.ModeAct && p.runner == nil {
		return nil, fmt.Errorf("%w: no workflow runner configured", domain.ErrBackendUnavailable)
	}

	logger := observability.FromContext(ctx)
	logger.Debug("streaming composition model")

	stream := p.client.Chat.Completions.NewStreaming(ctx, p.toSDKParams(req))
	sink := domain.NewEventSink(0)

	go func() {
		defer sink.Close()
		defer logger.Debug("composition stream closed")

		acc := openai.ChatCompletionAccumulator{}

		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}

			if !sink.Partial(ctx.Done(), map[string]any{"phase": "compose", "delta": delta}) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			sink.Error(ctx.Done(), classifyBackendError(err))
			return
		}

		wf, err := parseWorkflow(&acc.ChatCompletion)
		if err != nil {
			sink.Error(ctx.Done(), err)
			return
		}

		result := &domain.ComposeResult{
			ID:         acc.ID,
			Provider:   p.name,
			Mode:       req.Mode,
			Workflow:   wf,
			Usage:      p.toUsage(&acc.ChatCompletion),
			FinishTime: time.Now(),
		}

		if req.Mode == domain.ModePlan {
			sink.Final(ctx.Done(), result)
			return
		}

		if !sink.Partial(ctx.Done(), map[string]any{"phase": "plan", "workflow": wf}) {
			return
		}

		execution, execErr := p.relayExecution(ctx, sink, wf, req.Context)
		if execErr != nil {
			sink.Error(ctx.Done(), execErr)
			return
		}

		result.Execution = execution
		result.FinishTime = time.Now()
		sink.Final(ctx.Done(), result)
	}()

	return sink.Events(), nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Capabilities returns the operations this provider supports. Execute is
// only advertised when a workflow runner is wired.
func (p *Provider) Capabilities() []domain.Capability {
	caps := []domain.Capability{domain.CapabilityCompose, domain.CapabilityStream}
	if p.runner != nil {
		caps = append(caps, domain.CapabilityExecute)
	}
	return caps
}

// execute runs the composed workflow and drains its events into a summary.
func (p *Provider) execute(ctx context.Context, wf *domain.Workflow, params map[string]any) (*domain.ExecutionResult, error) {
	events, err := p.runner.Execute(ctx, wf, params)
	if err != nil {
		return nil, err
	}

	execution := &domain.ExecutionResult{
		ExecutionID: observability.GenerateExecutionID(),
		Status:      "finished",
		Outputs:     map[string]any{},
	}

	for ev := range events {
		applyExecutionEvent(execution, ev)
	}

	if err := ctx.Err(); err != nil {
		return nil, classifyBackendError(err)
	}

	return execution, nil
}

// relayExecution runs the workflow and forwards each runner event as a
// partial stream event while building the summary.
func (p *Provider) relayExecution(ctx context.Context, sink *domain.EventSink, wf *domain.Workflow, params map[string]any) (*domain.ExecutionResult, error) {
	events, err := p.runner.Execute(ctx, wf, params)
	if err != nil {
		return nil, err
	}

	execution := &domain.ExecutionResult{
		ExecutionID: observability.GenerateExecutionID(),
		Status:      "finished",
		Outputs:     map[string]any{},
	}

	for ev := range events {
		applyExecutionEvent(execution, ev)

		if !sink.Partial(ctx.Done(), map[string]any{"phase": "execute", "event": ev}) {
			return nil, context.Canceled
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, classifyBackendError(err)
	}

	return execution, nil
}

func applyExecutionEvent(execution *domain.ExecutionResult, ev domain.ExecutionEvent) {
	switch ev.Type {
	case "error":
		execution.Status = "failed"
	case "output":
		for k, v := range ev.Data {
			execution.Outputs[k] = v
		}
	}
}

// parseWorkflow extracts and validates the workflow artifact from the
// model reply.
func parseWorkflow(resp *openai.ChatCompletion) (*domain.Workflow, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: model returned no choices", domain.ErrBackendUnavailable)
	}

	raw, err := extractJSON(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidWorkflow, err)
	}

	var wf domain.Workflow
	if err := json.Unmarshal([]byte(raw), &wf); err != nil {
		return nil, fmt.Errorf("%w: model reply is not valid workflow JSON: %v", domain.ErrInvalidWorkflow, err)
	}

	if err := wf.Validate(); err != nil {
		return nil, err
	}

	return &wf, nil
}

// classifyBackendError maps transport failures onto the domain taxonomy.
func classifyBackendError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrBackendTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
}

func (p *Provider) toSDKParams(req *domain.ComposeRequest) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildUserPrompt(req.Task, req.Context)),
		},
	}
}

func (p *Provider) toUsage(resp *openai.ChatCompletion) domain.Usage {
	modelConfig := p.getModelConfig(string(resp.Model))
	inputCost := float64(resp.Usage.PromptTokens) / tokensToPerK * modelConfig.InputCostPer1K
	outputCost := float64(resp.Usage.CompletionTokens) / tokensToPerK * modelConfig.OutputCostPer1K

	return domain.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
		Cost:             inputCost + outputCost,
	}
}

// getModelConfig returns the model configuration for a given model.
func (p *Provider) getModelConfig(model string) ModelConfig {
	modelConfigs := map[string]ModelConfig{
		"deepseek-ai/DeepSeek-V3": {
			InputCostPer1K:  deepseekV3InputCostPer1K,
			OutputCostPer1K: deepseekV3OutputCostPer1K,
		},
		"meta-llama/Llama-3.3-70B-Instruct-Turbo": {
			InputCostPer1K:  llama70BInputCostPer1K,
			OutputCostPer1K: llama70BOutputCostPer1K,
		},
	}

	config, exists := modelConfigs[model]
	if !exists {
		return ModelConfig{}
	}

	return config
}
