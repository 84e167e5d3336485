package evaluator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pennh4i/tentacool/internal/model"
)

// AnthropicJudge judges responses using the Anthropic Messages API.
// Works with both direct Anthropic API and Azure AI Foundry.
type AnthropicJudge struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// JudgeConfig holds configuration for an LLM judge.
type JudgeConfig struct {
	// BaseURL is the API endpoint; empty uses the provider default.
	BaseURL string
	// APIKey is the API key.
	APIKey string
	// Model is the model name (e.g., "claude-haiku-4-5", "gpt-4o-mini").
	Model string
	// MaxTokens is the maximum number of output tokens.
	// For reasoning models this must leave room for reasoning tokens too.
	MaxTokens int64
	// ExtraHeaders are additional HTTP headers (e.g., "api-key" for Azure).
	ExtraHeaders map[string]string
}

// NewAnthropicJudge creates a new Anthropic judge.
func NewAnthropicJudge(cfg JudgeConfig) *AnthropicJudge {
	var opts []option.RequestOption

	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	for k, v := range cfg.ExtraHeaders {
		opts = append(opts, option.WithHeader(k, v))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	return &AnthropicJudge{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}
}

// Provider returns "anthropic".
func (j *AnthropicJudge) Provider() string {
	return "anthropic"
}

// Model returns the model name.
func (j *AnthropicJudge) Model() string {
	return j.model
}

// Judge sends one prompt/response pair to the Anthropic API.
func (j *AnthropicJudge) Judge(ctx context.Context, item model.EvaluationRequest) (*Decision, error) {
	userMessage := renderUserMessage(item)

	// GenAI generation span, named "{operation} {model}".
	ctx, span := evalTracer.Start(ctx, "chat "+j.model,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gen_ai.operation.name", "chat"),
			attribute.String("gen_ai.provider.name", "anthropic"),
			attribute.String("gen_ai.request.model", j.model),
			attribute.Int64("gen_ai.request.max_tokens", j.maxTokens),
			attribute.String("tentacool.outcome.id", item.ID),

			// Langfuse-specific: ensure this shows as a "generation"
			attribute.String("langfuse.observation.type", "generation"),
		),
	)
	defer span.End()

	inputMessages := []map[string]string{
		{"role": "system", "content": SystemPrompt},
		{"role": "user", "content": userMessage},
	}
	if inputJSON, err := json.Marshal(inputMessages); err == nil {
		span.SetAttributes(attribute.String("gen_ai.input.messages", string(inputJSON)))
	}

	resp, err := j.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(j.model),
		MaxTokens: j.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(userMessage),
			),
		},
	})
	if err != nil {
		span.SetAttributes(attribute.String("error.type", "api_error"))
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	if len(resp.Content) == 0 {
		span.SetAttributes(attribute.String("error.type", "empty_response"))
		return nil, fmt.Errorf("anthropic API returned empty response")
	}

	rawText := resp.Content[0].Text

	span.SetAttributes(
		attribute.String("gen_ai.response.model", string(resp.Model)),
		attribute.Int64("gen_ai.usage.input_tokens", resp.Usage.InputTokens),
		attribute.Int64("gen_ai.usage.output_tokens", resp.Usage.OutputTokens),
	)
	if string(resp.StopReason) != "" {
		span.SetAttributes(attribute.StringSlice("gen_ai.response.finish_reasons", []string{string(resp.StopReason)}))
	}
	outputMessages := []map[string]string{
		{"role": "assistant", "content": rawText},
	}
	if outputJSON, err := json.Marshal(outputMessages); err == nil {
		span.SetAttributes(attribute.String("gen_ai.output.messages", string(outputJSON)))
	}

	d, err := parseDecision(rawText)
	if err != nil {
		span.SetAttributes(attribute.String("error.type", "parse_error"))
		return nil, err
	}
	d.InputTokens = resp.Usage.InputTokens
	d.OutputTokens = resp.Usage.OutputTokens
	span.SetAttributes(attribute.Bool("tentacool.verdict.jailbroken", d.Jailbroken))
	return d, nil
}
