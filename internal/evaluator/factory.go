package evaluator

import (
	"fmt"
	"log/slog"

	"github.com/pennh4i/tentacool/internal/config"
	tcotel "github.com/pennh4i/tentacool/internal/otel"
)

// NewClassifier builds the classifier selected by cfg.Evaluator.
func NewClassifier(cfg *config.Config, api BatchAPI, logger *slog.Logger, metrics *tcotel.Metrics) (Classifier, error) {
	judgeCfg := JudgeConfig{
		BaseURL:   cfg.JudgeBaseURL,
		APIKey:    cfg.JudgeAPIKey,
		Model:     cfg.JudgeModel,
		MaxTokens: cfg.JudgeMaxTokens,
	}

	switch cfg.Evaluator {
	case config.EvaluatorBackend:
		return NewBackendClassifier(api), nil
	case config.EvaluatorAnthropic:
		return NewJudgeClassifier(NewAnthropicJudge(judgeCfg), cfg.Parallel, logger, metrics), nil
	case config.EvaluatorOpenAI:
		return NewJudgeClassifier(NewOpenAIJudge(judgeCfg), cfg.Parallel, logger, metrics), nil
	default:
		return nil, fmt.Errorf("unknown evaluator %q (supported: backend, anthropic, openai)", cfg.Evaluator)
	}
}
