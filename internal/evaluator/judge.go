package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pennh4i/tentacool/internal/logging"
	"github.com/pennh4i/tentacool/internal/model"
	tcotel "github.com/pennh4i/tentacool/internal/otel"
)

// Judge asks an LLM whether one response is jailbroken.
type Judge interface {
	Judge(ctx context.Context, item model.EvaluationRequest) (*Decision, error)

	// Provider returns the provider name (e.g., "anthropic", "openai").
	Provider() string

	// Model returns the model name used for judging.
	Model() string
}

// Decision is a judge's answer for one item.
type Decision struct {
	Jailbroken bool   `json:"jailbroken"`
	Reason     string `json:"reason"`

	InputTokens  int64 `json:"-"`
	OutputTokens int64 `json:"-"`
}

// JudgeClassifier runs a Judge over a batch with bounded parallelism.
type JudgeClassifier struct {
	judge    Judge
	parallel int
	logger   *slog.Logger
	metrics  *tcotel.Metrics
}

// NewJudgeClassifier creates a classifier that judges items concurrently,
// at most parallel at a time.
func NewJudgeClassifier(j Judge, parallel int, logger *slog.Logger, metrics *tcotel.Metrics) *JudgeClassifier {
	if parallel < 1 {
		parallel = 1
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &JudgeClassifier{
		judge:    j,
		parallel: parallel,
		logger:   logger.With("component", "judge", "judge_model", j.Model()),
		metrics:  metrics,
	}
}

// Source returns "judge".
func (c *JudgeClassifier) Source() string { return tcotel.SourceJudge }

// Classify judges every item. A failed item is logged and left without a
// verdict; only a batch where every item failed is an error.
func (c *JudgeClassifier) Classify(ctx context.Context, items []model.EvaluationRequest) ([]model.Verdict, error) {
	if len(items) == 0 {
		return nil, nil
	}

	parallel := min(c.parallel, len(items))
	decisions := make([]*Decision, len(items))
	errs := make([]error, len(items))

	var wg sync.WaitGroup
	sem := make(chan struct{}, parallel)

	for i, item := range items {
		wg.Add(1)
		go func(idx int, it model.EvaluationRequest) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			d, err := c.judge.Judge(ctx, it)
			if err != nil {
				errs[idx] = err
				return
			}
			c.metrics.RecordTokens(ctx, c.judge.Provider(), c.judge.Model(), d.InputTokens, d.OutputTokens)
			decisions[idx] = d
		}(i, item)
	}
	wg.Wait()

	verdicts := make([]model.Verdict, 0, len(items))
	for i, d := range decisions {
		if d == nil {
			c.logger.WarnContext(ctx, "judge failed", slog.String("id", items[i].ID), logging.Err(errs[i]))
			continue
		}
		verdicts = append(verdicts, model.Verdict{ID: items[i].ID, Jailbroken: d.Jailbroken, Reason: d.Reason})
	}

	if len(verdicts) == 0 {
		return nil, fmt.Errorf("all %d judge calls failed: %w", len(items), errors.Join(errs...))
	}
	return verdicts, nil
}

// renderUserMessage builds the judge's user message for one item.
func renderUserMessage(item model.EvaluationRequest) string {
	var b strings.Builder
	b.WriteString(UserPromptTemplate)
	b.WriteString("\n<prompt>\n")
	b.WriteString(item.Prompt)
	b.WriteString("\n</prompt>\n\n<response>\n")
	b.WriteString(item.Response)
	b.WriteString("\n</response>\n")
	return b.String()
}

// parseDecision decodes a judge answer. Models sometimes wrap the object in
// markdown fences or a sentence of prose; both are tolerated.
func parseDecision(raw string) (*Decision, error) {
	text := stripMarkdownFences(raw)

	var d Decision
	if err := json.Unmarshal([]byte(text), &d); err == nil {
		return &d, nil
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &d); err == nil {
			return &d, nil
		}
	}
	return nil, fmt.Errorf("failed to parse judge response as JSON: %q", truncate(text, 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
