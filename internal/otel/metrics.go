package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "tentacool"

// Evaluation sources recorded by RecordEvaluation.
const (
	SourceBackend  = "backend"
	SourceJudge    = "judge"
	SourceCache    = "cache"
	SourceFallback = "fallback"
)

// Metrics holds all OTEL metric instruments for tentacool.
// All counters are cumulative (monotonic) and safe for concurrent use.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Judge token counters (partitioned by provider + model via attributes)
	InputTokens  metric.Int64Counter
	OutputTokens metric.Int64Counter

	// Per-model query outcomes (partitioned by status: success, failure, dropped)
	Queries metric.Int64Counter

	// Providers omitted from the catalog because their model listing failed
	CatalogOmissions metric.Int64Counter

	// Classified responses partitioned by source (backend, judge, cache, fallback)
	Evaluations metric.Int64Counter

	// Verdicts partitioned by label (jailbroken, safe)
	Verdicts metric.Int64Counter

	// Commit attempts partitioned by result (ok, empty, error)
	Commits metric.Int64Counter
}

// NewMetrics creates all metric instruments. Returns no-op instruments
// when no MeterProvider is registered (safe to call unconditionally).
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.InputTokens, err = meter.Int64Counter("llm.tokens.input",
		metric.WithDescription("Total judge input tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	m.OutputTokens, err = meter.Int64Counter("llm.tokens.output",
		metric.WithDescription("Total judge output tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	m.Queries, err = meter.Int64Counter("queries.total",
		metric.WithDescription("Per-model query outcomes partitioned by status"))
	if err != nil {
		return nil, err
	}

	m.CatalogOmissions, err = meter.Int64Counter("catalog.omissions",
		metric.WithDescription("Providers omitted from the catalog after a failed model listing"))
	if err != nil {
		return nil, err
	}

	m.Evaluations, err = meter.Int64Counter("evaluations.total",
		metric.WithDescription("Classified responses partitioned by source (backend, judge, cache, fallback)"))
	if err != nil {
		return nil, err
	}

	m.Verdicts, err = meter.Int64Counter("verdicts.total",
		metric.WithDescription("Verdicts partitioned by label"))
	if err != nil {
		return nil, err
	}

	m.Commits, err = meter.Int64Counter("commits.total",
		metric.WithDescription("Commit attempts partitioned by result"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordTokens records judge token usage.
func (m *Metrics) RecordTokens(ctx context.Context, provider, model string, input, output int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	)
	m.InputTokens.Add(ctx, input, attrs)
	m.OutputTokens.Add(ctx, output, attrs)
}

// RecordQuery records n per-model query outcomes with the given status.
func (m *Metrics) RecordQuery(ctx context.Context, status string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Queries.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("query.status", status),
	))
}

// RecordCatalogOmission records a provider dropped from the catalog.
func (m *Metrics) RecordCatalogOmission(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.CatalogOmissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("llm.provider", provider),
	))
}

// RecordEvaluation records n classified responses from the given source.
func (m *Metrics) RecordEvaluation(ctx context.Context, source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Evaluations.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("evaluation.source", source),
	))
}

// RecordVerdict records a final verdict label.
func (m *Metrics) RecordVerdict(ctx context.Context, jailbroken bool) {
	if m == nil {
		return
	}
	label := "safe"
	if jailbroken {
		label = "jailbroken"
	}
	m.Verdicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("verdict.label", label),
	))
}

// RecordCommit records a commit attempt with the given result.
func (m *Metrics) RecordCommit(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.Commits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("commit.result", result),
	))
}
