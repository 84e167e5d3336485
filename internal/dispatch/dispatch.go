// Package dispatch fans one prompt out to the selected models in a single
// batch request and keeps only the answers that can be reviewed.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pennh4i/tentacool/internal/backend"
	"github.com/pennh4i/tentacool/internal/logging"
	"github.com/pennh4i/tentacool/internal/model"
	tcotel "github.com/pennh4i/tentacool/internal/otel"
)

var tracer = tcotel.Tracer("dispatch")

// Querier sends a batch of queries.
type Querier interface {
	QueryBatch(ctx context.Context, queries []backend.QueryRequest) ([]model.QueryResult, error)
}

// Result is the outcome of one dispatch.
type Result struct {
	// Prompt is the exact (trimmed) text sent to every model.
	Prompt string
	// Outcomes holds the usable answers, in selection order.
	Outcomes []model.QueryOutcome
	// Failures holds the models that failed or answered nothing usable.
	// They are reported but never evaluated, reviewed or committed.
	Failures []model.QueryFailure
}

// Options configures a Dispatcher.
type Options struct {
	Logger  *slog.Logger
	Metrics *tcotel.Metrics
}

// Dispatcher runs batch queries.
type Dispatcher struct {
	querier Querier
	logger  *slog.Logger
	metrics *tcotel.Metrics
}

// New creates a Dispatcher.
func New(q Querier, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dispatcher{
		querier: q,
		logger:  logger.With("component", "dispatch"),
		metrics: opts.Metrics,
	}
}

// Validate trims prompt and checks that a submission can be sent.
func Validate(prompt string, selected int) (string, error) {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "", fmt.Errorf("%w: prompt is empty", model.ErrInvalidSubmission)
	}
	if selected == 0 {
		return "", fmt.Errorf("%w: no model selected", model.ErrInvalidSubmission)
	}
	return trimmed, nil
}

// Dispatch sends prompt to every ref in one batch request.
//
// An empty prompt or an empty ref list fails with ErrInvalidSubmission
// before any request is made. A failure of the batch call itself fails
// with ErrTransportFailure and yields no partial results. Otherwise each
// result is matched to its ref by identity key; only results with status
// success and a non-empty provider, model and response become outcomes.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt string, refs []model.ModelRef) (*Result, error) {
	refs = uniqueRefs(refs)
	text, err := Validate(prompt, len(refs))
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "dispatch")
	defer span.End()
	span.SetAttributes(attribute.Int("dispatch.models", len(refs)))

	queries := make([]backend.QueryRequest, len(refs))
	for i, ref := range refs {
		queries[i] = backend.QueryRequest{
			ID:       ref.Key(),
			Provider: ref.Provider,
			Model:    ref.ModelID,
			Prompt:   text,
		}
	}

	results, err := d.querier.QueryBatch(ctx, queries)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: batch query: %w", model.ErrTransportFailure, err)
	}

	byID := make(map[string]model.QueryResult, len(results))
	for _, r := range results {
		if _, dup := byID[r.ID]; dup {
			d.logger.DebugContext(ctx, "ignoring duplicate result", slog.String("id", r.ID))
			continue
		}
		byID[r.ID] = r
	}

	res := &Result{Prompt: text}
	for _, ref := range refs {
		key := ref.Key()
		r, ok := byID[key]
		delete(byID, key)

		switch {
		case !ok:
			res.Failures = append(res.Failures, model.QueryFailure{ID: key, Reason: "no result returned"})
		case !r.Usable():
			res.Failures = append(res.Failures, model.QueryFailure{ID: key, Reason: failureReason(r)})
		default:
			res.Outcomes = append(res.Outcomes, model.QueryOutcome{
				ID:       key,
				Provider: ref.Provider,
				Model:    ref.ModelID,
				Prompt:   text,
				Response: r.Response,
			})
		}
	}
	for id := range byID {
		d.logger.WarnContext(ctx, "dropping result for a model that was not queried", slog.String("id", id))
	}

	for _, f := range res.Failures {
		d.logger.InfoContext(ctx, "model query failed",
			slog.String("id", f.ID), slog.String("reason", f.Reason))
	}
	d.metrics.RecordQuery(ctx, string(model.StatusSuccess), len(res.Outcomes))
	d.metrics.RecordQuery(ctx, string(model.StatusFailure), len(res.Failures))
	span.SetAttributes(
		attribute.Int("dispatch.succeeded", len(res.Outcomes)),
		attribute.Int("dispatch.failed", len(res.Failures)),
	)

	return res, nil
}

func failureReason(r model.QueryResult) string {
	switch {
	case r.Status == model.StatusFailure && r.Error != "":
		return r.Error
	case r.Status == model.StatusFailure:
		return "query failed"
	case r.Response == "":
		return "empty response"
	default:
		return "incomplete result"
	}
}

func uniqueRefs(refs []model.ModelRef) []model.ModelRef {
	seen := make(map[string]struct{}, len(refs))
	out := make([]model.ModelRef, 0, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref.Key()]; ok {
			continue
		}
		seen[ref.Key()] = struct{}{}
		out = append(out, ref)
	}
	return out
}
