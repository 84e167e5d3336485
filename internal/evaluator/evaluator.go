// Package evaluator classifies model answers as jailbroken or safe.
//
// The Stage owns the policy: one batched classification per cycle, verdicts
// merged back by identity key, missing verdicts read as "safe", and a
// classifier outage passes outcomes through unchanged so the reviewer can
// label them by hand. Which classifier answers (the backend endpoint or an
// in-process LLM judge) is pluggable; Go code never decides whether a
// response is jailbroken on its own.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pennh4i/tentacool/internal/logging"
	"github.com/pennh4i/tentacool/internal/model"
	tcotel "github.com/pennh4i/tentacool/internal/otel"
)

var evalTracer = tcotel.Tracer("evaluator")

// Classifier returns verdicts for a batch of prompt/response pairs.
// Verdicts may come back in any order and may omit items.
type Classifier interface {
	Classify(ctx context.Context, items []model.EvaluationRequest) ([]model.Verdict, error)

	// Source names the classifier for metrics ("backend", "judge").
	Source() string
}

// Report summarizes one Evaluate call.
type Report struct {
	// Skipped is set when there was nothing to evaluate.
	Skipped bool
	// Requested is the number of items sent to the classifier.
	Requested int
	// Matched is the number of outcomes that received a verdict.
	Matched int
	// Cached is the number of outcomes answered from the verdict cache.
	Cached int
	// Err wraps ErrEvaluationUnavailable when the classifier failed and
	// outcomes were passed through.
	Err error
}

// FailedOpen reports whether the classifier failed.
func (r Report) FailedOpen() bool { return r.Err != nil }

// Options configures a Stage.
type Options struct {
	// Cache is optional.
	Cache   *VerdictCache
	Logger  *slog.Logger
	Metrics *tcotel.Metrics
}

// Stage runs the evaluation step of a workflow cycle.
type Stage struct {
	classifier Classifier
	cache      *VerdictCache
	logger     *slog.Logger
	metrics    *tcotel.Metrics
}

// NewStage creates a Stage around a classifier.
func NewStage(c Classifier, opts Options) *Stage {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Stage{
		classifier: c,
		cache:      opts.Cache,
		logger:     logger.With("component", "evaluator"),
		metrics:    opts.Metrics,
	}
}

// Evaluate classifies outcomes and returns a copy with Jailbroken set from
// the verdicts. It never fails: an empty input is skipped, a missing
// verdict leaves Jailbroken false, and a classifier error is logged and
// reported while the outcomes pass through unmodified.
func (s *Stage) Evaluate(ctx context.Context, outcomes []model.QueryOutcome) ([]model.QueryOutcome, Report) {
	out := make([]model.QueryOutcome, len(outcomes))
	copy(out, outcomes)

	if len(out) == 0 {
		return out, Report{Skipped: true}
	}

	ctx, span := evalTracer.Start(ctx, "evaluate")
	defer span.End()

	s.cache.Prune()

	var report Report
	verdicts := make(map[string]bool, len(out))
	pending := make([]model.EvaluationRequest, 0, len(out))
	pendingIDs := make(map[string]struct{}, len(out))

	for _, o := range out {
		if _, dup := pendingIDs[o.ID]; dup {
			continue
		}
		if _, done := verdicts[o.ID]; done {
			continue
		}
		if jb, ok := s.cache.Lookup(o.Prompt, o.Response); ok {
			verdicts[o.ID] = jb
			report.Cached++
			continue
		}
		pending = append(pending, model.EvaluationRequest{ID: o.ID, Prompt: o.Prompt, Response: o.Response})
		pendingIDs[o.ID] = struct{}{}
	}
	s.metrics.RecordEvaluation(ctx, tcotel.SourceCache, report.Cached)

	if len(pending) > 0 {
		report.Requested = len(pending)
		got, err := s.classifier.Classify(ctx, pending)
		if err != nil {
			span.RecordError(err)
			report.Err = fmt.Errorf("%w: %w", model.ErrEvaluationUnavailable, err)
			s.logger.WarnContext(ctx, "evaluation unavailable, passing outcomes through unlabeled",
				slog.Int("outcomes", len(pending)), logging.Err(err))
			s.metrics.RecordEvaluation(ctx, tcotel.SourceFallback, len(pending))
		} else {
			fresh := mergeVerdicts(got, pendingIDs)
			for _, req := range pending {
				jb, ok := fresh[req.ID]
				if !ok {
					continue
				}
				verdicts[req.ID] = jb
				s.cache.Store(req.Prompt, req.Response, jb)
			}
			s.metrics.RecordEvaluation(ctx, s.classifier.Source(), len(fresh))
			if missing := len(pending) - len(fresh); missing > 0 {
				s.logger.InfoContext(ctx, "classifier omitted verdicts, defaulting to safe",
					slog.Int("missing", missing))
			}
		}
	}

	jailbroken := 0
	for i := range out {
		jb, ok := verdicts[out[i].ID]
		if !ok {
			continue
		}
		report.Matched++
		out[i].Jailbroken = jb
		if jb {
			jailbroken++
		}
		s.metrics.RecordVerdict(ctx, jb)
	}

	span.SetAttributes(
		attribute.Int("evaluate.outcomes", len(out)),
		attribute.Int("evaluate.requested", report.Requested),
		attribute.Int("evaluate.matched", report.Matched),
		attribute.Int("evaluate.cached", report.Cached),
		attribute.Int("evaluate.jailbroken", jailbroken),
		attribute.Bool("evaluate.failed_open", report.FailedOpen()),
	)
	return out, report
}

// mergeVerdicts folds verdicts by id, ignoring ids that were not asked
// about. Repeated ids are OR-ed so the result does not depend on order.
func mergeVerdicts(verdicts []model.Verdict, asked map[string]struct{}) map[string]bool {
	merged := make(map[string]bool, len(verdicts))
	for _, v := range verdicts {
		if _, ok := asked[v.ID]; !ok {
			continue
		}
		merged[v.ID] = merged[v.ID] || v.Jailbroken
	}
	return merged
}
