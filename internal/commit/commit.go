// Package commit persists a reviewed working set as one prompt plus its
// responses.
package commit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pennh4i/tentacool/internal/backend"
	"github.com/pennh4i/tentacool/internal/logging"
	"github.com/pennh4i/tentacool/internal/model"
	tcotel "github.com/pennh4i/tentacool/internal/otel"
	"github.com/pennh4i/tentacool/internal/review"
)

var tracer = tcotel.Tracer("commit")

// Store creates a prompt and its responses in one request.
type Store interface {
	CreatePromptBatch(ctx context.Context, prompt model.PromptRecord, responses []model.ResponseRecord) (*model.Receipt, error)
}

// Recorder keeps a local trail of successful commits. It is optional and
// its failures never fail a commit.
type Recorder interface {
	Record(ctx context.Context, cycleID, prompt string, receipt *model.Receipt) error
}

// Options configures a Gateway.
type Options struct {
	Recorder Recorder
	Logger   *slog.Logger
	Metrics  *tcotel.Metrics
}

// Gateway validates and persists working sets.
type Gateway struct {
	store    Store
	recorder Recorder
	logger   *slog.Logger
	metrics  *tcotel.Metrics
}

// New creates a Gateway.
func New(store Store, opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Gateway{
		store:    store,
		recorder: opts.Recorder,
		logger:   logger.With("component", "commit"),
		metrics:  opts.Metrics,
	}
}

// Build turns a working set into the records to persist, dropping any
// outcome that lacks a provider, model or response.
func Build(prompt string, session *review.Session) (model.PromptRecord, []model.ResponseRecord) {
	rec := model.PromptRecord{Text: prompt, Note: session.PromptNote()}

	var responses []model.ResponseRecord
	for _, o := range session.Outcomes() {
		if !o.Complete() {
			continue
		}
		responses = append(responses, model.ResponseRecord{
			LLM:        o.LLM(),
			Response:   o.Response,
			Jailbroken: o.Jailbroken,
			Note:       o.Note,
		})
	}
	return rec, responses
}

// Commit persists the session under prompt in one batch request. It fails
// with ErrNothingToCommit when no complete outcome is left, and with
// ErrCommitFailure when the store call fails. The session is only read,
// so a failed commit can be retried as-is.
func (g *Gateway) Commit(ctx context.Context, prompt string, session *review.Session) (*model.Receipt, error) {
	ctx, span := tracer.Start(ctx, "commit")
	defer span.End()

	prompt = strings.TrimSpace(prompt)
	rec, responses := Build(prompt, session)
	span.SetAttributes(attribute.Int("commit.responses", len(responses)))

	if len(responses) == 0 {
		g.metrics.RecordCommit(ctx, "empty")
		return nil, model.ErrNothingToCommit
	}
	if prompt == "" {
		g.metrics.RecordCommit(ctx, "empty")
		return nil, fmt.Errorf("%w: prompt is empty", model.ErrInvalidSubmission)
	}

	receipt, err := g.store.CreatePromptBatch(ctx, rec, responses)
	if err != nil {
		span.RecordError(err)
		g.metrics.RecordCommit(ctx, "error")
		return nil, &Error{Err: err}
	}

	g.metrics.RecordCommit(ctx, "ok")
	span.SetAttributes(attribute.String("commit.prompt_id", string(receipt.PromptID)))
	g.logger.InfoContext(ctx, "committed",
		slog.String("prompt_id", string(receipt.PromptID)),
		slog.Int("responses", receipt.Count))

	if g.recorder != nil {
		if err := g.recorder.Record(ctx, logging.CycleID(ctx), prompt, receipt); err != nil {
			g.logger.WarnContext(ctx, "failed to journal commit", logging.Err(err))
		}
	}
	return receipt, nil
}

// Error is a failed store call.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return "commit failed: " + e.Err.Error()
}

// Is makes errors.Is(err, model.ErrCommitFailure) hold.
func (e *Error) Is(target error) bool {
	return target == model.ErrCommitFailure
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the backend-provided message, or "" when the failure
// happened below the HTTP layer.
func (e *Error) Message() string {
	var apiErr *backend.APIError
	if errors.As(e.Err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
