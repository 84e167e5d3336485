// Package workflow drives the query, evaluate, review and commit cycle.
//
// The Controller owns the only mutable state: the catalog listing, the
// selection and the current State. At most one cycle runs at a time; a
// second Submit or Commit while one is in flight fails with ErrBusy rather
// than queueing.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/pennh4i/tentacool/internal/catalog"
	"github.com/pennh4i/tentacool/internal/dispatch"
	"github.com/pennh4i/tentacool/internal/evaluator"
	"github.com/pennh4i/tentacool/internal/logging"
	"github.com/pennh4i/tentacool/internal/model"
	tcotel "github.com/pennh4i/tentacool/internal/otel"
	"github.com/pennh4i/tentacool/internal/review"
	"github.com/pennh4i/tentacool/internal/selection"
)

var (
	// ErrBusy means another query or commit is in flight.
	ErrBusy = errors.New("workflow busy")
	// ErrNoWorkingSet means the operation needs the Reviewing state.
	ErrNoWorkingSet = errors.New("no working set to review")
	// ErrNotComposing means a submission was attempted while reviewing.
	ErrNotComposing = errors.New("finish or discard the current review first")
)

// CatalogSource lists the models available for a cycle.
type CatalogSource interface {
	ListModels(ctx context.Context) (*catalog.Listing, error)
}

// Dispatcher runs the batch query.
type Dispatcher interface {
	Dispatch(ctx context.Context, prompt string, refs []model.ModelRef) (*dispatch.Result, error)
}

// Evaluator classifies successful outcomes. It never fails.
type Evaluator interface {
	Evaluate(ctx context.Context, outcomes []model.QueryOutcome) ([]model.QueryOutcome, evaluator.Report)
}

// Committer persists a working set.
type Committer interface {
	Commit(ctx context.Context, prompt string, session *review.Session) (*model.Receipt, error)
}

// Options configures a Controller.
type Options struct {
	Catalog    CatalogSource
	Dispatcher Dispatcher
	Evaluator  Evaluator
	Committer  Committer

	// SelectAll selects every model once the catalog loads.
	SelectAll bool
	// OnTransition, if set, is called after every state change, outside
	// the controller lock.
	OnTransition func(State)
	Logger       *slog.Logger
}

// Controller is the workflow state machine. It is safe for concurrent use.
type Controller struct {
	opts   Options
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	listing    *catalog.Listing
	selection  *selection.Set
	committing bool
	loading    bool
}

// New creates a Controller in the Composing state with an empty catalog.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Controller{
		opts:      opts,
		logger:    logger.With("component", "workflow"),
		state:     Composing{},
		selection: selection.New(nil, false),
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Listing returns the last loaded catalog listing, or nil.
func (c *Controller) Listing() *catalog.Listing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listing
}

// LoadCatalog fetches the model catalog and resets the selection. It is
// allowed in Composing only.
func (c *Controller) LoadCatalog(ctx context.Context) (*catalog.Listing, error) {
	c.mu.Lock()
	if err := c.requireIdleComposing(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.loading {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.loading = true
	c.mu.Unlock()

	listing, err := c.opts.Catalog.ListModels(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if err != nil {
		c.logger.ErrorContext(ctx, "catalog unavailable", logging.Err(err))
		return nil, err
	}
	c.listing = listing
	c.selection = selection.New(listing.All(), c.opts.SelectAll)
	return listing, nil
}

// Toggle flips one model in the selection. Unknown keys are ignored.
func (c *Controller) Toggle(key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireIdleComposing(); err != nil {
		return false, err
	}
	return c.selection.Toggle(key), nil
}

// ToggleAll selects every catalog model, or clears the selection when it
// already covers them all.
func (c *Controller) ToggleAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireIdleComposing(); err != nil {
		return err
	}
	c.selection.ToggleAll(c.selection.All())
	return nil
}

// Selected returns the selected models in catalog order.
func (c *Controller) Selected() []model.ModelRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection.Refs()
}

// IsSelected reports whether key is selected.
func (c *Controller) IsSelected(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection.Has(key)
}

// Submit runs one cycle up to review: Composing, Querying, Evaluating,
// Reviewing. An empty prompt or selection fails with ErrInvalidSubmission
// and leaves the state untouched. A failed batch query returns to
// Composing with the error. Evaluation problems never abort the cycle.
func (c *Controller) Submit(ctx context.Context, prompt string) (Reviewing, error) {
	c.mu.Lock()
	if err := c.requireIdleComposing(); err != nil {
		c.mu.Unlock()
		return Reviewing{}, err
	}
	refs := c.selection.Refs()
	text, err := dispatch.Validate(prompt, len(refs))
	if err != nil {
		c.mu.Unlock()
		return Reviewing{}, err
	}

	cycleID := uuid.NewString()
	ctx = logging.WithCycleID(ctx, cycleID)
	c.setLocked(Querying{CycleID: cycleID, Prompt: text, Models: len(refs)})
	c.mu.Unlock()
	c.notify(Querying{CycleID: cycleID, Prompt: text, Models: len(refs)})

	ctx, span := tcotel.StartCycle(ctx, "submit", cycleID)
	defer span.End()

	c.logger.InfoContext(ctx, "cycle started", slog.Int("models", len(refs)))

	res, err := c.opts.Dispatcher.Dispatch(ctx, text, refs)
	if err != nil {
		span.RecordError(err)
		c.logger.ErrorContext(ctx, "cycle aborted", logging.Err(err))
		c.transition(Composing{LastErr: err})
		return Reviewing{}, err
	}

	c.transition(Evaluating{CycleID: cycleID, Prompt: text, Outcomes: len(res.Outcomes), Failures: res.Failures})

	outcomes, report := c.opts.Evaluator.Evaluate(ctx, res.Outcomes)

	next := Reviewing{
		CycleID:    cycleID,
		Prompt:     text,
		Session:    review.New(text, outcomes),
		Failures:   res.Failures,
		Evaluation: report,
	}
	c.transition(next)
	c.logger.InfoContext(ctx, "ready for review",
		slog.Int("outcomes", next.Session.Len()),
		slog.Int("failures", len(next.Failures)),
		slog.Bool("evaluation_failed_open", report.FailedOpen()))
	return next, nil
}

// SetNote sets the note of one outcome. Unknown ids are ignored.
func (c *Controller) SetNote(id, text string) error {
	return c.edit(func(s *review.Session) { s.SetNote(id, text) })
}

// SetJailbroken overrides the label of one outcome. Unknown ids are ignored.
func (c *Controller) SetJailbroken(id string, jailbroken bool) error {
	return c.edit(func(s *review.Session) { s.SetJailbroken(id, jailbroken) })
}

// SetPromptNote sets the note attached to the prompt.
func (c *Controller) SetPromptNote(text string) error {
	return c.edit(func(s *review.Session) { s.SetPromptNote(text) })
}

// Commit persists the working set. On success the cycle closes and the
// state returns to Composing; the selection is kept. On failure the state,
// including every edit, is left as it was so the commit can be retried.
func (c *Controller) Commit(ctx context.Context) (*model.Receipt, error) {
	c.mu.Lock()
	rv, ok := c.state.(Reviewing)
	if !ok {
		c.mu.Unlock()
		return nil, c.busyOr(ErrNoWorkingSet)
	}
	if c.committing {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.committing = true
	c.mu.Unlock()

	ctx = logging.WithCycleID(ctx, rv.CycleID)
	ctx, span := tcotel.StartCycle(ctx, "commit", rv.CycleID)
	receipt, err := c.opts.Committer.Commit(ctx, rv.Prompt, rv.Session)
	if err != nil {
		span.RecordError(err)
	}
	span.End()

	c.mu.Lock()
	c.committing = false
	if err != nil {
		rv.LastErr = err
		c.setLocked(rv)
		c.mu.Unlock()
		c.logger.WarnContext(ctx, "commit failed, working set kept", logging.Err(err))
		c.notify(rv)
		return nil, err
	}
	c.setLocked(Composing{})
	c.mu.Unlock()
	c.notify(Composing{})
	return receipt, nil
}

// Discard drops the working set without committing.
func (c *Controller) Discard() error {
	c.mu.Lock()
	rv, ok := c.state.(Reviewing)
	if !ok {
		c.mu.Unlock()
		return c.busyOr(ErrNoWorkingSet)
	}
	if c.committing {
		c.mu.Unlock()
		return ErrBusy
	}
	c.setLocked(Composing{})
	c.mu.Unlock()

	c.logger.Info("working set discarded", slog.String("cycle_id", rv.CycleID))
	c.notify(Composing{})
	return nil
}

func (c *Controller) edit(fn func(*review.Session)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rv, ok := c.state.(Reviewing)
	if !ok {
		return c.busyOr(ErrNoWorkingSet)
	}
	if c.committing {
		return ErrBusy
	}
	fn(rv.Session)
	return nil
}

// requireIdleComposing must be called with c.mu held.
func (c *Controller) requireIdleComposing() error {
	switch c.state.(type) {
	case Composing:
		return nil
	case Reviewing:
		return ErrNotComposing
	default:
		return ErrBusy
	}
}

// busyOr must be called with c.mu held.
func (c *Controller) busyOr(err error) error {
	switch c.state.(type) {
	case Querying, Evaluating:
		return ErrBusy
	}
	return err
}

func (c *Controller) setLocked(s State) {
	c.state = s
}

func (c *Controller) transition(s State) {
	c.mu.Lock()
	c.setLocked(s)
	c.mu.Unlock()
	c.notify(s)
}

func (c *Controller) notify(s State) {
	if c.opts.OnTransition != nil {
		c.opts.OnTransition(s)
	}
}

// String renders the state for logs and the CLI.
func String(s State) string {
	switch st := s.(type) {
	case Composing:
		if st.LastErr != nil {
			return fmt.Sprintf("composing (last cycle failed: %s)", UserMessage(st.LastErr))
		}
		return "composing"
	case Querying:
		return fmt.Sprintf("querying %d models", st.Models)
	case Evaluating:
		return fmt.Sprintf("evaluating %d responses", st.Outcomes)
	case Reviewing:
		return fmt.Sprintf("reviewing %d responses", st.Session.Len())
	default:
		return "unknown"
	}
}
