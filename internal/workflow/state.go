package workflow

import (
	"github.com/pennh4i/tentacool/internal/evaluator"
	"github.com/pennh4i/tentacool/internal/model"
	"github.com/pennh4i/tentacool/internal/review"
)

// Phase names a workflow state.
type Phase int

const (
	PhaseComposing Phase = iota
	PhaseQuerying
	PhaseEvaluating
	PhaseReviewing
)

func (p Phase) String() string {
	switch p {
	case PhaseComposing:
		return "composing"
	case PhaseQuerying:
		return "querying"
	case PhaseEvaluating:
		return "evaluating"
	case PhaseReviewing:
		return "reviewing"
	default:
		return "unknown"
	}
}

// State is one of Composing, Querying, Evaluating or Reviewing. Only
// Reviewing carries a working set, so edits outside review cannot be
// expressed.
type State interface {
	Phase() Phase
	state()
}

// Composing waits for a prompt. LastErr is the failure that aborted the
// previous cycle, if any.
type Composing struct {
	LastErr error
}

// Querying waits for the batch query.
type Querying struct {
	CycleID string
	Prompt  string
	Models  int
}

// Evaluating waits for classification of the successful answers.
type Evaluating struct {
	CycleID  string
	Prompt   string
	Outcomes int
	Failures []model.QueryFailure
}

// Reviewing holds the working set until it is committed or discarded.
type Reviewing struct {
	CycleID    string
	Prompt     string
	Session    *review.Session
	Failures   []model.QueryFailure
	Evaluation evaluator.Report
	// LastErr is the most recent failed commit attempt, if any.
	LastErr error
}

func (Composing) Phase() Phase  { return PhaseComposing }
func (Querying) Phase() Phase   { return PhaseQuerying }
func (Evaluating) Phase() Phase { return PhaseEvaluating }
func (Reviewing) Phase() Phase  { return PhaseReviewing }

func (Composing) state()  {}
func (Querying) state()   {}
func (Evaluating) state() {}
func (Reviewing) state()  {}
