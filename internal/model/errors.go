package model

import "errors"

// Error kinds shared by all workflow stages. Stages wrap these with
// fmt.Errorf("...: %w") so callers classify with errors.Is.
var (
	// ErrCatalogUnavailable means the provider listing itself failed.
	ErrCatalogUnavailable = errors.New("model catalog unavailable")
	// ErrInvalidSubmission means an empty prompt or an empty selection.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrTransportFailure means a batch call failed as a whole.
	ErrTransportFailure = errors.New("transport failure")
	// ErrModelFailure marks a single model failing inside a batch.
	ErrModelFailure = errors.New("model query failed")
	// ErrEvaluationUnavailable means the classifier could not be reached.
	ErrEvaluationUnavailable = errors.New("evaluation unavailable")
	// ErrNothingToCommit means no complete outcome is left to persist.
	ErrNothingToCommit = errors.New("nothing to commit")
	// ErrCommitFailure means the store rejected or never received the bundle.
	ErrCommitFailure = errors.New("commit failed")
)
