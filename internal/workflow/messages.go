package workflow

import (
	"errors"

	"github.com/pennh4i/tentacool/internal/backend"
	"github.com/pennh4i/tentacool/internal/model"
)

// UserMessage renders err as the single human-readable line shown to the
// user. Raw transport errors are never included; backend-provided
// messages are.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *backend.APIError
	detail := ""
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		detail = apiErr.Message
	}

	switch {
	case errors.Is(err, model.ErrInvalidSubmission):
		return "Please enter a prompt and select at least one model"
	case errors.Is(err, model.ErrCatalogUnavailable):
		return withDetail("Could not load the model list", detail, "check the backend and try again")
	case errors.Is(err, model.ErrTransportFailure):
		return withDetail("Error sending queries", detail, "the backend could not be reached")
	case errors.Is(err, model.ErrEvaluationUnavailable):
		return "Automatic jailbreak evaluation is unavailable; label the responses manually"
	case errors.Is(err, model.ErrNothingToCommit):
		return "No valid responses to log to database"
	case errors.Is(err, model.ErrCommitFailure):
		return withDetail("Error logging to database", detail, "the backend could not be reached")
	case errors.Is(err, ErrBusy):
		return "Please wait for the current request to finish"
	case errors.Is(err, ErrNoWorkingSet):
		return "There are no results to review"
	case errors.Is(err, ErrNotComposing):
		return "Log or discard the current results before sending a new prompt"
	case detail != "":
		return "Error: " + detail
	default:
		return "Something went wrong; see the log for details"
	}
}

func withDetail(prefix, detail, fallback string) string {
	if detail != "" {
		return prefix + ": " + detail
	}
	return prefix + ": " + fallback
}
