package analysis

import (
	"context"
	"fmt"

	"github.com/pennh4i/tentacool/internal/backend"
	"github.com/pennh4i/tentacool/internal/model"
)

// FetchLimit bounds how many prompts and responses Load reads.
const FetchLimit = 1000

// Records lists persisted prompts and responses.
type Records interface {
	ListPrompts(ctx context.Context, q backend.PromptQuery) ([]model.StoredPrompt, error)
	ListResponses(ctx context.Context, q backend.ResponseQuery) ([]model.StoredResponse, error)
}

// Load fetches up to FetchLimit prompts and responses and computes Stats.
func Load(ctx context.Context, r Records) (Stats, error) {
	prompts, err := r.ListPrompts(ctx, backend.PromptQuery{Limit: FetchLimit})
	if err != nil {
		return Stats{}, fmt.Errorf("listing prompts: %w", err)
	}
	responses, err := r.ListResponses(ctx, backend.ResponseQuery{Limit: FetchLimit})
	if err != nil {
		return Stats{}, fmt.Errorf("listing responses: %w", err)
	}
	return Compute(prompts, responses), nil
}
