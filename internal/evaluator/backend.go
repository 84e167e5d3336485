package evaluator

import (
	"context"

	"github.com/pennh4i/tentacool/internal/model"
	tcotel "github.com/pennh4i/tentacool/internal/otel"
)

// BatchAPI is the backend's jailbreak classification endpoint.
type BatchAPI interface {
	EvaluateJailbreak(ctx context.Context, items []model.EvaluationRequest) ([]model.Verdict, error)
}

// BackendClassifier delegates classification to the backend in one request.
type BackendClassifier struct {
	api BatchAPI
}

// NewBackendClassifier creates a classifier backed by the evaluate endpoint.
func NewBackendClassifier(api BatchAPI) *BackendClassifier {
	return &BackendClassifier{api: api}
}

// Source returns "backend".
func (c *BackendClassifier) Source() string { return tcotel.SourceBackend }

// Classify sends every item in a single request.
func (c *BackendClassifier) Classify(ctx context.Context, items []model.EvaluationRequest) ([]model.Verdict, error) {
	return c.api.EvaluateJailbreak(ctx, items)
}
