// Package catalog resolves the (provider, model) pairs that can be queried
// at the start of a workflow cycle.
package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/pennh4i/tentacool/internal/logging"
	"github.com/pennh4i/tentacool/internal/model"
	tcotel "github.com/pennh4i/tentacool/internal/otel"
)

var tracer = tcotel.Tracer("catalog")

// Lister is the part of the backend the catalog needs.
type Lister interface {
	Providers(ctx context.Context) ([]string, error)
	FetchModels(ctx context.Context, provider string) ([]model.ModelRef, error)
}

// Omission records a provider left out of a listing.
type Omission struct {
	Provider string
	Err      error
}

// Listing maps providers to their models, in backend order.
type Listing struct {
	// Providers holds the providers that loaded, in the order the backend
	// listed them.
	Providers []string
	// Models holds each loaded provider's models in backend order.
	Models map[string][]model.ModelRef
	// Omitted holds providers whose model listing failed.
	Omitted []Omission
}

// All returns every model, grouped by provider in listing order.
func (l *Listing) All() []model.ModelRef {
	if l == nil {
		return nil
	}
	var all []model.ModelRef
	for _, p := range l.Providers {
		all = append(all, l.Models[p]...)
	}
	return all
}

// Len returns the number of models across all providers.
func (l *Listing) Len() int {
	if l == nil {
		return 0
	}
	n := 0
	for _, p := range l.Providers {
		n += len(l.Models[p])
	}
	return n
}

// Lookup finds a model by identity key.
func (l *Listing) Lookup(key string) (model.ModelRef, bool) {
	provider, _, ok := model.SplitKey(key)
	if l == nil || !ok {
		return model.ModelRef{}, false
	}
	for _, ref := range l.Models[provider] {
		if ref.Key() == key {
			return ref, true
		}
	}
	return model.ModelRef{}, false
}

// Options configures a Catalog.
type Options struct {
	// Parallel bounds concurrent per-provider model listings.
	Parallel int
	Logger   *slog.Logger
	Metrics  *tcotel.Metrics
}

// Catalog lists models through a Lister.
type Catalog struct {
	lister   Lister
	parallel int
	logger   *slog.Logger
	metrics  *tcotel.Metrics
}

// New creates a Catalog.
func New(lister Lister, opts Options) *Catalog {
	parallel := opts.Parallel
	if parallel < 1 {
		parallel = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Catalog{
		lister:   lister,
		parallel: parallel,
		logger:   logger.With("component", "catalog"),
		metrics:  opts.Metrics,
	}
}

// ListModels fetches the provider list, then each provider's models
// concurrently. A failed provider listing returns ErrCatalogUnavailable.
// A failed model listing omits that provider and is logged; it never fails
// the call.
func (c *Catalog) ListModels(ctx context.Context) (*Listing, error) {
	ctx, span := tracer.Start(ctx, "catalog.list")
	defer span.End()

	providers, err := c.lister.Providers(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: listing providers: %w", model.ErrCatalogUnavailable, err)
	}

	type fetched struct {
		models []model.ModelRef
		err    error
	}
	results := make([]fetched, len(providers))

	var g errgroup.Group
	g.SetLimit(c.parallel)
	for i, p := range providers {
		g.Go(func() error {
			refs, err := c.lister.FetchModels(ctx, p)
			results[i] = fetched{models: refs, err: err}
			// Per-provider failures are absorbed, never returned.
			return nil
		})
	}
	_ = g.Wait()

	listing := &Listing{Models: make(map[string][]model.ModelRef, len(providers))}
	seen := make(map[string]bool)
	for i, p := range providers {
		if seen[p] {
			continue
		}
		seen[p] = true

		if err := results[i].err; err != nil {
			c.logger.WarnContext(ctx, "omitting provider, model listing failed",
				slog.String("provider", p), logging.Err(err))
			c.metrics.RecordCatalogOmission(ctx, p)
			listing.Omitted = append(listing.Omitted, Omission{Provider: p, Err: err})
			continue
		}
		listing.Providers = append(listing.Providers, p)
		listing.Models[p] = dedupe(results[i].models)
	}

	span.SetAttributes(
		attribute.Int("catalog.providers", len(listing.Providers)),
		attribute.Int("catalog.omitted", len(listing.Omitted)),
		attribute.Int("catalog.models", listing.Len()),
	)
	c.logger.DebugContext(ctx, "catalog loaded",
		slog.Int("providers", len(listing.Providers)),
		slog.Int("models", listing.Len()),
		slog.Int("omitted", len(listing.Omitted)))

	return listing, nil
}

// dedupe drops repeated model ids, keeping the first.
func dedupe(refs []model.ModelRef) []model.ModelRef {
	out := refs[:0:0]
	seen := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		if _, ok := seen[r.ModelID]; ok {
			continue
		}
		seen[r.ModelID] = struct{}{}
		out = append(out, r)
	}
	return out
}
