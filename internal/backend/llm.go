package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/pennh4i/tentacool/internal/model"
)

// RemoteModel is one entry of a provider's text model listing.
type RemoteModel struct {
	ID      string    `json:"id"`
	Created flexInt64 `json:"created"`
	OwnedBy string    `json:"owned_by"`
}

// QueryRequest is one item of a batch query.
type QueryRequest struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
}

// Providers lists the provider names known to the backend.
func (c *Client) Providers(ctx context.Context) ([]string, error) {
	data, err := get[struct {
		Providers []string `json:"providers"`
	}](ctx, c, "/llm/providers")
	if err != nil {
		return nil, err
	}
	return data.Providers, nil
}

// FetchModels lists the text models of one provider.
func (c *Client) FetchModels(ctx context.Context, provider string) ([]model.ModelRef, error) {
	data, err := get[struct {
		TextModels []RemoteModel `json:"text_models"`
	}](ctx, c, "/llm/providers/"+url.PathEscape(provider)+"/models/fetch")
	if err != nil {
		return nil, err
	}

	refs := make([]model.ModelRef, 0, len(data.TextModels))
	for _, m := range data.TextModels {
		if m.ID == "" {
			continue
		}
		refs = append(refs, model.ModelRef{
			Provider: provider,
			ModelID:  m.ID,
			Created:  int64(m.Created),
			OwnedBy:  m.OwnedBy,
		})
	}
	return refs, nil
}

// QueryBatch sends one prompt per item in a single request. Per-model
// failures come back as results with status failure; only a failure of the
// call itself is returned as an error.
func (c *Client) QueryBatch(ctx context.Context, queries []QueryRequest) ([]model.QueryResult, error) {
	body := struct {
		Queries []QueryRequest `json:"queries"`
	}{Queries: queries}

	data, err := post[struct {
		Results []model.QueryResult `json:"results"`
	}](ctx, c, "/llm/query/batch", body)
	if err != nil {
		return nil, err
	}
	return data.Results, nil
}

// EvaluateJailbreak classifies responses in a single request.
func (c *Client) EvaluateJailbreak(ctx context.Context, items []model.EvaluationRequest) ([]model.Verdict, error) {
	body := struct {
		Responses []model.EvaluationRequest `json:"responses"`
	}{Responses: items}

	data, err := post[struct {
		Results []model.Verdict `json:"results"`
	}](ctx, c, "/evaluate/jailbreak", body)
	if err != nil {
		return nil, err
	}
	return data.Results, nil
}

// flexInt64 decodes a timestamp the providers report as a number, a
// numeric string, or not at all.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		if v, err := n.Int64(); err == nil {
			*f = flexInt64(v)
			return nil
		}
		if v, err := n.Float64(); err == nil {
			*f = flexInt64(v)
			return nil
		}
	}
	if v, err := strconv.ParseInt(string(data), 10, 64); err == nil {
		*f = flexInt64(v)
		return nil
	}
	// Unknown formats are not worth failing the whole listing over.
	*f = 0
	return nil
}
