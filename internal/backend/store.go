package backend

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/pennh4i/tentacool/internal/model"
)

// PromptQuery pages through stored prompts.
type PromptQuery struct {
	Limit  int
	Offset int
}

// ResponseQuery filters stored responses. Zero values mean "no filter".
type ResponseQuery struct {
	LLM        string
	Jailbroken *bool
	PromptID   string
	Limit      int
	Offset     int
}

// CSVExport is the payload of the CSV download endpoint.
type CSVExport struct {
	Prompts        string `json:"prompts"`
	Responses      string `json:"responses"`
	PromptsCount   int    `json:"prompts_count"`
	ResponsesCount int    `json:"responses_count"`
}

// CreatePromptBatch persists one prompt and its responses in one request.
func (c *Client) CreatePromptBatch(ctx context.Context, prompt model.PromptRecord, responses []model.ResponseRecord) (*model.Receipt, error) {
	body := struct {
		Prompt    model.PromptRecord     `json:"prompt"`
		Responses []model.ResponseRecord `json:"responses"`
	}{Prompt: prompt, Responses: responses}

	data, err := post[struct {
		PromptID  model.ID `json:"prompt_id"`
		Responses struct {
			IDs   []model.ID `json:"ids"`
			Count int        `json:"count"`
		} `json:"responses"`
	}](ctx, c, "/prompts/batch", body)
	if err != nil {
		return nil, err
	}

	return &model.Receipt{
		PromptID:    data.PromptID,
		ResponseIDs: data.Responses.IDs,
		Count:       data.Responses.Count,
	}, nil
}

// ListPrompts returns one page of stored prompts.
func (c *Client) ListPrompts(ctx context.Context, q PromptQuery) ([]model.StoredPrompt, error) {
	params := url.Values{}
	setPage(params, q.Limit, q.Offset)
	return get[[]model.StoredPrompt](ctx, c, withQuery("/prompts", params))
}

// ListResponses returns one page of stored responses matching q.
func (c *Client) ListResponses(ctx context.Context, q ResponseQuery) ([]model.StoredResponse, error) {
	params := url.Values{}
	if q.LLM != "" {
		params.Set("llm", q.LLM)
	}
	if q.Jailbroken != nil {
		params.Set("jailbroken", strconv.FormatBool(*q.Jailbroken))
	}
	if q.PromptID != "" {
		params.Set("prompt_id", q.PromptID)
	}
	setPage(params, q.Limit, q.Offset)
	return get[[]model.StoredResponse](ctx, c, withQuery("/responses", params))
}

// PromptResponses returns every stored response of one prompt.
func (c *Client) PromptResponses(ctx context.Context, promptID string) ([]model.StoredResponse, error) {
	return get[[]model.StoredResponse](ctx, c, "/prompts/"+url.PathEscape(promptID)+"/responses")
}

// DownloadCSV fetches both tables rendered as CSV.
func (c *Client) DownloadCSV(ctx context.Context) (*CSVExport, error) {
	data, err := get[CSVExport](ctx, c, "/download/csv")
	if err != nil {
		return nil, err
	}
	return &data, nil
}

// Health returns the backend's health payload verbatim.
func (c *Client) Health(ctx context.Context) (json.RawMessage, error) {
	return get[json.RawMessage](ctx, c, "/health")
}

func setPage(params url.Values, limit, offset int) {
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
}

func withQuery(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}
