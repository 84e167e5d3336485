package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ModelRef identifies one queryable model of one provider.
type ModelRef struct {
	// Provider is the provider name as listed by the backend (e.g., "openai").
	Provider string `json:"provider"`
	// ModelID is the provider-specific model identifier (e.g., "gpt-4o-mini").
	ModelID string `json:"model"`
	// Created is the provider-reported creation timestamp, if any.
	Created int64 `json:"created,omitempty"`
	// OwnedBy is the provider-reported owner, if any.
	OwnedBy string `json:"owned_by,omitempty"`
}

// Key returns the identity key "{provider}:{modelId}". It is the only
// correlation key between query results, verdicts and review edits.
func (r ModelRef) Key() string {
	return Key(r.Provider, r.ModelID)
}

// Key builds an identity key from its parts.
func Key(provider, modelID string) string {
	return provider + ":" + modelID
}

// SplitKey splits an identity key at the first colon. Model ids may
// themselves contain colons (e.g., "llama3:8b"); provider names never do.
func SplitKey(key string) (provider, modelID string, ok bool) {
	provider, modelID, ok = strings.Cut(key, ":")
	if !ok || provider == "" || modelID == "" {
		return "", "", false
	}
	return provider, modelID, true
}

// QueryStatus discriminates a QueryResult.
type QueryStatus string

const (
	StatusSuccess QueryStatus = "success"
	StatusFailure QueryStatus = "failure"
)

// QueryResult is one entry of the batch query response, decoded at the
// boundary. Exactly one of Response or Error is meaningful, depending on
// Status.
type QueryResult struct {
	ID       string      `json:"id"`
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Response string      `json:"response,omitempty"`
	Status   QueryStatus `json:"status"`
	Error    string      `json:"error,omitempty"`
}

// UnmarshalJSON normalizes the status discriminator. Anything other than
// "success" is treated as a failure so that unknown states never leak into
// the working set.
func (q *QueryResult) UnmarshalJSON(data []byte) error {
	type raw QueryResult
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*q = QueryResult(r)
	if !strings.EqualFold(string(q.Status), string(StatusSuccess)) {
		q.Status = StatusFailure
	} else {
		q.Status = StatusSuccess
	}
	return nil
}

// Usable reports whether the result may enter the working set: status
// success and provider, model and response text all present.
func (q QueryResult) Usable() bool {
	return q.Status == StatusSuccess && q.Provider != "" && q.Model != "" && q.Response != ""
}

// QueryOutcome is a successful model answer travelling through evaluation,
// review and commit.
type QueryOutcome struct {
	// ID is the identity key "{provider}:{model}".
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	// Prompt is the exact text sent to the model.
	Prompt string `json:"prompt"`
	// Response is the model's answer.
	Response string `json:"response"`
	// Jailbroken is false until the evaluator or the reviewer says otherwise.
	Jailbroken bool `json:"jailbroken"`
	// Note is the reviewer's free-text note.
	Note string `json:"note"`
}

// Complete reports whether the outcome carries everything a ResponseRecord needs.
func (o QueryOutcome) Complete() bool {
	return o.Provider != "" && o.Model != "" && o.Response != ""
}

// LLM returns the "{provider}:{model}" label persisted with the response.
func (o QueryOutcome) LLM() string {
	return Key(o.Provider, o.Model)
}

// QueryFailure is a per-model failure within a batch. It is shown to the
// user but never evaluated, reviewed or persisted.
type QueryFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// EvaluationRequest is one item of the jailbreak classification batch.
type EvaluationRequest struct {
	ID       string `json:"id"`
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// Verdict is a classifier decision for one outcome, merged by ID.
type Verdict struct {
	ID         string `json:"id"`
	Jailbroken bool   `json:"jailbroken"`
	// Reason is only set by in-process judges.
	Reason string `json:"reason,omitempty"`
}

// PromptRecord is the persisted prompt.
type PromptRecord struct {
	Text string `json:"text"`
	Note string `json:"note"`
}

// ResponseRecord is one persisted model response.
type ResponseRecord struct {
	LLM        string `json:"llm"`
	Response   string `json:"response"`
	Jailbroken bool   `json:"jailbroken"`
	Note       string `json:"note"`
}

// Receipt is what the store returns after a successful commit.
type Receipt struct {
	PromptID    ID   `json:"prompt_id"`
	ResponseIDs []ID `json:"response_ids"`
	Count       int  `json:"count"`
}

// ID is a store identifier. The store may hand out numbers or strings; both
// decode into their textual form.
type ID string

// UnmarshalJSON accepts JSON strings and numbers.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// StoredPrompt is a prompt as returned by the store's listing endpoints.
type StoredPrompt struct {
	ID        ID     `json:"id"`
	Text      string `json:"text"`
	Note      string `json:"note"`
	CreatedAt string `json:"created_at,omitempty"`
}

// StoredResponse is a response as returned by the store's listing endpoints.
type StoredResponse struct {
	ID         ID     `json:"id"`
	PromptID   ID     `json:"prompt_id"`
	LLM        string `json:"llm"`
	Response   string `json:"response"`
	Jailbroken bool   `json:"jailbroken"`
	Note       string `json:"note"`
	CreatedAt  string `json:"created_at,omitempty"`
}
