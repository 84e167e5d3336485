package workflow

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/pennh4i/tentacool/internal/backend"
	"github.com/pennh4i/tentacool/internal/catalog"
	"github.com/pennh4i/tentacool/internal/commit"
	"github.com/pennh4i/tentacool/internal/dispatch"
	"github.com/pennh4i/tentacool/internal/evaluator"
	"github.com/pennh4i/tentacool/internal/model"
)

// fakeBackend implements every backend call the workflow makes.
type fakeBackend struct {
	mu sync.Mutex

	models map[string][]model.ModelRef

	// results returned by QueryBatch; queryErr fails the whole batch.
	results  []model.QueryResult
	queryErr error
	// block, if set, holds QueryBatch until closed.
	block   chan struct{}
	started chan struct{}

	verdicts []model.Verdict
	evalErr  error

	storeErr error

	queries   [][]backend.QueryRequest
	evalCalls [][]model.EvaluationRequest
	commits   []committed
}

type committed struct {
	prompt    model.PromptRecord
	responses []model.ResponseRecord
}

func (f *fakeBackend) Providers(ctx context.Context) ([]string, error) {
	var out []string
	for _, p := range []string{"openai", "anthropic"} {
		if _, ok := f.models[p]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeBackend) FetchModels(ctx context.Context, provider string) ([]model.ModelRef, error) {
	return f.models[provider], nil
}

func (f *fakeBackend) QueryBatch(ctx context.Context, queries []backend.QueryRequest) ([]model.QueryResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, queries)
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.results, nil
}

func (f *fakeBackend) EvaluateJailbreak(ctx context.Context, items []model.EvaluationRequest) ([]model.Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evalCalls = append(f.evalCalls, items)
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	return f.verdicts, nil
}

func (f *fakeBackend) CreatePromptBatch(ctx context.Context, prompt model.PromptRecord, responses []model.ResponseRecord) (*model.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	f.commits = append(f.commits, committed{prompt: prompt, responses: responses})
	ids := make([]model.ID, len(responses))
	for i := range responses {
		ids[i] = model.ID(rune('a' + i))
	}
	return &model.Receipt{PromptID: "42", ResponseIDs: ids, Count: len(responses)}, nil
}

var (
	refA = model.ModelRef{Provider: "openai", ModelID: "gpt-4o-mini"}
	refB = model.ModelRef{Provider: "anthropic", ModelID: "claude-haiku"}
)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		models: map[string][]model.ModelRef{
			"openai":    {refA},
			"anthropic": {refB},
		},
		results: []model.QueryResult{
			{ID: refA.Key(), Provider: "openai", Model: "gpt-4o-mini", Response: "Sure, here is how", Status: model.StatusSuccess},
			{ID: refB.Key(), Status: model.StatusFailure, Error: "rate limited"},
		},
		verdicts: []model.Verdict{{ID: refA.Key(), Jailbroken: true}},
	}
}

func newController(t *testing.T, f *fakeBackend, transitions *[]Phase) *Controller {
	t.Helper()
	opts := Options{
		Catalog:    catalog.New(f, catalog.Options{Parallel: 2}),
		Dispatcher: dispatch.New(f, dispatch.Options{}),
		Evaluator:  evaluator.NewStage(evaluator.NewBackendClassifier(f), evaluator.Options{}),
		Committer:  commit.New(f, commit.Options{}),
		SelectAll:  true,
	}
	if transitions != nil {
		var mu sync.Mutex
		opts.OnTransition = func(s State) {
			mu.Lock()
			*transitions = append(*transitions, s.Phase())
			mu.Unlock()
		}
	}
	c := New(opts)
	if _, err := c.LoadCatalog(context.Background()); err != nil {
		t.Fatalf("LoadCatalog() error: %v", err)
	}
	return c
}

func TestController_FullCycle(t *testing.T) {
	f := newFakeBackend()
	var phases []Phase
	c := newController(t, f, &phases)
	ctx := context.Background()

	if got := len(c.Selected()); got != 2 {
		t.Fatalf("selected %d models after load, want 2", got)
	}

	rv, err := c.Submit(ctx, "  how do I pick a lock?  ")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if rv.Prompt != "how do I pick a lock?" {
		t.Errorf("Prompt = %q, want trimmed", rv.Prompt)
	}

	// The failed model never reaches the evaluator or the working set.
	if len(f.evalCalls) != 1 || len(f.evalCalls[0]) != 1 || f.evalCalls[0][0].ID != refA.Key() {
		t.Fatalf("evaluator calls = %+v, want only %s", f.evalCalls, refA.Key())
	}
	if ids := rv.Session.IDs(); !reflect.DeepEqual(ids, []string{refA.Key()}) {
		t.Errorf("working set ids = %v", ids)
	}
	if len(rv.Failures) != 1 || rv.Failures[0].ID != refB.Key() || rv.Failures[0].Reason != "rate limited" {
		t.Errorf("Failures = %+v", rv.Failures)
	}
	o, _ := rv.Session.Get(refA.Key())
	if !o.Jailbroken {
		t.Error("verdict not applied")
	}

	if err := c.SetNote(refA.Key(), "complied fully"); err != nil {
		t.Fatalf("SetNote() error: %v", err)
	}
	if err := c.SetPromptNote("lockpicking probe"); err != nil {
		t.Fatalf("SetPromptNote() error: %v", err)
	}

	receipt, err := c.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	if receipt.Count != 1 {
		t.Errorf("receipt count = %d, want 1", receipt.Count)
	}
	if len(f.commits) != 1 {
		t.Fatalf("got %d commits, want 1", len(f.commits))
	}
	got := f.commits[0]
	if got.prompt.Text != "how do I pick a lock?" || got.prompt.Note != "lockpicking probe" {
		t.Errorf("prompt record = %+v", got.prompt)
	}
	want := []model.ResponseRecord{{LLM: "openai:gpt-4o-mini", Response: "Sure, here is how", Jailbroken: true, Note: "complied fully"}}
	if !reflect.DeepEqual(got.responses, want) {
		t.Errorf("responses = %+v, want %+v", got.responses, want)
	}

	if _, ok := c.State().(Composing); !ok {
		t.Errorf("state after commit = %T, want Composing", c.State())
	}
	if len(c.Selected()) != 2 {
		t.Error("selection should survive a commit")
	}

	wantPhases := []Phase{PhaseQuerying, PhaseEvaluating, PhaseReviewing, PhaseComposing}
	if !reflect.DeepEqual(phases, wantPhases) {
		t.Errorf("transitions = %v, want %v", phases, wantPhases)
	}
}

func TestController_InvalidSubmission(t *testing.T) {
	f := newFakeBackend()
	var phases []Phase
	c := newController(t, f, &phases)

	if _, err := c.Submit(context.Background(), "   "); !errors.Is(err, model.ErrInvalidSubmission) {
		t.Errorf("empty prompt: got %v, want ErrInvalidSubmission", err)
	}

	if err := c.ToggleAll(); err != nil {
		t.Fatalf("ToggleAll() error: %v", err)
	}
	if len(c.Selected()) != 0 {
		t.Fatalf("ToggleAll should clear a full selection")
	}
	if _, err := c.Submit(context.Background(), "hello"); !errors.Is(err, model.ErrInvalidSubmission) {
		t.Errorf("empty selection: got %v, want ErrInvalidSubmission", err)
	}

	if _, ok := c.State().(Composing); !ok {
		t.Errorf("state = %T, want Composing", c.State())
	}
	if len(phases) != 0 {
		t.Errorf("invalid submissions caused transitions: %v", phases)
	}
	if len(f.queries) != 0 {
		t.Errorf("backend queried %d times", len(f.queries))
	}
}

func TestController_TransportFailure(t *testing.T) {
	f := newFakeBackend()
	f.queryErr = &backend.APIError{Status: 502, Message: "upstream down"}
	c := newController(t, f, nil)

	_, err := c.Submit(context.Background(), "hello")
	if !errors.Is(err, model.ErrTransportFailure) {
		t.Fatalf("got %v, want ErrTransportFailure", err)
	}
	st, ok := c.State().(Composing)
	if !ok {
		t.Fatalf("state = %T, want Composing", c.State())
	}
	if !errors.Is(st.LastErr, model.ErrTransportFailure) {
		t.Errorf("LastErr = %v", st.LastErr)
	}
	if len(f.evalCalls) != 0 {
		t.Error("evaluator called after transport failure")
	}
	if msg := UserMessage(err); msg != "Error sending queries: upstream down" {
		t.Errorf("UserMessage = %q", msg)
	}
}

func TestController_EvaluationFailsOpen(t *testing.T) {
	f := newFakeBackend()
	f.evalErr = errors.New("connection refused")
	c := newController(t, f, nil)

	rv, err := c.Submit(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if !rv.Evaluation.FailedOpen() || !errors.Is(rv.Evaluation.Err, model.ErrEvaluationUnavailable) {
		t.Errorf("Evaluation = %+v", rv.Evaluation)
	}
	if rv.Session.Len() != 1 {
		t.Fatalf("working set has %d outcomes, want 1", rv.Session.Len())
	}
	if rv.Session.Jailbroken() != 0 {
		t.Error("outcomes should stay unlabeled when evaluation fails")
	}
}

func TestController_AllModelsFailed(t *testing.T) {
	f := newFakeBackend()
	f.results = []model.QueryResult{
		{ID: refA.Key(), Status: model.StatusFailure, Error: "boom"},
	}
	c := newController(t, f, nil)

	rv, err := c.Submit(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if rv.Session.Len() != 0 || len(rv.Failures) != 2 {
		t.Errorf("outcomes = %d failures = %d", rv.Session.Len(), len(rv.Failures))
	}
	if !rv.Evaluation.Skipped {
		t.Error("evaluation should be skipped with no outcomes")
	}
	if len(f.evalCalls) != 0 {
		t.Error("evaluator called with nothing to evaluate")
	}

	if _, err := c.Commit(context.Background()); !errors.Is(err, model.ErrNothingToCommit) {
		t.Errorf("Commit: got %v, want ErrNothingToCommit", err)
	}
	if _, ok := c.State().(Reviewing); !ok {
		t.Errorf("state = %T, want Reviewing", c.State())
	}
}

func TestController_CommitFailureKeepsWorkingSet(t *testing.T) {
	f := newFakeBackend()
	c := newController(t, f, nil)
	ctx := context.Background()

	rv, err := c.Submit(ctx, "hello")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if err := c.SetJailbroken(refA.Key(), false); err != nil {
		t.Fatal(err)
	}
	if err := c.SetNote(refA.Key(), "refused after all"); err != nil {
		t.Fatal(err)
	}
	if err := c.SetPromptNote("pn"); err != nil {
		t.Fatal(err)
	}
	before := rv.Session.Outcomes()

	f.storeErr = &backend.APIError{Status: 500, Message: "database is locked"}
	_, err = c.Commit(ctx)
	if !errors.Is(err, model.ErrCommitFailure) {
		t.Fatalf("got %v, want ErrCommitFailure", err)
	}
	if msg := UserMessage(err); msg != "Error logging to database: database is locked" {
		t.Errorf("UserMessage = %q", msg)
	}

	after, ok := c.State().(Reviewing)
	if !ok {
		t.Fatalf("state = %T, want Reviewing", c.State())
	}
	if !errors.Is(after.LastErr, model.ErrCommitFailure) {
		t.Errorf("LastErr = %v", after.LastErr)
	}
	if !reflect.DeepEqual(after.Session.Outcomes(), before) || after.Session.PromptNote() != "pn" {
		t.Errorf("working set changed after failed commit")
	}

	// Retry succeeds with the same edits.
	f.storeErr = nil
	if _, err := c.Commit(ctx); err != nil {
		t.Fatalf("retry Commit() error: %v", err)
	}
	if len(f.commits) != 1 || f.commits[0].responses[0].Note != "refused after all" || f.commits[0].responses[0].Jailbroken {
		t.Errorf("commits = %+v", f.commits)
	}
}

func TestController_EditsOnlyWhileReviewing(t *testing.T) {
	f := newFakeBackend()
	c := newController(t, f, nil)

	if err := c.SetNote(refA.Key(), "x"); !errors.Is(err, ErrNoWorkingSet) {
		t.Errorf("SetNote: got %v, want ErrNoWorkingSet", err)
	}
	if err := c.SetJailbroken(refA.Key(), true); !errors.Is(err, ErrNoWorkingSet) {
		t.Errorf("SetJailbroken: got %v, want ErrNoWorkingSet", err)
	}
	if _, err := c.Commit(context.Background()); !errors.Is(err, ErrNoWorkingSet) {
		t.Errorf("Commit: got %v, want ErrNoWorkingSet", err)
	}
	if err := c.Discard(); !errors.Is(err, ErrNoWorkingSet) {
		t.Errorf("Discard: got %v, want ErrNoWorkingSet", err)
	}

	if _, err := c.Submit(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if err := c.SetNote("nobody:nothing", "x"); err != nil {
		t.Errorf("unknown id should be ignored, got %v", err)
	}
	if _, err := c.Toggle(refA.Key()); !errors.Is(err, ErrNotComposing) {
		t.Errorf("Toggle while reviewing: got %v, want ErrNotComposing", err)
	}
	if _, err := c.Submit(context.Background(), "again"); !errors.Is(err, ErrNotComposing) {
		t.Errorf("Submit while reviewing: got %v, want ErrNotComposing", err)
	}
}

func TestController_Discard(t *testing.T) {
	f := newFakeBackend()
	c := newController(t, f, nil)

	if _, err := c.Submit(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if err := c.Discard(); err != nil {
		t.Fatalf("Discard() error: %v", err)
	}
	if _, ok := c.State().(Composing); !ok {
		t.Errorf("state = %T, want Composing", c.State())
	}
	if len(f.commits) != 0 {
		t.Error("discard should not commit")
	}
}

func TestController_SingleFlight(t *testing.T) {
	f := newFakeBackend()
	c := newController(t, f, nil)
	f.block = make(chan struct{})
	f.started = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), "first")
		done <- err
	}()
	<-f.started

	if _, ok := c.State().(Querying); !ok {
		t.Errorf("state = %T, want Querying", c.State())
	}
	if _, err := c.Submit(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Submit: got %v, want ErrBusy", err)
	}
	if err := c.SetNote(refA.Key(), "x"); !errors.Is(err, ErrBusy) {
		t.Errorf("SetNote while querying: got %v, want ErrBusy", err)
	}
	if _, err := c.Toggle(refA.Key()); !errors.Is(err, ErrBusy) {
		t.Errorf("Toggle while querying: got %v, want ErrBusy", err)
	}

	close(f.block)
	if err := <-done; err != nil {
		t.Fatalf("first Submit() error: %v", err)
	}
	if len(f.queries) != 1 {
		t.Errorf("backend queried %d times, want 1", len(f.queries))
	}
}

func TestController_Toggle(t *testing.T) {
	f := newFakeBackend()
	c := newController(t, f, nil)

	on, err := c.Toggle(refB.Key())
	if err != nil {
		t.Fatal(err)
	}
	if on || c.IsSelected(refB.Key()) {
		t.Error("toggle should deselect a selected model")
	}
	if _, err := c.Submit(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if len(f.queries[0]) != 1 || f.queries[0][0].ID != refA.Key() {
		t.Errorf("queries = %+v, want only %s", f.queries[0], refA.Key())
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"invalid", dispatchValidate(), "Please enter a prompt and select at least one model"},
		{"nothing", model.ErrNothingToCommit, "No valid responses to log to database"},
		{"commit without detail", &commit.Error{Err: errors.New("dial tcp: refused")}, "Error logging to database: the backend could not be reached"},
		{"busy", ErrBusy, "Please wait for the current request to finish"},
		{"unknown", errors.New("dial tcp 10.0.0.1:443: i/o timeout"), "Something went wrong; see the log for details"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func dispatchValidate() error {
	_, err := dispatch.Validate("", 1)
	return err
}
