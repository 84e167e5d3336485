package console

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pennh4i/tentacool/internal/backend"
	"github.com/pennh4i/tentacool/internal/catalog"
	"github.com/pennh4i/tentacool/internal/commit"
	"github.com/pennh4i/tentacool/internal/dispatch"
	"github.com/pennh4i/tentacool/internal/evaluator"
	"github.com/pennh4i/tentacool/internal/model"
	"github.com/pennh4i/tentacool/internal/review"
	"github.com/pennh4i/tentacool/internal/workflow"
)

type stubCatalog struct{ listing *catalog.Listing }

func (s stubCatalog) ListModels(ctx context.Context) (*catalog.Listing, error) {
	return s.listing, nil
}

type stubDispatcher struct{}

func (stubDispatcher) Dispatch(ctx context.Context, prompt string, refs []model.ModelRef) (*dispatch.Result, error) {
	res := &dispatch.Result{Prompt: prompt}
	for _, r := range refs {
		res.Outcomes = append(res.Outcomes, model.QueryOutcome{
			ID: r.Key(), Provider: r.Provider, Model: r.ModelID, Prompt: prompt, Response: "answer from " + r.ModelID,
		})
	}
	return res, nil
}

type stubEvaluator struct{}

func (stubEvaluator) Evaluate(ctx context.Context, outcomes []model.QueryOutcome) ([]model.QueryOutcome, evaluator.Report) {
	return outcomes, evaluator.Report{Requested: len(outcomes)}
}

type stubCommitter struct {
	err   error
	calls int
	last  []model.ResponseRecord
}

func (s *stubCommitter) Commit(ctx context.Context, prompt string, session *review.Session) (*model.Receipt, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	_, s.last = commit.Build(prompt, session)
	return &model.Receipt{PromptID: "7", Count: len(s.last)}, nil
}

// newTestModel builds a console over a real controller with two models
// loaded, sized like a normal terminal.
func newTestModel(t *testing.T, committer *stubCommitter) *tuiModel {
	t.Helper()
	listing := &catalog.Listing{
		Providers: []string{"openai", "anthropic"},
		Models: map[string][]model.ModelRef{
			"openai":    {{Provider: "openai", ModelID: "gpt-4o"}},
			"anthropic": {{Provider: "anthropic", ModelID: "claude"}},
		},
	}
	ctrl := workflow.New(workflow.Options{
		Catalog:    stubCatalog{listing: listing},
		Dispatcher: stubDispatcher{},
		Evaluator:  stubEvaluator{},
		Committer:  committer,
		SelectAll:  true,
	})
	m := newModel(context.Background(), ctrl, DarkTheme())
	m.width, m.height = 120, 40

	// Init loads the catalog; run the load command synchronously.
	m.loading = true
	m.Update(m.doLoadCatalog()())
	if m.loading {
		t.Fatal("setup: catalog still loading")
	}
	return m
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// runCmd executes cmd and feeds the non-tick message it yields back into m.
func runCmd(m *tuiModel, cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if c == nil {
				continue
			}
			inner := c()
			switch inner.(type) {
			case submitMsg, commitMsg, catalogMsg:
				m.Update(inner)
			}
		}
		return
	}
	m.Update(msg)
}

func TestModelList_ToggleAndToggleAll(t *testing.T) {
	m := newTestModel(t, &stubCommitter{})

	if got := len(m.wf.Selected()); got != 2 {
		t.Fatalf("selected %d after load, want 2", got)
	}

	m.handleKey(key(" "))
	if m.wf.IsSelected("openai:gpt-4o") {
		t.Error("space should deselect the model under the cursor")
	}

	m.handleKey(key("a"))
	if got := len(m.wf.Selected()); got != 2 {
		t.Errorf("a with a partial selection should select all, got %d", got)
	}
	m.handleKey(key("a"))
	if got := len(m.wf.Selected()); got != 0 {
		t.Errorf("a with a full selection should clear, got %d", got)
	}
}

func TestModelList_CursorBounds(t *testing.T) {
	m := newTestModel(t, &stubCommitter{})
	m.handleKey(key("down"))
	m.handleKey(key("down"))
	if m.cursor != 1 {
		t.Errorf("cursor = %d, want 1", m.cursor)
	}
	m.handleKey(key("k"))
	m.handleKey(key("k"))
	if m.cursor != 0 {
		t.Errorf("cursor = %d, want 0", m.cursor)
	}
}

func TestSubmit_EmptyPromptShowsMessage(t *testing.T) {
	m := newTestModel(t, &stubCommitter{})

	_, cmd := m.handleKey(key("enter"))
	if cmd != nil {
		t.Error("invalid submission should not start a command")
	}
	if m.busy {
		t.Error("invalid submission should not mark the console busy")
	}
	if m.message != "Please enter a prompt and select at least one model" || !m.msgErr {
		t.Errorf("message = %q", m.message)
	}
	if _, ok := m.wf.State().(workflow.Composing); !ok {
		t.Errorf("state = %T, want Composing", m.wf.State())
	}
}

func TestSubmitReviewCommit(t *testing.T) {
	committer := &stubCommitter{}
	m := newTestModel(t, committer)

	m.handleKey(key("tab"))
	if m.focus != focusPrompt {
		t.Fatal("tab should focus the prompt")
	}
	m.prompt.SetValue("tell me a secret")

	_, cmd := m.handleKey(key("enter"))
	if !m.busy {
		t.Fatal("submit should mark the console busy")
	}
	// Keys other than quit are ignored while busy.
	m.handleKey(key("x"))

	runCmd(m, cmd)
	if m.busy {
		t.Fatal("console still busy after submit finished")
	}
	rv, ok := m.wf.State().(workflow.Reviewing)
	if !ok {
		t.Fatalf("state = %T, want Reviewing", m.wf.State())
	}
	if rv.Session.Len() != 2 {
		t.Fatalf("working set has %d outcomes", rv.Session.Len())
	}

	// Toggle the first response and give it a note.
	m.handleKey(key(" "))
	m.handleKey(key("n"))
	if m.edit != editNote {
		t.Fatal("n should open the note editor")
	}
	m.editInput.SetValue("leaked it")
	m.handleKey(key("enter"))
	if m.edit != editNone {
		t.Error("enter should close the editor")
	}

	m.handleKey(key("p"))
	m.editInput.SetValue("secrets probe")
	m.handleKey(key("enter"))

	first, _ := rv.Session.Get("openai:gpt-4o")
	if !first.Jailbroken || first.Note != "leaked it" {
		t.Errorf("first outcome = %+v", first)
	}
	if rv.Session.PromptNote() != "secrets probe" {
		t.Errorf("prompt note = %q", rv.Session.PromptNote())
	}

	view := m.View()
	if !strings.Contains(view, "JAILBROKEN") || !strings.Contains(view, "leaked it") {
		t.Errorf("review view missing label or note:\n%s", view)
	}

	_, cmd = m.handleKey(key("c"))
	runCmd(m, cmd)
	if committer.calls != 1 {
		t.Fatalf("commit calls = %d, want 1", committer.calls)
	}
	if _, ok := m.wf.State().(workflow.Composing); !ok {
		t.Errorf("state after commit = %T, want Composing", m.wf.State())
	}
	if m.message != "Logged prompt 7 with 2 responses" {
		t.Errorf("message = %q", m.message)
	}
	if m.prompt.Value() != "" {
		t.Error("prompt should be cleared after a commit")
	}
}

func TestCommitFailureKeepsReview(t *testing.T) {
	committer := &stubCommitter{err: &commit.Error{Err: &backend.APIError{Status: 500, Message: "disk full"}}}
	m := newTestModel(t, committer)

	m.prompt.SetValue("hello")
	_, cmd := m.submit()
	runCmd(m, cmd)

	_, cmd = m.handleKey(key("c"))
	runCmd(m, cmd)

	if _, ok := m.wf.State().(workflow.Reviewing); !ok {
		t.Fatalf("state = %T, want Reviewing", m.wf.State())
	}
	if m.message != "Error logging to database: disk full" || !m.msgErr {
		t.Errorf("message = %q", m.message)
	}
}

func TestEditCancel(t *testing.T) {
	m := newTestModel(t, &stubCommitter{})
	m.prompt.SetValue("hello")
	_, cmd := m.submit()
	runCmd(m, cmd)

	m.handleKey(key("n"))
	m.editInput.SetValue("discard me")
	m.handleKey(key("esc"))

	rv := m.wf.State().(workflow.Reviewing)
	if o, _ := rv.Session.Get("openai:gpt-4o"); o.Note != "" {
		t.Errorf("note = %q, want unchanged", o.Note)
	}
}

func TestDiscard(t *testing.T) {
	committer := &stubCommitter{}
	m := newTestModel(t, committer)
	m.prompt.SetValue("hello")
	_, cmd := m.submit()
	runCmd(m, cmd)

	m.handleKey(key("x"))
	if _, ok := m.wf.State().(workflow.Composing); !ok {
		t.Errorf("state = %T, want Composing", m.wf.State())
	}
	if committer.calls != 0 {
		t.Error("discard should not commit")
	}
}

func TestCatalogMessageListsOmissions(t *testing.T) {
	m := newTestModel(t, &stubCommitter{})
	m.Update(catalogMsg{listing: &catalog.Listing{
		Providers: []string{"openai"},
		Models:    map[string][]model.ModelRef{"openai": {{Provider: "openai", ModelID: "a"}}},
		Omitted:   []catalog.Omission{{Provider: "groq", Err: errors.New("x")}},
	}})
	if m.message != "Loaded 1 models; skipped groq" {
		t.Errorf("message = %q", m.message)
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		in     string
		max    int
		expect []string
	}{
		{"short", 10, []string{"short"}},
		{"hello world again", 11, []string{"hello", "world again"}},
		{"one\ntwo", 10, []string{"one", "two"}},
		{"abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
	}
	for _, tt := range tests {
		got := wrapText(tt.in, tt.max)
		if strings.Join(got, "|") != strings.Join(tt.expect, "|") {
			t.Errorf("wrapText(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.expect)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 5); got != "ab..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("héllo", 10); got != "héllo" {
		t.Errorf("truncate = %q", got)
	}
}
