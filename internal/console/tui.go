// Package console is the interactive terminal front end of the workflow.
package console

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pennh4i/tentacool/internal/catalog"
	"github.com/pennh4i/tentacool/internal/model"
	"github.com/pennh4i/tentacool/internal/workflow"
)

// Workflow is the part of workflow.Controller the console drives.
type Workflow interface {
	State() workflow.State
	Listing() *catalog.Listing
	LoadCatalog(ctx context.Context) (*catalog.Listing, error)
	Toggle(key string) (bool, error)
	ToggleAll() error
	IsSelected(key string) bool
	Selected() []model.ModelRef
	Submit(ctx context.Context, prompt string) (workflow.Reviewing, error)
	SetNote(id, text string) error
	SetJailbroken(id string, jailbroken bool) error
	SetPromptNote(text string) error
	Commit(ctx context.Context) (*model.Receipt, error)
	Discard() error
}

type focusPanel int

const (
	focusModels focusPanel = iota
	focusPrompt
)

type editTarget int

const (
	editNone editTarget = iota
	editNote
	editPromptNote
)

// messages
type catalogMsg struct {
	listing *catalog.Listing
	err     error
}

type submitMsg struct {
	err error
}

type commitMsg struct {
	receipt *model.Receipt
	err     error
}

// TUI runs the interactive console.
type TUI struct {
	Workflow Workflow
	Theme    Theme
}

type tuiModel struct {
	wf     Workflow
	ctx    context.Context
	styles styles

	// compose
	focus  focusPanel
	cursor int
	prompt textinput.Model

	// review
	reviewCursor int
	edit         editTarget
	editInput    textinput.Model
	editID       string

	spinner spinner.Model
	busy    bool
	loading bool
	message string
	msgErr  bool

	width  int
	height int
}

// Run starts the console and blocks until the user quits.
func (t *TUI) Run(ctx context.Context) error {
	m := newModel(ctx, t.Workflow, t.Theme)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func newModel(ctx context.Context, wf Workflow, theme Theme) *tuiModel {
	prompt := textinput.New()
	prompt.Placeholder = "Type a prompt and press Enter..."
	prompt.CharLimit = 0
	prompt.Width = 80

	edit := textinput.New()
	edit.CharLimit = 2048
	edit.Width = 80

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &tuiModel{
		wf:        wf,
		ctx:       ctx,
		styles:    newStyles(theme),
		prompt:    prompt,
		editInput: edit,
		spinner:   sp,
	}
}

func (m *tuiModel) Init() tea.Cmd {
	m.loading = true
	return tea.Batch(m.doLoadCatalog(), m.spinner.Tick)
}

func (m *tuiModel) doLoadCatalog() tea.Cmd {
	wf, ctx := m.wf, m.ctx
	return func() tea.Msg {
		listing, err := wf.LoadCatalog(ctx)
		return catalogMsg{listing: listing, err: err}
	}
}

func (m *tuiModel) doSubmit(prompt string) tea.Cmd {
	wf, ctx := m.wf, m.ctx
	return func() tea.Msg {
		_, err := wf.Submit(ctx, prompt)
		return submitMsg{err: err}
	}
}

func (m *tuiModel) doCommit() tea.Cmd {
	wf, ctx := m.wf, m.ctx
	return func() tea.Msg {
		receipt, err := wf.Commit(ctx)
		return commitMsg{receipt: receipt, err: err}
	}
}

func (m *tuiModel) setMessage(msg string) {
	m.message = msg
	m.msgErr = false
}

func (m *tuiModel) setError(err error) {
	m.message = workflow.UserMessage(err)
	m.msgErr = true
}

// models returns the catalog in display order.
func (m *tuiModel) models() []model.ModelRef {
	return m.wf.Listing().All()
}

// reviewing returns the current working set, if any.
func (m *tuiModel) reviewing() (workflow.Reviewing, bool) {
	rv, ok := m.wf.State().(workflow.Reviewing)
	return rv, ok
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.prompt.Width = max(msg.Width-4, 20)
		m.editInput.Width = max(msg.Width-4, 20)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case catalogMsg:
		m.loading = false
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.cursor = 0
		if n := len(msg.listing.Omitted); n > 0 {
			names := make([]string, n)
			for i, o := range msg.listing.Omitted {
				names[i] = o.Provider
			}
			m.setMessage(fmt.Sprintf("Loaded %d models; skipped %s", msg.listing.Len(), strings.Join(names, ", ")))
		} else {
			m.setMessage(fmt.Sprintf("Loaded %d models", msg.listing.Len()))
		}
		return m, nil

	case submitMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.reviewCursor = 0
		m.prompt.Blur()
		rv, _ := m.reviewing()
		switch {
		case rv.Evaluation.FailedOpen():
			m.setError(rv.Evaluation.Err)
		case rv.Session != nil && rv.Session.Len() == 0:
			m.setMessage("No model returned a usable response")
		default:
			m.setMessage("")
		}
		return m, nil

	case commitMsg:
		m.busy = false
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.setMessage(fmt.Sprintf("Logged prompt %s with %d responses", msg.receipt.PromptID, msg.receipt.Count))
		m.prompt.SetValue("")
		m.focus = focusPrompt
		return m, m.prompt.Focus()
	}

	return m, nil
}

func (m *tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.busy || m.loading {
		if msg.String() == "q" {
			return m, tea.Quit
		}
		return m, nil
	}
	if m.edit != editNone {
		return m.handleEditKey(msg)
	}
	if _, ok := m.reviewing(); ok {
		return m.handleReviewKey(msg)
	}
	if m.focus == focusPrompt {
		return m.handlePromptKey(msg)
	}
	return m.handleModelListKey(msg)
}

func (m *tuiModel) handleModelListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	refs := m.models()
	switch msg.String() {
	case "q":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(refs)-1 {
			m.cursor++
		}

	case " ", "x":
		if m.cursor < len(refs) {
			if _, err := m.wf.Toggle(refs[m.cursor].Key()); err != nil {
				m.setError(err)
			}
		}

	case "a":
		if err := m.wf.ToggleAll(); err != nil {
			m.setError(err)
		}

	case "r":
		m.loading = true
		m.setMessage("")
		return m, tea.Batch(m.doLoadCatalog(), m.spinner.Tick)

	case "tab", "i", "p":
		m.focus = focusPrompt
		return m, m.prompt.Focus()

	case "enter":
		return m.submit()
	}
	return m, nil
}

func (m *tuiModel) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "tab":
		m.focus = focusModels
		m.prompt.Blur()
		return m, nil

	case "enter":
		return m.submit()
	}

	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

// submit validates locally so an invalid submission never shows the spinner.
func (m *tuiModel) submit() (tea.Model, tea.Cmd) {
	text := m.prompt.Value()
	if strings.TrimSpace(text) == "" || len(m.wf.Selected()) == 0 {
		m.setError(model.ErrInvalidSubmission)
		return m, nil
	}
	m.busy = true
	m.setMessage("")
	return m, tea.Batch(m.doSubmit(text), m.spinner.Tick)
}

func (m *tuiModel) handleReviewKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rv, _ := m.reviewing()
	ids := rv.Session.IDs()

	switch msg.String() {
	case "q":
		return m, tea.Quit

	case "up", "k":
		if m.reviewCursor > 0 {
			m.reviewCursor--
		}

	case "down", "j":
		if m.reviewCursor < len(ids)-1 {
			m.reviewCursor++
		}

	case " ":
		if m.reviewCursor < len(ids) {
			id := ids[m.reviewCursor]
			o, _ := rv.Session.Get(id)
			if err := m.wf.SetJailbroken(id, !o.Jailbroken); err != nil {
				m.setError(err)
			}
		}

	case "n":
		if m.reviewCursor < len(ids) {
			id := ids[m.reviewCursor]
			o, _ := rv.Session.Get(id)
			return m, m.startEdit(editNote, id, o.Note, "Note for "+id)
		}

	case "p":
		return m, m.startEdit(editPromptNote, "", rv.Session.PromptNote(), "Note for the prompt")

	case "c":
		m.busy = true
		m.setMessage("")
		return m, tea.Batch(m.doCommit(), m.spinner.Tick)

	case "x":
		if err := m.wf.Discard(); err != nil {
			m.setError(err)
			return m, nil
		}
		m.setMessage("Results discarded")
		m.focus = focusPrompt
		return m, m.prompt.Focus()
	}
	return m, nil
}

func (m *tuiModel) startEdit(target editTarget, id, value, placeholder string) tea.Cmd {
	m.edit = target
	m.editID = id
	m.editInput.Placeholder = placeholder
	m.editInput.SetValue(value)
	m.editInput.CursorEnd()
	return m.editInput.Focus()
}

func (m *tuiModel) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.edit = editNone
		m.editInput.Blur()
		return m, nil

	case "enter":
		var err error
		switch m.edit {
		case editNote:
			err = m.wf.SetNote(m.editID, m.editInput.Value())
		case editPromptNote:
			err = m.wf.SetPromptNote(m.editInput.Value())
		}
		m.edit = editNone
		m.editInput.Blur()
		if err != nil {
			m.setError(err)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.editInput, cmd = m.editInput.Update(msg)
	return m, cmd
}

func (m *tuiModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	switch st := m.wf.State().(type) {
	case workflow.Querying:
		m.viewHeader(&b, "")
		fmt.Fprintf(&b, "\n  %s Querying %d models...\n", m.spinner.View(), st.Models)
	case workflow.Evaluating:
		m.viewHeader(&b, "")
		fmt.Fprintf(&b, "\n  %s Evaluating %d responses...\n", m.spinner.View(), st.Outcomes)
	case workflow.Reviewing:
		m.viewReview(&b, st)
	default:
		m.viewCompose(&b)
	}

	if m.message != "" {
		b.WriteString("\n")
		if m.msgErr {
			b.WriteString(m.styles.err.Render(m.message))
		} else {
			b.WriteString(m.styles.dim.Render(m.message))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *tuiModel) viewHeader(b *strings.Builder, hints string) {
	b.WriteString(m.styles.title.Render("tentacool"))
	if hints != "" {
		b.WriteString("  ")
		b.WriteString(m.styles.dim.Render(hints))
	}
	if m.busy || m.loading {
		b.WriteString("  ")
		b.WriteString(m.styles.busy.Render(m.spinner.View() + " working..."))
	}
	b.WriteString("\n")
}

func (m *tuiModel) viewCompose(b *strings.Builder) {
	if m.focus == focusPrompt {
		m.viewHeader(b, "Enter=send  Tab/Esc=models  ctrl+c=quit")
	} else {
		m.viewHeader(b, "space=toggle  a=all  Tab=prompt  Enter=send  r=reload  q=quit")
	}

	refs := m.models()
	fmt.Fprintf(b, "%s\n", m.styles.header.Render(fmt.Sprintf("Models (%d/%d selected)", len(m.wf.Selected()), len(refs))))

	if len(refs) == 0 {
		if m.loading {
			b.WriteString("  Loading models...\n")
		} else {
			b.WriteString("  No models available.\n")
		}
	}

	// Keep the cursor visible when the list is taller than the screen.
	listHeight := max(m.height-8, 3)
	start := 0
	if m.cursor >= listHeight {
		start = m.cursor - listHeight + 1
	}
	end := min(start+listHeight, len(refs))

	for i := start; i < end; i++ {
		ref := refs[i]
		box := "[ ]"
		if m.wf.IsSelected(ref.Key()) {
			box = "[x]"
		}
		line := fmt.Sprintf("%s %s", box, ref.Key())
		if i == m.cursor && m.focus == focusModels {
			b.WriteString(m.styles.selected.Render("> " + line))
		} else {
			b.WriteString("  " + m.styles.text.Render(line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.styles.header.Render("Prompt"))
	b.WriteString("\n")
	b.WriteString(m.prompt.View())
	b.WriteString("\n")
}

func (m *tuiModel) viewReview(b *strings.Builder, rv workflow.Reviewing) {
	if m.edit != editNone {
		m.viewHeader(b, "Enter=save  Esc=cancel")
	} else {
		m.viewHeader(b, "space=toggle jailbroken  n=note  p=prompt note  c=log to database  x=discard  q=quit")
	}

	width := max(m.width-4, 20)
	s := rv.Session

	b.WriteString(m.styles.header.Render("Prompt"))
	b.WriteString("\n")
	for _, line := range wrapText(rv.Prompt, width) {
		b.WriteString("  " + m.styles.text.Render(line) + "\n")
	}
	if note := s.PromptNote(); note != "" {
		b.WriteString("  " + m.styles.dim.Render("note: "+truncate(note, width-6)) + "\n")
	}
	b.WriteString("\n")

	b.WriteString(m.styles.header.Render(fmt.Sprintf("Responses (%d, %d jailbroken)", s.Len(), s.Jailbroken())))
	b.WriteString("\n")
	ids := s.IDs()
	if len(ids) == 0 {
		b.WriteString("  No usable responses.\n")
	}
	for i, id := range ids {
		o, _ := s.Get(id)
		label := m.styles.safe.Render("safe      ")
		if o.Jailbroken {
			label = m.styles.jailbroken.Render("JAILBROKEN")
		}
		row := fmt.Sprintf("%s %s", label, id)
		if o.Note != "" {
			row += m.styles.dim.Render("  (" + truncate(o.Note, 40) + ")")
		}
		if i == m.reviewCursor {
			b.WriteString(m.styles.selected.Render(">") + " " + row)
		} else {
			b.WriteString("  " + row)
		}
		b.WriteString("\n")
	}

	if m.reviewCursor < len(ids) {
		o, _ := s.Get(ids[m.reviewCursor])
		b.WriteString("\n")
		b.WriteString(m.styles.header.Render("Response from " + o.ID))
		b.WriteString("\n")
		lines := wrapText(o.Response, width)
		maxLines := max(m.height-len(ids)-14, 3)
		if len(lines) > maxLines {
			lines = append(lines[:maxLines], "...")
		}
		for _, line := range lines {
			b.WriteString("  " + line + "\n")
		}
	}

	if len(rv.Failures) > 0 {
		b.WriteString("\n")
		b.WriteString(m.styles.header.Render(fmt.Sprintf("Failed (%d)", len(rv.Failures))))
		b.WriteString("\n")
		for _, f := range rv.Failures {
			b.WriteString("  " + m.styles.err.Render(truncate(f.ID+": "+f.Reason, width)) + "\n")
		}
	}

	if m.edit != editNone {
		b.WriteString("\n")
		b.WriteString(m.editInput.View())
		b.WriteString("\n")
	}
}

// truncate shortens s to at most maxLen runes.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:max(maxLen, 0)])
	}
	return string(r[:maxLen-3]) + "..."
}

// wrapText wraps s into lines of at most maxLen cells, breaking at spaces
// and keeping existing line breaks.
func wrapText(s string, maxLen int) []string {
	if maxLen <= 0 {
		return []string{s}
	}
	var lines []string
	for _, para := range strings.Split(s, "\n") {
		if para == "" {
			lines = append(lines, "")
			continue
		}
		for para != "" {
			if lipgloss.Width(para) <= maxLen {
				lines = append(lines, para)
				break
			}
			r := []rune(para)
			cut := min(maxLen, len(r))
			if idx := strings.LastIndex(string(r[:cut]), " "); idx > 0 {
				cut = len([]rune(string(r[:cut])[:idx]))
			}
			lines = append(lines, string(r[:cut]))
			para = strings.TrimLeft(string(r[cut:]), " ")
		}
	}
	return lines
}
