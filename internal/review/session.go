// Package review holds the editable working set of one workflow cycle.
package review

import (
	"sync"

	"github.com/pennh4i/tentacool/internal/model"
)

// Session is the working set keyed by identity. Edits to unknown ids are
// no-ops: late UI events racing a state change must not fail the cycle.
type Session struct {
	mu         sync.RWMutex
	prompt     string
	promptNote string
	order      []string
	items      map[string]model.QueryOutcome
}

// New builds a session from evaluated outcomes. Repeated ids keep the first.
func New(prompt string, outcomes []model.QueryOutcome) *Session {
	s := &Session{
		prompt: prompt,
		items:  make(map[string]model.QueryOutcome, len(outcomes)),
	}
	for _, o := range outcomes {
		if _, dup := s.items[o.ID]; dup {
			continue
		}
		s.items[o.ID] = o
		s.order = append(s.order, o.ID)
	}
	return s
}

// Prompt returns the prompt text sent to every model.
func (s *Session) Prompt() string {
	return s.prompt
}

// PromptNote returns the note attached to the prompt.
func (s *Session) PromptNote() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.promptNote
}

// SetPromptNote replaces the note attached to the prompt.
func (s *Session) SetPromptNote(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promptNote = text
}

// SetNote overwrites the note of one outcome and reports whether id exists.
func (s *Session) SetNote(id, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.items[id]
	if !ok {
		return false
	}
	o.Note = text
	s.items[id] = o
	return true
}

// SetJailbroken overrides the label of one outcome and reports whether id
// exists.
func (s *Session) SetJailbroken(id string, jailbroken bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.items[id]
	if !ok {
		return false
	}
	o.Jailbroken = jailbroken
	s.items[id] = o
	return true
}

// Get returns the outcome stored under id.
func (s *Session) Get(id string) (model.QueryOutcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.items[id]
	return o, ok
}

// Len returns the number of outcomes in the working set.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Outcomes returns a copy of the working set in arrival order.
func (s *Session) Outcomes() []model.QueryOutcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.QueryOutcome, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// IDs returns the identity keys in arrival order.
func (s *Session) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Jailbroken counts outcomes currently labeled jailbroken.
func (s *Session) Jailbroken() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, o := range s.items {
		if o.Jailbroken {
			n++
		}
	}
	return n
}
