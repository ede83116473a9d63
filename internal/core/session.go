package core

import (
	"errors"
	"fmt"
	"sync"
)

// SessionState tracks an import interaction from first parse to submission.
type SessionState string

const (
	StateEmpty        SessionState = "empty"
	StateParsed       SessionState = "parsed"
	StatePreviewing   SessionState = "previewing"
	StatePreviewReady SessionState = "preview_ready"
	StateSubmitting   SessionState = "submitting"
	StateSubmitted    SessionState = "submitted"
	StateFailed       SessionState = "failed"
)

var ErrBadTransition = errors.New("invalid session transition")

// Session is an explicit state machine around the preview/submit flow. It
// enforces structurally that submission is only reachable from a ready
// preview with every conflict resolved, and it serializes overlapping
// preview requests with a generation counter: a preview response carrying a
// stale generation is discarded instead of overwriting newer input
// (last-write-wins made explicit).
type Session struct {
	mu         sync.Mutex
	state      SessionState
	lines      []InputLine
	preview    []PreviewLine
	generation uint64
	lastErr    error
}

func NewSession() *Session {
	return &Session{state: StateEmpty}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetLines installs a fresh parse result and invalidates any in-flight
// preview by bumping the generation.
func (s *Session) SetLines(lines []InputLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = lines
	s.preview = nil
	s.generation++
	if len(lines) == 0 {
		s.state = StateEmpty
		return
	}
	s.state = StateParsed
}

// Lines returns the current input rows.
func (s *Session) Lines() []InputLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines
}

// BeginPreview marks the session as previewing and returns the generation
// the caller must present back in CompletePreview.
func (s *Session) BeginPreview() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateParsed, StatePreviewing, StatePreviewReady, StateFailed:
		s.generation++
		s.state = StatePreviewing
		return s.generation, nil
	}
	return 0, fmt.Errorf("%w: preview from %s", ErrBadTransition, s.state)
}

// CompletePreview installs a preview result. It reports false, leaving the
// session untouched, when the generation is stale (the rows or the date
// changed while the request was in flight).
func (s *Session) CompletePreview(generation uint64, lines []PreviewLine) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return false
	}
	s.preview = lines
	s.state = StatePreviewReady
	return true
}

// Preview returns the current preview lines.
func (s *Session) Preview() []PreviewLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview
}

// Resolve sets the resolution of the preview line at index i.
func (s *Session) Resolve(i int, r Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePreviewReady {
		return fmt.Errorf("%w: resolve from %s", ErrBadTransition, s.state)
	}
	if i < 0 || i >= len(s.preview) {
		return fmt.Errorf("no preview line at index %d", i)
	}
	if !r.AllowedFor(s.preview[i].Status) {
		return ErrInvalidResolution
	}
	s.preview[i].Resolution = r
	return nil
}

// BeginSubmit transitions to submitting. It refuses when the preview is not
// ready or any conflict line is unresolved.
func (s *Session) BeginSubmit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePreviewReady {
		return fmt.Errorf("%w: submit from %s", ErrBadTransition, s.state)
	}
	for _, l := range s.preview {
		if !l.Resolved() {
			return ErrUnresolvedConflict
		}
	}
	s.state = StateSubmitting
	return nil
}

// CompleteSubmit clears the session after a successful persistence call.
func (s *Session) CompleteSubmit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSubmitting {
		return fmt.Errorf("%w: complete submit from %s", ErrBadTransition, s.state)
	}
	s.state = StateSubmitted
	s.lines = nil
	s.preview = nil
	s.lastErr = nil
	return nil
}

// FailSubmit records a failed persistence call. Input rows and the preview
// are kept so the user can retry without re-entering data.
func (s *Session) FailSubmit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateFailed
	s.lastErr = err
}

// LastError returns the error recorded by FailSubmit, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Reset discards all local state, as on modal close.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateEmpty
	s.lines = nil
	s.preview = nil
	s.lastErr = nil
	s.generation++
}
