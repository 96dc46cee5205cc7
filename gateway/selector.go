package gateway

import (
	"log/slog"
	"strconv"
	"strings"
)

// SelectionHandler completes a multi-step command once the user has picked a
// candidate. ctx carries whatever the opening command stashed (reply
// recipient, message body).
type SelectionHandler func(statusID uint64, ctx map[string]string)

// PendingSelection is the single live numbered-choice dialog. At most one
// exists per session; opening a new one silently replaces the old.
type PendingSelection struct {
	Handler    string
	Candidates []uint64
	Context    map[string]string
}

// Selector runs the pending-selection state machine. It is only touched from
// the session event loop, so it carries no lock.
type Selector struct {
	handlers map[string]SelectionHandler
	pending  *PendingSelection
}

func NewSelector() *Selector {
	return &Selector{handlers: make(map[string]SelectionHandler)}
}

// Register installs the completion handler for a tag. Registration happens
// once at startup.
func (s *Selector) Register(tag string, h SelectionHandler) {
	s.handlers[tag] = h
}

// Open installs a new pending selection, unconditionally replacing any prior
// one.
func (s *Selector) Open(tag string, candidates []uint64, ctx map[string]string) {
	if s.pending != nil {
		slog.Debug("pending selection replaced", slog.String("old", s.pending.Handler), slog.String("new", tag))
	}
	s.pending = &PendingSelection{Handler: tag, Candidates: candidates, Context: ctx}
}

// Active reports whether a selection dialog is live.
func (s *Selector) Active() bool {
	return s.pending != nil
}

// Clear discards the pending selection, if any.
func (s *Selector) Clear() {
	s.pending = nil
}

// Handle consumes rawText as an answer to the pending selection. A valid pick
// (1-based, in range) invokes the handler, clears the selection, and returns
// true regardless of what the handler itself does. Anything else returns
// false and leaves the selection untouched; the caller decides whether to
// abandon it.
func (s *Selector) Handle(rawText string) bool {
	if s.pending == nil {
		return false
	}
	n, err := strconv.Atoi(strings.TrimSpace(rawText))
	if err != nil || n < 1 || n > len(s.pending.Candidates) {
		return false
	}
	sel := s.pending
	s.pending = nil
	h := s.handlers[sel.Handler]
	if h == nil {
		slog.Warn("no handler registered for selection", slog.String("tag", sel.Handler))
		return true
	}
	h(sel.Candidates[n-1], sel.Context)
	return true
}
