// Package browser holds the per-pane navigation model: history with a
// cursor, the directory cache rebuilt on every listing, and the sources
// (local filesystem, remote FTP) a pane reads from.
package browser

import "fmt"

// NavigationError is returned when back or next is asked to move past
// either end of the history.
type NavigationError struct {
	Op     string // "back" or "next"
	Cursor int
	Len    int
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("cannot go %s: history cursor at %d of %d", e.Op, e.Cursor, e.Len)
}

// History is a linear list of visited paths with a cursor. Entering a new
// path from the middle of the list drops everything after the cursor.
// Lookups (BackTarget, NextTarget) are separate from moves (StepBack,
// StepNext) so callers can do I/O in between and only move on success.
type History struct {
	paths  []string
	cursor int
}

// NewHistory starts a history containing only origin
func NewHistory(origin string) *History {
	return &History{paths: []string{origin}}
}

func (h *History) Origin() string  { return h.paths[0] }
func (h *History) Cursor() int     { return h.cursor }
func (h *History) Len() int        { return len(h.paths) }
func (h *History) Current() string { return h.paths[h.cursor] }

// Paths returns a copy of the visited paths
func (h *History) Paths() []string {
	return append([]string(nil), h.paths...)
}

// CanBack reports whether there is an entry before the cursor
func (h *History) CanBack() bool { return h.cursor > 0 }

// CanNext reports whether there is an entry after the cursor
func (h *History) CanNext() bool { return h.cursor < len(h.paths)-1 }

// BackTarget returns the path StepBack would move to
func (h *History) BackTarget() (string, error) {
	if !h.CanBack() {
		return "", &NavigationError{Op: "back", Cursor: h.cursor, Len: len(h.paths)}
	}
	return h.paths[h.cursor-1], nil
}

// NextTarget returns the path StepNext would move to
func (h *History) NextTarget() (string, error) {
	if !h.CanNext() {
		return "", &NavigationError{Op: "next", Cursor: h.cursor, Len: len(h.paths)}
	}
	return h.paths[h.cursor+1], nil
}

// StepBack moves the cursor one entry back
func (h *History) StepBack() error {
	if _, err := h.BackTarget(); err != nil {
		return err
	}
	h.cursor--
	return nil
}

// StepNext moves the cursor one entry forward
func (h *History) StepNext() error {
	if _, err := h.NextTarget(); err != nil {
		return err
	}
	h.cursor++
	return nil
}

// Push discards the entries after the cursor, appends p and moves the
// cursor onto it.
func (h *History) Push(p string) {
	h.paths = append(h.paths[:h.cursor+1:h.cursor+1], p)
	h.cursor = len(h.paths) - 1
}
