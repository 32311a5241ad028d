package browser

import (
	"errors"
	"strings"
	"sync"

	"github.com/quocson95/ftpane/pkg/listing"
	"github.com/rs/zerolog"
	"github.com/sahilm/fuzzy"
	"golang.org/x/text/unicode/norm"
)

// Affordances says which navigation actions make sense right now
type Affordances struct {
	Back bool
	Next bool
	Home bool
}

// Pane is one side of the browser. Every navigation does its I/O first
// and only then moves the path, history and cache together, so a failed
// listing leaves the pane exactly as it was. nav serializes navigations;
// mu guards the state and is never held across I/O, so readers stay
// responsive while a listing is in flight.
type Pane struct {
	nav     sync.Mutex
	mu      sync.Mutex
	name    string
	src     Source
	log     zerolog.Logger
	origin  string
	current string
	hist    *History
	entries []listing.DirectoryEntry
	cache   *DirCache
}

// NewPane creates a pane positioned at origin. It does no I/O; call
// Refresh for the first listing.
func NewPane(name string, src Source, origin string, log zerolog.Logger) *Pane {
	return &Pane{
		name:    name,
		src:     src,
		log:     log.With().Str("pane", name).Logger(),
		origin:  origin,
		current: origin,
		hist:    NewHistory(origin),
		cache:   NewDirCache(),
	}
}

func (p *Pane) Name() string { return p.name }

func (p *Pane) CurrentPath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Pane) OriginPath() string { return p.origin }

// History returns a copy of the visited paths
func (p *Pane) History() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hist.Paths()
}

func (p *Pane) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hist.Cursor()
}

// Entries returns a copy of the current listing
func (p *Pane) Entries() []listing.DirectoryEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]listing.DirectoryEntry(nil), p.entries...)
}

// Join builds a path inside the current directory
func (p *Pane) Join(name string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src.Join(p.current, name)
}

// IsDirectory reports whether path was a directory in the last listing
func (p *Pane) IsDirectory(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache.IsDirectory(path)
}

func (p *Pane) IsAtOrigin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current == p.origin
}

func (p *Pane) Affordances() Affordances {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Affordances{
		Back: p.hist.CanBack(),
		Next: p.hist.CanNext(),
		Home: p.current != p.origin,
	}
}

// WordList returns the child directory names of the current listing
func (p *Pane) WordList() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache.Words()
}

// Complete ranks the child directory names against prefix, best first
func (p *Pane) Complete(prefix string) []string {
	words := p.WordList()
	prefix = norm.NFC.String(prefix)
	if prefix == "" {
		return words
	}
	matches := fuzzy.Find(prefix, words)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Str)
	}
	return out
}

// Refresh lists the current directory again
func (p *Pane) Refresh() error {
	p.nav.Lock()
	defer p.nav.Unlock()

	cur := p.CurrentPath()
	entries, err := p.src.Open(cur)
	if err != nil {
		p.log.Error().Err(err).Str("path", cur).Msg("refresh failed")
		return err
	}
	p.commit(cur, entries, nil)
	return nil
}

// Enter moves into path if the last listing showed it as a directory.
// Unknown paths and the current directory are ignored; the bool reports
// whether the pane moved.
func (p *Pane) Enter(path string) (bool, error) {
	p.nav.Lock()
	defer p.nav.Unlock()

	p.mu.Lock()
	ignore := path == p.current || !p.cache.IsDirectory(path)
	p.mu.Unlock()
	if ignore {
		p.log.Debug().Str("path", path).Msg("enter ignored")
		return false, nil
	}
	return p.push(path)
}

// Goto moves to a typed path, absolute or relative to the current one.
// The target only has to exist as a directory on the source.
func (p *Pane) Goto(typed string) (bool, error) {
	typed = norm.NFC.String(strings.TrimSpace(typed))
	if typed == "" {
		return false, errors.New("empty path")
	}

	p.nav.Lock()
	defer p.nav.Unlock()

	cur := p.CurrentPath()
	target := p.src.Resolve(cur, typed)
	if target == cur {
		return false, nil
	}
	return p.push(target)
}

// push lists target and makes it the newest history entry. After Home
// the cursor can still point at target; then only the path moves back.
func (p *Pane) push(target string) (bool, error) {
	entries, err := p.src.Open(target)
	if err != nil {
		p.log.Error().Err(err).Str("path", target).Msg("enter failed")
		return false, err
	}
	p.commit(target, entries, func(h *History) {
		if h.Current() != target {
			h.Push(target)
		}
	})
	p.log.Debug().Str("path", target).Int("cursor", p.Cursor()).Msg("entered")
	return true, nil
}

// Back moves one step back in history
func (p *Pane) Back() error {
	p.nav.Lock()
	defer p.nav.Unlock()

	p.mu.Lock()
	target, err := p.hist.BackTarget()
	p.mu.Unlock()
	if err != nil {
		return err
	}
	entries, err := p.src.Open(target)
	if err != nil {
		return err
	}
	p.commit(target, entries, func(h *History) { h.StepBack() })
	return nil
}

// Next moves one step forward in history
func (p *Pane) Next() error {
	p.nav.Lock()
	defer p.nav.Unlock()

	p.mu.Lock()
	target, err := p.hist.NextTarget()
	p.mu.Unlock()
	if err != nil {
		return err
	}
	entries, err := p.src.Open(target)
	if err != nil {
		return err
	}
	p.commit(target, entries, func(h *History) { h.StepNext() })
	return nil
}

// Home jumps to the origin without touching history
func (p *Pane) Home() error {
	p.nav.Lock()
	defer p.nav.Unlock()

	entries, err := p.src.Open(p.origin)
	if err != nil {
		return err
	}
	p.commit(p.origin, entries, nil)
	return nil
}

// commit moves the path, history and cache in one step
func (p *Pane) commit(target string, entries []listing.DirectoryEntry, move func(*History)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if move != nil {
		move(p.hist)
	}
	p.current = target
	p.entries = entries
	p.cache.Rebuild(target, entries, p.src.Join)
}
