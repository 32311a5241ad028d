package browser

import "github.com/quocson95/ftpane/pkg/listing"

// DirCache records which absolute paths the last listing showed as
// directories. It only ever describes one parent directory.
type DirCache struct {
	dirs  map[string]bool
	words []string
}

// NewDirCache returns an empty cache
func NewDirCache() *DirCache {
	return &DirCache{dirs: map[string]bool{}}
}

// Rebuild replaces the cache contents with the directories among entries,
// keyed by join(parent, name).
func (c *DirCache) Rebuild(parent string, entries []listing.DirectoryEntry, join func(elem ...string) string) {
	dirs := make(map[string]bool, len(entries))
	words := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || e.Name == "." || e.Name == ".." {
			continue
		}
		dirs[join(parent, e.Name)] = true
		words = append(words, e.Name)
	}
	c.dirs = dirs
	c.words = words
}

// IsDirectory reports whether p was a directory in the last listing
func (c *DirCache) IsDirectory(p string) bool {
	return c.dirs[p]
}

// Len is the number of known directories
func (c *DirCache) Len() int { return len(c.dirs) }

// Words returns the child directory names in listing order
func (c *DirCache) Words() []string {
	return append([]string(nil), c.words...)
}
