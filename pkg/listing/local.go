package listing

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// sixMonths matches the ls cutoff between "Jan _2 15:04" and "Jan _2  2006".
const sixMonths = 182 * 24 * time.Hour

// FormatLine renders local file metadata as a long-listing line, the same
// shape a server returns for LIST, so both panes go through Parse.
func FormatLine(info fs.FileInfo, now time.Time) string {
	owner, group, links := ownership(info)
	return fmt.Sprintf("%s %d %s %s %d %s %s",
		modeString(info.Mode()),
		links,
		owner,
		group,
		info.Size(),
		formatTime(info.ModTime(), now),
		info.Name(),
	)
}

// FromFileInfo builds an entry for a local file through FormatLine and
// Parse. The exact on-disk name is kept so that paths composed from it
// resolve even when the name has repeated spaces.
func FromFileInfo(info fs.FileInfo, now time.Time) (DirectoryEntry, error) {
	entry, err := Parse(FormatLine(info, now))
	if err != nil {
		return DirectoryEntry{}, err
	}
	entry.Name = info.Name()
	return entry, nil
}

// ReadLocalDir lists a local directory as DirectoryEntry values in
// directory order.
func ReadLocalDir(dir string) ([]DirectoryEntry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list local directory: %w", err)
	}

	now := time.Now()
	entries := make([]DirectoryEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			// Entry vanished between ReadDir and Lstat
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to stat %s: %w", filepath.Join(dir, de.Name()), err)
		}
		entry, err := FromFileInfo(info, now)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func modeString(m fs.FileMode) string {
	var t byte = '-'
	switch {
	case m.IsDir():
		t = 'd'
	case m&fs.ModeSymlink != 0:
		t = 'l'
	case m&fs.ModeNamedPipe != 0:
		t = 'p'
	case m&fs.ModeSocket != 0:
		t = 's'
	case m&fs.ModeCharDevice != 0:
		t = 'c'
	case m&fs.ModeDevice != 0:
		t = 'b'
	}
	// Perm().String() is "-rwxr-xr-x"; drop its type column
	return string(t) + m.Perm().String()[1:]
}

func formatTime(t, now time.Time) string {
	if now.Sub(t) > sixMonths || t.Sub(now) > time.Hour {
		return t.Format("Jan _2  2006")
	}
	return t.Format("Jan _2 15:04")
}
