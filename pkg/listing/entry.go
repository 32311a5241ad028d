package listing

import (
	"fmt"
	"strconv"
	"strings"
)

// minFields is the token count of the shortest valid long-listing line:
// mode, links, owner, group, size, three date fields and a name.
const minFields = 9

// DirectoryEntry is one row of a Unix long listing
type DirectoryEntry struct {
	Mode       string // permission string, first char is the type flag
	LinkCount  int
	Owner      string
	Group      string
	SizeBytes  int64
	ModifiedAt string // free-form, server locale dependent
	Name       string
}

// IsDir reports whether the entry denotes a directory
func (e DirectoryEntry) IsDir() bool {
	return len(e.Mode) > 0 && e.Mode[0] == 'd'
}

// ParseError is returned when a listing line is not in long-listing format
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed listing line %q: %s", e.Line, e.Reason)
}

// Parse turns one line of LIST output into a DirectoryEntry.
//
// Fields are separated by runs of whitespace. Tokens 6-8 form the date and
// everything after them is the name, so names containing spaces survive
// (with inner runs of spaces collapsed to one).
func Parse(line string) (DirectoryEntry, error) {
	tokens := strings.Fields(line)
	if len(tokens) < minFields {
		return DirectoryEntry{}, &ParseError{
			Line:   line,
			Reason: fmt.Sprintf("expected at least %d fields, got %d", minFields, len(tokens)),
		}
	}

	links, err := strconv.Atoi(tokens[1])
	if err != nil {
		return DirectoryEntry{}, &ParseError{Line: line, Reason: "link count is not a number"}
	}
	size, err := strconv.ParseInt(tokens[4], 10, 64)
	if err != nil {
		return DirectoryEntry{}, &ParseError{Line: line, Reason: "size is not a number"}
	}

	return DirectoryEntry{
		Mode:       tokens[0],
		LinkCount:  links,
		Owner:      tokens[2],
		Group:      tokens[3],
		SizeBytes:  size,
		ModifiedAt: strings.Join(tokens[5:8], " "),
		Name:       strings.Join(tokens[8:], " "),
	}, nil
}

// IsTotalLine reports whether line is the "total N" header many servers
// print before the entries.
func IsTotalLine(line string) bool {
	tokens := strings.Fields(line)
	if len(tokens) != 2 || tokens[0] != "total" {
		return false
	}
	_, err := strconv.ParseInt(tokens[1], 10, 64)
	return err == nil
}
