package browser

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/quocson95/ftpane/pkg/listing"
	"github.com/rs/zerolog"
)

// Source is where a pane gets its listings from.
type Source interface {
	// Open makes dir the source's working directory and lists it. On error
	// the working directory is unchanged.
	Open(dir string) ([]listing.DirectoryEntry, error)
	// Resolve turns a typed path into a clean absolute path relative to cur.
	Resolve(cur, typed string) string
	Join(elem ...string) string
}

// LocalSource lists the local filesystem
type LocalSource struct {
	home string
}

// NewLocalSource returns a source that expands "~" to home
func NewLocalSource(home string) *LocalSource {
	return &LocalSource{home: home}
}

func (s *LocalSource) Open(dir string) ([]listing.DirectoryEntry, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("failed to open %s: not a directory", dir)
	}
	return listing.ReadLocalDir(dir)
}

func (s *LocalSource) Resolve(cur, typed string) string {
	switch {
	case typed == "~":
		return filepath.Clean(s.home)
	case strings.HasPrefix(typed, "~"+string(filepath.Separator)):
		return filepath.Join(s.home, typed[2:])
	case filepath.IsAbs(typed):
		return filepath.Clean(typed)
	}
	return filepath.Join(cur, typed)
}

func (s *LocalSource) Join(elem ...string) string { return filepath.Join(elem...) }

// RemoteConn is the part of the FTP control connection a RemoteSource
// needs. *ftp.Conn satisfies it.
type RemoteConn interface {
	ChangeDir(dir string) error
	List(path string, fn func(line string) error) error
}

// RemoteSource lists an FTP server. It changes the server working
// directory and lists ".", so the server side always sits where the pane
// says it is.
type RemoteSource struct {
	conn RemoteConn
	wd   string
	log  zerolog.Logger
}

// NewRemoteSource wraps conn whose working directory is currently wd
func NewRemoteSource(conn RemoteConn, wd string, log zerolog.Logger) *RemoteSource {
	return &RemoteSource{conn: conn, wd: wd, log: log}
}

// WorkingDir is the directory the server was last moved to
func (s *RemoteSource) WorkingDir() string { return s.wd }

func (s *RemoteSource) Open(dir string) ([]listing.DirectoryEntry, error) {
	prev := s.wd
	moved := dir != prev
	if moved {
		if err := s.conn.ChangeDir(dir); err != nil {
			return nil, fmt.Errorf("failed to change remote directory to %s: %w", dir, err)
		}
	}

	var entries []listing.DirectoryEntry
	err := s.conn.List(".", func(line string) error {
		if listing.IsTotalLine(line) {
			return nil
		}
		e, err := listing.Parse(line)
		if err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		if moved {
			if cerr := s.conn.ChangeDir(prev); cerr != nil {
				s.log.Warn().Err(cerr).Str("dir", prev).Msg("could not return to previous remote directory")
				s.wd = dir
			}
		}
		var perr *listing.ParseError
		if errors.As(err, &perr) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to list remote directory %s: %w", dir, err)
	}

	s.wd = dir
	return entries, nil
}

func (s *RemoteSource) Resolve(cur, typed string) string {
	if path.IsAbs(typed) {
		return path.Clean(typed)
	}
	return path.Join(cur, typed)
}

func (s *RemoteSource) Join(elem ...string) string { return path.Join(elem...) }
