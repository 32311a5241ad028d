package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quocson95/ftpane/pkg/ftp"
	"github.com/quocson95/ftpane/pkg/ftp/ftptest"
	"github.com/quocson95/ftpane/pkg/listing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSource(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "projects", "go"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "todo.txt"), []byte("x"), 0644))

	src := NewLocalSource(root)

	t.Run("Core Functionality: pane over the local filesystem", func(t *testing.T) {
		p := NewPane("local", src, root, zerolog.Nop())
		require.NoError(t, p.Refresh())
		assert.Equal(t, []string{"projects"}, p.WordList())

		moved, err := p.Enter(filepath.Join(root, "projects"))
		require.NoError(t, err)
		assert.True(t, moved)
		assert.True(t, p.IsDirectory(filepath.Join(root, "projects", "go")))
	})

	t.Run("Error Handling: a file is not a directory", func(t *testing.T) {
		_, err := src.Open(filepath.Join(root, "todo.txt"))
		assert.Error(t, err)
	})

	t.Run("Input Validation: resolve", func(t *testing.T) {
		assert.Equal(t, root, src.Resolve("/elsewhere", "~"))
		assert.Equal(t, filepath.Join(root, "projects"), src.Resolve("/elsewhere", "~/projects"))
		assert.Equal(t, filepath.Join(root, "projects"), src.Resolve(root, "projects"))
		assert.Equal(t, "/tmp", src.Resolve(root, "/tmp/"))
	})
}

func remoteFixture(t *testing.T) (*ftptest.Server, *ftp.Conn) {
	t.Helper()
	srv, err := ftptest.NewServer("bob", "pw", "/srv")
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	srv.AddDir("/srv/pub/bin")
	srv.AddDir("/srv/incoming")
	srv.AddFile("/srv/pub/readme.txt", []byte("hello"))

	c, err := ftp.Dial(context.Background(), srv.Addr(), ftp.WithTimeout(2*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.Login("bob", "pw"))
	return srv, c
}

func TestRemoteSource(t *testing.T) {
	t.Run("Core Functionality: listing skips the total header", func(t *testing.T) {
		_, c := remoteFixture(t)
		src := NewRemoteSource(c, "/srv", zerolog.Nop())

		entries, err := src.Open("/srv/pub")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "bin", entries[0].Name)
		assert.True(t, entries[0].IsDir())
		assert.Equal(t, "readme.txt", entries[1].Name)
		assert.Equal(t, int64(5), entries[1].SizeBytes)

		wd, err := c.CurrentDir()
		require.NoError(t, err)
		assert.Equal(t, "/srv/pub", wd)
		assert.Equal(t, "/srv/pub", src.WorkingDir())
	})

	t.Run("Error Handling: missing directory keeps working dir", func(t *testing.T) {
		_, c := remoteFixture(t)
		src := NewRemoteSource(c, "/srv", zerolog.Nop())

		_, err := src.Open("/srv/nope")
		var perr *ftp.ProtocolError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, 550, perr.Code)
		assert.Equal(t, "/srv", src.WorkingDir())
	})

	t.Run("Error Handling: malformed line fails refresh and returns to previous dir", func(t *testing.T) {
		srv, c := remoteFixture(t)
		srv.SetListing("/srv/incoming", []string{"garbage line"})
		src := NewRemoteSource(c, "/srv", zerolog.Nop())

		_, err := src.Open("/srv/incoming")
		var perr *listing.ParseError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, "garbage line", perr.Line)

		wd, err := c.CurrentDir()
		require.NoError(t, err)
		assert.Equal(t, "/srv", wd)
		assert.Equal(t, "/srv", src.WorkingDir())
	})

	t.Run("Core Functionality: listed directory lands in the cache", func(t *testing.T) {
		srv, c := remoteFixture(t)
		srv.SetListing("/srv/incoming", []string{
			"total 2",
			"drwxr-xr-x 2 root wheel 1024 Nov 17 1993 lib",
		})
		p := NewPane("remote", NewRemoteSource(c, "/srv", zerolog.Nop()), "/srv", zerolog.Nop())
		require.NoError(t, p.Refresh())
		assert.False(t, p.IsDirectory("/srv/incoming/lib"))

		moved, err := p.Enter("/srv/incoming")
		require.NoError(t, err)
		require.True(t, moved)

		assert.Equal(t, []listing.DirectoryEntry{{
			Mode:       "drwxr-xr-x",
			LinkCount:  2,
			Owner:      "root",
			Group:      "wheel",
			SizeBytes:  1024,
			ModifiedAt: "Nov 17 1993",
			Name:       "lib",
		}}, p.Entries())
		assert.True(t, p.IsDirectory(p.Join("lib")))
		assert.True(t, p.IsDirectory("/srv/incoming/lib"))
	})

	t.Run("Core Functionality: remote pane navigation", func(t *testing.T) {
		_, c := remoteFixture(t)
		p := NewPane("remote", NewRemoteSource(c, "/srv", zerolog.Nop()), "/srv", zerolog.Nop())
		require.NoError(t, p.Refresh())
		assert.Equal(t, []string{"incoming", "pub"}, p.WordList())

		moved, err := p.Enter("/srv/pub")
		require.NoError(t, err)
		require.True(t, moved)
		require.NoError(t, p.Back())

		wd, err := c.CurrentDir()
		require.NoError(t, err)
		assert.Equal(t, p.CurrentPath(), wd)
	})
}
