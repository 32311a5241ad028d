package ftp

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/quocson95/ftpane/pkg/ftp/ftptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *ftptest.Server {
	t.Helper()
	srv, err := ftptest.NewServer("alice", "secret", "/home/alice")
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func dialLogin(t *testing.T, srv *ftptest.Server) *Conn {
	t.Helper()
	c, err := Dial(context.Background(), srv.Addr(), WithTimeout(2*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.Login("alice", "secret"))
	return c
}

func TestConn_LoginAndNavigate(t *testing.T) {
	srv := newTestServer(t)
	srv.AddDir("/home/alice/docs")

	t.Run("Core Functionality: PWD after login is home", func(t *testing.T) {
		c := dialLogin(t, srv)
		wd, err := c.CurrentDir()
		require.NoError(t, err)
		assert.Equal(t, "/home/alice", wd)
	})

	t.Run("Core Functionality: CWD into existing directory", func(t *testing.T) {
		c := dialLogin(t, srv)
		require.NoError(t, c.ChangeDir("/home/alice/docs"))
		wd, err := c.CurrentDir()
		require.NoError(t, err)
		assert.Equal(t, "/home/alice/docs", wd)
	})

	t.Run("Error Handling: CWD into missing directory", func(t *testing.T) {
		c := dialLogin(t, srv)
		err := c.ChangeDir("/nope")

		var perr *ProtocolError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, 550, perr.Code)
		assert.Equal(t, "CWD", perr.Command)
	})

	t.Run("Error Handling: wrong password", func(t *testing.T) {
		c, err := Dial(context.Background(), srv.Addr())
		require.NoError(t, err)
		defer c.Close()

		err = c.Login("alice", "wrong")
		var perr *ProtocolError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, 530, perr.Code)
		assert.NotContains(t, err.Error(), "wrong")
	})
}

func TestConn_List(t *testing.T) {
	srv := newTestServer(t)
	srv.SetListing("/home/alice", []string{
		"drwxr-xr-x 2 root wheel 1024 Nov 17 1993 lib",
		"",
		"-rw-r--r-- 1 root wheel 12 Nov 17 1993 read me.txt",
	})
	c := dialLogin(t, srv)

	t.Run("Core Functionality: raw lines, blanks skipped", func(t *testing.T) {
		var lines []string
		err := c.List(".", func(line string) error {
			lines = append(lines, line)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{
			"drwxr-xr-x 2 root wheel 1024 Nov 17 1993 lib",
			"-rw-r--r-- 1 root wheel 12 Nov 17 1993 read me.txt",
		}, lines)
	})

	t.Run("Error Handling: callback error aborts and keeps connection usable", func(t *testing.T) {
		stop := errors.New("stop")
		err := c.List(".", func(string) error { return stop })
		assert.ErrorIs(t, err, stop)

		_, err = c.CurrentDir()
		assert.NoError(t, err)
	})
}

func TestConn_RetrStor(t *testing.T) {
	srv := newTestServer(t)
	payload := bytes.Repeat([]byte("0123456789"), 10000)
	srv.AddFile("/home/alice/data.bin", payload)
	c := dialLogin(t, srv)

	t.Run("Core Functionality: download", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := c.Retr("/home/alice/data.bin", &buf)
		require.NoError(t, err)
		assert.Equal(t, int64(len(payload)), n)
		assert.Equal(t, payload, buf.Bytes())
	})

	t.Run("Core Functionality: upload", func(t *testing.T) {
		n, err := c.Stor("/home/alice/up.txt", bytes.NewReader([]byte("uploaded")))
		require.NoError(t, err)
		assert.Equal(t, int64(8), n)

		got, ok := srv.File("/home/alice/up.txt")
		require.True(t, ok)
		assert.Equal(t, "uploaded", string(got))
	})

	t.Run("Error Handling: missing remote file", func(t *testing.T) {
		_, err := c.Retr("/home/alice/missing", &bytes.Buffer{})
		var perr *ProtocolError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, 550, perr.Code)
	})

	t.Run("Error Handling: aborted transfer", func(t *testing.T) {
		srv.FailRetrAfter("/home/alice/data.bin", 100)
		var buf bytes.Buffer
		n, err := c.Retr("/home/alice/data.bin", &buf)
		require.Error(t, err)
		assert.Equal(t, int64(100), n)
	})
}

func TestPortArg(t *testing.T) {
	assert.Equal(t, "127,0,0,1,4,210", portArg(net.IPv4(127, 0, 0, 1).To4(), 1234))
}

func TestParsePwd(t *testing.T) {
	t.Run("Core Functionality: quoted path", func(t *testing.T) {
		p, err := parsePwd(`"/srv/ftp" is current directory`)
		require.NoError(t, err)
		assert.Equal(t, "/srv/ftp", p)
	})

	t.Run("Input Validation: doubled quotes", func(t *testing.T) {
		p, err := parsePwd(`"/a ""b""" created`)
		require.NoError(t, err)
		assert.Equal(t, `/a "b"`, p)
	})

	t.Run("Error Handling: no quotes", func(t *testing.T) {
		_, err := parsePwd("current directory unknown")
		assert.Error(t, err)
	})
}
