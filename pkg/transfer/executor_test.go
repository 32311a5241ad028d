package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quocson95/ftpane/pkg/ftp/ftptest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*ftptest.Server, Endpoint) {
	t.Helper()
	srv, err := ftptest.NewServer("carol", "hunter2", "/data")
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv, Endpoint{
		Host:     "127.0.0.1",
		Port:     srv.Port(),
		Timeout:  2 * time.Second,
		User:     "carol",
		Password: "hunter2",
	}
}

// collect drains a task's events until the channel closes
func collect(t *testing.T, task *Task) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-task.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("task %s did not finish", task.ID)
		}
	}
}

func assertMonotonic(t *testing.T, events []Event) {
	t.Helper()
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Transferred, events[i-1].Transferred)
	}
}

func TestExecutor_Download(t *testing.T) {
	srv, ep := newServer(t)
	payload := bytes.Repeat([]byte("abcdefgh"), 64*1024)
	srv.AddFile("/data/big.bin", payload)
	srv.AddFile("/data/empty", nil)

	exec := NewExecutor(FTPDialer(zerolog.Nop()), zerolog.Nop())
	dir := t.TempDir()

	t.Run("Core Functionality: progress is monotonic and ends at total", func(t *testing.T) {
		dst := filepath.Join(dir, "big.bin")
		task := exec.StartDownload(ep, "/data/big.bin", dst, int64(len(payload)))
		events := collect(t, task)

		require.NotEmpty(t, events)
		assertMonotonic(t, events)
		last := events[len(events)-1]
		assert.Equal(t, Done, last.Status)
		assert.Equal(t, int64(len(payload)), last.Transferred)
		assert.Equal(t, last.Total, last.Transferred)
		for _, ev := range events[:len(events)-1] {
			assert.Equal(t, Running, ev.Status)
			assert.Equal(t, task.ID, ev.TaskID)
		}

		got, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
		assert.Equal(t, Done, task.Status())
	})

	t.Run("Edge Case: zero byte file emits exactly one DONE", func(t *testing.T) {
		task := exec.StartDownload(ep, "/data/empty", filepath.Join(dir, "empty"), 0)
		events := collect(t, task)

		require.Len(t, events, 1)
		assert.Equal(t, Done, events[0].Status)
		assert.Equal(t, int64(0), events[0].Transferred)
		assert.Equal(t, int64(0), events[0].Total)
		assert.NoError(t, events[0].Err)
	})

	t.Run("Error Handling: missing remote file", func(t *testing.T) {
		task := exec.StartDownload(ep, "/data/missing", filepath.Join(dir, "missing"), 10)
		events := collect(t, task)

		last := events[len(events)-1]
		assert.Equal(t, Failed, last.Status)
		var terr *TransferError
		require.True(t, errors.As(last.Err, &terr))
		assert.Equal(t, task.ID, terr.TaskID)
		assert.Equal(t, Failed, task.Status())
	})

	t.Run("Error Handling: unwritable destination fails without dialing", func(t *testing.T) {
		logins := srv.Logins()
		task := exec.StartDownload(ep, "/data/big.bin", filepath.Join(dir, "no", "such", "dir", "f"), 1)
		events := collect(t, task)

		require.Len(t, events, 1)
		assert.Equal(t, Failed, events[0].Status)
		var terr *TransferError
		require.True(t, errors.As(events[0].Err, &terr))
		assert.Equal(t, "create local file", terr.Op)
		assert.Equal(t, logins, srv.Logins())
	})

	t.Run("Error Handling: cut connection keeps the partial file", func(t *testing.T) {
		srv.FailRetrAfter("/data/big.bin", 1000)
		dst := filepath.Join(dir, "partial.bin")
		task := exec.StartDownload(ep, "/data/big.bin", dst, int64(len(payload)))
		events := collect(t, task)

		last := events[len(events)-1]
		assert.Equal(t, Failed, last.Status)
		assert.Equal(t, int64(1000), last.Transferred)

		info, err := os.Stat(dst)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), info.Size())
	})

	t.Run("Error Handling: bad credentials", func(t *testing.T) {
		bad := ep
		bad.Password = "nope"
		task := exec.StartDownload(bad, "/data/empty", filepath.Join(dir, "x"), 0)
		events := collect(t, task)

		var terr *TransferError
		require.True(t, errors.As(events[len(events)-1].Err, &terr))
		assert.Equal(t, "connect", terr.Op)
	})

	exec.Wait()
	assert.Empty(t, exec.Active())
}

func TestExecutor_Upload(t *testing.T) {
	srv, ep := newServer(t)
	exec := NewExecutor(FTPDialer(zerolog.Nop()), zerolog.Nop())
	dir := t.TempDir()

	t.Run("Core Functionality: upload with size from stat", func(t *testing.T) {
		src := filepath.Join(dir, "report.txt")
		content := strings.Repeat("quarterly numbers\n", 5000)
		require.NoError(t, os.WriteFile(src, []byte(content), 0644))

		task := exec.StartUpload(ep, src, "/data/report.txt", -1)
		events := collect(t, task)

		assertMonotonic(t, events)
		last := events[len(events)-1]
		require.Equal(t, Done, last.Status, "err: %v", last.Err)
		assert.Equal(t, int64(len(content)), last.Transferred)
		assert.Equal(t, int64(len(content)), last.Total)

		got, ok := srv.File("/data/report.txt")
		require.True(t, ok)
		assert.Equal(t, content, string(got))
	})

	t.Run("Error Handling: missing local file fails without dialing", func(t *testing.T) {
		before := srv.Logins()
		task := exec.StartUpload(ep, filepath.Join(dir, "ghost"), "/data/ghost", 0)
		events := collect(t, task)

		require.Len(t, events, 1)
		assert.Equal(t, Failed, events[0].Status)
		assert.True(t, errors.Is(events[0].Err, os.ErrNotExist))
		assert.Equal(t, before, srv.Logins())
	})

	t.Run("Error Handling: server rejects destination", func(t *testing.T) {
		src := filepath.Join(dir, "small")
		require.NoError(t, os.WriteFile(src, []byte("x"), 0644))

		task := exec.StartUpload(ep, src, "/nowhere/small", 1)
		events := collect(t, task)
		assert.Equal(t, Failed, events[len(events)-1].Status)
	})
}

func TestExecutor_PrivateConnections(t *testing.T) {
	srv, ep := newServer(t)
	for _, name := range []string{"a", "b", "c", "d"} {
		srv.AddFile("/data/"+name, bytes.Repeat([]byte(name), 4096))
	}
	exec := NewExecutor(FTPDialer(zerolog.Nop()), zerolog.Nop())
	dir := t.TempDir()

	var tasks []*Task
	for _, name := range []string{"a", "b", "c", "d"} {
		tasks = append(tasks, exec.StartDownload(ep, "/data/"+name, filepath.Join(dir, name), 4096))
	}

	for _, task := range tasks {
		events := collect(t, task)
		assert.Equal(t, Done, events[len(events)-1].Status)
	}

	assert.Equal(t, 4, srv.Logins())
}

// blockingConn hangs in Retr until it is closed
type blockingConn struct {
	once   sync.Once
	closed chan struct{}
}

func (b *blockingConn) Retr(string, io.Writer) (int64, error) {
	<-b.closed
	return 0, errors.New("use of closed connection")
}

func (b *blockingConn) Stor(string, io.Reader) (int64, error) { return 0, nil }
func (b *blockingConn) Quit() error                           { return b.Close() }
func (b *blockingConn) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

func TestTask_Cancel(t *testing.T) {
	conn := &blockingConn{closed: make(chan struct{})}
	dial := func(context.Context, Endpoint) (Conn, error) { return conn, nil }
	exec := NewExecutor(dial, zerolog.Nop())

	task := exec.StartDownload(Endpoint{}, "/remote", filepath.Join(t.TempDir(), "out"), 100)
	require.Len(t, exec.Active(), 1)
	task.Cancel()

	events := collect(t, task)
	last := events[len(events)-1]
	assert.Equal(t, Failed, last.Status)
	assert.ErrorIs(t, last.Err, context.Canceled)
	assert.ErrorIs(t, task.Err(), context.Canceled)

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel not closed")
	}
}

func TestTask_SlowReader(t *testing.T) {
	exec := NewExecutor(FTPDialer(zerolog.Nop()), zerolog.Nop())
	task := exec.newTask(Download, "/remote", "/local", 3*eventBuffer)
	for i := 0; i < 3*eventBuffer; i++ {
		task.progress(1)
	}
	task.finish(nil)

	events := collect(t, task)
	require.LessOrEqual(t, len(events), eventBuffer)
	assertMonotonic(t, events)

	last := events[len(events)-1]
	assert.Equal(t, Done, last.Status)
	beforeLast := events[len(events)-2]
	assert.Equal(t, Running, beforeLast.Status)
	assert.Equal(t, int64(3*eventBuffer), beforeLast.Transferred)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "DONE", Done.String())
	assert.Equal(t, "FAILED", Failed.String())
	assert.Equal(t, "RUNNING", Running.String())
	assert.True(t, Failed.Terminal())
	assert.False(t, Running.Terminal())
	assert.Equal(t, "UPLOAD", Upload.String())
}
