package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/quocson95/ftpane/pkg/ftp"
	"github.com/rs/zerolog"
)

// Conn is the private connection one transfer uses. *ftp.Conn satisfies it.
type Conn interface {
	Retr(path string, w io.Writer) (int64, error)
	Stor(path string, r io.Reader) (int64, error)
	Quit() error
	Close() error
}

// Dialer opens and logs in a fresh connection for one transfer
type Dialer func(ctx context.Context, ep Endpoint) (Conn, error)

// FTPDialer dials ep with the ftp package and logs in
func FTPDialer(log zerolog.Logger) Dialer {
	return func(ctx context.Context, ep Endpoint) (Conn, error) {
		c, err := ftp.Dial(ctx, ep.Addr(), ftp.WithTimeout(ep.Timeout), ftp.WithLogger(log))
		if err != nil {
			return nil, err
		}
		if err := c.Login(ep.User, ep.Password); err != nil {
			c.Close()
			return nil, err
		}
		return c, nil
	}
}

// Executor starts transfers. There is no limit on how many run at once.
type Executor struct {
	dial Dialer
	log  zerolog.Logger

	mu    sync.Mutex
	tasks map[string]*Task
	wg    sync.WaitGroup
}

// NewExecutor returns an executor that opens connections with dial
func NewExecutor(dial Dialer, log zerolog.Logger) *Executor {
	return &Executor{
		dial:  dial,
		log:   log,
		tasks: make(map[string]*Task),
	}
}

// StartDownload copies remoteSrc to localDst in the background.
// expectedSize is reported as the total until the transfer finishes.
func (e *Executor) StartDownload(ep Endpoint, remoteSrc, localDst string, expectedSize int64) *Task {
	t := e.newTask(Download, remoteSrc, localDst, expectedSize)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		f, err := os.Create(localDst)
		if err != nil {
			e.complete(t, &TransferError{TaskID: t.ID, Op: "create local file", Err: err})
			return
		}
		defer f.Close()
		e.transfer(t, ep, func(c Conn) error { return e.download(t, c, f) })
	}()
	return t
}

// StartUpload copies localSrc to remoteDst in the background. A negative
// expectedSize is replaced by the local file size.
func (e *Executor) StartUpload(ep Endpoint, localSrc, remoteDst string, expectedSize int64) *Task {
	t := e.newTask(Upload, localSrc, remoteDst, expectedSize)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		f, err := os.Open(localSrc)
		if err != nil {
			e.complete(t, &TransferError{TaskID: t.ID, Op: "open local file", Err: err})
			return
		}
		defer f.Close()
		if expectedSize < 0 {
			if info, err := f.Stat(); err == nil {
				t.total.Store(info.Size())
			}
		}
		e.transfer(t, ep, func(c Conn) error { return e.upload(t, c, f) })
	}()
	return t
}

// Active returns the transfers that have not finished
func (e *Executor) Active() []*Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Task, 0, len(e.tasks))
	for _, t := range e.tasks {
		out = append(out, t)
	}
	return out
}

// Wait blocks until every started transfer has finished
func (e *Executor) Wait() { e.wg.Wait() }

func (e *Executor) newTask(dir Direction, src, dst string, expected int64) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		ID:          uuid.NewString(),
		Direction:   dir,
		Source:      src,
		Destination: dst,
		events:      make(chan Event, eventBuffer),
		done:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	t.total.Store(expected)

	e.mu.Lock()
	e.tasks[t.ID] = t
	e.mu.Unlock()
	e.log.Info().Str("task", t.ID).Stringer("direction", dir).Str("src", src).Str("dst", dst).Int64("size", expected).Msg("transfer started")
	return t
}

// transfer dials a private connection, runs body on it and reports the
// outcome. Cancelling the task closes the connection under body.
func (e *Executor) transfer(t *Task, ep Endpoint, body func(Conn) error) {
	conn, err := e.dial(t.ctx, ep)
	if err != nil {
		e.complete(t, &TransferError{TaskID: t.ID, Op: "connect", Err: err})
		return
	}
	stop := context.AfterFunc(t.ctx, func() { conn.Close() })

	err = body(conn)
	stop()
	if err != nil && t.ctx.Err() != nil {
		err = &TransferError{TaskID: t.ID, Op: "complete transfer", Err: fmt.Errorf("%w: %w", context.Canceled, err)}
	}
	if err == nil {
		if qerr := conn.Quit(); qerr != nil {
			e.log.Debug().Err(qerr).Str("task", t.ID).Msg("quit after transfer")
		}
	} else {
		conn.Close()
	}
	e.complete(t, err)
}

func (e *Executor) complete(t *Task, err error) {
	e.mu.Lock()
	delete(e.tasks, t.ID)
	e.mu.Unlock()

	if err != nil {
		e.log.Error().Err(err).Str("task", t.ID).Int64("bytes", t.Transferred()).Msg("transfer failed")
	} else {
		e.log.Info().Str("task", t.ID).Int64("bytes", t.Transferred()).Msg("transfer completed")
	}
	t.finish(err)
}

func (e *Executor) download(t *Task, c Conn, f *os.File) error {
	n, err := c.Retr(t.Source, &progressWriter{w: f, onProgress: t.progress})
	closeErr := f.Close()
	if err != nil {
		return &TransferError{TaskID: t.ID, Op: "retrieve " + t.Source, Err: err}
	}
	if closeErr != nil {
		return &TransferError{TaskID: t.ID, Op: "close local file", Err: closeErr}
	}
	e.settleTotal(t, n)
	return nil
}

func (e *Executor) upload(t *Task, c Conn, f *os.File) error {
	n, err := c.Stor(t.Destination, &progressReader{r: f, onProgress: t.progress})
	if err != nil {
		return &TransferError{TaskID: t.ID, Op: "store " + t.Destination, Err: err}
	}
	e.settleTotal(t, n)
	return nil
}

// settleTotal makes the total match what was actually moved; listings can
// be stale by the time the transfer runs.
func (e *Executor) settleTotal(t *Task, n int64) {
	if want := t.total.Load(); want != n {
		e.log.Warn().Str("task", t.ID).Int64("expected", want).Int64("actual", n).Msg("size changed during transfer")
		t.total.Store(n)
	}
}

// progressReader wraps an io.Reader to track progress
type progressReader struct {
	r          io.Reader
	onProgress func(int64)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.onProgress(int64(n))
	}
	return n, err
}

// progressWriter wraps an io.Writer to track progress
type progressWriter struct {
	w          io.Writer
	onProgress func(int64)
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	if n > 0 {
		pw.onProgress(int64(n))
	}
	return n, err
}
