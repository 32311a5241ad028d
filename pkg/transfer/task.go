// Package transfer runs uploads and downloads, each on its own goroutine
// and its own FTP connection, and reports progress as a stream of events.
package transfer

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Direction of a transfer
type Direction int

const (
	Download Direction = iota
	Upload
)

func (d Direction) String() string {
	switch d {
	case Download:
		return "DOWNLOAD"
	case Upload:
		return "UPLOAD"
	}
	return "Direction(" + strconv.Itoa(int(d)) + ")"
}

// Status of a transfer
type Status int32

const (
	Running Status = iota
	Done
	Failed
)

func (s Status) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	}
	return "Status(" + strconv.Itoa(int(s)) + ")"
}

// Terminal reports whether no more events follow
func (s Status) Terminal() bool { return s == Done || s == Failed }

// Endpoint is the connection snapshot a transfer dials with
type Endpoint struct {
	Host     string
	Port     int
	Timeout  time.Duration
	User     string
	Password string
}

// Addr is host:port
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Event is one progress report. Transferred is cumulative.
type Event struct {
	TaskID      string
	Direction   Direction
	Status      Status
	Transferred int64
	Total       int64
	Err         error
}

// TransferError wraps whatever ended a transfer early
type TransferError struct {
	TaskID string
	Op     string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s: failed to %s: %v", e.TaskID, e.Op, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// eventBuffer is the per-task channel capacity. One slot is always kept
// free for the terminal event.
const eventBuffer = 64

// Task is a single running or finished transfer
type Task struct {
	ID          string
	Direction   Direction
	Source      string
	Destination string

	total       atomic.Int64
	transferred atomic.Int64
	status      atomic.Int32

	events chan Event
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

// Events yields progress events in order, ending with one DONE or FAILED
// event, after which the channel is closed. When the reader falls behind,
// older progress events are replaced by newer ones; the latest count and
// the terminal event are always delivered.
func (t *Task) Events() <-chan Event { return t.events }

// Done is closed once the task has finished
func (t *Task) Done() <-chan struct{} { return t.done }

func (t *Task) Status() Status     { return Status(t.status.Load()) }
func (t *Task) Transferred() int64 { return t.transferred.Load() }
func (t *Task) Total() int64       { return t.total.Load() }

// Err is the failure cause once the task is FAILED
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Cancel aborts the transfer by closing its connection. The task then
// ends FAILED.
func (t *Task) Cancel() { t.cancel() }

func (t *Task) event(status Status, err error) Event {
	return Event{
		TaskID:      t.ID,
		Direction:   t.Direction,
		Status:      status,
		Transferred: t.transferred.Load(),
		Total:       t.total.Load(),
		Err:         err,
	}
}

// progress adds n bytes and emits a RUNNING event. When the reader falls
// behind, the oldest queued progress event gives way to the new one so the
// last slot stays free for the terminal event.
func (t *Task) progress(n int64) {
	if n <= 0 {
		return
	}
	t.transferred.Add(n)
	if len(t.events) >= cap(t.events)-1 {
		select {
		case <-t.events:
		default:
		}
	}
	t.events <- t.event(Running, nil)
}

// finish records the outcome and emits the terminal event
func (t *Task) finish(err error) {
	status := Done
	if err != nil {
		status = Failed
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
	}
	t.status.Store(int32(status))
	t.events <- t.event(status, err)
	close(t.events)
	close(t.done)
	t.cancel()
}
