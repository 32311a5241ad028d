// Package ftp is a minimal FTP client that always uses active mode data
// connections (PORT/EPRT) and hands LIST output back as raw lines.
package ftp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout applies to every control reply and data read/write.
const DefaultTimeout = 10 * time.Second

// ProtocolError is a reply whose code was not the one the command expects
type ProtocolError struct {
	Command string // verb only, arguments are never included
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: server replied %d %s", e.Command, e.Code, e.Message)
}

// Conn is one FTP control connection.
// It is not safe for concurrent use.
type Conn struct {
	conn    net.Conn
	text    *textproto.Conn
	timeout time.Duration
	log     zerolog.Logger
}

type dialOptions struct {
	timeout time.Duration
	log     zerolog.Logger
	dialer  *net.Dialer
}

// DialOption configures Dial
type DialOption func(*dialOptions)

// WithTimeout sets the connect, reply and data timeout
func WithTimeout(d time.Duration) DialOption {
	return func(o *dialOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the logger used for protocol tracing
func WithLogger(l zerolog.Logger) DialOption {
	return func(o *dialOptions) { o.log = l }
}

// Dial opens a control connection to addr ("host:port") and reads the
// server greeting.
func Dial(ctx context.Context, addr string, opts ...DialOption) (*Conn, error) {
	o := dialOptions{timeout: DefaultTimeout, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dialer == nil {
		o.dialer = &net.Dialer{Timeout: o.timeout}
	}

	nc, err := o.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	c := &Conn{
		conn:    nc,
		text:    textproto.NewConn(nc),
		timeout: o.timeout,
		log:     o.log.With().Str("addr", addr).Logger(),
	}

	if _, _, err := c.readReply("greeting", 2); err != nil {
		nc.Close()
		return nil, err
	}
	c.log.Debug().Msg("control connection ready")
	return c, nil
}

// Login sends USER and, when asked for one, PASS
func (c *Conn) Login(user, password string) error {
	code, msg, err := c.cmd("USER", 0, "USER %s", user)
	if err != nil {
		return err
	}
	switch code {
	case 230:
		return nil
	case 331:
		_, _, err = c.cmd("PASS", 2, "PASS %s", password)
		return err
	default:
		return &ProtocolError{Command: "USER", Code: code, Message: msg}
	}
}

// CurrentDir returns the server working directory (PWD)
func (c *Conn) CurrentDir() (string, error) {
	_, msg, err := c.cmd("PWD", 257, "PWD")
	if err != nil {
		return "", err
	}
	return parsePwd(msg)
}

// ChangeDir changes the server working directory (CWD)
func (c *Conn) ChangeDir(dir string) error {
	_, _, err := c.cmd("CWD", 2, "CWD %s", dir)
	return err
}

// List issues LIST for path and calls fn for every non-empty line.
// An error from fn aborts the listing and is returned.
func (c *Conn) List(path string, fn func(line string) error) error {
	dc, err := c.openData("LIST", "LIST %s", path)
	if err != nil {
		return err
	}

	var fnErr error
	scanner := bufio.NewScanner(dc)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if fnErr = fn(line); fnErr != nil {
			break
		}
	}
	scanErr := scanner.Err()
	dc.Close()

	_, _, replyErr := c.readReply("LIST", 2)
	switch {
	case fnErr != nil:
		return fnErr
	case scanErr != nil:
		return fmt.Errorf("failed to read listing: %w", scanErr)
	}
	return replyErr
}

// Retr downloads path in binary mode into w and returns the bytes copied
func (c *Conn) Retr(path string, w io.Writer) (int64, error) {
	if err := c.binary(); err != nil {
		return 0, err
	}
	dc, err := c.openData("RETR", "RETR %s", path)
	if err != nil {
		return 0, err
	}

	n, copyErr := io.Copy(w, dc)
	dc.Close()
	if copyErr != nil {
		// The server may still be waiting to send 426; don't block on it
		return n, fmt.Errorf("failed to receive data: %w", copyErr)
	}
	if _, _, err := c.readReply("RETR", 2); err != nil {
		return n, err
	}
	return n, nil
}

// Stor uploads r in binary mode to path and returns the bytes copied
func (c *Conn) Stor(path string, r io.Reader) (int64, error) {
	if err := c.binary(); err != nil {
		return 0, err
	}
	dc, err := c.openData("STOR", "STOR %s", path)
	if err != nil {
		return 0, err
	}

	n, copyErr := io.Copy(dc, r)
	closeErr := dc.Close()
	if copyErr != nil {
		return n, fmt.Errorf("failed to send data: %w", copyErr)
	}
	if closeErr != nil {
		return n, fmt.Errorf("failed to close data connection: %w", closeErr)
	}
	if _, _, err := c.readReply("STOR", 2); err != nil {
		return n, err
	}
	return n, nil
}

// Quit sends QUIT and closes the connection
func (c *Conn) Quit() error {
	_, _, err := c.cmd("QUIT", 2, "QUIT")
	closeErr := c.conn.Close()
	if err != nil {
		return err
	}
	return closeErr
}

// Close closes the connection without QUIT
func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) binary() error {
	_, _, err := c.cmd("TYPE", 2, "TYPE I")
	return err
}

// cmd sends one command and reads its reply. expect follows
// textproto.Reader.ReadResponse: 0 accepts anything, 1-9 checks the
// class digit, 100-999 the exact code.
func (c *Conn) cmd(verb string, expect int, format string, args ...any) (int, string, error) {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, "", err
	}
	if err := c.text.PrintfLine(format, args...); err != nil {
		return 0, "", fmt.Errorf("failed to send %s: %w", verb, err)
	}
	c.log.Trace().Str("cmd", verb).Msg("sent")
	return c.readReply(verb, expect)
}

func (c *Conn) readReply(verb string, expect int) (int, string, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, "", err
	}
	code, msg, err := c.text.ReadResponse(expect)
	if err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) {
			return code, msg, &ProtocolError{Command: verb, Code: tpErr.Code, Message: tpErr.Msg}
		}
		return code, msg, fmt.Errorf("failed to read %s reply: %w", verb, err)
	}
	c.log.Trace().Str("cmd", verb).Int("code", code).Msg("reply")
	return code, msg, nil
}

// parsePwd extracts the quoted directory from a 257 reply; doubled quotes
// inside the name stand for one.
func parsePwd(msg string) (string, error) {
	start := strings.IndexByte(msg, '"')
	end := strings.LastIndexByte(msg, '"')
	if start < 0 || end <= start {
		return "", &ProtocolError{Command: "PWD", Code: 257, Message: msg}
	}
	return strings.ReplaceAll(msg[start+1:end], `""`, `"`), nil
}
