// Package session owns the primary FTP control connection and the two
// browser panes built on top of it, and hands connection snapshots to the
// transfer executor.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/quocson95/ftpane/pkg/browser"
	"github.com/quocson95/ftpane/pkg/ftp"
	"github.com/quocson95/ftpane/pkg/listing"
	"github.com/quocson95/ftpane/pkg/transfer"
	"github.com/rs/zerolog"
)

// ErrNotConnected is returned for operations that need a logged in session
var ErrNotConnected = errors.New("not connected to a server")

// ConnectionError is a failure to connect or log in
type ConnectionError struct {
	Op   string // "connect" or "login"
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s to %s failed: %v", e.Op, e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Manager is the single owner of the browsing connection. Transfers never
// touch it; they get an Endpoint snapshot and dial their own.
type Manager struct {
	cfg  Config
	log  zerolog.Logger
	exec *transfer.Executor

	mu        sync.Mutex
	conn      *ftp.Conn
	host      string
	user      string
	password  string
	connected bool
	local     *browser.Pane
	remote    *browser.Pane
}

// NewManager creates a disconnected manager
func NewManager(cfg Config, log zerolog.Logger) *Manager {
	return NewManagerWithDialer(cfg, log, transfer.FTPDialer(log))
}

// NewManagerWithDialer is NewManager with a custom transfer dialer
func NewManagerWithDialer(cfg Config, log zerolog.Logger, dial transfer.Dialer) *Manager {
	return &Manager{
		cfg:  cfg,
		log:  log,
		exec: transfer.NewExecutor(dial, log.With().Str("component", "transfer").Logger()),
	}
}

// Connect opens the control connection. A previous connection is closed
// first. There is a single attempt, no retry.
func (m *Manager) Connect(ctx context.Context, hostOrURL string) error {
	if err := m.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	host := ParseHost(hostOrURL)
	if host == "" {
		return &ConnectionError{Op: "connect", Host: hostOrURL, Err: errors.New("host is required")}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLocked()

	addr := net.JoinHostPort(host, strconv.Itoa(m.cfg.Port))
	m.log.Info().Str("addr", addr).Msg("connecting")
	conn, err := ftp.Dial(ctx, addr, ftp.WithTimeout(m.cfg.Timeout), ftp.WithLogger(m.log))
	if err != nil {
		m.log.Error().Err(err).Str("addr", addr).Msg("connect failed")
		return &ConnectionError{Op: "connect", Host: host, Err: err}
	}
	m.conn = conn
	m.host = host
	return nil
}

// Login authenticates on the open connection, then sets both panes up at
// their origins (server working directory, local home) and lists them.
// The returned error is a ConnectionError if authentication failed; a
// failed first listing is returned after the session is already usable.
func (m *Manager) Login(user, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return ErrNotConnected
	}
	if err := m.conn.Login(user, password); err != nil {
		m.log.Error().Err(err).Str("user", user).Msg("login failed")
		return &ConnectionError{Op: "login", Host: m.host, Err: err}
	}
	wd, err := m.conn.CurrentDir()
	if err != nil {
		return &ConnectionError{Op: "login", Host: m.host, Err: err}
	}

	m.user = user
	m.password = password
	m.connected = true
	m.local = browser.NewPane("local", browser.NewLocalSource(m.cfg.LocalHome), m.cfg.LocalHome, m.log)
	m.remote = browser.NewPane("remote", browser.NewRemoteSource(m.conn, wd, m.log), wd, m.log)
	m.log.Info().Str("user", user).Str("host", m.host).Str("remote", wd).Msg("logged in")

	return errors.Join(m.local.Refresh(), m.remote.Refresh())
}

// IsConnected reports whether the session is logged in
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Host is the hostname of the current connection
func (m *Manager) Host() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.host
}

// Local is the local pane, nil before login
func (m *Manager) Local() *browser.Pane {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.local
}

// Remote is the remote pane, nil before login
func (m *Manager) Remote() *browser.Pane {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remote
}

// CurrentRemotePath is the remote pane's current directory
func (m *Manager) CurrentRemotePath() string {
	remote := m.Remote()
	if remote == nil {
		return ""
	}
	return remote.CurrentPath()
}

// Endpoint snapshots what a transfer needs to open its own connection
func (m *Manager) Endpoint() (transfer.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return transfer.Endpoint{}, ErrNotConnected
	}
	return transfer.Endpoint{
		Host:     m.host,
		Port:     m.cfg.Port,
		Timeout:  m.cfg.Timeout,
		User:     m.user,
		Password: m.password,
	}, nil
}

// Transfers is the executor running this session's transfers
func (m *Manager) Transfers() *transfer.Executor { return m.exec }

// StartDownload starts copying remoteSrc to localDst
func (m *Manager) StartDownload(remoteSrc, localDst string, expectedSize int64) (*transfer.Task, error) {
	ep, err := m.Endpoint()
	if err != nil {
		return nil, err
	}
	return m.exec.StartDownload(ep, remoteSrc, localDst, expectedSize), nil
}

// StartUpload starts copying localSrc to remoteDst
func (m *Manager) StartUpload(localSrc, remoteDst string, expectedSize int64) (*transfer.Task, error) {
	ep, err := m.Endpoint()
	if err != nil {
		return nil, err
	}
	return m.exec.StartUpload(ep, localSrc, remoteDst, expectedSize), nil
}

// DownloadSelected downloads a remote pane entry into the local pane's
// current directory under the same name.
func (m *Manager) DownloadSelected(entry listing.DirectoryEntry) (*transfer.Task, error) {
	if entry.IsDir() {
		return nil, fmt.Errorf("cannot download %s: directories are not transferred", entry.Name)
	}
	local, remote := m.Local(), m.Remote()
	if local == nil || remote == nil {
		return nil, ErrNotConnected
	}
	return m.StartDownload(remote.Join(entry.Name), local.Join(entry.Name), entry.SizeBytes)
}

// UploadSelected uploads a local pane entry into the remote pane's current
// directory under the same name.
func (m *Manager) UploadSelected(entry listing.DirectoryEntry) (*transfer.Task, error) {
	if entry.IsDir() {
		return nil, fmt.Errorf("cannot upload %s: directories are not transferred", entry.Name)
	}
	local, remote := m.Local(), m.Remote()
	if local == nil || remote == nil {
		return nil, ErrNotConnected
	}
	return m.StartUpload(local.Join(entry.Name), remote.Join(entry.Name), entry.SizeBytes)
}

// Close sends QUIT on the browsing connection and forgets the session.
// Running transfers are not affected.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Quit()
	m.conn = nil
	m.reset()
	return err
}

// dropLocked closes the current connection without QUIT
func (m *Manager) dropLocked() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.reset()
}

func (m *Manager) reset() {
	m.host = ""
	m.user = ""
	m.password = ""
	m.connected = false
	m.local = nil
	m.remote = nil
}
