// Package ftptest provides an in-memory FTP server for tests. It speaks
// the subset of the protocol the ftp client uses and only supports active
// mode data connections.
package ftptest

import (
	"fmt"
	"io"
	"net"
	"net/textproto"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// Server is a loopback FTP server backed by maps
type Server struct {
	User     string
	Password string
	Home     string

	ln net.Listener
	wg sync.WaitGroup

	mu       sync.Mutex
	dirs     map[string]bool
	files    map[string][]byte
	listings map[string][]string
	failRetr map[string]int // path -> bytes sent before the data connection is cut

	logins atomic.Int32
	conns  map[net.Conn]struct{}
	closed bool
}

// NewServer starts a server on 127.0.0.1 with a single user and "/" plus
// home as directories. Call Close when done.
func NewServer(user, password, home string) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		User:     user,
		Password: password,
		Home:     path.Clean(home),
		ln:       ln,
		dirs:     map[string]bool{"/": true},
		files:    map[string][]byte{},
		listings: map[string][]string{},
		failRetr: map[string]int{},
		conns:    map[net.Conn]struct{}{},
	}
	s.AddDir(s.Home)

	s.wg.Add(1)
	go s.serve()
	return s, nil
}

// Addr is the control address, "127.0.0.1:port"
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Port is the control port
func (s *Server) Port() int { return s.ln.Addr().(*net.TCPAddr).Port }

// Logins counts successful logins since start
func (s *Server) Logins() int { return int(s.logins.Load()) }

// AddDir registers dir and all its parents
func (s *Server) AddDir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for d := path.Clean(dir); ; d = path.Dir(d) {
		s.dirs[d] = true
		if d == "/" || d == "." {
			return
		}
	}
}

// AddFile stores a file, creating its parent directories
func (s *Server) AddFile(p string, data []byte) {
	p = path.Clean(p)
	s.AddDir(path.Dir(p))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[p] = append([]byte(nil), data...)
}

// File returns the stored content of p
func (s *Server) File(p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[path.Clean(p)]
	return data, ok
}

// SetListing overrides the LIST output for dir with raw lines
func (s *Server) SetListing(dir string, lines []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[path.Clean(dir)] = lines
}

// FailRetrAfter makes RETR of p drop the data connection after n bytes
func (s *Server) FailRetrAfter(p string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRetr[path.Clean(p)] = n
}

// Close stops accepting and tears down open sessions
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	err := s.ln.Close()
	s.wg.Wait()
	return err
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			c.Close()
			return
		}
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, c)
				s.mu.Unlock()
				c.Close()
			}()
			(&session{srv: s, text: textproto.NewConn(c), cwd: s.Home}).run()
		}()
	}
}

type session struct {
	srv      *Server
	text     *textproto.Conn
	user     string
	loggedIn bool
	cwd      string
	dataAddr string
}

func (ss *session) reply(code int, format string, args ...any) error {
	return ss.text.PrintfLine("%d %s", code, fmt.Sprintf(format, args...))
}

func (ss *session) run() {
	if ss.reply(220, "ftptest ready") != nil {
		return
	}
	for {
		line, err := ss.text.ReadLine()
		if err != nil {
			return
		}
		verb, arg, _ := strings.Cut(line, " ")
		verb = strings.ToUpper(verb)

		if !ss.loggedIn && verb != "USER" && verb != "PASS" && verb != "QUIT" {
			ss.reply(530, "Please login with USER and PASS")
			continue
		}

		switch verb {
		case "USER":
			ss.user = arg
			ss.reply(331, "Password required")
		case "PASS":
			if ss.user == ss.srv.User && arg == ss.srv.Password {
				ss.loggedIn = true
				ss.srv.logins.Add(1)
				ss.reply(230, "Login successful")
			} else {
				ss.reply(530, "Login incorrect")
			}
		case "PWD":
			ss.reply(257, "%q is the current directory", ss.cwd)
		case "CWD":
			target := ss.resolve(arg)
			if ss.isDir(target) {
				ss.cwd = target
				ss.reply(250, "Directory changed")
			} else {
				ss.reply(550, "No such directory")
			}
		case "TYPE", "NOOP":
			ss.reply(200, "OK")
		case "PORT":
			addr, err := parsePort(arg)
			if err != nil {
				ss.reply(501, "Bad PORT")
				continue
			}
			ss.dataAddr = addr
			ss.reply(200, "PORT command successful")
		case "EPRT":
			addr, err := parseEprt(arg)
			if err != nil {
				ss.reply(501, "Bad EPRT")
				continue
			}
			ss.dataAddr = addr
			ss.reply(200, "EPRT command successful")
		case "PASV", "EPSV":
			ss.reply(502, "Passive mode not supported")
		case "LIST":
			ss.list(arg)
		case "RETR":
			ss.retr(arg)
		case "STOR":
			ss.stor(arg)
		case "QUIT":
			ss.reply(221, "Goodbye")
			return
		default:
			ss.reply(502, "Command not implemented")
		}
	}
}

func (ss *session) resolve(p string) string {
	if p == "" || p == "." {
		return ss.cwd
	}
	if !strings.HasPrefix(p, "/") {
		p = path.Join(ss.cwd, p)
	}
	return path.Clean(p)
}

func (ss *session) isDir(p string) bool {
	ss.srv.mu.Lock()
	defer ss.srv.mu.Unlock()
	return ss.srv.dirs[p]
}

func (ss *session) dial() (net.Conn, bool) {
	if ss.dataAddr == "" {
		ss.reply(425, "Use PORT first")
		return nil, false
	}
	ss.reply(150, "Opening data connection")
	dc, err := net.Dial("tcp", ss.dataAddr)
	ss.dataAddr = ""
	if err != nil {
		ss.reply(425, "Can't open data connection")
		return nil, false
	}
	return dc, true
}

func (ss *session) list(arg string) {
	dir := ss.resolve(arg)
	if !ss.isDir(dir) {
		ss.reply(550, "No such directory")
		return
	}
	lines := ss.srv.listingFor(dir)
	dc, ok := ss.dial()
	if !ok {
		return
	}
	for _, l := range lines {
		io.WriteString(dc, l+"\r\n")
	}
	dc.Close()
	ss.reply(226, "Transfer complete")
}

func (ss *session) retr(arg string) {
	p := ss.resolve(arg)
	ss.srv.mu.Lock()
	data, ok := ss.srv.files[p]
	cut, failing := ss.srv.failRetr[p]
	ss.srv.mu.Unlock()
	if !ok {
		ss.reply(550, "No such file")
		return
	}
	dc, ok := ss.dial()
	if !ok {
		return
	}
	if failing && cut < len(data) {
		dc.Write(data[:cut])
		dc.Close()
		ss.reply(426, "Connection closed; transfer aborted")
		return
	}
	dc.Write(data)
	dc.Close()
	ss.reply(226, "Transfer complete")
}

func (ss *session) stor(arg string) {
	p := ss.resolve(arg)
	if !ss.isDir(path.Dir(p)) {
		ss.reply(553, "No such directory")
		return
	}
	dc, ok := ss.dial()
	if !ok {
		return
	}
	data, err := io.ReadAll(dc)
	dc.Close()
	if err != nil {
		ss.reply(426, "Transfer aborted")
		return
	}
	ss.srv.mu.Lock()
	ss.srv.files[p] = data
	ss.srv.mu.Unlock()
	ss.reply(226, "Transfer complete")
}

// listingFor renders the children of dir in ls -l form unless an override
// was set with SetListing.
func (s *Server) listingFor(dir string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lines, ok := s.listings[dir]; ok {
		return lines
	}

	var lines []string
	var names []string
	children := map[string]string{}
	for d := range s.dirs {
		if d != dir && path.Dir(d) == dir {
			name := path.Base(d)
			names = append(names, name)
			children[name] = fmt.Sprintf("drwxr-xr-x 2 ftp ftp 4096 Jan 01 12:00 %s", name)
		}
	}
	for f, data := range s.files {
		if path.Dir(f) == dir {
			name := path.Base(f)
			names = append(names, name)
			children[name] = fmt.Sprintf("-rw-r--r-- 1 ftp ftp %d Jan 01 12:00 %s", len(data), name)
		}
	}
	sort.Strings(names)
	lines = append(lines, fmt.Sprintf("total %d", len(names)))
	for _, n := range names {
		lines = append(lines, children[n])
	}
	return lines
}

func parsePort(arg string) (string, error) {
	parts := strings.Split(arg, ",")
	if len(parts) != 6 {
		return "", fmt.Errorf("want 6 fields")
	}
	nums := make([]int, 6)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 255 {
			return "", fmt.Errorf("bad field %q", p)
		}
		nums[i] = n
	}
	ip := fmt.Sprintf("%d.%d.%d.%d", nums[0], nums[1], nums[2], nums[3])
	return net.JoinHostPort(ip, strconv.Itoa(nums[4]<<8|nums[5])), nil
}

func parseEprt(arg string) (string, error) {
	if len(arg) < 2 {
		return "", fmt.Errorf("too short")
	}
	fields := strings.Split(arg[1:len(arg)-1], arg[:1])
	if len(fields) != 3 {
		return "", fmt.Errorf("want 3 fields")
	}
	if _, err := strconv.Atoi(fields[2]); err != nil {
		return "", err
	}
	return net.JoinHostPort(fields[1], fields[2]), nil
}
