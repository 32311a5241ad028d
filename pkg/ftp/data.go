package ftp

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// openData sets up an active-mode data connection for one transfer
// command: listen on the control connection's local address, announce it
// with PORT (IPv4) or EPRT (IPv6), send the command, wait for the
// preliminary reply and accept the server's connection.
func (c *Conn) openData(verb, format string, args ...any) (net.Conn, error) {
	local, ok := c.conn.LocalAddr().(*net.TCPAddr)
	if !ok {
		return nil, fmt.Errorf("%s: control connection is not TCP", verb)
	}

	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: local.IP})
	if err != nil {
		return nil, fmt.Errorf("failed to listen for data connection: %w", err)
	}
	defer ln.Close()

	addr := ln.Addr().(*net.TCPAddr)
	if ip4 := addr.IP.To4(); ip4 != nil {
		_, _, err = c.cmd("PORT", 2, "PORT %s", portArg(ip4, addr.Port))
	} else {
		_, _, err = c.cmd("EPRT", 2, "EPRT |2|%s|%d|", addr.IP.String(), addr.Port)
	}
	if err != nil {
		return nil, err
	}

	if _, _, err := c.cmd(verb, 1, format, args...); err != nil {
		return nil, err
	}

	if err := ln.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, err
	}
	dc, err := ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("server did not open data connection: %w", err)
	}
	c.log.Debug().Str("cmd", verb).Str("data", dc.RemoteAddr().String()).Msg("data connection accepted")
	return &deadlineConn{Conn: dc, timeout: c.timeout}, nil
}

// portArg formats h1,h2,h3,h4,p1,p2 for the PORT command
func portArg(ip net.IP, port int) string {
	parts := make([]string, 0, 6)
	for _, b := range ip {
		parts = append(parts, strconv.Itoa(int(b)))
	}
	parts = append(parts, strconv.Itoa(port>>8), strconv.Itoa(port&0xff))
	return strings.Join(parts, ",")
}

// deadlineConn pushes the deadline forward before every read and write so
// the timeout bounds idle time rather than the whole transfer.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (d *deadlineConn) Read(p []byte) (int, error) {
	if err := d.Conn.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
		return 0, err
	}
	return d.Conn.Read(p)
}

func (d *deadlineConn) Write(p []byte) (int, error) {
	if err := d.Conn.SetWriteDeadline(time.Now().Add(d.timeout)); err != nil {
		return 0, err
	}
	return d.Conn.Write(p)
}
