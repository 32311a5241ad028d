package session

import (
	"errors"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// DefaultPort is the FTP control port
const DefaultPort = 21

// Config holds the connection settings that are not typed at login
type Config struct {
	Port      int
	Timeout   time.Duration
	LocalHome string // origin of the local pane
}

// DefaultConfig returns port 21, a 10s timeout and the user's home
// directory (or "/" if it cannot be determined).
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/"
	}
	return Config{
		Port:      DefaultPort,
		Timeout:   10 * time.Second,
		LocalHome: home,
	}
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("invalid port number")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.LocalHome == "" {
		return errors.New("local home directory is required")
	}
	return nil
}

// ParseHost returns the hostname of hostOrURL when it parses as a URL
// with a host part, and the trimmed input otherwise.
func ParseHost(hostOrURL string) string {
	raw := norm.NFC.String(strings.TrimSpace(hostOrURL))
	if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return raw
}
