package tunnel

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"pgtunnel/internal/util"
)

// DefaultSSHPort is used when the tunnel URL carries no port.
const DefaultSSHPort = 22

// URL is a parsed tunnel destination of the form
// [ssh://][user[:password]@]host[:port].
type URL struct {
	User     string
	Password string
	Host     string
	Port     int
}

// ParseURL parses a tunnel URL. A missing scheme defaults to ssh:// and a
// missing port to 22.
func ParseURL(raw string) (URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "ssh://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return URL{}, fmt.Errorf("parse tunnel url: %w", err)
	}
	if u.Hostname() == "" {
		return URL{}, fmt.Errorf("tunnel url %q has no host", Redact(raw))
	}

	out := URL{Host: u.Hostname(), Port: DefaultSSHPort}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return URL{}, fmt.Errorf("tunnel url %q has invalid port", Redact(raw))
		}
		if err := util.ValidatePort(n); err != nil {
			return URL{}, fmt.Errorf("tunnel url %q: %w", Redact(raw), err)
		}
		out.Port = n
	}
	if u.User != nil {
		out.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			out.Password = pw
		}
	}
	return out, nil
}

// Redact masks the password portion of a tunnel URL for safe display.
func Redact(raw string) string {
	s := raw
	if !strings.Contains(s, "://") {
		s = "ssh://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); !ok {
		return raw
	}
	u.User = url.UserPassword(u.User.Username(), "***")
	out := u.String()
	// Keep the scheme-less spelling when the input had none.
	if !strings.Contains(raw, "://") {
		out = strings.TrimPrefix(out, "ssh://")
	}
	return out
}
