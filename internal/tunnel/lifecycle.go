package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"pgtunnel/internal/model"
	"pgtunnel/internal/sshcfg"
	"pgtunnel/internal/util"
)

// Lifecycle owns at most one forwarded endpoint at a time. Start blocks
// until the bind is confirmed live; Stop is idempotent and releases the bind
// at most once per Start. It is not reentrant: starting twice without an
// intervening Stop is unsupported.
//
// Callers must guarantee Stop on every exit path, normally with a defer at
// the orchestration boundary. That deferred release, not any process-level
// hook, is the primary teardown guarantee.
type Lifecycle struct {
	mu        sync.Mutex
	forwarder Forwarder
	opts      Options
	logger    *slog.Logger

	state    model.EndpointState
	endpoint model.Endpoint
	bind     Bind
}

// NewLifecycle creates a lifecycle around the given forwarding capability.
func NewLifecycle(f Forwarder, opts Options, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{forwarder: f, opts: opts, logger: logger, state: model.EndpointDown}
}

// Start resolves tunnelURL (applying ~/.ssh/config aliases), opens the
// forwarded bind to the target's host/port, and confirms the local bind is
// accepting connections before reporting the endpoint active.
func (l *Lifecycle) Start(ctx context.Context, tunnelURL string, tgt model.ConnectionTarget) (model.Endpoint, error) {
	u, err := ParseURL(tunnelURL)
	if err != nil {
		return model.Endpoint{}, fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	ep := model.Endpoint{
		SSHHost:     u.Host,
		SSHPort:     u.Port,
		SSHUser:     u.User,
		SSHPassword: u.Password,
		RemoteHost:  tgt.Host,
		RemotePort:  tgt.Port,
		StartedAt:   time.Now(),
	}
	l.applySSHConfig(&ep)

	l.mu.Lock()
	l.state = model.EndpointStarting
	l.mu.Unlock()

	l.logger.Debug("starting ssh tunnel",
		"ssh_host", ep.SSHHost, "ssh_port", ep.SSHPort, "ssh_user", ep.SSHUser,
		"password", ep.SSHPassword, // masked by the redacting log handler
		"remote_host", ep.RemoteHost, "remote_port", ep.RemotePort)

	bind, err := l.forwarder.Open(ctx, ep, l.opts)
	if err != nil {
		l.mu.Lock()
		l.state = model.EndpointError
		l.mu.Unlock()
		return model.Endpoint{}, err
	}

	host, port := bind.Addr()
	ep.LocalBindHost = host
	ep.LocalBindPort = port

	if err := probe(host, port); err != nil {
		_ = bind.Close()
		l.mu.Lock()
		l.state = model.EndpointError
		l.mu.Unlock()
		return model.Endpoint{}, fmt.Errorf("%w: %v", ErrNotActive, err)
	}

	ep.Active = true
	l.mu.Lock()
	l.state = model.EndpointUp
	l.endpoint = ep
	l.bind = bind
	l.mu.Unlock()

	l.logger.Debug("ssh tunnel ready", "local_host", host, "local_port", port)
	return ep, nil
}

// Stop tears the endpoint down. Calling it when nothing was started, or
// again after it already ran, is a no-op.
func (l *Lifecycle) Stop() {
	l.mu.Lock()
	if l.state != model.EndpointUp {
		l.mu.Unlock()
		return
	}
	l.state = model.EndpointStopping
	bind := l.bind
	l.mu.Unlock()

	if bind != nil {
		if err := bind.Close(); err != nil {
			l.logger.Debug("tunnel close reported error", "error", err)
		}
	}

	l.mu.Lock()
	l.state = model.EndpointDown
	l.endpoint.Active = false
	l.bind = nil
	l.mu.Unlock()
	l.logger.Debug("ssh tunnel stopped")
}

// State returns the current endpoint state.
func (l *Lifecycle) State() model.EndpointState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Endpoint returns the last started endpoint record.
func (l *Lifecycle) Endpoint() model.Endpoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.endpoint
}

// applySSHConfig resolves the tunnel host against OpenSSH Host aliases; the
// tunnel URL's own user and non-default port win over the config's.
func (l *Lifecycle) applySSHConfig(ep *model.Endpoint) {
	path := l.opts.SSHConfigFile
	if path == "" {
		p, err := sshcfg.DefaultPath()
		if err != nil {
			return
		}
		path = p
	}
	h, ok, err := sshcfg.Lookup(path, ep.SSHHost)
	if err != nil {
		l.logger.Debug("ssh config lookup failed", "error", err)
		return
	}
	if !ok {
		return
	}
	if h.HostName != "" {
		ep.SSHHost = h.HostName
	}
	if ep.SSHUser == "" && h.User != "" {
		ep.SSHUser = h.User
	}
	if ep.SSHPort == DefaultSSHPort && h.Port != 0 {
		ep.SSHPort = h.Port
	}
}

func probe(host string, port int) error {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), util.BindProbeTimeout)
	if err != nil {
		return err
	}
	return conn.Close()
}
