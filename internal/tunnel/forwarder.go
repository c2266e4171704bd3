// Package tunnel manages the lifecycle of one SSH-forwarded local endpoint:
// selection of the destination, a blocking start that confirms the bind is
// live, and idempotent teardown.
package tunnel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"pgtunnel/internal/model"
)

// Options configures how the forwarder authenticates and verifies the SSH
// host. Key-directory scanning is permanently off: the agent and an explicit
// URL password are the only credential sources. Compression is never
// requested.
type Options struct {
	// AllowAgent permits SSH agent authentication (default true in config).
	AllowAgent bool
	// SSHConfigFile is consulted to resolve the tunnel host against OpenSSH
	// Host aliases. Empty means ~/.ssh/config.
	SSHConfigFile string
	// KnownHostsFile is used for host key verification when it exists.
	// Empty means ~/.ssh/known_hosts.
	KnownHostsFile string
}

// Bind is a live local forwarding endpoint returned by a Forwarder.
type Bind interface {
	// Addr returns the local loopback host and port of the bind.
	Addr() (string, int)
	// Close tears the bind down. Implementations must tolerate repeated
	// calls.
	Close() error
}

// Forwarder is the external forwarding capability: given an endpoint
// description it opens a local loopback bind whose connections are forwarded
// to the remote host through the SSH host. Open blocks until the SSH
// handshake completes or fails; no retries, no additional timeout layer.
type Forwarder interface {
	Open(ctx context.Context, ep model.Endpoint, opts Options) (Bind, error)
}

// SSHForwarder implements Forwarder on golang.org/x/crypto/ssh.
type SSHForwarder struct {
	Logger *slog.Logger
}

func (f *SSHForwarder) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Open dials the SSH host, authenticates, and binds an ephemeral loopback
// port forwarding to the endpoint's remote host/port.
func (f *SSHForwarder) Open(ctx context.Context, ep model.Endpoint, opts Options) (Bind, error) {
	auth, err := f.authMethods(ep, opts)
	if err != nil {
		return nil, err
	}

	cfg := &ssh.ClientConfig{
		User:            ep.SSHUser,
		Auth:            auth,
		HostKeyCallback: f.hostKeyCallback(opts),
	}
	if cfg.User == "" {
		cfg.User = os.Getenv("USER")
	}

	addr := net.JoinHostPort(ep.SSHHost, strconv.Itoa(ep.SSHPort))
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrHandshake, addr, err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: bind loopback: %v", ErrHandshake, err)
	}

	b := &sshBind{
		client:   client,
		listener: listener,
		remote:   net.JoinHostPort(ep.RemoteHost, strconv.Itoa(ep.RemotePort)),
		logger:   f.logger(),
	}
	go b.serve(ctx)
	return b, nil
}

func (f *SSHForwarder) authMethods(ep model.Endpoint, opts Options) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if ep.SSHPassword != "" {
		methods = append(methods, ssh.Password(ep.SSHPassword))
	}
	if opts.AllowAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			conn, err := net.Dial("unix", sock)
			if err != nil {
				f.logger().Debug("ssh agent socket unreachable", "error", err)
			} else {
				methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			}
		}
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: no SSH agent reachable and the tunnel url carries no password; "+
			"start ssh-agent and add a key, or put credentials in the tunnel url", ErrCapabilityUnavailable)
	}
	return methods, nil
}

func (f *SSHForwarder) hostKeyCallback(opts Options) ssh.HostKeyCallback {
	path := opts.KnownHostsFile
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home + "/.ssh/known_hosts"
		}
	}
	if path != "" {
		if cb, err := knownhosts.New(path); err == nil {
			return cb
		}
	}
	f.logger().Warn("known_hosts unavailable, accepting the ssh host key without verification")
	return ssh.InsecureIgnoreHostKey()
}

type sshBind struct {
	client   *ssh.Client
	listener net.Listener
	remote   string
	logger   *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

func (b *sshBind) Addr() (string, int) {
	addr := b.listener.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func (b *sshBind) Close() error {
	b.closeOnce.Do(func() {
		_ = b.listener.Close()
		b.closeErr = b.client.Close()
	})
	return b.closeErr
}

// serve accepts local connections and pipes each through the SSH connection
// to the remote endpoint. It exits when the listener is closed or the
// context is cancelled.
func (b *sshBind) serve(ctx context.Context) {
	if ctx != nil {
		go func() {
			<-ctx.Done()
			_ = b.Close()
		}()
	}
	for {
		local, err := b.listener.Accept()
		if err != nil {
			return
		}
		go b.pipe(local)
	}
}

func (b *sshBind) pipe(local net.Conn) {
	remote, err := b.client.Dial("tcp", b.remote)
	if err != nil {
		b.logger.Warn("forward to remote failed", "remote", b.remote, "error", err)
		_ = local.Close()
		return
	}
	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(remote, local)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(local, remote)
		done <- struct{}{}
	}()
	<-done
	_ = local.Close()
	_ = remote.Close()
}
