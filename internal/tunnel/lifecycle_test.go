// Lifecycle tests use a fake Forwarder backed by a real loopback listener so
// the live-bind probe exercises the same code path as production, without
// any SSH connectivity.
package tunnel

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"pgtunnel/internal/model"
)

type fakeBind struct {
	ln net.Listener

	mu         sync.Mutex
	closeCount int
}

func (b *fakeBind) Addr() (string, int) {
	return "127.0.0.1", b.ln.Addr().(*net.TCPAddr).Port
}

func (b *fakeBind) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeCount++
	if b.closeCount == 1 {
		return b.ln.Close()
	}
	return nil
}

func (b *fakeBind) closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeCount
}

type fakeForwarder struct {
	openErr  error
	deadBind bool

	lastEndpoint model.Endpoint
	bind         *fakeBind
}

func (f *fakeForwarder) Open(ctx context.Context, ep model.Endpoint, opts Options) (Bind, error) {
	f.lastEndpoint = ep
	if f.openErr != nil {
		return nil, f.openErr
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	if f.deadBind {
		// A bind whose listener is gone: the forwarder claims success but
		// the probe must find nothing listening.
		_ = ln.Close()
	}
	f.bind = &fakeBind{ln: ln}
	return f.bind, nil
}

func missingSSHConfig(t *testing.T) Options {
	t.Helper()
	return Options{SSHConfigFile: filepath.Join(t.TempDir(), "nope")}
}

func TestLifecycleStartStop(t *testing.T) {
	fw := &fakeForwarder{}
	lc := NewLifecycle(fw, missingSSHConfig(t), nil)

	tgt := model.ConnectionTarget{Host: "db.example.com", Port: 5432}
	ep, err := lc.Start(context.Background(), "ssh://bastion", tgt)
	if err != nil {
		t.Fatal(err)
	}
	if !ep.Active || ep.LocalBindHost != "127.0.0.1" || ep.LocalBindPort == 0 {
		t.Fatalf("unexpected endpoint: %+v", ep)
	}
	if lc.State() != model.EndpointUp {
		t.Fatalf("expected up, got %s", lc.State())
	}
	if fw.lastEndpoint.RemoteHost != "db.example.com" || fw.lastEndpoint.RemotePort != 5432 {
		t.Fatalf("remote target not forwarded: %+v", fw.lastEndpoint)
	}

	lc.Stop()
	if lc.State() != model.EndpointDown {
		t.Fatalf("expected down, got %s", lc.State())
	}
	if lc.Endpoint().Active {
		t.Fatal("endpoint still marked active after stop")
	}
	if fw.bind.closes() != 1 {
		t.Fatalf("expected exactly one close, got %d", fw.bind.closes())
	}
}

// Stop must be a no-op when nothing was started and when called again after
// a stop.
func TestLifecycleStopIdempotent(t *testing.T) {
	fw := &fakeForwarder{}
	lc := NewLifecycle(fw, missingSSHConfig(t), nil)

	lc.Stop() // nothing started

	if _, err := lc.Start(context.Background(), "bastion", model.ConnectionTarget{Host: "db", Port: 5432}); err != nil {
		t.Fatal(err)
	}
	lc.Stop()
	lc.Stop()
	if fw.bind.closes() != 1 {
		t.Fatalf("expected exactly one close, got %d", fw.bind.closes())
	}
}

func TestLifecycleStartFailure(t *testing.T) {
	fw := &fakeForwarder{openErr: ErrHandshake}
	lc := NewLifecycle(fw, missingSSHConfig(t), nil)

	_, err := lc.Start(context.Background(), "bastion", model.ConnectionTarget{Host: "db", Port: 5432})
	if !errors.Is(err, ErrHandshake) {
		t.Fatalf("expected handshake error, got %v", err)
	}
	if lc.State() != model.EndpointError {
		t.Fatalf("expected error state, got %s", lc.State())
	}
}

// A forwarder that reports success with a dead bind must fail the start and
// release the bind.
func TestLifecycleStartBindNotActive(t *testing.T) {
	fw := &fakeForwarder{deadBind: true}
	lc := NewLifecycle(fw, missingSSHConfig(t), nil)

	_, err := lc.Start(context.Background(), "bastion", model.ConnectionTarget{Host: "db", Port: 5432})
	if !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected not-active error, got %v", err)
	}
	if fw.bind.closes() == 0 {
		t.Fatal("dead bind was not released")
	}
}

func TestLifecycleInvalidURL(t *testing.T) {
	lc := NewLifecycle(&fakeForwarder{}, missingSSHConfig(t), nil)
	if _, err := lc.Start(context.Background(), "ssh://", model.ConnectionTarget{Host: "db", Port: 5432}); err == nil {
		t.Fatal("expected error for invalid tunnel url")
	}
}

func TestLifecycleAppliesSSHConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config")
	content := "Host bastion\n    HostName bastion.internal\n    User deploy\n    Port 2222\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	fw := &fakeForwarder{}
	lc := NewLifecycle(fw, Options{SSHConfigFile: cfgPath}, nil)
	if _, err := lc.Start(context.Background(), "bastion", model.ConnectionTarget{Host: "db", Port: 5432}); err != nil {
		t.Fatal(err)
	}
	ep := fw.lastEndpoint
	if ep.SSHHost != "bastion.internal" || ep.SSHUser != "deploy" || ep.SSHPort != 2222 {
		t.Fatalf("ssh config not applied: %+v", ep)
	}

	// Values carried by the URL itself win over the config's.
	lc2 := NewLifecycle(fw, Options{SSHConfigFile: cfgPath}, nil)
	if _, err := lc2.Start(context.Background(), "ssh://root@bastion:7", model.ConnectionTarget{Host: "db", Port: 5432}); err != nil {
		t.Fatal(err)
	}
	ep = fw.lastEndpoint
	if ep.SSHUser != "root" || ep.SSHPort != 7 {
		t.Fatalf("url values must win: %+v", ep)
	}
	if ep.SSHHost != "bastion.internal" {
		t.Fatalf("alias hostname not applied: %+v", ep)
	}
}

// With agent auth disabled by environment and no password in the URL, the
// forwarding capability is unavailable and says how to fix it.
func TestSSHForwarderNoAuthCapability(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	fw := &SSHForwarder{}
	_, err := fw.Open(context.Background(), model.Endpoint{
		SSHHost: "bastion", SSHPort: 22, RemoteHost: "db", RemotePort: 5432,
	}, Options{AllowAgent: true})
	if !errors.Is(err, ErrCapabilityUnavailable) {
		t.Fatalf("expected capability error, got %v", err)
	}
}
