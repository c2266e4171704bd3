package doctor

import (
	"os"
	"path/filepath"
	"testing"
)

func hermetic(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("PATH", t.TempDir())
	t.Setenv("SSH_AUTH_SOCK", "")
	return home
}

func find(r Report, check string) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Check == check {
			out = append(out, i)
		}
	}
	return out
}

func TestRunReportsMissingToolsAgentAndHostKeys(t *testing.T) {
	hermetic(t)
	r := Run()

	tools := find(r, "wrapped-tool")
	if len(tools) != 2 {
		t.Fatalf("expected pg_dump and pg_dumpall issues, got %+v", tools)
	}
	for _, i := range tools {
		if i.Severity != SeverityHigh {
			t.Fatalf("missing tool should be high severity: %+v", i)
		}
	}

	if agent := find(r, "ssh-agent"); len(agent) != 1 {
		t.Fatalf("expected one agent issue, got %+v", agent)
	}
	if kh := find(r, "known-hosts"); len(kh) != 1 || kh[0].Severity != SeverityLow {
		t.Fatalf("expected low-severity known_hosts issue, got %+v", kh)
	}
}

func TestRunFlagsUnreachableAgentSocket(t *testing.T) {
	hermetic(t)
	t.Setenv("SSH_AUTH_SOCK", filepath.Join(t.TempDir(), "no-agent.sock"))
	r := Run()
	agent := find(r, "ssh-agent")
	if len(agent) != 1 || agent[0].Severity != SeverityMedium {
		t.Fatalf("expected unreachable-agent issue, got %+v", agent)
	}
}

func TestRunFlagsBrokenRulePattern(t *testing.T) {
	hermetic(t)
	dir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "pgtunnel")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	cfg := "ssh_tunnels:\n  - pattern: 'db\\.(prod'\n    tunnel: bastion\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	r := Run()
	if got := find(r, "host-rule"); len(got) != 1 {
		t.Fatalf("expected one host-rule issue, got %+v", got)
	}
}

func TestRunFlagsUnreadableConfig(t *testing.T) {
	hermetic(t)
	dir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "pgtunnel")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("ssh_tunnels: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	r := Run()
	if got := find(r, "config"); len(got) != 1 {
		t.Fatalf("expected one config issue, got %+v", got)
	}
}

func TestRunQuietWhenHealthy(t *testing.T) {
	home := hermetic(t)
	if err := os.MkdirAll(filepath.Join(home, ".ssh"), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, ".ssh", "known_hosts"), nil, 0o600); err != nil {
		t.Fatal(err)
	}

	r := Run()
	if got := find(r, "known-hosts"); len(got) != 0 {
		t.Fatalf("known_hosts present but still flagged: %+v", got)
	}
	if got := find(r, "config"); len(got) != 0 {
		t.Fatalf("missing config must not be an issue: %+v", got)
	}
}
