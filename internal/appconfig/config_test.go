package appconfig

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	cfgDir := filepath.Join(dir, "pgtunnel")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadPreservesRuleOrder(t *testing.T) {
	writeConfig(t, `
ssh_tunnels:
  - pattern: 'db\..*'
    tunnel: ssh://first
  - pattern: 'db\.prod\.com'
    tunnel: ssh://second
dsn_ssh_tunnels:
  - pattern: 'prod-.*'
    tunnel: ssh://alias
`)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	host := cfg.HostRules()
	if len(host) != 2 || host[0].TunnelURL != "ssh://first" || host[1].TunnelURL != "ssh://second" {
		t.Fatalf("order not preserved: %+v", host)
	}
	alias := cfg.AliasRules()
	if len(alias) != 1 || alias[0].Pattern != "prod-.*" {
		t.Fatalf("unexpected alias rules: %+v", alias)
	}
}

func TestLoadMissingFileIsEmptyConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.HostRules()) != 0 || len(cfg.AliasRules()) != 0 {
		t.Fatalf("expected no rules: %+v", cfg)
	}
	if !cfg.AgentAllowed() {
		t.Fatal("allow_agent must default to true")
	}
}

func TestAgentAllowedExplicitFalse(t *testing.T) {
	writeConfig(t, "allow_agent: false\n")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AgentAllowed() {
		t.Fatal("allow_agent: false not honored")
	}
}

func TestLoadBrokenYAML(t *testing.T) {
	writeConfig(t, "ssh_tunnels: [unclosed\n")
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

// A broken config must degrade to zero rules instead of aborting the
// invocation.
func TestLoadOrEmptyDegrades(t *testing.T) {
	writeConfig(t, "ssh_tunnels: [unclosed\n")
	cfg := LoadOrEmpty(slog.Default())
	if len(cfg.HostRules()) != 0 {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
	if !cfg.AgentAllowed() {
		t.Fatal("degraded config must keep the allow_agent default")
	}
}
