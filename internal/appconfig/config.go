// Package appconfig loads pgtunnel's configuration file and resolves the
// application config directory.
package appconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"pgtunnel/internal/model"
)

// RuleEntry is one pattern/tunnel pair in config.yaml. Entries are kept in a
// slice because declaration order decides which rule wins on multiple
// matches.
type RuleEntry struct {
	Pattern string `yaml:"pattern"`
	Tunnel  string `yaml:"tunnel"`
}

// Config holds application-level configuration.
type Config struct {
	// AllowAgent permits SSH agent authentication for tunnels.
	AllowAgent *bool       `yaml:"allow_agent,omitempty"`
	SSHTunnels []RuleEntry `yaml:"ssh_tunnels,omitempty"`
	DSNTunnels []RuleEntry `yaml:"dsn_ssh_tunnels,omitempty"`
}

// AgentAllowed reports the allow_agent setting, defaulting to true.
func (c Config) AgentAllowed() bool {
	if c.AllowAgent == nil {
		return true
	}
	return *c.AllowAgent
}

// HostRules returns the host-pattern rules in declaration order.
func (c Config) HostRules() []model.Rule {
	return toRules(c.SSHTunnels, model.MatchHost)
}

// AliasRules returns the DSN-alias-pattern rules in declaration order.
func (c Config) AliasRules() []model.Rule {
	return toRules(c.DSNTunnels, model.MatchDSNAlias)
}

func toRules(entries []RuleEntry, kind model.MatchKind) []model.Rule {
	out := make([]model.Rule, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.Rule{Kind: kind, Pattern: e.Pattern, TunnelURL: e.Tunnel})
	}
	return out
}

// ConfigDir returns the application config directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/pgtunnel.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pgtunnel"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".config", "pgtunnel"), nil
}

// Load reads config.yaml from the config directory. A missing file is not an
// error; it yields the zero config (no rules, agent allowed).
func Load() (Config, error) {
	d, err := ConfigDir()
	if err != nil {
		return Config{}, err
	}
	return LoadFile(filepath.Join(d, "config.yaml"))
}

// LoadFile reads a config file from an explicit path.
func LoadFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrEmpty loads the configuration, degrading to an empty rule set with a
// warning when loading fails. A broken config file must not abort an
// invocation that may not even need a tunnel.
func LoadOrEmpty(logger *slog.Logger) Config {
	cfg, err := Load()
	if err != nil {
		logger.Warn("could not load pgtunnel config, proceeding without tunnel rules", "error", err)
		return Config{}
	}
	return cfg
}
