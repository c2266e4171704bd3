// Package doctor runs local diagnostics for pgtunnel: wrapped tools on PATH,
// tunnel rules that compile, and SSH agent reachability.
package doctor

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"

	"pgtunnel/internal/appconfig"
	"pgtunnel/internal/rules"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Issue struct {
	Severity       Severity `json:"severity"`
	Check          string   `json:"check"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type Report struct {
	Issues []Issue `json:"issues"`
}

// Run executes all local diagnostics.
func Run() Report {
	var issues []Issue

	for _, tool := range []string{"pg_dump", "pg_dumpall"} {
		if _, err := exec.LookPath(tool); err != nil {
			issues = append(issues, Issue{
				Severity:       SeverityHigh,
				Check:          "wrapped-tool",
				Target:         tool,
				Message:        fmt.Sprintf("%s not found on PATH", tool),
				Recommendation: "install the PostgreSQL client tools",
			})
		}
	}

	cfg, err := appconfig.Load()
	if err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityMedium,
			Check:          "config",
			Target:         "config.yaml",
			Message:        err.Error(),
			Recommendation: "fix or remove the pgtunnel config file; invocations degrade to no tunnel rules until then",
		})
	} else {
		for _, e := range rules.Validate(cfg.HostRules()) {
			issues = append(issues, Issue{
				Severity:       SeverityMedium,
				Check:          "host-rule",
				Target:         "ssh_tunnels",
				Message:        e.Error(),
				Recommendation: "patterns are Go regular expressions matched against the full host",
			})
		}
		for _, e := range rules.Validate(cfg.AliasRules()) {
			issues = append(issues, Issue{
				Severity:       SeverityMedium,
				Check:          "dsn-rule",
				Target:         "dsn_ssh_tunnels",
				Message:        e.Error(),
				Recommendation: "patterns are Go regular expressions matched against the full DSN alias",
			})
		}
	}

	issues = append(issues, agentIssues()...)
	issues = append(issues, knownHostsIssues()...)
	return Report{Issues: issues}
}

func agentIssues() []Issue {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return []Issue{{
			Severity:       SeverityMedium,
			Check:          "ssh-agent",
			Target:         "SSH_AUTH_SOCK",
			Message:        "no SSH agent socket in the environment",
			Recommendation: "start ssh-agent and add a key; agent auth is the only key source for tunnels",
		}}
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return []Issue{{
			Severity:       SeverityMedium,
			Check:          "ssh-agent",
			Target:         sock,
			Message:        fmt.Sprintf("agent socket unreachable: %v", err),
			Recommendation: "restart ssh-agent or re-export SSH_AUTH_SOCK",
		}}
	}
	_ = conn.Close()
	return nil
}

func knownHostsIssues() []Issue {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	path := filepath.Join(home, ".ssh", "known_hosts")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return []Issue{{
			Severity:       SeverityLow,
			Check:          "known-hosts",
			Target:         path,
			Message:        "no known_hosts file; tunnel host keys will be accepted unverified",
			Recommendation: "connect to the SSH host once with ssh to record its host key",
		}}
	}
	return nil
}
