// Package sshcfg resolves a tunnel destination against the user's OpenSSH
// client configuration. Only the directives that affect how pgtunnel reaches
// the bastion are read: HostName, User and Port. Everything else in the file
// is ignored.
package sshcfg

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"pgtunnel/internal/util"
)

// Host is the subset of an ssh_config Host block that pgtunnel consumes.
// Identity files are deliberately not read: key material only ever comes
// from the agent.
type Host struct {
	HostName string
	User     string
	Port     int
}

// DefaultPath returns ~/.ssh/config.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".ssh", "config"), nil
}

type rawBlock struct {
	patterns []string
	values   map[string][]string
}

// Lookup resolves alias against the config file at path. It returns the
// merged directives of every block whose patterns match the alias, last
// value winning within a block and earlier blocks winning nothing extra, the
// same way OpenSSH applies them. A missing config file resolves to nothing.
func Lookup(path, alias string) (Host, bool, error) {
	blocks, err := parseFile(path, map[string]bool{}, 0)
	if err != nil {
		return Host{}, false, err
	}

	h := Host{}
	found := false
	for _, b := range blocks {
		if !matchesAny(alias, b.patterns) {
			continue
		}
		found = true
		if vals := b.values["hostname"]; len(vals) > 0 {
			h.HostName = vals[len(vals)-1]
		}
		if vals := b.values["user"]; len(vals) > 0 {
			h.User = vals[len(vals)-1]
		}
		if vals := b.values["port"]; len(vals) > 0 {
			if p, err := strconv.Atoi(vals[len(vals)-1]); err == nil && util.ValidatePort(p) == nil {
				h.Port = p
			}
		}
	}
	return h, found, nil
}

func parseFile(path string, seen map[string]bool, depth int) ([]rawBlock, error) {
	if depth > 16 {
		return nil, fmt.Errorf("include depth exceeded at %s", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[abs] {
		return nil, nil
	}
	seen[abs] = true

	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", abs, err)
	}
	defer f.Close()

	var (
		blocks      []rawBlock
		current     = rawBlock{patterns: []string{"*"}, values: map[string][]string{}}
		hasHostDecl bool
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = stripInlineComment(line)
		if line == "" {
			continue
		}

		key, value, ok := splitDirective(line)
		if !ok {
			continue
		}

		switch strings.ToLower(key) {
		case "include":
			for _, pattern := range strings.Fields(value) {
				incPattern := expandHome(pattern)
				if !filepath.IsAbs(incPattern) {
					incPattern = filepath.Join(filepath.Dir(abs), incPattern)
				}
				matches, globErr := filepath.Glob(incPattern)
				if globErr != nil {
					continue
				}
				sort.Strings(matches)
				for _, m := range matches {
					childBlocks, childErr := parseFile(m, seen, depth+1)
					if childErr != nil {
						continue
					}
					blocks = append(blocks, childBlocks...)
				}
			}
		case "host":
			if hasHostDecl || len(current.values) > 0 {
				blocks = append(blocks, current)
			}
			patterns := strings.Fields(value)
			if len(patterns) == 0 {
				patterns = []string{"*"}
			}
			current = rawBlock{patterns: patterns, values: map[string][]string{}}
			hasHostDecl = true
		default:
			lk := strings.ToLower(key)
			current.values[lk] = append(current.values[lk], value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", abs, err)
	}

	if hasHostDecl || len(current.values) > 0 {
		blocks = append(blocks, current)
	}
	return blocks, nil
}

func matchesAny(alias string, patterns []string) bool {
	matched := false
	for _, p := range patterns {
		negated := strings.HasPrefix(p, "!")
		pat := strings.TrimPrefix(p, "!")
		ok, err := filepath.Match(pat, alias)
		if err != nil || !ok {
			continue
		}
		if negated {
			return false
		}
		matched = true
	}
	return matched
}

func splitDirective(line string) (key, value string, ok bool) {
	if i := strings.IndexAny(line, " \t"); i > 0 {
		key = strings.TrimSpace(line[:i])
		value = strings.TrimSpace(line[i+1:])
		return key, value, key != "" && value != ""
	}
	if i := strings.Index(line, "="); i > 0 {
		key = strings.TrimSpace(line[:i])
		value = strings.TrimSpace(line[i+1:])
		return key, value, key != "" && value != ""
	}
	return "", "", false
}

func stripInlineComment(line string) string {
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuote = !inQuote
		case '#':
			if !inQuote {
				return strings.TrimSpace(line[:i])
			}
		}
	}
	return strings.TrimSpace(line)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
