// Package rules decides whether a tunnel applies to an invocation and which
// tunnel URL to use. Rules are evaluated strictly in declaration order; a
// pattern must match its candidate in full, not as a substring.
package rules

import (
	"fmt"
	"log/slog"
	"regexp"

	"pgtunnel/internal/model"
	"pgtunnel/internal/tunnel"
)

// Resolver holds the explicit override and the ordered rule sets for one
// invocation.
type Resolver struct {
	// OverrideURL, when non-empty, wins over every configured rule.
	OverrideURL string
	// HostRules are matched against the resolved database host.
	HostRules []model.Rule
	// AliasRules are matched against the DSN alias, when one was supplied.
	AliasRules []model.Rule

	Logger *slog.Logger
}

// Resolve returns the tunnel URL for the given host and optional DSN alias,
// or ("", false) when the connection should be made directly. Resolution
// order: explicit override, then alias rules, then host rules; within each
// ordered list the first full match wins.
func (r *Resolver) Resolve(host, dsnAlias string) (string, bool) {
	if r.OverrideURL != "" {
		return r.OverrideURL, true
	}
	if dsnAlias != "" {
		if url, ok := r.match(r.AliasRules, dsnAlias, "dsn"); ok {
			return url, true
		}
	}
	if host != "" {
		if url, ok := r.match(r.HostRules, host, "host"); ok {
			return url, true
		}
	}
	return "", false
}

func (r *Resolver) match(ruleSet []model.Rule, candidate, what string) (string, bool) {
	for _, rule := range ruleSet {
		ok, err := fullMatch(rule.Pattern, candidate)
		if err != nil {
			r.logger().Warn("skipping unparsable tunnel rule",
				"pattern", rule.Pattern, "error", err)
			continue
		}
		if ok {
			r.logger().Debug("tunnel rule matched",
				what, candidate, "pattern", rule.Pattern, "tunnel", tunnel.Redact(rule.TunnelURL))
			return rule.TunnelURL, true
		}
	}
	return "", false
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// fullMatch reports whether pattern matches candidate in its entirety. The
// pattern is anchored at both ends so "abc" does not match "xabcx".
func fullMatch(pattern, candidate string) (bool, error) {
	re, err := regexp.Compile(fmt.Sprintf(`\A(?:%s)\z`, pattern))
	if err != nil {
		return false, err
	}
	return re.MatchString(candidate), nil
}

// Validate compiles every pattern in the given rule set and returns one error
// per pattern that fails, for use by diagnostics.
func Validate(ruleSet []model.Rule) []error {
	var errs []error
	for _, rule := range ruleSet {
		if _, err := fullMatch(rule.Pattern, ""); err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", rule.Pattern, err))
		}
	}
	return errs
}
