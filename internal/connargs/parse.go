// Package connargs extracts and rewrites connection-related arguments for the
// wrapped PostgreSQL client tools. Only the host, port and dbname flags are
// understood; every other token is opaque and passes through verbatim.
package connargs

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"pgtunnel/internal/model"
	"pgtunnel/internal/util"
)

const (
	DefaultHost = "localhost"
	DefaultPort = 5432
)

// ParseError reports a malformed numeric port value, naming the token it was
// found in. It aborts an invocation before any tunnel is attempted.
type ParseError struct {
	Token string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid port value in %q: must be a non-negative integer", e.Token)
}

// Defaults returns the fallback host and port from PGHOST/PGPORT, used when
// the token sequence carries no explicit value.
func Defaults() (string, int, error) {
	host := util.DefaultString(os.Getenv("PGHOST"), DefaultHost)
	port := DefaultPort
	if v := os.Getenv("PGPORT"); strings.TrimSpace(v) != "" {
		n, err := parsePort(v)
		if err != nil {
			return "", 0, &ParseError{Token: "PGPORT=" + v}
		}
		port = n
	}
	return host, port, nil
}

// Parse scans tokens left to right and returns the effective connection
// target. Each host/port occurrence, whether a discrete flag (both "flag
// value" and "flag=value" spellings) or a host=/port= field inside a
// space-separated dbname connection string, overwrites the previously
// recorded value: last occurrence wins. The scan is non-destructive; tokens
// are only observed, never filtered or reordered.
func Parse(tokens []string, defaultHost string, defaultPort int) (model.ConnectionTarget, error) {
	tgt := model.ConnectionTarget{Host: defaultHost, Port: defaultPort}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case (tok == "-h" || tok == "--host") && i+1 < len(tokens):
			tgt.Host = tokens[i+1]
			tgt.HostExplicit = true
			i++
		case strings.HasPrefix(tok, "--host="):
			tgt.Host = tok[len("--host="):]
			tgt.HostExplicit = true
		case (tok == "-p" || tok == "--port") && i+1 < len(tokens):
			n, err := parsePort(tokens[i+1])
			if err != nil {
				return model.ConnectionTarget{}, &ParseError{Token: tokens[i+1]}
			}
			tgt.Port = n
			tgt.PortExplicit = true
			i++
		case strings.HasPrefix(tok, "--port="):
			n, err := parsePort(tok[len("--port="):])
			if err != nil {
				return model.ConnectionTarget{}, &ParseError{Token: tok}
			}
			tgt.Port = n
			tgt.PortExplicit = true
		case (tok == "-d" || tok == "--dbname") && i+1 < len(tokens):
			if err := scanConninfo(tokens[i+1], &tgt); err != nil {
				return model.ConnectionTarget{}, err
			}
			i++
		case strings.HasPrefix(tok, "--dbname="):
			if err := scanConninfo(tok[len("--dbname="):], &tgt); err != nil {
				return model.ConnectionTarget{}, err
			}
		}
	}
	return tgt, nil
}

// scanConninfo inspects a space-separated key=value connection string for
// host= and port= fields. URI-form values never split into such fields and
// therefore pass through uninspected. Splitting on single spaces mirrors
// rewriteConninfo exactly so that parsing and rewriting can never disagree
// about which fields exist.
func scanConninfo(value string, tgt *model.ConnectionTarget) error {
	for _, field := range strings.Split(value, " ") {
		switch {
		case strings.HasPrefix(field, "host="):
			tgt.Host = field[len("host="):]
			tgt.HostExplicit = true
		case strings.HasPrefix(field, "port="):
			n, err := parsePort(field[len("port="):])
			if err != nil {
				return &ParseError{Token: field}
			}
			tgt.Port = n
			tgt.PortExplicit = true
		}
	}
	return nil
}

func parsePort(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative port %d", n)
	}
	return n, nil
}
