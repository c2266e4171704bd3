package connargs

import (
	"strconv"
	"strings"

	"pgtunnel/internal/model"
)

// Rewrite walks the token sequence once and substitutes the replacement
// host/port into every host-flag occurrence, port-flag occurrence, and
// host=/port= field of a dbname connection string. Flag spellings and all
// other tokens are preserved in their original relative order. After the
// walk, a host or port flag/value pair is appended when the input carried no
// explicit occurrence of it.
//
// Every occurrence is rewritten, not only the one that determined the
// resolved target; when the input carried several distinct values, all of
// them end up pointing at the replacement endpoint.
func Rewrite(tokens []string, tgt model.ConnectionTarget, host string, port int) []string {
	portStr := strconv.Itoa(port)
	out := make([]string, 0, len(tokens)+4)

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case (tok == "-h" || tok == "--host") && i+1 < len(tokens):
			out = append(out, tok, host)
			i++
		case strings.HasPrefix(tok, "--host="):
			out = append(out, "--host="+host)
		case (tok == "-p" || tok == "--port") && i+1 < len(tokens):
			out = append(out, tok, portStr)
			i++
		case strings.HasPrefix(tok, "--port="):
			out = append(out, "--port="+portStr)
		case (tok == "-d" || tok == "--dbname") && i+1 < len(tokens):
			out = append(out, tok, rewriteConninfo(tokens[i+1], host, portStr))
			i++
		case strings.HasPrefix(tok, "--dbname="):
			out = append(out, "--dbname="+rewriteConninfo(tok[len("--dbname="):], host, portStr))
		default:
			out = append(out, tok)
		}
	}

	if !tgt.HostExplicit {
		out = append(out, "-h", host)
	}
	if !tgt.PortExplicit {
		out = append(out, "-p", portStr)
	}
	return out
}

// rewriteConninfo substitutes the values of host= and port= fields in place,
// preserving every other key=value field, their order, and the original
// space separators. Values without such fields (including URI-form dbnames)
// are returned unchanged.
func rewriteConninfo(value, host, port string) string {
	if !strings.Contains(value, "host=") && !strings.Contains(value, "port=") {
		return value
	}
	parts := strings.Split(value, " ")
	for i, part := range parts {
		switch {
		case strings.HasPrefix(part, "host="):
			parts[i] = "host=" + host
		case strings.HasPrefix(part, "port="):
			parts[i] = "port=" + port
		}
	}
	return strings.Join(parts, " ")
}
