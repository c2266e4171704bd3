package model

import "time"

// ConnectionTarget is the effective database endpoint extracted from a token
// sequence. HostExplicit/PortExplicit record whether the value came from the
// tokens themselves rather than an environment default.
type ConnectionTarget struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	HostExplicit bool   `json:"host_explicit"`
	PortExplicit bool   `json:"port_explicit"`
}

// MatchKind selects which invocation attribute a tunnel rule matches against.
type MatchKind string

const (
	MatchHost     MatchKind = "host"
	MatchDSNAlias MatchKind = "dsn_alias"
)

// Rule maps a pattern to a tunnel URL. Rules live in ordered slices because
// the first full match in declaration order wins.
type Rule struct {
	Kind      MatchKind `json:"kind"`
	Pattern   string    `json:"pattern"`
	TunnelURL string    `json:"tunnel_url"`
}

type EndpointState string

const (
	EndpointDown     EndpointState = "down"
	EndpointStarting EndpointState = "starting"
	EndpointUp       EndpointState = "up"
	EndpointStopping EndpointState = "stopping"
	EndpointError    EndpointState = "error"
)

// Endpoint is one started tunnel bind. It is owned by a single invocation and
// never shared; Active flips true only once the bind is confirmed live and
// false exactly once on stop.
type Endpoint struct {
	SSHHost       string    `json:"ssh_host"`
	SSHPort       int       `json:"ssh_port"`
	SSHUser       string    `json:"ssh_user,omitempty"`
	SSHPassword   string    `json:"-"`
	RemoteHost    string    `json:"remote_host"`
	RemotePort    int       `json:"remote_port"`
	LocalBindHost string    `json:"local_bind_host"`
	LocalBindPort int       `json:"local_bind_port"`
	Active        bool      `json:"active"`
	StartedAt     time.Time `json:"-"`
}
