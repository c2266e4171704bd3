package tunnel

import "errors"

var (
	// ErrCapabilityUnavailable means no way to authenticate the forwarding
	// connection exists: agent authentication is the only permitted key
	// source and no agent is reachable, and the tunnel URL carries no
	// password.
	ErrCapabilityUnavailable = errors.New("tunnel: ssh forwarding capability unavailable")

	// ErrHandshake covers dial and handshake failures against the SSH host.
	ErrHandshake = errors.New("tunnel: ssh handshake failed")

	// ErrNotActive means the local bind could not be confirmed live after
	// the forwarder reported success.
	ErrNotActive = errors.New("tunnel: local bind not active")
)
