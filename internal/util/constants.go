package util

import "time"

const (
	// BindProbeTimeout bounds the loopback TCP probe that confirms a freshly
	// started tunnel bind is accepting connections. Loopback connects
	// complete well under this unless the bind is genuinely dead.
	BindProbeTimeout = 500 * time.Millisecond
)
