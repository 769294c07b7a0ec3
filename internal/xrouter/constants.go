package xrouter

import "time"

// Protocol-wide timing and sizing defaults.
const (
	DefaultTimeoutMillis = 20000
	ConfigRefresh        = 300 * time.Second
	ConfigRateLimit      = 10 * time.Second
	SendRetryWait        = 3000 * time.Millisecond
)
