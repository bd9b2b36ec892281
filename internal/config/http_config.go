package config

import (
	"time"
)

const httpTimeoutVar = "HTTP_TIMEOUT"

type HTTP struct{}

var _ HTTPConfig = HTTP{}

// GetHTTPTimeout returns the per-request timeout for backend calls.
// Unparseable values fall back to the default rather than failing startup.
func (HTTP) GetHTTPTimeout() time.Duration {
	const defaultTimeout = 30 * time.Second
	raw := GetEnv(httpTimeoutVar, "")
	if raw == "" {
		return defaultTimeout
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return defaultTimeout
	}
	return d
}
