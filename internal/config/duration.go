package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultCallTimeout      = 10 * time.Second
	DefaultAliveTimeout     = 5 * time.Second
	DefaultMonitorInterval  = 15 * time.Second
	DefaultDiscoverInterval = 30 * time.Second
	DefaultEtcdDialTimeout  = 5 * time.Second
	DefaultHTTPAddr         = "127.0.0.1:7480"
)

// ParseDurationField parses raw as a non-negative duration. Empty is zero.
// path names the field in error messages.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
