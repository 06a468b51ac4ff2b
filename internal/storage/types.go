package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage. An empty Driver or "none" disables it.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only
	// KeepProbes bounds the probe history kept per scheduler.
	KeepProbes int
}

const DefaultKeepProbes = 256

// ProbeRecord is the outcome of one liveness probe.
type ProbeRecord struct {
	At          time.Time `json:"at"`
	SchedulerID string    `json:"scheduler_id"`
	Alive       bool      `json:"alive"`
	Error       string    `json:"error,omitempty"`
	TookMS      int64     `json:"took_ms"`
}

// AuditEntry records an operator action taken through the HTTP API.
type AuditEntry struct {
	At          time.Time `json:"at"`
	RequestID   string    `json:"request_id"`
	Remote      string    `json:"remote,omitempty"`
	Action      string    `json:"action"`
	SchedulerID string    `json:"scheduler_id"`
	Target      string    `json:"target,omitempty"`
	OK          bool      `json:"ok"`
	Error       string    `json:"error,omitempty"`
	TookMS      int64     `json:"took_ms"`
}

func keepProbes(cfg Config) int {
	if cfg.KeepProbes <= 0 {
		return DefaultKeepProbes
	}
	return cfg.KeepProbes
}
