package storage

import (
	"context"
	"errors"
	"strings"

	"rulecluster/pkg/logx"
)

// Store is the persistence API used by the monitor and the HTTP API.
type Store interface {
	AppendProbe(ctx context.Context, r ProbeRecord) error
	// RecentProbes returns up to limit records for schedulerID, newest first.
	RecentProbes(ctx context.Context, schedulerID string, limit int) ([]ProbeRecord, error)
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
