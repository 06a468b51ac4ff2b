package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the parts of cfg that decoding cannot.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	switch d := strings.ToLower(strings.TrimSpace(cfg.Discovery.Driver)); d {
	case "", "static":
	case "etcd":
		if cfg.Discovery.Etcd == nil || len(cfg.Discovery.Etcd.Endpoints) == 0 {
			errs = append(errs, errors.New("discovery.etcd.endpoints is required for the etcd driver"))
		} else if _, err := ParseDurationField("discovery.etcd.dial_timeout", cfg.Discovery.Etcd.DialTimeout); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("discovery.driver: unknown driver %q", d))
	}

	seen := map[string]bool{}
	for i, id := range cfg.Cluster.Schedulers {
		id = strings.TrimSpace(id)
		switch {
		case id == "":
			errs = append(errs, fmt.Errorf("cluster.schedulers[%d]: empty id", i))
		case seen[id]:
			errs = append(errs, fmt.Errorf("cluster.schedulers[%d]: duplicate id %q", i, id))
		}
		seen[id] = true
	}

	for path, raw := range map[string]string{
		"rpc.call_timeout":          cfg.RPC.CallTimeout,
		"rpc.alive_timeout":         cfg.RPC.AliveTimeout,
		"monitor.interval":          cfg.Monitor.Interval,
		"monitor.discover_interval": cfg.Monitor.DiscoverInterval,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Monitor.WarnPerMinute < 0 {
		errs = append(errs, errors.New("monitor.warn_per_minute must be >= 0"))
	}

	if cfg.HTTP.RatePerSec < 0 || cfg.HTTP.Burst < 0 {
		errs = append(errs, errors.New("http.rate_per_sec and http.burst must be >= 0"))
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(st.Path) == "" {
				errs = append(errs, errors.New("storage.path is required"))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", st.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", st.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
