package app

import (
	"fmt"
	"strings"
	"time"

	"rulecluster/internal/cluster"
	"rulecluster/internal/config"
	"rulecluster/internal/discovery"
	"rulecluster/internal/httpapi"
	"rulecluster/internal/monitor"
	"rulecluster/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

type rpcTimeouts struct {
	call  time.Duration
	alive time.Duration
}

func mapRPC(cfg *config.Config) (rpcTimeouts, error) {
	call, err := config.ParseDurationOrDefault("rpc.call_timeout", cfg.RPC.CallTimeout, config.DefaultCallTimeout)
	if err != nil {
		return rpcTimeouts{}, err
	}
	alive, err := config.ParseDurationOrDefault("rpc.alive_timeout", cfg.RPC.AliveTimeout, config.DefaultAliveTimeout)
	if err != nil {
		return rpcTimeouts{}, err
	}
	return rpcTimeouts{call: call, alive: alive}, nil
}

// mapMonitor always schedules a reconcile pass; without cluster.discover it
// only retries schedulers that failed to bind.
func mapMonitor(cfg *config.Config) (monitor.Config, error) {
	interval, err := config.ParseDurationOrDefault("monitor.interval", cfg.Monitor.Interval, config.DefaultMonitorInterval)
	if err != nil {
		return monitor.Config{}, err
	}
	discover, err := config.ParseDurationOrDefault("monitor.discover_interval", cfg.Monitor.DiscoverInterval, config.DefaultDiscoverInterval)
	if err != nil {
		return monitor.Config{}, err
	}
	return monitor.Config{
		Enabled:          cfg.Monitor.Enabled,
		Interval:         interval,
		DiscoverInterval: discover,
		WarnPerMinute:    cfg.Monitor.WarnPerMinute,
	}, nil
}

func mapHTTP(cfg *config.Config) (httpapi.Config, string, error) {
	addr := strings.TrimSpace(cfg.HTTP.Addr)
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}
	hc := httpapi.Config{
		RatePerSec: cfg.HTTP.RatePerSec,
		Burst:      cfg.HTTP.Burst,
		Pprof:      cfg.HTTP.Pprof,
		PprofToken: strings.TrimSpace(cfg.HTTP.PprofToken),
	}
	// Prevent accidental public exposure of profiles without auth.
	if hc.Pprof && hc.PprofToken == "" && !httpapi.IsLoopbackAddr(addr) {
		return httpapi.Config{}, "", fmt.Errorf("http.pprof on non-loopback addr %q requires http.pprof_token", addr)
	}
	return hc, addr, nil
}

// staticTargets keys the configured id -> host:port table by logical address.
func staticTargets(cfg *config.Config) map[string]string {
	out := make(map[string]string, len(cfg.Discovery.Static))
	for id, target := range cfg.Discovery.Static {
		out[cluster.Address(strings.TrimSpace(id))] = target
	}
	return out
}

func discoveryDriver(cfg *config.Config) string {
	d := strings.ToLower(strings.TrimSpace(cfg.Discovery.Driver))
	if d == "" {
		return "static"
	}
	return d
}

// discoveryBackend is the resolver in use plus what the app needs to manage it.
type discoveryBackend struct {
	resolver discovery.Resolver
	lister   discovery.Lister
	static   *discovery.Static // static driver only
	etcd     *discovery.Etcd   // etcd driver only
}

func newDiscovery(cfg *config.Config) (*discoveryBackend, error) {
	switch discoveryDriver(cfg) {
	case "etcd":
		ec := cfg.Discovery.Etcd
		dial, err := config.ParseDurationOrDefault("discovery.etcd.dial_timeout", ec.DialTimeout, config.DefaultEtcdDialTimeout)
		if err != nil {
			return nil, err
		}
		e, err := discovery.NewEtcd(discovery.EtcdConfig{Endpoints: ec.Endpoints, Prefix: ec.Prefix, DialTimeout: dial})
		if err != nil {
			return nil, err
		}
		return &discoveryBackend{resolver: e, lister: e, etcd: e}, nil
	default:
		s := discovery.NewStatic(staticTargets(cfg))
		return &discoveryBackend{resolver: s, lister: s, static: s}, nil
	}
}

func (d *discoveryBackend) Close() error {
	if d.etcd != nil {
		return d.etcd.Close()
	}
	return nil
}
