package config

import (
	"maps"
	"slices"
	"strings"

	"rulecluster/pkg/logx"
)

// Sections that may change on reload.
const (
	SectionLogging   = "logging"
	SectionDiscovery = "discovery"
	SectionRPC       = "rpc"
	SectionCluster   = "cluster"
	SectionMonitor   = "monitor"
	SectionHTTP      = "http"
	SectionStorage   = "storage"
)

// SummarizeChange returns the changed sections and log fields describing them.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, SectionLogging)
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	od, nd := oldCfg.Discovery, newCfg.Discovery
	if !strings.EqualFold(od.Driver, nd.Driver) || !maps.Equal(od.Static, nd.Static) || !etcdEqual(od.Etcd, nd.Etcd) {
		changed = append(changed, SectionDiscovery)
		attrs = append(attrs,
			logx.String("discovery.driver", nd.Driver),
			logx.Int("discovery.static_count", len(nd.Static)),
		)
	}

	if oldCfg.RPC != newCfg.RPC {
		changed = append(changed, SectionRPC)
		attrs = append(attrs,
			logx.String("rpc.call_timeout", newCfg.RPC.CallTimeout),
			logx.String("rpc.alive_timeout", newCfg.RPC.AliveTimeout),
		)
	}

	if !slices.Equal(oldCfg.Cluster.Schedulers, newCfg.Cluster.Schedulers) || oldCfg.Cluster.Discover != newCfg.Cluster.Discover {
		changed = append(changed, SectionCluster)
		attrs = append(attrs,
			logx.Int("cluster.scheduler_count", len(newCfg.Cluster.Schedulers)),
			logx.Bool("cluster.discover", newCfg.Cluster.Discover),
		)
	}

	if oldCfg.Monitor != newCfg.Monitor {
		changed = append(changed, SectionMonitor)
		attrs = append(attrs,
			logx.Bool("monitor.enabled", newCfg.Monitor.Enabled),
			logx.String("monitor.interval", newCfg.Monitor.Interval),
		)
	}

	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, SectionHTTP)
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", newCfg.HTTP.Addr),
		)
	}

	if derefStorage(oldCfg.Storage) != derefStorage(newCfg.Storage) {
		changed = append(changed, SectionStorage)
		attrs = append(attrs, logx.String("storage.driver", derefStorage(newCfg.Storage).Driver))
	}
	return changed, attrs
}

func etcdEqual(a, b *EtcdConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return slices.Equal(a.Endpoints, b.Endpoints) && a.Prefix == b.Prefix && a.DialTimeout == b.DialTimeout
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}
