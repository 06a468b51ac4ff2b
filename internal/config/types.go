package config

// Config is the clusterd configuration file (JSON or YAML).
//
// Durations are Go duration strings ("500ms", "10s", "1m"). Omitted or
// "0s" durations fall back to the defaults below.
type Config struct {
	Node      NodeConfig      `json:"node"`
	Logging   LoggingConfig   `json:"logging"`
	Discovery DiscoveryConfig `json:"discovery"`
	RPC       RPCConfig       `json:"rpc"`
	Cluster   ClusterConfig   `json:"cluster"`
	Monitor   MonitorConfig   `json:"monitor"`
	HTTP      HTTPConfig      `json:"http"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
}

type NodeConfig struct {
	ID string `json:"id"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DiscoveryConfig selects how scheduler addresses become dial targets.
//
// Example:
//
//	"discovery": { "driver": "static", "static": { "sched-1": "10.0.0.5:7400" } }
type DiscoveryConfig struct {
	// Driver is "static" (default) or "etcd".
	Driver string `json:"driver"`
	// Static maps scheduler id to host:port.
	Static map[string]string `json:"static,omitempty"`
	Etcd   *EtcdConfig       `json:"etcd,omitempty"`
}

type EtcdConfig struct {
	Endpoints   []string `json:"endpoints"`
	Prefix      string   `json:"prefix,omitempty"`
	DialTimeout string   `json:"dial_timeout,omitempty"`
}

type RPCConfig struct {
	// CallTimeout bounds every unary remote call.
	CallTimeout string `json:"call_timeout,omitempty"`
	// AliveTimeout bounds liveness probes; expiry reports "not alive".
	AliveTimeout string `json:"alive_timeout,omitempty"`
}

type ClusterConfig struct {
	// Schedulers lists the remote scheduler ids to bind.
	Schedulers []string `json:"schedulers"`
	// Discover also binds every scheduler the discovery backend lists.
	Discover bool `json:"discover,omitempty"`
}

type MonitorConfig struct {
	Enabled bool `json:"enabled"`
	// Interval between liveness probes of each scheduler.
	Interval string `json:"interval,omitempty"`
	// DiscoverInterval between discovery syncs (cluster.discover only).
	DiscoverInterval string `json:"discover_interval,omitempty"`
	// WarnPerMinute caps "scheduler down" warnings.
	WarnPerMinute int `json:"warn_per_minute,omitempty"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	// RatePerSec limits API requests per second; 0 disables the limit.
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
	// Pprof mounts /debug/pprof on the API. A non-loopback addr needs a token.
	Pprof      bool   `json:"pprof,omitempty"`
	PprofToken string `json:"pprof_token,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/clusterd.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
	KeepProbes  int    `json:"keep_probes,omitempty"`
}
