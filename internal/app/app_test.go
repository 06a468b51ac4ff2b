package app

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"rulecluster/internal/config"
)

const testConfig = `{
  "node": {"id": "n1"},
  "logging": {"level": "error", "console": false, "file": {"enabled": false, "path": ""}},
  "discovery": {"driver": "static", "static": {"s1": "127.0.0.1:1", "s2": "127.0.0.1:2"}},
  "rpc": {"call_timeout": "1s", "alive_timeout": "200ms"},
  "cluster": {"schedulers": ["s1", "s2"]},
  "monitor": {"enabled": false},
  "http": {"enabled": false}
}`

func newTestApp(t *testing.T) *App {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(testConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	a, err := NewApp(path)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

func TestStartBindsConfiguredSchedulers(t *testing.T) {
	a := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := a.Registry().IDs(); !slices.Equal(got, []string{"s1", "s2"}) {
		t.Fatalf("ids = %v", got)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(a.Registry().IDs()) != 0 {
		t.Fatalf("registry not closed")
	}
	select {
	case <-a.Done():
	default:
		t.Fatalf("done not closed after stop")
	}
}

func TestApplyReconcilesClusterAndStaticTargets(t *testing.T) {
	a := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer a.Stop(context.Background(), StopAppStop)

	oldCfg := a.cfgm.Get()
	next := *oldCfg
	next.Discovery.Static = map[string]string{"s1": "127.0.0.1:1", "s3": "127.0.0.1:3"}
	next.Cluster.Schedulers = []string{"s1", "s3"}
	a.apply(ctx, oldCfg, &next)

	if got := a.Registry().IDs(); !slices.Equal(got, []string{"s1", "s3"}) {
		t.Fatalf("ids = %v", got)
	}
}

func TestMappingDefaults(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	to, err := mapRPC(cfg)
	if err != nil {
		t.Fatalf("rpc: %v", err)
	}
	if to.call != config.DefaultCallTimeout || to.alive != config.DefaultAliveTimeout {
		t.Fatalf("timeouts = %+v", to)
	}
	mc, err := mapMonitor(cfg)
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if mc.Interval != config.DefaultMonitorInterval || mc.DiscoverInterval != config.DefaultDiscoverInterval {
		t.Fatalf("monitor = %+v", mc)
	}
	if _, addr, err := mapHTTP(cfg); err != nil || addr != config.DefaultHTTPAddr {
		t.Fatalf("addr = %q err = %v", addr, err)
	}
	cfg.HTTP.Pprof = true
	cfg.HTTP.Addr = "0.0.0.0:7480"
	if _, _, err := mapHTTP(cfg); err == nil {
		t.Fatalf("public pprof without token accepted")
	}
	cfg.HTTP.PprofToken = "secret"
	if _, _, err := mapHTTP(cfg); err != nil {
		t.Fatalf("pprof with token: %v", err)
	}
	if _, enabled, err := mapStorageConfig(cfg); enabled || err != nil {
		t.Fatalf("storage enabled=%v err=%v", enabled, err)
	}

	cfg.Storage = &config.StorageConfig{Driver: "sqlite"}
	if _, _, err := mapStorageConfig(cfg); err == nil {
		t.Fatalf("sqlite without path accepted")
	}
	cfg.Discovery.Static = map[string]string{"s1": "h:1"}
	if got := staticTargets(cfg); got["/rule-engine/cluster-scheduler:s1"] != "h:1" {
		t.Fatalf("targets = %v", got)
	}
}
