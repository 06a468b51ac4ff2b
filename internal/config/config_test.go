package config

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

const sampleJSON = `{
  "node": {"id": "proxy-1"},
  "logging": {"level": "debug", "console": true},
  "discovery": {"driver": "static", "static": {"sched-1": "127.0.0.1:7400"}},
  "rpc": {"call_timeout": "3s", "alive_timeout": "1s"},
  "cluster": {"schedulers": ["sched-1"]},
  "monitor": {"enabled": true, "interval": "10s"},
  "http": {"enabled": true, "addr": "127.0.0.1:0", "rate_per_sec": 20, "burst": 40},
  "storage": {"driver": "file", "path": "./data/state.json"}
}`

const sampleYAML = `
node:
  id: proxy-1
discovery:
  driver: etcd
  etcd:
    endpoints: ["127.0.0.1:2379"]
    dial_timeout: 2s
cluster:
  schedulers: [sched-1, sched-2]
  discover: true
monitor:
  enabled: true
`

func TestDecode(t *testing.T) {
	t.Parallel()

	cfg, err := Decode("c.json", []byte(sampleJSON))
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if cfg.Node.ID != "proxy-1" || cfg.Discovery.Static["sched-1"] != "127.0.0.1:7400" || cfg.HTTP.Burst != 40 {
		t.Fatalf("json decoded = %+v", cfg)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}

	cfg, err = Decode("c.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if cfg.Discovery.Etcd == nil || cfg.Discovery.Etcd.DialTimeout != "2s" || !cfg.Cluster.Discover {
		t.Fatalf("yaml decoded = %+v", cfg)
	}
	if !slices.Equal(cfg.Cluster.Schedulers, []string{"sched-1", "sched-2"}) {
		t.Fatalf("schedulers = %v", cfg.Cluster.Schedulers)
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, path, data, want string
	}{
		{"unknown field", "c.json", `{"bogus": 1}`, "unknown field"},
		{"trailing data", "c.json", `{} {}`, "trailing data"},
		{"bad duration", "c.json", `{"rpc": {"call_timeout": "soon"}}`, "rpc.call_timeout"},
		{"negative duration", "c.json", `{"monitor": {"interval": "-1s"}}`, "monitor.interval"},
		{"etcd without endpoints", "c.yaml", "discovery:\n  driver: etcd\n", "endpoints"},
		{"unknown discovery", "c.json", `{"discovery": {"driver": "consul"}}`, "consul"},
		{"duplicate scheduler", "c.json", `{"cluster": {"schedulers": ["a", "a"]}}`, "duplicate"},
		{"empty scheduler", "c.json", `{"cluster": {"schedulers": [" "]}}`, "empty id"},
		{"storage without path", "c.json", `{"storage": {"driver": "sqlite"}}`, "storage.path"},
		{"yaml unknown field", "c.yml", "nope: true\n", "unknown field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(tt.path, []byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Decode error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", 7 * time.Second},
		{"0s", 7 * time.Second},
		{" 250ms ", 250 * time.Millisecond},
		{"2m", 2 * time.Minute},
	}
	for _, tt := range tests {
		got, err := ParseDurationOrDefault("x", tt.raw, 7*time.Second)
		if err != nil || got != tt.want {
			t.Fatalf("ParseDurationOrDefault(%q) = %v, %v", tt.raw, got, err)
		}
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	a, err := Decode("c.json", []byte(sampleJSON))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b, _ := Decode("c.json", []byte(sampleJSON))

	if changed, _ := SummarizeChange(a, b); len(changed) != 0 {
		t.Fatalf("identical configs changed = %v", changed)
	}

	b.Logging.Level = "warn"
	b.Cluster.Schedulers = append(b.Cluster.Schedulers, "sched-2")
	b.Discovery.Static = map[string]string{"sched-2": "10.0.0.2:7400"}
	changed, attrs := SummarizeChange(a, b)
	want := []string{SectionLogging, SectionDiscovery, SectionCluster}
	if !slices.Equal(changed, want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	if len(attrs) == 0 {
		t.Fatalf("expected log fields")
	}
}

func TestWatchPublishesValidEdits(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "clusterd.json")
	if err := os.WriteFile(path, []byte(sampleJSON), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	// Give the watcher a moment to register.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte(`{"bogus": true}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(2 * reloadDebounce)
	if got := m.Get(); got.Node.ID != "proxy-1" {
		t.Fatalf("invalid edit was committed: %+v", got)
	}

	edited := strings.Replace(sampleJSON, `"proxy-1"`, `"proxy-2"`, 1)
	if err := os.WriteFile(path, []byte(edited), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case cfg := <-ch:
		if cfg.Node.ID != "proxy-2" {
			t.Fatalf("published = %+v", cfg.Node)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload published")
	}
	if m.Get().Node.ID != "proxy-2" {
		t.Fatalf("Get not updated")
	}
}
