package discovery

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"testing"

	"go.etcd.io/etcd/api/v3/etcdserverpb"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

func TestStaticResolve(t *testing.T) {
	t.Parallel()
	s := NewStatic(map[string]string{
		"/a": "10.0.0.1:7000",
		"/b": " 10.0.0.2:7000 ",
		"/c": "",
	})

	tests := []struct {
		address string
		want    string
		err     error
	}{
		{"/a", "10.0.0.1:7000", nil},
		{"/b", "10.0.0.2:7000", nil},
		{"/c", "", ErrNotFound},
		{"/missing", "", ErrNotFound},
	}
	for _, tt := range tests {
		got, err := s.Resolve(context.Background(), tt.address)
		if !errors.Is(err, tt.err) || got != tt.want {
			t.Fatalf("Resolve(%q) = %q, %v; want %q, %v", tt.address, got, err, tt.want, tt.err)
		}
	}

	list, err := s.List(context.Background())
	if err != nil || !slices.Equal(list, []string{"/a", "/b"}) {
		t.Fatalf("List = %v, %v", list, err)
	}

	s.Set(map[string]string{"/z": "h:1"})
	if _, err := s.Resolve(context.Background(), "/a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected /a gone after Set, got %v", err)
	}
}

func TestStaticHonorsCanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewStatic(nil).Resolve(ctx, "/a"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// memKV implements the subset of clientv3.KV used by Etcd.
type memKV struct {
	clientv3.KV

	mu   sync.Mutex
	data map[string]string
}

func (m *memKV) Put(_ context.Context, key, val string, _ ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]string{}
	}
	m.data[key] = val
	return (*clientv3.PutResponse)(&etcdserverpb.PutResponse{}), nil
}

func (m *memKV) Delete(_ context.Context, key string, _ ...clientv3.OpOption) (*clientv3.DeleteResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return (*clientv3.DeleteResponse)(&etcdserverpb.DeleteRangeResponse{}), nil
}

func (m *memKV) Get(_ context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	op := clientv3.OpGet(key, opts...)
	end := string(op.RangeBytes())

	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if k == key || (end != "" && k >= key && k < end) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	resp := &etcdserverpb.RangeResponse{}
	for _, k := range keys {
		kv := &mvccpb.KeyValue{Key: []byte(k)}
		if !op.IsKeysOnly() {
			kv.Value = []byte(m.data[k])
		}
		resp.Kvs = append(resp.Kvs, kv)
	}
	resp.Count = int64(len(resp.Kvs))
	return (*clientv3.GetResponse)(resp), nil
}

func TestEtcdRegisterResolveList(t *testing.T) {
	t.Parallel()
	kv := &memKV{}
	e := NewEtcdKV(kv, "/rc/targets/")
	ctx := context.Background()

	if err := e.Register(ctx, "/rule-engine/cluster-scheduler:s1", "10.0.0.1:7000"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := e.Register(ctx, "/rule-engine/cluster-scheduler:s2", "10.0.0.2:7000"); err != nil {
		t.Fatalf("register: %v", err)
	}
	kv.data["/rc/other"] = "ignored"

	got, err := e.Resolve(ctx, "/rule-engine/cluster-scheduler:s2")
	if err != nil || got != "10.0.0.2:7000" {
		t.Fatalf("Resolve = %q, %v", got, err)
	}

	list, err := e.List(ctx)
	want := []string{"/rule-engine/cluster-scheduler:s1", "/rule-engine/cluster-scheduler:s2"}
	if err != nil || !slices.Equal(list, want) {
		t.Fatalf("List = %v, %v", list, err)
	}

	if err := e.Deregister(ctx, "/rule-engine/cluster-scheduler:s1"); err != nil {
		t.Fatalf("deregister: %v", err)
	}
	if _, err := e.Resolve(ctx, "/rule-engine/cluster-scheduler:s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewEtcdRequiresEndpoints(t *testing.T) {
	t.Parallel()
	if _, err := NewEtcd(EtcdConfig{}); err == nil {
		t.Fatalf("expected error")
	}
}
