package discovery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const DefaultEtcdPrefix = "/rulecluster/targets"

type EtcdConfig struct {
	Endpoints   []string
	Prefix      string
	DialTimeout time.Duration
}

// Etcd keeps one key per address: Prefix+address holds the dial target.
type Etcd struct {
	kv     clientv3.KV
	client *clientv3.Client
	prefix string
}

var (
	_ Resolver = (*Etcd)(nil)
	_ Lister   = (*Etcd)(nil)
)

func NewEtcd(cfg EtcdConfig) (*Etcd, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("discovery: etcd endpoints required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	e := NewEtcdKV(cli, cfg.Prefix)
	e.client = cli
	return e, nil
}

// NewEtcdKV uses an existing KV handle. Close does not close it.
func NewEtcdKV(kv clientv3.KV, prefix string) *Etcd {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultEtcdPrefix
	}
	return &Etcd{kv: kv, prefix: prefix}
}

func (e *Etcd) key(address string) string { return e.prefix + address }

func (e *Etcd) Resolve(ctx context.Context, address string) (string, error) {
	resp, err := e.kv.Get(ctx, e.key(address))
	if err != nil {
		return "", fmt.Errorf("etcd get %s: %w", address, err)
	}
	if len(resp.Kvs) == 0 || len(resp.Kvs[0].Value) == 0 {
		return "", ErrNotFound
	}
	return string(resp.Kvs[0].Value), nil
}

func (e *Etcd) List(ctx context.Context) ([]string, error) {
	resp, err := e.kv.Get(ctx, e.prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, fmt.Errorf("etcd list: %w", err)
	}
	out := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		a := strings.TrimPrefix(string(kv.Key), e.prefix)
		if a == "" {
			continue
		}
		out = append(out, a)
	}
	slices.Sort(out)
	return out, nil
}

// Register announces target under address.
func (e *Etcd) Register(ctx context.Context, address, target string) error {
	if _, err := e.kv.Put(ctx, e.key(address), target); err != nil {
		return fmt.Errorf("etcd put %s: %w", address, err)
	}
	return nil
}

func (e *Etcd) Deregister(ctx context.Context, address string) error {
	if _, err := e.kv.Delete(ctx, e.key(address)); err != nil {
		return fmt.Errorf("etcd delete %s: %w", address, err)
	}
	return nil
}

func (e *Etcd) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}
