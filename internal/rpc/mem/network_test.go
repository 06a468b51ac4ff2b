package mem

import (
	"context"
	"errors"
	"testing"

	"rulecluster/internal/rpc"
	"rulecluster/internal/rpc/rpctest"
)

const addr = "/rule-engine/cluster-scheduler:s1"

func TestConsumerForwardsUntilDisposed(t *testing.T) {
	t.Parallel()
	n := NewNetwork()
	fake := &rpctest.Service{Alive: true, Workers: []rpc.WorkerInfo{{ID: "w1", Name: "Worker1"}}}
	if _, err := n.Export(addr, fake); err != nil {
		t.Fatalf("Export: %v", err)
	}

	b, err := n.CreateConsumer(context.Background(), addr)
	if err != nil {
		t.Fatalf("CreateConsumer: %v", err)
	}
	alive, err := b.Service().IsAlive(context.Background())
	if err != nil || !alive {
		t.Fatalf("IsAlive = %v, %v; want true, nil", alive, err)
	}
	workers, err := rpc.Collect(b.Service().GetWorkers(context.Background()))
	if err != nil || len(workers) != 1 {
		t.Fatalf("GetWorkers = %v, %v", workers, err)
	}

	if err := b.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if !b.IsDisposed() {
		t.Fatal("binding should report disposed")
	}
	if _, err := b.Service().IsAlive(context.Background()); !errors.Is(err, rpc.ErrDisposed) {
		t.Fatalf("IsAlive after dispose err = %v, want ErrDisposed", err)
	}
	if _, err := rpc.Collect(b.Service().GetWorkers(context.Background())); !errors.Is(err, rpc.ErrDisposed) {
		t.Fatalf("GetWorkers after dispose err = %v, want ErrDisposed", err)
	}
}

func TestExportLifecycle(t *testing.T) {
	t.Parallel()
	n := NewNetwork()
	if _, err := n.CreateConsumer(context.Background(), addr); !errors.Is(err, rpc.ErrServiceNotFound) {
		t.Fatalf("consumer of unknown address err = %v", err)
	}

	h, err := n.Export(addr, &rpctest.Service{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if _, err := n.Export(addr, &rpctest.Service{}); !errors.Is(err, rpc.ErrAddressInUse) {
		t.Fatalf("second Export err = %v, want ErrAddressInUse", err)
	}

	b, err := n.CreateConsumer(context.Background(), addr)
	if err != nil {
		t.Fatalf("CreateConsumer: %v", err)
	}
	_ = h.Dispose()
	_ = h.Dispose()
	if !h.IsDisposed() {
		t.Fatal("export handle should report disposed")
	}
	if err := b.Service().Shutdown(context.Background(), "i1"); !errors.Is(err, rpc.ErrServiceNotFound) {
		t.Fatalf("call after unexport err = %v, want ErrServiceNotFound", err)
	}
	if _, err := n.Export(addr, &rpctest.Service{}); err != nil {
		t.Fatalf("re-Export after dispose: %v", err)
	}
}
