package client

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/TritonDataCenter/rust-fast/loadbalance"
	"github.com/TritonDataCenter/rust-fast/registry"
	"github.com/TritonDataCenter/rust-fast/server"
)

type mockRegistry struct {
	instances map[string][]registry.Instance
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{instances: make(map[string][]registry.Instance)}
}

func (m *mockRegistry) Register(serviceName string, inst registry.Instance, ttl int64) error {
	m.instances[serviceName] = append(m.instances[serviceName], inst)
	return nil
}

func (m *mockRegistry) Deregister(serviceName string, addr string) error {
	insts := m.instances[serviceName]
	for i, inst := range insts {
		if inst.Addr == addr {
			m.instances[serviceName] = append(insts[:i], insts[i+1:]...)
			break
		}
	}
	return nil
}

func (m *mockRegistry) Discover(serviceName string) ([]registry.Instance, error) {
	return m.instances[serviceName], nil
}

func (m *mockRegistry) Watch(serviceName string) <-chan []registry.Instance {
	return nil
}

func startAddServerAt(t *testing.T) net.Addr {
	t.Helper()
	router := server.NewRouter()
	router.Register("add", func(ctx context.Context, a, b int) ([]interface{}, error) {
		return []interface{}{a + b}, nil
	})

	svr := server.New(router.AsHandler())
	go svr.Serve("tcp", "127.0.0.1:0")

	var addr net.Addr
	for i := 0; i < 50; i++ {
		if addr = svr.Addr(); addr != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if addr == nil {
		t.Fatal("server never started listening")
	}
	t.Cleanup(func() { svr.Shutdown(time.Second) })
	return addr
}

func TestDialerDiscoversAndCalls(t *testing.T) {
	addr := startAddServerAt(t)

	reg := newMockRegistry()
	reg.Register("echo", registry.Instance{Addr: addr.String(), Weight: 1}, 10)

	d := NewDialer(reg, &loadbalance.RoundRobinBalancer{}, 4)

	var got int
	err := d.Call("echo", "add", []interface{}{1, 2}, func(d []byte) error {
		var vals []int
		if json.Unmarshal(d, &vals) == nil && len(vals) == 1 {
			got = vals[0]
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != 3 {
		t.Fatalf("got %d, want 3", got)
	}
}

func TestDialerDoesNotCallOnDataForError(t *testing.T) {
	addr := startAddServerAt(t)

	reg := newMockRegistry()
	reg.Register("echo", registry.Instance{Addr: addr.String(), Weight: 1}, 10)

	d := NewDialer(reg, &loadbalance.RoundRobinBalancer{}, 4)

	calls := 0
	err := d.Call("echo", "missing", nil, func(d []byte) error {
		calls++
		return nil
	})
	if err == nil {
		t.Fatal("expected an error calling an unregistered method")
	}
	if calls != 0 {
		t.Fatalf("onData called %d times on ERROR, want 0", calls)
	}
}

func TestDialerRoundRobinsAcrossInstances(t *testing.T) {
	addr1 := startAddServerAt(t)
	addr2 := startAddServerAt(t)

	reg := newMockRegistry()
	reg.Register("echo", registry.Instance{Addr: addr1.String(), Weight: 1}, 10)
	reg.Register("echo", registry.Instance{Addr: addr2.String(), Weight: 1}, 10)

	d := NewDialer(reg, &loadbalance.RoundRobinBalancer{}, 2)

	for i := 0; i < 10; i++ {
		err := d.Call("echo", "add", []interface{}{i, i}, func(d []byte) error { return nil })
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	if len(d.pools) != 2 {
		t.Fatalf("dialed %d instances, want both", len(d.pools))
	}
}
