// Package registry's etcd backend.
//
// etcd stores the instance list as a distributed phonebook:
//
//	Key:   /fast/{serviceName}/{Addr}
//	Value: JSON-encoded Instance
//
// Registration is lease-backed: if the registering process dies
// without calling Deregister, the lease's TTL expires and etcd removes
// the entry on its own, so Discover never returns a dead instance for
// longer than the lease window.
package registry

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdRegistry implements Registry on top of an etcd v3 client.
type EtcdRegistry struct {
	client *clientv3.Client
}

// NewEtcdRegistry dials the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

// Register grants a ttl-second lease, puts the instance under it, and
// starts a background KeepAlive to renew the lease for as long as the
// process (and this call's goroutine) is alive. The lease ID is kept
// local to this call rather than stored on the struct, since a single
// EtcdRegistry can register several service names concurrently.
func (r *EtcdRegistry) Register(serviceName string, instance Instance, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, key(serviceName, instance.Addr), string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes addr from serviceName's instance list.
func (r *EtcdRegistry) Deregister(serviceName string, addr string) error {
	_, err := r.client.Delete(context.TODO(), key(serviceName, addr))
	return err
}

// Watch re-fetches the full instance list via Discover whenever any
// key under the service's prefix changes, rather than reconstructing
// state from individual watch events.
func (r *EtcdRegistry) Watch(serviceName string) <-chan []Instance {
	ctx := context.TODO()
	ch := make(chan []Instance, 1)
	prefix := serviceName + "/"

	go func() {
		watchChan := r.client.Watch(ctx, "/fast/"+prefix, clientv3.WithPrefix())
		for range watchChan {
			instances, err := r.Discover(serviceName)
			if err != nil {
				continue
			}
			ch <- instances
		}
	}()

	return ch
}

// Discover lists every instance currently registered under
// serviceName. Malformed entries are skipped rather than failing the
// whole call.
func (r *EtcdRegistry) Discover(serviceName string) ([]Instance, error) {
	resp, err := r.client.Get(context.TODO(), "/fast/"+serviceName+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst Instance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			continue
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

func key(serviceName, addr string) string {
	return "/fast/" + serviceName + "/" + addr
}
