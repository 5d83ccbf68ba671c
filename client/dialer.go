package client

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/TritonDataCenter/rust-fast/crc"
	"github.com/TritonDataCenter/rust-fast/ferrors"
	"github.com/TritonDataCenter/rust-fast/loadbalance"
	"github.com/TritonDataCenter/rust-fast/registry"
	"github.com/TritonDataCenter/rust-fast/transport"
)

// Dialer performs the full call lifecycle: discover instances for a
// service name, pick one with a Balancer, and reuse a shared
// multiplexed transport.Conn per address rather than dialing fresh for
// every call.
//
//	Call("echo", args, onData)
//	  → Registry.Discover("echo")  → instance list from etcd
//	  → Balancer.Pick(instances)   → select one address
//	  → connFor(addr)              → shared transport.Conn (round-robin pool)
//	  → transport.Conn.Call        → send request, wait for result
//	  → onData(d) per DATA/END frame
type Dialer struct {
	registry  registry.Registry
	balancer  loadbalance.Balancer
	crcPolicy crc.Policy

	mu      sync.Mutex
	pools   map[string][]*transport.Conn // address -> shared multiplexed connections
	counter uint64
	poolSize int
}

// DialerOption configures a Dialer at construction time.
type DialerOption func(*Dialer)

// WithDialerCRCPolicy sets the CRC policy every transport.Conn this
// Dialer creates will use. Default crc.Strict.
func WithDialerCRCPolicy(p crc.Policy) DialerOption {
	return func(d *Dialer) { d.crcPolicy = p }
}

// NewDialer builds a Dialer backed by reg and bal, maintaining
// poolSize multiplexed connections per discovered address.
func NewDialer(reg registry.Registry, bal loadbalance.Balancer, poolSize int, opts ...DialerOption) *Dialer {
	d := &Dialer{
		registry:  reg,
		balancer:  bal,
		crcPolicy: crc.Strict,
		pools:     make(map[string][]*transport.Conn),
		poolSize:  poolSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// connFor returns one of the shared transport.Conns for addr, dialing
// poolSize of them on first use and round-robining across them after
// that. Since each transport.Conn already multiplexes concurrent
// calls, these connections are shared rather than borrowed/returned.
func (d *Dialer) connFor(addr string) (*transport.Conn, error) {
	n := atomic.AddUint64(&d.counter, 1)

	d.mu.Lock()
	pool, ok := d.pools[addr]
	if !ok {
		pool = make([]*transport.Conn, d.poolSize)
		d.pools[addr] = pool
		for i := 0; i < d.poolSize; i++ {
			netConn, err := net.Dial("tcp", addr)
			if err != nil {
				d.mu.Unlock()
				return nil, err
			}
			pool[i] = transport.NewConn(netConn, d.crcPolicy)
		}
	}
	d.mu.Unlock()

	return pool[n%uint64(d.poolSize)], nil
}

// Call discovers instances for serviceName, picks one, and issues a
// request against its shared transport.Conn. onData receives every
// DATA frame's payload in arrival order, then the END frame's payload;
// it is not called at all on ERROR, which is returned instead as a
// *ferrors.RemoteError. If onData returns an error, Call stops feeding
// it further frames and returns that error immediately.
func (d *Dialer) Call(serviceName, method string, args interface{}, onData func([]byte) error) error {
	instances, err := d.registry.Discover(serviceName)
	if err != nil {
		return err
	}

	instance, err := d.balancer.Pick(instances)
	if err != nil {
		return err
	}

	conn, err := d.connFor(instance.Addr)
	if err != nil {
		return err
	}

	result, err := conn.Call(method, args)
	if err != nil {
		return err
	}

	if result.Terminal.Status.String() == "ERROR" {
		se := result.Terminal.Payload.ServerError()
		return &ferrors.RemoteError{Name: se.Name, Message: se.Message}
	}

	if onData != nil {
		for _, data := range result.Data {
			if err := onData(data.Payload.D); err != nil {
				return err
			}
		}
		if err := onData(result.Terminal.Payload.D); err != nil {
			return err
		}
	}
	return nil
}
