package client

import (
	"errors"
	"net"

	"github.com/TritonDataCenter/rust-fast/ferrors"
	"github.com/TritonDataCenter/rust-fast/transport"
)

// Pool hands out exclusive-use net.Conns to the single-in-flight
// Client engine: each Call borrows one connection from a
// transport.ConnPool, issues its request on it alone, and returns it
// to the pool afterward — the model transport.ConnPool was built for,
// as opposed to transport.Conn's multiplexed sharing used by Dialer.
//
// Pool is the right choice when a caller wants pooled connections
// without paying for transport.Conn's per-call id bookkeeping and
// recvLoop goroutine — e.g. a client that only ever issues one call at
// a time but wants to avoid a fresh dial on every call.
type Pool struct {
	pool *transport.ConnPool
	opts []Option
}

// NewPool dials addr lazily, keeping up to maxConns connections alive
// for reuse across calls.
func NewPool(addr string, maxConns int, opts ...Option) *Pool {
	return &Pool{
		pool: transport.NewConnPool(addr, maxConns, func() (net.Conn, error) {
			return net.Dial("tcp", addr)
		}),
		opts: opts,
	}
}

// Call borrows a pooled connection, issues one request on it via
// Client.Call, and returns the connection to the pool — discarding it
// instead if the call failed with a transport-level error, so a dead
// connection is never handed to the next caller.
func (p *Pool) Call(method string, args interface{}, onData DataFunc) error {
	conn, err := p.pool.Get()
	if err != nil {
		return err
	}

	cli := New(conn, p.opts...)
	callErr := cli.Call(method, args, onData)

	var transportErr *ferrors.Transport
	var eofErr *ferrors.UnexpectedEOF
	if errors.As(callErr, &transportErr) || errors.As(callErr, &eofErr) {
		conn.MarkUnusable()
	}
	p.pool.Put(conn)

	return callErr
}

// Close shuts down every pooled connection.
func (p *Pool) Close() error {
	return p.pool.Close()
}
