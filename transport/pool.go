// ConnPool manages a set of plain TCP connections to one Fast server
// address, for callers that want exclusive use of a connection for
// the duration of one request/response (the core client package's
// model) rather than sharing one multiplexed Conn across many
// concurrent callers.
//
// The pool is a buffered channel acting as a FIFO queue: buffered
// channels are already goroutine-safe, and blocking on an empty pool
// falls out of the channel receive for free.
package transport

import (
	"fmt"
	"net"
	"sync"
)

// ConnPool manages a pool of reusable TCP connections to a single address.
type ConnPool struct {
	mu       sync.Mutex
	conns    chan *PoolConn
	addr     string
	maxConns int
	curConns int
	factory  func() (net.Conn, error)
}

// PoolConn wraps a net.Conn with pool bookkeeping.
type PoolConn struct {
	net.Conn
	pool     *ConnPool
	unusable bool // set once the connection has seen an I/O error
}

// NewConnPool creates a connection pool with the given max size.
// Connections are created lazily — the pool starts empty and grows on
// demand.
func NewConnPool(addr string, maxConns int, factory func() (net.Conn, error)) *ConnPool {
	return &ConnPool{
		conns:    make(chan *PoolConn, maxConns),
		addr:     addr,
		maxConns: maxConns,
		factory:  factory,
	}
}

// Get retrieves a connection from the pool: reuse an idle one if
// available, open a new one if under the limit, or block for one to
// be returned if the pool is at capacity.
func (p *ConnPool) Get() (*PoolConn, error) {
	select {
	case conn := <-p.conns:
		if conn.unusable {
			return p.createNew()
		}
		return conn, nil
	default:
		p.mu.Lock()
		full := p.curConns >= p.maxConns
		p.mu.Unlock()
		if !full {
			conn, err := p.createNew()
			if err == nil {
				return conn, nil
			}
			p.mu.Lock()
			full = p.curConns >= p.maxConns
			p.mu.Unlock()
			if !full {
				return nil, err
			}
		}
		// At capacity, possibly because a concurrent Get took the last
		// slot first: wait for a connection to be returned.
		conn := <-p.conns
		return conn, nil
	}
}

// Put returns conn to the pool, or closes and discards it if it was
// marked unusable by a prior I/O error.
func (p *ConnPool) Put(conn *PoolConn) {
	if conn.unusable {
		conn.Close()
		p.mu.Lock()
		p.curConns--
		p.mu.Unlock()
		return
	}
	p.conns <- conn
}

// MarkUnusable flags conn so a subsequent Put discards it instead of
// returning it to circulation. Callers should call this after any read
// or write error on a borrowed connection.
func (p *PoolConn) MarkUnusable() {
	p.unusable = true
}

// Close shuts down the pool and every connection in it.
func (p *ConnPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	close(p.conns)
	for conn := range p.conns {
		conn.Close()
		p.curConns--
	}
	return nil
}

// createNew dials a new connection via the factory. Protected by a
// mutex so concurrent Get calls can't race past maxConns.
func (p *ConnPool) createNew() (*PoolConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.curConns >= p.maxConns {
		return nil, fmt.Errorf("fast: connection pool for %s exhausted", p.addr)
	}

	netConn, err := p.factory()
	if err != nil {
		return nil, err
	}

	p.curConns++
	return &PoolConn{Conn: netConn, pool: p}, nil
}
