// Package transport implements a multiplexed client connection:
// several concurrent Fast calls share one TCP connection, each
// tracked by its message id.
//
//	goroutine-1 ──Call(id=1)──┐
//	goroutine-2 ──Call(id=2)──┼──→ single TCP conn ──→ server
//	goroutine-3 ──Call(id=3)──┘
//
//	recvLoop:  ←── DATA/END(id=2) → pending[2].ch ← result ← goroutine-2 wakes up
//
// The core client package (see client.Client) models the simpler
// single-request-in-flight RPC state machine directly on the wire;
// Conn sits above frame/message and exists so a
// client.Dialer can amortize one dial across many concurrent callers
// instead of opening a connection per in-flight request.
package transport

import (
	"sync"

	"github.com/TritonDataCenter/rust-fast/crc"
	"github.com/TritonDataCenter/rust-fast/ferrors"
	"github.com/TritonDataCenter/rust-fast/frame"
	"github.com/TritonDataCenter/rust-fast/message"

	"net"
)

// Result is everything a multiplexed Call eventually produces: every
// DATA frame the server emitted for the request, in arrival order,
// plus the END or ERROR frame that terminated it.
type Result struct {
	Data     []*message.Message
	Terminal *message.Message
}

// Conn manages one multiplexed TCP connection.
type Conn struct {
	conn      net.Conn
	ids       message.IDSource
	crcPolicy crc.Policy

	pending sync.Map // map[uint32]*pendingCall
	sending sync.Mutex
}

type pendingCall struct {
	mu   sync.Mutex
	data []*message.Message
	ch   chan callOutcome
}

type callOutcome struct {
	result *Result
	err    error
}

// NewConn wraps conn and starts its background recvLoop.
func NewConn(conn net.Conn, policy crc.Policy) *Conn {
	t := &Conn{conn: conn, crcPolicy: policy}
	go t.recvLoop()
	return t
}

// Call sends one Fast request and blocks until its terminator frame
// arrives or the connection breaks. The sending mutex serializes
// writes across every concurrent caller so one request's frame is
// never interleaved with another's on the wire.
func (t *Conn) Call(method string, args interface{}) (*Result, error) {
	id := t.ids.Next()
	req := message.NewData(id, method, args)

	call := &pendingCall{ch: make(chan callOutcome, 1)}
	t.pending.Store(id, call)

	b, err := frame.Encode(req, t.crcPolicy)
	if err != nil {
		t.pending.Delete(id)
		return nil, err
	}

	t.sending.Lock()
	_, werr := t.conn.Write(b)
	t.sending.Unlock()
	if werr != nil {
		t.pending.Delete(id)
		return nil, &ferrors.Transport{Op: "write", Err: werr}
	}

	outcome := <-call.ch
	return outcome.result, outcome.err
}

// recvLoop is the connection's single reader: it decodes frames and
// routes each one by id to the caller waiting on it, accumulating DATA
// frames until the terminator arrives. Reads must stay single threaded
// because TCP is a byte stream — two concurrent readers would corrupt
// frame boundaries.
func (t *Conn) recvLoop() {
	var buf []byte
	chunk := make([]byte, 4096)

	for {
		msgs, consumed, err := frame.Split(buf, t.crcPolicy)
		buf = buf[consumed:]

		for _, msg := range msgs {
			t.route(msg)
		}

		if err != nil {
			t.closeAllPending(err)
			return
		}

		n, rerr := t.conn.Read(chunk)
		if rerr != nil {
			t.closeAllPending(&ferrors.Transport{Op: "read", Err: rerr})
			return
		}
		buf = append(buf, chunk[:n]...)
	}
}

func (t *Conn) route(msg *message.Message) {
	v, ok := t.pending.Load(msg.ID)
	if !ok {
		return // no caller waiting (its write failed, or a stray frame)
	}
	call := v.(*pendingCall)

	if msg.Status == message.Data {
		call.mu.Lock()
		call.data = append(call.data, msg)
		call.mu.Unlock()
		return
	}

	t.pending.Delete(msg.ID)
	call.mu.Lock()
	result := &Result{Data: call.data, Terminal: msg}
	call.mu.Unlock()
	call.ch <- callOutcome{result: result}
}

// closeAllPending unblocks every in-flight Call with err once the
// connection breaks, so no caller waits forever.
func (t *Conn) closeAllPending(err error) {
	t.pending.Range(func(key, value any) bool {
		call := value.(*pendingCall)
		call.ch <- callOutcome{err: err}
		t.pending.Delete(key)
		return true
	})
}

// Close closes the underlying connection, which causes recvLoop to
// exit and fail out any pending calls.
func (t *Conn) Close() error {
	return t.conn.Close()
}

// NetConn returns the underlying connection.
func (t *Conn) NetConn() net.Conn {
	return t.conn
}
