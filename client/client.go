// Package client implements the Fast client engine: a single request
// in flight at a time over one connection, reading frames in
// configurable-size chunks until the request's terminator arrives.
//
// Call flow:
//
//	Call(method, args, onData)
//	  → frame.Encode the request, write it
//	  → read chunks, frame.Split them, feed matching-id frames to onData
//	  → return nil on END, *ferrors.RemoteError on ERROR
//
// client.Dialer (dialer.go) layers service discovery, load balancing,
// and a shared multiplexed transport.Conn per address on top of this
// engine for callers that don't want to manage a single connection
// directly.
package client

import (
	"encoding/json"
	"io"
	"net"
	"sync"

	"github.com/TritonDataCenter/rust-fast/crc"
	"github.com/TritonDataCenter/rust-fast/ferrors"
	"github.com/TritonDataCenter/rust-fast/frame"
	"github.com/TritonDataCenter/rust-fast/message"
)

// defaultReadChunkSize matches the historical Fast client's read
// buffer: reads arrive 128 bytes at a time rather than filling a
// large buffer in one syscall.
const defaultReadChunkSize = 128

// DataFunc receives one message's `d` payload. It is invoked for every
// DATA frame the server emits for a call, and — per the wire
// convention an END frame's `d` is a value a caller must still
// consume, not an empty frame to discard — for the END frame itself,
// before Call returns. A non-nil return aborts the call immediately:
// Call returns that error without reading any further frames.
type DataFunc func(d json.RawMessage) error

// Client drives the Fast protocol over a single net.Conn: one request
// outstanding at a time, mirroring the per-connection cooperative
// model on the server side.
type Client struct {
	conn          net.Conn
	ids           message.IDSource
	crcPolicy     crc.Policy
	readChunkSize int

	mu  sync.Mutex // serializes Call: only one request may be in flight
	buf []byte
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithCRCPolicy sets the receive-side CRC policy. Default crc.Strict.
func WithCRCPolicy(p crc.Policy) Option {
	return func(c *Client) { c.crcPolicy = p }
}

// WithReadChunkSize overrides the per-read buffer size. Default 128.
func WithReadChunkSize(n int) Option {
	return func(c *Client) { c.readChunkSize = n }
}

// New wraps conn as a Fast client.
func New(conn net.Conn, opts ...Option) *Client {
	c := &Client{
		conn:          conn,
		crcPolicy:     crc.Strict,
		readChunkSize: defaultReadChunkSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call sends one request and blocks until its terminator frame
// arrives. onData is invoked for each DATA frame in arrival order and
// once more for the terminating END frame's payload; it is not
// invoked at all on ERROR. onData may be nil. If onData returns an
// error, Call stops reading further frames and returns that error.
func (c *Client) Call(method string, args interface{}, onData DataFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.ids.Next()
	req := message.NewData(id, method, args)

	b, err := frame.Encode(req, c.crcPolicy)
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(b); err != nil {
		return &ferrors.Transport{Op: "write", Err: err}
	}

	chunk := make([]byte, c.readChunkSize)
	for {
		msgs, consumed, splitErr := frame.Split(c.buf, c.crcPolicy)
		c.buf = c.buf[consumed:]

		for _, msg := range msgs {
			if msg.ID != id {
				continue // not this call's response; a well-behaved server never interleaves anyway
			}
			switch msg.Status {
			case message.Data:
				if onData != nil {
					if err := onData(msg.Payload.D); err != nil {
						return err
					}
				}
			case message.End:
				if onData != nil {
					if err := onData(msg.Payload.D); err != nil {
						return err
					}
				}
				return nil
			case message.Error:
				se := msg.Payload.ServerError()
				return &ferrors.RemoteError{Name: se.Name, Message: se.Message}
			}
		}

		if splitErr != nil {
			return splitErr
		}

		n, rerr := c.conn.Read(chunk)
		if rerr != nil {
			if rerr == io.EOF {
				return &ferrors.UnexpectedEOF{}
			}
			return &ferrors.Transport{Op: "read", Err: rerr}
		}
		c.buf = append(c.buf, chunk[:n]...)
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
