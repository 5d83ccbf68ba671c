// Package server implements the Fast server engine: one task per
// accepted connection that reads frames, dispatches each request to a
// user Handler, and writes the handler's DATA frames plus a
// synthesized END (or ERROR) frame back on the stream.
//
// Request processing pipeline, per connection:
//
//	Accept → handleConn (single goroutine: read, decode, dispatch, write)
//	  → for each decoded request: Handler(ctx, req, log) → []*message.Message
//	    → write(handler's DATA frames..., END | ERROR)
//
// Unlike a generic RPC server that fans requests on one connection out
// to their own goroutines, Fast's per-connection work is single
// threaded and cooperative: a connection has exactly one request in
// flight at a time, decoded and answered in order, so that frames for
// different ids are never interleaved on the wire without needing a
// write mutex.
package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TritonDataCenter/rust-fast/crc"
	"github.com/TritonDataCenter/rust-fast/ferrors"
	"github.com/TritonDataCenter/rust-fast/frame"
	"github.com/TritonDataCenter/rust-fast/logging"
	"github.com/TritonDataCenter/rust-fast/message"
	"github.com/TritonDataCenter/rust-fast/registry"
)

// Handler is the contract the engine invokes for every incoming
// request. It must not emit END or ERROR frames itself — the engine
// appends the terminator — and must copy the request's id into every
// message it constructs. It may suspend (block on I/O, select on
// ctx.Done(), etc.); the connection's read loop is not resumed until
// the handler returns.
type Handler func(ctx context.Context, req *message.Message, log logging.Logger) ([]*message.Message, error)

// readChunkSize is the size of each read(2) the connection loop issues
// while waiting for more frame bytes.
const readChunkSize = 4096

// Server is the Fast RPC server engine.
type Server struct {
	handler   Handler
	logger    logging.Logger
	crcPolicy crc.Policy

	listener net.Listener
	addr     atomic.Value // net.Addr, set once Serve's Listen succeeds
	wg       sync.WaitGroup
	shutdown atomic.Bool

	reg           registry.Registry
	serviceName   string
	advertiseAddr string
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger sets the structured logger the engine uses. The default
// is logging.NoOp(), which is also used when l is nil.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.logger = logging.OrNoOp(l) }
}

// WithCRCPolicy sets the receive-side CRC policy. The default is
// crc.Strict.
func WithCRCPolicy(p crc.Policy) Option {
	return func(s *Server) { s.crcPolicy = p }
}

// WithRegistry makes Serve advertise the server in reg under
// serviceName once it starts listening, and deregister it on
// Shutdown. advertiseAddr is the routable address to publish — it may
// differ from the listen address (":8080" resolves to "[::]:8080"
// locally, which isn't useful to a remote client).
func WithRegistry(reg registry.Registry, serviceName, advertiseAddr string) Option {
	return func(s *Server) {
		s.reg = reg
		s.serviceName = serviceName
		s.advertiseAddr = advertiseAddr
	}
}

// New creates a Server that dispatches every request to handler.
func New(handler Handler, opts ...Option) *Server {
	s := &Server{
		handler:   handler,
		logger:    logging.NoOp(),
		crcPolicy: crc.Strict,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve listens on network/address and runs the accept loop until
// Shutdown is called or the listener fails. It blocks.
func (s *Server) Serve(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	s.listener = listener
	s.addr.Store(listener.Addr())

	if s.reg != nil {
		inst := registry.Instance{Addr: s.advertiseAddr}
		if err := s.reg.Register(s.serviceName, inst, 10); err != nil {
			s.logger.Errorw("failed to register with discovery backend", "service", s.serviceName, "error", err)
		}
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Addr returns the address Serve is listening on, or nil if Serve
// hasn't completed its Listen call yet. Useful in tests that bind to
// ":0" and need the OS-assigned port.
func (s *Server) Addr() net.Addr {
	a, _ := s.addr.Load().(net.Addr)
	return a
}

// Shutdown deregisters the server, stops accepting new connections,
// and waits up to timeout for in-flight connections to finish.
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.reg != nil {
		if err := s.reg.Deregister(s.serviceName, s.advertiseAddr); err != nil {
			s.logger.Errorw("failed to deregister", "service", s.serviceName, "error", err)
		}
	}

	// Set the shutdown flag before closing the listener: closing first
	// would let Accept's resulting error race the flag and surface as a
	// real error from Serve instead of a clean nil return.
	s.shutdown.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("fast: timeout waiting for connections to finish")
	}
}

// handleConn is the single cooperative task for one connection.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	w := bufio.NewWriter(conn)
	var buf []byte
	chunk := make([]byte, readChunkSize)

	for {
		msgs, consumed, splitErr := frame.Split(buf, s.crcPolicy)
		buf = buf[consumed:]

		for _, req := range msgs {
			if werr := s.respond(w, req); werr != nil {
				s.logger.Errorw("write failed, closing connection", "error", werr)
				return
			}
		}
		if ferr := w.Flush(); ferr != nil {
			s.logger.Errorw("flush failed, closing connection", "error", ferr)
			return
		}

		if splitErr != nil {
			s.logger.Errorw("decode error, closing connection", "error", splitErr)
			return
		}

		n, err := conn.Read(chunk)
		if err != nil {
			if err != io.EOF {
				s.logger.Errorw("read failed", "error", err)
			}
			return
		}
		buf = append(buf, chunk[:n]...)
	}
}

// respond invokes the handler for req and writes its DATA frames plus
// the synthesized terminator, in order, on w.
func (s *Server) respond(w io.Writer, req *message.Message) error {
	s.logger.Debugw("dispatching request", "id", req.ID, "method", req.Payload.M.Name)

	results, err := s.handler(context.Background(), req, s.logger)

	var toSend []*message.Message
	if err != nil {
		toSend = []*message.Message{
			message.NewError(req.ID, req.Payload.M.Name, "FastError", err.Error()),
		}
	} else {
		toSend = append(toSend, results...)
		toSend = append(toSend, message.NewEnd(req.ID, req.Payload.M.Name))
	}

	for _, m := range toSend {
		b, eerr := frame.Encode(m, s.crcPolicy)
		if eerr != nil {
			return eerr
		}
		if _, werr := w.Write(b); werr != nil {
			return &ferrors.Transport{Op: "write", Err: werr}
		}
	}
	return nil
}
