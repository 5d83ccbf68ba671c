package server

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/TritonDataCenter/rust-fast/crc"
	"github.com/TritonDataCenter/rust-fast/ferrors"
	"github.com/TritonDataCenter/rust-fast/frame"
	"github.com/TritonDataCenter/rust-fast/logging"
	"github.com/TritonDataCenter/rust-fast/message"
)

func dialServer(t *testing.T, svr *Server) net.Conn {
	t.Helper()
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

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		svr.Shutdown(time.Second)
	})
	return conn
}

// readFrame reads exactly one frame from conn, leaving any later frames
// unread on the connection for the next call.
func readFrame(t *testing.T, conn net.Conn) *message.Message {
	t.Helper()
	buf := make([]byte, frame.HeaderSize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	// data_length is the last four bytes of the header.
	dataLen := binary.BigEndian.Uint32(buf[frame.HeaderSize-4:])
	buf = append(buf, make([]byte, dataLen)...)
	if _, err := io.ReadFull(conn, buf[frame.HeaderSize:]); err != nil {
		t.Fatalf("Read: %v", err)
	}
	msg, _, err := frame.Parse(buf, crc.Strict)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return msg
}

func echoHandler(ctx context.Context, req *message.Message, log logging.Logger) ([]*message.Message, error) {
	var args []interface{}
	if err := req.Payload.Args(&args); err != nil {
		return nil, err
	}
	return []*message.Message{message.NewData(req.ID, req.Payload.M.Name, args)}, nil
}

func TestServerEchoesAndTerminatesWithEnd(t *testing.T) {
	svr := New(echoHandler)
	conn := dialServer(t, svr)

	req := message.NewData(1, "echo", []interface{}{"abc"})
	b, err := frame.Encode(req, crc.Strict)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(b); err != nil {
		t.Fatal(err)
	}

	data := readFrame(t, conn)
	if data.Status != message.Data || data.ID != 1 {
		t.Fatalf("unexpected first frame: %+v", data)
	}

	end := readFrame(t, conn)
	if end.Status != message.End || end.ID != 1 {
		t.Fatalf("unexpected terminator: %+v", end)
	}
}

func TestServerHandlerErrorBecomesErrorFrame(t *testing.T) {
	svr := New(func(ctx context.Context, req *message.Message, log logging.Logger) ([]*message.Message, error) {
		return nil, &ferrors.HandlerError{Err: &ferrors.RemoteError{Name: "Boom", Message: "nope"}}
	})
	conn := dialServer(t, svr)

	req := message.NewData(7, "explode", nil)
	b, _ := frame.Encode(req, crc.Strict)
	conn.Write(b)

	resp := readFrame(t, conn)
	if resp.Status != message.Error || resp.ID != 7 {
		t.Fatalf("unexpected frame: %+v", resp)
	}
	se := resp.Payload.ServerError()
	if se.Name != "FastError" {
		t.Fatalf("ServerError.Name = %q, want FastError (full: %q)", se.Name, se.Message)
	}
	if se.Message != "Boom: nope" {
		t.Fatalf("ServerError.Message = %q, want %q", se.Message, "Boom: nope")
	}
}

func TestServerBadFrameClosesConnection(t *testing.T) {
	svr := New(echoHandler)
	conn := dialServer(t, svr)

	bad := make([]byte, frame.HeaderSize)
	bad[0] = 9 // bad version
	conn.Write(bad)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	if n, err := conn.Read(buf); err == nil && n > 0 {
		t.Fatalf("expected connection close after malformed frame, got %d bytes", n)
	}
}

func TestServerShutdownStopsAcceptingAndWaits(t *testing.T) {
	svr := New(echoHandler)
	go svr.Serve("tcp", "127.0.0.1:0")

	var addr net.Addr
	for i := 0; i < 50 && addr == nil; i++ {
		addr = svr.Addr()
		time.Sleep(10 * time.Millisecond)
	}
	if addr == nil {
		t.Fatal("server never started listening")
	}

	if err := svr.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if _, err := net.Dial("tcp", addr.String()); err == nil {
		t.Fatal("expected dial to fail after shutdown")
	}
}
