package test

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/TritonDataCenter/rust-fast/client"
	"github.com/TritonDataCenter/rust-fast/crc"
	"github.com/TritonDataCenter/rust-fast/frame"
	"github.com/TritonDataCenter/rust-fast/message"
	"github.com/TritonDataCenter/rust-fast/server"
	"github.com/TritonDataCenter/rust-fast/transport"
)

func benchRouter(b *testing.B) *server.Router {
	b.Helper()
	r := server.NewRouter()
	if err := r.Register("add", func(ctx context.Context, a, b int) ([]interface{}, error) {
		return []interface{}{a + b}, nil
	}); err != nil {
		b.Fatal(err)
	}
	return r
}

func setupServer(b *testing.B) (*server.Server, string) {
	svr := server.New(benchRouter(b).AsHandler())
	go svr.Serve("tcp", "127.0.0.1:0")
	var addr string
	for i := 0; i < 100; i++ {
		if a := svr.Addr(); a != nil {
			addr = a.String()
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if addr == "" {
		b.Fatal("server never started listening")
	}
	return svr, addr
}

// BenchmarkSerialCall measures the single-in-flight client engine
// making one call at a time over its own connection.
func BenchmarkSerialCall(b *testing.B) {
	svr, addr := setupServer(b)
	b.Cleanup(func() { svr.Shutdown(3 * time.Second) })

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		b.Fatal(err)
	}
	defer conn.Close()
	cli := client.New(conn)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := cli.Call("add", []interface{}{1, 2}, func(d json.RawMessage) error { return nil }); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkConcurrentCall measures the multiplexed transport.Conn
// fielding many in-flight calls at once over a single TCP connection.
func BenchmarkConcurrentCall(b *testing.B) {
	svr, addr := setupServer(b)
	b.Cleanup(func() { svr.Shutdown(3 * time.Second) })

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		b.Fatal(err)
	}
	defer conn.Close()
	ct := transport.NewConn(conn, crc.Strict)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := ct.Call("add", []interface{}{1, 2}); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// BenchmarkFrameRoundTrip measures encoding a request frame and
// splitting/decoding it back, the cost paid on every call regardless
// of transport.
func BenchmarkFrameRoundTrip(b *testing.B) {
	msg := message.NewData(1, "add", []interface{}{1, 2})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf, err := frame.Encode(msg, crc.Strict)
		if err != nil {
			b.Fatal(err)
		}
		if _, _, err := frame.Split(buf, crc.Strict); err != nil {
			b.Fatal(err)
		}
	}
}
