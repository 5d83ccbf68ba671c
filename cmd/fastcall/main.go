// Command fastcall makes a single Fast RPC method call against a
// server and prints each frame's data payload to stdout.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/TritonDataCenter/rust-fast/client"
)

func main() {
	host := flag.String("host", "127.0.0.1", "server host")
	port := flag.Int("port", 2030, "server port")
	method := flag.String("method", "", "name of remote RPC method call")
	args := flag.String("args", "[]", "JSON-encoded arguments for the RPC method call")
	flag.Parse()

	if *method == "" {
		fmt.Fprintln(os.Stderr, "Failed to parse method argument as String")
		os.Exit(1)
	}

	var parsedArgs interface{}
	if err := json.Unmarshal([]byte(*args), &parsedArgs); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse args argument as JSON: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", *host, *port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to server: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	c := client.New(conn)
	err = c.Call(*method, parsedArgs, func(d json.RawMessage) error {
		fmt.Println(string(d))
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
