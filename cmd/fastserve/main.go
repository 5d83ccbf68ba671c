// Command fastserve runs a demonstration Fast server exposing four
// methods: echo, date, yes, and fastbench.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/TritonDataCenter/rust-fast/ferrors"
	"github.com/TritonDataCenter/rust-fast/logging"
	"github.com/TritonDataCenter/rust-fast/message"
	"github.com/TritonDataCenter/rust-fast/server"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:2030", "address to listen on")
	flag.Parse()

	zl, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer zl.Sync()
	log := logging.New(zl.Sugar())

	svr := server.New(msgHandler, server.WithLogger(log))
	log.Infow("listening for fast requests", "address", *addr)
	if err := svr.Serve("tcp", *addr); err != nil {
		fmt.Fprintf(os.Stderr, "serve failed: %v\n", err)
		os.Exit(1)
	}
}

func msgHandler(ctx context.Context, req *message.Message, log logging.Logger) ([]*message.Message, error) {
	switch req.Payload.M.Name {
	case "date":
		return dateHandler(req, log)
	case "echo":
		return echoHandler(req, log)
	case "yes":
		return yesHandler(req, log)
	case "fastbench":
		return fastbenchHandler(req, log)
	default:
		return nil, &ferrors.HandlerError{Err: fmt.Errorf("Unsupported function: %s", req.Payload.M.Name)}
	}
}

func dateHandler(req *message.Message, log logging.Logger) ([]*message.Message, error) {
	log.Debugw("handling date function request")
	now := time.Now().UTC()
	payload := []map[string]interface{}{{
		"timestamp": now.UnixMicro(),
		"iso8601":   now.Format(time.RFC3339Nano),
	}}
	return []*message.Message{message.NewData(req.ID, req.Payload.M.Name, payload)}, nil
}

func echoHandler(req *message.Message, log logging.Logger) ([]*message.Message, error) {
	log.Debugw("handling echo function request")
	return []*message.Message{{
		Type:   message.JSON,
		Status: message.Data,
		ID:     req.ID,
		Payload: message.Payload{
			M: req.Payload.M,
			D: req.Payload.D,
		},
	}}, nil
}

type yesPayload struct {
	Value interface{} `json:"value"`
	Count int         `json:"count"`
}

func yesHandler(req *message.Message, log logging.Logger) ([]*message.Message, error) {
	log.Debugw("handling yes function request")

	var payloads []yesPayload
	if err := req.Payload.Args(&payloads); err != nil {
		return nil, &ferrors.HandlerError{Err: fmt.Errorf("failed to parse JSON data as payload for yes function: %w", err)}
	}
	if len(payloads) != 1 {
		return nil, &ferrors.HandlerError{Err: fmt.Errorf("expected JSON array with a single element")}
	}

	out := make([]*message.Message, payloads[0].Count)
	for i := range out {
		out[i] = message.NewData(req.ID, req.Payload.M.Name, []interface{}{payloads[0].Value})
	}
	return out, nil
}

type fastBenchPayload struct {
	Echo  []interface{} `json:"echo"`
	Delay *int64        `json:"delay"`
}

func fastbenchHandler(req *message.Message, log logging.Logger) ([]*message.Message, error) {
	log.Debugw("handling fastbench function request")

	var payloads []fastBenchPayload
	if err := req.Payload.Args(&payloads); err != nil {
		return nil, &ferrors.HandlerError{Err: fmt.Errorf("failed to parse JSON data as payload for fastbench function: %w", err)}
	}
	if len(payloads) != 1 {
		return nil, &ferrors.HandlerError{Err: fmt.Errorf("expected JSON array with a single element")}
	}

	if payloads[0].Delay != nil {
		time.Sleep(time.Duration(*payloads[0].Delay) * time.Millisecond)
	}

	respPayloads := make([]map[string]interface{}, len(payloads[0].Echo))
	for i, v := range payloads[0].Echo {
		respPayloads[i] = map[string]interface{}{"value": v}
	}

	b, err := json.Marshal(respPayloads)
	if err != nil {
		return nil, err
	}
	return []*message.Message{{
		Type:   message.JSON,
		Status: message.Data,
		ID:     req.ID,
		Payload: message.Payload{
			M: req.Payload.M,
			D: b,
		},
	}}, nil
}
