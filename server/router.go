package server

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/TritonDataCenter/rust-fast/ferrors"
	"github.com/TritonDataCenter/rust-fast/logging"
	"github.com/TritonDataCenter/rust-fast/message"
)

// Router maps Fast method names to Go functions and dispatches by
// reflection. Fast has no service namespace and no (args, reply)
// struct convention, so a Router method is a plain function taking
// positional arguments unmarshaled from the request's `d` array and
// returning the values to emit as DATA frames:
//
//	func(ctx context.Context, arg1 T1, arg2 T2, ...) ([]interface{}, error)
//
// Each element of the returned slice becomes one DATA frame whose `d`
// is a one-element array holding that value — the shape an RPC that
// streams N results (e.g. "yes", repeated N times) needs. A method
// with nothing to stream returns a nil slice; AsHandler then emits
// only the terminator.
type Router struct {
	mu      sync.RWMutex
	methods map[string]*routedMethod
}

type routedMethod struct {
	fn      reflect.Value
	argType []reflect.Type // excludes the leading context.Context
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	ctxType     = reflect.TypeOf((*context.Context)(nil)).Elem()
	resultsType = reflect.TypeOf([]interface{}(nil))
)

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{methods: make(map[string]*routedMethod)}
}

// Register adds fn under name, replacing any existing registration.
// It validates fn's signature eagerly so a typo is caught at startup
// rather than on the first call.
func (r *Router) Register(name string, fn interface{}) error {
	v := reflect.ValueOf(fn)
	t := v.Type()

	if t.Kind() != reflect.Func {
		return fmt.Errorf("fast: router: %q is not a function", name)
	}
	if t.NumIn() < 1 || t.In(0) != ctxType {
		return fmt.Errorf("fast: router: %q must take context.Context as its first parameter", name)
	}
	if t.NumOut() != 2 || t.Out(0) != resultsType || t.Out(1) != errorType {
		return fmt.Errorf("fast: router: %q must return ([]interface{}, error)", name)
	}

	argTypes := make([]reflect.Type, t.NumIn()-1)
	for i := range argTypes {
		argTypes[i] = t.In(i + 1)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[name] = &routedMethod{fn: v, argType: argTypes}
	return nil
}

// AsHandler returns a Handler that looks up the request's method name,
// unmarshals its `d` array positionally into the registered function's
// parameters, and calls it. An unregistered name or an argument that
// doesn't unmarshal into its declared type produces a *ferrors.HandlerError,
// which the engine turns into an ERROR frame.
func (r *Router) AsHandler() Handler {
	return func(ctx context.Context, req *message.Message, log logging.Logger) ([]*message.Message, error) {
		r.mu.RLock()
		m, ok := r.methods[req.Payload.M.Name]
		r.mu.RUnlock()
		if !ok {
			return nil, &ferrors.HandlerError{Err: fmt.Errorf("Unsupported function: %s", req.Payload.M.Name)}
		}

		var raw []json.RawMessage
		if err := req.Payload.Args(&raw); err != nil {
			return nil, &ferrors.HandlerError{Err: fmt.Errorf("invalid arguments: %w", err)}
		}
		if len(raw) != len(m.argType) {
			return nil, &ferrors.HandlerError{
				Err: fmt.Errorf("%s expects %d argument(s), got %d", req.Payload.M.Name, len(m.argType), len(raw)),
			}
		}

		in := make([]reflect.Value, len(m.argType)+1)
		in[0] = reflect.ValueOf(ctx)
		for i, argT := range m.argType {
			ptr := reflect.New(argT)
			if err := json.Unmarshal(raw[i], ptr.Interface()); err != nil {
				return nil, &ferrors.HandlerError{Err: fmt.Errorf("argument %d: %w", i, err)}
			}
			in[i+1] = ptr.Elem()
		}

		out := m.fn.Call(in)
		if errv := out[1]; !errv.IsNil() {
			return nil, &ferrors.HandlerError{Err: errv.Interface().(error)}
		}

		results, _ := out[0].Interface().([]interface{})
		msgs := make([]*message.Message, len(results))
		for i, res := range results {
			msgs[i] = message.NewData(req.ID, req.Payload.M.Name, []interface{}{res})
		}
		return msgs, nil
	}
}
