// Package message defines the Fast RPC message envelope: the header
// fields every frame carries, and the {m, d} payload schema carried in
// its JSON body.
//
// A Message is the in-memory form of one frame (see package frame for
// the wire encoding). The zero value is not meaningful — construct one
// with NewData, NewEnd, or NewError.
package message

import (
	"encoding/json"
	"time"
)

// Type is the Fast message type. Only JSON is defined by the protocol;
// any other value on the wire is a fatal decode error for the
// connection.
type Type byte

// JSON is the only defined Fast message type.
const JSON Type = 1

// Status distinguishes a request/intermediate-result frame (Data) from
// the two kinds of terminator (End, Error).
type Status byte

const (
	// Data indicates an RPC request (client to server) or one of
	// possibly many values emitted by an in-progress RPC (server to
	// client).
	Data Status = 1
	// End indicates the successful completion of an RPC.
	End Status = 2
	// Error indicates the failed completion of an RPC.
	Error Status = 3
)

func (s Status) String() string {
	switch s {
	case Data:
		return "DATA"
	case End:
		return "END"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MetaData is the `m` field of a Fast payload: the RPC method name and
// an optional creation timestamp in microseconds since the Unix epoch.
// Senders populate both on every message, including server-emitted
// frames, where uts is redundant but included by convention.
type MetaData struct {
	Name string `json:"name"`
	UTS  uint64 `json:"uts,omitempty"`
}

func newMetaData(name string) MetaData {
	return MetaData{Name: name, UTS: uint64(time.Now().UnixMicro())}
}

// ServerError is the {name, message} shape carried in an ERROR frame's
// `d` field.
type ServerError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// UnspecifiedServerError is substituted whenever an ERROR frame's `d`
// field cannot be parsed as a ServerError, so a malformed error
// payload degrades gracefully rather than failing the decode outright.
func UnspecifiedServerError() ServerError {
	return ServerError{
		Name:    "UnspecifiedServerError",
		Message: "Server reported unspecified error.",
	}
}

// Payload is the JSON body of a Fast message: method metadata plus a
// `d` value whose shape depends on status — an array of arguments (or
// emitted values) for DATA/END, an {name, message} object for ERROR.
// D is kept as raw JSON so a Message can be parsed without forcing a
// shape before the caller knows the status.
type Payload struct {
	M MetaData        `json:"m"`
	D json.RawMessage `json:"d"`
}

// Args unmarshals D as a JSON array of args into v (typically
// *[]json.RawMessage or a caller-defined slice type).
func (p Payload) Args(v interface{}) error {
	if len(p.D) == 0 {
		return json.Unmarshal([]byte("[]"), v)
	}
	return json.Unmarshal(p.D, v)
}

// ServerError unmarshals D as a {name, message} object, degrading to
// UnspecifiedServerError on any failure.
func (p Payload) ServerError() ServerError {
	var se ServerError
	if len(p.D) == 0 {
		return UnspecifiedServerError()
	}
	if err := json.Unmarshal(p.D, &se); err != nil || se.Name == "" {
		return UnspecifiedServerError()
	}
	return se
}

// Message is the decoded, in-memory form of one Fast frame.
type Message struct {
	Type    Type
	Status  Status
	ID      uint32
	Payload Payload
}

func arrayOrEmpty(v interface{}) json.RawMessage {
	if v == nil {
		return json.RawMessage("[]")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("[]")
	}
	return b
}

// NewData builds a DATA message. args is marshaled as the `d` array;
// pass nil or an empty slice to emit `d: []`.
func NewData(id uint32, name string, args interface{}) *Message {
	return &Message{
		Type:   JSON,
		Status: Data,
		ID:     id,
		Payload: Payload{
			M: newMetaData(name),
			D: arrayOrEmpty(args),
		},
	}
}

// NewEnd builds the terminator for a successful RPC. method is copied
// from the originating request's m.name; the data payload is always an
// empty array, though a client must still treat END's `d` like a DATA
// payload rather than ignoring it outright.
func NewEnd(id uint32, method string) *Message {
	return &Message{
		Type:   JSON,
		Status: End,
		ID:     id,
		Payload: Payload{
			M: newMetaData(method),
			D: json.RawMessage("[]"),
		},
	}
}

// NewError builds the terminator for a failed RPC, with a {name,
// message} object as `d`.
func NewError(id uint32, method, errName, errMessage string) *Message {
	d, _ := json.Marshal(ServerError{Name: errName, Message: errMessage})
	return &Message{
		Type:   JSON,
		Status: Error,
		ID:     id,
		Payload: Payload{
			M: newMetaData(method),
			D: d,
		},
	}
}
