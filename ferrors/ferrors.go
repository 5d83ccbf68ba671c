// Package ferrors defines the error taxonomy shared by the frame codec,
// the server engine, and the client engine.
//
// NeedMore is a parser signal, not a user-visible failure: the frame
// splitter consumes it internally and callers should never see it escape
// a completed Split call. Malformed and ChecksumMismatch are fatal to the
// connection they occur on. RemoteError carries an ERROR frame's payload
// back to a client caller.
package ferrors

import "fmt"

// NeedMore indicates the buffer does not yet contain a complete frame.
// Current is the number of bytes available when the short read was
// detected; it does not count toward the frame's eventual size.
type NeedMore struct {
	Current int
}

func (e *NeedMore) Error() string {
	return fmt.Sprintf("need more bytes: have %d", e.Current)
}

// Malformed indicates the buffer contains bytes that cannot be a valid
// Fast frame: unrecognized version/type/status, invalid UTF-8, or a
// payload that doesn't match the {m, d} schema.
type Malformed struct {
	Reason string
}

func (e *Malformed) Error() string {
	return fmt.Sprintf("malformed frame: %s", e.Reason)
}

// ChecksumMismatch indicates the computed CRC-16/ARC of the payload does
// not match the header's crc field. Only returned in strict CRC mode.
type ChecksumMismatch struct {
	Header   uint32
	Computed uint32
}

func (e *ChecksumMismatch) Error() string {
	return fmt.Sprintf("checksum mismatch: header=%#x computed=%#x", e.Header, e.Computed)
}

// EncodeFailed indicates a message could not be serialized to bytes,
// either because the payload failed to marshal or because a buffer
// reservation failed.
type EncodeFailed struct {
	Reason string
}

func (e *EncodeFailed) Error() string {
	return fmt.Sprintf("encode failed: %s", e.Reason)
}

// Transport wraps a failed read or write on the underlying stream.
type Transport struct {
	Op  string
	Err error
}

func (e *Transport) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *Transport) Unwrap() error {
	return e.Err
}

// UnexpectedEOF indicates the peer closed the connection before the
// terminator for an outstanding request arrived.
type UnexpectedEOF struct{}

func (e *UnexpectedEOF) Error() string {
	return "unexpected EOF before terminator"
}

// RemoteError is carried by an ERROR frame and surfaced to the client as
// a failed RPC. Its Error() rendering matches the wire convention
// "{name}: {message}" used for an unknown-method response.
type RemoteError struct {
	Name    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// HandlerError is returned by a server Handler. The server engine
// converts it into an ERROR frame; it never reaches the client directly.
type HandlerError struct {
	Err error
}

func (e *HandlerError) Error() string {
	return e.Err.Error()
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
