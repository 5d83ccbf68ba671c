// Package frame implements the Fast wire framing: encoding a
// message.Message to bytes, parsing bytes back into a message.Message,
// and splitting an append-only buffer into the complete frames it
// contains.
//
// Frame layout (15-byte header + JSON payload):
//
//	0      1      2      3            7            11           15
//	+------+------+------+------------+------------+------------+----------------+
//	|  ver | type |status|     id     |    crc      | data_length|   data ...     |
//	| (1)  | (1)  | (1)  |  (4, BE)   |  (4, BE)    |  (4, BE)   | data_length B  |
//	+------+------+------+------------+------------+------------+----------------+
package frame

import (
	"encoding/binary"
	"encoding/json"
	"unicode/utf8"

	"github.com/TritonDataCenter/rust-fast/crc"
	"github.com/TritonDataCenter/rust-fast/ferrors"
	"github.com/TritonDataCenter/rust-fast/message"
)

// Version is the only protocol revision this package speaks.
const Version byte = 1

// HeaderSize is the fixed size, in bytes, of a Fast frame header.
const HeaderSize = 15

const (
	offVersion = 0
	offType    = 1
	offStatus  = 2
	offID      = 3
	offCRC     = 7
	offDataLen = 11
	offData    = HeaderSize
)

// Encode serializes msg to its wire representation. The returned slice
// is pre-sized to exactly HeaderSize + len(payload) to avoid a second
// allocation on append.
func Encode(msg *message.Message, policy crc.Policy) ([]byte, error) {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, &ferrors.EncodeFailed{Reason: err.Error()}
	}

	buf := make([]byte, HeaderSize+len(payload))
	buf[offVersion] = Version
	buf[offType] = byte(message.JSON)
	buf[offStatus] = byte(msg.Status)
	binary.BigEndian.PutUint32(buf[offID:offID+4], msg.ID)
	binary.BigEndian.PutUint32(buf[offCRC:offCRC+4], uint32(crc.ARC(payload)))
	binary.BigEndian.PutUint32(buf[offDataLen:offDataLen+4], uint32(len(payload)))
	copy(buf[offData:], payload)

	return buf, nil
}

// Parse decodes one message from the head of buf. On success it
// returns the message and the number of bytes consumed (always
// HeaderSize + data_length). If buf does not yet contain a complete
// frame, it returns a *ferrors.NeedMore error and consumes nothing —
// callers must not advance their buffer offset in that case.
func Parse(buf []byte, policy crc.Policy) (*message.Message, int, error) {
	if len(buf) < HeaderSize {
		return nil, 0, &ferrors.NeedMore{Current: len(buf)}
	}

	if buf[offVersion] != Version {
		return nil, 0, &ferrors.Malformed{Reason: "unsupported version"}
	}

	typ := message.Type(buf[offType])
	if typ != message.JSON {
		return nil, 0, &ferrors.Malformed{Reason: "unsupported type"}
	}

	status := message.Status(buf[offStatus])
	switch status {
	case message.Data, message.End, message.Error:
	default:
		return nil, 0, &ferrors.Malformed{Reason: "unsupported status"}
	}

	id := binary.BigEndian.Uint32(buf[offID : offID+4])
	wireCRC := binary.BigEndian.Uint32(buf[offCRC : offCRC+4])
	dataLen := binary.BigEndian.Uint32(buf[offDataLen : offDataLen+4])

	total := offData + int(dataLen)
	if len(buf) < total {
		return nil, 0, &ferrors.NeedMore{Current: len(buf)}
	}

	payloadBytes := buf[offData:total]

	if !crc.Check(policy, wireCRC, payloadBytes) {
		return nil, 0, &ferrors.ChecksumMismatch{
			Header:   wireCRC,
			Computed: uint32(crc.ARC(payloadBytes)),
		}
	}

	if !utf8.Valid(payloadBytes) {
		return nil, 0, &ferrors.Malformed{Reason: "payload is not valid UTF-8"}
	}

	var payload message.Payload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, 0, &ferrors.Malformed{Reason: "payload does not match the {m, d} schema: " + err.Error()}
	}

	msg := &message.Message{
		Type:    typ,
		Status:  status,
		ID:      id,
		Payload: payload,
	}
	return msg, total, nil
}
