package frame

import (
	"github.com/TritonDataCenter/rust-fast/crc"
	"github.com/TritonDataCenter/rust-fast/ferrors"
	"github.com/TritonDataCenter/rust-fast/message"
)

// Split decodes as many complete messages as buf contains, starting at
// offset 0. It returns the decoded messages and the number of leading
// bytes that were consumed — callers should trim exactly that many
// bytes from the head of their buffer and keep the remainder (a
// partial header or partial payload) for the next read.
//
// Split is stateless across calls: all state lives in the
// caller-owned buffer. It handles every boundary case a streaming
// reader can produce: a partial header, a partial payload, exactly one
// frame, several frames back to back in one read, and an empty buffer.
//
// A *ferrors.Malformed or *ferrors.ChecksumMismatch aborts the call
// immediately — messages already decoded before the error, and the
// consumed count for them, are still returned, so the caller can
// flush what's good before tearing down the connection.
func Split(buf []byte, policy crc.Policy) ([]*message.Message, int, error) {
	var msgs []*message.Message
	offset := 0

	for offset < len(buf) {
		msg, n, err := Parse(buf[offset:], policy)
		if err != nil {
			if _, ok := err.(*ferrors.NeedMore); ok {
				break
			}
			return msgs, offset, err
		}
		msgs = append(msgs, msg)
		offset += n
	}

	return msgs, offset, nil
}
