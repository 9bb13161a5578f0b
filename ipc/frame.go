package ipc

import (
	"encoding/binary"
	"fmt"

	"github.com/Samsung/vasum-ipc/sock"
)

// MethodID is an application-assigned integer selector. Three values
// are reserved: RETURN_METHOD_ID for replies,
// REGISTER_SIGNAL_METHOD_ID for the subscription protocol, and
// ERROR_METHOD_ID for error replies.
type MethodID uint32

const (
	// ReturnMethodID marks a frame as a reply to a prior request.
	ReturnMethodID MethodID = 0xFFFFFFFF
	// RegisterSignalMethodID marks a frame as a peer-to-peer
	// announcement of signal interest.
	RegisterSignalMethodID MethodID = 0xFFFFFFFE
	// ErrorMethodID marks a frame as an error reply.
	ErrorMethodID MethodID = 0xFFFFFFFD
)

// IsReserved reports whether m is one of the three reserved selectors
// and therefore cannot be registered as an application method or
// signal.
func (m MethodID) IsReserved() bool {
	return m == ReturnMethodID || m == RegisterSignalMethodID || m == ErrorMethodID
}

// frameHeader is the wire unit prefix: MethodID (varint) followed by
// MessageID (16 raw bytes, opaque). The payload that follows is defined
// by the record's codec schema and is read/written by the caller.
type frameHeader struct {
	Method    MethodID
	MessageID MessageID
}

func writeFrameHeader(s *sock.Socket, h frameHeader) error {
	var buf [binary.MaxVarintLen32]byte
	n := binary.PutUvarint(buf[:], uint64(h.Method))
	if err := s.WriteFull(buf[:n]); err != nil {
		return fmt.Errorf("ipc: write method id: %w", err)
	}
	if err := s.WriteFull(h.MessageID[:]); err != nil {
		return fmt.Errorf("ipc: write message id: %w", err)
	}
	return nil
}

// readFrameHeader reads the varint MethodID one byte at a time (there is
// no framing to tell us the varint's length in advance) followed by the
// fixed 16-byte MessageID.
func readFrameHeader(s *sock.Socket) (frameHeader, error) {
	var raw []byte
	var b [1]byte
	for i := 0; i < binary.MaxVarintLen64; i++ {
		if err := s.ReadFull(b[:]); err != nil {
			return frameHeader{}, fmt.Errorf("ipc: read method id: %w", err)
		}
		raw = append(raw, b[0])
		if b[0] < 0x80 {
			break
		}
	}
	method, n := binary.Uvarint(raw)
	if n <= 0 {
		return frameHeader{}, fmt.Errorf("ipc: malformed varint method id")
	}

	var msgID MessageID
	if err := s.ReadFull(msgID[:]); err != nil {
		return frameHeader{}, fmt.Errorf("ipc: read message id: %w", err)
	}
	return frameHeader{Method: MethodID(method), MessageID: msgID}, nil
}
