package ipc

import (
	"encoding/hex"

	uuid "github.com/hashicorp/go-uuid"
)

// PeerID is an opaque 128-bit identifier assigned on peer registration,
// stable for the life of a connection, drawn from a random source and
// never reused.
type PeerID [16]byte

func (p PeerID) String() string { return hex.EncodeToString(p[:]) }

// IsZero reports whether p is the zero value (never a valid, assigned
// PeerID).
func (p PeerID) IsZero() bool { return p == PeerID{} }

// MessageID is an opaque identifier assigned per outbound request or
// signal, unique per processor for all in-flight exchanges.
type MessageID [16]byte

func (m MessageID) String() string { return hex.EncodeToString(m[:]) }

// newPeerID and newMessageID both draw from the same random source
// (crypto/rand, via hashicorp/go-uuid); they are kept as distinct
// generators only so call sites read as intent. 128 bits of entropy
// makes a monotonic counter unnecessary for uniqueness.
func newPeerID() (PeerID, error) {
	b, err := uuid.GenerateRandomBytes(16)
	if err != nil {
		return PeerID{}, err
	}
	var id PeerID
	copy(id[:], b)
	return id, nil
}

func newMessageID() (MessageID, error) {
	b, err := uuid.GenerateRandomBytes(16)
	if err != nil {
		return MessageID{}, err
	}
	var id MessageID
	copy(id[:], b)
	return id, nil
}
