package ipc

import (
	"github.com/Samsung/vasum-ipc/sock"
)

// RemovalReason records why a peer was removed, surfaced to
// RemovedPeerCallback so the surrounding daemon can account for peer
// liveness.
type RemovalReason int

const (
	PeerClosed RemovalReason = iota
	PeerTimedOut
	PeerNaughty
	PeerEvicted
)

func (r RemovalReason) String() string {
	switch r {
	case PeerClosed:
		return "closed"
	case PeerTimedOut:
		return "timed_out"
	case PeerNaughty:
		return "naughty"
	case PeerEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Peer is a connected remote endpoint from the local processor's point
// of view. Exactly one Processor owns a Peer; its socket is never
// shared.
type Peer struct {
	ID     PeerID
	Socket *sock.Socket
	// signalsSubscribedHere are the MethodIDs this peer has announced
	// interest in (it sent us REGISTER_SIGNAL_METHOD_ID naming them).
	signalsSubscribedHere map[MethodID]struct{}
	oneShotGone           map[MethodID]struct{}
}

func newPeer(id PeerID, s *sock.Socket) *Peer {
	return &Peer{
		ID:                    id,
		Socket:                s,
		signalsSubscribedHere: make(map[MethodID]struct{}),
		oneShotGone:           make(map[MethodID]struct{}),
	}
}
