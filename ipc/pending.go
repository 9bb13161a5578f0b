package ipc

import "github.com/Samsung/vasum-ipc/sock"

// pendingCall is created when the local side sends a request; removed
// when a reply arrives, a timeout fires, or the peer is lost.
// Invariant: for every in-flight request there is exactly one
// pendingCall.
type pendingCall struct {
	messageID  MessageID
	peerID     PeerID
	parse      parseFunc
	completion func(v any, err error)
}

// callRequest is the payload of a queue.Method entry: an outbound
// request the worker has not yet written to the wire.
type callRequest struct {
	peerID     PeerID
	method     MethodID
	messageID  MessageID
	data       any
	serialize  serializeFunc
	parseReply parseFunc
	completion func(v any, err error)
}

// signalRequest is the payload of a queue.Signal entry: one outbound
// signal destined for one subscriber.
type signalRequest struct {
	peerID    PeerID
	method    MethodID
	messageID MessageID
	data      any
	serialize serializeFunc
}

// sendResultRequest is the payload of a queue.SendResult entry: a
// MethodResult's reply (success, error, or void) waiting to be written.
type sendResultRequest struct {
	peerID    PeerID
	messageID MessageID
	method    MethodID // RETURN or ERROR
	data      any
	serialize serializeFunc
	errCode   int32
	errMsg    string
}

// registerSignalRequest is the payload of a queue.RegisterSignal entry:
// an announcement of local signal-handler interest, addressed to one
// peer and carrying one or more MethodIDs.
type registerSignalRequest struct {
	peerID  PeerID
	methods []MethodID
}

// addPeerRequest/removePeerRequest/removeMethodRequest/finishRequest are
// the remaining queue.Entry payloads.
type addPeerRequest struct {
	socket *sock.Socket
	done   chan error
}

type removePeerRequest struct {
	peerID PeerID
	reason RemovalReason
}

type removeMethodRequest struct {
	method MethodID
	done   chan struct{}
}

type finishRequest struct {
	done chan struct{}
}
