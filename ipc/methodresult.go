package ipc

import (
	"sync/atomic"

	"github.com/Samsung/vasum-ipc/codec"
)

// MethodResult lets a method handler reply, possibly asynchronously
// (from a goroutine other than the processor's worker), possibly with a
// user error code. Set/SetVoid/SetError are mutually
// exclusive; only the first call on a given MethodResult has any effect.
type MethodResult struct {
	proc      *Processor
	peerID    PeerID
	messageID MessageID
	methodID  MethodID
	serialize serializeFunc
	fulfilled atomic.Bool
}

func newMethodResult(p *Processor, peerID PeerID, msgID MessageID, methodID MethodID, serialize serializeFunc) *MethodResult {
	return &MethodResult{proc: p, peerID: peerID, messageID: msgID, methodID: methodID, serialize: serialize}
}

// GetPeerID returns the peer this result will reply to.
func (r *MethodResult) GetPeerID() PeerID { return r.peerID }

// Set fulfills the call with data, to be serialized with the method's
// registered Out schema and sent back as RETURN_METHOD_ID.
func (r *MethodResult) Set(data any) {
	if r.fulfilled.Swap(true) {
		return
	}
	r.proc.enqueueSendResult(sendResultRequest{
		peerID:    r.peerID,
		messageID: r.messageID,
		method:    ReturnMethodID,
		data:      data,
		serialize: r.serialize,
	})
}

// SetVoid fulfills the call with an empty payload.
func (r *MethodResult) SetVoid() {
	if r.fulfilled.Swap(true) {
		return
	}
	r.proc.enqueueSendResult(sendResultRequest{
		peerID:    r.peerID,
		messageID: r.messageID,
		method:    ReturnMethodID,
		serialize: func(*codec.Writer, any) error { return nil },
	})
}

// SetError fulfills the call with a user error: {code, message}.
func (r *MethodResult) SetError(code int32, message string) {
	if r.fulfilled.Swap(true) {
		return
	}
	r.proc.enqueueSendResult(sendResultRequest{
		peerID:    r.peerID,
		messageID: r.messageID,
		method:    ErrorMethodID,
		errCode:   code,
		errMsg:    message,
	})
}

// IsFulfilled reports whether Set/SetVoid/SetError has already run.
func (r *MethodResult) IsFulfilled() bool { return r.fulfilled.Load() }
