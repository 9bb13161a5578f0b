package ipc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Samsung/vasum-ipc/codec"
	"github.com/Samsung/vasum-ipc/dispatch"
	"github.com/Samsung/vasum-ipc/poll"
	"github.com/Samsung/vasum-ipc/queue"
	"github.com/Samsung/vasum-ipc/result"
	"github.com/Samsung/vasum-ipc/sock"
	"github.com/Samsung/vasum-ipc/xlog"
)

// DefaultCallTimeout bounds CallSync when the caller passes zero.
const DefaultCallTimeout = 5 * time.Second

// NewPeerCallback is invoked once a peer has been assigned a PeerID, before
// it is added to the peer table, before its socket is registered with the
// reactor and before the local signal set is replayed to it; it receives
// only the PeerID, not the FD. Returning an error refuses the peer: its
// socket is closed and it is never added.
type NewPeerCallback func(peer PeerID) error

// RemovedPeerCallback is invoked after a peer has been fully torn down:
// its socket closed, its pending calls failed, its handlers' one-shot
// bookkeeping discarded.
type RemovedPeerCallback func(peer PeerID, reason RemovalReason)

// Config bundles the knobs a Processor is constructed with.
type Config struct {
	// ByteOrder selects the wire encoding for every frame this processor
	// reads or writes. Local for same-host peers (the common case);
	// Internet when byte order cannot be assumed shared.
	ByteOrder codec.ByteOrder
	// MaxPeers caps concurrently registered peers; zero means unlimited.
	MaxPeers int
	// NewPeer/RemovedPeer are optional lifecycle hooks.
	NewPeer     NewPeerCallback
	RemovedPeer RemovedPeerCallback
	// Logger is the ambient structured logger; nil becomes a discard
	// logger via xlog.OrDiscard.
	Logger *xlog.Logger
}

// Processor is the single-threaded-cooperative state machine at the
// core of the runtime: one worker goroutine drains a request queue and
// does all framing, parsing and handler invocation. stateMutex guards
// the peer maps, handler registries and pending-call bookkeeping, which
// are also read and modified from callers' goroutines (handler
// registration, CancelCall, the CallSync timeout path, Peers()).
type Processor struct {
	cfg Config
	log *xlog.Logger

	poll   *poll.Poll
	thread *dispatch.Thread
	q      *queue.Queue

	stateMutex sync.RWMutex
	peers      map[PeerID]*Peer
	fdToPeer   map[int]PeerID

	methods       map[MethodID]*MethodHandler
	signals       map[MethodID]*SignalHandler
	subscribers   map[MethodID]map[PeerID]struct{}
	pendingByMsg  map[MessageID]*pendingCall
	pendingByPeer map[PeerID]map[MessageID]struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	stopped   atomic.Bool
}

// NewProcessor creates a Processor driving its own epoll instance. Call
// Start to begin processing.
func NewProcessor(cfg Config) (*Processor, error) {
	p, err := poll.New()
	if err != nil {
		return nil, err
	}
	q, err := queue.New()
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return &Processor{
		cfg:           cfg,
		log:           xlog.OrDiscard(cfg.Logger),
		poll:          p,
		q:             q,
		peers:         make(map[PeerID]*Peer),
		fdToPeer:      make(map[int]PeerID),
		methods:       make(map[MethodID]*MethodHandler),
		signals:       make(map[MethodID]*SignalHandler),
		subscribers:   make(map[MethodID]map[PeerID]struct{}),
		pendingByMsg:  make(map[MessageID]*pendingCall),
		pendingByPeer: make(map[PeerID]map[MessageID]struct{}),
	}, nil
}

// Start registers the request queue's wakeup FD with the reactor and
// launches the worker goroutine. Idempotent.
func (p *Processor) Start() error {
	var err error
	p.startOnce.Do(func() {
		regErr := p.poll.Add(p.q.EventFD().FD(), poll.In, p.onQueueReadable)
		if regErr != nil {
			err = regErr
			return
		}
		t, tErr := dispatch.NewThread(p.poll)
		if tErr != nil {
			err = tErr
			return
		}
		p.thread = t
		p.log.Debug().Log(`processor started`)
	})
	return err
}

// Stop drains the request queue, tears down every peer, and joins the
// worker goroutine. Idempotent; safe to call from any goroutine other
// than the worker itself (the Finish entry is processed after whatever
// the worker is currently doing). Stop waits for the worker goroutine to
// exit, so a call from a handler callback, which runs on that goroutine,
// never returns.
func (p *Processor) Stop(wait bool) {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		done := make(chan struct{})
		p.q.PushFront(queue.Finish, finishRequest{done: done})
		if wait {
			<-done
		}
		if p.thread != nil {
			p.thread.Stop()
		}
		// Entries pushed while the worker was winding down would
		// otherwise sit in the queue forever; release them.
		p.drainShutdown()
		p.log.Debug().Log(`processor stopped`)
	})
}

func (p *Processor) onQueueReadable(poll.Events) {
	if _, err := p.q.EventFD().Drain(); err != nil {
		p.log.Debug().Err(err).Log(`drain queue eventfd`)
	}
	for {
		entry, ok := p.q.TryPop()
		if !ok {
			return
		}
		if p.handleQueueEntry(entry) {
			return
		}
	}
}

// handleQueueEntry processes one queue.Entry. It returns true if the
// worker must stop draining (a Finish entry was processed).
func (p *Processor) handleQueueEntry(entry queue.Entry) bool {
	switch entry.Tag {
	case queue.Finish:
		req := entry.Payload.(finishRequest)
		p.drainShutdown()
		close(req.done)
		return true
	case queue.AddPeer:
		req := entry.Payload.(addPeerRequest)
		p.doAddPeer(req)
	case queue.RemovePeer:
		req := entry.Payload.(removePeerRequest)
		p.doRemovePeer(req.peerID, req.reason)
	case queue.RemoveMethod:
		req := entry.Payload.(removeMethodRequest)
		p.doRemoveMethod(req.method)
		if req.done != nil {
			close(req.done)
		}
	case queue.Method:
		req := entry.Payload.(callRequest)
		p.doSendCall(req)
	case queue.Signal:
		req := entry.Payload.(signalRequest)
		p.doSendSignal(req)
	case queue.SendResult:
		req := entry.Payload.(sendResultRequest)
		p.doSendResult(req)
	case queue.RegisterSignal:
		req := entry.Payload.(registerSignalRequest)
		p.doRegisterSignal(req)
	}
	return false
}

func (p *Processor) drainShutdown() {
	p.stateMutex.Lock()
	peers := make([]PeerID, 0, len(p.peers))
	for id := range p.peers {
		peers = append(peers, id)
	}
	p.stateMutex.Unlock()
	for _, id := range peers {
		p.doRemovePeer(id, PeerClosed)
	}

	// Empty the request queue (after Stop(wait=true) returns it holds
	// nothing), releasing anything still waiting on a queued entry.
	for {
		entry, ok := p.q.TryPop()
		if !ok {
			return
		}
		switch entry.Tag {
		case queue.Method:
			req := entry.Payload.(callRequest)
			req.completion(nil, newError(KindPeerDisconnected, ErrAlreadyStopped))
		case queue.AddPeer:
			req := entry.Payload.(addPeerRequest)
			_ = req.socket.Close()
			req.done <- ErrAlreadyStopped
			close(req.done)
		case queue.RemoveMethod:
			req := entry.Payload.(removeMethodRequest)
			if req.done != nil {
				close(req.done)
			}
		case queue.Finish:
			req := entry.Payload.(finishRequest)
			close(req.done)
		}
	}
}

// AddPeer registers an already-accepted connection, asynchronously:
// the socket is handed to the worker goroutine, which assigns a PeerID,
// registers the FD with the reactor, and (if cfg.NewPeer is set) invokes
// the acceptance hook before the peer becomes visible to RemoveMethod,
// CallSync/CallAsync or Signal. done reports acceptance failure (a
// non-nil NewPeer hook error, or MaxPeers exceeded).
func (p *Processor) AddPeer(s *sock.Socket) <-chan error {
	done := make(chan error, 1)
	if p.stopped.Load() {
		_ = s.Close()
		done <- ErrAlreadyStopped
		close(done)
		return done
	}
	p.q.PushBack(queue.AddPeer, addPeerRequest{socket: s, done: done})
	return done
}

func (p *Processor) doAddPeer(req addPeerRequest) {
	p.stateMutex.Lock()
	if p.cfg.MaxPeers > 0 && len(p.peers) >= p.cfg.MaxPeers {
		p.stateMutex.Unlock()
		_ = req.socket.Close()
		req.done <- newErrorf(KindConfiguration, "max peers (%d) exceeded", p.cfg.MaxPeers)
		close(req.done)
		return
	}
	p.stateMutex.Unlock()

	id, err := newPeerID()
	if err != nil {
		_ = req.socket.Close()
		req.done <- err
		close(req.done)
		return
	}

	if p.cfg.NewPeer != nil {
		if err := p.cfg.NewPeer(id); err != nil {
			_ = req.socket.Close()
			req.done <- err
			close(req.done)
			return
		}
	}

	peer := newPeer(id, req.socket)
	p.stateMutex.Lock()
	p.peers[id] = peer
	p.fdToPeer[req.socket.FD()] = id
	p.stateMutex.Unlock()

	if err := p.poll.Add(req.socket.FD(), poll.In|poll.RdHup, func(ev poll.Events) { p.onPeerReadable(id, ev) }); err != nil {
		p.doRemovePeer(id, PeerClosed)
		req.done <- err
		close(req.done)
		return
	}

	// A newly joined peer is told, in one message, every signal MethodID
	// currently registered locally.
	p.stateMutex.RLock()
	methods := make([]MethodID, 0, len(p.signals))
	for m := range p.signals {
		methods = append(methods, m)
	}
	p.stateMutex.RUnlock()
	if len(methods) > 0 {
		if err := p.writeRegisterSignal(peer, methods); err != nil {
			p.doRemovePeer(id, PeerClosed)
			req.done <- err
			close(req.done)
			return
		}
	}

	p.log.Debug().Str(`peer`, id.String()).Log(`peer added`)
	req.done <- nil
	close(req.done)
}

// RemovePeer tears a peer down asynchronously: its socket is closed, any
// in-flight calls it owns fail with KindPeerDisconnected, and
// RemovedPeer (if set) is invoked on the worker goroutine.
func (p *Processor) RemovePeer(id PeerID, reason RemovalReason) {
	p.q.PushBack(queue.RemovePeer, removePeerRequest{peerID: id, reason: reason})
}

func (p *Processor) doRemovePeer(id PeerID, reason RemovalReason) {
	p.stateMutex.Lock()
	peer, ok := p.peers[id]
	if !ok {
		p.stateMutex.Unlock()
		return
	}
	delete(p.peers, id)
	delete(p.fdToPeer, peer.Socket.FD())
	for methodID := range p.subscribers {
		delete(p.subscribers[methodID], id)
	}
	var failed []*pendingCall
	if msgs, ok := p.pendingByPeer[id]; ok {
		for msgID := range msgs {
			if pc, ok := p.pendingByMsg[msgID]; ok {
				failed = append(failed, pc)
				delete(p.pendingByMsg, msgID)
			}
		}
		delete(p.pendingByPeer, id)
	}
	p.stateMutex.Unlock()

	_ = p.poll.Remove(peer.Socket.FD())
	_ = peer.Socket.Close()

	for _, pc := range failed {
		pc.completion(nil, newError(KindPeerDisconnected, ErrPeerDisconnected(id)))
	}

	if p.cfg.RemovedPeer != nil {
		p.cfg.RemovedPeer(id, reason)
	}
	p.log.Debug().Str(`peer`, id.String()).Str(`reason`, reason.String()).Log(`peer removed`)
}

// ErrPeerDisconnected builds the peer-specific disconnect error wrapped
// by pending-call completions.
func ErrPeerDisconnected(id PeerID) error {
	return fmt.Errorf("ipc: peer %s disconnected", id)
}

func (p *Processor) setMethodHandler(id MethodID, h *MethodHandler) error {
	if id.IsReserved() {
		return newError(KindConfiguration, ErrReservedMethodID)
	}
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()
	if _, ok := p.signals[id]; ok {
		return newError(KindConfiguration, ErrDuplicateRole)
	}
	p.methods[id] = h
	return nil
}

func (p *Processor) setSignalHandler(id MethodID, h *SignalHandler) error {
	if id.IsReserved() {
		return newError(KindConfiguration, ErrReservedMethodID)
	}
	p.stateMutex.Lock()
	if _, ok := p.methods[id]; ok {
		p.stateMutex.Unlock()
		return newError(KindConfiguration, ErrDuplicateRole)
	}
	p.signals[id] = h
	if _, ok := p.subscribers[id]; !ok {
		p.subscribers[id] = make(map[PeerID]struct{})
	}
	peers := make([]PeerID, 0, len(p.peers))
	for peerID := range p.peers {
		peers = append(peers, peerID)
	}
	p.stateMutex.Unlock()

	// Installing a signal handler announces it to every peer already
	// connected; a peer connecting afterwards is caught by the replay in
	// doAddPeer instead.
	for _, peerID := range peers {
		p.q.PushBack(queue.RegisterSignal, registerSignalRequest{peerID: peerID, methods: []MethodID{id}})
	}
	return nil
}

// RemoveMethod unregisters a method or signal handler, synchronously
// with respect to the worker (done closes once the registry no longer
// holds it). Removing an unregistered MethodID is a no-op.
func (p *Processor) RemoveMethod(id MethodID) {
	if p.stopped.Load() {
		p.doRemoveMethod(id)
		return
	}
	done := make(chan struct{})
	p.q.PushBack(queue.RemoveMethod, removeMethodRequest{method: id, done: done})
	<-done
}

func (p *Processor) doRemoveMethod(id MethodID) {
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()
	delete(p.methods, id)
	delete(p.signals, id)
	delete(p.subscribers, id)
}

func (p *Processor) enqueueSendResult(req sendResultRequest) {
	p.q.PushBack(queue.SendResult, req)
}

func (p *Processor) doSendResult(req sendResultRequest) {
	p.stateMutex.RLock()
	peer, ok := p.peers[req.peerID]
	p.stateMutex.RUnlock()
	if !ok {
		return
	}
	var err error
	if req.method == ErrorMethodID {
		err = p.writeError(peer, req.messageID, req.errCode, req.errMsg)
	} else {
		err = writeFrameHeader(peer.Socket, frameHeader{Method: req.method, MessageID: req.messageID})
		if err == nil && req.serialize != nil {
			err = req.serialize(codec.NewWriter(peer.Socket, p.cfg.ByteOrder), req.data)
		}
	}
	if err != nil {
		p.log.Debug().Err(err).Str(`peer`, req.peerID.String()).Log(`write reply failed`)
		p.doRemovePeer(req.peerID, PeerClosed)
	}
}

// writeError writes one ERROR_METHOD_ID frame: {code, message} as a
// pair, correlated to the offending request by msgID.
func (p *Processor) writeError(peer *Peer, msgID MessageID, code int32, msg string) error {
	if err := writeFrameHeader(peer.Socket, frameHeader{Method: ErrorMethodID, MessageID: msgID}); err != nil {
		return err
	}
	w := codec.NewWriter(peer.Socket, p.cfg.ByteOrder)
	return codec.WritePair(w, code, msg,
		func(w *codec.Writer, v int32) error { return w.WriteInt32(v) },
		func(w *codec.Writer, v string) error { return w.WriteString(v) },
	)
}

// CallAsync enqueues an outbound request to peer and returns immediately;
// completion is invoked from the worker goroutine once a RETURN/ERROR
// frame or a disconnect settles it. It returns the generated MessageID so
// a caller building its own synchronous wait (CallSync) can cancel the
// pending call on timeout.
func (p *Processor) CallAsync(peer PeerID, method MethodID, data any, serialize serializeFunc, parseReply parseFunc, completion func(v any, err error)) (MessageID, error) {
	if method.IsReserved() {
		return MessageID{}, newError(KindConfiguration, ErrReservedMethodID)
	}
	if p.stopped.Load() {
		return MessageID{}, newError(KindPeerDisconnected, ErrAlreadyStopped)
	}
	msgID, err := newMessageID()
	if err != nil {
		return MessageID{}, err
	}
	p.q.PushBack(queue.Method, callRequest{
		peerID:     peer,
		method:     method,
		messageID:  msgID,
		data:       data,
		serialize:  serialize,
		parseReply: parseReply,
		completion: completion,
	})
	return msgID, nil
}

func (p *Processor) doSendCall(req callRequest) {
	p.stateMutex.Lock()
	peer, ok := p.peers[req.peerID]
	if !ok {
		p.stateMutex.Unlock()
		req.completion(nil, newError(KindPeerDisconnected, ErrPeerDisconnected(req.peerID)))
		return
	}
	pc := &pendingCall{messageID: req.messageID, peerID: req.peerID, parse: req.parseReply, completion: req.completion}
	p.pendingByMsg[req.messageID] = pc
	if _, ok := p.pendingByPeer[req.peerID]; !ok {
		p.pendingByPeer[req.peerID] = make(map[MessageID]struct{})
	}
	p.pendingByPeer[req.peerID][req.messageID] = struct{}{}
	p.stateMutex.Unlock()

	if err := writeFrameHeader(peer.Socket, frameHeader{Method: req.method, MessageID: req.messageID}); err != nil {
		p.failPending(req.messageID, newError(KindPeerDisconnected, err))
		p.doRemovePeer(req.peerID, PeerClosed)
		return
	}
	w := codec.NewWriter(peer.Socket, p.cfg.ByteOrder)
	if req.serialize != nil {
		if err := req.serialize(w, req.data); err != nil {
			p.failPending(req.messageID, newError(KindSerialization, err))
			p.doRemovePeer(req.peerID, PeerClosed)
			return
		}
	}
}

func (p *Processor) failPending(msgID MessageID, err error) {
	p.stateMutex.Lock()
	pc, ok := p.pendingByMsg[msgID]
	if ok {
		delete(p.pendingByMsg, msgID)
		if msgs, ok := p.pendingByPeer[pc.peerID]; ok {
			delete(msgs, msgID)
		}
	}
	p.stateMutex.Unlock()
	if ok {
		pc.completion(nil, err)
	}
}

// Signal enqueues a fire-and-forget broadcast of method to every peer
// currently subscribed to it. Peers that never sent
// REGISTER_SIGNAL_METHOD_ID for method do not receive it.
func (p *Processor) Signal(method MethodID, data any, serialize serializeFunc) error {
	if method.IsReserved() {
		return newError(KindConfiguration, ErrReservedMethodID)
	}
	if p.stopped.Load() {
		return nil
	}
	p.stateMutex.RLock()
	subs := make([]PeerID, 0, len(p.subscribers[method]))
	for id := range p.subscribers[method] {
		subs = append(subs, id)
	}
	p.stateMutex.RUnlock()

	if len(subs) == 0 {
		p.log.Debug().Int(`method`, int(method)).Log(`signal has no subscribers`)
		return nil
	}

	for _, peerID := range subs {
		msgID, err := newMessageID()
		if err != nil {
			return err
		}
		p.q.PushBack(queue.Signal, signalRequest{peerID: peerID, method: method, messageID: msgID, data: data, serialize: serialize})
	}
	return nil
}

func (p *Processor) doSendSignal(req signalRequest) {
	p.stateMutex.RLock()
	peer, ok := p.peers[req.peerID]
	p.stateMutex.RUnlock()
	if !ok {
		return
	}
	if err := writeFrameHeader(peer.Socket, frameHeader{Method: req.method, MessageID: req.messageID}); err != nil {
		p.doRemovePeer(req.peerID, PeerClosed)
		return
	}
	w := codec.NewWriter(peer.Socket, p.cfg.ByteOrder)
	if req.serialize != nil {
		if err := req.serialize(w, req.data); err != nil {
			p.doRemovePeer(req.peerID, PeerClosed)
		}
	}
}

// onPeerReadable is the reactor callback for a connected peer's socket.
// It reads and dispatches exactly one frame per invocation, matching the
// level-triggered semantics of poll.Poll: if more data is pending, the
// next DispatchIteration fires the callback again.
func (p *Processor) onPeerReadable(id PeerID, ev poll.Events) {
	p.stateMutex.RLock()
	peer, ok := p.peers[id]
	p.stateMutex.RUnlock()
	if !ok {
		return
	}
	if ev&(poll.Err|poll.Hup|poll.RdHup) != 0 && ev&poll.In == 0 {
		p.doRemovePeer(id, PeerClosed)
		return
	}

	hdr, err := readFrameHeader(peer.Socket)
	if err != nil {
		p.doRemovePeer(id, PeerClosed)
		return
	}

	r := codec.NewReader(peer.Socket, p.cfg.ByteOrder)

	switch hdr.Method {
	case ReturnMethodID:
		p.dispatchReturn(id, hdr.MessageID, r, false)
	case ErrorMethodID:
		p.dispatchReturn(id, hdr.MessageID, r, true)
	case RegisterSignalMethodID:
		p.dispatchRegisterSignal(id, r)
	default:
		p.dispatchMethodOrSignal(id, hdr, r)
	}
}

func (p *Processor) dispatchReturn(id PeerID, msgID MessageID, r *codec.Reader, isError bool) {
	p.stateMutex.Lock()
	pc, ok := p.pendingByMsg[msgID]
	if ok {
		delete(p.pendingByMsg, msgID)
		if msgs, ok := p.pendingByPeer[pc.peerID]; ok {
			delete(msgs, msgID)
		}
	}
	p.stateMutex.Unlock()

	if isError {
		code, err := r.ReadInt32()
		var msg string
		if err == nil {
			msg, err = r.ReadString()
		}
		if err != nil {
			if ok {
				pc.completion(nil, newError(KindParsing, err))
			}
			p.doRemovePeer(id, PeerClosed)
			return
		}
		if ok {
			pc.completion(nil, newError(KindUserError, &UserError{Code: code, Message: msg}))
		}
		return
	}

	if !ok {
		// A reply for a message id we don't recognize: either it already
		// timed out locally, or the peer is naughty. Either way there is
		// nothing to parse against (no schema to hand the reader), so we
		// cannot safely continue decoding this frame; drop the peer.
		p.doRemovePeer(id, PeerNaughty)
		return
	}
	v, err := pc.parse(r)
	if err != nil {
		pc.completion(nil, newError(KindParsing, err))
		p.doRemovePeer(id, PeerClosed)
		return
	}
	pc.completion(v, nil)
}

func (p *Processor) dispatchRegisterSignal(id PeerID, r *codec.Reader) {
	methods, err := codec.ReadSequence(r, func(r *codec.Reader) (MethodID, error) {
		v, err := r.ReadUint32()
		return MethodID(v), err
	})
	if err != nil {
		p.doRemovePeer(id, PeerClosed)
		return
	}
	p.stateMutex.Lock()
	peer, ok := p.peers[id]
	for _, methodID := range methods {
		if ok {
			peer.signalsSubscribedHere[methodID] = struct{}{}
		}
		if _, ok := p.subscribers[methodID]; !ok {
			p.subscribers[methodID] = make(map[PeerID]struct{})
		}
		p.subscribers[methodID][id] = struct{}{}
	}
	p.stateMutex.Unlock()
}

// doRegisterSignal writes one outbound REGISTER_SIGNAL_METHOD_ID
// announcement, queued by setSignalHandler for an already-connected peer.
func (p *Processor) doRegisterSignal(req registerSignalRequest) {
	p.stateMutex.RLock()
	peer, ok := p.peers[req.peerID]
	p.stateMutex.RUnlock()
	if !ok {
		return
	}
	if err := p.writeRegisterSignal(peer, req.methods); err != nil {
		p.doRemovePeer(req.peerID, PeerClosed)
	}
}

// writeRegisterSignal writes the REGISTER_SIGNAL_METHOD_ID frame itself:
// a frame header (MessageID unused, left zero) followed by the sequence
// of MethodIDs the peer should know this side is interested in.
func (p *Processor) writeRegisterSignal(peer *Peer, methods []MethodID) error {
	if err := writeFrameHeader(peer.Socket, frameHeader{Method: RegisterSignalMethodID}); err != nil {
		return err
	}
	w := codec.NewWriter(peer.Socket, p.cfg.ByteOrder)
	return codec.WriteSequence(w, methods, func(w *codec.Writer, m MethodID) error {
		return w.WriteUint32(uint32(m))
	})
}

func (p *Processor) dispatchMethodOrSignal(id PeerID, hdr frameHeader, r *codec.Reader) {
	p.stateMutex.RLock()
	mh, isMethod := p.methods[hdr.Method]
	sh, isSignal := p.signals[hdr.Method]
	peer, havePeer := p.peers[id]
	var alreadyUsedOneShot bool
	if havePeer {
		_, alreadyUsedOneShot = peer.oneShotGone[hdr.Method]
	}
	p.stateMutex.RUnlock()
	if !havePeer {
		return
	}

	if alreadyUsedOneShot || (!isMethod && !isSignal) {
		// Peer invoked an unregistered, or already-removed one-shot,
		// selector: a naughty peer. Reply with
		// ERROR_METHOD_ID, written directly so it hits the wire before
		// the disconnect, then drop the connection.
		_ = p.writeError(peer, hdr.MessageID, -1, "unregistered or one-shot method id")
		p.doRemovePeer(id, PeerNaughty)
		return
	}

	if isMethod {
		in, err := mh.parse(r)
		if err != nil {
			_ = p.writeError(peer, hdr.MessageID, -1, "malformed request")
			p.doRemovePeer(id, PeerClosed)
			return
		}
		result := newMethodResult(p, id, hdr.MessageID, hdr.Method, mh.serialize)
		action := mh.dispatch(id, in, result)
		if action == RemoveHandler {
			p.stateMutex.Lock()
			delete(p.methods, hdr.Method)
			if peer, ok := p.peers[id]; ok {
				peer.oneShotGone[hdr.Method] = struct{}{}
			}
			p.stateMutex.Unlock()
		}
		return
	}

	in, err := sh.parse(r)
	if err != nil {
		p.doRemovePeer(id, PeerClosed)
		return
	}
	action := sh.dispatch(id, in)
	if action == RemoveHandler {
		p.stateMutex.Lock()
		delete(p.signals, hdr.Method)
		delete(p.subscribers, hdr.Method)
		if peer, ok := p.peers[id]; ok {
			peer.oneShotGone[hdr.Method] = struct{}{}
		}
		p.stateMutex.Unlock()
	}
}

// Peers returns a snapshot of currently registered peer IDs.
func (p *Processor) Peers() []PeerID {
	p.stateMutex.RLock()
	defer p.stateMutex.RUnlock()
	out := make([]PeerID, 0, len(p.peers))
	for id := range p.peers {
		out = append(out, id)
	}
	return out
}

// callSync implements the sync-over-async dance shared by
// Client.CallSync and Service.CallSync: enqueue an async call bound
// to a local result.Result, wait on it, and on timeout race a
// cancellation against a reply that may already be in flight.
func (p *Processor) callSync(peer PeerID, method MethodID, data any, serialize serializeFunc, parseReply parseFunc, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	builder, res := result.NewBuilder[any]()

	msgID, err := p.CallAsync(peer, method, data, serialize, parseReply,
		func(v any, err error) {
			if err != nil {
				builder.FromError(err)
			} else {
				builder.FromValue(v)
			}
		},
	)
	if err != nil {
		return nil, err
	}

	if res.Wait(timeout) {
		return res.Get()
	}

	// Timed out: try to cancel before a reply can land. If cancellation
	// fails, a reply was already racing us; wait once more, unbounded,
	// since it is now guaranteed to arrive imminently (or the peer is
	// about to be declared disconnected, which also settles res).
	if p.CancelCall(msgID) {
		// The peer is still mid-handling a request whose reply nobody
		// will consume, leaving the stream unusable; mark it unhealthy
		// and remove it synchronously.
		p.doRemovePeer(peer, PeerTimedOut)
		return nil, newError(KindTimeout, nil)
	}
	res.Wait(0)
	return res.Get()
}

// CancelCall removes a still-pending outbound call before its reply
// arrives, used by the sync-call timeout path. It first
// tries to pull the request back out of the queue, in case the worker
// has not yet written it to the wire at all; failing that, it tries the
// pending-reply table. Returns true if the call was cancelled by either
// means; false if a reply (or disconnect) already raced it to
// completion.
func (p *Processor) CancelCall(msgID MessageID) bool {
	if _, ok := p.q.RemoveIf(func(e queue.Entry) bool {
		req, ok := e.Payload.(callRequest)
		return e.Tag == queue.Method && ok && req.messageID == msgID
	}); ok {
		return true
	}

	p.stateMutex.Lock()
	pc, ok := p.pendingByMsg[msgID]
	if ok {
		delete(p.pendingByMsg, msgID)
		if msgs, ok := p.pendingByPeer[pc.peerID]; ok {
			delete(msgs, msgID)
		}
	}
	p.stateMutex.Unlock()
	return ok
}
