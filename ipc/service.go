package ipc

import (
	"time"

	"github.com/Samsung/vasum-ipc/codec"
	"github.com/Samsung/vasum-ipc/poll"
	"github.com/Samsung/vasum-ipc/sock"
	"github.com/Samsung/vasum-ipc/xlog"
)

// ServiceConfig configures a Service: the listener side of the IPC
// runtime, accepting any number of peers.
type ServiceConfig struct {
	Path           string
	ListenerConfig sock.Config
	Processor      Config
}

// Service owns a listening Unix-domain socket and the Processor that
// drives every accepted connection.
type Service struct {
	ln   *sock.Listener
	proc *Processor
	log  *xlog.Logger
}

// NewService binds path and constructs the backing Processor. Call Start
// to begin accepting connections.
func NewService(cfg ServiceConfig) (*Service, error) {
	ln, err := sock.CreateUNIX(cfg.Path, cfg.ListenerConfig)
	if err != nil {
		return nil, err
	}
	proc, err := NewProcessor(cfg.Processor)
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	return &Service{ln: ln, proc: proc, log: xlog.OrDiscard(cfg.Processor.Logger)}, nil
}

// Start launches the Processor's worker goroutine and registers the
// listening socket with its reactor.
func (s *Service) Start() error {
	if err := s.proc.Start(); err != nil {
		return err
	}
	return s.proc.poll.Add(s.ln.FD(), poll.In, s.onAcceptable)
}

// Stop stops accepting new connections and tears the Processor down.
func (s *Service) Stop(wait bool) {
	_ = s.proc.poll.Remove(s.ln.FD())
	_ = s.ln.Close()
	s.proc.Stop(wait)
}

func (s *Service) onAcceptable(poll.Events) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			s.log.Debug().Err(err).Log(`accept failed`)
			return
		}
		if conn == nil {
			return
		}
		done := s.proc.AddPeer(conn)
		go func() {
			if err := <-done; err != nil {
				s.log.Debug().Err(err).Log(`peer rejected`)
			}
		}()
	}
}

// SetMethodHandler registers a typed request/reply handler.
func (s *Service) SetMethodHandler(id MethodID, h *MethodHandler) error {
	return s.proc.setMethodHandler(id, h)
}

// SetSignalHandler registers a typed fire-and-forget handler.
func (s *Service) SetSignalHandler(id MethodID, h *SignalHandler) error {
	return s.proc.setSignalHandler(id, h)
}

// Processor exposes the backing Processor so callers can use the
// generic SetMethodHandler/SetSignalHandler package functions, which
// need a *Processor to close over.
func (s *Service) Processor() *Processor { return s.proc }

// RemoveMethod unregisters id, whichever role it was registered under.
func (s *Service) RemoveMethod(id MethodID) { s.proc.RemoveMethod(id) }

// Peers returns a snapshot of connected peer IDs.
func (s *Service) Peers() []PeerID { return s.proc.Peers() }

// CallAsync issues a request to peer without blocking the caller.
func (s *Service) CallAsync(peer PeerID, method MethodID, data any, serialize serializeFunc, parseReply parseFunc, completion func(v any, err error)) (MessageID, error) {
	return s.proc.CallAsync(peer, method, data, serialize, parseReply, completion)
}

// Signal broadcasts method to every peer subscribed to it.
func (s *Service) Signal(method MethodID, data any, serialize serializeFunc) error {
	return s.proc.Signal(method, data, serialize)
}

// CallSync issues a request to peer and blocks the calling goroutine for
// at most timeout (DefaultCallTimeout if zero): the service-side
// counterpart of Client.CallSync, taking an explicit
// PeerID since a Service may have any number of connected peers.
func (s *Service) CallSync(peer PeerID, method MethodID, data any, serialize serializeFunc, parseReply parseFunc, timeout time.Duration) (any, error) {
	return s.proc.callSync(peer, method, data, serialize, parseReply, timeout)
}

// ByteOrder returns the wire byte order this service's Processor uses,
// for callers building their own load/save closures.
func (s *Service) ByteOrder() codec.ByteOrder { return s.proc.cfg.ByteOrder }
