package ipc

import (
	"time"

	"github.com/Samsung/vasum-ipc/sock"
	"github.com/Samsung/vasum-ipc/xlog"
)

// ClientConfig configures a Client: a single outbound connection to one
// Service.
type ClientConfig struct {
	Path           string
	ConnectTimeout time.Duration
	Processor      Config
}

// Client is the connecting-side facade: it dials once,
// and from then on behaves like a Service with exactly one peer, adding
// CallSync on top of the Processor's asynchronous primitives.
type Client struct {
	proc   *Processor
	peerID PeerID
	log    *xlog.Logger
}

// NewClient dials path and registers the resulting connection with a new
// Processor, blocking until the peer is fully added.
func NewClient(cfg ClientConfig) (*Client, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = sock.DefaultConnectTimeout
	}
	conn, err := sock.DialUNIX(cfg.Path, timeout)
	if err != nil {
		return nil, err
	}
	proc, err := NewProcessor(cfg.Processor)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := proc.Start(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	// A Client always has exactly one peer: its own outbound connection.
	// Route it through the normal AddPeer path (same acceptance hooks,
	// same reactor registration a Service's accepted peers get) and read
	// back the PeerID the worker assigned.
	if err := <-proc.AddPeer(conn); err != nil {
		proc.Stop(true)
		return nil, err
	}
	peers := proc.Peers()
	if len(peers) != 1 {
		proc.Stop(true)
		return nil, newErrorf(KindConfiguration, "expected exactly one peer after connect, got %d", len(peers))
	}

	return &Client{proc: proc, peerID: peers[0], log: xlog.OrDiscard(cfg.Processor.Logger)}, nil
}

// PeerID returns the identity assigned to this client's single
// connection.
func (c *Client) PeerID() PeerID { return c.peerID }

// Stop disconnects and tears the backing Processor down.
func (c *Client) Stop(wait bool) { c.proc.Stop(wait) }

// SetMethodHandler registers a typed request/reply handler for frames
// the service sends this client (a method call in the other direction).
func (c *Client) SetMethodHandler(id MethodID, h *MethodHandler) error {
	return c.proc.setMethodHandler(id, h)
}

// SetSignalHandler registers a typed fire-and-forget handler.
func (c *Client) SetSignalHandler(id MethodID, h *SignalHandler) error {
	return c.proc.setSignalHandler(id, h)
}

// RemoveMethod unregisters id.
func (c *Client) RemoveMethod(id MethodID) { c.proc.RemoveMethod(id) }

// Processor exposes the backing Processor so callers can use the
// generic SetMethodHandler/SetSignalHandler package functions.
func (c *Client) Processor() *Processor { return c.proc }

// CallAsync issues a request to the service without blocking.
func (c *Client) CallAsync(method MethodID, data any, serialize serializeFunc, parseReply parseFunc, completion func(v any, err error)) (MessageID, error) {
	return c.proc.CallAsync(c.peerID, method, data, serialize, parseReply, completion)
}

// Signal broadcasts a fire-and-forget frame (the service is this
// client's only possible subscriber).
func (c *Client) Signal(method MethodID, data any, serialize serializeFunc) error {
	return c.proc.Signal(method, data, serialize)
}

// CallSync issues a request and blocks the calling goroutine for at most
// timeout (DefaultCallTimeout if zero), implementing the sync-over-async
// dance: enqueue an async call bound to a local Result,
// wait on it, and on timeout race a cancellation against a reply that
// may already be in flight.
func (c *Client) CallSync(method MethodID, data any, serialize serializeFunc, parseReply parseFunc, timeout time.Duration) (any, error) {
	return c.proc.callSync(c.peerID, method, data, serialize, parseReply, timeout)
}
