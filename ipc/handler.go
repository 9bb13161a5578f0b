package ipc

import "github.com/Samsung/vasum-ipc/codec"

// HandlerAction is returned by a signal dispatch callback and by a
// method dispatch callback (which replies separately, via its
// MethodResult) to say whether the handler should remain registered.
type HandlerAction int

const (
	// Continue leaves the handler registered for future frames.
	Continue HandlerAction = iota
	// RemoveHandler unregisters the handler after this dispatch; a
	// further frame for the same MethodID gets ERROR_METHOD_ID /
	// "naughty peer".
	RemoveHandler
)

// parseFunc/serializeFunc/dispatchFunc are the untyped callable triples
// the registry actually stores, keyed by MethodID rather than by
// concrete handler types. Generic
// SetMethodHandler/SetSignalHandler below are the type-safe entry points
// applications use; they close over the concrete In/Out types and hand
// the processor these erased closures.
type (
	parseFunc     func(r *codec.Reader) (any, error)
	serializeFunc func(w *codec.Writer, v any) error
	dispatchFunc  func(peer PeerID, in any, result *MethodResult) HandlerAction
	signalFunc    func(peer PeerID, in any) HandlerAction
)

// MethodHandler is the registry entry for a request/reply selector:
// parse reads the request payload, dispatch runs the application logic
// (replying via the MethodResult, possibly asynchronously), serialize
// writes the reply payload.
type MethodHandler struct {
	parse     parseFunc
	serialize serializeFunc
	dispatch  dispatchFunc
}

// SignalHandler is the registry entry for a fire-and-forget selector.
type SignalHandler struct {
	parse    parseFunc
	dispatch signalFunc
}

// SetMethodHandler registers a typed request/reply handler for id. fn is
// invoked with the parsed request and a MethodResult the handler (or
// code it hands off to) uses to reply, possibly asynchronously.
// Registering a reserved MethodID, or one already registered as a
// signal, fails synchronously with a KindConfiguration *Error.
func SetMethodHandler[In any, Out any](
	p *Processor,
	id MethodID,
	load func(*codec.Reader) (In, error),
	save func(*codec.Writer, Out) error,
	fn func(peer PeerID, in In, result *MethodResult) HandlerAction,
) error {
	h := &MethodHandler{
		parse: func(r *codec.Reader) (any, error) { return load(r) },
		serialize: func(w *codec.Writer, v any) error {
			out, _ := v.(Out)
			return save(w, out)
		},
		dispatch: func(peer PeerID, in any, result *MethodResult) HandlerAction {
			typed, _ := in.(In)
			return fn(peer, typed, result)
		},
	}
	return p.setMethodHandler(id, h)
}

// SetSignalHandler registers a typed fire-and-forget handler for id.
func SetSignalHandler[In any](
	p *Processor,
	id MethodID,
	load func(*codec.Reader) (In, error),
	fn func(peer PeerID, in In) HandlerAction,
) error {
	h := &SignalHandler{
		parse: func(r *codec.Reader) (any, error) { return load(r) },
		dispatch: func(peer PeerID, in any) HandlerAction {
			typed, _ := in.(In)
			return fn(peer, typed)
		},
	}
	return p.setSignalHandler(id, h)
}
