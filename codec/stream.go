// Package codec implements the visitor-driven binary wire codec: a
// bidirectional, non-buffering, schema-driven encoding between typed
// records and a file descriptor. Each record type implements Saver and/or
// Loader, calling the Writer/Reader's typed methods in declared field
// order; that ordered sequence of calls is the "schema". The codec
// streams directly between a record's storage and the FD, so peak memory
// is bounded by the largest single field in transit, and it coordinates
// with the Stream to pass file descriptors via SCM_RIGHTS ancillary data.
package codec

import "fmt"

// Stream is the minimal transport the codec needs: full-duplex byte
// transfer plus ancillary FD passing. sock.Socket implements Stream.
type Stream interface {
	ReadFull(buf []byte) error
	WriteFull(buf []byte) error
	// SendFD transmits fd as ancillary data alongside a one-byte
	// sentinel. The caller retains ownership of fd and may close it
	// after SendFD returns.
	SendFD(fd int) error
	// RecvFD receives a one-byte sentinel carrying an ancillary FD.
	// Ownership of the returned FD transfers to the caller.
	RecvFD() (int, error)
}

// ByteOrder selects host-endian ("local", Unix-socket only) or
// big-endian ("internet") encoding for multi-byte numerics. The uint32
// length prefixes of strings, byte slices, sequences, maps and union tags
// are numerics too and follow the selected order; the string and byte
// contents themselves are unaffected.
type ByteOrder int

const (
	// Local encodes multi-byte numerics in host-endian raw bytes; valid
	// only over a local Unix socket where both peers share an ABI.
	Local ByteOrder = iota
	// Internet encodes 2/4/8-byte numerics big-endian.
	Internet
)

// Saver writes a record's fields, in declared order, to a Writer.
type Saver interface {
	Save(w *Writer) error
}

// Loader reads a record's fields, in declared order, from a Reader.
type Loader interface {
	Load(r *Reader) error
}

// ErrUnknownTag is returned when loading a tagged union whose wire tag
// does not match any registered alternative.
var ErrUnknownTag = fmt.Errorf("codec: unknown union tag")

// ErrNoActiveAlternative is returned when saving a tagged union that has
// no active alternative set.
var ErrNoActiveAlternative = fmt.Errorf("codec: union has no active alternative")
