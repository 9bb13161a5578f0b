package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Writer drives the "save" visitor: record → FD. It never buffers more
// than one field at a time.
type Writer struct {
	s     Stream
	order ByteOrder
	tmp   [8]byte
}

// NewWriter creates a Writer over s using the given byte order.
func NewWriter(s Stream, order ByteOrder) *Writer {
	return &Writer{s: s, order: order}
}

func (w *Writer) byteOrder() binary.ByteOrder {
	if w.order == Internet {
		return binary.BigEndian
	}
	return nativeOrder
}

// WriteUint8 writes a single byte.
func (w *Writer) WriteUint8(v uint8) error {
	w.tmp[0] = v
	return w.s.WriteFull(w.tmp[:1])
}

// WriteBool writes a boolean as one byte (0 or 1).
func (w *Writer) WriteBool(v bool) error {
	if v {
		return w.WriteUint8(1)
	}
	return w.WriteUint8(0)
}

// WriteUint16 writes a 16-bit unsigned integer.
func (w *Writer) WriteUint16(v uint16) error {
	w.byteOrder().PutUint16(w.tmp[:2], v)
	return w.s.WriteFull(w.tmp[:2])
}

// WriteUint32 writes a 32-bit unsigned integer.
func (w *Writer) WriteUint32(v uint32) error {
	w.byteOrder().PutUint32(w.tmp[:4], v)
	return w.s.WriteFull(w.tmp[:4])
}

// WriteUint64 writes a 64-bit unsigned integer.
func (w *Writer) WriteUint64(v uint64) error {
	w.byteOrder().PutUint64(w.tmp[:8], v)
	return w.s.WriteFull(w.tmp[:8])
}

// WriteInt32 writes a 32-bit signed integer.
func (w *Writer) WriteInt32(v int32) error { return w.WriteUint32(uint32(v)) }

// WriteInt64 writes a 64-bit signed integer.
func (w *Writer) WriteInt64(v int64) error { return w.WriteUint64(uint64(v)) }

// WriteFloat64 writes an IEEE-754 double.
func (w *Writer) WriteFloat64(v float64) error { return w.WriteUint64(math.Float64bits(v)) }

// WriteFloat32 writes an IEEE-754 single.
func (w *Writer) WriteFloat32(v float32) error { return w.WriteUint32(math.Float32bits(v)) }

// WriteString writes a uint32 length prefix followed by the raw bytes
// (no terminator).
func (w *Writer) WriteString(v string) error {
	if err := w.WriteUint32(uint32(len(v))); err != nil {
		return err
	}
	if len(v) == 0 {
		return nil
	}
	return w.s.WriteFull([]byte(v))
}

// WriteBytes writes a uint32 length prefix followed by the raw bytes.
func (w *Writer) WriteBytes(v []byte) error {
	if err := w.WriteUint32(uint32(len(v))); err != nil {
		return err
	}
	if len(v) == 0 {
		return nil
	}
	return w.s.WriteFull(v)
}

// WriteFD passes fd via the Stream's ancillary-data mechanism instead of
// putting bytes in the stream.
func (w *Writer) WriteFD(fd int) error {
	return w.s.SendFD(fd)
}

// WriteSequence writes a uint32 length followed by each element via elem,
// in slice order.
func WriteSequence[T any](w *Writer, items []T, elem func(*Writer, T) error) error {
	if err := w.WriteUint32(uint32(len(items))); err != nil {
		return err
	}
	for _, it := range items {
		if err := elem(w, it); err != nil {
			return err
		}
	}
	return nil
}

// WriteArray writes exactly n elements with no length prefix. It is an
// error for len(items) != n.
func WriteArray[T any](w *Writer, items []T, n int, elem func(*Writer, T) error) error {
	if len(items) != n {
		return fmt.Errorf("codec: fixed array expected %d elements, got %d", n, len(items))
	}
	for _, it := range items {
		if err := elem(w, it); err != nil {
			return err
		}
	}
	return nil
}

// WritePair writes a two-element tuple in declared order.
func WritePair[A, B any](w *Writer, a A, b B, fa func(*Writer, A) error, fb func(*Writer, B) error) error {
	if err := fa(w, a); err != nil {
		return err
	}
	return fb(w, b)
}

// MapEntry is one (key, value) pair for WriteMap/ReadMap. Callers must
// present entries pre-sorted by key: the wire format is "ordered by key".
type MapEntry[K any, V any] struct {
	Key   K
	Value V
}

// WriteMap writes a uint32 length followed by each (key, value) pair in
// the order given (callers sort by key beforehand).
func WriteMap[K any, V any](w *Writer, entries []MapEntry[K, V], fk func(*Writer, K) error, fv func(*Writer, V) error) error {
	if err := w.WriteUint32(uint32(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := fk(w, e.Key); err != nil {
			return err
		}
		if err := fv(w, e.Value); err != nil {
			return err
		}
	}
	return nil
}

// WriteUnion writes the string tag naming the active alternative, then
// invokes write to encode that alternative. Callers must ensure exactly
// one alternative is active before calling; write should return
// ErrNoActiveAlternative if it finds none.
func (w *Writer) WriteUnion(tag string, write func() error) error {
	if tag == "" {
		return ErrNoActiveAlternative
	}
	if err := w.WriteString(tag); err != nil {
		return err
	}
	return write()
}

// WriteRecord writes an embedded record's fields in registered order by
// delegating to its Save method.
func (w *Writer) WriteRecord(s Saver) error {
	return s.Save(w)
}
