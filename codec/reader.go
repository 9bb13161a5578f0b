package codec

import (
	"fmt"
	"math"
)

// Reader drives the "load" visitor: FD → record.
type Reader struct {
	s     Stream
	order ByteOrder
	tmp   [8]byte
}

// NewReader creates a Reader over s using the given byte order. Both
// peers must agree on the byte order for a given frame; the daemon and
// its clients always use Local since the transport is a local Unix
// socket.
func NewReader(s Stream, order ByteOrder) *Reader {
	return &Reader{s: s, order: order}
}

func (r *Reader) byteOrder() interface {
	Uint16([]byte) uint16
	Uint32([]byte) uint32
	Uint64([]byte) uint64
} {
	if r.order == Internet {
		return beOrder{}
	}
	return nativeReadOrder{}
}

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() (uint8, error) {
	if err := r.s.ReadFull(r.tmp[:1]); err != nil {
		return 0, err
	}
	return r.tmp[0], nil
}

// ReadBool reads a one-byte boolean.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// ReadUint16 reads a 16-bit unsigned integer.
func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.s.ReadFull(r.tmp[:2]); err != nil {
		return 0, err
	}
	return r.byteOrder().Uint16(r.tmp[:2]), nil
}

// ReadUint32 reads a 32-bit unsigned integer.
func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.s.ReadFull(r.tmp[:4]); err != nil {
		return 0, err
	}
	return r.byteOrder().Uint32(r.tmp[:4]), nil
}

// ReadUint64 reads a 64-bit unsigned integer.
func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.s.ReadFull(r.tmp[:8]); err != nil {
		return 0, err
	}
	return r.byteOrder().Uint64(r.tmp[:8]), nil
}

// ReadInt32 reads a 32-bit signed integer.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadInt64 reads a 64-bit signed integer.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadFloat64 reads an IEEE-754 double.
func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadFloat32 reads an IEEE-754 single.
func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadString reads a uint32 length prefix followed by that many bytes.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if err := r.s.ReadFull(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// ReadBytes reads a uint32 length prefix followed by that many raw bytes.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	if err := r.s.ReadFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadFD consumes the Stream's one-byte FD sentinel and returns the
// received descriptor. Ownership transfers to the caller.
func (r *Reader) ReadFD() (int, error) {
	return r.s.RecvFD()
}

// ReadSequence reads a uint32 length then that many elements via elem.
func ReadSequence[T any](r *Reader, elem func(*Reader) (T, error)) ([]T, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := elem(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ReadArray reads exactly n elements with no length prefix.
func ReadArray[T any](r *Reader, n int, elem func(*Reader) (T, error)) ([]T, error) {
	out := make([]T, n)
	for i := 0; i < n; i++ {
		v, err := elem(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ReadPair reads a two-element tuple in declared order.
func ReadPair[A, B any](r *Reader, fa func(*Reader) (A, error), fb func(*Reader) (B, error)) (A, B, error) {
	var a A
	var b B
	a, err := fa(r)
	if err != nil {
		return a, b, err
	}
	b, err = fb(r)
	return a, b, err
}

// ReadMap reads a uint32 length then that many (key, value) pairs.
func ReadMap[K any, V any](r *Reader, fk func(*Reader) (K, error), fv func(*Reader) (V, error)) ([]MapEntry[K, V], error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	out := make([]MapEntry[K, V], 0, n)
	for i := uint32(0); i < n; i++ {
		k, err := fk(r)
		if err != nil {
			return nil, err
		}
		v, err := fv(r)
		if err != nil {
			return nil, err
		}
		out = append(out, MapEntry[K, V]{Key: k, Value: v})
	}
	return out, nil
}

// ReadUnion reads the string tag, then invokes alternatives[tag]. An
// unknown tag is a parsing error (ErrUnknownTag).
func (r *Reader) ReadUnion(alternatives map[string]func(*Reader) error) error {
	tag, err := r.ReadString()
	if err != nil {
		return err
	}
	fn, ok := alternatives[tag]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
	return fn(r)
}

// ReadRecord reads an embedded record's fields in registered order by
// delegating to its Load method.
func (r *Reader) ReadRecord(l Loader) error {
	return l.Load(r)
}

type beOrder struct{}

func (beOrder) Uint16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
func (beOrder) Uint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
func (beOrder) Uint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

type nativeReadOrder struct{}

func (nativeReadOrder) Uint16(b []byte) uint16 { return nativeOrder.Uint16(b) }
func (nativeReadOrder) Uint32(b []byte) uint32 { return nativeOrder.Uint32(b) }
func (nativeReadOrder) Uint64(b []byte) uint64 { return nativeOrder.Uint64(b) }
