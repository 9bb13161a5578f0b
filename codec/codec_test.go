package codec

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/Samsung/vasum-ipc/fdutil"
)

// fdStream is a minimal Stream implementation over a connected
// SOCK_STREAM Unix socketpair, used only to exercise the codec against a
// real full-duplex, FD-passing transport without depending on the sock
// package (which itself depends on codec's Stream interface, not the
// other way around).
type fdStream struct{ fd int }

func newStreamPair(t *testing.T) (a, b *fdStream) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return &fdStream{fd: fds[0]}, &fdStream{fd: fds[1]}
}

func (s *fdStream) ReadFull(buf []byte) error  { return fdutil.ReadFull(s.fd, buf) }
func (s *fdStream) WriteFull(buf []byte) error { return fdutil.WriteFull(s.fd, buf) }

func (s *fdStream) SendFD(fd int) error {
	oob := unix.UnixRights(fd)
	return unix.Sendmsg(s.fd, []byte{0xFD}, oob, nil, 0)
}

func (s *fdStream) RecvFD() (int, error) {
	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(4))
	_, oobn, _, _, err := unix.Recvmsg(s.fd, buf, oob, 0)
	if err != nil {
		return -1, err
	}
	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return -1, err
	}
	fds, err := unix.ParseUnixRights(&scms[0])
	if err != nil {
		return -1, err
	}
	return fds[0], nil
}

func TestScalarRoundTripLocal(t *testing.T) {
	a, b := newStreamPair(t)
	w := NewWriter(a, Local)
	r := NewReader(b, Local)

	require.NoError(t, w.WriteUint8(200))
	require.NoError(t, w.WriteBool(true))
	require.NoError(t, w.WriteUint16(60000))
	require.NoError(t, w.WriteUint32(4000000000))
	require.NoError(t, w.WriteUint64(18000000000000000000))
	require.NoError(t, w.WriteInt32(-12345))
	require.NoError(t, w.WriteInt64(-9223372036854775808))
	require.NoError(t, w.WriteFloat32(3.25))
	require.NoError(t, w.WriteFloat64(2.71828))
	require.NoError(t, w.WriteString("hello, vasum"))
	require.NoError(t, w.WriteBytes([]byte{1, 2, 3, 4}))

	u8, err := r.ReadUint8()
	require.NoError(t, err)
	require.EqualValues(t, 200, u8)

	bl, err := r.ReadBool()
	require.NoError(t, err)
	require.True(t, bl)

	u16, err := r.ReadUint16()
	require.NoError(t, err)
	require.EqualValues(t, 60000, u16)

	u32, err := r.ReadUint32()
	require.NoError(t, err)
	require.EqualValues(t, 4000000000, u32)

	u64, err := r.ReadUint64()
	require.NoError(t, err)
	require.EqualValues(t, uint64(18000000000000000000), u64)

	i32, err := r.ReadInt32()
	require.NoError(t, err)
	require.EqualValues(t, -12345, i32)

	i64, err := r.ReadInt64()
	require.NoError(t, err)
	require.EqualValues(t, -9223372036854775808, i64)

	f32, err := r.ReadFloat32()
	require.NoError(t, err)
	require.InDelta(t, 3.25, f32, 0.0001)

	f64, err := r.ReadFloat64()
	require.NoError(t, err)
	require.InDelta(t, 2.71828, f64, 0.0000001)

	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "hello, vasum", s)

	bs, err := r.ReadBytes()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, bs)
}

func TestEmptyStringAndBytes(t *testing.T) {
	a, b := newStreamPair(t)
	w := NewWriter(a, Local)
	r := NewReader(b, Local)

	require.NoError(t, w.WriteString(""))
	require.NoError(t, w.WriteBytes(nil))

	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "", s)

	bs, err := r.ReadBytes()
	require.NoError(t, err)
	require.Equal(t, []byte{}, bs)
}

func TestInternetByteOrderMatchesBigEndian(t *testing.T) {
	a, b := newStreamPair(t)
	w := NewWriter(a, Internet)
	r := NewReader(b, Internet)

	require.NoError(t, w.WriteUint32(0x01020304))
	raw := make([]byte, 4)
	_, err := unix.Read(b.fd, raw)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, raw)
	_ = r
}

func TestSequenceRoundTrip(t *testing.T) {
	a, b := newStreamPair(t)
	w := NewWriter(a, Local)
	r := NewReader(b, Local)

	items := []string{"one", "two", "three"}
	require.NoError(t, WriteSequence(w, items, func(w *Writer, s string) error { return w.WriteString(s) }))

	got, err := ReadSequence(r, func(r *Reader) (string, error) { return r.ReadString() })
	require.NoError(t, err)
	require.Equal(t, items, got)
}

func TestArrayRoundTripAndLengthMismatch(t *testing.T) {
	a, b := newStreamPair(t)
	w := NewWriter(a, Local)
	r := NewReader(b, Local)

	items := []int32{1, 2, 3}
	require.NoError(t, WriteArray(w, items, 3, func(w *Writer, v int32) error { return w.WriteInt32(v) }))

	got, err := ReadArray(r, 3, func(r *Reader) (int32, error) { return r.ReadInt32() })
	require.NoError(t, err)
	require.Equal(t, items, got)

	err = WriteArray(w, items, 4, func(w *Writer, v int32) error { return w.WriteInt32(v) })
	require.Error(t, err)
}

func TestPairRoundTrip(t *testing.T) {
	a, b := newStreamPair(t)
	w := NewWriter(a, Local)
	r := NewReader(b, Local)

	require.NoError(t, WritePair(w, int32(7), "seven",
		func(w *Writer, v int32) error { return w.WriteInt32(v) },
		func(w *Writer, v string) error { return w.WriteString(v) },
	))

	n, s, err := ReadPair(r,
		func(r *Reader) (int32, error) { return r.ReadInt32() },
		func(r *Reader) (string, error) { return r.ReadString() },
	)
	require.NoError(t, err)
	require.EqualValues(t, 7, n)
	require.Equal(t, "seven", s)
}

func TestMapRoundTripOrderedByKey(t *testing.T) {
	a, b := newStreamPair(t)
	w := NewWriter(a, Local)
	r := NewReader(b, Local)

	entries := []MapEntry[string, int32]{
		{Key: "alpha", Value: 1},
		{Key: "beta", Value: 2},
		{Key: "gamma", Value: 3},
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	require.NoError(t, WriteMap(w, entries,
		func(w *Writer, k string) error { return w.WriteString(k) },
		func(w *Writer, v int32) error { return w.WriteInt32(v) },
	))

	got, err := ReadMap(r,
		func(r *Reader) (string, error) { return r.ReadString() },
		func(r *Reader) (int32, error) { return r.ReadInt32() },
	)
	require.NoError(t, err)
	require.Equal(t, entries, got)
}

func TestUnionRoundTrip(t *testing.T) {
	a, b := newStreamPair(t)
	w := NewWriter(a, Local)
	r := NewReader(b, Local)

	require.NoError(t, w.WriteUnion("text", func() error { return w.WriteString("payload") }))

	var got string
	err := r.ReadUnion(map[string]func(*Reader) error{
		"text": func(r *Reader) error {
			s, err := r.ReadString()
			got = s
			return err
		},
	})
	require.NoError(t, err)
	require.Equal(t, "payload", got)
}

func TestUnionUnknownTag(t *testing.T) {
	a, b := newStreamPair(t)
	w := NewWriter(a, Local)
	r := NewReader(b, Local)

	require.NoError(t, w.WriteUnion("mystery", func() error { return w.WriteUint8(0) }))

	err := r.ReadUnion(map[string]func(*Reader) error{
		"known": func(*Reader) error { return nil },
	})
	require.ErrorIs(t, err, ErrUnknownTag)
}

func TestUnionNoActiveAlternative(t *testing.T) {
	a, _ := newStreamPair(t)
	w := NewWriter(a, Local)
	err := w.WriteUnion("", func() error { return nil })
	require.ErrorIs(t, err, ErrNoActiveAlternative)
}

type point struct{ X, Y int32 }

func (p *point) Save(w *Writer) error {
	if err := w.WriteInt32(p.X); err != nil {
		return err
	}
	return w.WriteInt32(p.Y)
}

func (p *point) Load(r *Reader) error {
	var err error
	p.X, err = r.ReadInt32()
	if err != nil {
		return err
	}
	p.Y, err = r.ReadInt32()
	return err
}

func TestRecordSaveLoad(t *testing.T) {
	a, b := newStreamPair(t)
	w := NewWriter(a, Local)
	r := NewReader(b, Local)

	in := &point{X: 3, Y: -4}
	require.NoError(t, w.WriteRecord(in))

	out := &point{}
	require.NoError(t, r.ReadRecord(out))
	require.Equal(t, in, out)
}

func TestFDPassing(t *testing.T) {
	a, b := newStreamPair(t)
	w := NewWriter(a, Local)
	r := NewReader(b, Local)

	var pipeFDs [2]int
	require.NoError(t, unix.Pipe(pipeFDs[:]))
	t.Cleanup(func() { _ = unix.Close(pipeFDs[1]) })

	// Pass the pipe's read end; the write end stays local so the test can
	// produce bytes for the received duplicate to consume.
	require.NoError(t, w.WriteFD(pipeFDs[0]))
	require.NoError(t, unix.Close(pipeFDs[0]))

	got, err := r.ReadFD()
	require.NoError(t, err)
	defer unix.Close(got)

	payload := []byte("fd passed ok")
	_, err = unix.Write(pipeFDs[1], payload)
	require.NoError(t, err)

	buf := make([]byte, len(payload))
	require.NoError(t, fdutil.ReadFull(got, buf))
	require.Equal(t, payload, buf)
}
