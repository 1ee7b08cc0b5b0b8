package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// partialReader dribbles out bytes a few at a time to exercise ReadExact's
// partial-read loop.
type partialReader struct {
	data  []byte
	chunk int
}

func (p *partialReader) Read(buf []byte) (int, error) {
	if len(p.data) == 0 {
		return 0, io.EOF
	}
	n := p.chunk
	if n > len(p.data) {
		n = len(p.data)
	}
	if n > len(buf) {
		n = len(buf)
	}
	copy(buf, p.data[:n])
	p.data = p.data[n:]
	return n, nil
}

func TestReadExactPartialReads(t *testing.T) {
	src := &partialReader{data: []byte("hello world"), chunk: 3}
	got, err := ReadExact(src, 11)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(got))
}

func TestReadExactEOFBeforeAnyByte(t *testing.T) {
	_, err := ReadExact(bytes.NewReader(nil), 5)
	require.ErrorIs(t, err, io.EOF)
}

func TestReadExactShortClose(t *testing.T) {
	_, err := ReadExact(bytes.NewReader([]byte{1, 2, 3}), 5)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

// partialWriter accepts at most chunk bytes per Write call to exercise
// WriteAll's partial-write loop.
type partialWriter struct {
	buf   bytes.Buffer
	chunk int
}

func (p *partialWriter) Write(b []byte) (int, error) {
	if len(b) > p.chunk {
		b = b[:p.chunk]
	}
	return p.buf.Write(b)
}

func TestWriteAllLoopsOverPartialWrites(t *testing.T) {
	w := &partialWriter{chunk: 2}
	require.NoError(t, WriteAll(w, []byte("abcdef")))
	require.Equal(t, "abcdef", w.buf.String())
}

func TestClientIDRoundTripTruncatesAtFirstNUL(t *testing.T) {
	frame := EncodeClientID("abc")
	id, err := ReadClientID(bytes.NewReader(frame))
	require.NoError(t, err)
	require.Equal(t, "abc", id)
}

func TestClientIDFullTenOctetsNoNUL(t *testing.T) {
	frame := EncodeClientID("0123456789extra") // truncated to 10 by EncodeClientID
	id, err := ReadClientID(bytes.NewReader(frame))
	require.NoError(t, err)
	require.Equal(t, "0123456789", id)
}

func TestSubscriptionRoundTrip(t *testing.T) {
	frame, err := EncodeSubscription(TypeSubscribe, "a/b/c")
	require.NoError(t, err)

	r := bytes.NewReader(frame)
	hdr, err := ReadHeader(r)
	require.NoError(t, err)
	require.Equal(t, TypeSubscribe, hdr.Type)

	msg, err := ReadSubscription(r, hdr)
	require.NoError(t, err)
	require.Equal(t, "a/b/c", msg.Topic)
}

func TestForwardUDPRoundTrip(t *testing.T) {
	frame, err := EncodeForwardUDP(ForwardUDP{
		SenderIP:   0x01020304,
		SenderPort: 5000,
		Topic:      "a/b",
		DataType:   3,
		Content:    []byte("hi"),
	})
	require.NoError(t, err)
	require.Equal(t, uint32(len(frame)), bytesToUint32(frame[0:4]))
	require.Equal(t, TypeForwardUDP, frame[4])
	require.Equal(t, uint32(0x01020304), bytesToUint32(frame[5:9]))
	require.Equal(t, "1.2.3.4", SenderIPv4(bytesToUint32(frame[5:9])).String())
	require.Equal(t, uint16(5000), uint16(frame[9])<<8|uint16(frame[10]))
	require.Equal(t, uint16(3), uint16(frame[11])<<8|uint16(frame[12]))
	require.Equal(t, uint8(3), frame[13])
	require.Equal(t, uint16(2), uint16(frame[14])<<8|uint16(frame[15]))
	require.Equal(t, "a/b", string(frame[16:19]))
	require.Equal(t, "hi", string(frame[19:21]))
}

func bytesToUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
