// Package wire implements the TCP framing protocol between the broker and
// its subscribers: a fixed 5-octet header followed by a type-specific
// payload, all big-endian, byte-packed with no padding.
package wire

import (
	"errors"
	"io"
)

// ErrShortWrite is returned by WriteAll when the underlying writer accepts
// fewer bytes than requested without itself returning an error, which
// should not happen for net.Conn but is guarded against defensively.
var ErrShortWrite = errors.New("wire: short write")

// ReadExact reads exactly n bytes from r, looping over partial reads. It
// returns io.EOF only if the peer closed the connection before any byte of
// this call was read, and io.ErrUnexpectedEOF if the peer closed after a
// partial read — mirroring recv_all's "fewer than n bytes only at peer
// close" contract.
func ReadExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	read := 0
	for read < n {
		m, err := r.Read(buf[read:])
		read += m
		if err != nil {
			if read == n && errors.Is(err, io.EOF) {
				return buf, nil
			}
			if read == 0 && errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			if read > 0 && errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
	return buf, nil
}

// WriteAll writes every byte of b to w, looping until complete or an error
// occurs.
func WriteAll(w io.Writer, b []byte) error {
	written := 0
	for written < len(b) {
		n, err := w.Write(b[written:])
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrShortWrite
		}
		written += n
	}
	return nil
}
