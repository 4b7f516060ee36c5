// Package protocol implements the stream framing of pbtcp.
//
// TCP is a byte stream, so every message is sent as a frame: a base-128
// varint32 holding the body length, followed by exactly that many bytes of
// serialized protobuf. The receiver decodes the length first, then reads the
// body.
//
// Frame format:
//
//	┌────────────────┬──────────────────────────────┐
//	│ varint32 len   │ body                         │
//	│ 1..5 bytes     │ len bytes (Invocation/Result)│
//	└────────────────┴──────────────────────────────┘
//
// Each length byte carries 7 bits of the value, low bits first. The high bit
// is set when more bytes follow.
package protocol

import (
	"io"
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	// MaxVarintLen is the number of bytes needed for any length up to MaxLength.
	MaxVarintLen = 5
	// MaxLength is the largest body length the framing can express.
	MaxLength = math.MaxInt32
)

var (
	ErrVarintOverflow = errors.New("protocol: malformed varint32 length")
	ErrInvalidLength  = errors.New("protocol: frame length must be positive")
	ErrFrameTooLarge  = errors.New("protocol: frame exceeds maximum size")
)

// Reader is what the frame readers need: whole reads for the body and
// single-byte reads for the length prefix. *bufio.Reader satisfies it.
type Reader interface {
	io.Reader
	io.ByteReader
}

// VarintDecoder accumulates a varint32 length one byte at a time, so that a
// caller can apply different deadlines to the first byte and the rest.
// The zero value is ready to use.
type VarintDecoder struct {
	value uint64
	n     int
}

// Feed adds b to the length being decoded. When b is the last byte of the
// varint, done is true and the decoder is reset for the next frame.
func (d *VarintDecoder) Feed(b byte) (length int, done bool, err error) {
	if d.n >= MaxVarintLen {
		return 0, false, ErrVarintOverflow
	}
	d.value |= uint64(b&0x7f) << (7 * d.n)
	d.n++

	if b&0x80 != 0 {
		// A fifth byte that still asks for more can't be a varint32.
		if d.n == MaxVarintLen {
			return 0, false, ErrVarintOverflow
		}
		return 0, false, nil
	}

	value := d.value
	d.Reset()
	if value > MaxLength {
		return 0, false, ErrVarintOverflow
	}
	return int(value), true, nil
}

// Started reports whether at least one byte of the current length was fed.
func (d *VarintDecoder) Started() bool {
	return d.n > 0
}

// Reset discards any partially decoded length.
func (d *VarintDecoder) Reset() {
	d.value = 0
	d.n = 0
}

// ReadLength reads a varint32 length prefix from r.
// It returns io.EOF only when the stream ends before the first byte.
func ReadLength(r io.ByteReader) (int, error) {
	var d VarintDecoder
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && d.Started() {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		length, done, err := d.Feed(b)
		if err != nil {
			return 0, err
		}
		if done {
			return length, nil
		}
	}
}

// CheckLength validates a decoded frame length. A maxSize <= 0 means no limit
// beyond MaxLength.
func CheckLength(length, maxSize int) error {
	if length <= 0 {
		return errors.Wrapf(ErrInvalidLength, "got %d", length)
	}
	if maxSize > 0 && length > maxSize {
		return errors.Wrapf(ErrFrameTooLarge, "length %d, limit %d", length, maxSize)
	}
	return nil
}

// ReadFrame reads one complete frame from r and returns its body.
// A clean end of stream before the frame starts yields io.EOF; a stream that
// ends inside the frame yields io.ErrUnexpectedEOF.
func ReadFrame(r Reader, maxSize int) ([]byte, error) {
	length, err := ReadLength(r)
	if err != nil {
		return nil, err
	}
	if err := CheckLength(length, maxSize); err != nil {
		return nil, err
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}

// AppendFrame appends the length prefix and body to dst.
func AppendFrame(dst, body []byte) []byte {
	dst = protowire.AppendVarint(dst, uint64(len(body)))
	return append(dst, body...)
}

// WriteFrame writes body as a single frame. The prefix and body go out in one
// Write so that a frame is never split across two calls on the connection.
func WriteFrame(w io.Writer, body []byte) error {
	buf := AppendFrame(make([]byte, 0, len(body)+MaxVarintLen), body)
	_, err := w.Write(buf)
	return err
}
