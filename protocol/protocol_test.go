package protocol

import (
	"bufio"
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/pkg/errors"
)

func TestWriteReadFrame(t *testing.T) {
	body := []byte("hello world")

	var buf bytes.Buffer
	if err := WriteFrame(&buf, body); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	// 11 fits in a single length byte
	if buf.Len() != len(body)+1 {
		t.Fatalf("expect %d bytes on the wire, got %d", len(body)+1, buf.Len())
	}

	decoded, err := ReadFrame(bufio.NewReader(&buf), 0)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(decoded, body) {
		t.Errorf("body mismatch: got %q, want %q", decoded, body)
	}
}

func TestReadFrameLargeBody(t *testing.T) {
	// 1MB needs a three byte length prefix
	largeBody := make([]byte, 1024*1024)
	for i := range largeBody {
		largeBody[i] = byte(i % 256)
	}

	frame := AppendFrame(nil, largeBody)
	if len(frame) != len(largeBody)+3 {
		t.Fatalf("expect 3 length bytes, got %d", len(frame)-len(largeBody))
	}

	decoded, err := ReadFrame(bufio.NewReader(bytes.NewReader(frame)), 0)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(decoded, largeBody) {
		t.Errorf("large body mismatch")
	}
}

func TestReadFrameSplitAcrossReads(t *testing.T) {
	body := bytes.Repeat([]byte{0xab}, 300)
	frame := AppendFrame(nil, body)

	// The reader hands out one byte per Read call
	r := bufio.NewReaderSize(iotest.OneByteReader(bytes.NewReader(frame)), 16)
	decoded, err := ReadFrame(r, 0)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(decoded, body) {
		t.Errorf("body mismatch after chunked reads")
	}
}

func TestVarintDecoder(t *testing.T) {
	cases := []struct {
		name  string
		bytes []byte
		want  int
	}{
		{"one byte", []byte{0x05}, 5},
		{"two bytes", []byte{0xac, 0x02}, 300},
		{"max int32", []byte{0xff, 0xff, 0xff, 0xff, 0x07}, MaxLength},
	}

	for _, tc := range cases {
		var d VarintDecoder
		var got int
		var done bool
		var err error
		for _, b := range tc.bytes {
			got, done, err = d.Feed(b)
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", tc.name, err)
			}
		}
		if !done || got != tc.want {
			t.Errorf("%s: got (%d, %v), want (%d, true)", tc.name, got, done, tc.want)
		}
		if d.Started() {
			t.Errorf("%s: decoder should reset after a complete length", tc.name)
		}
	}
}

func TestVarintDecoderRejectsFifthContinuation(t *testing.T) {
	var d VarintDecoder
	for i := 0; i < 4; i++ {
		if _, _, err := d.Feed(0x80); err != nil {
			t.Fatalf("byte %d: unexpected error: %v", i, err)
		}
	}
	if _, _, err := d.Feed(0x80); !errors.Is(err, ErrVarintOverflow) {
		t.Fatalf("expect ErrVarintOverflow, got %v", err)
	}
}

func TestVarintDecoderRejectsValueAboveInt32(t *testing.T) {
	var d VarintDecoder
	var err error
	for _, b := range []byte{0xff, 0xff, 0xff, 0xff, 0x0f} {
		_, _, err = d.Feed(b)
	}
	if !errors.Is(err, ErrVarintOverflow) {
		t.Fatalf("expect ErrVarintOverflow, got %v", err)
	}
}

func TestReadFrameInvalidLength(t *testing.T) {
	_, err := ReadFrame(bufio.NewReader(bytes.NewReader([]byte{0x00, 0x01})), 0)
	if !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expect ErrInvalidLength, got %v", err)
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	frame := AppendFrame(nil, make([]byte, 100))
	_, err := ReadFrame(bufio.NewReader(bytes.NewReader(frame)), 10)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expect ErrFrameTooLarge, got %v", err)
	}
}

func TestReadFrameEOF(t *testing.T) {
	// Nothing at all: clean end of stream
	_, err := ReadFrame(bufio.NewReader(bytes.NewReader(nil)), 0)
	if err != io.EOF {
		t.Fatalf("expect io.EOF, got %v", err)
	}

	// Stream ends in the middle of the length
	_, err = ReadFrame(bufio.NewReader(bytes.NewReader([]byte{0x80})), 0)
	if err != io.ErrUnexpectedEOF {
		t.Fatalf("expect io.ErrUnexpectedEOF inside length, got %v", err)
	}

	// Stream ends in the middle of the body
	_, err = ReadFrame(bufio.NewReader(bytes.NewReader([]byte{0x05, 1, 2})), 0)
	if err != io.ErrUnexpectedEOF {
		t.Fatalf("expect io.ErrUnexpectedEOF inside body, got %v", err)
	}
}
