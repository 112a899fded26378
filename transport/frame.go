package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrMalformedChunk is returned when a chunked-framing header or message
// violates RFC6242: a zero or non-decimal chunk length, or an end-of-chunks
// marker with no chunk before it.
var ErrMalformedChunk = errors.New("netconf: invalid chunk")

var (
	endOfMsg    = []byte("]]>]]>")
	chunkStart  = []byte("\n#")
	endOfChunks = []byte("\n##\n")
)

const initialReadBuf = 1024

// Stream is what the Framer consumes from the transport adapter: blocking
// reads of at least one byte, and complete writes.
type Stream interface {
	io.Reader
	WriteAll(p []byte) error
}

// Framer encodes and decodes complete NETCONF messages on a Stream.  A new
// Framer speaks End-of-Message framing; Upgrade switches it to Chunked
// framing, normally right after the hello exchange selects NETCONF 1.1.
// Each Framer owns its read buffer, so concurrent sessions never share
// decode state; a single Framer still supports only one reader and one
// writer at a time.
type Framer struct {
	s       Stream
	chunked bool

	// scratch for readUntil; grows by doubling and is retained across
	// messages to keep the amortised cost linear.
	buf []byte
}

// NewFramer returns a Framer in End-of-Message (NETCONF 1.0) mode.
func NewFramer(s Stream) *Framer {
	return &Framer{
		s:   s,
		buf: make([]byte, initialReadBuf),
	}
}

// Upgrade switches the Framer to Chunked (NETCONF 1.1) framing.  The switch
// is one-way and must happen between messages.
func (f *Framer) Upgrade() {
	f.chunked = true
}

// Chunked reports whether the Framer has been upgraded to chunked framing.
func (f *Framer) Chunked() bool { return f.chunked }

// WriteMsg frames and writes one complete message.  Chunked mode sends the
// whole payload as a single chunk; receivers must accept any chunking, but
// nothing is gained by splitting on send.
func (f *Framer) WriteMsg(p []byte) error {
	if !f.chunked {
		if err := f.s.WriteAll(p); err != nil {
			return err
		}
		return f.s.WriteAll(endOfMsg)
	}

	if len(p) == 0 {
		return fmt.Errorf("%w: empty message", ErrMalformedChunk)
	}

	hdr := fmt.Appendf(nil, "\n#%d\n", len(p))
	if err := f.s.WriteAll(hdr); err != nil {
		return err
	}
	if err := f.s.WriteAll(p); err != nil {
		return err
	}
	return f.s.WriteAll(endOfChunks)
}

// ReadMsg reads and de-frames the next complete message.  Transport errors
// and malformed framing are fatal: the stream position is undefined
// afterwards and the session must be closed.
func (f *Framer) ReadMsg() ([]byte, error) {
	if f.chunked {
		return f.readChunked()
	}
	return f.readMarked()
}

func (f *Framer) readMarked() ([]byte, error) {
	raw, err := f.readUntil(endOfMsg)
	if err != nil {
		return nil, err
	}

	msg := make([]byte, len(raw)-len(endOfMsg))
	copy(msg, raw)
	return msg, nil
}

func (f *Framer) readChunked() ([]byte, error) {
	var msg []byte

	for {
		// Skip to the start of the next chunk header.
		if _, err := f.readUntil(chunkStart); err != nil {
			return nil, err
		}

		line, err := f.readUntil([]byte{'\n'})
		if err != nil {
			return nil, err
		}
		digits := line[:len(line)-1]

		if len(digits) == 1 && digits[0] == '#' {
			// End-of-chunks marker.  A message must contain at least one
			// chunk to be valid.
			if len(msg) == 0 {
				return nil, fmt.Errorf("%w: empty message", ErrMalformedChunk)
			}
			return msg, nil
		}

		size, err := parseChunkSize(digits)
		if err != nil {
			return nil, err
		}

		off := len(msg)
		msg = append(msg, make([]byte, size)...)
		if err := f.readExactly(msg[off:]); err != nil {
			return nil, err
		}
	}
}

// parseChunkSize interprets the header digits as a decimal chunk length.
// Zero, empty, and anything non-decimal are malformed.
func parseChunkSize(digits []byte) (uint32, error) {
	if len(digits) == 0 {
		return 0, fmt.Errorf("%w: missing chunk size", ErrMalformedChunk)
	}

	var size uint32
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: chunk size %q", ErrMalformedChunk, digits)
		}

		digit := uint32(c - '0')
		if size > math.MaxUint32/10 || size*10 > math.MaxUint32-digit {
			return 0, fmt.Errorf("%w: chunk size overflow", ErrMalformedChunk)
		}
		size = size*10 + digit
	}

	if size == 0 {
		return 0, fmt.Errorf("%w: zero-length chunk", ErrMalformedChunk)
	}
	return size, nil
}

// readExactly fills p from the stream.  EOF mid-message surfaces as
// io.ErrUnexpectedEOF and is fatal.
func (f *Framer) readExactly(p []byte) error {
	if _, err := io.ReadFull(f.s, p); err != nil {
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return nil
}

// readUntil reads one byte at a time until the buffer tail equals sentinel
// and returns the buffer, sentinel included.  The returned slice aliases
// the Framer's scratch buffer and is only valid until the next read.
func (f *Framer) readUntil(sentinel []byte) ([]byte, error) {
	n := 0
	for {
		if n == len(f.buf) {
			grown := make([]byte, 2*len(f.buf))
			copy(grown, f.buf)
			f.buf = grown
		}

		if _, err := f.s.Read(f.buf[n : n+1]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		n++

		if n >= len(sentinel) && bytes.Equal(f.buf[n-len(sentinel):n], sentinel) {
			return f.buf[:n], nil
		}
	}
}
