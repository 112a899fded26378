// Package transport provides the byte-stream plumbing a NETCONF session
// runs on: a substrate contract for non-blocking channels, an adapter that
// normalises them into blocking reads and complete writes, and a framer
// implementing both RFC6242 framing disciplines.
package transport

import (
	"bytes"
	"errors"
	"io"
	"time"
)

var (
	// ErrWouldBlock is returned by a Conn's Read or Write when the
	// underlying channel has no data (or no window) right now but has not
	// failed.  The Adapter retries these; callers above the Adapter never
	// observe it.
	ErrWouldBlock = errors.New("transport: operation would block")
)

// readBackoff is how long the Adapter sleeps before retrying a read or
// write that reported ErrWouldBlock.
const readBackoff = 100 * time.Microsecond

// Conn is the narrow contract a transport substrate must satisfy.  Read may
// return (0, ErrWouldBlock) on transient emptiness and (0, io.EOF) once the
// peer has closed the stream.  Write may return a short count or
// ErrWouldBlock; the Adapter compensates for both.
type Conn interface {
	io.ReadWriteCloser
}

// PollConn is implemented by substrates that can expose a pollable file
// descriptor for event-loop integration.
type PollConn interface {
	Conn

	// PollFD returns a descriptor that becomes readable when session data
	// arrives, or -1 if the substrate has none.
	PollFD() int
}

// Adapter wraps a Conn and exposes blocking-looking primitives: Read blocks
// until at least one byte is available and WriteAll does not return until
// the whole buffer is on the wire.  Everything that is not a would-block
// signal passes through untouched and is fatal to the session above.
type Adapter struct {
	conn    Conn
	backoff time.Duration
}

// NewAdapter returns an Adapter over conn using the default retry backoff.
func NewAdapter(conn Conn) *Adapter {
	return &Adapter{conn: conn, backoff: readBackoff}
}

// SetBackoff overrides the sleep between would-block retries.  A zero
// duration busy-polls.
func (a *Adapter) SetBackoff(d time.Duration) {
	a.backoff = d
}

// Read blocks until at least one byte has been read into p.  A zero-byte
// result from the substrate is treated the same as a would-block signal;
// only io.EOF ends the stream.
func (a *Adapter) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for {
		n, err := a.conn.Read(p)
		if n > 0 {
			return n, nil
		}

		switch {
		case err == nil, errors.Is(err, ErrWouldBlock):
			time.Sleep(a.backoff)
		default:
			return 0, err
		}
	}
}

// WriteAll writes the whole of p, retrying short writes and would-block
// signals.  Any other error aborts with the number of bytes that made it
// out unreported; the session treats the failure as fatal anyway.
func (a *Adapter) WriteAll(p []byte) error {
	for len(p) > 0 {
		n, err := a.conn.Write(p)
		p = p[n:]

		switch {
		case err == nil:
		case errors.Is(err, ErrWouldBlock):
			time.Sleep(a.backoff)
		default:
			return err
		}
	}
	return nil
}

// Close closes the underlying substrate.
func (a *Adapter) Close() error {
	return a.conn.Close()
}

// PollFD returns the substrate's pollable descriptor, or -1 when it has
// none.
func (a *Adapter) PollFD() int {
	if p, ok := a.conn.(PollConn); ok {
		return p.PollFD()
	}
	return -1
}

// TestConn is an in-memory Conn used to script a peer in tests: pre-load
// ReadBuf with the bytes the "server" sends, then inspect WriteBuf for what
// the client put on the wire.  Reads drain ReadBuf and report io.EOF once
// it is empty.  Setting WriteErr makes subsequent writes fail, which is how
// tests exercise send-failure paths.
type TestConn struct {
	ReadBuf  bytes.Buffer
	WriteBuf bytes.Buffer

	// WriteErr, when non-nil, is returned by Write instead of buffering.
	WriteErr error

	closed bool
}

func (c *TestConn) Read(p []byte) (int, error) {
	return c.ReadBuf.Read(p)
}

func (c *TestConn) Write(p []byte) (int, error) {
	if c.WriteErr != nil {
		return 0, c.WriteErr
	}
	return c.WriteBuf.Write(p)
}

func (c *TestConn) Close() error {
	c.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (c *TestConn) Closed() bool { return c.closed }
