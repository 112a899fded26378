//go:build unix

package transport

import (
	"errors"
	"io"
	"sync"

	"golang.org/x/sys/unix"
)

// FDConn is a Conn over a pair of raw file descriptors, typically the pipes
// of a spawned subsystem process.  The input descriptor is switched to
// non-blocking mode so drained reads surface as ErrWouldBlock for the
// Adapter to retry.
type FDConn struct {
	in  int
	out int

	mu     sync.Mutex
	closed bool
}

// NewFDConn takes ownership of the two descriptors; both are closed by
// Close.  in and out may be the same descriptor (a socket), in which case
// it is closed once.
func NewFDConn(in, out int) (*FDConn, error) {
	if err := unix.SetNonblock(in, true); err != nil {
		return nil, err
	}
	return &FDConn{in: in, out: out}, nil
}

func (c *FDConn) Read(p []byte) (int, error) {
	n, err := unix.Read(c.in, p)
	switch {
	case err == nil && n == 0:
		// A zero-byte read on a pipe or socket means the writer is gone.
		return 0, io.EOF
	case errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK):
		return 0, ErrWouldBlock
	case err != nil:
		return 0, err
	}
	return n, nil
}

func (c *FDConn) Write(p []byte) (int, error) {
	n, err := unix.Write(c.out, p)
	if n < 0 {
		n = 0
	}
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
		return n, ErrWouldBlock
	}
	return n, err
}

func (c *FDConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	err := unix.Close(c.in)
	if c.out != c.in {
		if cerr := unix.Close(c.out); err == nil {
			err = cerr
		}
	}
	return err
}

// PollFD returns the input descriptor for readiness polling.
func (c *FDConn) PollFD() int { return c.in }
