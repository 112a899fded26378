// Package ssh implements the NETCONF transport substrate over an SSH
// subsystem channel as described in RFC6242 section 3.
package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/higebu/netfd"
	"golang.org/x/crypto/ssh"
)

const subsystem = "netconf"

// Conn is an SSH subsystem channel exposed as a transport substrate.  Reads
// and writes go through the channel's stdout/stdin pipes; the pollable
// descriptor is the underlying TCP socket when the connection was
// established by Dial.
type Conn struct {
	c      *ssh.Client
	sess   *ssh.Session
	stdin  io.WriteCloser
	stdout io.Reader

	pollFD int

	// managedConn is set when the Conn owns the underlying ssh.Client (the
	// Dial path) and must close it on teardown.
	managedConn bool
}

// Dial connects to an SSH server, authenticates with config, and opens the
// netconf subsystem.  Closing the returned Conn also closes the underlying
// connection.
func Dial(ctx context.Context, network, addr string, config *ssh.ClientConfig) (*Conn, error) {
	d := net.Dialer{Timeout: config.Timeout}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	// The ssh package has no context support for the handshake, so watch
	// the context ourselves and kill the connection to unblock it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		// ssh.NewClientConn closed conn on failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	t, err := newConn(client, true)
	if err != nil {
		_ = client.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	t.pollFD = netfd.GetFdFromConn(conn)

	return t, nil
}

// NewConn opens the netconf subsystem on an existing ssh.Client.  The
// client is left open when the Conn is closed; only the subsystem session
// is torn down.
func NewConn(client *ssh.Client) (*Conn, error) {
	return newConn(client, false)
}

func newConn(client *ssh.Client, managed bool) (*Conn, error) {
	sess, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create ssh session: %w", err)
	}

	w, err := sess.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	r, err := sess.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := sess.RequestSubsystem(subsystem); err != nil {
		return nil, fmt.Errorf("failed to start netconf ssh subsystem: %w", err)
	}

	return &Conn{
		c:           client,
		sess:        sess,
		stdin:       w,
		stdout:      r,
		pollFD:      -1,
		managedConn: managed,
	}, nil
}

func (c *Conn) Read(p []byte) (int, error)  { return c.stdout.Read(p) }
func (c *Conn) Write(p []byte) (int, error) { return c.stdin.Write(p) }

// PollFD returns the socket descriptor of a dialed connection, or -1 when
// the Conn was built on a caller-supplied client.
func (c *Conn) PollFD() int { return c.pollFD }

// Close tears down the channel and, for dialed connections, the ssh client
// underneath it.  All layers are attempted; the errors are joined.
func (c *Conn) Close() error {
	var retErr error

	if err := c.stdin.Close(); err != nil {
		retErr = errors.Join(retErr, fmt.Errorf("failed to close ssh stdin: %w", err))
	}

	if err := c.sess.Close(); err != nil && !errors.Is(err, io.EOF) {
		retErr = errors.Join(retErr, fmt.Errorf("failed to close ssh channel: %w", err))
	}

	if c.managedConn {
		if err := c.c.Close(); err != nil {
			return errors.Join(retErr, fmt.Errorf("failed to close ssh connection: %w", err))
		}
	}

	return retErr
}
