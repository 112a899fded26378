// Package netconf implements the client side of a NETCONF session: protocol
// version negotiation, capability exchange, message framing, and the
// correlation of RPC requests with their replies.
package netconf

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hanneskuettner/libnetconf/transport"
)

// ErrClosed is returned for operations on a session that has been closed.
var ErrClosed = errors.New("netconf: session closed")

type sessionState int32

const (
	stateActive sessionState = iota
	stateClosing
	stateClosed
)

type sessionConfig struct {
	clientCaps *CapabilitySet
	hostname   string
	username   string
	backoff    time.Duration
}

// SessionOption configures session construction.
type SessionOption interface {
	apply(*sessionConfig)
}

type capabilityOpt []string

func (o capabilityOpt) apply(cfg *sessionConfig) {
	cfg.clientCaps = NewCapabilitySet([]string(o)...)
}

// WithCapabilities replaces the default client advertisement used by Open.
func WithCapabilities(capabilities ...string) SessionOption {
	return capabilityOpt(capabilities)
}

type peerOpt struct{ hostname, username string }

func (o peerOpt) apply(cfg *sessionConfig) {
	cfg.hostname = o.hostname
	cfg.username = o.username
}

// WithPeer records the remote hostname and the username the transport was
// authenticated with.  Both are metadata only.
func WithPeer(hostname, username string) SessionOption {
	return peerOpt{hostname: hostname, username: username}
}

type backoffOpt time.Duration

func (o backoffOpt) apply(cfg *sessionConfig) {
	cfg.backoff = time.Duration(o)
}

// WithReadBackoff overrides the transport adapter's sleep between
// would-block retries.
func WithReadBackoff(d time.Duration) SessionOption {
	return backoffOpt(d)
}

// Session is a NETCONF session to one device.  It owns its transport and
// releases it exactly once on Close.
//
// A session supports one requester: concurrent SendRPC calls are
// serialised so ids and wire bytes never interleave, and concurrent
// RecvReply calls are likewise serialised.  Replies arrive in request
// order; matching ids to requests beyond that is the caller's concern.
type Session struct {
	conn    transport.Conn
	adapter *transport.Adapter
	fr      *transport.Framer

	version   Version
	caps      *CapabilitySet
	sessionID string
	hostname  string
	username  string

	// mu serialises senders and guards nextMsgID so stamping and writing
	// are atomic; rmu serialises readers.
	mu        sync.Mutex
	rmu       sync.Mutex
	nextMsgID uint64

	state atomic.Int32
}

// NewSession wraps an established, already-negotiated transport in a
// session.  version and caps come from the hello exchange; use Open to
// perform that exchange here instead.
func NewSession(conn transport.Conn, version Version, caps *CapabilitySet, opts ...SessionOption) *Session {
	var cfg sessionConfig
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	if caps == nil {
		caps = NewCapabilitySet()
	}

	adapter := transport.NewAdapter(conn)
	if cfg.backoff > 0 {
		adapter.SetBackoff(cfg.backoff)
	}

	fr := transport.NewFramer(adapter)
	if version == V11 {
		fr.Upgrade()
	}

	return &Session{
		conn:      conn,
		adapter:   adapter,
		fr:        fr,
		version:   version,
		caps:      caps,
		hostname:  cfg.hostname,
		username:  cfg.username,
		nextMsgID: 1,
	}
}

// SessionID returns the peer-assigned session identifier from the hello
// exchange, or "" for sessions built with NewSession.
func (s *Session) SessionID() string { return s.sessionID }

// Version returns the negotiated protocol version.
func (s *Session) Version() Version { return s.version }

// Capabilities returns the peer's capability set.  The set and its
// iteration cursor are not safe for concurrent use.
func (s *Session) Capabilities() *CapabilitySet { return s.caps }

// Hostname returns the remote hostname recorded with WithPeer.
func (s *Session) Hostname() string { return s.hostname }

// Username returns the authenticated username recorded with WithPeer.
func (s *Session) Username() string { return s.username }

// EventFD returns a descriptor that becomes readable when session data
// arrives, preferring the SSH socket over a raw input descriptor, or -1
// when the transport has none.
func (s *Session) EventFD() int { return s.adapter.PollFD() }

// SendRPC stamps the next message id onto a copy of rpc, attaches the base
// namespace of the negotiated version, frames it, and writes it out.  It
// returns the id it stamped.  The caller's rpc is never modified.
//
// An id is consumed only by a successful send: after a failure the next
// SendRPC reuses the same id.  Transport and framing failures leave the
// stream in an undefined position, so the session should be closed.
func (s *Session) SendRPC(rpc *RPC) (uint64, error) {
	if rpc == nil {
		return 0, errors.New("netconf: nil rpc")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionState(s.state.Load()) == stateClosed {
		return 0, ErrClosed
	}

	msg := rpc.dup()
	id := s.nextMsgID
	msg.MessageID = strconv.FormatUint(id, 10)

	p, err := msg.marshal(s.version.Namespace())
	if err != nil {
		return 0, err
	}

	if err := s.fr.WriteMsg(p); err != nil {
		return 0, fmt.Errorf("failed to send rpc: %w", err)
	}

	s.nextMsgID++
	return id, nil
}

// RecvReply reads the next complete framed message and classifies it.  The
// message is returned regardless of its id; callers match it to their
// request.
func (s *Session) RecvReply() (*Reply, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()

	if sessionState(s.state.Load()) == stateClosed {
		return nil, ErrClosed
	}

	raw, err := s.fr.ReadMsg()
	if err != nil {
		return nil, fmt.Errorf("failed to receive message: %w", err)
	}

	return parseReply(raw)
}

// Call sends one RPC and waits for its reply.  A ReplyError reply is
// returned as the decoded RPCErrors; otherwise the body is unmarshalled
// into reply when it is non-nil.
func (s *Session) Call(op any, reply any) error {
	id, err := s.SendRPC(&RPC{Operation: op})
	if err != nil {
		return err
	}

	r, err := s.RecvReply()
	if err != nil {
		return err
	}

	if r.MessageID != id {
		log.Printf("netconf: reply message-id %d does not match request %d", r.MessageID, id)
	}

	if err := r.Err(); err != nil {
		return err
	}

	if reply != nil {
		return r.Decode(reply)
	}
	return nil
}

// Close shuts the session down: a best-effort <close-session> RPC, one
// discarded reply, then transport teardown.  Close tolerates any prior
// failure and never fails itself; calling it again is a no-op.
func (s *Session) Close() {
	if !s.state.CompareAndSwap(int32(stateActive), int32(stateClosing)) {
		return
	}

	if s.conn != nil {
		rpc := &RPC{Operation: "<close-session/>"}
		if _, err := s.SendRPC(rpc); err == nil {
			if _, err := s.RecvReply(); err != nil {
				log.Printf("netconf: close-session reply not received: %v", err)
			}
		} else {
			log.Printf("netconf: failed to send close-session: %v", err)
		}

		if err := s.conn.Close(); err != nil {
			log.Printf("netconf: failed to close transport: %v", err)
		}
	}

	s.state.Store(int32(stateClosed))
}
